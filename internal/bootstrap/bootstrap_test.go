package bootstrap

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-bot/backend/internal/activity/queue"
	"community-bot/backend/internal/config"
	"community-bot/backend/internal/platform"
)

func TestOpenVolatile_Redis(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{VolatileBackend: config.VolatileRedis, RedisURL: "redis://" + mr.Addr() + "/0"}

	v, err := OpenVolatile(context.Background(), cfg)
	require.NoError(t, err)
	defer v.Store.Close()
	assert.Nil(t, v.GC)
	assert.NoError(t, v.Store.Ping(context.Background()))
}

func TestOpenVolatile_RedisUnreachable(t *testing.T) {
	cfg := &config.Config{VolatileBackend: config.VolatileRedis, RedisURL: "redis://127.0.0.1:1/0"}
	_, err := OpenVolatile(context.Background(), cfg)
	assert.Error(t, err)
}

func TestOpenVolatile_Badger(t *testing.T) {
	cfg := &config.Config{VolatileBackend: config.VolatileBadger, BadgerPath: t.TempDir()}

	v, err := OpenVolatile(context.Background(), cfg)
	require.NoError(t, err)
	defer v.Store.Close()
	require.NotNil(t, v.GC)
	assert.NoError(t, v.Store.Ping(context.Background()))
}

func TestOpenVolatile_Unknown(t *testing.T) {
	_, err := OpenVolatile(context.Background(), &config.Config{VolatileBackend: "memcached"})
	assert.Error(t, err)
}

func TestOpenQueue(t *testing.T) {
	q, err := OpenQueue(&config.Config{QueueBackend: config.QueueVolatile}, nil, nil)
	require.NoError(t, err)
	assert.IsType(t, &queue.VolatileQueue{}, q)

	_, err = OpenQueue(&config.Config{QueueBackend: config.QueueKafka}, nil, nil)
	assert.Error(t, err, "kafka without brokers")

	_, err = OpenQueue(&config.Config{QueueBackend: "sqs"}, nil, nil)
	assert.Error(t, err)
}

func TestRoleManager_DryRunWithoutToken(t *testing.T) {
	rm, err := RoleManager(&config.Config{})
	require.NoError(t, err)
	assert.IsType(t, platform.LogRoleManager{}, rm)
}

func TestOpenTelemetry_NoEndpoint(t *testing.T) {
	ctx := context.Background()
	tel, err := OpenTelemetry(ctx, &config.Config{}, "test")
	require.NoError(t, err)
	require.NotNil(t, tel.Metrics)
	require.NotNil(t, tel.Emitter)
	assert.NoError(t, tel.Shutdown(ctx))

	var nilTel *Telemetry
	assert.NoError(t, nilTel.Shutdown(ctx))
}
