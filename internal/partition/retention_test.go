package partition

import (
	"bytes"
	"context"
	"errors"
	"log"
	"os"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-bot/backend/internal/volatile"
	"community-bot/backend/internal/volatile/redisstore"
)

func TestMonthlyRetention_RunsOncePerMonth(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer store.Close()

	catalog := newFakeCatalog()
	seedMonths(t, catalog, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 3)
	now := time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)
	m := newTestManager(catalog, now)
	r := NewMonthlyRetention(m, store, 6)

	ran, dropped, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 3, dropped)
	assert.True(t, mr.Exists("partition:retention:2026-10"))

	ran, _, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, ran, "second check in the same month is a no-op")

	m.now = func() time.Time { return now.AddDate(0, 1, 0) }
	ran, _, err = r.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, ran, "a new month claims a new marker")
}

func TestMonthlyRetention_FailureReleasesMarker(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer store.Close()

	catalog := newFakeCatalog()
	seedMonths(t, catalog, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	catalog.failDrop["activity_log_y2026m01"] = true
	r := NewMonthlyRetention(newTestManager(catalog, time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)), store, 6)

	ran, _, err := r.Run(context.Background())
	assert.True(t, ran)
	assert.Error(t, err)
	assert.False(t, mr.Exists("partition:retention:2026-10"))
}

// stuckMarkerStore fails every Del.
type stuckMarkerStore struct {
	volatile.Store
}

func (stuckMarkerStore) Del(ctx context.Context, keys ...string) error {
	return errors.New("connection reset")
}

func TestMonthlyRetention_FailedMarkerReleaseIsLogged(t *testing.T) {
	mr := miniredis.RunT(t)
	store := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	defer store.Close()

	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	catalog := newFakeCatalog()
	seedMonths(t, catalog, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), 1)
	catalog.failDrop["activity_log_y2026m01"] = true
	r := NewMonthlyRetention(newTestManager(catalog, time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC)), stuckMarkerStore{store}, 6)

	ran, _, err := r.Run(context.Background())
	assert.True(t, ran)
	assert.Error(t, err, "the drop error is still returned")
	assert.True(t, mr.Exists("partition:retention:2026-10"))
	assert.Contains(t, logs.String(), "release retention marker partition:retention:2026-10")
	assert.Contains(t, logs.String(), "connection reset")
}
