package buffer

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-bot/backend/internal/activity/domain"
	"community-bot/backend/internal/volatile/redisstore"
)

func newTestBuffer(t *testing.T) (*Buffer, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	store := redisstore.NewFromClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = store.Close() })
	return New(store, time.Hour), mr
}

func TestCounterKey_RoundTrip(t *testing.T) {
	k := domain.DailyCounterKey{GuildID: 111, UserID: 222, Date: "2026-10-16"}
	key := CounterKey(k)
	assert.Equal(t, "activity:msg:111:222:2026-10-16", key)

	got, err := ParseCounterKey(key)
	require.NoError(t, err)
	assert.Equal(t, k, got)
}

func TestParseCounterKey_Invalid(t *testing.T) {
	for _, key := range []string{
		"leveling:xp:1:2",
		"activity:msg:1:2",
		"activity:msg:x:2:2026-10-16",
		"activity:msg:1:y:2026-10-16",
		"activity:msg:1:2:2026",
	} {
		t.Run(key, func(t *testing.T) {
			_, err := ParseCounterKey(key)
			assert.Error(t, err)
		})
	}
}

func TestXPKey_RoundTrip(t *testing.T) {
	k := MemberKey{GuildID: 5, UserID: 7}
	assert.Equal(t, "leveling:xp:5:7", XPKey(k))
	got, err := ParseXPKey(XPKey(k))
	require.NoError(t, err)
	assert.Equal(t, k, got)

	_, err = ParseXPKey("leveling:xp:5")
	assert.Error(t, err)
}

func TestIncrementMessages_AppliesTTL(t *testing.T) {
	b, mr := newTestBuffer(t)
	ctx := context.Background()
	k := domain.DailyCounterKey{GuildID: 1, UserID: 2, Date: "2026-10-16"}

	b.IncrementMessages(ctx, k, 1)
	b.IncrementMessages(ctx, k, 1)
	b.IncrementMessages(ctx, k, 0)

	assert.Equal(t, time.Hour, mr.TTL(CounterKey(k)))
	v, err := mr.Get(CounterKey(k))
	require.NoError(t, err)
	assert.Equal(t, "2", v)
}

func TestCounterKeys_SkipsForeignKeys(t *testing.T) {
	b, mr := newTestBuffer(t)
	ctx := context.Background()
	k := domain.DailyCounterKey{GuildID: 1, UserID: 2, Date: "2026-10-16"}
	b.IncrementMessages(ctx, k, 3)
	require.NoError(t, mr.Set("activity:msg:garbage", "1"))

	keys, err := b.CounterKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []domain.DailyCounterKey{k}, keys)
}

func TestDrainCounter_IncrementAfterDrainIsKept(t *testing.T) {
	b, _ := newTestBuffer(t)
	ctx := context.Background()
	k := domain.DailyCounterKey{GuildID: 1, UserID: 2, Date: "2026-10-16"}

	b.IncrementMessages(ctx, k, 4)
	v, ok, err := b.DrainCounter(ctx, k)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(4), v)

	b.IncrementMessages(ctx, k, 1)
	v, ok, err = b.DrainCounter(ctx, k)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int64(1), v)
}

func TestRestoreCounter(t *testing.T) {
	b, _ := newTestBuffer(t)
	ctx := context.Background()
	k := domain.DailyCounterKey{GuildID: 1, UserID: 2, Date: "2026-10-16"}

	b.IncrementMessages(ctx, k, 2)
	v, _, err := b.DrainCounter(ctx, k)
	require.NoError(t, err)
	b.IncrementMessages(ctx, k, 1)
	require.NoError(t, b.RestoreCounter(ctx, k, v))

	v, _, err = b.DrainCounter(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, int64(3), v)
}

func TestAddXP_DrainXP(t *testing.T) {
	b, _ := newTestBuffer(t)
	ctx := context.Background()
	k := MemberKey{GuildID: 1, UserID: 2}
	at := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)

	b.AddXP(ctx, k, domain.XPDelta{MsgExp: 20, LastMessageAt: &at})
	b.AddXP(ctx, k, domain.XPDelta{VoiceExp: 10})
	b.AddXP(ctx, k, domain.XPDelta{})

	keys, err := b.XPKeys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []MemberKey{k}, keys)

	d, err := b.DrainXP(ctx, k)
	require.NoError(t, err)
	assert.Equal(t, int64(20), d.MsgExp)
	assert.Equal(t, int64(10), d.VoiceExp)
	require.NotNil(t, d.LastMessageAt)
	assert.True(t, at.Equal(*d.LastMessageAt))

	d, err = b.DrainXP(ctx, k)
	require.NoError(t, err)
	assert.True(t, d.IsZero())
	assert.Nil(t, d.LastMessageAt)
}

func TestIncrementMessages_StoreDownIsSwallowed(t *testing.T) {
	b, mr := newTestBuffer(t)
	mr.SetError("LOADING")
	defer mr.SetError("")

	// Must not panic or block; the increment is dropped.
	b.IncrementMessages(context.Background(), domain.DailyCounterKey{GuildID: 1, UserID: 2, Date: "2026-10-16"}, 1)
	b.AddXP(context.Background(), MemberKey{GuildID: 1, UserID: 2}, domain.XPDelta{MsgExp: 1})

	_, err := b.CounterKeys(context.Background())
	assert.Error(t, err)
}
