// Package buffer holds per-day message counters and per-member XP accumulators in the volatile
// store until the sync workers drain them into Postgres.
package buffer

import (
	"context"
	"fmt"
	"log"
	"time"

	"community-bot/backend/internal/activity/domain"
	"community-bot/backend/internal/volatile"
)

// DefaultTTL bounds buckets nobody drains (e.g. one message in a dead guild).
const DefaultTTL = 48 * time.Hour

// Buffer is the volatile counter buffer. Producer-side methods never return errors:
// a failed write is logged and the increment is lost from statistics.
type Buffer struct {
	store volatile.Store
	ttl   time.Duration
}

// New returns a Buffer over store. ttl <= 0 uses DefaultTTL.
func New(store volatile.Store, ttl time.Duration) *Buffer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Buffer{store: store, ttl: ttl}
}

// IncrementMessages adds delta to the member's counter for the key's day.
func (b *Buffer) IncrementMessages(ctx context.Context, k domain.DailyCounterKey, delta int64) {
	if delta == 0 {
		return
	}
	if err := b.store.IncrBy(ctx, CounterKey(k), delta, b.ttl); err != nil {
		log.Printf("buffer: increment %s: %v", CounterKey(k), err)
	}
}

// AddXP accumulates experience for a member. lastMessageAt is recorded when non-nil.
func (b *Buffer) AddXP(ctx context.Context, k MemberKey, d domain.XPDelta) {
	if d.IsZero() {
		return
	}
	incr := make(map[string]int64, 2)
	if d.MsgExp != 0 {
		incr[FieldMsgExp] = d.MsgExp
	}
	if d.VoiceExp != 0 {
		incr[FieldVoiceExp] = d.VoiceExp
	}
	var set map[string]int64
	if d.LastMessageAt != nil {
		set = map[string]int64{FieldLastMessageAt: d.LastMessageAt.Unix()}
	}
	if err := b.store.HIncrBy(ctx, XPKey(k), incr, set, b.ttl); err != nil {
		log.Printf("buffer: add xp %s: %v", XPKey(k), err)
	}
}

// CounterKeys lists buffered counters. Unparseable keys are logged and skipped.
func (b *Buffer) CounterKeys(ctx context.Context) ([]domain.DailyCounterKey, error) {
	raw, err := b.store.ScanPrefix(ctx, CounterPrefix)
	if err != nil {
		return nil, fmt.Errorf("buffer: scan counters: %w", err)
	}
	out := make([]domain.DailyCounterKey, 0, len(raw))
	for _, key := range raw {
		k, err := ParseCounterKey(key)
		if err != nil {
			log.Printf("buffer: skipping %v", err)
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// DrainCounter atomically reads and removes a counter. Increments that land after the drain
// recreate the key, so nothing counted before or after is lost. ok is false when the key vanished.
func (b *Buffer) DrainCounter(ctx context.Context, k domain.DailyCounterKey) (int64, bool, error) {
	return b.store.GetDel(ctx, CounterKey(k))
}

// RestoreCounter puts a drained amount back, used when the durable write failed.
func (b *Buffer) RestoreCounter(ctx context.Context, k domain.DailyCounterKey, delta int64) error {
	return b.store.IncrBy(ctx, CounterKey(k), delta, b.ttl)
}

// XPKeys lists buffered XP buckets. Unparseable keys are logged and skipped.
func (b *Buffer) XPKeys(ctx context.Context) ([]MemberKey, error) {
	raw, err := b.store.ScanPrefix(ctx, XPPrefix)
	if err != nil {
		return nil, fmt.Errorf("buffer: scan xp: %w", err)
	}
	out := make([]MemberKey, 0, len(raw))
	for _, key := range raw {
		k, err := ParseXPKey(key)
		if err != nil {
			log.Printf("buffer: skipping %v", err)
			continue
		}
		out = append(out, k)
	}
	return out, nil
}

// DrainXP atomically reads and clears a member's XP bucket.
func (b *Buffer) DrainXP(ctx context.Context, k MemberKey) (domain.XPDelta, error) {
	h, err := b.store.HGetAllDel(ctx, XPKey(k))
	if err != nil {
		return domain.XPDelta{}, err
	}
	d := domain.XPDelta{MsgExp: h[FieldMsgExp], VoiceExp: h[FieldVoiceExp]}
	if ts, ok := h[FieldLastMessageAt]; ok && ts > 0 {
		t := time.Unix(ts, 0).UTC()
		d.LastMessageAt = &t
	}
	return d, nil
}

// RestoreXP puts a drained bucket back, used when the durable write failed.
func (b *Buffer) RestoreXP(ctx context.Context, k MemberKey, d domain.XPDelta) error {
	incr := map[string]int64{FieldMsgExp: d.MsgExp, FieldVoiceExp: d.VoiceExp}
	var set map[string]int64
	if d.LastMessageAt != nil {
		set = map[string]int64{FieldLastMessageAt: d.LastMessageAt.Unix()}
	}
	return b.store.HIncrBy(ctx, XPKey(k), incr, set, b.ttl)
}
