// Package queue holds raw activity envelopes between producers and the log-sync worker.
// Delivery is at most once: a dequeued entry is consumed even if the durable write fails.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"community-bot/backend/internal/activity/domain"
	"community-bot/backend/internal/volatile"
)

// LogQueueKey is the FIFO list of JSON-encoded raw entries in the volatile store.
const LogQueueKey = "activity:log_queue"

// Queue is an append-only FIFO of raw log entries. Ordering is FIFO per producer only.
type Queue interface {
	// Enqueue appends one entry. Callers treat failures as best-effort drops.
	Enqueue(ctx context.Context, entry domain.RawLogEntry) error
	// DequeueBatch pops up to max entries in queue order. An empty queue returns no entries and no error.
	DequeueBatch(ctx context.Context, max int) ([]domain.RawLogEntry, error)
	// Close releases resources.
	Close() error
}

// VolatileQueue keeps the queue as a list in the volatile store.
type VolatileQueue struct {
	store volatile.Store
	key   string
}

// NewVolatileQueue returns a queue on LogQueueKey.
func NewVolatileQueue(store volatile.Store) *VolatileQueue {
	return &VolatileQueue{store: store, key: LogQueueKey}
}

var _ Queue = (*VolatileQueue)(nil)

func (q *VolatileQueue) Enqueue(ctx context.Context, entry domain.RawLogEntry) error {
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("queue: encode: %w", err)
	}
	return q.store.RPush(ctx, q.key, raw)
}

// DequeueBatch skips (and logs) entries that no longer decode; they are not retried.
func (q *VolatileQueue) DequeueBatch(ctx context.Context, max int) ([]domain.RawLogEntry, error) {
	raws, err := q.store.LPopN(ctx, q.key, max)
	if err != nil {
		return nil, fmt.Errorf("queue: pop: %w", err)
	}
	return decodeAll(raws), nil
}

// Close is a no-op; the store is owned by the caller.
func (q *VolatileQueue) Close() error { return nil }

func decodeAll(raws [][]byte) []domain.RawLogEntry {
	out := make([]domain.RawLogEntry, 0, len(raws))
	for _, raw := range raws {
		var e domain.RawLogEntry
		if err := json.Unmarshal(raw, &e); err != nil {
			log.Printf("queue: dropping undecodable entry: %v", err)
			continue
		}
		out = append(out, e)
	}
	return out
}
