// Package drain moves buffered activity into Postgres. Each worker is a plain function over its
// store handles; scheduling is the caller's concern.
//
// A worker that cannot list or dequeue abandons the tick and returns an error. A failure on one
// key is logged, its drained amount is put back into the buffer, and the loop moves on.
package drain

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/activity/buffer"
	"community-bot/backend/internal/activity/domain"
	leveldomain "community-bot/backend/internal/leveling/domain"
	"community-bot/backend/internal/telemetry"
)

// DefaultLogBatchSize is the number of raw entries per bulk insert.
const DefaultLogBatchSize = 1000

// maxLogBatchesPerRun stops a log sync from chasing producers forever.
const maxLogBatchesPerRun = 100

// Result summarises one worker invocation.
type Result struct {
	Keys   int   // keys or batches processed
	Amount int64 // messages, buckets or rows written
	Failed int
}

// CounterBuffer is the counter side of the volatile buffer.
type CounterBuffer interface {
	CounterKeys(ctx context.Context) ([]domain.DailyCounterKey, error)
	DrainCounter(ctx context.Context, k domain.DailyCounterKey) (int64, bool, error)
	RestoreCounter(ctx context.Context, k domain.DailyCounterKey, delta int64) error
}

// CounterSink receives drained message counts.
type CounterSink interface {
	AddMemberMessages(ctx context.Context, k domain.DailyCounterKey, delta int64) error
}

// CounterSync drains every buffered per-day message counter into member_daily_stats.
func CounterSync(ctx context.Context, buf CounterBuffer, sink CounterSink, metrics *telemetry.Metrics) (Result, error) {
	metrics = orNoop(metrics)
	var res Result
	keys, err := buf.CounterKeys(ctx)
	if err != nil {
		return res, fmt.Errorf("counter sync: %w", err)
	}
	for _, k := range keys {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		n, ok, err := buf.DrainCounter(ctx, k)
		if err != nil {
			log.Printf("counter sync: drain %s/%s/%s: %v", k.GuildID, k.UserID, k.Date, err)
			res.Failed++
			metrics.DrainFailed(ctx, "counter-sync")
			continue
		}
		if !ok || n == 0 {
			continue
		}
		if err := sink.AddMemberMessages(ctx, k, n); err != nil {
			log.Printf("counter sync: upsert %s/%s/%s (+%d): %v", k.GuildID, k.UserID, k.Date, n, err)
			res.Failed++
			metrics.DrainFailed(ctx, "counter-sync")
			restoreCtx, cancel := detached(ctx)
			if rerr := buf.RestoreCounter(restoreCtx, k, n); rerr != nil {
				log.Printf("counter sync: restore %s/%s/%s: %d messages lost: %v", k.GuildID, k.UserID, k.Date, n, rerr)
			}
			cancel()
			continue
		}
		res.Keys++
		res.Amount += n
		metrics.CounterDrained(ctx, n)
	}
	return res, nil
}

// LogSource is the consumer side of the raw event queue.
type LogSource interface {
	DequeueBatch(ctx context.Context, max int) ([]domain.RawLogEntry, error)
}

// LogSink bulk-inserts raw entries.
type LogSink interface {
	InsertLogBatch(ctx context.Context, entries []domain.RawLogEntry) (int64, error)
}

// LogSync repeatedly dequeues up to batchSize entries and writes each batch in one insert, until the
// queue is empty. Dequeued entries are consumed: a failed insert loses that batch and ends the run so
// the rest of the queue waits for the next tick.
func LogSync(ctx context.Context, src LogSource, sink LogSink, batchSize int, metrics *telemetry.Metrics) (Result, error) {
	metrics = orNoop(metrics)
	if batchSize <= 0 {
		batchSize = DefaultLogBatchSize
	}
	var res Result
	for i := 0; i < maxLogBatchesPerRun; i++ {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		entries, err := src.DequeueBatch(ctx, batchSize)
		if err != nil {
			return res, fmt.Errorf("log sync: dequeue: %w", err)
		}
		if len(entries) == 0 {
			return res, nil
		}
		n, err := sink.InsertLogBatch(ctx, entries)
		if err != nil {
			res.Failed++
			metrics.LogLost(ctx, int64(len(entries)))
			return res, fmt.Errorf("log sync: insert batch of %d lost: %w", len(entries), err)
		}
		res.Keys++
		res.Amount += n
		metrics.LogInserted(ctx, n)
		if len(entries) < batchSize {
			return res, nil
		}
	}
	return res, nil
}

// XPBuffer is the XP side of the volatile buffer.
type XPBuffer interface {
	XPKeys(ctx context.Context) ([]buffer.MemberKey, error)
	DrainXP(ctx context.Context, k buffer.MemberKey) (domain.XPDelta, error)
	RestoreXP(ctx context.Context, k buffer.MemberKey, d domain.XPDelta) error
}

// XPSink applies experience deltas and recomputes the member's level.
type XPSink interface {
	AddXP(ctx context.Context, guildID, userID snowflake.ID, msgExp, voiceExp int64, lastMessageAt *time.Time) (*leveldomain.MemberLevel, error)
}

// XPSync drains every buffered XP bucket into member_leveling. Level-ups are not detected here;
// role reconciliation runs separately.
func XPSync(ctx context.Context, buf XPBuffer, sink XPSink, metrics *telemetry.Metrics) (Result, error) {
	metrics = orNoop(metrics)
	var res Result
	keys, err := buf.XPKeys(ctx)
	if err != nil {
		return res, fmt.Errorf("xp sync: %w", err)
	}
	for _, k := range keys {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		d, err := buf.DrainXP(ctx, k)
		if err != nil {
			log.Printf("xp sync: drain %s/%s: %v", k.GuildID, k.UserID, err)
			res.Failed++
			metrics.DrainFailed(ctx, "xp-sync")
			continue
		}
		if d.IsZero() {
			continue
		}
		if _, err := sink.AddXP(ctx, k.GuildID, k.UserID, d.MsgExp, d.VoiceExp, d.LastMessageAt); err != nil {
			log.Printf("xp sync: upsert %s/%s: %v", k.GuildID, k.UserID, err)
			res.Failed++
			metrics.DrainFailed(ctx, "xp-sync")
			restoreCtx, cancel := detached(ctx)
			if rerr := buf.RestoreXP(restoreCtx, k, d); rerr != nil {
				log.Printf("xp sync: restore %s/%s: msg_exp=%d voice_exp=%d lost: %v", k.GuildID, k.UserID, d.MsgExp, d.VoiceExp, rerr)
			}
			cancel()
			continue
		}
		res.Keys++
		res.Amount++
		metrics.XPDrained(ctx, 1)
	}
	return res, nil
}

// detached gives a restore a chance to run even if the tick's deadline is what failed the upsert.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
}

func orNoop(m *telemetry.Metrics) *telemetry.Metrics {
	if m == nil {
		return telemetry.Noop()
	}
	return m
}
