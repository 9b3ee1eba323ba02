// Package pipeline is the producer-facing entry point of the activity pipeline.
//
// LogEvent never blocks on a store: it validates the envelope and hands it to one of a fixed
// number of bounded worker channels. Workers apply the event to the volatile buffer, the cooldown
// gate, the raw queue and (for low-volume types) daily_stats. Every failure after the hand-off is
// logged and dropped.
package pipeline

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/cespare/xxhash/v2"

	"community-bot/backend/internal/activity/buffer"
	"community-bot/backend/internal/activity/domain"
	"community-bot/backend/internal/activity/queue"
	gcdomain "community-bot/backend/internal/guildconfig/domain"
	"community-bot/backend/internal/telemetry"
)

var (
	// ErrQueueFull is returned when the event's shard channel is full; the event is dropped.
	ErrQueueFull = errors.New("pipeline: submit queue full")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("pipeline: closed")
)

const (
	DefaultWorkers   = 8
	DefaultQueueSize = 4096
	DefaultMessageXP = 20
	DefaultVoiceXP   = 10

	// applyTimeout bounds the store round trips for one event.
	applyTimeout = 2 * time.Second
	// dropLogEvery rate-limits the "queue full" log line.
	dropLogEvery = time.Second
)

// Config sizes the pipeline and sets the XP granted per qualifying event.
// MaxEventAge and MaxEventSkew bound a submitted timestamp relative to now.
type Config struct {
	Workers      int
	QueueSize    int
	MessageXP    int64
	VoiceXP      int64
	MaxEventAge  time.Duration
	MaxEventSkew time.Duration
}

func (c Config) withDefaults() Config {
	if c.Workers <= 0 {
		c.Workers = DefaultWorkers
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.MessageXP <= 0 {
		c.MessageXP = DefaultMessageXP
	}
	if c.VoiceXP <= 0 {
		c.VoiceXP = DefaultVoiceXP
	}
	if c.MaxEventAge <= 0 {
		c.MaxEventAge = domain.DefaultMaxEventAge
	}
	if c.MaxEventSkew <= 0 {
		c.MaxEventSkew = domain.DefaultMaxEventSkew
	}
	return c
}

// ConfigSource returns a guild's activity config. ok=false means a fallback was returned.
type ConfigSource interface {
	Get(ctx context.Context, guildID snowflake.ID) (gcdomain.ActivityConfig, bool)
}

// CooldownGate grants XP at most once per window per member.
type CooldownGate interface {
	TryAcquire(ctx context.Context, guildID, userID snowflake.ID, window time.Duration) (bool, error)
}

// StatsWriter increments low-volume daily aggregates.
type StatsWriter interface {
	IncrementDailyStat(ctx context.Context, guildID snowflake.ID, date string, kind domain.DailyStatKind) error
}

// Pipeline accepts activity events from producers.
type Pipeline struct {
	cfg     Config
	buf     *buffer.Buffer
	gate    CooldownGate
	queue   queue.Queue
	configs ConfigSource
	stats   StatsWriter
	metrics *telemetry.Metrics
	now     func() time.Time

	shards []chan domain.ActivityEvent
	wg     sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	dropped     atomic.Int64
	lastDropLog atomic.Int64
}

// New starts cfg.Workers workers. Call Close to stop them.
func New(cfg Config, buf *buffer.Buffer, gate CooldownGate, q queue.Queue, configs ConfigSource, stats StatsWriter, metrics *telemetry.Metrics) *Pipeline {
	cfg = cfg.withDefaults()
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	p := &Pipeline{
		cfg:     cfg,
		buf:     buf,
		gate:    gate,
		queue:   q,
		configs: configs,
		stats:   stats,
		metrics: metrics,
		now:     time.Now,
		shards:  make([]chan domain.ActivityEvent, cfg.Workers),
	}
	perShard := cfg.QueueSize / cfg.Workers
	if perShard < 1 {
		perShard = 1
	}
	for i := range p.shards {
		p.shards[i] = make(chan domain.ActivityEvent, perShard)
		p.wg.Add(1)
		go p.worker(p.shards[i])
	}
	return p
}

// LogEvent builds an event stamped with the current time and submits it.
// Callers on the chat event path may ignore the error: the event is already dropped.
func (p *Pipeline) LogEvent(guildID snowflake.ID, eventType domain.EventType, userID, channelID snowflake.ID, metadata json.RawMessage) error {
	return p.Submit(domain.ActivityEvent{
		GuildID:   guildID,
		UserID:    userID,
		ChannelID: channelID,
		Type:      eventType,
		Timestamp: p.now().UTC(),
		Metadata:  metadata,
	})
}

// Submit hands e to its shard without blocking. A zero timestamp is set to now; any other
// timestamp outside the accepted window is rejected with domain.ErrTimestampOutOfRange.
func (p *Pipeline) Submit(e domain.ActivityEvent) error {
	if err := e.Validate(); err != nil {
		return err
	}
	now := p.now().UTC()
	if e.Timestamp.IsZero() {
		e.Timestamp = now
	}
	if err := e.CheckTimestamp(now, p.cfg.MaxEventAge, p.cfg.MaxEventSkew); err != nil {
		p.metrics.EventDropped(context.Background(), "invalid_timestamp")
		return err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		p.metrics.EventDropped(context.Background(), "closed")
		return ErrClosed
	}
	select {
	case p.shards[p.shardFor(e.GuildID, e.UserID)] <- e:
		p.metrics.EventSubmitted(context.Background(), string(e.Type))
		return nil
	default:
		p.noteDrop()
		return ErrQueueFull
	}
}

// shardFor keeps one member's events on one worker so they apply in submit order.
func (p *Pipeline) shardFor(guildID, userID snowflake.ID) int {
	var b [16]byte
	binary.BigEndian.PutUint64(b[:8], uint64(guildID))
	binary.BigEndian.PutUint64(b[8:], uint64(userID))
	return int(xxhash.Sum64(b[:]) % uint64(len(p.shards)))
}

func (p *Pipeline) noteDrop() {
	n := p.dropped.Add(1)
	p.metrics.EventDropped(context.Background(), "queue_full")
	now := p.now().UnixNano()
	last := p.lastDropLog.Load()
	if now-last < int64(dropLogEvery) || !p.lastDropLog.CompareAndSwap(last, now) {
		return
	}
	log.Printf("pipeline: submit queue full, %d events dropped so far", n)
}

// Dropped returns the number of events dropped because a shard was full.
func (p *Pipeline) Dropped() int64 { return p.dropped.Load() }

// Close stops accepting events, applies everything already queued and waits for the workers.
func (p *Pipeline) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, ch := range p.shards {
		close(ch)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

func (p *Pipeline) worker(events <-chan domain.ActivityEvent) {
	defer p.wg.Done()
	for e := range events {
		ctx, cancel := context.WithTimeout(context.Background(), applyTimeout)
		p.apply(ctx, &e)
		cancel()
	}
}
