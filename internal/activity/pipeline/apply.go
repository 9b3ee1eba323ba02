package pipeline

import (
	"context"
	"log"

	"community-bot/backend/internal/activity/buffer"
	"community-bot/backend/internal/activity/domain"
)

// apply routes one event. Every branch also appends the raw envelope to the queue.
func (p *Pipeline) apply(ctx context.Context, e *domain.ActivityEvent) {
	switch {
	case !e.Type.Buffered():
		p.applyDailyStat(ctx, e)
	case e.Type == domain.EventVoice:
		p.applyVoice(ctx, e)
	default:
		p.applyMessage(ctx, e)
	}
	if err := p.queue.Enqueue(ctx, domain.NewRawLogEntry(e)); err != nil {
		p.metrics.EventDropped(ctx, "enqueue_failed")
		log.Printf("pipeline: enqueue raw %s event for guild %s: %v", e.Type, e.GuildID, err)
	}
}

// applyMessage always counts the message; XP is granted only outside excluded channels and
// only when the member's cooldown window is free.
func (p *Pipeline) applyMessage(ctx context.Context, e *domain.ActivityEvent) {
	p.buf.IncrementMessages(ctx, domain.DailyCounterKey{
		GuildID: e.GuildID,
		UserID:  e.UserID,
		Date:    domain.DayOf(e.Timestamp),
	}, 1)

	cfg, _ := p.configs.Get(ctx, e.GuildID)
	if e.ChannelID > 0 && cfg.MessageExcluded(e.ChannelID) {
		return
	}
	granted, err := p.gate.TryAcquire(ctx, e.GuildID, e.UserID, cfg.AntispamTier.Duration())
	if err != nil {
		log.Printf("pipeline: cooldown for %s/%s: %v", e.GuildID, e.UserID, err)
		return
	}
	if !granted {
		return
	}
	ts := e.Timestamp.UTC()
	p.buf.AddXP(ctx, buffer.MemberKey{GuildID: e.GuildID, UserID: e.UserID}, domain.XPDelta{
		MsgExp:        p.cfg.MessageXP,
		LastMessageAt: &ts,
	})
}

// applyVoice grants voice XP per reported voice tick; there is no cooldown on voice.
func (p *Pipeline) applyVoice(ctx context.Context, e *domain.ActivityEvent) {
	cfg, _ := p.configs.Get(ctx, e.GuildID)
	if e.ChannelID > 0 && cfg.VoiceExcluded(e.ChannelID) {
		return
	}
	p.buf.AddXP(ctx, buffer.MemberKey{GuildID: e.GuildID, UserID: e.UserID}, domain.XPDelta{
		VoiceExp: p.cfg.VoiceXP,
	})
}

func (p *Pipeline) applyDailyStat(ctx context.Context, e *domain.ActivityEvent) {
	kind, ok := domain.StatKindFor(e)
	if !ok {
		return
	}
	if err := p.stats.IncrementDailyStat(ctx, e.GuildID, domain.DayOf(e.Timestamp), kind); err != nil {
		log.Printf("pipeline: increment %s for guild %s: %v", kind, e.GuildID, err)
	}
}
