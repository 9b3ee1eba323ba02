// Package domain holds the activity pipeline's event, buffer and durable row types.
package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	pdomain "community-bot/backend/internal/partition/domain"
)

// EventType is the kind of activity reported by the chat platform.
type EventType string

const (
	EventMessage   EventType = "message"
	EventVoice     EventType = "voice"
	EventJoin      EventType = "join"
	EventLeave     EventType = "leave"
	EventModAction EventType = "mod_action"
)

// Code returns the smallint stored in activity_log.event_type. Zero means unknown.
func (t EventType) Code() int16 {
	switch t {
	case EventMessage:
		return 1
	case EventVoice:
		return 2
	case EventJoin:
		return 3
	case EventLeave:
		return 4
	case EventModAction:
		return 5
	default:
		return 0
	}
}

// Valid reports whether t is one of the known event types.
func (t EventType) Valid() bool { return t.Code() != 0 }

// Buffered reports whether events of this type go through the volatile buffer
// (high volume) rather than a direct daily_stats increment.
func (t EventType) Buffered() bool { return t == EventMessage || t == EventVoice }

// ActivityEvent is a single producer-created event. It is never stored as is.
type ActivityEvent struct {
	GuildID   snowflake.ID    `json:"guild_id"`
	UserID    snowflake.ID    `json:"user_id"`
	ChannelID snowflake.ID    `json:"channel_id,omitempty"`
	Type      EventType       `json:"event_type"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
}

// Validate checks the envelope fields required by every event type.
func (e *ActivityEvent) Validate() error {
	if e == nil {
		return fmt.Errorf("event is nil")
	}
	if e.GuildID <= 0 {
		return fmt.Errorf("guild_id is required")
	}
	if e.UserID <= 0 {
		return fmt.Errorf("user_id is required")
	}
	if !e.Type.Valid() {
		return fmt.Errorf("unknown event_type %q", e.Type)
	}
	if len(e.Metadata) > 0 && !json.Valid(e.Metadata) {
		return fmt.Errorf("metadata is not valid JSON")
	}
	return nil
}

// Default bounds on an event timestamp relative to the receiving clock.
const (
	DefaultMaxEventAge  = 24 * time.Hour
	DefaultMaxEventSkew = 5 * time.Minute
)

// ErrTimestampOutOfRange is returned for an event stamped outside the accepted window.
var ErrTimestampOutOfRange = errors.New("timestamp out of range")

// CheckTimestamp rejects a timestamp older than maxAge or more than maxSkew ahead of now. The
// timestamp must also fall in the previous, current or next UTC month, the only activity_log
// partitions the partition manager keeps guaranteed.
func (e *ActivityEvent) CheckTimestamp(now time.Time, maxAge, maxSkew time.Duration) error {
	ts := e.Timestamp
	if ts.Before(now.Add(-maxAge)) || ts.After(now.Add(maxSkew)) {
		return fmt.Errorf("%w: %s is not within [-%s, +%s] of %s",
			ErrTimestampOutOfRange, ts.UTC().Format(time.RFC3339), maxAge, maxSkew, now.UTC().Format(time.RFC3339))
	}
	current := pdomain.ForMonth(now)
	for _, d := range []pdomain.Descriptor{pdomain.ForMonth(current.Start.AddDate(0, -1, 0)), current, pdomain.ForMonth(current.End)} {
		if d.Covers(ts) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s has no live partition", ErrTimestampOutOfRange, ts.UTC().Format(time.RFC3339))
}

// RawLogEntry is the immutable envelope queued for the partitioned activity_log table.
// Field names are kept short since every message produces one.
type RawLogEntry struct {
	Timestamp time.Time       `json:"ts"`
	UserID    snowflake.ID    `json:"u"`
	GuildID   snowflake.ID    `json:"g"`
	EventType int16           `json:"t"`
	Metadata  json.RawMessage `json:"m,omitempty"`
}

// NewRawLogEntry converts an event into its raw-log envelope.
func NewRawLogEntry(e *ActivityEvent) RawLogEntry {
	meta := e.Metadata
	if len(meta) == 0 {
		meta = json.RawMessage("{}")
	}
	if e.ChannelID > 0 {
		meta = withChannel(meta, e.ChannelID)
	}
	return RawLogEntry{
		Timestamp: e.Timestamp.UTC(),
		UserID:    e.UserID,
		GuildID:   e.GuildID,
		EventType: e.Type.Code(),
		Metadata:  meta,
	}
}

// withChannel records channel_id inside object metadata; non-object metadata is left alone.
func withChannel(meta json.RawMessage, channelID snowflake.ID) json.RawMessage {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(meta, &obj); err != nil || obj == nil {
		return meta
	}
	if _, ok := obj["channel_id"]; ok {
		return meta
	}
	obj["channel_id"] = json.RawMessage(`"` + channelID.String() + `"`)
	out, err := json.Marshal(obj)
	if err != nil {
		return meta
	}
	return out
}

// DateLayout is the calendar-day format used in buffer keys and series.
const DateLayout = "2006-01-02"

// DayOf returns the UTC calendar day of t as a DateLayout string.
func DayOf(t time.Time) string { return t.UTC().Format(DateLayout) }

// DailyCounterKey identifies one buffered per-day message counter.
type DailyCounterKey struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
	Date    string // DateLayout
}

// XPDelta is the experience accumulated in one buffered XP bucket.
type XPDelta struct {
	MsgExp        int64
	VoiceExp      int64
	LastMessageAt *time.Time
}

// IsZero reports whether the bucket carries no experience.
func (d XPDelta) IsZero() bool { return d.MsgExp == 0 && d.VoiceExp == 0 }

// DailyStatKind selects the daily_stats column incremented by a low-volume event.
type DailyStatKind string

const (
	StatJoins        DailyStatKind = "joins_count"
	StatLeaves       DailyStatKind = "leaves_count"
	StatModActions   DailyStatKind = "mod_actions_count"
	StatCaptchaKicks DailyStatKind = "captcha_kicks_count"
)

// CaptchaKickAction is the mod_action metadata "action" value counted as a captcha kick.
const CaptchaKickAction = "captcha_kick"

// StatKindFor maps a low-volume event to its daily_stats column. ok is false for buffered types.
func StatKindFor(e *ActivityEvent) (DailyStatKind, bool) {
	switch e.Type {
	case EventJoin:
		return StatJoins, true
	case EventLeave:
		return StatLeaves, true
	case EventModAction:
		var meta struct {
			Action string `json:"action"`
		}
		if len(e.Metadata) > 0 && json.Unmarshal(e.Metadata, &meta) == nil && meta.Action == CaptchaKickAction {
			return StatCaptchaKicks, true
		}
		return StatModActions, true
	default:
		return "", false
	}
}

// DailyStatRow is the legacy low-volume aggregate for a guild and day.
type DailyStatRow struct {
	GuildID           snowflake.ID
	Date              string
	JoinsCount        int64
	LeavesCount       int64
	ModActionsCount   int64
	CaptchaKicksCount int64
}

// DailyMessageRow is the guild-wide message total for a day from member_daily_stats.
type DailyMessageRow struct {
	Date     string
	Messages int64
}

// SeriesPoint is one day in the merged chart series.
type SeriesPoint struct {
	Date         string `json:"date"`
	Messages     int64  `json:"messages"`
	Joins        int64  `json:"joins"`
	Leaves       int64  `json:"leaves"`
	ModActions   int64  `json:"mod_actions"`
	CaptchaKicks int64  `json:"captcha_kicks"`
}
