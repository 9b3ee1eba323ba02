package buffer

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/activity/domain"
)

// Key namespaces in the volatile store.
const (
	CounterPrefix = "activity:msg:"
	XPPrefix      = "leveling:xp:"
)

// Hash fields of an XP bucket.
const (
	FieldMsgExp        = "msg_exp"
	FieldVoiceExp      = "voice_exp"
	FieldLastMessageAt = "last_message_at"
)

// CounterKey formats activity:msg:{guild}:{user}:{date}.
func CounterKey(k domain.DailyCounterKey) string {
	return CounterPrefix + k.GuildID.String() + ":" + k.UserID.String() + ":" + k.Date
}

// ParseCounterKey is the inverse of CounterKey.
func ParseCounterKey(key string) (domain.DailyCounterKey, error) {
	rest, ok := strings.CutPrefix(key, CounterPrefix)
	if !ok {
		return domain.DailyCounterKey{}, fmt.Errorf("buffer: %q is not a counter key", key)
	}
	parts := strings.Split(rest, ":")
	if len(parts) != 3 {
		return domain.DailyCounterKey{}, fmt.Errorf("buffer: malformed counter key %q", key)
	}
	guild, err := snowflake.ParseString(parts[0])
	if err != nil {
		return domain.DailyCounterKey{}, fmt.Errorf("buffer: counter key %q guild: %w", key, err)
	}
	user, err := snowflake.ParseString(parts[1])
	if err != nil {
		return domain.DailyCounterKey{}, fmt.Errorf("buffer: counter key %q user: %w", key, err)
	}
	if len(parts[2]) != len(domain.DateLayout) {
		return domain.DailyCounterKey{}, fmt.Errorf("buffer: counter key %q has bad date", key)
	}
	return domain.DailyCounterKey{GuildID: guild, UserID: user, Date: parts[2]}, nil
}

// MemberKey identifies an XP bucket.
type MemberKey struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
}

// XPKey formats leveling:xp:{guild}:{user}.
func XPKey(k MemberKey) string {
	return XPPrefix + k.GuildID.String() + ":" + k.UserID.String()
}

// ParseXPKey is the inverse of XPKey.
func ParseXPKey(key string) (MemberKey, error) {
	rest, ok := strings.CutPrefix(key, XPPrefix)
	if !ok {
		return MemberKey{}, fmt.Errorf("buffer: %q is not an xp key", key)
	}
	g, u, ok := strings.Cut(rest, ":")
	if !ok {
		return MemberKey{}, fmt.Errorf("buffer: malformed xp key %q", key)
	}
	guild, err := snowflake.ParseString(g)
	if err != nil {
		return MemberKey{}, fmt.Errorf("buffer: xp key %q guild: %w", key, err)
	}
	user, err := snowflake.ParseString(u)
	if err != nil {
		return MemberKey{}, fmt.Errorf("buffer: xp key %q user: %w", key, err)
	}
	return MemberKey{GuildID: guild, UserID: user}, nil
}
