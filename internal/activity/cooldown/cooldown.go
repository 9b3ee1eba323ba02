// Package cooldown implements the per-member anti-spam gate that limits how often messages earn XP.
package cooldown

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/volatile"
)

// KeyPrefix namespaces cooldown markers: leveling:cooldown:{guild}:{user}.
const KeyPrefix = "leveling:cooldown:"

// Tier is a per-guild anti-spam setting.
type Tier string

const (
	TierSoft   Tier = "soft"
	TierNormal Tier = "normal"
	TierStrict Tier = "strict"
	TierHarsh  Tier = "harsh"
)

// DefaultTier applies to guilds without a configuration row.
const DefaultTier = TierNormal

// ConservativeTier is used when the configuration cannot be read, so an outage cannot be
// exploited to farm XP.
const ConservativeTier = TierHarsh

// Tiers lists every tier from most to least permissive.
var Tiers = []Tier{TierSoft, TierNormal, TierStrict, TierHarsh}

// Duration returns the cooldown window of the tier. Unknown tiers get the harsh window.
func (t Tier) Duration() time.Duration {
	switch t {
	case TierSoft:
		return 15 * time.Second
	case TierNormal:
		return 60 * time.Second
	case TierStrict:
		return 300 * time.Second
	default:
		return 900 * time.Second
	}
}

// ParseTier maps a stored tier name to a Tier; unrecognised names map to ConservativeTier.
func ParseTier(s string) Tier {
	t := Tier(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Tiers {
		if t == known {
			return t
		}
	}
	return ConservativeTier
}

// Key formats the cooldown marker key for a member.
func Key(guildID, userID snowflake.ID) string {
	return KeyPrefix + guildID.String() + ":" + userID.String()
}

// Gate grants at most one XP-earning message per member per window.
type Gate struct {
	store volatile.Store
}

// NewGate returns a Gate over store.
func NewGate(store volatile.Store) *Gate {
	return &Gate{store: store}
}

// TryAcquire sets the member's cooldown marker if absent. It returns true only for the call that
// created the marker; the marker expires on its own and is never deleted explicitly.
// A store error returns false together with the error.
func (g *Gate) TryAcquire(ctx context.Context, guildID, userID snowflake.ID, window time.Duration) (bool, error) {
	if window <= 0 {
		return true, nil
	}
	ok, err := g.store.SetNX(ctx, Key(guildID, userID), "1", window)
	if err != nil {
		return false, fmt.Errorf("cooldown: acquire %s: %w", Key(guildID, userID), err)
	}
	return ok, nil
}
