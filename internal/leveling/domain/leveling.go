// Package domain holds member leveling records, role rewards and the level curve.
package domain

import (
	"math"
	"sort"
	"time"

	"github.com/bwmarrin/snowflake"
)

// ExpPerLevelUnit is the divisor in the level curve: level = floor(sqrt(total / 100)).
const ExpPerLevelUnit = 100

// LevelFor returns the level for a total experience amount. Negative totals are level 0.
func LevelFor(totalExp int64) int {
	if totalExp <= 0 {
		return 0
	}
	return int(math.Floor(math.Sqrt(float64(totalExp) / ExpPerLevelUnit)))
}

// MemberLevel is the durable per-member experience record.
type MemberLevel struct {
	GuildID       snowflake.ID `json:"guild_id"`
	UserID        snowflake.ID `json:"user_id"`
	MsgExp        int64        `json:"msg_exp"`
	VoiceExp      int64        `json:"voice_exp"`
	Level         int          `json:"level"`
	RolesLevel    int          `json:"-"`
	LastMessageAt *time.Time   `json:"last_message_at,omitempty"`
}

// MemberKey orders members by (GuildID, UserID), the order role sync walks them in.
type MemberKey struct {
	GuildID snowflake.ID
	UserID  snowflake.ID
}

// Less reports whether k sorts before o.
func (k MemberKey) Less(o MemberKey) bool {
	if k.GuildID != o.GuildID {
		return k.GuildID < o.GuildID
	}
	return k.UserID < o.UserID
}

// Key returns the member's sort key.
func (m MemberLevel) Key() MemberKey { return MemberKey{GuildID: m.GuildID, UserID: m.UserID} }

// TotalExp is the ranking key.
func (m MemberLevel) TotalExp() int64 { return m.MsgExp + m.VoiceExp }

// LeaderboardEntry is a ranked member. Rank starts at 1 for the first row of the full board.
type LeaderboardEntry struct {
	Rank int `json:"rank"`
	MemberLevel
	Total int64 `json:"total_exp"`
}

// RoleReward grants RoleID to members at or above Level.
type RoleReward struct {
	GuildID snowflake.ID
	Level   int
	RoleID  snowflake.ID
}

// DesiredRoles returns the reward roles a member at level should hold. With removePrevious only the
// highest qualifying reward is kept; otherwise every qualifying reward is kept.
func DesiredRoles(rewards []RoleReward, level int, removePrevious bool) map[snowflake.ID]bool {
	sorted := append([]RoleReward(nil), rewards...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	out := make(map[snowflake.ID]bool)
	var highest *RoleReward
	for i := range sorted {
		if sorted[i].Level > level {
			break
		}
		if !removePrevious {
			out[sorted[i].RoleID] = true
		}
		highest = &sorted[i]
	}
	if removePrevious && highest != nil {
		out[highest.RoleID] = true
	}
	return out
}

// RoleDiff compares a member's current roles with the desired reward roles. Only reward roles are
// ever removed; roles unrelated to leveling are left alone.
func RoleDiff(rewards []RoleReward, current []snowflake.ID, desired map[snowflake.ID]bool) (add, remove []snowflake.ID) {
	have := make(map[snowflake.ID]bool, len(current))
	for _, id := range current {
		have[id] = true
	}
	seen := make(map[snowflake.ID]bool, len(rewards))
	for _, r := range rewards {
		if seen[r.RoleID] {
			continue
		}
		seen[r.RoleID] = true
		switch {
		case desired[r.RoleID] && !have[r.RoleID]:
			add = append(add, r.RoleID)
		case !desired[r.RoleID] && have[r.RoleID]:
			remove = append(remove, r.RoleID)
		}
	}
	return add, remove
}
