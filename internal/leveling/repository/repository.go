package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/leveling/domain"
)

// Repository defines persistence for member leveling and role rewards.
type Repository interface {
	// AddXP adds the deltas to the member's record, creating it if absent, and recomputes the level.
	// lastMessageAt only moves forward. Returns the updated record.
	AddXP(ctx context.Context, guildID, userID snowflake.ID, msgExp, voiceExp int64, lastMessageAt *time.Time) (*domain.MemberLevel, error)
	// Leaderboard ranks a guild's members by msg_exp + voice_exp descending.
	Leaderboard(ctx context.Context, guildID snowflake.ID, limit, offset int) ([]domain.LeaderboardEntry, error)
	// ListRoleSyncCandidates returns up to limit members whose level differs from the level their roles
	// were last reconciled for, ordered by (guild_id, user_id) and strictly after the after key.
	ListRoleSyncCandidates(ctx context.Context, after domain.MemberKey, limit int) ([]domain.MemberLevel, error)
	// MarkRolesSynced records that the member's roles match level.
	MarkRolesSynced(ctx context.Context, guildID, userID snowflake.ID, level int) error
	// ListRoleRewards returns the guild's reward roles ordered by level.
	ListRoleRewards(ctx context.Context, guildID snowflake.ID) ([]domain.RoleReward, error)
}
