package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/activity/domain"
)

// Repository defines durable persistence for the activity pipeline.
type Repository interface {
	// AddMemberMessages adds delta to member_daily_stats for the key's guild, user and date.
	AddMemberMessages(ctx context.Context, k domain.DailyCounterKey, delta int64) error
	// IncrementDailyStat adds one to the daily_stats column selected by kind.
	IncrementDailyStat(ctx context.Context, guildID snowflake.ID, date string, kind domain.DailyStatKind) error
	// InsertLogBatch writes entries to the partitioned activity_log in one round trip.
	InsertLogBatch(ctx context.Context, entries []domain.RawLogEntry) (int64, error)
	// DailyStats returns daily_stats rows for the guild with from <= date <= to.
	DailyStats(ctx context.Context, guildID snowflake.ID, from, to string) ([]domain.DailyStatRow, error)
	// DailyMessages returns guild-wide message totals per date with from <= date <= to.
	DailyMessages(ctx context.Context, guildID snowflake.ID, from, to string) ([]domain.DailyMessageRow, error)
}
