package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/activity/domain"
)

const addMemberMessagesSQL = `
INSERT INTO member_daily_stats (guild_id, user_id, date, messages_count)
VALUES ($1, $2, $3, $4)
ON CONFLICT (date, user_id, guild_id) DO UPDATE SET
	messages_count = member_daily_stats.messages_count + EXCLUDED.messages_count`

// insertLogBatchSQL unnests parallel arrays so a whole batch is one statement.
const insertLogBatchSQL = `
INSERT INTO activity_log (created_at, user_id, guild_id, event_type, metadata)
SELECT t, u, g, e, m::jsonb
FROM unnest($1::timestamptz[], $2::bigint[], $3::bigint[], $4::smallint[], $5::text[]) AS x(t, u, g, e, m)`

const dailyStatsSQL = `
SELECT to_char(date, 'YYYY-MM-DD'), joins_count, leaves_count, mod_actions_count, captcha_kicks_count
FROM daily_stats
WHERE guild_id = $1 AND date BETWEEN $2::date AND $3::date
ORDER BY date`

const dailyMessagesSQL = `
SELECT to_char(date, 'YYYY-MM-DD'), SUM(messages_count)::bigint
FROM member_daily_stats
WHERE guild_id = $1 AND date BETWEEN $2::date AND $3::date
GROUP BY date
ORDER BY date`

// incrementDailyStatSQL holds one upsert per column so no identifier is built from input.
var incrementDailyStatSQL = map[domain.DailyStatKind]string{}

func init() {
	for _, kind := range []domain.DailyStatKind{
		domain.StatJoins, domain.StatLeaves, domain.StatModActions, domain.StatCaptchaKicks,
	} {
		incrementDailyStatSQL[kind] = fmt.Sprintf(`
INSERT INTO daily_stats (guild_id, date, %[1]s)
VALUES ($1, $2::date, 1)
ON CONFLICT (guild_id, date) DO UPDATE SET %[1]s = daily_stats.%[1]s + 1`, string(kind))
	}
}

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns an activity repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

// AddMemberMessages upserts delta additively; absolute totals are never written.
func (r *PostgresRepository) AddMemberMessages(ctx context.Context, k domain.DailyCounterKey, delta int64) error {
	_, err := r.db.ExecContext(ctx, addMemberMessagesSQL, k.GuildID.Int64(), k.UserID.Int64(), k.Date, delta)
	return err
}

// IncrementDailyStat bumps one daily_stats column for the guild and date.
func (r *PostgresRepository) IncrementDailyStat(ctx context.Context, guildID snowflake.ID, date string, kind domain.DailyStatKind) error {
	query, ok := incrementDailyStatSQL[kind]
	if !ok {
		return fmt.Errorf("activity: unknown daily stat %q", kind)
	}
	_, err := r.db.ExecContext(ctx, query, guildID.Int64(), date)
	return err
}

// InsertLogBatch writes the batch in dequeue order. An empty batch is a no-op.
func (r *PostgresRepository) InsertLogBatch(ctx context.Context, entries []domain.RawLogEntry) (int64, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	var (
		ts     = make([]time.Time, len(entries))
		users  = make([]int64, len(entries))
		guilds = make([]int64, len(entries))
		types  = make([]int16, len(entries))
		metas  = make([]string, len(entries))
	)
	for i, e := range entries {
		ts[i] = e.Timestamp
		users[i] = e.UserID.Int64()
		guilds[i] = e.GuildID.Int64()
		types[i] = e.EventType
		metas[i] = string(e.Metadata)
		if metas[i] == "" {
			metas[i] = "{}"
		}
	}
	res, err := r.db.ExecContext(ctx, insertLogBatchSQL, ts, users, guilds, types, metas)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// DailyStats returns the legacy low-volume aggregate rows for the window.
func (r *PostgresRepository) DailyStats(ctx context.Context, guildID snowflake.ID, from, to string) ([]domain.DailyStatRow, error) {
	rows, err := r.db.QueryContext(ctx, dailyStatsSQL, guildID.Int64(), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DailyStatRow
	for rows.Next() {
		row := domain.DailyStatRow{GuildID: guildID}
		if err := rows.Scan(&row.Date, &row.JoinsCount, &row.LeavesCount, &row.ModActionsCount, &row.CaptchaKicksCount); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// DailyMessages returns message totals per date summed over the guild's members.
func (r *PostgresRepository) DailyMessages(ctx context.Context, guildID snowflake.ID, from, to string) ([]domain.DailyMessageRow, error) {
	rows, err := r.db.QueryContext(ctx, dailyMessagesSQL, guildID.Int64(), from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.DailyMessageRow
	for rows.Next() {
		var row domain.DailyMessageRow
		if err := rows.Scan(&row.Date, &row.Messages); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
