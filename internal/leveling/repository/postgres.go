package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/leveling/domain"
)

// addXPSQL is additive; the level is recomputed from the new totals in the same statement.
const addXPSQL = `
INSERT INTO member_leveling (guild_id, user_id, msg_exp, voice_exp, level, last_message_at, updated_at)
VALUES ($1, $2, $3, $4, floor(sqrt(($3::bigint + $4::bigint) / 100.0))::int, $5, now())
ON CONFLICT (guild_id, user_id) DO UPDATE SET
	msg_exp = member_leveling.msg_exp + EXCLUDED.msg_exp,
	voice_exp = member_leveling.voice_exp + EXCLUDED.voice_exp,
	level = floor(sqrt(GREATEST(member_leveling.msg_exp + EXCLUDED.msg_exp + member_leveling.voice_exp + EXCLUDED.voice_exp, 0) / 100.0))::int,
	last_message_at = GREATEST(member_leveling.last_message_at, EXCLUDED.last_message_at),
	updated_at = now()
RETURNING msg_exp, voice_exp, level, roles_level, last_message_at`

const leaderboardSQL = `
SELECT user_id, msg_exp, voice_exp, level, last_message_at
FROM member_leveling
WHERE guild_id = $1
ORDER BY msg_exp + voice_exp DESC, user_id
LIMIT $2 OFFSET $3`

const roleSyncCandidatesSQL = `
SELECT guild_id, user_id, msg_exp, voice_exp, level, roles_level
FROM member_leveling
WHERE level <> roles_level AND (guild_id, user_id) > ($1, $2)
ORDER BY guild_id, user_id
LIMIT $3`

const markRolesSyncedSQL = `
UPDATE member_leveling SET roles_level = $3
WHERE guild_id = $1 AND user_id = $2`

const roleRewardsSQL = `
SELECT level, role_id
FROM leveling_role_rewards
WHERE guild_id = $1
ORDER BY level`

type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository returns a leveling repository that uses the given db for persistence.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

var _ Repository = (*PostgresRepository)(nil)

func (r *PostgresRepository) AddXP(ctx context.Context, guildID, userID snowflake.ID, msgExp, voiceExp int64, lastMessageAt *time.Time) (*domain.MemberLevel, error) {
	var last sql.NullTime
	if lastMessageAt != nil {
		last = sql.NullTime{Time: lastMessageAt.UTC(), Valid: true}
	}
	m := domain.MemberLevel{GuildID: guildID, UserID: userID}
	var stored sql.NullTime
	err := r.db.QueryRowContext(ctx, addXPSQL, guildID.Int64(), userID.Int64(), msgExp, voiceExp, last).
		Scan(&m.MsgExp, &m.VoiceExp, &m.Level, &m.RolesLevel, &stored)
	if err != nil {
		return nil, err
	}
	m.LastMessageAt = timePtr(stored)
	return &m, nil
}

// Leaderboard reads a page of the ranking. Ties are broken by user id so pages are stable.
func (r *PostgresRepository) Leaderboard(ctx context.Context, guildID snowflake.ID, limit, offset int) ([]domain.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx, leaderboardSQL, guildID.Int64(), limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.LeaderboardEntry
	for rows.Next() {
		var (
			e    domain.LeaderboardEntry
			uid  int64
			last sql.NullTime
		)
		if err := rows.Scan(&uid, &e.MsgExp, &e.VoiceExp, &e.Level, &last); err != nil {
			return nil, err
		}
		e.GuildID = guildID
		e.UserID = snowflake.ID(uid)
		e.LastMessageAt = timePtr(last)
		e.Total = e.MemberLevel.TotalExp()
		e.Rank = offset + len(out) + 1
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListRoleSyncCandidates pages through pending members with a (guild_id, user_id) keyset.
func (r *PostgresRepository) ListRoleSyncCandidates(ctx context.Context, after domain.MemberKey, limit int) ([]domain.MemberLevel, error) {
	rows, err := r.db.QueryContext(ctx, roleSyncCandidatesSQL, after.GuildID.Int64(), after.UserID.Int64(), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.MemberLevel
	for rows.Next() {
		var (
			m        domain.MemberLevel
			gid, uid int64
		)
		if err := rows.Scan(&gid, &uid, &m.MsgExp, &m.VoiceExp, &m.Level, &m.RolesLevel); err != nil {
			return nil, err
		}
		m.GuildID, m.UserID = snowflake.ID(gid), snowflake.ID(uid)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) MarkRolesSynced(ctx context.Context, guildID, userID snowflake.ID, level int) error {
	_, err := r.db.ExecContext(ctx, markRolesSyncedSQL, guildID.Int64(), userID.Int64(), level)
	return err
}

func (r *PostgresRepository) ListRoleRewards(ctx context.Context, guildID snowflake.ID) ([]domain.RoleReward, error) {
	rows, err := r.db.QueryContext(ctx, roleRewardsSQL, guildID.Int64())
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.RoleReward
	for rows.Next() {
		rr := domain.RoleReward{GuildID: guildID}
		var roleID int64
		if err := rows.Scan(&rr.Level, &roleID); err != nil {
			return nil, err
		}
		rr.RoleID = snowflake.ID(roleID)
		out = append(out, rr)
	}
	return out, rows.Err()
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
