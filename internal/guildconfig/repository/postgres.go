package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5/pgtype"

	"community-bot/backend/internal/activity/cooldown"
	"community-bot/backend/internal/guildconfig/domain"
)

const getConfigSQL = `
SELECT antispam_tier, excluded_message_channels, excluded_voice_channels, remove_previous_role, updated_at
FROM guild_activity_config
WHERE guild_id = $1`

const upsertConfigSQL = `
INSERT INTO guild_activity_config
	(guild_id, antispam_tier, excluded_message_channels, excluded_voice_channels, remove_previous_role, updated_at)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (guild_id) DO UPDATE SET
	antispam_tier = EXCLUDED.antispam_tier,
	excluded_message_channels = EXCLUDED.excluded_message_channels,
	excluded_voice_channels = EXCLUDED.excluded_voice_channels,
	remove_previous_role = EXCLUDED.remove_previous_role,
	updated_at = EXCLUDED.updated_at`

type PostgresRepository struct {
	db      *sql.DB
	typeMap *pgtype.Map
}

// NewPostgresRepository returns a guild config repository that uses the given db.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db, typeMap: pgtype.NewMap()}
}

// GetByGuildID returns the config for the guild, or nil if not found.
func (r *PostgresRepository) GetByGuildID(ctx context.Context, guildID snowflake.ID) (*domain.ActivityConfig, error) {
	var (
		tier          string
		msgChannels   []int64
		voiceChannels []int64
		cfg           = domain.ActivityConfig{GuildID: guildID}
	)
	err := r.db.QueryRowContext(ctx, getConfigSQL, guildID.Int64()).Scan(
		&tier,
		r.typeMap.SQLScanner(&msgChannels),
		r.typeMap.SQLScanner(&voiceChannels),
		&cfg.RemovePreviousRole,
		&cfg.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	cfg.AntispamTier = cooldown.ParseTier(tier)
	cfg.ExcludedMessageChannels = toIDs(msgChannels)
	cfg.ExcludedVoiceChannels = toIDs(voiceChannels)
	return &cfg, nil
}

// Upsert saves or replaces the config for the guild.
func (r *PostgresRepository) Upsert(ctx context.Context, cfg *domain.ActivityConfig) error {
	if cfg == nil {
		return errors.New("guildconfig: nil config")
	}
	if cfg.UpdatedAt.IsZero() {
		cfg.UpdatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, upsertConfigSQL,
		cfg.GuildID.Int64(),
		string(cooldown.ParseTier(string(cfg.AntispamTier))),
		fromIDs(cfg.ExcludedMessageChannels),
		fromIDs(cfg.ExcludedVoiceChannels),
		cfg.RemovePreviousRole,
		cfg.UpdatedAt,
	)
	return err
}

func toIDs(in []int64) []snowflake.ID {
	if len(in) == 0 {
		return nil
	}
	out := make([]snowflake.ID, len(in))
	for i, v := range in {
		out[i] = snowflake.ID(v)
	}
	return out
}

func fromIDs(in []snowflake.ID) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = v.Int64()
	}
	return out
}
