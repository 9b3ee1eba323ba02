package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/guildconfig/domain"
)

// Repository persists per-guild activity configuration.
type Repository interface {
	// GetByGuildID returns the guild's config, or nil if not found (caller applies defaults).
	GetByGuildID(ctx context.Context, guildID snowflake.ID) (*domain.ActivityConfig, error)
	// Upsert saves or replaces the guild's config.
	Upsert(ctx context.Context, cfg *domain.ActivityConfig) error
}
