// Package guildconfig serves per-guild activity configuration to the ingestion path with a
// short-lived cache in the volatile store.
package guildconfig

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/guildconfig/domain"
	"community-bot/backend/internal/guildconfig/repository"
	"community-bot/backend/internal/volatile"
)

// CacheKeyPrefix namespaces cached configs: leveling:config:{guild}.
const CacheKeyPrefix = "leveling:config:"

// DefaultCacheTTL bounds how stale a cached config can be.
const DefaultCacheTTL = 5 * time.Minute

// CacheKey formats the cache key for a guild.
func CacheKey(guildID snowflake.ID) string {
	return CacheKeyPrefix + guildID.String()
}

// Provider reads guild configuration through the cache.
type Provider struct {
	store volatile.Store
	repo  repository.Repository
	ttl   time.Duration
}

// NewProvider returns a Provider. ttl <= 0 uses DefaultCacheTTL.
func NewProvider(store volatile.Store, repo repository.Repository, ttl time.Duration) *Provider {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Provider{store: store, repo: repo, ttl: ttl}
}

// Get returns the guild's config. It never fails: when the durable lookup fails the result is
// domain.Fallback (longest cooldown, nothing excluded), ok is false and nothing is cached.
func (p *Provider) Get(ctx context.Context, guildID snowflake.ID) (cfg domain.ActivityConfig, ok bool) {
	key := CacheKey(guildID)
	raw, err := p.store.Get(ctx, key)
	switch {
	case err == nil:
		if jerr := json.Unmarshal([]byte(raw), &cfg); jerr == nil {
			return cfg, true
		}
		log.Printf("guildconfig: discarding undecodable cache entry %s", key)
	case !errors.Is(err, volatile.ErrNil):
		log.Printf("guildconfig: cache read %s: %v", key, err)
	}

	if p.repo == nil {
		return domain.Fallback(guildID), false
	}
	stored, err := p.repo.GetByGuildID(ctx, guildID)
	if err != nil {
		log.Printf("guildconfig: lookup guild %s failed, using fallback: %v", guildID, err)
		return domain.Fallback(guildID), false
	}
	if stored != nil {
		cfg = *stored
	} else {
		cfg = domain.Default(guildID)
	}
	if encoded, err := json.Marshal(cfg); err == nil {
		if err := p.store.Set(ctx, key, string(encoded), p.ttl); err != nil {
			log.Printf("guildconfig: cache write %s: %v", key, err)
		}
	}
	return cfg, true
}

// Upsert stores cfg and drops the cached copy so the next Get sees it.
func (p *Provider) Upsert(ctx context.Context, cfg *domain.ActivityConfig) error {
	if err := p.repo.Upsert(ctx, cfg); err != nil {
		return err
	}
	if err := p.store.Del(ctx, CacheKey(cfg.GuildID)); err != nil {
		log.Printf("guildconfig: cache invalidate %s: %v", CacheKey(cfg.GuildID), err)
	}
	return nil
}
