// Package leveling reconciles reward roles with member levels.
package leveling

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/bwmarrin/snowflake"

	gcdomain "community-bot/backend/internal/guildconfig/domain"
	"community-bot/backend/internal/leveling/domain"
	"community-bot/backend/internal/leveling/repository"
	"community-bot/backend/internal/platform"
	"community-bot/backend/internal/telemetry"
)

const (
	DefaultRoleSyncBatch = 200
	// maxBatchesPerRun bounds one pass; the rest waits for the next tick.
	maxBatchesPerRun = 10
)

// ConfigSource returns a guild's activity config (for remove_previous_role).
type ConfigSource interface {
	Get(ctx context.Context, guildID snowflake.ID) (gcdomain.ActivityConfig, bool)
}

// RoleSyncResult summarises one reconciliation pass.
type RoleSyncResult struct {
	Members int
	Added   int
	Removed int
	Failed  int
}

// RoleSync grants and revokes reward roles for members whose level changed since their roles were
// last reconciled. It runs far less often than the XP sync; a few minutes of role lag is fine.
//
// Candidates are walked in (guild_id, user_id) order with a keyset cursor that survives between
// runs, so members that keep failing are passed over instead of pinning every pass to the same rows.
type RoleSync struct {
	repo      repository.Repository
	roles     platform.RoleManager
	configs   ConfigSource
	metrics   *telemetry.Metrics
	batchSize int

	mu     sync.Mutex
	cursor domain.MemberKey
}

func NewRoleSync(repo repository.Repository, roles platform.RoleManager, configs ConfigSource, metrics *telemetry.Metrics, batchSize int) *RoleSync {
	if batchSize <= 0 {
		batchSize = DefaultRoleSyncBatch
	}
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &RoleSync{repo: repo, roles: roles, configs: configs, metrics: metrics, batchSize: batchSize}
}

// Run reconciles up to maxBatchesPerRun batches of pending members, resuming after the last member
// the previous run looked at. Per-member failures are logged and left pending for the next lap.
// Reaching the end of the candidates wraps the cursor back to the start.
func (s *RoleSync) Run(ctx context.Context) (RoleSyncResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var res RoleSyncResult
	rewards := make(map[snowflake.ID][]domain.RoleReward)

	for batch := 0; batch < maxBatchesPerRun; batch++ {
		members, err := s.repo.ListRoleSyncCandidates(ctx, s.cursor, s.batchSize)
		if err != nil {
			return res, fmt.Errorf("rolesync: list candidates: %w", err)
		}
		for _, m := range members {
			if ctx.Err() != nil {
				return res, ctx.Err()
			}
			s.cursor = m.Key()
			guildRewards, ok := rewards[m.GuildID]
			if !ok {
				guildRewards, err = s.repo.ListRoleRewards(ctx, m.GuildID)
				if err != nil {
					log.Printf("rolesync: rewards for guild %s: %v", m.GuildID, err)
					res.Failed++
					continue
				}
				rewards[m.GuildID] = guildRewards
			}
			added, removed, err := s.reconcile(ctx, m, guildRewards)
			res.Added += added
			res.Removed += removed
			if err != nil {
				log.Printf("rolesync: member %s in guild %s: %v", m.UserID, m.GuildID, err)
				res.Failed++
				continue
			}
			if err := s.repo.MarkRolesSynced(ctx, m.GuildID, m.UserID, m.Level); err != nil {
				log.Printf("rolesync: mark %s in guild %s: %v", m.UserID, m.GuildID, err)
				res.Failed++
				continue
			}
			res.Members++
		}
		if len(members) < s.batchSize {
			s.cursor = domain.MemberKey{}
			break
		}
	}
	return res, nil
}

func (s *RoleSync) reconcile(ctx context.Context, m domain.MemberLevel, rewards []domain.RoleReward) (added, removed int, err error) {
	if len(rewards) == 0 {
		return 0, 0, nil
	}
	current, err := s.roles.MemberRoles(ctx, m.GuildID, m.UserID)
	if err != nil {
		if errors.Is(err, platform.ErrMemberNotFound) {
			return 0, 0, nil
		}
		return 0, 0, err
	}
	cfg, _ := s.configs.Get(ctx, m.GuildID)
	add, remove := domain.RoleDiff(rewards, current, domain.DesiredRoles(rewards, m.Level, cfg.RemovePreviousRole))

	var errs []error
	for _, roleID := range add {
		if err := s.roles.AddRole(ctx, m.GuildID, m.UserID, roleID); err != nil {
			errs = append(errs, fmt.Errorf("add role %s: %w", roleID, err))
			continue
		}
		added++
		s.metrics.RoleChanged(ctx, "add")
	}
	for _, roleID := range remove {
		if err := s.roles.RemoveRole(ctx, m.GuildID, m.UserID, roleID); err != nil {
			errs = append(errs, fmt.Errorf("remove role %s: %w", roleID, err))
			continue
		}
		removed++
		s.metrics.RoleChanged(ctx, "remove")
	}
	return added, removed, errors.Join(errs...)
}
