// Package platform describes what the activity pipeline needs from the chat platform.
package platform

import (
	"context"
	"errors"
	"log"

	"github.com/bwmarrin/snowflake"
)

// ErrMemberNotFound is returned by MemberRoles when the user is no longer in the guild.
var ErrMemberNotFound = errors.New("platform: member not found")

// RoleManager reads and mutates a member's roles on the chat platform.
type RoleManager interface {
	MemberRoles(ctx context.Context, guildID, userID snowflake.ID) ([]snowflake.ID, error)
	AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
	RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error
}

// LogRoleManager logs role changes instead of applying them. Used when no bot token is configured.
// It reports every member as having no roles.
type LogRoleManager struct{}

func (LogRoleManager) MemberRoles(context.Context, snowflake.ID, snowflake.ID) ([]snowflake.ID, error) {
	return nil, nil
}

func (LogRoleManager) AddRole(_ context.Context, guildID, userID, roleID snowflake.ID) error {
	log.Printf("platform: dry run: add role %s to %s in guild %s", roleID, userID, guildID)
	return nil
}

func (LogRoleManager) RemoveRole(_ context.Context, guildID, userID, roleID snowflake.ID) error {
	log.Printf("platform: dry run: remove role %s from %s in guild %s", roleID, userID, guildID)
	return nil
}
