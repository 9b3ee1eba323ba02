// Package discord implements platform.RoleManager over the Discord REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/platform"
)

// RoleManager uses a REST-only session; it never opens the gateway.
type RoleManager struct {
	session *discordgo.Session
}

var _ platform.RoleManager = (*RoleManager)(nil)

// New returns a RoleManager authenticated with a bot token.
func New(token string) (*RoleManager, error) {
	if token == "" {
		return nil, errors.New("discord: bot token is empty")
	}
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("discord: session: %w", err)
	}
	return &RoleManager{session: s}, nil
}

func (m *RoleManager) MemberRoles(ctx context.Context, guildID, userID snowflake.ID) ([]snowflake.ID, error) {
	member, err := m.session.GuildMember(guildID.String(), userID.String(), discordgo.WithContext(ctx))
	if err != nil {
		if isNotFound(err) {
			return nil, platform.ErrMemberNotFound
		}
		return nil, err
	}
	roles := make([]snowflake.ID, 0, len(member.Roles))
	for _, r := range member.Roles {
		id, err := snowflake.ParseString(r)
		if err != nil {
			continue
		}
		roles = append(roles, id)
	}
	return roles, nil
}

func (m *RoleManager) AddRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	return m.session.GuildMemberRoleAdd(guildID.String(), userID.String(), roleID.String(), discordgo.WithContext(ctx))
}

func (m *RoleManager) RemoveRole(ctx context.Context, guildID, userID, roleID snowflake.ID) error {
	return m.session.GuildMemberRoleRemove(guildID.String(), userID.String(), roleID.String(), discordgo.WithContext(ctx))
}

func isNotFound(err error) bool {
	var restErr *discordgo.RESTError
	return errors.As(err, &restErr) && restErr.Response != nil && restErr.Response.StatusCode == http.StatusNotFound
}
