package domain

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/activity/cooldown"
)

// ActivityConfig is a guild's leveling and anti-spam configuration (guild_activity_config).
type ActivityConfig struct {
	GuildID                 snowflake.ID   `json:"guild_id"`
	AntispamTier            cooldown.Tier  `json:"antispam_tier"`
	ExcludedMessageChannels []snowflake.ID `json:"excluded_message_channels,omitempty"`
	ExcludedVoiceChannels   []snowflake.ID `json:"excluded_voice_channels,omitempty"`
	RemovePreviousRole      bool           `json:"remove_previous_role"`
	UpdatedAt               time.Time      `json:"updated_at"`
}

// Default returns the configuration used for guilds without a stored row.
func Default(guildID snowflake.ID) ActivityConfig {
	return ActivityConfig{GuildID: guildID, AntispamTier: cooldown.DefaultTier}
}

// Fallback returns the configuration used when the stored row cannot be read:
// messages are still accepted, with the longest cooldown.
func Fallback(guildID snowflake.ID) ActivityConfig {
	return ActivityConfig{GuildID: guildID, AntispamTier: cooldown.ConservativeTier}
}

// MessageExcluded reports whether messages in channelID earn no XP.
func (c ActivityConfig) MessageExcluded(channelID snowflake.ID) bool {
	return channelID > 0 && slices.Contains(c.ExcludedMessageChannels, channelID)
}

// VoiceExcluded reports whether time in voice channelID earns no XP.
func (c ActivityConfig) VoiceExcluded(channelID snowflake.ID) bool {
	return channelID > 0 && slices.Contains(c.ExcludedVoiceChannels, channelID)
}

// Validate rejects configs that could not have come from a known tier and real channel ids.
func (c ActivityConfig) Validate() error {
	if c.GuildID <= 0 {
		return errors.New("guild_id is required")
	}
	if !slices.Contains(cooldown.Tiers, c.AntispamTier) {
		return fmt.Errorf("unknown antispam_tier %q", c.AntispamTier)
	}
	for _, id := range slices.Concat(c.ExcludedMessageChannels, c.ExcludedVoiceChannels) {
		if id <= 0 {
			return fmt.Errorf("invalid channel id %d", id)
		}
	}
	return nil
}
