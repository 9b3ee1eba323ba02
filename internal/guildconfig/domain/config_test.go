package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"

	"community-bot/backend/internal/activity/cooldown"
)

func TestDefault(t *testing.T) {
	c := Default(42)
	if c.GuildID != 42 {
		t.Errorf("GuildID = %d, want 42", c.GuildID)
	}
	if c.AntispamTier != cooldown.DefaultTier {
		t.Errorf("AntispamTier = %q, want %q", c.AntispamTier, cooldown.DefaultTier)
	}
	if c.RemovePreviousRole {
		t.Error("RemovePreviousRole should default to false")
	}
}

func TestFallback_UsesConservativeTier(t *testing.T) {
	c := Fallback(42)
	if c.AntispamTier != cooldown.ConservativeTier {
		t.Errorf("AntispamTier = %q, want %q", c.AntispamTier, cooldown.ConservativeTier)
	}
	if len(c.ExcludedMessageChannels) != 0 || len(c.ExcludedVoiceChannels) != 0 {
		t.Error("fallback config should not exclude channels")
	}
}

func TestExcludedChannels(t *testing.T) {
	c := ActivityConfig{
		ExcludedMessageChannels: []snowflake.ID{10, 11},
		ExcludedVoiceChannels:   []snowflake.ID{20},
	}
	if !c.MessageExcluded(10) || !c.MessageExcluded(11) {
		t.Error("channels 10 and 11 should be excluded for messages")
	}
	if c.MessageExcluded(20) {
		t.Error("channel 20 is only excluded for voice")
	}
	if !c.VoiceExcluded(20) {
		t.Error("channel 20 should be excluded for voice")
	}
	if c.MessageExcluded(0) || c.VoiceExcluded(0) {
		t.Error("missing channel is never excluded")
	}
}

func TestValidate(t *testing.T) {
	if err := Default(1).Validate(); err != nil {
		t.Errorf("default config: %v", err)
	}
	cases := map[string]ActivityConfig{
		"missing guild": {AntispamTier: cooldown.TierSoft},
		"unknown tier":  {GuildID: 1, AntispamTier: "relaxed"},
		"bad channel":   {GuildID: 1, AntispamTier: cooldown.TierSoft, ExcludedVoiceChannels: []snowflake.ID{0}},
	}
	for name, c := range cases {
		if err := c.Validate(); err == nil {
			t.Errorf("%s: Validate should fail", name)
		}
	}
}
