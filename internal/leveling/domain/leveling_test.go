package domain

import (
	"testing"

	"github.com/bwmarrin/snowflake"
)

func TestLevelFor(t *testing.T) {
	testCases := []struct {
		total int64
		want  int
	}{
		{-5, 0},
		{0, 0},
		{99, 0},
		{100, 1},
		{399, 1},
		{400, 2},
		{899, 2},
		{900, 3},
		{1_000_000, 100},
	}
	for _, tc := range testCases {
		if got := LevelFor(tc.total); got != tc.want {
			t.Errorf("LevelFor(%d) = %d, want %d", tc.total, got, tc.want)
		}
	}
}

func TestLevelForThresholds(t *testing.T) {
	for level := 1; level < 50; level++ {
		threshold := int64(level) * int64(level) * ExpPerLevelUnit
		if got := LevelFor(threshold); got != level {
			t.Errorf("LevelFor(%d) = %d, want %d", threshold, got, level)
		}
		if got := LevelFor(threshold - 1); got != level-1 {
			t.Errorf("LevelFor(%d) = %d, want %d", threshold-1, got, level-1)
		}
	}
}

func TestMemberKeyLess(t *testing.T) {
	a := MemberKey{GuildID: 1, UserID: 9}
	b := MemberKey{GuildID: 2, UserID: 1}
	c := MemberKey{GuildID: 2, UserID: 3}
	if !a.Less(b) || !b.Less(c) || c.Less(b) || a.Less(a) {
		t.Error("MemberKey must order by guild then user")
	}
}

var rewards = []RoleReward{
	{Level: 10, RoleID: 110},
	{Level: 5, RoleID: 105},
	{Level: 20, RoleID: 120},
}

func TestDesiredRoles(t *testing.T) {
	testCases := []struct {
		name           string
		level          int
		removePrevious bool
		want           []snowflake.ID
	}{
		{"below first reward", 4, false, nil},
		{"stacking", 12, false, []snowflake.ID{105, 110}},
		{"highest only", 12, true, []snowflake.ID{110}},
		{"all rewards", 25, false, []snowflake.ID{105, 110, 120}},
		{"highest only at top", 25, true, []snowflake.ID{120}},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := DesiredRoles(rewards, tc.level, tc.removePrevious)
			if len(got) != len(tc.want) {
				t.Fatalf("DesiredRoles = %v, want %v", got, tc.want)
			}
			for _, id := range tc.want {
				if !got[id] {
					t.Errorf("missing role %d in %v", id, got)
				}
			}
		})
	}
}

func TestRoleDiff(t *testing.T) {
	desired := DesiredRoles(rewards, 12, true)
	add, remove := RoleDiff(rewards, []snowflake.ID{105, 999}, desired)
	if len(add) != 1 || add[0] != 110 {
		t.Errorf("add = %v, want [110]", add)
	}
	if len(remove) != 1 || remove[0] != 105 {
		t.Errorf("remove = %v, want [105]; unrelated role 999 must be kept", remove)
	}

	add, remove = RoleDiff(rewards, []snowflake.ID{110}, desired)
	if len(add) != 0 || len(remove) != 0 {
		t.Errorf("in sync member: add=%v remove=%v", add, remove)
	}
}
