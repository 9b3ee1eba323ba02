package repository

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-bot/backend/internal/db"
	"community-bot/backend/internal/db/migrate"
	"community-bot/backend/internal/leveling/domain"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}
	if err := migrate.Run(dsn, "up"); err != nil {
		t.Skipf("migrations failed (expected in test environment): %v", err)
	}
	conn, err := db.Open(dsn)
	if err != nil {
		t.Skipf("Database connection failed (expected in test environment): %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func newGuildID(t *testing.T) snowflake.ID {
	t.Helper()
	node, err := snowflake.NewNode(int64(time.Now().UnixNano() % 1024))
	require.NoError(t, err)
	return node.Generate()
}

func rolesLevel(t *testing.T, conn *sql.DB, guild, user snowflake.ID) int {
	t.Helper()
	var level int
	require.NoError(t, conn.QueryRow(`SELECT roles_level FROM member_leveling WHERE guild_id = $1 AND user_id = $2`,
		guild.Int64(), user.Int64()).Scan(&level))
	return level
}

func TestPostgresRepository_AddXPIsAdditiveAndRecomputesLevel(t *testing.T) {
	repo := NewPostgresRepository(openTestDB(t))
	ctx := context.Background()
	guild := newGuildID(t)

	later := time.Date(2026, 10, 16, 12, 0, 0, 0, time.UTC)
	earlier := later.Add(-time.Hour)

	m, err := repo.AddXP(ctx, guild, 7, 60, 0, &later)
	require.NoError(t, err)
	assert.Equal(t, 0, m.Level)

	m, err = repo.AddXP(ctx, guild, 7, 20, 320, &earlier)
	require.NoError(t, err)
	assert.Equal(t, int64(80), m.MsgExp)
	assert.Equal(t, int64(320), m.VoiceExp)
	assert.Equal(t, 2, m.Level)
	require.NotNil(t, m.LastMessageAt)
	assert.True(t, m.LastMessageAt.Equal(later), "last_message_at must not move backwards")

}

func TestPostgresRepository_Leaderboard(t *testing.T) {
	repo := NewPostgresRepository(openTestDB(t))
	ctx := context.Background()
	guild := newGuildID(t)

	for user, total := range map[snowflake.ID]int64{1: 100, 2: 250, 3: 40} {
		_, err := repo.AddXP(ctx, guild, user, total, 0, nil)
		require.NoError(t, err)
	}

	board, err := repo.Leaderboard(ctx, guild, 2, 0)
	require.NoError(t, err)
	require.Len(t, board, 2)
	assert.Equal(t, snowflake.ID(2), board[0].UserID)
	assert.Equal(t, int64(250), board[0].Total)
	assert.Equal(t, 1, board[0].Rank)
	assert.Equal(t, snowflake.ID(1), board[1].UserID)
	assert.Equal(t, 2, board[1].Rank)

	page, err := repo.Leaderboard(ctx, guild, 2, 2)
	require.NoError(t, err)
	require.Len(t, page, 1)
	assert.Equal(t, snowflake.ID(3), page[0].UserID)
	assert.Equal(t, 3, page[0].Rank)
}

func TestPostgresRepository_RoleSyncCandidates(t *testing.T) {
	conn := openTestDB(t)
	repo := NewPostgresRepository(conn)
	ctx := context.Background()
	guild := newGuildID(t)

	_, err := repo.AddXP(ctx, guild, 1, 400, 0, nil)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `INSERT INTO leveling_role_rewards (guild_id, level, role_id) VALUES ($1, 2, 55)`, guild.Int64())
	require.NoError(t, err)

	rewards, err := repo.ListRoleRewards(ctx, guild)
	require.NoError(t, err)
	require.Len(t, rewards, 1)
	assert.Equal(t, snowflake.ID(55), rewards[0].RoleID)

	require.NoError(t, repo.MarkRolesSynced(ctx, guild, 1, 2))
	assert.Equal(t, 2, rolesLevel(t, conn, guild, 1))
}

func TestPostgresRepository_RoleSyncCandidatesKeyset(t *testing.T) {
	repo := NewPostgresRepository(openTestDB(t))
	ctx := context.Background()
	guild := newGuildID(t)

	for _, user := range []snowflake.ID{30, 10, 20} {
		_, err := repo.AddXP(ctx, guild, user, 400, 0, nil)
		require.NoError(t, err)
	}

	after := domain.MemberKey{GuildID: guild}
	var seen []snowflake.ID
	for {
		page, err := repo.ListRoleSyncCandidates(ctx, after, 2)
		require.NoError(t, err)
		for _, m := range page {
			if m.GuildID == guild {
				seen = append(seen, m.UserID)
			}
		}
		if len(page) < 2 || page[len(page)-1].GuildID != guild {
			break
		}
		after = page[len(page)-1].Key()
	}
	assert.Equal(t, []snowflake.ID{10, 20, 30}, seen)
}
