package partition

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"community-bot/backend/internal/db"
	"community-bot/backend/internal/db/migrate"
	"community-bot/backend/internal/partition/domain"
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

func TestPostgresCatalog_EnsureListDrop(t *testing.T) {
	conn := openTestDB(t)
	catalog := NewPostgresCatalog(conn, uuid.NewString())
	ctx := context.Background()
	// A month far in the past so the test never collides with live partitions.
	d := domain.ForMonth(time.Date(2001, 3, 1, 0, 0, 0, 0, time.UTC))
	t.Cleanup(func() { _ = catalog.Drop(ctx, d) })

	created, err := catalog.Ensure(ctx, d)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = catalog.Ensure(ctx, d)
	require.NoError(t, err)
	assert.False(t, created)

	_, err = conn.ExecContext(ctx, `INSERT INTO activity_log (created_at, user_id, guild_id, event_type) VALUES ($1, 1, 1, 1)`,
		time.Date(2001, 3, 15, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	parts, err := catalog.List(ctx)
	require.NoError(t, err)
	found := false
	for _, p := range parts {
		if p.Name == d.Name {
			found = true
			assert.True(t, p.Start.Equal(d.Start))
		}
	}
	assert.True(t, found)

	require.NoError(t, catalog.Drop(ctx, d))
	var exists bool
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT to_regclass($1) IS NOT NULL`, d.Name).Scan(&exists))
	assert.False(t, exists)
}

func TestPostgresCatalog_BoundsAreUTCInAnySessionTimeZone(t *testing.T) {
	conn := openTestDB(t)
	// One connection so the session setting applies to every statement below.
	conn.SetMaxOpenConns(1)
	ctx := context.Background()
	_, err := conn.ExecContext(ctx, `SET TIME ZONE 'America/New_York'`)
	require.NoError(t, err)

	catalog := NewPostgresCatalog(conn, uuid.NewString())
	d := domain.ForMonth(time.Date(2001, 5, 1, 0, 0, 0, 0, time.UTC))
	t.Cleanup(func() { _ = catalog.Drop(ctx, d) })
	_, err = catalog.Ensure(ctx, d)
	require.NoError(t, err)

	// Both instants are May in UTC; the first is still April in New York.
	for _, at := range []time.Time{
		time.Date(2001, 5, 1, 0, 30, 0, 0, time.UTC),
		time.Date(2001, 5, 31, 23, 30, 0, 0, time.UTC),
	} {
		_, err := conn.ExecContext(ctx, `INSERT INTO activity_log (created_at, user_id, guild_id, event_type) VALUES ($1, 1, 1, 1)`, at)
		require.NoError(t, err, "insert at %s", at)
	}
	var n int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT count(*) FROM `+d.Name).Scan(&n))
	assert.Equal(t, 2, n)

	// The first instant of June (UTC) belongs to the next partition, not this one.
	_, err = conn.ExecContext(ctx, `INSERT INTO activity_log (created_at, user_id, guild_id, event_type) VALUES ($1, 1, 1, 1)`,
		time.Date(2001, 6, 1, 0, 0, 0, 0, time.UTC))
	assert.Error(t, err)
}
