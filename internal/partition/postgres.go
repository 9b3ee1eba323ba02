package partition

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"community-bot/backend/internal/partition/domain"
)

// ddlLockKey serialises partition DDL across bot processes for the duration of one transaction.
const ddlLockKey int64 = 0x61637469766c6f67 // "activlog"

const (
	lockSQL     = `SELECT pg_advisory_xact_lock($1)`
	existsSQL   = `SELECT EXISTS (SELECT 1 FROM activity_log_partitions WHERE partition_name = $1)`
	registerSQL = `
INSERT INTO activity_log_partitions (partition_name, range_start, range_end, created_by)
VALUES ($1, $2, $3, $4)
ON CONFLICT (partition_name) DO NOTHING`
	listSQL = `
SELECT partition_name, range_start, range_end
FROM activity_log_partitions
ORDER BY range_start`
	unregisterSQL = `DELETE FROM activity_log_partitions WHERE partition_name = $1`
)

// PostgresCatalog keeps partitions and registry rows in step: each change is one transaction
// holding an advisory lock, and every statement is "if not exists" so a lost race is a no-op.
type PostgresCatalog struct {
	db       *sql.DB
	instance string
}

// NewPostgresCatalog returns a catalog on db. instance is recorded as created_by in the registry.
func NewPostgresCatalog(db *sql.DB, instance string) *PostgresCatalog {
	return &PostgresCatalog{db: db, instance: instance}
}

var _ Catalog = (*PostgresCatalog)(nil)

func (c *PostgresCatalog) Ensure(ctx context.Context, d domain.Descriptor) (created bool, err error) {
	err = c.inTx(ctx, func(tx *sql.Tx) error {
		var exists bool
		if err := tx.QueryRowContext(ctx, existsSQL, d.Name).Scan(&exists); err != nil {
			return err
		}
		if exists {
			return nil
		}
		if _, err := tx.ExecContext(ctx, createPartitionSQL(d)); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, registerSQL, d.Name, d.Start, d.End, c.instance)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		created = err == nil && n == 1
		return err
	})
	return created, err
}

func (c *PostgresCatalog) List(ctx context.Context) ([]domain.Descriptor, error) {
	rows, err := c.db.QueryContext(ctx, listSQL)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Descriptor
	for rows.Next() {
		var d domain.Descriptor
		if err := rows.Scan(&d.Name, &d.Start, &d.End); err != nil {
			return nil, err
		}
		d.Start, d.End = d.Start.UTC(), d.End.UTC()
		out = append(out, d)
	}
	return out, rows.Err()
}

func (c *PostgresCatalog) Drop(ctx context.Context, d domain.Descriptor) error {
	return c.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+pgx.Identifier{d.Name}.Sanitize()); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, unregisterSQL, d.Name)
		return err
	})
}

func (c *PostgresCatalog) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, lockSQL, ddlLockKey); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("advisory lock: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// boundLayout renders a partition bound with an explicit UTC offset. A bare date would be read in
// the session TimeZone and shift every bound off the UTC month.
const boundLayout = "2006-01-02 15:04:05-07"

// createPartitionSQL builds the DDL; bounds are timestamps rendered by us, the name is quoted.
func createPartitionSQL(d domain.Descriptor) string {
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s PARTITION OF %s FOR VALUES FROM ('%s') TO ('%s')",
		pgx.Identifier{d.Name}.Sanitize(),
		pgx.Identifier{domain.Table}.Sanitize(),
		d.Start.UTC().Format(boundLayout),
		d.End.UTC().Format(boundLayout),
	)
}
