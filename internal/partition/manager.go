// Package partition owns the lifecycle of activity_log's monthly partitions. It is the only code
// that issues DDL at runtime.
package partition

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"community-bot/backend/internal/partition/domain"
	"community-bot/backend/internal/telemetry"
)

// ErrInvalidMonths is returned for a negative months-ahead or a retention below one month.
var ErrInvalidMonths = errors.New("partition: invalid month count")

// Catalog creates, lists and drops physical partitions together with their registry rows.
// Ensure must be idempotent across processes.
type Catalog interface {
	Ensure(ctx context.Context, d domain.Descriptor) (created bool, err error)
	List(ctx context.Context) ([]domain.Descriptor, error)
	Drop(ctx context.Context, d domain.Descriptor) error
}

// Manager schedules partition creation ahead of need and drops expired ones.
type Manager struct {
	catalog Catalog
	metrics *telemetry.Metrics
	now     func() time.Time
}

func NewManager(catalog Catalog, metrics *telemetry.Metrics) *Manager {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Manager{catalog: catalog, metrics: metrics, now: time.Now}
}

// EnsureFuturePartitions makes sure the current month and the next monthsAhead months have a
// partition. Each month is attempted even if an earlier one fails; the failures are returned joined.
func (m *Manager) EnsureFuturePartitions(ctx context.Context, monthsAhead int) (int, error) {
	if monthsAhead < 0 {
		return 0, fmt.Errorf("%w: months ahead %d", ErrInvalidMonths, monthsAhead)
	}
	current := domain.MonthStart(m.now())
	var (
		created int
		errs    []error
	)
	for i := 0; i <= monthsAhead; i++ {
		d := domain.ForMonth(current.AddDate(0, i, 0))
		ok, err := m.catalog.Ensure(ctx, d)
		if err != nil {
			log.Printf("partition: ensure %s: %v", d.Name, err)
			errs = append(errs, fmt.Errorf("ensure %s: %w", d.Name, err))
			continue
		}
		if ok {
			created++
			m.metrics.PartitionChanged(ctx, "create")
			log.Printf("partition: created %s [%s, %s)", d.Name, d.Start.Format(time.DateOnly), d.End.Format(time.DateOnly))
		}
	}
	return created, errors.Join(errs...)
}

// RetentionCutoff is the start of the oldest month kept with retentionMonths of retention.
func (m *Manager) RetentionCutoff(retentionMonths int) time.Time {
	return domain.MonthStart(m.now()).AddDate(0, -retentionMonths, 0)
}

// DropOldPartitions drops every registered partition that starts before the retention cutoff.
// A failed drop is logged and retried on the next run; the others still proceed.
func (m *Manager) DropOldPartitions(ctx context.Context, retentionMonths int) (int, error) {
	if retentionMonths < 1 {
		return 0, fmt.Errorf("%w: retention %d", ErrInvalidMonths, retentionMonths)
	}
	parts, err := m.catalog.List(ctx)
	if err != nil {
		return 0, fmt.Errorf("partition: list: %w", err)
	}
	cutoff := m.RetentionCutoff(retentionMonths)
	var (
		dropped int
		errs    []error
	)
	for _, d := range parts {
		if !d.Start.Before(cutoff) {
			continue
		}
		if err := m.catalog.Drop(ctx, d); err != nil {
			log.Printf("partition: drop %s: %v", d.Name, err)
			errs = append(errs, fmt.Errorf("drop %s: %w", d.Name, err))
			continue
		}
		dropped++
		m.metrics.PartitionChanged(ctx, "drop")
		log.Printf("partition: dropped %s (before %s)", d.Name, cutoff.Format(time.DateOnly))
	}
	return dropped, errors.Join(errs...)
}

// ListPartitions returns the registered partitions ordered by start date.
func (m *Manager) ListPartitions(ctx context.Context) ([]domain.Descriptor, error) {
	return m.catalog.List(ctx)
}
