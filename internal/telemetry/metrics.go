package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

// Metrics holds the activity pipeline's instruments. The zero value is not usable; use NewMetrics or Noop.
type Metrics struct {
	submitted      metric.Int64Counter
	dropped        metric.Int64Counter
	counterDrained metric.Int64Counter
	xpDrained      metric.Int64Counter
	logInserted    metric.Int64Counter
	logLost        metric.Int64Counter
	drainFailures  metric.Int64Counter
	partitions     metric.Int64Counter
	jobsSkipped    metric.Int64Counter
	rolesChanged   metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	var (
		m   Metrics
		err error
	)
	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.submitted, "activity.events.submitted", "Events accepted by the ingestion pipeline."},
		{&m.dropped, "activity.events.dropped", "Events or raw entries dropped, by reason."},
		{&m.counterDrained, "activity.counter_sync.drained", "Message counts moved from the buffer to member_daily_stats."},
		{&m.xpDrained, "activity.xp_sync.buckets", "XP buckets moved from the buffer to member_leveling."},
		{&m.logInserted, "activity.log_sync.inserted", "Raw log rows inserted into activity_log."},
		{&m.logLost, "activity.log_sync.lost", "Raw log rows lost to failed bulk inserts."},
		{&m.drainFailures, "activity.drain.failures", "Per-key drain failures, by worker."},
		{&m.partitions, "activity.partitions.changed", "Partitions created or dropped, by action."},
		{&m.jobsSkipped, "scheduler.ticks.skipped", "Job ticks skipped because the previous run was still in progress."},
		{&m.rolesChanged, "leveling.roles.changed", "Reward roles added or removed, by action."},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, err
		}
	}
	return &m, nil
}

// Noop returns Metrics backed by a no-op meter, for tests and for callers without a MeterProvider.
func Noop() *Metrics {
	m, _ := NewMetrics(noop.NewMeterProvider().Meter("noop"))
	return m
}

func (m *Metrics) EventSubmitted(ctx context.Context, eventType string) {
	m.submitted.Add(ctx, 1, metric.WithAttributes(attribute.String("event_type", eventType)))
}

func (m *Metrics) EventDropped(ctx context.Context, reason string) {
	m.dropped.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) EventsDropped(ctx context.Context, reason string, n int64) {
	if n <= 0 {
		return
	}
	m.dropped.Add(ctx, n, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *Metrics) CounterDrained(ctx context.Context, messages int64) {
	m.counterDrained.Add(ctx, messages)
}

func (m *Metrics) XPDrained(ctx context.Context, buckets int64) {
	m.xpDrained.Add(ctx, buckets)
}

func (m *Metrics) LogInserted(ctx context.Context, rows int64) {
	m.logInserted.Add(ctx, rows)
}

func (m *Metrics) LogLost(ctx context.Context, rows int64) {
	m.logLost.Add(ctx, rows)
}

func (m *Metrics) DrainFailed(ctx context.Context, worker string) {
	m.drainFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("worker", worker)))
}

func (m *Metrics) PartitionChanged(ctx context.Context, action string) {
	m.partitions.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}

func (m *Metrics) JobSkipped(ctx context.Context, job string) {
	m.jobsSkipped.Add(ctx, 1, metric.WithAttributes(attribute.String("job", job)))
}

func (m *Metrics) RoleChanged(ctx context.Context, action string) {
	m.rolesChanged.Add(ctx, 1, metric.WithAttributes(attribute.String("action", action)))
}
