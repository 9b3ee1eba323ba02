// Package worker assembles the periodic drain, reconciliation and partition jobs run by cmd/worker.
package worker

import (
	"context"
	"errors"
	"log"
	"time"

	"community-bot/backend/internal/activity/drain"
	"community-bot/backend/internal/leveling"
	"community-bot/backend/internal/scheduler"
	"community-bot/backend/internal/telemetry"
)

// Job names, also used as the job attribute on metrics and run records.
const (
	JobCounterSync        = "counter-sync"
	JobLogSync            = "log-sync"
	JobXPSync             = "xp-sync"
	JobRoleSync           = "role-sync"
	JobPartitionEnsure    = "partition-ensure"
	JobPartitionRetention = "partition-retention"
	JobVolatileGC         = "volatile-gc"
)

const (
	drainTimeout     = 4 * time.Minute
	roleSyncTimeout  = 20 * time.Minute
	partitionTimeout = time.Minute
	gcInterval       = 10 * time.Minute
	gcDiscardRatio   = 0.5
)

// RoleSyncer reconciles reward roles.
type RoleSyncer interface {
	Run(ctx context.Context) (leveling.RoleSyncResult, error)
}

// PartitionEnsurer creates upcoming raw-log partitions.
type PartitionEnsurer interface {
	EnsureFuturePartitions(ctx context.Context, monthsAhead int) (int, error)
}

// RetentionRunner drops expired raw-log partitions at most once per month.
type RetentionRunner interface {
	Run(ctx context.Context) (ran bool, dropped int, err error)
}

// GarbageCollector reclaims space in an embedded volatile store.
type GarbageCollector interface {
	RunGC(discardRatio float64) error
}

// Config holds the job cadence.
type Config struct {
	CounterSyncEvery    time.Duration
	LogSyncEvery        time.Duration
	XPSyncEvery         time.Duration
	RoleSyncEvery       time.Duration
	PartitionCheckEvery time.Duration
	LogBatchSize        int
	MonthsAhead         int
}

// Deps holds the collaborators. Roles, Partitions, Retention and GC are optional;
// a nil one leaves its job out.
type Deps struct {
	Counters    drain.CounterBuffer
	CounterSink drain.CounterSink
	Logs        drain.LogSource
	LogSink     drain.LogSink
	XP          drain.XPBuffer
	XPSink      drain.XPSink
	Roles       RoleSyncer
	Partitions  PartitionEnsurer
	Retention   RetentionRunner
	GC          GarbageCollector
	Metrics     *telemetry.Metrics
}

// Jobs returns the scheduler jobs for d.
func Jobs(cfg Config, d Deps) []scheduler.Job {
	jobs := []scheduler.Job{
		{
			Name:     JobCounterSync,
			Interval: cfg.CounterSyncEvery,
			Timeout:  drainTimeout,
			Run: func(ctx context.Context) error {
				res, err := drain.CounterSync(ctx, d.Counters, d.CounterSink, d.Metrics)
				logResult(JobCounterSync, res)
				return err
			},
		},
		{
			Name:     JobLogSync,
			Interval: cfg.LogSyncEvery,
			Timeout:  drainTimeout,
			Run: func(ctx context.Context) error {
				res, err := drain.LogSync(ctx, d.Logs, d.LogSink, cfg.LogBatchSize, d.Metrics)
				logResult(JobLogSync, res)
				return err
			},
		},
		{
			Name:     JobXPSync,
			Interval: cfg.XPSyncEvery,
			Timeout:  drainTimeout,
			Run: func(ctx context.Context) error {
				res, err := drain.XPSync(ctx, d.XP, d.XPSink, d.Metrics)
				logResult(JobXPSync, res)
				return err
			},
		},
	}
	if d.Roles != nil {
		jobs = append(jobs, scheduler.Job{
			Name:     JobRoleSync,
			Interval: cfg.RoleSyncEvery,
			Timeout:  roleSyncTimeout,
			Run: func(ctx context.Context) error {
				res, err := d.Roles.Run(ctx)
				if res.Members > 0 || res.Failed > 0 {
					log.Printf("worker: %s: members=%d added=%d removed=%d failed=%d", JobRoleSync, res.Members, res.Added, res.Removed, res.Failed)
				}
				return err
			},
		})
	}
	if d.Partitions != nil {
		jobs = append(jobs, scheduler.Job{
			Name:       JobPartitionEnsure,
			Interval:   cfg.PartitionCheckEvery,
			RunOnStart: true,
			Timeout:    partitionTimeout,
			Run: func(ctx context.Context) error {
				n, err := d.Partitions.EnsureFuturePartitions(ctx, cfg.MonthsAhead)
				if n > 0 {
					log.Printf("worker: %s: created %d partitions", JobPartitionEnsure, n)
				}
				return err
			},
		})
	}
	if d.Retention != nil {
		jobs = append(jobs, scheduler.Job{
			Name:       JobPartitionRetention,
			Interval:   cfg.PartitionCheckEvery,
			RunOnStart: true,
			Timeout:    partitionTimeout,
			Run: func(ctx context.Context) error {
				ran, dropped, err := d.Retention.Run(ctx)
				if ran {
					log.Printf("worker: %s: dropped %d partitions", JobPartitionRetention, dropped)
				}
				return err
			},
		})
	}
	if d.GC != nil {
		jobs = append(jobs, scheduler.Job{
			Name:     JobVolatileGC,
			Interval: gcInterval,
			Run: func(context.Context) error {
				return d.GC.RunGC(gcDiscardRatio)
			},
		})
	}
	return jobs
}

func logResult(job string, res drain.Result) {
	if res.Keys == 0 && res.Failed == 0 {
		return
	}
	log.Printf("worker: %s: keys=%d amount=%d failed=%d", job, res.Keys, res.Amount, res.Failed)
}

// ErrMissingDeps is returned by Validate when a drain collaborator is nil.
var ErrMissingDeps = errors.New("worker: drain dependencies are required")

// Validate checks that the always-on drain jobs have their collaborators.
func (d Deps) Validate() error {
	if d.Counters == nil || d.CounterSink == nil || d.Logs == nil || d.LogSink == nil || d.XP == nil || d.XPSink == nil {
		return ErrMissingDeps
	}
	return nil
}
