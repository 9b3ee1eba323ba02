package domain

import "time"

// JobRun describes one invocation of a background job (sync worker, role sync, partition manager).
type JobRun struct {
	Job       string
	StartedAt time.Time
	Duration  time.Duration
	Skipped   bool   // tick fired while the previous run was still in progress
	Err       string // empty on success
}
