// Package scheduler runs periodic background jobs on independent tickers.
//
// Each job is Idle or Running. A tick that fires while the same job is still running is
// skipped and counted; it is never queued, so a slow drain never produces back-to-back runs.
// Different jobs run concurrently with each other.
package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"community-bot/backend/internal/telemetry"
	"community-bot/backend/internal/telemetry/domain"
)

// Job is a named periodic task.
type Job struct {
	Name       string
	Interval   time.Duration
	RunOnStart bool
	// Timeout bounds one run. Zero means the run gets the scheduler's context only.
	Timeout time.Duration
	Run     func(ctx context.Context) error
}

// Status is a snapshot of one job's run history.
type Status struct {
	Runs              int64
	Skipped           int64
	ConsecutiveErrors int64
	LastRun           time.Time
	LastError         string
}

type jobState struct {
	job     Job
	running atomic.Bool

	mu     sync.Mutex
	status Status
}

// Scheduler owns a set of jobs. Register all jobs before Start.
type Scheduler struct {
	jobs    []*jobState
	metrics *telemetry.Metrics
	emitter telemetry.RunEmitter

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New returns a Scheduler. metrics and emitter may be nil.
func New(metrics *telemetry.Metrics, emitter telemetry.RunEmitter) *Scheduler {
	if metrics == nil {
		metrics = telemetry.Noop()
	}
	return &Scheduler{metrics: metrics, emitter: emitter}
}

// Register adds a job. Jobs with a non-positive interval only run on start (if RunOnStart).
func (s *Scheduler) Register(job Job) {
	s.jobs = append(s.jobs, &jobState{job: job})
}

// Start launches one goroutine per job. It returns immediately.
func (s *Scheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	for _, js := range s.jobs {
		s.wg.Add(1)
		go s.loop(ctx, js)
	}
}

// Stop cancels the tickers and waits for in-flight runs to return.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Status returns a snapshot per job name.
func (s *Scheduler) Status() map[string]Status {
	out := make(map[string]Status, len(s.jobs))
	for _, js := range s.jobs {
		js.mu.Lock()
		out[js.job.Name] = js.status
		js.mu.Unlock()
	}
	return out
}

func (s *Scheduler) loop(ctx context.Context, js *jobState) {
	defer s.wg.Done()
	var runs sync.WaitGroup
	defer runs.Wait()

	fire := func() {
		if !js.running.CompareAndSwap(false, true) {
			s.skip(ctx, js)
			return
		}
		runs.Add(1)
		go func() {
			defer runs.Done()
			defer js.running.Store(false)
			s.runOnce(ctx, js)
		}()
	}

	if js.job.RunOnStart {
		fire()
	}
	if js.job.Interval <= 0 {
		return
	}
	ticker := time.NewTicker(js.job.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fire()
		}
	}
}

func (s *Scheduler) skip(ctx context.Context, js *jobState) {
	js.mu.Lock()
	js.status.Skipped++
	js.mu.Unlock()
	s.metrics.JobSkipped(ctx, js.job.Name)
	log.Printf("scheduler: %s: previous run still in progress, skipping tick", js.job.Name)
	telemetry.EmitAsync(s.emitter, &domain.JobRun{Job: js.job.Name, StartedAt: time.Now().UTC(), Skipped: true})
}

func (s *Scheduler) runOnce(ctx context.Context, js *jobState) {
	runCtx := ctx
	if js.job.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, js.job.Timeout)
		defer cancel()
	}
	start := time.Now()
	err := runJob(runCtx, js.job)
	run := &domain.JobRun{Job: js.job.Name, StartedAt: start.UTC(), Duration: time.Since(start)}

	js.mu.Lock()
	js.status.Runs++
	js.status.LastRun = start
	if err != nil {
		js.status.ConsecutiveErrors++
		js.status.LastError = err.Error()
		run.Err = err.Error()
	} else {
		js.status.ConsecutiveErrors = 0
		js.status.LastError = ""
	}
	consecutive := js.status.ConsecutiveErrors
	js.mu.Unlock()

	if err != nil {
		log.Printf("scheduler: %s failed (%d in a row): %v", js.job.Name, consecutive, err)
	}
	telemetry.EmitAsync(s.emitter, run)
}

// runJob converts a panic in a job into an error so one bad run does not kill the process.
func runJob(ctx context.Context, job Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return job.Run(ctx)
}
