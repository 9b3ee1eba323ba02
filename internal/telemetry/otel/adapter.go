package otel

import (
	"context"
	"time"

	otellog "go.opentelemetry.io/otel/log"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"community-bot/backend/internal/telemetry"
	"community-bot/backend/internal/telemetry/domain"
)

// NewRunEmitter returns a RunEmitter that sends job runs as OTel log records via the given LoggerProvider.
// If provider is nil, returns a no-op emitter.
func NewRunEmitter(provider *sdklog.LoggerProvider) telemetry.RunEmitter {
	if provider == nil {
		return noopEmitter{}
	}
	return &otelEmitter{logger: provider.Logger("communitybot.jobs")}
}

// recordLogger is the subset of otellog.Logger the emitter uses.
type recordLogger interface {
	Emit(ctx context.Context, rec otellog.Record)
}

// NewRunEmitterWithLogger wraps an existing logger; tests pass a capturing implementation.
func NewRunEmitterWithLogger(logger recordLogger) telemetry.RunEmitter {
	return &otelEmitter{logger: logger}
}

type noopEmitter struct{}

func (noopEmitter) Emit(context.Context, *domain.JobRun) error { return nil }

type otelEmitter struct {
	logger recordLogger
}

// Emit converts the run to an OTel log record. Failed runs are emitted with ERROR severity.
func (e *otelEmitter) Emit(ctx context.Context, run *domain.JobRun) error {
	if run == nil {
		return nil
	}
	rec := otellog.Record{}
	rec.SetTimestamp(run.StartedAt)
	if run.StartedAt.IsZero() {
		rec.SetTimestamp(time.Now().UTC())
	}
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetBody(otellog.StringValue(run.Job))
	rec.AddAttributes(
		otellog.String("job", run.Job),
		otellog.Int64("duration_ms", run.Duration.Milliseconds()),
		otellog.Bool("skipped", run.Skipped),
	)
	if run.Err != "" {
		rec.SetSeverity(otellog.SeverityError)
		rec.AddAttributes(otellog.String("error", run.Err))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
