package telemetry

import (
	"context"

	"community-bot/backend/internal/telemetry/domain"
)

// RunEmitter emits job run records (e.g. to OTel Logs). Best-effort; callers log and ignore errors.
type RunEmitter interface {
	Emit(ctx context.Context, run *domain.JobRun) error
}
