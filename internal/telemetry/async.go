package telemetry

import (
	"context"
	"log"
	"time"

	"community-bot/backend/internal/telemetry/domain"
)

// emitTimeout is the max time allowed for a single async emit. Used by EmitAsync and by ShutdownDrainDuration.
const emitTimeout = 5 * time.Second

// ShutdownDrainDuration is how long to wait after the scheduler stops before shutting down OTel providers,
// so in-flight async emits have time to complete. Must be >= emitTimeout.
const ShutdownDrainDuration = emitTimeout

// EmitAsync runs Emit in a goroutine with a short timeout so the job loop is not blocked.
//
// emitter and run may be nil; EmitAsync returns immediately without starting a goroutine.
// The goroutine uses context.Background() so cancellation of the job context does not abort the emit.
func EmitAsync(emitter RunEmitter, run *domain.JobRun) {
	if emitter == nil || run == nil {
		return
	}
	go func() {
		emitCtx, cancel := context.WithTimeout(context.Background(), emitTimeout)
		defer cancel()
		if err := emitter.Emit(emitCtx, run); err != nil {
			log.Printf("telemetry: async emit failed: %v", err)
		}
	}()
}
