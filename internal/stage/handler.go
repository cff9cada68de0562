package stage

import (
	"context"
	"log/slog"

	"reel/internal/queue"
)

// Executor performs one pipeline stage's work for a recording. Implementations
// must not touch the recording's Status or Stages map; they return the artifact
// references they produced and the orchestrator applies every transition.
// Progress fields on the recording are fair game.
//
// An executor may be invoked again for the same recording after an earlier
// failure, so it must not assume it is the first attempt.
type Executor interface {
	Execute(ctx context.Context, rec *queue.Recording) (map[string]string, error)
	HealthCheck(ctx context.Context) Health
}

// LoggerAware lets the orchestrator hand stage-scoped loggers to executors.
type LoggerAware interface {
	SetLogger(*slog.Logger)
}
