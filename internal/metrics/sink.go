package metrics

import "time"

// Sink receives workflow measurements. Every method is fire-and-forget:
// implementations must not block the pipeline or propagate errors.
type Sink interface {
	// Batch scheduler measurements.
	BatchStarted(size int)
	BatchCompleted(duration time.Duration, succeeded, failed int)

	// Per-stage measurements.
	StageStarted(stage string)
	StageCompleted(stage string, duration time.Duration, outcome string)
	RecordingsInFlight(count int)

	// Intake and credential measurements.
	SyncCompleted(account string, discovered, skipped int)
	TokenRefresh(account string, err error)
}

// Stage outcome labels for StageCompleted.
const (
	OutcomeCompleted = "completed"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
)
