package metrics

import "time"

// NoopSink discards every measurement. Used when metrics are disabled so
// callers never need nil checks.
type NoopSink struct{}

// NewNoopSink returns a sink that discards everything.
func NewNoopSink() *NoopSink {
	return &NoopSink{}
}

func (n *NoopSink) BatchStarted(size int)                                          {}
func (n *NoopSink) BatchCompleted(duration time.Duration, succeeded, failed int)   {}
func (n *NoopSink) StageStarted(stage string)                                      {}
func (n *NoopSink) StageCompleted(stage string, d time.Duration, outcome string)   {}
func (n *NoopSink) RecordingsInFlight(count int)                                   {}
func (n *NoopSink) SyncCompleted(account string, discovered, skipped int)          {}
func (n *NoopSink) TokenRefresh(account string, err error)                         {}
