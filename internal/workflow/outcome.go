package workflow

import "reel/internal/queue"

// Outcome reports how one orchestrator pass over one recording ended.
// A batch run yields one outcome per recording handed to the scheduler;
// recordings with nothing to do surface as no-ops rather than vanishing.
type Outcome struct {
	RecordingID int64
	UID         string
	Title       string
	Account     string
	Initial     queue.Status
	Final       queue.Status
	StagesRun   []string
	FailedStage string
	Err         error
	NoOp        bool
	Canceled    bool
}

// Succeeded reports whether the pass ran at least one stage and ended clean.
func (o Outcome) Succeeded() bool {
	return o.Err == nil && !o.NoOp && !o.Canceled
}

// Published reports whether the pass carried the recording to its terminal state.
func (o Outcome) Published() bool {
	return o.Err == nil && o.Final == queue.StatusPublished
}
