package queue

import (
	"strings"
	"time"
)

// Status represents the lifecycle of a recording.
type Status string

const (
	StatusInitialized  Status = "initialized"
	StatusSkipped      Status = "skipped"
	StatusAcquiring    Status = "acquiring"
	StatusAcquired     Status = "acquired"
	StatusTransforming Status = "transforming"
	StatusTransformed  Status = "transformed"
	StatusEnriching    Status = "enriching"
	StatusEnriched     Status = "enriched"
	StatusPublishing   Status = "publishing"
	StatusPublished    Status = "published"
	StatusFailed       Status = "failed"
	StatusRetired      Status = "retired"
)

// UserStopReason is the review reason set when a user explicitly stops a recording.
const UserStopReason = "Stop requested by user"

// DaemonStopReason is the error message set when recordings are interrupted by daemon shutdown.
const DaemonStopReason = "Daemon stopped"

var allStatuses = []Status{
	StatusInitialized,
	StatusSkipped,
	StatusAcquiring,
	StatusAcquired,
	StatusTransforming,
	StatusTransformed,
	StatusEnriching,
	StatusEnriched,
	StatusPublishing,
	StatusPublished,
	StatusFailed,
	StatusRetired,
}

var statusSet = func() map[Status]struct{} {
	set := make(map[Status]struct{}, len(allStatuses))
	for _, status := range allStatuses {
		set[status] = struct{}{}
	}
	return set
}()

var processingStatuses = map[Status]struct{}{
	StatusAcquiring:    {},
	StatusTransforming: {},
	StatusEnriching:    {},
	StatusPublishing:   {},
}

// StatusTransition maps an in-flight status to the at-rest status a
// recording returns to when its work is interrupted.
type StatusTransition struct {
	From Status
	To   Status
}

// DefaultRollbacks returns the rollback mapping for a pipeline with every
// stage enabled. The workflow substitutes its own mapping when optional
// stages are disabled and the publish entry status shifts.
func DefaultRollbacks() []StatusTransition {
	return []StatusTransition{
		{From: StatusAcquiring, To: StatusInitialized},
		{From: StatusTransforming, To: StatusAcquired},
		{From: StatusEnriching, To: StatusTransformed},
		{From: StatusPublishing, To: StatusEnriched},
	}
}

// Stage names in pipeline order. Transcribe and translate form the
// enrichment pair sharing the enriching/enriched statuses.
const (
	StageAcquire    = "acquire"
	StageTranscode  = "transcode"
	StageTranscribe = "transcribe"
	StageTranslate  = "translate"
	StagePublish    = "publish"
)

// StageOrder is the fixed execution order of pipeline stages.
var StageOrder = []string{StageAcquire, StageTranscode, StageTranscribe, StageTranslate, StagePublish}

// Artifact keys produced by pipeline stages. The artifact map is flat
// and recording-scoped; stage completion merges with last-write-wins.
const (
	ArtifactRaw         = "raw"
	ArtifactMedia       = "media"
	ArtifactTranscript  = "transcript"
	ArtifactTranslation = "translation"
	ArtifactLibrary     = "library"
)

// StageStatus represents the execution state of one stage on one recording.
type StageStatus string

const (
	StagePending    StageStatus = "pending"
	StageInProgress StageStatus = "in_progress"
	StageCompleted  StageStatus = "completed"
	StageFailed     StageStatus = "failed"
	StageSkipped    StageStatus = "skipped"
)

// StageRecord tracks one stage's execution history on a recording.
type StageRecord struct {
	Status       StageStatus `json:"status"`
	RetryCount   int         `json:"retry_count,omitempty"`
	StartedAt    *time.Time  `json:"started_at,omitempty"`
	CompletedAt  *time.Time  `json:"completed_at,omitempty"`
	FailedReason string      `json:"failed_reason,omitempty"`
}

// Failure captures the most recent pipeline failure on a recording.
type Failure struct {
	Reason     string    `json:"reason"`
	Stage      string    `json:"stage"`
	OccurredAt time.Time `json:"occurred_at"`
}

// DatabaseHealth captures diagnostic information about the queue database.
type DatabaseHealth struct {
	DBPath           string
	DatabaseExists   bool
	DatabaseReadable bool
	SchemaVersion    string
	TableExists      bool
	ColumnsPresent   []string
	MissingColumns   []string
	IntegrityCheck   bool
	TotalRecordings  int
	Error            string
}

// HealthSummary describes aggregated queue counts per key lifecycle states.
type HealthSummary struct {
	Total       int
	Initialized int
	Processing  int
	Failed      int
	Review      int
	Published   int
	Skipped     int
}

// Recording represents a cloud recording persisted in SQLite.
type Recording struct {
	ID              int64
	UID             string
	Account         string
	SourceID        string
	Title           string
	HostEmail       string
	RecordedAt      time.Time
	DurationSeconds int
	SizeBytes       int64
	Status          Status
	Stages          map[string]*StageRecord
	Artifacts       map[string]string
	StageSkips      []string
	Failure         *Failure
	ErrorMessage    string
	SkipReason      string
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ProgressStage   string
	ProgressPercent float64
	ProgressMessage string
	LastHeartbeat   *time.Time
	NeedsReview     bool
	ReviewReason    string
	RetiredAt       *time.Time
}

// AllStatuses returns the ordered list of known statuses.
func AllStatuses() []Status {
	cp := make([]Status, len(allStatuses))
	copy(cp, allStatuses)
	return cp
}

// ParseStatus converts a string into a known Status.
func ParseStatus(value string) (Status, bool) {
	normalized := Status(strings.ToLower(strings.TrimSpace(value)))
	if normalized == "" {
		return "", false
	}
	_, ok := statusSet[normalized]
	return normalized, ok
}

// KnownStage reports whether name is a pipeline stage.
func KnownStage(name string) bool {
	for _, stage := range StageOrder {
		if stage == name {
			return true
		}
	}
	return false
}

// IsProcessing returns true when the status reflects an in-flight stage.
func (r Recording) IsProcessing() bool {
	return IsProcessingStatus(r.Status)
}

// IsProcessingStatus reports whether a status reflects an in-flight stage.
func IsProcessingStatus(status Status) bool {
	_, ok := processingStatuses[status]
	return ok
}

// IsTerminalStatus reports whether a status ends the lifecycle.
func IsTerminalStatus(status Status) bool {
	return status == StatusPublished || status == StatusRetired
}

// IsUserStopReason reports whether a review reason represents a user-initiated stop.
func IsUserStopReason(reason string) bool {
	return strings.EqualFold(strings.TrimSpace(reason), UserStopReason)
}

// Stage returns the record for the named stage, creating a pending one if
// the recording has never touched that stage.
func (r *Recording) Stage(name string) *StageRecord {
	if r.Stages == nil {
		r.Stages = make(map[string]*StageRecord, len(StageOrder))
	}
	record, ok := r.Stages[name]
	if !ok || record == nil {
		record = &StageRecord{Status: StagePending}
		r.Stages[name] = record
	}
	return record
}

// StageStatusFor reports the stage status without mutating the recording.
// Stages with no record are pending.
func (r *Recording) StageStatusFor(name string) StageStatus {
	if r.Stages == nil {
		return StagePending
	}
	record, ok := r.Stages[name]
	if !ok || record == nil {
		return StagePending
	}
	return record.Status
}

// MergeArtifacts merges stage outputs into the recording-level artifact
// map. Keys already present are overwritten.
func (r *Recording) MergeArtifacts(artifacts map[string]string) {
	if len(artifacts) == 0 {
		return
	}
	if r.Artifacts == nil {
		r.Artifacts = make(map[string]string, len(artifacts))
	}
	for key, value := range artifacts {
		r.Artifacts[key] = value
	}
}

// Artifact returns the artifact reference under key.
func (r *Recording) Artifact(key string) (string, bool) {
	if r.Artifacts == nil {
		return "", false
	}
	value, ok := r.Artifacts[key]
	return value, ok
}

// InitProgress resets progress fields for a new stage. If ProgressStage is
// currently empty, it is set to the provided stage value; otherwise the
// existing stage is preserved to support resume scenarios.
func (r *Recording) InitProgress(stage, message string) {
	if r.ProgressStage == "" {
		r.ProgressStage = stage
	}
	r.ProgressMessage = message
	r.ProgressPercent = 0
	r.ErrorMessage = ""
}

// SetProgress updates all three progress fields together. Use this instead
// of setting ProgressStage, ProgressPercent, and ProgressMessage individually.
func (r *Recording) SetProgress(stage, message string, percent float64) {
	r.ProgressStage = stage
	r.ProgressMessage = message
	r.ProgressPercent = percent
}

// SetProgressComplete sets progress to 100% with the given stage and message.
func (r *Recording) SetProgressComplete(stage, message string) {
	r.SetProgress(stage, message, 100)
}

// MarkFailed parks the recording as failed at the named stage. Clears the
// heartbeat and records the failure envelope.
func (r *Recording) MarkFailed(stage, reason string) {
	now := time.Now().UTC()
	r.Status = StatusFailed
	r.ErrorMessage = reason
	r.Failure = &Failure{Reason: reason, Stage: stage, OccurredAt: now}
	r.ProgressPercent = 0
	r.ProgressMessage = reason
	r.LastHeartbeat = nil
	r.ProgressStage = "Failed"
}

// SkipsStage reports whether intake preferences disabled the named stage
// for this recording.
func (r *Recording) SkipsStage(name string) bool {
	for _, skipped := range r.StageSkips {
		if skipped == name {
			return true
		}
	}
	return false
}

// ClearFailure removes failure and review state ahead of a retry.
func (r *Recording) ClearFailure() {
	r.Failure = nil
	r.ErrorMessage = ""
	r.NeedsReview = false
	r.ReviewReason = ""
}

// ResumeStatus computes the at-rest status a recording should return to
// based on which stages have completed. Used when retrying failed
// recordings and when rolling back after a transient stage failure.
func (r *Recording) ResumeStatus() Status {
	if r.StageStatusFor(StagePublish) == StageCompleted {
		return StatusPublished
	}
	if r.StageStatusFor(StageTranslate) == StageCompleted {
		return StatusEnriched
	}
	// A completed transcribe rests at transformed until the enrichment
	// group finishes; the next run re-advances the status as needed.
	if r.StageStatusFor(StageTranscribe) == StageCompleted {
		return StatusTransformed
	}
	if r.StageStatusFor(StageTranscode) == StageCompleted {
		return StatusTransformed
	}
	if r.StageStatusFor(StageAcquire) == StageCompleted {
		return StatusAcquired
	}
	return StatusInitialized
}
