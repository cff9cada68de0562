package ipc

import (
	"time"

	"reel/internal/queue"
)

// StageInfo describes one stage record on a recording.
type StageInfo struct {
	Status       string `json:"status"`
	RetryCount   int    `json:"retry_count,omitempty"`
	FailedReason string `json:"failed_reason,omitempty"`
}

// RecordingSummary is the wire representation of a queued recording.
type RecordingSummary struct {
	ID              int64                `json:"id"`
	UID             string               `json:"uid"`
	Account         string               `json:"account"`
	SourceID        string               `json:"source_id"`
	Title           string               `json:"title"`
	Status          string               `json:"status"`
	RecordedAt      string               `json:"recorded_at,omitempty"`
	DurationSeconds int                  `json:"duration_seconds,omitempty"`
	SizeBytes       int64                `json:"size_bytes,omitempty"`
	UpdatedAt       string               `json:"updated_at,omitempty"`
	ProgressStage   string               `json:"progress_stage,omitempty"`
	ProgressPercent float64              `json:"progress_percent,omitempty"`
	ProgressMessage string               `json:"progress_message,omitempty"`
	ErrorMessage    string               `json:"error_message,omitempty"`
	NeedsReview     bool                 `json:"needs_review,omitempty"`
	ReviewReason    string               `json:"review_reason,omitempty"`
	SkipReason      string               `json:"skip_reason,omitempty"`
	Stages          map[string]StageInfo `json:"stages,omitempty"`
}

// FromRecording flattens a queue recording into its wire form.
func FromRecording(rec *queue.Recording) RecordingSummary {
	if rec == nil {
		return RecordingSummary{}
	}
	summary := RecordingSummary{
		ID:              rec.ID,
		UID:             rec.UID,
		Account:         rec.Account,
		SourceID:        rec.SourceID,
		Title:           rec.Title,
		Status:          string(rec.Status),
		DurationSeconds: rec.DurationSeconds,
		SizeBytes:       rec.SizeBytes,
		ProgressStage:   rec.ProgressStage,
		ProgressPercent: rec.ProgressPercent,
		ProgressMessage: rec.ProgressMessage,
		ErrorMessage:    rec.ErrorMessage,
		NeedsReview:     rec.NeedsReview,
		ReviewReason:    rec.ReviewReason,
		SkipReason:      rec.SkipReason,
	}
	if !rec.RecordedAt.IsZero() {
		summary.RecordedAt = rec.RecordedAt.UTC().Format(time.RFC3339)
	}
	if !rec.UpdatedAt.IsZero() {
		summary.UpdatedAt = rec.UpdatedAt.UTC().Format(time.RFC3339)
	}
	if len(rec.Stages) > 0 {
		summary.Stages = make(map[string]StageInfo, len(rec.Stages))
		for name, record := range rec.Stages {
			if record == nil {
				continue
			}
			summary.Stages[name] = StageInfo{
				Status:       string(record.Status),
				RetryCount:   record.RetryCount,
				FailedReason: record.FailedReason,
			}
		}
	}
	return summary
}

// StageHealth describes readiness of one pipeline stage executor.
type StageHealth struct {
	Name   string `json:"name"`
	Ready  bool   `json:"ready"`
	Detail string `json:"detail,omitempty"`
}

// PreflightCheck mirrors one environment check result.
type PreflightCheck struct {
	Name   string `json:"name"`
	Passed bool   `json:"passed"`
	Detail string `json:"detail,omitempty"`
}

// StatusRequest fetches daemon status.
type StatusRequest struct{}

// StatusResponse represents combined daemon/workflow status information.
type StatusResponse struct {
	Running     bool           `json:"running"`
	PID         int            `json:"pid"`
	QueueStats  map[string]int `json:"queue_stats"`
	LastError   string         `json:"last_error,omitempty"`
	InFlight    int            `json:"in_flight"`
	StageHealth []StageHealth  `json:"stage_health,omitempty"`
	LockPath    string         `json:"lock_path"`
	QueueDBPath string         `json:"queue_db_path"`
}

// StopRequest stops the daemon.
type StopRequest struct{}

// StopResponse indicates stop result.
type StopResponse struct {
	Stopped bool `json:"stopped"`
}

// SyncRequest triggers an immediate intake pass.
type SyncRequest struct{}

// SyncResponse reports what the intake pass did.
type SyncResponse struct {
	Accounts     int      `json:"accounts"`
	Discovered   int      `json:"discovered"`
	Skipped      int      `json:"skipped"`
	Reconsidered int      `json:"reconsidered"`
	Errors       []string `json:"errors,omitempty"`
}

// ProcessRequest triggers an immediate queue pass.
type ProcessRequest struct{}

// ProcessResponse acknowledges the process kick.
type ProcessResponse struct {
	Requested bool `json:"requested"`
}

// QueueListRequest filters queue listing by status.
type QueueListRequest struct {
	Statuses []string `json:"statuses"`
}

// QueueListResponse contains queue entries.
type QueueListResponse struct {
	Recordings []RecordingSummary `json:"recordings"`
}

// QueueDescribeRequest fetches a single recording by id.
type QueueDescribeRequest struct {
	ID int64 `json:"id"`
}

// QueueDescribeResponse contains a single recording.
type QueueDescribeResponse struct {
	Recording RecordingSummary `json:"recording"`
}

// QueueRetryRequest retries failed recordings. Empty list means all failed.
type QueueRetryRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRetryResponse reports number of retried recordings.
type QueueRetryResponse struct {
	Updated int64 `json:"updated"`
}

// QueueReconsiderRequest returns skipped recordings to intake. Empty list
// means all skipped.
type QueueReconsiderRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueReconsiderResponse reports number of reconsidered recordings.
type QueueReconsiderResponse struct {
	Updated int64 `json:"updated"`
}

// QueueRemoveRequest removes specific recordings by id.
type QueueRemoveRequest struct {
	IDs []int64 `json:"ids"`
}

// QueueRemoveResponse reports number of removed recordings.
type QueueRemoveResponse struct {
	Removed int64 `json:"removed"`
}

// QueueClearScope selects which recordings a clear operation touches.
type QueueClearScope string

const (
	ClearScopeAll       QueueClearScope = "all"
	ClearScopeFailed    QueueClearScope = "failed"
	ClearScopePublished QueueClearScope = "published"
)

// QueueClearRequest removes recordings in the given scope.
type QueueClearRequest struct {
	Scope QueueClearScope `json:"scope"`
}

// QueueClearResponse reports number of removed recordings.
type QueueClearResponse struct {
	Removed int64 `json:"removed"`
}

// QueueResetRequest resets recordings stranded in processing states.
type QueueResetRequest struct{}

// QueueResetResponse reports number of recordings reset.
type QueueResetResponse struct {
	Updated int64 `json:"updated"`
}

// QueueHealthRequest fetches aggregate diagnostics.
type QueueHealthRequest struct{}

// QueueHealthResponse reports queue health information.
type QueueHealthResponse struct {
	Total       int `json:"total"`
	Initialized int `json:"initialized"`
	Processing  int `json:"processing"`
	Failed      int `json:"failed"`
	Review      int `json:"review"`
	Published   int `json:"published"`
	Skipped     int `json:"skipped"`
}

// DatabaseHealthRequest fetches detailed database diagnostics.
type DatabaseHealthRequest struct{}

// DatabaseHealthResponse reports database health information.
type DatabaseHealthResponse struct {
	DBPath           string   `json:"db_path"`
	DatabaseExists   bool     `json:"database_exists"`
	DatabaseReadable bool     `json:"database_readable"`
	SchemaVersion    string   `json:"schema_version"`
	TableExists      bool     `json:"table_exists"`
	ColumnsPresent   []string `json:"columns_present,omitempty"`
	MissingColumns   []string `json:"missing_columns,omitempty"`
	IntegrityCheck   bool     `json:"integrity_check"`
	TotalRecordings  int      `json:"total_recordings"`
	Error            string   `json:"error,omitempty"`
}

// PreflightRequest runs the environment checks.
type PreflightRequest struct{}

// PreflightResponse reports environment check results.
type PreflightResponse struct {
	Checks []PreflightCheck `json:"checks"`
}

// TestNotificationRequest triggers a notification test.
type TestNotificationRequest struct{}

// TestNotificationResponse reports notification test outcome.
type TestNotificationResponse struct {
	Sent    bool   `json:"sent"`
	Message string `json:"message"`
}
