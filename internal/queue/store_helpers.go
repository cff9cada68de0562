package queue

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

const recordingColumns = "id, uid, account, source_id, title, host_email, recorded_at, duration_seconds, size_bytes, status, stages_json, artifact_refs_json, stage_skips_json, failure_json, error_message, skip_reason, progress_stage, progress_percent, progress_message, last_heartbeat, needs_review, review_reason, retired_at, created_at, updated_at"

func scanRecording(scanner interface{ Scan(dest ...any) error }) (*Recording, error) {
	var (
		id              int64
		uid             string
		account         string
		sourceID        string
		title           sql.NullString
		hostEmail       sql.NullString
		recordedRaw     sql.NullString
		durationSeconds sql.NullInt64
		sizeBytes       sql.NullInt64
		statusStr       string
		stagesRaw       sql.NullString
		artifactsRaw    sql.NullString
		stageSkipsRaw   sql.NullString
		failureRaw      sql.NullString
		errorMessage    sql.NullString
		skipReason      sql.NullString
		progressStage   sql.NullString
		progressPercent sql.NullFloat64
		progressMessage sql.NullString
		heartbeatRaw    sql.NullString
		needsReview     sql.NullInt64
		reviewReason    sql.NullString
		retiredRaw      sql.NullString
		createdRaw      sql.NullString
		updatedRaw      sql.NullString
	)

	if err := scanner.Scan(
		&id,
		&uid,
		&account,
		&sourceID,
		&title,
		&hostEmail,
		&recordedRaw,
		&durationSeconds,
		&sizeBytes,
		&statusStr,
		&stagesRaw,
		&artifactsRaw,
		&stageSkipsRaw,
		&failureRaw,
		&errorMessage,
		&skipReason,
		&progressStage,
		&progressPercent,
		&progressMessage,
		&heartbeatRaw,
		&needsReview,
		&reviewReason,
		&retiredRaw,
		&createdRaw,
		&updatedRaw,
	); err != nil {
		return nil, err
	}

	rec := &Recording{
		ID:              id,
		UID:             uid,
		Account:         account,
		SourceID:        sourceID,
		Title:           title.String,
		HostEmail:       hostEmail.String,
		DurationSeconds: int(durationSeconds.Int64),
		SizeBytes:       sizeBytes.Int64,
		Status:          Status(statusStr),
		ErrorMessage:    errorMessage.String,
		SkipReason:      skipReason.String,
		ProgressStage:   progressStage.String,
		ProgressPercent: progressPercent.Float64,
		ProgressMessage: progressMessage.String,
		ReviewReason:    reviewReason.String,
	}
	if needsReview.Valid {
		rec.NeedsReview = needsReview.Int64 != 0
	}

	if stagesRaw.Valid && stagesRaw.String != "" {
		stages, err := decodeStages(stagesRaw.String)
		if err != nil {
			return nil, fmt.Errorf("decode stages for recording %d: %w", id, err)
		}
		rec.Stages = stages
	}
	if artifactsRaw.Valid && artifactsRaw.String != "" {
		artifacts := make(map[string]string)
		if err := json.Unmarshal([]byte(artifactsRaw.String), &artifacts); err != nil {
			return nil, fmt.Errorf("decode artifacts for recording %d: %w", id, err)
		}
		rec.Artifacts = artifacts
	}
	if stageSkipsRaw.Valid && stageSkipsRaw.String != "" {
		var skips []string
		if err := json.Unmarshal([]byte(stageSkipsRaw.String), &skips); err != nil {
			return nil, fmt.Errorf("decode stage skips for recording %d: %w", id, err)
		}
		rec.StageSkips = skips
	}
	if failureRaw.Valid && failureRaw.String != "" {
		failure := &Failure{}
		if err := json.Unmarshal([]byte(failureRaw.String), failure); err != nil {
			return nil, fmt.Errorf("decode failure for recording %d: %w", id, err)
		}
		rec.Failure = failure
	}

	if recorded, err := parseTimeString(recordedRaw.String); err == nil {
		rec.RecordedAt = recorded
	}
	if created, err := parseTimeString(createdRaw.String); err == nil {
		rec.CreatedAt = created
	}
	if updated, err := parseTimeString(updatedRaw.String); err == nil {
		rec.UpdatedAt = updated
	}
	if heartbeatRaw.Valid {
		if heartbeat, err := parseTimeString(heartbeatRaw.String); err == nil {
			rec.LastHeartbeat = &heartbeat
		}
	}
	if retiredRaw.Valid {
		if retired, err := parseTimeString(retiredRaw.String); err == nil {
			rec.RetiredAt = &retired
		}
	}
	return rec, nil
}

func decodeStages(raw string) (map[string]*StageRecord, error) {
	stages := make(map[string]*StageRecord)
	if err := json.Unmarshal([]byte(raw), &stages); err != nil {
		return nil, err
	}
	for name, record := range stages {
		if record == nil {
			stages[name] = &StageRecord{Status: StagePending}
		}
	}
	return stages, nil
}

func encodeStages(stages map[string]*StageRecord) (any, error) {
	if len(stages) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(stages)
	if err != nil {
		return nil, fmt.Errorf("marshal stages: %w", err)
	}
	return string(data), nil
}

func encodeArtifacts(artifacts map[string]string) (any, error) {
	if len(artifacts) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(artifacts)
	if err != nil {
		return nil, fmt.Errorf("marshal artifacts: %w", err)
	}
	return string(data), nil
}

func encodeStageSkips(skips []string) (any, error) {
	if len(skips) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(skips)
	if err != nil {
		return nil, fmt.Errorf("marshal stage skips: %w", err)
	}
	return string(data), nil
}

func encodeFailure(failure *Failure) (any, error) {
	if failure == nil {
		return nil, nil
	}
	data, err := json.Marshal(failure)
	if err != nil {
		return nil, fmt.Errorf("marshal failure: %w", err)
	}
	return string(data), nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func nullableTime(value *time.Time) any {
	if value == nil {
		return nil
	}
	v := value.UTC().Format(time.RFC3339Nano)
	return v
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

func parseTimeString(value string) (time.Time, error) {
	if value == "" {
		return time.Time{}, errors.New("empty")
	}
	if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02 15:04:05", value)
}

func makePlaceholders(count int) string {
	if count <= 0 {
		return ""
	}
	placeholders := make([]byte, 0, count*2)
	for i := 0; i < count; i++ {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
	}
	return string(placeholders)
}
