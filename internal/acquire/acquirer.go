// Package acquire downloads the primary recording file from the platform into
// the staging directory.
package acquire

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"reel/internal/config"
	"reel/internal/logging"
	"reel/internal/queue"
	"reel/internal/services"
	"reel/internal/services/zoom"
	"reel/internal/stage"
)

// Downloader is the platform surface acquire needs.
type Downloader interface {
	GetRecording(ctx context.Context, account, meetingUUID string) (zoom.Meeting, error)
	Download(ctx context.Context, account string, file zoom.RecordingFile, destPath string) error
}

// Acquirer fetches the raw media file for a recording.
type Acquirer struct {
	cfg    *config.Config
	store  *queue.Store
	client Downloader
	logger *slog.Logger
}

// NewAcquirer constructs the acquire executor.
func NewAcquirer(cfg *config.Config, store *queue.Store, client Downloader, logger *slog.Logger) *Acquirer {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Acquirer{
		cfg:    cfg,
		store:  store,
		client: client,
		logger: logger.With(logging.String(logging.FieldComponent, "acquire")),
	}
}

// SetLogger replaces the executor's logger.
func (a *Acquirer) SetLogger(logger *slog.Logger) {
	if logger != nil {
		a.logger = logger.With(logging.String(logging.FieldComponent, "acquire"))
	}
}

// Execute downloads the primary video file into staging. A raw artifact left
// behind by an interrupted earlier attempt is reused when its size matches.
func (a *Acquirer) Execute(ctx context.Context, rec *queue.Recording) (map[string]string, error) {
	logger := logging.WithContext(ctx, a.logger)

	meeting, err := a.client.GetRecording(ctx, rec.Account, rec.SourceID)
	if err != nil {
		return nil, err
	}
	file, ok := meeting.PrimaryVideo()
	if !ok {
		return nil, services.Wrap(services.ErrFatal, queue.StageAcquire, "select",
			"recording has no completed video file", nil)
	}

	destPath := filepath.Join(a.cfg.Paths.StagingDir, rec.UID, "raw.mp4")
	if info, err := os.Stat(destPath); err == nil && info.Size() == file.FileSize {
		logger.Info("raw file already staged, reusing",
			logging.String("path", destPath),
			logging.Int64("size_bytes", info.Size()))
		return map[string]string{queue.ArtifactRaw: destPath}, nil
	}

	rec.SetProgress("Acquiring", fmt.Sprintf("Downloading %s", file.FileType), 10)
	if a.store != nil {
		if err := a.store.Update(ctx, rec); err != nil {
			logger.Warn("persist progress failed", logging.Error(err))
		}
	}

	logger.Info("downloading recording file",
		logging.String("file_id", file.ID),
		logging.Int64("size_bytes", file.FileSize),
		logging.String("destination", destPath))
	if err := a.client.Download(ctx, rec.Account, file, destPath); err != nil {
		return nil, err
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, queue.StageAcquire, "verify", "stat downloaded file", err)
	}
	if file.FileSize > 0 && info.Size() != file.FileSize {
		return nil, services.Wrap(services.ErrTransient, queue.StageAcquire, "verify",
			fmt.Sprintf("size mismatch after download: got %d want %d", info.Size(), file.FileSize), nil)
	}

	rec.SetProgress("Acquiring", "Download complete", 100)
	return map[string]string{queue.ArtifactRaw: destPath}, nil
}

// HealthCheck verifies the staging directory is writable.
func (a *Acquirer) HealthCheck(ctx context.Context) stage.Health {
	if err := os.MkdirAll(a.cfg.Paths.StagingDir, 0o755); err != nil {
		return stage.Unhealthy("acquire", fmt.Sprintf("staging directory unavailable: %v", err))
	}
	return stage.Healthy("acquire")
}
