// Package transcode converts the raw platform download into the library
// format with ffmpeg.
package transcode

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"reel/internal/config"
	"reel/internal/deps"
	"reel/internal/logging"
	"reel/internal/queue"
	"reel/internal/services"
	"reel/internal/stage"
)

// stderrTailBytes bounds the diagnostics kept from a failed ffmpeg run.
const stderrTailBytes = 4 << 10

// Transcoder runs ffmpeg to produce the library media file.
type Transcoder struct {
	cfg    *config.Config
	store  *queue.Store
	logger *slog.Logger
	binary string
}

// NewTranscoder constructs the transcode executor.
func NewTranscoder(cfg *config.Config, store *queue.Store, logger *slog.Logger) *Transcoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Transcoder{
		cfg:    cfg,
		store:  store,
		logger: logger.With(logging.String(logging.FieldComponent, "transcode")),
		binary: cfg.FFmpegBinary(),
	}
}

// SetLogger replaces the executor's logger.
func (t *Transcoder) SetLogger(logger *slog.Logger) {
	if logger != nil {
		t.logger = logger.With(logging.String(logging.FieldComponent, "transcode"))
	}
}

// SetBinaryForTests overrides the ffmpeg binary and returns a restore func.
func (t *Transcoder) SetBinaryForTests(path string) func() {
	previous := t.binary
	t.binary = path
	return func() { t.binary = previous }
}

// Execute transcodes the raw artifact into the configured container. The
// output is written through a temp name, so an existing final file always
// represents a finished earlier run and is reused.
func (t *Transcoder) Execute(ctx context.Context, rec *queue.Recording) (map[string]string, error) {
	logger := logging.WithContext(ctx, t.logger)

	rawPath, ok := rec.Artifact(queue.ArtifactRaw)
	if !ok {
		return nil, services.Wrap(services.ErrPrecondition, queue.StageTranscode, "input",
			"raw artifact is missing", nil)
	}
	if _, err := os.Stat(rawPath); err != nil {
		return nil, services.Wrap(services.ErrPrecondition, queue.StageTranscode, "input",
			fmt.Sprintf("raw file %s is not readable", rawPath), err)
	}

	container := t.cfg.Transcode.Container
	if container == "" {
		container = "mp4"
	}
	outputPath := filepath.Join(t.cfg.Paths.StagingDir, rec.UID, "media."+container)
	if info, err := os.Stat(outputPath); err == nil && info.Size() > 0 {
		logger.Info("media file already transcoded, reusing", logging.String("path", outputPath))
		return map[string]string{queue.ArtifactMedia: outputPath}, nil
	}
	tmpPath := filepath.Join(filepath.Dir(outputPath), "media.partial."+container)

	runCtx := ctx
	if t.cfg.Transcode.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, time.Duration(t.cfg.Transcode.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	args := buildArgs(t.cfg, rawPath, tmpPath)
	logger.Info("starting ffmpeg",
		logging.String("binary", t.binary),
		logging.String("input", rawPath),
		logging.String("output", outputPath))

	cmd := exec.CommandContext(runCtx, t.binary, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, services.Wrap(services.ErrExternalTool, queue.StageTranscode, "ffmpeg", "attach progress pipe", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		return nil, services.Wrap(services.ErrExternalTool, queue.StageTranscode, "ffmpeg",
			"ffmpeg failed to start; check that it is installed", err)
	}

	total := float64(rec.DurationSeconds)
	progressErr := readProgress(stdout, func(update progressUpdate) {
		percent := 0.0
		if total > 0 {
			percent = update.OutTimeSeconds / total * 100
			if percent > 99 {
				percent = 99
			}
		}
		message := fmt.Sprintf("Transcoding %.1f%%", percent)
		if update.Speed > 0 {
			message = fmt.Sprintf("%s @ %.1fx", message, update.Speed)
		}
		rec.SetProgress("Transcoding", message, percent)
		if t.store != nil {
			if err := t.store.Update(ctx, rec); err != nil {
				logger.Warn("persist progress failed", logging.Error(err))
			}
		}
	})

	waitErr := cmd.Wait()
	if waitErr != nil {
		_ = os.Remove(tmpPath)
		if runCtx.Err() == context.DeadlineExceeded {
			return nil, services.Wrap(services.ErrTimeout, queue.StageTranscode, "ffmpeg",
				"transcode exceeded configured timeout", waitErr)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrExternalTool, queue.StageTranscode, "ffmpeg",
			fmt.Sprintf("ffmpeg failed: %s", stderrTail(stderr.String())), waitErr)
	}
	if progressErr != nil {
		logger.Warn("progress stream ended early", logging.Error(progressErr))
	}

	info, err := os.Stat(tmpPath)
	if err != nil || info.Size() == 0 {
		_ = os.Remove(tmpPath)
		return nil, services.Wrap(services.ErrExternalTool, queue.StageTranscode, "verify",
			"ffmpeg exited cleanly but produced no output", err)
	}
	if err := os.Rename(tmpPath, outputPath); err != nil {
		return nil, services.Wrap(services.ErrFatal, queue.StageTranscode, "finalize", "move transcoded file", err)
	}

	rec.SetProgress("Transcoding", "Transcode complete", 100)
	return map[string]string{queue.ArtifactMedia: outputPath}, nil
}

// HealthCheck verifies the ffmpeg binary is resolvable.
func (t *Transcoder) HealthCheck(ctx context.Context) stage.Health {
	status := deps.ResolveFFmpeg(t.binary)
	if !status.Available {
		return stage.Unhealthy("transcode", status.Detail)
	}
	return stage.Healthy("transcode")
}

func stderrTail(output string) string {
	output = strings.TrimSpace(output)
	if len(output) > stderrTailBytes {
		output = output[len(output)-stderrTailBytes:]
	}
	if idx := strings.LastIndexByte(output, '\n'); idx >= 0 && len(output) > 200 {
		// Last line usually carries the actual error.
		if line := strings.TrimSpace(output[idx+1:]); line != "" {
			return line
		}
	}
	return output
}
