package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reel/internal/config"
)

const userAgent = "Reel/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyRecordingDiscovered(ctx context.Context, title, account string) error
	NotifyRecordingPublished(ctx context.Context, title, libraryPath string) error
	NotifyStageFailed(ctx context.Context, title, stage, reason string) error
	NotifyBatchCompleted(ctx context.Context, processed, failed int, duration time.Duration) error
	NotifyDaemonStarted(ctx context.Context) error
	NotifyDaemonStopped(ctx context.Context) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &ntfyService{
		endpoint: topic,
		events:   cfg.Notifications,
		client:   &http.Client{Timeout: timeout},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	events   config.Notifications
	client   *http.Client
}

func (n *ntfyService) NotifyRecordingDiscovered(ctx context.Context, title, account string) error {
	if !n.events.Intake {
		return nil
	}
	title = strings.TrimSpace(title)
	account = strings.TrimSpace(account)
	data := payload{
		title:   "Reel - Recording Discovered",
		message: fmt.Sprintf("New recording queued: %s (%s)", title, account),
		tags:    []string{"reel", "intake", "discovered"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRecordingPublished(ctx context.Context, title, libraryPath string) error {
	if !n.events.Published {
		return nil
	}
	title = strings.TrimSpace(title)
	libraryPath = strings.TrimSpace(libraryPath)
	message := fmt.Sprintf("Published to library: %s", title)
	if libraryPath != "" {
		message = fmt.Sprintf("%s\nPath: %s", message, libraryPath)
	}
	data := payload{
		title:   "Reel - Published",
		message: message,
		tags:    []string{"reel", "publish", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyStageFailed(ctx context.Context, title, stage, reason string) error {
	if !n.events.Failures {
		return nil
	}
	title = strings.TrimSpace(title)
	stage = strings.TrimSpace(stage)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Reel - Stage Failed",
		message:  fmt.Sprintf("%s failed at %s: %s", title, stage, reason),
		tags:     []string{"reel", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, processed, failed int, duration time.Duration) error {
	if !n.events.Published {
		return nil
	}
	duration = duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	durationText := duration.String()
	if duration == 0 {
		durationText = "0s"
	}

	var title, message string
	if failed == 0 {
		title = "Reel - Batch Complete"
		message = fmt.Sprintf("Batch complete: %d recordings processed in %s", processed, durationText)
	} else {
		title = "Reel - Batch Complete (with errors)"
		message = fmt.Sprintf("Batch complete: %d succeeded, %d failed in %s", processed, failed, durationText)
	}

	data := payload{
		title:   title,
		message: message,
		tags:    []string{"reel", "batch", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDaemonStarted(ctx context.Context) error {
	if !n.events.Daemon {
		return nil
	}
	data := payload{
		title:   "Reel - Daemon Started",
		message: "Archival daemon is running",
		tags:    []string{"reel", "daemon", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyDaemonStopped(ctx context.Context) error {
	if !n.events.Daemon {
		return nil
	}
	data := payload{
		title:   "Reel - Daemon Stopped",
		message: "Archival daemon has stopped",
		tags:    []string{"reel", "daemon", "stopped"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Reel - Test",
		message:  "Notification system test",
		tags:     []string{"reel", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyRecordingDiscovered(context.Context, string, string) error     { return nil }
func (noopService) NotifyRecordingPublished(context.Context, string, string) error      { return nil }
func (noopService) NotifyStageFailed(context.Context, string, string, string) error     { return nil }
func (noopService) NotifyBatchCompleted(context.Context, int, int, time.Duration) error { return nil }
func (noopService) NotifyDaemonStarted(context.Context) error                           { return nil }
func (noopService) NotifyDaemonStopped(context.Context) error                           { return nil }
func (noopService) TestNotification(context.Context) error                              { return nil }
