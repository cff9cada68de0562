package zoom

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"reel/internal/config"
	"reel/internal/creds"
	"reel/internal/logging"
	"reel/internal/services"
)

const listPageSize = 300

// Meeting is one finished cloud recording session as reported by the platform.
type Meeting struct {
	UUID      string          `json:"uuid"`
	ID        int64           `json:"id"`
	Topic     string          `json:"topic"`
	HostEmail string          `json:"host_email"`
	StartTime time.Time       `json:"start_time"`
	Duration  int             `json:"duration"`
	TotalSize int64           `json:"total_size"`
	Files     []RecordingFile `json:"recording_files"`
}

// RecordingFile is one downloadable asset attached to a meeting.
type RecordingFile struct {
	ID            string `json:"id"`
	FileType      string `json:"file_type"`
	FileExtension string `json:"file_extension"`
	FileSize      int64  `json:"file_size"`
	Status        string `json:"status"`
	RecordingType string `json:"recording_type"`
	DownloadURL   string `json:"download_url"`
}

type listResponse struct {
	NextPageToken string    `json:"next_page_token"`
	Meetings      []Meeting `json:"meetings"`
}

// PrimaryVideo picks the main shared-screen-with-speaker MP4, falling back to
// the largest completed MP4 when the preferred view is absent.
func (m Meeting) PrimaryVideo() (RecordingFile, bool) {
	var best RecordingFile
	var found bool
	for _, file := range m.Files {
		if !strings.EqualFold(file.FileType, "MP4") || !strings.EqualFold(file.Status, "completed") {
			continue
		}
		if file.RecordingType == "shared_screen_with_speaker_view" {
			return file, true
		}
		if !found || file.FileSize > best.FileSize {
			best = file
			found = true
		}
	}
	return best, found
}

// Client calls the cloud recording API on behalf of configured accounts.
type Client struct {
	apiBase  string
	http     *http.Client
	cache    *creds.Cache
	accounts map[string]config.Account
	logger   *slog.Logger
}

// NewClient wires the API client to the shared credential cache.
func NewClient(cfg *config.Config, cache *creds.Cache, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	accounts := make(map[string]config.Account, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		accounts[account.Name] = account
	}
	timeout := time.Duration(cfg.Source.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		apiBase:  strings.TrimRight(cfg.Source.APIBaseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		cache:    cache,
		accounts: accounts,
		logger:   logger.With(logging.String(logging.FieldComponent, "zoom")),
	}
}

// ListRecordings returns every finished cloud recording for the account with a
// start time inside [since, until], following pagination to the end.
func (c *Client) ListRecordings(ctx context.Context, account string, since, until time.Time) ([]Meeting, error) {
	cfgAccount, ok := c.accounts[account]
	if !ok {
		return nil, services.Wrap(services.ErrConfiguration, "zoom", "list",
			fmt.Sprintf("account %q is not configured", account), nil)
	}

	var meetings []Meeting
	pageToken := ""
	for {
		query := url.Values{}
		query.Set("from", since.UTC().Format("2006-01-02"))
		query.Set("to", until.UTC().Format("2006-01-02"))
		query.Set("page_size", fmt.Sprintf("%d", listPageSize))
		if pageToken != "" {
			query.Set("next_page_token", pageToken)
		}
		endpoint := fmt.Sprintf("%s/accounts/%s/recordings?%s", c.apiBase, url.PathEscape(cfgAccount.AccountID), query.Encode())

		var page listResponse
		if err := c.getJSON(ctx, account, endpoint, &page); err != nil {
			return nil, err
		}
		meetings = append(meetings, page.Meetings...)
		if page.NextPageToken == "" {
			break
		}
		pageToken = page.NextPageToken
	}

	// The API buckets by day, so trim to the exact watermark.
	filtered := meetings[:0]
	for _, meeting := range meetings {
		if meeting.StartTime.Before(since) || meeting.StartTime.After(until) {
			continue
		}
		filtered = append(filtered, meeting)
	}
	return filtered, nil
}

// GetRecording fetches the current file set for one meeting. Acquire runs
// through this rather than a stored listing because download URLs expire.
func (c *Client) GetRecording(ctx context.Context, account, meetingUUID string) (Meeting, error) {
	if _, ok := c.accounts[account]; !ok {
		return Meeting{}, services.Wrap(services.ErrConfiguration, "zoom", "get",
			fmt.Sprintf("account %q is not configured", account), nil)
	}
	endpoint := fmt.Sprintf("%s/meetings/%s/recordings", c.apiBase, url.PathEscape(meetingUUID))
	var meeting Meeting
	if err := c.getJSON(ctx, account, endpoint, &meeting); err != nil {
		return Meeting{}, err
	}
	return meeting, nil
}

// Download streams one recording file to destPath, writing through a temp file
// so a crash never leaves a truncated artifact behind. A 401 mid-batch
// invalidates the cached token and retries once with a fresh one.
func (c *Client) Download(ctx context.Context, account string, file RecordingFile, destPath string) error {
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return services.Wrap(services.ErrFatal, "zoom", "download", "create destination directory", err)
	}

	err := c.downloadOnce(ctx, account, file, destPath)
	if err != nil && errors.Is(err, services.ErrAuth) {
		c.logger.Warn("download rejected, refreshing token",
			logging.String(logging.FieldAccount, account),
			logging.String("file_id", file.ID))
		c.cache.Invalidate(account)
		err = c.downloadOnce(ctx, account, file, destPath)
	}
	return err
}

func (c *Client) downloadOnce(ctx context.Context, account string, file RecordingFile, destPath string) error {
	token, err := c.cache.Get(ctx, account)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, file.DownloadURL, nil)
	if err != nil {
		return services.Wrap(services.ErrTransient, "zoom", "download", "build download request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.http.Do(req)
	if err != nil {
		return services.Wrap(services.ErrTransient, "zoom", "download", "download request failed", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusUnauthorized:
		return services.Wrap(services.ErrAuth, "zoom", "download",
			fmt.Sprintf("download unauthorized for file %s", file.ID), nil)
	case resp.StatusCode == http.StatusNotFound:
		return services.Wrap(services.ErrFatal, "zoom", "download",
			fmt.Sprintf("recording file %s no longer exists", file.ID), nil)
	default:
		return services.Wrap(services.ErrTransient, "zoom", "download",
			fmt.Sprintf("download returned %d", resp.StatusCode), nil)
	}

	tmpPath := destPath + ".partial"
	out, err := os.Create(tmpPath)
	if err != nil {
		return services.Wrap(services.ErrFatal, "zoom", "download", "create temp file", err)
	}
	written, err := io.Copy(out, resp.Body)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrTransient, "zoom", "download", "stream recording file", err)
	}
	if file.FileSize > 0 && written != file.FileSize {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrTransient, "zoom", "download",
			fmt.Sprintf("short download: got %d of %d bytes", written, file.FileSize), nil)
	}
	if err := os.Rename(tmpPath, destPath); err != nil {
		_ = os.Remove(tmpPath)
		return services.Wrap(services.ErrFatal, "zoom", "download", "finalize downloaded file", err)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, account, endpoint string, target any) error {
	attempt := func() error {
		token, err := c.cache.Get(ctx, account)
		if err != nil {
			return err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return services.Wrap(services.ErrTransient, "zoom", "list", "build list request", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("User-Agent", userAgent)

		resp, err := c.http.Do(req)
		if err != nil {
			return services.Wrap(services.ErrTransient, "zoom", "list", "list request failed", err)
		}
		defer resp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
		if err != nil {
			return services.Wrap(services.ErrTransient, "zoom", "list", "read list response", err)
		}
		switch {
		case resp.StatusCode == http.StatusOK:
		case resp.StatusCode == http.StatusUnauthorized:
			return services.Wrap(services.ErrAuth, "zoom", "list", "list request unauthorized", nil)
		case resp.StatusCode == http.StatusNotFound:
			return services.Wrap(services.ErrFatal, "zoom", "list", "resource no longer exists", nil)
		case resp.StatusCode == http.StatusTooManyRequests:
			return services.Wrap(services.ErrTransient, "zoom", "list", "rate limited by platform", nil)
		default:
			return services.Wrap(services.ErrTransient, "zoom", "list",
				fmt.Sprintf("list endpoint returned %d", resp.StatusCode), nil)
		}
		if err := json.Unmarshal(body, target); err != nil {
			return services.Wrap(services.ErrTransient, "zoom", "list", "parse list response", err)
		}
		return nil
	}

	err := attempt()
	if err != nil && errors.Is(err, services.ErrAuth) {
		c.cache.Invalidate(account)
		err = attempt()
	}
	return err
}
