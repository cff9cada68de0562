package preflight

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/sys/unix"

	"reel/internal/config"
	"reel/internal/deps"
	"reel/internal/services/llm"
	"reel/internal/services/zoom"
)

// Minimum free space on the staging volume before acquisition is likely to
// fail mid-download.
const minStagingBytes = 2 << 30

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckDiskSpace verifies the volume behind path has room for staging work.
func CheckDiskSpace(name, path string) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := uint64(stat.Bavail) * uint64(stat.Bsize)
	detail := fmt.Sprintf("%.1f GiB free", float64(free)/float64(1<<30))
	if free < minStagingBytes {
		return Result{Name: name, Detail: detail + " (below 2 GiB minimum)"}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external binaries the pipeline shells out
// to. Both the daemon and the CLI status command use this to avoid
// duplicating the requirements list.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	ffmpeg := cfg.FFmpegBinary()
	if status := deps.ResolveFFmpeg(ffmpeg); status.Available {
		ffmpeg = status.Command
	}
	ffprobe := cfg.FFprobeBinary()
	if status := deps.ResolveFFprobe(ffprobe); status.Available {
		ffprobe = status.Command
	}
	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "FFmpeg",
			Command:     ffmpeg,
			Description: "Required for transcoding",
		},
		{
			Name:        "FFprobe",
			Command:     ffprobe,
			Description: "Required for media inspection",
		},
	})
}

// CheckAccountAuth verifies a platform account's server-to-server
// credentials by requesting a token. One attempt, short timeout.
func CheckAccountAuth(ctx context.Context, cfg *config.Config, account string) Result {
	name := fmt.Sprintf("Account %q", account)

	checkCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	source := zoom.NewTokenSource(cfg)
	token, err := source.Refresh(checkCtx, account)
	if err != nil {
		return Result{Name: name, Detail: summarizeNetworkError(err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("token valid until %s", token.ExpiresAt.Format(time.Kitchen))}
}

// CheckTranslationLLM verifies that the translation API is reachable and
// the key is valid. It uses a 30-second timeout and a single attempt.
func CheckTranslationLLM(ctx context.Context, cfg *config.Config) Result {
	const name = "Translation LLM"
	if cfg.Translate.APIKey == "" {
		return Result{Name: name, Detail: "API key missing"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	client := llm.NewClient(llm.Config{
		APIKey:  cfg.Translate.APIKey,
		BaseURL: cfg.Translate.BaseURL,
		Model:   cfg.Translate.Model,
	}, llm.WithRetryMaxAttempts(1))

	if err := client.HealthCheck(checkCtx); err != nil {
		return Result{Name: name, Detail: summarizeNetworkError(err)}
	}
	return Result{Name: name, Passed: true, Detail: "API reachable"}
}

// CheckPortal verifies media portal connectivity and authentication.
func CheckPortal(ctx context.Context, baseURL, apiKey string) Result {
	const name = "Portal"

	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return Result{Name: name, Detail: "missing url"}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(checkCtx, http.MethodGet, base+"/system/ping", nil)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	if key := strings.TrimSpace(apiKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%v)", err)}
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode < 300:
		return Result{Name: name, Passed: true, Detail: "Reachable"}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return Result{Name: name, Detail: "auth failed (invalid api key)"}
	default:
		return Result{Name: name, Detail: fmt.Sprintf("check failed (%d)", resp.StatusCode)}
	}
}

// summarizeNetworkError produces a human-readable summary for check failures.
func summarizeNetworkError(err error) string {
	if errors.Is(err, context.DeadlineExceeded) {
		return "check timed out (service unresponsive)"
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return "check timed out (service unreachable)"
	}
	return err.Error()
}
