package preflight

import (
	"context"
	"fmt"

	"reel/internal/config"
)

// Result reports the outcome of a single preflight check.
type Result struct {
	Name   string
	Passed bool
	Detail string
}

// RunAll executes all applicable preflight checks for the given config.
// Checks are only run when the corresponding feature is enabled.
func RunAll(ctx context.Context, cfg *config.Config) []Result {
	if cfg == nil {
		return nil
	}

	results := []Result{
		CheckDirectoryAccess("Staging directory", cfg.Paths.StagingDir),
		CheckDirectoryAccess("Library directory", cfg.Paths.LibraryDir),
		CheckDirectoryAccess("Log directory", cfg.Paths.LogDir),
		CheckDiskSpace("Staging disk space", cfg.Paths.StagingDir),
	}

	for _, status := range CheckSystemDeps(cfg) {
		detail := status.Detail
		if status.Available {
			detail = status.Command
		}
		results = append(results, Result{Name: status.Name, Passed: status.Available, Detail: detail})
	}

	for _, account := range cfg.EnabledAccounts() {
		results = append(results, CheckAccountAuth(ctx, cfg, account.Name))
	}

	if cfg.Stages.Transcribe {
		results = append(results, checkAPIKey("Speech API", cfg.Transcribe.APIKey))
	}
	if cfg.Stages.Translate {
		results = append(results, CheckTranslationLLM(ctx, cfg))
	}
	if cfg.Publish.PortalURL != "" {
		results = append(results, CheckPortal(ctx, cfg.Publish.PortalURL, cfg.Publish.PortalAPIKey))
	}

	return results
}

// AllPassed reports whether every result succeeded.
func AllPassed(results []Result) bool {
	for _, result := range results {
		if !result.Passed {
			return false
		}
	}
	return true
}

// Failures returns only the failing results.
func Failures(results []Result) []Result {
	var failed []Result
	for _, result := range results {
		if !result.Passed {
			failed = append(failed, result)
		}
	}
	return failed
}

func checkAPIKey(name, key string) Result {
	if key == "" {
		return Result{Name: name, Detail: "API key missing"}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("API key configured (%d chars)", len(key))}
}
