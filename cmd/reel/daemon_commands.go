package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"reel/internal/daemonctl"
	"reel/internal/ipc"
	"reel/internal/preflight"
)

func newDaemonCommands(ctx *commandContext) []*cobra.Command {
	startCmd := &cobra.Command{
		Use:   "start",
		Short: "Start the reel daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			exe, err := daemonExecutable()
			if err != nil {
				return err
			}

			result, err := daemonctl.EnsureStarted(
				ctx.socketPath(),
				exe,
				daemonctl.LaunchOptions{ConfigPath: ctx.configPath()},
				10*time.Second,
			)
			if err != nil {
				return err
			}

			switch result.State {
			case daemonctl.StartStateStarted:
				fmt.Fprintf(stdout, "Daemon started (pid %d)\n", result.PID)
			case daemonctl.StartStateAlreadyRunning:
				fmt.Fprintln(stdout, "Daemon already running")
			}
			return nil
		},
	}

	stopCmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop the reel daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			result, err := daemonctl.StopAndTerminate(ctx.socketPath(), ctx.configValue(), 5*time.Second)
			if errors.Is(err, daemonctl.ErrDaemonNotRunning) {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			if err != nil {
				return err
			}
			if result.ForcedKill && result.PID > 0 {
				fmt.Fprintf(stdout, "Daemon did not exit cleanly; killed process %d\n", result.PID)
				return nil
			}
			fmt.Fprintln(stdout, "Daemon stopped")
			return nil
		},
	}

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show daemon, queue, and environment status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStatusCommand(ctx, cmd)
		},
	}

	syncCmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one intake pass against every enabled account",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Sync()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				fmt.Fprintf(stdout, "Synced %d account(s): %d discovered, %d skipped, %d reconsidered\n",
					resp.Accounts, resp.Discovered, resp.Skipped, resp.Reconsidered)
				for _, errMsg := range resp.Errors {
					fmt.Fprintf(stdout, "  warning: %s\n", errMsg)
				}
				return nil
			})
		},
	}

	processCmd := &cobra.Command{
		Use:   "process",
		Short: "Request an immediate queue pass",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				if _, err := client.Process(); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Queue pass requested")
				return nil
			})
		},
	}

	return []*cobra.Command{startCmd, stopCmd, statusCmd, syncCmd, processCmd}
}

func runStatusCommand(ctx *commandContext, cmd *cobra.Command) error {
	cfg := ctx.configValue()
	statusResp, err := daemonctl.BuildStatusSnapshot(cmd.Context(), ctx.socketPath(), cfg)
	if err != nil {
		return err
	}

	stdout := cmd.OutOrStdout()
	colorize := shouldColorize(stdout)

	for _, line := range renderSectionHeader("Daemon", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if statusResp.Running {
		fmt.Fprintln(stdout, renderStatusLine("Reel", statusOK, fmt.Sprintf("Running (pid %d)", statusResp.PID), colorize))
		fmt.Fprintln(stdout, renderStatusLine("In flight", statusInfo, fmt.Sprintf("%d recording(s)", statusResp.InFlight), colorize))
		if statusResp.LastError != "" {
			fmt.Fprintln(stdout, renderStatusLine("Last error", statusWarn, statusResp.LastError, colorize))
		}
	} else {
		fmt.Fprintln(stdout, renderStatusLine("Reel", statusWarn, "Not running (run `reel start`)", colorize))
	}
	fmt.Fprintln(stdout)

	for _, line := range renderSectionHeader("Queue", colorize) {
		fmt.Fprintln(stdout, line)
	}
	if rows := buildQueueStatusRows(statusResp.QueueStats); len(rows) == 0 {
		fmt.Fprintln(stdout, statusIndent+"Queue is empty")
	} else {
		fmt.Fprintln(stdout, renderTable([]string{"Status", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	}
	fmt.Fprintln(stdout)

	if len(statusResp.StageHealth) > 0 {
		for _, line := range renderSectionHeader("Stages", colorize) {
			fmt.Fprintln(stdout, line)
		}
		for _, health := range statusResp.StageHealth {
			kind := statusOK
			if !health.Ready {
				kind = statusError
			}
			fmt.Fprintln(stdout, renderStatusLine(health.Name, kind, health.Detail, colorize))
		}
		fmt.Fprintln(stdout)
	}

	for _, line := range renderSectionHeader("Environment", colorize) {
		fmt.Fprintln(stdout, line)
	}
	for _, check := range statusChecks(ctx, statusResp) {
		kind := statusOK
		if !check.Passed {
			kind = statusError
		}
		fmt.Fprintln(stdout, renderStatusLine(check.Name, kind, check.Detail, colorize))
	}
	return nil
}

// statusChecks fetches preflight results from the daemon when it is online,
// otherwise runs the checks locally.
func statusChecks(ctx *commandContext, statusResp *ipc.StatusResponse) []ipc.PreflightCheck {
	if statusResp.Running {
		var checks []ipc.PreflightCheck
		if err := ctx.withClient(func(client *ipc.Client) error {
			resp, err := client.Preflight()
			if err != nil {
				return err
			}
			checks = resp.Checks
			return nil
		}); err == nil {
			return checks
		}
	}

	cfg := ctx.configValue()
	if cfg == nil {
		return nil
	}
	results := preflight.RunAll(context.Background(), cfg)
	checks := make([]ipc.PreflightCheck, 0, len(results))
	for _, result := range results {
		checks = append(checks, ipc.PreflightCheck{Name: result.Name, Passed: result.Passed, Detail: result.Detail})
	}
	return checks
}

func buildQueueStatusRows(stats map[string]int) [][]string {
	if len(stats) == 0 {
		return nil
	}
	names := make([]string, 0, len(stats))
	for name, count := range stats {
		if count == 0 {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, []string{name, fmt.Sprintf("%d", stats[name])})
	}
	return rows
}

func daemonExecutable() (string, error) {
	self, err := os.Executable()
	if err == nil {
		candidate := filepath.Join(filepath.Dir(self), "reeld")
		if info, statErr := os.Stat(candidate); statErr == nil && !info.IsDir() {
			return candidate, nil
		}
	}
	path, err := exec.LookPath("reeld")
	if err != nil {
		return "", fmt.Errorf("locate reeld binary: %w", err)
	}
	return path, nil
}
