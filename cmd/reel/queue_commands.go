package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"reel/internal/ipc"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the recording queue",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueShowCommand(ctx))
	queueCmd.AddCommand(newQueueRetryCommand(ctx))
	queueCmd.AddCommand(newQueueReconsiderCommand(ctx))
	queueCmd.AddCommand(newQueueRemoveCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	queueCmd.AddCommand(newQueueResetCommand(ctx))
	queueCmd.AddCommand(newQueueHealthCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var listStatuses []string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queued recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueList(listStatuses)
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				if len(resp.Recordings) == 0 {
					fmt.Fprintln(stdout, "Queue is empty")
					return nil
				}
				rows := make([][]string, 0, len(resp.Recordings))
				for _, rec := range resp.Recordings {
					rows = append(rows, []string{
						strconv.FormatInt(rec.ID, 10),
						rec.Account,
						truncate(rec.Title, 40),
						rec.Status,
						rec.UpdatedAt,
						recordingDetail(rec),
					})
				}
				table := renderTable(
					[]string{"ID", "Account", "Title", "Status", "Updated", "Detail"},
					rows,
					[]columnAlignment{alignRight, alignLeft, alignLeft, alignLeft, alignLeft, alignLeft},
				)
				fmt.Fprintln(stdout, table)
				return nil
			})
		},
	}
	cmd.Flags().StringSliceVar(&listStatuses, "status", nil, "Filter by status (repeatable)")
	return cmd
}

func newQueueShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show one recording in detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueDescribe(ids[0])
				if err != nil {
					return err
				}
				printRecording(cmd, resp.Recording)
				return nil
			})
		},
	}
}

func newQueueRetryCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "retry [id...]",
		Short: "Retry failed recordings (all failed when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRetry(ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Retried %d recording(s)\n", resp.Updated)
				return nil
			})
		},
	}
}

func newQueueReconsiderCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconsider [id...]",
		Short: "Return skipped recordings to intake (all skipped when no ids are given)",
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueReconsider(ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reconsidered %d recording(s)\n", resp.Updated)
				return nil
			})
		},
	}
}

func newQueueRemoveCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <id...>",
		Short: "Remove recordings from the queue",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids, err := parsePositiveIDs(args)
			if err != nil {
				return err
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueRemove(ids)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d recording(s)\n", resp.Removed)
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	var clearFailed bool
	var clearPublished bool

	cmd := &cobra.Command{
		Use:   "clear",
		Short: "Clear queued recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			if clearFailed && clearPublished {
				return fmt.Errorf("--failed and --published are mutually exclusive")
			}
			scope := ipc.ClearScopeAll
			if clearFailed {
				scope = ipc.ClearScopeFailed
			}
			if clearPublished {
				scope = ipc.ClearScopePublished
			}
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueClear(scope)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %d recording(s)\n", resp.Removed)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&clearFailed, "failed", false, "Clear only failed recordings")
	cmd.Flags().BoolVar(&clearPublished, "published", false, "Clear only published and retired recordings")
	return cmd
}

func newQueueResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Roll interrupted recordings back to their last completed state",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.QueueReset()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Reset %d recording(s)\n", resp.Updated)
				return nil
			})
		},
	}
}

func newQueueHealthCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Show queue and database diagnostics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				health, err := client.QueueHealth()
				if err != nil {
					return err
				}
				stdout := cmd.OutOrStdout()
				rows := [][]string{
					{"Total", strconv.Itoa(health.Total)},
					{"Initialized", strconv.Itoa(health.Initialized)},
					{"Processing", strconv.Itoa(health.Processing)},
					{"Failed", strconv.Itoa(health.Failed)},
					{"Needs review", strconv.Itoa(health.Review)},
					{"Published", strconv.Itoa(health.Published)},
					{"Skipped", strconv.Itoa(health.Skipped)},
				}
				fmt.Fprintln(stdout, renderTable([]string{"Metric", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))

				db, err := client.DatabaseHealth()
				if err != nil {
					return err
				}
				colorize := shouldColorize(stdout)
				fmt.Fprintln(stdout)
				fmt.Fprintln(stdout, renderStatusLine("Database", boolKind(db.DatabaseExists && db.DatabaseReadable), db.DBPath, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Schema", boolKind(db.TableExists && len(db.MissingColumns) == 0), db.SchemaVersion, colorize))
				fmt.Fprintln(stdout, renderStatusLine("Integrity", boolKind(db.IntegrityCheck), "", colorize))
				if db.Error != "" {
					fmt.Fprintln(stdout, renderStatusLine("Error", statusError, db.Error, colorize))
				}
				return nil
			})
		},
	}
}

func boolKind(ok bool) statusKind {
	if ok {
		return statusOK
	}
	return statusError
}

func printRecording(cmd *cobra.Command, rec ipc.RecordingSummary) {
	stdout := cmd.OutOrStdout()
	fmt.Fprintf(stdout, "Recording %d (%s)\n", rec.ID, rec.UID)
	fmt.Fprintf(stdout, "  Title:    %s\n", rec.Title)
	fmt.Fprintf(stdout, "  Account:  %s\n", rec.Account)
	fmt.Fprintf(stdout, "  Source:   %s\n", rec.SourceID)
	fmt.Fprintf(stdout, "  Status:   %s\n", rec.Status)
	if rec.RecordedAt != "" {
		fmt.Fprintf(stdout, "  Recorded: %s (%s)\n", rec.RecordedAt, humanDuration(rec.DurationSeconds))
	}
	if rec.SizeBytes > 0 {
		fmt.Fprintf(stdout, "  Size:     %s\n", humanSize(rec.SizeBytes))
	}
	if detail := recordingDetail(rec); detail != "" {
		fmt.Fprintf(stdout, "  Detail:   %s\n", detail)
	}
	if len(rec.Stages) > 0 {
		fmt.Fprintln(stdout, "  Stages:")
		for _, name := range []string{"acquire", "transcode", "transcribe", "translate", "publish"} {
			info, ok := rec.Stages[name]
			if !ok {
				continue
			}
			line := fmt.Sprintf("    %-10s %s", name, info.Status)
			if info.RetryCount > 0 {
				line += fmt.Sprintf(" (retries: %d)", info.RetryCount)
			}
			if info.FailedReason != "" {
				line += " - " + info.FailedReason
			}
			fmt.Fprintln(stdout, line)
		}
	}
}

func recordingDetail(rec ipc.RecordingSummary) string {
	switch {
	case rec.NeedsReview && rec.ReviewReason != "":
		return "review: " + rec.ReviewReason
	case rec.ErrorMessage != "":
		return rec.ErrorMessage
	case rec.SkipReason != "":
		return "skipped: " + rec.SkipReason
	case rec.ProgressMessage != "":
		return rec.ProgressMessage
	case rec.ProgressStage != "":
		return rec.ProgressStage
	default:
		return ""
	}
}

func parsePositiveIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, arg := range args {
		id, err := strconv.ParseInt(strings.TrimSpace(arg), 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("invalid recording id %q", arg)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func truncate(value string, max int) string {
	if max <= 3 || len(value) <= max {
		return value
	}
	return value[:max-3] + "..."
}

func humanSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(bytes)/float64(div), "KMGTPE"[exp])
}

func humanDuration(seconds int) string {
	if seconds <= 0 {
		return "unknown duration"
	}
	minutes := seconds / 60
	if minutes < 60 {
		return fmt.Sprintf("%dm", minutes)
	}
	return fmt.Sprintf("%dh%02dm", minutes/60, minutes%60)
}
