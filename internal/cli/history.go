package cli

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/rollbear/crpcut/internal/harness"
	"github.com/rollbear/crpcut/internal/store"
)

// HistoryOptions holds flags for the history command.
type HistoryOptions struct {
	*RootOptions
	Database string
	RunID    string
	Test     string
	Limit    int
}

// NewHistoryCommand creates the history command.
func NewHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &HistoryOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Query recorded runs",
		Long: `Query the run history written by "run --db".

Without --run or --test, lists the most recent runs, newest first.

Examples:
  crpcut-selftest history --db history.db
  crpcut-selftest history --db history.db --run 01890a5d-ac96-774b-bcce-b302099a8057
  crpcut-selftest history --db history.db --test asserts::should_fail_on_assert_eq`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.RunID, "run", "", "show the full report of this run")
	cmd.Flags().StringVar(&opts.Test, "test", "", "show every discrepancy recorded for this test")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "number of runs to list (0 = all)")
	_ = cmd.MarkFlagRequired("db")
	cmd.MarkFlagsMutuallyExclusive("run", "test")

	return cmd
}

func runHistory(opts *HistoryOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	ctx := commandContext(cmd)

	// Open would create an empty database; a history query must not.
	if _, err := os.Stat(opts.Database); err != nil {
		_ = formatter.Error(ErrCodeNotFound, "database not found: "+opts.Database, nil)
		return WrapExitError(ExitCommandError, ErrCodeNotFound+": database not found", err)
	}
	st, err := store.Open(opts.Database)
	if err != nil {
		return formatter.commandError(ErrCodeStoreFailed, "opening database", err)
	}
	defer st.Close()

	switch {
	case opts.RunID != "":
		rep, err := st.ReadRun(ctx, opts.RunID)
		if errors.Is(err, store.ErrRunNotFound) {
			_ = formatter.Error(ErrCodeNotFound, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeNotFound+": run not found", err)
		}
		if err != nil {
			return formatter.commandError(ErrCodeStoreFailed, "reading run", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(rep)
		}
		return harness.WriteText(formatter.Writer, rep, formatter.Style())

	case opts.Test != "":
		hist, err := st.TestHistory(ctx, opts.Test)
		if err != nil {
			return formatter.commandError(ErrCodeStoreFailed, "reading test history", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(hist)
		}
		if len(hist) == 0 {
			fmt.Fprintf(formatter.Writer, "no discrepancies recorded for %s\n", opts.Test)
			return nil
		}
		for _, h := range hist {
			fmt.Fprintf(formatter.Writer, "%s  %s  [%2d] %s\n    %s\n",
				h.StartedAt.Format(time.RFC3339), h.RunID, h.Row, h.Params, h.Message)
		}
		return nil

	default:
		runs, err := st.ListRuns(ctx, opts.Limit)
		if err != nil {
			return formatter.commandError(ErrCodeStoreFailed, "listing runs", err)
		}
		if formatter.Format == "json" {
			return formatter.Success(runs)
		}
		style := formatter.Style()
		for _, r := range runs {
			mark := style.Pass("✓")
			if !r.Pass {
				mark = style.Fail("✗")
			}
			fmt.Fprintf(formatter.Writer, "%s %s  %s  %s  %d/%d passed\n",
				mark, r.StartedAt.Format(time.RFC3339), r.ID, r.Subject, r.Total-r.Failed, r.Total)
		}
		return nil
	}
}
