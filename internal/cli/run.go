package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rollbear/crpcut/internal/harness"
	"github.com/rollbear/crpcut/internal/logging"
	"github.com/rollbear/crpcut/internal/store"
	"github.com/rollbear/crpcut/internal/subject"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Catalogs         []string
	Matrix           string
	Subject          string
	Database         string
	Rows             []int
	SkipProbes       bool
	SkipPrecondition bool
	WorkDir          string

	// Runner overrides the subject runner (for testing).
	// If nil, the subject runs through /bin/sh in the work directory.
	Runner subject.Runner

	// IDs overrides the run id generator (for testing).
	// If nil, defaults to UUIDv7Generator.
	IDs harness.IDGenerator

	// Clock overrides the wall clock (for testing).
	Clock func() time.Time
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the invocation matrix against the test program",
		Long: `Run the crpcut test program once per matrix row, then once per probe,
and reconcile every XML report with the expectation catalog.

Without --matrix the built-in matrix is used. Rows run one at a time;
all discrepancies of all rows are reported.

Exit codes:
  0 - Every row and probe passed
  1 - At least one discrepancy
  2 - Command error (unreadable catalog or matrix, bad flags, etc.)
  3 - Environment precondition failed (core dumps disabled)

Examples:
  crpcut-selftest run --catalog 'catalog/**/*.yaml'
  crpcut-selftest run --catalog catalog.yaml --subject ./test/testprog --row 3 --row 7
  crpcut-selftest run --catalog catalog.cue --matrix matrix.yaml --db history.db`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelfTest(opts, cmd)
		},
	}

	cmd.Flags().StringArrayVar(&opts.Catalogs, "catalog", nil, "catalog file or glob (repeatable)")
	cmd.Flags().StringVar(&opts.Matrix, "matrix", "", "matrix file (YAML, JSON or CUE); built-in matrix if empty")
	cmd.Flags().StringVar(&opts.Subject, "subject", "", "test program path, overrides the matrix subject")
	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite database to record the run in")
	cmd.Flags().IntSliceVar(&opts.Rows, "row", nil, "run only this 1-based matrix row (repeatable)")
	cmd.Flags().BoolVar(&opts.SkipProbes, "skip-probes", false, "do not run probes")
	cmd.Flags().BoolVar(&opts.SkipPrecondition, "skip-precondition", false, "do not check that core dumps are enabled")
	cmd.Flags().StringVar(&opts.WorkDir, "workdir", ".", "directory the test program runs in")
	_ = cmd.MarkFlagRequired("catalog")

	return cmd
}

func runSelfTest(opts *RunOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
	logger := logging.New(cmd.ErrOrStderr(), logging.Options{Verbose: opts.Verbose, NoColor: opts.NoColor})

	cat, err := loadCatalog(opts.Catalogs)
	if err != nil {
		return loadFailure(formatter, err)
	}
	matrix, err := loadMatrix(opts.Matrix, opts.Subject)
	if err != nil {
		return loadFailure(formatter, err)
	}
	logger.Debug("inputs loaded", "catalog", cat.Len(), "subject", matrix.Subject, "rows", len(matrix.Rows))

	workDir, err := filepath.Abs(opts.WorkDir)
	if err != nil {
		return formatter.commandError(ErrCodeNotFound, "resolving work directory", err)
	}
	if info, err := os.Stat(workDir); err != nil || !info.IsDir() {
		_ = formatter.Error(ErrCodeNotFound, "work directory not found: "+workDir, nil)
		return NewExitError(ExitCommandError, ErrCodeNotFound+": work directory not found: "+workDir)
	}

	unlock, err := lockWorkDir(workDir)
	if err != nil {
		code := ErrCodeGeneric
		if errors.Is(err, errWorkDirLocked) {
			code = ErrCodeLocked
		}
		_ = formatter.Error(code, err.Error(), nil)
		return WrapExitError(ExitCommandError, code+": cannot lock work directory", err)
	}
	defer unlock()

	runner := opts.Runner
	if runner == nil {
		runner = &subject.ShellRunner{Dir: workDir}
	}
	var checks []subject.Precondition
	if !opts.SkipPrecondition {
		checks = append(checks, &subject.CoreDumpCheck{Runner: runner})
	}

	orch, err := harness.New(harness.Config{
		Catalog:       cat,
		Matrix:        matrix,
		Runner:        runner,
		Preconditions: checks,
		WorkDir:       workDir,
		Logger:        logger,
		IDs:           opts.IDs,
		Clock:         opts.Clock,
	})
	if err != nil {
		return formatter.commandError(ErrCodeGeneric, "configuring run", err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rep, err := orch.Run(ctx, harness.RunOptions{Rows: opts.Rows, SkipProbes: opts.SkipProbes})
	if err != nil {
		return runFailure(formatter, err)
	}

	if opts.Database != "" {
		if err := saveRun(ctx, opts.Database, rep, logger); err != nil {
			return formatter.commandError(ErrCodeStoreFailed, "recording run", err)
		}
	}

	if err := formatter.Report(rep); err != nil {
		return err
	}
	if !rep.Pass() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d of %d rows failed", rep.Failed(), rep.Total()))
	}
	return nil
}

// runFailure maps an aborted run to its exit code.
func runFailure(f *OutputFormatter, err error) error {
	var pe *subject.PreconditionError
	if errors.As(err, &pe) {
		if f.Format == "json" {
			_ = f.Error(ErrCodePrecondition, pe.Error(), map[string]string{"remediation": pe.Remediation})
		} else {
			fmt.Fprintln(f.Writer, pe.Remediation)
		}
		return WrapExitError(ExitPrecondition, ErrCodePrecondition+": "+pe.Check, err)
	}
	if errors.Is(err, context.Canceled) {
		_ = f.Error(ErrCodeGeneric, "run interrupted", nil)
		return WrapExitError(ExitFailure, "run interrupted", err)
	}
	var rre *harness.RowRangeError
	if errors.As(err, &rre) {
		_ = f.Error(ErrCodeInvalidFlag, rre.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeInvalidFlag+": invalid --row", err)
	}
	return f.commandError(ErrCodeGeneric, "run aborted", err)
}

func saveRun(ctx context.Context, path string, rep *harness.RunReport, logger *slog.Logger) error {
	st, err := store.Open(path)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Error("error closing database", "error", closeErr)
		}
	}()
	if err := st.SaveRun(ctx, rep); err != nil {
		return err
	}
	logger.Info("run recorded", "run_id", rep.ID, "db", path)
	return nil
}

// commandContext returns the command's context, or Background when the
// command was executed without one.
func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
