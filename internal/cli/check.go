package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/rollbear/crpcut/internal/catalog"
	"github.com/rollbear/crpcut/internal/harness"
	"github.com/rollbear/crpcut/internal/report"
)

// SelectionFlags describe one row configuration on the command line.
type SelectionFlags struct {
	Names       []string
	ExcludeTags []string
	Results     string
}

func (s *SelectionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVar(&s.Names, "names", nil, "test name prefix (repeatable); none selects every test")
	cmd.Flags().StringArrayVar(&s.ExcludeTags, "exclude-tags", nil, "drop tests carrying this tag (repeatable)")
	cmd.Flags().StringVar(&s.Results, "results", "ALL", "expected results the row reports (ALL|FAILED|PASSED)")
}

func (s *SelectionFlags) config() (harness.InvocationConfig, error) {
	filter, err := catalog.ParseResultFilter(s.Results)
	if err != nil {
		return harness.InvocationConfig{}, err
	}
	return harness.InvocationConfig{
		Index:        1,
		NamePrefixes: s.Names,
		ExcludedTags: s.ExcludeTags,
		Results:      filter,
	}, nil
}

// CheckOptions holds flags for the check command.
type CheckOptions struct {
	*RootOptions
	SelectionFlags
	Catalogs []string
	ExitCode int
}

// NewCheckCommand creates the check command.
func NewCheckCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &CheckOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "check <report.xml>",
		Short: "Reconcile a saved XML report with the catalog",
		Long: `Reconcile one saved XML report against the catalog entries a row
configuration selects, without running the test program. Use "-" to read
the report from stdin.

Artifacts predicted by the catalog are removed from disk, exactly as in a
live run. Without --exit-code the report's failed count is assumed.

Examples:
  crpcut-selftest check report.xml --catalog catalog.yaml --names asserts --results FAILED
  ./testprog --xml=yes asserts | crpcut-selftest check - --catalog catalog.yaml --names asserts --exit-code 5`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("exit-code") {
				opts.ExitCode = -1
			}
			return runCheck(opts, args[0], cmd)
		},
	}

	opts.SelectionFlags.register(cmd)
	cmd.Flags().StringArrayVar(&opts.Catalogs, "catalog", nil, "catalog file or glob (repeatable)")
	cmd.Flags().IntVar(&opts.ExitCode, "exit-code", 0, "exit code the test program returned")
	_ = cmd.MarkFlagRequired("catalog")

	return cmd
}

func runCheck(opts *CheckOptions, reportPath string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cfg, err := opts.SelectionFlags.config()
	if err != nil {
		_ = formatter.Error(ErrCodeInvalidFlag, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeInvalidFlag+": invalid --results", err)
	}
	cat, err := loadCatalog(opts.Catalogs)
	if err != nil {
		return loadFailure(formatter, err)
	}

	data, err := readReport(reportPath, cmd.InOrStdin())
	if err != nil {
		return formatter.commandError(ErrCodeNotFound, "reading report", err)
	}

	selected := catalog.Select(cat, cfg.Selection())
	row := harness.NewRowResult(cfg.Index, cfg.Params(), "")
	row.Selected = selected.Len()

	parsed, err := report.ParseBytes(data)
	if err != nil {
		row.Add(&harness.Discrepancy{Kind: harness.KindStructural, Message: err.Error()})
	} else {
		exitCode := opts.ExitCode
		if exitCode < 0 {
			exitCode = parsed.Stats.Failed
		}
		formatter.VerboseLog("%d tests in report, %d selected, exit code %d", len(parsed.Records), row.Selected, exitCode)
		harness.CheckReport(row, selected, parsed, exitCode)
	}

	rep := &harness.RunReport{
		ID:          "check",
		Subject:     reportPath,
		CatalogSize: cat.Len(),
		Rows:        []harness.RowResult{*row},
	}
	if err := formatter.Report(rep); err != nil {
		return err
	}
	if !rep.Pass() {
		return NewExitError(ExitFailure, fmt.Sprintf("%d discrepancies", len(row.Discrepancies)))
	}
	return nil
}

func readReport(path string, stdin io.Reader) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(path)
}
