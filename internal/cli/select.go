package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/rollbear/crpcut/internal/catalog"
	"github.com/rollbear/crpcut/internal/harness"
)

// SelectOptions holds flags for the select command.
type SelectOptions struct {
	*RootOptions
	SelectionFlags
	Catalogs []string
	Matrix   string
	Row      int
}

// SelectResult is the JSON payload of the select command.
type SelectResult struct {
	Row         int      `json:"row,omitempty"`
	CommandLine string   `json:"command_line,omitempty"`
	Count       int      `json:"count"`
	IDs         []string `json:"ids"`
}

// NewSelectCommand creates the select command.
func NewSelectCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &SelectOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "select",
		Short: "List the catalog entries a row configuration expects to run",
		Long: `Print the ids of the catalog entries selected by a row configuration,
either given directly with --names/--exclude-tags/--results or taken from
a matrix row with --row.

Examples:
  crpcut-selftest select --catalog catalog.yaml --names asserts --exclude-tags slow
  crpcut-selftest select --catalog catalog.yaml --row 7`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSelect(opts, cmd)
		},
	}

	opts.SelectionFlags.register(cmd)
	cmd.Flags().StringArrayVar(&opts.Catalogs, "catalog", nil, "catalog file or glob (repeatable)")
	cmd.Flags().StringVar(&opts.Matrix, "matrix", "", "matrix file for --row; built-in matrix if empty")
	cmd.Flags().IntVar(&opts.Row, "row", 0, "take the configuration from this 1-based matrix row")
	_ = cmd.MarkFlagRequired("catalog")

	return cmd
}

func runSelect(opts *SelectOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	cat, err := loadCatalog(opts.Catalogs)
	if err != nil {
		return loadFailure(formatter, err)
	}

	var result SelectResult
	var sel catalog.Selection
	if opts.Row > 0 {
		m, err := loadMatrix(opts.Matrix, "")
		if err != nil {
			return loadFailure(formatter, err)
		}
		configs, err := m.Resolve()
		if err != nil {
			return loadFailure(formatter, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Err: err})
		}
		if opts.Row > len(configs) {
			rre := &harness.RowRangeError{Row: opts.Row, Rows: len(configs)}
			_ = formatter.Error(ErrCodeInvalidFlag, rre.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeInvalidFlag+": invalid --row", rre)
		}
		cfg := configs[opts.Row-1]
		sel = cfg.Selection()
		result.Row = cfg.Index
		result.CommandLine = cfg.CommandLine(m.Subject, m.Args)
	} else {
		cfg, err := opts.SelectionFlags.config()
		if err != nil {
			_ = formatter.Error(ErrCodeInvalidFlag, err.Error(), nil)
			return WrapExitError(ExitCommandError, ErrCodeInvalidFlag+": invalid --results", err)
		}
		sel = cfg.Selection()
	}

	selected := catalog.Select(cat, sel)
	result.IDs = selected.IDs()
	result.Count = len(result.IDs)

	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	w := formatter.Writer
	if result.CommandLine != "" {
		fmt.Fprintf(w, "# row %d: %s\n", result.Row, result.CommandLine)
	}
	for _, id := range result.IDs {
		fmt.Fprintln(w, id)
	}
	fmt.Fprintf(w, "%d of %d selected\n", result.Count, cat.Len())
	return nil
}
