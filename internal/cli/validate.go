package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rollbear/crpcut/internal/catalog"
	"github.com/rollbear/crpcut/internal/harness"
)

// ValidationIssue is one problem found in an input file.
type ValidationIssue struct {
	File    string `json:"file"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid   bool              `json:"valid"`
	Files   int               `json:"files"`
	Entries int               `json:"entries"`
	Rows    int               `json:"rows,omitempty"`
	Issues  []ValidationIssue `json:"issues,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	Matrix string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <catalog>...",
		Short: "Validate catalog files without running anything",
		Long: `Validate expectation catalogs and, optionally, a matrix file.

YAML and JSON catalogs are checked against the catalog JSON Schema, then
every file is loaded: patterns must compile, results and phases must be
consistent, and ids must be unique across all files.

Examples:
  crpcut-selftest validate 'catalog/**/*.yaml'
  crpcut-selftest validate catalog.cue --matrix matrix.yaml`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Matrix, "matrix", "", "also validate this matrix file")

	return cmd
}

func runValidate(opts *ValidateOptions, patterns []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	paths, err := catalog.ExpandPaths(patterns)
	if err != nil {
		_ = formatter.Error(ErrCodeScanError, err.Error(), nil)
		return WrapExitError(ExitCommandError, ErrCodeScanError+": "+err.Error(), err)
	}

	result := ValidationResult{Files: len(paths)}
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		result.Issues = append(result.Issues, validateCatalogFile(path)...)
	}

	if len(result.Issues) == 0 {
		merged, err := catalog.LoadFiles(paths)
		if err != nil {
			result.Issues = append(result.Issues, ValidationIssue{Message: err.Error()})
		} else {
			result.Entries = merged.Len()
		}
	}

	if opts.Matrix != "" {
		formatter.VerboseLog("Validating matrix %s", opts.Matrix)
		rows, issue := validateMatrixFile(opts.Matrix)
		if issue != nil {
			result.Issues = append(result.Issues, *issue)
		}
		result.Rows = rows
	}

	result.Valid = len(result.Issues) == 0
	if result.Valid {
		return outputValidateSuccess(formatter, result)
	}
	return outputValidationIssues(formatter, result)
}

// validateCatalogFile runs the schema check (YAML and JSON only) and then
// the full load of one file.
func validateCatalogFile(path string) []ValidationIssue {
	data, err := os.ReadFile(path)
	if err != nil {
		return []ValidationIssue{{File: path, Message: err.Error()}}
	}

	if strings.ToLower(filepath.Ext(path)) != ".cue" {
		violations, err := catalog.ValidateSchema(data)
		if err != nil {
			return []ValidationIssue{{File: path, Message: err.Error()}}
		}
		if len(violations) > 0 {
			issues := make([]ValidationIssue, len(violations))
			for i, v := range violations {
				issues[i] = ValidationIssue{File: path, Message: v.String()}
			}
			return issues
		}
	}

	if _, err := catalog.LoadFile(path); err != nil {
		return []ValidationIssue{{File: path, Message: err.Error()}}
	}
	return nil
}

func validateMatrixFile(path string) (int, *ValidationIssue) {
	m, err := harness.LoadMatrix(path)
	if err != nil {
		return 0, &ValidationIssue{File: path, Message: err.Error()}
	}
	configs, err := m.Resolve()
	if err != nil {
		return 0, &ValidationIssue{File: path, Message: err.Error()}
	}
	return len(configs), nil
}

func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		return formatter.Success(result)
	}

	style := formatter.Style()
	fmt.Fprintf(formatter.Writer, "%s %d catalog file(s) valid, %d expectations\n",
		style.Pass("✓"), result.Files, result.Entries)
	if result.Rows > 0 {
		fmt.Fprintf(formatter.Writer, "%s matrix valid, %d rows\n", style.Pass("✓"), result.Rows)
	}
	return nil
}

func outputValidationIssues(formatter *OutputFormatter, result ValidationResult) error {
	if formatter.Format == "json" {
		response := CLIResponse{
			Status: "error",
			Data:   result,
			Error: &CLIError{
				Code:    ErrCodeLoadFailed,
				Message: result.Issues[0].Message,
			},
		}

		encoder := json.NewEncoder(formatter.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(response); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(result.Issues)))
	}

	fmt.Fprintf(formatter.Writer, "%s Validation failed\n\n", formatter.Style().Fail("✗"))
	for _, issue := range result.Issues {
		if issue.File != "" {
			fmt.Fprintf(formatter.Writer, "%s\n", issue.File)
		}
		fmt.Fprintf(formatter.Writer, "  %s\n\n", issue.Message)
	}

	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d issue(s)", len(result.Issues)))
}
