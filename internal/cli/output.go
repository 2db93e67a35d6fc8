package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/fatih/color"

	"github.com/rollbear/crpcut/internal/harness"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0 // Every row and probe passed
	ExitFailure      = 1 // At least one discrepancy, or invalid catalog content
	ExitCommandError = 2 // Command error (bad flags, unreadable files, etc.)
	ExitPrecondition = 3 // Environment precondition not met
)

// Error codes for CLI responses.
const (
	ErrCodeGeneric      = "E001" // Generic/unknown error
	ErrCodeScanError    = "E002" // Glob expansion error
	ErrCodeNoFiles      = "E003" // No catalog files given
	ErrCodeLoadFailed   = "E004" // Catalog or matrix could not be loaded
	ErrCodeNotFound     = "E005" // Path not found
	ErrCodeStoreFailed  = "E006" // History database error
	ErrCodeInvalidFlag  = "E007" // Flag value out of range
	ErrCodePrecondition = "E201" // Environment precondition failed
	ErrCodeLocked       = "E202" // Work directory used by another run
)

// ExitError represents an error with a specific exit code.
// Use this to return errors with meaningful exit codes from CLI commands.
type ExitError struct {
	Code    int    // Exit code
	Message string // Error message
	Err     error  // Underlying error (optional)
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error.
// Returns ExitFailure (1) if the error is not an ExitError.
func GetExitCode(err error) int {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitFailure
}

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer // Separate writer for diagnostic output (defaults to Writer)
	Verbose   bool
	NoColor   bool
}

// newFormatter builds the formatter for a command from the global options.
func newFormatter(opts *RootOptions, out, errOut io.Writer) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    out,
		ErrWriter: errOut,
		Verbose:   opts.Verbose,
		NoColor:   opts.NoColor,
	}
}

// CLIResponse is the standard JSON response format for CLI output.
type CLIResponse struct {
	Status string    `json:"status"`          // "ok" or "error"
	Data   any       `json:"data,omitempty"`  // success payload
	Error  *CLIError `json:"error,omitempty"` // error details
	RunID  string    `json:"run_id,omitempty"`
}

// CLIError is the error structure for CLI responses.
type CLIError struct {
	Code    string `json:"code"`              // "E001", "E002", etc.
	Message string `json:"message"`           // human-readable message
	Details any    `json:"details,omitempty"` // additional context
}

// Success outputs a successful result in the configured format.
func (f *OutputFormatter) Success(data any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "ok",
			Data:   data,
		})
	}

	fmt.Fprintln(f.Writer, data)
	return nil
}

// Error outputs an error in the configured format.
func (f *OutputFormatter) Error(code, message string, details any) error {
	if f.Format == "json" {
		return json.NewEncoder(f.Writer).Encode(CLIResponse{
			Status: "error",
			Error: &CLIError{
				Code:    code,
				Message: message,
				Details: details,
			},
		})
	}

	fmt.Fprintf(f.Writer, "Error [%s]: %s\n", code, message)
	if f.Verbose && details != nil {
		fmt.Fprintf(f.Writer, "Details: %v\n", details)
	}
	return nil
}

// Report writes a run report: the CLIResponse envelope in JSON mode, the
// console listing otherwise. A report with discrepancies is encoded with
// status "error".
func (f *OutputFormatter) Report(rep *harness.RunReport) error {
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: rep, RunID: rep.ID}
		if !rep.Pass() {
			resp.Status = "error"
			resp.Error = &CLIError{
				Code:    ErrCodeGeneric,
				Message: fmt.Sprintf("%d of %d rows failed", rep.Failed(), rep.Total()),
			}
		}
		return json.NewEncoder(f.Writer).Encode(resp)
	}
	return harness.WriteText(f.Writer, rep, f.Style())
}

// Style returns the pass/fail decoration for text output.
func (f *OutputFormatter) Style() harness.TextStyle {
	if f.NoColor || color.NoColor {
		return harness.PlainStyle
	}
	return harness.TextStyle{
		Pass: color.New(color.FgGreen).SprintFunc(),
		Fail: color.New(color.FgRed, color.Bold).SprintFunc(),
	}
}

// VerboseLog outputs a message only if verbose mode is enabled.
// Uses ErrWriter if set, otherwise falls back to Writer.
func (f *OutputFormatter) VerboseLog(format string, args ...any) {
	if !f.Verbose {
		return
	}
	fmt.Fprintf(f.GetErrWriter(), format+"\n", args...)
}

// GetErrWriter returns the appropriate writer for diagnostic output.
// Returns ErrWriter if set, otherwise Writer.
func (f *OutputFormatter) GetErrWriter() io.Writer {
	if f.ErrWriter != nil {
		return f.ErrWriter
	}
	return f.Writer
}

// commandError reports a command-level failure and returns the matching
// ExitError.
func (f *OutputFormatter) commandError(code, message string, err error) error {
	_ = f.Error(code, fmt.Sprintf("%s: %v", message, err), nil)
	return WrapExitError(ExitCommandError, code+": "+message, err)
}
