package cli

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/rollbear/crpcut/internal/catalog"
	"github.com/rollbear/crpcut/internal/harness"
)

// LoadError is an input loading failure with its CLI error code.
type LoadError struct {
	Code    string
	Message string
	Err     error
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

// loadCatalog expands patterns and merges every catalog file they name.
func loadCatalog(patterns []string) (*catalog.Catalog, error) {
	if len(patterns) == 0 {
		return nil, &LoadError{Code: ErrCodeNoFiles, Message: "no catalog files given (use --catalog)"}
	}
	if _, err := catalog.ExpandPaths(patterns); err != nil {
		return nil, &LoadError{Code: ErrCodeScanError, Message: err.Error(), Err: err}
	}

	cat, err := catalog.LoadFiles(patterns)
	if err != nil {
		code := ErrCodeLoadFailed
		if errors.Is(err, fs.ErrNotExist) || strings.Contains(err.Error(), "no such file") {
			code = ErrCodeNotFound
		}
		return nil, &LoadError{Code: code, Message: err.Error(), Err: err}
	}
	return cat, nil
}

// loadMatrix loads the matrix at path, or the built-in matrix when path is
// empty. A non-empty subject replaces the matrix subject.
func loadMatrix(path, subjectPath string) (*harness.Matrix, error) {
	m := harness.DefaultMatrix()
	if path != "" {
		var err error
		m, err = harness.LoadMatrix(path)
		if err != nil {
			return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Err: err}
		}
	}
	if subjectPath != "" {
		m.Subject = subjectPath
	}
	if err := m.Validate(); err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: err.Error(), Err: err}
	}
	return m, nil
}

// loadFailure reports a LoadError (or any other error) as a command error.
func loadFailure(f *OutputFormatter, err error) error {
	var le *LoadError
	if errors.As(err, &le) {
		_ = f.Error(le.Code, le.Message, nil)
		return WrapExitError(ExitCommandError, le.Code+": "+le.Message, le.Err)
	}
	return f.commandError(ErrCodeGeneric, "loading inputs", err)
}
