package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_ValidCatalog(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "catalog.yaml", testCatalogYAML)
	cmd := NewValidateCommand(&RootOptions{Format: "text", NoColor: true})

	out, _, err := execute(cmd, path)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ 1 catalog file(s) valid, 4 expectations")
}

func TestValidate_GlobAndMatrix(t *testing.T) {
	dir := t.TempDir()
	writeTestFile(t, dir, "catalog/asserts.yaml", testCatalogYAML)
	writeTestFile(t, dir, "catalog/more/death.json", `{"tests": {"death::by_exception::should_fail": {"result": "FAILED", "phase": "running", "logs": [{"violation": "/Unexpectedly caught/"}]}}}`)
	matrixPath := writeTestFile(t, dir, "matrix.yaml", testMatrixYAML)
	cmd := NewValidateCommand(&RootOptions{Format: "text", NoColor: true})

	out, _, err := execute(cmd, filepath.Join(dir, "catalog", "**", "*.{yaml,json}"), "--matrix", matrixPath)
	require.NoError(t, err)
	assert.Contains(t, out, "2 catalog file(s) valid, 5 expectations")
	assert.Contains(t, out, "matrix valid, 2 rows")
}

func TestValidate_SchemaViolation(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "bad.yaml", "tests:\n  x:\n    result: MAYBE\n")
	cmd := NewValidateCommand(&RootOptions{Format: "text", NoColor: true})

	out, _, err := execute(cmd, path)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "✗ Validation failed")
	assert.Contains(t, out, path)
}

func TestValidate_DuplicateAcrossFiles(t *testing.T) {
	dir := t.TempDir()
	a := writeTestFile(t, dir, "a.yaml", "tests:\n  default_success:\n    result: PASSED\n")
	b := writeTestFile(t, dir, "b.yaml", "tests:\n  default_success:\n    result: PASSED\n")
	cmd := NewValidateCommand(&RootOptions{Format: "text", NoColor: true})

	out, _, err := execute(cmd, a, b)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, `duplicate test id "default_success"`)
}

func TestValidate_BadMatrix(t *testing.T) {
	dir := t.TempDir()
	catalogPath := writeTestFile(t, dir, "catalog.yaml", testCatalogYAML)
	matrixPath := writeTestFile(t, dir, "matrix.yaml", testMatrixYAML+"  - {verbosity: loud, blocking: deps, slowness: quick}\n")
	cmd := NewValidateCommand(&RootOptions{Format: "text", NoColor: true})

	out, _, err := execute(cmd, catalogPath, "--matrix", matrixPath)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, matrixPath)
	assert.Contains(t, out, "loud")
}

func TestValidate_GlobWithoutMatches(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text"})

	out, _, err := execute(cmd, filepath.Join(t.TempDir(), "*.yaml"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E002]")
}

func TestValidate_JSON(t *testing.T) {
	path := writeTestFile(t, t.TempDir(), "bad.yaml", "tests:\n  x:\n    result: MAYBE\n")
	cmd := NewValidateCommand(&RootOptions{Format: "json"})

	out, _, err := execute(cmd, path)
	require.Error(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
		Error  *CLIError        `json:"error"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	assert.False(t, resp.Data.Valid)
	require.NotEmpty(t, resp.Data.Issues)
	assert.Equal(t, path, resp.Data.Issues[0].File)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeLoadFailed, resp.Error.Code)
}

func TestValidate_RequiresArgument(t *testing.T) {
	cmd := NewValidateCommand(&RootOptions{Format: "text"})
	_, _, err := execute(cmd)
	require.Error(t, err)
}
