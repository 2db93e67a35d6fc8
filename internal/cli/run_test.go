package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbear/crpcut/internal/store"
	"github.com/rollbear/crpcut/internal/subject"
	"github.com/rollbear/crpcut/internal/testutil"
)

func newTestRunOptions(t *testing.T, format string, runner subject.Runner) *RunOptions {
	t.Helper()
	dir := t.TempDir()
	return &RunOptions{
		RootOptions: &RootOptions{Format: format, NoColor: true},
		Catalogs:    []string{writeTestFile(t, dir, "catalog.yaml", testCatalogYAML)},
		Matrix:      writeTestFile(t, dir, "matrix.yaml", testMatrixYAML),
		WorkDir:     t.TempDir(),
		Runner:      runner,
		IDs:         testutil.NewFixedGenerator("run-0001"),
		Clock:       testutil.NewDeterministicClock(testutil.Epoch, 0).Now,
	}
}

func runWith(opts *RunOptions) (string, error) {
	buf := &bytes.Buffer{}
	cmd := &cobra.Command{}
	cmd.SetOut(buf)
	cmd.SetErr(&bytes.Buffer{})
	err := runSelfTest(opts, cmd)
	return buf.String(), err
}

func TestRun_AllRowsPass(t *testing.T) {
	runner := &fakeRunner{coreLimit: "unlimited", exitCode: 1}
	out, err := runWith(newTestRunOptions(t, "text", runner))
	require.NoError(t, err)

	assert.Contains(t, out, "run run-0001 (./testprog, 4 expectations)")
	assert.Contains(t, out, "PASSED!")
	assert.Contains(t, out, "2/2 passed")
	assert.Equal(t, "ulimit -c", runner.calls[0])
	assert.Len(t, runner.calls, 3)
}

func TestRun_Discrepancies(t *testing.T) {
	runner := &fakeRunner{coreLimit: "unlimited", exitCode: 0}
	out, err := runWith(newTestRunOptions(t, "text", runner))
	require.Error(t, err)

	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, err.Error(), "2 of 2 rows failed")
	assert.Contains(t, out, "expected 1 but returned 0")
	assert.Contains(t, out, "0/2 passed")
}

func TestRun_JSON(t *testing.T) {
	runner := &fakeRunner{coreLimit: "unlimited", exitCode: 1}
	out, err := runWith(newTestRunOptions(t, "json", runner))
	require.NoError(t, err)

	var resp struct {
		Status string `json:"status"`
		RunID  string `json:"run_id"`
		Data   struct {
			CatalogSize int `json:"catalog_size"`
			Rows        []struct {
				Index int  `json:"index"`
				Pass  bool `json:"pass"`
			} `json:"rows"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "run-0001", resp.RunID)
	assert.Equal(t, 4, resp.Data.CatalogSize)
	require.Len(t, resp.Data.Rows, 2)
	assert.True(t, resp.Data.Rows[1].Pass)
}

func TestRun_PreconditionFailed(t *testing.T) {
	runner := &fakeRunner{coreLimit: "0", exitCode: 1}
	out, err := runWith(newTestRunOptions(t, "text", runner))
	require.Error(t, err)

	assert.Equal(t, ExitPrecondition, GetExitCode(err))
	assert.Contains(t, out, subject.CoreDumpRemediation)
	assert.Len(t, runner.calls, 1, "no row may run after a failed precondition")
}

func TestRun_PreconditionFailedJSON(t *testing.T) {
	runner := &fakeRunner{coreLimit: "0", exitCode: 1}
	out, err := runWith(newTestRunOptions(t, "json", runner))
	require.Error(t, err)
	assert.Equal(t, ExitPrecondition, GetExitCode(err))

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodePrecondition, resp.Error.Code)
}

func TestRun_SkipPrecondition(t *testing.T) {
	runner := &fakeRunner{coreLimit: "0", exitCode: 1}
	opts := newTestRunOptions(t, "text", runner)
	opts.SkipPrecondition = true

	_, err := runWith(opts)
	require.NoError(t, err)
	assert.NotContains(t, runner.calls, "ulimit -c")
}

func TestRun_RowFilter(t *testing.T) {
	runner := &fakeRunner{coreLimit: "unlimited", exitCode: 1}
	opts := newTestRunOptions(t, "text", runner)
	opts.Rows = []int{2}

	out, err := runWith(opts)
	require.NoError(t, err)
	assert.Contains(t, out, "1/1 passed")
	assert.Contains(t, out, "[ 2]")
}

func TestRun_RowOutOfRange(t *testing.T) {
	opts := newTestRunOptions(t, "text", &fakeRunner{coreLimit: "unlimited", exitCode: 1})
	opts.Rows = []int{5}

	out, err := runWith(opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E007]")
	assert.Contains(t, out, "row 5 out of range (1-2)")
}

func TestRun_WorkDirLocked(t *testing.T) {
	opts := newTestRunOptions(t, "text", &fakeRunner{coreLimit: "unlimited", exitCode: 1})
	unlock, err := lockWorkDir(opts.WorkDir)
	require.NoError(t, err)
	defer unlock()

	out, err := runWith(opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E202]")
}

func TestRun_MissingWorkDir(t *testing.T) {
	opts := newTestRunOptions(t, "text", &fakeRunner{coreLimit: "unlimited", exitCode: 1})
	opts.WorkDir = filepath.Join(opts.WorkDir, "nope")

	out, err := runWith(opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "work directory not found")
}

func TestRun_InvalidCatalog(t *testing.T) {
	opts := newTestRunOptions(t, "text", &fakeRunner{coreLimit: "unlimited", exitCode: 1})
	opts.Catalogs = []string{writeTestFile(t, t.TempDir(), "bad.yaml", "tests:\n  x:\n    result: MAYBE\n")}

	out, err := runWith(opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E004]")
}

func TestRun_MissingCatalog(t *testing.T) {
	opts := newTestRunOptions(t, "text", &fakeRunner{coreLimit: "unlimited", exitCode: 1})
	opts.Catalogs = []string{filepath.Join(t.TempDir(), "missing.yaml")}

	out, err := runWith(opts)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}

func TestRun_SubjectOverride(t *testing.T) {
	runner := &fakeRunner{coreLimit: "unlimited", exitCode: 1}
	opts := newTestRunOptions(t, "text", runner)
	opts.Subject = "/opt/crpcut/testprog"

	_, err := runWith(opts)
	require.NoError(t, err)
	assert.Contains(t, runner.calls[1], "/opt/crpcut/testprog -v")
}

func TestRun_RecordsHistory(t *testing.T) {
	opts := newTestRunOptions(t, "text", &fakeRunner{coreLimit: "unlimited", exitCode: 0})
	opts.Database = filepath.Join(t.TempDir(), "history.db")

	_, err := runWith(opts)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	st, err := store.Open(opts.Database)
	require.NoError(t, err)
	defer st.Close()

	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-0001", runs[0].ID)
	assert.Equal(t, 2, runs[0].Total)
	assert.Equal(t, 2, runs[0].Failed)
	assert.False(t, runs[0].Pass)
}

func TestRunCommand_RequiresCatalog(t *testing.T) {
	cmd := NewRunCommand(&RootOptions{Format: "text"})
	_, _, err := execute(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "required flag")
	assert.Contains(t, err.Error(), "catalog")
}
