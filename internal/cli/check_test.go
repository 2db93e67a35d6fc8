package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type checkFixture struct {
	catalog string
	report  string
}

func newCheckFixture(t *testing.T, report []byte) checkFixture {
	t.Helper()
	dir := t.TempDir()
	return checkFixture{
		catalog: writeTestFile(t, dir, "catalog.yaml", testCatalogYAML),
		report:  writeTestFile(t, dir, "report.xml", string(report)),
	}
}

func TestCheck_ReportMatchesCatalog(t *testing.T) {
	f := newCheckFixture(t, xmlReport(1, assertEqFailedXML))
	cmd := NewCheckCommand(&RootOptions{Format: "text", NoColor: true})

	out, _, err := execute(cmd, f.report, "--catalog", f.catalog, "--names", "asserts", "--exclude-tags", "slow", "--results", "FAILED")
	require.NoError(t, err)
	assert.Contains(t, out, "PASSED!")
	assert.Contains(t, out, "1/1 passed")
}

func TestCheck_ExitCodeFlag(t *testing.T) {
	f := newCheckFixture(t, xmlReport(1, assertEqFailedXML))
	cmd := NewCheckCommand(&RootOptions{Format: "text", NoColor: true})

	out, _, err := execute(cmd, f.report, "--catalog", f.catalog, "--names", "asserts", "--exclude-tags", "slow", "--results", "FAILED", "--exit-code", "0")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "expected 1 but returned 0")
}

func TestCheck_ReportsEveryDiscrepancy(t *testing.T) {
	// The slow test is selected but does not run; the passed test is not
	// selected under FAILED but shows up.
	f := newCheckFixture(t, xmlReport(1, assertEqFailedXML, assertEqPassedXML))
	cmd := NewCheckCommand(&RootOptions{Format: "text", NoColor: true})

	out, _, err := execute(cmd, f.report, "--catalog", f.catalog, "--names", "asserts", "--results", "FAILED")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "expected tests did not run: {asserts::should_fail_slowly}")
	assert.Contains(t, out, "unexpected test asserts::should_succeed_assert_eq")
	assert.Contains(t, out, "expected 0 passed but found 1")
}

func TestCheck_Stdin(t *testing.T) {
	f := newCheckFixture(t, nil)
	cmd := NewCheckCommand(&RootOptions{Format: "text", NoColor: true})
	cmd.SetIn(bytes.NewReader(xmlReport(1, assertEqFailedXML)))

	out, _, err := execute(cmd, "-", "--catalog", f.catalog, "--names", "asserts", "--exclude-tags", "slow", "--results", "FAILED")
	require.NoError(t, err)
	assert.Contains(t, out, "PASSED!")
}

func TestCheck_MalformedReport(t *testing.T) {
	f := newCheckFixture(t, []byte("Segmentation fault\n"))
	cmd := NewCheckCommand(&RootOptions{Format: "text", NoColor: true})

	out, _, err := execute(cmd, f.report, "--catalog", f.catalog)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Contains(t, out, "malformed report")
}

func TestCheck_InvalidResultsFilter(t *testing.T) {
	f := newCheckFixture(t, xmlReport(0))
	cmd := NewCheckCommand(&RootOptions{Format: "text"})

	out, _, err := execute(cmd, f.report, "--catalog", f.catalog, "--results", "SOME")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E007]")
}

func TestCheck_MissingReport(t *testing.T) {
	f := newCheckFixture(t, nil)
	cmd := NewCheckCommand(&RootOptions{Format: "text"})

	out, _, err := execute(cmd, filepath.Join(t.TempDir(), "none.xml"), "--catalog", f.catalog)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E005]")
}
