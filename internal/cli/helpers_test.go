package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"

	"github.com/rollbear/crpcut/internal/subject"
)

const testCatalogYAML = `
tests:
  asserts::should_fail_on_assert_eq:
    result: FAILED
    phase: running
    logs:
      - violation: '/ASSERT_EQ\(num, 3\)\s+where\s+num\s*=\s*4/'
  asserts::should_succeed_assert_eq:
    result: PASSED
  asserts::should_fail_slowly:
    result: FAILED
    phase: running
    tags: [slow]
    logs:
      - violation: timeout
  default_success:
    result: PASSED
`

const testMatrixYAML = `
subject: ./testprog
verbosity:
  terse: {results: FAILED}
  verbose: {flags: [-v], results: ALL}
blocking:
  deps: {exclude_tags: [blocked]}
slowness:
  quick: {exclude_tags: [slow]}
rows:
  - {names: [asserts], verbosity: verbose, blocking: deps, slowness: quick}
  - {names: [asserts], verbosity: terse, blocking: deps, slowness: quick}
`

const (
	assertEqFailedXML = `<test name="asserts::should_fail_on_assert_eq" result="FAILED"><log><violation phase="running">asserts_and_depends.cpp:42&#xa;ASSERT_EQ(num, 3)&#xa;  where num = 4</violation></log></test>`
	assertEqPassedXML = `<test name="asserts::should_succeed_assert_eq" result="PASSED"/>`
)

func xmlReport(failed int, tests ...string) []byte {
	var b strings.Builder
	b.WriteString("<?xml version=\"1.0\"?>\n<crpcut>\n")
	for _, t := range tests {
		b.WriteString("  " + t + "\n")
	}
	fmt.Fprintf(&b, "  <statistics><registered_test_cases>%d</registered_test_cases><run_test_cases>%d</run_test_cases><failed_test_cases>%d</failed_test_cases></statistics>\n",
		len(tests), len(tests), failed)
	b.WriteString("</crpcut>\n")
	return []byte(b.String())
}

// fakeRunner plays the subject program and the shell used by preconditions.
type fakeRunner struct {
	coreLimit string
	exitCode  int
	calls     []string
}

func (f *fakeRunner) Run(_ context.Context, line string) (*subject.Result, error) {
	f.calls = append(f.calls, line)
	if line == "ulimit -c" {
		return &subject.Result{Stdout: []byte(f.coreLimit + "\n")}, nil
	}
	if strings.Contains(line, " -v ") {
		return &subject.Result{Stdout: xmlReport(1, assertEqFailedXML, assertEqPassedXML), ExitCode: f.exitCode}, nil
	}
	return &subject.Result{Stdout: xmlReport(1, assertEqFailedXML), ExitCode: f.exitCode}, nil
}

func writeTestFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

// execute runs cmd with args and returns its stdout and stderr.
func execute(cmd *cobra.Command, args ...string) (string, string, error) {
	out, errOut := &bytes.Buffer{}, &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), errOut.String(), err
}
