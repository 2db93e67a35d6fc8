package harness

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rollbear/crpcut/internal/catalog"
	"github.com/rollbear/crpcut/internal/report"
)

func violation(phase, text string) report.LogEntry {
	return report.LogEntry{Type: "violation", Text: text, Attrs: map[string]string{"phase": phase}}
}

func violationIn(phase, dir, text string) report.LogEntry {
	e := violation(phase, text)
	e.Attrs["nonempty_dir"] = dir
	return e
}

func logEntry(typ, text string) report.LogEntry {
	return report.LogEntry{Type: typ, Text: text}
}

func assertEqOutcome() *catalog.ExpectedOutcome {
	return &catalog.ExpectedOutcome{
		ID:     "should_fail_on_assert_eq",
		Result: catalog.Failed,
		Phase:  "running",
		Logs: []catalog.LogExpectation{
			{Type: "violation", Pattern: catalog.Re(`/ASSERT_EQ\(num, 3\)\s+where\s+num\s*=\s*4/`)},
		},
	}
}

func TestReconcile_AssertEqScenario(t *testing.T) {
	actual := report.Record{
		Name:   "should_fail_on_assert_eq",
		Result: "FAILED",
		Logs:   []report.LogEntry{violation("running", "ASSERT_EQ(num, 3)\n  where num = 4")},
	}
	assert.Nil(t, Reconcile(assertEqOutcome(), actual))
}

func TestReconcile_PassedWithMatchingLogs(t *testing.T) {
	expected := &catalog.ExpectedOutcome{
		ID:     "asserts::should_succeed_with_info",
		Result: catalog.Passed,
		Logs: []catalog.LogExpectation{
			{Type: "info", Pattern: catalog.Re("/^first/")},
			{Type: "stdout", Pattern: catalog.Re("hello")},
			{Type: "info", Pattern: catalog.Re("/^second/")},
		},
	}
	// Channels interleave differently than declared; only per-type order counts.
	actual := report.Record{
		Name:   expected.ID,
		Result: "PASSED",
		Logs: []report.LogEntry{
			logEntry("stdout", "say hello world"),
			logEntry("info", "first message"),
			logEntry("info", "second message"),
		},
	}
	assert.Nil(t, Reconcile(expected, actual))
}

func TestReconcile_Mismatches(t *testing.T) {
	twoInfos := &catalog.ExpectedOutcome{
		ID:     "t",
		Result: catalog.Passed,
		Logs: []catalog.LogExpectation{
			{Type: "info", Pattern: catalog.Re("/a/")},
			{Type: "info", Pattern: catalog.Re("/b/")},
		},
	}

	tests := []struct {
		name     string
		expected *catalog.ExpectedOutcome
		actual   report.Record
		kind     Kind
		message  string
	}{
		{
			name:     "wrong result",
			expected: assertEqOutcome(),
			actual:   report.Record{Name: "t", Result: "PASSED"},
			kind:     KindResult,
			message:  "wrong result, got PASSED expected FAILED",
		},
		{
			name:     "unexpected type",
			expected: assertEqOutcome(),
			actual: report.Record{Name: "t", Result: "FAILED", Logs: []report.LogEntry{
				logEntry("stderr", "noise"),
			}},
			kind:    KindLog,
			message: "stderr unexpected",
		},
		{
			name:     "too many",
			expected: assertEqOutcome(),
			actual: report.Record{Name: "t", Result: "FAILED", Logs: []report.LogEntry{
				violation("running", "ASSERT_EQ(num, 3)\n  where num = 4"),
				violation("running", "ASSERT_EQ(num, 3)\n  where num = 4"),
			}},
			kind:    KindLog,
			message: "too many violation's",
		},
		{
			name:     "wrong phase",
			expected: assertEqOutcome(),
			actual: report.Record{Name: "t", Result: "FAILED", Logs: []report.LogEntry{
				violation("destroying", "ASSERT_EQ(num, 3)\n  where num = 4"),
			}},
			kind:    KindPhase,
			message: "expected phase=running but found destroying",
		},
		{
			name:     "text mismatch",
			expected: assertEqOutcome(),
			actual: report.Record{Name: "t", Result: "FAILED", Logs: []report.LogEntry{
				violation("running", "ASSERT_EQ(num, 3)\n  where num = 5"),
			}},
			kind:    KindLog,
			message: "ASSERT_EQ(num, 3)\n  where num = 5 doesn't match violation /ASSERT_EQ\\(num, 3\\)\\s+where\\s+num\\s*=\\s*4/",
		},
		{
			name:     "order within type",
			expected: twoInfos,
			actual: report.Record{Name: "t", Result: "PASSED", Logs: []report.LogEntry{
				logEntry("info", "b"),
				logEntry("info", "a"),
			}},
			kind:    KindLog,
			message: "b doesn't match info /a/",
		},
		{
			name:     "too few",
			expected: twoInfos,
			actual: report.Record{Name: "t", Result: "PASSED", Logs: []report.LogEntry{
				logEntry("info", "a"),
			}},
			kind:    KindLog,
			message: "too few info's: expected 2, found 1",
		},
		{
			name:     "nonempty dir is not a directory",
			expected: assertEqOutcome(),
			actual: report.Record{Name: "t", Result: "FAILED", Logs: []report.LogEntry{
				violationIn("running", "/nonexistent/crpcut/dir", "ASSERT_EQ(num, 3)\n  where num = 4"),
			}},
			kind:    KindArtifact,
			message: "/nonexistent/crpcut/dir is not a directory",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := Reconcile(tt.expected, tt.actual)
			require.NotNil(t, d)
			assert.Equal(t, tt.kind, d.Kind)
			assert.Equal(t, tt.message, d.Message)
			assert.Equal(t, "t", d.Test)
		})
	}
}

func TestReconcile_ExtraLogAfterFullMatch(t *testing.T) {
	for _, typ := range []string{"info", "stdout", "stderr", "fail"} {
		t.Run(typ, func(t *testing.T) {
			expected := &catalog.ExpectedOutcome{
				ID:     "t",
				Result: catalog.Passed,
				Logs:   []catalog.LogExpectation{{Type: typ, Pattern: catalog.Re("x")}},
			}
			actual := report.Record{Name: "t", Result: "PASSED", Logs: []report.LogEntry{
				logEntry(typ, "x"),
				logEntry(typ, "x"),
			}}
			d := Reconcile(expected, actual)
			require.NotNil(t, d)
			assert.Equal(t, "too many "+typ+"'s", d.Message)
		})
	}
}

func filesOutcome(files ...string) *catalog.ExpectedOutcome {
	return &catalog.ExpectedOutcome{
		ID:     "filesystem::should_leave_files",
		Result: catalog.Failed,
		Phase:  "post_mortem",
		Logs:   []catalog.LogExpectation{{Type: "violation", Pattern: catalog.Re("/left behind/")}},
		Files:  files,
	}
}

func makeTree(t *testing.T, root string, dirs []string, files []string) {
	t.Helper()
	for _, d := range dirs {
		require.NoError(t, os.MkdirAll(filepath.Join(root, d), 0755))
	}
	for _, f := range files {
		require.NoError(t, os.WriteFile(filepath.Join(root, f), []byte("apa\n"), 0644))
	}
}

func TestReconcile_ArtifactsConsumed(t *testing.T) {
	work := filepath.Join(t.TempDir(), "x")
	makeTree(t, work, []string{"dir"}, []string{"dir/child"})

	actual := report.Record{Name: "filesystem::should_leave_files", Result: "FAILED", Logs: []report.LogEntry{
		violationIn("post_mortem", work, "Files left behind in working directory"),
	}}
	assert.Nil(t, Reconcile(filesOutcome("dir/child", "dir"), actual))

	_, err := os.Stat(work)
	assert.True(t, os.IsNotExist(err), "working dir must be removed")
}

func TestReconcile_FilesExpectedWithoutDir(t *testing.T) {
	actual := report.Record{Name: "f", Result: "FAILED", Logs: []report.LogEntry{
		violation("post_mortem", "left behind"),
	}}
	d := Reconcile(filesOutcome("dir"), actual)
	require.NotNil(t, d)
	assert.Equal(t, "files expected but missing", d.Message)
}

func TestReconcile_LaterViolationWithoutDirDropsEarlierDir(t *testing.T) {
	work := t.TempDir()
	makeTree(t, work, []string{"dir"}, nil)

	outcome := filesOutcome("dir")
	outcome.Logs = append(outcome.Logs, catalog.LogExpectation{Type: "violation", Pattern: catalog.Re("/again/")})
	actual := report.Record{Name: "f", Result: "FAILED", Logs: []report.LogEntry{
		violationIn("post_mortem", work, "left behind"),
		violation("post_mortem", "again"),
	}}
	d := Reconcile(outcome, actual)
	require.NotNil(t, d)
	assert.Equal(t, "files expected but missing", d.Message)
	assert.DirExists(t, filepath.Join(work, "dir"), "nothing is consumed without a working dir")
}

func TestReconcile_DirWithoutExpectedFiles(t *testing.T) {
	work := t.TempDir()
	actual := report.Record{Name: "f", Result: "FAILED", Logs: []report.LogEntry{
		violationIn("post_mortem", work, "left behind"),
	}}
	d := Reconcile(filesOutcome(), actual)
	require.NotNil(t, d)
	assert.Equal(t, work+" has unexpected files", d.Message)
}

func TestReconcile_NamedFileMissing(t *testing.T) {
	work := t.TempDir()
	makeTree(t, work, []string{"dir"}, nil)

	actual := report.Record{Name: "f", Result: "FAILED", Logs: []report.LogEntry{
		violationIn("post_mortem", work, "left behind"),
	}}
	d := Reconcile(filesOutcome("dir/child", "dir"), actual)
	require.NotNil(t, d)
	assert.Equal(t, KindArtifact, d.Kind)
	assert.Equal(t, "dir/child is missing", d.Message)
}

func TestVerifyArtifacts_StrayFile(t *testing.T) {
	work := t.TempDir()
	makeTree(t, work, []string{"dir"}, []string{"dir/child", "dir/stray"})

	d := VerifyArtifacts(work, []string{"dir/child", "dir"})
	require.NotNil(t, d)
	assert.Equal(t, "working dir has unexpected files", d.Message)

	_, err := os.Stat(filepath.Join(work, "dir", "child"))
	assert.True(t, os.IsNotExist(err), "listed file is removed before the failure")
}

func TestVerifyArtifacts_UnlistedTopLevelFile(t *testing.T) {
	work := t.TempDir()
	makeTree(t, work, nil, []string{"core", "unexpected"})

	d := VerifyArtifacts(work, []string{"core"})
	require.NotNil(t, d)
	assert.Equal(t, "working dir has unexpected files", d.Message)
}

func TestVerifyArtifacts_NotIdempotent(t *testing.T) {
	work := filepath.Join(t.TempDir(), "x")
	makeTree(t, work, []string{"dir"}, []string{"dir/child"})
	files := []string{"dir/child", "dir"}

	require.Nil(t, VerifyArtifacts(work, files))

	d := VerifyArtifacts(work, files)
	require.NotNil(t, d)
	assert.Equal(t, "dir/child is missing", d.Message)
}
