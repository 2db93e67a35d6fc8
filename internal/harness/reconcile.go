package harness

import (
	"os"
	"sort"

	"github.com/rollbear/crpcut/internal/catalog"
	"github.com/rollbear/crpcut/internal/report"
)

// Reconcile compares one actual test record with its expected outcome and
// returns the first discrepancy found, or nil when they agree.
//
// Logs are matched per type in FIFO order: each channel is ordered
// internally but the interleaving between channels is not significant.
// A violation that names a non-empty working directory makes that directory
// the root for artifact verification, which removes the predicted files.
func Reconcile(expected *catalog.ExpectedOutcome, actual report.Record) *Discrepancy {
	d := reconcile(expected, actual)
	if d != nil {
		d.Test = actual.Name
	}
	return d
}

func reconcile(expected *catalog.ExpectedOutcome, actual report.Record) *Discrepancy {
	if actual.Result != string(expected.Result) {
		return discrepancy(KindResult, "wrong result, got %s expected %s", actual.Result, expected.Result)
	}

	groups := expected.LogsByType()
	cursors := make(map[string]int, len(groups))
	workingDir := ""

	for _, entry := range actual.Logs {
		patterns := groups[entry.Type]
		if len(patterns) == 0 {
			return discrepancy(KindLog, "%s unexpected", entry.Type)
		}
		idx := cursors[entry.Type]
		if idx >= len(patterns) {
			return discrepancy(KindLog, "too many %s's", entry.Type)
		}
		cursors[entry.Type] = idx + 1

		if entry.Type == catalog.LogViolation {
			phase, _ := entry.Attr(report.AttrPhase)
			if phase != expected.Phase {
				return discrepancy(KindPhase, "expected phase=%s but found %s", expected.Phase, phase)
			}
			// The last violation decides which directory holds the artifacts.
			workingDir = ""
			if dir, ok := entry.Attr(report.AttrNonemptyDir); ok {
				info, err := os.Stat(dir)
				if err != nil || !info.IsDir() {
					return discrepancy(KindArtifact, "%s is not a directory", dir)
				}
				workingDir = dir
			}
		}

		if p := patterns[idx]; !p.Match(entry.Text) {
			return discrepancy(KindLog, "%s doesn't match %s %s", entry.Text, entry.Type, p)
		}
	}

	types := make([]string, 0, len(groups))
	for t := range groups {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		if got, want := cursors[t], len(groups[t]); got < want {
			return discrepancy(KindLog, "too few %s's: expected %d, found %d", t, want, got)
		}
	}

	switch {
	case len(expected.Files) > 0 && workingDir == "":
		return discrepancy(KindArtifact, "files expected but missing")
	case len(expected.Files) == 0 && workingDir != "":
		return discrepancy(KindArtifact, "%s has unexpected files", workingDir)
	case workingDir != "":
		return VerifyArtifacts(workingDir, expected.Files)
	}
	return nil
}
