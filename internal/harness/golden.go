package harness

import (
	"bytes"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/rollbear/crpcut/internal/canonical"
)

// Snapshot converts a run report to a map for canonical JSON. Timestamps and
// durations are left out so that snapshots of identical runs are
// byte-identical.
func (r *RunReport) Snapshot() map[string]any {
	rows := make([]any, len(r.Rows))
	for i, row := range r.Rows {
		rows[i] = row.snapshot()
	}
	out := map[string]any{
		"id":           r.ID,
		"subject":      r.Subject,
		"catalog_size": r.CatalogSize,
		"rows":         rows,
		"pass":         r.Pass(),
	}
	if len(r.Probes) > 0 {
		probes := make([]any, len(r.Probes))
		for i, p := range r.Probes {
			probes[i] = p.snapshot()
		}
		out["probes"] = probes
	}
	return out
}

func (r RowResult) snapshot() map[string]any {
	ds := make([]any, len(r.Discrepancies))
	for i, d := range r.Discrepancies {
		ds[i] = d.snapshot()
	}
	out := map[string]any{
		"index":         r.Index,
		"label":         r.Label,
		"exit_code":     r.ExitCode,
		"selected":      r.Selected,
		"pass":          r.Pass,
		"discrepancies": ds,
		"tally": map[string]any{
			"actual_failed":   r.Tally.ActualFailed,
			"actual_passed":   r.Tally.ActualPassed,
			"expected_failed": r.Tally.ExpectedFailed,
			"expected_passed": r.Tally.ExpectedPassed,
		},
	}
	if r.Probe != "" {
		out["probe"] = r.Probe
	}
	return out
}

func (d Discrepancy) snapshot() map[string]any {
	out := map[string]any{
		"kind":    string(d.Kind),
		"message": d.Message,
	}
	if d.Test != "" {
		out["test"] = d.Test
	}
	return out
}

// CanonicalJSON returns the deterministic JSON form of the report snapshot.
func (r *RunReport) CanonicalJSON() ([]byte, error) {
	return canonical.Marshal(r.Snapshot())
}

// AssertGolden compares the plain text rendering of rep with
// testdata/golden/{name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func AssertGolden(t *testing.T, name string, rep *RunReport) {
	t.Helper()

	var buf bytes.Buffer
	if err := WriteText(&buf, rep, PlainStyle); err != nil {
		t.Fatalf("rendering report: %v", err)
	}
	newGoldie(t).Assert(t, name, buf.Bytes())
}

// AssertGoldenJSON compares the canonical JSON snapshot of rep with
// testdata/golden/{name}.golden.
func AssertGoldenJSON(t *testing.T, name string, rep *RunReport) {
	t.Helper()

	data, err := rep.CanonicalJSON()
	if err != nil {
		t.Fatalf("canonical snapshot: %v", err)
	}
	newGoldie(t).Assert(t, name, data)
}

func newGoldie(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}
