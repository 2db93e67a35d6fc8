package harness

import (
	"github.com/rollbear/crpcut/internal/report"
)

// aggregateCheck compares one expected count with an observed one.
type aggregateCheck struct {
	expected int
	actual   int
	format   string
}

// ReconcileAggregates checks the row-level counts: the number of actual
// FAILED records, the subject's exit code and the report summary must all
// equal the number of reconciled FAILED expectations, and the number of
// actual PASSED records must equal the reconciled PASSED expectations.
//
// All checks are evaluated; every mismatch is returned.
func ReconcileAggregates(t Tally, stats report.Stats, exitCode int) []Discrepancy {
	checks := []aggregateCheck{
		{t.ExpectedFailed, t.ActualFailed, "expected %d failed but found %d"},
		{t.ExpectedFailed, exitCode, "expected %d but returned %d"},
		{t.ExpectedFailed, stats.Failed, "expected %d fails, but report summary says %d"},
		{t.ExpectedPassed, t.ActualPassed, "expected %d passed but found %d"},
	}

	var out []Discrepancy
	for _, c := range checks {
		if c.expected != c.actual {
			out = append(out, *discrepancy(KindAggregate, c.format, c.expected, c.actual))
		}
	}
	return out
}
