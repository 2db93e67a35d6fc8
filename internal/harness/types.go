package harness

import (
	"fmt"
	"time"

	"github.com/rollbear/crpcut/internal/report"
)

// Kind classifies a discrepancy.
type Kind string

const (
	// KindResult: actual result differs from the expected one.
	KindResult Kind = "result"
	// KindPhase: a violation was reported in an unexpected phase.
	KindPhase Kind = "phase"
	// KindLog: log type, count or text mismatch.
	KindLog Kind = "log"
	// KindArtifact: predicted files missing or unexpected files left behind.
	KindArtifact Kind = "artifact"
	// KindSelection: tests that ran but were not expected, or vice versa.
	KindSelection Kind = "selection"
	// KindAggregate: failed/passed counts disagree with summary or exit code.
	KindAggregate Kind = "aggregate"
	// KindStructural: the subject could not run or its report is unusable.
	KindStructural Kind = "structural"
	// KindProbe: a standalone probe invocation misbehaved.
	KindProbe Kind = "probe"
)

// Discrepancy is one detected deviation between actual and expected
// behavior. Test is empty for row-level discrepancies.
type Discrepancy struct {
	Kind    Kind   `json:"kind"`
	Test    string `json:"test,omitempty"`
	Message string `json:"message"`
}

func (d Discrepancy) String() string {
	if d.Test == "" {
		return d.Message
	}
	return fmt.Sprintf("%s: %s", d.Test, d.Message)
}

func discrepancy(kind Kind, format string, args ...any) *Discrepancy {
	return &Discrepancy{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Tally counts actual and successfully reconciled outcomes in one row.
type Tally struct {
	ActualFailed   int `json:"actual_failed"`
	ActualPassed   int `json:"actual_passed"`
	ExpectedFailed int `json:"expected_failed"`
	ExpectedPassed int `json:"expected_passed"`
}

// RowResult is the outcome of one matrix row or probe.
type RowResult struct {
	// Index is the 1-based row number; probes carry 0.
	Index int `json:"index"`

	// Label identifies the row on the console: the row's parameters, or the
	// probe's arguments.
	Label string `json:"label"`

	// Probe is the probe name for probe results.
	Probe string `json:"probe,omitempty"`

	CommandLine string `json:"command_line"`
	ExitCode    int    `json:"exit_code"`
	Selected    int    `json:"selected"`

	Tally Tally         `json:"tally"`
	Stats *report.Stats `json:"stats,omitempty"`

	// Pass is true when no discrepancy was recorded.
	Pass bool `json:"pass"`

	Discrepancies []Discrepancy `json:"discrepancies,omitempty"`
}

// NewRowResult creates a passing row result.
func NewRowResult(index int, label, commandLine string) *RowResult {
	return &RowResult{
		Index:         index,
		Label:         label,
		CommandLine:   commandLine,
		Pass:          true,
		Discrepancies: []Discrepancy{},
	}
}

// Add records a discrepancy and marks the row as failed. A nil discrepancy
// is ignored.
func (r *RowResult) Add(d *Discrepancy) {
	if d == nil {
		return
	}
	r.Discrepancies = append(r.Discrepancies, *d)
	r.Pass = false
}

// AddAll records every discrepancy in ds.
func (r *RowResult) AddAll(ds []Discrepancy) {
	for i := range ds {
		r.Add(&ds[i])
	}
}

// RunReport is the outcome of a whole oracle run.
type RunReport struct {
	ID          string      `json:"id"`
	StartedAt   time.Time   `json:"started_at"`
	Subject     string      `json:"subject"`
	CatalogSize int         `json:"catalog_size"`
	Rows        []RowResult `json:"rows"`
	Probes      []RowResult `json:"probes,omitempty"`
}

// Pass reports whether every row and probe passed.
func (r *RunReport) Pass() bool {
	return r.Failed() == 0
}

// Failed counts rows and probes with discrepancies.
func (r *RunReport) Failed() int {
	n := 0
	for _, row := range r.Rows {
		if !row.Pass {
			n++
		}
	}
	for _, p := range r.Probes {
		if !p.Pass {
			n++
		}
	}
	return n
}

// Total counts rows and probes.
func (r *RunReport) Total() int {
	return len(r.Rows) + len(r.Probes)
}
