package catalog

import (
	"fmt"
	"path"
	"sort"
	"strings"
)

// Result is the pass/fail verdict a subject test reports.
type Result string

const (
	Passed Result = "PASSED"
	Failed Result = "FAILED"
)

// Valid reports whether r is one of the two verdicts.
func (r Result) Valid() bool {
	return r == Passed || r == Failed
}

// ResultFilter restricts a selection to entries with a given expected result.
// Terse subject runs only report failed tests, so their selection must be
// limited to FAILED entries.
type ResultFilter string

const (
	FilterAll    ResultFilter = "ALL"
	FilterFailed ResultFilter = "FAILED"
	FilterPassed ResultFilter = "PASSED"
)

// ParseResultFilter converts a case-insensitive name into a ResultFilter.
// An empty string selects everything.
func ParseResultFilter(s string) (ResultFilter, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ALL":
		return FilterAll, nil
	case "FAILED":
		return FilterFailed, nil
	case "PASSED":
		return FilterPassed, nil
	}
	return "", fmt.Errorf("invalid result filter %q: must be one of ALL, FAILED, PASSED", s)
}

// Accepts reports whether an entry expecting r passes the filter.
func (f ResultFilter) Accepts(r Result) bool {
	switch f {
	case FilterFailed:
		return r == Failed
	case FilterPassed:
		return r == Passed
	default:
		return true
	}
}

// Log types with special meaning to reconciliation.
const (
	LogViolation = "violation"
	LogStdout    = "stdout"
	LogStderr    = "stderr"
	LogInfo      = "info"
	LogFail      = "fail"
)

// LogExpectation is one expected diagnostic log entry.
type LogExpectation struct {
	Type    string
	Pattern *Pattern
}

// ExpectedOutcome is the expected shape of one subject test's result.
type ExpectedOutcome struct {
	// ID is the hierarchical test name, e.g. "asserts::should_fail_on_assert_eq".
	ID string

	Result Result

	// Phase is the lifecycle phase a failure is reported in ("running",
	// "creating", "destroying", "post_mortem", "child"). Empty for PASSED.
	Phase string

	// Tags are used for selection only, never for comparison.
	Tags []string

	// Logs are ordered; order is significant within a log type.
	Logs []LogExpectation

	// Files are paths relative to the working directory the subject names in
	// its violation report. Listed in removal order: children before parents.
	Files []string

	Description string
}

// Validate checks the invariants of a single entry.
func (o *ExpectedOutcome) Validate() error {
	if o.ID == "" {
		return fmt.Errorf("id is required")
	}
	if !o.Result.Valid() {
		return fmt.Errorf("invalid result %q: must be PASSED or FAILED", o.Result)
	}
	if o.Result == Failed && o.Phase == "" {
		return fmt.Errorf("phase is required for a FAILED expectation")
	}
	if o.Result == Passed && o.Phase != "" {
		return fmt.Errorf("phase %q given for a PASSED expectation", o.Phase)
	}
	for i, l := range o.Logs {
		if l.Type == "" {
			return fmt.Errorf("logs[%d]: type is required", i)
		}
		if l.Pattern == nil {
			return fmt.Errorf("logs[%d]: pattern is required", i)
		}
	}
	for i, f := range o.Files {
		if f == "" || path.IsAbs(f) || path.Clean(f) != f || strings.HasPrefix(f, "..") {
			return fmt.Errorf("files[%d]: %q must be a clean relative path", i, f)
		}
	}
	return nil
}

// LogsByType groups the expected logs per type, preserving order within each
// type.
func (o *ExpectedOutcome) LogsByType() map[string][]*Pattern {
	groups := make(map[string][]*Pattern)
	for _, l := range o.Logs {
		groups[l.Type] = append(groups[l.Type], l.Pattern)
	}
	return groups
}

// Catalog maps test identifiers to their expected outcome.
// It is not modified after construction; use Clone for a mutable copy.
type Catalog struct {
	entries map[string]*ExpectedOutcome
	order   []string
}

// New builds a catalog from the given outcomes. Identifiers must be unique.
func New(outcomes ...ExpectedOutcome) (*Catalog, error) {
	c := &Catalog{entries: make(map[string]*ExpectedOutcome, len(outcomes))}
	for _, o := range outcomes {
		if err := c.add(o); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is like New but panics on error. Intended for literal catalogs.
func MustNew(outcomes ...ExpectedOutcome) *Catalog {
	c, err := New(outcomes...)
	if err != nil {
		panic(err)
	}
	return c
}

func (c *Catalog) add(o ExpectedOutcome) error {
	if err := o.Validate(); err != nil {
		return fmt.Errorf("test %q: %w", o.ID, err)
	}
	if _, dup := c.entries[o.ID]; dup {
		return fmt.Errorf("duplicate test id %q", o.ID)
	}
	entry := o
	c.entries[o.ID] = &entry
	c.order = append(c.order, o.ID)
	return nil
}

// Merge returns a new catalog holding the entries of c followed by those of
// other.
func (c *Catalog) Merge(other *Catalog) (*Catalog, error) {
	merged := &Catalog{entries: make(map[string]*ExpectedOutcome, c.Len()+other.Len())}
	for _, src := range []*Catalog{c, other} {
		for _, id := range src.order {
			if err := merged.add(*src.entries[id]); err != nil {
				return nil, err
			}
		}
	}
	return merged, nil
}

// Get returns the expectation for id.
func (c *Catalog) Get(id string) (*ExpectedOutcome, bool) {
	o, ok := c.entries[id]
	return o, ok
}

// Len returns the number of entries.
func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.order)
}

// IDs returns the identifiers in insertion order.
func (c *Catalog) IDs() []string {
	ids := make([]string, len(c.order))
	copy(ids, c.order)
	return ids
}

// Clone returns a mutable working copy of the catalog.
func (c *Catalog) Clone() *WorkingSet {
	ws := &WorkingSet{entries: make(map[string]*ExpectedOutcome, len(c.entries))}
	for id, o := range c.entries {
		ws.entries[id] = o
	}
	return ws
}

// WorkingSet is the per-row copy of a catalog that reconciliation depletes.
// An entry is taken out once it has been paired with an actual record, so
// whatever remains at the end never ran.
type WorkingSet struct {
	entries map[string]*ExpectedOutcome
}

// Take removes and returns the expectation for id.
func (w *WorkingSet) Take(id string) (*ExpectedOutcome, bool) {
	o, ok := w.entries[id]
	if ok {
		delete(w.entries, id)
	}
	return o, ok
}

// Contains reports whether id is still in the working set.
func (w *WorkingSet) Contains(id string) bool {
	_, ok := w.entries[id]
	return ok
}

// Len returns the number of entries not yet taken.
func (w *WorkingSet) Len() int {
	return len(w.entries)
}

// Remaining returns the ids not yet taken, sorted.
func (w *WorkingSet) Remaining() []string {
	ids := make([]string, 0, len(w.entries))
	for id := range w.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
