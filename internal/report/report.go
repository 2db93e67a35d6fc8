// Package report parses the structured XML run report emitted by the subject
// program.
//
// The report is a tree rooted at <crpcut> holding one <test> element per
// executed test, each with an ordered <log> of channel-tagged entries, and a
// single <statistics> element:
//
//	<crpcut starttime="..." host="..." command="..." id="...">
//	  <test name="asserts::should_fail_on_assert_eq" critical="true" result="FAILED">
//	    <log>
//	      <violation phase="running">asserts_and_depends.cpp:42
//	ASSERT_EQ(num, 3)
//	  where num = 4</violation>
//	    </log>
//	  </test>
//	  <remaining_files nonempty_dir="/tmp/crpcutXXXXXX"/>
//	  <statistics>
//	    <registered_test_cases>10</registered_test_cases>
//	    <run_test_cases>10</run_test_cases>
//	    <failed_test_cases>3</failed_test_cases>
//	  </statistics>
//	</crpcut>
package report

// Attributes carried by violation log entries.
const (
	AttrPhase       = "phase"
	AttrNonemptyDir = "nonempty_dir"
)

// LogEntry is one child of a test's <log> element.
type LogEntry struct {
	Type string
	Text string

	// Attrs holds the element's attributes; only violation entries carry
	// phase and nonempty_dir.
	Attrs map[string]string
}

// Attr returns the named attribute and whether it was present.
func (e LogEntry) Attr(name string) (string, bool) {
	v, ok := e.Attrs[name]
	return v, ok
}

// Record is the actual outcome of one subject test.
type Record struct {
	Name     string
	Result   string
	Critical bool
	Logs     []LogEntry
}

// Stats holds the run-level statistics of one report.
type Stats struct {
	Registered        int `json:"registered"`
	Selected          int `json:"selected,omitempty"`
	Untested          int `json:"untested,omitempty"`
	Run               int `json:"run"`
	Failed            int `json:"failed"`
	FailedNonCritical int `json:"failed_non_critical,omitempty"`

	// RemainingDir is the leftover-files directory named at report level,
	// distinct from any per-test working directory.
	RemainingDir string `json:"remaining_dir,omitempty"`

	// Blocked lists tests the subject did not run because a dependency
	// failed.
	Blocked []string `json:"blocked,omitempty"`

	StartTime string `json:"start_time,omitempty"`
	Host      string `json:"host,omitempty"`
	Command   string `json:"command,omitempty"`
	ID        string `json:"id,omitempty"`
}

// Report is a fully parsed subject run report.
type Report struct {
	Records []Record
	Stats   Stats
}
