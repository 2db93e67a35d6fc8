package report

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
)

// ParseError reports a report that is not well-formed or lacks a required
// element. It is fatal for the invocation that produced the report.
type ParseError struct {
	Offset int64
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed report at byte %d: %v", e.Offset, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

type rawReport struct {
	XMLName    xml.Name    `xml:"crpcut"`
	StartTime  string      `xml:"starttime,attr"`
	Host       string      `xml:"host,attr"`
	Command    string      `xml:"command,attr"`
	ID         string      `xml:"id,attr"`
	Tests      []rawTest   `xml:"test"`
	Statistics []rawStats  `xml:"statistics"`
	Remaining  *rawDir     `xml:"remaining_files"`
	Blocked    *rawBlocked `xml:"blocked_tests"`
}

type rawTest struct {
	Name     *string `xml:"name,attr"`
	Critical string  `xml:"critical,attr"`
	Result   string  `xml:"result,attr"`
	Log      *rawLog `xml:"log"`
}

type rawLog struct {
	Entries []rawLogEntry `xml:",any"`
}

type rawLogEntry struct {
	XMLName xml.Name
	Attrs   []xml.Attr `xml:",any,attr"`
	Text    string     `xml:",chardata"`
}

type rawStats struct {
	Registered        *int `xml:"registered_test_cases"`
	Selected          int  `xml:"selected_test_cases"`
	Untested          int  `xml:"untested_test_cases"`
	Run               *int `xml:"run_test_cases"`
	Failed            *int `xml:"failed_test_cases"`
	FailedNonCritical int  `xml:"failed_non_critical_test_cases"`
}

type rawDir struct {
	NonemptyDir string `xml:"nonempty_dir,attr"`
}

type rawBlocked struct {
	Tests []struct {
		Name string `xml:"name,attr"`
	} `xml:"test"`
}

// expectEnd consumes the rest of the document. Only whitespace, comments and
// processing instructions may follow the root element.
func expectEnd(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.CharData:
			if len(bytes.TrimSpace(t)) != 0 {
				return fmt.Errorf("unexpected text %q after report", bytes.TrimSpace(t))
			}
		case xml.Comment, xml.ProcInst:
		case xml.StartElement:
			return fmt.Errorf("unexpected element <%s> after report", t.Name.Local)
		default:
			return fmt.Errorf("unexpected %T after report", t)
		}
	}
}

// Parse reads one report from r.
func Parse(r io.Reader) (*Report, error) {
	dec := xml.NewDecoder(r)

	var raw rawReport
	if err := dec.Decode(&raw); err != nil {
		if errors.Is(err, io.EOF) {
			err = errors.New("empty report")
		}
		return nil, &ParseError{Offset: dec.InputOffset(), Err: err}
	}
	offset := dec.InputOffset()
	if err := expectEnd(dec); err != nil {
		return nil, &ParseError{Offset: dec.InputOffset(), Err: err}
	}

	if len(raw.Statistics) != 1 {
		return nil, &ParseError{Offset: offset, Err: fmt.Errorf("expected exactly one statistics element, found %d", len(raw.Statistics))}
	}
	st := raw.Statistics[0]
	if st.Registered == nil || st.Run == nil || st.Failed == nil {
		return nil, &ParseError{Offset: offset, Err: errors.New("statistics must carry registered_test_cases, run_test_cases and failed_test_cases")}
	}

	rep := &Report{
		Records: make([]Record, 0, len(raw.Tests)),
		Stats: Stats{
			Registered:        *st.Registered,
			Selected:          st.Selected,
			Untested:          st.Untested,
			Run:               *st.Run,
			Failed:            *st.Failed,
			FailedNonCritical: st.FailedNonCritical,
			StartTime:         raw.StartTime,
			Host:              raw.Host,
			Command:           raw.Command,
			ID:                raw.ID,
		},
	}
	if raw.Remaining != nil {
		rep.Stats.RemainingDir = raw.Remaining.NonemptyDir
	}
	if raw.Blocked != nil {
		for _, b := range raw.Blocked.Tests {
			rep.Stats.Blocked = append(rep.Stats.Blocked, b.Name)
		}
	}

	for i, t := range raw.Tests {
		if t.Name == nil {
			return nil, &ParseError{Offset: offset, Err: fmt.Errorf("test[%d]: missing name attribute", i)}
		}
		rec := Record{
			Name:     *t.Name,
			Result:   t.Result,
			Critical: t.Critical != "false",
		}
		if t.Log != nil {
			for _, e := range t.Log.Entries {
				entry := LogEntry{Type: e.XMLName.Local, Text: e.Text}
				if len(e.Attrs) > 0 {
					entry.Attrs = make(map[string]string, len(e.Attrs))
					for _, a := range e.Attrs {
						entry.Attrs[a.Name.Local] = a.Value
					}
				}
				rec.Logs = append(rec.Logs, entry)
			}
		}
		rep.Records = append(rep.Records, rec)
	}
	return rep, nil
}

// ParseBytes parses a report held in memory.
func ParseBytes(data []byte) (*Report, error) {
	return Parse(bytes.NewReader(data))
}
