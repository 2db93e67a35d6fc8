package harness

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"gopkg.in/yaml.v3"

	"github.com/rollbear/crpcut/internal/catalog"
)

// DefaultReportFlag asks the subject for an XML report on stdout.
const DefaultReportFlag = "--xml=yes"

// Mode is a named group of subject flags and the catalog tags that the flags
// imply are not run.
type Mode struct {
	Flags       []string `yaml:"flags,omitempty" json:"flags,omitempty"`
	ExcludeTags []string `yaml:"exclude_tags,omitempty" json:"exclude_tags,omitempty"`
}

// VerbosityMode is a verbosity flag set and the results it makes the subject
// report.
type VerbosityMode struct {
	Flags   []string `yaml:"flags,omitempty" json:"flags,omitempty"`
	Results string   `yaml:"results,omitempty" json:"results,omitempty"`
}

// Row is one line of the invocation matrix, naming one mode per axis.
type Row struct {
	Names      []string `yaml:"names,omitempty" json:"names,omitempty"`
	Verbosity  string   `yaml:"verbosity" json:"verbosity"`
	Blocking   string   `yaml:"blocking" json:"blocking"`
	Slowness   string   `yaml:"slowness" json:"slowness"`
	ReportFlag string   `yaml:"report_flag,omitempty" json:"report_flag,omitempty"`
	Post       string   `yaml:"post,omitempty" json:"post,omitempty"`
}

// Probe is a standalone subject invocation checked for stdout and artifacts
// rather than for report content.
type Probe struct {
	Name string `yaml:"name" json:"name"`

	// Args may reference ${dir}, the probe's scratch directory.
	Args []string `yaml:"args" json:"args"`

	ScratchDir        bool     `yaml:"scratch_dir,omitempty" json:"scratch_dir,omitempty"`
	ExpectEmptyStdout bool     `yaml:"expect_empty_stdout,omitempty" json:"expect_empty_stdout,omitempty"`
	PreRemove         []string `yaml:"pre_remove,omitempty" json:"pre_remove,omitempty"`
	Files             []string `yaml:"files,omitempty" json:"files,omitempty"`
}

// Matrix describes every subject invocation of an oracle run.
type Matrix struct {
	Subject    string                   `yaml:"subject" json:"subject"`
	Args       []string                 `yaml:"args,omitempty" json:"args,omitempty"`
	ReportFlag string                   `yaml:"report_flag,omitempty" json:"report_flag,omitempty"`
	Fixtures   map[string]string        `yaml:"fixtures,omitempty" json:"fixtures,omitempty"`
	Verbosity  map[string]VerbosityMode `yaml:"verbosity" json:"verbosity"`
	Blocking   map[string]Mode          `yaml:"blocking" json:"blocking"`
	Slowness   map[string]Mode          `yaml:"slowness" json:"slowness"`
	Rows       []Row                    `yaml:"rows" json:"rows"`
	Probes     []Probe                  `yaml:"probes,omitempty" json:"probes,omitempty"`
}

// InvocationConfig is one resolved matrix row.
type InvocationConfig struct {
	// Index is 1-based.
	Index int

	NamePrefixes []string
	ExcludedTags []string
	Results      catalog.ResultFilter

	VerbosityFlags []string
	BlockingFlags  []string
	SlownessFlags  []string
	ReportFlag     string
	Post           string
}

// Selection returns the catalog selection this row is expected to run.
func (c InvocationConfig) Selection() catalog.Selection {
	return catalog.Selection{
		NamePrefixes: c.NamePrefixes,
		ExcludedTags: c.ExcludedTags,
		Results:      c.Results,
	}
}

// TagFlag is the subject flag excluding the row's tags, or "" when no tag is
// excluded.
func (c InvocationConfig) TagFlag() string {
	if len(c.ExcludedTags) == 0 {
		return ""
	}
	return "--tags=-" + strings.Join(c.ExcludedTags, ",")
}

// Params is the row-specific part of the command line.
func (c InvocationConfig) Params() string {
	var parts []string
	parts = append(parts, c.VerbosityFlags...)
	parts = append(parts, c.BlockingFlags...)
	parts = append(parts, c.SlownessFlags...)
	if c.ReportFlag != "" {
		parts = append(parts, c.ReportFlag)
	}
	if tf := c.TagFlag(); tf != "" {
		parts = append(parts, tf)
	}
	parts = append(parts, c.NamePrefixes...)
	line := strings.Join(parts, " ")
	if c.Post != "" {
		line += "; " + c.Post
	}
	return line
}

// CommandLine is the full shell line running the subject for this row.
func (c InvocationConfig) CommandLine(subject string, args []string) string {
	head := append([]string{subject}, args...)
	return strings.Join(head, " ") + " " + c.Params()
}

// Resolve validates the matrix and expands its rows.
func (m *Matrix) Resolve() ([]InvocationConfig, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	configs := make([]InvocationConfig, 0, len(m.Rows))
	for i, row := range m.Rows {
		v := m.Verbosity[row.Verbosity]
		b := m.Blocking[row.Blocking]
		s := m.Slowness[row.Slowness]

		results, err := catalog.ParseResultFilter(v.Results)
		if err != nil {
			return nil, fmt.Errorf("verbosity %q: %w", row.Verbosity, err)
		}

		reportFlag := row.ReportFlag
		if reportFlag == "" {
			reportFlag = m.ReportFlag
		}
		if reportFlag == "" {
			reportFlag = DefaultReportFlag
		}

		configs = append(configs, InvocationConfig{
			Index:          i + 1,
			NamePrefixes:   row.Names,
			ExcludedTags:   unionTags(s.ExcludeTags, b.ExcludeTags),
			Results:        results,
			VerbosityFlags: v.Flags,
			BlockingFlags:  b.Flags,
			SlownessFlags:  s.Flags,
			ReportFlag:     reportFlag,
			Post:           row.Post,
		})
	}
	return configs, nil
}

// Validate checks that every row references defined modes and every probe
// is named.
func (m *Matrix) Validate() error {
	if m.Subject == "" {
		return fmt.Errorf("matrix: subject is required")
	}
	if len(m.Rows) == 0 {
		return fmt.Errorf("matrix: at least one row is required")
	}
	for i, row := range m.Rows {
		if _, ok := m.Verbosity[row.Verbosity]; !ok {
			return fmt.Errorf("rows[%d]: unknown verbosity %q (defined: %s)", i, row.Verbosity, keyList(m.Verbosity))
		}
		if _, ok := m.Blocking[row.Blocking]; !ok {
			return fmt.Errorf("rows[%d]: unknown blocking %q (defined: %s)", i, row.Blocking, keyList(m.Blocking))
		}
		if _, ok := m.Slowness[row.Slowness]; !ok {
			return fmt.Errorf("rows[%d]: unknown slowness %q (defined: %s)", i, row.Slowness, keyList(m.Slowness))
		}
	}
	seen := make(map[string]bool)
	for i, p := range m.Probes {
		if p.Name == "" {
			return fmt.Errorf("probes[%d]: name is required", i)
		}
		if seen[p.Name] {
			return fmt.Errorf("probes[%d]: duplicate probe name %q", i, p.Name)
		}
		seen[p.Name] = true
		if p.ScratchDir {
			continue
		}
		for _, a := range p.Args {
			if strings.Contains(a, "${dir}") {
				return fmt.Errorf("probe %q: ${dir} used without scratch_dir", p.Name)
			}
		}
	}
	return nil
}

func unionTags(lists ...[]string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, l := range lists {
		for _, t := range l {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func keyList[V any](m map[string]V) string {
	return strings.Join(sortedKeys(m), ", ")
}

// LoadMatrix reads a matrix file. .cue files are evaluated with CUE, .json
// files decoded as JSON, anything else as YAML. Unknown fields are rejected.
func LoadMatrix(path string) (*Matrix, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read matrix file: %w", err)
	}

	var m *Matrix
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		m, err = parseMatrixCUE(path, data)
	case ".json":
		m, err = parseMatrixJSON(data)
	default:
		m, err = ParseMatrixYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := m.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// ParseMatrixYAML decodes a YAML matrix document.
func ParseMatrixYAML(data []byte) (*Matrix, error) {
	var m Matrix
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &m, nil
}

func parseMatrixJSON(data []byte) (*Matrix, error) {
	var m Matrix
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&m); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &m, nil
}

func parseMatrixCUE(filename string, data []byte) (*Matrix, error) {
	value := cuecontext.New().CompileBytes(data, cue.Filename(filename))
	if err := value.Err(); err != nil {
		return nil, fmt.Errorf("building CUE value: %s", errors.Details(err, nil))
	}
	if err := value.Validate(cue.Concrete(true)); err != nil {
		return nil, fmt.Errorf("CUE value is not concrete: %s", errors.Details(err, nil))
	}
	js, err := value.MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("exporting CUE value: %w", err)
	}
	return parseMatrixJSON(js)
}

// DefaultMatrix returns the standard self-test matrix: 26 rows sweeping name
// selection, verbosity, dependency blocking and parallelism, plus the
// left-behind-files and core-dump probes.
func DefaultMatrix() *Matrix {
	m := &Matrix{
		Subject:    "./test/testprog",
		Args:       []string{"-p", "apa=katt", "--param=numeric=010"},
		ReportFlag: DefaultReportFlag,
		Fixtures:   map[string]string{"apafil": "apa\n"},
		Verbosity: map[string]VerbosityMode{
			"terse":   {Results: string(catalog.FilterFailed)},
			"verbose": {Flags: []string{"-v"}, Results: string(catalog.FilterAll)},
		},
		Blocking: map[string]Mode{
			"nodeps": {Flags: []string{"-n"}},
			"deps":   {ExcludeTags: []string{"blocked"}},
		},
		Slowness: map[string]Mode{
			"quick":    {ExcludeTags: []string{"slow", "filesystem"}},
			"parallel": {Flags: []string{"-c", "8"}},
		},
	}

	type axes struct{ verbosity, blocking, slowness string }
	sweep := []axes{
		{"terse", "deps", "quick"},
		{"verbose", "deps", "quick"},
		{"terse", "deps", "parallel"},
		{"verbose", "deps", "parallel"},
		{"terse", "nodeps", "quick"},
		{"verbose", "nodeps", "quick"},
		{"terse", "nodeps", "parallel"},
	}
	asserts := append(append([]axes{}, sweep...), axes{"verbose", "deps", "parallel"})
	death := append(append([]axes{}, sweep...), axes{"verbose", "nodeps", "parallel"})
	all := []axes{
		{"terse", "deps", "quick"},
		{"verbose", "deps", "quick"},
		{"terse", "deps", "parallel"},
		{"verbose", "deps", "parallel"},
		{"terse", "nodeps", "quick"},
		{"verbose", "deps", "quick"},
		{"terse", "nodeps", "parallel"},
		{"verbose", "nodeps", "parallel"},
	}

	add := func(names []string, a axes) {
		m.Rows = append(m.Rows, Row{Names: names, Verbosity: a.verbosity, Blocking: a.blocking, Slowness: a.slowness})
	}
	add([]string{"default_success"}, axes{"terse", "deps", "quick"})
	for _, a := range asserts {
		add([]string{"asserts"}, a)
	}
	for _, a := range death {
		add([]string{"asserts", "death"}, a)
	}
	for _, a := range all {
		add(nil, a)
	}
	m.Rows = append(m.Rows, Row{
		Verbosity:  "terse",
		Blocking:   "deps",
		Slowness:   "quick",
		ReportFlag: "-o /tmp/crpcutst$$ -q",
		Post:       "v=$?; cat /tmp/crpcutst$$; rm /tmp/crpcutst$$; exit $v",
	})

	m.Probes = []Probe{
		{
			Name:              "left_behind_files",
			Args:              []string{"-o", "/dev/null", "-q", "-d", "${dir}", "should_fail_due_to_left_behind_files"},
			ScratchDir:        true,
			ExpectEmptyStdout: true,
			Files:             []string{"should_fail_due_to_left_behind_files/apa", "should_fail_due_to_left_behind_files"},
		},
		{
			Name:      "core_dump",
			Args:      []string{"-s", "asserts::should_fail_void_ptr_eq_ptr"},
			PreRemove: []string{"core"},
			Files:     []string{"core"},
		},
	}
	return m
}
