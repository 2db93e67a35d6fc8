package catalog

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// File is the on-disk form of a catalog document.
type File struct {
	// DefaultFlavor applies to patterns that do not name a flavor.
	DefaultFlavor string `yaml:"default_flavor,omitempty" json:"default_flavor,omitempty" jsonschema:"enum=re2,enum=regexp2"`

	Tests map[string]Entry `yaml:"tests" json:"tests"`
}

// Entry is the on-disk form of an ExpectedOutcome.
type Entry struct {
	Result      string     `yaml:"result" json:"result" jsonschema:"enum=PASSED,enum=FAILED"`
	Phase       string     `yaml:"phase,omitempty" json:"phase,omitempty"`
	Tags        []string   `yaml:"tags,omitempty" json:"tags,omitempty"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	Logs        []LogEntry `yaml:"logs,omitempty" json:"logs,omitempty"`
	Files       []string   `yaml:"files,omitempty" json:"files,omitempty"`
}

// LogEntry is written either as a single-key map `type: pattern` or as an
// object with type, pattern and an optional flavor.
type LogEntry struct {
	Type    string `yaml:"type" json:"type"`
	Pattern string `yaml:"pattern" json:"pattern"`
	Flavor  string `yaml:"flavor,omitempty" json:"flavor,omitempty"`
}

var logEntryKeys = map[string]bool{"type": true, "pattern": true, "flavor": true}

// UnmarshalYAML accepts both log entry forms.
func (l *LogEntry) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: log entry must be a mapping", node.Line)
	}
	var m map[string]string
	if err := node.Decode(&m); err != nil {
		return err
	}
	return l.fromMap(m)
}

// UnmarshalJSON accepts both log entry forms.
func (l *LogEntry) UnmarshalJSON(data []byte) error {
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return fmt.Errorf("log entry: %w", err)
	}
	return l.fromMap(m)
}

func (l *LogEntry) fromMap(m map[string]string) error {
	if _, ok := m["type"]; ok {
		for k := range m {
			if !logEntryKeys[k] {
				return fmt.Errorf("log entry: unknown field %q", k)
			}
		}
		if m["pattern"] == "" {
			return fmt.Errorf("log entry %q: pattern is required", m["type"])
		}
		*l = LogEntry{Type: m["type"], Pattern: m["pattern"], Flavor: m["flavor"]}
		return nil
	}
	if len(m) != 1 {
		return fmt.Errorf("log entry must have exactly one `type: pattern` pair, got %d", len(m))
	}
	for k, v := range m {
		*l = LogEntry{Type: k, Pattern: v}
	}
	return nil
}

// LoadError reports a problem in a catalog file.
type LoadError struct {
	Path    string
	Test    string
	Message string
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString(e.Path)
	if e.Test != "" {
		fmt.Fprintf(&b, ": test %q", e.Test)
	}
	b.WriteString(": ")
	b.WriteString(e.Message)
	return b.String()
}

// ParseYAML decodes a YAML catalog document. Unknown fields are rejected.
func ParseYAML(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &f, nil
}

// ParseJSON decodes a JSON catalog document. Unknown fields are rejected.
func ParseJSON(data []byte) (*File, error) {
	var f File
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("failed to parse JSON: %w", err)
	}
	return &f, nil
}

// Build converts a decoded document into a Catalog. Entries are ordered by id.
func (f *File) Build(source string) (*Catalog, error) {
	defFlavor, err := ParseFlavor(f.DefaultFlavor)
	if err != nil {
		return nil, &LoadError{Path: source, Message: err.Error()}
	}
	if len(f.Tests) == 0 {
		return nil, &LoadError{Path: source, Message: "tests map is required and must be non-empty"}
	}

	ids := make([]string, 0, len(f.Tests))
	for id := range f.Tests {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	c := &Catalog{entries: make(map[string]*ExpectedOutcome, len(ids))}
	for _, id := range ids {
		o, err := f.Tests[id].outcome(id, defFlavor)
		if err != nil {
			return nil, &LoadError{Path: source, Test: id, Message: err.Error()}
		}
		if err := c.add(o); err != nil {
			return nil, &LoadError{Path: source, Test: id, Message: err.Error()}
		}
	}
	return c, nil
}

func (e Entry) outcome(id string, defFlavor Flavor) (ExpectedOutcome, error) {
	o := ExpectedOutcome{
		ID:          id,
		Result:      Result(strings.ToUpper(e.Result)),
		Phase:       e.Phase,
		Tags:        e.Tags,
		Description: e.Description,
		Files:       e.Files,
	}
	for i, l := range e.Logs {
		flavor := defFlavor
		if l.Flavor != "" {
			fl, err := ParseFlavor(l.Flavor)
			if err != nil {
				return o, fmt.Errorf("logs[%d]: %w", i, err)
			}
			flavor = fl
		}
		p, err := CompilePattern(l.Pattern, flavor)
		if err != nil {
			return o, fmt.Errorf("logs[%d]: %w", i, err)
		}
		o.Logs = append(o.Logs, LogExpectation{Type: l.Type, Pattern: p})
	}
	return o, nil
}

// LoadFile reads one catalog file. The format follows the extension:
// .cue is CUE, .json is JSON, anything else YAML.
func LoadFile(path string) (*Catalog, error) {
	f, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return f.Build(path)
}

// ReadFile reads and decodes one catalog file without building it.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Path: path, Message: fmt.Sprintf("failed to read catalog file: %v", err)}
	}

	var f *File
	switch strings.ToLower(filepath.Ext(path)) {
	case ".cue":
		f, err = ParseCUE(path, data)
	case ".json":
		f, err = ParseJSON(data)
	default:
		f, err = ParseYAML(data)
	}
	if err != nil {
		return nil, &LoadError{Path: path, Message: err.Error()}
	}
	return f, nil
}

// ExpandPaths resolves doublestar glob patterns into a sorted, de-duplicated
// list of files. A pattern without glob metacharacters is returned as-is so
// that a missing file is reported by the loader.
func ExpandPaths(patterns []string) ([]string, error) {
	seen := make(map[string]bool)
	var paths []string
	for _, p := range patterns {
		matches := []string{p}
		if hasMeta(p) {
			var err error
			matches, err = doublestar.FilepathGlob(p, doublestar.WithFilesOnly())
			if err != nil {
				return nil, fmt.Errorf("invalid catalog pattern %q: %w", p, err)
			}
			if len(matches) == 0 {
				return nil, fmt.Errorf("catalog pattern %q matched no files", p)
			}
			sort.Strings(matches)
		}
		for _, m := range matches {
			if !seen[m] {
				seen[m] = true
				paths = append(paths, m)
			}
		}
	}
	return paths, nil
}

func hasMeta(p string) bool {
	return strings.ContainsAny(p, "*?[{")
}

// LoadFiles loads and merges every catalog matched by patterns.
func LoadFiles(patterns []string) (*Catalog, error) {
	paths, err := ExpandPaths(patterns)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("no catalog files given")
	}

	merged, err := New()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		c, err := LoadFile(p)
		if err != nil {
			return nil, err
		}
		merged, err = merged.Merge(c)
		if err != nil {
			return nil, &LoadError{Path: p, Message: err.Error()}
		}
	}
	return merged, nil
}
