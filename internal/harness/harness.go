package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/rollbear/crpcut/internal/catalog"
	"github.com/rollbear/crpcut/internal/report"
	"github.com/rollbear/crpcut/internal/subject"
)

// Config wires an Orchestrator.
type Config struct {
	Catalog *catalog.Catalog
	Matrix  *Matrix
	Runner  subject.Runner

	// Preconditions are checked once before any row runs. A failure aborts
	// the whole run.
	Preconditions []subject.Precondition

	// WorkDir is where the subject runs: fixtures are written there and
	// probe paths without a scratch directory are resolved against it.
	// Defaults to the current directory.
	WorkDir string

	// ScratchRoot is where probe scratch directories are created. Defaults
	// to the system temporary directory.
	ScratchRoot string

	Logger *slog.Logger
	IDs    IDGenerator
	Clock  func() time.Time
}

// Orchestrator runs the invocation matrix against the subject and reconciles
// every report with the catalog. Rows run sequentially; each row works on
// its own copy of the selected catalog entries.
type Orchestrator struct {
	catalog     *catalog.Catalog
	matrix      *Matrix
	runner      subject.Runner
	checks      []subject.Precondition
	workDir     string
	scratchRoot string
	logger      *slog.Logger
	ids         IDGenerator
	now         func() time.Time
}

// New creates an orchestrator from cfg.
func New(cfg Config) (*Orchestrator, error) {
	if cfg.Catalog == nil {
		return nil, fmt.Errorf("catalog is required")
	}
	if cfg.Matrix == nil {
		return nil, fmt.Errorf("matrix is required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if err := cfg.Matrix.Validate(); err != nil {
		return nil, err
	}

	o := &Orchestrator{
		catalog:     cfg.Catalog,
		matrix:      cfg.Matrix,
		runner:      cfg.Runner,
		checks:      cfg.Preconditions,
		workDir:     cfg.WorkDir,
		scratchRoot: cfg.ScratchRoot,
		logger:      cfg.Logger,
		ids:         cfg.IDs,
		now:         cfg.Clock,
	}
	if o.workDir == "" {
		o.workDir = "."
	}
	if o.scratchRoot == "" {
		o.scratchRoot = os.TempDir()
	}
	if o.logger == nil {
		o.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if o.ids == nil {
		o.ids = UUIDv7Generator{}
	}
	if o.now == nil {
		o.now = time.Now
	}
	return o, nil
}

// RunOptions narrows a run.
type RunOptions struct {
	// Rows lists 1-based row indices to run; empty runs every row.
	Rows []int

	SkipProbes bool
}

// Run executes the matrix and then the probes.
//
// Discrepancies are collected in the returned report. An error is returned
// only when the run cannot proceed at all: an unmet precondition (as a
// *subject.PreconditionError), fixtures that cannot be written, an invalid
// row filter or a cancelled context.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunReport, error) {
	configs, err := o.matrix.Resolve()
	if err != nil {
		return nil, err
	}
	configs, err = filterRows(configs, opts.Rows)
	if err != nil {
		return nil, err
	}

	cleanup, err := o.writeFixtures()
	defer cleanup()
	if err != nil {
		return nil, err
	}

	for _, check := range o.checks {
		o.logger.Debug("checking precondition", "check", check.Name())
		if err := check.Check(ctx); err != nil {
			return nil, err
		}
	}

	rep := &RunReport{
		ID:          o.ids.Generate(),
		StartedAt:   o.now(),
		Subject:     o.matrix.Subject,
		CatalogSize: o.catalog.Len(),
		Rows:        make([]RowResult, 0, len(configs)),
	}
	o.logger.Info("starting run", "run_id", rep.ID, "rows", len(configs), "catalog", rep.CatalogSize)

	for _, cfg := range configs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rep.Rows = append(rep.Rows, *o.RunRow(ctx, cfg))
	}

	if !opts.SkipProbes {
		for _, p := range o.matrix.Probes {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			rep.Probes = append(rep.Probes, *o.RunProbe(ctx, p))
		}
	}

	o.logger.Info("run finished", "run_id", rep.ID, "failed", rep.Failed(), "total", rep.Total())
	return rep, nil
}

// RunRow executes the subject once for cfg and reconciles its report.
func (o *Orchestrator) RunRow(ctx context.Context, cfg InvocationConfig) *RowResult {
	line := cfg.CommandLine(o.matrix.Subject, o.matrix.Args)
	row := NewRowResult(cfg.Index, cfg.Params(), line)

	selected := catalog.Select(o.catalog, cfg.Selection())
	row.Selected = selected.Len()

	o.logger.Info("running row", "row", cfg.Index, "selected", row.Selected)
	o.logger.Debug("subject command", "row", cfg.Index, "command", line)

	res, err := o.runner.Run(ctx, line)
	if err != nil {
		row.Add(discrepancy(KindStructural, "subject could not be run: %v", err))
		return row
	}
	row.ExitCode = res.ExitCode
	if len(res.Stderr) > 0 {
		o.logger.Debug("subject stderr", "row", cfg.Index, "stderr", string(res.Stderr))
	}

	parsed, err := report.ParseBytes(res.Stdout)
	if err != nil {
		row.Add(discrepancy(KindStructural, "%v", err))
		o.logger.Warn("unusable report", "row", cfg.Index, "error", err)
		return row
	}

	CheckReport(row, selected, parsed, res.ExitCode)
	o.logger.Info("row finished", "row", cfg.Index, "pass", row.Pass, "discrepancies", len(row.Discrepancies))
	return row
}

// CheckReport reconciles a parsed report with the selected catalog entries
// and records every discrepancy in row. Reconciled entries are consumed from
// a working copy of selected; artifacts they predict are removed from disk.
func CheckReport(row *RowResult, selected *catalog.Catalog, rep *report.Report, exitCode int) {
	stats := rep.Stats
	row.Stats = &stats
	row.ExitCode = exitCode

	working := selected.Clone()
	var unexpected []string

	for _, rec := range rep.Records {
		switch rec.Result {
		case string(catalog.Failed):
			row.Tally.ActualFailed++
		case string(catalog.Passed):
			row.Tally.ActualPassed++
		}

		expected, ok := working.Take(rec.Name)
		if !ok {
			unexpected = append(unexpected, rec.Name)
			continue
		}
		if d := Reconcile(expected, rec); d != nil {
			row.Add(d)
			continue
		}
		switch expected.Result {
		case catalog.Failed:
			row.Tally.ExpectedFailed++
		case catalog.Passed:
			row.Tally.ExpectedPassed++
		}
	}

	if dir := stats.RemainingDir; dir != "" {
		if err := os.Remove(dir); err != nil {
			row.Add(discrepancy(KindArtifact, "working dir not empty"))
		}
	}
	if remaining := working.Remaining(); len(remaining) > 0 {
		row.Add(discrepancy(KindSelection, "expected tests did not run: {%s}", strings.Join(remaining, ", ")))
	}
	for _, name := range unexpected {
		row.Add(discrepancy(KindSelection, "unexpected test %s", name))
	}
	row.AddAll(ReconcileAggregates(row.Tally, stats, exitCode))
}

// RunProbe executes one probe and verifies its stdout and artifacts.
func (o *Orchestrator) RunProbe(ctx context.Context, p Probe) *RowResult {
	root := o.workDir
	scratch := ""
	if p.ScratchDir {
		dir, err := os.MkdirTemp(o.scratchRoot, "crpcut_selftest_dir_")
		if err != nil {
			row := NewRowResult(0, strings.Join(p.Args, " "), "")
			row.Probe = p.Name
			row.Add(discrepancy(KindStructural, "creating scratch directory: %v", err))
			return row
		}
		scratch, root = dir, dir
	}

	args := make([]string, len(p.Args))
	for i, a := range p.Args {
		args[i] = strings.ReplaceAll(a, "${dir}", scratch)
	}
	label := strings.Join(args, " ")
	line := o.matrix.Subject + " " + label
	row := NewRowResult(0, label, line)
	row.Probe = p.Name

	for _, name := range p.PreRemove {
		path := filepath.Join(o.workDir, filepath.FromSlash(name))
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			o.logger.Warn("pre-remove failed", "probe", p.Name, "path", path, "error", err)
		}
	}

	o.logger.Info("running probe", "probe", p.Name)
	o.logger.Debug("subject command", "probe", p.Name, "command", line)

	res, err := o.runner.Run(ctx, line)
	if err != nil {
		row.Add(discrepancy(KindStructural, "subject could not be run: %v", err))
		return row
	}
	row.ExitCode = res.ExitCode

	if p.ExpectEmptyStdout && len(res.Stdout) > 0 {
		row.Add(discrepancy(KindProbe, "unexpected stdout"))
	}
	if d := checkLeafFiles(root, p.Files); d != nil {
		row.Add(d)
	} else if d := removeArtifacts(root, p.Files); d != nil {
		row.Add(d)
	} else if scratch != "" {
		if err := os.Remove(scratch); err != nil {
			row.Add(discrepancy(KindArtifact, "working dir has unexpected files"))
		}
	}

	o.logger.Info("probe finished", "probe", p.Name, "pass", row.Pass)
	return row
}

// writeFixtures creates the matrix fixture files in the work directory and
// returns a function removing them again.
func (o *Orchestrator) writeFixtures() (func(), error) {
	var written []string
	cleanup := func() {
		for _, path := range written {
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				o.logger.Warn("removing fixture failed", "path", path, "error", err)
			}
		}
	}
	for _, name := range sortedKeys(o.matrix.Fixtures) {
		path := filepath.Join(o.workDir, filepath.FromSlash(name))
		if err := os.WriteFile(path, []byte(o.matrix.Fixtures[name]), 0644); err != nil {
			return cleanup, fmt.Errorf("writing fixture %s: %w", name, err)
		}
		written = append(written, path)
	}
	return cleanup, nil
}

// RowRangeError reports a row filter naming a row the matrix does not have.
type RowRangeError struct {
	Row  int
	Rows int
}

func (e *RowRangeError) Error() string {
	return fmt.Sprintf("row %d out of range (1-%d)", e.Row, e.Rows)
}

func filterRows(configs []InvocationConfig, rows []int) ([]InvocationConfig, error) {
	if len(rows) == 0 {
		return configs, nil
	}
	out := make([]InvocationConfig, 0, len(rows))
	for _, idx := range rows {
		if idx < 1 || idx > len(configs) {
			return nil, &RowRangeError{Row: idx, Rows: len(configs)}
		}
		out = append(out, configs[idx-1])
	}
	return out, nil
}
