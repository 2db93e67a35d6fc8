package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rollbear/crpcut/internal/harness"
)

// ErrRunNotFound is returned by ReadRun for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// RunSummary is one line of the run history.
type RunSummary struct {
	ID          string    `json:"id"`
	StartedAt   time.Time `json:"started_at"`
	Subject     string    `json:"subject"`
	CatalogSize int       `json:"catalog_size"`
	Total       int       `json:"total"`
	Failed      int       `json:"failed"`
	Pass        bool      `json:"pass"`
}

// TestDiscrepancy is a discrepancy attributed to one test, with the run and
// row it was recorded in.
type TestDiscrepancy struct {
	RunID     string       `json:"run_id"`
	StartedAt time.Time    `json:"started_at"`
	Row       int          `json:"row"`
	Params    string       `json:"params"`
	Kind      harness.Kind `json:"kind"`
	Message   string       `json:"message"`
}

// ListRuns returns the most recent runs, newest first. A limit <= 0 returns
// every run.
//
// Returns an empty slice (not nil) when the history is empty.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]RunSummary, error) {
	query := `
		SELECT id, started_at, subject, catalog_size, total, failed, passed
		FROM runs
		ORDER BY started_at DESC, id COLLATE BINARY DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []RunSummary{}
	for rows.Next() {
		var r RunSummary
		var started string
		var passed int
		if err := rows.Scan(&r.ID, &started, &r.Subject, &r.CatalogSize, &r.Total, &r.Failed, &passed); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if r.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		r.Pass = passed == 1
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun reconstructs a stored run report. Matrix rows and probes come back
// in their recorded order. Returns ErrRunNotFound for an unknown id.
func (s *Store) ReadRun(ctx context.Context, id string) (*harness.RunReport, error) {
	rep := &harness.RunReport{ID: id, Rows: []harness.RowResult{}}
	var started string
	err := s.db.QueryRowContext(ctx, `
		SELECT started_at, subject, catalog_size FROM runs WHERE id = ?
	`, id).Scan(&started, &rep.Subject, &rep.CatalogSize)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("read run %s: %w", id, err)
	}
	if rep.StartedAt, err = parseTime(started); err != nil {
		return nil, err
	}

	rows, seqs, err := s.readRows(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.attachDiscrepancies(ctx, id, seqs); err != nil {
		return nil, err
	}

	for _, row := range rows {
		if row.Probe != "" {
			rep.Probes = append(rep.Probes, *row)
		} else {
			rep.Rows = append(rep.Rows, *row)
		}
	}
	return rep, nil
}

func (s *Store) readRows(ctx context.Context, runID string) ([]*harness.RowResult, map[int]*harness.RowResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, idx, probe, params, command_line, exit_code, selected, passed, tally, stats
		FROM run_rows
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, nil, fmt.Errorf("query rows: %w", err)
	}
	defer rows.Close()

	var ordered []*harness.RowResult
	bySeq := map[int]*harness.RowResult{}
	for rows.Next() {
		var seq, passed int
		var tally, stats string
		row := &harness.RowResult{Discrepancies: []harness.Discrepancy{}}
		if err := rows.Scan(&seq, &row.Index, &row.Probe, &row.Label, &row.CommandLine,
			&row.ExitCode, &row.Selected, &passed, &tally, &stats); err != nil {
			return nil, nil, fmt.Errorf("scan row: %w", err)
		}
		row.Pass = passed == 1
		if row.Tally, err = unmarshalTally(tally); err != nil {
			return nil, nil, err
		}
		if row.Stats, err = unmarshalStats(stats); err != nil {
			return nil, nil, err
		}
		ordered = append(ordered, row)
		bySeq[seq] = row
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate rows: %w", err)
	}
	return ordered, bySeq, nil
}

func (s *Store) attachDiscrepancies(ctx context.Context, runID string, bySeq map[int]*harness.RowResult) error {
	rows, err := s.db.QueryContext(ctx, `
		SELECT row_seq, kind, test, message
		FROM discrepancies
		WHERE run_id = ?
		ORDER BY row_seq ASC, seq ASC
	`, runID)
	if err != nil {
		return fmt.Errorf("query discrepancies: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rowSeq int
		var kind string
		var d harness.Discrepancy
		if err := rows.Scan(&rowSeq, &kind, &d.Test, &d.Message); err != nil {
			return fmt.Errorf("scan discrepancy: %w", err)
		}
		d.Kind = harness.Kind(kind)
		row, ok := bySeq[rowSeq]
		if !ok {
			return fmt.Errorf("discrepancy references missing row %d", rowSeq)
		}
		row.Discrepancies = append(row.Discrepancies, d)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate discrepancies: %w", err)
	}
	return nil
}

// TestHistory returns every discrepancy recorded against the named test,
// newest run first.
func (s *Store) TestHistory(ctx context.Context, test string) ([]TestDiscrepancy, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.id, r.started_at, rr.idx, rr.params, d.kind, d.message
		FROM discrepancies d
		JOIN run_rows rr ON rr.run_id = d.run_id AND rr.seq = d.row_seq
		JOIN runs r ON r.id = d.run_id
		WHERE d.test = ?
		ORDER BY r.started_at DESC, r.id COLLATE BINARY DESC, d.row_seq ASC, d.seq ASC
	`, test)
	if err != nil {
		return nil, fmt.Errorf("query test history: %w", err)
	}
	defer rows.Close()

	out := []TestDiscrepancy{}
	for rows.Next() {
		var td TestDiscrepancy
		var started, kind string
		if err := rows.Scan(&td.RunID, &started, &td.Row, &td.Params, &kind, &td.Message); err != nil {
			return nil, fmt.Errorf("scan test history: %w", err)
		}
		if td.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		td.Kind = harness.Kind(kind)
		out = append(out, td)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate test history: %w", err)
	}
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse started_at %q: %w", s, err)
	}
	return t, nil
}
