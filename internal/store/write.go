package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rollbear/crpcut/internal/harness"
)

// SaveRun writes a complete run report in one transaction.
// Uses ON CONFLICT(id) DO NOTHING for idempotency: a run id that is already
// stored is left untouched and no error is returned.
func (s *Store) SaveRun(ctx context.Context, rep *harness.RunReport) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, subject, catalog_size, total, failed, passed)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`,
		rep.ID,
		rep.StartedAt.UTC().Format(time.RFC3339Nano),
		rep.Subject,
		rep.CatalogSize,
		rep.Total(),
		rep.Failed(),
		boolInt(rep.Pass()),
	)
	if err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	if n, err := res.RowsAffected(); err != nil {
		return fmt.Errorf("save run: %w", err)
	} else if n == 0 {
		return tx.Commit()
	}

	seq := 0
	for _, group := range [][]harness.RowResult{rep.Rows, rep.Probes} {
		for i := range group {
			if err := writeRow(ctx, tx, rep.ID, seq, &group[i]); err != nil {
				return fmt.Errorf("save run %s: %w", rep.ID, err)
			}
			seq++
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("save run: %w", err)
	}
	return nil
}

func writeRow(ctx context.Context, tx *sql.Tx, runID string, seq int, row *harness.RowResult) error {
	tally, err := marshalTally(row.Tally)
	if err != nil {
		return err
	}
	stats, err := marshalStats(row.Stats)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO run_rows
		(run_id, seq, idx, probe, params, command_line, exit_code, selected, passed, tally, stats)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		runID, seq, row.Index, row.Probe, row.Label, row.CommandLine,
		row.ExitCode, row.Selected, boolInt(row.Pass), tally, stats,
	)
	if err != nil {
		return fmt.Errorf("write row %d: %w", seq, err)
	}

	for i, d := range row.Discrepancies {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO discrepancies (run_id, row_seq, seq, kind, test, message)
			VALUES (?, ?, ?, ?, ?, ?)
		`, runID, seq, i, string(d.Kind), d.Test, d.Message)
		if err != nil {
			return fmt.Errorf("write discrepancy %d of row %d: %w", i, seq, err)
		}
	}
	return nil
}
