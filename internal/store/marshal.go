package store

import (
	"encoding/json"
	"fmt"

	"github.com/rollbear/crpcut/internal/canonical"
	"github.com/rollbear/crpcut/internal/harness"
	"github.com/rollbear/crpcut/internal/report"
)

// marshalTally converts a row tally to canonical JSON TEXT for storage.
func marshalTally(t harness.Tally) (string, error) {
	data, err := canonical.Marshal(map[string]any{
		"actual_failed":   t.ActualFailed,
		"actual_passed":   t.ActualPassed,
		"expected_failed": t.ExpectedFailed,
		"expected_passed": t.ExpectedPassed,
	})
	if err != nil {
		return "", fmt.Errorf("marshal tally: %w", err)
	}
	return string(data), nil
}

// marshalStats converts report statistics to canonical JSON TEXT. Rows
// without a usable report store an empty object.
func marshalStats(st *report.Stats) (string, error) {
	if st == nil {
		return "{}", nil
	}
	m := map[string]any{
		"registered": st.Registered,
		"run":        st.Run,
		"failed":     st.Failed,
	}
	if st.Selected != 0 {
		m["selected"] = st.Selected
	}
	if st.Untested != 0 {
		m["untested"] = st.Untested
	}
	if st.FailedNonCritical != 0 {
		m["failed_non_critical"] = st.FailedNonCritical
	}
	if st.RemainingDir != "" {
		m["remaining_dir"] = st.RemainingDir
	}
	if len(st.Blocked) > 0 {
		m["blocked"] = st.Blocked
	}
	for key, val := range map[string]string{
		"start_time": st.StartTime,
		"host":       st.Host,
		"command":    st.Command,
		"id":         st.ID,
	} {
		if val != "" {
			m[key] = val
		}
	}
	data, err := canonical.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("marshal stats: %w", err)
	}
	return string(data), nil
}

func unmarshalTally(data string) (harness.Tally, error) {
	var t harness.Tally
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return harness.Tally{}, fmt.Errorf("unmarshal tally: %w", err)
	}
	return t, nil
}

// unmarshalStats returns nil for rows stored without statistics.
func unmarshalStats(data string) (*report.Stats, error) {
	if data == "" || data == "{}" {
		return nil, nil
	}
	var st report.Stats
	if err := json.Unmarshal([]byte(data), &st); err != nil {
		return nil, fmt.Errorf("unmarshal stats: %w", err)
	}
	return &st, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
