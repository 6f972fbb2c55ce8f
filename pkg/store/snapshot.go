package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// snapshotTables are the tables included in a state snapshot, in the
// order they appear in the output.
var snapshotTables = []string{
	"teams",
	"agents",
	"missions",
	"mission_steps",
	"hiring_proposals",
	"lessons_learned",
	"agent_skills",
	"projects",
}

// Snapshot serializes recent rows from the core tables as a single JSON
// document, keyed by table name. Rows older than the lookback are
// excluded; a zero lookback includes everything.
func (s *Store) Snapshot(ctx context.Context, lookback time.Duration) (json.RawMessage, error) {
	out := make(map[string][]map[string]any, len(snapshotTables))
	for _, table := range snapshotTables {
		rows, err := s.snapshotTable(ctx, table, lookback)
		if err != nil {
			return nil, fmt.Errorf("snapshotting %s: %w", table, err)
		}
		out[table] = rows
	}
	doc, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encoding snapshot: %w", err)
	}
	return doc, nil
}

func (s *Store) snapshotTable(ctx context.Context, table string, lookback time.Duration) ([]map[string]any, error) {
	// Table names come from the fixed list above, never from input.
	query := fmt.Sprintf(`SELECT * FROM %s`, table)
	args := []any{}
	if lookback > 0 {
		query += ` WHERE created_at >= $1`
		args = append(args, nowUTC().Add(-lookback))
	}
	query += ` ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	out := []map[string]any{}
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		rec := make(map[string]any, len(cols))
		for i, col := range cols {
			rec[col] = normalizeValue(vals[i])
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		// jsonb and text columns both arrive as bytes through the
		// stdlib driver; keep jsonb structural, everything else a string.
		if json.Valid(val) {
			return json.RawMessage(append([]byte(nil), val...))
		}
		return string(val)
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	default:
		return v
	}
}
