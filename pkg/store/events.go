package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/zerohq/agentcorp/pkg/models"
)

// InsertEvent appends an event row.
func (s *Store) InsertEvent(ctx context.Context, eventType string, severity models.EventSeverity, description string, data json.RawMessage) (*models.Event, error) {
	if eventType == "" {
		return nil, fmt.Errorf("%w: event type is required", ErrValidation)
	}
	if severity == "" {
		severity = models.SeverityInfo
	}
	var e models.Event
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO events (id, event_type, severity, description, data)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, event_type, severity, description, data, processed, created_at`,
		newID(), eventType, severity, description, nullableJSON(data)).
		Scan(&e.ID, &e.EventType, &e.Severity, &e.Description, &e.Data, &e.Processed, &e.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting event: %w", err)
	}
	return &e, nil
}

func nullableJSON(data json.RawMessage) any {
	if len(data) == 0 {
		return nil
	}
	return []byte(data)
}

// CountEventsByTypeSince counts events of a type created after the cutoff.
func (s *Store) CountEventsByTypeSince(ctx context.Context, eventType string, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM events WHERE event_type = $1 AND created_at >= $2`,
		eventType, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return n, nil
}

// CountEventsBySeveritySince counts events at a severity after the cutoff.
func (s *Store) CountEventsBySeveritySince(ctx context.Context, severity models.EventSeverity, cutoff time.Time) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `
		SELECT count(*) FROM events WHERE severity = $1 AND created_at >= $2`,
		severity, cutoff).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("counting events by severity: %w", err)
	}
	return n, nil
}

// EventsSince lists events created after the cutoff, oldest first.
func (s *Store) EventsSince(ctx context.Context, cutoff time.Time, limit int) ([]*models.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, event_type, severity, description, data, processed, created_at
		FROM events WHERE created_at >= $1 ORDER BY created_at LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("querying events: %w", err)
	}
	defer rows.Close()

	var out []*models.Event
	for rows.Next() {
		var e models.Event
		if err := rows.Scan(&e.ID, &e.EventType, &e.Severity, &e.Description, &e.Data, &e.Processed, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning event: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}
