package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hamed0406/sitewatch/internal/domain"
)

func (s *Store) AppendEvent(ctx context.Context, e *domain.Event) error {
	var raw []byte
	if len(e.Context) > 0 {
		b, err := json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("encode event context: %w", err)
		}
		raw = b
	}
	err := s.pool.QueryRow(ctx,
		`INSERT INTO events (site_id, user_id, level, message, context)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, created_at`,
		string(e.SiteID), e.UserID, string(e.Level), e.Message, raw,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, id domain.SiteID, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, level, message, context, created_at
		   FROM events
		  WHERE site_id = $1
		  ORDER BY created_at DESC, id DESC
		  LIMIT $2`, string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e     = domain.Event{SiteID: id}
			level string
			raw   []byte
		)
		if err := rows.Scan(&e.ID, &e.UserID, &level, &e.Message, &raw, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Level = domain.Level(level)
		if len(raw) > 0 {
			if err := json.Unmarshal(raw, &e.Context); err != nil {
				return nil, fmt.Errorf("decode event context: %w", err)
			}
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
