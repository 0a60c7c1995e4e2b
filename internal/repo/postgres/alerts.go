package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

func (s *Store) GetAlert(ctx context.Context, id domain.SiteID) (*repo.AlertRecord, error) {
	const q = `SELECT last_state, last_sent_at FROM alerts WHERE site_id=$1`
	r := repo.AlertRecord{SiteID: id}
	var lastSent *time.Time
	err := s.pool.QueryRow(ctx, q, string(id)).Scan(&r.LastState, &lastSent)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	r.LastSentAt = lastSent
	return &r, nil
}

func (s *Store) SetAlert(ctx context.Context, id domain.SiteID, lastState bool, sentAt time.Time) error {
	const q = `
		INSERT INTO alerts (site_id, last_state, last_sent_at)
		VALUES ($1,$2,$3)
		ON CONFLICT (site_id)
		DO UPDATE SET last_state=EXCLUDED.last_state, last_sent_at=EXCLUDED.last_sent_at
	`
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	_, err := s.pool.Exec(ctx, q, string(id), lastState, ts)
	return err
}
