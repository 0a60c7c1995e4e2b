package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var (
	_ repo.SiteStore    = (*Store)(nil)
	_ repo.HistoryStore = (*Store)(nil)
	_ repo.EventStore   = (*Store)(nil)
	_ repo.AlertStore   = (*Store)(nil)
)

// Schema is applied by Migrate. Every statement is idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS sites (
  id         TEXT PRIMARY KEY,
  user_id    TEXT NOT NULL,
  url        TEXT NOT NULL,
  name       TEXT NOT NULL DEFAULT '',
  active     BOOLEAN NOT NULL DEFAULT TRUE,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
  UNIQUE (user_id, url)
);

CREATE TABLE IF NOT EXISTS checks (
  id         BIGSERIAL PRIMARY KEY,
  site_id    TEXT NOT NULL REFERENCES sites(id) ON DELETE CASCADE,
  status     INTEGER NOT NULL,
  latency_ms BIGINT NOT NULL,
  error      TEXT NOT NULL DEFAULT '',
  checked_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_checks_site_time ON checks (site_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS events (
  id         BIGSERIAL PRIMARY KEY,
  site_id    TEXT NOT NULL DEFAULT '',
  user_id    TEXT NOT NULL DEFAULT '',
  level      TEXT NOT NULL,
  message    TEXT NOT NULL,
  context    JSONB,
  created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_events_site_time ON events (site_id, created_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
  site_id      TEXT PRIMARY KEY,
  last_state   BOOLEAN NOT NULL,
  last_sent_at TIMESTAMPTZ NULL
);
`

type Store struct {
	pool *pgxpool.Pool
	log  *zap.Logger
}

func New(ctx context.Context, dsn string, log *zap.Logger) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("pgxpool.New: %w", err)
	}
	ctxPing, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(ctxPing); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping: %w", err)
	}
	return &Store{pool: pool, log: log}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	s.log.Info("postgres_migrated")
	return nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// ---- SiteStore ----

func (s *Store) AddSite(ctx context.Context, site *domain.Site) error {
	if site.ID == "" {
		site.ID = domain.SiteID(uuid.NewString())
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO sites (id, user_id, url, name, active, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		string(site.ID), site.UserID, site.URL, site.Name, site.Active, site.CreatedAt,
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		return repo.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

const siteColumns = `id, user_id, url, name, active, created_at`

func scanSite(row pgx.Row) (*domain.Site, error) {
	var (
		site domain.Site
		id   string
	)
	if err := row.Scan(&id, &site.UserID, &site.URL, &site.Name, &site.Active, &site.CreatedAt); err != nil {
		return nil, err
	}
	site.ID = domain.SiteID(id)
	return &site, nil
}

func (s *Store) GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	site, err := scanSite(s.pool.QueryRow(ctx,
		`SELECT `+siteColumns+` FROM sites WHERE id = $1`, string(id)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get site: %w", err)
	}
	return site, nil
}

func (s *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	return s.listSites(ctx, `SELECT `+siteColumns+` FROM sites ORDER BY created_at DESC, id DESC`)
}

func (s *Store) ListActiveSites(ctx context.Context) ([]domain.Site, error) {
	return s.listSites(ctx, `SELECT `+siteColumns+` FROM sites WHERE active ORDER BY created_at DESC, id DESC`)
}

func (s *Store) listSites(ctx context.Context, q string) ([]domain.Site, error) {
	rows, err := s.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list sites: %w", err)
	}
	defer rows.Close()

	var out []domain.Site
	for rows.Next() {
		site, err := scanSite(rows)
		if err != nil {
			return nil, fmt.Errorf("scan site: %w", err)
		}
		out = append(out, *site)
	}
	return out, rows.Err()
}

func (s *Store) UpdateSite(ctx context.Context, id domain.SiteID, u repo.SiteUpdate) (*domain.Site, error) {
	site, err := scanSite(s.pool.QueryRow(ctx,
		`UPDATE sites
		    SET active = COALESCE($2, active),
		        url    = COALESCE($3, url)
		  WHERE id = $1
		 RETURNING `+siteColumns,
		string(id), u.Active, u.URL))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, repo.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("update site: %w", err)
	}
	return site, nil
}

// ---- HistoryStore ----

func (s *Store) AppendCheck(ctx context.Context, r *domain.CheckResult, keep int) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx,
			`INSERT INTO checks (site_id, status, latency_ms, error, checked_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			string(r.SiteID), r.Status, r.LatencyMS, r.Error, r.CheckedAt,
		)
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return repo.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("insert check: %w", err)
		}
		if keep <= 0 {
			return nil
		}
		_, err = tx.Exec(ctx,
			`DELETE FROM checks
			  WHERE site_id = $1
			    AND id NOT IN (SELECT id FROM checks
			                    WHERE site_id = $1
			                    ORDER BY checked_at DESC, id DESC
			                    LIMIT $2)`,
			string(r.SiteID), keep,
		)
		if err != nil {
			return fmt.Errorf("trim checks: %w", err)
		}
		return nil
	})
}

func (s *Store) History(ctx context.Context, id domain.SiteID) ([]domain.CheckResult, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT status, latency_ms, error, checked_at
		   FROM checks
		  WHERE site_id = $1
		  ORDER BY checked_at ASC, id ASC`, string(id))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckResult
	for rows.Next() {
		r := domain.CheckResult{SiteID: id}
		if err := rows.Scan(&r.Status, &r.LatencyMS, &r.Error, &r.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan check: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) LastCheck(ctx context.Context, id domain.SiteID) (*domain.CheckResult, error) {
	r := domain.CheckResult{SiteID: id}
	err := s.pool.QueryRow(ctx,
		`SELECT status, latency_ms, error, checked_at
		   FROM checks
		  WHERE site_id = $1
		  ORDER BY checked_at DESC, id DESC
		  LIMIT 1`, string(id)).Scan(&r.Status, &r.LatencyMS, &r.Error, &r.CheckedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // no checks yet
	}
	if err != nil {
		return nil, fmt.Errorf("last check: %w", err)
	}
	return &r, nil
}

func (s *Store) Latest(ctx context.Context) ([]domain.LatestRow, error) {
	rows, err := s.pool.Query(ctx, `
SELECT DISTINCT ON (c.site_id)
       c.site_id,
       s.url,
       c.status,
       c.latency_ms,
       c.error,
       c.checked_at
  FROM checks c
  JOIN sites s ON s.id = c.site_id
 ORDER BY c.site_id, c.checked_at DESC, c.id DESC`)
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	defer rows.Close()

	var out []domain.LatestRow
	for rows.Next() {
		var (
			row domain.LatestRow
			id  string
		)
		if err := rows.Scan(&id, &row.URL, &row.Status, &row.LatencyMS, &row.Error, &row.CheckedAt); err != nil {
			return nil, fmt.Errorf("scan latest: %w", err)
		}
		row.SiteID = domain.SiteID(id)
		out = append(out, row)
	}
	return out, rows.Err()
}
