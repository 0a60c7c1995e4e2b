package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var (
	_ repo.SiteStore    = (*Store)(nil)
	_ repo.HistoryStore = (*Store)(nil)
	_ repo.EventStore   = (*Store)(nil)
	_ repo.AlertStore   = (*Store)(nil)
)

// timeLayout is fixed-width UTC so stored timestamps sort lexicographically.
const timeLayout = "2006-01-02T15:04:05.000000Z"

// Store implements the repo ports on a single SQLite file.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database file and runs migrations.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// one writer at a time; SQLite serialises writes anyway
	db.SetMaxOpenConns(1)
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate(ctx context.Context) error {
	schema := `
CREATE TABLE IF NOT EXISTS sites (
	id         TEXT PRIMARY KEY,
	user_id    TEXT NOT NULL,
	url        TEXT NOT NULL,
	name       TEXT NOT NULL DEFAULT '',
	active     INTEGER NOT NULL DEFAULT 1,
	created_at TEXT NOT NULL,
	UNIQUE (user_id, url)
);

CREATE TABLE IF NOT EXISTS checks (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id    TEXT NOT NULL,
	status     INTEGER NOT NULL,
	latency_ms INTEGER NOT NULL,
	error      TEXT NOT NULL DEFAULT '',
	checked_at TEXT NOT NULL,
	FOREIGN KEY(site_id) REFERENCES sites(id) ON DELETE CASCADE
);
CREATE INDEX IF NOT EXISTS idx_checks_site_time ON checks (site_id, checked_at DESC);

CREATE TABLE IF NOT EXISTS events (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	site_id    TEXT NOT NULL DEFAULT '',
	user_id    TEXT NOT NULL DEFAULT '',
	level      TEXT NOT NULL,
	message    TEXT NOT NULL,
	context    TEXT,
	created_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_site_time ON events (site_id, created_at DESC);

CREATE TABLE IF NOT EXISTS alerts (
	site_id      TEXT PRIMARY KEY,
	last_state   INTEGER NOT NULL,
	last_sent_at TEXT
);
`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

func formatTime(t time.Time) string { return t.UTC().Format(timeLayout) }

func parseTime(v string) (time.Time, error) {
	return time.Parse(timeLayout, v)
}

// ---- SiteStore ----

func (s *Store) AddSite(ctx context.Context, site *domain.Site) error {
	if site.ID == "" {
		site.ID = domain.SiteID(uuid.NewString())
	}
	if site.CreatedAt.IsZero() {
		site.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sites (id, user_id, url, name, active, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(site.ID), site.UserID, site.URL, site.Name, site.Active, formatTime(site.CreatedAt))
	if err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return repo.ErrDuplicate
	}
	if err != nil {
		return fmt.Errorf("insert site: %w", err)
	}
	return nil
}

const siteColumns = `id, user_id, url, name, active, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanSite(row scanner) (*domain.Site, error) {
	var (
		site      domain.Site
		id        string
		createdAt string
	)
	if err := row.Scan(&id, &site.UserID, &site.URL, &site.Name, &site.Active, &createdAt); err != nil {
		return nil, err
	}
	t, err := parseTime(createdAt)
	if err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	site.ID = domain.SiteID(id)
	site.CreatedAt = t
	return &site, nil
}

func (s *Store) GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	site, err := scanSite(s.db.QueryRowContext(ctx, `SELECT `+siteColumns+` FROM sites WHERE id = ?`, string(id)))
	if errors.Is(err, sql.ErrNoRows) {
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
	return s.listSites(ctx, `SELECT `+siteColumns+` FROM sites WHERE active = 1 ORDER BY created_at DESC, id DESC`)
}

func (s *Store) listSites(ctx context.Context, q string) ([]domain.Site, error) {
	rows, err := s.db.QueryContext(ctx, q)
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
	var (
		active sql.NullBool
		url    sql.NullString
	)
	if u.Active != nil {
		active = sql.NullBool{Bool: *u.Active, Valid: true}
	}
	if u.URL != nil {
		url = sql.NullString{String: *u.URL, Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE sites SET active = COALESCE(?, active), url = COALESCE(?, url) WHERE id = ?`,
		active, url, string(id))
	if err != nil {
		return nil, fmt.Errorf("update site: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, repo.ErrNotFound
	}
	return s.GetSite(ctx, id)
}

// ---- HistoryStore ----

func (s *Store) AppendCheck(ctx context.Context, r *domain.CheckResult, keep int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("could not begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO checks (site_id, status, latency_ms, error, checked_at) VALUES (?, ?, ?, ?, ?)`,
		string(r.SiteID), r.Status, r.LatencyMS, r.Error, formatTime(r.CheckedAt))
	if err != nil && strings.Contains(err.Error(), "FOREIGN KEY constraint failed") {
		return repo.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("insert check: %w", err)
	}
	if keep > 0 {
		_, err = tx.ExecContext(ctx,
			`DELETE FROM checks
			  WHERE site_id = ?
			    AND id NOT IN (SELECT id FROM checks WHERE site_id = ? ORDER BY checked_at DESC, id DESC LIMIT ?)`,
			string(r.SiteID), string(r.SiteID), keep)
		if err != nil {
			return fmt.Errorf("trim checks: %w", err)
		}
	}
	return tx.Commit()
}

func (s *Store) History(ctx context.Context, id domain.SiteID) ([]domain.CheckResult, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, latency_ms, error, checked_at FROM checks WHERE site_id = ? ORDER BY checked_at ASC, id ASC`,
		string(id))
	if err != nil {
		return nil, fmt.Errorf("history: %w", err)
	}
	defer rows.Close()

	var out []domain.CheckResult
	for rows.Next() {
		r, err := scanCheck(rows, id)
		if err != nil {
			return nil, err
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

func scanCheck(row scanner, id domain.SiteID) (*domain.CheckResult, error) {
	r := domain.CheckResult{SiteID: id}
	var checkedAt string
	if err := row.Scan(&r.Status, &r.LatencyMS, &r.Error, &checkedAt); err != nil {
		return nil, err
	}
	t, err := parseTime(checkedAt)
	if err != nil {
		return nil, fmt.Errorf("parse checked_at: %w", err)
	}
	r.CheckedAt = t
	return &r, nil
}

func (s *Store) LastCheck(ctx context.Context, id domain.SiteID) (*domain.CheckResult, error) {
	r, err := scanCheck(s.db.QueryRowContext(ctx,
		`SELECT status, latency_ms, error, checked_at FROM checks WHERE site_id = ? ORDER BY checked_at DESC, id DESC LIMIT 1`,
		string(id)), id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("last check: %w", err)
	}
	return r, nil
}

func (s *Store) Latest(ctx context.Context) ([]domain.LatestRow, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT c.site_id, s.url, c.status, c.latency_ms, c.error, c.checked_at
  FROM checks c
  JOIN sites s ON s.id = c.site_id
 WHERE c.id = (SELECT id FROM checks
                WHERE site_id = c.site_id
                ORDER BY checked_at DESC, id DESC
                LIMIT 1)
 ORDER BY c.site_id`)
	if err != nil {
		return nil, fmt.Errorf("latest: %w", err)
	}
	defer rows.Close()

	var out []domain.LatestRow
	for rows.Next() {
		var (
			row       domain.LatestRow
			id        string
			checkedAt string
		)
		if err := rows.Scan(&id, &row.URL, &row.Status, &row.LatencyMS, &row.Error, &checkedAt); err != nil {
			return nil, fmt.Errorf("scan latest: %w", err)
		}
		t, err := parseTime(checkedAt)
		if err != nil {
			return nil, fmt.Errorf("parse checked_at: %w", err)
		}
		row.SiteID = domain.SiteID(id)
		row.CheckedAt = t
		out = append(out, row)
	}
	return out, rows.Err()
}

// ---- EventStore ----

func (s *Store) AppendEvent(ctx context.Context, e *domain.Event) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	var raw sql.NullString
	if len(e.Context) > 0 {
		b, err := json.Marshal(e.Context)
		if err != nil {
			return fmt.Errorf("encode event context: %w", err)
		}
		raw = sql.NullString{String: string(b), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (site_id, user_id, level, message, context, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		string(e.SiteID), e.UserID, string(e.Level), e.Message, raw, formatTime(e.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert event: %w", err)
	}
	e.ID, _ = res.LastInsertId()
	return nil
}

func (s *Store) ListEvents(ctx context.Context, id domain.SiteID, limit int) ([]domain.Event, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, level, message, context, created_at
		   FROM events WHERE site_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		string(id), limit)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()

	var out []domain.Event
	for rows.Next() {
		var (
			e         = domain.Event{SiteID: id}
			level     string
			raw       sql.NullString
			createdAt string
		)
		if err := rows.Scan(&e.ID, &e.UserID, &level, &e.Message, &raw, &createdAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		e.Level = domain.Level(level)
		if raw.Valid {
			if err := json.Unmarshal([]byte(raw.String), &e.Context); err != nil {
				return nil, fmt.Errorf("decode event context: %w", err)
			}
		}
		if e.CreatedAt, err = parseTime(createdAt); err != nil {
			return nil, fmt.Errorf("parse created_at: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ---- AlertStore ----

func (s *Store) GetAlert(ctx context.Context, id domain.SiteID) (*repo.AlertRecord, error) {
	r := repo.AlertRecord{SiteID: id}
	var lastSent sql.NullString
	err := s.db.QueryRowContext(ctx, `SELECT last_state, last_sent_at FROM alerts WHERE site_id = ?`, string(id)).
		Scan(&r.LastState, &lastSent)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if lastSent.Valid {
		t, err := parseTime(lastSent.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_sent_at: %w", err)
		}
		r.LastSentAt = &t
	}
	return &r, nil
}

func (s *Store) SetAlert(ctx context.Context, id domain.SiteID, lastState bool, sentAt time.Time) error {
	var ts sql.NullString
	if !sentAt.IsZero() {
		ts = sql.NullString{String: formatTime(sentAt), Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO alerts (site_id, last_state, last_sent_at) VALUES (?, ?, ?)
ON CONFLICT(site_id) DO UPDATE SET last_state = excluded.last_state, last_sent_at = excluded.last_sent_at`,
		string(id), lastState, ts)
	return err
}
