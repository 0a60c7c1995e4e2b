package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

var (
	_ repo.SiteStore    = (*Store)(nil)
	_ repo.HistoryStore = (*Store)(nil)
	_ repo.EventStore   = (*Store)(nil)
	_ repo.AlertStore   = (*Store)(nil)
)

// Store keeps everything in process memory. Used when no database is configured
// and by tests.
type Store struct {
	mu      sync.RWMutex
	sites   map[domain.SiteID]*domain.Site
	checks  map[domain.SiteID][]domain.CheckResult
	events  map[domain.SiteID][]domain.Event
	alerts  map[domain.SiteID]repo.AlertRecord
	eventID int64
}

func New() *Store {
	return &Store{
		sites:  make(map[domain.SiteID]*domain.Site),
		checks: make(map[domain.SiteID][]domain.CheckResult),
		events: make(map[domain.SiteID][]domain.Event),
		alerts: make(map[domain.SiteID]repo.AlertRecord),
	}
}

// ---- SiteStore ----

func (m *Store) AddSite(ctx context.Context, s *domain.Site) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, cur := range m.sites {
		if strings.EqualFold(cur.URL, s.URL) && cur.UserID == s.UserID {
			return repo.ErrDuplicate
		}
	}
	if s.ID == "" {
		s.ID = domain.SiteID(uuid.NewString())
	}
	if s.CreatedAt.IsZero() {
		s.CreatedAt = time.Now().UTC()
	}
	cp := *s
	m.sites[s.ID] = &cp
	return nil
}

func (m *Store) GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *Store) ListSites(ctx context.Context) ([]domain.Site, error) {
	return m.list(func(domain.Site) bool { return true }), nil
}

func (m *Store) ListActiveSites(ctx context.Context) ([]domain.Site, error) {
	return m.list(func(s domain.Site) bool { return s.Active }), nil
}

func (m *Store) list(keep func(domain.Site) bool) []domain.Site {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.Site, 0, len(m.sites))
	for _, s := range m.sites {
		if keep(*s) {
			out = append(out, *s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (m *Store) UpdateSite(ctx context.Context, id domain.SiteID, u repo.SiteUpdate) (*domain.Site, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sites[id]
	if !ok {
		return nil, repo.ErrNotFound
	}
	if u.Active != nil {
		s.Active = *u.Active
	}
	if u.URL != nil {
		s.URL = *u.URL
	}
	cp := *s
	return &cp, nil
}

// ---- HistoryStore ----

func (m *Store) AppendCheck(ctx context.Context, r *domain.CheckResult, keep int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sites[r.SiteID]; !ok {
		return repo.ErrNotFound
	}
	h := append(m.checks[r.SiteID], *r)
	if keep > 0 && len(h) > keep {
		h = append([]domain.CheckResult(nil), h[len(h)-keep:]...)
	}
	m.checks[r.SiteID] = h
	return nil
}

func (m *Store) History(ctx context.Context, id domain.SiteID) ([]domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.checks[id]
	out := make([]domain.CheckResult, len(h))
	copy(out, h)
	return out, nil
}

func (m *Store) LastCheck(ctx context.Context, id domain.SiteID) (*domain.CheckResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h := m.checks[id]
	if len(h) == 0 {
		return nil, nil
	}
	last := h[len(h)-1]
	return &last, nil
}

func (m *Store) Latest(ctx context.Context) ([]domain.LatestRow, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]domain.LatestRow, 0, len(m.checks))
	for id, h := range m.checks {
		if len(h) == 0 {
			continue
		}
		r := h[len(h)-1]
		url := ""
		if s := m.sites[id]; s != nil {
			url = s.URL
		}
		out = append(out, domain.LatestRow{
			SiteID:    id,
			URL:       url,
			Status:    r.Status,
			LatencyMS: r.LatencyMS,
			Error:     r.Error,
			CheckedAt: r.CheckedAt,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SiteID < out[j].SiteID })
	return out, nil
}

// ---- EventStore ----

func (m *Store) AppendEvent(ctx context.Context, e *domain.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eventID++
	e.ID = m.eventID
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	m.events[e.SiteID] = append(m.events[e.SiteID], *e)
	return nil
}

func (m *Store) ListEvents(ctx context.Context, id domain.SiteID, limit int) ([]domain.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	evs := m.events[id]
	out := make([]domain.Event, 0, len(evs))
	for i := len(evs) - 1; i >= 0; i-- {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, evs[i])
	}
	return out, nil
}

// ---- AlertStore ----

func (m *Store) GetAlert(ctx context.Context, id domain.SiteID) (*repo.AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.alerts[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (m *Store) SetAlert(ctx context.Context, id domain.SiteID, lastState bool, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ts *time.Time
	if !sentAt.IsZero() {
		ts = &sentAt
	}
	m.alerts[id] = repo.AlertRecord{SiteID: id, LastState: lastState, LastSentAt: ts}
	return nil
}
