// Package history owns the append-only check history of every site and the
// windowed uptime derived from it.
//
// Appends for one site are serialised and stamped with a strictly increasing
// CheckedAt, so concurrent scheduled and on-demand checks never interleave out
// of order. Uptime is always computed from the stored history; nothing is cached.
package history

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// tick is the smallest step between two stamps of the same site. PostgreSQL
// keeps microseconds, so anything finer would collapse on a round trip.
const tick = time.Microsecond

type Options struct {
	DayWindow  time.Duration
	WeekWindow time.Duration
	Limit      int // checks kept per site; 0 keeps everything

	Now func() time.Time // defaults to time.Now
}

type Store struct {
	repo repo.HistoryStore
	opts Options
	now  func() time.Time

	mu    sync.Mutex
	sites map[domain.SiteID]*siteLock
}

type siteLock struct {
	mu     sync.Mutex
	last   time.Time
	loaded bool
}

func New(r repo.HistoryStore, opts Options) *Store {
	if opts.DayWindow <= 0 {
		opts.DayWindow = 24 * time.Hour
	}
	if opts.WeekWindow <= 0 {
		opts.WeekWindow = 7 * 24 * time.Hour
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Store{
		repo:  r,
		opts:  opts,
		now:   now,
		sites: make(map[domain.SiteID]*siteLock),
	}
}

func (s *Store) lockFor(id domain.SiteID) *siteLock {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.sites[id]
	if !ok {
		l = &siteLock{}
		s.sites[id] = l
	}
	return l
}

// Append stamps the outcome, stores it and returns the stored record.
func (s *Store) Append(ctx context.Context, id domain.SiteID, out domain.Outcome) (domain.CheckResult, error) {
	return s.AppendThen(ctx, id, out, nil)
}

// AppendThen is Append, with then called on the stored record before the
// site's lock is released. Calls to then for one site happen in CheckedAt
// order. then must not append to the same site.
func (s *Store) AppendThen(ctx context.Context, id domain.SiteID, out domain.Outcome, then func(domain.CheckResult)) (domain.CheckResult, error) {
	l := s.lockFor(id)
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		prev, err := s.repo.LastCheck(ctx, id)
		if err != nil {
			return domain.CheckResult{}, fmt.Errorf("load last check: %w", err)
		}
		if prev != nil {
			l.last = prev.CheckedAt
		}
		l.loaded = true
	}

	at := s.now().UTC().Truncate(tick)
	if !at.After(l.last) {
		at = l.last.Add(tick)
	}

	latency := out.LatencyMS
	if latency < 0 {
		latency = 0
	}
	r := domain.CheckResult{
		SiteID:    id,
		Status:    out.Status,
		LatencyMS: latency,
		Error:     out.Error,
		CheckedAt: at,
	}
	if err := s.repo.AppendCheck(ctx, &r, s.opts.Limit); err != nil {
		return domain.CheckResult{}, fmt.Errorf("append check: %w", err)
	}
	l.last = at
	if then != nil {
		then(r)
	}
	return r, nil
}

func (s *Store) History(ctx context.Context, id domain.SiteID) ([]domain.CheckResult, error) {
	return s.repo.History(ctx, id)
}

// Uptime returns the share of successful checks in the window, in percent.
func (s *Store) Uptime(ctx context.Context, id domain.SiteID, w domain.Window) (float64, error) {
	h, err := s.repo.History(ctx, id)
	if err != nil {
		return 0, err
	}
	since, err := s.cutoff(w)
	if err != nil {
		return 0, err
	}
	return Uptime(h, since), nil
}

// Summary computes every window from a single history read.
func (s *Store) Summary(ctx context.Context, id domain.SiteID) (domain.UptimeSummary, error) {
	h, err := s.repo.History(ctx, id)
	if err != nil {
		return domain.UptimeSummary{}, err
	}
	now := s.now()
	return domain.UptimeSummary{
		Day:  Uptime(h, now.Add(-s.opts.DayWindow)),
		Week: Uptime(h, now.Add(-s.opts.WeekWindow)),
		All:  Uptime(h, time.Time{}),
	}, nil
}

func (s *Store) cutoff(w domain.Window) (time.Time, error) {
	switch w {
	case domain.WindowDay:
		return s.now().Add(-s.opts.DayWindow), nil
	case domain.WindowWeek:
		return s.now().Add(-s.opts.WeekWindow), nil
	case domain.WindowAll:
		return time.Time{}, nil
	default:
		return time.Time{}, fmt.Errorf("unknown window %q", w)
	}
}

// Uptime is 100 × successful / total over checks at or after since; a zero
// since takes the whole history. No checks in range yields 100: the absence of
// evidence is reported as fully up, for new sites as well as quiet windows.
func Uptime(checks []domain.CheckResult, since time.Time) float64 {
	var total, ok int
	for _, c := range checks {
		if !since.IsZero() && c.CheckedAt.Before(since) {
			continue
		}
		total++
		if c.Successful() {
			ok++
		}
	}
	if total == 0 {
		return 100
	}
	return 100 * float64(ok) / float64(total)
}
