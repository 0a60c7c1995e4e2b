package repo

import (
	"context"
	"errors"

	"github.com/hamed0406/sitewatch/internal/domain"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrDuplicate = errors.New("duplicate")
)

// SiteUpdate carries the administrative changes allowed on a site.
// Nil fields are left untouched.
type SiteUpdate struct {
	Active *bool
	URL    *string
}

// Ports (interfaces). Adapters live in memory, postgres and sqlite.
type SiteStore interface {
	AddSite(ctx context.Context, s *domain.Site) error
	GetSite(ctx context.Context, id domain.SiteID) (*domain.Site, error)
	ListSites(ctx context.Context) ([]domain.Site, error)
	ListActiveSites(ctx context.Context) ([]domain.Site, error)
	UpdateSite(ctx context.Context, id domain.SiteID, u SiteUpdate) (*domain.Site, error)
}

type HistoryStore interface {
	// AppendCheck stores r and trims the site's history to the newest keep
	// entries. keep <= 0 keeps everything.
	AppendCheck(ctx context.Context, r *domain.CheckResult, keep int) error
	// History returns the site's checks oldest first.
	History(ctx context.Context, id domain.SiteID) ([]domain.CheckResult, error)
	// LastCheck returns nil, nil when the site has no checks yet.
	LastCheck(ctx context.Context, id domain.SiteID) (*domain.CheckResult, error)
	Latest(ctx context.Context) ([]domain.LatestRow, error)
}

type EventStore interface {
	AppendEvent(ctx context.Context, e *domain.Event) error
	// ListEvents returns the newest events first.
	ListEvents(ctx context.Context, id domain.SiteID, limit int) ([]domain.Event, error)
}
