package repo

import (
	"context"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// AlertRecord holds last-known state and the last time we sent a notification
// for a site. LastState is the last UP/DOWN we saw, LastSentAt is the
// last time we sent a notification (used for cooldown).
type AlertRecord struct {
	SiteID     domain.SiteID
	LastState  bool
	LastSentAt *time.Time
}

// AlertStore is implemented by a persistence layer to store alert state.
type AlertStore interface {
	// GetAlert returns nil, nil if there's no record yet.
	GetAlert(ctx context.Context, id domain.SiteID) (*AlertRecord, error)
	// SetAlert upserts the record. If sentAt.IsZero() we store NULL for last_sent_at.
	SetAlert(ctx context.Context, id domain.SiteID, lastState bool, sentAt time.Time) error
}
