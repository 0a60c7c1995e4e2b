package subscription

import (
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
)

// Update is the message subscribers receive after a check for their site.
type Update struct {
	Event  string                `json:"event"`
	SiteID domain.SiteID         `json:"site_id"`
	Result domain.CheckResult    `json:"result"`
	Kind   domain.Kind           `json:"kind"`
	Uptime *domain.UptimeSummary `json:"uptime,omitempty"`
}

// NewUpdate wraps a stored check for publishing. uptime may be nil when it
// could not be computed.
func NewUpdate(r domain.CheckResult, uptime *domain.UptimeSummary) Update {
	return Update{Event: "check", SiteID: r.SiteID, Result: r, Kind: r.Kind(), Uptime: uptime}
}

type Broadcaster struct {
	reg *Registry
	log *zap.Logger
}

func NewBroadcaster(reg *Registry, log *zap.Logger) *Broadcaster {
	return &Broadcaster{reg: reg, log: log}
}

// HasSubscribers lets callers skip building a payload nobody will read.
func (b *Broadcaster) HasSubscribers(id domain.SiteID) bool {
	return b.reg.Has(id)
}

// Publish sends payload to every subscriber of id and returns how many
// accepted it. It never blocks: connections that refuse the message are
// dropped from the registry.
func (b *Broadcaster) Publish(id domain.SiteID, payload any) int {
	subs := b.reg.SubscribersOf(id)
	if len(subs) == 0 {
		return 0
	}
	data, err := json.Marshal(payload)
	if err != nil {
		b.log.Error("broadcast_encode_error", zap.String("site_id", string(id)), zap.Error(err))
		return 0
	}

	sent := 0
	for _, c := range subs {
		if err := c.Send(data); err != nil {
			if !errors.Is(err, ErrClosed) {
				b.log.Debug("broadcast_send_error", zap.String("site_id", string(id)), zap.Error(err))
			}
			b.reg.Unsubscribe(c)
			continue
		}
		sent++
	}
	if sent < len(subs) {
		b.log.Debug("broadcast_pruned",
			zap.String("site_id", string(id)),
			zap.Int("pruned", len(subs)-sent),
		)
	}
	return sent
}
