package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/notify"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// LatestReader returns the most recent check of every site.
type LatestReader interface {
	Latest(ctx context.Context) ([]domain.LatestRow, error)
}

type AlerterConfig struct {
	AlertOnRecovery bool
	Cooldown        time.Duration
	PollInterval    time.Duration
}

// Alerter watches the latest result of every site and notifies when a site
// goes down or recovers.
type Alerter struct {
	log      *zap.Logger
	results  LatestReader
	alertDB  repo.AlertStore
	notifier notify.Notifier
	cfg      AlerterConfig
	now      func() time.Time
}

func NewAlerter(
	log *zap.Logger,
	results LatestReader,
	alertDB repo.AlertStore,
	notifier notify.Notifier,
	cfg AlerterConfig,
) *Alerter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	return &Alerter{
		log:      log,
		results:  results,
		alertDB:  alertDB,
		notifier: notifier,
		cfg:      cfg,
		now:      time.Now,
	}
}

func (a *Alerter) Run(ctx context.Context) error {
	t := time.NewTicker(a.cfg.PollInterval)
	defer t.Stop()

	// initial pass
	a.scan(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
			a.scan(ctx)
		}
	}
}

func (a *Alerter) scan(ctx context.Context) {
	if err := a.scanOnce(ctx); err != nil {
		a.log.Warn("alerter_scan_error", zap.Error(err))
	}
}

func (a *Alerter) scanOnce(ctx context.Context) error {
	rows, err := a.results.Latest(ctx)
	if err != nil {
		return err
	}

	now := a.now()

	for _, r := range rows {
		rec, err := a.alertDB.GetAlert(ctx, r.SiteID)
		if err != nil {
			a.log.Warn("alert_state_read_error", zap.String("site_id", string(r.SiteID)), zap.Error(err))
			continue
		}
		up := r.Up()

		stateChanged := rec == nil || rec.LastState != up

		// cooldown only holds back repeated DOWN alerts
		cooled := true
		if rec != nil && rec.LastSentAt != nil {
			cooled = now.Sub(*rec.LastSentAt) >= a.cfg.Cooldown
		}

		downAlert := stateChanged && !up && cooled
		recoveryAlert := stateChanged && up && rec != nil && a.cfg.AlertOnRecovery

		if downAlert || recoveryAlert {
			title := "🔴 Site DOWN"
			if up {
				title = "🟢 Site RECOVERED"
			}
			if err := a.notifier.Send(ctx, title, alertText(r, now)); err != nil {
				a.log.Warn("alert_send_error", zap.String("site_id", string(r.SiteID)), zap.Error(err))
				continue
			}
			a.log.Info("alert_sent", zap.String("site_id", string(r.SiteID)), zap.Bool("up", up))
			if err := a.alertDB.SetAlert(ctx, r.SiteID, up, now); err != nil {
				a.log.Warn("alert_state_write_error", zap.String("site_id", string(r.SiteID)), zap.Error(err))
			}
			continue
		}

		// state changed without a send (DOWN inside cooldown, recovery alerts
		// off, first sighting of an up site): remember it, keep the old send time
		if stateChanged {
			var sent time.Time
			if rec != nil && rec.LastSentAt != nil {
				sent = *rec.LastSentAt
			}
			if err := a.alertDB.SetAlert(ctx, r.SiteID, up, sent); err != nil {
				a.log.Warn("alert_state_write_error", zap.String("site_id", string(r.SiteID)), zap.Error(err))
			}
		}
	}

	return nil
}

func alertText(r domain.LatestRow, now time.Time) string {
	reason := r.Error
	if reason == "" {
		reason = fmt.Sprintf("HTTP %d", r.Status)
	}
	return fmt.Sprintf(
		"URL: %s\nHTTP: %d\nLatency: %d ms\nReason: %s\nChecked: %s (%s)",
		r.URL, r.Status, r.LatencyMS, reason,
		humanize.RelTime(r.CheckedAt, now, "ago", "from now"),
		r.CheckedAt.UTC().Format(time.RFC3339),
	)
}
