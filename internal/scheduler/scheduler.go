// Package scheduler drives periodic and on-demand checks of monitored sites and
// runs the down/recovery alerter.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/eventlog"
	"github.com/hamed0406/sitewatch/internal/history"
	"github.com/hamed0406/sitewatch/internal/probe"
	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/subscription"
)

// Publisher delivers a completed check to live subscribers.
type Publisher interface {
	HasSubscribers(id domain.SiteID) bool
	Publish(id domain.SiteID, payload any) int
}

type Options struct {
	Interval    time.Duration // 0 disables periodic checks
	Timeout     time.Duration // per-probe deadline; 0 leaves it to the checker
	Concurrency int
}

// Deps are the collaborators a Scheduler drives. Events and Publisher may be nil.
type Deps struct {
	Log       *zap.Logger
	Sites     repo.SiteStore
	History   *history.Store
	Checker   probe.Checker
	Events    eventlog.Sink
	Publisher Publisher
}

type Scheduler struct {
	Deps
	opts     Options
	diagnose func(ctx context.Context, host string) probe.DNSStatus

	mu       sync.Mutex
	running  bool
	cancel   context.CancelFunc
	loopDone chan struct{} // closed when the newest tick loop exits

	loops    sync.WaitGroup
	onDemand sync.WaitGroup
}

func New(d Deps, opts Options) *Scheduler {
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	if opts.Interval < 0 {
		opts.Interval = 0
	}
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	return &Scheduler{Deps: d, opts: opts, diagnose: probe.DiagnoseDNS}
}

// Start arms the ticker and runs an immediate batch. Calling Start on a running
// scheduler does nothing. Cancelling ctx also ends the tick loop. After a Stop,
// the new loop holds its first batch until the previous loop has exited, so
// batches never overlap.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.running = true

	loopCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	if s.opts.Interval == 0 {
		s.Log.Info("scheduler_periodic_disabled")
		return
	}
	s.Log.Info("scheduler_started",
		zap.Duration("interval", s.opts.Interval),
		zap.Int("concurrency", s.opts.Concurrency),
	)
	prev, done := s.loopDone, make(chan struct{})
	s.loopDone = done
	s.loops.Add(1)
	go s.loop(loopCtx, prev, done)
}

// Stop disarms the ticker. Checks already dispatched run to completion; use
// Wait to block until they have.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return
	}
	s.running = false
	s.cancel()
	s.Log.Info("scheduler_stopped")
}

// Running reports whether the scheduler is armed.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Wait blocks until the tick loop has exited and every in-flight check,
// scheduled or on-demand, has finished. Call it after Stop.
func (s *Scheduler) Wait() {
	s.loops.Wait()
	s.onDemand.Wait()
}

func (s *Scheduler) loop(ctx context.Context, prev <-chan struct{}, done chan struct{}) {
	defer s.loops.Done()
	defer close(done)

	if prev != nil {
		select {
		case <-prev:
		case <-ctx.Done():
			return
		}
	}

	t := time.NewTicker(s.opts.Interval)
	defer t.Stop()

	// immediate pass
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce checks every active site, at most Concurrency at a time, and returns
// when all of them are done. Sites not yet dispatched when ctx is cancelled are
// skipped until the next start.
func (s *Scheduler) runOnce(ctx context.Context) {
	sites, err := s.Sites.ListActiveSites(ctx)
	if err != nil {
		s.Log.Warn("scheduler_list_error", zap.Error(err))
		return
	}
	if len(sites) == 0 {
		return
	}

	started := time.Now()
	work := context.WithoutCancel(ctx)
	sem := make(chan struct{}, s.opts.Concurrency)
	var wg sync.WaitGroup

dispatch:
	for _, site := range sites {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			break dispatch
		}
		wg.Add(1)
		go func(site domain.Site) {
			defer func() { <-sem }()
			defer wg.Done()
			_, _ = s.check(work, site)
		}(site)
	}

	wg.Wait()
	s.Log.Debug("scheduler_batch_done",
		zap.Int("sites", len(sites)),
		zap.Duration("took", time.Since(started)),
	)
}

// CheckNow probes one site immediately and returns the stored result. The
// check runs to completion even if ctx is cancelled after dispatch. Inactive
// sites can be checked on demand.
func (s *Scheduler) CheckNow(ctx context.Context, id domain.SiteID) (domain.CheckResult, error) {
	s.onDemand.Add(1)
	defer s.onDemand.Done()

	work := context.WithoutCancel(ctx)
	site, err := s.Sites.GetSite(work, id)
	if err != nil {
		return domain.CheckResult{}, fmt.Errorf("get site %s: %w", id, err)
	}
	return s.check(work, *site)
}

// ErrCheckPanicked is returned by CheckNow when the check path panicked.
var ErrCheckPanicked = errors.New("scheduler: check panicked")

// check runs probe, persist, record and publish for one site. Every failure,
// including a panic, stays inside this call.
func (s *Scheduler) check(ctx context.Context, site domain.Site) (res domain.CheckResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			s.Log.Error("check_panic",
				zap.String("site_id", string(site.ID)),
				zap.Any("panic", p),
				zap.ByteString("stack", debug.Stack()),
			)
			err = fmt.Errorf("%w: %v", ErrCheckPanicked, p)
		}
	}()

	pctx, cancel := ctx, context.CancelFunc(func() {})
	if s.opts.Timeout > 0 {
		pctx, cancel = context.WithTimeout(ctx, s.opts.Timeout)
	}
	out := s.Checker.Check(pctx, site.URL)
	cancel()

	res, err = s.History.AppendThen(ctx, site.ID, out, func(r domain.CheckResult) {
		s.publish(ctx, r)
	})
	if err != nil {
		s.Log.Warn("check_persist_error",
			zap.String("site_id", string(site.ID)),
			zap.String("url", site.URL),
			zap.Int("status", out.Status),
			zap.Error(err),
		)
		return res, fmt.Errorf("persist check: %w", err)
	}

	fields := []zap.Field{
		zap.String("site_id", string(site.ID)),
		zap.String("url", site.URL),
		zap.Int("status", res.Status),
		zap.Int64("latency_ms", res.LatencyMS),
		zap.String("kind", string(res.Kind())),
	}
	if res.Error != "" {
		fields = append(fields, zap.String("error", res.Error))
		s.Log.Warn("check_failed", fields...)
		if res.Error == probe.ErrTextNoResponse {
			s.logDNS(ctx, site)
		}
	} else {
		s.Log.Debug("check_completed", fields...)
	}

	if s.Events != nil {
		s.Events.Record(ctx, eventlog.CheckEvent(&site, res))
	}
	return res, nil
}

// publish runs under the site's history lock, so subscribers see a site's
// updates in the order they were stored.
func (s *Scheduler) publish(ctx context.Context, r domain.CheckResult) {
	if s.Publisher == nil || !s.Publisher.HasSubscribers(r.SiteID) {
		return
	}
	var up *domain.UptimeSummary
	if sum, err := s.History.Summary(ctx, r.SiteID); err == nil {
		up = &sum
	} else {
		s.Log.Warn("uptime_summary_error", zap.String("site_id", string(r.SiteID)), zap.Error(err))
	}
	s.Publisher.Publish(r.SiteID, subscription.NewUpdate(r, up))
}

func (s *Scheduler) logDNS(ctx context.Context, site domain.Site) {
	host := probe.HostOf(site.URL)
	st := s.diagnose(ctx, host)
	s.Log.Info("dns_diagnosis",
		zap.String("site_id", string(site.ID)),
		zap.String("host", host),
		zap.String("class", st.Class),
		zap.Bool("has_a", st.HasAOrAAAA),
		zap.String("cname", st.CNAME),
		zap.Strings("nameservers", st.Nameservers),
		zap.String("resolver_error", st.ResolverError),
	)
}
