// Package eventlog records per-site activity: every check outcome and the
// notable things that happen around it. Entries go to the process logger and
// to an EventStore so they can be listed per site.
package eventlog

import (
	"context"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

// Sink accepts events. Record never fails from the caller's point of view.
type Sink interface {
	Record(ctx context.Context, e domain.Event)
}

type Recorder struct {
	log   *zap.Logger
	store repo.EventStore
	now   func() time.Time
}

// NewRecorder returns a Recorder. store may be nil, in which case events are
// only logged.
func NewRecorder(log *zap.Logger, store repo.EventStore) *Recorder {
	return &Recorder{log: log, store: store, now: time.Now}
}

func (r *Recorder) Record(ctx context.Context, e domain.Event) {
	if e.Level == "" {
		e.Level = domain.LevelInfo
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = r.now().UTC()
	}

	fields := make([]zap.Field, 0, len(e.Context)+2)
	if e.SiteID != "" {
		fields = append(fields, zap.String("site_id", string(e.SiteID)))
	}
	if e.UserID != "" {
		fields = append(fields, zap.String("user_id", e.UserID))
	}
	for k, v := range e.Context {
		fields = append(fields, zap.Any(k, v))
	}
	if ce := r.log.Check(zapLevel(e.Level), e.Message); ce != nil {
		ce.Write(fields...)
	}

	if r.store == nil {
		return
	}
	if err := r.store.AppendEvent(ctx, &e); err != nil {
		r.log.Warn("event_persist_error",
			zap.String("site_id", string(e.SiteID)),
			zap.String("message", e.Message),
			zap.Error(err),
		)
	}
}

// LevelForStatus maps an HTTP status to the level its check event is logged at.
func LevelForStatus(status int) domain.Level {
	switch {
	case status >= 500:
		return domain.LevelError
	case status >= 400:
		return domain.LevelWarn
	default:
		return domain.LevelInfo
	}
}

// CheckEvent builds the event recorded for one completed check.
func CheckEvent(site *domain.Site, r domain.CheckResult) domain.Event {
	ctx := map[string]any{
		"url":        site.URL,
		"status":     r.Status,
		"latency_ms": r.LatencyMS,
		"kind":       string(r.Kind()),
	}
	msg := "check_completed"
	if r.Error != "" {
		ctx["error"] = r.Error
		msg = "check_failed"
	}
	return domain.Event{
		SiteID:    r.SiteID,
		UserID:    site.UserID,
		Level:     LevelForStatus(r.Status),
		Message:   msg,
		Context:   ctx,
		CreatedAt: r.CheckedAt,
	}
}

func zapLevel(l domain.Level) zapcore.Level {
	switch l {
	case domain.LevelError:
		return zapcore.ErrorLevel
	case domain.LevelWarn:
		return zapcore.WarnLevel
	case domain.LevelDebug:
		return zapcore.DebugLevel
	default:
		return zapcore.InfoLevel
	}
}
