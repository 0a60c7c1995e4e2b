package domain

import (
	"fmt"
	"time"
)

type SiteID string

// StatusTransportFailure is stored as the status of a check that never got an
// HTTP response. Error is always set alongside it.
const StatusTransportFailure = 500

type Site struct {
	ID        SiteID    `json:"id"`
	UserID    string    `json:"user_id"`
	URL       string    `json:"url"`
	Name      string    `json:"name,omitempty"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
}

// Outcome is what a single probe observed, before it is stamped and stored.
type Outcome struct {
	Status    int    `json:"status"`
	LatencyMS int64  `json:"latency_ms"`
	Error     string `json:"error,omitempty"`
}

type CheckResult struct {
	SiteID    SiteID    `json:"site_id"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Successful reports whether the status is in [200, 300).
func (r CheckResult) Successful() bool {
	return r.Status >= 200 && r.Status < 300
}

// Kind separates a real HTTP 500 from the transport sentinel.
func (r CheckResult) Kind() Kind {
	switch {
	case r.Error != "":
		return KindTransportError
	case r.Successful():
		return KindSuccess
	default:
		return KindHTTPError
	}
}

type Kind string

const (
	KindSuccess        Kind = "success"
	KindHTTPError      Kind = "http_error"
	KindTransportError Kind = "transport_error"
)

type Window string

const (
	WindowDay  Window = "day"
	WindowWeek Window = "week"
	WindowAll  Window = "all"
)

func ParseWindow(s string) (Window, error) {
	switch w := Window(s); w {
	case WindowDay, WindowWeek, WindowAll:
		return w, nil
	case "":
		return WindowAll, nil
	default:
		return "", fmt.Errorf("unknown window %q: want day|week|all", s)
	}
}

// UptimeSummary holds uptime percentages for every window.
type UptimeSummary struct {
	Day  float64 `json:"day"`
	Week float64 `json:"week"`
	All  float64 `json:"all"`
}

// LatestRow is the most recent check of a site joined with the site's URL.
type LatestRow struct {
	SiteID    SiteID    `json:"site_id"`
	URL       string    `json:"url"`
	Status    int       `json:"status"`
	LatencyMS int64     `json:"latency_ms"`
	Error     string    `json:"error,omitempty"`
	CheckedAt time.Time `json:"checked_at"`
}

// Up mirrors CheckResult.Successful for the latest row.
func (r LatestRow) Up() bool {
	return r.Status >= 200 && r.Status < 300
}
