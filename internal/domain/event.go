package domain

import "time"

type Level string

const (
	LevelError Level = "error"
	LevelWarn  Level = "warn"
	LevelInfo  Level = "info"
	LevelDebug Level = "debug"
)

// Event is one entry of a site's activity log.
type Event struct {
	ID        int64          `json:"id"`
	SiteID    SiteID         `json:"site_id,omitempty"`
	UserID    string         `json:"user_id,omitempty"`
	Level     Level          `json:"level"`
	Message   string         `json:"message"`
	Context   map[string]any `json:"context,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
