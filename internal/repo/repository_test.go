package repo_test

import (
	"testing"

	"github.com/hamed0406/sitewatch/internal/repo"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	pg "github.com/hamed0406/sitewatch/internal/repo/postgres"
	"github.com/hamed0406/sitewatch/internal/repo/sqlite"
)

// Compile-time interface satisfaction checks.
// Using external test package avoids import cycle.
func TestInterfaceSatisfaction(t *testing.T) {
	var _ repo.SiteStore = memory.New()
	var _ repo.HistoryStore = memory.New()
	var _ repo.EventStore = memory.New()
	var _ repo.AlertStore = memory.New()

	// Postgres and SQLite store types compile against the interfaces, too.
	var _ repo.SiteStore = (*pg.Store)(nil)
	var _ repo.HistoryStore = (*pg.Store)(nil)
	var _ repo.EventStore = (*pg.Store)(nil)
	var _ repo.AlertStore = (*pg.Store)(nil)

	var _ repo.SiteStore = (*sqlite.Store)(nil)
	var _ repo.HistoryStore = (*sqlite.Store)(nil)
	var _ repo.EventStore = (*sqlite.Store)(nil)
	var _ repo.AlertStore = (*sqlite.Store)(nil)
}
