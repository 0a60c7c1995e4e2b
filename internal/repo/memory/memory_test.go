package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/repo"
)

func addSite(t *testing.T, s *Store, url string, active bool) *domain.Site {
	t.Helper()
	site := &domain.Site{UserID: "u1", URL: url, Active: active}
	if err := s.AddSite(context.Background(), site); err != nil {
		t.Fatalf("AddSite: %v", err)
	}
	return site
}

func TestMemoryStore_AddAndListSites(t *testing.T) {
	ctx := context.Background()
	s := New()

	site := addSite(t, s, "https://example.com", true)
	if site.ID == "" {
		t.Fatalf("expected site ID to be set")
	}
	addSite(t, s, "https://paused.example.com", false)

	all, err := s.ListSites(ctx)
	if err != nil {
		t.Fatalf("ListSites: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 sites, got %d", len(all))
	}

	active, err := s.ListActiveSites(ctx)
	if err != nil {
		t.Fatalf("ListActiveSites: %v", err)
	}
	if len(active) != 1 || active[0].URL != "https://example.com" {
		t.Fatalf("unexpected active sites: %+v", active)
	}

	if err := s.AddSite(ctx, &domain.Site{UserID: "u1", URL: "https://EXAMPLE.com"}); !errors.Is(err, repo.ErrDuplicate) {
		t.Fatalf("want ErrDuplicate, got %v", err)
	}
}

func TestMemoryStore_UpdateSite(t *testing.T) {
	ctx := context.Background()
	s := New()
	site := addSite(t, s, "https://example.com", true)

	off := false
	url := "https://example.org"
	got, err := s.UpdateSite(ctx, site.ID, repo.SiteUpdate{Active: &off, URL: &url})
	if err != nil {
		t.Fatalf("UpdateSite: %v", err)
	}
	if got.Active || got.URL != url {
		t.Fatalf("update not applied: %+v", got)
	}
	if _, err := s.UpdateSite(ctx, "missing", repo.SiteUpdate{}); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_AppendTrimsAndKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := New()
	site := addSite(t, s, "https://example.com", true)

	base := time.Date(2025, 8, 18, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		r := &domain.CheckResult{SiteID: site.ID, Status: 200 + i, CheckedAt: base.Add(time.Duration(i) * time.Second)}
		if err := s.AppendCheck(ctx, r, 3); err != nil {
			t.Fatalf("AppendCheck: %v", err)
		}
	}

	h, err := s.History(ctx, site.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(h) != 3 || h[0].Status != 202 || h[2].Status != 204 {
		t.Fatalf("unexpected history: %+v", h)
	}

	last, err := s.LastCheck(ctx, site.ID)
	if err != nil || last == nil || last.Status != 204 {
		t.Fatalf("LastCheck=%+v err=%v", last, err)
	}

	rows, err := s.Latest(ctx)
	if err != nil || len(rows) != 1 || rows[0].URL != "https://example.com" {
		t.Fatalf("Latest=%+v err=%v", rows, err)
	}

	if err := s.AppendCheck(ctx, &domain.CheckResult{SiteID: "missing"}, 0); !errors.Is(err, repo.ErrNotFound) {
		t.Fatalf("want ErrNotFound for unknown site, got %v", err)
	}
}

func TestMemoryStore_EventsNewestFirst(t *testing.T) {
	ctx := context.Background()
	s := New()
	for _, msg := range []string{"a", "b", "c"} {
		if err := s.AppendEvent(ctx, &domain.Event{SiteID: "S1", Level: domain.LevelInfo, Message: msg}); err != nil {
			t.Fatalf("AppendEvent: %v", err)
		}
	}
	evs, err := s.ListEvents(ctx, "S1", 2)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(evs) != 2 || evs[0].Message != "c" || evs[1].Message != "b" {
		t.Fatalf("unexpected events: %+v", evs)
	}
}

func TestMemoryStore_Alerts(t *testing.T) {
	ctx := context.Background()
	s := New()

	rec, err := s.GetAlert(ctx, "S1")
	if err != nil || rec != nil {
		t.Fatalf("expected nil, got %+v err=%v", rec, err)
	}
	if err := s.SetAlert(ctx, "S1", false, time.Time{}); err != nil {
		t.Fatal(err)
	}
	rec, _ = s.GetAlert(ctx, "S1")
	if rec == nil || rec.LastSentAt != nil || rec.LastState {
		t.Fatalf("unexpected: %+v", rec)
	}
}
