package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/eventlog"
	"github.com/hamed0406/sitewatch/internal/history"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
	"github.com/hamed0406/sitewatch/internal/repo/memory"
	"github.com/hamed0406/sitewatch/internal/scheduler"
)

// ---- test helpers ----

type fakeChecker struct {
	out domain.Outcome
}

func (f *fakeChecker) Check(_ context.Context, _ string) domain.Outcome {
	// always the same outcome so tests are deterministic
	return f.out
}

func setupServer(t *testing.T, out domain.Outcome) *httptest.Server {
	t.Helper()
	log := zap.NewNop()
	store := memory.New()
	hist := history.New(store, history.Options{})
	events := eventlog.NewRecorder(log, store)
	sched := scheduler.New(scheduler.Deps{
		Log:     log,
		Sites:   store,
		History: hist,
		Checker: &fakeChecker{out: out},
		Events:  events,
	}, scheduler.Options{})

	srv := NewServer(log, store, hist, sched, nil, events)
	keys := apimw.Keys{
		Public: []string{"pub_test"},
		Admin:  []string{"adm_test"},
	}
	// very high rate limits to avoid flakiness in tests
	ts := httptest.NewServer(srv.Router(keys, nil, 10_000, 10_000, 10_000, 10_000))
	t.Cleanup(ts.Close)
	return ts
}

func call(t *testing.T, ts *httptest.Server, method, path, key, body string, out any) int {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = bytes.NewReader([]byte(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("X-API-Key", key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

type addResponse struct {
	Site   domain.Site         `json:"site"`
	Result *domain.CheckResult `json:"result"`
}

func addSite(t *testing.T, ts *httptest.Server, url string) addResponse {
	t.Helper()
	var out addResponse
	if code := call(t, ts, http.MethodPost, "/api/sites", "adm_test", `{"url":"`+url+`","name":"demo"}`, &out); code != http.StatusCreated {
		t.Fatalf("add %s: want 201, got %d", url, code)
	}
	return out
}

// ---- tests ----

func TestAddSite_OK_Duplicate_Invalid(t *testing.T) {
	ts := setupServer(t, domain.Outcome{Status: 200, LatencyMS: 12})

	got := addSite(t, ts, "https://example.com")
	if got.Site.URL != "https://example.com" || got.Site.ID == "" || !got.Site.Active {
		t.Fatalf("unexpected site: %+v", got.Site)
	}
	if got.Result == nil || got.Result.Status != 200 || got.Result.SiteID != got.Site.ID {
		t.Fatalf("expected initial check with status 200, got %+v", got.Result)
	}

	if code := call(t, ts, http.MethodPost, "/api/sites", "adm_test", `{"url":"https://EXAMPLE.com/"}`, nil); code != http.StatusConflict {
		t.Fatalf("want 409 on duplicate, got %d", code)
	}
	if code := call(t, ts, http.MethodPost, "/api/sites", "adm_test", `{"url":"ftp://bad"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("want 400 on invalid URL, got %d", code)
	}
	if code := call(t, ts, http.MethodPost, "/api/sites", "adm_test", `{"url":`, nil); code != http.StatusBadRequest {
		t.Fatalf("want 400 on broken JSON, got %d", code)
	}
}

func TestAuth_PublicCannotWrite(t *testing.T) {
	ts := setupServer(t, domain.Outcome{Status: 200})

	if code := call(t, ts, http.MethodPost, "/api/sites", "pub_test", `{"url":"https://example.com"}`, nil); code != http.StatusForbidden {
		t.Fatalf("public key on admin route: want 403, got %d", code)
	}
	if code := call(t, ts, http.MethodGet, "/api/sites", "", "", nil); code != http.StatusUnauthorized {
		t.Fatalf("no key: want 401, got %d", code)
	}
	if code := call(t, ts, http.MethodGet, "/healthz", "", "", nil); code != http.StatusOK {
		t.Fatalf("healthz is open: got %d", code)
	}
}

func TestListAndLatest(t *testing.T) {
	ts := setupServer(t, domain.Outcome{Status: 201, LatencyMS: 7})
	addSite(t, ts, "https://example.com")

	var list []domain.Site
	if code := call(t, ts, http.MethodGet, "/api/sites", "pub_test", "", &list); code != http.StatusOK {
		t.Fatalf("want 200 list, got %d", code)
	}
	if len(list) != 1 || list[0].URL != "https://example.com" {
		t.Fatalf("unexpected list: %+v", list)
	}

	var latest []map[string]any
	if code := call(t, ts, http.MethodGet, "/api/results/latest", "pub_test", "", &latest); code != http.StatusOK {
		t.Fatalf("want 200 latest, got %d", code)
	}
	if len(latest) != 1 {
		t.Fatalf("expected one latest row, got %d", len(latest))
	}
	status, _ := latest[0]["status"].(float64) // JSON numbers decode as float64
	if int(status) != 201 {
		t.Fatalf("expected status=201, got %v", latest[0]["status"])
	}
}

func TestCheckNow_HistoryAndUptime(t *testing.T) {
	ts := setupServer(t, domain.Outcome{Status: 500, LatencyMS: 10000, Error: "Request timeout"})
	site := addSite(t, ts, "https://slow.example.com").Site
	base := "/api/sites/" + string(site.ID)

	var checked struct {
		Result domain.CheckResult `json:"result"`
		Kind   domain.Kind        `json:"kind"`
	}
	if code := call(t, ts, http.MethodPost, base+"/check", "adm_test", "", &checked); code != http.StatusOK {
		t.Fatalf("want 200 check, got %d", code)
	}
	if checked.Result.Error != "Request timeout" || checked.Kind != domain.KindTransportError {
		t.Fatalf("unexpected check: %+v", checked)
	}

	var h []domain.CheckResult
	if code := call(t, ts, http.MethodGet, base+"/history", "pub_test", "", &h); code != http.StatusOK {
		t.Fatalf("want 200 history, got %d", code)
	}
	if len(h) != 2 || !h[0].CheckedAt.Before(h[1].CheckedAt) {
		t.Fatalf("want two ordered entries, got %+v", h)
	}

	var up struct {
		Window  domain.Window        `json:"window"`
		Uptime  float64              `json:"uptime"`
		Summary domain.UptimeSummary `json:"summary"`
	}
	if code := call(t, ts, http.MethodGet, base+"/uptime?window=day", "pub_test", "", &up); code != http.StatusOK {
		t.Fatalf("want 200 uptime, got %d", code)
	}
	if up.Window != domain.WindowDay || up.Uptime != 0 || up.Summary.All != 0 {
		t.Fatalf("unexpected uptime: %+v", up)
	}
	if code := call(t, ts, http.MethodGet, base+"/uptime?window=month", "pub_test", "", nil); code != http.StatusBadRequest {
		t.Fatalf("want 400 for unknown window, got %d", code)
	}
}

func TestUptime_AfterSuccessfulInitialCheck(t *testing.T) {
	ts := setupServer(t, domain.Outcome{Status: 200})
	site := addSite(t, ts, "https://example.com").Site

	// only the successful initial check is on record
	var up struct {
		Uptime float64 `json:"uptime"`
	}
	if code := call(t, ts, http.MethodGet, "/api/sites/"+string(site.ID)+"/uptime", "pub_test", "", &up); code != http.StatusOK {
		t.Fatalf("want 200 uptime, got %d", code)
	}
	if up.Uptime != 100 {
		t.Fatalf("want 100, got %v", up.Uptime)
	}
}

func TestUnknownSiteIs404(t *testing.T) {
	ts := setupServer(t, domain.Outcome{Status: 200})
	for _, p := range []string{"/api/sites/nope", "/api/sites/nope/history", "/api/sites/nope/uptime", "/api/sites/nope/logs"} {
		if code := call(t, ts, http.MethodGet, p, "pub_test", "", nil); code != http.StatusNotFound {
			t.Fatalf("GET %s: want 404, got %d", p, code)
		}
	}
	if code := call(t, ts, http.MethodPost, "/api/sites/nope/check", "adm_test", "", nil); code != http.StatusNotFound {
		t.Fatalf("check unknown: want 404, got %d", code)
	}
	if code := call(t, ts, http.MethodPatch, "/api/sites/nope", "adm_test", `{"active":false}`, nil); code != http.StatusNotFound {
		t.Fatalf("patch unknown: want 404, got %d", code)
	}
}

func TestUpdateSite(t *testing.T) {
	ts := setupServer(t, domain.Outcome{Status: 200})
	site := addSite(t, ts, "https://example.com").Site
	path := "/api/sites/" + string(site.ID)

	var got domain.Site
	if code := call(t, ts, http.MethodPatch, path, "adm_test", `{"active":false,"url":"HTTPS://Example.org:443/"}`, &got); code != http.StatusOK {
		t.Fatalf("want 200 patch, got %d", code)
	}
	if got.Active || got.URL != "https://example.org" {
		t.Fatalf("update not applied: %+v", got)
	}
	if code := call(t, ts, http.MethodPatch, path, "adm_test", `{}`, nil); code != http.StatusBadRequest {
		t.Fatalf("empty patch: want 400, got %d", code)
	}
	if code := call(t, ts, http.MethodPatch, path, "adm_test", `{"url":"nope"}`, nil); code != http.StatusBadRequest {
		t.Fatalf("bad url: want 400, got %d", code)
	}
}

func TestLogs_NewestFirst(t *testing.T) {
	ts := setupServer(t, domain.Outcome{Status: 404})
	site := addSite(t, ts, "https://example.com").Site
	path := "/api/sites/" + string(site.ID) + "/logs"

	var evs []domain.Event
	if code := call(t, ts, http.MethodGet, path, "pub_test", "", &evs); code != http.StatusOK {
		t.Fatalf("want 200 logs, got %d", code)
	}
	// site_created then the initial check
	if len(evs) != 2 || evs[0].Message != "check_completed" || evs[0].Level != domain.LevelWarn || evs[1].Message != "site_created" {
		t.Fatalf("unexpected events: %+v", evs)
	}

	if code := call(t, ts, http.MethodGet, path+"?limit=1", "pub_test", "", &evs); code != http.StatusOK || len(evs) != 1 {
		t.Fatalf("limit=1: code %d, %d events", code, len(evs))
	}
	if code := call(t, ts, http.MethodGet, path+"?limit=zero", "pub_test", "", nil); code != http.StatusBadRequest {
		t.Fatalf("bad limit: want 400, got %d", code)
	}
}
