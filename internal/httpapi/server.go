package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/sitewatch/internal/domain"
	"github.com/hamed0406/sitewatch/internal/eventlog"
	"github.com/hamed0406/sitewatch/internal/history"
	apimw "github.com/hamed0406/sitewatch/internal/httpapi/middleware"
	"github.com/hamed0406/sitewatch/internal/repo"
)

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
	maxBodyBytes    = 1 << 16
)

// Store is the persistence the API reads and writes directly.
type Store interface {
	repo.SiteStore
	repo.EventStore
	Latest(ctx context.Context) ([]domain.LatestRow, error)
}

// OnDemand runs a check right away and returns the stored result.
type OnDemand interface {
	CheckNow(ctx context.Context, id domain.SiteID) (domain.CheckResult, error)
}

type Server struct {
	Logger  *zap.Logger
	Store   Store
	History *history.Store
	Checks  OnDemand
	Live    http.Handler // websocket endpoint; nil disables /ws
	Events  eventlog.Sink
}

func NewServer(l *zap.Logger, st Store, hist *history.Store, checks OnDemand, live http.Handler, events eventlog.Sink) *Server {
	return &Server{Logger: l, Store: st, History: hist, Checks: checks, Live: live, Events: events}
}

// Router builds the HTTP surface. Reads need any API key, writes and
// on-demand checks need an admin key. A zero rpm disables that limiter.
func (s *Server) Router(keys apimw.Keys, allowedOrigins []string, publicRPM, publicBurst, adminRPM, adminBurst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.Recoverer)
	r.Use(corsHandler(allowedOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	if s.Live != nil {
		r.Handle("/ws", s.Live)
	}

	r.Route("/api", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(publicRPM, publicBurst))
			r.Use(apimw.RequireAny(keys))

			r.Get("/sites", s.handleListSites)
			r.Get("/sites/{id}", s.handleGetSite)
			r.Get("/sites/{id}/history", s.handleHistory)
			r.Get("/sites/{id}/uptime", s.handleUptime)
			r.Get("/sites/{id}/logs", s.handleLogs)
			r.Get("/results/latest", s.handleLatest)
		})
		r.Group(func(r chi.Router) {
			r.Use(apimw.RateLimit(adminRPM, adminBurst))
			r.Use(apimw.RequireAdmin(keys))

			r.Post("/sites", s.handleAddSite)
			r.Patch("/sites/{id}", s.handleUpdateSite)
			r.Post("/sites/{id}/check", s.handleCheckNow)
		})
	})

	return r
}

func corsHandler(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		return cors.AllowAll().Handler
	}
	return cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", "X-API-Key"},
		MaxAge:         300,
	})
}

// ---- sites ----

type addPayload struct {
	URL    string `json:"url"`
	Name   string `json:"name"`
	UserID string `json:"user_id"`
}

func (s *Server) handleAddSite(w http.ResponseWriter, r *http.Request) {
	var p addPayload
	if err := decode(w, r, &p); err != nil || !isValidHTTPURL(strings.TrimSpace(p.URL)) {
		writeError(w, http.StatusBadRequest, "bad payload: url must be an absolute http(s) URL")
		return
	}

	site := &domain.Site{
		UserID: p.UserID,
		URL:    normalizeHTTPURL(p.URL),
		Name:   strings.TrimSpace(p.Name),
		Active: true,
	}
	if err := s.Store.AddSite(r.Context(), site); err != nil {
		if errors.Is(err, repo.ErrDuplicate) {
			writeError(w, http.StatusConflict, "site already registered")
			return
		}
		s.Logger.Error("site_add_error", zap.String("url", site.URL), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "could not add site")
		return
	}
	s.record(r.Context(), site, "site_created")

	// one synchronous check for immediate feedback
	resp := map[string]any{"site": site}
	if res, err := s.Checks.CheckNow(r.Context(), site.ID); err != nil {
		s.Logger.Warn("site_initial_check_error", zap.String("site_id", string(site.ID)), zap.Error(err))
	} else {
		resp["result"] = res
	}

	s.Logger.Info("site_added", zap.String("site_id", string(site.ID)), zap.String("url", site.URL))
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleListSites(w http.ResponseWriter, r *http.Request) {
	sites, err := s.Store.ListSites(r.Context())
	if err != nil {
		s.Logger.Error("site_list_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list error")
		return
	}
	if user := r.URL.Query().Get("user_id"); user != "" {
		mine := sites[:0]
		for _, st := range sites {
			if st.UserID == user {
				mine = append(mine, st)
			}
		}
		sites = mine
	}
	writeJSON(w, http.StatusOK, sites)
}

func (s *Server) handleGetSite(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, site)
}

type updatePayload struct {
	Active *bool   `json:"active"`
	URL    *string `json:"url"`
}

func (s *Server) handleUpdateSite(w http.ResponseWriter, r *http.Request) {
	var p updatePayload
	if err := decode(w, r, &p); err != nil || (p.Active == nil && p.URL == nil) {
		writeError(w, http.StatusBadRequest, "bad payload: set active and/or url")
		return
	}
	if p.URL != nil {
		if !isValidHTTPURL(strings.TrimSpace(*p.URL)) {
			writeError(w, http.StatusBadRequest, "url must be an absolute http(s) URL")
			return
		}
		n := normalizeHTTPURL(*p.URL)
		p.URL = &n
	}

	id := domain.SiteID(chi.URLParam(r, "id"))
	site, err := s.Store.UpdateSite(r.Context(), id, repo.SiteUpdate{Active: p.Active, URL: p.URL})
	switch {
	case errors.Is(err, repo.ErrNotFound):
		writeError(w, http.StatusNotFound, "site not found")
		return
	case errors.Is(err, repo.ErrDuplicate):
		writeError(w, http.StatusConflict, "site already registered")
		return
	case err != nil:
		s.Logger.Error("site_update_error", zap.String("site_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "update error")
		return
	}
	s.record(r.Context(), site, "site_updated")
	writeJSON(w, http.StatusOK, site)
}

// ---- checks ----

func (s *Server) handleCheckNow(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	res, err := s.Checks.CheckNow(r.Context(), site.ID)
	if err != nil {
		s.Logger.Warn("check_now_error", zap.String("site_id", string(site.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "check failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"result": res, "kind": res.Kind()})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	h, err := s.History.History(r.Context(), site.ID)
	if err != nil {
		s.Logger.Error("history_read_error", zap.String("site_id", string(site.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "history error")
		return
	}
	writeJSON(w, http.StatusOK, h)
}

func (s *Server) handleUptime(w http.ResponseWriter, r *http.Request) {
	win, err := domain.ParseWindow(r.URL.Query().Get("window"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	sum, err := s.History.Summary(r.Context(), site.ID)
	if err != nil {
		s.Logger.Error("uptime_read_error", zap.String("site_id", string(site.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "uptime error")
		return
	}
	var pct float64
	switch win {
	case domain.WindowDay:
		pct = sum.Day
	case domain.WindowWeek:
		pct = sum.Week
	default:
		pct = sum.All
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"site_id": site.ID,
		"window":  win,
		"uptime":  pct,
		"summary": sum,
	})
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxLogLimit)
	}
	site, ok := s.site(w, r)
	if !ok {
		return
	}
	evs, err := s.Store.ListEvents(r.Context(), site.ID, limit)
	if err != nil {
		s.Logger.Error("events_read_error", zap.String("site_id", string(site.ID)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "logs error")
		return
	}
	writeJSON(w, http.StatusOK, evs)
}

func (s *Server) handleLatest(w http.ResponseWriter, r *http.Request) {
	rows, err := s.Store.Latest(r.Context())
	if err != nil {
		s.Logger.Error("latest_read_error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "latest error")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// ---- helpers ----

// site loads the {id} site, writing 404 or 500 itself when it cannot.
func (s *Server) site(w http.ResponseWriter, r *http.Request) (*domain.Site, bool) {
	id := domain.SiteID(chi.URLParam(r, "id"))
	site, err := s.Store.GetSite(r.Context(), id)
	if errors.Is(err, repo.ErrNotFound) {
		writeError(w, http.StatusNotFound, "site not found")
		return nil, false
	}
	if err != nil {
		s.Logger.Error("site_read_error", zap.String("site_id", string(id)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "site error")
		return nil, false
	}
	return site, true
}

func (s *Server) record(ctx context.Context, site *domain.Site, msg string) {
	if s.Events == nil {
		return
	}
	s.Events.Record(ctx, domain.Event{
		SiteID:  site.ID,
		UserID:  site.UserID,
		Level:   domain.LevelInfo,
		Message: msg,
		Context: map[string]any{"url": site.URL, "active": site.Active},
	})
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}

// isValidHTTPURL accepts absolute http and https URLs with a host.
func isValidHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return false
	}
	return u.Host != "" && u.Hostname() != ""
}

// normalizeHTTPURL lowercases scheme and host, drops default ports and a
// bare root path. Other paths are kept as given.
func normalizeHTTPURL(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return raw
	}
	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		u.Host = host + ":" + port
	} else {
		u.Host = host
	}
	if u.Path == "/" {
		u.Path = ""
	}
	u.Fragment = ""
	return u.String()
}
