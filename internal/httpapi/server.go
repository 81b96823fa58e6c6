package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"tickerdesk/internal/dashboard"
	"tickerdesk/internal/domain"
	"tickerdesk/internal/prompt"
	"tickerdesk/internal/remote"
	"tickerdesk/internal/store"
	"tickerdesk/internal/watchlist"
)

// Server serves the watchlist HTTP API.
type Server struct {
	wl      *watchlist.Store
	archive store.Archive // nil if archiving is disabled
	log     *slog.Logger
	now     func() time.Time
	origins map[string]struct{}
}

// NewServer creates a new watchlist HTTP server. archive may be nil.
// allowedOrigins lists the browser origins permitted to call the API;
// requests without an Origin header are always served.
func NewServer(wl *watchlist.Store, archive store.Archive, log *slog.Logger, allowedOrigins ...string) *Server {
	origins := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		origins[strings.TrimSuffix(o, "/")] = struct{}{}
	}
	return &Server{wl: wl, archive: archive, log: log, now: time.Now, origins: origins}
}

// RegisterRoutes registers all API routes on the given mux.
func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/watchlist", s.handleWatchlist)
	mux.HandleFunc("GET /api/watchlist/{code}", s.handleRecord)
	mux.HandleFunc("PUT /api/watchlist/{code}", s.handleAdd)
	mux.HandleFunc("DELETE /api/watchlist/{code}", s.handleRemove)
	mux.HandleFunc("POST /api/refresh", s.handleRefresh)
	mux.HandleFunc("POST /api/trigger", s.handleTrigger)
	mux.HandleFunc("GET /api/prompt", s.handlePrompt)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("PUT /api/config", s.handlePutConfig)
	mux.HandleFunc("GET /api/history/{code}", s.handleHistory)
	mux.HandleFunc("GET /api/events", s.handleEvents)
}

// Handler returns an http.Handler with CORS middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.RegisterRoutes(mux)
	return s.corsMiddleware(mux)
}

// corsMiddleware serves requests without an Origin header and those from an
// allowed origin. Every other cross-origin request is refused, since the
// API stores the hosting token and acts with it.
func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if _, ok := s.origins[origin]; !ok {
				s.log.Warn("refusing cross-origin request", "origin", origin, "method", r.Method, "path", r.URL.Path)
				writeError(w, http.StatusForbidden, "origin not allowed")
				return
			}
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, PUT, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			w.Header().Add("Vary", "Origin")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding JSON response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// parseSortMode extracts the sort mode from the "sort" query param.
func parseSortMode(r *http.Request) int {
	n, _ := dashboard.ParseSortMode(r.URL.Query().Get("sort"))
	return n
}

func (s *Server) handleWatchlist(w http.ResponseWriter, r *http.Request) {
	sortMode := parseSortMode(r)
	view := dashboard.ComputeView(s.wl.Records(), sortMode)
	writeJSON(w, convertView(view, sortMode, s.wl.LastUpdated(), s.now()))
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.wl.Get(r.PathValue("code"))
	if !ok {
		writeError(w, http.StatusNotFound, "ticker not in watchlist")
		return
	}
	writeJSON(w, RecordResponse{
		Record: convertRecord(rec),
		Stats:  convertHistoryStats(dashboard.ComputeHistoryStats(rec)),
	})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	rec, err := s.wl.Add(r.Context(), r.PathValue("code"))
	switch {
	case errors.Is(err, watchlist.ErrEmptyCode):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case errors.Is(err, watchlist.ErrDuplicate):
		writeError(w, http.StatusConflict, err.Error())
		return
	case err != nil:
		s.log.Error("adding ticker", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(convertRecord(rec)); err != nil {
		s.log.Error("encoding JSON response", "error", err)
	}
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	if err := s.wl.Remove(r.Context(), r.PathValue("code")); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	confirmed := s.wl.Refresh(r.Context(), false)
	if confirmed == nil {
		confirmed = []string{}
	}
	writeJSON(w, RefreshResponse{Confirmed: confirmed, Updated: s.wl.LastUpdated()})
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	err := s.wl.TriggerBatchRun(r.Context())
	switch {
	case errors.Is(err, remote.ErrNotConfigured):
		writeError(w, http.StatusPreconditionFailed, err.Error())
		return
	case err != nil:
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

func (s *Server) handlePrompt(w http.ResponseWriter, r *http.Request) {
	now := s.now()
	date := r.URL.Query().Get("date")
	if date == "" {
		date = now.Format(domain.DateLayout)
	} else if _, err := time.Parse(domain.DateLayout, date); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid date %q", date))
		return
	}

	records := s.wl.Records()
	text, err := prompt.Build(records, date, now)
	if errors.Is(err, prompt.ErrNoRecords) {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, PromptResponse{Date: date, Preview: prompt.Preview(records), Prompt: text})
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.wl.RemoteConfig(r.Context()).Redacted())
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg domain.RemoteConfig
	if err := json.NewDecoder(r.Body).Decode(&cfg); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.wl.SaveRemoteConfig(r.Context(), cfg); err != nil {
		s.log.Error("saving remote config", "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, cfg.Redacted())
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.archive == nil {
		writeError(w, http.StatusServiceUnavailable, "history archive not enabled")
		return
	}
	code := domain.NormalizeCode(r.PathValue("code"))
	bars, err := s.archive.ReadHistory(r.Context(), code)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "no archived history for "+code)
		return
	}
	if err != nil {
		s.log.Error("reading archived history", "code", code, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if n, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && n > 0 && n < len(bars) {
		bars = bars[:n]
	}
	writeJSON(w, ArchiveResponse{Code: code, Bars: bars})
}

// handleEvents streams store notifications as server-sent events.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	id, ch := s.wl.Subscribe(16)
	defer s.wl.Unsubscribe(id)

	for {
		select {
		case <-r.Context().Done():
			return
		case n, ok := <-ch:
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				s.log.Error("encoding notification", "error", err)
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", n.Kind, data)
			flusher.Flush()
		}
	}
}
