package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"recall/internal/calendar"
	"recall/internal/config"
	"recall/internal/edit"
	appLog "recall/internal/log"
	"recall/internal/model"
	"recall/internal/refresh"
)

// Refresher triggers an ICS refresh on demand.
type Refresher interface {
	RunOnce(ctx context.Context) (refresh.Report, error)
}

type Options struct {
	Refresher Refresher
	Metrics   *Metrics
}

// Server exposes the day layout, event CRUD, drag editing and the rendered
// day page over HTTP.
type Server struct {
	cfg      *config.Config
	svc      *calendar.Service
	refresh  Refresher
	metrics  *Metrics
	rounding edit.Rounding
	pages    *template.Template
	mux      *http.ServeMux

	// One drag gesture at a time across all clients.
	editMu  sync.Mutex
	session *edit.Session
	editDay model.Day
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, svc *calendar.Service, opts Options) *Server {
	rounding, err := edit.ParseRounding(cfg.Rounding)
	if err != nil {
		appLog.Warn("web: falling back to quarter hour rounding", "rounding", cfg.Rounding)
	}
	s := &Server{
		cfg:      cfg,
		svc:      svc,
		refresh:  opts.Refresher,
		metrics:  opts.Metrics,
		rounding: rounding,
		pages:    parsePages(),
		mux:      http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

// Handler returns the underlying http.Handler for this server.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.mux)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	return s.cfg.BasicAuth.Username != "" && s.cfg.BasicAuth.Password != ""
}

// basicAuthMiddleware wraps all handlers except /health with HTTP Basic Auth.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			next.ServeHTTP(w, r)
			return
		}
		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !secureCompare(p, password) {
			w.Header().Set("WWW-Authenticate", `Basic realm="Recall", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	appLog.Info("HTTP server stopped")
	return nil
}

func (s *Server) registerRoutes() {
	s.handle("GET /health", "health", s.handleHealth)

	s.handle("GET /api/days/{date}/layout", "layout", s.handleLayout)
	s.handle("GET /api/events", "events", s.handleListEvents)
	s.handle("POST /api/events", "events", s.handleCreateEvent)
	s.handle("PATCH /api/events/{id}", "event", s.handleUpdateEvent)
	s.handle("DELETE /api/events/{id}", "event", s.handleDeleteEvent)
	s.handle("GET /api/export.ics", "export", s.handleExport)
	s.handle("POST /api/refresh", "refresh", s.handleRefresh)

	s.handle("POST /api/edit/begin", "edit", s.handleEditBegin)
	s.handle("POST /api/edit/drag", "edit", s.handleEditDrag)
	s.handle("POST /api/edit/end", "edit", s.handleEditEnd)
	s.handle("POST /api/edit/cancel", "edit", s.handleEditCancel)

	s.handle("GET /day/{date}", "page", s.handleDayPage)
	s.handle("GET /{$}", "page", s.handleToday)
	s.handle("GET /preview.png", "preview", s.handlePreview)

	if s.metrics != nil {
		s.mux.Handle("GET /metrics", s.metrics.Handler())
	}
}

// handle registers fn and counts responses by route.
func (s *Server) handle(pattern, route string, fn http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		fn(rec, r)
		s.metrics.observeRequest(route, rec.status)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handlePreview serves the last captured PNG of the day page.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	http.ServeFile(w, r, PreviewPath(s.cfg))
}

// PreviewPath is where `recall capture` writes by default.
func PreviewPath(cfg *config.Config) string {
	return filepath.Join(cfg.DataDir, "preview.png")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
