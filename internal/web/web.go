// Package web serves the sensors, calendar view, actions, config flows and
// advisories of every entry over HTTP.
package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"calevents/internal/capture"
	"calevents/internal/config"
	"calevents/internal/entry"
	"calevents/internal/flow"
	"calevents/internal/issues"
	appLog "calevents/internal/log"
	"calevents/internal/source"
)

// IssueStore is the advisory registry as seen by the API.
type IssueStore interface {
	List(ctx context.Context) ([]issues.Issue, error)
	Dismiss(ctx context.Context, id string) error
}

// Options carries the collaborators of a Server.
type Options struct {
	Config   config.Config
	Entries  *entry.Manager
	Flows    *flow.Manager
	Issues   IssueStore
	Registry *source.Registry
	Location *time.Location

	// Capture takes the preview snapshot; nil means capture.CapturePNG.
	Capture capture.Func
}

// Server provides the HTTP API.
type Server struct {
	cfg      config.Config
	entries  *entry.Manager
	flows    *flow.Manager
	issues   IssueStore
	registry *source.Registry
	location *time.Location
	capture  capture.Func

	router chi.Router
}

func NewServer(opts Options) *Server {
	s := &Server{
		cfg:      opts.Config,
		entries:  opts.Entries,
		flows:    opts.Flows,
		issues:   opts.Issues,
		registry: opts.Registry,
		location: opts.Location,
		capture:  opts.Capture,
	}
	if s.location == nil {
		s.location = time.Local
	}
	if s.capture == nil {
		s.capture = capture.CapturePNG
	}
	s.setupRoutes()
	return s
}

// Handler returns the router, wrapped with basic auth when configured.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "listen", "http://"+s.cfg.Listen)
		return s.basicAuthMiddleware(h)
	}
	return h
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)

	r.Route("/api", func(r chi.Router) {
		r.Get("/sources", s.handleSources)

		r.Get("/entries", s.handleEntries)
		r.Route("/entries/{entryID}", func(r chi.Router) {
			r.Delete("/", s.handleRemoveEntry)
			r.Get("/sensors", s.handleSensors)
			r.Get("/calendar", s.handleCalendarEvent)
			r.Get("/calendar/events", s.handleCalendarEvents)
			r.Post("/toggle_show_as_time_to", s.handleToggleShowAsTimeTo)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/options", s.handleStartOptionsFlow)
			r.Post("/snapshot", s.handleSnapshot)
		})

		r.Post("/flows", s.handleStartUserFlow)
		r.Post("/flows/{flowID}", s.handleSubmitFlow)
		r.Delete("/flows/{flowID}", s.handleAbortFlow)

		r.Get("/issues", s.handleIssues)
		r.Delete("/issues/{issueID}", s.handleDismissIssue)
	})

	r.Get("/entries/{entryID}/markdown", s.handleMarkdownPage)
	r.Get("/entries/{entryID}/snapshot.png", s.handleSnapshotPNG)

	s.router = r
}

// Serve listens on cfg.Listen until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
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
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg.BasicAuth == nil {
		return false
	}
	// Empty credentials disable auth.
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
			w.Header().Set("WWW-Authenticate", `Basic realm="calevents", charset="UTF-8"`)
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

// requestLogger writes one debug line per request.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		appLog.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"took", time.Since(start).String(),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
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

// writeErr maps known sentinel errors onto status codes.
func writeErr(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entry.ErrNotFound),
		errors.Is(err, config.ErrEntryNotFound),
		errors.Is(err, flow.ErrUnknownFlow),
		errors.Is(err, issues.ErrNotFound),
		errors.Is(err, source.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, config.ErrNoCalendars):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		appLog.Error("request failed", err)
	}
	writeError(w, status, err.Error())
}
