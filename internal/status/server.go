// Package status exposes the read-only status surface: dashboard,
// health JSON, Prometheus metrics and the manual-trigger endpoint.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/aleister1102/webwatch/internal/errs"
	"github.com/aleister1102/webwatch/internal/models"
	"github.com/aleister1102/webwatch/internal/scheduler"
	"github.com/aleister1102/webwatch/internal/statestore"
)

// ResultSource is the slice of the runner the server reads.
type ResultSource interface {
	Results() map[string]models.CheckResult
	ErrorCount(watchID string) int
	Counters() (runs, errors map[string]int64)
}

// NotificationSource exposes delivery counters.
type NotificationSource interface {
	SentCounts() map[string]int64
}

// Server serves the status surface.
type Server struct {
	engine  *scheduler.Engine
	results ResultSource
	sent    NotificationSource
	history *statestore.History
	logger  zerolog.Logger
	started time.Time

	httpServer *http.Server
}

// NewServer wires the handlers. history and sent may be nil.
func NewServer(
	port int,
	engine *scheduler.Engine,
	results ResultSource,
	sent NotificationSource,
	history *statestore.History,
	logger zerolog.Logger,
) *Server {
	s := &Server{
		engine:  engine,
		results: results,
		sent:    sent,
		history: history,
		logger:  logger.With().Str("component", "StatusServer").Logger(),
		started: time.Now(),
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Get("/", s.handleDashboard)
	r.Get("/dashboard", s.handleDashboard)
	r.Get("/health", s.handleHealth)
	r.Get("/api/health", s.handleHealth)
	r.Get("/metrics", s.handleMetrics)
	r.Post("/api/trigger", s.handleTrigger)

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: r,
	}
	return s
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown.
func (s *Server) Start() {
	s.logger.Info().Str("addr", s.httpServer.Addr).Msg("Status server listening")
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		s.logger.Error().Err(err).Msg("Status server failed")
	}
}

// Shutdown stops the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// watchView is one row of the health/dashboard surface.
type watchView struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	URL        string `json:"url"`
	Schedule   string `json:"schedule"`
	Success    bool   `json:"success"`
	Checked    bool   `json:"checked"`
	LastCheck  string `json:"lastCheck"`
	Changes    int    `json:"changes"`
	Error      string `json:"error,omitempty"`
	ErrorCount int    `json:"errorCount"`
}

func (s *Server) watchViews() []watchView {
	results := s.results.Results()
	watches := s.engine.Watches()
	sort.Slice(watches, func(i, j int) bool { return watches[i].Name < watches[j].Name })

	views := make([]watchView, 0, len(watches))
	for _, w := range watches {
		view := watchView{
			ID:         w.ID,
			Name:       w.Name,
			URL:        w.URL,
			Schedule:   w.Schedule,
			LastCheck:  "-",
			ErrorCount: s.results.ErrorCount(w.ID),
		}
		if res, ok := results[w.ID]; ok {
			view.Checked = true
			view.Success = res.Success
			view.LastCheck = res.LastCheck
			view.Changes = len(res.Changes)
			view.Error = res.Error
		}
		views = append(views, view)
	}
	return views
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	payload := map[string]any{
		"status":    "ok",
		"uptime":    time.Since(s.started).Round(time.Second).String(),
		"watches":   s.watchViews(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode health payload")
	}
}

func (s *Server) handleTrigger(w http.ResponseWriter, r *http.Request) {
	watchID := r.URL.Query().Get("id")
	if watchID == "" {
		http.Error(w, `{"error":"id parameter is required"}`, http.StatusBadRequest)
		return
	}

	if err := s.engine.Trigger(r.Context(), watchID); err != nil {
		if errors.Is(err, errs.ErrNotFound) {
			http.Error(w, `{"error":"unknown watch"}`, http.StatusNotFound)
			return
		}
		http.Error(w, `{"error":"trigger failed"}`, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"status":  "triggered",
		"watchId": watchID,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var b strings.Builder

	b.WriteString("# TYPE web_monitor_up gauge\n")
	b.WriteString("web_monitor_up 1\n")

	b.WriteString("# TYPE web_monitor_uptime_seconds counter\n")
	fmt.Fprintf(&b, "web_monitor_uptime_seconds %d\n", int64(time.Since(s.started).Seconds()))

	views := s.watchViews()
	b.WriteString("# TYPE web_monitor_watches gauge\n")
	fmt.Fprintf(&b, "web_monitor_watches %d\n", len(views))

	runs, errCounts := s.results.Counters()
	skipped := s.engine.SkippedCounts()

	b.WriteString("# TYPE web_monitor_watch_success gauge\n")
	for _, v := range views {
		success := 0
		if v.Checked && v.Success {
			success = 1
		}
		fmt.Fprintf(&b, "web_monitor_watch_success{watch=%q,name=%q} %d\n", v.ID, v.Name, success)
	}

	b.WriteString("# TYPE web_monitor_watch_errors_total counter\n")
	for _, v := range views {
		fmt.Fprintf(&b, "web_monitor_watch_errors_total{watch=%q,name=%q} %d\n", v.ID, v.Name, errCounts[v.ID])
	}

	b.WriteString("# TYPE web_monitor_runs_total counter\n")
	for _, v := range views {
		fmt.Fprintf(&b, "web_monitor_runs_total{watch=%q,name=%q} %d\n", v.ID, v.Name, runs[v.ID])
	}

	b.WriteString("# TYPE web_monitor_runs_skipped_total counter\n")
	for _, v := range views {
		fmt.Fprintf(&b, "web_monitor_runs_skipped_total{watch=%q,name=%q} %d\n", v.ID, v.Name, skipped[v.ID])
	}

	if s.sent != nil {
		b.WriteString("# TYPE web_monitor_notifications_total counter\n")
		for key, count := range s.sent.SentCounts() {
			parts := strings.SplitN(key, "|", 2)
			if len(parts) != 2 {
				continue
			}
			fmt.Fprintf(&b, "web_monitor_notifications_total{watch=%q,transport=%q} %d\n", parts[0], parts[1], count)
		}
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write([]byte(b.String()))
}
