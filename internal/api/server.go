// Package api exposes the task service over HTTP: task CRUD, bulk create,
// statistics, the audit feed, a websocket event stream, and operational
// endpoints.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"runtime"
	"time"

	"github.com/basket/taskd/internal/audit"
	"github.com/basket/taskd/internal/bus"
	"github.com/basket/taskd/internal/config"
	"github.com/basket/taskd/internal/otel"
	"github.com/basket/taskd/internal/stats"
	"github.com/basket/taskd/internal/store"
)

// Version is reported on the health endpoint.
const Version = "0.3.0"

// Config holds the server's dependencies.
type Config struct {
	Store   *store.Store
	Engine  *stats.Engine
	Journal *audit.Journal
	Bus     *bus.Bus
	Logger  *slog.Logger
	Metrics *otel.Metrics

	BindAddr     string
	Fingerprint  string
	MaxBodyBytes int64
	CORS         config.CORSConfig
	RateLimit    config.RateLimitConfig
	AllowOrigins []string
}

// Server is the HTTP front of the task service.
type Server struct {
	cfg     Config
	store   *store.Store
	engine  *stats.Engine
	journal *audit.Journal
	bus     *bus.Bus
	logger  *slog.Logger
	metrics *otel.Metrics

	httpServer *http.Server
}

// New creates a Server. Call Start to begin serving.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:     cfg,
		store:   cfg.Store,
		engine:  cfg.Engine,
		journal: cfg.Journal,
		bus:     cfg.Bus,
		logger:  logger,
		metrics: cfg.Metrics,
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /metrics/prometheus", s.handlePrometheus)

	mux.HandleFunc("GET /tasks", s.handleListTasks)
	mux.HandleFunc("POST /tasks", s.handleCreateTask)
	mux.HandleFunc("POST /tasks/bulk", s.handleBulkCreate)
	mux.HandleFunc("GET /tasks/stats/summary", s.handleStatsSummary)
	mux.HandleFunc("GET /tasks/analytics/productivity", s.handleProductivity)
	mux.HandleFunc("GET /tasks/{id}", s.handleGetTask)
	mux.HandleFunc("PUT /tasks/{id}", s.handleUpdateTask)
	mux.HandleFunc("DELETE /tasks/{id}", s.handleDeleteTask)

	mux.HandleFunc("GET /api/audit", s.handleAudit)
	mux.HandleFunc("GET /ws/events", s.handleWS)

	return mux
}

// Start begins serving in a background goroutine. Middleware is applied
// outermost-first: observe, trace, CORS, rate limit, body size.
func (s *Server) Start(ctx context.Context) error {
	rl := NewRateLimitMiddleware(s.cfg.RateLimit, s.onRateLimitReject)
	rl.StartEviction(ctx, 5*time.Minute, 15*time.Minute)

	handler := Chain(s.Handler(),
		s.ObserveMiddleware(),
		TraceMiddleware(),
		NewCORSMiddleware(s.cfg.CORS),
		rl.Wrap,
		RequestSizeLimitMiddleware(s.cfg.MaxBodyBytes),
	)

	s.httpServer = &http.Server{
		Addr:              s.cfg.BindAddr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		s.logger.Info("api listening", "addr", s.cfg.BindAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server failed", "error", err)
		}
	}()
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) onRateLimitReject() {
	if s.metrics != nil {
		s.metrics.RateLimitRejects.Add(context.Background(), 1)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Memory usage is the serialized store size, not process heap.
	storeMB := float64(s.store.ApproxMemoryBytes()) / (1024 * 1024)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "healthy",
		"timestamp":       time.Now().UTC().Format(time.RFC3339),
		"version":         Version,
		"uptime_seconds":  int64(time.Since(s.store.StartedAt()).Seconds()),
		"total_tasks":     s.store.Count(),
		"memory_usage_mb": math.Round(storeMB*100) / 100,
		"config":          s.cfg.Fingerprint,
	})
}

func (s *Server) handlePrometheus(w http.ResponseWriter, r *http.Request) {
	summary := s.engine.GetSummary(r.Context())
	mem := &runtime.MemStats{}
	runtime.ReadMemStats(mem)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	fmt.Fprintf(w, "# HELP taskd_tasks_total Total number of tasks in the store.\n")
	fmt.Fprintf(w, "# TYPE taskd_tasks_total gauge\n")
	fmt.Fprintf(w, "taskd_tasks_total %d\n", summary.Total)
	fmt.Fprintf(w, "# HELP taskd_tasks_by_status Tasks per status.\n")
	fmt.Fprintf(w, "# TYPE taskd_tasks_by_status gauge\n")
	for _, st := range []string{"pending", "in_progress", "completed", "blocked", "cancelled"} {
		fmt.Fprintf(w, "taskd_tasks_by_status{status=%q} %d\n", st, summary.ByStatus[st])
	}
	fmt.Fprintf(w, "# HELP taskd_completion_rate Percentage of tasks completed.\n")
	fmt.Fprintf(w, "# TYPE taskd_completion_rate gauge\n")
	fmt.Fprintf(w, "taskd_completion_rate %g\n", summary.CompletionRate)
	fmt.Fprintf(w, "# HELP taskd_blocked_tasks Tasks currently blocked.\n")
	fmt.Fprintf(w, "# TYPE taskd_blocked_tasks gauge\n")
	fmt.Fprintf(w, "taskd_blocked_tasks %d\n", summary.BlockedTasks)
	fmt.Fprintf(w, "# HELP taskd_store_bytes Approximate serialized size of the store.\n")
	fmt.Fprintf(w, "# TYPE taskd_store_bytes gauge\n")
	fmt.Fprintf(w, "taskd_store_bytes %d\n", s.store.ApproxMemoryBytes())
	fmt.Fprintf(w, "# HELP taskd_alloc_bytes Current allocated memory in bytes.\n")
	fmt.Fprintf(w, "# TYPE taskd_alloc_bytes gauge\n")
	fmt.Fprintf(w, "taskd_alloc_bytes %d\n", mem.Alloc)
	fmt.Fprintf(w, "# HELP taskd_event_subscribers Active bus subscribers.\n")
	fmt.Fprintf(w, "# TYPE taskd_event_subscribers gauge\n")
	fmt.Fprintf(w, "taskd_event_subscribers %d\n", s.bus.SubscriberCount())
	if count, err := s.journal.Count(r.Context()); err == nil {
		fmt.Fprintf(w, "# HELP taskd_audit_entries Audit journal entries.\n")
		fmt.Fprintf(w, "# TYPE taskd_audit_entries counter\n")
		fmt.Fprintf(w, "taskd_audit_entries %d\n", count)
	}
}
