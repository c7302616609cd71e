// Package dashboard provides a real-time HTTP dashboard for GoPoolServer.
//
// It exposes:
//   - GET /api/metrics         – current pool snapshot (JSON)
//   - GET /api/metrics/stream  – SSE stream of pool snapshots (100 ms ticks)
//   - GET /api/logs/stream     – SSE stream of log entries, history first
//   - GET /api/config          – effective server configuration (JSON)
//   - GET /metrics             – Prometheus exposition of the same counters
//
// Configuration is read-only here: the pool size is fixed for the life of
// the process.
package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/firasghr/GoPoolServer/config"
	"github.com/firasghr/GoPoolServer/logger"
	"github.com/firasghr/GoPoolServer/metrics"
)

// ─── Data Types ───────────────────────────────────────────────────────────────

// PoolInfo is the view of the worker pool the dashboard needs.
type PoolInfo interface {
	Size() int
	Pending() int
}

// MetricsSnapshot is the JSON payload pushed to dashboard clients every tick.
type MetricsSnapshot struct {
	Timestamp    int64   `json:"timestamp"`
	Workers      int     `json:"workers"`
	Busy         int64   `json:"busy"`
	Pending      int     `json:"pending"`
	Submitted    uint64  `json:"submitted"`
	Completed    uint64  `json:"completed"`
	Panicked     uint64  `json:"panicked"`
	Rejected     uint64  `json:"rejected"`
	Responses2xx uint64  `json:"responses_2xx"`
	Responses4xx uint64  `json:"responses_4xx"`
	Responses5xx uint64  `json:"responses_5xx"`
	JPS          float64 `json:"jobs_per_second"`
}

// LogEntry is a structured log line streamed to the dashboard.
type LogEntry struct {
	Timestamp int64  `json:"ts"`
	Level     string `json:"level"`
	Message   string `json:"message"`
}

// ─── Server ───────────────────────────────────────────────────────────────────

// Server provides the dashboard HTTP endpoints.
type Server struct {
	metrics *metrics.Metrics
	pool    PoolInfo
	cfg     config.Config

	// Log ring buffer (capped at maxLogs).
	logMu    sync.Mutex
	logs     []LogEntry
	logSubs  map[chan LogEntry]struct{}
	logSubMu sync.Mutex

	// Metrics SSE subscribers.
	metricsSubs  map[chan MetricsSnapshot]struct{}
	metricsSubMu sync.Mutex

	registry *prometheus.Registry
	mux      *http.ServeMux

	srvMu  sync.Mutex
	srv    *http.Server
	stop   chan struct{}
	stopMu sync.Once
}

const maxLogs = 10_000

// New creates a dashboard Server.  cfg is copied; later changes to it are
// not reflected.  Call ListenAndServe or Serve to start accepting
// connections; Handler exposes the routes for embedding and tests.
func New(m *metrics.Metrics, pool PoolInfo, cfg *config.Config) *Server {
	s := &Server{
		metrics:     m,
		pool:        pool,
		cfg:         *cfg,
		logs:        make([]LogEntry, 0, 512),
		logSubs:     make(map[chan LogEntry]struct{}),
		metricsSubs: make(map[chan MetricsSnapshot]struct{}),
		registry:    prometheus.NewRegistry(),
		mux:         http.NewServeMux(),
		stop:        make(chan struct{}),
	}
	s.registry.MustRegister(
		m,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.registerRoutes()
	return s
}

// Handler returns the dashboard's routes.
func (s *Server) Handler() http.Handler { return s.mux }

// LogHook returns a logger.Hook that mirrors every emitted line into the
// dashboard's log stream.
func (s *Server) LogHook() logger.Hook {
	return func(level logger.Level, msg string) {
		s.AddLog(level.String(), msg)
	}
}

// AddLog appends a structured log entry to the ring buffer and fans it out to
// every active SSE /api/logs/stream subscriber.
func (s *Server) AddLog(level, message string) {
	entry := LogEntry{
		Timestamp: time.Now().UnixMilli(),
		Level:     level,
		Message:   message,
	}

	s.logMu.Lock()
	s.logs = append(s.logs, entry)
	if len(s.logs) > maxLogs {
		s.logs = s.logs[len(s.logs)-maxLogs:]
	}
	s.logMu.Unlock()

	s.logSubMu.Lock()
	for ch := range s.logSubs {
		select {
		case ch <- entry:
		default:
			// Slow subscriber – drop rather than block.
		}
	}
	s.logSubMu.Unlock()
}

// ListenAndServe binds addr and serves until Shutdown.
func (s *Server) ListenAndServe(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("dashboard: listen %s: %w", addr, err)
	}
	return s.Serve(ln)
}

// Serve serves the dashboard on ln until Shutdown.  It also starts the
// background goroutine that ticks metrics to SSE subscribers every 100 ms.
// A clean Shutdown makes Serve return nil.
//
// WriteTimeout is disabled: SSE streams are long-lived connections that must
// not be cut off by a write deadline.
func (s *Server) Serve(ln net.Listener) error {
	srv := &http.Server{
		Handler:     s.mux,
		ReadTimeout: 30 * time.Second,
		IdleTimeout: 120 * time.Second,
	}
	s.srvMu.Lock()
	s.srv = srv
	s.srvMu.Unlock()

	go s.metricsTicker()
	err := srv.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops the ticker and gracefully stops the HTTP server.  Open SSE
// streams end when ctx expires or their clients disconnect.
func (s *Server) Shutdown(ctx context.Context) error {
	s.stopMu.Do(func() { close(s.stop) })
	s.srvMu.Lock()
	srv := s.srv
	s.srvMu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

// ─── Route registration ───────────────────────────────────────────────────────

func (s *Server) registerRoutes() {
	api := map[string]http.HandlerFunc{
		"/api/metrics":        s.handleMetrics,
		"/api/metrics/stream": s.handleMetricsStream,
		"/api/logs/stream":    s.handleLogsStream,
		"/api/config":         s.handleConfig,
	}
	for path, h := range api {
		s.mux.HandleFunc("GET "+path, s.withCORS(h))
		s.mux.HandleFunc("OPTIONS "+path, s.withCORS(handlePreflight))
	}
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
		ErrorHandling:     promhttp.ContinueOnError,
	}))
}

// ─── CORS middleware ──────────────────────────────────────────────────────────

func (s *Server) withCORS(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		h(w, r)
	}
}

// handlePreflight answers CORS preflight requests; withCORS has already set
// the headers.
func handlePreflight(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}

// ─── /api/metrics ────────────────────────────────────────────────────────────

func (s *Server) snapshot() MetricsSnapshot {
	m := s.metrics.Snapshot()
	return MetricsSnapshot{
		Timestamp:    time.Now().UnixMilli(),
		Workers:      s.pool.Size(),
		Busy:         m.Busy,
		Pending:      s.pool.Pending(),
		Submitted:    m.Submitted,
		Completed:    m.Completed,
		Panicked:     m.Panicked,
		Rejected:     m.Rejected,
		Responses2xx: m.Responses2xx,
		Responses4xx: m.Responses4xx,
		Responses5xx: m.Responses5xx,
		JPS:          s.metrics.JobsPerSecond(),
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.snapshot())
}

// ─── /api/metrics/stream ─────────────────────────────────────────────────────

func (s *Server) metricsTicker() {
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			return
		case <-ticker.C:
		}
		snap := s.snapshot()
		s.metricsSubMu.Lock()
		for ch := range s.metricsSubs {
			select {
			case ch <- snap:
			default:
			}
		}
		s.metricsSubMu.Unlock()
	}
}

func (s *Server) handleMetricsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	setSSEHeaders(w)

	ch := make(chan MetricsSnapshot, 16)
	s.metricsSubMu.Lock()
	s.metricsSubs[ch] = struct{}{}
	s.metricsSubMu.Unlock()

	defer func() {
		s.metricsSubMu.Lock()
		delete(s.metricsSubs, ch)
		s.metricsSubMu.Unlock()
	}()

	// First frame immediately so clients need not wait for a tick.
	if err := sseWrite(w, s.snapshot()); err != nil {
		return
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case snap := <-ch:
			if err := sseWrite(w, snap); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// ─── /api/logs/stream ────────────────────────────────────────────────────────

func (s *Server) handleLogsStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	setSSEHeaders(w)

	// Subscribe before copying history so no entry falls between the two.
	ch := make(chan LogEntry, 256)
	s.logSubMu.Lock()
	s.logSubs[ch] = struct{}{}
	s.logSubMu.Unlock()

	defer func() {
		s.logSubMu.Lock()
		delete(s.logSubs, ch)
		s.logSubMu.Unlock()
	}()

	s.logMu.Lock()
	history := make([]LogEntry, len(s.logs))
	copy(history, s.logs)
	s.logMu.Unlock()

	for _, entry := range history {
		if err := sseWrite(w, entry); err != nil {
			return
		}
	}
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case entry := <-ch:
			if err := sseWrite(w, entry); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
}

func sseWrite(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", data)
	return err
}

// ─── /api/config ─────────────────────────────────────────────────────────────

func (s *Server) handleConfig(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, s.cfg)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encode failed", http.StatusInternalServerError)
	}
}
