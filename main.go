// GoPoolServer is a minimal TCP page server backed by a fixed-size worker
// pool.
//
// Startup sequence:
//  1. Parse flags and load configuration (JSON/YAML file or defaults).
//  2. Initialise logger and metrics.
//  3. Start the worker pool.
//  4. Start the dashboard (optional).
//  5. Arm the SIGINT trigger, which drains the pool and exits with 130.
//  6. Accept connections, one pool job per connection, until the listener
//     or the pool stops.
package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"time"

	"github.com/firasghr/GoPoolServer/config"
	"github.com/firasghr/GoPoolServer/dashboard"
	"github.com/firasghr/GoPoolServer/logger"
	"github.com/firasghr/GoPoolServer/metrics"
	"github.com/firasghr/GoPoolServer/server"
	"github.com/firasghr/GoPoolServer/trigger"
	"github.com/firasghr/GoPoolServer/worker"
)

func main() {
	os.Exit(run())
}

// run returns the process exit status.
func run() int {
	// ── Flags ──────────────────────────────────────────────────────────────
	configFile := flag.String("config", "", "Path to JSON or YAML config file (optional; uses defaults if omitted)")
	addr := flag.String("addr", "", "TCP listen address; overrides the config file")
	workers := flag.Int("workers", 0, "Number of pool workers; overrides the config file")
	dashboardAddr := flag.String("dashboard", "", "Dashboard HTTP address (e.g. :8080); empty disables it")
	logLevel := flag.String("log-level", "", "debug, info, warn or error; overrides the config file")
	flag.Parse()

	// ── Logger ─────────────────────────────────────────────────────────────
	log := logger.New(logger.LevelInfo)

	// ── Configuration ──────────────────────────────────────────────────────
	cfg := config.DefaultConfig()
	if *configFile != "" {
		var err error
		cfg, err = config.LoadConfig(*configFile)
		if err != nil {
			log.Errorf("failed to load config from %q: %v", *configFile, err)
			return 1
		}
		log.Infof("configuration loaded from %q", *configFile)
	}
	if *addr != "" {
		cfg.Address = *addr
	}
	if *workers != 0 {
		cfg.Workers = *workers
	}
	if *dashboardAddr != "" {
		cfg.DashboardAddress = *dashboardAddr
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	if err := cfg.Validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return 1
	}
	log.SetLevel(cfg.Level())

	// ── Metrics ────────────────────────────────────────────────────────────
	m := metrics.NewMetrics()

	// ── Worker pool ────────────────────────────────────────────────────────
	pool, err := worker.NewPool(cfg.Workers, worker.WithLogger(log), worker.WithMetrics(m))
	if err != nil {
		log.Errorf("failed to start worker pool: %v", err)
		return 1
	}
	defer pool.Close()

	srv := server.New(cfg, pool, server.WithLogger(log), server.WithMetrics(m))

	// ── Dashboard server ───────────────────────────────────────────────────
	var dash *dashboard.Server
	if cfg.DashboardAddress != "" {
		dash = dashboard.New(m, pool, cfg)
		log.SetHook(dash.LogHook())
		go func() {
			if err := dash.ListenAndServe(cfg.DashboardAddress); err != nil {
				log.Errorf("dashboard server error: %v", err)
			}
		}()
		log.Infof("dashboard server starting on %s", cfg.DashboardAddress)
	}

	// ── Interrupt trigger ──────────────────────────────────────────────────
	// The trigger drains the pool on its own goroutine, then hands the exit
	// status back here and stops the accept loop.
	exitc := make(chan int, 1)
	trig := trigger.New(pool, trigger.WithLogger(log), trigger.WithExit(func(code int) {
		exitc <- code
		srv.Close()
	}))
	if err := trig.Register(); err != nil {
		log.Warnf("continuing without interrupt handling: %v", err)
	}
	defer trig.Stop()

	// ── Accept loop ────────────────────────────────────────────────────────
	code := 0
	err = srv.ListenAndServe()
	switch {
	case errors.Is(err, server.ErrServerClosed), errors.Is(err, worker.ErrPoolClosed):
		// Only the trigger closes the server or the pool.
		code = <-exitc
	case err != nil:
		log.Errorf("server stopped: %v", err)
		code = 1
	}

	pool.Shutdown()
	if dash != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := dash.Shutdown(ctx); err != nil {
			log.Warnf("dashboard shutdown: %v", err)
		}
		cancel()
	}

	s := m.Snapshot()
	log.Infof("final metrics – submitted: %d | completed: %d | panicked: %d | rejected: %d | jps: %.1f",
		s.Submitted, s.Completed, s.Panicked, s.Rejected, m.JobsPerSecond())
	log.Info("GoPoolServer shut down cleanly")
	return code
}
