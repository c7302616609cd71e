// Package server accepts TCP connections and hands each one to the worker
// pool as a single job.
//
// Architecture:
//   - The accept loop runs on the caller's goroutine and does no I/O on the
//     connection itself; it only wraps the connection in a Job and submits
//     it.  Everything else (read, route, file read, write) runs on a pool
//     worker.
//   - The loop is decoupled from the pool by the Submitter interface.
//   - When Submit reports that the pool is closed the loop stops, since no
//     worker will ever pick the connection up.
package server

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/netutil"

	"github.com/firasghr/GoPoolServer/config"
	"github.com/firasghr/GoPoolServer/logger"
	"github.com/firasghr/GoPoolServer/metrics"
	"github.com/firasghr/GoPoolServer/worker"
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("server: closed")

// Submitter accepts jobs for asynchronous execution.  *worker.Pool
// satisfies it.
type Submitter interface {
	Submit(job worker.Job) error
}

// Option configures a Server.
type Option func(*Server)

// WithLogger routes server log lines to l.
func WithLogger(l *logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMetrics counts written responses in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) {
		if m != nil {
			s.stats = m
		}
	}
}

// Server is the accept loop.
type Server struct {
	cfg     *config.Config
	pool    Submitter
	handler *Handler
	log     *logger.Logger
	stats   *metrics.Metrics

	mu     sync.Mutex
	ln     net.Listener
	closed bool
}

// New creates a Server that serves cfg's pages and submits to pool.
func New(cfg *config.Config, pool Submitter, opts ...Option) *Server {
	s := &Server{
		cfg:   cfg,
		pool:  pool,
		log:   logger.Discard(),
		stats: metrics.NewMetrics(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.handler = NewHandler(cfg, s.log, s.stats)
	return s
}

// Listen binds cfg.Address without accepting yet, so callers can learn the
// bound address (useful with port 0) before Serve.
func (s *Server) Listen() (net.Listener, error) {
	ln, err := net.Listen("tcp", s.cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("server: listen %s: %w", s.cfg.Address, err)
	}
	return ln, nil
}

// ListenAndServe is Listen followed by Serve.
func (s *Server) ListenAndServe() error {
	ln, err := s.Listen()
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until ln is closed, Close is called, or
// the pool stops accepting work.  Temporary accept errors such as EMFILE are
// retried with a backoff capped at maxAcceptDelay; any other accept error
// ends Serve.  It always closes ln before returning.
func (s *Server) Serve(ln net.Listener) error {
	if s.cfg.MaxConnections > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConnections)
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	s.ln = ln
	s.mu.Unlock()
	defer ln.Close()

	s.log.Infof("listening on %s", ln.Addr())
	var delay time.Duration
	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.isClosed() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			if isTemporary(err) {
				delay = nextAcceptDelay(delay)
				s.log.Warnf("accept error: %v; retrying in %v", err, delay)
				time.Sleep(delay)
				continue
			}
			return fmt.Errorf("server: accept: %w", err)
		}
		delay = 0

		id := uuid.NewString()
		err = s.pool.Submit(func() { s.handler.ServeConn(id, conn) })
		if err == nil {
			continue
		}
		conn.Close()
		if errors.Is(err, worker.ErrPoolClosed) {
			s.log.Info("pool is shut down; no longer accepting connections")
			return err
		}
		s.log.Errorf("connection %s dropped: %v", id, err)
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return nil
	}
	return s.ln.Addr()
}

// Close stops the accept loop.  Connections already submitted are still
// served by the pool.
func (s *Server) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.ln != nil {
		return s.ln.Close()
	}
	return nil
}

const (
	minAcceptDelay = 5 * time.Millisecond
	maxAcceptDelay = time.Second
)

func nextAcceptDelay(d time.Duration) time.Duration {
	if d == 0 {
		return minAcceptDelay
	}
	return min(2*d, maxAcceptDelay)
}

// isTemporary reports whether err is an accept error worth retrying.
// Temporary is deprecated on net.Error but remains the signal net/http uses
// for resource exhaustion on accept.
func isTemporary(err error) bool {
	var te interface{ Temporary() bool }
	return errors.As(err, &te) && te.Temporary()
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
