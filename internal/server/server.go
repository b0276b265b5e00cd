package server

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/rawhttp/internal/config"
	"github.com/Brownie44l1/rawhttp/internal/request"
	"github.com/Brownie44l1/rawhttp/internal/response"
	"github.com/Brownie44l1/rawhttp/internal/router"
)

var (
	ErrServerClosed   = errors.New("server closed")
	ErrAlreadyServing = errors.New("server is already serving")
)

// Server accepts connections and hands each one to a bounded pool of
// workers. A worker owns its connection until it closes.
type Server struct {
	cfg        config.ServerConfig
	opts       response.Options
	limits     request.Limits
	table      *router.Table
	middleware []router.Middleware
	logger     zerolog.Logger
	metrics    *Metrics

	mu       sync.Mutex
	listener net.Listener
	conns    map[*conn]struct{}
	serving  bool

	workers    sync.WaitGroup
	inShutdown atomic.Bool
}

// New creates a server for the routes in table. The table must not be
// changed afterwards.
func New(cfg *config.Config, table *router.Table, logger zerolog.Logger) *Server {
	s := &Server{
		cfg: cfg.Server,
		opts: response.Options{
			Compression:   cfg.Compression.Enabled,
			MinSize:       cfg.Compression.MinSize,
			MaxStreamSize: cfg.Compression.MaxStreamSize,
		},
		limits: request.Limits{
			MaxHeaderBytes: cfg.Server.MaxHeaderBytes,
			MaxBodyBytes:   cfg.Server.MaxBodyBytes,
		},
		table:   table,
		logger:  logger,
		metrics: NewMetrics(),
		conns:   make(map[*conn]struct{}),
	}

	s.middleware = []router.Middleware{
		MetricsMiddleware(s.metrics),
		LoggingMiddleware(),
		RecoveryMiddleware(),
		RequestIDMiddleware(),
	}
	return s
}

// ListenAndServe listens on the configured address and serves until the
// server is shut down.
func (s *Server) ListenAndServe() error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve accepts connections on ln until it is closed. It always returns a
// non-nil error; after Shutdown or Close that error is ErrServerClosed.
func (s *Server) Serve(ln net.Listener) error {
	s.mu.Lock()
	if s.shuttingDown() {
		s.mu.Unlock()
		ln.Close()
		return ErrServerClosed
	}
	if s.serving {
		s.mu.Unlock()
		return ErrAlreadyServing
	}
	s.serving = true
	s.listener = ln

	queue := make(chan *conn, s.cfg.QueueSize)
	for i := 0; i < s.cfg.Workers; i++ {
		s.workers.Add(1)
		go s.worker(queue)
	}
	s.mu.Unlock()

	s.logger.Info().
		Str("addr", ln.Addr().String()).
		Int("workers", s.cfg.Workers).
		Int("queue", s.cfg.QueueSize).
		Int("routes", s.table.Len()).
		Msg("listening")

	defer close(queue)
	return s.acceptLoop(ln, queue)
}

func (s *Server) acceptLoop(ln net.Listener, queue chan<- *conn) error {
	var backoff time.Duration

	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}

			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else {
				backoff = min(backoff*2, time.Second)
			}
			s.logger.Error().Err(err).Dur("retry_in", backoff).Msg("accept failed")
			time.Sleep(backoff)
			continue
		}
		backoff = 0

		s.dispatch(nc, queue)
	}
}

// dispatch queues a fresh connection without waiting. When the queue is
// full the connection is closed without a response.
func (s *Server) dispatch(nc net.Conn, queue chan<- *conn) {
	c := newConn(s, nc)
	s.track(c)

	select {
	case queue <- c:
		s.metrics.AcceptedConnections.Add(1)
	default:
		s.metrics.DroppedConnections.Add(1)
		c.logger.Warn().Msg("worker queue full, dropping connection")
		c.close()
	}
}

func (s *Server) worker(queue <-chan *conn) {
	defer s.workers.Done()

	for c := range queue {
		if s.shuttingDown() {
			c.close()
			continue
		}
		s.serveConn(c)
	}
}

func (s *Server) track(c *conn) {
	s.mu.Lock()
	s.conns[c] = struct{}{}
	s.mu.Unlock()
}

func (s *Server) untrack(c *conn) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

func (s *Server) trackedConns() []*conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*conn, 0, len(s.conns))
	for c := range s.conns {
		out = append(out, c)
	}
	return out
}

func (s *Server) shuttingDown() bool {
	return s.inShutdown.Load()
}

func (s *Server) closeListener() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	err := s.listener.Close()
	if errors.Is(err, net.ErrClosed) {
		err = nil
	}
	return err
}

// Shutdown stops accepting, lets every connection finish the request it is
// serving and waits for the workers to drain. If ctx ends first the
// remaining connections are closed and ctx's error is returned.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	lnErr := s.closeListener()

	for _, c := range s.trackedConns() {
		c.wakeIfIdle()
	}

	done := make(chan struct{})
	go func() {
		s.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Object("stats", s.Stats()).Msg("server stopped")
		return lnErr
	case <-ctx.Done():
		s.closeConns()
		s.logger.Warn().Object("stats", s.Stats()).Msg("shutdown deadline passed, connections closed")
		return ctx.Err()
	}
}

// Close stops the listener and closes every connection immediately.
func (s *Server) Close() error {
	s.inShutdown.Store(true)
	err := s.closeListener()
	s.closeConns()
	return err
}

func (s *Server) closeConns() {
	for _, c := range s.trackedConns() {
		c.close()
	}
}

// Addr returns the listener address, or nil before Serve.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stats returns a snapshot of the server metrics.
func (s *Server) Stats() MetricsSnapshot {
	return s.metrics.Snapshot()
}
