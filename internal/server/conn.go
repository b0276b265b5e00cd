package server

import (
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Brownie44l1/rawhttp/internal/headers"
	"github.com/Brownie44l1/rawhttp/internal/httperr"
	"github.com/Brownie44l1/rawhttp/internal/request"
	"github.com/Brownie44l1/rawhttp/internal/response"
	"github.com/Brownie44l1/rawhttp/internal/router"
)

// ConnState is the lifecycle state of an accepted connection.
type ConnState int

const (
	StateOpen ConnState = iota
	StateClosing
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("ConnState(%d)", int(s))
	}
}

// aLongTimeAgo is a deadline that makes blocked reads return at once.
var aLongTimeAgo = time.Unix(1, 0)

const (
	lingerTimeout  = 500 * time.Millisecond
	maxLingerBytes = 256 << 10
)

// conn is one accepted connection. After it is queued it belongs to exactly
// one worker; the server only touches it to wake it while idle or to force
// it closed.
type conn struct {
	srv    *Server
	nc     net.Conn
	id     string
	logger zerolog.Logger

	mu    sync.Mutex
	state ConnState
	idle  bool

	closeOnce sync.Once
	closeErr  error
}

func newConn(s *Server, nc net.Conn) *conn {
	id := uuid.NewString()
	return &conn{
		srv: s,
		nc:  nc,
		id:  id,
		logger: s.logger.With().
			Str("conn_id", id).
			Str("remote", nc.RemoteAddr().String()).
			Logger(),
	}
}

func (c *conn) State() ConnState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *conn) setState(state ConnState) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state < state {
		c.state = state
	}
}

// close moves the connection to StateClosed. Only the first call closes the
// socket.
func (c *conn) close() error {
	c.closeOnce.Do(func() {
		c.setState(StateClosed)
		c.closeErr = c.nc.Close()
		c.srv.untrack(c)
	})
	return c.closeErr
}

// enterIdle marks the connection as waiting for a request and arms the wait
// deadline. It reports false when the server is shutting down, in which
// case no further request is read.
func (c *conn) enterIdle(timeout time.Duration) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.srv.shuttingDown() {
		return false
	}
	c.idle = true
	c.nc.SetReadDeadline(deadline(timeout))
	return true
}

// lingerClose half-closes the connection and drains what the client is
// still sending, so closing with unread input does not reset the
// connection before the client has read the error response.
func (c *conn) lingerClose() {
	if cw, ok := c.nc.(interface{ CloseWrite() error }); ok {
		cw.CloseWrite()
	}
	c.nc.SetReadDeadline(time.Now().Add(lingerTimeout))
	io.Copy(io.Discard, io.LimitReader(c.nc, maxLingerBytes))
	c.close()
}

func (c *conn) leaveIdle() {
	c.mu.Lock()
	c.idle = false
	c.mu.Unlock()
}

// wakeIfIdle interrupts a worker blocked waiting for the next request.
func (c *conn) wakeIfIdle() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.idle {
		c.nc.SetReadDeadline(aLongTimeAgo)
	}
}

func deadline(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

// serveConn handles all requests on a single connection
func (s *Server) serveConn(c *conn) {
	s.metrics.ActiveConnections.Add(1)
	defer s.metrics.ActiveConnections.Add(-1)
	defer c.close()
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error().Interface("panic", r).Msg("connection worker panicked")
		}
	}()

	reader := request.NewReader(c.nc, s.limits)
	defer reader.Release()
	writer := response.NewWriter(c.nc, s.opts)

	c.logger.Debug().Msg("connection opened")

	for seq := 1; ; seq++ {
		// The first request gets the read timeout, follow-ups the idle one.
		wait := s.cfg.IdleTimeout
		if seq == 1 {
			wait = s.cfg.ReadTimeout
		}
		if !c.enterIdle(wait) {
			c.logger.Debug().Msg("closing idle connection for shutdown")
			return
		}
		err := reader.Fill()
		c.leaveIdle()
		if err != nil {
			if errors.Is(err, io.EOF) {
				c.logger.Debug().Int("requests", seq-1).Msg("client closed connection")
			} else {
				c.logger.Debug().Err(err).Msg("connection ended while idle")
			}
			return
		}

		c.nc.SetReadDeadline(deadline(s.cfg.ReadTimeout))
		if !s.serveRequest(c, reader, writer, seq) {
			c.setState(StateClosing)
			return
		}
	}
}

// serveRequest runs one parse, route, handle and write cycle. It reports
// whether the connection may carry another request.
func (s *Server) serveRequest(c *conn, reader *request.Reader, writer *response.Writer, seq int) bool {
	start := time.Now()

	req, err := reader.ReadRequest()
	if err != nil {
		return s.rejectRequest(c, writer, err, start)
	}

	logger := c.logger.With().
		Str("method", truncate(req.Method.String())).
		Str("path", truncate(req.Path)).
		Int("seq", seq).
		Logger()

	h, params, rerr := s.table.Resolve(req.Method, req.Path)
	if rerr != nil {
		logger.Debug().Err(rerr).Msg("no route")
	}

	ctx := router.NewContext(req, params, logger)
	ctx.RequestID = fmt.Sprintf("%s-%d", c.id, seq)

	resp, herr := router.Chain(h, s.middleware...)(ctx)

	failed := false
	if herr != nil {
		failed = httperr.KindOf(herr) != httperr.KindNotFound
		resp = response.Error(response.StatusCode(statusOf(nil, herr)))
	} else if resp == nil {
		logger.Error().Msg("handler returned no response")
		failed = true
		resp = response.Error(response.StatusInternalServerError)
	}

	closing := shouldCloseConnection(req, failed, s.shuttingDown())
	err = s.writeResponse(c, writer, resp, req, closing)
	if err != nil {
		closing = true
	}

	logger.Info().
		Int("status", int(writer.StatusCode())).
		Int64("bytes", writer.BytesWritten()).
		Dur("duration", time.Since(start)).
		Bool("close", closing).
		Msg("request")

	if err != nil {
		c.logger.Debug().Err(err).Msg("write response failed")
		return false
	}
	if closing && (reader.Buffered() > 0 || req.IsChunked()) {
		c.lingerClose()
	}
	return keepAlive(writer, closing)
}

// rejectRequest answers a request that could not be parsed. Transport
// failures get no answer.
func (s *Server) rejectRequest(c *conn, writer *response.Writer, err error, start time.Time) bool {
	status, answerable := httperr.StatusFor(err)
	if !answerable || errors.Is(err, io.EOF) {
		c.logger.Debug().Err(err).Msg("read request failed")
		return false
	}

	c.logger.Warn().Err(err).Int("status", status).Msg("malformed request")
	s.metrics.RecordRequest(status, time.Since(start))

	if werr := s.writeResponse(c, writer, response.Error(response.StatusCode(status)), nil, true); werr != nil {
		c.logger.Debug().Err(werr).Msg("write error response failed")
		return false
	}
	c.lingerClose()
	return false
}

func (s *Server) writeResponse(c *conn, writer *response.Writer, resp *response.Response, req *request.Request, closing bool) error {
	if resp.Headers == nil {
		resp.Headers = headers.NewHeaders()
	}
	setConnectionHeader(req, resp, closing)
	if closing {
		c.setState(StateClosing)
	}

	c.nc.SetWriteDeadline(deadline(s.cfg.WriteTimeout))
	writer.Reset()
	err := writer.WriteResponse(resp, req)
	s.metrics.BytesWritten.Add(writer.BytesWritten())
	if err == nil {
		return nil
	}
	if writer.StatusCode() != 0 {
		return httperr.Transport("write response", err)
	}

	// Encoding failed before the status line was written, so the client
	// can still be told.
	c.logger.Error().Err(err).Msg("response could not be encoded")
	s.metrics.Errors5xx.Add(1)
	s.metrics.ErrorsTotal.Add(1)
	fallback := response.Error(response.StatusInternalServerError)
	setConnectionHeader(req, fallback, true)
	c.setState(StateClosing)

	writer.Reset()
	if werr := writer.WriteResponse(fallback, nil); werr != nil {
		return httperr.Transport("write response", werr)
	}
	return httperr.Handler("encode response", err)
}
