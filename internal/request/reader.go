package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/Brownie44l1/rawhttp/internal/bufpool"
	"github.com/Brownie44l1/rawhttp/internal/headers"
	"github.com/Brownie44l1/rawhttp/internal/httperr"
)

const (
	defaultMaxRequestLine = 8192
	defaultMaxHeaderBytes = 1 << 20
	defaultMaxHeaderLines = 1000
	defaultMaxBodyBytes   = 10 << 20
	readChunkSize         = bufpool.SmallSize
)

var (
	ErrRequestLineTooLarge = errors.New("request line too large")
	ErrHeaderTooLarge      = errors.New("headers too large")
	ErrTooManyHeaders      = errors.New("too many header lines")
	ErrBodyTooLarge        = errors.New("body exceeds maximum size")
	ErrUnexpectedEOF       = errors.New("unexpected EOF in request")
)

// Limits bounds how much a single request may make the reader buffer.
type Limits struct {
	MaxRequestLine int
	MaxHeaderBytes int
	MaxHeaderLines int
	MaxBodyBytes   int64
}

func DefaultLimits() Limits {
	return Limits{
		MaxRequestLine: defaultMaxRequestLine,
		MaxHeaderBytes: defaultMaxHeaderBytes,
		MaxHeaderLines: defaultMaxHeaderLines,
		MaxBodyBytes:   defaultMaxBodyBytes,
	}
}

func (l Limits) withDefaults() Limits {
	d := DefaultLimits()
	if l.MaxRequestLine <= 0 {
		l.MaxRequestLine = d.MaxRequestLine
	}
	if l.MaxHeaderBytes <= 0 {
		l.MaxHeaderBytes = d.MaxHeaderBytes
	}
	if l.MaxHeaderLines <= 0 {
		l.MaxHeaderLines = d.MaxHeaderLines
	}
	if l.MaxBodyBytes <= 0 {
		l.MaxBodyBytes = d.MaxBodyBytes
	}
	return l
}

// parserState represents the current state of the request parser
type parserState int

const (
	stateRequestLine parserState = iota
	stateHeaders
	stateBody
	stateDone
)

// Reader frames requests off one byte stream. Bytes read past the end of a
// request stay buffered for the next ReadRequest call, so a Reader must
// live as long as its connection. It is not safe for concurrent use.
type Reader struct {
	src     io.Reader
	limits  Limits
	pending []byte // read but not yet consumed
	readBuf []byte
}

func NewReader(src io.Reader, limits Limits) *Reader {
	return &Reader{
		src:     src,
		limits:  limits.withDefaults(),
		pending: make([]byte, 0, readChunkSize),
		readBuf: bufpool.Get(readChunkSize),
	}
}

// Buffered returns the number of bytes held for the next request.
func (r *Reader) Buffered() int {
	return len(r.pending)
}

// Release returns the read buffer to the pool. The Reader must not be used
// afterwards.
func (r *Reader) Release() {
	if r.readBuf != nil {
		bufpool.Put(r.readBuf)
		r.readBuf = nil
	}
}

// Fill blocks until at least one byte of the next request is buffered. Like
// ReadRequest it returns io.EOF, unwrapped, when the stream ends first.
func (r *Reader) Fill() error {
	for len(r.pending) == 0 {
		n, err := r.src.Read(r.readBuf)
		if n > 0 {
			r.pending = append(r.pending, r.readBuf[:n]...)
			return nil
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return httperr.Transport("wait for request", err)
		}
	}
	return nil
}

// parser holds the state for one request
type parser struct {
	state       parserState
	req         *Request
	headerBytes int
	bodyLength  int64
	limits      Limits
}

// ReadRequest reads the next request.
//
// It returns io.EOF, unwrapped, when the stream ends before any byte of a
// request arrived. Unparsable input or a stream that ends mid-request is a
// MalformedRequest; read failures are TransportErrors.
func (r *Reader) ReadRequest() (*Request, error) {
	p := &parser{
		state:  stateRequestLine,
		req:    &Request{Headers: headers.NewHeaders()},
		limits: r.limits,
	}
	started := len(r.pending) > 0

	for p.state != stateDone {
		if p.state == stateRequestLine && r.skipBlankLines() {
			// Only CRLFs so far; they do not start a request.
			started = false
		}
		if len(r.pending) > 0 {
			consumed, err := p.parse(r.pending)
			if err != nil {
				return nil, err
			}
			if consumed > 0 {
				r.consume(consumed)
				continue
			}
		}
		if p.state == stateDone {
			break
		}

		if err := p.checkBuffered(len(r.pending)); err != nil {
			return nil, err
		}

		n, err := r.src.Read(r.readBuf)
		if n > 0 {
			r.pending = append(r.pending, r.readBuf[:n]...)
			started = true
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				if n > 0 {
					continue
				}
				if !started {
					return nil, io.EOF
				}
				return nil, httperr.Malformed("read request", ErrUnexpectedEOF)
			}
			return nil, httperr.Transport("read request", err)
		}
	}

	return p.req, nil
}

// skipBlankLines drops empty lines in front of a request line, which
// clients may send after a body. It reports whether anything was dropped
// and nothing else is buffered.
func (r *Reader) skipBlankLines() bool {
	n := 0
	for bytes.HasPrefix(r.pending[n:], crlf) {
		n += len(crlf)
	}
	if n == 0 {
		return false
	}
	r.consume(n)
	return len(r.pending) == 0
}

func (r *Reader) consume(n int) {
	rest := copy(r.pending, r.pending[n:])
	r.pending = r.pending[:rest]
}

// checkBuffered rejects a request whose unparsed head has outgrown the limits
// before reading more.
func (p *parser) checkBuffered(buffered int) error {
	switch p.state {
	case stateRequestLine:
		if buffered > p.limits.MaxRequestLine {
			return httperr.MalformedWithStatus("request line", 414, ErrRequestLineTooLarge)
		}
	case stateHeaders:
		if p.headerBytes+buffered > p.limits.MaxHeaderBytes {
			return httperr.Malformed("headers", ErrHeaderTooLarge)
		}
	}
	return nil
}

// parse processes buffered data and advances the state machine
// Returns number of bytes consumed
func (p *parser) parse(data []byte) (int, error) {
	switch p.state {
	case stateRequestLine:
		return p.parseRequestLine(data)
	case stateHeaders:
		return p.parseHeaders(data)
	case stateBody:
		return p.parseBody(data)
	case stateDone:
		return 0, nil
	default:
		return 0, fmt.Errorf("invalid parser state: %d", p.state)
	}
}

func (p *parser) parseRequestLine(data []byte) (int, error) {
	rl, consumed, err := ParseRequestLine(data)
	if err != nil {
		return 0, httperr.Malformed("request line", err)
	}
	if consumed == 0 {
		return 0, nil
	}
	if consumed-2 > p.limits.MaxRequestLine {
		return 0, httperr.MalformedWithStatus("request line", 414, ErrRequestLineTooLarge)
	}

	p.req.Method = rl.Method
	p.req.Path, p.req.Query = splitTarget(rl.Target)
	p.req.Version = rl.Version

	p.state = stateHeaders
	return consumed, nil
}

// parseHeaders parses HTTP headers until empty line
func (p *parser) parseHeaders(data []byte) (int, error) {
	consumed, done, err := p.req.Headers.Parse(data)
	if err != nil {
		return 0, httperr.Malformed("headers", err)
	}

	p.headerBytes += consumed
	if p.headerBytes > p.limits.MaxHeaderBytes {
		return 0, httperr.Malformed("headers", ErrHeaderTooLarge)
	}
	if p.req.Headers.Len() > p.limits.MaxHeaderLines {
		return 0, httperr.Malformed("headers", ErrTooManyHeaders)
	}

	if !done {
		return consumed, nil
	}

	// Transfer-Encoding is not decoded: without a usable Content-Length the
	// body is empty.
	cl := p.req.ContentLength()
	if cl <= 0 {
		p.state = stateDone
		return consumed, nil
	}

	if cl > p.limits.MaxBodyBytes {
		return 0, httperr.MalformedWithStatus("body", 413, ErrBodyTooLarge)
	}

	p.bodyLength = cl
	p.req.Body = make([]byte, 0, cl)
	p.state = stateBody
	return consumed, nil
}

// parseBody reads exactly the declared Content-Length, never more
func (p *parser) parseBody(data []byte) (int, error) {
	remaining := int(p.bodyLength) - len(p.req.Body)
	toRead := min(remaining, len(data))

	p.req.Body = append(p.req.Body, data[:toRead]...)

	if int64(len(p.req.Body)) == p.bodyLength {
		p.state = stateDone
	}
	return toRead, nil
}
