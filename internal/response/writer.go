package response

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/Brownie44l1/rawhttp/internal/bufpool"
	"github.com/Brownie44l1/rawhttp/internal/headers"
	"github.com/Brownie44l1/rawhttp/internal/request"
)

var (
	ErrStatusWritten        = errors.New("status line already written")
	ErrHeadersNotReady      = errors.New("must write status line before headers")
	ErrBodyNotReady         = errors.New("must write headers before body")
	ErrMissingContentLength = errors.New("response has no Content-Length")
	ErrLengthMismatch       = errors.New("body length differs from Content-Length")
	ErrInvalidStatus        = errors.New("status code out of range")
)

// Options controls response encoding.
type Options struct {
	Compression bool
	// MinSize is the smallest body that gets compressed.
	MinSize int64
	// MaxStreamSize caps how much of a streamed body is buffered for
	// compression. Larger streams are sent as-is.
	MaxStreamSize int64
}

func DefaultOptions() Options {
	return Options{
		Compression:   true,
		MaxStreamSize: 1 << 20,
	}
}

// writerState tracks what's been written so far
type writerState int

const (
	stateStart writerState = iota
	stateStatusWritten
	stateHeadersWritten
	stateBodyWritten
)

// Writer serializes one response onto w. Nothing reaches w before the header
// block is complete, and the header block is only written once it carries a
// Content-Length.
type Writer struct {
	bw            *bufio.Writer
	opts          Options
	state         writerState
	statusCode    StatusCode
	contentLength int64
	bodyWritten   int64
	hadError      bool
}

func NewWriter(w io.Writer, opts Options) *Writer {
	return &Writer{
		bw:            bufio.NewWriterSize(w, bufpool.SmallSize),
		opts:          opts,
		state:         stateStart,
		contentLength: -1,
	}
}

// Reset prepares the Writer for the next response on the same stream.
func (w *Writer) Reset() {
	w.state = stateStart
	w.statusCode = 0
	w.contentLength = -1
	w.bodyWritten = 0
	w.hadError = false
}

// WriteResponse encodes resp for req and writes it in full. req may be nil,
// in which case no content negotiation happens. The response's stream is
// closed before returning.
func (w *Writer) WriteResponse(resp *Response, req *request.Request) error {
	defer resp.Close()

	if err := w.prepare(resp, req); err != nil {
		return err
	}

	if err := w.WriteStatusLine(resp.Status); err != nil {
		return err
	}
	if err := w.WriteHeaders(resp.Headers); err != nil {
		return err
	}
	if resp.Stream != nil {
		return w.WriteStream(resp.Stream, resp.StreamSize)
	}
	return w.WriteBody(resp.Body)
}

// prepare applies content-coding and fixes the framing headers on resp.
func (w *Writer) prepare(resp *Response, req *request.Request) error {
	if resp.Headers == nil {
		resp.Headers = headers.NewHeaders()
	}
	if resp.Stream != nil && resp.StreamSize < 0 {
		return fmt.Errorf("stream size %d: %w", resp.StreamSize, ErrMissingContentLength)
	}

	accept, negotiated := "", false
	if req != nil && w.opts.Compression {
		accept, negotiated = req.Headers.Get("accept-encoding")
	}
	if negotiated {
		resp.Headers.Set("Vary", "Accept-Encoding")
	}

	if negotiated && Negotiate(accept) == EncodingGzip && w.compressible(resp) {
		body := resp.Body
		if resp.Stream != nil {
			var err error
			body, err = readStream(resp.Stream, resp.StreamSize)
			if err != nil {
				return err
			}
			resp.Close()
			resp.StreamSize = 0
		}

		compressed, err := gzipBytes(body)
		if err != nil {
			return fmt.Errorf("gzip body: %w", err)
		}
		resp.Body = compressed
		resp.Headers.Set("Content-Encoding", string(EncodingGzip))
	}

	resp.Headers.Set("Content-Length", formatLength(resp.ContentLength()))
	return nil
}

func (w *Writer) compressible(resp *Response) bool {
	if resp.Headers.Has("content-encoding") {
		return false
	}
	n := resp.ContentLength()
	if n == 0 || n < w.opts.MinSize {
		return false
	}
	if resp.Stream != nil && n > w.opts.MaxStreamSize {
		return false
	}
	return true
}

func readStream(r io.Reader, size int64) ([]byte, error) {
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read stream: %w", err)
	}
	return buf, nil
}

// WriteStatusLine buffers the HTTP status line
func (w *Writer) WriteStatusLine(code StatusCode) error {
	if w.state != stateStart {
		return ErrStatusWritten
	}
	if !code.Valid() {
		return fmt.Errorf("%d: %w", code, ErrInvalidStatus)
	}

	if _, err := fmt.Fprintf(w.bw, "%s %d %s\r\n", request.HTTP11, code, StatusText(code)); err != nil {
		w.hadError = true
		return err
	}

	w.statusCode = code
	w.state = stateStatusWritten
	return nil
}

// WriteHeaders buffers all headers in insertion order. The block must
// declare a valid Content-Length.
func (w *Writer) WriteHeaders(h *headers.Headers) error {
	if w.state != stateStatusWritten {
		return ErrHeadersNotReady
	}

	cl, ok := h.Get("content-length")
	if !ok {
		return ErrMissingContentLength
	}
	length, err := strconv.ParseInt(strings.TrimSpace(cl), 10, 64)
	if err != nil || length < 0 {
		return fmt.Errorf("%q: %w", cl, ErrMissingContentLength)
	}
	w.contentLength = length

	h.Each(func(name, value string) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w.bw, "%s: %s\r\n", name, value)
	})
	if err == nil {
		_, err = w.bw.WriteString("\r\n")
	}
	if err != nil {
		w.hadError = true
		return err
	}

	w.state = stateHeadersWritten
	return nil
}

// WriteBody writes the complete response body and flushes
func (w *Writer) WriteBody(data []byte) error {
	if w.state != stateHeadersWritten {
		return ErrBodyNotReady
	}
	if int64(len(data)) != w.contentLength {
		w.hadError = true
		return fmt.Errorf("%d != %d: %w", len(data), w.contentLength, ErrLengthMismatch)
	}

	n, err := w.bw.Write(data)
	w.bodyWritten += int64(n)
	if err == nil {
		err = w.bw.Flush()
	}
	if err != nil {
		w.hadError = true
		return err
	}

	w.state = stateBodyWritten
	return nil
}

// WriteStream copies exactly size bytes from r through a pooled buffer and
// flushes. A source that runs short leaves the connection unusable; the
// caller must close it.
func (w *Writer) WriteStream(r io.Reader, size int64) error {
	if w.state != stateHeadersWritten {
		return ErrBodyNotReady
	}
	if size != w.contentLength {
		w.hadError = true
		return fmt.Errorf("%d != %d: %w", size, w.contentLength, ErrLengthMismatch)
	}

	buf := bufpool.Get(bufpool.MediumSize)
	defer bufpool.Put(buf)

	n, err := io.CopyBuffer(writerOnly{w.bw}, io.LimitReader(r, size), buf)
	w.bodyWritten += n
	if err == nil && n != size {
		err = fmt.Errorf("copied %d of %d bytes: %w", n, size, io.ErrUnexpectedEOF)
	}
	if err == nil {
		err = w.bw.Flush()
	}
	if err != nil {
		w.hadError = true
		return err
	}

	w.state = stateBodyWritten
	return nil
}

// writerOnly hides ReadFrom so CopyBuffer uses the pooled buffer.
type writerOnly struct {
	io.Writer
}

// State tracking methods for connection management

func (w *Writer) HadError() bool {
	return w.hadError
}

func (w *Writer) StatusCode() StatusCode {
	return w.statusCode
}

// BytesWritten returns the number of body bytes written for the current
// response.
func (w *Writer) BytesWritten() int64 {
	return w.bodyWritten
}

func (w *Writer) Done() bool {
	return w.state == stateBodyWritten
}
