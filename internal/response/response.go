package response

import (
	"io"
	"strconv"

	"github.com/Brownie44l1/rawhttp/internal/headers"
)

const (
	ContentTypeText   = "text/plain"
	ContentTypeBinary = "application/octet-stream"
)

// Response is what a handler hands back to the connection worker. Exactly
// one of Body and Stream is used; Stream wins when set. The Writer closes
// Stream once the response is written.
type Response struct {
	Status  StatusCode
	Headers *headers.Headers
	Body    []byte

	Stream     io.ReadCloser
	StreamSize int64
}

// New returns an empty response with status code.
func New(code StatusCode) *Response {
	return &Response{
		Status:  code,
		Headers: headers.NewHeaders(),
	}
}

// Text returns a text/plain response
func Text(code StatusCode, body string) *Response {
	r := New(code)
	r.Headers.Set("Content-Type", ContentTypeText)
	r.Body = []byte(body)
	return r
}

// Bytes returns a response with arbitrary byte content
func Bytes(code StatusCode, contentType string, data []byte) *Response {
	r := New(code)
	if contentType != "" {
		r.Headers.Set("Content-Type", contentType)
	}
	r.Body = data
	return r
}

// Stream returns a response whose body is copied from rc. size must be the
// exact number of bytes rc will yield.
func Stream(code StatusCode, contentType string, rc io.ReadCloser, size int64) *Response {
	r := New(code)
	if contentType != "" {
		r.Headers.Set("Content-Type", contentType)
	}
	r.Stream = rc
	r.StreamSize = size
	return r
}

// Error returns the empty-bodied response used for protocol and routing
// failures.
func Error(code StatusCode) *Response {
	return New(code)
}

// ContentLength returns the number of body bytes before any encoding.
func (r *Response) ContentLength() int64 {
	if r.Stream != nil {
		return r.StreamSize
	}
	return int64(len(r.Body))
}

// Close releases the stream, if any. It is safe to call more than once.
func (r *Response) Close() error {
	if r.Stream == nil {
		return nil
	}
	err := r.Stream.Close()
	r.Stream = nil
	return err
}

func formatLength(n int64) string {
	return strconv.FormatInt(n, 10)
}
