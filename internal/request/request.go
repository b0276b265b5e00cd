package request

import (
	"io"
	"strconv"
	"strings"

	"github.com/Brownie44l1/rawhttp/internal/headers"
)

// Method is the request method token. Any token is accepted by the parser;
// only GET and POST are routed.
type Method string

const (
	MethodGet  Method = "GET"
	MethodPost Method = "POST"
)

func (m Method) String() string {
	return string(m)
}

const (
	HTTP10 = "HTTP/1.0"
	HTTP11 = "HTTP/1.1"
)

// Request is one parsed HTTP request. It is not modified after the Reader
// returns it.
type Request struct {
	Method  Method
	Path    string
	Query   string // raw query string without the leading '?'
	Version string
	Headers *headers.Headers
	Body    []byte
}

// ContentLength returns the parsed Content-Length header, or -1 when the
// header is absent or not a non-negative integer.
func (r *Request) ContentLength() int64 {
	v, ok := r.Headers.Get("content-length")
	if !ok {
		return -1
	}
	n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
	if err != nil || n < 0 {
		return -1
	}
	return n
}

// IsChunked reports whether the client declared a chunked body. Chunked
// bodies are not decoded; see Reader.
func (r *Request) IsChunked() bool {
	for _, v := range r.Headers.GetAll("transfer-encoding") {
		if hasToken(v, "chunked") {
			return true
		}
	}
	return false
}

func (r *Request) IsHTTP10() bool {
	return r.Version == HTTP10
}

func (r *Request) IsHTTP11() bool {
	return r.Version == HTTP11
}

// WantsClose reports whether the connection should close after this request
func (r *Request) WantsClose() bool {
	conn := r.Headers.Value("connection")
	if hasToken(conn, "close") {
		return true
	}
	if r.IsHTTP10() {
		return !hasToken(conn, "keep-alive")
	}
	return false
}

// UserAgent returns the User-Agent header or "".
func (r *Request) UserAgent() string {
	return r.Headers.Value("user-agent")
}

// hasToken reports whether the comma separated header value contains token,
// compared case-insensitively.
func hasToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}

// RequestFromReader parses a single request from reader with default
// limits. It returns io.EOF when reader is empty.
func RequestFromReader(reader io.Reader) (*Request, error) {
	r := NewReader(reader, DefaultLimits())
	defer r.Release()
	return r.ReadRequest()
}
