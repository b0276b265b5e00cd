package request

import (
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/rawhttp/internal/httperr"
)

func TestSimpleGETRequest(t *testing.T) {
	data := "GET /index.html HTTP/1.1\r\nHost: example.com\r\n\r\n"
	req, err := RequestFromReader(strings.NewReader(data))

	require.NoError(t, err)
	assert.Equal(t, MethodGet, req.Method)
	assert.Equal(t, "/index.html", req.Path)
	assert.Equal(t, "HTTP/1.1", req.Version)

	host, ok := req.Headers.Get("host")
	assert.True(t, ok)
	assert.Equal(t, "example.com", host)
	assert.Len(t, req.Body, 0)
}

func TestPOSTWithContentLength(t *testing.T) {
	data := "POST /api/data HTTP/1.1\r\n" +
		"Host: api.example.com\r\n" +
		"Content-Length: 13\r\n" +
		"\r\n" +
		"Hello, World!"

	req, err := RequestFromReader(strings.NewReader(data))

	require.NoError(t, err)
	assert.Equal(t, MethodPost, req.Method)
	assert.Equal(t, "/api/data", req.Path)
	assert.Equal(t, int64(13), req.ContentLength())
	assert.Equal(t, "Hello, World!", string(req.Body))
}

func TestBodyReadsExactlyContentLength(t *testing.T) {
	for _, n := range []int{0, 1, 5, 4095, 4096, 4097, 20000} {
		body := strings.Repeat("x", n)
		trailing := "GET /next HTTP/1.1\r\n\r\n"
		data := "POST /files/a HTTP/1.1\r\nContent-Length: " + itoa(n) + "\r\n\r\n" + body + trailing

		r := NewReader(strings.NewReader(data), DefaultLimits())
		req, err := r.ReadRequest()
		require.NoError(t, err, "length %d", n)
		assert.Len(t, req.Body, n)

		next, err := r.ReadRequest()
		require.NoError(t, err, "length %d", n)
		assert.Equal(t, "/next", next.Path)
		r.Release()
	}
}

func TestHeadersLastWins(t *testing.T) {
	data := "GET / HTTP/1.1\r\nUser-Agent: first\r\nuser-agent: second\r\nX-Unknown: ok\r\n\r\n"
	req, err := RequestFromReader(strings.NewReader(data))

	require.NoError(t, err)
	assert.Equal(t, "second", req.UserAgent())
	assert.Equal(t, "ok", req.Headers.Value("X-UNKNOWN"))
}

func TestInvalidContentLengthMeansEmptyBody(t *testing.T) {
	for _, cl := range []string{"abc", "-5", ""} {
		data := "POST / HTTP/1.1\r\nContent-Length: " + cl + "\r\n\r\n"
		req, err := RequestFromReader(strings.NewReader(data))

		require.NoError(t, err, "Content-Length %q", cl)
		assert.Equal(t, int64(-1), req.ContentLength())
		assert.Len(t, req.Body, 0)
	}
}

func TestChunkedWithoutContentLengthIsEmptyBody(t *testing.T) {
	data := "POST /upload HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"\r\n"

	r := NewReader(strings.NewReader(data+"5\r\nHello\r\n0\r\n\r\n"), DefaultLimits())
	defer r.Release()

	req, err := r.ReadRequest()
	require.NoError(t, err)
	assert.True(t, req.IsChunked())
	assert.Len(t, req.Body, 0)
	// The chunk framing is left on the stream untouched.
	assert.Equal(t, len("5\r\nHello\r\n0\r\n\r\n"), r.Buffered())
}

func TestQueryIsSplitFromPath(t *testing.T) {
	req, err := RequestFromReader(strings.NewReader("GET /echo/abc?x=1&y HTTP/1.1\r\n\r\n"))

	require.NoError(t, err)
	assert.Equal(t, "/echo/abc", req.Path)
	assert.Equal(t, "x=1&y", req.Query)
}

func TestHTTP10Request(t *testing.T) {
	data := "GET / HTTP/1.0\r\nHost: old.com\r\n\r\n"
	req, err := RequestFromReader(strings.NewReader(data))

	require.NoError(t, err)
	assert.True(t, req.IsHTTP10())
	assert.False(t, req.IsHTTP11())
	assert.True(t, req.WantsClose())
}

func TestHTTP10KeepAlive(t *testing.T) {
	data := "GET / HTTP/1.0\r\nConnection: Keep-Alive\r\n\r\n"
	req, err := RequestFromReader(strings.NewReader(data))

	require.NoError(t, err)
	assert.False(t, req.WantsClose())
}

func TestConnectionClose(t *testing.T) {
	data := "GET / HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Connection: Close\r\n" +
		"\r\n"

	req, err := RequestFromReader(strings.NewReader(data))

	require.NoError(t, err)
	assert.True(t, req.WantsClose())
}

func TestConnectionKeepAlive(t *testing.T) {
	data := "GET / HTTP/1.1\r\nHost: example.com\r\n\r\n"
	req, err := RequestFromReader(strings.NewReader(data))

	require.NoError(t, err)
	assert.False(t, req.WantsClose())
}

func TestUnknownMethodIsParsed(t *testing.T) {
	for _, method := range []string{"PUT", "DELETE", "BREW"} {
		req, err := RequestFromReader(strings.NewReader(method + " / HTTP/1.1\r\n\r\n"))

		require.NoError(t, err, "method %s", method)
		assert.Equal(t, Method(method), req.Method)
	}
}

func TestMalformedRequests(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{"missing version", "GET /path\r\nHost: example.com\r\n\r\n", ErrMalformedRequestLine},
		{"single token", "GET\r\n\r\n", ErrMalformedRequestLine},
		{"blank line then garbage", "\r\nGARBAGE\r\n\r\n", ErrMalformedRequestLine},
		{"unsupported version", "GET / HTTP/2.0\r\n\r\n", ErrUnsupportedVersion},
		{"path without slash", "GET invalid HTTP/1.1\r\n\r\n", ErrInvalidPath},
		{"double space", "GET  /x HTTP/1.1\r\n\r\n", ErrInvalidPath},
		{"bad method", "G(T / HTTP/1.1\r\n\r\n", ErrInvalidMethod},
		{"header without colon", "GET / HTTP/1.1\r\nBroken\r\n\r\n", nil},
		{"truncated body", "POST / HTTP/1.1\r\nContent-Length: 100\r\n\r\n0123456789", ErrUnexpectedEOF},
		{"truncated request line", "GET / HTT", ErrUnexpectedEOF},
		{"truncated headers", "GET / HTTP/1.1\r\nHost: x\r\n", ErrUnexpectedEOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RequestFromReader(strings.NewReader(tt.data))

			require.Error(t, err)
			assert.True(t, httperr.Is(err, httperr.KindMalformedRequest), "got %v", err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			status, ok := httperr.StatusFor(err)
			assert.True(t, ok)
			assert.Equal(t, 400, status)
		})
	}
}

func TestCleanEOF(t *testing.T) {
	_, err := RequestFromReader(strings.NewReader(""))
	assert.Equal(t, io.EOF, err)

	_, err = RequestFromReader(strings.NewReader("\r\n\r\n"))
	assert.Equal(t, io.EOF, err)

	r := NewReader(strings.NewReader("GET / HTTP/1.1\r\n\r\n"), DefaultLimits())
	defer r.Release()
	_, err = r.ReadRequest()
	require.NoError(t, err)
	_, err = r.ReadRequest()
	assert.Equal(t, io.EOF, err)
}

func TestLimits(t *testing.T) {
	limits := Limits{MaxRequestLine: 32, MaxHeaderBytes: 64, MaxHeaderLines: 3, MaxBodyBytes: 10}

	tests := []struct {
		name       string
		data       string
		wantErr    error
		wantStatus int
	}{
		{"long request line", "GET /" + strings.Repeat("a", 64) + " HTTP/1.1\r\n\r\n", ErrRequestLineTooLarge, 414},
		{"long request line without CRLF", "GET /" + strings.Repeat("a", 64), ErrRequestLineTooLarge, 414},
		{"header bytes", "GET / HTTP/1.1\r\nX-A: " + strings.Repeat("b", 80) + "\r\n\r\n", ErrHeaderTooLarge, 400},
		{"header lines", "GET / HTTP/1.1\r\nA: 1\r\nB: 2\r\nC: 3\r\nD: 4\r\n\r\n", ErrTooManyHeaders, 400},
		{"body", "POST / HTTP/1.1\r\nContent-Length: 11\r\n\r\nhello world", ErrBodyTooLarge, 413},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewReader(&slowReader{data: []byte(tt.data), chunkSize: 7}, limits)
			defer r.Release()

			_, err := r.ReadRequest()
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.wantErr)
			status, _ := httperr.StatusFor(err)
			assert.Equal(t, tt.wantStatus, status)
		})
	}
}

func TestIncrementalParsing(t *testing.T) {
	data := []byte("POST /files/x HTTP/1.1\r\nHost: example.com\r\nContent-Length: 11\r\n\r\nhello world")
	for _, size := range []int{1, 2, 5, 13} {
		reader := &slowReader{data: data, chunkSize: size}

		req, err := RequestFromReader(reader)

		require.NoError(t, err, "chunk size %d", size)
		assert.Equal(t, MethodPost, req.Method)
		assert.Equal(t, "/files/x", req.Path)
		assert.Equal(t, "hello world", string(req.Body))
	}
}

func TestPipelinedRequests(t *testing.T) {
	data := "GET /echo/one HTTP/1.1\r\n\r\n" +
		"POST /files/b HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc" +
		"GET /user-agent HTTP/1.1\r\nUser-Agent: t\r\n\r\n"
	r := NewReader(&slowReader{data: []byte(data), chunkSize: 9}, DefaultLimits())
	defer r.Release()

	var paths []string
	for {
		req, err := r.ReadRequest()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		paths = append(paths, req.Path)
	}
	assert.Equal(t, []string{"/echo/one", "/files/b", "/user-agent"}, paths)
}

func TestBlankLinesBeforeRequestLine(t *testing.T) {
	data := "POST /files/b HTTP/1.1\r\nContent-Length: 3\r\n\r\nabc\r\n" +
		"\r\n\r\nGET /after HTTP/1.1\r\n\r\n" +
		"\r\n"

	for _, chunkSize := range []int{1, 2, 5, len(data)} {
		r := NewReader(&slowReader{data: []byte(data), chunkSize: chunkSize}, DefaultLimits())

		req, err := r.ReadRequest()
		require.NoError(t, err, "chunk size %d", chunkSize)
		assert.Equal(t, "abc", string(req.Body))

		req, err = r.ReadRequest()
		require.NoError(t, err, "chunk size %d", chunkSize)
		assert.Equal(t, "/after", req.Path)

		// A trailing blank line followed by EOF is a clean close.
		_, err = r.ReadRequest()
		assert.Equal(t, io.EOF, err, "chunk size %d", chunkSize)
		r.Release()
	}
}

func TestFill(t *testing.T) {
	r := NewReader(&slowReader{data: []byte("GET / HTTP/1.1\r\n\r\n"), chunkSize: 3}, DefaultLimits())
	defer r.Release()

	require.NoError(t, r.Fill())
	assert.Equal(t, 3, r.Buffered())
	require.NoError(t, r.Fill())
	assert.Equal(t, 3, r.Buffered(), "Fill does not read when bytes are buffered")

	req, err := r.ReadRequest()
	require.NoError(t, err)
	assert.Equal(t, "/", req.Path)

	assert.Equal(t, io.EOF, r.Fill())
}

func TestFillTransportError(t *testing.T) {
	r := NewReader(&failingReader{err: errTimeout{}}, DefaultLimits())
	defer r.Release()

	err := r.Fill()
	assert.True(t, httperr.Is(err, httperr.KindTransport))
}

func TestReadErrorIsTransport(t *testing.T) {
	r := NewReader(&failingReader{err: errTimeout{}}, DefaultLimits())
	defer r.Release()

	_, err := r.ReadRequest()
	require.Error(t, err)
	assert.True(t, httperr.Is(err, httperr.KindTransport))
	_, answered := httperr.StatusFor(err)
	assert.False(t, answered)
}

// slowReader simulates a network connection that provides data slowly
type slowReader struct {
	data      []byte
	chunkSize int
	offset    int
}

func (r *slowReader) Read(p []byte) (int, error) {
	if r.offset >= len(r.data) {
		return 0, io.EOF
	}

	n := min(r.chunkSize, len(p), len(r.data)-r.offset)
	copy(p, r.data[r.offset:r.offset+n])
	r.offset += n
	return n, nil
}

type failingReader struct {
	err error
}

func (r *failingReader) Read([]byte) (int, error) {
	time.Sleep(time.Millisecond)
	return 0, r.err
}

type errTimeout struct{}

func (errTimeout) Error() string { return "i/o timeout" }
func (errTimeout) Timeout() bool { return true }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var b []byte
	for n > 0 {
		b = append([]byte{byte('0' + n%10)}, b...)
		n /= 10
	}
	return string(b)
}
