package handlers

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Brownie44l1/rawhttp/internal/filestore"
	"github.com/Brownie44l1/rawhttp/internal/httperr"
	"github.com/Brownie44l1/rawhttp/internal/request"
	"github.com/Brownie44l1/rawhttp/internal/response"
	"github.com/Brownie44l1/rawhttp/internal/router"
)

type fixture struct {
	table *router.Table
	store *filestore.Store
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	store, err := filestore.New(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	table, err := Routes(New(store))
	require.NoError(t, err)
	return fixture{table: table, store: store}
}

// do parses raw, routes it and runs the handler the way a connection
// worker would.
func (f fixture) do(t *testing.T, raw string) (*response.Response, error) {
	t.Helper()
	req, err := request.RequestFromReader(strings.NewReader(raw))
	require.NoError(t, err)

	h, params, _ := f.table.Resolve(req.Method, req.Path)
	return h(router.NewContext(req, params, zerolog.Nop()))
}

func body(t *testing.T, resp *response.Response) string {
	t.Helper()
	if resp.Stream == nil {
		return string(resp.Body)
	}
	defer resp.Close()
	data, err := io.ReadAll(resp.Stream)
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), resp.StreamSize)
	return string(data)
}

func TestRoot(t *testing.T) {
	f := newFixture(t)

	resp, err := f.do(t, "GET / HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, response.StatusOK, resp.Status)
	assert.Empty(t, body(t, resp))
}

func TestEcho(t *testing.T) {
	f := newFixture(t)

	resp, err := f.do(t, "GET /echo/hello HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, response.StatusOK, resp.Status)
	assert.Equal(t, "hello", body(t, resp))
	assert.Equal(t, "text/plain", resp.Headers.Value("Content-Type"))
}

func TestUserAgent(t *testing.T) {
	f := newFixture(t)

	resp, err := f.do(t, "GET /user-agent HTTP/1.1\r\nUser-Agent: test-agent\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, response.StatusOK, resp.Status)
	assert.Equal(t, "test-agent", body(t, resp))

	resp, err = f.do(t, "GET /user-agent HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, response.StatusOK, resp.Status)
	assert.Empty(t, body(t, resp))
}

func TestPostThenGetFile(t *testing.T) {
	f := newFixture(t)

	resp, err := f.do(t, "POST /files/a.txt HTTP/1.1\r\nContent-Length: 2\r\n\r\nhi")
	require.NoError(t, err)
	assert.Equal(t, response.StatusCreated, resp.Status)
	assert.Empty(t, body(t, resp))

	resp, err = f.do(t, "GET /files/a.txt HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, response.StatusOK, resp.Status)
	assert.Equal(t, response.ContentTypeBinary, resp.Headers.Value("Content-Type"))
	assert.Equal(t, "hi", body(t, resp))
}

func TestGetMissingFile(t *testing.T) {
	f := newFixture(t)

	resp, err := f.do(t, "GET /files/missing.txt HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, response.StatusNotFound, resp.Status)
	assert.Empty(t, body(t, resp))
}

func TestGetFileTraversal(t *testing.T) {
	f := newFixture(t)

	resp, err := f.do(t, "GET /files/.. HTTP/1.1\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, response.StatusNotFound, resp.Status)
}

func TestPostFileInvalidNameIsHandlerError(t *testing.T) {
	f := newFixture(t)

	_, err := f.do(t, "POST /files/.. HTTP/1.1\r\nContent-Length: 1\r\n\r\nx")
	require.Error(t, err)
	assert.True(t, httperr.Is(err, httperr.KindHandler))
	assert.ErrorIs(t, err, filestore.ErrInvalidName)
	status, ok := httperr.StatusFor(err)
	assert.True(t, ok)
	assert.Equal(t, 500, status)
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t)

	for _, raw := range []string{
		"GET /unknown/path HTTP/1.1\r\n\r\n",
		"DELETE /files/a.txt HTTP/1.1\r\n\r\n",
		"POST / HTTP/1.1\r\n\r\n",
		"GET /echo/ HTTP/1.1\r\n\r\n",
	} {
		resp, err := f.do(t, raw)
		require.NoError(t, err)
		assert.Equal(t, response.StatusNotFound, resp.Status, raw)
		assert.Empty(t, body(t, resp))
	}
}

type brokenStore struct{}

var errDisk = errors.New("disk on fire")

func (brokenStore) Open(string) (io.ReadCloser, int64, error) { return nil, 0, errDisk }
func (brokenStore) Write(string, []byte) error { return errDisk }

func TestStoreFailuresAreHandlerErrors(t *testing.T) {
	table, err := Routes(New(brokenStore{}))
	require.NoError(t, err)
	f := fixture{table: table}

	for _, raw := range []string{
		"GET /files/a HTTP/1.1\r\n\r\n",
		"POST /files/a HTTP/1.1\r\nContent-Length: 1\r\n\r\nx",
	} {
		_, err := f.do(t, raw)
		require.Error(t, err)
		assert.ErrorIs(t, err, errDisk)
		assert.True(t, httperr.Is(err, httperr.KindHandler))
	}
}

func TestRouteRegistrationOrder(t *testing.T) {
	f := newFixture(t)

	var got []string
	for _, r := range f.table.Routes() {
		got = append(got, r.Method.String()+" "+r.Pattern)
	}
	assert.Equal(t, []string{
		"GET /",
		"GET /echo/{value}",
		"GET /user-agent",
		"GET /files/{name}",
		"POST /files/{name}",
	}, got)
}
