package request

import (
	"bytes"
	"errors"
	"strings"

	"github.com/Brownie44l1/rawhttp/internal/headers"
)

var (
	ErrMalformedRequestLine = errors.New("malformed request line")
	ErrInvalidMethod        = errors.New("invalid HTTP method")
	ErrInvalidPath          = errors.New("invalid request path")
	ErrUnsupportedVersion   = errors.New("unsupported HTTP version")
)

var crlf = []byte("\r\n")

// RequestLine is METHOD SP TARGET SP VERSION.
type RequestLine struct {
	Method  Method
	Target  string
	Version string
}

// ParseRequestLine parses: METHOD PATH VERSION\r\n
// Returns the line, the bytes consumed including CRLF, and an error.
// A nil line with zero bytes consumed means the CRLF has not arrived yet.
func ParseRequestLine(data []byte) (*RequestLine, int, error) {
	idx := bytes.Index(data, crlf)
	if idx == -1 {
		return nil, 0, nil
	}

	line := data[:idx]
	consumed := idx + 2

	parts := bytes.Split(line, []byte(" "))
	if len(parts) < 3 {
		return nil, 0, ErrMalformedRequestLine
	}

	method := parts[0]
	target := string(parts[1])
	version := string(parts[2])

	if !isValidMethod(method) {
		return nil, 0, ErrInvalidMethod
	}

	if !isValidPath(target) {
		return nil, 0, ErrInvalidPath
	}

	if !isValidVersion(version) {
		return nil, 0, ErrUnsupportedVersion
	}

	return &RequestLine{
		Method:  Method(method),
		Target:  target,
		Version: version,
	}, consumed, nil
}

// isValidMethod checks the method is a non-empty token. Unknown methods are
// fine here; the router answers them with 404.
func isValidMethod(method []byte) bool {
	if len(method) == 0 {
		return false
	}
	for _, b := range method {
		if !headers.IsTokenChar(b) {
			return false
		}
	}
	return true
}

// isValidPath accepts origin-form targets only
func isValidPath(path string) bool {
	return len(path) > 0 && path[0] == '/'
}

func isValidVersion(version string) bool {
	return version == HTTP10 || version == HTTP11
}

// splitTarget separates the path from the raw query.
func splitTarget(target string) (string, string) {
	if i := strings.IndexByte(target, '?'); i != -1 {
		return target[:i], target[i+1:]
	}
	return target, ""
}
