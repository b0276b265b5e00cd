package headers

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrMalformedHeader   = errors.New("malformed header")
	ErrObsoleteLineFold  = errors.New("obsolete line folding not supported")
	ErrInvalidHeaderName = errors.New("invalid character in header name")
	crlf                 = []byte("\r\n")
)

type field struct {
	name  string
	value string
}

// Headers is an ordered header list with case-insensitive lookup.
// Names keep the case they were added with; duplicates are kept and
// lookups return the last one.
type Headers struct {
	fields []field
}

func NewHeaders() *Headers {
	return &Headers{}
}

// Get returns the last value stored for key
func (h *Headers) Get(key string) (string, bool) {
	for i := len(h.fields) - 1; i >= 0; i-- {
		if strings.EqualFold(h.fields[i].name, key) {
			return h.fields[i].value, true
		}
	}
	return "", false
}

// Value is Get without the presence flag.
func (h *Headers) Value(key string) string {
	v, _ := h.Get(key)
	return v
}

// GetAll returns all values for a header in the order they were added
func (h *Headers) GetAll(key string) []string {
	var values []string
	for _, f := range h.fields {
		if strings.EqualFold(f.name, key) {
			values = append(values, f.value)
		}
	}
	return values
}

// Has reports whether key is present.
func (h *Headers) Has(key string) bool {
	_, ok := h.Get(key)
	return ok
}

// Set replaces all values for a header. The header keeps the position of
// its first occurrence, or goes to the end if it is new.
func (h *Headers) Set(key, value string) {
	pos := -1
	kept := h.fields[:0]
	for _, f := range h.fields {
		if strings.EqualFold(f.name, key) {
			if pos == -1 {
				pos = len(kept)
				kept = append(kept, field{name: f.name, value: value})
			}
			continue
		}
		kept = append(kept, f)
	}
	h.fields = kept
	if pos == -1 {
		h.fields = append(h.fields, field{name: key, value: value})
	}
}

// Add appends a value to a header
func (h *Headers) Add(key, value string) {
	h.fields = append(h.fields, field{name: key, value: value})
}

// Del removes a header
func (h *Headers) Del(key string) {
	kept := h.fields[:0]
	for _, f := range h.fields {
		if !strings.EqualFold(f.name, key) {
			kept = append(kept, f)
		}
	}
	h.fields = kept
}

// Len returns the number of header lines.
func (h *Headers) Len() int {
	return len(h.fields)
}

// Each calls fn for every header line in insertion order.
func (h *Headers) Each(fn func(name, value string)) {
	for _, f := range h.fields {
		fn(f.name, f.value)
	}
}

// Parse consumes complete header lines from data. It returns the number of
// bytes consumed and whether the blank line ending the block was reached.
// A line without its CRLF yet is left unconsumed.
func (h *Headers) Parse(data []byte) (int, bool, error) {
	read := 0

	for {
		idx := bytes.Index(data[read:], crlf)
		if idx == -1 {
			return read, false, nil
		}

		if idx == 0 {
			return read + 2, true, nil
		}

		line := data[read : read+idx]

		if line[0] == ' ' || line[0] == '\t' {
			return read, false, ErrObsoleteLineFold
		}

		name, value, err := parseHeader(line)
		if err != nil {
			return read, false, err
		}

		h.Add(name, value)
		read += idx + 2
	}
}

func parseHeader(line []byte) (string, string, error) {
	colonIdx := bytes.IndexByte(line, ':')
	if colonIdx == -1 {
		return "", "", fmt.Errorf("%w: no colon", ErrMalformedHeader)
	}

	name := line[:colonIdx]
	value := line[colonIdx+1:]

	if len(name) == 0 {
		return "", "", fmt.Errorf("%w: empty name", ErrMalformedHeader)
	}
	if bytes.ContainsAny(name, " \t") {
		return "", "", fmt.Errorf("%w: whitespace in name", ErrMalformedHeader)
	}

	for _, b := range name {
		if !IsTokenChar(b) {
			return "", "", fmt.Errorf("%w: %q", ErrInvalidHeaderName, b)
		}
	}

	return string(name), string(bytes.TrimSpace(value)), nil
}

// IsTokenChar reports whether b may appear in an RFC 7230 token.
func IsTokenChar(b byte) bool {
	return (b >= 'A' && b <= 'Z') ||
		(b >= 'a' && b <= 'z') ||
		(b >= '0' && b <= '9') ||
		b == '!' || b == '#' || b == '$' || b == '%' || b == '&' ||
		b == '\'' || b == '*' || b == '+' || b == '-' || b == '.' ||
		b == '^' || b == '_' || b == '`' || b == '|' || b == '~'
}
