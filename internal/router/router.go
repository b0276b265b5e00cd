package router

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Brownie44l1/rawhttp/internal/httperr"
	"github.com/Brownie44l1/rawhttp/internal/request"
	"github.com/Brownie44l1/rawhttp/internal/response"
)

var (
	ErrNotFound        = errors.New("no route matches")
	ErrInvalidPattern  = errors.New("invalid route pattern")
	ErrTooManyCaptures = errors.New("route pattern has more than one capture")
	ErrNilHandler      = errors.New("nil handler")
	ErrEmptyMethod     = errors.New("empty method")
)

// Handler turns a routed request into a response. A returned error is
// answered with the status httperr.StatusFor gives it.
type Handler func(ctx *Context) (*response.Response, error)

// Middleware wraps a Handler
type Middleware func(Handler) Handler

// Chain applies middleware so the first one listed runs outermost.
func Chain(h Handler, mws ...Middleware) Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// SegmentKind tells a literal path segment from a capturing one.
type SegmentKind int

const (
	Literal SegmentKind = iota
	Capture
)

// Segment is one slash-separated piece of a route pattern. Text is the
// literal to match, or the parameter name for a Capture.
type Segment struct {
	Kind SegmentKind
	Text string
}

func (s Segment) String() string {
	if s.Kind == Capture {
		return "{" + s.Text + "}"
	}
	return s.Text
}

// Route represents a single route
type Route struct {
	Method   request.Method
	Pattern  string
	Segments []Segment
	Handler  Handler
}

// match checks the split request path against the route's segments.
// It returns the captured parameter, if any, and whether the path matched.
func (r *Route) match(parts []string) (Params, bool) {
	if len(parts) != len(r.Segments) {
		return nil, false
	}

	var params Params
	for i, seg := range r.Segments {
		switch seg.Kind {
		case Literal:
			if parts[i] != seg.Text {
				return nil, false
			}
		case Capture:
			if parts[i] == "" {
				return nil, false
			}
			params = Params{seg.Text: parts[i]}
		}
	}
	return params, true
}

// ParsePattern splits a pattern such as "/files/{name}" or "/files/:name"
// into segments. "/" has no segments. Empty segments and more than one
// capture are rejected.
func ParsePattern(pattern string) ([]Segment, error) {
	if !strings.HasPrefix(pattern, "/") {
		return nil, fmt.Errorf("%q: %w: must start with /", pattern, ErrInvalidPattern)
	}
	if pattern == "/" {
		return nil, nil
	}

	parts := strings.Split(pattern[1:], "/")
	segments := make([]Segment, 0, len(parts))
	captures := 0

	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%q: %w: empty segment", pattern, ErrInvalidPattern)
		}

		name, isCapture := captureName(part)
		if !isCapture {
			segments = append(segments, Segment{Kind: Literal, Text: part})
			continue
		}
		if name == "" {
			return nil, fmt.Errorf("%q: %w: unnamed capture", pattern, ErrInvalidPattern)
		}
		captures++
		if captures > 1 {
			return nil, fmt.Errorf("%q: %w", pattern, ErrTooManyCaptures)
		}
		segments = append(segments, Segment{Kind: Capture, Text: name})
	}

	return segments, nil
}

func captureName(part string) (string, bool) {
	if strings.HasPrefix(part, ":") {
		return part[1:], true
	}
	if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") && len(part) >= 2 {
		return part[1 : len(part)-1], true
	}
	return "", false
}

// splitPath splits a request path into segments, ignoring any query.
func splitPath(path string) []string {
	if i := strings.IndexByte(path, '?'); i != -1 {
		path = path[:i]
	}
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Builder collects routes at startup. It is not safe for concurrent use.
type Builder struct {
	routes   []*Route
	notFound Handler
	err      error
}

func NewBuilder() *Builder {
	return &Builder{}
}

// Handle registers a new route. Registration errors are reported by Build.
func (b *Builder) Handle(method request.Method, pattern string, handler Handler) *Builder {
	if b.err != nil {
		return b
	}
	if method == "" {
		b.err = fmt.Errorf("%q: %w", pattern, ErrEmptyMethod)
		return b
	}
	if handler == nil {
		b.err = fmt.Errorf("%s %s: %w", method, pattern, ErrNilHandler)
		return b
	}

	segments, err := ParsePattern(pattern)
	if err != nil {
		b.err = err
		return b
	}

	b.routes = append(b.routes, &Route{
		Method:   method,
		Pattern:  pattern,
		Segments: segments,
		Handler:  handler,
	})
	return b
}

// GET is a shortcut for Handle("GET", ...)
func (b *Builder) GET(pattern string, handler Handler) *Builder {
	return b.Handle(request.MethodGet, pattern, handler)
}

// POST is a shortcut for Handle("POST", ...)
func (b *Builder) POST(pattern string, handler Handler) *Builder {
	return b.Handle(request.MethodPost, pattern, handler)
}

// NotFound sets the handler used when nothing matches.
func (b *Builder) NotFound(handler Handler) *Builder {
	b.notFound = handler
	return b
}

// Build freezes the registered routes into a Table. The Builder can keep
// registering afterwards without affecting the returned Table.
func (b *Builder) Build() (*Table, error) {
	if b.err != nil {
		return nil, b.err
	}

	t := &Table{
		routes:   make([]Route, len(b.routes)),
		notFound: b.notFound,
	}
	for i, r := range b.routes {
		t.routes[i] = *r
		t.routes[i].Segments = append([]Segment(nil), r.Segments...)
	}
	if t.notFound == nil {
		t.notFound = notFound
	}
	return t, nil
}

func notFound(*Context) (*response.Response, error) {
	return response.Error(response.StatusNotFound), nil
}

// Table is an immutable route table. It is safe for concurrent use.
type Table struct {
	routes   []Route
	notFound Handler
}

// Resolve finds the first route, in registration order, matching method and
// path. When none does it returns the not-found handler together with an
// error wrapping ErrNotFound.
func (t *Table) Resolve(method request.Method, path string) (Handler, Params, error) {
	parts := splitPath(path)

	for i := range t.routes {
		route := &t.routes[i]
		if route.Method != method {
			continue
		}
		if params, ok := route.match(parts); ok {
			return route.Handler, params, nil
		}
	}

	return t.notFound, nil, httperr.NotFound("resolve", fmt.Errorf("%s %s: %w", method, path, ErrNotFound))
}

// Routes returns a copy of the registered routes in registration order.
func (t *Table) Routes() []Route {
	out := make([]Route, len(t.routes))
	copy(out, t.routes)
	return out
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.routes)
}
