package router

import (
	"net/url"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/rawhttp/internal/request"
)

// Params holds the path parameters captured by a route.
type Params map[string]string

// Get returns the named parameter or "".
func (p Params) Get(name string) string {
	return p[name]
}

// Context is what a Handler sees of one request
type Context struct {
	Request   *request.Request
	Params    Params
	Logger    zerolog.Logger
	RequestID string
}

// NewContext creates a new context
func NewContext(req *request.Request, params Params, logger zerolog.Logger) *Context {
	if params == nil {
		params = Params{}
	}
	return &Context{
		Request: req,
		Params:  params,
		Logger:  logger,
	}
}

// Method returns the HTTP method
func (c *Context) Method() request.Method {
	return c.Request.Method
}

// Path returns the request path
func (c *Context) Path() string {
	return c.Request.Path
}

// Header gets a request header value
func (c *Context) Header(key string) string {
	return c.Request.Headers.Value(key)
}

// Param gets a path parameter by name
func (c *Context) Param(name string) string {
	return c.Params.Get(name)
}

// Query gets a query parameter. Malformed query strings yield "".
func (c *Context) Query(key string) string {
	values, err := url.ParseQuery(c.Request.Query)
	if err != nil {
		return ""
	}
	return values.Get(key)
}

// Body returns the request body as bytes
func (c *Context) Body() []byte {
	return c.Request.Body
}
