package handlers

import (
	"errors"
	"io"

	"github.com/Brownie44l1/rawhttp/internal/filestore"
	"github.com/Brownie44l1/rawhttp/internal/httperr"
	"github.com/Brownie44l1/rawhttp/internal/response"
	"github.com/Brownie44l1/rawhttp/internal/router"
)

// FileStore is the part of filestore.Store the file handlers need.
type FileStore interface {
	Open(name string) (io.ReadCloser, int64, error)
	Write(name string, data []byte) error
}

// Handlers serves the fixed endpoint set.
type Handlers struct {
	files FileStore
}

func New(files FileStore) *Handlers {
	return &Handlers{files: files}
}

// Routes registers every endpoint. Literal routes come before the captures
// that could shadow them.
func Routes(h *Handlers) (*router.Table, error) {
	return router.NewBuilder().
		GET("/", h.Root).
		GET("/echo/{value}", h.Echo).
		GET("/user-agent", h.UserAgent).
		GET("/files/{name}", h.GetFile).
		POST("/files/{name}", h.PostFile).
		NotFound(h.NotFound).
		Build()
}

// Root handles GET /
func (h *Handlers) Root(ctx *router.Context) (*response.Response, error) {
	return response.New(response.StatusOK), nil
}

// Echo handles GET /echo/{value}
func (h *Handlers) Echo(ctx *router.Context) (*response.Response, error) {
	value := ctx.Param("value")
	ctx.Logger.Debug().Str("value", value).Msg("echo")
	return response.Text(response.StatusOK, value), nil
}

// UserAgent handles GET /user-agent
func (h *Handlers) UserAgent(ctx *router.Context) (*response.Response, error) {
	return response.Text(response.StatusOK, ctx.Request.UserAgent()), nil
}

// GetFile handles GET /files/{name}
func (h *Handlers) GetFile(ctx *router.Context) (*response.Response, error) {
	name := ctx.Param("name")

	rc, size, err := h.files.Open(name)
	if err != nil {
		if errors.Is(err, filestore.ErrNotFound) {
			ctx.Logger.Debug().Str("file", name).Msg("file not found")
			return response.Error(response.StatusNotFound), nil
		}
		return nil, httperr.Handler("open file", err)
	}

	ctx.Logger.Debug().Str("file", name).Int64("size", size).Msg("serving file")
	return response.Stream(response.StatusOK, response.ContentTypeBinary, rc, size), nil
}

// PostFile handles POST /files/{name}
func (h *Handlers) PostFile(ctx *router.Context) (*response.Response, error) {
	name := ctx.Param("name")

	if err := h.files.Write(name, ctx.Body()); err != nil {
		return nil, httperr.Handler("write file", err)
	}

	ctx.Logger.Info().Str("file", name).Int("bytes", len(ctx.Body())).Msg("file stored")
	return response.New(response.StatusCreated), nil
}

// NotFound answers anything no route matched.
func (h *Handlers) NotFound(ctx *router.Context) (*response.Response, error) {
	ctx.Logger.Debug().Msg("no route")
	return response.Error(response.StatusNotFound), nil
}
