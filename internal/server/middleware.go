package server

import (
	"fmt"
	"runtime/debug"
	"time"

	"github.com/Brownie44l1/rawhttp/internal/headers"
	"github.com/Brownie44l1/rawhttp/internal/httperr"
	"github.com/Brownie44l1/rawhttp/internal/response"
	"github.com/Brownie44l1/rawhttp/internal/router"
)

// statusOf returns the status a handler outcome will be answered with.
func statusOf(resp *response.Response, err error) int {
	if err != nil {
		if status, ok := httperr.StatusFor(err); ok {
			return status
		}
		return int(response.StatusInternalServerError)
	}
	if resp == nil {
		return int(response.StatusInternalServerError)
	}
	return int(resp.Status)
}

// LoggingMiddleware logs handler failures and, at debug level, every
// handler outcome.
func LoggingMiddleware() router.Middleware {
	return func(next router.Handler) router.Handler {
		return func(ctx *router.Context) (*response.Response, error) {
			start := time.Now()

			resp, err := next(ctx)

			status := statusOf(resp, err)
			if err != nil {
				ctx.Logger.Error().
					Err(err).
					Str("kind", httperr.KindOf(err).String()).
					Int("status", status).
					Msg("handler failed")
			} else {
				ctx.Logger.Debug().
					Int("status", status).
					Dur("duration", time.Since(start)).
					Msg("request handled")
			}
			return resp, err
		}
	}
}

// RecoveryMiddleware turns a handler panic into a HandlerError.
func RecoveryMiddleware() router.Middleware {
	return func(next router.Handler) router.Handler {
		return func(ctx *router.Context) (resp *response.Response, err error) {
			defer func() {
				if r := recover(); r != nil {
					ctx.Logger.Error().
						Interface("panic", r).
						Str("stack", string(debug.Stack())).
						Msg("panic recovered")

					if resp != nil {
						resp.Close()
					}
					resp = nil
					err = httperr.Handler("recover", fmt.Errorf("panic: %v", r))
				}
			}()

			return next(ctx)
		}
	}
}

// RequestIDMiddleware adds the request id to the response headers
func RequestIDMiddleware() router.Middleware {
	return func(next router.Handler) router.Handler {
		return func(ctx *router.Context) (*response.Response, error) {
			resp, err := next(ctx)
			if resp != nil && ctx.RequestID != "" {
				if resp.Headers == nil {
					resp.Headers = headers.NewHeaders()
				}
				resp.Headers.Set("X-Request-ID", ctx.RequestID)
			}
			return resp, err
		}
	}
}

// MetricsMiddleware records request metrics
func MetricsMiddleware(metrics *Metrics) router.Middleware {
	return func(next router.Handler) router.Handler {
		return func(ctx *router.Context) (*response.Response, error) {
			start := time.Now()

			resp, err := next(ctx)

			metrics.RecordRequest(statusOf(resp, err), time.Since(start))
			return resp, err
		}
	}
}
