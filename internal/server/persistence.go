package server

import (
	"github.com/Brownie44l1/rawhttp/internal/request"
	"github.com/Brownie44l1/rawhttp/internal/response"
)

// shouldCloseConnection decides, before the response is written, whether the
// connection ends after it.
func shouldCloseConnection(req *request.Request, handlerFailed, shuttingDown bool) bool {
	if handlerFailed || shuttingDown {
		return true
	}

	// A chunked body is never decoded, so its bytes would otherwise be
	// read as the next request.
	if req.IsChunked() && req.ContentLength() < 0 {
		return true
	}

	// HTTP/1.0 closes by default unless "Connection: keep-alive";
	// HTTP/1.1 keeps alive by default unless "Connection: close".
	return req.WantsClose()
}

// setConnectionHeader tells the client what happens after this response.
// HTTP/1.1 clients only need to hear about a close; HTTP/1.0 clients that
// asked to keep the connection are told it stays open.
func setConnectionHeader(req *request.Request, resp *response.Response, closing bool) {
	switch {
	case closing:
		resp.Headers.Set("Connection", "close")
	case req != nil && req.IsHTTP10():
		resp.Headers.Set("Connection", "keep-alive")
	default:
		resp.Headers.Del("Connection")
	}
}

// keepAlive reports whether the worker may read another request after
// writing a response.
func keepAlive(w *response.Writer, closing bool) bool {
	return !closing && !w.HadError() && w.Done()
}
