package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/rs/zerolog"

	"github.com/Brownie44l1/rawhttp/internal/config"
	"github.com/Brownie44l1/rawhttp/internal/httperr"
	"github.com/Brownie44l1/rawhttp/internal/request"
	"github.com/Brownie44l1/rawhttp/internal/response"
	"github.com/Brownie44l1/rawhttp/internal/server"
)

const reply = "Hello from your HTTP server!\n"

func main() {
	addr := flag.String("addr", ":42069", "address to listen on")
	level := flag.String("log-level", "debug", "log level")
	flag.Parse()

	logger := server.NewLogger(config.LogConfig{Level: *level, Format: "auto"})

	listener, err := net.Listen("tcp", *addr)
	if err != nil {
		logger.Error().Err(err).Msg("listen failed")
		os.Exit(1)
	}
	defer listener.Close()
	logger.Info().Str("addr", listener.Addr().String()).Msg("listening")

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error().Err(err).Msg("accept failed")
			continue
		}

		go handleConnection(conn, logger.With().Str("remote", conn.RemoteAddr().String()).Logger())
	}
}

// handleConnection dumps every request on conn to stdout until the client
// closes or asks to.
func handleConnection(conn net.Conn, logger zerolog.Logger) {
	defer conn.Close()

	reader := request.NewReader(conn, request.DefaultLimits())
	defer reader.Release()
	writer := response.NewWriter(conn, response.DefaultOptions())

	for {
		req, err := reader.ReadRequest()
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Debug().Msg("client closed connection")
				return
			}
			logger.Warn().Err(err).Msg("read request failed")
			if status, ok := httperr.StatusFor(err); ok {
				resp := response.Error(response.StatusCode(status))
				resp.Headers.Set("Connection", "close")
				writer.Reset()
				writer.WriteResponse(resp, nil)
			}
			return
		}

		dump(os.Stdout, req)

		closing := req.WantsClose()
		resp := response.Text(response.StatusOK, reply)
		switch {
		case closing:
			resp.Headers.Set("Connection", "close")
		case req.IsHTTP10():
			resp.Headers.Set("Connection", "keep-alive")
		}

		writer.Reset()
		if err := writer.WriteResponse(resp, req); err != nil {
			logger.Warn().Err(err).Msg("write response failed")
			return
		}
		if closing {
			return
		}
	}
}

func dump(w io.Writer, req *request.Request) {
	fmt.Fprintln(w, "Request line:")
	fmt.Fprintf(w, "- Method: %s\n", req.Method)
	fmt.Fprintf(w, "- Target: %s\n", req.Path)
	if req.Query != "" {
		fmt.Fprintf(w, "- Query: %s\n", req.Query)
	}
	fmt.Fprintf(w, "- Version: %s\n", req.Version)

	fmt.Fprintln(w, "Headers:")
	req.Headers.Each(func(name, value string) {
		fmt.Fprintf(w, "- %s: %s\n", name, value)
	})

	fmt.Fprintln(w, "Body:")
	fmt.Fprintf(w, "%s\n", req.Body)
}
