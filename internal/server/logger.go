package server

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"

	"github.com/Brownie44l1/rawhttp/internal/config"
)

// NewLogger builds the process logger writing to stdout. Format "auto"
// picks the console writer on a terminal and JSON otherwise.
func NewLogger(cfg config.LogConfig) zerolog.Logger {
	fd := os.Stdout.Fd()
	terminal := isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)

	var out io.Writer = os.Stdout
	if terminal {
		out = colorable.NewColorableStdout()
	}
	return newLogger(cfg, out, terminal)
}

func newLogger(cfg config.LogConfig, out io.Writer, terminal bool) zerolog.Logger {
	level, err := zerolog.ParseLevel(strings.ToLower(cfg.Level))
	if err != nil || level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	console := false
	switch strings.ToLower(cfg.Format) {
	case "console":
		console = true
	case "json":
	default:
		console = terminal
	}

	w := out
	if console {
		w = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: time.RFC3339,
			NoColor:    !terminal,
		}
	}

	return zerolog.New(w).Level(level).With().Timestamp().Logger()
}

// truncate keeps client-controlled strings from flooding the log.
func truncate(s string) string {
	const max = 100
	if len(s) > max {
		return s[:max] + "...[truncated]"
	}
	return s
}
