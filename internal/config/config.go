package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const envPrefix = "RAWHTTP_"

// Config holds every setting of the server process.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Files       FilesConfig       `yaml:"files"`
	Compression CompressionConfig `yaml:"compression"`
	Log         LogConfig         `yaml:"log"`
}

// ServerConfig covers the listener, the worker pool and per-connection limits.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	Workers   int    `yaml:"workers"`    // connections served at once
	QueueSize int    `yaml:"queue_size"` // accepted connections waiting for a worker

	ReadTimeout  time.Duration `yaml:"read_timeout"`  // reading one request
	WriteTimeout time.Duration `yaml:"write_timeout"` // writing one response
	IdleTimeout  time.Duration `yaml:"idle_timeout"`  // waiting for the next keep-alive request

	MaxHeaderBytes int   `yaml:"max_header_bytes"`
	MaxBodyBytes   int64 `yaml:"max_body_bytes"`

	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// FilesConfig locates the file store.
type FilesConfig struct {
	Directory string `yaml:"directory"`
}

// CompressionConfig controls gzip response encoding.
type CompressionConfig struct {
	Enabled       bool  `yaml:"enabled"`
	MinSize       int64 `yaml:"min_size"`
	MaxStreamSize int64 `yaml:"max_stream_size"`
}

// LogConfig selects the log level and output format (json or console).
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:            ":4221",
			Workers:         20,
			QueueSize:       100,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			IdleTimeout:     60 * time.Second,
			MaxHeaderBytes:  1 << 20,
			MaxBodyBytes:    10 << 20,
			ShutdownTimeout: 30 * time.Second,
		},
		Files: FilesConfig{
			Directory: "files",
		},
		Compression: CompressionConfig{
			Enabled:       true,
			MaxStreamSize: 1 << 20,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
	}
}

// Load builds a Config from the defaults, the YAML file at path (skipped
// when path is empty) and RAWHTTP_* environment variables, in that order.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.loadFile(path); err != nil {
			return nil, err
		}
	}

	if err := cfg.applyEnv(os.Getenv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %q: %w", path, err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config %q: %w", path, err)
	}
	return nil
}

// applyEnv overrides fields from the environment. getenv is os.Getenv
// outside tests.
func (c *Config) applyEnv(getenv func(string) string) error {
	if v := getenv(envPrefix + "ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := getenv(envPrefix + "DIRECTORY"); v != "" {
		c.Files.Directory = v
	}
	if v := getenv(envPrefix + "LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := getenv(envPrefix + "LOG_FORMAT"); v != "" {
		c.Log.Format = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"WORKERS", &c.Server.Workers},
		{"QUEUE", &c.Server.QueueSize},
	}
	for _, e := range ints {
		v := getenv(envPrefix + e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s%s=%q: not an integer", envPrefix, e.key, v)
		}
		*e.dst = n
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with.
func (c *Config) Validate() error {
	var errs []error

	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr is empty"))
	} else if _, _, err := net.SplitHostPort(c.Server.Addr); err != nil {
		errs = append(errs, fmt.Errorf("server.addr %q: %w", c.Server.Addr, err))
	}
	if c.Server.Workers <= 0 {
		errs = append(errs, fmt.Errorf("server.workers must be positive, got %d", c.Server.Workers))
	}
	if c.Server.QueueSize <= 0 {
		errs = append(errs, fmt.Errorf("server.queue_size must be positive, got %d", c.Server.QueueSize))
	}

	timeouts := []struct {
		name string
		d    time.Duration
	}{
		{"server.read_timeout", c.Server.ReadTimeout},
		{"server.write_timeout", c.Server.WriteTimeout},
		{"server.idle_timeout", c.Server.IdleTimeout},
		{"server.shutdown_timeout", c.Server.ShutdownTimeout},
	}
	for _, t := range timeouts {
		if t.d < 0 {
			errs = append(errs, fmt.Errorf("%s must not be negative, got %s", t.name, t.d))
		}
	}

	if c.Server.MaxHeaderBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_header_bytes must be positive, got %d", c.Server.MaxHeaderBytes))
	}
	if c.Server.MaxBodyBytes <= 0 {
		errs = append(errs, fmt.Errorf("server.max_body_bytes must be positive, got %d", c.Server.MaxBodyBytes))
	}
	if c.Files.Directory == "" {
		errs = append(errs, errors.New("files.directory is empty"))
	}
	if c.Compression.MinSize < 0 || c.Compression.MaxStreamSize < 0 {
		errs = append(errs, errors.New("compression sizes must not be negative"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log.level %q is not one of debug, info, warn, error", c.Log.Level))
	}
	switch strings.ToLower(c.Log.Format) {
	case "auto", "json", "console":
	default:
		errs = append(errs, fmt.Errorf("log.format %q is not one of auto, json, console", c.Log.Format))
	}

	return errors.Join(errs...)
}

// SetPort replaces the port of Server.Addr, keeping its host.
func (c *Config) SetPort(port int) error {
	if port < 1 || port > 65535 {
		return fmt.Errorf("invalid port: %d", port)
	}
	host, _, err := net.SplitHostPort(c.Server.Addr)
	if err != nil {
		host = ""
	}
	c.Server.Addr = net.JoinHostPort(host, strconv.Itoa(port))
	return nil
}
