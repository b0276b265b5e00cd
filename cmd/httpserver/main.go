package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Brownie44l1/rawhttp/internal/config"
	"github.com/Brownie44l1/rawhttp/internal/filestore"
	"github.com/Brownie44l1/rawhttp/internal/handlers"
	"github.com/Brownie44l1/rawhttp/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "httpserver: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to a YAML config file")
	directory := flag.String("directory", "", "directory served under /files/")
	port := flag.Int("port", 0, "port to listen on (overrides the configured address)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	if *directory != "" {
		cfg.Files.Directory = *directory
	}
	if *port != 0 {
		if err := cfg.SetPort(*port); err != nil {
			return err
		}
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logger := server.NewLogger(cfg.Log)

	store, err := filestore.New(cfg.Files.Directory, logger)
	if err != nil {
		return err
	}
	table, err := handlers.Routes(handlers.New(store))
	if err != nil {
		return fmt.Errorf("build routes: %w", err)
	}

	srv := server.New(cfg, table, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	logger.Info().
		Str("directory", store.Dir()).
		Str("addr", cfg.Server.Addr).
		Msg("starting server")

	select {
	case err := <-errc:
		// Serve only returns on its own when the listener fails.
		return err
	case <-ctx.Done():
	}
	stop()

	logger.Info().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errc; err != nil && !errors.Is(err, server.ErrServerClosed) {
		return err
	}
	return nil
}
