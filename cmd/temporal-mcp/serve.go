package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rendis/temporal-mcp/internal/logging"
	"github.com/rendis/temporal-mcp/internal/scheduler"
	"github.com/rendis/temporal-mcp/internal/store"
	"github.com/rendis/temporal-mcp/internal/temporal"
	"github.com/rendis/temporal-mcp/internal/validation"
	mcpserver "github.com/rendis/temporal-mcp/pkg/mcp"
)

// serveOptions are the flags that override the loaded Config.
type serveOptions struct {
	transport  string
	listenAddr string
	logLevel   string
	cachePath  string
}

func (o *serveOptions) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&o.transport, "transport", "", "transport: stdio or http")
	cmd.Flags().StringVar(&o.listenAddr, "listen-addr", "", "listen address for the http transport")
	cmd.Flags().StringVar(&o.logLevel, "log-level", "", "log level: debug, info, warn or error")
	cmd.Flags().StringVar(&o.cachePath, "cache-path", "", "libSQL file caching closed workflow histories")
}

// apply copies the flags the user actually set onto cfg.
func (o *serveOptions) apply(cmd *cobra.Command, cfg *Config) {
	flags := cmd.Flags()
	if flags.Changed("transport") {
		cfg.Transport = o.transport
	}
	if flags.Changed("listen-addr") {
		cfg.ListenAddr = o.listenAddr
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("cache-path") {
		cfg.CachePath = o.cachePath
	}
}

func serveCmd() *cobra.Command {
	opts := &serveOptions{}
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the MCP server",
		Long: `Start the MCP server.

Examples:
  temporal-mcp serve
  temporal-mcp serve --transport http --listen-addr :4200
  TEMPORAL_ENDPOINT=localhost:8233 temporal-mcp serve --cache-path ~/.temporal-mcp/cache.db`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
	opts.bind(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, opts *serveOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	opts.apply(cmd, &cfg)
	if err := cfg.validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	// stdout carries the stdio transport, so logs always go to stderr.
	logger := newLogger(os.Stderr, cfg.LogLevel)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	source, cleanup, err := buildSource(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	srv, err := mcpserver.NewServer(mcpserver.ServerDeps{
		Source:  source,
		Logger:  logger,
		Version: version,
	})
	if err != nil {
		return err
	}

	logger.Info("temporal-mcp starting",
		slog.String("version", version),
		slog.String("transport", cfg.Transport),
	)
	if cfg.Transport == "http" {
		return srv.ServeHTTP(ctx, cfg.ListenAddr)
	}
	return srv.Serve(ctx)
}

func newLogger(w io.Writer, level string) *slog.Logger {
	inner := slog.NewTextHandler(w, &slog.HandlerOptions{Level: logging.ParseLevel(level)})
	return slog.New(logging.NewCorrelationHandler(inner))
}

// buildSource wires the Temporal client and, when a cache path is
// configured, the libSQL cache and its pruner in front of it.
func buildSource(ctx context.Context, cfg Config, logger *slog.Logger) (temporal.Source, func(), error) {
	validator, err := validation.NewHistoryValidator()
	if err != nil {
		return nil, nil, err
	}
	timeout, _ := cfg.requestTimeout()
	retry := temporal.DefaultRetryPolicy()
	retry.MaxRetries = cfg.MaxRetries

	client, err := temporal.NewClient(temporal.Config{
		Endpoint:         cfg.Endpoint,
		OverrideEndpoint: cfg.OverrideEndpoint,
		APIKey:           cfg.APIKey,
		RequestTimeout:   timeout,
		Retry:            retry,
		Validator:        validator,
		Logger:           logger,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.Info("temporal endpoint resolved", slog.String("base_url", client.BaseURL()))

	if cfg.CachePath == "" {
		return client, func() {}, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.CachePath), 0o700); err != nil {
		return nil, nil, fmt.Errorf("create cache directory: %w", err)
	}
	st, err := store.NewLibSQLStore("file:" + cfg.CachePath)
	if err != nil {
		return nil, nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, nil, fmt.Errorf("migrate history cache: %w", err)
	}

	ttl, _ := cfg.cacheTTL()
	pruner, err := scheduler.NewScheduler(st, cfg.PruneSchedule, ttl, logger)
	if err != nil {
		_ = st.Close()
		return nil, nil, err
	}
	if err := pruner.Start(ctx); err != nil {
		_ = st.Close()
		return nil, nil, err
	}

	logger.Info("history cache enabled",
		slog.String("path", cfg.CachePath),
		slog.Duration("ttl", ttl),
	)
	cleanup := func() {
		_ = pruner.Stop()
		if err := st.Close(); err != nil {
			logger.Warn("close history cache", slog.String("error", err.Error()))
		}
	}
	return store.NewCachedSource(client, st, ttl, logger), cleanup, nil
}
