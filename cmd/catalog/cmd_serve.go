// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"golang.org/x/sync/errgroup"

	"github.com/AleutianAI/AleutianCatalog/pkg/logging"
	"github.com/AleutianAI/AleutianCatalog/services/catalog"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/config"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/observability"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/openapi"
	catalogdb "github.com/AleutianAI/AleutianCatalog/services/catalog/storage/badger"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/telemetry"
)

const shutdownTimeout = 15 * time.Second

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	servePort      int
	serveEphemeral bool
	serveWatchDir  string
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the catalog HTTP API",
	Long: `Run the catalog HTTP API on the configured port.

Serves /health, /metrics (when the prometheus exporter is enabled) and the
REST API under /api/v1. SIGINT or SIGTERM drains in-flight requests and
closes the database.

Examples:
  catalog serve
  catalog serve --port 9090
  catalog serve --ephemeral
  catalog serve --watch ./openapi`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "Listen port (overrides server.port)")
	serveCmd.Flags().BoolVar(&serveEphemeral, "ephemeral", false, "Keep the catalog in memory only")
	serveCmd.Flags().StringVar(&serveWatchDir, "watch", "", "Import OpenAPI documents from this directory (overrides openapi.watch_dir)")
	rootCmd.AddCommand(serveCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveEphemeral {
		cfg.Store.InMemory = true
	}
	if serveWatchDir != "" {
		cfg.OpenAPI.WatchDir = serveWatchDir
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	defer logger.Close()
	logger.SetDefault()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := telemetry.Init(ctx, telemetryConfig(cfg))
	if err != nil {
		return fmt.Errorf("init telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("Telemetry shutdown failed", "error", err)
		}
	}()

	db, st, err := openStore(cfg, logger.Slog())
	if err != nil {
		return err
	}
	defer db.Close()
	defer st.Close()

	svc := catalog.NewService(st, serviceConfig(cfg), observability.Default(), logger.Slog())
	handlers := catalog.NewHandlers(svc).WithOperationTimeout(cfg.Store.OperationTimeout)

	router, err := newRouter(handlers, cfg)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.Server.RequestTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Starting Aleutian catalog server",
			slog.String("address", srv.Addr),
			slog.Bool("in_memory", cfg.Store.InMemory),
			slog.String("data_dir", cfg.Store.Path))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down Aleutian catalog server")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(sctx)
	})

	if dir := cfg.OpenAPI.WatchDir; dir != "" {
		watcher, err := openapi.NewDirWatcher(dir, svc.Loader, openapi.WithLoadHandler(logWatchedLoad))
		if err != nil {
			stop()
			_ = g.Wait()
			return err
		}
		defer watcher.Close()
		g.Go(func() error { return watcher.Run(gctx) })
	}

	return g.Wait()
}

// newLogger builds the process logger from the logging section.
func newLogger(cfg *config.CatalogConfig) (*logging.Logger, error) {
	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Config{
		Level:   level,
		LogDir:  cfg.Logging.Dir,
		Service: "catalog",
		JSON:    cfg.Logging.JSON,
	}), nil
}

func telemetryConfig(cfg *config.CatalogConfig) telemetry.Config {
	tc := telemetry.DefaultConfig()
	tc.ServiceVersion = catalog.ServiceVersion
	tc.Environment = cfg.Telemetry.Environment
	tc.TraceExporter = cfg.Telemetry.TraceExporter
	tc.MetricExporter = cfg.Telemetry.MetricExporter
	tc.OTLPEndpoint = cfg.Telemetry.OTLPEndpoint
	tc.OTLPInsecure = cfg.Telemetry.OTLPInsecure
	return tc
}

// openStore opens the database and the record store on top of it. The
// caller closes the store before the database.
func openStore(cfg *config.CatalogConfig, logger *slog.Logger) (*catalogdb.DB, *store.BadgerStore, error) {
	dbCfg := catalogdb.DefaultConfig()
	dbCfg.Path = cfg.Store.Path
	dbCfg.InMemory = cfg.Store.InMemory
	dbCfg.SyncWrites = cfg.Store.SyncWrites
	dbCfg.GCInterval = cfg.Store.GCInterval
	dbCfg.Logger = logger

	db, err := catalogdb.Open(dbCfg)
	if err != nil {
		return nil, nil, err
	}
	st, err := store.Open(db, store.Options{
		OperationTimeout: cfg.Store.OperationTimeout,
		Logger:           logger,
	})
	if err != nil {
		_ = db.Close()
		return nil, nil, err
	}
	return db, st, nil
}

func serviceConfig(cfg *config.CatalogConfig) catalog.ServiceConfig {
	sc := catalog.DefaultServiceConfig()
	sc.EventBuffer = cfg.Server.EventBuffer
	sc.Loader = []openapi.Option{
		openapi.WithHTTPClient(&http.Client{Timeout: cfg.OpenAPI.FetchTimeout}),
		openapi.WithRateLimit(cfg.OpenAPI.FetchRatePerSec, cfg.OpenAPI.FetchBurst),
		openapi.WithMaxDocumentBytes(int64(cfg.OpenAPI.MaxDocumentMB) << 20),
	}
	return sc
}

// newRouter builds the gin engine: recovery, tracing, request metrics,
// /health, /metrics and /api/v1.
func newRouter(handlers *catalog.Handlers, cfg *config.CatalogConfig) (*gin.Engine, error) {
	gin.SetMode(cfg.Server.GinMode)

	router := gin.New()
	router.Use(gin.Recovery())
	if cfg.Server.GinMode == gin.DebugMode {
		router.Use(gin.Logger())
	}
	router.Use(otelgin.Middleware("aleutian-catalog"))

	httpMetrics, err := telemetry.NewHTTPMetrics(otel.Meter("catalog"))
	if err != nil {
		return nil, err
	}
	router.Use(telemetry.Middleware(httpMetrics))

	catalog.RegisterHealth(router, handlers)
	if h := telemetry.MetricsHandler(); h != nil {
		router.GET("/metrics", gin.WrapH(h))
	}

	v1 := router.Group("/api/v1")
	catalog.RegisterRoutes(v1, handlers)
	return router, nil
}

func logWatchedLoad(path string, result *openapi.LoadResult, err error) {
	if err != nil {
		slog.Warn("OpenAPI import from watch dir failed", "path", path, "error", err)
		return
	}
	slog.Info("OpenAPI document imported from watch dir",
		"path", path,
		"service", result.ServiceName,
		"endpoints_created", result.EndpointsCreated,
		"endpoints_removed", result.EndpointsRemoved)
}
