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
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCatalog/services/catalog"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/config"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/observability"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/registry"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/relations"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

// =============================================================================
// Helpers
// =============================================================================

// execute runs the root command with args after resetting every flag, so
// values from an earlier run do not leak into this one.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func testConfig(t *testing.T, dataDir string) *config.CatalogConfig {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Server.GinMode = "test"
	cfg.Store.Path = dataDir
	cfg.Store.InMemory = dataDir == ""
	cfg.Telemetry.MetricExporter = "none"
	return &cfg
}

func writeConfig(t *testing.T, dataDir string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	data := "store:\n  path: " + dataDir + "\ntelemetry:\n  metric_exporter: none\n"
	require.NoError(t, os.WriteFile(path, []byte(data), 0600))
	return path
}

// startServer serves an in-memory catalog and points --server at it.
func startServer(t *testing.T) *catalog.Service {
	t.Helper()
	cfg := testConfig(t, "")
	db, st, err := openStore(cfg, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = st.Close()
		_ = db.Close()
	})

	svc := catalog.NewService(st, serviceConfig(cfg), observability.New(prometheus.NewRegistry()), nil)
	router, err := newRouter(catalog.NewHandlers(svc), cfg)
	require.NoError(t, err)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	serverFlag := rootCmd.PersistentFlags().Lookup("server")
	serverFlag.DefValue = srv.URL
	return svc
}

// =============================================================================
// Router
// =============================================================================

func TestNewRouter(t *testing.T) {
	cfg := testConfig(t, "")
	db, st, err := openStore(cfg, slog.Default())
	require.NoError(t, err)
	defer db.Close()
	defer st.Close()

	svc := catalog.NewService(st, serviceConfig(cfg), observability.New(prometheus.NewRegistry()), nil)
	router, err := newRouter(catalog.NewHandlers(svc), cfg)
	require.NoError(t, err)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/services", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	// No prometheus exporter was initialized.
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestServiceConfig(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Server.EventBuffer = 7
	sc := serviceConfig(cfg)
	assert.Equal(t, 7, sc.EventBuffer)
	assert.Len(t, sc.Loader, 3)
}

func TestNewLogger_BadLevel(t *testing.T) {
	cfg := testConfig(t, "")
	cfg.Logging.Level = "loud"
	_, err := newLogger(cfg)
	assert.Error(t, err)
}

// =============================================================================
// import / graph
// =============================================================================

const ordersYAML = `openapi: 3.0.3
info:
  title: orders
  version: 1.0.0
paths:
  /orders:
    get:
      responses:
        "200":
          description: OK
    post:
      responses:
        "201":
          description: Created
`

func TestImportAndGraph(t *testing.T) {
	svc := startServer(t)

	doc := filepath.Join(t.TempDir(), "orders.yaml")
	require.NoError(t, os.WriteFile(doc, []byte(ordersYAML), 0600))

	out, err := execute(t, "import", "--plain", doc)
	require.NoError(t, err, out)
	assert.Contains(t, out, "OK: Created service orders from "+doc)
	assert.Contains(t, out, "SUMMARY: created=2 removed=0 skipped=0")

	out, err = execute(t, "import", "--plain", "--append", doc)
	require.NoError(t, err, out)
	assert.Contains(t, out, "OK: Updated service orders")
	assert.Contains(t, out, "skipped=2")

	_, err = execute(t, "import", "--plain", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	ctx := context.Background()
	orders, err := store.FindFirst(ctx, svc.Store, model.KindService, func(s *model.Service) bool { return s.Name == "orders" })
	require.NoError(t, err)
	payments, err := svc.Registry.CreateService(ctx, registry.ServiceInput{
		Name: "payments", Owner: "billing", ServiceType: model.ServiceTypeApplication,
	})
	require.NoError(t, err)
	prod := "prod"
	_, err = svc.Relations.LinkServices(ctx, relations.ServiceLinkInput{
		ConsumerID:     orders.ID,
		ProviderID:     payments.ID,
		Environment:    &prod,
		DependencyType: model.ServiceDependencyAPICall,
	})
	require.NoError(t, err)

	t.Run("graph", func(t *testing.T) {
		out, err := execute(t, "graph", "--plain", "--env", "prod")
		require.NoError(t, err, out)
		assert.Contains(t, out, "orders → payments\tAPI_CALL\tprod")
		assert.Contains(t, out, "SUMMARY: services=2 edges=1")
	})

	t.Run("order", func(t *testing.T) {
		out, err := execute(t, "graph", "--plain", "--order", "--env", "prod")
		require.NoError(t, err, out)
		assert.Less(t, strings.Index(out, "payments"), strings.Index(out, "orders"))
	})

	t.Run("json", func(t *testing.T) {
		out, err := execute(t, "graph", "--json")
		require.NoError(t, err, out)
		assert.Contains(t, out, `"totalServices":2`)
	})
}

func TestGraph_ServerError(t *testing.T) {
	startServer(t)
	out, err := execute(t, "graph", "--plain", "--order", "--env", "   ")
	require.Error(t, err, out)
	assert.Contains(t, err.Error(), "HTTP 400")
}

// =============================================================================
// backup / restore
// =============================================================================

func TestBackupRestore(t *testing.T) {
	ctx := context.Background()
	srcDir := filepath.Join(t.TempDir(), "src")
	dstDir := filepath.Join(t.TempDir(), "dst")

	// Seed the source catalog.
	db, st, err := openStore(testConfig(t, srcDir), slog.Default())
	require.NoError(t, err)
	svc := catalog.NewService(st, catalog.DefaultServiceConfig(), nil, nil)
	_, err = svc.Registry.CreateService(ctx, registry.ServiceInput{
		Name: "inventory", Owner: "platform", ServiceType: model.ServiceTypeApplication,
	})
	require.NoError(t, err)
	require.NoError(t, st.Close())
	require.NoError(t, db.Close())

	backupFile := filepath.Join(t.TempDir(), "catalog.bak")
	out, err := execute(t, "backup", "--plain", "--config", writeConfig(t, srcDir), "--out", backupFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "OK: Backed up")

	dstConfig := writeConfig(t, dstDir)
	out, err = execute(t, "restore", "--plain", "--config", dstConfig, backupFile)
	require.NoError(t, err, out)
	assert.Contains(t, out, "OK: Restored")

	_, err = execute(t, "restore", "--plain", "--config", dstConfig, backupFile)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not empty")

	db, st, err = openStore(testConfig(t, dstDir), slog.Default())
	require.NoError(t, err)
	defer db.Close()
	defer st.Close()
	n, err := store.Count(ctx, st, model.KindService)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestBackup_RequiresDestination(t *testing.T) {
	_, err := execute(t, "backup", "--config", writeConfig(t, t.TempDir()))
	assert.Error(t, err)
}
