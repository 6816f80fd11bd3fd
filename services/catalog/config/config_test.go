// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func TestLoad_CreatesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "catalog.yaml")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 8085, cfg.Server.Port)
	assert.Equal(t, "prometheus", cfg.Telemetry.MetricExporter)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var onDisk CatalogConfig
	require.NoError(t, yaml.Unmarshal(data, &onDisk))
	assert.Equal(t, 5*time.Second, onDisk.Store.OperationTimeout)
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 9000\nstore:\n  in_memory: true\n  path: \"\"\n"), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Server.Port)
	assert.True(t, cfg.Store.InMemory)
	assert.Equal(t, "release", cfg.Server.GinMode)
	assert.Equal(t, 10, cfg.OpenAPI.MaxDocumentMB)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: loud\n"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	t.Setenv(EnvPort, "9191")
	t.Setenv(EnvDataDir, "/var/lib/catalog")
	t.Setenv(EnvLogLevel, "DEBUG")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
	assert.Equal(t, "/var/lib/catalog", cfg.Store.Path)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, ":9191", cfg.Addr())
}

func TestApplyEnv_BadPort(t *testing.T) {
	cfg := DefaultConfig()
	err := applyEnv(&cfg, func(k string) (string, bool) {
		if k == EnvPort {
			return "eighty", true
		}
		return "", false
	})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*CatalogConfig)
		wantErr bool
	}{
		{"defaults", func(*CatalogConfig) {}, false},
		{"port out of range", func(c *CatalogConfig) { c.Server.Port = 70000 }, true},
		{"unknown trace exporter", func(c *CatalogConfig) { c.Telemetry.TraceExporter = "jaeger" }, true},
		{"otlp needs endpoint", func(c *CatalogConfig) {
			c.Telemetry.TraceExporter = "otlp"
			c.Telemetry.OTLPEndpoint = ""
		}, true},
		{"path required on disk", func(c *CatalogConfig) { c.Store.Path = "" }, true},
		{"in memory needs no path", func(c *CatalogConfig) {
			c.Store.Path = ""
			c.Store.InMemory = true
		}, false},
		{"zero fetch rate", func(c *CatalogConfig) { c.OpenAPI.FetchRatePerSec = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
