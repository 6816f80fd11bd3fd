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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Environment variables that override the file.
const (
	EnvPort         = "CATALOG_PORT"
	EnvDataDir      = "CATALOG_DATA_DIR"
	EnvLogLevel     = "CATALOG_LOG_LEVEL"
	EnvOTLPEndpoint = "OTEL_EXPORTER_OTLP_ENDPOINT"
	EnvTraces       = "OTEL_TRACES_EXPORTER"
	EnvMetrics      = "OTEL_METRICS_EXPORTER"
)

// DefaultPath returns ~/.aleutian/catalog.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not find the user's home directory: %w", err)
	}
	return filepath.Join(home, ".aleutian", "catalog.yaml"), nil
}

// Load reads the config at path, writing the defaults there first if the
// file does not exist, then applies environment overrides and validates.
func Load(path string) (*CatalogConfig, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		slog.Info("first run detected, creating catalog config", "path", path)
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the config file: %w", err)
	}
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func createDefault(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create the config directory: %w", err)
	}
	data, err := yaml.Marshal(DefaultConfig())
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

func applyEnv(cfg *CatalogConfig, lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		cfg.Server.Port = port
	}
	if v, ok := lookup(EnvDataDir); ok && v != "" {
		cfg.Store.Path = v
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v, ok := lookup(EnvOTLPEndpoint); ok && v != "" {
		cfg.Telemetry.OTLPEndpoint = v
	}
	if v, ok := lookup(EnvTraces); ok && v != "" {
		cfg.Telemetry.TraceExporter = strings.ToLower(v)
	}
	if v, ok := lookup(EnvMetrics); ok && v != "" {
		cfg.Telemetry.MetricExporter = strings.ToLower(v)
	}
	return nil
}
