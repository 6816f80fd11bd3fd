// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package config holds the catalog server configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
)

var configValidate *validator.Validate

func init() {
	configValidate = validator.New()
}

// CatalogConfig is the root of catalog.yaml.
type CatalogConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Store     StoreConfig     `yaml:"store"`
	Logging   LoggingConfig   `yaml:"logging"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	OpenAPI   OpenAPIConfig   `yaml:"openapi"`
	Backup    BackupConfig    `yaml:"backup"`
}

type ServerConfig struct {
	Port           int           `yaml:"port" validate:"min=1,max=65535"`
	GinMode        string        `yaml:"gin_mode" validate:"oneof=debug release test"`
	RequestTimeout time.Duration `yaml:"request_timeout" validate:"min=0"`
	EventBuffer    int           `yaml:"event_buffer" validate:"min=1"`
}

type StoreConfig struct {
	Path             string        `yaml:"path" validate:"required_unless=InMemory true"`
	InMemory         bool          `yaml:"in_memory"`
	SyncWrites       bool          `yaml:"sync_writes"`
	GCInterval       time.Duration `yaml:"gc_interval" validate:"min=0"`
	OperationTimeout time.Duration `yaml:"operation_timeout" validate:"min=0"`
}

type LoggingConfig struct {
	Level string `yaml:"level" validate:"oneof=debug info warn error"`
	// Dir enables file logging alongside stderr when set.
	Dir  string `yaml:"dir,omitempty"`
	JSON bool   `yaml:"json"`
}

type TelemetryConfig struct {
	TraceExporter  string `yaml:"trace_exporter" validate:"oneof=otlp stdout none"`
	MetricExporter string `yaml:"metric_exporter" validate:"oneof=prometheus stdout none"`
	OTLPEndpoint   string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure   bool   `yaml:"otlp_insecure"`
	Environment    string `yaml:"environment"`
}

type OpenAPIConfig struct {
	FetchTimeout    time.Duration `yaml:"fetch_timeout" validate:"min=0"`
	FetchRatePerSec float64       `yaml:"fetch_rate_per_sec" validate:"gt=0"`
	FetchBurst      int           `yaml:"fetch_burst" validate:"min=1"`
	MaxDocumentMB   int           `yaml:"max_document_mb" validate:"min=1"`
	// WatchDir, when set, is scanned for OpenAPI documents to import.
	WatchDir string `yaml:"watch_dir,omitempty"`
}

type BackupConfig struct {
	GCSProject      string `yaml:"gcs_project,omitempty"`
	GCSBucket       string `yaml:"gcs_bucket,omitempty"`
	CredentialsFile string `yaml:"credentials_file,omitempty" validate:"omitempty,filepath"`
}

// DefaultConfig returns the configuration written on first run.
func DefaultConfig() CatalogConfig {
	dataDir := "catalog-data"
	if home, err := os.UserHomeDir(); err == nil {
		dataDir = filepath.Join(home, ".aleutian", "catalog", "data")
	}
	return CatalogConfig{
		Server: ServerConfig{
			Port:           8085,
			GinMode:        "release",
			RequestTimeout: 30 * time.Second,
			EventBuffer:    64,
		},
		Store: StoreConfig{
			Path:             dataDir,
			SyncWrites:       true,
			GCInterval:       10 * time.Minute,
			OperationTimeout: 5 * time.Second,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Telemetry: TelemetryConfig{
			TraceExporter:  "none",
			MetricExporter: "prometheus",
			OTLPEndpoint:   "localhost:4317",
			OTLPInsecure:   true,
			Environment:    "development",
		},
		OpenAPI: OpenAPIConfig{
			FetchTimeout:    15 * time.Second,
			FetchRatePerSec: 2,
			FetchBurst:      4,
			MaxDocumentMB:   10,
		},
	}
}

// Validate checks the struct tags.
func (c *CatalogConfig) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid catalog config: %w", err)
	}
	return nil
}

// Addr returns the listen address for the HTTP server.
func (c *CatalogConfig) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
