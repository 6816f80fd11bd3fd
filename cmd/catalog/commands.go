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
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCatalog/pkg/ux"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/config"
)

// EnvServer overrides the default --server value.
const EnvServer = "CATALOG_SERVER"

// --- Global Command Variables ---
var (
	configPath string
	serverURL  string
	plainOut   bool

	rootCmd = &cobra.Command{
		Use:   "catalog",
		Short: "Service catalog and dependency graph for your platform",
		Long: `catalog records services, their environments, endpoints, external
dependencies and databases, and the dependency edges between them.

Run 'catalog serve' to start the HTTP API. The other commands either talk
to a running server (import, graph) or work on the data directory while
the server is stopped (backup, restore).

Examples:
  catalog serve
  catalog import ./openapi/orders.yaml
  catalog graph --env prod
  catalog backup --out catalog.bak`,
		SilenceUsage: true,
	}
)

func init() {
	defaultServer := os.Getenv(EnvServer)
	if defaultServer == "" {
		defaultServer = "http://localhost:8085"
	}

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "",
		"Path to catalog.yaml (default ~/.aleutian/catalog.yaml)")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServer,
		"Catalog server base URL (env "+EnvServer+")")
	rootCmd.PersistentFlags().BoolVar(&plainOut, "plain", false,
		"Disable styled output")
}

// loadConfig loads --config or the default path.
func loadConfig() (*config.CatalogConfig, error) {
	path := configPath
	if path == "" {
		p, err := config.DefaultPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

// printer returns the output printer for cmd.
func printer(cmd *cobra.Command) *ux.Printer {
	if plainOut {
		return ux.NewPlainPrinter(cmd.OutOrStdout())
	}
	return ux.NewPrinter(cmd.OutOrStdout())
}

// newAPI returns a client for --server.
func newAPI() *apiClient {
	return newAPIClient(strings.TrimRight(serverURL, "/"))
}
