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
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCatalog/pkg/ux"
	"github.com/AleutianAI/AleutianCatalog/services/catalog"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	importAppend bool
	importJSON   bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var importCmd = &cobra.Command{
	Use:   "import FILE|URL...",
	Short: "Import OpenAPI documents into a running catalog",
	Long: `Import OpenAPI 3 documents as service endpoints.

Each document's info.title names the service; the service is created if
it does not exist. By default the document replaces the service's
endpoints. With --append, only operations the service lacks are added.

URLs are fetched by the server. Files are read locally and uploaded.

Examples:
  catalog import ./openapi/orders.yaml
  catalog import https://orders.internal/openapi.json
  catalog import --append ./openapi/*.json`,
	Args: cobra.MinimumNArgs(1),
	RunE: runImport,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	importCmd.Flags().BoolVar(&importAppend, "append", false, "Add missing operations instead of replacing endpoints")
	importCmd.Flags().BoolVar(&importJSON, "json", false, "Print the server responses as JSON")
	rootCmd.AddCommand(importCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runImport(cmd *cobra.Command, args []string) error {
	api := newAPI()
	p := printer(cmd)

	var (
		results []catalog.LoadOpenAPIResponse
		failed  int
	)
	for _, source := range args {
		res, err := importOne(cmd, api, source)
		if err != nil {
			failed++
			p.Error("%s: %v", source, err)
			continue
		}
		results = append(results, *res)
		if !importJSON {
			printImport(p, source, res)
		}
	}

	if importJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d imports failed", failed, len(args))
	}
	return nil
}

func importOne(cmd *cobra.Command, api *apiClient, source string) (*catalog.LoadOpenAPIResponse, error) {
	var res catalog.LoadOpenAPIResponse
	overwrite := !importAppend

	if isURL(source) {
		err := api.postJSON(cmd.Context(), "/api/v1/openapi/load", catalog.LoadOpenAPIRequest{
			URL:       source,
			Overwrite: &overwrite,
		}, &res)
		if err != nil {
			return nil, err
		}
		return &res, nil
	}

	data, err := os.ReadFile(source)
	if err != nil {
		return nil, err
	}
	query := url.Values{
		"origin":    {filepath.Base(source)},
		"overwrite": {strconv.FormatBool(overwrite)},
	}
	if err := api.postRaw(cmd.Context(), "/api/v1/openapi/documents", query, documentContentType(source), data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func printImport(p *ux.Printer, source string, res *catalog.LoadOpenAPIResponse) {
	verb := "Updated"
	if res.ServiceCreated {
		verb = "Created"
	}
	p.Success("%s service %s from %s", verb, res.ServiceName, source)
	p.Summary(
		"created", res.EndpointsCreated,
		"removed", res.EndpointsRemoved,
		"skipped", res.EndpointsSkipped,
	)
	for _, e := range res.Errors {
		p.Warning("%s", e)
	}
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func documentContentType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return "application/yaml"
	default:
		return "application/json"
	}
}
