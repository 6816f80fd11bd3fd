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
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianCatalog/pkg/ux"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/graph"
)

// =============================================================================
// COMMAND FLAGS
// =============================================================================

var (
	graphEnv        string
	graphOrder      bool
	graphJSONOutput bool
)

// =============================================================================
// COMMAND DEFINITIONS
// =============================================================================

var graphCmd = &cobra.Command{
	Use:   "graph",
	Short: "Show the service dependency graph",
	Long: `Show every service and the consumer -> provider edges between them.

Without --env all edges are shown. With --env only edges of that
environment are shown. --order prints services providers first for one
scope: the named environment, or edges without an environment when --env
is omitted.

Examples:
  catalog graph
  catalog graph --env prod
  catalog graph --order --env prod
  catalog graph --json | jq '.edges | length'`,
	Args: cobra.NoArgs,
	RunE: runGraph,
}

// =============================================================================
// COMMAND INITIALIZATION
// =============================================================================

func init() {
	graphCmd.Flags().StringVar(&graphEnv, "env", "", "Environment code to scope edges to")
	graphCmd.Flags().BoolVar(&graphOrder, "order", false, "Print a providers-first service order")
	graphCmd.Flags().BoolVar(&graphJSONOutput, "json", false, "Print the raw JSON response")
	rootCmd.AddCommand(graphCmd)
}

// =============================================================================
// COMMAND IMPLEMENTATION
// =============================================================================

func runGraph(cmd *cobra.Command, _ []string) error {
	api := newAPI()
	query := url.Values{}
	if graphEnv != "" {
		query.Set("environmentCode", graphEnv)
	}

	path := "/api/v1/dependency-graph"
	if graphOrder {
		path += "/order"
	}

	if graphJSONOutput {
		var raw json.RawMessage
		if err := api.getJSON(cmd.Context(), path, query, &raw); err != nil {
			return err
		}
		_, err := fmt.Fprintln(cmd.OutOrStdout(), string(raw))
		return err
	}

	p := printer(cmd)
	if graphOrder {
		var order graph.Order
		if err := api.getJSON(cmd.Context(), path, query, &order); err != nil {
			return err
		}
		printOrder(p, &order)
		return nil
	}

	var g graph.GlobalGraph
	if err := api.getJSON(cmd.Context(), path, query, &g); err != nil {
		return err
	}
	printGraph(p, &g)
	return nil
}

func scopeLabel(env *string) string {
	switch {
	case env == nil:
		return "all environments"
	case *env == "":
		return "no environment"
	default:
		return *env
	}
}

func printGraph(p *ux.Printer, g *graph.GlobalGraph) {
	p.Title(fmt.Sprintf("Dependency graph (%s)", scopeLabel(g.Metadata.Environment)))

	names := make(map[string]string, len(g.Nodes))
	rows := make([][]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		names[n.ID] = n.Name
		deps := make([]string, 0, len(n.Dependencies))
		for _, d := range n.Dependencies {
			deps = append(deps, d.Name+"@"+d.Version)
		}
		rows = append(rows, []string{n.Name, string(n.ServiceType), n.Owner, strings.Join(deps, ", ")})
	}
	p.Table([]string{"SERVICE", "TYPE", "OWNER", "DEPENDENCIES"}, rows)

	if len(g.Edges) > 0 {
		edges := make([][]string, 0, len(g.Edges))
		for _, e := range g.Edges {
			env := "-"
			if e.EnvironmentCode != nil {
				env = *e.EnvironmentCode
			}
			edges = append(edges, []string{
				names[e.From] + " " + string(ux.IconArrow) + " " + names[e.To],
				string(e.DependencyType),
				env,
			})
		}
		sort.Slice(edges, func(i, j int) bool { return edges[i][0] < edges[j][0] })
		p.Table([]string{"EDGE", "TYPE", "ENVIRONMENT"}, edges)
	}

	p.Summary("services", g.Metadata.TotalServices, "edges", g.Metadata.TotalEdges)
}

func printOrder(p *ux.Printer, o *graph.Order) {
	scope := "no environment"
	if o.Environment != nil && *o.Environment != "" {
		scope = *o.Environment
	}
	p.Title(fmt.Sprintf("Providers-first order (%s)", scope))
	rows := make([][]string, 0, len(o.Services))
	for i, s := range o.Services {
		rows = append(rows, []string{strconv.Itoa(i + 1), s.Name, s.Owner})
	}
	p.Table([]string{"#", "SERVICE", "OWNER"}, rows)
}
