// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

// Package-level tracer and meter for graph reads.
var (
	tracer = otel.Tracer("aleutian.catalog.graph")
	meter  = otel.Meter("aleutian.catalog.graph")
)

var (
	queryLatency metric.Float64Histogram
	queryTotal   metric.Int64Counter
	graphNodes   metric.Int64Histogram
	graphEdges   metric.Int64Histogram
	sharedTotal  metric.Int64Counter

	metricsOnce sync.Once
	metricsErr  error
)

// initMetrics creates the instruments. Safe to call multiple times.
func initMetrics() error {
	metricsOnce.Do(func() {
		var err error

		queryLatency, err = meter.Float64Histogram(
			"catalog_graph_query_duration_seconds",
			metric.WithDescription("Duration of graph assembler reads"),
			metric.WithUnit("s"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		queryTotal, err = meter.Int64Counter(
			"catalog_graph_query_total",
			metric.WithDescription("Graph assembler reads by query and outcome"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		graphNodes, err = meter.Int64Histogram(
			"catalog_graph_nodes",
			metric.WithDescription("Nodes per global graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		graphEdges, err = meter.Int64Histogram(
			"catalog_graph_edges",
			metric.WithDescription("Edges per global graph"),
		)
		if err != nil {
			metricsErr = err
			return
		}

		sharedTotal, err = meter.Int64Counter(
			"catalog_graph_shared_total",
			metric.WithDescription("Global graph calls answered by an in-flight call"),
		)
		if err != nil {
			metricsErr = err
			return
		}
	})
	return metricsErr
}

// recordQueryMetrics records latency and outcome of one read.
func recordQueryMetrics(ctx context.Context, queryType string, duration time.Duration, err error) {
	if initErr := initMetrics(); initErr != nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("query_type", queryType),
		attribute.Bool("success", err == nil),
	)
	queryLatency.Record(ctx, duration.Seconds(), attrs)
	queryTotal.Add(ctx, 1, attrs)
}

// recordGraphSize records the size of an assembled global graph.
func recordGraphSize(ctx context.Context, nodes, edges int, shared bool) {
	if err := initMetrics(); err != nil {
		return
	}
	graphNodes.Record(ctx, int64(nodes))
	graphEdges.Record(ctx, int64(edges))
	if shared {
		sharedTotal.Add(ctx, 1)
	}
}

// startQuerySpan creates a span for one assembler read.
func startQuerySpan(ctx context.Context, queryType, subjectID string, env *string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "GraphAssembler."+queryType,
		trace.WithAttributes(
			attribute.String("graph.query_type", queryType),
			attribute.String("graph.subject_id", subjectID),
			attribute.String("graph.environment", model.EnvironmentLabel(env)),
		),
	)
}

// endQuerySpan closes span and records the read's metrics.
func endQuerySpan(ctx context.Context, span trace.Span, queryType string, start time.Time, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
	recordQueryMetrics(ctx, queryType, time.Since(start), err)
}
