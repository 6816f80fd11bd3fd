// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package observability provides Prometheus metrics for catalog domain
// events.
//
// # Description
//
// HTTP latency and traces are handled by the telemetry package through
// OpenTelemetry. This package counts what the catalog itself decides:
//   - Registry operations by kind, operation and result
//   - Link attempts by edge kind and result (including cycle rejections)
//   - Cycle check cost (duration, services visited)
//   - OpenAPI imports and dropped change events
//
// # Thread Safety
//
// All metric operations are thread-safe via Prometheus's internal locking.
package observability

import (
	"errors"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

// =============================================================================
// Metric Definitions
// =============================================================================

const metricsNamespace = "catalog"

const (
	registrySubsystem  = "registry"
	relationsSubsystem = "relations"
	openapiSubsystem   = "openapi"
	eventsSubsystem    = "events"
)

// Result labels.
const (
	ResultSuccess  = "success"
	ResultNotFound = "not_found"
	ResultConflict = "conflict"
	ResultInvalid  = "invalid"
	ResultCycle    = "cycle"
	ResultError    = "error"
)

// Metrics holds the catalog's Prometheus collectors.
type Metrics struct {
	// RegistryOpsTotal counts registry calls.
	// Labels: kind, op (create, update, delete, upsert), result
	RegistryOpsTotal *prometheus.CounterVec

	// LinksTotal counts link attempts.
	// Labels: kind (edge kind), result
	LinksTotal *prometheus.CounterVec

	// UnlinksTotal counts unlink attempts.
	// Labels: kind, result
	UnlinksTotal *prometheus.CounterVec

	// CycleCheckSeconds measures the acyclicity walk.
	CycleCheckSeconds prometheus.Histogram

	// CycleCheckVisited records services visited per walk.
	CycleCheckVisited prometheus.Histogram

	// OpenAPIImportsTotal counts ingestion runs.
	// Labels: source (url, file), result
	OpenAPIImportsTotal *prometheus.CounterVec

	// OpenAPIEndpointsTotal counts endpoints written by ingestion.
	OpenAPIEndpointsTotal prometheus.Counter

	// EventsDroppedTotal counts change events dropped for slow subscribers.
	EventsDroppedTotal prometheus.Counter
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the process-wide metrics registered on the default
// Prometheus registry.
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New creates and registers the catalog metrics on reg.
//
// # Description
//
// Use prometheus.NewRegistry() in tests to avoid duplicate registration on
// the default registry.
//
// # Limitations
//
//   - Panics if called twice with the same registerer.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		RegistryOpsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: registrySubsystem,
				Name:      "operations_total",
				Help:      "Registry operations by entity kind, operation and result",
			},
			[]string{"kind", "op", "result"},
		),

		LinksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relationsSubsystem,
				Name:      "links_total",
				Help:      "Link attempts by edge kind and result",
			},
			[]string{"kind", "result"},
		),

		UnlinksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: relationsSubsystem,
				Name:      "unlinks_total",
				Help:      "Unlink attempts by edge kind and result",
			},
			[]string{"kind", "result"},
		),

		CycleCheckSeconds: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: relationsSubsystem,
				Name:      "cycle_check_seconds",
				Help:      "Duration of service dependency cycle checks",
				Buckets:   []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
			},
		),

		CycleCheckVisited: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: metricsNamespace,
				Subsystem: relationsSubsystem,
				Name:      "cycle_check_visited_services",
				Help:      "Services visited per cycle check",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
			},
		),

		OpenAPIImportsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: openapiSubsystem,
				Name:      "imports_total",
				Help:      "OpenAPI imports by source and result",
			},
			[]string{"source", "result"},
		),

		OpenAPIEndpointsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: openapiSubsystem,
				Name:      "endpoints_imported_total",
				Help:      "Endpoints created by OpenAPI imports",
			},
		),

		EventsDroppedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: metricsNamespace,
				Subsystem: eventsSubsystem,
				Name:      "dropped_total",
				Help:      "Change events dropped because a subscriber was slow",
			},
		),
	}
}

// Result maps an operation error to a result label.
func Result(err error) string {
	switch {
	case err == nil:
		return ResultSuccess
	case errors.Is(err, model.ErrCycleDetected):
		return ResultCycle
	case errors.Is(err, model.ErrNotFound):
		return ResultNotFound
	case errors.Is(err, model.ErrConflict):
		return ResultConflict
	case errors.Is(err, model.ErrInvalidRequest):
		return ResultInvalid
	default:
		return ResultError
	}
}

// ObserveLink records a link attempt. Nil receivers are ignored.
func (m *Metrics) ObserveLink(kind model.Kind, err error) {
	if m == nil {
		return
	}
	m.LinksTotal.WithLabelValues(string(kind), Result(err)).Inc()
}

// ObserveUnlink records an unlink attempt. Nil receivers are ignored.
func (m *Metrics) ObserveUnlink(kind model.Kind, err error) {
	if m == nil {
		return
	}
	m.UnlinksTotal.WithLabelValues(string(kind), Result(err)).Inc()
}

// ObserveRegistry records a registry operation. Nil receivers are ignored.
func (m *Metrics) ObserveRegistry(kind model.Kind, op string, err error) {
	if m == nil {
		return
	}
	m.RegistryOpsTotal.WithLabelValues(string(kind), op, Result(err)).Inc()
}
