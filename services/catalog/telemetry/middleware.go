// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// HTTPMetrics holds the request instruments recorded by Middleware.
//
// Thread Safety: Safe for concurrent use after creation.
type HTTPMetrics struct {
	// RequestsTotal counts requests by method, route and status.
	RequestsTotal metric.Int64Counter

	// RequestDuration records request duration in seconds.
	RequestDuration metric.Float64Histogram

	// ActiveRequests tracks in-flight requests.
	ActiveRequests metric.Int64UpDownCounter
}

// NewHTTPMetrics creates the request instruments on meter.
func NewHTTPMetrics(meter metric.Meter) (*HTTPMetrics, error) {
	requests, err := meter.Int64Counter(
		"catalog_http_requests_total",
		metric.WithDescription("HTTP requests by method, route and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create requests counter: %w", err)
	}
	duration, err := meter.Float64Histogram(
		"catalog_http_request_duration_seconds",
		metric.WithDescription("HTTP request duration"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	active, err := meter.Int64UpDownCounter(
		"catalog_http_active_requests",
		metric.WithDescription("In-flight HTTP requests"),
	)
	if err != nil {
		return nil, fmt.Errorf("create active gauge: %w", err)
	}
	return &HTTPMetrics{RequestsTotal: requests, RequestDuration: duration, ActiveRequests: active}, nil
}

// Middleware records request metrics and tags the active span with the
// matched route and request id.
//
// Description:
//
//	The route label is gin's FullPath (e.g. /api/v1/services/:id) so that
//	ids do not explode label cardinality. Unmatched requests use "unmatched".
//	Install after otelgin.Middleware so the server span already exists.
func Middleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		start := time.Now()

		m.ActiveRequests.Add(ctx, 1)
		defer m.ActiveRequests.Add(ctx, -1)

		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()

		if span := trace.SpanFromContext(ctx); span.SpanContext().IsValid() {
			span.SetAttributes(
				attribute.String("http.route", route),
				attribute.String("catalog.request_id", c.Writer.Header().Get("X-Request-ID")),
			)
		}

		attrs := metric.WithAttributes(
			attribute.String("method", c.Request.Method),
			attribute.String("route", route),
			attribute.Int("status", status),
		)
		m.RequestsTotal.Add(ctx, 1, attrs)
		m.RequestDuration.Record(ctx, time.Since(start).Seconds(), attrs)
	}
}
