// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package catalog provides the service catalog HTTP service.
//
// The service exposes endpoints for:
//   - Registering services, environments, dependencies, databases and endpoints
//   - Linking them into a dependency graph with cycle protection
//   - Reading the graph globally, per service and per endpoint
//   - Importing and generating OpenAPI documents
//   - Streaming change events over a websocket
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/events"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/graph"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/observability"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/openapi"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/registry"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/relations"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

// ServiceVersion is the catalog service version.
const ServiceVersion = "1.0.0"

// ServiceConfig configures the catalog service.
type ServiceConfig struct {
	// EventBuffer is the per-subscriber change event buffer.
	// Default: 64
	EventBuffer int

	// GraphFanOut bounds concurrent per-endpoint reads in graph views.
	// Default: graph.DefaultFanOut
	GraphFanOut int

	// Loader holds options for the OpenAPI loader (fetch timeout, rate
	// limit, size cap).
	Loader []openapi.Option
}

// DefaultServiceConfig returns sensible defaults.
func DefaultServiceConfig() ServiceConfig {
	return ServiceConfig{
		EventBuffer: 64,
		GraphFanOut: graph.DefaultFanOut,
	}
}

// Service composes the catalog components over one record store.
//
// Thread Safety:
//
//	Service is safe for concurrent use. It holds no request state; every
//	component it exposes is itself safe for concurrent use.
type Service struct {
	Store     store.Store
	Registry  *registry.Registry
	Relations *relations.Engine
	Graph     *graph.Assembler
	Loader    *openapi.Loader
	Events    *events.Hub

	startedAt time.Time
}

// NewService wires the registry, relationship engine, graph assembler and
// OpenAPI loader over s.
//
// Description:
//
//	All components share one change event hub and one set of Prometheus
//	collectors. Events dropped for slow subscribers are counted on
//	metrics. A nil metrics disables domain counters.
//
// Inputs:
//
//	s - The record store.
//	config - Service configuration.
//	metrics - Domain collectors, may be nil.
//	logger - Base logger; components add their own "component" attribute.
//
// Outputs:
//
//	*Service - Ready for use.
func NewService(s store.Store, config ServiceConfig, metrics *observability.Metrics, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if config.EventBuffer <= 0 {
		config.EventBuffer = DefaultServiceConfig().EventBuffer
	}

	hub := events.NewHub(config.EventBuffer)
	if metrics != nil {
		hub.OnDrop(func() { metrics.EventsDroppedTotal.Inc() })
	}

	reg := registry.New(s,
		registry.WithEvents(hub),
		registry.WithMetrics(metrics),
		registry.WithLogger(logger),
	)
	rel := relations.New(s, reg,
		relations.WithEvents(hub),
		relations.WithMetrics(metrics),
		relations.WithLogger(logger),
	)
	graphOpts := []graph.Option{graph.WithLogger(logger)}
	if config.GraphFanOut > 0 {
		graphOpts = append(graphOpts, graph.WithFanOut(config.GraphFanOut))
	}
	loaderOpts := append([]openapi.Option{
		openapi.WithMetrics(metrics),
		openapi.WithLogger(logger),
	}, config.Loader...)

	return &Service{
		Store:     s,
		Registry:  reg,
		Relations: rel,
		Graph:     graph.New(reg, rel, graphOpts...),
		Loader:    openapi.NewLoader(reg, loaderOpts...),
		Events:    hub,
		startedAt: time.Now(),
	}
}

// Uptime returns how long the service has been running.
func (s *Service) Uptime() time.Duration {
	return time.Since(s.startedAt)
}

// Ping checks that the record store answers a read.
func (s *Service) Ping(ctx context.Context) error {
	_, err := s.Registry.CountServices(ctx)
	return err
}

// =============================================================================
// Endpoints with inline relations
// =============================================================================

// EndpointCreate is a new endpoint plus the dependencies it calls and the
// databases it touches.
type EndpointCreate struct {
	Endpoint  registry.EndpointInput
	Calls     []relations.EndpointDependencyInput
	Databases []relations.EndpointDatabaseInput
}

// EndpointView is an endpoint with its relations hydrated.
type EndpointView struct {
	Endpoint  *model.Endpoint
	Calls     []relations.EndpointDependencyView
	Databases []relations.EndpointDatabaseView
}

// CreateEndpoint creates an endpoint and links its inline calls and
// databases.
//
// Description:
//
//	Every referenced dependency and database is checked before the
//	endpoint is written, so an unknown reference creates nothing. If a
//	link still fails afterwards (a concurrent delete, a repeated
//	reference) the endpoint is deleted again, cascading any links already
//	made, and the link error is returned.
//
// Outputs:
//
//	*EndpointView - The endpoint with the links that were made.
//	error - NotFoundError, ConflictError, InvalidRequestError, or a store failure.
func (s *Service) CreateEndpoint(ctx context.Context, serviceID string, in EndpointCreate) (*EndpointView, error) {
	for _, call := range in.Calls {
		if err := s.Registry.RequireExists(ctx, nil, model.KindDependency, call.DependencyID); err != nil {
			return nil, err
		}
	}
	for _, db := range in.Databases {
		if err := s.Registry.RequireExists(ctx, nil, model.KindDatabase, db.DatabaseID); err != nil {
			return nil, err
		}
	}

	ep, err := s.Registry.CreateEndpoint(ctx, serviceID, in.Endpoint)
	if err != nil {
		return nil, err
	}

	if err := s.linkInline(ctx, ep.ID, in); err != nil {
		if derr := s.Registry.DeleteEndpoint(context.WithoutCancel(ctx), ep.ID); derr != nil {
			return nil, errors.Join(err, fmt.Errorf("roll back endpoint %s: %w", ep.ID, derr))
		}
		return nil, err
	}
	return s.EndpointView(ctx, ep.ID)
}

func (s *Service) linkInline(ctx context.Context, endpointID string, in EndpointCreate) error {
	for _, call := range in.Calls {
		call.EndpointID = endpointID
		if _, err := s.Relations.LinkEndpointDependency(ctx, call); err != nil {
			return err
		}
	}
	for _, db := range in.Databases {
		db.EndpointID = endpointID
		if _, err := s.Relations.LinkEndpointDatabase(ctx, db); err != nil {
			return err
		}
	}
	return nil
}

// EndpointView returns an endpoint with its calls and databases.
func (s *Service) EndpointView(ctx context.Context, endpointID string) (*EndpointView, error) {
	ep, err := s.Registry.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	calls, err := s.Relations.ListEndpointDependencies(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	dbs, err := s.Relations.ListEndpointDatabases(ctx, endpointID)
	if err != nil {
		return nil, err
	}
	return &EndpointView{Endpoint: ep, Calls: calls, Databases: dbs}, nil
}

// =============================================================================
// Service dependency edges addressed by dependency
// =============================================================================

// FindServiceDependency returns the (service, dependency, env) edge. env
// matches exactly; nil selects the unscoped edge.
func (s *Service) FindServiceDependency(ctx context.Context, serviceID, dependencyID string, env *string) (*model.ServiceDependency, error) {
	views, err := s.Relations.ListServiceDependencies(ctx, serviceID, nil)
	if err != nil {
		return nil, err
	}
	for _, v := range views {
		if v.Edge.DependencyID == dependencyID && model.SameEnvironment(v.Edge.EnvironmentCode, env) {
			return v.Edge, nil
		}
	}
	return nil, model.NewNotFound(model.KindServiceDependency, serviceID+"->"+dependencyID+"@"+model.EnvironmentLabel(env))
}
