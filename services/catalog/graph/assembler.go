// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package graph assembles read-only dependency graph views of the catalog.
//
// # Description
//
// The Assembler composes relationship engine listings with registry
// lookups into four views: the global service graph, a single service's
// neighborhood, a single service's external dependency detail, and a
// single endpoint's dependency and database detail. It also derives a
// providers-first ordering of one environment scope.
//
// Every view is recomputed from the store on each call. Concurrent
// identical GlobalGraph calls share one in-flight computation; nothing is
// retained once it returns.
//
// # Thread Safety
//
// Assembler is safe for concurrent use.
package graph

import (
	"context"
	"errors"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/registry"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/relations"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

const (
	// DefaultFanOut bounds concurrent per-endpoint lookups in ServiceDetail.
	DefaultFanOut = 8

	// DefaultBuildTimeout bounds a shared GlobalGraph computation.
	DefaultBuildTimeout = 30 * time.Second
)

// Assembler builds graph views.
type Assembler struct {
	registry     *registry.Registry
	relations    *relations.Engine
	logger       *slog.Logger
	now          func() time.Time
	fanOut       int
	buildTimeout time.Duration
	flight       singleflight.Group
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(a *Assembler) { a.logger = l }
}

// WithClock sets the clock used for GeneratedAt.
func WithClock(now func() time.Time) Option {
	return func(a *Assembler) { a.now = now }
}

// WithFanOut bounds concurrent per-endpoint lookups. Values below 1 are
// ignored.
func WithFanOut(n int) Option {
	return func(a *Assembler) {
		if n >= 1 {
			a.fanOut = n
		}
	}
}

// WithBuildTimeout bounds a shared GlobalGraph computation, which outlives
// the cancellation of any single caller. Non-positive values are ignored.
func WithBuildTimeout(d time.Duration) Option {
	return func(a *Assembler) {
		if d > 0 {
			a.buildTimeout = d
		}
	}
}

// New creates an Assembler. reg and rel must share one store.
func New(reg *registry.Registry, rel *relations.Engine, opts ...Option) *Assembler {
	a := &Assembler{
		registry:     reg,
		relations:    rel,
		logger:       slog.Default(),
		now:          func() time.Time { return time.Now().UTC() },
		fanOut:       DefaultFanOut,
		buildTimeout: DefaultBuildTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.With("component", "graph")
	return a
}

// =============================================================================
// Global graph
// =============================================================================

// GlobalGraph returns every service as a node and the service edges in
// scope.
//
// Description:
//
//	With env nil every service edge is returned; otherwise only edges whose
//	environment equals env. The node set is always the full catalog, so a
//	service with no edges in scope appears as an isolated node. Each node
//	lists the external dependencies it declares in the same scope.
//	Concurrent calls for the same scope share one computation, and the
//	returned graph must be treated as read-only. The shared computation
//	runs detached from every caller's cancellation, bounded by the build
//	timeout; a caller whose ctx ends stops waiting without failing the
//	others. All reads come from one store snapshot, so every edge endpoint
//	is among the nodes.
//
// Outputs:
//
//	*GlobalGraph - Nodes and edges in insertion order.
//	error - InvalidRequestError for a blank env, or a store failure.
func (a *Assembler) GlobalGraph(ctx context.Context, env *string) (g *GlobalGraph, err error) {
	if err := checkFilter(env); err != nil {
		return nil, err
	}
	ctx, span := startQuerySpan(ctx, "GlobalGraph", "", env)
	start := time.Now()
	defer func() { endQuerySpan(ctx, span, "GlobalGraph", start, err) }()

	key := "global"
	if env != nil {
		key += "@" + *env
	}
	results := a.flight.DoChan(key, func() (any, error) {
		bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.buildTimeout)
		defer cancel()
		return a.buildGlobal(bctx, env)
	})
	select {
	case <-ctx.Done():
		return nil, model.StoreFailure("global graph", ctx.Err())
	case res := <-results:
		if res.Err != nil {
			return nil, res.Err
		}
		g = res.Val.(*GlobalGraph)
		recordGraphSize(ctx, len(g.Nodes), len(g.Edges), res.Shared)
		return g, nil
	}
}

// snapshot runs fn with a registry and engine bound to one read-only view
// of the store.
func (a *Assembler) snapshot(ctx context.Context, fn func(ctx context.Context, reg *registry.Registry, rel *relations.Engine) error) error {
	return a.registry.Store().Snapshot(ctx, func(ctx context.Context, tx store.Store) error {
		return fn(ctx, a.registry.Bind(tx), a.relations.Bind(tx))
	})
}

func (a *Assembler) buildGlobal(ctx context.Context, env *string) (*GlobalGraph, error) {
	var (
		services []*model.Service
		links    []*model.ServiceToServiceDependency
		declared []*model.ServiceDependency
		deps     []*model.Dependency
	)

	// Sequential: a snapshot view is not safe for concurrent use.
	err := a.snapshot(ctx, func(ctx context.Context, reg *registry.Registry, rel *relations.Engine) (err error) {
		if services, err = reg.ListServices(ctx, registry.ServiceFilter{}); err != nil {
			return err
		}
		if links, err = rel.ListAllServiceLinks(ctx, env); err != nil {
			return err
		}
		if declared, err = rel.ListAllServiceDependencies(ctx, env); err != nil {
			return err
		}
		deps, err = reg.ListDependencies(ctx, registry.DependencyFilter{})
		return err
	})
	if err != nil {
		return nil, err
	}

	depByID := make(map[string]*model.Dependency, len(deps))
	for _, d := range deps {
		depByID[d.ID] = d
	}
	declaredBy := make(map[string][]model.DependencyInfo)
	for _, sd := range declared {
		if d, ok := depByID[sd.DependencyID]; ok {
			declaredBy[sd.ServiceID] = append(declaredBy[sd.ServiceID], d.Info())
		}
	}

	out := &GlobalGraph{
		Nodes: make([]ServiceNode, 0, len(services)),
		Edges: make([]ServiceEdge, 0, len(links)),
	}
	for _, s := range services {
		infos := declaredBy[s.ID]
		if infos == nil {
			infos = []model.DependencyInfo{}
		}
		out.Nodes = append(out.Nodes, ServiceNode{
			ID:           s.ID,
			Name:         s.Name,
			Type:         NodeTypeService,
			ServiceType:  s.ServiceType,
			Owner:        s.Owner,
			Tags:         s.Tags,
			Description:  s.Description,
			Dependencies: infos,
		})
	}
	for _, l := range links {
		out.Edges = append(out.Edges, ServiceEdge{
			ID:              l.ID,
			From:            l.ConsumerServiceID,
			To:              l.ProviderServiceID,
			Type:            EdgeTypeServiceService,
			DependencyType:  l.DependencyType,
			EnvironmentCode: l.EnvironmentCode,
			Description:     l.Description,
		})
	}
	out.Metadata = Metadata{
		TotalServices: len(out.Nodes),
		TotalEdges:    len(out.Edges),
		Environment:   model.CloneEnvironment(env),
		GeneratedAt:   a.now(),
	}
	a.logger.Debug("global graph assembled",
		"environment", model.EnvironmentLabel(env),
		"nodes", len(out.Nodes), "edges", len(out.Edges))
	return out, nil
}

// =============================================================================
// Single service views
// =============================================================================

// ServiceNeighborhood returns the direct providers (dependencies) and
// consumers (dependents) of a service. A nil env includes every scope.
func (a *Assembler) ServiceNeighborhood(ctx context.Context, serviceID string, env *string) (n *Neighborhood, err error) {
	if err := checkFilter(env); err != nil {
		return nil, err
	}
	ctx, span := startQuerySpan(ctx, "ServiceNeighborhood", serviceID, env)
	start := time.Now()
	defer func() { endQuerySpan(ctx, span, "ServiceNeighborhood", start, err) }()

	svc, err := a.registry.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	var outgoing, incoming []relations.ServiceLink
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		outgoing, err = a.relations.ListServiceLinks(gctx, serviceID, relations.Outgoing, env)
		return err
	})
	g.Go(func() (err error) {
		incoming, err = a.relations.ListServiceLinks(gctx, serviceID, relations.Incoming, env)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	n = &Neighborhood{
		ServiceID:    svc.ID,
		ServiceName:  svc.Name,
		Dependencies: make([]LinkView, 0, len(outgoing)),
		Dependents:   make([]LinkView, 0, len(incoming)),
	}
	for _, l := range outgoing {
		n.Dependencies = append(n.Dependencies, NewLinkView(l.Edge, svc, l.Counterpart))
	}
	for _, l := range incoming {
		n.Dependents = append(n.Dependents, NewLinkView(l.Edge, l.Counterpart, svc))
	}
	return n, nil
}

// ServiceDetail returns a service's declared external dependencies and
// the dependencies of each of its endpoints, flattened in endpoint order.
func (a *Assembler) ServiceDetail(ctx context.Context, serviceID string) (d *ServiceDetail, err error) {
	ctx, span := startQuerySpan(ctx, "ServiceDetail", serviceID, nil)
	start := time.Now()
	defer func() { endQuerySpan(ctx, span, "ServiceDetail", start, err) }()

	svc, err := a.registry.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	var (
		declared  []relations.ServiceDependencyView
		endpoints []*model.Endpoint
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		declared, err = a.relations.ListServiceDependencies(gctx, serviceID, nil)
		return err
	})
	g.Go(func() (err error) {
		endpoints, err = a.registry.ListEndpoints(gctx, serviceID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	perEndpoint := make([][]relations.EndpointDependencyView, len(endpoints))
	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(a.fanOut)
	for i, ep := range endpoints {
		g.Go(func() error {
			views, err := a.relations.ListEndpointDependencies(gctx, ep.ID)
			if errors.Is(err, model.ErrNotFound) {
				// Endpoint deleted after it was listed.
				return nil
			}
			perEndpoint[i] = views
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d = &ServiceDetail{
		ServiceID:            svc.ID,
		ServiceName:          svc.Name,
		ServiceDependencies:  make([]model.DependencyInfo, 0, len(declared)),
		EndpointDependencies: []EndpointDependencyInfo{},
	}
	for _, v := range declared {
		d.ServiceDependencies = append(d.ServiceDependencies, v.Dependency.Info())
	}
	for i, ep := range endpoints {
		for _, v := range perEndpoint[i] {
			d.EndpointDependencies = append(d.EndpointDependencies, EndpointDependencyInfo{
				EndpointID:     ep.ID,
				EndpointPath:   ep.Path,
				EndpointMethod: ep.Method,
				Dependency:     v.Dependency.Info(),
			})
		}
	}
	return d, nil
}

// EndpointDetail returns an endpoint's dependencies and databases with
// the referenced entities embedded.
func (a *Assembler) EndpointDetail(ctx context.Context, endpointID string) (d *EndpointDetail, err error) {
	ctx, span := startQuerySpan(ctx, "EndpointDetail", endpointID, nil)
	start := time.Now()
	defer func() { endQuerySpan(ctx, span, "EndpointDetail", start, err) }()

	ep, err := a.registry.GetEndpoint(ctx, endpointID)
	if err != nil {
		return nil, err
	}

	var (
		deps []relations.EndpointDependencyView
		dbs  []relations.EndpointDatabaseView
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		deps, err = a.relations.ListEndpointDependencies(gctx, endpointID)
		return err
	})
	g.Go(func() (err error) {
		dbs, err = a.relations.ListEndpointDatabases(gctx, endpointID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	d = &EndpointDetail{
		EndpointID:   ep.ID,
		Path:         ep.Path,
		Method:       ep.Method,
		Summary:      ep.Summary,
		Dependencies: make([]model.DependencyInfo, 0, len(deps)),
		Databases:    make([]model.DatabaseInfo, 0, len(dbs)),
	}
	for _, v := range deps {
		d.Dependencies = append(d.Dependencies, v.Dependency.Info())
	}
	for _, v := range dbs {
		d.Databases = append(d.Databases, v.Database.Info())
	}
	return d, nil
}

// =============================================================================
// Ordering
// =============================================================================

// TopologicalOrder returns the services of one environment scope ordered
// providers first, so every service appears after everything it depends
// on. Scoping is exact: a nil env selects only edges without an
// environment. Services with no edges in scope are included. Ties keep
// service insertion order.
func (a *Assembler) TopologicalOrder(ctx context.Context, env *string) (o *Order, err error) {
	if err := checkFilter(env); err != nil {
		return nil, err
	}
	ctx, span := startQuerySpan(ctx, "TopologicalOrder", "", env)
	start := time.Now()
	defer func() { endQuerySpan(ctx, span, "TopologicalOrder", start, err) }()

	var (
		services []*model.Service
		links    []*model.ServiceToServiceDependency
	)
	err = a.snapshot(ctx, func(ctx context.Context, reg *registry.Registry, rel *relations.Engine) (err error) {
		if services, err = reg.ListServices(ctx, registry.ServiceFilter{}); err != nil {
			return err
		}
		links, err = rel.ListAllServiceLinks(ctx, nil)
		return err
	})
	if err != nil {
		return nil, err
	}

	sorted, ok := kahn(services, links, env)
	if !ok {
		// Only reachable if the store was written around the engine.
		return nil, model.NewInvalidRequest("service graph in " + model.EnvironmentLabel(env) + " contains a cycle")
	}
	o = &Order{Environment: model.CloneEnvironment(env), Services: make([]model.ServiceSummary, 0, len(sorted))}
	for _, s := range sorted {
		o.Services = append(o.Services, s.Summary())
	}
	return o, nil
}

// kahn orders services providers-first using the edges of one scope. It
// reports false if the scope contains a cycle.
func kahn(services []*model.Service, links []*model.ServiceToServiceDependency, env *string) ([]*model.Service, bool) {
	index := make(map[string]int, len(services))
	for i, s := range services {
		index[s.ID] = i
	}

	// pending[c] counts the distinct providers of c not yet emitted.
	pending := make([]int, len(services))
	consumers := make([][]int, len(services))
	seen := make(map[[2]int]bool)
	for _, l := range links {
		if !model.SameEnvironment(l.EnvironmentCode, env) {
			continue
		}
		c, okC := index[l.ConsumerServiceID]
		p, okP := index[l.ProviderServiceID]
		if !okC || !okP || seen[[2]int{c, p}] {
			continue
		}
		seen[[2]int{c, p}] = true
		pending[c]++
		consumers[p] = append(consumers[p], c)
	}

	var ready []int
	for i := range services {
		if pending[i] == 0 {
			ready = append(ready, i)
		}
	}

	out := make([]*model.Service, 0, len(services))
	for len(ready) > 0 {
		next := ready[0]
		ready = ready[1:]
		out = append(out, services[next])
		for _, c := range consumers[next] {
			pending[c]--
			if pending[c] == 0 {
				pos, _ := slices.BinarySearch(ready, c)
				ready = slices.Insert(ready, pos, c)
			}
		}
	}
	return out, len(out) == len(services)
}

func checkFilter(env *string) error {
	if env != nil && strings.TrimSpace(*env) == "" {
		return model.NewInvalidRequest("environment filter must not be blank")
	}
	return nil
}
