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
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/registry"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/relations"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type testCatalog struct {
	reg *registry.Registry
	rel *relations.Engine
	asm *Assembler
}

func newTestCatalog(t *testing.T) *testCatalog {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	reg := registry.New(s)
	rel := relations.New(s, reg)
	return &testCatalog{
		reg: reg,
		rel: rel,
		asm: New(reg, rel, WithClock(func() time.Time { return fixedNow })),
	}
}

func (c *testCatalog) service(t *testing.T, name string) *model.Service {
	t.Helper()
	svc, err := c.reg.CreateService(context.Background(), registry.ServiceInput{
		Name:        name,
		Owner:       "team-" + name,
		Tags:        []string{"tier1"},
		ServiceType: model.ServiceTypeApplication,
	})
	require.NoError(t, err)
	return svc
}

func (c *testCatalog) link(t *testing.T, consumer, provider *model.Service, env *string) {
	t.Helper()
	_, err := c.rel.LinkServices(context.Background(), relations.ServiceLinkInput{
		ConsumerID:  consumer.ID,
		ProviderID:  provider.ID,
		Environment: env,
	})
	require.NoError(t, err)
}

func (c *testCatalog) dependency(t *testing.T, name, version string) *model.Dependency {
	t.Helper()
	dep, err := c.reg.CreateDependency(context.Background(), registry.DependencyInput{
		Name:           name,
		Version:        version,
		DependencyType: model.DependencyTypeCache,
	})
	require.NoError(t, err)
	return dep
}

func TestGlobalGraph(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	checkout := c.service(t, "checkout")
	inventory := c.service(t, "inventory")
	payments := c.service(t, "payments")
	c.service(t, "isolated")

	c.link(t, checkout, inventory, nil)
	c.link(t, checkout, payments, model.Env("prod"))
	c.link(t, inventory, payments, model.Env("prod"))

	redis := c.dependency(t, "redis", "7.2.0")
	_, err := c.rel.LinkServiceDependency(ctx, relations.ServiceDependencyInput{
		ServiceID: checkout.ID, DependencyID: redis.ID, Environment: model.Env("prod"),
	})
	require.NoError(t, err)

	all, err := c.asm.GlobalGraph(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all.Nodes, 4)
	assert.Len(t, all.Edges, 3)
	assert.Equal(t, 4, all.Metadata.TotalServices)
	assert.Equal(t, 3, all.Metadata.TotalEdges)
	assert.Equal(t, fixedNow, all.Metadata.GeneratedAt)
	assert.Equal(t, checkout.ID, all.Edges[0].From)
	assert.Equal(t, inventory.ID, all.Edges[0].To)
	assert.Equal(t, EdgeTypeServiceService, all.Edges[0].Type)

	require.Len(t, all.Nodes[0].Dependencies, 1)
	assert.Equal(t, "redis", all.Nodes[0].Dependencies[0].Name)
	assert.Equal(t, "7.2.0", all.Nodes[0].Dependencies[0].Version)
	assert.Empty(t, all.Nodes[1].Dependencies)

	prod, err := c.asm.GlobalGraph(ctx, model.Env("prod"))
	require.NoError(t, err)
	assert.Len(t, prod.Nodes, 4, "node set is the full catalog")
	assert.Len(t, prod.Edges, 2)

	dev, err := c.asm.GlobalGraph(ctx, model.Env("dev"))
	require.NoError(t, err)
	assert.Len(t, dev.Nodes, 4)
	assert.Empty(t, dev.Edges)
	assert.Empty(t, dev.Nodes[0].Dependencies)
}

func TestGlobalGraph_BlankFilter(t *testing.T) {
	c := newTestCatalog(t)
	_, err := c.asm.GlobalGraph(context.Background(), model.Env(""))
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestGlobalGraph_ConcurrentCallers(t *testing.T) {
	c := newTestCatalog(t)
	a, b := c.service(t, "a"), c.service(t, "b")
	c.link(t, a, b, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			g, err := c.asm.GlobalGraph(context.Background(), nil)
			assert.NoError(t, err)
			if err == nil {
				assert.Len(t, g.Edges, 1)
			}
		}()
	}
	wg.Wait()
}

// scanGate holds the first SERVICE scan until release is closed or the
// scan's ctx ends.
type scanGate struct {
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func newScanGate() *scanGate {
	return &scanGate{entered: make(chan struct{}), release: make(chan struct{})}
}

type gatedStore struct {
	store.Store
	gate *scanGate
}

func (s *gatedStore) Scan(ctx context.Context, kind model.Kind, fn func(raw []byte) error) error {
	if kind == model.KindService {
		first := false
		s.gate.once.Do(func() { first = true })
		if first {
			close(s.gate.entered)
			select {
			case <-s.gate.release:
			case <-ctx.Done():
				return model.StoreFailure("scan", ctx.Err())
			}
		}
	}
	return s.Store.Scan(ctx, kind, fn)
}

func (s *gatedStore) Snapshot(ctx context.Context, fn func(ctx context.Context, tx store.Store) error) error {
	return s.Store.Snapshot(ctx, func(ctx context.Context, tx store.Store) error {
		return fn(ctx, &gatedStore{Store: tx, gate: s.gate})
	})
}

// gated returns an assembler over the same catalog whose first service
// scan waits on gate.
func (c *testCatalog) gated(gate *scanGate) *Assembler {
	gs := &gatedStore{Store: c.reg.Store(), gate: gate}
	return New(c.reg.Bind(gs), c.rel.Bind(gs), WithClock(func() time.Time { return fixedNow }))
}

type graphResult struct {
	g   *GlobalGraph
	err error
}

func awaitGraph(t *testing.T, ch <-chan graphResult) graphResult {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("GlobalGraph did not return")
		return graphResult{}
	}
}

func TestGlobalGraph_CancelledCallerLeavesOthers(t *testing.T) {
	c := newTestCatalog(t)
	a, b := c.service(t, "a"), c.service(t, "b")
	c.link(t, a, b, nil)
	gate := newScanGate()
	asm := c.gated(gate)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()
	first := make(chan graphResult, 1)
	go func() {
		g, err := asm.GlobalGraph(ctxA, nil)
		first <- graphResult{g, err}
	}()
	<-gate.entered

	second := make(chan graphResult, 1)
	go func() {
		g, err := asm.GlobalGraph(context.Background(), nil)
		second <- graphResult{g, err}
	}()
	// Let the second caller join the in-flight build.
	time.Sleep(50 * time.Millisecond)

	cancelA()
	r := awaitGraph(t, first)
	assert.ErrorIs(t, r.err, context.Canceled)

	close(gate.release)
	r = awaitGraph(t, second)
	require.NoError(t, r.err)
	assert.Len(t, r.g.Nodes, 2)
	assert.Len(t, r.g.Edges, 1)
}

func TestGlobalGraph_ReadsOneSnapshot(t *testing.T) {
	c := newTestCatalog(t)
	a, b := c.service(t, "a"), c.service(t, "b")
	c.link(t, a, b, nil)
	gate := newScanGate()
	asm := c.gated(gate)

	done := make(chan graphResult, 1)
	go func() {
		g, err := asm.GlobalGraph(context.Background(), nil)
		done <- graphResult{g, err}
	}()
	<-gate.entered

	// Written while the build is paused inside its snapshot.
	late := c.service(t, "late")
	c.link(t, late, a, nil)
	close(gate.release)

	r := awaitGraph(t, done)
	require.NoError(t, r.err)
	require.Len(t, r.g.Nodes, 2)
	require.Len(t, r.g.Edges, 1)
	ids := map[string]bool{}
	for _, n := range r.g.Nodes {
		ids[n.ID] = true
	}
	for _, e := range r.g.Edges {
		assert.True(t, ids[e.From], "edge source %s missing from nodes", e.From)
		assert.True(t, ids[e.To], "edge target %s missing from nodes", e.To)
	}

	// A fresh call sees the later writes.
	g, err := c.asm.GlobalGraph(context.Background(), nil)
	require.NoError(t, err)
	assert.Len(t, g.Nodes, 3)
	assert.Len(t, g.Edges, 2)
}

func TestNeighborhoodSumsToTwiceEdgeCount(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	svcs := make([]*model.Service, 6)
	for i := range svcs {
		svcs[i] = c.service(t, fmt.Sprintf("svc-%d", i))
	}
	c.link(t, svcs[0], svcs[1], nil)
	c.link(t, svcs[0], svcs[2], nil)
	c.link(t, svcs[1], svcs[3], model.Env("prod"))
	c.link(t, svcs[2], svcs[3], nil)
	c.link(t, svcs[3], svcs[4], model.Env("dev"))
	c.link(t, svcs[4], svcs[1], model.Env("prod"))

	global, err := c.asm.GlobalGraph(ctx, nil)
	require.NoError(t, err)

	total := 0
	for _, s := range svcs {
		n, err := c.asm.ServiceNeighborhood(ctx, s.ID, nil)
		require.NoError(t, err)
		total += len(n.Dependencies) + len(n.Dependents)
	}
	assert.Equal(t, 2*len(global.Edges), total)
}

func TestServiceNeighborhood(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	checkout := c.service(t, "checkout")
	inventory := c.service(t, "inventory")
	web := c.service(t, "web")

	c.link(t, checkout, inventory, nil)
	c.link(t, web, checkout, model.Env("prod"))

	n, err := c.asm.ServiceNeighborhood(ctx, checkout.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, "checkout", n.ServiceName)
	require.Len(t, n.Dependencies, 1)
	assert.Equal(t, "inventory", n.Dependencies[0].ProviderService.Name)
	assert.Equal(t, "checkout", n.Dependencies[0].ConsumerService.Name)
	require.Len(t, n.Dependents, 1)
	assert.Equal(t, "web", n.Dependents[0].ConsumerService.Name)
	assert.Equal(t, "team-web", n.Dependents[0].ConsumerService.Owner)

	prod, err := c.asm.ServiceNeighborhood(ctx, checkout.ID, model.Env("prod"))
	require.NoError(t, err)
	assert.Empty(t, prod.Dependencies)
	assert.Len(t, prod.Dependents, 1)

	_, err = c.asm.ServiceNeighborhood(ctx, "ghost", nil)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestServiceDetail(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	svc := c.service(t, "orders")
	redis := c.dependency(t, "redis", "7.2.0")
	kafka := c.dependency(t, "kafka", "3.6.0")

	_, err := c.rel.LinkServiceDependency(ctx, relations.ServiceDependencyInput{ServiceID: svc.ID, DependencyID: redis.ID})
	require.NoError(t, err)

	var endpoints []*model.Endpoint
	for _, path := range []string{"/orders", "/orders/{id}", "/health"} {
		ep, err := c.reg.CreateEndpoint(ctx, svc.ID, registry.EndpointInput{Method: model.MethodGet, Path: path, Summary: path})
		require.NoError(t, err)
		endpoints = append(endpoints, ep)
	}
	for _, ep := range endpoints[:2] {
		_, err := c.rel.LinkEndpointDependency(ctx, relations.EndpointDependencyInput{EndpointID: ep.ID, DependencyID: kafka.ID})
		require.NoError(t, err)
	}
	_, err = c.rel.LinkEndpointDependency(ctx, relations.EndpointDependencyInput{EndpointID: endpoints[1].ID, DependencyID: redis.ID})
	require.NoError(t, err)

	d, err := c.asm.ServiceDetail(ctx, svc.ID)
	require.NoError(t, err)
	require.Len(t, d.ServiceDependencies, 1)
	assert.Equal(t, redis.ID, d.ServiceDependencies[0].DependencyID)

	require.Len(t, d.EndpointDependencies, 3)
	assert.Equal(t, "/orders", d.EndpointDependencies[0].EndpointPath)
	assert.Equal(t, "/orders/{id}", d.EndpointDependencies[1].EndpointPath)
	assert.Equal(t, "kafka", d.EndpointDependencies[1].Dependency.Name)
	assert.Equal(t, "redis", d.EndpointDependencies[2].Dependency.Name)
	assert.Equal(t, model.MethodGet, d.EndpointDependencies[2].EndpointMethod)

	_, err = c.asm.ServiceDetail(ctx, "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestEndpointDetail(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	svc := c.service(t, "orders")
	ep, err := c.reg.CreateEndpoint(ctx, svc.ID, registry.EndpointInput{Method: model.MethodPost, Path: "/orders", Summary: "create"})
	require.NoError(t, err)
	stripe := c.dependency(t, "stripe", "1.0.0")
	db, err := c.reg.CreateDatabase(ctx, registry.DatabaseInput{
		Name: "orders-db", DatabaseType: model.DatabaseTypePostgreSQL, ConnectionString: "postgres://orders:5432",
	})
	require.NoError(t, err)

	_, err = c.rel.LinkEndpointDependency(ctx, relations.EndpointDependencyInput{EndpointID: ep.ID, DependencyID: stripe.ID})
	require.NoError(t, err)
	_, err = c.rel.LinkEndpointDatabase(ctx, relations.EndpointDatabaseInput{EndpointID: ep.ID, DatabaseID: db.ID, OperationType: model.OperationWrite})
	require.NoError(t, err)

	d, err := c.asm.EndpointDetail(ctx, ep.ID)
	require.NoError(t, err)
	assert.Equal(t, "/orders", d.Path)
	assert.Equal(t, model.MethodPost, d.Method)
	require.Len(t, d.Dependencies, 1)
	assert.Equal(t, "stripe", d.Dependencies[0].Name)
	require.Len(t, d.Databases, 1)
	assert.Equal(t, "postgres://orders:5432", d.Databases[0].Host)

	_, err = c.asm.EndpointDetail(ctx, "ghost")
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestTopologicalOrder(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()
	web := c.service(t, "web")
	checkout := c.service(t, "checkout")
	inventory := c.service(t, "inventory")
	payments := c.service(t, "payments")
	c.service(t, "audit")

	c.link(t, web, checkout, nil)
	c.link(t, checkout, inventory, nil)
	c.link(t, checkout, payments, nil)
	c.link(t, inventory, payments, nil)
	// Opposite direction in another scope must not affect the global order.
	c.link(t, payments, web, model.Env("dev"))

	o, err := c.asm.TopologicalOrder(ctx, nil)
	require.NoError(t, err)
	names := make([]string, 0, len(o.Services))
	for _, s := range o.Services {
		names = append(names, s.Name)
	}
	assert.Equal(t, []string{"payments", "inventory", "checkout", "web", "audit"}, names)

	dev, err := c.asm.TopologicalOrder(ctx, model.Env("dev"))
	require.NoError(t, err)
	require.Len(t, dev.Services, 5)
	assert.Equal(t, "web", dev.Services[0].Name)
}

func TestKahnDetectsCycle(t *testing.T) {
	services := []*model.Service{{ID: "a"}, {ID: "b"}}
	links := []*model.ServiceToServiceDependency{
		{ConsumerServiceID: "a", ProviderServiceID: "b"},
		{ConsumerServiceID: "b", ProviderServiceID: "a"},
	}
	_, ok := kahn(services, links, nil)
	assert.False(t, ok)

	_, ok = kahn(services, links, model.Env("prod"))
	assert.True(t, ok)
}
