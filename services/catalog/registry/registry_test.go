// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package registry

import (
	"context"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/events"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/observability"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

func newTestRegistry(t *testing.T) (*Registry, *events.Hub) {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	hub := events.NewHub(64)
	reg := New(s,
		WithEvents(hub),
		WithMetrics(observability.New(prometheus.NewRegistry())),
	)
	return reg, hub
}

func createService(t *testing.T, r *Registry, name string) *model.Service {
	t.Helper()
	svc, err := r.CreateService(context.Background(), ServiceInput{
		Name:        name,
		Owner:       "platform",
		ServiceType: model.ServiceTypeApplication,
	})
	require.NoError(t, err)
	return svc
}

// =============================================================================
// Services
// =============================================================================

func TestRegistry_CreateService(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	svc, err := r.CreateService(ctx, ServiceInput{
		Name:        "checkout",
		Description: "Checkout API",
		Owner:       "payments-team",
		Tags:        []string{"core", "pci"},
		ServiceType: model.ServiceTypeApplication,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, svc.ID)
	assert.False(t, svc.CreatedAt.IsZero())

	got, err := r.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, "checkout", got.Name)
	assert.Equal(t, []string{"core", "pci"}, got.Tags)
}

func TestRegistry_CreateService_Invalid(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateService(ctx, ServiceInput{Name: "  ", ServiceType: model.ServiceTypeJob})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)

	_, err = r.CreateService(ctx, ServiceInput{Name: "x", ServiceType: "DAEMON"})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

func TestRegistry_CreateService_DuplicateName(t *testing.T) {
	r, _ := newTestRegistry(t)
	createService(t, r, "checkout")

	_, err := r.CreateService(context.Background(), ServiceInput{Name: "checkout", ServiceType: model.ServiceTypeJob})
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrConflict)

	var conflict *model.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "checkout", conflict.Key)
}

func TestRegistry_CreateService_ConcurrentDuplicates(t *testing.T) {
	r, _ := newTestRegistry(t)

	const workers = 10
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := r.CreateService(context.Background(), ServiceInput{Name: "inventory", ServiceType: model.ServiceTypeApplication})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
		} else {
			assert.ErrorIs(t, err, model.ErrConflict)
		}
	}
	assert.Equal(t, 1, ok)
}

func TestRegistry_UpdateService_Rename(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	a := createService(t, r, "a")
	createService(t, r, "b")

	// Renaming to its own name is not a conflict.
	same := "a"
	_, err := r.UpdateService(ctx, a.ID, ServicePatch{Name: &same})
	require.NoError(t, err)

	taken := "b"
	_, err = r.UpdateService(ctx, a.ID, ServicePatch{Name: &taken})
	assert.ErrorIs(t, err, model.ErrConflict)

	fresh := "c"
	owner := "new-owner"
	updated, err := r.UpdateService(ctx, a.ID, ServicePatch{Name: &fresh, Owner: &owner, Tags: []string{"x"}})
	require.NoError(t, err)
	assert.Equal(t, "c", updated.Name)
	assert.Equal(t, "new-owner", updated.Owner)
	assert.Equal(t, []string{"x"}, updated.Tags)

	_, err = r.UpdateService(ctx, "missing", ServicePatch{Name: &fresh})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestRegistry_ListServices_Filter(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	_, err := r.CreateService(ctx, ServiceInput{Name: "checkout-api", Owner: "payments", Tags: []string{"core"}, ServiceType: model.ServiceTypeApplication})
	require.NoError(t, err)
	_, err = r.CreateService(ctx, ServiceInput{Name: "nightly-report", Owner: "data", ServiceType: model.ServiceTypeJob})
	require.NoError(t, err)

	all, err := r.ListServices(ctx, ServiceFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "checkout-api", all[0].Name)

	jobs, err := r.ListServices(ctx, ServiceFilter{ServiceType: model.ServiceTypeJob})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "nightly-report", jobs[0].Name)

	tagged, err := r.ListServices(ctx, ServiceFilter{Tag: "CORE"})
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	byName, err := r.ListServices(ctx, ServiceFilter{NameContains: "CHECK"})
	require.NoError(t, err)
	assert.Len(t, byName, 1)
}

func TestRegistry_DeleteService_PublishesInvalidation(t *testing.T) {
	r, hub := newTestRegistry(t)
	ctx := context.Background()
	svc := createService(t, r, "checkout")

	sub := hub.Subscribe()
	defer sub.Close()

	require.NoError(t, r.DeleteService(ctx, svc.ID))

	first := <-sub.Events()
	second := <-sub.Events()
	assert.Equal(t, events.Deleted, first.Type)
	assert.Equal(t, events.Invalidated, second.Type)
	assert.Equal(t, svc.ID, second.ID)

	_, err := r.GetService(ctx, svc.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
	assert.ErrorIs(t, r.DeleteService(ctx, svc.ID), model.ErrNotFound)
}

// =============================================================================
// Environments
// =============================================================================

func TestRegistry_UpsertEnvironment(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	svc := createService(t, r, "checkout")

	timeout := 1500
	env, created, err := r.UpsertEnvironment(ctx, svc.ID, "prod", EnvironmentInput{
		DisplayName: "Production",
		Host:        "https://checkout.example.com",
		Config:      &model.EnvironmentConfig{TimeoutMs: &timeout},
	})
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, model.EnvironmentActive, env.Status)

	again, created, err := r.UpsertEnvironment(ctx, svc.ID, "prod", EnvironmentInput{
		DisplayName: "Prod",
		Host:        "https://checkout.internal",
		Status:      model.EnvironmentInactive,
	})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, env.ID, again.ID)
	assert.Equal(t, "Prod", again.DisplayName)
	assert.Equal(t, model.EnvironmentInactive, again.Status)

	list, err := r.ListEnvironments(ctx, svc.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	_, _, err = r.UpsertEnvironment(ctx, "missing", "prod", EnvironmentInput{})
	assert.ErrorIs(t, err, model.ErrNotFound)

	require.NoError(t, r.DeleteEnvironment(ctx, svc.ID, "prod"))
	assert.ErrorIs(t, r.DeleteEnvironment(ctx, svc.ID, "prod"), model.ErrNotFound)
}

// =============================================================================
// Dependencies
// =============================================================================

func TestRegistry_Dependencies_NameVersionUnique(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	_, err := r.CreateDependency(ctx, DependencyInput{Name: "redis", Version: "7.2.0", DependencyType: model.DependencyTypeCache})
	require.NoError(t, err)

	// Same name, new version is fine.
	other, err := r.CreateDependency(ctx, DependencyInput{Name: "redis", Version: "6.0.0", DependencyType: model.DependencyTypeCache})
	require.NoError(t, err)

	_, err = r.CreateDependency(ctx, DependencyInput{Name: "redis", Version: "7.2.0", DependencyType: model.DependencyTypeCache})
	assert.ErrorIs(t, err, model.ErrConflict)

	bump := "7.2.0"
	_, err = r.UpdateDependency(ctx, other.ID, DependencyPatch{Version: &bump})
	assert.ErrorIs(t, err, model.ErrConflict)
}

func TestRegistry_ListDependencies_VersionConstraint(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	for _, v := range []string{"1.2.0", "2.0.0", "1.9.3", "latest"} {
		_, err := r.CreateDependency(ctx, DependencyInput{Name: "kafka-client", Version: v, DependencyType: model.DependencyTypeLibrary})
		require.NoError(t, err)
	}

	all, err := r.ListDependencies(ctx, DependencyFilter{Name: "kafka-client"})
	require.NoError(t, err)
	assert.Len(t, all, 4)
	assert.Equal(t, "1.2.0", all[0].Version, "insertion order without a constraint")

	v1, err := r.ListDependencies(ctx, DependencyFilter{VersionConstraint: "^1.0"})
	require.NoError(t, err)
	require.Len(t, v1, 2)
	assert.Equal(t, "1.9.3", v1[0].Version)
	assert.Equal(t, "1.2.0", v1[1].Version)

	_, err = r.ListDependencies(ctx, DependencyFilter{VersionConstraint: "not a range"})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}

// =============================================================================
// Databases
// =============================================================================

func TestRegistry_Databases(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()

	db, err := r.CreateDatabase(ctx, DatabaseInput{Name: "orders", DatabaseType: model.DatabaseTypePostgreSQL, ConnectionString: "postgres://orders"})
	require.NoError(t, err)

	_, err = r.CreateDatabase(ctx, DatabaseInput{Name: "orders", DatabaseType: model.DatabaseTypeMySQL, ConnectionString: "mysql://orders"})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = r.CreateDatabase(ctx, DatabaseInput{Name: "cache", DatabaseType: model.DatabaseTypeRedis})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)

	pg, err := r.ListDatabases(ctx, model.DatabaseTypePostgreSQL)
	require.NoError(t, err)
	assert.Len(t, pg, 1)

	conn := "postgres://orders-replica"
	updated, err := r.UpdateDatabase(ctx, db.ID, DatabasePatch{ConnectionString: &conn})
	require.NoError(t, err)
	assert.Equal(t, conn, updated.ConnectionString)

	require.NoError(t, r.DeleteDatabase(ctx, db.ID))
	_, err = r.GetDatabase(ctx, db.ID)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

// =============================================================================
// Endpoints
// =============================================================================

func TestRegistry_Endpoints(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	svc := createService(t, r, "checkout")

	ep, err := r.CreateEndpoint(ctx, svc.ID, EndpointInput{Method: model.MethodPost, Path: "/orders", Summary: "Create order"})
	require.NoError(t, err)

	// Same path, other method is a different endpoint.
	_, err = r.CreateEndpoint(ctx, svc.ID, EndpointInput{Method: model.MethodGet, Path: "/orders", Summary: "List orders"})
	require.NoError(t, err)

	_, err = r.CreateEndpoint(ctx, svc.ID, EndpointInput{Method: model.MethodPost, Path: "/orders", Summary: "dup"})
	assert.ErrorIs(t, err, model.ErrConflict)

	_, err = r.CreateEndpoint(ctx, "missing", EndpointInput{Method: model.MethodPost, Path: "/x", Summary: "x"})
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = r.CreateEndpoint(ctx, svc.ID, EndpointInput{Method: model.MethodPost, Path: "/x"})
	assert.ErrorIs(t, err, model.ErrInvalidRequest)

	get := model.MethodGet
	_, err = r.UpdateEndpoint(ctx, ep.ID, EndpointPatch{Method: &get})
	assert.ErrorIs(t, err, model.ErrConflict)

	summary := "Place an order"
	updated, err := r.UpdateEndpoint(ctx, ep.ID, EndpointPatch{Summary: &summary})
	require.NoError(t, err)
	assert.Equal(t, summary, updated.Summary)

	list, err := r.ListEndpoints(ctx, svc.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRegistry_ReplaceEndpoints(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	svc := createService(t, r, "checkout")
	_, err := r.CreateEndpoint(ctx, svc.ID, EndpointInput{Method: model.MethodGet, Path: "/old", Summary: "old"})
	require.NoError(t, err)

	created, removed, err := r.ReplaceEndpoints(ctx, svc.ID, []EndpointInput{
		{Method: model.MethodGet, Path: "/a", Summary: "a"},
		{Method: model.MethodPost, Path: "/a", Summary: "a"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Len(t, created, 2)

	list, err := r.ListEndpoints(ctx, svc.ID)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "/a", list[0].Path)

	_, _, err = r.ReplaceEndpoints(ctx, svc.ID, []EndpointInput{
		{Method: model.MethodGet, Path: "/dup", Summary: "a"},
		{Method: model.MethodGet, Path: "/dup", Summary: "b"},
	})
	assert.ErrorIs(t, err, model.ErrConflict)

	// A rejected replace leaves the previous set untouched.
	list, err = r.ListEndpoints(ctx, svc.ID)
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestRegistry_RequireExists(t *testing.T) {
	r, _ := newTestRegistry(t)
	ctx := context.Background()
	svc := createService(t, r, "checkout")

	assert.NoError(t, r.RequireExists(ctx, nil, model.KindService, svc.ID))

	err := r.RequireExists(ctx, nil, model.KindService, "ghost")
	var nf *model.NotFoundError
	require.ErrorAs(t, err, &nf)
	assert.Equal(t, "ghost", nf.ID)
}
