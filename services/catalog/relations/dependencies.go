// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package relations

import (
	"context"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/events"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

// =============================================================================
// Service -> Dependency
// =============================================================================

// ServiceDependencyInput describes a new service -> dependency edge.
type ServiceDependencyInput struct {
	ServiceID      string
	DependencyID   string
	Environment    *string
	ConfigOverride map[string]string
}

// ServiceDependencyView is a service dependency edge with its dependency.
type ServiceDependencyView struct {
	Edge       *model.ServiceDependency
	Dependency *model.Dependency
}

// LinkServiceDependency records that a service uses a dependency.
//
// Outputs:
//
//	*model.ServiceDependency - The stored edge.
//	error - NotFoundError for an unknown service or dependency, ConflictError
//	for a repeated (service, dependency, environment), InvalidRequestError
//	for a blank environment, or a store failure.
func (e *Engine) LinkServiceDependency(ctx context.Context, in ServiceDependencyInput) (*model.ServiceDependency, error) {
	env, err := normalizeEnvironment(in.Environment)
	if err != nil {
		return nil, e.rejectLink(model.KindServiceDependency, err)
	}
	now := e.now()
	edge := &model.ServiceDependency{
		ID:              e.newID(),
		ServiceID:       in.ServiceID,
		DependencyID:    in.DependencyID,
		EnvironmentCode: env,
		ConfigOverride:  cloneStringMap(in.ConfigOverride),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	key := edge.Key()

	err = linkEdge(ctx, e, model.KindServiceDependency, edge.ID, edge, key,
		[]entityRef{
			{kind: model.KindService, id: in.ServiceID},
			{kind: model.KindDependency, id: in.DependencyID},
		},
		func(other *model.ServiceDependency) bool {
			return other.ServiceID == in.ServiceID &&
				other.DependencyID == in.DependencyID &&
				model.SameEnvironment(other.EnvironmentCode, env)
		},
		nil,
	)
	if err != nil {
		return nil, err
	}
	e.publish(events.Linked, model.KindServiceDependency, edge.ID, in.ServiceID, in.DependencyID)
	return edge, nil
}

// UnlinkServiceDependency removes the edge with the exact (service,
// dependency, environment) key.
func (e *Engine) UnlinkServiceDependency(ctx context.Context, serviceID, dependencyID string, env *string) error {
	removed, err := unlinkEdge(ctx, e, model.KindServiceDependency, model.CompositeKey(serviceID, dependencyID, env),
		func(edge *model.ServiceDependency) bool {
			return edge.ServiceID == serviceID &&
				edge.DependencyID == dependencyID &&
				model.SameEnvironment(edge.EnvironmentCode, env)
		},
		func(edge *model.ServiceDependency) string { return edge.ID },
	)
	if err != nil {
		return err
	}
	e.publish(events.Unlinked, model.KindServiceDependency, removed.ID, serviceID, dependencyID)
	return nil
}

// ListServiceDependencies returns a service's dependency edges in
// insertion order. A nil env returns every scope.
func (e *Engine) ListServiceDependencies(ctx context.Context, serviceID string, env *string) ([]ServiceDependencyView, error) {
	if err := e.lookup.RequireExists(ctx, nil, model.KindService, serviceID); err != nil {
		return nil, err
	}
	edges, err := store.ScanAs(ctx, e.store, model.KindServiceDependency, func(edge *model.ServiceDependency) bool {
		return edge.ServiceID == serviceID && model.MatchesEnvironmentFilter(edge.EnvironmentCode, env)
	})
	if err != nil {
		return nil, err
	}

	views := make([]ServiceDependencyView, 0, len(edges))
	for _, edge := range edges {
		dep, err := e.resolveDependency(ctx, edge.DependencyID)
		if err != nil {
			return nil, err
		}
		views = append(views, ServiceDependencyView{Edge: edge, Dependency: dep})
	}
	return views, nil
}

// ListAllServiceDependencies returns every service dependency edge
// matching the optional environment filter.
func (e *Engine) ListAllServiceDependencies(ctx context.Context, env *string) ([]*model.ServiceDependency, error) {
	return store.ScanAs(ctx, e.store, model.KindServiceDependency, func(edge *model.ServiceDependency) bool {
		return model.MatchesEnvironmentFilter(edge.EnvironmentCode, env)
	})
}

// UpdateServiceDependency replaces the config override of an edge. The
// composite key is immutable.
func (e *Engine) UpdateServiceDependency(ctx context.Context, edgeID string, configOverride map[string]string) (*model.ServiceDependency, error) {
	var updated *model.ServiceDependency
	err := e.store.WithExclusiveAccess(ctx, store.ScopeGraph, func(ctx context.Context, tx store.Store) error {
		edge, err := store.GetAs[model.ServiceDependency](ctx, tx, model.KindServiceDependency, edgeID)
		if isAbsent(err) {
			return model.NewNotFound(model.KindServiceDependency, edgeID)
		}
		if err != nil {
			return err
		}
		edge.ConfigOverride = cloneStringMap(configOverride)
		edge.UpdatedAt = e.now()
		updated = edge
		return tx.Update(ctx, model.KindServiceDependency, edgeID, edge)
	})
	if err != nil {
		return nil, err
	}
	e.publish(events.Updated, model.KindServiceDependency, edgeID, updated.ServiceID, updated.DependencyID)
	return updated, nil
}

// =============================================================================
// Endpoint -> Dependency
// =============================================================================

// EndpointDependencyInput describes a new endpoint -> dependency edge.
type EndpointDependencyInput struct {
	EndpointID   string
	DependencyID string
	CallType     model.CallType
	Config       map[string]string
}

// EndpointDependencyView is an endpoint dependency edge with its dependency.
type EndpointDependencyView struct {
	Edge       *model.EndpointDependency
	Dependency *model.Dependency
}

// LinkEndpointDependency records that an endpoint calls a dependency.
// CallType defaults to EXTERNAL.
func (e *Engine) LinkEndpointDependency(ctx context.Context, in EndpointDependencyInput) (*model.EndpointDependency, error) {
	if in.CallType == "" {
		in.CallType = model.CallTypeExternal
	}
	if !in.CallType.Valid() {
		return nil, e.rejectLink(model.KindEndpointDependency, model.NewInvalidRequest("unknown callType "+string(in.CallType)))
	}
	edge := &model.EndpointDependency{
		ID:           e.newID(),
		EndpointID:   in.EndpointID,
		DependencyID: in.DependencyID,
		CallType:     in.CallType,
		Config:       cloneStringMap(in.Config),
		CreatedAt:    e.now(),
	}
	key := edge.Key()

	err := linkEdge(ctx, e, model.KindEndpointDependency, edge.ID, edge, key,
		[]entityRef{
			{kind: model.KindEndpoint, id: in.EndpointID},
			{kind: model.KindDependency, id: in.DependencyID},
		},
		func(other *model.EndpointDependency) bool {
			return other.EndpointID == in.EndpointID && other.DependencyID == in.DependencyID
		},
		nil,
	)
	if err != nil {
		return nil, err
	}
	e.publish(events.Linked, model.KindEndpointDependency, edge.ID, in.EndpointID, in.DependencyID)
	return edge, nil
}

// UnlinkEndpointDependency removes the (endpoint, dependency) edge.
func (e *Engine) UnlinkEndpointDependency(ctx context.Context, endpointID, dependencyID string) error {
	removed, err := unlinkEdge(ctx, e, model.KindEndpointDependency, model.CompositeKey(endpointID, dependencyID, nil),
		func(edge *model.EndpointDependency) bool {
			return edge.EndpointID == endpointID && edge.DependencyID == dependencyID
		},
		func(edge *model.EndpointDependency) string { return edge.ID },
	)
	if err != nil {
		return err
	}
	e.publish(events.Unlinked, model.KindEndpointDependency, removed.ID, endpointID, dependencyID)
	return nil
}

// ListEndpointDependencies returns an endpoint's dependency edges in
// insertion order.
func (e *Engine) ListEndpointDependencies(ctx context.Context, endpointID string) ([]EndpointDependencyView, error) {
	if err := e.lookup.RequireExists(ctx, nil, model.KindEndpoint, endpointID); err != nil {
		return nil, err
	}
	edges, err := store.ScanAs(ctx, e.store, model.KindEndpointDependency, func(edge *model.EndpointDependency) bool {
		return edge.EndpointID == endpointID
	})
	if err != nil {
		return nil, err
	}
	views := make([]EndpointDependencyView, 0, len(edges))
	for _, edge := range edges {
		dep, err := e.resolveDependency(ctx, edge.DependencyID)
		if err != nil {
			return nil, err
		}
		views = append(views, EndpointDependencyView{Edge: edge, Dependency: dep})
	}
	return views, nil
}

func (e *Engine) resolveDependency(ctx context.Context, id string) (*model.Dependency, error) {
	dep, err := store.GetAs[model.Dependency](ctx, e.store, model.KindDependency, id)
	if isAbsent(err) {
		return nil, model.NewNotFound(model.KindDependency, id)
	}
	return dep, err
}
