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
	"time"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/events"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

// ServiceLinkInput describes a new consumer -> provider edge.
type ServiceLinkInput struct {
	ConsumerID     string
	ProviderID     string
	Environment    *string
	DependencyType model.ServiceDependencyType
	Description    string
	Config         map[string]string
}

// ServiceLinkPatch holds the mutable fields of a service edge. The
// composite key (consumer, provider, environment) is immutable. A nil
// Config leaves the config unchanged; an empty one clears it.
type ServiceLinkPatch struct {
	DependencyType *model.ServiceDependencyType
	Description    *string
	Config         map[string]string
}

// ServiceLink is a service edge with its counterpart service resolved:
// the provider for outgoing listings, the consumer for incoming ones.
type ServiceLink struct {
	Edge        *model.ServiceToServiceDependency
	Counterpart *model.Service
}

// LinkServices records that ConsumerID depends on ProviderID.
//
// Description:
//
//	Rejects self links with InvalidRequestError, unknown services with
//	NotFoundError naming the missing id, a repeated (consumer, provider,
//	environment) key with ConflictError, and an edge whose provider can
//	already reach its consumer in the same environment scope with
//	CycleError. Checks and insert are one atomic unit.
//
// Inputs:
//
//	ctx - Cancellation. A cancelled call writes nothing.
//	in - Edge description.
//
// Outputs:
//
//	*model.ServiceToServiceDependency - The stored edge.
//	error - One of the errors above, or a store failure.
func (e *Engine) LinkServices(ctx context.Context, in ServiceLinkInput) (*model.ServiceToServiceDependency, error) {
	if in.ConsumerID == in.ProviderID {
		return nil, e.rejectLink(model.KindServiceToService, model.NewInvalidRequest("a service cannot depend on itself"))
	}
	if in.DependencyType == "" {
		in.DependencyType = model.ServiceDependencyAPICall
	}
	if !in.DependencyType.Valid() {
		return nil, e.rejectLink(model.KindServiceToService, model.NewInvalidRequest("unknown dependencyType "+string(in.DependencyType)))
	}
	env, err := normalizeEnvironment(in.Environment)
	if err != nil {
		return nil, e.rejectLink(model.KindServiceToService, err)
	}

	now := e.now()
	edge := &model.ServiceToServiceDependency{
		ID:                e.newID(),
		ConsumerServiceID: in.ConsumerID,
		ProviderServiceID: in.ProviderID,
		EnvironmentCode:   env,
		DependencyType:    in.DependencyType,
		Description:       in.Description,
		Config:            cloneStringMap(in.Config),
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	key := edge.Key()

	err = linkEdge(ctx, e, model.KindServiceToService, edge.ID, edge, key,
		[]entityRef{
			{kind: model.KindService, id: in.ConsumerID},
			{kind: model.KindService, id: in.ProviderID},
		},
		func(other *model.ServiceToServiceDependency) bool {
			return other.ConsumerServiceID == in.ConsumerID &&
				other.ProviderServiceID == in.ProviderID &&
				model.SameEnvironment(other.EnvironmentCode, env)
		},
		func(existing []*model.ServiceToServiceDependency) error {
			return e.checkAcyclic(existing, in.ConsumerID, in.ProviderID, env)
		},
	)
	if err != nil {
		return nil, err
	}
	e.publish(events.Linked, model.KindServiceToService, edge.ID, in.ConsumerID, in.ProviderID)
	return edge, nil
}

// checkAcyclic rejects consumer -> provider when provider already reaches
// consumer through edges of the same environment scope.
func (e *Engine) checkAcyclic(existing []*model.ServiceToServiceDependency, consumer, provider string, env *string) error {
	start := time.Now()
	found, visited := reachable(scopedAdjacency(existing, env), provider, consumer)
	if e.metrics != nil {
		e.metrics.CycleCheckSeconds.Observe(time.Since(start).Seconds())
		e.metrics.CycleCheckVisited.Observe(float64(visited))
	}
	if found {
		e.logger.Warn("service link would create a cycle",
			"consumer", consumer, "provider", provider,
			"environment", model.EnvironmentLabel(env), "visited", visited)
		return model.NewCycleError(consumer, provider, env)
	}
	return nil
}

// UnlinkServices removes the edge with the exact (consumer, provider,
// environment) key. An unset environment matches only an unset one.
func (e *Engine) UnlinkServices(ctx context.Context, consumerID, providerID string, env *string) error {
	removed, err := unlinkEdge(ctx, e, model.KindServiceToService, model.CompositeKey(consumerID, providerID, env),
		func(edge *model.ServiceToServiceDependency) bool {
			return edge.ConsumerServiceID == consumerID &&
				edge.ProviderServiceID == providerID &&
				model.SameEnvironment(edge.EnvironmentCode, env)
		},
		func(edge *model.ServiceToServiceDependency) string { return edge.ID },
	)
	if err != nil {
		return err
	}
	e.publish(events.Unlinked, model.KindServiceToService, removed.ID, consumerID, providerID)
	return nil
}

// UnlinkServiceLink removes a service edge by id. The edge must belong to
// consumerID; otherwise it is reported as not found.
func (e *Engine) UnlinkServiceLink(ctx context.Context, consumerID, edgeID string) error {
	removed, err := unlinkEdge(ctx, e, model.KindServiceToService, edgeID,
		func(edge *model.ServiceToServiceDependency) bool {
			return edge.ID == edgeID && edge.ConsumerServiceID == consumerID
		},
		func(edge *model.ServiceToServiceDependency) string { return edge.ID },
	)
	if err != nil {
		return err
	}
	e.publish(events.Unlinked, model.KindServiceToService, removed.ID, consumerID, removed.ProviderServiceID)
	return nil
}

// ListServiceLinks returns the service edges on one side of serviceID in
// insertion order, each with its counterpart service.
//
// Inputs:
//
//	serviceID - The service. Must exist.
//	dir - Outgoing (service is consumer) or Incoming (service is provider).
//	env - Optional filter; nil returns every scope.
func (e *Engine) ListServiceLinks(ctx context.Context, serviceID string, dir Direction, env *string) ([]ServiceLink, error) {
	if dir != Outgoing && dir != Incoming {
		return nil, model.NewInvalidRequest("direction must be outgoing or incoming")
	}
	if err := e.lookup.RequireExists(ctx, nil, model.KindService, serviceID); err != nil {
		return nil, err
	}

	edges, err := store.ScanAs(ctx, e.store, model.KindServiceToService, func(edge *model.ServiceToServiceDependency) bool {
		if !model.MatchesEnvironmentFilter(edge.EnvironmentCode, env) {
			return false
		}
		if dir == Outgoing {
			return edge.ConsumerServiceID == serviceID
		}
		return edge.ProviderServiceID == serviceID
	})
	if err != nil {
		return nil, err
	}

	links := make([]ServiceLink, 0, len(edges))
	for _, edge := range edges {
		otherID := edge.ProviderServiceID
		if dir == Incoming {
			otherID = edge.ConsumerServiceID
		}
		other, err := e.resolveService(ctx, otherID)
		if err != nil {
			return nil, err
		}
		links = append(links, ServiceLink{Edge: edge, Counterpart: other})
	}
	return links, nil
}

// ListAllServiceLinks returns every service edge matching the optional
// environment filter, in insertion order.
func (e *Engine) ListAllServiceLinks(ctx context.Context, env *string) ([]*model.ServiceToServiceDependency, error) {
	return store.ScanAs(ctx, e.store, model.KindServiceToService, func(edge *model.ServiceToServiceDependency) bool {
		return model.MatchesEnvironmentFilter(edge.EnvironmentCode, env)
	})
}

// GetServiceLink returns one service edge owned by consumerID.
func (e *Engine) GetServiceLink(ctx context.Context, consumerID, edgeID string) (*model.ServiceToServiceDependency, error) {
	edge, err := store.GetAs[model.ServiceToServiceDependency](ctx, e.store, model.KindServiceToService, edgeID)
	if err != nil || edge.ConsumerServiceID != consumerID {
		if err == nil || isAbsent(err) {
			return nil, model.NewNotFound(model.KindServiceToService, edgeID)
		}
		return nil, err
	}
	return edge, nil
}

// UpdateServiceLink changes the type, description or config of a service
// edge.
// Topology is unchanged, so no cycle check runs.
func (e *Engine) UpdateServiceLink(ctx context.Context, consumerID, edgeID string, patch ServiceLinkPatch) (*model.ServiceToServiceDependency, error) {
	if patch.DependencyType != nil && !patch.DependencyType.Valid() {
		return nil, model.NewInvalidRequest("unknown dependencyType " + string(*patch.DependencyType))
	}

	var updated *model.ServiceToServiceDependency
	err := e.store.WithExclusiveAccess(ctx, store.ScopeGraph, func(ctx context.Context, tx store.Store) error {
		edge, err := store.GetAs[model.ServiceToServiceDependency](ctx, tx, model.KindServiceToService, edgeID)
		if isAbsent(err) || (err == nil && edge.ConsumerServiceID != consumerID) {
			return model.NewNotFound(model.KindServiceToService, edgeID)
		}
		if err != nil {
			return err
		}
		if patch.DependencyType != nil {
			edge.DependencyType = *patch.DependencyType
		}
		if patch.Description != nil {
			edge.Description = *patch.Description
		}
		if patch.Config != nil {
			edge.Config = nil
			if len(patch.Config) > 0 {
				edge.Config = cloneStringMap(patch.Config)
			}
		}
		edge.UpdatedAt = e.now()
		updated = edge
		return tx.Update(ctx, model.KindServiceToService, edgeID, edge)
	})
	if err != nil {
		return nil, err
	}
	e.publish(events.Updated, model.KindServiceToService, edgeID, updated.ConsumerServiceID, updated.ProviderServiceID)
	return updated, nil
}

func (e *Engine) resolveService(ctx context.Context, id string) (*model.Service, error) {
	svc, err := store.GetAs[model.Service](ctx, e.store, model.KindService, id)
	if isAbsent(err) {
		return nil, model.NewNotFound(model.KindService, id)
	}
	return svc, err
}
