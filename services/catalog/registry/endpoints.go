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
	"strings"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/events"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

// EndpointInput holds the fields of a new endpoint.
type EndpointInput struct {
	Method          model.Method
	Path            string
	Summary         string
	RequestSchema   map[string]any
	ResponseSchemas map[string]any
	Auth            map[string]any
	RateLimit       map[string]any
	Metadata        map[string]any
}

// EndpointPatch holds the fields to change on an endpoint. Changing method
// or path re-checks the (serviceId, method, path) key.
type EndpointPatch struct {
	Method          *model.Method
	Path            *string
	Summary         *string
	RequestSchema   map[string]any
	ResponseSchemas map[string]any
	Auth            map[string]any
	RateLimit       map[string]any
	Metadata        map[string]any
}

func (in EndpointInput) validate() error {
	if !in.Method.Valid() {
		return model.NewInvalidRequest("unknown method " + string(in.Method))
	}
	if strings.TrimSpace(in.Path) == "" {
		return model.NewInvalidRequest("endpoint path is required")
	}
	if strings.TrimSpace(in.Summary) == "" {
		return model.NewInvalidRequest("endpoint summary is required")
	}
	return nil
}

func (r *Registry) newEndpoint(serviceID string, in EndpointInput) *model.Endpoint {
	now := r.now()
	return &model.Endpoint{
		ID:              r.newID(),
		ServiceID:       serviceID,
		Method:          in.Method,
		Path:            strings.TrimSpace(in.Path),
		Summary:         in.Summary,
		RequestSchema:   in.RequestSchema,
		ResponseSchemas: in.ResponseSchemas,
		Auth:            in.Auth,
		RateLimit:       in.RateLimit,
		Metadata:        in.Metadata,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func checkEndpointKey(ctx context.Context, tx store.Store, serviceID string, method model.Method, path, selfID string) error {
	existing, err := store.FindFirst(ctx, tx, model.KindEndpoint, func(e *model.Endpoint) bool {
		return e.ServiceID == serviceID && e.Method == method && e.Path == path && e.ID != selfID
	})
	if err != nil {
		return err
	}
	if existing != nil {
		return model.NewConflict(model.KindEndpoint, model.EndpointKey(serviceID, method, path))
	}
	return nil
}

// CreateEndpoint adds an endpoint to a service.
//
// Outputs:
//
//	*model.Endpoint - The stored endpoint.
//	error - NotFoundError for an unknown service, ConflictError for a
//	duplicate (serviceId, method, path), InvalidRequestError, or a store failure.
func (r *Registry) CreateEndpoint(ctx context.Context, serviceID string, in EndpointInput) (ep *model.Endpoint, err error) {
	defer func() { r.observe(model.KindEndpoint, "create", err) }()

	if err := in.validate(); err != nil {
		return nil, err
	}
	ep = r.newEndpoint(serviceID, in)

	err = r.store.WithExclusiveAccess(ctx, store.ScopeGraph, func(ctx context.Context, tx store.Store) error {
		if err := r.RequireExists(ctx, tx, model.KindService, serviceID); err != nil {
			return err
		}
		if err := checkEndpointKey(ctx, tx, serviceID, ep.Method, ep.Path, ""); err != nil {
			return err
		}
		return tx.Insert(ctx, model.KindEndpoint, ep.ID, ep)
	})
	if err != nil {
		return nil, err
	}
	r.publish(events.Created, model.KindEndpoint, ep.ID, serviceID)
	return ep, nil
}

// GetEndpoint returns an endpoint by id.
func (r *Registry) GetEndpoint(ctx context.Context, id string) (*model.Endpoint, error) {
	return getAs[model.Endpoint](ctx, r.store, model.KindEndpoint, id)
}

// ListEndpoints returns a service's endpoints in insertion order.
func (r *Registry) ListEndpoints(ctx context.Context, serviceID string) ([]*model.Endpoint, error) {
	if err := r.RequireExists(ctx, nil, model.KindService, serviceID); err != nil {
		return nil, err
	}
	return store.ScanAs(ctx, r.store, model.KindEndpoint, func(e *model.Endpoint) bool {
		return e.ServiceID == serviceID
	})
}

// UpdateEndpoint applies a partial update.
func (r *Registry) UpdateEndpoint(ctx context.Context, id string, patch EndpointPatch) (ep *model.Endpoint, err error) {
	defer func() { r.observe(model.KindEndpoint, "update", err) }()

	err = r.store.WithExclusiveAccess(ctx, store.ScopeGraph, func(ctx context.Context, tx store.Store) error {
		current, err := getAs[model.Endpoint](ctx, tx, model.KindEndpoint, id)
		if err != nil {
			return err
		}
		method, path := current.Method, current.Path
		if patch.Method != nil {
			method = *patch.Method
		}
		if patch.Path != nil {
			path = strings.TrimSpace(*patch.Path)
		}
		summary := current.Summary
		if patch.Summary != nil {
			summary = *patch.Summary
		}
		if err := (EndpointInput{Method: method, Path: path, Summary: summary}).validate(); err != nil {
			return err
		}
		if method != current.Method || path != current.Path {
			if err := checkEndpointKey(ctx, tx, current.ServiceID, method, path, id); err != nil {
				return err
			}
		}
		current.Method, current.Path, current.Summary = method, path, summary
		if patch.RequestSchema != nil {
			current.RequestSchema = patch.RequestSchema
		}
		if patch.ResponseSchemas != nil {
			current.ResponseSchemas = patch.ResponseSchemas
		}
		if patch.Auth != nil {
			current.Auth = patch.Auth
		}
		if patch.RateLimit != nil {
			current.RateLimit = patch.RateLimit
		}
		if patch.Metadata != nil {
			current.Metadata = patch.Metadata
		}
		current.UpdatedAt = r.now()
		ep = current
		return tx.Update(ctx, model.KindEndpoint, id, current)
	})
	if err != nil {
		return nil, err
	}
	r.publish(events.Updated, model.KindEndpoint, id, ep.ServiceID)
	return ep, nil
}

// DeleteEndpoint removes an endpoint and its dependency and database edges.
func (r *Registry) DeleteEndpoint(ctx context.Context, id string) error {
	return r.deleteEntity(ctx, model.KindEndpoint, id)
}

// ReplaceEndpoints swaps a service's endpoints for a new set.
//
// Description:
//
//	Deletes every existing endpoint of the service (cascading their edges)
//	and inserts the given ones, all in one transaction. Inputs repeating a
//	(method, path) pair are rejected with ConflictError before anything is
//	written.
//
// Outputs:
//
//	[]*model.Endpoint - The new endpoints in input order.
//	int - Number of endpoints removed.
//	error - NotFoundError, ConflictError, InvalidRequestError, or a store failure.
func (r *Registry) ReplaceEndpoints(ctx context.Context, serviceID string, inputs []EndpointInput) (created []*model.Endpoint, removed int, err error) {
	defer func() { r.observe(model.KindEndpoint, "replace", err) }()

	seen := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		if err := in.validate(); err != nil {
			return nil, 0, err
		}
		key := model.EndpointKey(serviceID, in.Method, strings.TrimSpace(in.Path))
		if seen[key] {
			return nil, 0, model.NewConflict(model.KindEndpoint, key)
		}
		seen[key] = true
	}

	var removedIDs []string
	err = r.store.WithExclusiveAccess(ctx, store.ScopeGraph, func(ctx context.Context, tx store.Store) error {
		if err := r.RequireExists(ctx, tx, model.KindService, serviceID); err != nil {
			return err
		}
		existing, err := store.ScanAs(ctx, tx, model.KindEndpoint, func(e *model.Endpoint) bool {
			return e.ServiceID == serviceID
		})
		if err != nil {
			return err
		}
		for _, ep := range existing {
			if err := tx.Delete(ctx, model.KindEndpoint, ep.ID); err != nil {
				return err
			}
			removedIDs = append(removedIDs, ep.ID)
		}
		created = created[:0]
		for _, in := range inputs {
			ep := r.newEndpoint(serviceID, in)
			if err := tx.Insert(ctx, model.KindEndpoint, ep.ID, ep); err != nil {
				return err
			}
			created = append(created, ep)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	for _, id := range removedIDs {
		r.deleted(model.KindEndpoint, id)
	}
	for _, ep := range created {
		r.publish(events.Created, model.KindEndpoint, ep.ID, serviceID)
	}
	r.logger.Info("endpoints replaced", "service_id", serviceID, "removed", len(removedIDs), "created", len(created))
	return created, len(removedIDs), nil
}
