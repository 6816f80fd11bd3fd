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

// ServiceInput holds the fields of a new service.
type ServiceInput struct {
	Name             string
	Description      string
	Owner            string
	Tags             []string
	ServiceType      model.ServiceType
	SupportsDatabase bool
	Proxy            bool
}

// ServicePatch holds the fields to change on a service. Nil means keep.
type ServicePatch struct {
	Name             *string
	Description      *string
	Owner            *string
	Tags             []string
	ServiceType      *model.ServiceType
	SupportsDatabase *bool
	Proxy            *bool
}

// ServiceFilter narrows ListServices. Zero values match everything.
type ServiceFilter struct {
	NameContains string
	Owner        string
	ServiceType  model.ServiceType
	Tag          string
}

func (f ServiceFilter) matches(s *model.Service) bool {
	if f.NameContains != "" && !strings.Contains(strings.ToLower(s.Name), strings.ToLower(f.NameContains)) {
		return false
	}
	if f.Owner != "" && !strings.EqualFold(s.Owner, f.Owner) {
		return false
	}
	if f.ServiceType != "" && s.ServiceType != f.ServiceType {
		return false
	}
	if f.Tag != "" && !s.HasTag(f.Tag) {
		return false
	}
	return true
}

// CreateService registers a new service.
//
// Description:
//
//	Rejects a duplicate name with ConflictError. Name comparison is exact.
//
// Outputs:
//
//	*model.Service - The stored service with id and timestamps.
//	error - InvalidRequestError, ConflictError, or a store failure.
func (r *Registry) CreateService(ctx context.Context, in ServiceInput) (svc *model.Service, err error) {
	defer func() { r.observe(model.KindService, "create", err) }()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, model.NewInvalidRequest("service name is required")
	}
	if !in.ServiceType.Valid() {
		return nil, model.NewInvalidRequest("unknown serviceType " + string(in.ServiceType))
	}

	now := r.now()
	svc = &model.Service{
		ID:               r.newID(),
		Name:             name,
		Description:      in.Description,
		Owner:            in.Owner,
		Tags:             cloneStrings(in.Tags),
		ServiceType:      in.ServiceType,
		SupportsDatabase: in.SupportsDatabase,
		Proxy:            in.Proxy,
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = r.store.WithExclusiveAccess(ctx, store.ScopeFor(model.KindService), func(ctx context.Context, tx store.Store) error {
		if err := r.checkServiceName(ctx, tx, name, ""); err != nil {
			return err
		}
		return tx.Insert(ctx, model.KindService, svc.ID, svc)
	})
	if err != nil {
		return nil, err
	}

	r.logger.Info("service created", "service_id", svc.ID, "name", svc.Name)
	r.publish(events.Created, model.KindService, svc.ID)
	return svc, nil
}

func (r *Registry) checkServiceName(ctx context.Context, tx store.Store, name, selfID string) error {
	existing, err := store.FindFirst(ctx, tx, model.KindService, func(s *model.Service) bool {
		return s.Name == name && s.ID != selfID
	})
	if err != nil {
		return err
	}
	if existing != nil {
		return model.NewConflict(model.KindService, name)
	}
	return nil
}

// GetService returns a service by id.
func (r *Registry) GetService(ctx context.Context, id string) (*model.Service, error) {
	return getAs[model.Service](ctx, r.store, model.KindService, id)
}

// FindServiceByName returns the service with the exact name, or nil.
func (r *Registry) FindServiceByName(ctx context.Context, name string) (*model.Service, error) {
	return store.FindFirst(ctx, r.store, model.KindService, func(s *model.Service) bool {
		return s.Name == name
	})
}

// ListServices returns services in insertion order.
func (r *Registry) ListServices(ctx context.Context, filter ServiceFilter) ([]*model.Service, error) {
	return store.ScanAs(ctx, r.store, model.KindService, filter.matches)
}

// UpdateService applies a partial update.
//
// Description:
//
//	A rename re-checks name uniqueness, excluding the service itself.
//
// Outputs:
//
//	*model.Service - The updated service.
//	error - NotFoundError, ConflictError, InvalidRequestError, or a store failure.
func (r *Registry) UpdateService(ctx context.Context, id string, patch ServicePatch) (svc *model.Service, err error) {
	defer func() { r.observe(model.KindService, "update", err) }()

	err = r.store.WithExclusiveAccess(ctx, store.ScopeFor(model.KindService), func(ctx context.Context, tx store.Store) error {
		current, err := getAs[model.Service](ctx, tx, model.KindService, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return model.NewInvalidRequest("service name must not be empty")
			}
			if name != current.Name {
				if err := r.checkServiceName(ctx, tx, name, id); err != nil {
					return err
				}
			}
			current.Name = name
		}
		if patch.Description != nil {
			current.Description = *patch.Description
		}
		if patch.Owner != nil {
			current.Owner = *patch.Owner
		}
		if patch.Tags != nil {
			current.Tags = cloneStrings(patch.Tags)
		}
		if patch.ServiceType != nil {
			if !patch.ServiceType.Valid() {
				return model.NewInvalidRequest("unknown serviceType " + string(*patch.ServiceType))
			}
			current.ServiceType = *patch.ServiceType
		}
		if patch.SupportsDatabase != nil {
			current.SupportsDatabase = *patch.SupportsDatabase
		}
		if patch.Proxy != nil {
			current.Proxy = *patch.Proxy
		}
		current.UpdatedAt = r.now()
		svc = current
		return tx.Update(ctx, model.KindService, id, current)
	})
	if err != nil {
		return nil, err
	}
	r.publish(events.Updated, model.KindService, id)
	return svc, nil
}

// DeleteService removes a service and everything that references it:
// environments, endpoints (and their edges), external dependency links,
// database links, and service-to-service edges in either direction.
func (r *Registry) DeleteService(ctx context.Context, id string) error {
	return r.deleteEntity(ctx, model.KindService, id)
}

// CountServices returns the number of registered services.
func (r *Registry) CountServices(ctx context.Context) (int, error) {
	return store.Count(ctx, r.store, model.KindService)
}
