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

// EnvironmentInput holds the fields written by UpsertEnvironment.
type EnvironmentInput struct {
	DisplayName string
	Host        string
	Config      *model.EnvironmentConfig
	Status      model.EnvironmentStatus
}

// UpsertEnvironment creates or replaces the (serviceID, code) environment.
//
// Description:
//
//	If the environment exists its fields are overwritten in place (id and
//	createdAt are kept); otherwise a new one is created. Status defaults to
//	ACTIVE.
//
// Outputs:
//
//	*model.ServiceEnvironment - The stored environment.
//	bool - True when a new environment was created.
//	error - NotFoundError for an unknown service, InvalidRequestError, or a store failure.
func (r *Registry) UpsertEnvironment(ctx context.Context, serviceID, code string, in EnvironmentInput) (env *model.ServiceEnvironment, created bool, err error) {
	defer func() { r.observe(model.KindServiceEnvironment, "upsert", err) }()

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, false, model.NewInvalidRequest("environment code is required")
	}
	status := in.Status
	if status == "" {
		status = model.EnvironmentActive
	}
	if !status.Valid() {
		return nil, false, model.NewInvalidRequest("unknown environment status " + string(status))
	}

	err = r.store.WithExclusiveAccess(ctx, store.ScopeGraph, func(ctx context.Context, tx store.Store) error {
		if err := r.RequireExists(ctx, tx, model.KindService, serviceID); err != nil {
			return err
		}
		existing, err := findEnvironment(ctx, tx, serviceID, code)
		if err != nil {
			return err
		}
		now := r.now()
		if existing != nil {
			existing.DisplayName = in.DisplayName
			existing.Host = in.Host
			existing.Config = in.Config
			existing.Status = status
			existing.UpdatedAt = now
			env = existing
			return tx.Update(ctx, model.KindServiceEnvironment, existing.ID, existing)
		}
		env = &model.ServiceEnvironment{
			ID:          r.newID(),
			ServiceID:   serviceID,
			Code:        code,
			DisplayName: in.DisplayName,
			Host:        in.Host,
			Config:      in.Config,
			Status:      status,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		created = true
		return tx.Insert(ctx, model.KindServiceEnvironment, env.ID, env)
	})
	if err != nil {
		return nil, false, err
	}

	if created {
		r.publish(events.Created, model.KindServiceEnvironment, env.ID, serviceID)
	} else {
		r.publish(events.Updated, model.KindServiceEnvironment, env.ID, serviceID)
	}
	return env, created, nil
}

func findEnvironment(ctx context.Context, s store.Store, serviceID, code string) (*model.ServiceEnvironment, error) {
	return store.FindFirst(ctx, s, model.KindServiceEnvironment, func(e *model.ServiceEnvironment) bool {
		return e.ServiceID == serviceID && e.Code == code
	})
}

// GetEnvironment returns the (serviceID, code) environment.
func (r *Registry) GetEnvironment(ctx context.Context, serviceID, code string) (*model.ServiceEnvironment, error) {
	env, err := findEnvironment(ctx, r.store, serviceID, code)
	if err != nil {
		return nil, err
	}
	if env == nil {
		return nil, model.NewNotFound(model.KindServiceEnvironment, serviceID+"/"+code)
	}
	return env, nil
}

// ListEnvironments returns a service's environments in insertion order.
func (r *Registry) ListEnvironments(ctx context.Context, serviceID string) ([]*model.ServiceEnvironment, error) {
	if err := r.RequireExists(ctx, nil, model.KindService, serviceID); err != nil {
		return nil, err
	}
	return store.ScanAs(ctx, r.store, model.KindServiceEnvironment, func(e *model.ServiceEnvironment) bool {
		return e.ServiceID == serviceID
	})
}

// DeleteEnvironment removes the (serviceID, code) environment. Edges scoped
// to the code are left alone; environment codes on edges are labels, not
// references.
func (r *Registry) DeleteEnvironment(ctx context.Context, serviceID, code string) (err error) {
	defer func() { r.observe(model.KindServiceEnvironment, "delete", err) }()

	var id string
	err = r.store.WithExclusiveAccess(ctx, store.ScopeGraph, func(ctx context.Context, tx store.Store) error {
		env, err := findEnvironment(ctx, tx, serviceID, code)
		if err != nil {
			return err
		}
		if env == nil {
			return model.NewNotFound(model.KindServiceEnvironment, serviceID+"/"+code)
		}
		id = env.ID
		return tx.Delete(ctx, model.KindServiceEnvironment, env.ID)
	})
	if err != nil {
		return err
	}
	r.deleted(model.KindServiceEnvironment, id)
	return nil
}
