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

// DatabaseInput holds the fields of a new database instance.
type DatabaseInput struct {
	Name             string
	Description      string
	DatabaseType     model.DatabaseType
	ConnectionString string
	Config           map[string]string
}

// DatabasePatch holds the fields to change on a database instance.
type DatabasePatch struct {
	Name             *string
	Description      *string
	DatabaseType     *model.DatabaseType
	ConnectionString *string
	Config           map[string]string
}

// CreateDatabase registers a database instance. Name is unique.
func (r *Registry) CreateDatabase(ctx context.Context, in DatabaseInput) (db *model.DatabaseInstance, err error) {
	defer func() { r.observe(model.KindDatabase, "create", err) }()

	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, model.NewInvalidRequest("database name is required")
	}
	if strings.TrimSpace(in.ConnectionString) == "" {
		return nil, model.NewInvalidRequest("database connectionString is required")
	}
	if !in.DatabaseType.Valid() {
		return nil, model.NewInvalidRequest("unknown database type " + string(in.DatabaseType))
	}

	now := r.now()
	db = &model.DatabaseInstance{
		ID:               r.newID(),
		Name:             name,
		Description:      in.Description,
		DatabaseType:     in.DatabaseType,
		ConnectionString: in.ConnectionString,
		Config:           cloneStringMap(in.Config),
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	err = r.store.WithExclusiveAccess(ctx, store.ScopeFor(model.KindDatabase), func(ctx context.Context, tx store.Store) error {
		if err := checkDatabaseName(ctx, tx, name, ""); err != nil {
			return err
		}
		return tx.Insert(ctx, model.KindDatabase, db.ID, db)
	})
	if err != nil {
		return nil, err
	}
	// Connection strings carry credentials; log the name only.
	r.logger.Info("database created", "database_id", db.ID, "name", db.Name, "type", db.DatabaseType)
	r.publish(events.Created, model.KindDatabase, db.ID)
	return db, nil
}

func checkDatabaseName(ctx context.Context, tx store.Store, name, selfID string) error {
	existing, err := store.FindFirst(ctx, tx, model.KindDatabase, func(d *model.DatabaseInstance) bool {
		return d.Name == name && d.ID != selfID
	})
	if err != nil {
		return err
	}
	if existing != nil {
		return model.NewConflict(model.KindDatabase, name)
	}
	return nil
}

// GetDatabase returns a database instance by id.
func (r *Registry) GetDatabase(ctx context.Context, id string) (*model.DatabaseInstance, error) {
	return getAs[model.DatabaseInstance](ctx, r.store, model.KindDatabase, id)
}

// ListDatabases returns database instances, optionally of one type.
func (r *Registry) ListDatabases(ctx context.Context, dbType model.DatabaseType) ([]*model.DatabaseInstance, error) {
	return store.ScanAs(ctx, r.store, model.KindDatabase, func(d *model.DatabaseInstance) bool {
		return dbType == "" || d.DatabaseType == dbType
	})
}

// UpdateDatabase applies a partial update, re-checking name uniqueness on rename.
func (r *Registry) UpdateDatabase(ctx context.Context, id string, patch DatabasePatch) (db *model.DatabaseInstance, err error) {
	defer func() { r.observe(model.KindDatabase, "update", err) }()

	err = r.store.WithExclusiveAccess(ctx, store.ScopeFor(model.KindDatabase), func(ctx context.Context, tx store.Store) error {
		current, err := getAs[model.DatabaseInstance](ctx, tx, model.KindDatabase, id)
		if err != nil {
			return err
		}
		if patch.Name != nil {
			name := strings.TrimSpace(*patch.Name)
			if name == "" {
				return model.NewInvalidRequest("database name must not be empty")
			}
			if name != current.Name {
				if err := checkDatabaseName(ctx, tx, name, id); err != nil {
					return err
				}
			}
			current.Name = name
		}
		if patch.Description != nil {
			current.Description = *patch.Description
		}
		if patch.DatabaseType != nil {
			if !patch.DatabaseType.Valid() {
				return model.NewInvalidRequest("unknown database type " + string(*patch.DatabaseType))
			}
			current.DatabaseType = *patch.DatabaseType
		}
		if patch.ConnectionString != nil {
			if strings.TrimSpace(*patch.ConnectionString) == "" {
				return model.NewInvalidRequest("database connectionString must not be empty")
			}
			current.ConnectionString = *patch.ConnectionString
		}
		if patch.Config != nil {
			current.Config = cloneStringMap(patch.Config)
		}
		current.UpdatedAt = r.now()
		db = current
		return tx.Update(ctx, model.KindDatabase, id, current)
	})
	if err != nil {
		return nil, err
	}
	r.publish(events.Updated, model.KindDatabase, id)
	return db, nil
}

// DeleteDatabase removes a database instance and every edge that names it.
func (r *Registry) DeleteDatabase(ctx context.Context, id string) error {
	return r.deleteEntity(ctx, model.KindDatabase, id)
}
