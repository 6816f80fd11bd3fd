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
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/events"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

// DependencyInput holds the fields of a new dependency.
type DependencyInput struct {
	Name           string
	Version        string
	Description    string
	DependencyType model.DependencyType
	Config         map[string]string
}

// DependencyPatch holds the fields to change on a dependency.
type DependencyPatch struct {
	Name           *string
	Version        *string
	Description    *string
	DependencyType *model.DependencyType
	Config         map[string]string
}

// DependencyFilter narrows ListDependencies.
type DependencyFilter struct {
	// Name matches exactly when set.
	Name string

	// DependencyType matches exactly when set.
	DependencyType model.DependencyType

	// VersionConstraint is a semver range such as "^1.2" or ">= 2, < 3".
	// Versions that do not parse as semver never match a constraint.
	// When set, results are ordered by name, then newest version first.
	VersionConstraint string
}

func dependencyKey(name, version string) string {
	return name + "@" + version
}

// CreateDependency registers an external dependency. (name, version) is unique.
func (r *Registry) CreateDependency(ctx context.Context, in DependencyInput) (dep *model.Dependency, err error) {
	defer func() { r.observe(model.KindDependency, "create", err) }()

	name := strings.TrimSpace(in.Name)
	version := strings.TrimSpace(in.Version)
	if name == "" || version == "" {
		return nil, model.NewInvalidRequest("dependency name and version are required")
	}
	if !in.DependencyType.Valid() {
		return nil, model.NewInvalidRequest("unknown dependency type " + string(in.DependencyType))
	}

	now := r.now()
	dep = &model.Dependency{
		ID:             r.newID(),
		Name:           name,
		Version:        version,
		Description:    in.Description,
		DependencyType: in.DependencyType,
		Config:         cloneStringMap(in.Config),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	err = r.store.WithExclusiveAccess(ctx, store.ScopeFor(model.KindDependency), func(ctx context.Context, tx store.Store) error {
		if err := checkDependencyKey(ctx, tx, name, version, ""); err != nil {
			return err
		}
		return tx.Insert(ctx, model.KindDependency, dep.ID, dep)
	})
	if err != nil {
		return nil, err
	}
	r.publish(events.Created, model.KindDependency, dep.ID)
	return dep, nil
}

func checkDependencyKey(ctx context.Context, tx store.Store, name, version, selfID string) error {
	existing, err := store.FindFirst(ctx, tx, model.KindDependency, func(d *model.Dependency) bool {
		return d.Name == name && d.Version == version && d.ID != selfID
	})
	if err != nil {
		return err
	}
	if existing != nil {
		return model.NewConflict(model.KindDependency, dependencyKey(name, version))
	}
	return nil
}

// GetDependency returns a dependency by id.
func (r *Registry) GetDependency(ctx context.Context, id string) (*model.Dependency, error) {
	return getAs[model.Dependency](ctx, r.store, model.KindDependency, id)
}

// ListDependencies returns dependencies matching filter.
func (r *Registry) ListDependencies(ctx context.Context, filter DependencyFilter) ([]*model.Dependency, error) {
	var constraint *semver.Constraints
	if filter.VersionConstraint != "" {
		c, err := semver.NewConstraint(filter.VersionConstraint)
		if err != nil {
			return nil, model.NewInvalidRequest("invalid version constraint: " + err.Error())
		}
		constraint = c
	}

	versions := make(map[string]*semver.Version)
	deps, err := store.ScanAs(ctx, r.store, model.KindDependency, func(d *model.Dependency) bool {
		if filter.Name != "" && d.Name != filter.Name {
			return false
		}
		if filter.DependencyType != "" && d.DependencyType != filter.DependencyType {
			return false
		}
		if constraint == nil {
			return true
		}
		v, err := semver.NewVersion(d.Version)
		if err != nil {
			return false
		}
		versions[d.ID] = v
		return constraint.Check(v)
	})
	if err != nil {
		return nil, err
	}

	if constraint != nil {
		sort.SliceStable(deps, func(i, j int) bool {
			if deps[i].Name != deps[j].Name {
				return deps[i].Name < deps[j].Name
			}
			return versions[deps[i].ID].GreaterThan(versions[deps[j].ID])
		})
	}
	return deps, nil
}

// UpdateDependency applies a partial update, re-checking (name, version)
// uniqueness when either changes.
func (r *Registry) UpdateDependency(ctx context.Context, id string, patch DependencyPatch) (dep *model.Dependency, err error) {
	defer func() { r.observe(model.KindDependency, "update", err) }()

	err = r.store.WithExclusiveAccess(ctx, store.ScopeFor(model.KindDependency), func(ctx context.Context, tx store.Store) error {
		current, err := getAs[model.Dependency](ctx, tx, model.KindDependency, id)
		if err != nil {
			return err
		}
		name, version := current.Name, current.Version
		if patch.Name != nil {
			name = strings.TrimSpace(*patch.Name)
		}
		if patch.Version != nil {
			version = strings.TrimSpace(*patch.Version)
		}
		if name == "" || version == "" {
			return model.NewInvalidRequest("dependency name and version must not be empty")
		}
		if name != current.Name || version != current.Version {
			if err := checkDependencyKey(ctx, tx, name, version, id); err != nil {
				return err
			}
		}
		current.Name, current.Version = name, version
		if patch.Description != nil {
			current.Description = *patch.Description
		}
		if patch.DependencyType != nil {
			if !patch.DependencyType.Valid() {
				return model.NewInvalidRequest("unknown dependency type " + string(*patch.DependencyType))
			}
			current.DependencyType = *patch.DependencyType
		}
		if patch.Config != nil {
			current.Config = cloneStringMap(patch.Config)
		}
		current.UpdatedAt = r.now()
		dep = current
		return tx.Update(ctx, model.KindDependency, id, current)
	})
	if err != nil {
		return nil, err
	}
	r.publish(events.Updated, model.KindDependency, id)
	return dep, nil
}

// DeleteDependency removes a dependency and every edge that names it.
func (r *Registry) DeleteDependency(ctx context.Context, id string) error {
	return r.deleteEntity(ctx, model.KindDependency, id)
}
