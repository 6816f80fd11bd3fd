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
	"strings"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/events"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

// =============================================================================
// Endpoint -> Database
// =============================================================================

// EndpointDatabaseInput describes a new endpoint -> database edge.
type EndpointDatabaseInput struct {
	EndpointID    string
	DatabaseID    string
	OperationType model.OperationType
	TableNames    []string
	Config        map[string]string
}

// EndpointDatabaseView is an endpoint database edge with its database.
type EndpointDatabaseView struct {
	Edge     *model.EndpointDatabase
	Database *model.DatabaseInstance
}

// LinkEndpointDatabase records that an endpoint touches a database.
// OperationType defaults to READ.
func (e *Engine) LinkEndpointDatabase(ctx context.Context, in EndpointDatabaseInput) (*model.EndpointDatabase, error) {
	if in.OperationType == "" {
		in.OperationType = model.OperationRead
	}
	if !in.OperationType.Valid() {
		return nil, e.rejectLink(model.KindEndpointDatabase, model.NewInvalidRequest("unknown operationType "+string(in.OperationType)))
	}
	edge := &model.EndpointDatabase{
		ID:            e.newID(),
		EndpointID:    in.EndpointID,
		DatabaseID:    in.DatabaseID,
		OperationType: in.OperationType,
		TableNames:    trimNames(in.TableNames),
		Config:        cloneStringMap(in.Config),
		CreatedAt:     e.now(),
	}
	key := edge.Key()

	err := linkEdge(ctx, e, model.KindEndpointDatabase, edge.ID, edge, key,
		[]entityRef{
			{kind: model.KindEndpoint, id: in.EndpointID},
			{kind: model.KindDatabase, id: in.DatabaseID},
		},
		func(other *model.EndpointDatabase) bool {
			return other.EndpointID == in.EndpointID && other.DatabaseID == in.DatabaseID
		},
		nil,
	)
	if err != nil {
		return nil, err
	}
	e.publish(events.Linked, model.KindEndpointDatabase, edge.ID, in.EndpointID, in.DatabaseID)
	return edge, nil
}

// UnlinkEndpointDatabase removes the (endpoint, database) edge.
func (e *Engine) UnlinkEndpointDatabase(ctx context.Context, endpointID, databaseID string) error {
	removed, err := unlinkEdge(ctx, e, model.KindEndpointDatabase, model.CompositeKey(endpointID, databaseID, nil),
		func(edge *model.EndpointDatabase) bool {
			return edge.EndpointID == endpointID && edge.DatabaseID == databaseID
		},
		func(edge *model.EndpointDatabase) string { return edge.ID },
	)
	if err != nil {
		return err
	}
	e.publish(events.Unlinked, model.KindEndpointDatabase, removed.ID, endpointID, databaseID)
	return nil
}

// ListEndpointDatabases returns an endpoint's database edges in insertion
// order.
func (e *Engine) ListEndpointDatabases(ctx context.Context, endpointID string) ([]EndpointDatabaseView, error) {
	if err := e.lookup.RequireExists(ctx, nil, model.KindEndpoint, endpointID); err != nil {
		return nil, err
	}
	edges, err := store.ScanAs(ctx, e.store, model.KindEndpointDatabase, func(edge *model.EndpointDatabase) bool {
		return edge.EndpointID == endpointID
	})
	if err != nil {
		return nil, err
	}
	views := make([]EndpointDatabaseView, 0, len(edges))
	for _, edge := range edges {
		db, err := e.resolveDatabase(ctx, edge.DatabaseID)
		if err != nil {
			return nil, err
		}
		views = append(views, EndpointDatabaseView{Edge: edge, Database: db})
	}
	return views, nil
}

// =============================================================================
// Service -> Database
// =============================================================================

// ServiceDatabaseInput describes a new service -> database link.
type ServiceDatabaseInput struct {
	ServiceID          string
	DatabaseID         string
	Environment        *string
	ConnectionOverride map[string]string
	SchemaName         *string
}

// ServiceDatabaseView is a service database link with its database.
type ServiceDatabaseView struct {
	Edge     *model.ServiceDbLink
	Database *model.DatabaseInstance
}

// LinkServiceDatabase records that a service connects to a database,
// optionally in one environment.
func (e *Engine) LinkServiceDatabase(ctx context.Context, in ServiceDatabaseInput) (*model.ServiceDbLink, error) {
	env, err := normalizeEnvironment(in.Environment)
	if err != nil {
		return nil, e.rejectLink(model.KindServiceDbLink, err)
	}
	edge := &model.ServiceDbLink{
		ID:                 e.newID(),
		ServiceID:          in.ServiceID,
		DatabaseID:         in.DatabaseID,
		EnvironmentCode:    env,
		ConnectionOverride: cloneStringMap(in.ConnectionOverride),
		SchemaName:         model.CloneEnvironment(in.SchemaName),
		CreatedAt:          e.now(),
	}
	key := edge.Key()

	err = linkEdge(ctx, e, model.KindServiceDbLink, edge.ID, edge, key,
		[]entityRef{
			{kind: model.KindService, id: in.ServiceID},
			{kind: model.KindDatabase, id: in.DatabaseID},
		},
		func(other *model.ServiceDbLink) bool {
			return other.ServiceID == in.ServiceID &&
				other.DatabaseID == in.DatabaseID &&
				model.SameEnvironment(other.EnvironmentCode, env)
		},
		nil,
	)
	if err != nil {
		return nil, err
	}
	e.publish(events.Linked, model.KindServiceDbLink, edge.ID, in.ServiceID, in.DatabaseID)
	return edge, nil
}

// UnlinkServiceDatabase removes the link with the exact (service, database,
// environment) key.
func (e *Engine) UnlinkServiceDatabase(ctx context.Context, serviceID, databaseID string, env *string) error {
	removed, err := unlinkEdge(ctx, e, model.KindServiceDbLink, model.CompositeKey(serviceID, databaseID, env),
		func(edge *model.ServiceDbLink) bool {
			return edge.ServiceID == serviceID &&
				edge.DatabaseID == databaseID &&
				model.SameEnvironment(edge.EnvironmentCode, env)
		},
		func(edge *model.ServiceDbLink) string { return edge.ID },
	)
	if err != nil {
		return err
	}
	e.publish(events.Unlinked, model.KindServiceDbLink, removed.ID, serviceID, databaseID)
	return nil
}

// ListServiceDatabases returns a service's database links in insertion
// order. A nil env returns every scope.
func (e *Engine) ListServiceDatabases(ctx context.Context, serviceID string, env *string) ([]ServiceDatabaseView, error) {
	if err := e.lookup.RequireExists(ctx, nil, model.KindService, serviceID); err != nil {
		return nil, err
	}
	edges, err := store.ScanAs(ctx, e.store, model.KindServiceDbLink, func(edge *model.ServiceDbLink) bool {
		return edge.ServiceID == serviceID && model.MatchesEnvironmentFilter(edge.EnvironmentCode, env)
	})
	if err != nil {
		return nil, err
	}
	views := make([]ServiceDatabaseView, 0, len(edges))
	for _, edge := range edges {
		db, err := e.resolveDatabase(ctx, edge.DatabaseID)
		if err != nil {
			return nil, err
		}
		views = append(views, ServiceDatabaseView{Edge: edge, Database: db})
	}
	return views, nil
}

func (e *Engine) resolveDatabase(ctx context.Context, id string) (*model.DatabaseInstance, error) {
	db, err := store.GetAs[model.DatabaseInstance](ctx, e.store, model.KindDatabase, id)
	if isAbsent(err) {
		return nil, model.NewNotFound(model.KindDatabase, id)
	}
	return db, err
}

func trimNames(in []string) []string {
	var out []string
	for _, n := range in {
		if n = strings.TrimSpace(n); n != "" {
			out = append(out, n)
		}
	}
	return out
}
