// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package catalog

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

// =============================================================================
// Dependencies
// =============================================================================

// HandleCreateDependency handles POST /api/v1/dependencies.
//
// Request Body:
//
//	CreateDependencyRequest
//
// Response:
//
//	201 Created: model.Dependency
//	400 Bad Request: Validation error
//	409 Conflict: (name, version) already registered
func (h *Handlers) HandleCreateDependency(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateDependency")

	var req CreateDependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	in, err := req.input()
	if err != nil {
		respondError(c, logger, "Invalid dependency", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	dep, err := h.svc.Registry.CreateDependency(ctx, in)
	if err != nil {
		respondError(c, logger, "Failed to create dependency", err)
		return
	}
	logger.Info("Dependency created", "dependency_id", dep.ID, "name", dep.Name, "version", dep.Version)
	c.JSON(http.StatusCreated, dep)
}

// HandleListDependencies handles GET /api/v1/dependencies.
//
// Query Parameters:
//
//	name - Exact name
//	type - Dependency type
//	version - Semver constraint, e.g. ">=1.2, <2"
//
// Response:
//
//	200 OK: []model.Dependency
//	400 Bad Request: Malformed constraint or type
func (h *Handlers) HandleListDependencies(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListDependencies")

	var q ListDependenciesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		respondBadRequest(c, logger, "Invalid query", err)
		return
	}
	filter, err := q.filter()
	if err != nil {
		respondError(c, logger, "Invalid query", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	deps, err := h.svc.Registry.ListDependencies(ctx, filter)
	if err != nil {
		respondError(c, logger, "Failed to list dependencies", err)
		return
	}
	c.JSON(http.StatusOK, deps)
}

// HandleGetDependency handles GET /api/v1/dependencies/:id.
func (h *Handlers) HandleGetDependency(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetDependency")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	dep, err := h.svc.Registry.GetDependency(ctx, id)
	if err != nil {
		respondError(c, logger, "Failed to get dependency", err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

// HandleUpdateDependency handles PUT /api/v1/dependencies/:id.
func (h *Handlers) HandleUpdateDependency(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateDependency")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req UpdateDependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondError(c, logger, "Invalid dependency", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	dep, err := h.svc.Registry.UpdateDependency(ctx, id, patch)
	if err != nil {
		respondError(c, logger, "Failed to update dependency", err)
		return
	}
	c.JSON(http.StatusOK, dep)
}

// HandleDeleteDependency handles DELETE /api/v1/dependencies/:id.
//
// Description:
//
//	Deletes the dependency and every service and endpoint edge to it.
func (h *Handlers) HandleDeleteDependency(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteDependency")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Registry.DeleteDependency(ctx, id); err != nil {
		respondError(c, logger, "Failed to delete dependency", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Databases
// =============================================================================

// HandleCreateDatabase handles POST /api/v1/databases.
//
// Request Body:
//
//	CreateDatabaseRequest
//
// Response:
//
//	201 Created: model.DatabaseInstance
//	409 Conflict: Name already taken
func (h *Handlers) HandleCreateDatabase(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateDatabase")

	var req CreateDatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	in, err := req.input()
	if err != nil {
		respondError(c, logger, "Invalid database", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	db, err := h.svc.Registry.CreateDatabase(ctx, in)
	if err != nil {
		respondError(c, logger, "Failed to create database", err)
		return
	}
	logger.Info("Database created", "database_id", db.ID, "name", db.Name)
	c.JSON(http.StatusCreated, db)
}

// HandleListDatabases handles GET /api/v1/databases.
//
// Query Parameters:
//
//	type - Database type (optional)
func (h *Handlers) HandleListDatabases(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListDatabases")

	var dbType model.DatabaseType
	if raw := c.Query("type"); raw != "" {
		t, err := model.ParseDatabaseType(raw)
		if err != nil {
			respondError(c, logger, "Invalid query", err)
			return
		}
		dbType = t
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	dbs, err := h.svc.Registry.ListDatabases(ctx, dbType)
	if err != nil {
		respondError(c, logger, "Failed to list databases", err)
		return
	}
	c.JSON(http.StatusOK, dbs)
}

// HandleGetDatabase handles GET /api/v1/databases/:id.
func (h *Handlers) HandleGetDatabase(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetDatabase")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	db, err := h.svc.Registry.GetDatabase(ctx, id)
	if err != nil {
		respondError(c, logger, "Failed to get database", err)
		return
	}
	c.JSON(http.StatusOK, db)
}

// HandleUpdateDatabase handles PUT /api/v1/databases/:id.
func (h *Handlers) HandleUpdateDatabase(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateDatabase")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req UpdateDatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondError(c, logger, "Invalid database", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	db, err := h.svc.Registry.UpdateDatabase(ctx, id, patch)
	if err != nil {
		respondError(c, logger, "Failed to update database", err)
		return
	}
	c.JSON(http.StatusOK, db)
}

// HandleDeleteDatabase handles DELETE /api/v1/databases/:id.
func (h *Handlers) HandleDeleteDatabase(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteDatabase")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Registry.DeleteDatabase(ctx, id); err != nil {
		respondError(c, logger, "Failed to delete database", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Endpoints
// =============================================================================

// HandleCreateEndpoint handles POST /api/v1/services/:id/endpoints.
//
// Description:
//
//	Creates an endpoint on the service. Inline calls and databases are
//	linked in the same request; an unknown reference creates nothing.
//
// Request Body:
//
//	CreateEndpointRequest
//
// Response:
//
//	201 Created: EndpointResponse
//	400 Bad Request: Validation error
//	404 Not Found: Unknown service, dependency or database
//	409 Conflict: (method, path) already defined on the service
func (h *Handlers) HandleCreateEndpoint(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateEndpoint")

	serviceID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req CreateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	in, err := req.create()
	if err != nil {
		respondError(c, logger, "Invalid endpoint", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	view, err := h.svc.CreateEndpoint(ctx, serviceID, in)
	if err != nil {
		respondError(c, logger, "Failed to create endpoint", err)
		return
	}
	logger.Info("Endpoint created",
		"endpoint_id", view.Endpoint.ID,
		"method", view.Endpoint.Method,
		"path", view.Endpoint.Path,
		"calls", len(view.Calls),
		"databases", len(view.Databases))
	c.JSON(http.StatusCreated, newEndpointResponse(view))
}

// HandleListEndpoints handles GET /api/v1/services/:id/endpoints.
func (h *Handlers) HandleListEndpoints(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListEndpoints")

	serviceID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	eps, err := h.svc.Registry.ListEndpoints(ctx, serviceID)
	if err != nil {
		respondError(c, logger, "Failed to list endpoints", err)
		return
	}
	c.JSON(http.StatusOK, eps)
}

// HandleGetEndpoint handles GET /api/v1/endpoints/:id.
//
// Response:
//
//	200 OK: EndpointResponse
//	404 Not Found: Unknown endpoint
func (h *Handlers) HandleGetEndpoint(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetEndpoint")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	view, err := h.svc.EndpointView(ctx, id)
	if err != nil {
		respondError(c, logger, "Failed to get endpoint", err)
		return
	}
	c.JSON(http.StatusOK, newEndpointResponse(view))
}

// HandleUpdateEndpoint handles PUT /api/v1/endpoints/:id.
func (h *Handlers) HandleUpdateEndpoint(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateEndpoint")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req UpdateEndpointRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondError(c, logger, "Invalid endpoint", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	ep, err := h.svc.Registry.UpdateEndpoint(ctx, id, patch)
	if err != nil {
		respondError(c, logger, "Failed to update endpoint", err)
		return
	}
	c.JSON(http.StatusOK, ep)
}

// HandleDeleteEndpoint handles DELETE /api/v1/endpoints/:id.
func (h *Handlers) HandleDeleteEndpoint(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteEndpoint")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Registry.DeleteEndpoint(ctx, id); err != nil {
		respondError(c, logger, "Failed to delete endpoint", err)
		return
	}
	c.Status(http.StatusNoContent)
}
