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
	"context"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/graph"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/relations"
)

// =============================================================================
// Service -> Dependency
// =============================================================================

// HandleLinkServiceDependency handles POST /api/v1/services/:id/dependencies.
//
// Request Body:
//
//	CreateServiceDependencyRequest
//
// Response:
//
//	201 Created: ServiceDependencyResponse
//	404 Not Found: Unknown service or dependency
//	409 Conflict: Already linked in that environment
func (h *Handlers) HandleLinkServiceDependency(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLinkServiceDependency")

	serviceID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req CreateServiceDependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	edge, err := h.svc.Relations.LinkServiceDependency(ctx, relations.ServiceDependencyInput{
		ServiceID:      serviceID,
		DependencyID:   req.DependencyID,
		Environment:    req.EnvironmentCode,
		ConfigOverride: req.ConfigOverride,
	})
	if err != nil {
		respondError(c, logger, "Failed to link dependency", err)
		return
	}
	dep, err := h.svc.Registry.GetDependency(ctx, edge.DependencyID)
	if err != nil {
		respondError(c, logger, "Failed to resolve dependency", err)
		return
	}
	logger.Info("Dependency linked",
		"service_id", serviceID,
		"dependency_id", req.DependencyID,
		"scope", envLabel(req.EnvironmentCode))
	c.JSON(http.StatusCreated, ServiceDependencyResponse{ServiceDependency: edge, Dependency: dep})
}

// HandleListServiceDependencies handles GET /api/v1/services/:id/dependencies.
//
// Query Parameters:
//
//	environmentCode - Restrict to one environment (optional)
func (h *Handlers) HandleListServiceDependencies(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListServiceDependencies")

	serviceID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	views, err := h.svc.Relations.ListServiceDependencies(ctx, serviceID, envQuery(c))
	if err != nil {
		respondError(c, logger, "Failed to list dependencies", err)
		return
	}
	resp := make([]ServiceDependencyResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, ServiceDependencyResponse{ServiceDependency: v.Edge, Dependency: v.Dependency})
	}
	c.JSON(http.StatusOK, resp)
}

// HandleUpdateServiceDependency handles
// PATCH /api/v1/services/:id/dependencies/:dependencyId.
//
// Description:
//
//	Replaces the config override of the edge selected by
//	(service, dependency, environmentCode query).
func (h *Handlers) HandleUpdateServiceDependency(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateServiceDependency")

	serviceID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	dependencyID, ok := pathID(c, logger, "dependencyId")
	if !ok {
		return
	}
	var req UpdateServiceDependencyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	edge, err := h.svc.FindServiceDependency(ctx, serviceID, dependencyID, envQuery(c))
	if err != nil {
		respondError(c, logger, "Failed to find dependency link", err)
		return
	}
	edge, err = h.svc.Relations.UpdateServiceDependency(ctx, edge.ID, req.ConfigOverride)
	if err != nil {
		respondError(c, logger, "Failed to update dependency link", err)
		return
	}
	dep, err := h.svc.Registry.GetDependency(ctx, dependencyID)
	if err != nil {
		respondError(c, logger, "Failed to resolve dependency", err)
		return
	}
	c.JSON(http.StatusOK, ServiceDependencyResponse{ServiceDependency: edge, Dependency: dep})
}

// HandleUnlinkServiceDependency handles
// DELETE /api/v1/services/:id/dependencies/:dependencyId.
//
// Query Parameters:
//
//	environmentCode - The edge's environment; absent selects the unscoped edge
func (h *Handlers) HandleUnlinkServiceDependency(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUnlinkServiceDependency")

	serviceID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	dependencyID, ok := pathID(c, logger, "dependencyId")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Relations.UnlinkServiceDependency(ctx, serviceID, dependencyID, envQuery(c)); err != nil {
		respondError(c, logger, "Failed to unlink dependency", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Service -> Service
// =============================================================================

// HandleLinkServices handles POST /api/v1/services/:id/service-dependencies.
//
// Description:
//
//	Records that service :id consumes providerServiceId. The edge is
//	refused when the provider can already reach the consumer in the same
//	environment scope.
//
// Request Body:
//
//	CreateServiceLinkRequest
//
// Response:
//
//	201 Created: graph.LinkView
//	400 Bad Request: Self link or validation error
//	404 Not Found: Unknown consumer or provider
//	409 Conflict: Duplicate edge (CONFLICT) or cycle (CYCLE_DETECTED)
func (h *Handlers) HandleLinkServices(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLinkServices")

	consumerID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req CreateServiceLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	depType := model.ServiceDependencyAPICall
	if req.DependencyType != "" {
		t, err := model.ParseServiceDependencyType(req.DependencyType)
		if err != nil {
			respondError(c, logger, "Invalid service link", err)
			return
		}
		depType = t
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	edge, err := h.svc.Relations.LinkServices(ctx, relations.ServiceLinkInput{
		ConsumerID:     consumerID,
		ProviderID:     req.ProviderServiceID,
		Environment:    req.EnvironmentCode,
		DependencyType: depType,
		Description:    req.Description,
		Config:         req.Config,
	})
	if err != nil {
		respondError(c, logger, "Failed to link services", err)
		return
	}
	view, err := h.linkView(ctx, edge)
	if err != nil {
		respondError(c, logger, "Failed to resolve service link", err)
		return
	}
	logger.Info("Services linked",
		"consumer_id", consumerID,
		"provider_id", req.ProviderServiceID,
		"scope", envLabel(req.EnvironmentCode))
	c.JSON(http.StatusCreated, view)
}

// HandleListServiceLinks handles GET /api/v1/services/:id/service-dependencies.
//
// Query Parameters:
//
//	direction - outgoing (providers of :id, default) or incoming (consumers)
//	environmentCode - Restrict to one environment (optional)
//
// Response:
//
//	200 OK: []graph.LinkView
func (h *Handlers) HandleListServiceLinks(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListServiceLinks")

	serviceID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	dir := relations.Direction(c.DefaultQuery("direction", string(relations.Outgoing)))

	ctx, cancel := h.requestContext(c)
	defer cancel()

	links, err := h.svc.Relations.ListServiceLinks(ctx, serviceID, dir, envQuery(c))
	if err != nil {
		respondError(c, logger, "Failed to list service links", err)
		return
	}
	self, err := h.svc.Registry.GetService(ctx, serviceID)
	if err != nil {
		respondError(c, logger, "Failed to get service", err)
		return
	}

	views := make([]graph.LinkView, 0, len(links))
	for _, l := range links {
		if dir == relations.Outgoing {
			views = append(views, graph.NewLinkView(l.Edge, self, l.Counterpart))
		} else {
			views = append(views, graph.NewLinkView(l.Edge, l.Counterpart, self))
		}
	}
	c.JSON(http.StatusOK, views)
}

// HandleGetServiceLink handles
// GET /api/v1/services/:id/service-dependencies/:dependencyId.
//
// Response:
//
//	200 OK: graph.LinkView
//	404 Not Found: No such edge consumed by :id
func (h *Handlers) HandleGetServiceLink(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetServiceLink")

	consumerID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	edgeID, ok := pathID(c, logger, "dependencyId")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	edge, err := h.svc.Relations.GetServiceLink(ctx, consumerID, edgeID)
	if err != nil {
		respondError(c, logger, "Failed to get service link", err)
		return
	}
	view, err := h.linkView(ctx, edge)
	if err != nil {
		respondError(c, logger, "Failed to resolve service link", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleUpdateServiceLink handles
// PATCH /api/v1/services/:id/service-dependencies/:dependencyId.
//
// Description:
//
//	Updates the dependency type, description or config of the edge
//	:dependencyId consumed by :id. The edge's environment cannot change.
func (h *Handlers) HandleUpdateServiceLink(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateServiceLink")

	consumerID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	edgeID, ok := pathID(c, logger, "dependencyId")
	if !ok {
		return
	}
	var req UpdateServiceLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondError(c, logger, "Invalid service link", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	edge, err := h.svc.Relations.UpdateServiceLink(ctx, consumerID, edgeID, patch)
	if err != nil {
		respondError(c, logger, "Failed to update service link", err)
		return
	}
	view, err := h.linkView(ctx, edge)
	if err != nil {
		respondError(c, logger, "Failed to resolve service link", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

// HandleUnlinkServices handles
// DELETE /api/v1/services/:id/service-dependencies/:dependencyId.
func (h *Handlers) HandleUnlinkServices(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUnlinkServices")

	consumerID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	edgeID, ok := pathID(c, logger, "dependencyId")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Relations.UnlinkServiceLink(ctx, consumerID, edgeID); err != nil {
		respondError(c, logger, "Failed to unlink services", err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handlers) linkView(ctx context.Context, edge *model.ServiceToServiceDependency) (graph.LinkView, error) {
	consumer, err := h.svc.Registry.GetService(ctx, edge.ConsumerServiceID)
	if err != nil {
		return graph.LinkView{}, err
	}
	provider, err := h.svc.Registry.GetService(ctx, edge.ProviderServiceID)
	if err != nil {
		return graph.LinkView{}, err
	}
	return graph.NewLinkView(edge, consumer, provider), nil
}

// =============================================================================
// Service -> Database
// =============================================================================

// HandleLinkServiceDatabase handles POST /api/v1/services/:id/databases.
//
// Response:
//
//	201 Created: ServiceDatabaseResponse
//	400 Bad Request: Service does not support databases
//	404 Not Found: Unknown service or database
//	409 Conflict: Already linked in that environment
func (h *Handlers) HandleLinkServiceDatabase(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLinkServiceDatabase")

	serviceID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req CreateServiceDatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	link, err := h.svc.Relations.LinkServiceDatabase(ctx, relations.ServiceDatabaseInput{
		ServiceID:          serviceID,
		DatabaseID:         req.DatabaseID,
		Environment:        req.EnvironmentCode,
		ConnectionOverride: req.ConnectionOverride,
		SchemaName:         req.SchemaName,
	})
	if err != nil {
		respondError(c, logger, "Failed to link database", err)
		return
	}
	db, err := h.svc.Registry.GetDatabase(ctx, link.DatabaseID)
	if err != nil {
		respondError(c, logger, "Failed to resolve database", err)
		return
	}
	c.JSON(http.StatusCreated, ServiceDatabaseResponse{ServiceDbLink: link, Database: db})
}

// HandleListServiceDatabases handles GET /api/v1/services/:id/databases.
func (h *Handlers) HandleListServiceDatabases(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListServiceDatabases")

	serviceID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	views, err := h.svc.Relations.ListServiceDatabases(ctx, serviceID, envQuery(c))
	if err != nil {
		respondError(c, logger, "Failed to list databases", err)
		return
	}
	resp := make([]ServiceDatabaseResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, ServiceDatabaseResponse{ServiceDbLink: v.Edge, Database: v.Database})
	}
	c.JSON(http.StatusOK, resp)
}

// HandleUnlinkServiceDatabase handles
// DELETE /api/v1/services/:id/databases/:databaseId.
func (h *Handlers) HandleUnlinkServiceDatabase(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUnlinkServiceDatabase")

	serviceID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	databaseID, ok := pathID(c, logger, "databaseId")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Relations.UnlinkServiceDatabase(ctx, serviceID, databaseID, envQuery(c)); err != nil {
		respondError(c, logger, "Failed to unlink database", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Endpoint -> Dependency / Database
// =============================================================================

// HandleLinkEndpointDependency handles POST /api/v1/endpoints/:id/dependencies.
//
// Request Body:
//
//	EndpointCallRequest
//
// Response:
//
//	201 Created: EndpointCallResponse
//	404 Not Found: Unknown endpoint or dependency
//	409 Conflict: Already linked
func (h *Handlers) HandleLinkEndpointDependency(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLinkEndpointDependency")

	endpointID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req EndpointCallRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	in, err := req.input(endpointID)
	if err != nil {
		respondError(c, logger, "Invalid endpoint dependency", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	edge, err := h.svc.Relations.LinkEndpointDependency(ctx, in)
	if err != nil {
		respondError(c, logger, "Failed to link endpoint dependency", err)
		return
	}
	dep, err := h.svc.Registry.GetDependency(ctx, edge.DependencyID)
	if err != nil {
		respondError(c, logger, "Failed to resolve dependency", err)
		return
	}
	c.JSON(http.StatusCreated, EndpointCallResponse{EndpointDependency: edge, Dependency: dep})
}

// HandleListEndpointDependencies handles GET /api/v1/endpoints/:id/dependencies.
func (h *Handlers) HandleListEndpointDependencies(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListEndpointDependencies")

	endpointID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	views, err := h.svc.Relations.ListEndpointDependencies(ctx, endpointID)
	if err != nil {
		respondError(c, logger, "Failed to list endpoint dependencies", err)
		return
	}
	resp := make([]EndpointCallResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, EndpointCallResponse{EndpointDependency: v.Edge, Dependency: v.Dependency})
	}
	c.JSON(http.StatusOK, resp)
}

// HandleUnlinkEndpointDependency handles
// DELETE /api/v1/endpoints/:id/dependencies/:dependencyId.
func (h *Handlers) HandleUnlinkEndpointDependency(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUnlinkEndpointDependency")

	endpointID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	dependencyID, ok := pathID(c, logger, "dependencyId")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Relations.UnlinkEndpointDependency(ctx, endpointID, dependencyID); err != nil {
		respondError(c, logger, "Failed to unlink endpoint dependency", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// HandleLinkEndpointDatabase handles POST /api/v1/endpoints/:id/databases.
func (h *Handlers) HandleLinkEndpointDatabase(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLinkEndpointDatabase")

	endpointID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req EndpointDatabaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	in, err := req.input(endpointID)
	if err != nil {
		respondError(c, logger, "Invalid endpoint database", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	edge, err := h.svc.Relations.LinkEndpointDatabase(ctx, in)
	if err != nil {
		respondError(c, logger, "Failed to link endpoint database", err)
		return
	}
	db, err := h.svc.Registry.GetDatabase(ctx, edge.DatabaseID)
	if err != nil {
		respondError(c, logger, "Failed to resolve database", err)
		return
	}
	c.JSON(http.StatusCreated, EndpointDatabaseResponse{EndpointDatabase: edge, Database: db})
}

// HandleListEndpointDatabases handles GET /api/v1/endpoints/:id/databases.
func (h *Handlers) HandleListEndpointDatabases(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListEndpointDatabases")

	endpointID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	views, err := h.svc.Relations.ListEndpointDatabases(ctx, endpointID)
	if err != nil {
		respondError(c, logger, "Failed to list endpoint databases", err)
		return
	}
	resp := make([]EndpointDatabaseResponse, 0, len(views))
	for _, v := range views {
		resp = append(resp, EndpointDatabaseResponse{EndpointDatabase: v.Edge, Database: v.Database})
	}
	c.JSON(http.StatusOK, resp)
}

// HandleUnlinkEndpointDatabase handles
// DELETE /api/v1/endpoints/:id/databases/:databaseId.
func (h *Handlers) HandleUnlinkEndpointDatabase(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUnlinkEndpointDatabase")

	endpointID, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	databaseID, ok := pathID(c, logger, "databaseId")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Relations.UnlinkEndpointDatabase(ctx, endpointID, databaseID); err != nil {
		respondError(c, logger, "Failed to unlink endpoint database", err)
		return
	}
	c.Status(http.StatusNoContent)
}
