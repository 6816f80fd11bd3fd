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
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-openapi/strfmt"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/openapi"
)

// Handlers contains the HTTP handlers for the catalog.
type Handlers struct {
	svc       *Service
	opTimeout time.Duration
}

// NewHandlers creates handlers for the given service.
func NewHandlers(svc *Service) *Handlers {
	return &Handlers{svc: svc}
}

// WithOperationTimeout bounds the store work of every request. Zero leaves
// only the client's own cancellation.
func (h *Handlers) WithOperationTimeout(d time.Duration) *Handlers {
	h.opTimeout = d
	return h
}

func (h *Handlers) requestContext(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.opTimeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.opTimeout)
}

// getOrCreateRequestID gets the request ID from header or creates a new one.
func getOrCreateRequestID(c *gin.Context) string {
	requestID := c.GetHeader("X-Request-ID")
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Header("X-Request-ID", requestID)
	return requestID
}

// pathID reads a UUID path parameter. It writes the 400 itself and returns
// false when the parameter is malformed.
func pathID(c *gin.Context, logger *slog.Logger, name string) (string, bool) {
	id := c.Param(name)
	if !strfmt.IsUUID(id) {
		logger.Warn("Invalid path parameter", "param", name, "value", id)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid " + name,
			Code:    CodeInvalidRequest,
			Details: map[string]any{"param": name, "value": id},
		})
		return "", false
	}
	return id, true
}

// envQuery reads the environmentCode query parameter. Absent means
// unscoped; present but blank is rejected downstream.
func envQuery(c *gin.Context) *string {
	if v, ok := c.GetQuery("environmentCode"); ok {
		return &v
	}
	return nil
}

// =============================================================================
// Health
// =============================================================================

// HandleHealth handles GET /health.
//
// Response:
//
//	200 OK: HealthResponse
//	503 Service Unavailable: Record store not answering
func (h *Handlers) HandleHealth(c *gin.Context) {
	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Ping(ctx); err != nil {
		slog.Error("Health check failed", "error", err)
		c.JSON(http.StatusServiceUnavailable, HealthResponse{
			Status:  "unhealthy",
			Version: ServiceVersion,
		})
		return
	}
	c.JSON(http.StatusOK, HealthResponse{
		Status:        "healthy",
		Version:       ServiceVersion,
		UptimeSeconds: int64(h.svc.Uptime().Seconds()),
		Subscribers:   h.svc.Events.Subscribers(),
	})
}

// =============================================================================
// Services
// =============================================================================

// HandleCreateService handles POST /api/v1/services.
//
// Request Body:
//
//	CreateServiceRequest
//
// Response:
//
//	201 Created: model.Service
//	400 Bad Request: Validation error
//	409 Conflict: Name already taken
func (h *Handlers) HandleCreateService(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleCreateService")

	var req CreateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	in, err := req.input()
	if err != nil {
		respondError(c, logger, "Invalid service", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	svc, err := h.svc.Registry.CreateService(ctx, in)
	if err != nil {
		respondError(c, logger, "Failed to create service", err)
		return
	}
	logger.Info("Service created", "service_id", svc.ID, "name", svc.Name)
	c.JSON(http.StatusCreated, svc)
}

// HandleListServices handles GET /api/v1/services.
//
// Query Parameters:
//
//	name - Substring of the service name, case-insensitive
//	owner - Owning team
//	serviceType - APPLICATION, LIBRARY, JOB or PROXY
//	tag - Required tag
//
// Response:
//
//	200 OK: []model.Service
func (h *Handlers) HandleListServices(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListServices")

	var q ListServicesQuery
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

	services, err := h.svc.Registry.ListServices(ctx, filter)
	if err != nil {
		respondError(c, logger, "Failed to list services", err)
		return
	}
	c.JSON(http.StatusOK, services)
}

// HandleGetService handles GET /api/v1/services/:id.
//
// Response:
//
//	200 OK: ServiceResponse
//	404 Not Found: Unknown service
func (h *Handlers) HandleGetService(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGetService")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	svc, err := h.svc.Registry.GetService(ctx, id)
	if err != nil {
		respondError(c, logger, "Failed to get service", err)
		return
	}
	envs, err := h.svc.Registry.ListEnvironments(ctx, id)
	if err != nil {
		respondError(c, logger, "Failed to list environments", err)
		return
	}
	c.JSON(http.StatusOK, ServiceResponse{Service: svc, Environments: envs})
}

// HandleUpdateService handles PUT /api/v1/services/:id.
//
// Request Body:
//
//	UpdateServiceRequest
//
// Response:
//
//	200 OK: model.Service
//	400 Bad Request: Validation error
//	404 Not Found: Unknown service
//	409 Conflict: New name already taken
func (h *Handlers) HandleUpdateService(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpdateService")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req UpdateServiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	patch, err := req.patch()
	if err != nil {
		respondError(c, logger, "Invalid service", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	svc, err := h.svc.Registry.UpdateService(ctx, id, patch)
	if err != nil {
		respondError(c, logger, "Failed to update service", err)
		return
	}
	c.JSON(http.StatusOK, svc)
}

// HandleDeleteService handles DELETE /api/v1/services/:id.
//
// Description:
//
//	Deletes the service with its environments, endpoints and every edge
//	that touches it.
//
// Response:
//
//	204 No Content
//	404 Not Found: Unknown service
func (h *Handlers) HandleDeleteService(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteService")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Registry.DeleteService(ctx, id); err != nil {
		respondError(c, logger, "Failed to delete service", err)
		return
	}
	logger.Info("Service deleted", "service_id", id)
	c.Status(http.StatusNoContent)
}

// =============================================================================
// Environments
// =============================================================================

// HandleListEnvironments handles GET /api/v1/services/:id/environments.
func (h *Handlers) HandleListEnvironments(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleListEnvironments")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	envs, err := h.svc.Registry.ListEnvironments(ctx, id)
	if err != nil {
		respondError(c, logger, "Failed to list environments", err)
		return
	}
	c.JSON(http.StatusOK, envs)
}

// HandleUpsertEnvironment handles PUT /api/v1/services/:id/environments/:envCode.
//
// Request Body:
//
//	UpsertEnvironmentRequest
//
// Response:
//
//	201 Created: model.ServiceEnvironment (new environment)
//	200 OK: model.ServiceEnvironment (replaced environment)
//	404 Not Found: Unknown service
func (h *Handlers) HandleUpsertEnvironment(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUpsertEnvironment")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}
	var req UpsertEnvironmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}
	in, err := req.input()
	if err != nil {
		respondError(c, logger, "Invalid environment", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	env, created, err := h.svc.Registry.UpsertEnvironment(ctx, id, c.Param("envCode"), in)
	if err != nil {
		respondError(c, logger, "Failed to upsert environment", err)
		return
	}
	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, env)
}

// HandleDeleteEnvironment handles DELETE /api/v1/services/:id/environments/:envCode.
func (h *Handlers) HandleDeleteEnvironment(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleDeleteEnvironment")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	if err := h.svc.Registry.DeleteEnvironment(ctx, id, c.Param("envCode")); err != nil {
		respondError(c, logger, "Failed to delete environment", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// =============================================================================
// OpenAPI generation
// =============================================================================

// HandleGenerateOpenAPI handles POST /api/v1/services/:id/generate-openapi.
//
// Description:
//
//	Renders the service's endpoints as an OpenAPI 3 document. When env is
//	given, that environment's host becomes the document's server.
//
// Query Parameters:
//
//	env - Environment code (optional)
//	format - json or yaml. Default: json, or yaml when Accept asks for it.
//
// Response:
//
//	200 OK: The document
//	400 Bad Request: Unknown format or blank env
//	404 Not Found: Unknown service or environment
func (h *Handlers) HandleGenerateOpenAPI(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGenerateOpenAPI")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	var env *string
	if v, ok := c.GetQuery("env"); ok {
		env = &v
	}
	format := c.Query("format")
	if format == "" && strings.Contains(c.GetHeader("Accept"), "yaml") {
		format = openapi.FormatYAML
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	doc, err := h.svc.Loader.Generate(ctx, id, env, format)
	if err != nil {
		respondError(c, logger, "Failed to generate OpenAPI document", err)
		return
	}

	contentType := "application/json"
	if strings.EqualFold(format, openapi.FormatYAML) {
		contentType = "application/yaml"
	}
	c.Data(http.StatusOK, contentType, doc)
}

// =============================================================================
// Helpers
// =============================================================================

// envLabel renders an optional environment for logs.
func envLabel(env *string) string {
	return model.EnvironmentLabel(env)
}
