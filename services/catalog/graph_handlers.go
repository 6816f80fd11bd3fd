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
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/openapi"
)

// =============================================================================
// Graph views
// =============================================================================

// HandleGlobalGraph handles GET /api/v1/dependency-graph.
//
// Query Parameters:
//
//	environmentCode - Restrict edges to one environment (optional)
//
// Response:
//
//	200 OK: graph.GlobalGraph
func (h *Handlers) HandleGlobalGraph(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleGlobalGraph")

	ctx, cancel := h.requestContext(c)
	defer cancel()

	g, err := h.svc.Graph.GlobalGraph(ctx, envQuery(c))
	if err != nil {
		respondError(c, logger, "Failed to build dependency graph", err)
		return
	}
	c.JSON(http.StatusOK, g)
}

// HandleTopologicalOrder handles GET /api/v1/dependency-graph/order.
//
// Description:
//
//	Lists services providers first for one environment scope: every
//	service appears after all services it consumes. Edges of other
//	environments are ignored.
//
// Query Parameters:
//
//	environmentCode - The scope; absent selects unscoped edges
//
// Response:
//
//	200 OK: graph.Order
func (h *Handlers) HandleTopologicalOrder(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleTopologicalOrder")

	ctx, cancel := h.requestContext(c)
	defer cancel()

	order, err := h.svc.Graph.TopologicalOrder(ctx, envQuery(c))
	if err != nil {
		respondError(c, logger, "Failed to order services", err)
		return
	}
	c.JSON(http.StatusOK, order)
}

// HandleServiceNeighborhood handles GET /api/v1/services/:id/dependency-graph.
//
// Response:
//
//	200 OK: graph.Neighborhood
//	404 Not Found: Unknown service
func (h *Handlers) HandleServiceNeighborhood(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleServiceNeighborhood")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	n, err := h.svc.Graph.ServiceNeighborhood(ctx, id, envQuery(c))
	if err != nil {
		respondError(c, logger, "Failed to build service graph", err)
		return
	}
	c.JSON(http.StatusOK, n)
}

// HandleServiceDetail handles GET /api/v1/dependency-graph/services/:id.
func (h *Handlers) HandleServiceDetail(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleServiceDetail")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	d, err := h.svc.Graph.ServiceDetail(ctx, id)
	if err != nil {
		respondError(c, logger, "Failed to build service detail", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// HandleEndpointDetail handles GET /api/v1/dependency-graph/endpoints/:id.
func (h *Handlers) HandleEndpointDetail(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEndpointDetail")

	id, ok := pathID(c, logger, "id")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	d, err := h.svc.Graph.EndpointDetail(ctx, id)
	if err != nil {
		respondError(c, logger, "Failed to build endpoint detail", err)
		return
	}
	c.JSON(http.StatusOK, d)
}

// =============================================================================
// OpenAPI import
// =============================================================================

// HandleLoadOpenAPI handles POST /api/v1/openapi/load.
//
// Description:
//
//	Fetches an OpenAPI 3 document and registers its operations as
//	endpoints of the service named by info.title, creating the service
//	when needed.
//
// Request Body:
//
//	LoadOpenAPIRequest
//
// Response:
//
//	200 OK: LoadOpenAPIResponse
//	400 Bad Request: Bad URL, non-200 fetch or malformed document
//	502 Bad Gateway: Document host unreachable
func (h *Handlers) HandleLoadOpenAPI(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleLoadOpenAPI")

	var req LoadOpenAPIRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, logger, "Invalid request body", err)
		return
	}

	logger.Info("Loading OpenAPI document", "url", req.URL)

	// The fetch has its own timeout; only the client bounds this request.
	result, err := h.svc.Loader.Load(c.Request.Context(), openapi.LoadRequest{
		URL:       req.URL,
		Overwrite: req.Overwrite,
	})
	if err != nil {
		respondError(c, logger, "Failed to load OpenAPI document", err)
		return
	}

	logger.Info("OpenAPI document loaded",
		"service_id", result.ServiceID,
		"endpoints_created", result.EndpointsCreated,
		"endpoints_skipped", result.EndpointsSkipped,
		"errors", len(result.Errors))

	c.JSON(http.StatusOK, LoadOpenAPIResponse{
		Success:          len(result.Errors) == 0,
		Message:          loadMessage(result),
		ServiceID:        result.ServiceID,
		ServiceName:      result.ServiceName,
		ServiceCreated:   result.ServiceCreated,
		EndpointsCreated: result.EndpointsCreated,
		EndpointsRemoved: result.EndpointsRemoved,
		EndpointsSkipped: result.EndpointsSkipped,
		Errors:           result.Errors,
		LoadedAt:         time.Now().UTC(),
	})
}

// HandleUploadOpenAPI handles POST /api/v1/openapi/documents.
//
// Description:
//
//	Imports an OpenAPI 3 document sent as the raw request body, JSON or
//	YAML. Used by `catalog import <file>`.
//
// Query Parameters:
//
//	origin - Recorded as the endpoints' source (default "upload")
//	overwrite - "false" appends instead of replacing endpoints
//
// Response:
//
//	200 OK: LoadOpenAPIResponse
//	400 Bad Request: Malformed document
//	413 Request Entity Too Large: Document over the size cap
func (h *Handlers) HandleUploadOpenAPI(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleUploadOpenAPI")

	overwrite := true
	if raw, ok := c.GetQuery("overwrite"); ok {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			respondBadRequest(c, logger, "Invalid overwrite flag", err)
			return
		}
		overwrite = v
	}
	origin := c.DefaultQuery("origin", "upload")

	limit := h.svc.Loader.MaxDocumentBytes()
	data, err := io.ReadAll(http.MaxBytesReader(c.Writer, c.Request.Body, limit))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			logger.Warn("OpenAPI upload too large", "limit", limit)
			c.JSON(http.StatusRequestEntityTooLarge, ErrorResponse{
				Error: fmt.Sprintf("OpenAPI document exceeds %d bytes", limit),
				Code:  CodeInvalidRequest,
			})
			return
		}
		respondBadRequest(c, logger, "Failed to read request body", err)
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	result, err := h.svc.Loader.LoadDocument(ctx, data, origin, overwrite)
	if err != nil {
		respondError(c, logger, "Failed to import OpenAPI document", err)
		return
	}

	c.JSON(http.StatusOK, LoadOpenAPIResponse{
		Success:          len(result.Errors) == 0,
		Message:          loadMessage(result),
		ServiceID:        result.ServiceID,
		ServiceName:      result.ServiceName,
		ServiceCreated:   result.ServiceCreated,
		EndpointsCreated: result.EndpointsCreated,
		EndpointsRemoved: result.EndpointsRemoved,
		EndpointsSkipped: result.EndpointsSkipped,
		Errors:           result.Errors,
		LoadedAt:         time.Now().UTC(),
	})
}

func loadMessage(r *openapi.LoadResult) string {
	var b strings.Builder
	if r.ServiceCreated {
		b.WriteString("Created service ")
	} else {
		b.WriteString("Updated service ")
	}
	b.WriteString(r.ServiceName)
	if len(r.Errors) > 0 {
		b.WriteString(" with errors")
	}
	return b.String()
}

// HandleOpenAPIStatus handles GET /api/v1/openapi/status/:serviceId.
//
// Response:
//
//	200 OK: openapi.LoadStatus
//	404 Not Found: Unknown service
func (h *Handlers) HandleOpenAPIStatus(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleOpenAPIStatus")

	id, ok := pathID(c, logger, "serviceId")
	if !ok {
		return
	}

	ctx, cancel := h.requestContext(c)
	defer cancel()

	status, err := h.svc.Loader.Status(ctx, id)
	if err != nil {
		respondError(c, logger, "Failed to get import status", err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// =============================================================================
// Change events
// =============================================================================

const eventWriteTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
}

// HandleEvents handles GET /api/v1/events.
//
// Description:
//
//	Upgrades to a websocket and streams change events as JSON until the
//	client disconnects. A subscriber that falls behind loses events; the
//	loss is counted, not reported on the stream. Clients holding graph
//	views should refetch on any event.
//
// Query Parameters:
//
//	kind - Only stream events for these record kinds (repeatable)
func (h *Handlers) HandleEvents(c *gin.Context) {
	requestID := getOrCreateRequestID(c)
	logger := slog.With("request_id", requestID, "handler", "HandleEvents")

	kinds := map[model.Kind]bool{}
	for _, k := range c.QueryArray("kind") {
		kinds[model.Kind(k)] = true
	}

	// Subscribe first so nothing published after the handshake is missed.
	sub := h.svc.Events.Subscribe()
	defer sub.Close()

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logger.Error("Failed to upgrade the websocket", "error", err)
		return
	}
	defer ws.Close()
	logger.Info("Event subscriber connected", "subscribers", h.svc.Events.Subscribers())

	// The client sends nothing; reading surfaces its close frame.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-closed:
			logger.Info("Event subscriber disconnected")
			return
		case <-c.Request.Context().Done():
			return
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if len(kinds) > 0 && !kinds[ev.Kind] {
				continue
			}
			_ = ws.SetWriteDeadline(time.Now().Add(eventWriteTimeout))
			if err := ws.WriteJSON(ev); err != nil {
				logger.Warn("Failed to write event", "error", err)
				return
			}
		}
	}
}
