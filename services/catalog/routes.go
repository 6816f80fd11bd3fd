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
	"github.com/gin-gonic/gin"
)

// RegisterRoutes registers all catalog routes with the router.
//
// Description:
//
//	Registers the /api/v1/* endpoints on the given Gin router group. The
//	group should already have any required middleware applied. GET /health
//	and GET /metrics live on the root router; see RegisterHealth.
//
// Inputs:
//
//	rg - Gin router group (typically /api/v1)
//	handlers - The handlers instance
//
// Registry Endpoints:
//
//	GET/POST /services ; GET/PUT/DELETE /services/:id
//	GET /services/:id/environments ; PUT/DELETE /services/:id/environments/:envCode
//	GET/POST /dependencies ; GET/PUT/DELETE /dependencies/:id
//	GET/POST /databases ; GET/PUT/DELETE /databases/:id
//	GET/POST /services/:id/endpoints ; GET/PUT/DELETE /endpoints/:id
//
// Relationship Endpoints:
//
//	GET/POST /services/:id/dependencies ; PATCH/DELETE /services/:id/dependencies/:dependencyId
//	GET/POST /services/:id/service-dependencies ; GET/PATCH/DELETE /services/:id/service-dependencies/:dependencyId
//	GET/POST /services/:id/databases ; DELETE /services/:id/databases/:databaseId
//	GET/POST /endpoints/:id/dependencies ; DELETE /endpoints/:id/dependencies/:dependencyId
//	GET/POST /endpoints/:id/databases ; DELETE /endpoints/:id/databases/:databaseId
//
// Graph Endpoints:
//
//	GET /dependency-graph - Global graph
//	GET /dependency-graph/order - Providers-first service order
//	GET /dependency-graph/services/:id - Service and endpoint dependencies
//	GET /dependency-graph/endpoints/:id - Endpoint dependencies and databases
//	GET /services/:id/dependency-graph - Direct providers and consumers
//
// OpenAPI Endpoints:
//
//	POST /openapi/load - Import a document by URL
//	POST /openapi/documents - Import a document sent as the body
//	GET  /openapi/status/:serviceId - Import status
//	POST /services/:id/generate-openapi - Render a document
//
// Event Endpoints:
//
//	GET /events - Websocket change stream
//
// Example:
//
//	service := catalog.NewService(store, catalog.DefaultServiceConfig(), metrics, logger)
//	handlers := catalog.NewHandlers(service)
//
//	v1 := router.Group("/api/v1")
//	catalog.RegisterRoutes(v1, handlers)
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	services := rg.Group("/services")
	{
		services.GET("", handlers.HandleListServices)
		services.POST("", handlers.HandleCreateService)
		services.GET("/:id", handlers.HandleGetService)
		services.PUT("/:id", handlers.HandleUpdateService)
		services.DELETE("/:id", handlers.HandleDeleteService)

		// Environments
		services.GET("/:id/environments", handlers.HandleListEnvironments)
		services.PUT("/:id/environments/:envCode", handlers.HandleUpsertEnvironment)
		services.DELETE("/:id/environments/:envCode", handlers.HandleDeleteEnvironment)

		// Endpoints
		services.GET("/:id/endpoints", handlers.HandleListEndpoints)
		services.POST("/:id/endpoints", handlers.HandleCreateEndpoint)

		// =================================================================
		// RELATIONSHIPS
		// =================================================================

		services.GET("/:id/dependencies", handlers.HandleListServiceDependencies)
		services.POST("/:id/dependencies", handlers.HandleLinkServiceDependency)
		services.PATCH("/:id/dependencies/:dependencyId", handlers.HandleUpdateServiceDependency)
		services.DELETE("/:id/dependencies/:dependencyId", handlers.HandleUnlinkServiceDependency)

		services.GET("/:id/service-dependencies", handlers.HandleListServiceLinks)
		services.POST("/:id/service-dependencies", handlers.HandleLinkServices)
		services.GET("/:id/service-dependencies/:dependencyId", handlers.HandleGetServiceLink)
		services.PATCH("/:id/service-dependencies/:dependencyId", handlers.HandleUpdateServiceLink)
		services.DELETE("/:id/service-dependencies/:dependencyId", handlers.HandleUnlinkServices)

		services.GET("/:id/databases", handlers.HandleListServiceDatabases)
		services.POST("/:id/databases", handlers.HandleLinkServiceDatabase)
		services.DELETE("/:id/databases/:databaseId", handlers.HandleUnlinkServiceDatabase)

		// Views
		services.GET("/:id/dependency-graph", handlers.HandleServiceNeighborhood)
		services.POST("/:id/generate-openapi", handlers.HandleGenerateOpenAPI)
	}

	dependencies := rg.Group("/dependencies")
	{
		dependencies.GET("", handlers.HandleListDependencies)
		dependencies.POST("", handlers.HandleCreateDependency)
		dependencies.GET("/:id", handlers.HandleGetDependency)
		dependencies.PUT("/:id", handlers.HandleUpdateDependency)
		dependencies.DELETE("/:id", handlers.HandleDeleteDependency)
	}

	databases := rg.Group("/databases")
	{
		databases.GET("", handlers.HandleListDatabases)
		databases.POST("", handlers.HandleCreateDatabase)
		databases.GET("/:id", handlers.HandleGetDatabase)
		databases.PUT("/:id", handlers.HandleUpdateDatabase)
		databases.DELETE("/:id", handlers.HandleDeleteDatabase)
	}

	endpoints := rg.Group("/endpoints")
	{
		endpoints.GET("/:id", handlers.HandleGetEndpoint)
		endpoints.PUT("/:id", handlers.HandleUpdateEndpoint)
		endpoints.DELETE("/:id", handlers.HandleDeleteEndpoint)

		endpoints.GET("/:id/dependencies", handlers.HandleListEndpointDependencies)
		endpoints.POST("/:id/dependencies", handlers.HandleLinkEndpointDependency)
		endpoints.DELETE("/:id/dependencies/:dependencyId", handlers.HandleUnlinkEndpointDependency)

		endpoints.GET("/:id/databases", handlers.HandleListEndpointDatabases)
		endpoints.POST("/:id/databases", handlers.HandleLinkEndpointDatabase)
		endpoints.DELETE("/:id/databases/:databaseId", handlers.HandleUnlinkEndpointDatabase)
	}

	// =================================================================
	// GRAPH
	// =================================================================

	graphs := rg.Group("/dependency-graph")
	{
		graphs.GET("", handlers.HandleGlobalGraph)
		graphs.GET("/order", handlers.HandleTopologicalOrder)
		graphs.GET("/services/:id", handlers.HandleServiceDetail)
		graphs.GET("/endpoints/:id", handlers.HandleEndpointDetail)
	}

	openAPI := rg.Group("/openapi")
	{
		openAPI.POST("/load", handlers.HandleLoadOpenAPI)
		openAPI.POST("/documents", handlers.HandleUploadOpenAPI)
		openAPI.GET("/status/:serviceId", handlers.HandleOpenAPIStatus)
	}

	rg.GET("/events", handlers.HandleEvents)
}

// RegisterHealth registers GET /health on the root router.
func RegisterHealth(r gin.IRoutes, handlers *Handlers) {
	r.GET("/health", handlers.HandleHealth)
}
