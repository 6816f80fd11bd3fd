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
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/events"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/graph"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/observability"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

func init() {
	// Set Gin to test mode to reduce noise
	gin.SetMode(gin.TestMode)
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	s, err := store.OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return NewService(s, DefaultServiceConfig(), observability.New(prometheus.NewRegistry()), nil)
}

func setupTestRouter(svc *Service) *gin.Engine {
	router := gin.New()
	handlers := NewHandlers(svc).WithOperationTimeout(5 * time.Second)
	RegisterHealth(router, handlers)
	v1 := router.Group("/api/v1")
	RegisterRoutes(v1, handlers)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func createService(t *testing.T, router http.Handler, name string) *model.Service {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/services", CreateServiceRequest{
		Name:        name,
		Owner:       "platform",
		ServiceType: "APPLICATION",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*model.Service](t, w)
}

func createDependency(t *testing.T, router http.Handler, name, version string) *model.Dependency {
	t.Helper()
	w := doJSON(t, router, http.MethodPost, "/api/v1/dependencies", CreateDependencyRequest{
		Name:           name,
		Version:        version,
		DependencyType: "LIBRARY",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return decode[*model.Dependency](t, w)
}

// =============================================================================
// Health
// =============================================================================

func TestHandlers_HandleHealth(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)

	w := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[HealthResponse](t, w)
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, ServiceVersion, resp.Version)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestHandlers_RequestIDEchoed(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/services", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

// =============================================================================
// Services
// =============================================================================

func TestHandlers_Services(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)

	created := createService(t, router, "checkout")
	assert.Equal(t, model.ServiceTypeApplication, created.ServiceType)

	t.Run("duplicate name conflicts", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/services", CreateServiceRequest{
			Name: "checkout", Owner: "other", ServiceType: "JOB",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, CodeConflict, decode[ErrorResponse](t, w).Code)
	})

	t.Run("missing owner is rejected", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/services", map[string]any{
			"name": "billing", "serviceType": "APPLICATION",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, CodeInvalidRequest, decode[ErrorResponse](t, w).Code)
	})

	t.Run("unknown service type is rejected", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/services", CreateServiceRequest{
			Name: "billing", Owner: "payments", ServiceType: "DAEMON",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get includes environments", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPut, "/api/v1/services/"+created.ID+"/environments/prod", UpsertEnvironmentRequest{
			DisplayName: "Production", Host: "https://checkout.example.com",
		})
		require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

		w = doJSON(t, router, http.MethodPut, "/api/v1/services/"+created.ID+"/environments/prod", UpsertEnvironmentRequest{
			DisplayName: "Production", Host: "https://checkout.internal",
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		w = doJSON(t, router, http.MethodGet, "/api/v1/services/"+created.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		resp := decode[struct {
			ID           string                      `json:"id"`
			Environments []*model.ServiceEnvironment `json:"environments"`
		}](t, w)
		assert.Equal(t, created.ID, resp.ID)
		require.Len(t, resp.Environments, 1)
		assert.Equal(t, "https://checkout.internal", resp.Environments[0].Host)
	})

	t.Run("update renames", func(t *testing.T) {
		name := "checkout-v2"
		w := doJSON(t, router, http.MethodPut, "/api/v1/services/"+created.ID, UpdateServiceRequest{Name: &name})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, name, decode[*model.Service](t, w).Name)
	})

	t.Run("list filters by name", func(t *testing.T) {
		createService(t, router, "inventory")
		w := doJSON(t, router, http.MethodGet, "/api/v1/services?name=INVEN", nil)
		require.Equal(t, http.StatusOK, w.Code)
		list := decode[[]*model.Service](t, w)
		require.Len(t, list, 1)
		assert.Equal(t, "inventory", list[0].Name)
	})

	t.Run("malformed id", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/services/not-a-uuid", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown id", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/services/6f1c2c1e-8a7d-4d55-b1c4-2a8b8f0f0c11", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, CodeNotFound, decode[ErrorResponse](t, w).Code)
	})

	t.Run("delete", func(t *testing.T) {
		w := doJSON(t, router, http.MethodDelete, "/api/v1/services/"+created.ID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = doJSON(t, router, http.MethodGet, "/api/v1/services/"+created.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

// =============================================================================
// Service links and the graph
// =============================================================================

func TestHandlers_ServiceLinks_RejectCycle(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)

	checkout := createService(t, router, "checkout")
	inventory := createService(t, router, "inventory")
	payments := createService(t, router, "payments")

	link := func(consumer, provider *model.Service, env *string) *httptest.ResponseRecorder {
		return doJSON(t, router, http.MethodPost, "/api/v1/services/"+consumer.ID+"/service-dependencies", CreateServiceLinkRequest{
			ProviderServiceID: provider.ID,
			EnvironmentCode:   env,
		})
	}

	w := link(checkout, inventory, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	view := decode[graph.LinkView](t, w)
	assert.Equal(t, "checkout", view.ConsumerService.Name)
	assert.Equal(t, "inventory", view.ProviderService.Name)
	assert.Equal(t, model.ServiceDependencyAPICall, view.DependencyType)

	require.Equal(t, http.StatusCreated, link(inventory, payments, nil).Code)

	t.Run("closing edge is a cycle", func(t *testing.T) {
		w := link(payments, checkout, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		resp := decode[ErrorResponse](t, w)
		assert.Equal(t, CodeCycleDetected, resp.Code)
		assert.Contains(t, resp.Details, "from")
		assert.Contains(t, resp.Details, "to")
	})

	t.Run("other environment is independent", func(t *testing.T) {
		prod := "prod"
		w := link(payments, checkout, &prod)
		assert.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	})

	t.Run("duplicate edge conflicts", func(t *testing.T) {
		w := link(checkout, inventory, nil)
		assert.Equal(t, http.StatusConflict, w.Code)
		assert.Equal(t, CodeConflict, decode[ErrorResponse](t, w).Code)
	})

	t.Run("self link is invalid", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, link(checkout, checkout, nil).Code)
	})

	t.Run("list directions", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/services/"+inventory.ID+"/service-dependencies", nil)
		require.Equal(t, http.StatusOK, w.Code)
		out := decode[[]graph.LinkView](t, w)
		require.Len(t, out, 1)
		assert.Equal(t, "payments", out[0].ProviderService.Name)

		w = doJSON(t, router, http.MethodGet, "/api/v1/services/"+inventory.ID+"/service-dependencies?direction=incoming", nil)
		require.Equal(t, http.StatusOK, w.Code)
		in := decode[[]graph.LinkView](t, w)
		require.Len(t, in, 1)
		assert.Equal(t, "checkout", in[0].ConsumerService.Name)

		w = doJSON(t, router, http.MethodGet, "/api/v1/services/"+inventory.ID+"/service-dependencies?direction=sideways", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("global graph counts edges", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/dependency-graph", nil)
		require.Equal(t, http.StatusOK, w.Code)
		g := decode[graph.GlobalGraph](t, w)
		assert.Len(t, g.Nodes, 3)
		assert.Len(t, g.Edges, 3)
		assert.Equal(t, 3, g.Metadata.TotalEdges)

		w = doJSON(t, router, http.MethodGet, "/api/v1/dependency-graph?environmentCode=prod", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[graph.GlobalGraph](t, w).Edges, 1)
	})

	t.Run("order puts providers first", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/dependency-graph/order", nil)
		require.Equal(t, http.StatusOK, w.Code)
		order := decode[graph.Order](t, w)
		require.Len(t, order.Services, 3)
		names := []string{order.Services[0].Name, order.Services[1].Name, order.Services[2].Name}
		assert.Equal(t, []string{"payments", "inventory", "checkout"}, names)
	})

	t.Run("neighborhood", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/services/"+inventory.ID+"/dependency-graph", nil)
		require.Equal(t, http.StatusOK, w.Code)
		n := decode[graph.Neighborhood](t, w)
		assert.Len(t, n.Dependencies, 1)
		assert.Len(t, n.Dependents, 1)
	})

	t.Run("update and unlink", func(t *testing.T) {
		desc := "reserves stock"
		w := doJSON(t, router, http.MethodPatch,
			"/api/v1/services/"+checkout.ID+"/service-dependencies/"+view.ID,
			UpdateServiceLinkRequest{Description: &desc, Config: map[string]string{"timeoutMs": "250"}})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		updated := decode[graph.LinkView](t, w)
		assert.Equal(t, desc, updated.Description)
		assert.Equal(t, map[string]string{"timeoutMs": "250"}, updated.Config)
		assert.Equal(t, view.EnvironmentCode, updated.EnvironmentCode)

		w = doJSON(t, router, http.MethodGet, "/api/v1/services/"+checkout.ID+"/service-dependencies/"+view.ID, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		got := decode[graph.LinkView](t, w)
		assert.Equal(t, "checkout", got.ConsumerService.Name)
		assert.Equal(t, "250", got.Config["timeoutMs"])

		// The edge belongs to checkout, not inventory.
		w = doJSON(t, router, http.MethodGet, "/api/v1/services/"+inventory.ID+"/service-dependencies/"+view.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doJSON(t, router, http.MethodDelete, "/api/v1/services/"+checkout.ID+"/service-dependencies/"+view.ID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
		w = doJSON(t, router, http.MethodDelete, "/api/v1/services/"+checkout.ID+"/service-dependencies/"+view.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandlers_ServiceDependencies(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)

	checkout := createService(t, router, "checkout")
	redis := createDependency(t, router, "redis-client", "9.2.0")
	base := "/api/v1/services/" + checkout.ID + "/dependencies"

	staging := "staging"
	w := doJSON(t, router, http.MethodPost, base, CreateServiceDependencyRequest{
		DependencyID:    redis.ID,
		EnvironmentCode: &staging,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	resp := decode[ServiceDependencyResponse](t, w)
	require.NotNil(t, resp.Dependency)
	assert.Equal(t, "redis-client", resp.Dependency.Name)

	t.Run("filter by environment", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, base+"?environmentCode=prod", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[[]ServiceDependencyResponse](t, w))

		w = doJSON(t, router, http.MethodGet, base+"?environmentCode=staging", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]ServiceDependencyResponse](t, w), 1)
	})

	t.Run("patch config override", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPatch, base+"/"+redis.ID+"?environmentCode=staging", UpdateServiceDependencyRequest{
			ConfigOverride: map[string]string{"pool": "32"},
		})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "32", decode[ServiceDependencyResponse](t, w).ConfigOverride["pool"])
	})

	t.Run("unlink needs the matching environment", func(t *testing.T) {
		w := doJSON(t, router, http.MethodDelete, base+"/"+redis.ID, nil)
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doJSON(t, router, http.MethodDelete, base+"/"+redis.ID+"?environmentCode=staging", nil)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})

	t.Run("unknown dependency", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, base, CreateServiceDependencyRequest{
			DependencyID: "0b6a3f8e-5d0e-4f8e-9d2c-3c1b7a9e4f21",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestHandlers_DependencyVersionFilter(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)

	createDependency(t, router, "grpc-go", "1.60.0")
	createDependency(t, router, "grpc-go", "1.77.0")
	createDependency(t, router, "grpc-go", "2.0.0")

	w := doJSON(t, router, http.MethodGet, "/api/v1/dependencies?name=grpc-go&version=%3E%3D1.70%2C%3C2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	deps := decode[[]*model.Dependency](t, w)
	require.Len(t, deps, 1)
	assert.Equal(t, "1.77.0", deps[0].Version)

	w = doJSON(t, router, http.MethodGet, "/api/v1/dependencies?version=not-a-range", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// =============================================================================
// Endpoints
// =============================================================================

func TestHandlers_Endpoints(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)

	inventory := createService(t, router, "inventory")
	redis := createDependency(t, router, "redis-client", "9.2.0")

	w := doJSON(t, router, http.MethodPost, "/api/v1/databases", CreateDatabaseRequest{
		Name:             "inventory-db",
		DatabaseType:     "POSTGRESQL",
		ConnectionString: "postgres://inventory",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	db := decode[*model.DatabaseInstance](t, w)

	base := "/api/v1/services/" + inventory.ID + "/endpoints"

	w = doJSON(t, router, http.MethodPost, base, CreateEndpointRequest{
		Method:  "get",
		Path:    "/items/{id}",
		Summary: "Fetch an item",
		Calls:   []EndpointCallRequest{{DependencyID: redis.ID, CallType: "EXTERNAL"}},
		Databases: []EndpointDatabaseRequest{{
			DatabaseID:    db.ID,
			OperationType: "READ",
			TableNames:    []string{"items"},
		}},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	ep := decode[EndpointResponse](t, w)
	assert.Equal(t, model.MethodGet, ep.Method)
	require.Len(t, ep.Calls, 1)
	assert.Equal(t, "redis-client", ep.Calls[0].Dependency.Name)
	require.Len(t, ep.Databases, 1)
	assert.Equal(t, "inventory-db", ep.Databases[0].Database.Name)

	t.Run("duplicate method and path", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, base, CreateEndpointRequest{
			Method: "GET", Path: "/items/{id}", Summary: "again",
		})
		assert.Equal(t, http.StatusConflict, w.Code)
	})

	t.Run("unknown inline dependency creates nothing", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, base, CreateEndpointRequest{
			Method:  "POST",
			Path:    "/items",
			Summary: "Create an item",
			Calls:   []EndpointCallRequest{{DependencyID: "2d0b5a2c-8a61-4e0f-9b3c-5d7e1f2a3b4c"}},
		})
		assert.Equal(t, http.StatusNotFound, w.Code)

		w = doJSON(t, router, http.MethodGet, base, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Len(t, decode[[]*model.Endpoint](t, w), 1)
	})

	t.Run("endpoint detail", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/dependency-graph/endpoints/"+ep.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		d := decode[graph.EndpointDetail](t, w)
		assert.Len(t, d.Dependencies, 1)
		assert.Len(t, d.Databases, 1)
	})

	t.Run("service detail", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/dependency-graph/services/"+inventory.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		d := decode[graph.ServiceDetail](t, w)
		require.Len(t, d.EndpointDependencies, 1)
		assert.Equal(t, "/items/{id}", d.EndpointDependencies[0].EndpointPath)
	})

	t.Run("unlink endpoint database", func(t *testing.T) {
		w := doJSON(t, router, http.MethodDelete, "/api/v1/endpoints/"+ep.ID+"/databases/"+db.ID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(t, router, http.MethodGet, "/api/v1/endpoints/"+ep.ID+"/databases", nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[[]EndpointDatabaseResponse](t, w))
	})

	t.Run("deleting the dependency cascades", func(t *testing.T) {
		w := doJSON(t, router, http.MethodDelete, "/api/v1/dependencies/"+redis.ID, nil)
		assert.Equal(t, http.StatusNoContent, w.Code)

		w = doJSON(t, router, http.MethodGet, "/api/v1/endpoints/"+ep.ID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, decode[EndpointResponse](t, w).Calls)
	})
}

// =============================================================================
// OpenAPI
// =============================================================================

const ordersDoc = `{
  "openapi": "3.0.3",
  "info": {"title": "orders", "version": "2.1.0", "description": "Order intake"},
  "paths": {
    "/orders": {
      "get": {"summary": "List orders", "responses": {"200": {"description": "OK"}}},
      "post": {"summary": "Place an order", "responses": {"201": {"description": "Created"}}}
    }
  }
}`

func TestHandlers_OpenAPI(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)

	docs := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders.json" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(ordersDoc))
	}))
	t.Cleanup(docs.Close)

	w := doJSON(t, router, http.MethodPost, "/api/v1/openapi/load", LoadOpenAPIRequest{URL: docs.URL + "/orders.json"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	loaded := decode[LoadOpenAPIResponse](t, w)
	assert.True(t, loaded.Success)
	assert.True(t, loaded.ServiceCreated)
	assert.Equal(t, "orders", loaded.ServiceName)
	assert.Equal(t, 2, loaded.EndpointsCreated)

	t.Run("status", func(t *testing.T) {
		w := doJSON(t, router, http.MethodGet, "/api/v1/openapi/status/"+loaded.ServiceID, nil)
		require.Equal(t, http.StatusOK, w.Code)
		status := decode[map[string]any](t, w)
		assert.EqualValues(t, 2, status["endpointsCount"])
		assert.Equal(t, docs.URL+"/orders.json", status["source"])
	})

	t.Run("missing document", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/openapi/load", LoadOpenAPIRequest{URL: docs.URL + "/missing.json"})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("generate yaml", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/services/"+loaded.ServiceID+"/generate-openapi?format=yaml", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.Equal(t, "application/yaml", w.Header().Get("Content-Type"))
		assert.Contains(t, w.Body.String(), "/orders:")
	})

	t.Run("generate json with environment", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPut, "/api/v1/services/"+loaded.ServiceID+"/environments/prod", UpsertEnvironmentRequest{
			DisplayName: "Production", Host: "https://orders.example.com",
		})
		require.Equal(t, http.StatusCreated, w.Code)

		w = doJSON(t, router, http.MethodPost, "/api/v1/services/"+loaded.ServiceID+"/generate-openapi?env=prod", nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		assert.True(t, strings.HasPrefix(w.Header().Get("Content-Type"), "application/json"))
		assert.Contains(t, w.Body.String(), "https://orders.example.com")

		w = doJSON(t, router, http.MethodPost, "/api/v1/services/"+loaded.ServiceID+"/generate-openapi?env=qa", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("unknown format", func(t *testing.T) {
		w := doJSON(t, router, http.MethodPost, "/api/v1/services/"+loaded.ServiceID+"/generate-openapi?format=xml", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

const billingDoc = `openapi: 3.0.3
info:
  title: billing
  version: 1.0.0
paths:
  /invoices:
    get:
      summary: List invoices
      responses:
        "200":
          description: OK
`

func TestHandlers_UploadOpenAPI(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)

	upload := func(query, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/openapi/documents"+query, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/yaml")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	w := upload("?origin=billing.yaml", billingDoc)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	loaded := decode[LoadOpenAPIResponse](t, w)
	assert.True(t, loaded.ServiceCreated)
	assert.Equal(t, "billing", loaded.ServiceName)
	assert.Equal(t, 1, loaded.EndpointsCreated)

	t.Run("append skips existing", func(t *testing.T) {
		w := upload("?overwrite=false", billingDoc)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
		again := decode[LoadOpenAPIResponse](t, w)
		assert.False(t, again.ServiceCreated)
		assert.Equal(t, loaded.ServiceID, again.ServiceID)
		assert.Equal(t, 1, again.EndpointsSkipped)
	})

	t.Run("bad overwrite flag", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, upload("?overwrite=maybe", billingDoc).Code)
	})

	t.Run("malformed document", func(t *testing.T) {
		assert.Equal(t, http.StatusBadRequest, upload("", "{not yaml: [").Code)
	})

	t.Run("too large", func(t *testing.T) {
		big := strings.Repeat("#", int(svc.Loader.MaxDocumentBytes())+1)
		assert.Equal(t, http.StatusRequestEntityTooLarge, upload("", big).Code)
	})
}

// =============================================================================
// Events
// =============================================================================

func TestHandlers_HandleEvents(t *testing.T) {
	svc := newTestService(t)
	router := setupTestRouter(svc)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/v1/events?kind=" + string(model.KindService)
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	_ = resp.Body.Close()

	createDependency(t, router, "ignored", "1.0.0")
	created := createService(t, router, "checkout")

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var ev events.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, events.Created, ev.Type)
	assert.Equal(t, model.KindService, ev.Kind)
	assert.Equal(t, created.ID, ev.ID)
}

// =============================================================================
// Error mapping
// =============================================================================

func TestClassify(t *testing.T) {
	env := "prod"
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"not found", model.NewNotFound(model.KindService, "x"), http.StatusNotFound, CodeNotFound},
		{"conflict", model.NewConflict(model.KindService, "x"), http.StatusConflict, CodeConflict},
		{"invalid", model.NewInvalidRequest("bad"), http.StatusBadRequest, CodeInvalidRequest},
		{"cycle", model.NewCycleError("a", "b", &env), http.StatusConflict, CodeCycleDetected},
		{"store", model.ErrStoreFailure, http.StatusServiceUnavailable, CodeStoreUnavailable},
		{"other", assert.AnError, http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := classify(tt.err)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, body.Code)
		})
	}
}
