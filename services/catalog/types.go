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
	"time"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/registry"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/relations"
)

// =============================================================================
// Health
// =============================================================================

// HealthResponse is the response for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	Version       string `json:"version"`
	UptimeSeconds int64  `json:"uptimeSeconds"`
	Subscribers   int    `json:"eventSubscribers"`
}

// =============================================================================
// Services and environments
// =============================================================================

// CreateServiceRequest is the request body for POST /api/v1/services.
type CreateServiceRequest struct {
	// Name is unique across services. Required, at most 150 characters.
	Name string `json:"name" binding:"required,max=150"`

	Description string `json:"description"`

	// Owner is the owning team. Required, at most 120 characters.
	Owner string `json:"owner" binding:"required,max=120"`

	Tags []string `json:"tags" binding:"omitempty,dive,max=64"`

	// ServiceType is APPLICATION, LIBRARY, JOB or PROXY. Required.
	ServiceType string `json:"serviceType" binding:"required"`

	SupportsDatabase bool `json:"supportsDatabase"`
	Proxy            bool `json:"proxy"`
}

func (r CreateServiceRequest) input() (registry.ServiceInput, error) {
	st, err := model.ParseServiceType(r.ServiceType)
	if err != nil {
		return registry.ServiceInput{}, err
	}
	return registry.ServiceInput{
		Name:             r.Name,
		Description:      r.Description,
		Owner:            r.Owner,
		Tags:             r.Tags,
		ServiceType:      st,
		SupportsDatabase: r.SupportsDatabase,
		Proxy:            r.Proxy,
	}, nil
}

// UpdateServiceRequest is the request body for PUT /api/v1/services/:id.
// Absent fields are left unchanged.
type UpdateServiceRequest struct {
	Name             *string  `json:"name" binding:"omitempty,min=1,max=150"`
	Description      *string  `json:"description"`
	Owner            *string  `json:"owner" binding:"omitempty,min=1,max=120"`
	Tags             []string `json:"tags" binding:"omitempty,dive,max=64"`
	ServiceType      *string  `json:"serviceType"`
	SupportsDatabase *bool    `json:"supportsDatabase"`
	Proxy            *bool    `json:"proxy"`
}

func (r UpdateServiceRequest) patch() (registry.ServicePatch, error) {
	p := registry.ServicePatch{
		Name:             r.Name,
		Description:      r.Description,
		Owner:            r.Owner,
		Tags:             r.Tags,
		SupportsDatabase: r.SupportsDatabase,
		Proxy:            r.Proxy,
	}
	if r.ServiceType != nil {
		st, err := model.ParseServiceType(*r.ServiceType)
		if err != nil {
			return p, err
		}
		p.ServiceType = &st
	}
	return p, nil
}

// ListServicesQuery holds the filters of GET /api/v1/services.
type ListServicesQuery struct {
	// Name matches services whose name contains it, case-insensitively.
	Name        string `form:"name"`
	Owner       string `form:"owner"`
	ServiceType string `form:"serviceType"`
	Tag         string `form:"tag"`
}

func (q ListServicesQuery) filter() (registry.ServiceFilter, error) {
	f := registry.ServiceFilter{NameContains: q.Name, Owner: q.Owner, Tag: q.Tag}
	if q.ServiceType != "" {
		st, err := model.ParseServiceType(q.ServiceType)
		if err != nil {
			return f, err
		}
		f.ServiceType = st
	}
	return f, nil
}

// ServiceResponse is a service with its environments.
type ServiceResponse struct {
	*model.Service
	Environments []*model.ServiceEnvironment `json:"environments,omitempty"`
}

// UpsertEnvironmentRequest is the request body for
// PUT /api/v1/services/:id/environments/:envCode.
type UpsertEnvironmentRequest struct {
	DisplayName string                   `json:"displayName" binding:"required,max=120"`
	Host        string                   `json:"host" binding:"required,max=255"`
	Config      *model.EnvironmentConfig `json:"config"`

	// Status is ACTIVE, INACTIVE or DEPRECATED. Default: ACTIVE.
	Status string `json:"status"`
}

func (r UpsertEnvironmentRequest) input() (registry.EnvironmentInput, error) {
	in := registry.EnvironmentInput{
		DisplayName: r.DisplayName,
		Host:        r.Host,
		Config:      r.Config,
	}
	if r.Status != "" {
		st, err := model.ParseEnvironmentStatus(r.Status)
		if err != nil {
			return in, err
		}
		in.Status = st
	}
	return in, nil
}

// =============================================================================
// Dependencies and databases
// =============================================================================

// CreateDependencyRequest is the request body for POST /api/v1/dependencies.
type CreateDependencyRequest struct {
	Name           string            `json:"name" binding:"required,max=150"`
	Description    string            `json:"description"`
	Version        string            `json:"version" binding:"required,max=50"`
	DependencyType string            `json:"dependencyType" binding:"required"`
	Config         map[string]string `json:"config"`
}

func (r CreateDependencyRequest) input() (registry.DependencyInput, error) {
	dt, err := model.ParseDependencyType(r.DependencyType)
	if err != nil {
		return registry.DependencyInput{}, err
	}
	return registry.DependencyInput{
		Name:           r.Name,
		Version:        r.Version,
		Description:    r.Description,
		DependencyType: dt,
		Config:         r.Config,
	}, nil
}

// UpdateDependencyRequest is the request body for PUT /api/v1/dependencies/:id.
type UpdateDependencyRequest struct {
	Name           *string           `json:"name" binding:"omitempty,min=1,max=150"`
	Description    *string           `json:"description"`
	Version        *string           `json:"version" binding:"omitempty,min=1,max=50"`
	DependencyType *string           `json:"dependencyType"`
	Config         map[string]string `json:"config"`
}

func (r UpdateDependencyRequest) patch() (registry.DependencyPatch, error) {
	p := registry.DependencyPatch{
		Name:        r.Name,
		Description: r.Description,
		Version:     r.Version,
		Config:      r.Config,
	}
	if r.DependencyType != nil {
		dt, err := model.ParseDependencyType(*r.DependencyType)
		if err != nil {
			return p, err
		}
		p.DependencyType = &dt
	}
	return p, nil
}

// ListDependenciesQuery holds the filters of GET /api/v1/dependencies.
type ListDependenciesQuery struct {
	Name           string `form:"name"`
	DependencyType string `form:"type"`

	// Version is a semver constraint such as "^1.2".
	Version string `form:"version"`
}

func (q ListDependenciesQuery) filter() (registry.DependencyFilter, error) {
	f := registry.DependencyFilter{Name: q.Name, VersionConstraint: q.Version}
	if q.DependencyType != "" {
		dt, err := model.ParseDependencyType(q.DependencyType)
		if err != nil {
			return f, err
		}
		f.DependencyType = dt
	}
	return f, nil
}

// CreateDatabaseRequest is the request body for POST /api/v1/databases.
type CreateDatabaseRequest struct {
	Name             string            `json:"name" binding:"required,max=150"`
	Description      string            `json:"description"`
	DatabaseType     string            `json:"databaseType" binding:"required"`
	ConnectionString string            `json:"connectionString" binding:"required"`
	Config           map[string]string `json:"config"`
}

func (r CreateDatabaseRequest) input() (registry.DatabaseInput, error) {
	dt, err := model.ParseDatabaseType(r.DatabaseType)
	if err != nil {
		return registry.DatabaseInput{}, err
	}
	return registry.DatabaseInput{
		Name:             r.Name,
		Description:      r.Description,
		DatabaseType:     dt,
		ConnectionString: r.ConnectionString,
		Config:           r.Config,
	}, nil
}

// UpdateDatabaseRequest is the request body for PUT /api/v1/databases/:id.
type UpdateDatabaseRequest struct {
	Name             *string           `json:"name" binding:"omitempty,min=1,max=150"`
	Description      *string           `json:"description"`
	DatabaseType     *string           `json:"databaseType"`
	ConnectionString *string           `json:"connectionString" binding:"omitempty,min=1"`
	Config           map[string]string `json:"config"`
}

func (r UpdateDatabaseRequest) patch() (registry.DatabasePatch, error) {
	p := registry.DatabasePatch{
		Name:             r.Name,
		Description:      r.Description,
		ConnectionString: r.ConnectionString,
		Config:           r.Config,
	}
	if r.DatabaseType != nil {
		dt, err := model.ParseDatabaseType(*r.DatabaseType)
		if err != nil {
			return p, err
		}
		p.DatabaseType = &dt
	}
	return p, nil
}

// =============================================================================
// Endpoints
// =============================================================================

// EndpointCallRequest is an inline endpoint -> dependency link.
type EndpointCallRequest struct {
	DependencyID string            `json:"dependencyId" binding:"required,uuid"`
	CallType     string            `json:"callType"`
	Config       map[string]string `json:"config"`
}

func (r EndpointCallRequest) input(endpointID string) (relations.EndpointDependencyInput, error) {
	in := relations.EndpointDependencyInput{EndpointID: endpointID, DependencyID: r.DependencyID, Config: r.Config}
	if r.CallType != "" {
		ct, err := model.ParseCallType(r.CallType)
		if err != nil {
			return in, err
		}
		in.CallType = ct
	}
	return in, nil
}

// EndpointDatabaseRequest is an inline endpoint -> database link.
type EndpointDatabaseRequest struct {
	DatabaseID    string            `json:"databaseId" binding:"required,uuid"`
	OperationType string            `json:"operationType"`
	TableNames    []string          `json:"tableNames"`
	Config        map[string]string `json:"config"`
}

func (r EndpointDatabaseRequest) input(endpointID string) (relations.EndpointDatabaseInput, error) {
	in := relations.EndpointDatabaseInput{
		EndpointID: endpointID,
		DatabaseID: r.DatabaseID,
		TableNames: r.TableNames,
		Config:     r.Config,
	}
	if r.OperationType != "" {
		op, err := model.ParseOperationType(r.OperationType)
		if err != nil {
			return in, err
		}
		in.OperationType = op
	}
	return in, nil
}

// CreateEndpointRequest is the request body for
// POST /api/v1/services/:id/endpoints.
type CreateEndpointRequest struct {
	Method          string                    `json:"method" binding:"required"`
	Path            string                    `json:"path" binding:"required,startswith=/"`
	Summary         string                    `json:"summary" binding:"required"`
	RequestSchema   map[string]any            `json:"requestSchema"`
	ResponseSchemas map[string]any            `json:"responseSchemas"`
	Auth            map[string]any            `json:"auth"`
	RateLimit       map[string]any            `json:"rateLimit"`
	Metadata        map[string]any            `json:"metadata"`
	Calls           []EndpointCallRequest     `json:"calls" binding:"omitempty,dive"`
	Databases       []EndpointDatabaseRequest `json:"databases" binding:"omitempty,dive"`
}

func (r CreateEndpointRequest) create() (EndpointCreate, error) {
	m, err := model.ParseMethod(r.Method)
	if err != nil {
		return EndpointCreate{}, err
	}
	out := EndpointCreate{
		Endpoint: registry.EndpointInput{
			Method:          m,
			Path:            r.Path,
			Summary:         r.Summary,
			RequestSchema:   r.RequestSchema,
			ResponseSchemas: r.ResponseSchemas,
			Auth:            r.Auth,
			RateLimit:       r.RateLimit,
			Metadata:        r.Metadata,
		},
	}
	for _, call := range r.Calls {
		in, err := call.input("")
		if err != nil {
			return out, err
		}
		out.Calls = append(out.Calls, in)
	}
	for _, db := range r.Databases {
		in, err := db.input("")
		if err != nil {
			return out, err
		}
		out.Databases = append(out.Databases, in)
	}
	return out, nil
}

// UpdateEndpointRequest is the request body for PUT /api/v1/endpoints/:id.
type UpdateEndpointRequest struct {
	Method          *string        `json:"method"`
	Path            *string        `json:"path" binding:"omitempty,startswith=/"`
	Summary         *string        `json:"summary" binding:"omitempty,min=1"`
	RequestSchema   map[string]any `json:"requestSchema"`
	ResponseSchemas map[string]any `json:"responseSchemas"`
	Auth            map[string]any `json:"auth"`
	RateLimit       map[string]any `json:"rateLimit"`
	Metadata        map[string]any `json:"metadata"`
}

func (r UpdateEndpointRequest) patch() (registry.EndpointPatch, error) {
	p := registry.EndpointPatch{
		Path:            r.Path,
		Summary:         r.Summary,
		RequestSchema:   r.RequestSchema,
		ResponseSchemas: r.ResponseSchemas,
		Auth:            r.Auth,
		RateLimit:       r.RateLimit,
		Metadata:        r.Metadata,
	}
	if r.Method != nil {
		m, err := model.ParseMethod(*r.Method)
		if err != nil {
			return p, err
		}
		p.Method = &m
	}
	return p, nil
}

// EndpointCallResponse is an endpoint -> dependency edge with its dependency.
type EndpointCallResponse struct {
	*model.EndpointDependency
	Dependency *model.Dependency `json:"dependency"`
}

// EndpointDatabaseResponse is an endpoint -> database edge with its database.
type EndpointDatabaseResponse struct {
	*model.EndpointDatabase
	Database *model.DatabaseInstance `json:"database"`
}

// EndpointResponse is an endpoint with its calls and databases.
type EndpointResponse struct {
	*model.Endpoint
	Calls     []EndpointCallResponse     `json:"calls"`
	Databases []EndpointDatabaseResponse `json:"databases"`
}

func newEndpointResponse(v *EndpointView) EndpointResponse {
	resp := EndpointResponse{
		Endpoint:  v.Endpoint,
		Calls:     make([]EndpointCallResponse, 0, len(v.Calls)),
		Databases: make([]EndpointDatabaseResponse, 0, len(v.Databases)),
	}
	for _, c := range v.Calls {
		resp.Calls = append(resp.Calls, EndpointCallResponse{EndpointDependency: c.Edge, Dependency: c.Dependency})
	}
	for _, d := range v.Databases {
		resp.Databases = append(resp.Databases, EndpointDatabaseResponse{EndpointDatabase: d.Edge, Database: d.Database})
	}
	return resp
}

// =============================================================================
// Relationship edges
// =============================================================================

// CreateServiceDependencyRequest is the request body for
// POST /api/v1/services/:id/dependencies.
type CreateServiceDependencyRequest struct {
	DependencyID    string            `json:"dependencyId" binding:"required,uuid"`
	EnvironmentCode *string           `json:"environmentCode"`
	ConfigOverride  map[string]string `json:"configOverride"`
}

// UpdateServiceDependencyRequest is the request body for
// PATCH /api/v1/services/:id/dependencies/:dependencyId.
type UpdateServiceDependencyRequest struct {
	ConfigOverride map[string]string `json:"configOverride"`
}

// ServiceDependencyResponse is a service -> dependency edge with its
// dependency.
type ServiceDependencyResponse struct {
	*model.ServiceDependency
	Dependency *model.Dependency `json:"dependency"`
}

// CreateServiceLinkRequest is the request body for
// POST /api/v1/services/:id/service-dependencies.
type CreateServiceLinkRequest struct {
	ProviderServiceID string  `json:"providerServiceId" binding:"required,uuid"`
	EnvironmentCode   *string           `json:"environmentCode"`
	Description       string            `json:"description"`
	Config            map[string]string `json:"config"`

	// DependencyType is one of model.ServiceDependencyType. Default: API_CALL.
	DependencyType string `json:"dependencyType"`
}

// UpdateServiceLinkRequest is the request body for
// PATCH /api/v1/services/:id/service-dependencies/:dependencyId.
type UpdateServiceLinkRequest struct {
	DependencyType *string `json:"dependencyType"`
	Description    *string `json:"description"`

	// Config replaces the edge config when present. {} clears it.
	Config map[string]string `json:"config"`
}

func (r UpdateServiceLinkRequest) patch() (relations.ServiceLinkPatch, error) {
	p := relations.ServiceLinkPatch{Description: r.Description, Config: r.Config}
	if r.DependencyType != nil {
		dt, err := model.ParseServiceDependencyType(*r.DependencyType)
		if err != nil {
			return p, err
		}
		p.DependencyType = &dt
	}
	return p, nil
}

// CreateServiceDatabaseRequest is the request body for
// POST /api/v1/services/:id/databases.
type CreateServiceDatabaseRequest struct {
	DatabaseID         string            `json:"databaseId" binding:"required,uuid"`
	EnvironmentCode    *string           `json:"environmentCode"`
	SchemaName         *string           `json:"schemaName"`
	ConnectionOverride map[string]string `json:"connectionOverride"`
}

// ServiceDatabaseResponse is a service -> database link with its database.
type ServiceDatabaseResponse struct {
	*model.ServiceDbLink
	Database *model.DatabaseInstance `json:"database"`
}

// =============================================================================
// OpenAPI
// =============================================================================

// LoadOpenAPIRequest is the request body for POST /api/v1/openapi/load.
type LoadOpenAPIRequest struct {
	URL string `json:"url" binding:"required"`

	// Overwrite replaces the service's endpoints. Default: true.
	Overwrite *bool `json:"overwrite"`
}

// LoadOpenAPIResponse is the response for POST /api/v1/openapi/load.
type LoadOpenAPIResponse struct {
	Success          bool      `json:"success"`
	Message          string    `json:"message"`
	ServiceID        string    `json:"serviceId"`
	ServiceName      string    `json:"serviceName"`
	ServiceCreated   bool      `json:"serviceCreated"`
	EndpointsCreated int       `json:"endpointsCreated"`
	EndpointsRemoved int       `json:"endpointsRemoved"`
	EndpointsSkipped int       `json:"endpointsSkipped"`
	Errors           []string  `json:"errors,omitempty"`
	LoadedAt         time.Time `json:"loadedAt"`
}
