// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package graph

import (
	"time"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

// Node and edge type tags carried in the JSON views.
const (
	NodeTypeService        = "service"
	EdgeTypeServiceService = "service_to_service"
)

// =============================================================================
// Global graph
// =============================================================================

// ServiceNode is one service in the global graph.
type ServiceNode struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	ServiceType model.ServiceType `json:"serviceType"`
	Owner       string            `json:"owner"`
	Tags        []string          `json:"tags"`
	Description string            `json:"description,omitempty"`

	// Dependencies lists the external dependencies the service declares in
	// the requested scope, with their versions.
	Dependencies []model.DependencyInfo `json:"dependencies"`
}

// ServiceEdge is one consumer -> provider edge in the global graph.
type ServiceEdge struct {
	ID              string                      `json:"id"`
	From            string                      `json:"from"`
	To              string                      `json:"to"`
	Type            string                      `json:"type"`
	DependencyType  model.ServiceDependencyType `json:"dependencyType"`
	EnvironmentCode *string                     `json:"environmentCode,omitempty"`
	Description     string                      `json:"description,omitempty"`
}

// Metadata summarizes a global graph.
type Metadata struct {
	TotalServices int       `json:"totalServices"`
	TotalEdges    int       `json:"totalEdges"`
	Environment   *string   `json:"environmentCode,omitempty"`
	GeneratedAt   time.Time `json:"generatedAt"`
}

// GlobalGraph is every service plus the service edges in scope.
type GlobalGraph struct {
	Nodes    []ServiceNode `json:"nodes"`
	Edges    []ServiceEdge `json:"edges"`
	Metadata Metadata      `json:"metadata"`
}

// =============================================================================
// Per-service and per-endpoint views
// =============================================================================

// LinkView is a service edge with both ends resolved.
type LinkView struct {
	ID              string                      `json:"id"`
	ConsumerService model.ServiceSummary        `json:"consumerService"`
	ProviderService model.ServiceSummary        `json:"providerService"`
	EnvironmentCode *string                     `json:"environmentCode,omitempty"`
	Description     string                      `json:"description,omitempty"`
	DependencyType  model.ServiceDependencyType `json:"dependencyType"`
	Config          map[string]string           `json:"config,omitempty"`
	CreatedAt       time.Time                   `json:"createdAt"`
	UpdatedAt       time.Time                   `json:"updatedAt"`
}

// NewLinkView resolves edge against its two services.
func NewLinkView(edge *model.ServiceToServiceDependency, consumer, provider *model.Service) LinkView {
	return LinkView{
		ID:              edge.ID,
		ConsumerService: consumer.Summary(),
		ProviderService: provider.Summary(),
		EnvironmentCode: edge.EnvironmentCode,
		Description:     edge.Description,
		DependencyType:  edge.DependencyType,
		Config:          edge.Config,
		CreatedAt:       edge.CreatedAt,
		UpdatedAt:       edge.UpdatedAt,
	}
}

// Neighborhood holds the direct providers and consumers of one service.
type Neighborhood struct {
	ServiceID    string     `json:"serviceId"`
	ServiceName  string     `json:"serviceName"`
	Dependencies []LinkView `json:"dependencies"`
	Dependents   []LinkView `json:"dependents"`
}

// EndpointDependencyInfo is an endpoint dependency flattened into a
// service-level view.
type EndpointDependencyInfo struct {
	EndpointID     string               `json:"endpointId"`
	EndpointPath   string               `json:"endpointPath"`
	EndpointMethod model.Method         `json:"endpointMethod"`
	Dependency     model.DependencyInfo `json:"dependency"`
}

// ServiceDetail holds a service's external dependencies and those of its
// endpoints.
type ServiceDetail struct {
	ServiceID            string                   `json:"serviceId"`
	ServiceName          string                   `json:"serviceName"`
	ServiceDependencies  []model.DependencyInfo   `json:"serviceDependencies"`
	EndpointDependencies []EndpointDependencyInfo `json:"endpointDependencies"`
}

// EndpointDetail holds an endpoint's dependencies and databases.
type EndpointDetail struct {
	EndpointID   string                 `json:"endpointId"`
	Path         string                 `json:"path"`
	Method       model.Method           `json:"method"`
	Summary      string                 `json:"summary"`
	Dependencies []model.DependencyInfo `json:"dependencies"`
	Databases    []model.DatabaseInfo   `json:"databases"`
}

// Order is a providers-first ordering of one environment scope.
type Order struct {
	Environment *string                `json:"environmentCode,omitempty"`
	Services    []model.ServiceSummary `json:"services"`
}
