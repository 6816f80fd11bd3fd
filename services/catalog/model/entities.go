// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package model defines the entities, edges and error taxonomy of the
// service catalog.
//
// Entities are owned by the registry. Edges are owned by the relationship
// engine and reference entities only by id; nothing in this package loads
// related records implicitly.
package model

import (
	"strings"
	"time"
)

// Service is a deployable unit.
type Service struct {
	ID               string      `json:"id"`
	Name             string      `json:"name"`
	Description      string      `json:"description,omitempty"`
	Owner            string      `json:"owner"`
	Tags             []string    `json:"tags"`
	ServiceType      ServiceType `json:"serviceType"`
	SupportsDatabase bool        `json:"supportsDatabase"`
	Proxy            bool        `json:"proxy"`
	CreatedAt        time.Time   `json:"createdAt"`
	UpdatedAt        time.Time   `json:"updatedAt"`
}

// Summary returns the compact form embedded in edge views.
func (s *Service) Summary() ServiceSummary {
	return ServiceSummary{
		ID:          s.ID,
		Name:        s.Name,
		Description: s.Description,
		ServiceType: s.ServiceType,
		Owner:       s.Owner,
	}
}

// HasTag reports whether the service carries tag, case-insensitively.
func (s *Service) HasTag(tag string) bool {
	for _, t := range s.Tags {
		if strings.EqualFold(t, tag) {
			return true
		}
	}
	return false
}

// ServiceSummary is the service shape embedded in relationship views.
type ServiceSummary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	ServiceType ServiceType `json:"serviceType"`
	Owner       string      `json:"owner"`
}

// EnvironmentConfig holds per-environment runtime overrides.
type EnvironmentConfig struct {
	TimeoutMs           *int              `json:"timeoutMs,omitempty"`
	Retries             *int              `json:"retries,omitempty"`
	DownstreamOverrides map[string]string `json:"downstreamOverrides,omitempty"`
}

// ServiceEnvironment is a deployment context of one service.
type ServiceEnvironment struct {
	ID          string             `json:"id"`
	ServiceID   string             `json:"serviceId"`
	Code        string             `json:"code"`
	DisplayName string             `json:"displayName"`
	Host        string             `json:"host"`
	Config      *EnvironmentConfig `json:"config,omitempty"`
	Status      EnvironmentStatus  `json:"status"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// Dependency is an external library, queue, cache, store or API.
type Dependency struct {
	ID             string            `json:"id"`
	Name           string            `json:"name"`
	Version        string            `json:"version"`
	Description    string            `json:"description,omitempty"`
	DependencyType DependencyType    `json:"type"`
	Config         map[string]string `json:"config,omitempty"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

// Info returns the compact form embedded in relationship views.
func (d *Dependency) Info() DependencyInfo {
	return DependencyInfo{
		DependencyID: d.ID,
		Name:         d.Name,
		Type:         d.DependencyType,
		Version:      d.Version,
	}
}

// DependencyInfo is the dependency shape embedded in relationship views.
type DependencyInfo struct {
	DependencyID string         `json:"dependencyId"`
	Name         string         `json:"name"`
	Type         DependencyType `json:"type"`
	Version      string         `json:"version"`
}

// DatabaseInstance is a concrete database a service or endpoint touches.
type DatabaseInstance struct {
	ID               string            `json:"id"`
	Name             string            `json:"name"`
	Description      string            `json:"description,omitempty"`
	DatabaseType     DatabaseType      `json:"type"`
	ConnectionString string            `json:"connectionString"`
	Config           map[string]string `json:"config,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// Info returns the compact form embedded in relationship views.
func (d *DatabaseInstance) Info() DatabaseInfo {
	return DatabaseInfo{
		DatabaseID: d.ID,
		Name:       d.Name,
		Type:       d.DatabaseType,
		Host:       d.ConnectionString,
	}
}

// DatabaseInfo is the database shape embedded in relationship views.
type DatabaseInfo struct {
	DatabaseID string       `json:"databaseId"`
	Name       string       `json:"name"`
	Type       DatabaseType `json:"type"`
	Host       string       `json:"host"`
}

// Endpoint is one operation a service exposes.
type Endpoint struct {
	ID              string         `json:"id"`
	ServiceID       string         `json:"serviceId"`
	Method          Method         `json:"method"`
	Path            string         `json:"path"`
	Summary         string         `json:"summary"`
	RequestSchema   map[string]any `json:"requestSchema,omitempty"`
	ResponseSchemas map[string]any `json:"responseSchemas,omitempty"`
	Auth            map[string]any `json:"auth,omitempty"`
	RateLimit       map[string]any `json:"rateLimit,omitempty"`
	Metadata        map[string]any `json:"metadata,omitempty"`
	CreatedAt       time.Time      `json:"createdAt"`
	UpdatedAt       time.Time      `json:"updatedAt"`
}

// EndpointKey returns the (serviceId, method, path) uniqueness key.
func EndpointKey(serviceID string, method Method, path string) string {
	return serviceID + " " + string(method) + " " + path
}
