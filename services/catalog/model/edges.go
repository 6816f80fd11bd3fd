// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package model

import (
	"time"
)

// ServiceDependency records that a service, optionally in one environment,
// uses an external dependency.
type ServiceDependency struct {
	ID              string            `json:"id"`
	ServiceID       string            `json:"serviceId"`
	DependencyID    string            `json:"dependencyId"`
	EnvironmentCode *string           `json:"environmentCode,omitempty"`
	ConfigOverride  map[string]string `json:"configOverride,omitempty"`
	CreatedAt       time.Time         `json:"createdAt"`
	UpdatedAt       time.Time         `json:"updatedAt"`
}

// Key returns the composite uniqueness key.
func (e *ServiceDependency) Key() string {
	return CompositeKey(e.ServiceID, e.DependencyID, e.EnvironmentCode)
}

// ServiceToServiceDependency is a directed consumer -> provider edge.
type ServiceToServiceDependency struct {
	ID                string                `json:"id"`
	ConsumerServiceID string                `json:"consumerServiceId"`
	ProviderServiceID string                `json:"providerServiceId"`
	EnvironmentCode   *string               `json:"environmentCode,omitempty"`
	DependencyType    ServiceDependencyType `json:"dependencyType"`
	Description       string                `json:"description,omitempty"`
	Config            map[string]string     `json:"config,omitempty"`
	CreatedAt         time.Time             `json:"createdAt"`
	UpdatedAt         time.Time             `json:"updatedAt"`
}

// Key returns the composite uniqueness key.
func (e *ServiceToServiceDependency) Key() string {
	return CompositeKey(e.ConsumerServiceID, e.ProviderServiceID, e.EnvironmentCode)
}

// EndpointDependency records that an endpoint calls a dependency.
type EndpointDependency struct {
	ID           string            `json:"id"`
	EndpointID   string            `json:"endpointId"`
	DependencyID string            `json:"dependencyId"`
	CallType     CallType          `json:"callType"`
	Config       map[string]string `json:"config,omitempty"`
	CreatedAt    time.Time         `json:"createdAt"`
}

// Key returns the composite uniqueness key.
func (e *EndpointDependency) Key() string {
	return CompositeKey(e.EndpointID, e.DependencyID, nil)
}

// EndpointDatabase records that an endpoint reads or writes a database.
type EndpointDatabase struct {
	ID            string            `json:"id"`
	EndpointID    string            `json:"endpointId"`
	DatabaseID    string            `json:"databaseId"`
	OperationType OperationType     `json:"operationType"`
	TableNames    []string          `json:"tableNames,omitempty"`
	Config        map[string]string `json:"config,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Key returns the composite uniqueness key.
func (e *EndpointDatabase) Key() string {
	return CompositeKey(e.EndpointID, e.DatabaseID, nil)
}

// ServiceDbLink records that a service, optionally in one environment,
// connects to a database instance.
type ServiceDbLink struct {
	ID                 string            `json:"id"`
	ServiceID          string            `json:"serviceId"`
	DatabaseID         string            `json:"databaseId"`
	EnvironmentCode    *string           `json:"environmentCode,omitempty"`
	ConnectionOverride map[string]string `json:"connectionOverride,omitempty"`
	SchemaName         *string           `json:"schemaName,omitempty"`
	CreatedAt          time.Time         `json:"createdAt"`
}

// Key returns the composite uniqueness key.
func (e *ServiceDbLink) Key() string {
	return CompositeKey(e.ServiceID, e.DatabaseID, e.EnvironmentCode)
}

// CompositeKey renders the uniqueness key of an edge from its two ends and
// optional environment, as used in ConflictError and NotFoundError.
func CompositeKey(from, to string, env *string) string {
	key := from + "->" + to
	if env != nil {
		key += "@" + *env
	}
	return key
}
