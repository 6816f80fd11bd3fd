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
	"fmt"
	"strings"
)

// =============================================================================
// Service Types
// =============================================================================

// ServiceType classifies a cataloged service.
type ServiceType string

const (
	ServiceTypeApplication ServiceType = "APPLICATION"
	ServiceTypeLibrary     ServiceType = "LIBRARY"
	ServiceTypeJob         ServiceType = "JOB"
	ServiceTypeProxy       ServiceType = "PROXY"
)

// Valid reports whether t is a known service type.
func (t ServiceType) Valid() bool {
	switch t {
	case ServiceTypeApplication, ServiceTypeLibrary, ServiceTypeJob, ServiceTypeProxy:
		return true
	}
	return false
}

// ParseServiceType converts a wire value into a ServiceType.
func ParseServiceType(s string) (ServiceType, error) {
	t := ServiceType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", invalidEnum("serviceType", s)
	}
	return t, nil
}

// =============================================================================
// Dependency Types
// =============================================================================

// DependencyType classifies an external dependency.
type DependencyType string

const (
	DependencyTypeDatabase    DependencyType = "DATABASE"
	DependencyTypeCache       DependencyType = "CACHE"
	DependencyTypeQueue       DependencyType = "QUEUE"
	DependencyTypeStorage     DependencyType = "STORAGE"
	DependencyTypeExternalAPI DependencyType = "EXTERNAL_API"
	DependencyTypeLibrary     DependencyType = "LIBRARY"
)

// Valid reports whether t is a known dependency type.
func (t DependencyType) Valid() bool {
	switch t {
	case DependencyTypeDatabase, DependencyTypeCache, DependencyTypeQueue,
		DependencyTypeStorage, DependencyTypeExternalAPI, DependencyTypeLibrary:
		return true
	}
	return false
}

// ParseDependencyType converts a wire value into a DependencyType.
func ParseDependencyType(s string) (DependencyType, error) {
	t := DependencyType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", invalidEnum("dependencyType", s)
	}
	return t, nil
}

// =============================================================================
// Database Types
// =============================================================================

// DatabaseType is the engine behind a DatabaseInstance.
type DatabaseType string

const (
	DatabaseTypePostgreSQL    DatabaseType = "POSTGRESQL"
	DatabaseTypeMySQL         DatabaseType = "MYSQL"
	DatabaseTypeMongoDB       DatabaseType = "MONGODB"
	DatabaseTypeRedis         DatabaseType = "REDIS"
	DatabaseTypeElasticsearch DatabaseType = "ELASTICSEARCH"
	DatabaseTypeCassandra     DatabaseType = "CASSANDRA"
	DatabaseTypeSQLite        DatabaseType = "SQLITE"
	DatabaseTypeOracle        DatabaseType = "ORACLE"
	DatabaseTypeMSSQL         DatabaseType = "MSSQL"
)

// Valid reports whether t is a known database engine.
func (t DatabaseType) Valid() bool {
	switch t {
	case DatabaseTypePostgreSQL, DatabaseTypeMySQL, DatabaseTypeMongoDB,
		DatabaseTypeRedis, DatabaseTypeElasticsearch, DatabaseTypeCassandra,
		DatabaseTypeSQLite, DatabaseTypeOracle, DatabaseTypeMSSQL:
		return true
	}
	return false
}

// ParseDatabaseType converts a wire value into a DatabaseType.
func ParseDatabaseType(s string) (DatabaseType, error) {
	t := DatabaseType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", invalidEnum("databaseType", s)
	}
	return t, nil
}

// =============================================================================
// Endpoint Methods
// =============================================================================

// Method is an HTTP method an endpoint answers to.
type Method string

const (
	MethodGet     Method = "GET"
	MethodPost    Method = "POST"
	MethodPut     Method = "PUT"
	MethodPatch   Method = "PATCH"
	MethodDelete  Method = "DELETE"
	MethodHead    Method = "HEAD"
	MethodOptions Method = "OPTIONS"
)

// Methods lists every supported method in OpenAPI path-item order.
var Methods = []Method{
	MethodGet, MethodPut, MethodPost, MethodDelete, MethodOptions, MethodHead, MethodPatch,
}

// Valid reports whether m is a supported method.
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMethod converts a wire value into a Method. Lower case is accepted.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.ToUpper(strings.TrimSpace(s)))
	if !m.Valid() {
		return "", invalidEnum("method", s)
	}
	return m, nil
}

// =============================================================================
// Edge Types
// =============================================================================

// ServiceDependencyType describes the nature of a service-to-service edge.
type ServiceDependencyType string

const (
	ServiceDependencyAPICall           ServiceDependencyType = "API_CALL"
	ServiceDependencyEventSubscription ServiceDependencyType = "EVENT_SUBSCRIPTION"
	ServiceDependencyDataSharing       ServiceDependencyType = "DATA_SHARING"
	ServiceDependencyAuthentication    ServiceDependencyType = "AUTHENTICATION"
	ServiceDependencyProxy             ServiceDependencyType = "PROXY"
	ServiceDependencyLibraryUsage      ServiceDependencyType = "LIBRARY_USAGE"
)

// Valid reports whether t is a known service dependency type.
func (t ServiceDependencyType) Valid() bool {
	switch t {
	case ServiceDependencyAPICall, ServiceDependencyEventSubscription,
		ServiceDependencyDataSharing, ServiceDependencyAuthentication,
		ServiceDependencyProxy, ServiceDependencyLibraryUsage:
		return true
	}
	return false
}

// ParseServiceDependencyType converts a wire value into a ServiceDependencyType.
func ParseServiceDependencyType(s string) (ServiceDependencyType, error) {
	t := ServiceDependencyType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", invalidEnum("dependencyType", s)
	}
	return t, nil
}

// CallType tells whether an endpoint dependency stays inside the platform.
type CallType string

const (
	CallTypeInternal CallType = "INTERNAL"
	CallTypeExternal CallType = "EXTERNAL"
)

// Valid reports whether t is a known call type.
func (t CallType) Valid() bool {
	return t == CallTypeInternal || t == CallTypeExternal
}

// ParseCallType converts a wire value into a CallType.
func ParseCallType(s string) (CallType, error) {
	t := CallType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", invalidEnum("callType", s)
	}
	return t, nil
}

// OperationType is how an endpoint touches a database.
type OperationType string

const (
	OperationRead      OperationType = "READ"
	OperationWrite     OperationType = "WRITE"
	OperationReadWrite OperationType = "READ_WRITE"
)

// Valid reports whether t is a known operation type.
func (t OperationType) Valid() bool {
	return t == OperationRead || t == OperationWrite || t == OperationReadWrite
}

// ParseOperationType converts a wire value into an OperationType.
func ParseOperationType(s string) (OperationType, error) {
	t := OperationType(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", invalidEnum("operationType", s)
	}
	return t, nil
}

// EnvironmentStatus is the lifecycle state of a service environment.
type EnvironmentStatus string

const (
	EnvironmentActive   EnvironmentStatus = "ACTIVE"
	EnvironmentInactive EnvironmentStatus = "INACTIVE"
)

// Valid reports whether s is a known environment status.
func (s EnvironmentStatus) Valid() bool {
	return s == EnvironmentActive || s == EnvironmentInactive
}

// ParseEnvironmentStatus converts a wire value into an EnvironmentStatus.
func ParseEnvironmentStatus(s string) (EnvironmentStatus, error) {
	st := EnvironmentStatus(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return "", invalidEnum("status", s)
	}
	return st, nil
}

func invalidEnum(field, value string) error {
	return NewInvalidRequest(fmt.Sprintf("unknown %s %q", field, value))
}
