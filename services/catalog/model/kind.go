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

// Kind identifies a record collection in the store.
type Kind string

const (
	KindService            Kind = "SERVICE"
	KindServiceEnvironment Kind = "SERVICE_ENVIRONMENT"
	KindDependency         Kind = "DEPENDENCY"
	KindDatabase           Kind = "DATABASE"
	KindEndpoint           Kind = "ENDPOINT"
	KindServiceDependency  Kind = "SERVICE_DEPENDENCY"
	KindServiceToService   Kind = "SERVICE_TO_SERVICE"
	KindEndpointDependency Kind = "ENDPOINT_DEPENDENCY"
	KindEndpointDatabase   Kind = "ENDPOINT_DATABASE"
	KindServiceDbLink      Kind = "SERVICE_DB_LINK"
)

// Kinds lists every collection.
var Kinds = []Kind{
	KindService, KindServiceEnvironment, KindDependency, KindDatabase, KindEndpoint,
	KindServiceDependency, KindServiceToService, KindEndpointDependency,
	KindEndpointDatabase, KindServiceDbLink,
}

var kindLabels = map[Kind]string{
	KindService:            "service",
	KindServiceEnvironment: "service environment",
	KindDependency:         "dependency",
	KindDatabase:           "database",
	KindEndpoint:           "endpoint",
	KindServiceDependency:  "service dependency",
	KindServiceToService:   "service-to-service dependency",
	KindEndpointDependency: "endpoint dependency",
	KindEndpointDatabase:   "endpoint database",
	KindServiceDbLink:      "service database link",
}

// Label returns a lower case human name used in error messages.
func (k Kind) Label() string {
	if l, ok := kindLabels[k]; ok {
		return l
	}
	return string(k)
}

// IsEdge reports whether records of this kind are relationship edges.
func (k Kind) IsEdge() bool {
	switch k {
	case KindServiceDependency, KindServiceToService, KindEndpointDependency,
		KindEndpointDatabase, KindServiceDbLink:
		return true
	}
	return false
}

// SameEnvironment compares optional environment codes. Unset matches only
// unset; set values must be byte-equal.
func SameEnvironment(a, b *string) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

// MatchesEnvironmentFilter reports whether an edge environment passes an
// optional list filter. A nil filter admits every edge.
func MatchesEnvironmentFilter(edgeEnv, filter *string) bool {
	if filter == nil {
		return true
	}
	return edgeEnv != nil && *edgeEnv == *filter
}

// EnvironmentLabel renders an optional environment for messages.
func EnvironmentLabel(env *string) string {
	if env == nil {
		return "global scope"
	}
	return "environment " + *env
}

// CloneEnvironment copies an optional environment code.
func CloneEnvironment(env *string) *string {
	if env == nil {
		return nil
	}
	v := *env
	return &v
}

// Env is a convenience constructor for optional environment codes.
func Env(code string) *string {
	return &code
}
