// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package store

import "github.com/AleutianAI/AleutianCatalog/services/catalog/model"

// Reference declares that records of Child hold the parent's id in the
// JSON field Field, and must be deleted with the parent.
type Reference struct {
	Child model.Kind
	Field string
}

// DefaultCascades returns the catalog's referential rules.
func DefaultCascades() map[model.Kind][]Reference {
	return map[model.Kind][]Reference{
		model.KindService: {
			{Child: model.KindServiceEnvironment, Field: "serviceId"},
			{Child: model.KindEndpoint, Field: "serviceId"},
			{Child: model.KindServiceDependency, Field: "serviceId"},
			{Child: model.KindServiceToService, Field: "consumerServiceId"},
			{Child: model.KindServiceToService, Field: "providerServiceId"},
			{Child: model.KindServiceDbLink, Field: "serviceId"},
		},
		model.KindEndpoint: {
			{Child: model.KindEndpointDependency, Field: "endpointId"},
			{Child: model.KindEndpointDatabase, Field: "endpointId"},
		},
		model.KindDependency: {
			{Child: model.KindServiceDependency, Field: "dependencyId"},
			{Child: model.KindEndpointDependency, Field: "dependencyId"},
		},
		model.KindDatabase: {
			{Child: model.KindEndpointDatabase, Field: "databaseId"},
			{Child: model.KindServiceDbLink, Field: "databaseId"},
		},
	}
}
