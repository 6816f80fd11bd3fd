// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package openapi

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

// Output formats accepted by Generate.
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// GeneratedVersion is the info.version written into generated documents.
const GeneratedVersion = "1.0.0"

// Generated is an OpenAPI 3.0.0 document rendered from the catalog.
type Generated struct {
	OpenAPI string                               `json:"openapi" yaml:"openapi"`
	Info    GeneratedInfo                        `json:"info" yaml:"info"`
	Servers []Server                             `json:"servers,omitempty" yaml:"servers,omitempty"`
	Paths   map[string]map[string]map[string]any `json:"paths" yaml:"paths"`
}

// GeneratedInfo is the info object of a generated document.
type GeneratedInfo struct {
	Title       string `json:"title" yaml:"title"`
	Description string `json:"description" yaml:"description"`
	Version     string `json:"version" yaml:"version"`
}

// Server is one entry of the servers list.
type Server struct {
	URL         string `json:"url" yaml:"url"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`
}

// Generate renders a service's endpoints as an OpenAPI document.
//
// Description:
//
//	When env is non-nil the (service, env) environment must exist and its
//	host becomes the single server entry. Endpoints imported by the Loader
//	round-trip their request body, parameters, responses and security;
//	hand-entered schemas are wrapped as application/json bodies.
//
// Inputs:
//
//	ctx - Bounds the registry reads.
//	serviceID - The service to render.
//	env - Optional environment code.
//	format - FormatJSON or FormatYAML. Empty means JSON.
//
// Outputs:
//
//	[]byte - The encoded document.
//	error - NotFoundError, InvalidRequestError for an unknown format, or a store failure.
func (l *Loader) Generate(ctx context.Context, serviceID string, env *string, format string) ([]byte, error) {
	format = strings.ToLower(strings.TrimSpace(format))
	if format == "" {
		format = FormatJSON
	}
	if format != FormatJSON && format != FormatYAML {
		return nil, model.NewInvalidRequest("format must be json or yaml")
	}

	doc, err := l.Document(ctx, serviceID, env)
	if err != nil {
		return nil, err
	}

	if format == FormatYAML {
		out, err := yaml.Marshal(doc)
		if err != nil {
			return nil, fmt.Errorf("encode yaml: %w", err)
		}
		return out, nil
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode json: %w", err)
	}
	return out, nil
}

// Document builds the unencoded document Generate renders.
func (l *Loader) Document(ctx context.Context, serviceID string, env *string) (*Generated, error) {
	svc, err := l.registry.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	doc := &Generated{
		OpenAPI: "3.0.0",
		Info: GeneratedInfo{
			Title:       svc.Name,
			Description: svc.Description,
			Version:     GeneratedVersion,
		},
		Paths: map[string]map[string]map[string]any{},
	}

	if env != nil {
		code := strings.TrimSpace(*env)
		if code == "" {
			return nil, model.NewInvalidRequest("environment code must not be blank")
		}
		e, err := l.registry.GetEnvironment(ctx, serviceID, code)
		if err != nil {
			return nil, err
		}
		doc.Servers = []Server{{URL: e.Host, Description: e.Code + " environment"}}
	}

	eps, err := l.registry.ListEndpoints(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	for _, ep := range eps {
		item := doc.Paths[ep.Path]
		if item == nil {
			item = map[string]map[string]any{}
			doc.Paths[ep.Path] = item
		}
		item[strings.ToLower(string(ep.Method))] = renderOperation(ep)
	}
	return doc, nil
}

func renderOperation(ep *model.Endpoint) map[string]any {
	method := strings.ToLower(string(ep.Method))
	op := map[string]any{
		"summary":     ep.Summary,
		"operationId": method + strings.ReplaceAll(ep.Path, "/", "_"),
	}
	if id, ok := ep.Metadata["operationId"].(string); ok && id != "" {
		op["operationId"] = id
	}
	if desc, ok := ep.Metadata["description"].(string); ok && desc != "" {
		op["description"] = desc
	}
	if tags, ok := ep.Metadata["tags"]; ok {
		op["tags"] = tags
	}

	if rs := ep.RequestSchema; len(rs) > 0 {
		_, hasContent := rs["content"]
		_, hasParams := rs["parameters"]
		if hasContent || hasParams {
			if hasContent {
				body := map[string]any{"content": rs["content"]}
				if req, ok := rs["required"]; ok {
					body["required"] = req
				}
				op["requestBody"] = body
			}
			if hasParams {
				op["parameters"] = rs["parameters"]
			}
		} else {
			op["requestBody"] = map[string]any{
				"required": true,
				"content":  map[string]any{"application/json": map[string]any{"schema": rs}},
			}
		}
	}

	responses := map[string]any{}
	for status, schema := range ep.ResponseSchemas {
		if entry, ok := schema.(map[string]any); ok {
			if _, described := entry["description"]; described {
				responses[status] = entry
				continue
			}
		}
		responses[status] = map[string]any{
			"description": "Response for status " + status,
			"content":     map[string]any{"application/json": map[string]any{"schema": schema}},
		}
	}
	if len(responses) == 0 {
		responses["200"] = map[string]any{"description": "Success"}
	}
	op["responses"] = responses

	if sec, ok := ep.Auth["security"]; ok {
		op["security"] = sec
	} else if typ, ok := ep.Auth["type"].(string); ok && typ != "" {
		op["security"] = []map[string][]string{{typ: {}}}
	}
	return op
}
