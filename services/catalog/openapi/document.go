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
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

// Document is the subset of an OpenAPI 3 document the loader reads.
type Document struct {
	OpenAPI string                                `json:"openapi"`
	Info    Info                                  `json:"info"`
	Paths   map[string]map[string]json.RawMessage `json:"paths"`
}

// Info is the document's info object.
type Info struct {
	Title       string `json:"title"`
	Version     string `json:"version"`
	Description string `json:"description"`
}

// Operation is one method of a path item.
type Operation struct {
	Tags        []string              `json:"tags"`
	Summary     string                `json:"summary"`
	Description string                `json:"description"`
	OperationID string                `json:"operationId"`
	Parameters  []Parameter           `json:"parameters"`
	RequestBody *RequestBody          `json:"requestBody"`
	Responses   map[string]Response   `json:"responses"`
	Security    []map[string][]string `json:"security"`
}

// Parameter is an operation or path-item parameter.
type Parameter struct {
	Name        string         `json:"name"`
	In          string         `json:"in"`
	Description string         `json:"description,omitempty"`
	Required    *bool          `json:"required,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
}

// RequestBody is an operation's request body.
type RequestBody struct {
	Content  map[string]any `json:"content"`
	Required *bool          `json:"required"`
}

// Response is one entry of an operation's responses.
type Response struct {
	Description string         `json:"description"`
	Content     map[string]any `json:"content"`
}

// operationRef is a decoded operation with its location.
type operationRef struct {
	Path      string
	Method    string
	Operation Operation
	Shared    []Parameter
}

// Decode parses a JSON or YAML OpenAPI document.
//
// Description:
//
//	Input starting with '{' is read as JSON. Anything else is read as YAML,
//	normalized to JSON-compatible values and re-decoded, so both formats
//	share one typed shape. Documents without info.title are rejected.
//
// Outputs:
//
//	*Document - The decoded document.
//	error - InvalidRequestError describing the parse failure.
func Decode(data []byte) (*Document, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, model.NewInvalidRequest("empty OpenAPI document")
	}

	if trimmed[0] != '{' {
		var raw any
		if err := yaml.Unmarshal(trimmed, &raw); err != nil {
			return nil, model.NewInvalidRequest(fmt.Sprintf("failed to parse OpenAPI document: %v", err))
		}
		converted, err := json.Marshal(normalize(raw))
		if err != nil {
			return nil, model.NewInvalidRequest(fmt.Sprintf("failed to parse OpenAPI document: %v", err))
		}
		trimmed = converted
	}

	var doc Document
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, model.NewInvalidRequest(fmt.Sprintf("failed to parse OpenAPI document: %v", err))
	}
	if strings.TrimSpace(doc.Info.Title) == "" {
		return nil, model.NewInvalidRequest("OpenAPI document has no info.title")
	}
	return &doc, nil
}

// normalize turns yaml's map[any]any nodes into map[string]any.
func normalize(v any) any {
	switch t := v.(type) {
	case map[string]any:
		for k, val := range t {
			t[k] = normalize(val)
		}
		return t
	case map[any]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[fmt.Sprint(k)] = normalize(val)
		}
		return out
	case []any:
		for i, val := range t {
			t[i] = normalize(val)
		}
		return t
	default:
		return v
	}
}

// operations returns every path+method pair in path order, then method
// order. Non-operation path-item keys are skipped; method keys the catalog
// does not model are returned in unsupported.
func (d *Document) operations() (ops []operationRef, unsupported []string, err error) {
	paths := make([]string, 0, len(d.Paths))
	for p := range d.Paths {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	for _, path := range paths {
		item := d.Paths[path]

		var shared []Parameter
		if raw, ok := item["parameters"]; ok {
			if err := json.Unmarshal(raw, &shared); err != nil {
				return nil, nil, model.NewInvalidRequest(fmt.Sprintf("%s: bad parameters: %v", path, err))
			}
		}

		keys := make([]string, 0, len(item))
		for k := range item {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			ri, rj := methodRank(keys[i]), methodRank(keys[j])
			if ri != rj {
				return ri < rj
			}
			return keys[i] < keys[j]
		})

		for _, key := range keys {
			if pathItemFields[key] || strings.HasPrefix(key, "x-") {
				continue
			}
			if _, perr := model.ParseMethod(key); perr != nil {
				unsupported = append(unsupported, fmt.Sprintf("%s %s: unsupported HTTP method", strings.ToUpper(key), path))
				continue
			}
			var op Operation
			if err := json.Unmarshal(item[key], &op); err != nil {
				return nil, nil, model.NewInvalidRequest(fmt.Sprintf("%s %s: %v", strings.ToUpper(key), path, err))
			}
			ops = append(ops, operationRef{Path: path, Method: key, Operation: op, Shared: shared})
		}
	}
	return ops, unsupported, nil
}

// pathItemFields are path-item keys that are not operations.
var pathItemFields = map[string]bool{
	"$ref":        true,
	"summary":     true,
	"description": true,
	"servers":     true,
	"parameters":  true,
}

func methodRank(key string) int {
	m := model.Method(strings.ToUpper(key))
	for i, known := range model.Methods {
		if known == m {
			return i
		}
	}
	return len(model.Methods)
}

// operationTags returns the sorted union of operation tags.
func operationTags(ops []operationRef) []string {
	seen := map[string]bool{}
	var out []string
	for _, ref := range ops {
		for _, tag := range ref.Operation.Tags {
			if tag == "" || seen[tag] {
				continue
			}
			seen[tag] = true
			out = append(out, tag)
		}
	}
	sort.Strings(out)
	return out
}

// parameters merges path-item parameters with the operation's own. An
// operation parameter overrides a shared one with the same name and
// location.
func (r operationRef) parameters() []Parameter {
	if len(r.Shared) == 0 {
		return r.Operation.Parameters
	}
	own := map[string]bool{}
	for _, p := range r.Operation.Parameters {
		own[p.In+"/"+p.Name] = true
	}
	var out []Parameter
	for _, p := range r.Shared {
		if !own[p.In+"/"+p.Name] {
			out = append(out, p)
		}
	}
	return append(out, r.Operation.Parameters...)
}
