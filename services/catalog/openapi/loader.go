// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package openapi ingests OpenAPI documents into the catalog and renders
// catalog services back out as OpenAPI.
//
// # Description
//
// The Loader turns one document into one service plus its endpoints. It
// only calls public registry operations, so every write goes through the
// same uniqueness checks and change events as the HTTP API. Documents
// arrive from a URL (Load), from bytes (LoadDocument), or from a watched
// directory (DirWatcher).
//
// # Thread Safety
//
// Loader and DirWatcher are safe for concurrent use.
package openapi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-openapi/strfmt"
	"golang.org/x/time/rate"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/observability"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/registry"
)

// ImportOwner is the owner recorded on services created by an import.
const ImportOwner = "OpenAPI Import"

// DefaultSummary fills in operations that carry no summary.
const DefaultSummary = "No summary provided"

// Import sources, used as the metrics label.
const (
	SourceURL  = "url"
	SourceFile = "file"
)

// ErrFetchFailed indicates the document could not be retrieved.
var ErrFetchFailed = errors.New("openapi: fetch failed")

// LoadRequest asks the Loader to import the document at URL.
type LoadRequest struct {
	URL string

	// Overwrite replaces the service's endpoints when true or nil.
	Overwrite *bool
}

func (r LoadRequest) overwrite() bool {
	return r.Overwrite == nil || *r.Overwrite
}

// LoadResult reports what an import changed.
type LoadResult struct {
	ServiceID        string   `json:"serviceId"`
	ServiceName      string   `json:"serviceName"`
	ServiceCreated   bool     `json:"serviceCreated"`
	EndpointsCreated int      `json:"endpointsCreated"`
	EndpointsRemoved int      `json:"endpointsRemoved"`
	EndpointsSkipped int      `json:"endpointsSkipped"`
	Errors           []string `json:"errors,omitempty"`
}

// LoadStatus summarizes a service from the import point of view.
type LoadStatus struct {
	ServiceID      string     `json:"serviceId"`
	ServiceName    string     `json:"serviceName"`
	Description    string     `json:"description,omitempty"`
	EndpointsCount int        `json:"endpointsCount"`
	LastUpdated    time.Time  `json:"lastUpdated"`
	LastImportedAt *time.Time `json:"lastImportedAt,omitempty"`
	Source         string     `json:"source,omitempty"`
	Tags           []string   `json:"tags"`
}

// Loader imports OpenAPI documents through the registry.
type Loader struct {
	registry *registry.Registry
	client   *http.Client
	limiter  *rate.Limiter
	maxBytes int64
	metrics  *observability.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// Option configures a Loader.
type Option func(*Loader)

// WithHTTPClient sets the client used by Load.
func WithHTTPClient(c *http.Client) Option {
	return func(l *Loader) { l.client = c }
}

// WithRateLimit bounds outbound fetches to perSec with the given burst.
func WithRateLimit(perSec float64, burst int) Option {
	return func(l *Loader) { l.limiter = rate.NewLimiter(rate.Limit(perSec), max(burst, 1)) }
}

// WithMaxDocumentBytes caps the size of a fetched document.
func WithMaxDocumentBytes(n int64) Option {
	return func(l *Loader) { l.maxBytes = n }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Loader) { l.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(lg *slog.Logger) Option {
	return func(l *Loader) { l.logger = lg }
}

// WithClock overrides the import timestamp source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(l *Loader) { l.now = now }
}

// NewLoader creates a Loader writing through reg.
//
// Defaults: 15s fetch timeout, 2 fetches per second with a burst of 4, and
// a 10 MiB document cap.
func NewLoader(reg *registry.Registry, opts ...Option) *Loader {
	l := &Loader{
		registry: reg,
		client:   &http.Client{Timeout: 15 * time.Second},
		limiter:  rate.NewLimiter(2, 4),
		maxBytes: 10 << 20,
		logger:   slog.Default(),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = l.logger.With("component", "openapi")
	return l
}

// Load fetches the document at req.URL and imports it.
//
// Description:
//
//	The URL must be an absolute http(s) URI. Fetches wait on the loader's
//	rate limiter, so a burst of imports cannot hammer one upstream. A non-200
//	response or an oversized body is an InvalidRequestError; transport
//	failures wrap ErrFetchFailed.
//
// Inputs:
//
//	ctx - Bounds the fetch and the registry writes.
//	req - The URL and overwrite flag.
//
// Outputs:
//
//	*LoadResult - What the import changed.
//	error - InvalidRequestError, ErrFetchFailed, or a registry error.
func (l *Loader) Load(ctx context.Context, req LoadRequest) (result *LoadResult, err error) {
	defer func() { l.observe(SourceURL, result, err) }()

	target := strings.TrimSpace(req.URL)
	if err := validateURL(target); err != nil {
		return nil, err
	}

	data, err := l.fetch(ctx, target)
	if err != nil {
		l.logger.Warn("openapi fetch failed", "url", target, "error", err)
		return nil, err
	}
	return l.load(ctx, data, target, req.overwrite())
}

// MaxDocumentBytes returns the document size cap.
func (l *Loader) MaxDocumentBytes() int64 {
	return l.maxBytes
}

// LoadDocument imports an already-read document. origin is recorded in
// endpoint metadata.
func (l *Loader) LoadDocument(ctx context.Context, data []byte, origin string, overwrite bool) (result *LoadResult, err error) {
	defer func() { l.observe(SourceFile, result, err) }()
	return l.load(ctx, data, origin, overwrite)
}

func validateURL(raw string) error {
	if raw == "" {
		return model.NewInvalidRequest("url is required")
	}
	if !strfmt.Default.Validates("uri", raw) {
		return model.NewInvalidRequest("invalid URL format")
	}
	u, err := url.Parse(raw)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return model.NewInvalidRequest("URL must be absolute http or https")
	}
	return nil
}

func (l *Loader) fetch(ctx context.Context, target string) ([]byte, error) {
	if err := l.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, model.NewInvalidRequest(fmt.Sprintf("invalid URL: %v", err))
	}
	req.Header.Set("Accept", "application/json, application/yaml;q=0.9, */*;q=0.5")

	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, model.NewInvalidRequest(fmt.Sprintf("failed to fetch OpenAPI document: HTTP %d", resp.StatusCode))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, l.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrFetchFailed, err)
	}
	if int64(len(data)) > l.maxBytes {
		return nil, model.NewInvalidRequest(fmt.Sprintf("OpenAPI document exceeds %d bytes", l.maxBytes))
	}
	return data, nil
}

func (l *Loader) load(ctx context.Context, data []byte, origin string, overwrite bool) (*LoadResult, error) {
	doc, err := Decode(data)
	if err != nil {
		return nil, err
	}
	ops, unsupported, err := doc.operations()
	if err != nil {
		return nil, err
	}

	svc, created, err := l.findOrCreateService(ctx, doc, ops, overwrite)
	if err != nil {
		return nil, err
	}

	result := &LoadResult{
		ServiceID:      svc.ID,
		ServiceName:    svc.Name,
		ServiceCreated: created,
		Errors:         unsupported,
	}

	importedAt := l.now().Format(time.RFC3339Nano)
	inputs := make([]registry.EndpointInput, 0, len(ops))
	for _, ref := range ops {
		inputs = append(inputs, buildEndpoint(ref, origin, importedAt))
	}

	if overwrite {
		eps, removed, err := l.registry.ReplaceEndpoints(ctx, svc.ID, inputs)
		if err != nil {
			return nil, err
		}
		result.EndpointsCreated = len(eps)
		result.EndpointsRemoved = removed
	} else if err := l.appendEndpoints(ctx, svc.ID, inputs, result); err != nil {
		return nil, err
	}

	l.logger.Info("openapi document imported",
		"service_id", svc.ID,
		"service", svc.Name,
		"origin", origin,
		"created", result.EndpointsCreated,
		"removed", result.EndpointsRemoved,
		"skipped", result.EndpointsSkipped,
		"errors", len(result.Errors),
	)
	return result, nil
}

// findOrCreateService resolves the service named by info.title. A create
// that loses a race to a concurrent import falls back to the winner.
func (l *Loader) findOrCreateService(ctx context.Context, doc *Document, ops []operationRef, overwrite bool) (*model.Service, bool, error) {
	title := strings.TrimSpace(doc.Info.Title)

	existing, err := l.registry.FindServiceByName(ctx, title)
	if err != nil {
		return nil, false, err
	}
	if existing == nil {
		svc, err := l.registry.CreateService(ctx, registry.ServiceInput{
			Name:        title,
			Description: doc.Info.Description,
			Owner:       ImportOwner,
			Tags:        operationTags(ops),
			ServiceType: model.ServiceTypeApplication,
		})
		if err == nil {
			return svc, true, nil
		}
		if !errors.Is(err, model.ErrConflict) {
			return nil, false, err
		}
		if existing, err = l.registry.FindServiceByName(ctx, title); err != nil {
			return nil, false, err
		}
		if existing == nil {
			return nil, false, model.NewConflict(model.KindService, title)
		}
	}

	if !overwrite || existing.Description == doc.Info.Description {
		return existing, false, nil
	}
	desc := doc.Info.Description
	updated, err := l.registry.UpdateService(ctx, existing.ID, registry.ServicePatch{Description: &desc})
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

// appendEndpoints creates the inputs whose (method, path) the service does
// not have yet.
func (l *Loader) appendEndpoints(ctx context.Context, serviceID string, inputs []registry.EndpointInput, result *LoadResult) error {
	current, err := l.registry.ListEndpoints(ctx, serviceID)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(current))
	for _, ep := range current {
		have[model.EndpointKey(serviceID, ep.Method, ep.Path)] = true
	}

	for _, in := range inputs {
		if have[model.EndpointKey(serviceID, in.Method, in.Path)] {
			result.EndpointsSkipped++
			continue
		}
		_, err := l.registry.CreateEndpoint(ctx, serviceID, in)
		switch {
		case err == nil:
			result.EndpointsCreated++
		case errors.Is(err, model.ErrConflict):
			result.EndpointsSkipped++
		case model.IsTerminal(err):
			result.Errors = append(result.Errors, fmt.Sprintf("%s %s: %v", in.Method, in.Path, err))
		default:
			return err
		}
	}
	return nil
}

// buildEndpoint maps one operation onto an endpoint.
func buildEndpoint(ref operationRef, origin, importedAt string) registry.EndpointInput {
	op := ref.Operation

	summary := strings.TrimSpace(op.Summary)
	if summary == "" {
		summary = DefaultSummary
	}

	in := registry.EndpointInput{
		Method:   model.Method(strings.ToUpper(ref.Method)),
		Path:     ref.Path,
		Summary:  summary,
		Metadata: map[string]any{"importedAt": importedAt},
	}
	if origin != "" {
		in.Metadata["source"] = origin
	}

	params := ref.parameters()
	if op.RequestBody != nil || len(params) > 0 {
		schema := map[string]any{}
		if op.RequestBody != nil {
			if op.RequestBody.Content != nil {
				schema["content"] = op.RequestBody.Content
			}
			if op.RequestBody.Required != nil {
				schema["required"] = *op.RequestBody.Required
			}
		}
		if len(params) > 0 {
			schema["parameters"] = params
		}
		if len(schema) > 0 {
			in.RequestSchema = schema
		}
	}

	if len(op.Responses) > 0 {
		in.ResponseSchemas = make(map[string]any, len(op.Responses))
		for status, resp := range op.Responses {
			entry := map[string]any{"description": resp.Description}
			if resp.Content != nil {
				entry["content"] = resp.Content
			}
			in.ResponseSchemas[status] = entry
		}
	}

	if op.Security != nil {
		in.Auth = map[string]any{"security": op.Security}
	}

	if op.Description != "" {
		in.Metadata["description"] = op.Description
	}
	if op.OperationID != "" {
		in.Metadata["operationId"] = op.OperationID
	}
	if len(op.Tags) > 0 {
		in.Metadata["tags"] = op.Tags
	}
	return in
}

// Status reports a service's endpoint count and most recent import.
func (l *Loader) Status(ctx context.Context, serviceID string) (*LoadStatus, error) {
	svc, err := l.registry.GetService(ctx, serviceID)
	if err != nil {
		return nil, err
	}
	eps, err := l.registry.ListEndpoints(ctx, serviceID)
	if err != nil {
		return nil, err
	}

	st := &LoadStatus{
		ServiceID:      svc.ID,
		ServiceName:    svc.Name,
		Description:    svc.Description,
		EndpointsCount: len(eps),
		LastUpdated:    svc.UpdatedAt,
		Tags:           svc.Tags,
	}
	for _, ep := range eps {
		raw, _ := ep.Metadata["importedAt"].(string)
		at, err := time.Parse(time.RFC3339Nano, raw)
		if err != nil {
			continue
		}
		if st.LastImportedAt == nil || at.After(*st.LastImportedAt) {
			st.LastImportedAt = &at
			st.Source, _ = ep.Metadata["source"].(string)
		}
	}
	return st, nil
}

func (l *Loader) observe(source string, result *LoadResult, err error) {
	if l.metrics == nil {
		return
	}
	l.metrics.OpenAPIImportsTotal.WithLabelValues(source, observability.Result(err)).Inc()
	if result != nil {
		l.metrics.OpenAPIEndpointsTotal.Add(float64(result.EndpointsCreated))
	}
}
