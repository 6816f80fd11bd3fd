// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package relations is the relationship engine of the service catalog.
//
// # Description
//
// The engine owns five edge collections:
//
//	ServiceDependency           service  -> dependency  (env-scoped)
//	ServiceToServiceDependency  consumer -> provider    (env-scoped, acyclic)
//	EndpointDependency          endpoint -> dependency
//	EndpointDatabase            endpoint -> database
//	ServiceDbLink               service  -> database    (env-scoped)
//
// Every link validates that both referenced entities exist, rejects a
// duplicate composite key, and (for service-to-service edges) rejects self
// loops and any edge that would close a cycle within its environment scope.
// All of that and the insert happen in one store.WithExclusiveAccess
// section under store.ScopeGraph, which also serializes service-to-service
// writes globally.
//
// Environment scoping compares codes exactly: an unset environment is its
// own scope and never matches a named one.
//
// # Thread Safety
//
// Engine is safe for concurrent use. It holds no graph state between calls.
package relations

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/events"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/observability"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

// Lookup provides the existence checks run before every edge write.
// registry.Registry implements it.
type Lookup interface {
	RequireExists(ctx context.Context, tx store.Store, kind model.Kind, id string) error
}

// Direction selects which side of a service-to-service edge a service is on.
type Direction string

const (
	// Outgoing edges have the service as consumer.
	Outgoing Direction = "outgoing"
	// Incoming edges have the service as provider.
	Incoming Direction = "incoming"
)

// Engine implements link, unlink, list and update for every edge kind.
type Engine struct {
	store   store.Store
	lookup  Lookup
	events  events.Publisher
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithEvents sets the change event publisher.
func WithEvents(p events.Publisher) Option {
	return func(e *Engine) { e.events = p }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// New creates an Engine.
//
// Inputs:
//
//	s - Record store holding the edges.
//	lookup - Existence checks for referenced entities.
//	opts - Optional collaborators.
func New(s store.Store, lookup Lookup, opts ...Option) *Engine {
	e := &Engine{
		store:  s,
		lookup: lookup,
		events: events.Nop{},
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.With("component", "relations")
	return e
}

// Bind returns a copy of the engine that reads and writes through s,
// typically a transaction or snapshot view of its own store.
func (e *Engine) Bind(s store.Store) *Engine {
	bound := *e
	bound.store = s
	return &bound
}

// =============================================================================
// Shared link / unlink machinery
// =============================================================================

type entityRef struct {
	kind model.Kind
	id   string
}

// linkEdge runs the common link protocol for one edge kind.
//
// Description:
//
//	Inside the graph scope: require every ref to exist, scan the existing
//	edges, reject any with the same composite key, run guard (the cycle
//	check for service links), then insert. Nothing is written unless every
//	step passes.
func linkEdge[T any](
	ctx context.Context,
	e *Engine,
	kind model.Kind,
	id string,
	edge *T,
	key string,
	refs []entityRef,
	sameKey func(*T) bool,
	guard func(existing []*T) error,
) error {
	err := e.store.WithExclusiveAccess(ctx, store.ScopeGraph, func(ctx context.Context, tx store.Store) error {
		for _, ref := range refs {
			if err := e.lookup.RequireExists(ctx, tx, ref.kind, ref.id); err != nil {
				return err
			}
		}
		existing, err := store.ScanAs[T](ctx, tx, kind, nil)
		if err != nil {
			return err
		}
		for _, other := range existing {
			if sameKey(other) {
				return model.NewConflict(kind, key)
			}
		}
		if guard != nil {
			if err := guard(existing); err != nil {
				return err
			}
		}
		return tx.Insert(ctx, kind, id, edge)
	})

	e.metrics.ObserveLink(kind, err)
	if err != nil {
		e.logFailure("link", kind, key, err)
		return err
	}
	e.logger.Info("edge linked", "kind", kind, "edge_id", id, "key", key)
	return nil
}

// rejectLink records a link refused before the store is touched, the same
// way linkEdge records its own rejections.
func (e *Engine) rejectLink(kind model.Kind, err error) error {
	e.metrics.ObserveLink(kind, err)
	e.logger.Debug("edge link rejected", "kind", kind, "error", err)
	return err
}

// unlinkEdge deletes the first edge accepted by match, or returns
// NotFoundError(kind, key).
func unlinkEdge[T any](
	ctx context.Context,
	e *Engine,
	kind model.Kind,
	key string,
	match func(*T) bool,
	idOf func(*T) string,
) (*T, error) {
	var removed *T
	err := e.store.WithExclusiveAccess(ctx, store.ScopeGraph, func(ctx context.Context, tx store.Store) error {
		found, err := store.FindFirst(ctx, tx, kind, match)
		if err != nil {
			return err
		}
		if found == nil {
			return model.NewNotFound(kind, key)
		}
		removed = found
		return tx.Delete(ctx, kind, idOf(found))
	})

	e.metrics.ObserveUnlink(kind, err)
	if err != nil {
		e.logFailure("unlink", kind, key, err)
		return nil, err
	}
	e.logger.Info("edge unlinked", "kind", kind, "edge_id", idOf(removed), "key", key)
	return removed, nil
}

func (e *Engine) logFailure(op string, kind model.Kind, key string, err error) {
	if model.IsTerminal(err) {
		e.logger.Debug("edge "+op+" rejected", "kind", kind, "key", key, "error", err)
		return
	}
	e.logger.Error("edge "+op+" failed", "kind", kind, "key", key, "error", err)
}

func (e *Engine) publish(typ events.Type, kind model.Kind, id string, refs ...string) {
	e.events.Publish(events.Event{Type: typ, Kind: kind, ID: id, At: e.now(), Refs: refs})
}

// normalizeEnvironment rejects a set-but-blank environment code, which
// would otherwise form a scope no client can name.
func normalizeEnvironment(env *string) (*string, error) {
	if env == nil {
		return nil, nil
	}
	code := strings.TrimSpace(*env)
	if code == "" {
		return nil, model.NewInvalidRequest("environment code must not be blank; omit it for the global scope")
	}
	return &code, nil
}

func isAbsent(err error) bool {
	return errors.Is(err, store.ErrAbsent)
}

func cloneStringMap(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
