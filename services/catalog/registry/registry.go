// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package registry owns the CRUD contracts and uniqueness rules for
// services, environments, dependencies, databases and endpoints.
//
// # Description
//
// Every create and rename runs its uniqueness scan and its write inside one
// store.WithExclusiveAccess section, so two concurrent creates with the same
// key cannot both succeed. Deletes cascade through the record store and
// publish an INVALIDATED event so holders of graph views refetch.
//
// # Thread Safety
//
// Registry is safe for concurrent use.
package registry

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/events"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/observability"
	"github.com/AleutianAI/AleutianCatalog/services/catalog/store"
)

// Registry implements the entity CRUD operations.
type Registry struct {
	store   store.Store
	events  events.Publisher
	metrics *observability.Metrics
	logger  *slog.Logger
	now     func() time.Time
	newID   func() string
}

// Option configures a Registry.
type Option func(*Registry)

// WithEvents sets the change event publisher.
func WithEvents(p events.Publisher) Option {
	return func(r *Registry) { r.events = p }
}

// WithMetrics sets the Prometheus collectors.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) { r.logger = l }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) { r.now = now }
}

// New creates a Registry over s.
func New(s store.Store, opts ...Option) *Registry {
	r := &Registry{
		store:  s,
		events: events.Nop{},
		logger: slog.Default(),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.With("component", "registry")
	return r
}

// Store returns the underlying record store.
func (r *Registry) Store() store.Store {
	return r.store
}

// Bind returns a copy of the registry that reads and writes through s,
// typically a transaction or snapshot view of its own store.
func (r *Registry) Bind(s store.Store) *Registry {
	bound := *r
	bound.store = s
	return &bound
}

// RequireExists returns a NotFoundError naming id when no record of kind
// exists. tx may be a transaction-bound store; nil uses the registry's own.
func (r *Registry) RequireExists(ctx context.Context, tx store.Store, kind model.Kind, id string) error {
	if tx == nil {
		tx = r.store
	}
	var probe struct {
		ID string `json:"id"`
	}
	return notFound(tx.Get(ctx, kind, id, &probe), kind, id)
}

// notFound converts store.ErrAbsent into the domain NotFoundError.
func notFound(err error, kind model.Kind, id string) error {
	if errors.Is(err, store.ErrAbsent) {
		return model.NewNotFound(kind, id)
	}
	return err
}

func getAs[T any](ctx context.Context, s store.Store, kind model.Kind, id string) (*T, error) {
	rec, err := store.GetAs[T](ctx, s, kind, id)
	if err != nil {
		return nil, notFound(err, kind, id)
	}
	return rec, nil
}

func (r *Registry) publish(typ events.Type, kind model.Kind, id string, refs ...string) {
	r.events.Publish(events.Event{Type: typ, Kind: kind, ID: id, At: r.now(), Refs: refs})
}

// deleted publishes the pair of events every delete emits.
func (r *Registry) deleted(kind model.Kind, id string) {
	r.publish(events.Deleted, kind, id)
	r.publish(events.Invalidated, kind, id)
}

func (r *Registry) observe(kind model.Kind, op string, err error) {
	r.metrics.ObserveRegistry(kind, op, err)
	if err != nil && !model.IsTerminal(err) {
		r.logger.Error("registry operation failed", "kind", kind, "op", op, "error", err)
	}
}

// deleteEntity removes a top-level record under the graph scope so that
// the cascade cannot race with an edge insert that references it.
func (r *Registry) deleteEntity(ctx context.Context, kind model.Kind, id string) (err error) {
	defer func() { r.observe(kind, "delete", err) }()

	err = r.store.WithExclusiveAccess(ctx, store.ScopeGraph, func(ctx context.Context, tx store.Store) error {
		return notFound(tx.Delete(ctx, kind, id), kind, id)
	})
	if err != nil {
		return err
	}
	r.logger.Info("entity deleted", "kind", kind, "id", id)
	r.deleted(kind, id)
	return nil
}

func cloneStrings(in []string) []string {
	if in == nil {
		return []string{}
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
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
