// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package store is the record store of the service catalog.
//
// # Description
//
// Records are JSON documents grouped by model.Kind and addressed by id.
// The store offers insert, get, scan, update and delete plus
// WithExclusiveAccess, which serializes callers sharing a scope and runs
// them in one all-or-nothing transaction. Deletes follow the referential
// cascade rules in cascade.go so no edge outlives an entity it names.
//
// Scans return records in insertion order.
//
// # Errors
//
// ErrAbsent reports a missing record. I/O failures are wrapped with
// model.ErrStoreFailure and are safe to retry. Errors returned by a
// WithExclusiveAccess body are passed through untouched.
//
// # Thread Safety
//
// Store implementations are safe for concurrent use.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

// ScopeGraph is the exclusive-access scope shared by every write that can
// create or remove a reference between records: all edge links and
// unlinks, entity deletes (which cascade), and child-entity writes
// (environments, endpoints). Holding it guarantees that an existence
// check and the insert that depends on it cannot interleave with a
// cascading delete, and that service-to-service links are globally
// serialized for the acyclicity check.
const ScopeGraph = "graph"

// ScopeFor returns the exclusive-access scope for uniqueness checks on a
// top-level entity kind.
func ScopeFor(kind model.Kind) string {
	return "unique/" + string(kind)
}

var (
	// ErrAbsent indicates the record does not exist.
	ErrAbsent = errors.New("record absent")

	// ErrExists indicates Insert found a record with the same id.
	ErrExists = errors.New("record already exists")

	// ErrStop ends a Scan early without error.
	ErrStop = errors.New("stop scan")
)

// Store is the record store contract used by the registry, the
// relationship engine and the graph assembler.
type Store interface {
	// Insert writes a new record. Returns ErrExists if id is taken.
	Insert(ctx context.Context, kind model.Kind, id string, record any) error

	// Get decodes the record into out. Returns ErrAbsent if missing.
	Get(ctx context.Context, kind model.Kind, id string, out any) error

	// Scan calls fn with the raw JSON of every record of kind, oldest
	// first. Returning ErrStop from fn ends the scan cleanly.
	Scan(ctx context.Context, kind model.Kind, fn func(raw []byte) error) error

	// Update replaces an existing record. Returns ErrAbsent if missing.
	Update(ctx context.Context, kind model.Kind, id string, record any) error

	// Delete removes a record and cascades to dependent records.
	// Returns ErrAbsent if missing.
	Delete(ctx context.Context, kind model.Kind, id string) error

	// WithExclusiveAccess runs fn while holding the lock for scope, against
	// a transactional view of the store. Either every write made through tx
	// is committed or none is. Nested calls on tx join the outer
	// transaction.
	WithExclusiveAccess(ctx context.Context, scope string, fn func(ctx context.Context, tx Store) error) error

	// Snapshot runs fn against one consistent read-only view of the store.
	// Writes through tx fail. tx is not safe for concurrent use. Nested
	// calls on tx reuse the same view.
	Snapshot(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// GetAs fetches and decodes one record.
func GetAs[T any](ctx context.Context, s Store, kind model.Kind, id string) (*T, error) {
	var out T
	if err := s.Get(ctx, kind, id, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ScanAs decodes every record of kind and keeps those accepted by pred.
// A nil pred keeps everything.
func ScanAs[T any](ctx context.Context, s Store, kind model.Kind, pred func(*T) bool) ([]*T, error) {
	var out []*T
	err := s.Scan(ctx, kind, func(raw []byte) error {
		rec := new(T)
		if err := json.Unmarshal(raw, rec); err != nil {
			return fmt.Errorf("decode %s record: %w", kind, err)
		}
		if pred == nil || pred(rec) {
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// FindFirst returns the first record accepted by pred, or nil.
func FindFirst[T any](ctx context.Context, s Store, kind model.Kind, pred func(*T) bool) (*T, error) {
	var found *T
	err := s.Scan(ctx, kind, func(raw []byte) error {
		rec := new(T)
		if err := json.Unmarshal(raw, rec); err != nil {
			return fmt.Errorf("decode %s record: %w", kind, err)
		}
		if pred(rec) {
			found = rec
			return ErrStop
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// Count returns the number of records of kind.
func Count(ctx context.Context, s Store, kind model.Kind) (int, error) {
	n := 0
	err := s.Scan(ctx, kind, func([]byte) error {
		n++
		return nil
	})
	return n, err
}
