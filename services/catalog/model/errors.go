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
	"errors"
	"fmt"
)

// Sentinel errors for the catalog. Typed errors below match these via
// errors.Is so callers can branch on the class without knowing the fields.
var (
	// ErrNotFound indicates a referenced entity or edge does not exist.
	ErrNotFound = errors.New("not found")

	// ErrConflict indicates a duplicate uniqueness or composite key.
	ErrConflict = errors.New("conflict")

	// ErrInvalidRequest indicates a request the catalog refuses on its face.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrCycleDetected indicates a service link would close a dependency loop.
	ErrCycleDetected = errors.New("cycle detected")

	// ErrStoreFailure wraps record store I/O failures. Retryable.
	ErrStoreFailure = errors.New("store failure")
)

// NotFoundError names the missing entity.
type NotFoundError struct {
	Kind Kind
	ID   string
}

// NewNotFound builds a NotFoundError.
func NewNotFound(kind Kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind.Label(), e.ID)
}

// Is matches ErrNotFound.
func (e *NotFoundError) Is(target error) bool { return target == ErrNotFound }

// ConflictError names the duplicated key.
type ConflictError struct {
	Kind Kind
	Key  string
}

// NewConflict builds a ConflictError.
func NewConflict(kind Kind, key string) *ConflictError {
	return &ConflictError{Kind: kind, Key: key}
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s with key %s already exists", e.Kind.Label(), e.Key)
}

// Is matches ErrConflict.
func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// InvalidRequestError carries a human readable reason.
type InvalidRequestError struct {
	Reason string
}

// NewInvalidRequest builds an InvalidRequestError.
func NewInvalidRequest(reason string) *InvalidRequestError {
	return &InvalidRequestError{Reason: reason}
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// Is matches ErrInvalidRequest.
func (e *InvalidRequestError) Is(target error) bool { return target == ErrInvalidRequest }

// CycleError reports the edge that would have closed a loop.
type CycleError struct {
	From        string
	To          string
	Environment *string
}

// NewCycleError builds a CycleError for the rejected consumer -> provider edge.
func NewCycleError(from, to string, env *string) *CycleError {
	return &CycleError{From: from, To: to, Environment: CloneEnvironment(env)}
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("linking service %s to %s would create a dependency cycle in %s",
		e.From, e.To, EnvironmentLabel(e.Environment))
}

// Is matches ErrCycleDetected.
func (e *CycleError) Is(target error) bool { return target == ErrCycleDetected }

// StoreFailure wraps err so that errors.Is(err, ErrStoreFailure) holds
// while the underlying cause stays reachable.
func StoreFailure(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStoreFailure, err)
}

// IsTerminal reports whether err is a domain error the caller must fix
// rather than retry.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidRequest) ||
		errors.Is(err, ErrCycleDetected)
}
