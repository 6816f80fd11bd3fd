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

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
)

func newTestStore(t *testing.T) *BadgerStore {
	t.Helper()
	s, err := OpenInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBadgerStore_InsertGet(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	svc := model.Service{ID: "s1", Name: "checkout", Tags: []string{"core"}}
	require.NoError(t, s.Insert(ctx, model.KindService, svc.ID, svc))

	got, err := GetAs[model.Service](ctx, s, model.KindService, "s1")
	require.NoError(t, err)
	assert.Equal(t, "checkout", got.Name)
	assert.Equal(t, []string{"core"}, got.Tags)

	err = s.Insert(ctx, model.KindService, svc.ID, svc)
	assert.ErrorIs(t, err, ErrExists)

	_, err = GetAs[model.Service](ctx, s, model.KindService, "missing")
	assert.ErrorIs(t, err, ErrAbsent)
}

func TestBadgerStore_ScanInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// ids sort in reverse of insertion order to prove order is not by key.
	ids := []string{"z", "m", "a", "q"}
	for _, id := range ids {
		require.NoError(t, s.Insert(ctx, model.KindService, id, model.Service{ID: id, Name: "svc-" + id}))
	}

	all, err := ScanAs[model.Service](ctx, s, model.KindService, nil)
	require.NoError(t, err)
	require.Len(t, all, len(ids))
	for i, svc := range all {
		assert.Equal(t, ids[i], svc.ID)
	}

	filtered, err := ScanAs(ctx, s, model.KindService, func(svc *model.Service) bool { return svc.ID != "m" })
	require.NoError(t, err)
	assert.Len(t, filtered, 3)

	first, err := FindFirst(ctx, s, model.KindService, func(svc *model.Service) bool { return svc.Name == "svc-a" })
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, "a", first.ID)

	n, err := Count(ctx, s, model.KindService)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}

func TestBadgerStore_UpdateKeepsOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Insert(ctx, model.KindService, "a", model.Service{ID: "a", Name: "one"}))
	require.NoError(t, s.Insert(ctx, model.KindService, "b", model.Service{ID: "b", Name: "two"}))
	require.NoError(t, s.Update(ctx, model.KindService, "a", model.Service{ID: "a", Name: "renamed"}))

	all, err := ScanAs[model.Service](ctx, s, model.KindService, nil)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "renamed", all[0].Name)

	err = s.Update(ctx, model.KindService, "nope", model.Service{})
	assert.ErrorIs(t, err, ErrAbsent)
}

func TestBadgerStore_DeleteCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.Insert(ctx, model.KindService, "s1", model.Service{ID: "s1"}))
	require.NoError(t, s.Insert(ctx, model.KindService, "s2", model.Service{ID: "s2"}))
	require.NoError(t, s.Insert(ctx, model.KindEndpoint, "e1", model.Endpoint{ID: "e1", ServiceID: "s1"}))
	require.NoError(t, s.Insert(ctx, model.KindDependency, "d1", model.Dependency{ID: "d1"}))
	require.NoError(t, s.Insert(ctx, model.KindEndpointDependency, "ed1",
		model.EndpointDependency{ID: "ed1", EndpointID: "e1", DependencyID: "d1"}))
	require.NoError(t, s.Insert(ctx, model.KindServiceToService, "l1",
		model.ServiceToServiceDependency{ID: "l1", ConsumerServiceID: "s2", ProviderServiceID: "s1"}))
	require.NoError(t, s.Insert(ctx, model.KindServiceToService, "l2",
		model.ServiceToServiceDependency{ID: "l2", ConsumerServiceID: "s1", ProviderServiceID: "s2"}))

	require.NoError(t, s.Delete(ctx, model.KindService, "s1"))

	for _, tc := range []struct {
		kind model.Kind
		id   string
	}{
		{model.KindService, "s1"},
		{model.KindEndpoint, "e1"},
		{model.KindEndpointDependency, "ed1"},
		{model.KindServiceToService, "l1"},
		{model.KindServiceToService, "l2"},
	} {
		var out map[string]any
		assert.ErrorIs(t, s.Get(ctx, tc.kind, tc.id, &out), ErrAbsent, "%s %s should be gone", tc.kind, tc.id)
	}

	// Unrelated records survive.
	_, err := GetAs[model.Service](ctx, s, model.KindService, "s2")
	assert.NoError(t, err)
	_, err = GetAs[model.Dependency](ctx, s, model.KindDependency, "d1")
	assert.NoError(t, err)

	assert.ErrorIs(t, s.Delete(ctx, model.KindService, "s1"), ErrAbsent)
}

func TestBadgerStore_ExclusiveAccessRollsBack(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	boom := errors.New("boom")
	err := s.WithExclusiveAccess(ctx, "test", func(ctx context.Context, tx Store) error {
		if err := tx.Insert(ctx, model.KindService, "s1", model.Service{ID: "s1"}); err != nil {
			return err
		}
		// Writes are visible inside the transaction.
		_, err := GetAs[model.Service](ctx, tx, model.KindService, "s1")
		require.NoError(t, err)
		return boom
	})
	assert.ErrorIs(t, err, boom)

	_, err = GetAs[model.Service](ctx, s, model.KindService, "s1")
	assert.ErrorIs(t, err, ErrAbsent)
}

func TestBadgerStore_ExclusiveAccessPassesDomainErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	err := s.WithExclusiveAccess(ctx, "test", func(ctx context.Context, tx Store) error {
		return model.NewConflict(model.KindService, "checkout")
	})
	assert.ErrorIs(t, err, model.ErrConflict)
	assert.NotErrorIs(t, err, model.ErrStoreFailure)
}

func TestBadgerStore_ExclusiveAccessSerializes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// Each worker does check-then-insert on the same key; only one may win.
	const workers = 16
	var wg sync.WaitGroup
	results := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results <- s.WithExclusiveAccess(ctx, "services", func(ctx context.Context, tx Store) error {
				existing, err := FindFirst(ctx, tx, model.KindService, func(svc *model.Service) bool {
					return svc.Name == "checkout"
				})
				if err != nil {
					return err
				}
				if existing != nil {
					return model.NewConflict(model.KindService, "checkout")
				}
				id := fmt.Sprintf("s%d", i)
				return tx.Insert(ctx, model.KindService, id, model.Service{ID: id, Name: "checkout"})
			})
		}(i)
	}
	wg.Wait()
	close(results)

	wins := 0
	for err := range results {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, model.ErrConflict)
	}
	assert.Equal(t, 1, wins)
}

func TestBadgerStore_ExclusiveAccessCancelled(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.WithExclusiveAccess(ctx, "test", func(ctx context.Context, tx Store) error {
		return nil
	})
	assert.ErrorIs(t, err, model.ErrStoreFailure)
}

func TestBadgerStore_ScanStop(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("s%d", i)
		require.NoError(t, s.Insert(ctx, model.KindService, id, model.Service{ID: id}))
	}
	visited := 0
	err := s.Scan(ctx, model.KindService, func([]byte) error {
		visited++
		if visited == 2 {
			return ErrStop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, visited)
}

func TestBadgerStore_BackupRestore(t *testing.T) {
	ctx := context.Background()
	src := newTestStore(t)
	require.NoError(t, src.Insert(ctx, model.KindService, "s1", model.Service{ID: "s1", Name: "checkout"}))

	var buf bytes.Buffer
	_, err := src.Backup(ctx, &buf)
	require.NoError(t, err)

	dst := newTestStore(t)
	require.NoError(t, dst.Insert(ctx, model.KindService, "local", model.Service{ID: "local"}))
	require.NoError(t, dst.Restore(ctx, &buf))

	got, err := GetAs[model.Service](ctx, dst, model.KindService, "s1")
	require.NoError(t, err)
	assert.Equal(t, "checkout", got.Name)

	// Inserts after a restore still sort last.
	require.NoError(t, dst.Insert(ctx, model.KindService, "late", model.Service{ID: "late"}))
	all, err := ScanAs[model.Service](ctx, dst, model.KindService, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "late", all[2].ID)
}

func TestBadgerStore_Empty(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	empty, err := s.Empty(ctx)
	require.NoError(t, err)
	assert.True(t, empty, "the leased sequence is not a record")

	require.NoError(t, s.Insert(ctx, model.KindDatabase, "d1", model.DatabaseInstance{ID: "d1"}))
	empty, err = s.Empty(ctx)
	require.NoError(t, err)
	assert.False(t, empty)
}

func TestBadgerStore_Snapshot(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.Insert(ctx, model.KindService, "s1", model.Service{ID: "s1"}))

	err := s.Snapshot(ctx, func(ctx context.Context, tx Store) error {
		// A write committed after the snapshot opened stays invisible.
		require.NoError(t, s.Insert(ctx, model.KindService, "s2", model.Service{ID: "s2"}))
		n, err := Count(ctx, tx, model.KindService)
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		err = tx.Insert(ctx, model.KindService, "s3", model.Service{ID: "s3"})
		assert.ErrorIs(t, err, model.ErrStoreFailure)
		return tx.Snapshot(ctx, func(ctx context.Context, inner Store) error {
			_, err := GetAs[model.Service](ctx, inner, model.KindService, "s2")
			assert.ErrorIs(t, err, ErrAbsent)
			return nil
		})
	})
	require.NoError(t, err)

	n, err := Count(ctx, s, model.KindService)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	sentinel := errors.New("stop here")
	err = s.Snapshot(ctx, func(context.Context, Store) error { return sentinel })
	assert.ErrorIs(t, err, sentinel)
}
