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
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"

	"github.com/AleutianAI/AleutianCatalog/services/catalog/model"
	catalogdb "github.com/AleutianAI/AleutianCatalog/services/catalog/storage/badger"
)

const (
	recordPrefix = "r/"
	sequenceKey  = "meta/insert-seq"
	seqBandwidth = 256
	envelopeSize = 8
)

// =============================================================================
// Configuration
// =============================================================================

// Options configures a BadgerStore.
type Options struct {
	// OperationTimeout bounds each store call. Zero means no bound.
	OperationTimeout time.Duration

	// Cascades overrides the referential rules. Nil uses DefaultCascades.
	Cascades map[model.Kind][]Reference

	// Logger receives cascade and lock diagnostics. Nil uses slog.Default.
	Logger *slog.Logger
}

// BadgerStore implements Store on BadgerDB.
//
// Each record lives under r/<KIND>/<id>. The value is an 8 byte big-endian
// insertion sequence followed by the JSON document; scans sort on that
// sequence so callers see insertion order.
//
// Thread Safety: Safe for concurrent use.
type BadgerStore struct {
	db       *catalogdb.DB
	seq      *badger.Sequence
	cascades map[model.Kind][]Reference
	timeout  time.Duration
	logger   *slog.Logger
	ownsDB   bool

	mu    sync.Mutex
	locks map[string]chan struct{}
}

// Open creates a BadgerStore on an already opened database.
//
// Description:
//
//	Leases the insertion sequence and prepares the scope lock table. The
//	store does not own db; Close releases only the sequence.
//
// Inputs:
//
//	db - Open catalog database. Must not be nil.
//	opts - Store options.
//
// Outputs:
//
//	*BadgerStore - Ready store.
//	error - Non-nil if the sequence cannot be leased.
func Open(db *catalogdb.DB, opts Options) (*BadgerStore, error) {
	if db == nil {
		return nil, errors.New("db must not be nil")
	}
	seq, err := db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if err != nil {
		return nil, model.StoreFailure("lease insert sequence", err)
	}
	cascades := opts.Cascades
	if cascades == nil {
		cascades = DefaultCascades()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &BadgerStore{
		db:       db,
		seq:      seq,
		cascades: cascades,
		timeout:  opts.OperationTimeout,
		logger:   logger.With("component", "record_store"),
		locks:    make(map[string]chan struct{}),
	}, nil
}

// OpenInMemory opens an in-memory database and a store on top of it.
// Closing the returned store also closes the database.
func OpenInMemory() (*BadgerStore, error) {
	db, err := catalogdb.OpenInMemory()
	if err != nil {
		return nil, err
	}
	s, err := Open(db, Options{})
	if err != nil {
		db.Close()
		return nil, err
	}
	s.ownsDB = true
	return s, nil
}

// Close releases the insertion sequence.
func (s *BadgerStore) Close() error {
	err := s.seq.Release()
	if s.ownsDB {
		if cerr := s.db.Close(); err == nil {
			err = cerr
		}
	}
	return err
}

// Backup streams the full database to w and returns the backup version.
func (s *BadgerStore) Backup(ctx context.Context, w io.Writer) (uint64, error) {
	version, err := s.db.Backup(ctx, w)
	if err != nil {
		return 0, model.StoreFailure("backup", err)
	}
	return version, nil
}

// Restore loads a backup into the database.
//
// Description:
//
//	The insertion sequence is released before loading and leased again
//	afterwards, never below its value before the restore, so records
//	inserted later sort after both the restored and the existing ones.
//	Must not run concurrently with writes.
func (s *BadgerStore) Restore(ctx context.Context, r io.Reader) error {
	if err := s.seq.Release(); err != nil {
		return model.StoreFailure("release insert sequence", err)
	}
	floor, err := s.sequenceValue(ctx)
	if err == nil {
		err = s.db.Restore(ctx, r)
		if err == nil {
			err = s.raiseSequence(ctx, floor)
		}
	}

	seq, leaseErr := s.db.GetSequence([]byte(sequenceKey), seqBandwidth)
	if leaseErr != nil {
		return model.StoreFailure("lease insert sequence", leaseErr)
	}
	s.seq = seq
	if err != nil {
		return model.StoreFailure("restore", err)
	}
	return nil
}

// Empty reports whether the store holds no records.
func (s *BadgerStore) Empty(ctx context.Context) (bool, error) {
	empty := true
	err := s.view(ctx, "empty", func(txn *badger.Txn) error {
		prefix := []byte(recordPrefix)
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek(prefix)
		empty = !it.ValidForPrefix(prefix)
		return nil
	})
	return empty, err
}

// sequenceValue reads the next unleased insertion sequence number.
func (s *BadgerStore) sequenceValue(ctx context.Context) (uint64, error) {
	var next uint64
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(sequenceKey))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			if len(val) == 8 {
				next = binary.BigEndian.Uint64(val)
			}
			return nil
		})
	})
	return next, err
}

// raiseSequence moves the stored sequence up to floor if a restore left it
// lower.
func (s *BadgerStore) raiseSequence(ctx context.Context, floor uint64) error {
	current, err := s.sequenceValue(ctx)
	if err != nil || current >= floor {
		return err
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		buf := make([]byte, 8)
		binary.BigEndian.PutUint64(buf, floor)
		return txn.Set([]byte(sequenceKey), buf)
	})
}

// =============================================================================
// Store methods (one transaction per call)
// =============================================================================

func (s *BadgerStore) Insert(ctx context.Context, kind model.Kind, id string, record any) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.update(ctx, "insert", func(txn *badger.Txn) error {
		return s.insertTxn(txn, kind, id, record)
	})
}

func (s *BadgerStore) Get(ctx context.Context, kind model.Kind, id string, out any) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.view(ctx, "get", func(txn *badger.Txn) error {
		return getTxn(txn, kind, id, out)
	})
}

func (s *BadgerStore) Scan(ctx context.Context, kind model.Kind, fn func(raw []byte) error) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.view(ctx, "scan", func(txn *badger.Txn) error {
		return scanTxn(ctx, txn, kind, fn)
	})
}

func (s *BadgerStore) Update(ctx context.Context, kind model.Kind, id string, record any) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.update(ctx, "update", func(txn *badger.Txn) error {
		return updateTxn(txn, kind, id, record)
	})
}

func (s *BadgerStore) Delete(ctx context.Context, kind model.Kind, id string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.update(ctx, "delete", func(txn *badger.Txn) error {
		return s.deleteTxn(ctx, txn, kind, id)
	})
}

// WithExclusiveAccess serializes callers per scope and runs fn in a single
// read-write transaction.
//
// Description:
//
//	Acquires the scope lock (respecting ctx), opens one transaction, runs
//	fn against a Store bound to it and commits only if fn succeeds and ctx
//	is still live. Errors from fn pass through unchanged. Lock timeouts and
//	commit failures are wrapped with model.ErrStoreFailure.
//
// Inputs:
//
//	ctx - Cancellation and deadline.
//	scope - Lock name. Callers with the same scope never overlap.
//	fn - Transaction body.
//
// Outputs:
//
//	error - fn's error, or a store failure.
func (s *BadgerStore) WithExclusiveAccess(ctx context.Context, scope string, fn func(ctx context.Context, tx Store) error) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	sem := s.scopeLock(scope)
	select {
	case sem <- struct{}{}:
	case <-ctx.Done():
		return model.StoreFailure("acquire lock "+scope, ctx.Err())
	}
	defer func() { <-sem }()

	var bodyErr error
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		bodyErr = fn(ctx, &txnStore{parent: s, txn: txn})
		return bodyErr
	})
	if bodyErr != nil {
		return bodyErr
	}
	if err != nil {
		return model.StoreFailure("commit "+scope, err)
	}
	return nil
}

// Snapshot runs fn against a single read-only transaction. Errors from fn
// pass through unchanged.
func (s *BadgerStore) Snapshot(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var bodyErr error
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		bodyErr = fn(ctx, &txnStore{parent: s, txn: txn})
		return bodyErr
	})
	if bodyErr != nil {
		return bodyErr
	}
	if err != nil {
		return model.StoreFailure("snapshot", err)
	}
	return nil
}

func (s *BadgerStore) scopeLock(scope string) chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	sem, ok := s.locks[scope]
	if !ok {
		sem = make(chan struct{}, 1)
		s.locks[scope] = sem
	}
	return sem
}

func (s *BadgerStore) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *BadgerStore) update(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	var bodyErr error
	err := s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		bodyErr = fn(txn)
		return bodyErr
	})
	if bodyErr != nil {
		return classify(op, bodyErr)
	}
	if err != nil {
		return model.StoreFailure(op, err)
	}
	return nil
}

func (s *BadgerStore) view(ctx context.Context, op string, fn func(txn *badger.Txn) error) error {
	var bodyErr error
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		bodyErr = fn(txn)
		return bodyErr
	})
	if bodyErr != nil {
		return classify(op, bodyErr)
	}
	if err != nil {
		return model.StoreFailure(op, err)
	}
	return nil
}

// classify leaves record-level and caller errors alone and wraps the rest.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, ErrAbsent), errors.Is(err, ErrExists),
		errors.Is(err, model.ErrStoreFailure), model.IsTerminal(err):
		return err
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return model.StoreFailure(op, err)
	}
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &syntaxErr) || errors.As(err, &typeErr) {
		return fmt.Errorf("%s: corrupt record: %w", op, err)
	}
	return model.StoreFailure(op, err)
}

// =============================================================================
// Transaction-bound store
// =============================================================================

type txnStore struct {
	parent *BadgerStore
	txn    *badger.Txn
}

func (t *txnStore) Insert(ctx context.Context, kind model.Kind, id string, record any) error {
	if err := ctx.Err(); err != nil {
		return model.StoreFailure("insert", err)
	}
	return classify("insert", t.parent.insertTxn(t.txn, kind, id, record))
}

func (t *txnStore) Get(ctx context.Context, kind model.Kind, id string, out any) error {
	if err := ctx.Err(); err != nil {
		return model.StoreFailure("get", err)
	}
	return classify("get", getTxn(t.txn, kind, id, out))
}

func (t *txnStore) Scan(ctx context.Context, kind model.Kind, fn func(raw []byte) error) error {
	if err := ctx.Err(); err != nil {
		return model.StoreFailure("scan", err)
	}
	return classify("scan", scanTxn(ctx, t.txn, kind, fn))
}

func (t *txnStore) Update(ctx context.Context, kind model.Kind, id string, record any) error {
	if err := ctx.Err(); err != nil {
		return model.StoreFailure("update", err)
	}
	return classify("update", updateTxn(t.txn, kind, id, record))
}

func (t *txnStore) Delete(ctx context.Context, kind model.Kind, id string) error {
	if err := ctx.Err(); err != nil {
		return model.StoreFailure("delete", err)
	}
	return classify("delete", t.parent.deleteTxn(ctx, t.txn, kind, id))
}

func (t *txnStore) WithExclusiveAccess(ctx context.Context, _ string, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

func (t *txnStore) Snapshot(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, t)
}

// =============================================================================
// Key and envelope helpers
// =============================================================================

func kindPrefix(kind model.Kind) []byte {
	return []byte(recordPrefix + string(kind) + "/")
}

func recordKey(kind model.Kind, id string) []byte {
	return append(kindPrefix(kind), id...)
}

func encodeEnvelope(seq uint64, record any) ([]byte, error) {
	body, err := json.Marshal(record)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	buf := make([]byte, envelopeSize, envelopeSize+len(body))
	binary.BigEndian.PutUint64(buf, seq)
	return append(buf, body...), nil
}

func decodeEnvelope(val []byte) (uint64, []byte, error) {
	if len(val) < envelopeSize {
		return 0, nil, fmt.Errorf("record envelope too short: %d bytes", len(val))
	}
	return binary.BigEndian.Uint64(val[:envelopeSize]), val[envelopeSize:], nil
}

func (s *BadgerStore) insertTxn(txn *badger.Txn, kind model.Kind, id string, record any) error {
	key := recordKey(kind, id)
	if _, err := txn.Get(key); err == nil {
		return fmt.Errorf("%s %s: %w", kind, id, ErrExists)
	} else if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	seq, err := s.seq.Next()
	if err != nil {
		return model.StoreFailure("next sequence", err)
	}
	val, err := encodeEnvelope(seq, record)
	if err != nil {
		return err
	}
	return txn.Set(key, val)
}

func readEnvelope(txn *badger.Txn, kind model.Kind, id string) (uint64, []byte, error) {
	item, err := txn.Get(recordKey(kind, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return 0, nil, fmt.Errorf("%s %s: %w", kind, id, ErrAbsent)
	}
	if err != nil {
		return 0, nil, err
	}
	val, err := item.ValueCopy(nil)
	if err != nil {
		return 0, nil, err
	}
	return decodeEnvelope(val)
}

func getTxn(txn *badger.Txn, kind model.Kind, id string, out any) error {
	_, body, err := readEnvelope(txn, kind, id)
	if err != nil {
		return err
	}
	return json.Unmarshal(body, out)
}

func updateTxn(txn *badger.Txn, kind model.Kind, id string, record any) error {
	seq, _, err := readEnvelope(txn, kind, id)
	if err != nil {
		return err
	}
	val, err := encodeEnvelope(seq, record)
	if err != nil {
		return err
	}
	return txn.Set(recordKey(kind, id), val)
}

type sequenced struct {
	seq  uint64
	body []byte
}

// scanTxn collects before visiting so the iterator is closed by the time
// fn runs; fn may open nested scans on the same transaction.
func scanTxn(ctx context.Context, txn *badger.Txn, kind model.Kind, fn func(raw []byte) error) error {
	records, err := collect(txn, kind)
	if err != nil {
		return err
	}
	for _, rec := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(rec.body); err != nil {
			if errors.Is(err, ErrStop) {
				return nil
			}
			return err
		}
	}
	return nil
}

func collect(txn *badger.Txn, kind model.Kind) ([]sequenced, error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = kindPrefix(kind)
	it := txn.NewIterator(opts)
	defer it.Close()

	var records []sequenced
	for it.Rewind(); it.Valid(); it.Next() {
		val, err := it.Item().ValueCopy(nil)
		if err != nil {
			return nil, err
		}
		seq, body, err := decodeEnvelope(val)
		if err != nil {
			return nil, err
		}
		records = append(records, sequenced{seq: seq, body: body})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })
	return records, nil
}

func (s *BadgerStore) deleteTxn(ctx context.Context, txn *badger.Txn, kind model.Kind, id string) error {
	if _, _, err := readEnvelope(txn, kind, id); err != nil {
		return err
	}
	if err := txn.Delete(recordKey(kind, id)); err != nil {
		return err
	}

	for _, ref := range s.cascades[kind] {
		children, err := childIDs(ctx, txn, ref, id)
		if err != nil {
			return err
		}
		for _, childID := range children {
			// A child reachable through two references is gone on the second visit.
			if err := s.deleteTxn(ctx, txn, ref.Child, childID); err != nil && !errors.Is(err, ErrAbsent) {
				return err
			}
		}
		if len(children) > 0 {
			s.logger.Debug("cascade delete",
				"parent_kind", kind, "parent_id", id,
				"child_kind", ref.Child, "count", len(children))
		}
	}
	return nil
}

func childIDs(ctx context.Context, txn *badger.Txn, ref Reference, parentID string) ([]string, error) {
	var ids []string
	err := scanTxn(ctx, txn, ref.Child, func(raw []byte) error {
		var fields map[string]any
		if err := json.Unmarshal(raw, &fields); err != nil {
			return err
		}
		if v, ok := fields[ref.Field].(string); ok && v == parentID {
			if childID, ok := fields["id"].(string); ok {
				ids = append(ids, childID)
			}
		}
		return nil
	})
	return ids, err
}

var _ Store = (*BadgerStore)(nil)
var _ Store = (*txnStore)(nil)
