// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package badger opens and manages the BadgerDB instance that backs the
// catalog record store.
//
// The catalog keeps every entity and edge in one embedded database. This
// package owns only the lifecycle concerns: opening (on disk or in memory),
// value log garbage collection, transaction helpers and backup streams.
// Key layout and record semantics live in the store package.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package badger

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// ErrPathRequired is returned when a persistent database has no directory.
var ErrPathRequired = errors.New("path is required for persistent database")

// Config holds configuration for the catalog database.
type Config struct {
	// Path is the data directory. Ignored when InMemory is true.
	Path string

	// InMemory keeps all data in RAM. Used by tests and `serve --ephemeral`.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal log lines. Nil silences them.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the garbage ratio that triggers a rewrite.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults.
//
// Description:
//
//	Synchronous writes, value log GC every 10 minutes at a 0.5 discard
//	ratio. Path must be set by the caller.
//
// Outputs:
//
//	Config - Production configuration without a path.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     10 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
//
// Description:
//
//	In-memory mode, no fsync, no GC.
//
// Outputs:
//
//	Config - Test configuration.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...), "component", "badger")
}

func options(cfg Config) (badger.Options, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Path == "" {
			return opts, ErrPathRequired
		}
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return opts, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	// Records are rewritten in place; older versions are never read.
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}
	return opts, nil
}

// =============================================================================
// Managed DB
// =============================================================================

// DB wraps a BadgerDB instance with GC and transaction helpers.
//
// Thread Safety: Safe for concurrent use.
type DB struct {
	*badger.DB
	gc       *gcRunner
	path     string
	inMemory bool
}

// Open opens the catalog database.
//
// Description:
//
//	Opens BadgerDB at cfg.Path (creating the directory) or in memory, and
//	starts value log GC when configured for a persistent database.
//
// Inputs:
//
//	cfg - Database configuration.
//
// Outputs:
//
//	*DB - The managed database. Caller must Close it.
//	error - ErrPathRequired, or a wrapped badger open error.
func Open(cfg Config) (*DB, error) {
	opts, err := options(cfg)
	if err != nil {
		return nil, err
	}

	raw, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	db := &DB{DB: raw, path: cfg.Path, inMemory: cfg.InMemory}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		db.gc = newGCRunner(raw, cfg.GCInterval, cfg.GCDiscardRatio, cfg.Logger)
		db.gc.start()
	}
	return db, nil
}

// OpenInMemory opens an empty in-memory database.
func OpenInMemory() (*DB, error) {
	return Open(InMemoryConfig())
}

// Close stops GC and closes the database.
func (d *DB) Close() error {
	if d.gc != nil {
		d.gc.stop()
	}
	return d.DB.Close()
}

// Path returns the data directory, empty for in-memory databases.
func (d *DB) Path() string { return d.path }

// InMemory reports whether the database lives only in RAM.
func (d *DB) InMemory() bool { return d.inMemory }

// WithTxn runs fn inside a read-write transaction.
//
// Description:
//
//	Commits when fn returns nil and discards otherwise. The context is
//	checked before the transaction starts and again before commit, so a
//	cancelled caller never commits a partial write.
//
// Inputs:
//
//	ctx - Cancellation.
//	fn - Transaction body.
//
// Outputs:
//
//	error - ctx error, fn error, or commit error (badger.ErrConflict on
//	optimistic concurrency conflicts).
func (d *DB) WithTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(true)
	defer txn.Discard()

	if err := fn(txn); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled before commit: %w", err)
	}
	return txn.Commit()
}

// WithReadTxn runs fn inside a read-only transaction.
func (d *DB) WithReadTxn(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}

	txn := d.DB.NewTransaction(false)
	defer txn.Discard()

	return fn(txn)
}

// Backup streams a full backup of the database to w.
//
// Outputs:
//
//	uint64 - Version watermark of the backup.
//	error - Non-nil if streaming fails.
func (d *DB) Backup(ctx context.Context, w io.Writer) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	return d.DB.Backup(w, 0)
}

// Restore loads a backup produced by Backup. The database should be empty.
func (d *DB) Restore(ctx context.Context, r io.Reader) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return d.DB.Load(r, 256)
}

// =============================================================================
// Value log GC
// =============================================================================

type gcRunner struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger
	stopCh   chan struct{}
	doneCh   chan struct{}
}

func newGCRunner(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) *gcRunner {
	if ratio <= 0 || ratio > 1 {
		ratio = 0.5
	}
	return &gcRunner{
		db:       db,
		interval: interval,
		ratio:    ratio,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

func (r *gcRunner) start() {
	go func() {
		defer close(r.doneCh)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()
		for {
			select {
			case <-r.stopCh:
				return
			case <-ticker.C:
				r.collect()
			}
		}
	}()
}

func (r *gcRunner) stop() {
	close(r.stopCh)
	<-r.doneCh
}

func (r *gcRunner) collect() {
	// Rewrite files until badger reports nothing left to reclaim.
	for {
		err := r.db.RunValueLogGC(r.ratio)
		if err == nil {
			continue
		}
		if !errors.Is(err, badger.ErrNoRewrite) && r.logger != nil {
			r.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
		}
		return
	}
}
