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
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a file must be quiet before it is loaded.
const DefaultDebounce = 250 * time.Millisecond

// LoadHandler observes each file the DirWatcher loads.
type LoadHandler func(path string, result *LoadResult, err error)

// DirWatcher imports OpenAPI documents dropped into a directory.
//
// # Description
//
// Every *.json, *.yaml and *.yml file present when Run starts is loaded
// once, then created or rewritten files are loaded after DefaultDebounce
// of quiet, so an editor's save sequence produces one import. Files are
// always imported with overwrite, making the file the source of truth for
// its service's endpoints. Removing a file changes nothing.
//
// # Thread Safety
//
// Run must be called at most once. Close is safe from any goroutine.
type DirWatcher struct {
	dir      string
	loader   *Loader
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onLoad   LoadHandler
	logger   *slog.Logger
}

// WatcherOption configures a DirWatcher.
type WatcherOption func(*DirWatcher)

// WithDebounce overrides DefaultDebounce.
func WithDebounce(d time.Duration) WatcherOption {
	return func(w *DirWatcher) { w.debounce = d }
}

// WithLoadHandler registers fn to observe every load.
func WithLoadHandler(fn LoadHandler) WatcherOption {
	return func(w *DirWatcher) { w.onLoad = fn }
}

// NewDirWatcher starts watching dir. The directory must exist.
func NewDirWatcher(dir string, loader *Loader, opts ...WatcherOption) (*DirWatcher, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("watch dir: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("watch dir: %s is not a directory", dir)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if err := fw.Add(dir); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("watch %s: %w", dir, err)
	}

	w := &DirWatcher{
		dir:      dir,
		loader:   loader,
		watcher:  fw,
		debounce: DefaultDebounce,
		logger:   loader.logger.With("watch_dir", dir),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Run loads the directory's current documents, then imports changes until
// ctx is cancelled or the watcher is closed. It returns nil on either.
func (w *DirWatcher) Run(ctx context.Context) error {
	if err := w.scan(ctx); err != nil {
		return err
	}

	pending := map[string]struct{}{}
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if !ev.Op.Has(fsnotify.Create) && !ev.Op.Has(fsnotify.Write) {
				continue
			}
			if !isDocument(ev.Name) {
				continue
			}
			pending[ev.Name] = struct{}{}
			timer.Reset(w.debounce)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-timer.C:
			paths := make([]string, 0, len(pending))
			for p := range pending {
				paths = append(paths, p)
			}
			clear(pending)
			sort.Strings(paths)
			for _, p := range paths {
				w.loadFile(ctx, p)
			}
		}
	}
}

// Close stops the underlying watcher.
func (w *DirWatcher) Close() error {
	return w.watcher.Close()
}

func (w *DirWatcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("scan %s: %w", w.dir, err)
	}
	for _, e := range entries {
		if e.IsDir() || !isDocument(e.Name()) {
			continue
		}
		w.loadFile(ctx, filepath.Join(w.dir, e.Name()))
	}
	return nil
}

func (w *DirWatcher) loadFile(ctx context.Context, path string) {
	data, err := os.ReadFile(path)
	var result *LoadResult
	if err == nil {
		result, err = w.loader.LoadDocument(ctx, data, "file://"+path, true)
	}
	if err != nil {
		w.logger.Warn("failed to import watched document", "path", path, "error", err)
	}
	if w.onLoad != nil {
		w.onLoad(path, result, err)
	}
}

func isDocument(path string) bool {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(base)) {
	case ".json", ".yaml", ".yml":
		return true
	}
	return false
}
