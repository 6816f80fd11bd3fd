// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package logging provides structured logging for the catalog server and CLI.
//
// Logs go to stderr by default, optionally also to a daily JSON file, and
// optionally to a LogExporter:
//
//	┌──────────────────────────────────────────────────────┐
//	│                       Logger                         │
//	│  ┌───────────┐   ┌────────────┐   ┌───────────────┐  │
//	│  │  stderr   │   │  log file  │   │  LogExporter  │  │
//	│  │ (default) │   │ (optional) │   │  (optional)   │  │
//	│  └───────────┘   └────────────┘   └───────────────┘  │
//	└──────────────────────────────────────────────────────┘
//
// # Console Format
//
// Console output is human-readable text when stderr is a terminal and JSON
// when it is redirected, so `catalog serve 2> catalog.log` produces
// machine-parseable lines without extra flags. Config.JSON forces JSON.
// File logs are always JSON.
//
// # Basic Usage
//
//	logger := logging.New(logging.Config{
//	    Level:   logging.LevelInfo,
//	    LogDir:  "~/.aleutian/catalog/logs",
//	    Service: "catalog",
//	})
//	defer logger.Close()
//	logger.SetDefault()
//
// HTTP handlers log through slog.Default, so SetDefault routes them here.
//
// # Thread Safety
//
// Logger is safe for concurrent use.
//
// # Security Considerations
//
// Nothing is redacted. Do not log connection strings or credentials.
package logging

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mattn/go-isatty"
)

// =============================================================================
// Log Levels
// =============================================================================

// Level represents log severity levels, ordered Debug < Info < Warn < Error.
type Level int

const (
	// LevelDebug is for development troubleshooting.
	LevelDebug Level = iota - 1

	// LevelInfo is for normal operations. This is the default.
	LevelInfo

	// LevelWarn is for recoverable problems: rejected requests, retries.
	LevelWarn

	// LevelError is for failed operations, e.g. store I/O errors.
	LevelError
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ParseLevel converts a config value ("debug", "info", "warn", "error")
// into a Level.
func ParseLevel(s string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LevelDebug, nil
	case "", "info":
		return LevelInfo, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "error":
		return LevelError, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", s)
}

func (l Level) toSlogLevel() slog.Level {
	switch l {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func levelFromSlog(l slog.Level) Level {
	switch {
	case l >= slog.LevelError:
		return LevelError
	case l >= slog.LevelWarn:
		return LevelWarn
	case l >= slog.LevelInfo:
		return LevelInfo
	default:
		return LevelDebug
	}
}

// =============================================================================
// Configuration
// =============================================================================

// Config configures the Logger. A zero Config logs Info and above to
// stderr.
type Config struct {
	// Level sets the minimum log level.
	// Default: LevelInfo
	Level Level

	// LogDir enables file logging. Files are named
	// "{Service}_{YYYY-MM-DD}.log", hold JSON lines, and are created with
	// 0640 permissions inside a 0750 directory. "~" is expanded.
	// Default: "" (disabled)
	LogDir string

	// Service is added to every entry as the "service" attribute.
	Service string

	// JSON forces JSON console output even on a terminal.
	JSON bool

	// Quiet disables console output.
	Quiet bool

	// Output replaces stderr as the console destination. Used by tests.
	Output io.Writer

	// Exporter receives a copy of every entry at or above Level.
	Exporter LogExporter

	// ExportBuffer bounds entries queued for the Exporter; entries beyond
	// it are dropped.
	// Default: 1024
	ExportBuffer int
}

// =============================================================================
// Export
// =============================================================================

// LogExporter ships log entries to an external system.
//
// Export is called from a single background goroutine, in order. Flush is
// called once during Close, after the queue drains, then Close.
type LogExporter interface {
	Export(ctx context.Context, entry LogEntry) error
	Flush(ctx context.Context) error
	Close() error
}

// LogEntry is one exported log record.
type LogEntry struct {
	Timestamp time.Time
	Level     Level
	Message   string
	Service   string
	Attrs     map[string]any
}

// =============================================================================
// Logger
// =============================================================================

// Logger wraps slog.Logger with file output and export.
//
// Always Close a Logger that has a LogDir or Exporter; Close drains the
// export queue and syncs the file.
type Logger struct {
	slog   *slog.Logger
	config Config
	shared *sinks
}

// sinks holds the resources shared by a Logger and its With children.
type sinks struct {
	mu     sync.Mutex
	file   *os.File
	export *exportQueue
	closed bool
}

// New creates a Logger from config.
//
// Description:
//
//	A LogDir that cannot be created or opened is reported on the console
//	and file logging is skipped; logging itself never fails.
func New(config Config) *Logger {
	opts := &slog.HandlerOptions{Level: config.Level.toSlogLevel()}
	shared := &sinks{}

	var handlers []slog.Handler
	if !config.Quiet {
		out := config.Output
		if out == nil {
			out = os.Stderr
		}
		if config.JSON || !isTerminal(out) {
			handlers = append(handlers, slog.NewJSONHandler(out, opts))
		} else {
			handlers = append(handlers, slog.NewTextHandler(out, opts))
		}
	}

	if config.LogDir != "" {
		file, err := openLogFile(config)
		if err != nil {
			fmt.Fprintf(os.Stderr, "logging: file output disabled: %v\n", err)
		} else {
			shared.file = file
			handlers = append(handlers, slog.NewJSONHandler(file, opts))
		}
	}

	if config.Exporter != nil {
		shared.export = newExportQueue(config.Exporter, config.ExportBuffer)
		handlers = append(handlers, &exportHandler{
			queue:   shared.export,
			level:   config.Level.toSlogLevel(),
			service: config.Service,
		})
	}

	var handler slog.Handler
	switch len(handlers) {
	case 0:
		handler = slog.NewTextHandler(io.Discard, opts)
	case 1:
		handler = handlers[0]
	default:
		handler = &multiHandler{handlers: handlers}
	}
	if config.Service != "" {
		handler = handler.WithAttrs([]slog.Attr{slog.String("service", config.Service)})
	}

	return &Logger{slog: slog.New(handler), config: config, shared: shared}
}

// Default returns an Info-level stderr logger for the catalog.
func Default() *Logger {
	return New(Config{Level: LevelInfo, Service: "catalog"})
}

// Debug logs at Debug level.
func (l *Logger) Debug(msg string, args ...any) { l.slog.Debug(msg, args...) }

// Info logs at Info level.
func (l *Logger) Info(msg string, args ...any) { l.slog.Info(msg, args...) }

// Warn logs at Warn level.
func (l *Logger) Warn(msg string, args ...any) { l.slog.Warn(msg, args...) }

// Error logs at Error level.
func (l *Logger) Error(msg string, args ...any) { l.slog.Error(msg, args...) }

// With returns a child logger carrying extra attributes. Children share the
// parent's file and exporter; closing either closes both.
func (l *Logger) With(args ...any) *Logger {
	return &Logger{slog: l.slog.With(args...), config: l.config, shared: l.shared}
}

// Slog returns the underlying slog.Logger.
func (l *Logger) Slog() *slog.Logger {
	return l.slog
}

// SetDefault installs the logger as slog's default.
func (l *Logger) SetDefault() {
	slog.SetDefault(l.slog)
}

// Close drains and closes the exporter, then syncs and closes the log
// file. It is safe to call more than once.
func (l *Logger) Close() error {
	s := l.shared
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true

	var errs []error
	if s.export != nil {
		if err := s.export.close(5 * time.Second); err != nil {
			errs = append(errs, err)
		}
	}
	if s.file != nil {
		if err := s.file.Sync(); err != nil {
			errs = append(errs, fmt.Errorf("sync log file: %w", err))
		}
		if err := s.file.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close log file: %w", err))
		}
	}
	if len(errs) > 0 {
		return errs[0]
	}
	return nil
}

// FilePath returns the path of the open log file, or "" when file logging
// is disabled.
func (l *Logger) FilePath() string {
	if l.shared.file == nil {
		return ""
	}
	return l.shared.file.Name()
}

func openLogFile(config Config) (*os.File, error) {
	dir := expandPath(config.LogDir)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	service := config.Service
	if service == "" {
		service = "catalog"
	}
	name := fmt.Sprintf("%s_%s.log", service, time.Now().Format("2006-01-02"))
	return os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0640)
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// =============================================================================
// Multi-Handler (Internal)
// =============================================================================

// multiHandler fans records out to several handlers.
type multiHandler struct {
	handlers []slog.Handler
}

func (h *multiHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, handler := range h.handlers {
		if handler.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (h *multiHandler) Handle(ctx context.Context, r slog.Record) error {
	var first error
	for _, handler := range h.handlers {
		if !handler.Enabled(ctx, r.Level) {
			continue
		}
		if err := handler.Handle(ctx, r.Clone()); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (h *multiHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithAttrs(attrs)
	}
	return &multiHandler{handlers: handlers}
}

func (h *multiHandler) WithGroup(name string) slog.Handler {
	handlers := make([]slog.Handler, len(h.handlers))
	for i, handler := range h.handlers {
		handlers[i] = handler.WithGroup(name)
	}
	return &multiHandler{handlers: handlers}
}

// =============================================================================
// Export Handler (Internal)
// =============================================================================

// exportHandler turns records into LogEntry values for the export queue.
// Groups are flattened into dotted keys.
type exportHandler struct {
	queue   *exportQueue
	level   slog.Level
	service string
	attrs   []slog.Attr
	group   string
}

func (h *exportHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *exportHandler) Handle(_ context.Context, r slog.Record) error {
	attrs := make(map[string]any, len(h.attrs)+r.NumAttrs())
	for _, a := range h.attrs {
		addAttr(attrs, "", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		addAttr(attrs, h.group, a)
		return true
	})
	service := h.service
	if svc, ok := attrs["service"].(string); ok {
		service = svc
	}
	delete(attrs, "service")

	h.queue.push(LogEntry{
		Timestamp: r.Time,
		Level:     levelFromSlog(r.Level),
		Message:   r.Message,
		Service:   service,
		Attrs:     attrs,
	})
	return nil
}

func (h *exportHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := *h
	next.attrs = make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	next.attrs = append(next.attrs, h.attrs...)
	for _, a := range attrs {
		if h.group != "" {
			a.Key = h.group + "." + a.Key
		}
		next.attrs = append(next.attrs, a)
	}
	return &next
}

func (h *exportHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	next := *h
	if h.group != "" {
		next.group = h.group + "." + name
	} else {
		next.group = name
	}
	return &next
}

func addAttr(dst map[string]any, prefix string, a slog.Attr) {
	a.Value = a.Value.Resolve()
	key := a.Key
	if prefix != "" {
		key = prefix + "." + key
	}
	if a.Value.Kind() == slog.KindGroup {
		for _, ga := range a.Value.Group() {
			addAttr(dst, key, ga)
		}
		return
	}
	if err, ok := a.Value.Any().(error); ok {
		dst[key] = err.Error()
		return
	}
	dst[key] = a.Value.Any()
}

// exportQueue feeds one exporter from a bounded channel.
type exportQueue struct {
	exporter LogExporter
	entries  chan LogEntry
	done     chan struct{}
	once     sync.Once

	mu      sync.RWMutex
	stopped bool
	dropped atomic.Int64
}

func newExportQueue(exporter LogExporter, buffer int) *exportQueue {
	if buffer <= 0 {
		buffer = 1024
	}
	q := &exportQueue{
		exporter: exporter,
		entries:  make(chan LogEntry, buffer),
		done:     make(chan struct{}),
	}
	go q.run()
	return q
}

func (q *exportQueue) run() {
	defer close(q.done)
	for entry := range q.entries {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = q.exporter.Export(ctx, entry)
		cancel()
	}
}

func (q *exportQueue) push(entry LogEntry) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return
	}
	select {
	case q.entries <- entry:
	default:
		q.dropped.Add(1)
	}
}

func (q *exportQueue) close(timeout time.Duration) error {
	var err error
	q.once.Do(func() {
		q.mu.Lock()
		q.stopped = true
		close(q.entries)
		q.mu.Unlock()

		select {
		case <-q.done:
		case <-time.After(timeout):
			err = fmt.Errorf("export queue did not drain within %s", timeout)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		if ferr := q.exporter.Flush(ctx); ferr != nil {
			err = fmt.Errorf("flush exporter: %w", ferr)
		}
		if cerr := q.exporter.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close exporter: %w", cerr)
		}
	})
	return err
}

// =============================================================================
// Helpers
// =============================================================================

// expandPath expands a leading ~ to the user's home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return path
}

// =============================================================================
// Exporters
// =============================================================================

// BufferedExporter keeps entries in memory. Useful in tests.
type BufferedExporter struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewBufferedExporter creates an empty BufferedExporter.
func NewBufferedExporter() *BufferedExporter {
	return &BufferedExporter{}
}

// Export appends entry.
func (e *BufferedExporter) Export(_ context.Context, entry LogEntry) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.entries = append(e.entries, entry)
	return nil
}

// Flush is a no-op.
func (e *BufferedExporter) Flush(context.Context) error { return nil }

// Close is a no-op.
func (e *BufferedExporter) Close() error { return nil }

// Entries returns a copy of the exported entries.
func (e *BufferedExporter) Entries() []LogEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]LogEntry, len(e.entries))
	copy(out, e.entries)
	return out
}
