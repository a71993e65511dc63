// Package testutil provides shared test utilities for await-remote-run.
package testutil

import (
	"context"
	"log/slog"
	"sync"
)

// LogEntry is one record captured by a LogRecorder.
type LogEntry struct {
	Level   slog.Level
	Message string
	Attrs   map[string]string
}

// LogRecorder captures slog records in memory so tests can assert on exactly
// what a component logged.
type LogRecorder struct {
	mu      sync.Mutex
	entries []LogEntry
}

// NewLogRecorder returns a recorder and a logger that writes into it.
func NewLogRecorder() (*slog.Logger, *LogRecorder) {
	r := &LogRecorder{}
	return slog.New(&recorderHandler{rec: r}), r
}

func (r *LogRecorder) add(e LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

// Entries returns a copy of every captured record in order.
func (r *LogRecorder) Entries() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]LogEntry, len(r.entries))
	copy(out, r.entries)
	return out
}

// AtLevel returns the captured records at the given level, in order.
func (r *LogRecorder) AtLevel(level slog.Level) []LogEntry {
	var out []LogEntry
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e)
		}
	}
	return out
}

// Warnings returns the captured warning-level records, in order.
func (r *LogRecorder) Warnings() []LogEntry {
	return r.AtLevel(slog.LevelWarn)
}

type recorderHandler struct {
	rec   *LogRecorder
	bound []slog.Attr
}

func (h *recorderHandler) Enabled(context.Context, slog.Level) bool { return true }

func (h *recorderHandler) Handle(_ context.Context, rec slog.Record) error {
	attrs := make(map[string]string, rec.NumAttrs()+len(h.bound))
	for _, a := range h.bound {
		attrs[a.Key] = a.Value.String()
	}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()
		return true
	})
	h.rec.add(LogEntry{Level: rec.Level, Message: rec.Message, Attrs: attrs})
	return nil
}

func (h *recorderHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	bound := make([]slog.Attr, 0, len(h.bound)+len(attrs))
	bound = append(bound, h.bound...)
	bound = append(bound, attrs...)
	return &recorderHandler{rec: h.rec, bound: bound}
}

func (h *recorderHandler) WithGroup(string) slog.Handler { return h }
