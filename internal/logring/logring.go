// Package logring keeps a bounded in-memory tail of log output so the
// API can expose recent entries without log file plumbing.
package logring

import (
	"log/slog"
	"sync"
	"time"
)

// Entry is one captured log record.
type Entry struct {
	Time    time.Time      `json:"time"`
	Level   string         `json:"level"`
	Message string         `json:"message"`
	Attrs   map[string]any `json:"attrs,omitempty"`
}

// Ring holds the most recent entries up to a fixed capacity.
type Ring struct {
	mu      sync.Mutex
	cap     int
	entries []Entry
}

// New creates a ring holding at most capacity entries.
func New(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1000
	}
	return &Ring{cap: capacity}
}

// Append records an entry, evicting the oldest if the ring is full.
func (r *Ring) Append(e Entry) {
	r.mu.Lock()
	r.entries = append(r.entries, e)
	if len(r.entries) > r.cap {
		// Shift rather than reslice so the backing array doesn't grow
		// without bound.
		copy(r.entries, r.entries[1:])
		r.entries = r.entries[:r.cap]
	}
	r.mu.Unlock()
}

// Tail returns up to n entries at or above minLevel, oldest first.
// n <= 0 returns all matching entries.
func (r *Ring) Tail(n int, minLevel slog.Level) []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Entry
	for _, e := range r.entries {
		if levelOf(e.Level) >= minLevel {
			out = append(out, e)
		}
	}
	if n > 0 && len(out) > n {
		out = out[len(out)-n:]
	}
	return out
}

// Len reports how many entries are currently held.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func levelOf(s string) slog.Level {
	switch s {
	case "DEBUG":
		return slog.LevelDebug
	case "WARN":
		return slog.LevelWarn
	case "ERROR":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
