package logging

import (
	"sync"
	"time"
)

// LogEntry is one record as served by /api/logs.
type LogEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries of the run.
type RingBuffer struct {
	mu      sync.RWMutex
	entries []LogEntry
	next    int
	full    bool
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{entries: make([]LogEntry, max(size, 1))}
}

// Write stores entry, dropping the oldest one once the buffer is full.
func (rb *RingBuffer) Write(entry LogEntry) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.entries[rb.next] = entry
	rb.next++
	if rb.next == len(rb.entries) {
		rb.next = 0
		rb.full = true
	}
}

// ReadAll returns the buffered entries, oldest first.
func (rb *RingBuffer) ReadAll() []LogEntry {
	return rb.Filter("", "")
}

// Filter returns the buffered entries of module at level, oldest first. An
// empty module or level matches everything.
func (rb *RingBuffer) Filter(module, level string) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var out []LogEntry
	keep := func(entries []LogEntry) {
		for _, e := range entries {
			if (module == "" || e.Module == module) && (level == "" || e.Level == level) {
				out = append(out, e)
			}
		}
	}
	if rb.full {
		keep(rb.entries[rb.next:])
	}
	keep(rb.entries[:rb.next])
	return out
}

// Len reports how many entries are buffered.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	if rb.full {
		return len(rb.entries)
	}
	return rb.next
}
