package store

import (
	"slices"
	"sync"

	"github.com/example/hwidlock/models"
)

// UsageLog is a bounded, append-only, FIFO-evicting log safe for concurrent
// use.
type UsageLog struct {
	mu       sync.Mutex
	capacity int
	entries  []models.UsageLogEntry
}

func NewUsageLog(capacity int) *UsageLog {
	if capacity <= 0 {
		capacity = DefaultLogCapacity
	}
	return &UsageLog{capacity: capacity}
}

// Append adds entry, evicting the oldest entries once capacity is exceeded.
func (l *UsageLog) Append(entry models.UsageLogEntry) models.UsageLogEntry {
	prepareEntry(&entry)

	l.mu.Lock()
	defer l.mu.Unlock()

	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.capacity; over > 0 {
		l.entries = slices.Delete(l.entries, 0, over)
	}
	return entry
}

// Query returns matching entries newest first.
func (l *UsageLog) Query(q LogQuery) []models.UsageLogEntry {
	l.mu.Lock()
	out := make([]models.UsageLogEntry, 0, len(l.entries))
	for _, e := range l.entries {
		if q.Key == "" || e.Key == q.Key {
			out = append(out, e)
		}
	}
	l.mu.Unlock()

	sortNewestFirst(out)
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out
}

// RemoveAllForKey drops every entry for key and returns how many were
// removed.
func (l *UsageLog) RemoveAllForKey(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	before := len(l.entries)
	l.entries = slices.DeleteFunc(l.entries, func(e models.UsageLogEntry) bool {
		return e.Key == key
	})
	return before - len(l.entries)
}

func (l *UsageLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Snapshot returns a copy of all entries in insertion order.
func (l *UsageLog) Snapshot() []models.UsageLogEntry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return slices.Clone(l.entries)
}

// CountForKey counts accepted entries for key.
func (l *UsageLog) CountForKey(key string) int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	var n int64
	for _, e := range l.entries {
		if e.Key == key && e.Type != models.EntryTypeRejected {
			n++
		}
	}
	return n
}

// Counts returns accepted entry counts per key.
func (l *UsageLog) Counts() map[string]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()

	counts := make(map[string]int64)
	for _, e := range l.entries {
		if e.Type != models.EntryTypeRejected {
			counts[e.Key]++
		}
	}
	return counts
}
