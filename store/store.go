// Package store holds the key records and the usage log. Two backends are
// provided: MemoryStore for volatile single-process use and GormStore for a
// durable sqlite database.
package store

import (
	"context"
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/example/hwidlock/models"
)

var (
	// ErrNotFound is returned when a key does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateKey is returned when creating a key that already exists.
	ErrDuplicateKey = errors.New("duplicate key")
	// ErrConflict is returned by KeyTx.Save when the record changed since it
	// was read.
	ErrConflict = errors.New("concurrent modification")
)

// DefaultLogCapacity is the number of usage log entries kept before the
// oldest ones are evicted.
const DefaultLogCapacity = 1000

// LogQuery filters a usage log query. An empty Key matches every entry and
// a non-positive Limit returns everything.
type LogQuery struct {
	Key   string
	Limit int
}

// LogStats aggregates the usage log. Rejected attempts are only counted in
// Rejected.
type LogStats struct {
	Total        int        `json:"total"`
	Today        int        `json:"today"`
	ThisWeek     int        `json:"thisWeek"`
	UniqueUsers  int        `json:"uniqueUsers"`
	UniqueHWIDs  int        `json:"uniqueHWIDs"`
	Rejected     int        `json:"rejected"`
	LastActivity *time.Time `json:"lastActivity"`
}

// Store is the authoritative key and usage log storage.
type Store interface {
	CreateKey(ctx context.Context, rec *models.KeyRecord) error
	GetKey(ctx context.Context, key string) (*models.KeyRecord, error)
	// DeleteKey removes the key together with all of its usage log entries.
	DeleteKey(ctx context.Context, key string) error
	ResetKey(ctx context.Context, key string) error
	SetActive(ctx context.Context, key string, active bool) error
	ListKeys(ctx context.Context) ([]models.KeyRecord, error)
	CountByHWID(ctx context.Context, fingerprint string) (int64, error)
	// UsageCounts returns the number of accepted usage log entries per key.
	UsageCounts(ctx context.Context) (map[string]int64, error)

	AppendLog(ctx context.Context, entry *models.UsageLogEntry) error
	QueryLogs(ctx context.Context, q LogQuery) ([]models.UsageLogEntry, error)
	CountLogs(ctx context.Context) (int64, error)
	LogStats(ctx context.Context, now time.Time) (LogStats, error)

	// WithKey runs fn as one atomic unit with respect to every other
	// operation on key and every binding of fingerprint. An error returned
	// by fn aborts the unit and is returned unchanged.
	WithKey(ctx context.Context, key, fingerprint string, fn func(tx KeyTx) error) error

	Close() error
}

// KeyTx is the view of the store available inside WithKey.
type KeyTx interface {
	// Record returns a copy of the key record, or nil if the key does not
	// exist.
	Record() *models.KeyRecord
	CountByHWID(fingerprint string) (int64, error)
	// Save persists the binding fields of rec. It fails with ErrConflict if
	// the stored version no longer matches rec.Version.
	Save(rec *models.KeyRecord) error
	AppendLog(entry *models.UsageLogEntry) error
	UsageCount() (int64, error)
}

func prepareEntry(entry *models.UsageLogEntry) {
	if entry.ID == "" {
		entry.ID = uuid.Must(uuid.NewV7()).String()
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now()
	}
}

func sortNewestFirst(entries []models.UsageLogEntry) {
	slices.SortStableFunc(entries, func(a, b models.UsageLogEntry) int {
		if c := b.Timestamp.Compare(a.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
}

// AggregateLogStats computes LogStats over entries. "Today" starts at
// midnight in now's location and "this week" covers the last seven days.
func AggregateLogStats(entries []models.UsageLogEntry, now time.Time) LogStats {
	y, m, d := now.Date()
	midnight := time.Date(y, m, d, 0, 0, 0, 0, now.Location())
	weekAgo := now.Add(-7 * 24 * time.Hour)

	var stats LogStats
	users := make(map[string]struct{})
	hwids := make(map[string]struct{})
	for _, e := range entries {
		if e.Type == models.EntryTypeRejected {
			stats.Rejected++
			continue
		}
		stats.Total++
		if !e.Timestamp.Before(midnight) {
			stats.Today++
		}
		if !e.Timestamp.Before(weekAgo) {
			stats.ThisWeek++
		}
		users[e.UserID] = struct{}{}
		hwids[e.HWID] = struct{}{}
		if stats.LastActivity == nil || e.Timestamp.After(*stats.LastActivity) {
			ts := e.Timestamp
			stats.LastActivity = &ts
		}
	}
	stats.UniqueUsers = len(users)
	stats.UniqueHWIDs = len(hwids)
	return stats
}

func cloneRecord(rec *models.KeyRecord) *models.KeyRecord {
	if rec == nil {
		return nil
	}
	out := *rec
	if rec.BoundHWID != nil {
		h := *rec.BoundHWID
		out.BoundHWID = &h
	}
	if rec.LastUsedAt != nil {
		t := *rec.LastUsedAt
		out.LastUsedAt = &t
	}
	return &out
}
