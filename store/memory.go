package store

import (
	"context"
	"hash/fnv"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/example/hwidlock/models"
)

const lockStripes = 256

// stripedLocks serializes work per string while bounding the number of
// mutexes. Distinct strings may share a stripe.
type stripedLocks [lockStripes]sync.Mutex

func (l *stripedLocks) of(s string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(s))
	return &l[h.Sum32()%lockStripes]
}

// MemoryStore keeps everything in process memory. Mutations of a key are
// serialized by a per-key stripe lock; binding decisions additionally hold
// the fingerprint stripe so HWID quota checks cannot interleave. Locks are
// always taken key first, fingerprint second.
type MemoryStore struct {
	mu   sync.RWMutex
	keys map[string]*models.KeyRecord

	keyLocks  stripedLocks
	hwidLocks stripedLocks

	log *UsageLog
}

func NewMemoryStore(logCapacity int) *MemoryStore {
	return &MemoryStore{
		keys: make(map[string]*models.KeyRecord),
		log:  NewUsageLog(logCapacity),
	}
}

func (m *MemoryStore) CreateKey(ctx context.Context, rec *models.KeyRecord) error {
	lock := m.keyLocks.of(rec.Key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.keys[rec.Key]; exists {
		return ErrDuplicateKey
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	m.keys[rec.Key] = cloneRecord(rec)
	return nil
}

func (m *MemoryStore) GetKey(ctx context.Context, key string) (*models.KeyRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rec, ok := m.keys[key]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneRecord(rec), nil
}

func (m *MemoryStore) DeleteKey(ctx context.Context, key string) error {
	lock := m.keyLocks.of(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	if _, ok := m.keys[key]; !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.keys, key)
	m.mu.Unlock()

	// Appends for key only happen under the key lock, so nothing can slip in
	// between the delete above and this purge.
	m.log.RemoveAllForKey(key)
	return nil
}

func (m *MemoryStore) ResetKey(ctx context.Context, key string) error {
	return m.mutate(key, func(rec *models.KeyRecord) {
		rec.BoundHWID = nil
		rec.LastUsedAt = nil
	})
}

func (m *MemoryStore) SetActive(ctx context.Context, key string, active bool) error {
	return m.mutate(key, func(rec *models.KeyRecord) {
		rec.Active = active
	})
}

func (m *MemoryStore) mutate(key string, fn func(rec *models.KeyRecord)) error {
	lock := m.keyLocks.of(key)
	lock.Lock()
	defer lock.Unlock()

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.keys[key]
	if !ok {
		return ErrNotFound
	}
	fn(rec)
	rec.Version++
	return nil
}

func (m *MemoryStore) ListKeys(ctx context.Context) ([]models.KeyRecord, error) {
	m.mu.RLock()
	out := make([]models.KeyRecord, 0, len(m.keys))
	for _, rec := range m.keys {
		out = append(out, *cloneRecord(rec))
	}
	m.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.KeyRecord) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Key, b.Key)
	})
	return out, nil
}

func (m *MemoryStore) CountByHWID(ctx context.Context, fingerprint string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.countByHWID(fingerprint), nil
}

// countByHWID requires m.mu to be held.
func (m *MemoryStore) countByHWID(fingerprint string) int64 {
	var n int64
	for _, rec := range m.keys {
		if rec.BoundHWID != nil && *rec.BoundHWID == fingerprint {
			n++
		}
	}
	return n
}

func (m *MemoryStore) UsageCounts(ctx context.Context) (map[string]int64, error) {
	return m.log.Counts(), nil
}

func (m *MemoryStore) AppendLog(ctx context.Context, entry *models.UsageLogEntry) error {
	*entry = m.log.Append(*entry)
	return nil
}

func (m *MemoryStore) QueryLogs(ctx context.Context, q LogQuery) ([]models.UsageLogEntry, error) {
	return m.log.Query(q), nil
}

func (m *MemoryStore) CountLogs(ctx context.Context) (int64, error) {
	return int64(m.log.Len()), nil
}

func (m *MemoryStore) LogStats(ctx context.Context, now time.Time) (LogStats, error) {
	return AggregateLogStats(m.log.Snapshot(), now), nil
}

func (m *MemoryStore) WithKey(ctx context.Context, key, fingerprint string, fn func(tx KeyTx) error) error {
	keyLock := m.keyLocks.of(key)
	keyLock.Lock()
	defer keyLock.Unlock()

	hwidLock := m.hwidLocks.of(fingerprint)
	hwidLock.Lock()
	defer hwidLock.Unlock()

	m.mu.RLock()
	rec := cloneRecord(m.keys[key])
	m.mu.RUnlock()

	return fn(&memoryTx{store: m, key: key, rec: rec})
}

func (m *MemoryStore) Close() error {
	return nil
}

type memoryTx struct {
	store *MemoryStore
	key   string
	rec   *models.KeyRecord
}

func (t *memoryTx) Record() *models.KeyRecord {
	return cloneRecord(t.rec)
}

func (t *memoryTx) CountByHWID(fingerprint string) (int64, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.countByHWID(fingerprint), nil
}

func (t *memoryTx) Save(rec *models.KeyRecord) error {
	t.store.mu.Lock()
	defer t.store.mu.Unlock()

	cur, ok := t.store.keys[rec.Key]
	if !ok || rec.Key != t.key {
		return ErrNotFound
	}
	if cur.Version != rec.Version {
		return ErrConflict
	}
	next := cloneRecord(rec)
	cur.BoundHWID = next.BoundHWID
	cur.LastUsedAt = next.LastUsedAt
	cur.Version++
	rec.Version = cur.Version
	t.rec = cloneRecord(cur)
	return nil
}

func (t *memoryTx) AppendLog(entry *models.UsageLogEntry) error {
	*entry = t.store.log.Append(*entry)
	return nil
}

func (t *memoryTx) UsageCount() (int64, error) {
	return t.store.log.CountForKey(t.key), nil
}
