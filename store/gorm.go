package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/example/hwidlock/models"
)

// GormStore persists keys and the usage log through gorm. It expects a
// database opened with models.OpenDB, whose single connection serializes
// transactions; binding updates are additionally guarded by a row version.
type GormStore struct {
	db       *gorm.DB
	capacity int
}

func NewGormStore(db *gorm.DB, logCapacity int) *GormStore {
	if logCapacity <= 0 {
		logCapacity = DefaultLogCapacity
	}
	return &GormStore{db: db, capacity: logCapacity}
}

func (s *GormStore) CreateKey(ctx context.Context, rec *models.KeyRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	rec.CreatedAt = rec.CreatedAt.UTC()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var n int64
		if err := tx.Model(&models.KeyRecord{}).Where("license_key = ?", rec.Key).Count(&n).Error; err != nil {
			return fmt.Errorf("check key: %w", err)
		}
		if n > 0 {
			return ErrDuplicateKey
		}
		if err := tx.Create(rec).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return ErrDuplicateKey
			}
			return fmt.Errorf("insert key: %w", err)
		}
		return nil
	})
}

func (s *GormStore) GetKey(ctx context.Context, key string) (*models.KeyRecord, error) {
	rec, err := findKey(s.db.WithContext(ctx), key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func findKey(db *gorm.DB, key string) (*models.KeyRecord, error) {
	var rec models.KeyRecord
	res := db.Where("license_key = ?", key).Limit(1).Find(&rec)
	if res.Error != nil {
		return nil, fmt.Errorf("get key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, nil
	}
	return &rec, nil
}

func (s *GormStore) DeleteKey(ctx context.Context, key string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("license_key = ?", key).Delete(&models.KeyRecord{})
		if res.Error != nil {
			return fmt.Errorf("delete key: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrNotFound
		}
		if err := tx.Where("license_key = ?", key).Delete(&models.UsageLogEntry{}).Error; err != nil {
			return fmt.Errorf("delete usage logs: %w", err)
		}
		return nil
	})
}

func (s *GormStore) ResetKey(ctx context.Context, key string) error {
	return s.update(ctx, key, map[string]interface{}{
		"bound_hwid":   nil,
		"last_used_at": nil,
	})
}

func (s *GormStore) SetActive(ctx context.Context, key string, active bool) error {
	return s.update(ctx, key, map[string]interface{}{"active": active})
}

func (s *GormStore) update(ctx context.Context, key string, fields map[string]interface{}) error {
	fields["version"] = gorm.Expr("version + 1")
	res := s.db.WithContext(ctx).Model(&models.KeyRecord{}).Where("license_key = ?", key).Updates(fields)
	if res.Error != nil {
		return fmt.Errorf("update key: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) ListKeys(ctx context.Context) ([]models.KeyRecord, error) {
	var keys []models.KeyRecord
	if err := s.db.WithContext(ctx).Order("created_at asc, license_key asc").Find(&keys).Error; err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	return keys, nil
}

func (s *GormStore) CountByHWID(ctx context.Context, fingerprint string) (int64, error) {
	return countByHWID(s.db.WithContext(ctx), fingerprint)
}

func countByHWID(db *gorm.DB, fingerprint string) (int64, error) {
	var n int64
	if err := db.Model(&models.KeyRecord{}).Where("bound_hwid = ?", fingerprint).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count by hwid: %w", err)
	}
	return n, nil
}

func (s *GormStore) UsageCounts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Key string `gorm:"column:license_key"`
		N   int64  `gorm:"column:n"`
	}
	err := s.db.WithContext(ctx).Model(&models.UsageLogEntry{}).
		Select("license_key, COUNT(*) AS n").
		Where("entry_type <> ?", models.EntryTypeRejected).
		Group("license_key").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("usage counts: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Key] = r.N
	}
	return counts, nil
}

func (s *GormStore) AppendLog(ctx context.Context, entry *models.UsageLogEntry) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.appendLog(tx, entry)
	})
}

func (s *GormStore) appendLog(tx *gorm.DB, entry *models.UsageLogEntry) error {
	prepareEntry(entry)
	entry.Timestamp = entry.Timestamp.UTC()

	if err := tx.Create(entry).Error; err != nil {
		return fmt.Errorf("insert usage log: %w", err)
	}

	var n int64
	if err := tx.Model(&models.UsageLogEntry{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count usage logs: %w", err)
	}
	over := n - int64(s.capacity)
	if over <= 0 {
		return nil
	}

	// IDs are UUIDv7, so ordering by id is insertion order.
	var ids []string
	if err := tx.Model(&models.UsageLogEntry{}).Order("id asc").Limit(int(over)).Pluck("id", &ids).Error; err != nil {
		return fmt.Errorf("select evicted logs: %w", err)
	}
	if err := tx.Where("id IN ?", ids).Delete(&models.UsageLogEntry{}).Error; err != nil {
		return fmt.Errorf("evict usage logs: %w", err)
	}
	return nil
}

func (s *GormStore) QueryLogs(ctx context.Context, q LogQuery) ([]models.UsageLogEntry, error) {
	db := s.db.WithContext(ctx).Order("timestamp desc, id desc")
	if q.Key != "" {
		db = db.Where("license_key = ?", q.Key)
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var entries []models.UsageLogEntry
	if err := db.Find(&entries).Error; err != nil {
		return nil, fmt.Errorf("query usage logs: %w", err)
	}
	return entries, nil
}

func (s *GormStore) CountLogs(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&models.UsageLogEntry{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count usage logs: %w", err)
	}
	return n, nil
}

// LogStats loads the whole log, which is bounded by the log capacity.
func (s *GormStore) LogStats(ctx context.Context, now time.Time) (LogStats, error) {
	var entries []models.UsageLogEntry
	if err := s.db.WithContext(ctx).Find(&entries).Error; err != nil {
		return LogStats{}, fmt.Errorf("load usage logs: %w", err)
	}
	return AggregateLogStats(entries, now), nil
}

func (s *GormStore) WithKey(ctx context.Context, key, fingerprint string, fn func(tx KeyTx) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rec, err := findKey(tx, key)
		if err != nil {
			return err
		}
		return fn(&gormTx{store: s, tx: tx, key: key, rec: rec})
	})
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

type gormTx struct {
	store *GormStore
	tx    *gorm.DB
	key   string
	rec   *models.KeyRecord
}

func (t *gormTx) Record() *models.KeyRecord {
	return cloneRecord(t.rec)
}

func (t *gormTx) CountByHWID(fingerprint string) (int64, error) {
	return countByHWID(t.tx, fingerprint)
}

func (t *gormTx) Save(rec *models.KeyRecord) error {
	if rec.Key != t.key {
		return ErrNotFound
	}

	var lastUsed *time.Time
	if rec.LastUsedAt != nil {
		ts := rec.LastUsedAt.UTC()
		lastUsed = &ts
	}

	res := t.tx.Model(&models.KeyRecord{}).
		Where("license_key = ? AND version = ?", rec.Key, rec.Version).
		Updates(map[string]interface{}{
			"bound_hwid":   rec.BoundHWID,
			"last_used_at": lastUsed,
			"version":      rec.Version + 1,
		})
	if res.Error != nil {
		return fmt.Errorf("save binding: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	rec.Version++
	t.rec = cloneRecord(rec)
	return nil
}

func (t *gormTx) AppendLog(entry *models.UsageLogEntry) error {
	return t.store.appendLog(t.tx, entry)
}

func (t *gormTx) UsageCount() (int64, error) {
	var n int64
	err := t.tx.Model(&models.UsageLogEntry{}).
		Where("license_key = ? AND entry_type <> ?", t.key, models.EntryTypeRejected).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count key usage: %w", err)
	}
	return n, nil
}
