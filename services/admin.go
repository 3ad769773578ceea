package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode"

	"github.com/example/hwidlock/metrics"
	"github.com/example/hwidlock/models"
	"github.com/example/hwidlock/store"
)

const (
	DefaultMaxGenerate = 50
	DefaultLogLimit    = 100
	MaxCustomKeyLength = 64
	randomDrawsPerSlot = 10
)

// KeyView is a key record with fields derived from the usage log.
type KeyView struct {
	Key        string     `json:"key"`
	CreatedAt  time.Time  `json:"createdAt"`
	HWID       *string    `json:"hwid"`
	Active     bool       `json:"isActive"`
	Custom     bool       `json:"custom"`
	IsUsed     bool       `json:"isUsed"`
	LastUsed   *time.Time `json:"lastUsed"`
	UsageCount int64      `json:"usageCount"`
}

type KeyList struct {
	Keys   []KeyView `json:"keys"`
	Total  int       `json:"total"`
	Used   int       `json:"used"`
	Unused int       `json:"unused"`
}

type GenerateResult struct {
	Keys      []string `json:"keys"`
	Requested int      `json:"requested"`
	Skipped   int      `json:"skipped"`
	TotalKeys int      `json:"totalKeys"`
}

type LogPage struct {
	Logs      []models.UsageLogEntry `json:"logs"`
	TotalLogs int64                  `json:"totalLogs"`
}

type Stats struct {
	TotalKeys        int        `json:"totalKeys"`
	UsedKeys         int        `json:"usedKeys"`
	UnusedKeys       int        `json:"unusedKeys"`
	TotalUsage       int        `json:"totalUsage"`
	TodayUsage       int        `json:"todayUsage"`
	WeekUsage        int        `json:"weekUsage"`
	UniqueUsers      int        `json:"uniqueUsers"`
	UniqueHWIDs      int        `json:"uniqueHWIDs"`
	LoggedHWIDs      int        `json:"loggedHWIDs"`
	RejectedAttempts int        `json:"rejectedAttempts"`
	LastActivity     *time.Time `json:"lastActivity"`
}

// AdminService implements the privileged key management operations.
type AdminService struct {
	Store       store.Store
	Settings    *SettingsStore
	Keygen      *KeyGenerator
	Fallback    FallbackSet
	MaxGenerate int
	Metrics     *metrics.Metrics
	Logger      *slog.Logger
	Now         func() time.Time
}

func NewAdminService(st store.Store, settings *SettingsStore, keygen *KeyGenerator, fallback FallbackSet, logger *slog.Logger) *AdminService {
	if logger == nil {
		logger = slog.Default()
	}
	return &AdminService{
		Store:       st,
		Settings:    settings,
		Keygen:      keygen,
		Fallback:    fallback,
		MaxGenerate: DefaultMaxGenerate,
		Logger:      logger,
		Now:         time.Now,
	}
}

// Generate creates count keys. A custom key, if given, takes the first slot.
// Slots whose key collides with an existing or reserved key are skipped.
func (s *AdminService) Generate(ctx context.Context, count int, customKey string) (*GenerateResult, error) {
	if count < 1 {
		count = 1
	}
	if s.MaxGenerate > 0 && count > s.MaxGenerate {
		count = s.MaxGenerate
	}
	if customKey != "" {
		if err := checkCustomKey(customKey); err != nil {
			return nil, err
		}
	}

	res := &GenerateResult{Keys: []string{}, Requested: count}
	for i := 0; i < count; i++ {
		var (
			key string
			err error
		)
		if i == 0 && customKey != "" {
			key, err = s.createCustom(ctx, customKey)
		} else {
			key, err = s.createRandom(ctx)
		}
		if err != nil {
			return nil, err
		}
		if key == "" {
			res.Skipped++
			continue
		}
		res.Keys = append(res.Keys, key)
	}

	keys, err := s.Store.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	res.TotalKeys = len(keys)

	s.Metrics.ObserveGenerated(len(res.Keys))
	s.Metrics.ObserveAdmin("generate")
	s.Logger.Info("keys generated", "created", len(res.Keys), "skipped", res.Skipped)
	return res, nil
}

// createCustom returns "" when the key is taken.
func (s *AdminService) createCustom(ctx context.Context, key string) (string, error) {
	if s.Fallback.Contains(key) {
		return "", nil
	}
	err := s.Store.CreateKey(ctx, &models.KeyRecord{Key: key, CreatedAt: s.Now(), Active: true, Custom: true})
	if errors.Is(err, store.ErrDuplicateKey) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("create key: %w", err)
	}
	return key, nil
}

func (s *AdminService) createRandom(ctx context.Context) (string, error) {
	for draw := 0; draw < randomDrawsPerSlot; draw++ {
		key, err := s.Keygen.Generate()
		if err != nil {
			return "", err
		}
		if s.Fallback.Contains(key) {
			continue
		}
		err = s.Store.CreateKey(ctx, &models.KeyRecord{Key: key, CreatedAt: s.Now(), Active: true})
		if errors.Is(err, store.ErrDuplicateKey) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("create key: %w", err)
		}
		return key, nil
	}
	return "", nil
}

func checkCustomKey(key string) error {
	if len(key) > MaxCustomKeyLength {
		return newError(KindBadRequest, fmt.Sprintf("Custom key must be at most %d characters", MaxCustomKeyLength))
	}
	for _, r := range key {
		if !unicode.IsPrint(r) || unicode.IsSpace(r) {
			return newError(KindBadRequest, "Custom key must not contain whitespace or control characters")
		}
	}
	return nil
}

func (s *AdminService) ListKeys(ctx context.Context) (*KeyList, error) {
	recs, err := s.Store.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	counts, err := s.Store.UsageCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("usage counts: %w", err)
	}

	list := &KeyList{Keys: make([]KeyView, 0, len(recs)), Total: len(recs)}
	for _, rec := range recs {
		view := KeyView{
			Key:        rec.Key,
			CreatedAt:  rec.CreatedAt,
			HWID:       rec.BoundHWID,
			Active:     rec.Active,
			Custom:     rec.Custom,
			IsUsed:     rec.IsBound(),
			LastUsed:   rec.LastUsedAt,
			UsageCount: counts[rec.Key],
		}
		if view.IsUsed {
			list.Used++
		}
		list.Keys = append(list.Keys, view)
	}
	list.Unused = list.Total - list.Used
	return list, nil
}

// DeleteKey removes key and its usage log entries and reports how many keys
// remain.
func (s *AdminService) DeleteKey(ctx context.Context, key string) (int, error) {
	if key == "" {
		return 0, newError(KindBadRequest, "Key parameter is required")
	}
	if err := s.Store.DeleteKey(ctx, key); err != nil {
		return 0, keyError(err, "delete key")
	}
	keys, err := s.Store.ListKeys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}
	s.Metrics.ObserveAdmin("delete")
	s.Logger.Info("key deleted", "key", MaskKey(key))
	return len(keys), nil
}

// ResetKey clears the device binding so the key can be used on a new device.
func (s *AdminService) ResetKey(ctx context.Context, key string) error {
	if key == "" {
		return newError(KindBadRequest, "Key parameter is required")
	}
	if err := s.Store.ResetKey(ctx, key); err != nil {
		return keyError(err, "reset key")
	}
	s.Metrics.ObserveAdmin("reset")
	s.Logger.Info("key binding reset", "key", MaskKey(key))
	return nil
}

func (s *AdminService) SetActive(ctx context.Context, key string, active bool) error {
	if key == "" {
		return newError(KindBadRequest, "Key parameter is required")
	}
	if err := s.Store.SetActive(ctx, key, active); err != nil {
		return keyError(err, "set key state")
	}
	op := "disable"
	if active {
		op = "enable"
	}
	s.Metrics.ObserveAdmin(op)
	s.Logger.Info("key state changed", "key", MaskKey(key), "active", active)
	return nil
}

// Logs returns usage log entries newest first. A non-positive limit falls
// back to DefaultLogLimit.
func (s *AdminService) Logs(ctx context.Context, key string, limit int) (*LogPage, error) {
	if limit <= 0 {
		limit = DefaultLogLimit
	}
	entries, err := s.Store.QueryLogs(ctx, store.LogQuery{Key: key, Limit: limit})
	if err != nil {
		return nil, fmt.Errorf("query logs: %w", err)
	}
	total, err := s.Store.CountLogs(ctx)
	if err != nil {
		return nil, fmt.Errorf("count logs: %w", err)
	}
	if entries == nil {
		entries = []models.UsageLogEntry{}
	}
	return &LogPage{Logs: entries, TotalLogs: total}, nil
}

func (s *AdminService) Stats(ctx context.Context) (*Stats, error) {
	recs, err := s.Store.ListKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list keys: %w", err)
	}
	logStats, err := s.Store.LogStats(ctx, s.Now())
	if err != nil {
		return nil, fmt.Errorf("log stats: %w", err)
	}

	stats := &Stats{
		TotalKeys:        len(recs),
		TotalUsage:       logStats.Total,
		TodayUsage:       logStats.Today,
		WeekUsage:        logStats.ThisWeek,
		UniqueUsers:      logStats.UniqueUsers,
		LoggedHWIDs:      logStats.UniqueHWIDs,
		RejectedAttempts: logStats.Rejected,
		LastActivity:     logStats.LastActivity,
	}
	bound := make(map[string]struct{})
	for _, rec := range recs {
		if rec.IsBound() {
			stats.UsedKeys++
			bound[*rec.BoundHWID] = struct{}{}
		}
	}
	stats.UnusedKeys = stats.TotalKeys - stats.UsedKeys
	stats.UniqueHWIDs = len(bound)
	return stats, nil
}

func (s *AdminService) GetSettings() Settings {
	return s.Settings.Get()
}

func (s *AdminService) UpdateSettings(next Settings) (Settings, error) {
	updated, err := s.Settings.Update(next)
	if err != nil {
		return Settings{}, err
	}
	s.Metrics.ObserveAdmin("settings")
	s.Logger.Info("settings updated", "max_keys_per_hwid", updated.MaxKeysPerHWID, "audit_rejected", updated.AuditRejected)
	return updated, nil
}

func keyError(err error, op string) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(KindNotFound, "Key not found")
	}
	return fmt.Errorf("%s: %w", op, err)
}
