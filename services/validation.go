package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/hwidlock/metrics"
	"github.com/example/hwidlock/models"
	"github.com/example/hwidlock/store"
)

// maxDecisionPasses bounds how often a decision is re-evaluated after the
// key record changed underneath it.
const maxDecisionPasses = 3

const unknown = "unknown"

type UserInfo struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	PlaceID   int64  `json:"placeId"`
	IP        string `json:"ip"`
	UserAgent string `json:"userAgent"`
}

type ValidationRequest struct {
	Key      string
	HWID     string
	UserInfo UserInfo
}

type ValidationResult struct {
	KeyType     models.EntryType
	Key         string
	HWID        string
	Bound       bool
	ValidatedAt time.Time
	UsageCount  int64
}

// FallbackSet holds reserved keys that always validate as admin keys and
// never touch the key store.
type FallbackSet map[string]struct{}

func NewFallbackSet(keys []string) FallbackSet {
	set := make(FallbackSet, len(keys))
	for _, k := range keys {
		if k != "" {
			set[k] = struct{}{}
		}
	}
	return set
}

func (f FallbackSet) Contains(key string) bool {
	_, ok := f[key]
	return ok
}

// ValidationService decides whether a key may be used on a device and binds
// it on first use.
type ValidationService struct {
	Store    store.Store
	Settings *SettingsStore
	Fallback FallbackSet
	Geo      GeoResolver
	Metrics  *metrics.Metrics
	Logger   *slog.Logger
	Now      func() time.Time
}

func NewValidationService(st store.Store, settings *SettingsStore, fallback FallbackSet, logger *slog.Logger) *ValidationService {
	if logger == nil {
		logger = slog.Default()
	}
	return &ValidationService{
		Store:    st,
		Settings: settings,
		Fallback: fallback,
		Logger:   logger,
		Now:      time.Now,
	}
}

// Validate runs the binding state machine for one attempt. Business
// rejections are returned as *Error; any other error is internal.
func (s *ValidationService) Validate(ctx context.Context, req ValidationRequest) (*ValidationResult, error) {
	if req.Key == "" || req.HWID == "" {
		return nil, newError(KindBadRequest, "Key and HWID are required")
	}

	now := s.Now()
	fp := Fingerprint(req.HWID)
	info := s.normalize(req.UserInfo)

	if s.Fallback.Contains(req.Key) {
		entry := s.newEntry(req.Key, fp, info, models.EntryTypeAdmin, now)
		if err := s.Store.AppendLog(ctx, &entry); err != nil {
			return nil, fmt.Errorf("log admin key usage: %w", err)
		}
		s.Metrics.ObserveValidation(string(models.EntryTypeAdmin))
		s.Logger.Info("admin key validated", "hwid", fp, "user_id", info.UserID)
		return &ValidationResult{KeyType: models.EntryTypeAdmin, HWID: fp, ValidatedAt: now}, nil
	}

	settings := s.Settings.Get()
	for pass := 0; pass < maxDecisionPasses; pass++ {
		var (
			result    *ValidationResult
			rejection *Error
		)
		err := s.Store.WithKey(ctx, req.Key, fp, func(tx store.KeyTx) error {
			var err error
			result, rejection, err = s.decide(tx, req.Key, fp, info, now, settings)
			return err
		})
		if errors.Is(err, store.ErrConflict) {
			s.Logger.Debug("key changed during validation, re-evaluating", "key", MaskKey(req.Key), "pass", pass)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("validate key: %w", err)
		}

		if rejection != nil {
			s.Metrics.ObserveValidation(string(rejection.Kind))
			s.Logger.Info("validation rejected", "key", MaskKey(req.Key), "hwid", fp, "reason", rejection.Kind)
			return nil, rejection
		}

		s.Metrics.ObserveValidation(string(models.EntryTypeUser))
		if result.Bound {
			s.Metrics.ObserveBinding()
			s.Logger.Info("key bound to device", "key", MaskKey(req.Key), "hwid", fp)
		}
		return result, nil
	}
	return nil, fmt.Errorf("validate key %s: %w", MaskKey(req.Key), store.ErrConflict)
}

func (s *ValidationService) decide(tx store.KeyTx, key, fp string, info UserInfo, now time.Time, settings Settings) (*ValidationResult, *Error, error) {
	rec := tx.Record()
	if rec == nil || !rec.Active {
		return s.reject(tx, key, fp, info, now, settings, newError(KindInvalidKey, "Key not found or inactive"))
	}

	if rec.BoundHWID != nil && *rec.BoundHWID != fp {
		rej := newError(KindHWIDMismatch, "This key is already bound to another device").
			with("boundHWID", *rec.BoundHWID)
		return s.reject(tx, key, fp, info, now, settings, rej)
	}

	bound := false
	if rec.BoundHWID == nil {
		n, err := tx.CountByHWID(fp)
		if err != nil {
			return nil, nil, err
		}
		if n >= int64(settings.MaxKeysPerHWID) {
			rej := newError(KindHWIDLimitExceeded,
				fmt.Sprintf("This device has reached the maximum limit of %d key(s)", settings.MaxKeysPerHWID)).
				with("currentKeys", n)
			return s.reject(tx, key, fp, info, now, settings, rej)
		}
		rec.BoundHWID = &fp
		bound = true
	}

	rec.LastUsedAt = &now
	if err := tx.Save(rec); err != nil {
		return nil, nil, err
	}

	entry := s.newEntry(key, fp, info, models.EntryTypeUser, now)
	if err := tx.AppendLog(&entry); err != nil {
		return nil, nil, err
	}
	count, err := tx.UsageCount()
	if err != nil {
		return nil, nil, err
	}

	return &ValidationResult{
		KeyType:     models.EntryTypeUser,
		Key:         key,
		HWID:        fp,
		Bound:       bound,
		ValidatedAt: now,
		UsageCount:  count,
	}, nil, nil
}

// reject records the attempt when auditing of rejections is enabled.
func (s *ValidationService) reject(tx store.KeyTx, key, fp string, info UserInfo, now time.Time, settings Settings, rej *Error) (*ValidationResult, *Error, error) {
	if settings.AuditRejected {
		entry := s.newEntry(key, fp, info, models.EntryTypeRejected, now)
		entry.Reason = string(rej.Kind)
		if err := tx.AppendLog(&entry); err != nil {
			return nil, nil, err
		}
	}
	return nil, rej, nil
}

func (s *ValidationService) normalize(info UserInfo) UserInfo {
	if info.UserID == "" {
		info.UserID = unknown
	}
	if info.Username == "" {
		info.Username = unknown
	}
	if info.IP == "" {
		info.IP = unknown
	}
	if info.UserAgent == "" {
		info.UserAgent = unknown
	}
	return info
}

func (s *ValidationService) newEntry(key, fp string, info UserInfo, typ models.EntryType, now time.Time) models.UsageLogEntry {
	entry := models.UsageLogEntry{
		Key:       key,
		HWID:      fp,
		UserID:    info.UserID,
		Username:  info.Username,
		PlaceID:   info.PlaceID,
		Timestamp: now,
		IP:        info.IP,
		UserAgent: info.UserAgent,
		Type:      typ,
	}
	if s.Geo != nil {
		entry.Country = s.Geo.Country(info.IP)
	}
	return entry
}

// MaskKey shortens a key for log output.
func MaskKey(key string) string {
	if len(key) > 8 {
		return key[:4] + "..." + key[len(key)-4:]
	}
	return "****"
}
