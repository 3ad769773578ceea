package services

import "sync"

// Settings are the process-wide knobs an admin may change at runtime.
type Settings struct {
	MaxKeysPerHWID int  `json:"maxKeysPerHWID"`
	AuditRejected  bool `json:"auditRejected"`
}

// SettingsStore guards Settings for concurrent readers.
type SettingsStore struct {
	mu       sync.RWMutex
	settings Settings
}

func NewSettingsStore(initial Settings) *SettingsStore {
	if initial.MaxKeysPerHWID < 1 {
		initial.MaxKeysPerHWID = 1
	}
	return &SettingsStore{settings: initial}
}

func (s *SettingsStore) Get() Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings
}

// Update replaces the settings. MaxKeysPerHWID must be at least 1.
func (s *SettingsStore) Update(next Settings) (Settings, error) {
	if next.MaxKeysPerHWID < 1 {
		return Settings{}, newError(KindBadRequest, "maxKeysPerHWID must be at least 1")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = next
	return next, nil
}
