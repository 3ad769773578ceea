package models

import (
	"time"
)

type EntryType string

const (
	EntryTypeAdmin    EntryType = "admin"
	EntryTypeUser     EntryType = "user"
	EntryTypeRejected EntryType = "rejected"
)

// KeyRecord is one issued activation key. BoundHWID is nil while the key is
// available and holds the device fingerprint once bound.
type KeyRecord struct {
	Key        string     `gorm:"column:license_key;primaryKey;size:64" json:"key"`
	CreatedAt  time.Time  `json:"createdAt"`
	BoundHWID  *string    `gorm:"column:bound_hwid;index;size:16" json:"hwid"`
	LastUsedAt *time.Time `gorm:"column:last_used_at" json:"lastUsedAt"`
	Active     bool       `gorm:"column:active;not null" json:"isActive"`
	Custom     bool       `gorm:"column:custom;not null" json:"custom"`
	Version    int64      `gorm:"column:version;not null" json:"-"`
}

func (r *KeyRecord) IsBound() bool {
	return r.BoundHWID != nil
}

type UsageLogEntry struct {
	ID        string    `gorm:"column:id;primaryKey;size:36" json:"id"`
	Key       string    `gorm:"column:license_key;index;size:64" json:"key"`
	HWID      string    `gorm:"column:hwid;index;size:16" json:"hwid"`
	UserID    string    `gorm:"column:user_id" json:"userId"`
	Username  string    `gorm:"column:username" json:"username"`
	PlaceID   int64     `gorm:"column:place_id" json:"placeId"`
	Timestamp time.Time `gorm:"column:timestamp;index" json:"timestamp"`
	IP        string    `gorm:"column:ip" json:"ip"`
	UserAgent string    `gorm:"column:user_agent" json:"userAgent"`
	Type      EntryType `gorm:"column:entry_type;size:16;index" json:"type"`
	Country   string    `gorm:"column:country;size:2" json:"country,omitempty"`
	Reason    string    `gorm:"column:reason" json:"reason,omitempty"`
}
