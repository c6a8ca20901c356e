package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type BlacklistedKeyword struct {
	ID        string    `gorm:"type:uuid;primary_key" json:"id"`
	Keyword   string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"keyword"`
	Category  string    `gorm:"type:varchar(50);default:'general'" json:"category"`
	IsActive  bool      `gorm:"default:true" json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
}

func (b *BlacklistedKeyword) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	return nil
}

type SystemSetting struct {
	ID        string    `gorm:"type:uuid;primary_key" json:"id"`
	Key       string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"key"`
	Value     string    `gorm:"type:text" json:"value"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (s *SystemSetting) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

// Setting keys used by the moderation pipeline.
const (
	SettingBlockLinks         = "block_links"
	SettingMaxCaptionLength   = "max_caption_length"
	SettingDuplicateThreshold = "duplicate_hash_threshold"
	SettingSnapshotVersion    = "moderation_snapshot_version"
)
