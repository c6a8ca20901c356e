package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MediaHash is the append-only duplicate-detection index. Rows are written
// only when a submission is published, never during moderation.
type MediaHash struct {
	ID           string    `gorm:"type:uuid;primary_key" json:"id"`
	SubmissionID string    `gorm:"type:uuid;not null;index" json:"submission_id"`
	// Perceptual hash bit pattern stored as signed bigint, see SubmissionMedia.
	PHash     int64     `gorm:"type:bigint;not null;index" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *MediaHash) BeforeCreate(tx *gorm.DB) error {
	if h.ID == "" {
		h.ID = uuid.New().String()
	}
	return nil
}

func (h *MediaHash) Hash() uint64 {
	return uint64(h.PHash)
}
