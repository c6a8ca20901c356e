package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SubmissionStatus string

const (
	StatusPendingReview SubmissionStatus = "pending_review"
	StatusFlagged       SubmissionStatus = "flagged"
	StatusApproved      SubmissionStatus = "approved"
	StatusRejected      SubmissionStatus = "rejected"
	StatusPublishing    SubmissionStatus = "publishing"
	StatusPublished     SubmissionStatus = "published"
	StatusPublishFailed SubmissionStatus = "publish_failed"
)

type PostKind string

const (
	PostKindFree     PostKind = "free"
	PostKindPromoted PostKind = "promoted"
)

type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

// Publish failure reason codes kept on the submission for admin retry.
const (
	ReasonTransient     = "transient"
	ReasonTimeout       = "timeout"
	ReasonMediaRejected = "media_rejected"
)

type Submission struct {
	ID              string            `gorm:"type:uuid;primary_key" json:"id"`
	DisplayName     string            `gorm:"type:varchar(100)" json:"display_name,omitempty"`
	SubmitterIP     string            `gorm:"type:varchar(45)" json:"-"`
	Caption         string            `gorm:"type:text;not null" json:"caption"`
	Kind            PostKind          `gorm:"type:varchar(20);not null;default:'free'" json:"kind"`
	MediaType       MediaType         `gorm:"type:varchar(10);not null" json:"media_type"`
	Status          SubmissionStatus  `gorm:"type:varchar(20);not null;default:'pending_review';index" json:"status"`
	Priority        bool              `gorm:"default:false;index" json:"priority"`
	ExternalPostID  string            `gorm:"type:varchar(100)" json:"external_post_id,omitempty"`
	PublishError    string            `gorm:"type:text" json:"publish_error,omitempty"`
	PublishReason   string            `gorm:"type:varchar(30)" json:"publish_reason,omitempty"`
	PublishFailedAt *time.Time        `json:"publish_failed_at,omitempty"`
	PublishedAt     *time.Time        `json:"published_at,omitempty"`
	Media           []SubmissionMedia `gorm:"foreignKey:SubmissionID" json:"media"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

type SubmissionMedia struct {
	ID           string    `gorm:"type:uuid;primary_key" json:"id"`
	SubmissionID string    `gorm:"type:uuid;not null;index" json:"submission_id"`
	ObjectKey    string    `gorm:"not null" json:"object_key"`
	PublicURL    string    `gorm:"not null" json:"public_url"`
	Position     int       `gorm:"default:0;index" json:"position"`
	// 64-bit perceptual hash of the image stored with its bit pattern
	// reinterpreted as int64 (Postgres bigint is signed). Zero for video.
	PHash     int64     `gorm:"type:bigint" json:"-"`
	CreatedAt time.Time `json:"created_at"`
}

func (m *SubmissionMedia) Hash() uint64 {
	return uint64(m.PHash)
}

func (m *SubmissionMedia) SetHash(h uint64) {
	m.PHash = int64(h)
}

func (s *Submission) BeforeCreate(tx *gorm.DB) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	return nil
}

func (m *SubmissionMedia) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.New().String()
	}
	return nil
}
