package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type CheckOutcome string

const (
	OutcomePass CheckOutcome = "pass"
	OutcomeFail CheckOutcome = "fail"
)

// ModerationResult is one immutable moderation run over a submission.
// Re-running moderation creates a new row, never mutates an old one.
type ModerationResult struct {
	ID              string            `gorm:"type:uuid;primary_key" json:"id"`
	SubmissionID    string            `gorm:"type:uuid;not null;index" json:"submission_id"`
	Outcome         CheckOutcome      `gorm:"type:varchar(10);not null" json:"outcome"`
	SnapshotVersion int64             `gorm:"not null" json:"snapshot_version"`
	Checks          []ModerationCheck `gorm:"foreignKey:ResultID" json:"checks"`
	CreatedAt       time.Time         `json:"created_at"`
}

type ModerationCheck struct {
	ID       string       `gorm:"type:uuid;primary_key" json:"id"`
	ResultID string       `gorm:"type:uuid;not null;index" json:"result_id"`
	Name     string       `gorm:"type:varchar(50);not null" json:"name"`
	Outcome  CheckOutcome `gorm:"type:varchar(10);not null" json:"outcome"`
	Detail   string       `gorm:"type:text" json:"detail"`
	Position int          `gorm:"default:0" json:"position"`
}

func (r *ModerationResult) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}

func (c *ModerationCheck) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

// Failed reports whether any individual check failed.
func (r *ModerationResult) Failed() bool {
	for _, c := range r.Checks {
		if c.Outcome == OutcomeFail {
			return true
		}
	}
	return false
}
