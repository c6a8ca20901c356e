package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type PaymentStatus string

const (
	PaymentStatusCreated  PaymentStatus = "created"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type Payment struct {
	ID                    string        `gorm:"type:uuid;primary_key" json:"id"`
	SubmissionID          string        `gorm:"type:uuid;uniqueIndex;not null" json:"submission_id"`
	AmountCents           int64         `gorm:"not null" json:"amount_cents"`
	Currency              string        `gorm:"type:varchar(3);default:'usd'" json:"currency"`
	StripeSessionID       string        `gorm:"type:varchar(255);index" json:"stripe_session_id"`
	StripePaymentIntentID string        `gorm:"type:varchar(255);index" json:"stripe_payment_intent_id,omitempty"`
	PayerEmail            string        `gorm:"type:varchar(255)" json:"payer_email,omitempty"`
	Status                PaymentStatus `gorm:"type:varchar(20);not null;default:'created'" json:"status"`
	PaidAt                *time.Time    `json:"paid_at,omitempty"`
	CreatedAt             time.Time     `json:"created_at"`
	UpdatedAt             time.Time     `json:"updated_at"`
}

func (p *Payment) BeforeCreate(tx *gorm.DB) error {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	return nil
}
