package payment

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"spkr/pkg/models"
)

var (
	ErrNotFound      = errors.New("payment not found")
	ErrInvalidStatus = errors.New("payment status transition is not allowed")
)

type Repository interface {
	Create(ctx context.Context, payment *models.Payment) error
	GetBySubmissionID(ctx context.Context, submissionID string) (*models.Payment, error)
	GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error)
	GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Payment, error)
	// UpdateStatus moves the payment from one of the given statuses to the
	// target with compare-and-set semantics, so a replayed webhook that lost
	// the race cannot clobber a later status.
	UpdateStatus(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, updates map[string]interface{}) error
	// MarkEventProcessed records the provider event id and reports whether
	// this call was the first to see it.
	MarkEventProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error)
	// UnmarkEvent releases a claimed event id so a redelivery can be
	// processed after a mid-flight failure.
	UnmarkEvent(ctx context.Context, provider, eventID string) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) GetBySubmissionID(ctx context.Context, submissionID string) (*models.Payment, error) {
	return r.getBy(ctx, "submission_id = ?", submissionID)
}

func (r *repository) GetBySessionID(ctx context.Context, sessionID string) (*models.Payment, error) {
	return r.getBy(ctx, "stripe_session_id = ?", sessionID)
}

func (r *repository) GetByPaymentIntentID(ctx context.Context, paymentIntentID string) (*models.Payment, error) {
	return r.getBy(ctx, "stripe_payment_intent_id = ?", paymentIntentID)
}

func (r *repository) getBy(ctx context.Context, query string, arg interface{}) (*models.Payment, error) {
	var payment models.Payment
	err := r.db.WithContext(ctx).Where(query, arg).First(&payment).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdateStatus(ctx context.Context, id string, from []models.PaymentStatus, to models.PaymentStatus, updates map[string]interface{}) error {
	values := map[string]interface{}{"status": to}
	for key, value := range updates {
		values[key] = value
	}

	res := r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Payment{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrInvalidStatus
	}
	return nil
}

func (r *repository) MarkEventProcessed(ctx context.Context, provider, eventID, eventType string) (bool, error) {
	event := models.WebhookEvent{
		Provider:  provider,
		EventID:   eventID,
		EventType: eventType,
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(&event)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) UnmarkEvent(ctx context.Context, provider, eventID string) error {
	return r.db.WithContext(ctx).
		Where("provider = ? AND event_id = ?", provider, eventID).
		Delete(&models.WebhookEvent{}).Error
}
