package submission

import (
	"context"
	"errors"

	"spkr/pkg/models"

	"gorm.io/gorm"
)

type Repository interface {
	Create(ctx context.Context, sub *models.Submission, result *models.ModerationResult) error
	GetByID(ctx context.Context, id string) (*models.Submission, error)
	ListByStatus(ctx context.Context, status models.SubmissionStatus, limit, offset int) ([]*models.Submission, error)
	// TransitionStatus applies from → to with compare-and-set semantics: the
	// row is updated only if its stored status is one of the allowed source
	// states, so exactly one of two concurrent identical transitions wins.
	TransitionStatus(ctx context.Context, id string, from []models.SubmissionStatus, to models.SubmissionStatus, updates map[string]interface{}) error
	SetPriority(ctx context.Context, id string, priority bool) error
	SaveModerationResult(ctx context.Context, result *models.ModerationResult) error
	ModerationHistory(ctx context.Context, submissionID string) ([]*models.ModerationResult, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, sub *models.Submission, result *models.ModerationResult) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(sub).Error; err != nil {
			return err
		}
		result.SubmissionID = sub.ID
		return tx.Create(result).Error
	})
}

func (r *repository) GetByID(ctx context.Context, id string) (*models.Submission, error) {
	var sub models.Submission
	err := r.db.WithContext(ctx).
		Preload("Media", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&sub).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *repository) ListByStatus(ctx context.Context, status models.SubmissionStatus, limit, offset int) ([]*models.Submission, error) {
	var subs []*models.Submission
	query := r.db.WithContext(ctx).
		Preload("Media", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("status = ?", status).
		Order("priority DESC, created_at ASC")
	if limit > 0 {
		query = query.Limit(limit).Offset(offset)
	}
	if err := query.Find(&subs).Error; err != nil {
		return nil, err
	}
	return subs, nil
}

func (r *repository) TransitionStatus(ctx context.Context, id string, from []models.SubmissionStatus, to models.SubmissionStatus, updates map[string]interface{}) error {
	for _, f := range from {
		if !CanTransition(f, to) {
			return ErrInvalidTransition
		}
	}

	values := map[string]interface{}{"status": to}
	for k, v := range updates {
		values[k] = v
	}

	res := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ? AND status IN ?", id, from).
		Updates(values)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		// Either the submission does not exist or its current status is not
		// an allowed source: a lost race reports InvalidTransition too.
		var count int64
		if err := r.db.WithContext(ctx).Model(&models.Submission{}).Where("id = ?", id).Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return ErrNotFound
		}
		return ErrInvalidTransition
	}
	return nil
}

func (r *repository) SetPriority(ctx context.Context, id string, priority bool) error {
	res := r.db.WithContext(ctx).
		Model(&models.Submission{}).
		Where("id = ?", id).
		Update("priority", priority)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) SaveModerationResult(ctx context.Context, result *models.ModerationResult) error {
	return r.db.WithContext(ctx).Create(result).Error
}

func (r *repository) ModerationHistory(ctx context.Context, submissionID string) ([]*models.ModerationResult, error) {
	var results []*models.ModerationResult
	err := r.db.WithContext(ctx).
		Preload("Checks", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("submission_id = ?", submissionID).
		Order("created_at DESC").
		Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}
