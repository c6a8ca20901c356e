package moderation

import (
	"context"

	"spkr/pkg/models"

	"gorm.io/gorm"
)

// HashIndex is the duplicate-detection index over published images. Moderation
// only reads it; the publish orchestrator appends to it once a submission is
// actually published.
type HashIndex interface {
	PublishedHashes(ctx context.Context) ([]uint64, error)
	Add(ctx context.Context, submissionID string, hashes []uint64) error
}

type hashIndex struct {
	db *gorm.DB
}

func NewHashIndex(db *gorm.DB) HashIndex {
	return &hashIndex{db: db}
}

func (i *hashIndex) PublishedHashes(ctx context.Context) ([]uint64, error) {
	var rows []models.MediaHash
	if err := i.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	hashes := make([]uint64, 0, len(rows))
	for _, row := range rows {
		hashes = append(hashes, row.Hash())
	}
	return hashes, nil
}

func (i *hashIndex) Add(ctx context.Context, submissionID string, hashes []uint64) error {
	if len(hashes) == 0 {
		return nil
	}

	rows := make([]models.MediaHash, 0, len(hashes))
	for _, h := range hashes {
		rows = append(rows, models.MediaHash{
			SubmissionID: submissionID,
			PHash:        int64(h),
		})
	}
	return i.db.WithContext(ctx).Create(&rows).Error
}
