package settings

import (
	"context"
	"strconv"
	"strings"

	"spkr/pkg/models"

	"gorm.io/gorm"
)

// Defaults applied when a setting row is missing.
const (
	DefaultMaxCaptionLength   = 2200
	DefaultDuplicateThreshold = 10
	DefaultBlockLinks         = true
)

// Snapshot is an immutable view of moderation settings plus the active
// keyword blacklist. Every moderation run gets exactly one snapshot, so a
// concurrent settings change can never affect an in-flight evaluation, and a
// recorded result can be traced back to the settings version that produced it.
type Snapshot struct {
	Version            int64
	BlockLinks         bool
	MaxCaptionLength   int
	DuplicateThreshold int
	Keywords           []string
}

type Provider interface {
	Snapshot(ctx context.Context) (*Snapshot, error)
}

type provider struct {
	db *gorm.DB
}

func NewProvider(db *gorm.DB) Provider {
	return &provider{db: db}
}

func (p *provider) Snapshot(ctx context.Context) (*Snapshot, error) {
	var rows []models.SystemSetting
	if err := p.db.WithContext(ctx).Find(&rows).Error; err != nil {
		return nil, err
	}

	values := make(map[string]string, len(rows))
	for _, row := range rows {
		values[row.Key] = row.Value
	}

	snapshot := &Snapshot{
		Version:            parseInt64(values[models.SettingSnapshotVersion], 0),
		BlockLinks:         parseBool(values[models.SettingBlockLinks], DefaultBlockLinks),
		MaxCaptionLength:   int(parseInt64(values[models.SettingMaxCaptionLength], DefaultMaxCaptionLength)),
		DuplicateThreshold: int(parseInt64(values[models.SettingDuplicateThreshold], DefaultDuplicateThreshold)),
	}

	var keywords []models.BlacklistedKeyword
	if err := p.db.WithContext(ctx).Where("is_active = ?", true).Order("keyword ASC").Find(&keywords).Error; err != nil {
		return nil, err
	}
	for _, kw := range keywords {
		snapshot.Keywords = append(snapshot.Keywords, strings.ToLower(kw.Keyword))
	}

	return snapshot, nil
}

func parseInt64(value string, fallback int64) int64 {
	if value == "" {
		return fallback
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func parseBool(value string, fallback bool) bool {
	if value == "" {
		return fallback
	}
	b, err := strconv.ParseBool(value)
	if err != nil {
		return fallback
	}
	return b
}
