package main

import (
	"fmt"
	"strconv"

	"spkr/internal/settings"
	"spkr/pkg/config"
	"spkr/pkg/database"
	"spkr/pkg/logger"
	"spkr/pkg/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Seeds the moderation settings and a starter keyword blacklist. Existing
// rows are left untouched, so reruns are safe.
func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log := logger.New()
	db, err := database.NewPostgresDB(cfg)
	if err != nil {
		log.Error("Failed to connect to database: %v", err)
		panic(err)
	}

	if err := seedSettings(db); err != nil {
		log.Error("Failed to seed settings: %v", err)
		panic(err)
	}
	if err := seedBlacklist(db); err != nil {
		log.Error("Failed to seed blacklist: %v", err)
		panic(err)
	}

	log.Info("Database seeded successfully!")
}

func seedSettings(db *gorm.DB) error {
	rows := []models.SystemSetting{
		{Key: models.SettingMaxCaptionLength, Value: strconv.Itoa(settings.DefaultMaxCaptionLength)},
		{Key: models.SettingDuplicateThreshold, Value: strconv.Itoa(settings.DefaultDuplicateThreshold)},
		{Key: models.SettingBlockLinks, Value: strconv.FormatBool(settings.DefaultBlockLinks)},
		{Key: models.SettingSnapshotVersion, Value: "1"},
	}

	for i := range rows {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "key"}},
			DoNothing: true,
		}).Create(&rows[i]).Error
		if err != nil {
			return err
		}
	}
	return nil
}

func seedBlacklist(db *gorm.DB) error {
	keywords := []models.BlacklistedKeyword{
		{Keyword: "onlyfans", Category: "spam"},
		{Keyword: "telegram", Category: "spam"},
		{Keyword: "crypto giveaway", Category: "scam"},
		{Keyword: "dm for promo", Category: "spam"},
		{Keyword: "follow for follow", Category: "spam"},
	}

	for i := range keywords {
		err := db.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "keyword"}},
			DoNothing: true,
		}).Create(&keywords[i]).Error
		if err != nil {
			return err
		}
	}
	return nil
}
