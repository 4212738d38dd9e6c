package database

import (
	"fmt"

	"zapbot-backend/internal/config"
	"zapbot-backend/internal/logger"
	"zapbot-backend/internal/models"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var log = logger.Named("database")

// Init opens the database (sqlite file by default, PostgreSQL when DB_HOST
// is configured) and runs migrations.
func Init(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if cfg.DBHost != "" {
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
			cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
		dialector = postgres.Open(dsn)
	} else {
		dialector = sqlite.Open(cfg.DBPath)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	log.Infow("database ready", "driver", dialector.Name())
	return db, nil
}

// Migrate runs auto-migration for all models. Exposed so tests can prepare
// an in-memory database the same way.
func Migrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&models.Client{},
		&models.Message{},
		&models.Campaign{},
		&models.CampaignStep{},
		&models.RemarketingFlow{},
		&models.FlowStep{},
		&models.BotConfig{},
	)
	if err != nil {
		return fmt.Errorf("failed to run auto-migration: %w", err)
	}
	return nil
}
