package main

import (
	"gorm.io/gorm"

	"github.com/fieldline/engine/internal/models"
)

// registerModels returns all models that need migration
func registerModels() []interface{} {
	return []interface{}{
		// Tenancy
		&models.Workspace{},
		&models.User{},

		// CRM core
		&models.Contact{},
		&models.Deal{},
		&models.Activity{},
		&models.Task{},

		// Automations
		&models.Automation{},

		// Learning loop
		&models.DeviationEvent{},
		&models.BusinessRule{},

		// Delivery
		&models.Notification{},
	}
}

// runMigrations executes all database migrations
func runMigrations(db *gorm.DB) error {
	if err := db.AutoMigrate(registerModels()...); err != nil {
		return err
	}
	return runCustomMigrations(db)
}

// runCustomMigrations handles schema changes AutoMigrate can't handle
func runCustomMigrations(db *gorm.DB) error {
	migrations := []func(*gorm.DB) error{
		enableUUIDExtension,
		addDealIndexes,
	}
	for _, migration := range migrations {
		if err := migration(db); err != nil {
			return err
		}
	}
	return nil
}

// enableUUIDExtension ensures UUID generation is available
func enableUUIDExtension(db *gorm.DB) error {
	return db.Exec(`CREATE EXTENSION IF NOT EXISTS "pgcrypto"`).Error
}

// addDealIndexes adds the composite indexes the board and scanner queries
// lean on.
func addDealIndexes(db *gorm.DB) error {
	// Board listing: workspace + stage.
	if err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_deals_workspace_stage
		ON deals(workspace_id, stage)
	`).Error; err != nil {
		return err
	}

	// Stale scan: scheduled deals past their appointment time.
	return db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_deals_scheduled_pending
		ON deals(scheduled_at)
		WHERE stage = 'SCHEDULED' AND actual_outcome IS NULL
	`).Error
}
