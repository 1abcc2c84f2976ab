package database

import (
	"fmt"

	"raffle-ledger/internal/models"

	"gorm.io/gorm"
)

// AutoMigrate runs database schema migrations for all models. Both ledger
// tables are created so the mode can be switched without a manual migration.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.Entry{},
		&models.Participant{},
		&models.AuditLog{},
		&models.Backup{},
	); err != nil {
		return fmt.Errorf("auto migrate: %w", err)
	}
	return nil
}
