package db

import (
	"gamecatalog/internal/models"
)

func AutoMigrate(db *DB) error {
	if db == nil || db.Gorm == nil || db.SQL == nil {
		return nil
	}

	return db.Gorm.AutoMigrate(
		&models.CatalogEntry{},
		&models.SyncState{},
		&models.SystemSetting{},
	)
}
