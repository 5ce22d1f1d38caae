package database

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tanaygodse/markdowntogether/internal/document"
)

const migrationBackfillRoomCodes = "2026-08-12_backfill_room_codes"

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationBackfillRoomCodes, apply: backfillRoomCodes},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// backfillRoomCodes assigns codes to documents persisted before room codes
// were part of the schema, so every stored document stays joinable by code.
func backfillRoomCodes(db *gorm.DB) error {
	codes := document.NewRoomCodeProvider()

	var orphans []document.Document
	if err := db.Where("room_code = ''").Find(&orphans).Error; err != nil {
		return err
	}

	for _, orphan := range orphans {
		code, err := codes.NewCode()
		if err != nil {
			return err
		}
		err = db.Model(&document.Document{}).
			Where("document_id = ?", orphan.DocumentID).
			Update("room_code", code).Error
		if err != nil {
			return err
		}
	}
	return nil
}
