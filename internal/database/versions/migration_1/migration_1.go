package migration_1

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type FineTune struct {
	ModelName  sql.NullString
	SubmitTime sql.NullTime
}

type CachedResponse struct {
	Fingerprint  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Response     string    `gorm:"not null"`
	CreationTime time.Time
}

func Migration(db *gorm.DB) error {
	if err := db.Migrator().AddColumn(&FineTune{}, "ModelName"); err != nil {
		return fmt.Errorf("error adding ModelName column: %w", err)
	}

	if err := db.Migrator().AddColumn(&FineTune{}, "SubmitTime"); err != nil {
		return fmt.Errorf("error adding SubmitTime column: %w", err)
	}

	// rows submitted before this migration have no recorded submit time
	if err := db.Model(&FineTune{}).
		Where("submit_time IS NULL AND remote_job_id IS NOT NULL").
		Update("submit_time", gorm.Expr("creation_time")).Error; err != nil {
		return fmt.Errorf("error backfilling SubmitTime: %w", err)
	}

	if err := db.AutoMigrate(&CachedResponse{}); err != nil {
		return fmt.Errorf("error creating cached_responses table: %w", err)
	}

	return nil
}

func Rollback(db *gorm.DB) error {
	if err := db.Migrator().DropTable(&CachedResponse{}); err != nil {
		return fmt.Errorf("error dropping cached_responses table: %w", err)
	}

	if err := db.Migrator().DropColumn(&FineTune{}, "SubmitTime"); err != nil {
		return fmt.Errorf("error dropping SubmitTime column: %w", err)
	}

	if err := db.Migrator().DropColumn(&FineTune{}, "ModelName"); err != nil {
		return fmt.Errorf("error dropping ModelName column: %w", err)
	}

	return nil
}
