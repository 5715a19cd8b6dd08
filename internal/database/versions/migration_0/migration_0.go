package migration_0

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Schema of fine_tunes before trained model names were tracked.
type FineTune struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	BaseModel string    `gorm:"not null"`
	Status    string    `gorm:"size:20;not null;index"`

	RemoteJobId      sql.NullString `gorm:"index"`
	PromptSuffix     string
	CompletionSuffix string

	TrainingData  datatypes.JSON `gorm:"type:jsonb;not null"`
	Settings      datatypes.JSON `gorm:"type:jsonb"`
	TrainingPairs int            `gorm:"default:0"`

	Error          sql.NullString
	CreationTime   time.Time
	CompletionTime sql.NullTime
}

func Migration(db *gorm.DB) error {
	if err := db.AutoMigrate(&FineTune{}); err != nil {
		return fmt.Errorf("initial migration failed: %w", err)
	}
	return nil
}
