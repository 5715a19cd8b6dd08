package database

import (
	"database/sql"
	"time"

	"finetune-backend/internal/finetune"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const (
	FineTuneQueued    string = "QUEUED"
	FineTuneSubmitted string = "SUBMITTED"
	FineTuneSucceeded string = "SUCCEEDED"
	FineTuneFailed    string = "FAILED"
)

type FineTune struct {
	Id        uuid.UUID `gorm:"type:uuid;primaryKey"`
	Name      string    `gorm:"not null"`
	BaseModel string    `gorm:"not null"`
	Status    string    `gorm:"size:20;not null;index"`

	// Set once the remote service accepts the job.
	RemoteJobId      sql.NullString `gorm:"index"`
	PromptSuffix     string
	CompletionSuffix string
	ModelName        sql.NullString

	TrainingData  datatypes.JSON `gorm:"type:jsonb;not null"` // [{"prompt":"…","completion":"…"},…]
	Settings      datatypes.JSON `gorm:"type:jsonb"`
	TrainingPairs int            `gorm:"default:0"`

	Error          sql.NullString
	CreationTime   time.Time
	SubmitTime     sql.NullTime
	CompletionTime sql.NullTime
}

// RemoteJob returns the handle used to query the remote service. It is false
// until the fine-tune has been submitted.
func (f FineTune) RemoteJob() (finetune.Job, bool) {
	if !f.RemoteJobId.Valid {
		return finetune.Job{}, false
	}
	return finetune.Job{
		Id:               f.RemoteJobId.String,
		PromptSuffix:     f.PromptSuffix,
		CompletionSuffix: f.CompletionSuffix,
	}, true
}

type CachedResponse struct {
	Fingerprint  uuid.UUID `gorm:"type:uuid;primaryKey"`
	Response     string    `gorm:"not null"`
	CreationTime time.Time
}
