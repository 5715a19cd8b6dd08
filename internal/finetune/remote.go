package finetune

import (
	"context"
	"iter"
	"time"
)

const PurposeFineTune = "fine-tune"

type RemoteFile struct {
	Id       string
	Filename string
}

type FileStore interface {
	ListFiles(ctx context.Context) ([]RemoteFile, error)

	UploadFile(ctx context.Context, data []byte, purpose, filename string) (string, error)
}

// JobRequest is the submission sent to the remote service. An empty
// ValidationFileId means no validation file is sent at all.
type JobRequest struct {
	Model            string
	TrainingFileId   string
	ValidationFileId string

	Epochs                 *int64
	BatchSize              *int64
	LearningRateMultiplier *float64
	ModelSuffix            string
	Seed                   *int64
}

type JobRecord struct {
	Id             string
	RawStatus      string
	FineTunedModel string
}

type RemoteEvent struct {
	Id        string
	CreatedAt time.Time
	Level     string
	Message   string
}

type JobService interface {
	CreateJob(ctx context.Context, req JobRequest) (string, error)

	GetJob(ctx context.Context, jobId string) (JobRecord, error)

	// ListEvents returns every event of the job ordered by emission time.
	ListEvents(ctx context.Context, jobId string) ([]RemoteEvent, error)

	// StreamEvents yields events in emission order until the remote stream
	// closes, the consumer stops, or ctx is done.
	StreamEvents(ctx context.Context, jobId string) iter.Seq2[RemoteEvent, error]
}
