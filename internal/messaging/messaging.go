package messaging

import (
	"context"
	"time"

	"github.com/google/uuid"
)

const (
	FinetuneQueue   = "finetune_queue"
	RetryDelay      = 5 * time.Second
	MaxConnectRetry = 5
)

type Task interface {
	Type() string

	Payload() []byte

	Ack() error

	Nack() error

	Reject() error
}

// FinetuneTaskPayload only carries the id; the training data and settings are
// read from the fine_tunes table by the worker.
type FinetuneTaskPayload struct {
	FineTuneId uuid.UUID
}

type Publisher interface {
	PublishFinetuneTask(ctx context.Context, payload FinetuneTaskPayload) error

	Close()
}

type Reciever interface {
	Tasks() <-chan Task

	Close()
}
