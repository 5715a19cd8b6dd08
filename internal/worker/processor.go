package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"finetune-backend/internal/database"
	"finetune-backend/internal/finetune"
	"finetune-backend/internal/messaging"
	"finetune-backend/internal/metrics"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrorClassifier reports whether a submission error is final. Final errors
// mark the fine-tune as failed; anything else leaves it queued and the task is
// handed back to the queue.
type ErrorClassifier func(error) bool

type TaskProcessor struct {
	db        *gorm.DB
	manager   *finetune.Manager
	reciever  messaging.Reciever
	permanent ErrorClassifier
}

func NewTaskProcessor(db *gorm.DB, manager *finetune.Manager, reciever messaging.Reciever, permanent ErrorClassifier) *TaskProcessor {
	if permanent == nil {
		permanent = func(error) bool { return false }
	}
	return &TaskProcessor{
		db:        db,
		manager:   manager,
		reciever:  reciever,
		permanent: permanent,
	}
}

func (proc *TaskProcessor) Start() {
	slog.Info("starting task processor")

	for task := range proc.reciever.Tasks() {
		proc.ProcessTask(task)
	}
}

func (proc *TaskProcessor) Stop() {
	slog.Info("stopping task processor")

	proc.reciever.Close()
}

func (proc *TaskProcessor) ProcessTask(task messaging.Task) {
	ctx := context.Background()
	start := time.Now()

	if task.Type() != messaging.FinetuneQueue {
		slog.Error("received unknown task type", "queue", task.Type())
		metrics.ObserveTask("rejected", time.Since(start))
		if err := task.Reject(); err != nil {
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	var payload messaging.FinetuneTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil || payload.FineTuneId == uuid.Nil {
		slog.Error("error unmarshalling finetune task", "payload", string(task.Payload()), "error", err)
		metrics.ObserveTask("rejected", time.Since(start))
		if err := task.Reject(); err != nil { // discard malformed message
			slog.Error("error rejecting message from queue", "error", err)
		}
		return
	}

	status, err := proc.processFinetuneTask(ctx, payload)
	metrics.ObserveTask(status, time.Since(start))

	if err != nil {
		slog.Error("error processing task", "queue", task.Type(), "fine_tune_id", payload.FineTuneId, "error", err)
		if err := task.Nack(); err != nil {
			slog.Error("error reporting processing failure on message from queue", "error", err)
		}
	} else {
		slog.Info("successfully processed task", "queue", task.Type(), "fine_tune_id", payload.FineTuneId, "status", status)
		if err := task.Ack(); err != nil {
			slog.Error("error acknowledging message from queue", "error", err)
		}
	}
}

// processFinetuneTask submits a queued fine-tune. The returned status labels
// the outcome for metrics; a non-nil error means the task should be retried.
func (proc *TaskProcessor) processFinetuneTask(ctx context.Context, payload messaging.FinetuneTaskPayload) (string, error) {
	fineTuneId := payload.FineTuneId

	record, err := database.GetFineTune(ctx, proc.db, fineTuneId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			slog.Warn("fine-tune not found, dropping task", "fine_tune_id", fineTuneId)
			return "skipped", nil
		}
		return "retry", fmt.Errorf("error getting fine-tune: %w", err)
	}

	// redelivered task for a fine-tune that was already handled
	if record.Status != database.FineTuneQueued {
		slog.Info("fine-tune already processed, skipping task", "fine_tune_id", fineTuneId, "status", record.Status)
		return "skipped", nil
	}

	var pairs []finetune.TrainingPair
	if err := json.Unmarshal(record.TrainingData, &pairs); err != nil {
		database.SaveFineTuneError(ctx, proc.db, fineTuneId, "stored training data is not valid")
		return database.FineTuneFailed, nil
	}

	var settings finetune.Settings
	if len(record.Settings) > 0 {
		if err := json.Unmarshal(record.Settings, &settings); err != nil {
			database.SaveFineTuneError(ctx, proc.db, fineTuneId, "stored settings are not valid")
			return database.FineTuneFailed, nil
		}
	}

	slog.Info("submitting fine-tune", "fine_tune_id", fineTuneId, "pairs", len(pairs), "model", settings.GetModel())

	job, err := proc.manager.CreateFineTune(ctx, pairs, settings)
	if err != nil {
		if errors.Is(err, finetune.ErrNoTrainingData) || proc.permanent(err) {
			database.SaveFineTuneError(ctx, proc.db, fineTuneId, err.Error())
			return database.FineTuneFailed, nil
		}
		return "retry", fmt.Errorf("error submitting fine-tune: %w", err)
	}

	if err := database.SetRemoteJob(ctx, proc.db, fineTuneId, job.Id, job.PromptSuffix, job.CompletionSuffix); err != nil {
		// The remote job exists but is not recorded. A retry would submit a
		// second job, so the error is kept on the record instead.
		slog.Error("error recording submitted fine-tune", "fine_tune_id", fineTuneId, "job_id", job.Id, "error", err)
		database.SaveFineTuneError(ctx, proc.db, fineTuneId, fmt.Sprintf("submitted as %s but the job could not be recorded", job.Id))
		return database.FineTuneFailed, nil
	}

	return database.FineTuneSubmitted, nil
}
