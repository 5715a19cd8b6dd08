package finetune

import (
	"context"
	"fmt"
	"iter"
	"log/slog"

	"finetune-backend/internal/metrics"
)

type Manager struct {
	uploads *UploadManager
	files   FileStore
	jobs    JobService
	names   *ModelNameCache
}

func NewManager(files FileStore, jobs JobService, names *ModelNameCache) *Manager {
	if names == nil {
		names = NewModelNameCache()
	}
	return &Manager{
		uploads: NewUploadManager(files),
		files:   files,
		jobs:    jobs,
		names:   names,
	}
}

func (m *Manager) Uploads() *UploadManager {
	return m.uploads
}

// CreateFineTune uploads the training (and optional validation) data, skipping
// datasets that are already present remotely, and submits the job. Nothing is
// rolled back on failure: files uploaded before a failed submission stay in
// the remote store and are reused by the next attempt.
func (m *Manager) CreateFineTune(ctx context.Context, pairs []TrainingPair, settings Settings) (Job, error) {
	if len(pairs) == 0 {
		return Job{}, ErrNoTrainingData
	}

	promptSuffix := settings.GetPromptSuffix()
	completionSuffix := settings.GetCompletionSuffix()

	lookup, err := LoadManagedFiles(ctx, m.files)
	if err != nil {
		return Job{}, err
	}

	trainingData, err := serializeTrainingData(pairs, promptSuffix, completionSuffix)
	if err != nil {
		return Job{}, fmt.Errorf("error serializing training data: %w", err)
	}

	trainingFileId, err := m.uploads.ensureUploaded(ctx, trainingData, PurposeFineTune, lookup)
	if err != nil {
		return Job{}, fmt.Errorf("error uploading training data: %w", err)
	}

	var validationFileId string
	if len(settings.ValidationData) > 0 {
		validationData, err := serializeTrainingData(settings.ValidationData, promptSuffix, completionSuffix)
		if err != nil {
			return Job{}, fmt.Errorf("error serializing validation data: %w", err)
		}

		validationFileId, err = m.uploads.ensureUploaded(ctx, validationData, PurposeFineTune, lookup)
		if err != nil {
			return Job{}, fmt.Errorf("error uploading validation data: %w", err)
		}
	}

	jobId, err := m.jobs.CreateJob(ctx, settings.toRequest(trainingFileId, validationFileId))
	if err != nil {
		return Job{}, fmt.Errorf("error creating fine-tune job: %w", err)
	}

	slog.Info("created fine-tune job", "job_id", jobId, "training_file", trainingFileId, "validation_file", validationFileId, "model", settings.GetModel())

	return Job{Id: jobId, PromptSuffix: promptSuffix, CompletionSuffix: completionSuffix}, nil
}

func (m *Manager) GetStatus(ctx context.Context, job Job) (Status, error) {
	record, err := m.jobs.GetJob(ctx, job.Id)
	if err != nil {
		return StatusNotReady, fmt.Errorf("error getting fine-tune job %s: %w", job.Id, err)
	}
	return ParseStatus(record.RawStatus), nil
}

// GetProgress is GetStatus plus whether the remote job has stopped. A job that
// was cancelled remotely reports NotReady but stopped.
func (m *Manager) GetProgress(ctx context.Context, job Job) (Status, bool, error) {
	record, err := m.jobs.GetJob(ctx, job.Id)
	if err != nil {
		return StatusNotReady, false, fmt.Errorf("error getting fine-tune job %s: %w", job.Id, err)
	}
	return ParseStatus(record.RawStatus), Stopped(record.RawStatus), nil
}

func (m *Manager) GetEvents(ctx context.Context, job Job) ([]Event, error) {
	remote, err := m.jobs.ListEvents(ctx, job.Id)
	if err != nil {
		return nil, fmt.Errorf("error listing events for fine-tune job %s: %w", job.Id, err)
	}

	events := make([]Event, 0, len(remote))
	for _, evt := range remote {
		if evt.Message == "" {
			continue
		}
		events = append(events, toEvent(evt))
	}
	return events, nil
}

// GetEventStream lazily yields the job's events as the remote service produces
// them. Events with an empty message are heartbeats and are dropped. Each call
// starts a fresh stream; breaking out of the range loop or cancelling ctx stops
// all further remote calls.
func (m *Manager) GetEventStream(ctx context.Context, job Job) iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for evt, err := range m.jobs.StreamEvents(ctx, job.Id) {
			if err != nil {
				yield(Event{}, fmt.Errorf("error streaming events for fine-tune job %s: %w", job.Id, err))
				return
			}
			if evt.Message == "" {
				continue
			}
			if !yield(toEvent(evt), nil) {
				return
			}
		}
	}
}

// TryResolveModelName returns the trained model name once the remote service
// has assigned one. A missing name is not an error and is not cached, so a
// later call can still find it.
func (m *Manager) TryResolveModelName(ctx context.Context, job Job) (string, bool, error) {
	if name, ok := m.names.Get(job.Id); ok {
		metrics.ObserveModelNameLookup("cached")
		return name, true, nil
	}

	record, err := m.jobs.GetJob(ctx, job.Id)
	if err != nil {
		return "", false, fmt.Errorf("error getting fine-tune job %s: %w", job.Id, err)
	}

	if record.FineTunedModel == "" {
		metrics.ObserveModelNameLookup("pending")
		return "", false, nil
	}

	name := m.names.Store(job.Id, record.FineTunedModel)
	metrics.ObserveModelNameLookup("resolved")
	slog.Info("resolved fine-tuned model name", "job_id", job.Id, "model", name)
	return name, true, nil
}

func toEvent(evt RemoteEvent) Event {
	return Event{CreatedAt: evt.CreatedAt, Level: evt.Level, Message: evt.Message}
}
