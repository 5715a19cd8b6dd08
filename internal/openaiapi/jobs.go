package openaiapi

import (
	"context"
	"fmt"
	"iter"
	"slices"
	"time"

	"finetune-backend/internal/finetune"

	"github.com/openai/openai-go"
)

const eventPageSize = 100

func toJobParams(req finetune.JobRequest) openai.FineTuningJobNewParams {
	params := openai.FineTuningJobNewParams{
		Model:        openai.FineTuningJobNewParamsModel(req.Model),
		TrainingFile: req.TrainingFileId,
	}

	if req.ValidationFileId != "" {
		params.ValidationFile = openai.String(req.ValidationFileId)
	}
	if req.ModelSuffix != "" {
		params.Suffix = openai.String(req.ModelSuffix)
	}
	if req.Seed != nil {
		params.Seed = openai.Int(*req.Seed)
	}

	if req.Epochs != nil {
		params.Hyperparameters.NEpochs = openai.FineTuningJobNewParamsHyperparametersNEpochsUnion{OfInt: openai.Int(*req.Epochs)}
	}
	if req.BatchSize != nil {
		params.Hyperparameters.BatchSize = openai.FineTuningJobNewParamsHyperparametersBatchSizeUnion{OfInt: openai.Int(*req.BatchSize)}
	}
	if req.LearningRateMultiplier != nil {
		params.Hyperparameters.LearningRateMultiplier = openai.FineTuningJobNewParamsHyperparametersLearningRateMultiplierUnion{
			OfFloat: openai.Float(*req.LearningRateMultiplier),
		}
	}

	return params
}

func (c *Client) CreateJob(ctx context.Context, req finetune.JobRequest) (string, error) {
	job, err := c.client.FineTuning.Jobs.New(ctx, toJobParams(req))
	if err != nil {
		return "", fmt.Errorf("error creating fine-tuning job: %w", err)
	}
	return job.ID, nil
}

func (c *Client) GetJob(ctx context.Context, jobId string) (finetune.JobRecord, error) {
	job, err := c.client.FineTuning.Jobs.Get(ctx, jobId)
	if err != nil {
		return finetune.JobRecord{}, fmt.Errorf("error getting fine-tuning job %s: %w", jobId, err)
	}
	return finetune.JobRecord{
		Id:             job.ID,
		RawStatus:      string(job.Status),
		FineTunedModel: job.FineTunedModel,
	}, nil
}

func (c *Client) ListEvents(ctx context.Context, jobId string) ([]finetune.RemoteEvent, error) {
	return c.eventsSince(ctx, jobId, "")
}

// eventsSince returns the job's events newer than lastSeen in emission order.
// The remote service lists events newest first, so pages are read until
// lastSeen shows up or the list is exhausted.
func (c *Client) eventsSince(ctx context.Context, jobId, lastSeen string) ([]finetune.RemoteEvent, error) {
	var events []finetune.RemoteEvent

	params := openai.FineTuningJobListEventsParams{Limit: openai.Int(eventPageSize)}
	for {
		page, err := c.client.FineTuning.Jobs.ListEvents(ctx, jobId, params)
		if err != nil {
			return nil, fmt.Errorf("error listing events of fine-tuning job %s: %w", jobId, err)
		}

		reached := false
		for _, evt := range page.Data {
			if lastSeen != "" && evt.ID == lastSeen {
				reached = true
				break
			}
			events = append(events, finetune.RemoteEvent{
				Id:        evt.ID,
				CreatedAt: time.Unix(evt.CreatedAt, 0).UTC(),
				Level:     string(evt.Level),
				Message:   evt.Message,
			})
		}

		if reached || !page.HasMore || len(page.Data) == 0 {
			break
		}
		params.After = openai.String(page.Data[len(page.Data)-1].ID)
	}

	slices.Reverse(events)
	return events, nil
}

// StreamEvents polls the job's events. The job status is read before each poll
// so that the poll following a terminal status drains the remaining events and
// ends the stream.
func (c *Client) StreamEvents(ctx context.Context, jobId string) iter.Seq2[finetune.RemoteEvent, error] {
	return func(yield func(finetune.RemoteEvent, error) bool) {
		lastSeen := ""
		for {
			job, err := c.GetJob(ctx, jobId)
			if err != nil {
				yield(finetune.RemoteEvent{}, err)
				return
			}

			events, err := c.eventsSince(ctx, jobId, lastSeen)
			if err != nil {
				yield(finetune.RemoteEvent{}, err)
				return
			}

			for _, evt := range events {
				lastSeen = evt.Id
				if !yield(evt, nil) {
					return
				}
			}

			if finetune.Stopped(job.RawStatus) {
				return
			}

			timer := time.NewTimer(c.pollInterval)
			select {
			case <-ctx.Done():
				timer.Stop()
				yield(finetune.RemoteEvent{}, ctx.Err())
				return
			case <-timer.C:
			}
		}
	}
}
