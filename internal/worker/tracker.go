package worker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"finetune-backend/internal/database"
	"finetune-backend/internal/finetune"

	"gorm.io/gorm"
)

const DefaultTrackerInterval = 30 * time.Second

// Tracker polls the remote service for submitted fine-tunes and records the
// trained model name and the terminal status. The two are tracked separately:
// a name can be recorded before the job reports success, and a succeeded job
// stays tracked until its name is known. A job cancelled remotely is recorded
// as failed so that it stops being polled.
type Tracker struct {
	db       *gorm.DB
	manager  *finetune.Manager
	interval time.Duration
}

func NewTracker(db *gorm.DB, manager *finetune.Manager, interval time.Duration) *Tracker {
	if interval <= 0 {
		interval = DefaultTrackerInterval
	}
	return &Tracker{db: db, manager: manager, interval: interval}
}

func (t *Tracker) Run(ctx context.Context) {
	slog.Info("starting fine-tune tracker", "interval", t.interval)

	ticker := time.NewTicker(t.interval)
	defer ticker.Stop()

	for {
		if err := t.Poll(ctx); err != nil {
			slog.Error("error polling fine-tunes", "error", err)
		}

		select {
		case <-ctx.Done():
			slog.Info("stopping fine-tune tracker")
			return
		case <-ticker.C:
		}
	}
}

// Poll checks every tracked fine-tune once. Failures for one fine-tune are
// logged and do not stop the others.
func (t *Tracker) Poll(ctx context.Context) error {
	fineTunes, err := database.ListTrackedFineTunes(ctx, t.db)
	if err != nil {
		return err
	}

	for _, record := range fineTunes {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := t.update(ctx, record); err != nil {
			slog.Error("error updating fine-tune", "fine_tune_id", record.Id, "error", err)
		}
	}
	return nil
}

func (t *Tracker) update(ctx context.Context, record database.FineTune) error {
	job, ok := record.RemoteJob()
	if !ok {
		return fmt.Errorf("fine-tune %s has no remote job", record.Id)
	}

	if !record.ModelName.Valid {
		name, found, err := t.manager.TryResolveModelName(ctx, job)
		if err != nil {
			return err
		}
		if found {
			if err := database.SetModelName(ctx, t.db, record.Id, name); err != nil {
				return err
			}
		}
	}

	if record.Status != database.FineTuneSubmitted {
		return nil
	}

	status, stopped, err := t.manager.GetProgress(ctx, job)
	if err != nil {
		return err
	}

	switch status {
	case finetune.StatusSucceeded:
		slog.Info("fine-tune succeeded", "fine_tune_id", record.Id, "job_id", job.Id)
		return database.UpdateFineTuneStatus(ctx, t.db, record.Id, database.FineTuneSucceeded)
	case finetune.StatusFailed:
		slog.Info("fine-tune failed", "fine_tune_id", record.Id, "job_id", job.Id)
		database.SaveFineTuneError(ctx, t.db, record.Id, "remote fine-tune job failed")
	default:
		if stopped {
			slog.Info("fine-tune stopped remotely", "fine_tune_id", record.Id, "job_id", job.Id)
			database.SaveFineTuneError(ctx, t.db, record.Id, "remote fine-tune job cancelled")
		}
	}
	return nil
}
