package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

func isTerminal(status string) bool {
	return status == FineTuneSucceeded || status == FineTuneFailed
}

func UpdateFineTuneStatus(ctx context.Context, txn *gorm.DB, fineTuneId uuid.UUID, status string) error {
	updates := map[string]any{"status": status}
	if isTerminal(status) {
		updates["completion_time"] = time.Now().UTC()
	}

	if err := txn.WithContext(ctx).Model(&FineTune{Id: fineTuneId}).Updates(updates).Error; err != nil {
		slog.Error("error updating fine-tune status", "fine_tune_id", fineTuneId, "status", status, "error", err)
		return err
	}
	return nil
}

// SetRemoteJob records the handle returned by the remote service and marks the
// fine-tune as submitted.
func SetRemoteJob(ctx context.Context, txn *gorm.DB, fineTuneId uuid.UUID, jobId, promptSuffix, completionSuffix string) error {
	updates := map[string]any{
		"status":            FineTuneSubmitted,
		"remote_job_id":     jobId,
		"prompt_suffix":     promptSuffix,
		"completion_suffix": completionSuffix,
		"submit_time":       time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&FineTune{Id: fineTuneId}).Updates(updates).Error; err != nil {
		return fmt.Errorf("error saving remote job for fine-tune %s: %w", fineTuneId, err)
	}
	return nil
}

func SetModelName(ctx context.Context, txn *gorm.DB, fineTuneId uuid.UUID, modelName string) error {
	if err := txn.WithContext(ctx).
		Model(&FineTune{Id: fineTuneId}).
		Update("model_name", sql.NullString{String: modelName, Valid: true}).Error; err != nil {
		return fmt.Errorf("error saving model name for fine-tune %s: %w", fineTuneId, err)
	}
	return nil
}

func SaveFineTuneError(ctx context.Context, txn *gorm.DB, fineTuneId uuid.UUID, errorMessage string) {
	updates := map[string]any{
		"status":          FineTuneFailed,
		"error":           errorMessage,
		"completion_time": time.Now().UTC(),
	}

	if err := txn.WithContext(ctx).Model(&FineTune{Id: fineTuneId}).Updates(updates).Error; err != nil {
		slog.Error("error saving fine-tune error", "fine_tune_id", fineTuneId, "error", err)
	}
}

func GetFineTune(ctx context.Context, txn *gorm.DB, fineTuneId uuid.UUID) (FineTune, error) {
	var fineTune FineTune
	if err := txn.WithContext(ctx).First(&fineTune, "id = ?", fineTuneId).Error; err != nil {
		return FineTune{}, err
	}
	return fineTune, nil
}

func listByStatus(ctx context.Context, txn *gorm.DB, status string) ([]FineTune, error) {
	var fineTunes []FineTune
	if err := txn.WithContext(ctx).
		Where("status = ?", status).
		Order("creation_time ASC").
		Find(&fineTunes).Error; err != nil {
		return nil, fmt.Errorf("error listing %s fine-tunes: %w", status, err)
	}
	return fineTunes, nil
}

// ListTrackedFineTunes returns the fine-tunes that still need polling: those
// the remote service is working on, and succeeded ones whose model name has
// not been recorded yet.
func ListTrackedFineTunes(ctx context.Context, txn *gorm.DB) ([]FineTune, error) {
	var fineTunes []FineTune
	if err := txn.WithContext(ctx).
		Where("status = ? OR (status = ? AND model_name IS NULL)", FineTuneSubmitted, FineTuneSucceeded).
		Order("creation_time ASC").
		Find(&fineTunes).Error; err != nil {
		return nil, fmt.Errorf("error listing tracked fine-tunes: %w", err)
	}
	return fineTunes, nil
}

func ListQueuedFineTunes(ctx context.Context, txn *gorm.DB) ([]FineTune, error) {
	return listByStatus(ctx, txn, FineTuneQueued)
}
