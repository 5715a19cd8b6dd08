package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"slices"
	"time"

	"finetune-backend/internal/database"
	"finetune-backend/internal/finetune"
	"finetune-backend/internal/messaging"
	"finetune-backend/pkg/api"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

var fineTuneStatuses = []string{
	database.FineTuneQueued, database.FineTuneSubmitted, database.FineTuneSucceeded, database.FineTuneFailed,
}

func validateSettings(s api.FineTuneSettings) error {
	if s.Epochs != nil && *s.Epochs <= 0 {
		return CodedErrorf(http.StatusBadRequest, "epochs must be positive")
	}
	if s.BatchSize != nil && *s.BatchSize <= 0 {
		return CodedErrorf(http.StatusBadRequest, "batch size must be positive")
	}
	if s.LearningRateMultiplier != nil && *s.LearningRateMultiplier <= 0 {
		return CodedErrorf(http.StatusBadRequest, "learning rate multiplier must be positive")
	}
	return nil
}

func (s *BackendService) CreateFineTune(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CreateFineTuneRequest](r)
	if err != nil {
		return nil, err
	}

	if err := validateName(req.Name); err != nil {
		return nil, err
	}
	if len(req.Pairs) == 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "at least one training pair is required")
	}
	if err := validateSettings(req.Settings); err != nil {
		return nil, err
	}

	pairs := convertPairs(req.Pairs)
	settings := convertSettings(req.Settings)

	trainingData, err := json.Marshal(pairs)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error serializing training data")
	}
	settingsData, err := json.Marshal(settings)
	if err != nil {
		return nil, CodedErrorf(http.StatusInternalServerError, "error serializing settings")
	}

	ctx := r.Context()

	fineTune := database.FineTune{
		Id:            uuid.New(),
		Name:          req.Name,
		BaseModel:     settings.GetModel(),
		Status:        database.FineTuneQueued,
		TrainingData:  datatypes.JSON(trainingData),
		Settings:      datatypes.JSON(settingsData),
		TrainingPairs: len(pairs),
		CreationTime:  time.Now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&fineTune).Error; err != nil {
		slog.Error("error creating fine-tune", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to create fine-tune entry")
	}

	if err := s.publisher.PublishFinetuneTask(ctx, messaging.FinetuneTaskPayload{FineTuneId: fineTune.Id}); err != nil {
		slog.Error("error publishing finetune task", "fine_tune_id", fineTune.Id, "error", err)
		database.SaveFineTuneError(ctx, s.db, fineTune.Id, "failed to queue fine-tune")
		return nil, CodedErrorf(http.StatusInternalServerError, "failed to queue fine-tune")
	}

	slog.Info("queued fine-tune", "fine_tune_id", fineTune.Id, "name", fineTune.Name, "pairs", fineTune.TrainingPairs)

	return api.CreateFineTuneResponse{FineTuneId: fineTune.Id}, nil
}

func (s *BackendService) ListFineTunes(r *http.Request) (any, error) {
	params, err := ParseRequestQueryParams[api.ListFineTunesParams](r)
	if err != nil {
		return nil, err
	}

	if params.Limit <= 0 {
		params.Limit = defaultListLimit
	}
	params.Limit = min(params.Limit, maxListLimit)
	if params.Offset < 0 {
		return nil, CodedErrorf(http.StatusBadRequest, "offset must not be negative")
	}

	query := s.db.WithContext(r.Context()).Order("creation_time DESC").Limit(params.Limit).Offset(params.Offset)
	if params.Status != "" {
		if !slices.Contains(fineTuneStatuses, params.Status) {
			return nil, CodedErrorf(http.StatusBadRequest, "invalid status '%s'", params.Status)
		}
		query = query.Where("status = ?", params.Status)
	}

	var fineTunes []database.FineTune
	if err := query.Find(&fineTunes).Error; err != nil {
		slog.Error("error listing fine-tunes", "error", err)
		return nil, CodedErrorf(http.StatusInternalServerError, "error listing fine-tunes")
	}

	results := make([]api.FineTune, 0, len(fineTunes))
	for _, f := range fineTunes {
		results = append(results, convertFineTune(f))
	}
	return results, nil
}

func (s *BackendService) loadFineTune(r *http.Request) (database.FineTune, error) {
	fineTuneId, err := URLParamUUID(r, "fine_tune_id")
	if err != nil {
		return database.FineTune{}, err
	}

	fineTune, err := database.GetFineTune(r.Context(), s.db, fineTuneId)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return database.FineTune{}, CodedErrorf(http.StatusNotFound, "fine-tune not found")
		}
		slog.Error("error getting fine-tune", "fine_tune_id", fineTuneId, "error", err)
		return database.FineTune{}, CodedErrorf(http.StatusInternalServerError, "error retrieving fine-tune record")
	}
	return fineTune, nil
}

func (s *BackendService) GetFineTune(r *http.Request) (any, error) {
	fineTune, err := s.loadFineTune(r)
	if err != nil {
		return nil, err
	}
	return convertFineTune(fineTune), nil
}

// GetFineTuneStatus asks the remote service for the current status. A
// fine-tune that was never submitted is not ready, or failed if submission was
// abandoned.
func (s *BackendService) GetFineTuneStatus(r *http.Request) (any, error) {
	fineTune, err := s.loadFineTune(r)
	if err != nil {
		return nil, err
	}

	job, ok := fineTune.RemoteJob()
	if !ok {
		if fineTune.Status == database.FineTuneFailed {
			return api.FineTuneStatus{Status: finetune.StatusFailed.String()}, nil
		}
		return api.FineTuneStatus{Status: finetune.StatusNotReady.String()}, nil
	}

	status, err := s.manager.GetStatus(r.Context(), job)
	if err != nil {
		return nil, CodedError(http.StatusBadGateway, err)
	}
	return api.FineTuneStatus{Status: status.String()}, nil
}

func (s *BackendService) GetFineTuneEvents(r *http.Request) (any, error) {
	fineTune, err := s.loadFineTune(r)
	if err != nil {
		return nil, err
	}

	job, ok := fineTune.RemoteJob()
	if !ok {
		return []api.FineTuneEvent{}, nil
	}

	events, err := s.manager.GetEvents(r.Context(), job)
	if err != nil {
		return nil, CodedError(http.StatusBadGateway, err)
	}

	results := make([]api.FineTuneEvent, 0, len(events))
	for _, e := range events {
		results = append(results, convertEvent(e))
	}
	return results, nil
}

func (s *BackendService) StreamFineTuneEvents(r *http.Request) (StreamResponse, error) {
	fineTune, err := s.loadFineTune(r)
	if err != nil {
		return nil, err
	}

	job, ok := fineTune.RemoteJob()
	if !ok {
		return nil, CodedErrorf(http.StatusConflict, "fine-tune %s has not been submitted yet", fineTune.Id)
	}

	events := s.manager.GetEventStream(r.Context(), job)

	return func(yield func(any, error) bool) {
		for event, err := range events {
			if err != nil {
				yield(nil, CodedError(http.StatusBadGateway, err))
				return
			}
			if !yield(convertEvent(event), nil) {
				return
			}
		}
	}, nil
}

func (s *BackendService) GetFineTuneModel(r *http.Request) (any, error) {
	fineTune, err := s.loadFineTune(r)
	if err != nil {
		return nil, err
	}

	if fineTune.ModelName.Valid {
		return api.ModelNameResponse{Ready: true, ModelName: fineTune.ModelName.String}, nil
	}

	job, ok := fineTune.RemoteJob()
	if !ok {
		return api.ModelNameResponse{Ready: false}, nil
	}

	ctx := r.Context()

	name, found, err := s.manager.TryResolveModelName(ctx, job)
	if err != nil {
		return nil, CodedError(http.StatusBadGateway, err)
	}
	if !found {
		return api.ModelNameResponse{Ready: false}, nil
	}

	if err := database.SetModelName(ctx, s.db, fineTune.Id, name); err != nil {
		slog.Error("error saving model name", "fine_tune_id", fineTune.Id, "error", err)
	}

	return api.ModelNameResponse{Ready: true, ModelName: name}, nil
}
