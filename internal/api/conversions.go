package api

import (
	"database/sql"
	"time"

	"finetune-backend/internal/completions"
	"finetune-backend/internal/database"
	"finetune-backend/internal/finetune"
	"finetune-backend/pkg/api"
)

func convertPairs(pairs []api.TrainingPair) []finetune.TrainingPair {
	converted := make([]finetune.TrainingPair, 0, len(pairs))
	for _, p := range pairs {
		converted = append(converted, finetune.TrainingPair{Prompt: p.Prompt, Completion: p.Completion})
	}
	return converted
}

func convertSettings(s api.FineTuneSettings) finetune.Settings {
	settings := finetune.Settings{
		Model:                  s.Model,
		PromptSuffix:           s.PromptSuffix,
		CompletionSuffix:       s.CompletionSuffix,
		Epochs:                 s.Epochs,
		BatchSize:              s.BatchSize,
		LearningRateMultiplier: s.LearningRateMultiplier,
		ModelSuffix:            s.ModelSuffix,
		Seed:                   s.Seed,
	}
	if len(s.ValidationData) > 0 {
		settings.ValidationData = convertPairs(s.ValidationData)
	}
	return settings
}

func nullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	return &t.Time
}

func convertFineTune(f database.FineTune) api.FineTune {
	return api.FineTune{
		Id:               f.Id,
		Name:             f.Name,
		BaseModel:        f.BaseModel,
		Status:           f.Status,
		JobId:            f.RemoteJobId.String,
		ModelName:        f.ModelName.String,
		PromptSuffix:     f.PromptSuffix,
		CompletionSuffix: f.CompletionSuffix,
		TrainingPairs:    f.TrainingPairs,
		Error:            f.Error.String,
		CreationTime:     f.CreationTime,
		SubmitTime:       nullTime(f.SubmitTime),
		CompletionTime:   nullTime(f.CompletionTime),
	}
}

func convertEvent(e finetune.Event) api.FineTuneEvent {
	return api.FineTuneEvent{CreatedAt: e.CreatedAt, Level: e.Level, Message: e.Message}
}

func convertSampling(s api.Sampling) completions.Sampling {
	return completions.Sampling{
		MaxTokens:        s.MaxTokens,
		Temperature:      s.Temperature,
		TopP:             s.TopP,
		FrequencyPenalty: s.FrequencyPenalty,
		PresencePenalty:  s.PresencePenalty,
		Stop:             s.Stop,
		User:             s.User,
	}
}

func convertCompletionRequest(r api.CompletionRequest) completions.CompletionRequest {
	return completions.CompletionRequest{Model: r.Model, Prompt: r.Prompt, Sampling: convertSampling(r.Sampling)}
}

func convertChatRequest(r api.ChatCompletionRequest) completions.ChatRequest {
	messages := make([]completions.ChatMessage, 0, len(r.Messages))
	for _, m := range r.Messages {
		messages = append(messages, completions.ChatMessage{Role: completions.ChatRole(m.Role), Content: m.Content})
	}
	return completions.ChatRequest{Model: r.Model, Messages: messages, Sampling: convertSampling(r.Sampling)}
}
