package api

import (
	"time"

	"github.com/google/uuid"
)

type TrainingPair struct {
	Prompt     string
	Completion string
}

type FineTuneSettings struct {
	Model            string
	PromptSuffix     *string `json:"PromptSuffix,omitempty"`
	CompletionSuffix *string `json:"CompletionSuffix,omitempty"`
	ValidationData   []TrainingPair

	Epochs                 *int64   `json:"Epochs,omitempty"`
	BatchSize              *int64   `json:"BatchSize,omitempty"`
	LearningRateMultiplier *float64 `json:"LearningRateMultiplier,omitempty"`
	ModelSuffix            string
	Seed                   *int64 `json:"Seed,omitempty"`
}

type CreateFineTuneRequest struct {
	Name     string
	Pairs    []TrainingPair
	Settings FineTuneSettings
}

type CreateFineTuneResponse struct {
	FineTuneId uuid.UUID
}

type ListFineTunesParams struct {
	Status string `schema:"status"`
	Limit  int    `schema:"limit"`
	Offset int    `schema:"offset"`
}

type FineTune struct {
	Id        uuid.UUID
	Name      string
	BaseModel string
	Status    string

	JobId     string `json:"JobId,omitempty"`
	ModelName string `json:"ModelName,omitempty"`

	PromptSuffix     string
	CompletionSuffix string
	TrainingPairs    int

	Error string `json:"Error,omitempty"`

	CreationTime   time.Time
	SubmitTime     *time.Time `json:"SubmitTime,omitempty"`
	CompletionTime *time.Time `json:"CompletionTime,omitempty"`
}

// FineTuneStatus is "not_ready", "succeeded" or "failed".
type FineTuneStatus struct {
	Status string
}

type FineTuneEvent struct {
	CreatedAt time.Time
	Level     string
	Message   string
}

type ModelNameResponse struct {
	Ready     bool
	ModelName string `json:"ModelName,omitempty"`
}

type Sampling struct {
	MaxTokens        *int64   `json:"MaxTokens,omitempty"`
	Temperature      *float64 `json:"Temperature,omitempty"`
	TopP             *float64 `json:"TopP,omitempty"`
	FrequencyPenalty *float64 `json:"FrequencyPenalty,omitempty"`
	PresencePenalty  *float64 `json:"PresencePenalty,omitempty"`
	Stop             []string `json:"Stop,omitempty"`
	User             string   `json:"User,omitempty"`
}

type CompletionRequest struct {
	Model  string
	Prompt string
	Sampling
}

type CompletionResponse struct {
	Text string
}

type ChatMessage struct {
	Role    string
	Content string
}

type ChatCompletionRequest struct {
	Model    string
	Messages []ChatMessage
	Sampling
}

type ChatCompletionResponse struct {
	Content string
}

type EmbeddingRequest struct {
	Model string
	Input string
	User  string `json:"User,omitempty"`
}

type EmbeddingResponse struct {
	Embedding []float64
}
