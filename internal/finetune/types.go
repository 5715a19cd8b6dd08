package finetune

import (
	"errors"
	"strings"
	"time"
)

var ErrNoTrainingData = errors.New("fine-tune requires at least one training pair")

type TrainingPair struct {
	Prompt     string `json:"prompt"`
	Completion string `json:"completion"`
}

// Job is the client-side handle of a submitted fine-tune. The suffixes are kept
// here because the remote service does not return them.
type Job struct {
	Id               string `json:"id"`
	PromptSuffix     string `json:"prompt_suffix"`
	CompletionSuffix string `json:"completion_suffix"`
}

// FormatPrompt appends the suffix the model was trained to expect after a prompt.
func (j Job) FormatPrompt(prompt string) string {
	return prompt + j.PromptSuffix
}

// TrimCompletion cuts a response at the first completion suffix.
func (j Job) TrimCompletion(text string) string {
	if j.CompletionSuffix == "" {
		return text
	}
	if idx := strings.Index(text, j.CompletionSuffix); idx >= 0 {
		return text[:idx]
	}
	return text
}

type Event struct {
	CreatedAt time.Time `json:"created_at"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

type Status int

const (
	StatusNotReady Status = iota
	StatusSucceeded
	StatusFailed
)

const (
	rawStatusSucceeded = "succeeded"
	rawStatusFailed    = "failed"
	rawStatusCancelled = "cancelled"
)

// ParseStatus maps a raw remote status onto the three-state view. Anything that
// is not an explicit terminal marker is NotReady.
func ParseStatus(raw string) Status {
	switch raw {
	case rawStatusSucceeded:
		return StatusSucceeded
	case rawStatusFailed:
		return StatusFailed
	default:
		return StatusNotReady
	}
}

// Stopped reports whether a job with the given raw status will make no further
// progress. This is wider than Terminal: a cancelled job has stopped but its
// status stays NotReady.
func Stopped(raw string) bool {
	switch raw {
	case rawStatusSucceeded, rawStatusFailed, rawStatusCancelled:
		return true
	default:
		return false
	}
}

func (s Status) String() string {
	switch s {
	case StatusSucceeded:
		return "succeeded"
	case StatusFailed:
		return "failed"
	default:
		return "not_ready"
	}
}

func (s Status) Terminal() bool {
	return s == StatusSucceeded || s == StatusFailed
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	*s = StatusFromString(string(text))
	return nil
}

func StatusFromString(s string) Status {
	switch s {
	case "succeeded":
		return StatusSucceeded
	case "failed":
		return StatusFailed
	default:
		return StatusNotReady
	}
}

const (
	DefaultModel            = "babbage-002"
	DefaultPromptSuffix     = "\n\n###\n\n"
	DefaultCompletionSuffix = " END"
)

// Settings configures a fine-tune. It is passed by value and never mutated by
// the manager; unset fields fall back to the defaults above or to the remote
// service's "auto" choice for hyperparameters.
type Settings struct {
	Model            string         `json:"model,omitempty"`
	PromptSuffix     *string        `json:"prompt_suffix,omitempty"`
	CompletionSuffix *string        `json:"completion_suffix,omitempty"`
	ValidationData   []TrainingPair `json:"validation_data,omitempty"`

	Epochs                 *int64   `json:"epochs,omitempty"`
	BatchSize              *int64   `json:"batch_size,omitempty"`
	LearningRateMultiplier *float64 `json:"learning_rate_multiplier,omitempty"`
	ModelSuffix            string   `json:"model_suffix,omitempty"`
	Seed                   *int64   `json:"seed,omitempty"`
}

func (s Settings) GetModel() string {
	if s.Model == "" {
		return DefaultModel
	}
	return s.Model
}

func (s Settings) GetPromptSuffix() string {
	if s.PromptSuffix == nil {
		return DefaultPromptSuffix
	}
	return *s.PromptSuffix
}

func (s Settings) GetCompletionSuffix() string {
	if s.CompletionSuffix == nil {
		return DefaultCompletionSuffix
	}
	return *s.CompletionSuffix
}

func (s Settings) toRequest(trainingFileId, validationFileId string) JobRequest {
	return JobRequest{
		Model:                  s.GetModel(),
		TrainingFileId:         trainingFileId,
		ValidationFileId:       validationFileId,
		Epochs:                 s.Epochs,
		BatchSize:              s.BatchSize,
		LearningRateMultiplier: s.LearningRateMultiplier,
		ModelSuffix:            s.ModelSuffix,
		Seed:                   s.Seed,
	}
}
