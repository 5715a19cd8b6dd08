package completions

import (
	"errors"
	"fmt"
)

const (
	DefaultCompletionModel = "gpt-3.5-turbo-instruct"
	DefaultChatModel       = "gpt-4o-mini"
	DefaultEmbeddingModel  = "text-embedding-ada-002"
)

var (
	ErrModelNotReady  = errors.New("fine-tuned model is not ready yet")
	ErrInvalidRequest = errors.New("invalid request")
)

type ChatRole string

const (
	RoleSystem    ChatRole = "system"
	RoleUser      ChatRole = "user"
	RoleAssistant ChatRole = "assistant"
)

type ChatMessage struct {
	Role    ChatRole `json:"role"`
	Content string   `json:"content"`
}

// Sampling holds the generation parameters shared by completion and chat
// requests. Nil fields are left to the remote service's defaults.
type Sampling struct {
	MaxTokens        *int64   `json:"max_tokens,omitempty"`
	Temperature      *float64 `json:"temperature,omitempty"`
	TopP             *float64 `json:"top_p,omitempty"`
	FrequencyPenalty *float64 `json:"frequency_penalty,omitempty"`
	PresencePenalty  *float64 `json:"presence_penalty,omitempty"`
	Stop             []string `json:"stop,omitempty"`
	User             string   `json:"user,omitempty"`
}

type CompletionRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Sampling
}

func (r CompletionRequest) withDefaults() CompletionRequest {
	if r.Model == "" {
		r.Model = DefaultCompletionModel
	}
	return r
}

func (r CompletionRequest) Validate() error {
	if r.Prompt == "" {
		return fmt.Errorf("%w: prompt must not be empty", ErrInvalidRequest)
	}
	return r.Sampling.validate()
}

type ChatRequest struct {
	Model    string        `json:"model"`
	Messages []ChatMessage `json:"messages"`
	Sampling
}

func (r ChatRequest) withDefaults() ChatRequest {
	if r.Model == "" {
		r.Model = DefaultChatModel
	}
	return r
}

func (r ChatRequest) Validate() error {
	if len(r.Messages) == 0 {
		return fmt.Errorf("%w: at least one message is required", ErrInvalidRequest)
	}
	for i, msg := range r.Messages {
		switch msg.Role {
		case RoleSystem, RoleUser, RoleAssistant:
		default:
			return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidRequest, i, msg.Role)
		}
	}
	return r.Sampling.validate()
}

type EmbeddingRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
	User  string `json:"user,omitempty"`
}

func (r EmbeddingRequest) withDefaults() EmbeddingRequest {
	if r.Model == "" {
		r.Model = DefaultEmbeddingModel
	}
	return r
}

func (s Sampling) validate() error {
	if s.MaxTokens != nil && *s.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidRequest)
	}
	if s.Temperature != nil && (*s.Temperature < 0 || *s.Temperature > 2) {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidRequest)
	}
	if s.TopP != nil && (*s.TopP < 0 || *s.TopP > 1) {
		return fmt.Errorf("%w: top_p must be between 0 and 1", ErrInvalidRequest)
	}
	if len(s.Stop) > 4 {
		return fmt.Errorf("%w: at most 4 stop sequences are allowed", ErrInvalidRequest)
	}
	return nil
}
