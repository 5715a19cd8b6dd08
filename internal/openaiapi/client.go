package openaiapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

const DefaultPollInterval = 10 * time.Second

type Config struct {
	APIKey       string
	Organization string
	BaseURL      string
	MaxRetries   int

	// PollInterval is the wait between event polls while streaming.
	PollInterval time.Duration
}

// Client adapts the OpenAI SDK to the fine-tune and completion interfaces.
// Retries with backoff for rate limits and transient failures are handled by
// the SDK according to MaxRetries.
type Client struct {
	client       openai.Client
	pollInterval time.Duration
}

func NewClient(cfg Config) *Client {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.Organization != "" {
		opts = append(opts, option.WithOrganization(cfg.Organization))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Client{
		client:       openai.NewClient(opts...),
		pollInterval: pollInterval,
	}
}

// IsPermanent reports whether err is a rejection by the remote service that a
// retry of the same request cannot fix, such as a malformed training file.
func IsPermanent(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	switch apiErr.StatusCode {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooManyRequests:
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500
}
