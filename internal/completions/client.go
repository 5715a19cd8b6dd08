package completions

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"unicode/utf8"

	"finetune-backend/internal/finetune"
	"finetune-backend/internal/metrics"
	"finetune-backend/internal/respcache"

	"github.com/google/uuid"
)

type Backend interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)

	ChatComplete(ctx context.Context, req ChatRequest) (string, error)

	Embed(ctx context.Context, req EmbeddingRequest) ([]float64, error)
}

type ModelResolver interface {
	TryResolveModelName(ctx context.Context, job finetune.Job) (string, bool, error)
}

// Client sends completion requests to the backend, answering repeated
// identical requests from the response cache.
type Client struct {
	backend Backend
	cache   respcache.ResponseCache
}

func NewClient(backend Backend, cache respcache.ResponseCache) *Client {
	if cache == nil {
		cache = respcache.NopCache{}
	}
	return &Client{backend: backend, cache: cache}
}

func (c *Client) GetCompletion(ctx context.Context, req CompletionRequest) (string, error) {
	req = req.withDefaults()
	if err := req.Validate(); err != nil {
		return "", err
	}

	return c.cached(ctx, KindCompletion, req, func() (string, error) {
		return c.backend.Complete(ctx, req)
	})
}

func (c *Client) GetChatCompletion(ctx context.Context, req ChatRequest) (string, error) {
	req = req.withDefaults()
	if err := req.Validate(); err != nil {
		return "", err
	}

	return c.cached(ctx, KindChat, req, func() (string, error) {
		return c.backend.ChatComplete(ctx, req)
	})
}

func (c *Client) GetEmbedding(ctx context.Context, req EmbeddingRequest) ([]float64, error) {
	req = req.withDefaults()
	if req.Input == "" {
		return nil, fmt.Errorf("%w: input must not be empty", ErrInvalidRequest)
	}

	embedding, err := c.backend.Embed(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("error getting embedding: %w", err)
	}
	return embedding, nil
}

// CompleteWithFineTune runs a completion against the model trained by job. The
// prompt gets the suffix used during training and generation stops at the
// completion suffix, which is stripped from the returned text.
func (c *Client) CompleteWithFineTune(ctx context.Context, resolver ModelResolver, job finetune.Job, req CompletionRequest) (string, error) {
	model, found, err := resolver.TryResolveModelName(ctx, job)
	if err != nil {
		return "", err
	}
	if !found {
		return "", fmt.Errorf("fine-tune job %s: %w", job.Id, ErrModelNotReady)
	}

	req.Model = model
	req.Prompt = job.FormatPrompt(req.Prompt)
	if job.CompletionSuffix != "" && !slices.Contains(req.Stop, job.CompletionSuffix) {
		req.Stop = append(slices.Clone(req.Stop), job.CompletionSuffix)
	}

	text, err := c.GetCompletion(ctx, req)
	if err != nil {
		return "", err
	}
	return job.TrimCompletion(text), nil
}

func (c *Client) cached(ctx context.Context, kind string, req any, call func() (string, error)) (string, error) {
	key, err := Fingerprint(kind, req)
	if err != nil {
		return "", err
	}

	if response, found := c.lookup(ctx, key); found {
		return response, nil
	}

	response, err := call()
	if err != nil {
		return "", fmt.Errorf("error getting %s: %w", kind, err)
	}

	if !utf8.ValidString(response) {
		// text stores such as postgres reject these bytes
		slog.Warn("not caching response that is not valid UTF-8", "kind", kind, "key", key)
		return response, nil
	}

	if err := c.cache.Put(ctx, key, response); err != nil {
		slog.Warn("error caching response", "kind", kind, "key", key, "error", err)
	}

	return response, nil
}

// lookup treats cache failures as misses so an unavailable cache never blocks a
// request.
func (c *Client) lookup(ctx context.Context, key uuid.UUID) (string, bool) {
	response, found, err := c.cache.TryGet(ctx, key)
	switch {
	case err != nil:
		slog.Warn("error reading response cache", "key", key, "error", err)
		metrics.ObserveCacheLookup("error")
		return "", false
	case found:
		metrics.ObserveCacheLookup("hit")
		return response, true
	default:
		metrics.ObserveCacheLookup("miss")
		return "", false
	}
}
