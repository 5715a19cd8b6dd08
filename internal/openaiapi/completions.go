package openaiapi

import (
	"context"
	"errors"
	"fmt"

	"finetune-backend/internal/completions"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

var errNoChoices = errors.New("response contained no choices")

func stopOptions(stop []string) []option.RequestOption {
	if len(stop) == 0 {
		return nil
	}
	return []option.RequestOption{option.WithJSONSet("stop", stop)}
}

func (c *Client) Complete(ctx context.Context, req completions.CompletionRequest) (string, error) {
	params := openai.CompletionNewParams{
		Model:  openai.CompletionNewParamsModel(req.Model),
		Prompt: openai.CompletionNewParamsPromptUnion{OfString: openai.String(req.Prompt)},
	}
	if req.MaxTokens != nil {
		params.MaxTokens = openai.Int(*req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*req.PresencePenalty)
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	res, err := c.client.Completions.New(ctx, params, stopOptions(req.Stop)...)
	if err != nil {
		return "", fmt.Errorf("openai completion failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", errNoChoices
	}
	return res.Choices[0].Text, nil
}

func toChatMessages(messages []completions.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case completions.RoleSystem:
			out = append(out, openai.SystemMessage(msg.Content))
		case completions.RoleAssistant:
			out = append(out, openai.AssistantMessage(msg.Content))
		default:
			out = append(out, openai.UserMessage(msg.Content))
		}
	}
	return out
}

func (c *Client) ChatComplete(ctx context.Context, req completions.ChatRequest) (string, error) {
	params := openai.ChatCompletionNewParams{
		Messages: toChatMessages(req.Messages),
		Model:    req.Model,
	}
	if req.MaxTokens != nil {
		params.MaxCompletionTokens = openai.Int(*req.MaxTokens)
	}
	if req.Temperature != nil {
		params.Temperature = openai.Float(*req.Temperature)
	}
	if req.TopP != nil {
		params.TopP = openai.Float(*req.TopP)
	}
	if req.FrequencyPenalty != nil {
		params.FrequencyPenalty = openai.Float(*req.FrequencyPenalty)
	}
	if req.PresencePenalty != nil {
		params.PresencePenalty = openai.Float(*req.PresencePenalty)
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	res, err := c.client.Chat.Completions.New(ctx, params, stopOptions(req.Stop)...)
	if err != nil {
		return "", fmt.Errorf("openai chat completion failed: %w", err)
	}
	if len(res.Choices) == 0 {
		return "", errNoChoices
	}
	return res.Choices[0].Message.Content, nil
}

func (c *Client) Embed(ctx context.Context, req completions.EmbeddingRequest) ([]float64, error) {
	params := openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfString: openai.String(req.Input)},
		Model: openai.EmbeddingModel(req.Model),
	}
	if req.User != "" {
		params.User = openai.String(req.User)
	}

	res, err := c.client.Embeddings.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}
	if len(res.Data) == 0 {
		return nil, errors.New("response contained no embeddings")
	}
	return res.Data[0].Embedding, nil
}
