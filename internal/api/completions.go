package api

import (
	"errors"
	"net/http"

	"finetune-backend/internal/completions"
	"finetune-backend/internal/respcache"
	"finetune-backend/pkg/api"
)

func completionError(err error) error {
	switch {
	case errors.Is(err, completions.ErrInvalidRequest):
		return CodedError(http.StatusBadRequest, err)
	case errors.Is(err, completions.ErrModelNotReady):
		return CodedError(http.StatusConflict, err)
	default:
		return CodedError(http.StatusBadGateway, err)
	}
}

func (s *BackendService) Complete(r *http.Request) (any, error) {
	req, err := ParseRequest[api.CompletionRequest](r)
	if err != nil {
		return nil, err
	}

	text, err := s.completions.GetCompletion(r.Context(), convertCompletionRequest(req))
	if err != nil {
		return nil, completionError(err)
	}
	return api.CompletionResponse{Text: text}, nil
}

func (s *BackendService) ChatComplete(r *http.Request) (any, error) {
	req, err := ParseRequest[api.ChatCompletionRequest](r)
	if err != nil {
		return nil, err
	}

	content, err := s.completions.GetChatCompletion(r.Context(), convertChatRequest(req))
	if err != nil {
		return nil, completionError(err)
	}
	return api.ChatCompletionResponse{Content: content}, nil
}

func (s *BackendService) Embed(r *http.Request) (any, error) {
	req, err := ParseRequest[api.EmbeddingRequest](r)
	if err != nil {
		return nil, err
	}

	embedding, err := s.completions.GetEmbedding(r.Context(), completions.EmbeddingRequest{
		Model: req.Model,
		Input: req.Input,
		User:  req.User,
	})
	if err != nil {
		return nil, completionError(err)
	}
	return api.EmbeddingResponse{Embedding: embedding}, nil
}

// CompleteWithFineTune runs a completion against the model trained by the
// fine-tune, using the suffixes recorded when it was submitted.
func (s *BackendService) CompleteWithFineTune(r *http.Request) (any, error) {
	fineTune, err := s.loadFineTune(r)
	if err != nil {
		return nil, err
	}

	req, err := ParseRequest[api.CompletionRequest](r)
	if err != nil {
		return nil, err
	}

	job, ok := fineTune.RemoteJob()
	if !ok {
		return nil, CodedErrorf(http.StatusConflict, "fine-tune %s has not been submitted yet", fineTune.Id)
	}

	text, err := s.completions.CompleteWithFineTune(r.Context(), s.manager, job, convertCompletionRequest(req))
	if err != nil {
		return nil, completionError(err)
	}
	return api.CompletionResponse{Text: text}, nil
}

func (s *BackendService) ClearCache(r *http.Request) (any, error) {
	clearer, ok := s.cache.(respcache.Clearer)
	if !ok {
		return nil, CodedErrorf(http.StatusNotImplemented, "the configured response cache cannot be cleared")
	}

	if err := clearer.Clear(r.Context()); err != nil {
		return nil, CodedError(http.StatusInternalServerError, err)
	}
	return nil, nil
}
