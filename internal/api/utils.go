package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/gorilla/schema"
)

type codedError struct {
	err  error
	code int
}

func (e *codedError) Error() string {
	return e.err.Error()
}

func (e *codedError) Unwrap() error {
	return e.err
}

func CodedError(code int, err error) error {
	return &codedError{err: err, code: code}
}

func CodedErrorf(code int, format string, args ...any) error {
	return &codedError{err: fmt.Errorf(format, args...), code: code}
}

// errorCode returns the status code attached to err, or 500 for errors that
// were never given one.
func errorCode(err error) int {
	var cerr *codedError
	if errors.As(err, &cerr) {
		if cerr.code == http.StatusInternalServerError {
			slog.Error("internal server error received in endpoint", "error", err)
		}
		return cerr.code
	}
	slog.Error("recieved non coded error from endpoint", "error", err)
	return http.StatusInternalServerError
}

func ParseRequest[T any](r *http.Request) (T, error) {
	var data T
	if err := json.NewDecoder(r.Body).Decode(&data); err != nil {
		slog.Error("error parsing request body", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request body")
	}
	return data, nil
}

func ParseRequestQueryParams[T any](r *http.Request) (T, error) {
	var data T
	if err := r.ParseForm(); err != nil {
		slog.Error("error parsing form", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)
	if err := decoder.Decode(&data, r.Form); err != nil {
		slog.Error("error decoding query params", "error", err)
		return data, CodedErrorf(http.StatusBadRequest, "unable to parse request query params")
	}

	return data, nil
}

func RestHandler(handler func(r *http.Request) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := handler(r)
		if err != nil {
			http.Error(w, err.Error(), errorCode(err))
			return
		}

		if res == nil {
			res = struct{}{}
		}

		WriteJsonResponse(w, res)
	}
}

type StreamResponse func(yield func(any, error) bool)

type StreamMessage struct {
	Data  interface{}
	Error string
	Code  int
}

// RestStreamHandler writes one JSON StreamMessage per line and flushes after
// each, so clients can read events as they arrive.
func RestStreamHandler(handler func(r *http.Request) (StreamResponse, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stream, err := handler(r)
		if err != nil {
			http.Error(w, err.Error(), errorCode(err))
			return
		}

		flusher, ok := w.(http.Flusher)
		if !ok {
			slog.Error("response writer does not support flushing")
			http.Error(w, "streaming not supported", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for data, err := range stream {
			msg := StreamMessage{Data: data, Code: http.StatusOK}
			if err != nil {
				msg = StreamMessage{Error: err.Error(), Code: errorCode(err)}
			}

			if writeErr := json.NewEncoder(w).Encode(msg); writeErr != nil {
				slog.Error("error writing json response", "error", writeErr)
				return
			}

			flusher.Flush()
		}
	}
}

func WriteJsonResponse(w http.ResponseWriter, data interface{}) {
	body, err := json.Marshal(data)
	if err != nil {
		slog.Error("error serializing response body", "error", err)
		http.Error(w, fmt.Sprintf("error serializing response body: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(append(body, '\n')); err != nil {
		slog.Error("error writing response body", "error", err)
	}
}

func URLParamUUID(r *http.Request, key string) (uuid.UUID, error) {
	param := chi.URLParam(r, key)

	if len(param) == 0 {
		return uuid.Nil, CodedErrorf(http.StatusBadRequest, "missing {%v} url parameter", key)
	}

	id, err := uuid.Parse(param)
	if err != nil {
		return uuid.Nil, CodedErrorf(http.StatusBadRequest, "invalid uuid '%v' url parameter provided: %w", key, err)
	}

	return id, nil
}

var namePattern = regexp.MustCompile(`^[\w-]+$`)

func validateName(name string) error {
	if !namePattern.MatchString(name) {
		return CodedErrorf(http.StatusBadRequest, "invalid fine-tune name '%s' provided: only alphanumeric characters, underscores, and hyphens are allowed", name)
	}
	return nil
}
