package openaiapi_test

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"finetune-backend/internal/completions"
	"finetune-backend/internal/finetune"
	"finetune-backend/internal/openaiapi"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEvent struct {
	ID        string `json:"id"`
	Object    string `json:"object"`
	CreatedAt int64  `json:"created_at"`
	Level     string `json:"level"`
	Message   string `json:"message"`
	Type      string `json:"type"`
}

// fakeOpenAI serves the subset of the OpenAI API used by the client. Events are
// revealed a few at a time on each poll of the job.
type fakeOpenAI struct {
	mu sync.Mutex

	files    []map[string]any
	uploaded []string

	jobRequests []map[string]any
	polls       int
	events      []fakeEvent
	visible     []int
	statuses    []string

	requests []map[string]any
}

func (f *fakeOpenAI) router() http.Handler {
	r := chi.NewRouter()

	writeJSON := func(w http.ResponseWriter, v any) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(v)
	}

	r.Get("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		writeJSON(w, map[string]any{"object": "list", "data": f.files, "has_more": false})
	})

	r.Post("/v1/files", func(w http.ResponseWriter, r *http.Request) {
		file, header, err := r.FormFile("file")
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		data, _ := io.ReadAll(file)

		f.mu.Lock()
		defer f.mu.Unlock()
		id := fmt.Sprintf("file-%d", len(f.files)+1)
		obj := map[string]any{
			"id": id, "object": "file", "bytes": len(data), "created_at": 1700000000,
			"filename": header.Filename, "purpose": r.FormValue("purpose"), "status": "processed",
		}
		f.files = append(f.files, obj)
		f.uploaded = append(f.uploaded, string(data))
		writeJSON(w, obj)
	})

	r.Post("/v1/fine_tuning/jobs", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)

		f.mu.Lock()
		defer f.mu.Unlock()
		f.jobRequests = append(f.jobRequests, body)
		writeJSON(w, map[string]any{"id": "ftjob-1", "object": "fine_tuning.job", "status": "validating_files", "model": body["model"]})
	})

	r.Get("/v1/fine_tuning/jobs/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		status := f.statuses[min(f.polls, len(f.statuses)-1)]
		f.polls++

		job := map[string]any{"id": chi.URLParam(r, "id"), "object": "fine_tuning.job", "status": status}
		if status == "succeeded" {
			job["fine_tuned_model"] = "ft:babbage-002:org::abc123"
		}
		writeJSON(w, job)
	})

	r.Get("/v1/fine_tuning/jobs/{id}/events", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()

		n := len(f.events)
		if f.polls > 0 && f.polls <= len(f.visible) {
			n = f.visible[f.polls-1]
		}

		// newest first, paged by "after"
		var newestFirst []fakeEvent
		for i := n - 1; i >= 0; i-- {
			newestFirst = append(newestFirst, f.events[i])
		}
		if after := r.URL.Query().Get("after"); after != "" {
			for i, evt := range newestFirst {
				if evt.ID == after {
					newestFirst = newestFirst[i+1:]
					break
				}
			}
		}
		limit := 2
		hasMore := len(newestFirst) > limit
		if hasMore {
			newestFirst = newestFirst[:limit]
		}
		writeJSON(w, map[string]any{"object": "list", "data": newestFirst, "has_more": hasMore})
	})

	handleCompletion := func(choice map[string]any) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			var body map[string]any
			_ = json.NewDecoder(r.Body).Decode(&body)
			f.mu.Lock()
			f.requests = append(f.requests, body)
			f.mu.Unlock()
			writeJSON(w, map[string]any{"id": "cmpl-1", "object": "text_completion", "choices": []any{choice}})
		}
	}

	r.Post("/v1/completions", handleCompletion(map[string]any{"index": 0, "text": "Paris END", "finish_reason": "stop"}))
	r.Post("/v1/chat/completions", handleCompletion(map[string]any{
		"index": 0, "finish_reason": "stop", "message": map[string]any{"role": "assistant", "content": "Whiskers"},
	}))

	r.Post("/v1/embeddings", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"object": "list", "model": "text-embedding-ada-002",
			"data": []any{map[string]any{"object": "embedding", "index": 0, "embedding": []float64{0.5, -0.25}}},
		})
	})

	return r
}

func newTestClient(t *testing.T, fake *fakeOpenAI) *openaiapi.Client {
	server := httptest.NewServer(fake.router())
	t.Cleanup(server.Close)

	return openaiapi.NewClient(openaiapi.Config{
		APIKey:       "test-key",
		BaseURL:      server.URL + "/v1/",
		MaxRetries:   0,
		PollInterval: 5 * time.Millisecond,
	})
}

func makeEvents(messages ...string) []fakeEvent {
	events := make([]fakeEvent, 0, len(messages))
	for i, msg := range messages {
		events = append(events, fakeEvent{
			ID: fmt.Sprintf("ftevent-%d", i+1), Object: "fine_tuning.job.event",
			CreatedAt: int64(1700000000 + i), Level: "info", Message: msg, Type: "message",
		})
	}
	return events
}

func TestFilesRoundTrip(t *testing.T) {
	fake := &fakeOpenAI{files: []map[string]any{
		{"id": "file-0", "object": "file", "bytes": 3, "created_at": 1, "filename": "notes.txt", "purpose": "assistants"},
	}}
	client := newTestClient(t, fake)
	ctx := context.Background()

	manager := finetune.NewManager(client, client, nil)
	uploads := manager.Uploads()

	data := []byte("{\"prompt\":\"a\",\"completion\":\"b\"}\n")
	id1, err := uploads.EnsureUploaded(ctx, data, finetune.PurposeFineTune)
	require.NoError(t, err)

	id2, err := uploads.EnsureUploaded(ctx, data, finetune.PurposeFineTune)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	require.Len(t, fake.uploaded, 1)
	assert.Equal(t, string(data), fake.uploaded[0])

	files, err := client.ListFiles(ctx)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, finetune.ContentFilename(data), files[1].Filename)
}

func TestCreateJob(t *testing.T) {
	fake := &fakeOpenAI{}
	client := newTestClient(t, fake)

	epochs := int64(4)
	jobId, err := client.CreateJob(context.Background(), finetune.JobRequest{
		Model:            "babbage-002",
		TrainingFileId:   "file-1",
		ValidationFileId: "file-2",
		Epochs:           &epochs,
		ModelSuffix:      "support",
	})
	require.NoError(t, err)
	assert.Equal(t, "ftjob-1", jobId)

	require.Len(t, fake.jobRequests, 1)
	body := fake.jobRequests[0]
	assert.Equal(t, "babbage-002", body["model"])
	assert.Equal(t, "file-1", body["training_file"])
	assert.Equal(t, "file-2", body["validation_file"])
	assert.Equal(t, "support", body["suffix"])
	assert.Equal(t, map[string]any{"n_epochs": float64(4)}, body["hyperparameters"])
}

func TestCreateJobWithoutValidation(t *testing.T) {
	fake := &fakeOpenAI{}
	client := newTestClient(t, fake)

	_, err := client.CreateJob(context.Background(), finetune.JobRequest{Model: "babbage-002", TrainingFileId: "file-1"})
	require.NoError(t, err)

	_, sent := fake.jobRequests[0]["validation_file"]
	assert.False(t, sent)
}

func TestGetJobAndListEvents(t *testing.T) {
	fake := &fakeOpenAI{statuses: []string{"succeeded"}, events: makeEvents("created", "", "running", "completed", "done")}
	client := newTestClient(t, fake)
	ctx := context.Background()

	job, err := client.GetJob(ctx, "ftjob-1")
	require.NoError(t, err)
	assert.Equal(t, "succeeded", job.RawStatus)
	assert.Equal(t, "ft:babbage-002:org::abc123", job.FineTunedModel)

	events, err := client.ListEvents(ctx, "ftjob-1")
	require.NoError(t, err)
	require.Len(t, events, 5)
	assert.Equal(t, "ftevent-1", events[0].Id)
	assert.Equal(t, "ftevent-5", events[4].Id)
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), events[0].CreatedAt)
}

func TestStreamEvents(t *testing.T) {
	fake := &fakeOpenAI{
		statuses: []string{"validating_files", "running", "running", "succeeded"},
		events:   makeEvents("created", "", "running", "epoch 1", "epoch 2", "completed"),
		visible:  []int{1, 3, 3, 6},
	}
	client := newTestClient(t, fake)
	manager := finetune.NewManager(client, client, nil)

	var messages []string
	for evt, err := range manager.GetEventStream(context.Background(), finetune.Job{Id: "ftjob-1"}) {
		require.NoError(t, err)
		messages = append(messages, evt.Message)
	}

	assert.Equal(t, []string{"created", "running", "epoch 1", "epoch 2", "completed"}, messages)
	assert.Equal(t, 4, fake.polls)
}

func TestStreamEventsCancelled(t *testing.T) {
	fake := &fakeOpenAI{statuses: []string{"running"}, events: makeEvents("created")}
	client := newTestClient(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var streamErr error
	for evt, err := range client.StreamEvents(ctx, "ftjob-1") {
		if err != nil {
			streamErr = err
			break
		}
		assert.Equal(t, "created", evt.Message)
		cancel()
	}
	assert.ErrorIs(t, streamErr, context.Canceled)
}

func TestCompletionBackend(t *testing.T) {
	fake := &fakeOpenAI{}
	client := newTestClient(t, fake)
	ctx := context.Background()

	temp := 0.0
	text, err := client.Complete(ctx, completions.CompletionRequest{
		Model:    "ft:babbage-002:org::abc123",
		Prompt:   "Capital of France?\n\n###\n\n",
		Sampling: completions.Sampling{Temperature: &temp, Stop: []string{" END"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "Paris END", text)

	require.Len(t, fake.requests, 1)
	assert.Equal(t, "ft:babbage-002:org::abc123", fake.requests[0]["model"])
	assert.Equal(t, []any{" END"}, fake.requests[0]["stop"])

	reply, err := client.ChatComplete(ctx, completions.ChatRequest{
		Model: "gpt-4o-mini",
		Messages: []completions.ChatMessage{
			{Role: completions.RoleSystem, Content: "You are a helpful assistant"},
			{Role: completions.RoleUser, Content: "What is a good name for a cat?"},
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "Whiskers", reply)

	messages := fake.requests[1]["messages"].([]any)
	require.Len(t, messages, 2)
	assert.Equal(t, "system", messages[0].(map[string]any)["role"])

	vector, err := client.Embed(ctx, completions.EmbeddingRequest{Model: "text-embedding-ada-002", Input: "dog"})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.5, -0.25}, vector)
}

func TestIsPermanent(t *testing.T) {
	codes := map[int]bool{
		http.StatusBadRequest:          true,
		http.StatusNotFound:            true,
		http.StatusTooManyRequests:     false,
		http.StatusInternalServerError: false,
	}

	for code, permanent := range codes {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(code)
			_, _ = w.Write([]byte(`{"error":{"message":"rejected","type":"invalid_request_error"}}`))
		}))

		client := openaiapi.NewClient(openaiapi.Config{APIKey: "test-key", BaseURL: server.URL + "/v1/"})
		_, err := client.CreateJob(context.Background(), finetune.JobRequest{Model: "babbage-002", TrainingFileId: "file-1"})
		server.Close()

		require.Error(t, err, "status %d", code)
		assert.Equal(t, permanent, openaiapi.IsPermanent(err), "status %d", code)
	}

	assert.False(t, openaiapi.IsPermanent(fmt.Errorf("dial tcp: connection refused")))
}
