package finetune_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"finetune-backend/internal/finetune"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T {
	return &v
}

func threePairs() []finetune.TrainingPair {
	return []finetune.TrainingPair{
		{Prompt: "What is 2+2?", Completion: "4"},
		{Prompt: "Capital of France?", Completion: "Paris"},
		{Prompt: "Color of the sky?", Completion: "Blue"},
	}
}

func TestCreateFineTune(t *testing.T) {
	files, jobs := &fakeFileStore{}, &fakeJobService{}
	manager := finetune.NewManager(files, jobs, nil)

	job, err := manager.CreateFineTune(context.Background(), threePairs(), finetune.Settings{
		PromptSuffix:     ptr("\n\n###\n\n"),
		CompletionSuffix: ptr(" END"),
	})
	require.NoError(t, err)

	assert.Equal(t, "ftjob-1", job.Id)
	assert.Equal(t, "\n\n###\n\n", job.PromptSuffix)
	assert.Equal(t, " END", job.CompletionSuffix)

	require.Len(t, files.uploads, 1)
	require.Len(t, jobs.requests, 1)

	lines := strings.Split(strings.TrimSuffix(string(files.uploads[0].data), "\n"), "\n")
	assert.Equal(t, []string{
		`{"prompt":"What is 2+2?\n\n###\n\n","completion":"4 END"}`,
		`{"prompt":"Capital of France?\n\n###\n\n","completion":"Paris END"}`,
		`{"prompt":"Color of the sky?\n\n###\n\n","completion":"Blue END"}`,
	}, lines)

	req := jobs.requests[0]
	assert.Equal(t, finetune.DefaultModel, req.Model)
	assert.Equal(t, "file-1", req.TrainingFileId)
	assert.Empty(t, req.ValidationFileId)
}

func TestCreateFineTuneDefaults(t *testing.T) {
	files, jobs := &fakeFileStore{}, &fakeJobService{}
	manager := finetune.NewManager(files, jobs, nil)

	job, err := manager.CreateFineTune(context.Background(), threePairs(), finetune.Settings{
		Model:       "gpt-4.1-mini",
		Epochs:      ptr[int64](3),
		ModelSuffix: "support",
	})
	require.NoError(t, err)

	assert.Equal(t, finetune.DefaultPromptSuffix, job.PromptSuffix)
	assert.Equal(t, finetune.DefaultCompletionSuffix, job.CompletionSuffix)

	req := jobs.requests[0]
	assert.Equal(t, "gpt-4.1-mini", req.Model)
	assert.Equal(t, int64(3), *req.Epochs)
	assert.Nil(t, req.BatchSize)
	assert.Equal(t, "support", req.ModelSuffix)
}

func TestCreateFineTuneEmptySuffixes(t *testing.T) {
	files, jobs := &fakeFileStore{}, &fakeJobService{}
	manager := finetune.NewManager(files, jobs, nil)

	job, err := manager.CreateFineTune(context.Background(), threePairs()[:1], finetune.Settings{
		PromptSuffix:     ptr(""),
		CompletionSuffix: ptr(""),
	})
	require.NoError(t, err)

	assert.Equal(t, "", job.PromptSuffix)
	assert.Equal(t, "", job.CompletionSuffix)
	assert.Equal(t, "{\"prompt\":\"What is 2+2?\",\"completion\":\"4\"}\n", string(files.uploads[0].data))
}

func TestCreateFineTuneDeduplicatesAcrossCalls(t *testing.T) {
	files, jobs := &fakeFileStore{}, &fakeJobService{}
	manager := finetune.NewManager(files, jobs, nil)
	ctx := context.Background()

	job1, err := manager.CreateFineTune(ctx, threePairs(), finetune.Settings{})
	require.NoError(t, err)

	job2, err := manager.CreateFineTune(ctx, threePairs(), finetune.Settings{})
	require.NoError(t, err)

	assert.NotEqual(t, job1.Id, job2.Id)
	assert.Len(t, files.uploads, 1)
	require.Len(t, jobs.requests, 2)
	assert.Equal(t, jobs.requests[0].TrainingFileId, jobs.requests[1].TrainingFileId)
}

func TestCreateFineTuneWithValidation(t *testing.T) {
	files, jobs := &fakeFileStore{}, &fakeJobService{}
	manager := finetune.NewManager(files, jobs, nil)

	_, err := manager.CreateFineTune(context.Background(), threePairs(), finetune.Settings{
		ValidationData: []finetune.TrainingPair{{Prompt: "1+1?", Completion: "2"}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, files.lists)
	require.Len(t, files.uploads, 2)
	assert.Equal(t, "file-1", jobs.requests[0].TrainingFileId)
	assert.Equal(t, "file-2", jobs.requests[0].ValidationFileId)
}

func TestCreateFineTuneIdenticalValidationReusesUpload(t *testing.T) {
	files, jobs := &fakeFileStore{}, &fakeJobService{}
	manager := finetune.NewManager(files, jobs, nil)

	_, err := manager.CreateFineTune(context.Background(), threePairs(), finetune.Settings{
		ValidationData: threePairs(),
	})
	require.NoError(t, err)

	assert.Len(t, files.uploads, 1)
	assert.Equal(t, jobs.requests[0].TrainingFileId, jobs.requests[0].ValidationFileId)
}

func TestCreateFineTuneErrors(t *testing.T) {
	t.Run("NoTrainingData", func(t *testing.T) {
		files, jobs := &fakeFileStore{}, &fakeJobService{}
		_, err := finetune.NewManager(files, jobs, nil).CreateFineTune(context.Background(), nil, finetune.Settings{})
		assert.ErrorIs(t, err, finetune.ErrNoTrainingData)
		assert.Equal(t, 0, files.lists)
	})

	t.Run("CreateJobFails", func(t *testing.T) {
		createErr := errors.New("rate limited")
		files, jobs := &fakeFileStore{}, &fakeJobService{createErr: createErr}
		_, err := finetune.NewManager(files, jobs, nil).CreateFineTune(context.Background(), threePairs(), finetune.Settings{})
		assert.ErrorIs(t, err, createErr)
		assert.Len(t, files.uploads, 1)
	})

	t.Run("UploadFails", func(t *testing.T) {
		uploadErr := errors.New("file too large")
		files, jobs := &fakeFileStore{uploadErr: uploadErr}, &fakeJobService{}
		_, err := finetune.NewManager(files, jobs, nil).CreateFineTune(context.Background(), threePairs(), finetune.Settings{})
		assert.ErrorIs(t, err, uploadErr)
		assert.Empty(t, files.uploads)
		assert.Empty(t, jobs.requests)
	})

	t.Run("ValidationUploadFails", func(t *testing.T) {
		files, jobs := &fakeFileStore{}, &fakeJobService{}
		manager := finetune.NewManager(files, jobs, nil)

		_, err := manager.CreateFineTune(context.Background(), threePairs(), finetune.Settings{})
		require.NoError(t, err)

		uploadErr := errors.New("file too large")
		files.uploadErr = uploadErr
		_, err = manager.CreateFineTune(context.Background(), threePairs(), finetune.Settings{
			ValidationData: []finetune.TrainingPair{{Prompt: "Capital of Spain?", Completion: "Madrid"}},
		})
		assert.ErrorIs(t, err, uploadErr)
		assert.Len(t, jobs.requests, 1)
	})
}

func TestGetStatus(t *testing.T) {
	jobs := &fakeJobService{}
	manager := finetune.NewManager(&fakeFileStore{}, jobs, nil)
	job := finetune.Job{Id: "ftjob-1"}

	for raw, expected := range map[string]finetune.Status{
		"succeeded":          finetune.StatusSucceeded,
		"failed":             finetune.StatusFailed,
		"running":            finetune.StatusNotReady,
		"queued":             finetune.StatusNotReady,
		"validating_files":   finetune.StatusNotReady,
		"cancelled":          finetune.StatusNotReady,
		"":                   finetune.StatusNotReady,
		"SUCCEEDED":          finetune.StatusNotReady,
		"something-new-2030": finetune.StatusNotReady,
	} {
		jobs.setModel(raw, "")
		status, err := manager.GetStatus(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, expected, status, "raw status %q", raw)
	}
}

func TestGetProgress(t *testing.T) {
	jobs := &fakeJobService{}
	manager := finetune.NewManager(&fakeFileStore{}, jobs, nil)
	job := finetune.Job{Id: "ftjob-1"}

	for _, tc := range []struct {
		raw     string
		status  finetune.Status
		stopped bool
	}{
		{"running", finetune.StatusNotReady, false},
		{"succeeded", finetune.StatusSucceeded, true},
		{"failed", finetune.StatusFailed, true},
		{"cancelled", finetune.StatusNotReady, true},
	} {
		jobs.setModel(tc.raw, "")
		status, stopped, err := manager.GetProgress(context.Background(), job)
		require.NoError(t, err)
		assert.Equal(t, tc.status, status, "raw status %q", tc.raw)
		assert.Equal(t, tc.stopped, stopped, "raw status %q", tc.raw)
	}
}

func TestStatusText(t *testing.T) {
	for _, status := range []finetune.Status{finetune.StatusNotReady, finetune.StatusSucceeded, finetune.StatusFailed} {
		text, err := status.MarshalText()
		require.NoError(t, err)

		var parsed finetune.Status
		require.NoError(t, parsed.UnmarshalText(text))
		assert.Equal(t, status, parsed)
	}

	assert.False(t, finetune.StatusNotReady.Terminal())
	assert.True(t, finetune.StatusSucceeded.Terminal())
	assert.True(t, finetune.StatusFailed.Terminal())
}

func remoteEvents(messages ...string) []finetune.RemoteEvent {
	events := make([]finetune.RemoteEvent, 0, len(messages))
	for i, msg := range messages {
		events = append(events, finetune.RemoteEvent{
			CreatedAt: time.Unix(int64(1700000000+i), 0),
			Level:     "info",
			Message:   msg,
		})
	}
	return events
}

func messagesOf(events []finetune.Event) []string {
	out := make([]string, 0, len(events))
	for _, evt := range events {
		out = append(out, evt.Message)
	}
	return out
}

func TestGetEvents(t *testing.T) {
	jobs := &fakeJobService{events: remoteEvents("", "created", "", "completed")}
	manager := finetune.NewManager(&fakeFileStore{}, jobs, nil)

	events, err := manager.GetEvents(context.Background(), finetune.Job{Id: "ftjob-1"})
	require.NoError(t, err)
	assert.Equal(t, []string{"created", "completed"}, messagesOf(events))
	assert.Equal(t, time.Unix(1700000001, 0), events[0].CreatedAt)
}

func TestGetEventStream(t *testing.T) {
	jobs := &fakeJobService{events: remoteEvents("", "created", "", "completed")}
	manager := finetune.NewManager(&fakeFileStore{}, jobs, nil)
	job := finetune.Job{Id: "ftjob-1"}

	collect := func() []finetune.Event {
		var events []finetune.Event
		for evt, err := range manager.GetEventStream(context.Background(), job) {
			require.NoError(t, err)
			events = append(events, evt)
		}
		return events
	}

	assert.Equal(t, []string{"created", "completed"}, messagesOf(collect()))

	// each call starts over
	assert.Equal(t, []string{"created", "completed"}, messagesOf(collect()))
}

func TestGetEventStreamStopsWhenConsumerBreaks(t *testing.T) {
	jobs := &fakeJobService{events: remoteEvents("created", "running", "step 1", "step 2", "completed")}
	manager := finetune.NewManager(&fakeFileStore{}, jobs, nil)

	var seen []string
	for evt, err := range manager.GetEventStream(context.Background(), finetune.Job{Id: "ftjob-1"}) {
		require.NoError(t, err)
		seen = append(seen, evt.Message)
		if len(seen) == 2 {
			break
		}
	}

	assert.Equal(t, []string{"created", "running"}, seen)
	assert.Equal(t, 2, jobs.streamed)
}

func TestGetEventStreamCancelled(t *testing.T) {
	jobs := &fakeJobService{events: remoteEvents("created", "completed")}
	manager := finetune.NewManager(&fakeFileStore{}, jobs, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var errs []error
	for _, err := range manager.GetEventStream(ctx, finetune.Job{Id: "ftjob-1"}) {
		errs = append(errs, err)
	}
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], context.Canceled)
	assert.Equal(t, 0, jobs.streamed)
}

func TestTryResolveModelName(t *testing.T) {
	jobs := &fakeJobService{}
	manager := finetune.NewManager(&fakeFileStore{}, jobs, finetune.NewModelNameCache())
	job := finetune.Job{Id: "ftjob-1"}
	ctx := context.Background()

	jobs.setModel("running", "")
	name, found, err := manager.TryResolveModelName(ctx, job)
	require.NoError(t, err)
	assert.False(t, found)
	assert.Empty(t, name)

	// a miss is not cached
	jobs.setModel("succeeded", "ft:abc123")
	status, err := manager.GetStatus(ctx, job)
	require.NoError(t, err)
	assert.Equal(t, finetune.StatusSucceeded, status)

	name, found, err = manager.TryResolveModelName(ctx, job)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ft:abc123", name)
	gets := jobs.gets

	jobs.setModel("succeeded", "ft:something-else")
	name, found, err = manager.TryResolveModelName(ctx, job)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ft:abc123", name)
	assert.Equal(t, gets, jobs.gets)
}

func TestTryResolveModelNameBeforeSucceeded(t *testing.T) {
	jobs := &fakeJobService{}
	manager := finetune.NewManager(&fakeFileStore{}, jobs, nil)
	job := finetune.Job{Id: "ftjob-1"}

	jobs.setModel("running", "ft:early")

	name, found, err := manager.TryResolveModelName(context.Background(), job)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ft:early", name)

	status, err := manager.GetStatus(context.Background(), job)
	require.NoError(t, err)
	assert.Equal(t, finetune.StatusNotReady, status)
}

func TestModelNameCacheWriteOnce(t *testing.T) {
	cache := finetune.NewModelNameCache()

	assert.Equal(t, "ft:first", cache.Store("ftjob-1", "ft:first"))
	assert.Equal(t, "ft:first", cache.Store("ftjob-1", "ft:second"))

	name, ok := cache.Get("ftjob-1")
	assert.True(t, ok)
	assert.Equal(t, "ft:first", name)

	_, ok = cache.Get("ftjob-2")
	assert.False(t, ok)
}

func TestModelNameCacheLaterStoreKeepsExisting(t *testing.T) {
	cache := finetune.NewModelNameCache()
	cache.Store("ftjob-1", "ft:resolved")

	for _, name := range []string{"ft:resolved", "ft:stale", ""} {
		assert.Equal(t, "ft:resolved", cache.Store("ftjob-1", name))
	}
	assert.Equal(t, 1, cache.Len())
}

func TestModelNameCacheConcurrentInsert(t *testing.T) {
	cache := finetune.NewModelNameCache()

	var wg sync.WaitGroup
	results := make([]string, 16)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = cache.Store("ftjob-1", "ft:model")
			if i%2 == 0 {
				cache.Store("ftjob-"+string(rune('a'+i)), "ft:other")
			}
		}(i)
	}
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, "ft:model", r)
	}
	assert.Equal(t, 9, cache.Len())
}

func TestSharedModelNameCache(t *testing.T) {
	cache := finetune.NewModelNameCache()
	jobs := &fakeJobService{}
	jobs.setModel("succeeded", "ft:shared")

	first := finetune.NewManager(&fakeFileStore{}, jobs, cache)
	second := finetune.NewManager(&fakeFileStore{}, jobs, cache)

	_, found, err := first.TryResolveModelName(context.Background(), finetune.Job{Id: "ftjob-1"})
	require.NoError(t, err)
	require.True(t, found)

	name, found, err := second.TryResolveModelName(context.Background(), finetune.Job{Id: "ftjob-1"})
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "ft:shared", name)
	assert.Equal(t, 1, jobs.gets)
}

func TestJobSuffixHelpers(t *testing.T) {
	job := finetune.Job{Id: "ftjob-1", PromptSuffix: "\n\n###\n\n", CompletionSuffix: " END"}

	assert.Equal(t, "hello\n\n###\n\n", job.FormatPrompt("hello"))
	assert.Equal(t, "world", job.TrimCompletion("world END trailing"))
	assert.Equal(t, "no suffix", job.TrimCompletion("no suffix"))
	assert.Equal(t, "as is", finetune.Job{}.TrimCompletion("as is"))
}
