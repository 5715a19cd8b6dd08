package finetune_test

import (
	"context"
	"fmt"
	"iter"
	"sync"

	"finetune-backend/internal/finetune"
)

type upload struct {
	data     []byte
	purpose  string
	filename string
}

type fakeFileStore struct {
	mu      sync.Mutex
	files   []finetune.RemoteFile
	uploads []upload
	lists     int
	listErr   error
	uploadErr error
}

func (f *fakeFileStore) ListFiles(ctx context.Context) ([]finetune.RemoteFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lists++
	if f.listErr != nil {
		return nil, f.listErr
	}
	return append([]finetune.RemoteFile(nil), f.files...), nil
}

func (f *fakeFileStore) UploadFile(ctx context.Context, data []byte, purpose, filename string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	id := fmt.Sprintf("file-%d", len(f.files)+1)
	f.files = append(f.files, finetune.RemoteFile{Id: id, Filename: filename})
	f.uploads = append(f.uploads, upload{data: data, purpose: purpose, filename: filename})
	return id, nil
}

type fakeJobService struct {
	mu        sync.Mutex
	requests  []finetune.JobRequest
	record    finetune.JobRecord
	gets      int
	events    []finetune.RemoteEvent
	streamed  int
	createErr error
}

func (f *fakeJobService) CreateJob(ctx context.Context, req finetune.JobRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.requests = append(f.requests, req)
	return fmt.Sprintf("ftjob-%d", len(f.requests)), nil
}

func (f *fakeJobService) GetJob(ctx context.Context, jobId string) (finetune.JobRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	record := f.record
	record.Id = jobId
	return record, nil
}

func (f *fakeJobService) ListEvents(ctx context.Context, jobId string) ([]finetune.RemoteEvent, error) {
	return f.events, nil
}

func (f *fakeJobService) StreamEvents(ctx context.Context, jobId string) iter.Seq2[finetune.RemoteEvent, error] {
	return func(yield func(finetune.RemoteEvent, error) bool) {
		for _, evt := range f.events {
			if ctx.Err() != nil {
				yield(finetune.RemoteEvent{}, ctx.Err())
				return
			}
			f.mu.Lock()
			f.streamed++
			f.mu.Unlock()
			if !yield(evt, nil) {
				return
			}
		}
	}
}

func (f *fakeJobService) setModel(status, model string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record.RawStatus = status
	f.record.FineTunedModel = model
}
