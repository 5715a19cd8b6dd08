package worker_test

import (
	"context"
	"fmt"
	"iter"
	"sync"
	"testing"

	"finetune-backend/internal/database"
	"finetune-backend/internal/finetune"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func createDB(t *testing.T, create ...any) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{})
	require.NoError(t, err)

	require.NoError(t, database.GetMigrator(db).Migrate())

	for _, c := range create {
		require.NoError(t, db.Create(c).Error)
	}

	return db
}

type remote struct {
	mu        sync.Mutex
	files     []finetune.RemoteFile
	requests  []finetune.JobRequest
	createErr error
	// number of CreateJob calls that fail with createErr before succeeding;
	// zero means every call fails while createErr is set
	createFailures int
	jobs      map[string]finetune.JobRecord
	getErr    error
}

func newRemote() *remote {
	return &remote{jobs: map[string]finetune.JobRecord{}}
}

func (r *remote) ListFiles(ctx context.Context) ([]finetune.RemoteFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]finetune.RemoteFile(nil), r.files...), nil
}

func (r *remote) UploadFile(ctx context.Context, data []byte, purpose, filename string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("file-%d", len(r.files)+1)
	r.files = append(r.files, finetune.RemoteFile{Id: id, Filename: filename})
	return id, nil
}

func (r *remote) CreateJob(ctx context.Context, req finetune.JobRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		err := r.createErr
		if r.createFailures > 0 {
			r.createFailures--
			if r.createFailures == 0 {
				r.createErr = nil
			}
		}
		return "", err
	}
	r.requests = append(r.requests, req)
	id := fmt.Sprintf("ftjob-%d", len(r.requests))
	r.jobs[id] = finetune.JobRecord{Id: id, RawStatus: "validating_files"}
	return id, nil
}

func (r *remote) GetJob(ctx context.Context, jobId string) (finetune.JobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return finetune.JobRecord{}, r.getErr
	}
	return r.jobs[jobId], nil
}

func (r *remote) setJob(record finetune.JobRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[record.Id] = record
}

func (r *remote) ListEvents(ctx context.Context, jobId string) ([]finetune.RemoteEvent, error) {
	return nil, nil
}

func (r *remote) StreamEvents(ctx context.Context, jobId string) iter.Seq2[finetune.RemoteEvent, error] {
	return func(yield func(finetune.RemoteEvent, error) bool) {}
}

type fakeTask struct {
	queue    string
	payload  []byte
	acked    bool
	nacked   bool
	rejected bool
}

func (t *fakeTask) Type() string    { return t.queue }
func (t *fakeTask) Payload() []byte { return t.payload }

func (t *fakeTask) Ack() error {
	t.acked = true
	return nil
}

func (t *fakeTask) Nack() error {
	t.nacked = true
	return nil
}

func (t *fakeTask) Reject() error {
	t.rejected = true
	return nil
}
