//go:build integration
// +build integration

package integrationtests

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"iter"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"finetune-backend/internal/completions"
	"finetune-backend/internal/database"
	"finetune-backend/internal/finetune"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/minio"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/gorm"
)

func createDB(t *testing.T) *gorm.DB {
	uri := setupPostgresContainer(t, context.Background())
	db, err := database.NewDatabase(uri)
	require.NoError(t, err)

	return db
}

func setupRabbitMQContainer(t *testing.T, ctx context.Context) string {
	rabbitmqContainer, err := rabbitmq.RunContainer(ctx,
		testcontainers.WithImage("rabbitmq:3.11-management"),
	)
	require.NoError(t, err, "Failed to start RabbitMQ container")

	t.Cleanup(func() {
		err := rabbitmqContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate RabbitMQ container")
	})

	connStr, err := rabbitmqContainer.AmqpURL(ctx)
	require.NoError(t, err, "Failed to get RabbitMQ AMQP URL")

	return connStr
}

const (
	minioUsername = "admin"
	minioPassword = "password"
)

func setupMinioContainer(t *testing.T, ctx context.Context) string {
	minioContainer, err := minio.Run(
		ctx,
		"minio/minio:RELEASE.2024-01-16T16-07-38Z",
		minio.WithUsername(minioUsername),
		minio.WithPassword(minioPassword),
	)
	require.NoError(t, err, "Failed to start MinIO container")

	t.Cleanup(func() {
		err := minioContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate MinIO container")
	})

	connStr, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err, "Failed to get MinIO connection string")

	return "http://" + connStr
}

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	dbName, dbUser, dbPassword := "test_db", "test_user", "test_password"

	postgresContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase(dbName),
		postgres.WithUsername(dbUser),
		postgres.WithPassword(dbPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err, "Failed to start PostgreSQL container")

	t.Cleanup(func() {
		err := postgresContainer.Terminate(context.Background())
		require.NoError(t, err, "Failed to terminate PostgreSQL container")
	})

	connStr, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "Failed to get PostgreSQL connection string")

	return connStr
}

func httpRequest(api http.Handler, method, endpoint string, payload any, dest any) error {
	var body io.Reader
	if payload != nil {
		requestBody, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(requestBody)
	}

	req := httptest.NewRequest(method, endpoint, body)
	req.Header.Set("Content-Type", "application/json")

	rr := httptest.NewRecorder()
	api.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		return fmt.Errorf("expected status code 200, got %d: %v", rr.Code, rr.Body.String())
	}

	if dest != nil {
		if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
			return fmt.Errorf("failed to unmarshal response: %w", err)
		}
	}

	return nil
}

// fakeRemote stands in for the hosted fine-tuning service. Jobs stay in
// validating_files until finish is called.
type fakeRemote struct {
	mu       sync.Mutex
	files    []finetune.RemoteFile
	uploads  map[string][]byte
	requests []finetune.JobRequest
	jobs     map[string]finetune.JobRecord
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		uploads: map[string][]byte{},
		jobs:    map[string]finetune.JobRecord{},
	}
}

func (r *fakeRemote) ListFiles(ctx context.Context) ([]finetune.RemoteFile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]finetune.RemoteFile(nil), r.files...), nil
}

func (r *fakeRemote) UploadFile(ctx context.Context, data []byte, purpose, filename string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	id := fmt.Sprintf("file-%d", len(r.files)+1)
	r.files = append(r.files, finetune.RemoteFile{Id: id, Filename: filename})
	r.uploads[id] = data
	return id, nil
}

func (r *fakeRemote) CreateJob(ctx context.Context, req finetune.JobRequest) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.requests = append(r.requests, req)
	id := fmt.Sprintf("ftjob-%d", len(r.requests))
	r.jobs[id] = finetune.JobRecord{Id: id, RawStatus: "validating_files"}
	return id, nil
}

func (r *fakeRemote) GetJob(ctx context.Context, jobId string) (finetune.JobRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.jobs[jobId]
	if !ok {
		return finetune.JobRecord{}, fmt.Errorf("job %s not found", jobId)
	}
	return record, nil
}

func (r *fakeRemote) ListEvents(ctx context.Context, jobId string) ([]finetune.RemoteEvent, error) {
	return []finetune.RemoteEvent{
		{Id: "evt-1", CreatedAt: time.Unix(1700000000, 0).UTC(), Level: "info", Message: "Validating training file"},
	}, nil
}

func (r *fakeRemote) StreamEvents(ctx context.Context, jobId string) iter.Seq2[finetune.RemoteEvent, error] {
	return func(yield func(finetune.RemoteEvent, error) bool) {
		events, _ := r.ListEvents(ctx, jobId)
		for _, e := range events {
			if !yield(e, nil) {
				return
			}
		}
	}
}

func (r *fakeRemote) finish(jobId, model string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[jobId] = finetune.JobRecord{Id: jobId, RawStatus: "succeeded", FineTunedModel: model}
}

func (r *fakeRemote) submitted() []finetune.JobRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]finetune.JobRequest(nil), r.requests...)
}

type fakeBackend struct {
	mu       sync.Mutex
	requests []completions.CompletionRequest
	text     string
}

func (b *fakeBackend) Complete(ctx context.Context, req completions.CompletionRequest) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, req)
	return b.text, nil
}

func (b *fakeBackend) ChatComplete(ctx context.Context, req completions.ChatRequest) (string, error) {
	return b.text, nil
}

func (b *fakeBackend) Embed(ctx context.Context, req completions.EmbeddingRequest) ([]float64, error) {
	return []float64{0.1, 0.2}, nil
}

func (b *fakeBackend) calls() []completions.CompletionRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]completions.CompletionRequest(nil), b.requests...)
}
