package finetune

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"

	"finetune-backend/internal/metrics"
)

const (
	ManagedFileMarker = "openailib"
	managedFileExt    = "jsonl"
)

// ManagedFiles maps the content-addressed filename of every file this system
// uploaded to its remote file id.
type ManagedFiles map[string]string

// ContentFilename derives the remote filename of a dataset from its exact bytes.
func ContentFilename(data []byte) string {
	digest := sha1.Sum(data)
	return ManagedFileMarker + "." + hex.EncodeToString(digest[:]) + "." + managedFileExt
}

// LoadManagedFiles lists the remote store and keeps only the files carrying the
// namespace marker. It is rebuilt on every call since other processes may have
// uploaded files in the meantime.
func LoadManagedFiles(ctx context.Context, files FileStore) (ManagedFiles, error) {
	all, err := files.ListFiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing remote files: %w", err)
	}

	lookup := make(ManagedFiles)
	for _, file := range all {
		if strings.HasPrefix(file.Filename, ManagedFileMarker) {
			lookup[file.Filename] = file.Id
		}
	}
	return lookup, nil
}

type UploadManager struct {
	files FileStore
}

func NewUploadManager(files FileStore) *UploadManager {
	return &UploadManager{files: files}
}

// EnsureUploaded returns the id of a remote file holding exactly data, uploading
// it only when no managed file with the same content hash exists.
func (m *UploadManager) EnsureUploaded(ctx context.Context, data []byte, purpose string) (string, error) {
	lookup, err := LoadManagedFiles(ctx, m.files)
	if err != nil {
		return "", err
	}
	return m.ensureUploaded(ctx, data, purpose, lookup)
}

func (m *UploadManager) ensureUploaded(ctx context.Context, data []byte, purpose string, lookup ManagedFiles) (string, error) {
	filename := ContentFilename(data)

	if fileId, ok := lookup[filename]; ok {
		slog.Info("training data already uploaded", "filename", filename, "file_id", fileId)
		metrics.ObserveUpload(true)
		return fileId, nil
	}

	fileId, err := m.files.UploadFile(ctx, data, purpose, filename)
	if err != nil {
		return "", fmt.Errorf("error uploading %s: %w", filename, err)
	}

	// later datasets in the same call can reuse this upload
	lookup[filename] = fileId

	slog.Info("uploaded training data", "filename", filename, "file_id", fileId, "bytes", len(data))
	metrics.ObserveUpload(false)
	return fileId, nil
}
