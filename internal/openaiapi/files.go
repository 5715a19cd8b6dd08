package openaiapi

import (
	"bytes"
	"context"
	"fmt"

	"finetune-backend/internal/finetune"

	"github.com/openai/openai-go"
)

func (c *Client) ListFiles(ctx context.Context) ([]finetune.RemoteFile, error) {
	var files []finetune.RemoteFile

	iter := c.client.Files.ListAutoPaging(ctx, openai.FileListParams{})
	for iter.Next() {
		file := iter.Current()
		files = append(files, finetune.RemoteFile{Id: file.ID, Filename: file.Filename})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("error listing files: %w", err)
	}

	return files, nil
}

// namedReader sets the filename and content type of the multipart upload.
type namedReader struct {
	*bytes.Reader
	filename string
}

func (r namedReader) Filename() string {
	return r.filename
}

func (r namedReader) ContentType() string {
	return "application/jsonl"
}

func (c *Client) UploadFile(ctx context.Context, data []byte, purpose, filename string) (string, error) {
	file, err := c.client.Files.New(ctx, openai.FileNewParams{
		File:    namedReader{Reader: bytes.NewReader(data), filename: filename},
		Purpose: openai.FilePurpose(purpose),
	})
	if err != nil {
		return "", fmt.Errorf("error uploading file %s: %w", filename, err)
	}
	if file.ID == "" {
		return "", fmt.Errorf("upload of %s returned no file id", filename)
	}
	return file.ID, nil
}
