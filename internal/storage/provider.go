package storage

import (
	"context"
	"errors"
	"io"
)

var ErrObjectNotFound = errors.New("object not found")

type Object struct {
	Name string
	Size int64
}

type Provider interface {
	CreateBucket(ctx context.Context, bucket string) error

	// GetObject returns ErrObjectNotFound (possibly wrapped) if the key does not exist.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)

	PutObject(ctx context.Context, bucket, key string, data io.Reader) error

	DeleteObject(ctx context.Context, bucket, key string) error

	ListObjects(ctx context.Context, bucket, prefix string) ([]Object, error)
}
