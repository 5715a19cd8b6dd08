package respcache

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"finetune-backend/internal/storage"

	"github.com/google/uuid"
)

// ObjectStoreCache writes one object per response under prefix in bucket.
type ObjectStoreCache struct {
	provider storage.Provider
	bucket   string
	prefix   string
}

func NewObjectStoreCache(ctx context.Context, provider storage.Provider, bucket, prefix string) (*ObjectStoreCache, error) {
	if err := provider.CreateBucket(ctx, bucket); err != nil {
		return nil, fmt.Errorf("error creating cache bucket: %w", err)
	}
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &ObjectStoreCache{provider: provider, bucket: bucket, prefix: prefix}, nil
}

func (c *ObjectStoreCache) objectKey(key uuid.UUID) string {
	return c.prefix + key.String()
}

func (c *ObjectStoreCache) Put(ctx context.Context, key uuid.UUID, response string) error {
	if err := c.provider.PutObject(ctx, c.bucket, c.objectKey(key), strings.NewReader(response)); err != nil {
		return fmt.Errorf("error storing response %s: %w", key, err)
	}
	return nil
}

func (c *ObjectStoreCache) TryGet(ctx context.Context, key uuid.UUID) (string, bool, error) {
	data, err := c.provider.GetObject(ctx, c.bucket, c.objectKey(key))
	if errors.Is(err, storage.ErrObjectNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading response %s: %w", key, err)
	}
	return string(data), true, nil
}

func (c *ObjectStoreCache) Clear(ctx context.Context) error {
	objects, err := c.provider.ListObjects(ctx, c.bucket, c.prefix)
	if err != nil {
		return fmt.Errorf("error listing cached responses: %w", err)
	}

	for _, obj := range objects {
		if err := c.provider.DeleteObject(ctx, c.bucket, obj.Name); err != nil {
			return fmt.Errorf("error deleting cached response %s: %w", obj.Name, err)
		}
	}
	return nil
}
