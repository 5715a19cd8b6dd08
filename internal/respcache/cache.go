package respcache

import (
	"context"

	"github.com/google/uuid"
)

// ResponseCache stores completion responses by request fingerprint. Put always
// overwrites; eviction and persistence are up to the implementation.
type ResponseCache interface {
	Put(ctx context.Context, key uuid.UUID, response string) error

	TryGet(ctx context.Context, key uuid.UUID) (string, bool, error)
}

// Clearer is implemented by caches that can drop every entry they hold.
type Clearer interface {
	Clear(ctx context.Context) error
}

// NopCache never stores anything. It stands in when no cache is configured.
type NopCache struct{}

func (NopCache) Put(ctx context.Context, key uuid.UUID, response string) error {
	return nil
}

func (NopCache) TryGet(ctx context.Context, key uuid.UUID) (string, bool, error) {
	return "", false, nil
}
