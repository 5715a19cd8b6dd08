package respcache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"finetune-backend/internal/database"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DatabaseCache keeps responses in the cached_responses table so they survive
// restarts and are shared by every process using the same database.
type DatabaseCache struct {
	db *gorm.DB
}

func NewDatabaseCache(db *gorm.DB) *DatabaseCache {
	return &DatabaseCache{db: db}
}

func (c *DatabaseCache) Put(ctx context.Context, key uuid.UUID, response string) error {
	entry := database.CachedResponse{Fingerprint: key, Response: response, CreationTime: time.Now().UTC()}
	if err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "fingerprint"}},
		DoUpdates: clause.AssignmentColumns([]string{"response", "creation_time"}),
	}).Create(&entry).Error; err != nil {
		return fmt.Errorf("error storing response %s: %w", key, err)
	}
	return nil
}

func (c *DatabaseCache) TryGet(ctx context.Context, key uuid.UUID) (string, bool, error) {
	var entry database.CachedResponse
	err := c.db.WithContext(ctx).Where("fingerprint = ?", key).Take(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("error reading response %s: %w", key, err)
	}
	return entry.Response, true, nil
}

func (c *DatabaseCache) Clear(ctx context.Context) error {
	if err := c.db.WithContext(ctx).Where("1 = 1").Delete(&database.CachedResponse{}).Error; err != nil {
		return fmt.Errorf("error clearing cached responses: %w", err)
	}
	return nil
}
