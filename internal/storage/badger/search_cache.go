package badger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
	"github.com/timshannon/badgerhold/v4"
)

// searchRecord is the stored form of one provider answer
type searchRecord struct {
	Key       string
	Places    []models.Place
	CreatedAt time.Time
}

// SearchCache persists normalized provider results under the typed search key
type SearchCache struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewSearchCache creates a new SearchCache instance
func NewSearchCache(db *BadgerDB, logger arbor.ILogger) interfaces.SearchCacheStorage {
	return &SearchCache{
		db:     db,
		logger: logger,
	}
}

// Get returns places cached under key when younger than maxAge
func (c *SearchCache) Get(ctx context.Context, key models.SearchKey, maxAge time.Duration) ([]models.Place, error) {
	var record searchRecord
	err := c.db.Store().Get(key.String(), &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read search cache: %w", err)
	}

	if maxAge > 0 && time.Since(record.CreatedAt) > maxAge {
		c.logger.Debug().Str("key", key.String()).Msg("Search cache entry expired")
		return nil, nil
	}

	return models.ClonePlaces(record.Places), nil
}

// Put stores places under key. Place distances are relative to the search origin and stored as-is.
func (c *SearchCache) Put(ctx context.Context, key models.SearchKey, places []models.Place) error {
	record := searchRecord{
		Key:       key.String(),
		Places:    models.ClonePlaces(places),
		CreatedAt: time.Now(),
	}
	if err := c.db.Store().Upsert(record.Key, &record); err != nil {
		return fmt.Errorf("failed to write search cache: %w", err)
	}
	return nil
}

// Purge removes entries created before the cutoff
func (c *SearchCache) Purge(ctx context.Context, before time.Time) (int, error) {
	var stale []searchRecord
	if err := c.db.Store().Find(&stale, badgerhold.Where("CreatedAt").Lt(before)); err != nil {
		return 0, fmt.Errorf("failed to find stale search entries: %w", err)
	}

	removed := 0
	for _, record := range stale {
		if err := c.db.Store().Delete(record.Key, &searchRecord{}); err != nil {
			c.logger.Warn().Err(err).Str("key", record.Key).Msg("Failed to purge search entry")
			continue
		}
		removed++
	}
	return removed, nil
}
