package badger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/timshannon/badgerhold/v4"
)

// geocodeRecord is the stored form of a geocode entry
type geocodeRecord struct {
	Key   string
	Entry interfaces.GeocodeEntry
	// CreatedAt is duplicated at top level so purge queries can filter on it
	CreatedAt time.Time
}

// GeocodeCache persists geocoding answers so repeated lookups survive restarts
type GeocodeCache struct {
	db     *BadgerDB
	logger arbor.ILogger
}

// NewGeocodeCache creates a new GeocodeCache instance
func NewGeocodeCache(db *BadgerDB, logger arbor.ILogger) interfaces.GeocodeCacheStorage {
	return &GeocodeCache{
		db:     db,
		logger: logger,
	}
}

func geocodeKey(direction interfaces.GeocodeDirection, input string) string {
	return "geocode:" + string(direction) + ":" + strings.ToLower(strings.TrimSpace(input))
}

// Get returns the cached entry or (nil, nil) on a miss
func (c *GeocodeCache) Get(ctx context.Context, direction interfaces.GeocodeDirection, input string) (*interfaces.GeocodeEntry, error) {
	var record geocodeRecord
	err := c.db.Store().Get(geocodeKey(direction, input), &record)
	if errors.Is(err, badgerhold.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read geocode cache: %w", err)
	}
	entry := record.Entry
	return &entry, nil
}

// Put stores an entry, stamping CreatedAt when unset
func (c *GeocodeCache) Put(ctx context.Context, entry *interfaces.GeocodeEntry) error {
	if entry == nil {
		return fmt.Errorf("geocode entry cannot be nil")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}
	key := geocodeKey(entry.Direction, entry.Input)
	record := geocodeRecord{Key: key, Entry: *entry, CreatedAt: entry.CreatedAt}
	if err := c.db.Store().Upsert(key, &record); err != nil {
		return fmt.Errorf("failed to write geocode cache: %w", err)
	}
	return nil
}

// Purge removes entries created before the cutoff
func (c *GeocodeCache) Purge(ctx context.Context, before time.Time) (int, error) {
	var stale []geocodeRecord
	if err := c.db.Store().Find(&stale, badgerhold.Where("CreatedAt").Lt(before)); err != nil {
		return 0, fmt.Errorf("failed to find stale geocode entries: %w", err)
	}

	removed := 0
	for _, record := range stale {
		if err := c.db.Store().Delete(record.Key, &geocodeRecord{}); err != nil {
			c.logger.Warn().Err(err).Str("key", record.Key).Msg("Failed to purge geocode entry")
			continue
		}
		removed++
	}
	return removed, nil
}
