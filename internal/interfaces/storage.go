package interfaces

import (
	"context"
	"time"

	"github.com/ternarybob/wayfinder/internal/models"
)

// GeocodeDirection distinguishes forward and reverse geocode cache entries
type GeocodeDirection string

const (
	GeocodeForward GeocodeDirection = "forward"
	GeocodeReverse GeocodeDirection = "reverse"
)

// GeocodeEntry is one persisted geocoding answer
type GeocodeEntry struct {
	Direction   GeocodeDirection   `json:"direction"`
	Input       string             `json:"input"`
	Coordinates models.Coordinates `json:"coordinates"`
	Address     string             `json:"address"`
	CreatedAt   time.Time          `json:"created_at"`
}

// GeocodeCacheStorage persists geocoding results keyed by their normalized input
type GeocodeCacheStorage interface {
	// Get returns the cached entry, or (nil, nil) on a miss
	Get(ctx context.Context, direction GeocodeDirection, input string) (*GeocodeEntry, error)
	Put(ctx context.Context, entry *GeocodeEntry) error
	// Purge removes entries created before the cutoff and returns how many were removed
	Purge(ctx context.Context, before time.Time) (int, error)
}

// SearchCacheStorage persists normalized provider results keyed by the typed search key
type SearchCacheStorage interface {
	// Get returns places stored for key if younger than maxAge, or (nil, nil) on a miss
	Get(ctx context.Context, key models.SearchKey, maxAge time.Duration) ([]models.Place, error)
	Put(ctx context.Context, key models.SearchKey, places []models.Place) error
	Purge(ctx context.Context, before time.Time) (int, error)
}

// StorageManager - composite interface for all storage operations
type StorageManager interface {
	KeyValueStorage() KeyValueStorage
	GeocodeCache() GeocodeCacheStorage
	SearchCache() SearchCacheStorage
	// Compact reclaims space freed by cache purges
	Compact() error
	Close() error
}
