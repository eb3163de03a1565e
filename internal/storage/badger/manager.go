package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db      *BadgerDB
	kv      interfaces.KeyValueStorage
	geocode interfaces.GeocodeCacheStorage
	search  interfaces.SearchCacheStorage
	logger  arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := &Manager{
		db:      db,
		kv:      NewKVStorage(db, logger),
		geocode: NewGeocodeCache(db, logger),
		search:  NewSearchCache(db, logger),
		logger:  logger,
	}

	logger.Info().
		Bool("in_memory", config.InMemory).
		Str("path", config.Path).
		Msg("Badger storage manager initialized")

	return manager, nil
}

// KeyValueStorage returns the KeyValue storage interface
func (m *Manager) KeyValueStorage() interfaces.KeyValueStorage {
	return m.kv
}

// GeocodeCache returns the persistent geocode cache
func (m *Manager) GeocodeCache() interfaces.GeocodeCacheStorage {
	return m.geocode
}

// SearchCache returns the persistent search cache
func (m *Manager) SearchCache() interfaces.SearchCacheStorage {
	return m.search
}

// Compact reclaims value log space left behind by purged cache entries
func (m *Manager) Compact() error {
	n, err := m.db.CompactValueLog(0.5)
	if err != nil {
		return err
	}
	if n > 0 {
		m.logger.Debug().Int("files", n).Msg("Badger value log compacted")
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	return m.db.Close()
}
