package badger

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
)

func setupTestManager(t *testing.T) interfaces.StorageManager {
	t.Helper()
	manager, err := NewManager(arbor.NewLogger(), &common.BadgerConfig{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { manager.Close() })
	return manager
}

func TestKVStorage_SetGetDelete(t *testing.T) {
	kv := setupTestManager(t).KeyValueStorage()
	ctx := context.Background()

	require.NoError(t, kv.Set(ctx, "Gemini_API_Key", "secret", "Gemini key"))

	value, err := kv.Get(ctx, "gemini_api_key")
	require.NoError(t, err)
	assert.Equal(t, "secret", value)

	pairs, err := kv.List(ctx)
	require.NoError(t, err)
	require.Len(t, pairs, 1)
	assert.Equal(t, "gemini_api_key", pairs[0].Key)
	assert.False(t, pairs[0].CreatedAt.IsZero())

	require.NoError(t, kv.Delete(ctx, "GEMINI_API_KEY"))
	_, err = kv.Get(ctx, "gemini_api_key")
	assert.ErrorIs(t, err, interfaces.ErrKeyNotFound)
	assert.ErrorIs(t, kv.Delete(ctx, "gemini_api_key"), interfaces.ErrKeyNotFound)
}

func TestGeocodeCache_RoundTripAndPurge(t *testing.T) {
	cache := setupTestManager(t).GeocodeCache()
	ctx := context.Background()

	miss, err := cache.Get(ctx, interfaces.GeocodeForward, "Piata Unirii, Bucuresti")
	require.NoError(t, err)
	assert.Nil(t, miss)

	old := &interfaces.GeocodeEntry{
		Direction:   interfaces.GeocodeForward,
		Input:       "Piata Unirii, Bucuresti",
		Coordinates: models.Coordinates{Lat: 44.4268, Lng: 26.1025},
		Address:     "Piata Unirii",
		CreatedAt:   time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, cache.Put(ctx, old))

	hit, err := cache.Get(ctx, interfaces.GeocodeForward, "  piata unirii, bucuresti ")
	require.NoError(t, err)
	require.NotNil(t, hit)
	assert.Equal(t, 44.4268, hit.Coordinates.Lat)

	reverse, err := cache.Get(ctx, interfaces.GeocodeReverse, "Piata Unirii, Bucuresti")
	require.NoError(t, err)
	assert.Nil(t, reverse)

	removed, err := cache.Purge(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	gone, err := cache.Get(ctx, interfaces.GeocodeForward, "Piata Unirii, Bucuresti")
	require.NoError(t, err)
	assert.Nil(t, gone)
}

func TestSearchCache_MaxAge(t *testing.T) {
	cache := setupTestManager(t).SearchCache()
	ctx := context.Background()

	key := models.SearchParams{
		Category: models.CategoryRestaurants,
		Location: models.Coordinates{Lat: 44.42681, Lng: 26.10249},
		Options:  models.SearchOptions{Radius: 2000},
	}.Key()

	require.NoError(t, cache.Put(ctx, key, []models.Place{{ID: "a", Name: "Caru' cu bere", Rating: 4.5}}))

	places, err := cache.Get(ctx, key, time.Minute)
	require.NoError(t, err)
	require.Len(t, places, 1)
	assert.Equal(t, "a", places[0].ID)

	// Nearby coordinates round to the same key
	sameKey := models.SearchParams{
		Category: models.CategoryRestaurants,
		Location: models.Coordinates{Lat: 44.42679, Lng: 26.10251},
		Options:  models.SearchOptions{Radius: 2000},
	}.Key()
	places, err = cache.Get(ctx, sameKey, time.Minute)
	require.NoError(t, err)
	assert.Len(t, places, 1)

	places, err = cache.Get(ctx, key, time.Nanosecond)
	require.NoError(t, err)
	assert.Nil(t, places)

	removed, err := cache.Purge(ctx, time.Now().Add(time.Second))
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
}

func TestManager_CompactInMemoryIsNoop(t *testing.T) {
	manager := setupTestManager(t)
	assert.NoError(t, manager.Compact())
}
