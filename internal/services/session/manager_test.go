package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/services/geolocation"
)

func newTestManager(t *testing.T, deps Dependencies) *Manager {
	t.Helper()
	m := NewManager(common.NewDefaultConfig(), deps, arbor.NewLogger())
	t.Cleanup(m.Stop)
	return m
}

func TestManager_CreateGetClose(t *testing.T) {
	m := newTestManager(t, Dependencies{Places: &fakePlaces{}, Router: &fakeRouter{}})

	s := m.Create()
	s.Wait()

	got, ok := m.Get(s.ID())
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Equal(t, 1, m.Count())

	device, ok := m.Device(s.ID())
	require.True(t, ok)
	assert.NotNil(t, device)

	assert.True(t, m.Close(s.ID()))
	assert.False(t, m.Close(s.ID()))
	assert.True(t, s.Closed())

	_, ok = m.Get(s.ID())
	assert.False(t, ok)
}

func TestManager_SharedGeolocationHasNoDevice(t *testing.T) {
	provider := &fakePlaces{places: samplePlaces()}
	m := newTestManager(t, Dependencies{
		Places:      provider,
		Router:      &fakeRouter{},
		Geolocation: geolocation.NewStatic(center),
	})

	s := m.Create()
	s.Wait()

	_, ok := m.Device(s.ID())
	assert.False(t, ok)
	assert.Equal(t, 1, provider.searchCount())
}

func TestManager_ReapIdle(t *testing.T) {
	m := newTestManager(t, Dependencies{Places: &fakePlaces{}, Router: &fakeRouter{}})

	stale := m.Create()
	fresh := m.Create()
	stale.Wait()
	fresh.Wait()

	cutoff := time.Now()
	fresh.Touch()

	assert.Equal(t, 1, m.reapIdle(cutoff))
	assert.True(t, stale.Closed())
	assert.False(t, fresh.Closed())
	assert.Equal(t, 1, m.Count())
}

func TestManager_Lookup(t *testing.T) {
	provider := &fakePlaces{places: samplePlaces()}
	m := newTestManager(t, Dependencies{
		Places:      provider,
		Router:      &fakeRouter{},
		Geolocation: geolocation.NewStatic(center),
	})
	s := m.Create()
	s.Wait()

	place, err := m.Lookup(context.Background(), "mid")
	require.NoError(t, err)
	assert.Equal(t, "Mid Grill", place.Name)

	_, err = m.Lookup(context.Background(), "missing")
	assert.Error(t, err)
}

func TestManager_StartRejectsBadSchedule(t *testing.T) {
	cfg := common.NewDefaultConfig()
	cfg.Session.MaintenanceSchedule = "not a schedule"
	m := NewManager(cfg, Dependencies{}, arbor.NewLogger())
	defer m.Stop()

	assert.Error(t, m.Start())
}

func TestManager_MaintainRunsAfterHooks(t *testing.T) {
	m := newTestManager(t, Dependencies{Places: &fakePlaces{}, Router: &fakeRouter{}})

	calls := 0
	m.AfterMaintenance(func() error {
		calls++
		return nil
	})
	m.AfterMaintenance(func() error {
		calls++
		return assert.AnError
	})

	m.maintain()
	m.maintain()

	assert.Equal(t, 4, calls)
}
