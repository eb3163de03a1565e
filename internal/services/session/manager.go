package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/models"
	"github.com/ternarybob/wayfinder/internal/services/geolocation"
)

// geocodeRetention bounds how long persisted geocoding answers are kept
const geocodeRetention = 30 * 24 * time.Hour

type entry struct {
	session *Session
	device  *geolocation.Device
}

// Manager owns the live sessions of the process and reaps idle ones on a cron schedule
type Manager struct {
	config *common.Config
	deps   Dependencies
	logger arbor.ILogger
	cron   *cron.Cron

	mu       sync.RWMutex
	sessions map[string]*entry
	running  bool
	after    []func() error
}

// NewManager creates a manager. When deps.Geolocation is nil every session gets its own
// device-backed provider fed by the attached map surface.
func NewManager(config *common.Config, deps Dependencies, logger arbor.ILogger) *Manager {
	return &Manager{
		config:   config,
		deps:     deps,
		logger:   logger,
		cron:     cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger))),
		sessions: make(map[string]*entry),
	}
}

// Start schedules maintenance
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return fmt.Errorf("session manager already running")
	}

	schedule := m.config.Session.MaintenanceSchedule
	if schedule == "" {
		schedule = "@every 5m"
	}
	if _, err := m.cron.AddFunc(schedule, m.maintain); err != nil {
		return fmt.Errorf("invalid maintenance schedule %q: %w", schedule, err)
	}
	m.cron.Start()
	m.running = true

	m.logger.Info().
		Str("schedule", schedule).
		Dur("idle_timeout", m.config.Session.IdleTimeout).
		Msg("Session maintenance scheduled")
	return nil
}

// AfterMaintenance registers fn to run at the end of every maintenance pass
func (m *Manager) AfterMaintenance(fn func() error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.after = append(m.after, fn)
}

// Create builds a new session. Sessions on the shared geolocation provider are mounted immediately.
func (m *Manager) Create() *Session {
	deps := m.deps
	var device *geolocation.Device
	if deps.Geolocation == nil {
		device = geolocation.NewDevice(m.logger)
		deps.Geolocation = device
	}

	s := New(common.NewSessionID(), m.config, deps, m.logger)

	m.mu.Lock()
	m.sessions[s.ID()] = &entry{session: s, device: device}
	count := len(m.sessions)
	m.mu.Unlock()

	m.logger.Info().Str("session_id", s.ID()).Int("sessions", count).Msg("Session created")

	// device-backed sessions mount once their map client attaches
	if device == nil {
		s.Mount()
	}
	return s
}

// Get returns the session with id and records activity on it
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	e, ok := m.sessions[id]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	e.session.Touch()
	return e.session, true
}

// Device returns the device-backed geolocation of session id, nil when the session
// uses a shared provider
func (m *Manager) Device(id string) (*geolocation.Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.sessions[id]
	if !ok || e.device == nil {
		return nil, false
	}
	return e.device, true
}

// Lookup resolves a place from any committed result set, falling back to the provider
func (m *Manager) Lookup(ctx context.Context, placeID string) (*models.Place, error) {
	m.mu.RLock()
	for _, e := range m.sessions {
		if p, ok := e.session.engine.Place(placeID); ok {
			m.mu.RUnlock()
			return &p, nil
		}
	}
	m.mu.RUnlock()

	if m.deps.Places == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlace, placeID)
	}
	place, err := m.deps.Places.GetDetails(ctx, placeID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownPlace, placeID, err)
	}
	return place, nil
}

// Count returns the number of live sessions
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Close tears down the session with id
func (m *Manager) Close(id string) bool {
	m.mu.Lock()
	e, ok := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if !ok {
		return false
	}
	closeEntry(e)
	return true
}

func closeEntry(e *entry) {
	if e.device != nil {
		e.device.Close()
	}
	e.session.Close()
}

// reapIdle closes sessions inactive since before cutoff
func (m *Manager) reapIdle(cutoff time.Time) int {
	var idle []*entry
	m.mu.Lock()
	for id, e := range m.sessions {
		if e.session.LastActive().Before(cutoff) {
			idle = append(idle, e)
			delete(m.sessions, id)
		}
	}
	m.mu.Unlock()

	for _, e := range idle {
		m.logger.Info().
			Str("session_id", e.session.ID()).
			Str("last_active", e.session.LastActive().Format(time.RFC3339)).
			Msg("Closing idle session")
		closeEntry(e)
	}
	return len(idle)
}

func (m *Manager) purgeCaches(ctx context.Context, now time.Time) {
	if m.deps.SearchCache != nil && m.config.Search.CacheTTL > 0 {
		n, err := m.deps.SearchCache.Purge(ctx, now.Add(-m.config.Search.CacheTTL))
		if err != nil {
			m.logger.Warn().Err(err).Msg("Search cache purge failed")
		} else if n > 0 {
			m.logger.Debug().Int("purged", n).Msg("Expired search cache entries purged")
		}
	}
	if m.deps.GeocodeCache != nil {
		n, err := m.deps.GeocodeCache.Purge(ctx, now.Add(-geocodeRetention))
		if err != nil {
			m.logger.Warn().Err(err).Msg("Geocode cache purge failed")
		} else if n > 0 {
			m.logger.Debug().Int("purged", n).Msg("Expired geocode cache entries purged")
		}
	}
}

func (m *Manager) maintain() {
	now := time.Now()
	reaped := 0
	if m.config.Session.IdleTimeout > 0 {
		reaped = m.reapIdle(now.Add(-m.config.Session.IdleTimeout))
	}
	m.purgeCaches(context.Background(), now)

	m.mu.RLock()
	after := append([]func() error(nil), m.after...)
	m.mu.RUnlock()
	for _, fn := range after {
		if err := fn(); err != nil {
			m.logger.Warn().Err(err).Msg("Post-maintenance task failed")
		}
	}

	m.logger.Debug().Int("reaped", reaped).Int("sessions", m.Count()).Msg("Session maintenance completed")
}

// Stop halts maintenance and closes every session
func (m *Manager) Stop() {
	m.mu.Lock()
	wasRunning := m.running
	m.running = false
	m.mu.Unlock()
	if wasRunning {
		<-m.cron.Stop().Done()
	}

	m.mu.Lock()
	all := make([]*entry, 0, len(m.sessions))
	for id, e := range m.sessions {
		all = append(all, e)
		delete(m.sessions, id)
	}
	m.mu.Unlock()

	for _, e := range all {
		closeEntry(e)
	}
	m.logger.Info().Int("closed", len(all)).Msg("Session manager stopped")
}
