package location

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
)

// Listener is notified with the active location after every replacement
type Listener func(models.UserLocation)

type forwardHit struct {
	coords  models.Coordinates
	address string
}

// Service is the single source of truth for the active user location of one session.
// A manual location supersedes the GPS fix until UseGPSLocation clears it.
type Service struct {
	geo      interfaces.GeolocationProvider
	geocoder interfaces.GeocodingProvider
	cache    interfaces.GeocodeCacheStorage
	config   *common.LocationConfig
	logger   arbor.ILogger

	mu            sync.RWMutex
	gps           *models.UserLocation
	manual        *models.UserLocation
	inflight      int
	lastErr       error
	autoRequested bool
	listeners     map[int]Listener
	nextListener  int

	notifyMu sync.Mutex

	memMu   sync.Mutex
	forward map[string]forwardHit
	reverse map[string]string
}

// NewService creates a location service. geocoder and cache may be nil.
func NewService(
	geo interfaces.GeolocationProvider,
	geocoder interfaces.GeocodingProvider,
	cache interfaces.GeocodeCacheStorage,
	config *common.LocationConfig,
	logger arbor.ILogger,
) *Service {
	return &Service{
		geo:       geo,
		geocoder:  geocoder,
		cache:     cache,
		config:    config,
		logger:    logger,
		listeners: make(map[int]Listener),
		forward:   make(map[string]forwardHit),
		reverse:   make(map[string]string),
	}
}

// GetCurrentLocation requests one GPS fix. On success the fix is cached as the GPS location;
// it only becomes active when no manual override is set.
func (s *Service) GetCurrentLocation(ctx context.Context) (models.UserLocation, error) {
	s.mu.Lock()
	s.inflight++
	s.mu.Unlock()

	fixCtx := ctx
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		fixCtx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	pos, err := s.geo.GetCurrentPosition(fixCtx)
	if err == nil && !pos.Coordinates.Valid() {
		err = &interfaces.PositionError{
			Code:    interfaces.PositionUnavailable,
			Message: fmt.Sprintf("device reported out-of-range coordinates %s", pos.Coordinates),
		}
	}

	s.mu.Lock()
	s.inflight--
	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			s.mu.Unlock()
			return models.UserLocation{}, ctx.Err()
		}
		mapped := mapPositionError(err)
		s.lastErr = mapped
		s.mu.Unlock()

		s.logger.Warn().
			Err(err).
			Str("code", string(common.CodeOf(mapped))).
			Msg("GPS location request failed")
		return models.UserLocation{}, mapped
	}

	if pos.Timestamp == 0 {
		pos.Timestamp = time.Now().UnixMilli()
	}
	loc := models.UserLocation{
		Current:   pos.Coordinates,
		Accuracy:  pos.Accuracy,
		Timestamp: pos.Timestamp,
		Source:    models.LocationSourceGPS,
	}
	s.gps = &loc
	s.lastErr = nil
	activeChanged := s.manual == nil
	s.mu.Unlock()

	s.logger.Info().
		Str("location", loc.Current.String()).
		Bool("active", activeChanged).
		Msg("GPS location acquired")

	if activeChanged {
		s.notify()
	}
	return loc, nil
}

func mapPositionError(err error) error {
	var posErr *interfaces.PositionError
	if errors.As(err, &posErr) {
		switch posErr.Code {
		case interfaces.PositionPermissionDenied:
			return common.NewError(common.ErrCodeGeolocationDenied, "location permission denied", err)
		case interfaces.PositionTimeout:
			return common.NewError(common.ErrCodeGeolocationTimeout, "location request timed out", err)
		}
		return common.NewError(common.ErrCodeGeolocationUnavailable, "location unavailable", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return common.NewError(common.ErrCodeGeolocationTimeout, "location request timed out", err)
	}
	return common.NewError(common.ErrCodeGeolocationUnavailable, "location unavailable", err)
}

// EnsureLocation requests a GPS fix when there is no location and none is loading.
// It fires at most once per service lifetime and never retries after a failure.
func (s *Service) EnsureLocation(ctx context.Context) (bool, error) {
	s.mu.Lock()
	if !s.config.AutoRequest || s.autoRequested || s.hasLocationLocked() || s.inflight > 0 {
		s.mu.Unlock()
		return false, nil
	}
	s.autoRequested = true
	s.mu.Unlock()

	s.logger.Debug().Msg("No location on mount, requesting GPS fix")
	_, err := s.GetCurrentLocation(ctx)
	return true, err
}

// SetManualLocation makes coords the active location, overriding GPS.
// It does not reverse geocode; address is stored as given.
func (s *Service) SetManualLocation(coords models.Coordinates, address string) (models.UserLocation, error) {
	if !coords.Valid() {
		return models.UserLocation{}, common.NewError(common.ErrCodeInvalidLocation,
			fmt.Sprintf("coordinates out of range: %s", coords), nil)
	}

	loc := models.UserLocation{
		Current:   coords,
		Timestamp: time.Now().UnixMilli(),
		Address:   address,
		Source:    models.LocationSourceManual,
	}

	s.mu.Lock()
	s.manual = &loc
	s.lastErr = nil
	s.mu.Unlock()

	s.logger.Info().
		Str("location", coords.String()).
		Str("address", address).
		Msg("Manual location set")

	s.notify()
	return loc, nil
}

// SetManualAddress geocodes address and sets the match as the manual location.
// A geocoding failure leaves the active location untouched.
func (s *Service) SetManualAddress(ctx context.Context, address string) (models.UserLocation, error) {
	hit, err := s.geocode(ctx, address)
	if err != nil {
		return models.UserLocation{}, err
	}
	display := hit.address
	if display == "" {
		display = strings.TrimSpace(address)
	}
	return s.SetManualLocation(hit.coords, display)
}

// UseGPSLocation clears the manual override and requests a fresh fix
func (s *Service) UseGPSLocation(ctx context.Context) (models.UserLocation, error) {
	s.mu.Lock()
	hadManual := s.manual != nil
	s.manual = nil
	fallback := s.gps != nil
	s.mu.Unlock()

	if hadManual && fallback {
		s.notify()
	}
	return s.GetCurrentLocation(ctx)
}

// Geocode resolves an address to coordinates
func (s *Service) Geocode(ctx context.Context, address string) (models.Coordinates, error) {
	hit, err := s.geocode(ctx, address)
	if err != nil {
		return models.Coordinates{}, err
	}
	return hit.coords, nil
}

func (s *Service) geocode(ctx context.Context, address string) (forwardHit, error) {
	key := normalizeAddress(address)
	if key == "" {
		return forwardHit{}, common.NewError(common.ErrCodeGeocoding, "address is required", nil)
	}

	s.memMu.Lock()
	hit, ok := s.forward[key]
	s.memMu.Unlock()
	if ok {
		return hit, nil
	}

	if entry := s.cachedEntry(ctx, interfaces.GeocodeForward, key); entry != nil {
		hit = forwardHit{coords: entry.Coordinates, address: entry.Address}
		s.memoForward(key, hit)
		return hit, nil
	}

	if s.geocoder == nil {
		return forwardHit{}, common.NewError(common.ErrCodeGeocoding, "geocoding is not configured", nil)
	}
	coords, display, err := s.geocoder.Forward(ctx, address)
	if err != nil {
		s.logger.Warn().Err(err).Str("address", address).Msg("Forward geocoding failed")
		return forwardHit{}, common.NewError(common.ErrCodeGeocoding, "could not resolve address", err)
	}

	hit = forwardHit{coords: coords, address: display}
	s.memoForward(key, hit)
	s.storeEntry(ctx, &interfaces.GeocodeEntry{
		Direction:   interfaces.GeocodeForward,
		Input:       key,
		Coordinates: coords,
		Address:     display,
		CreatedAt:   time.Now(),
	})
	return hit, nil
}

// ReverseGeocode resolves coordinates to a display address
func (s *Service) ReverseGeocode(ctx context.Context, coords models.Coordinates) (string, error) {
	if !coords.Valid() {
		return "", common.NewError(common.ErrCodeInvalidLocation, "coordinates out of range", nil)
	}
	key := reverseKey(coords)

	s.memMu.Lock()
	address, ok := s.reverse[key]
	s.memMu.Unlock()
	if ok {
		return address, nil
	}

	if entry := s.cachedEntry(ctx, interfaces.GeocodeReverse, key); entry != nil {
		s.memoReverse(key, entry.Address)
		return entry.Address, nil
	}

	if s.geocoder == nil {
		return "", common.NewError(common.ErrCodeGeocoding, "geocoding is not configured", nil)
	}
	address, err := s.geocoder.Reverse(ctx, coords)
	if err != nil {
		s.logger.Warn().Err(err).Str("coordinates", coords.String()).Msg("Reverse geocoding failed")
		return "", common.NewError(common.ErrCodeGeocoding, "could not resolve coordinates", err)
	}

	s.memoReverse(key, address)
	s.storeEntry(ctx, &interfaces.GeocodeEntry{
		Direction:   interfaces.GeocodeReverse,
		Input:       key,
		Coordinates: coords,
		Address:     address,
		CreatedAt:   time.Now(),
	})
	return address, nil
}

func (s *Service) memoForward(key string, hit forwardHit) {
	s.memMu.Lock()
	s.forward[key] = hit
	s.memMu.Unlock()
}

func (s *Service) memoReverse(key, address string) {
	s.memMu.Lock()
	s.reverse[key] = address
	s.memMu.Unlock()
}

func (s *Service) cachedEntry(ctx context.Context, direction interfaces.GeocodeDirection, key string) *interfaces.GeocodeEntry {
	if s.cache == nil {
		return nil
	}
	entry, err := s.cache.Get(ctx, direction, key)
	if err != nil {
		s.logger.Warn().Err(err).Str("input", key).Msg("Geocode cache read failed")
		return nil
	}
	return entry
}

func (s *Service) storeEntry(ctx context.Context, entry *interfaces.GeocodeEntry) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Put(ctx, entry); err != nil {
		s.logger.Warn().Err(err).Str("input", entry.Input).Msg("Geocode cache write failed")
	}
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.Join(strings.Fields(address), " "))
}

func reverseKey(c models.Coordinates) string {
	return fmt.Sprintf("%.5f,%.5f", c.Lat, c.Lng)
}

// Current returns the active location: manual if set, otherwise the last GPS fix
func (s *Service) Current() (models.UserLocation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.currentLocked()
}

func (s *Service) currentLocked() (models.UserLocation, bool) {
	if s.manual != nil {
		return *s.manual, true
	}
	if s.gps != nil {
		return *s.gps, true
	}
	return models.UserLocation{}, false
}

// HasLocation reports whether an active location exists
func (s *Service) HasLocation() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hasLocationLocked()
}

func (s *Service) hasLocationLocked() bool {
	return s.manual != nil || s.gps != nil
}

// IsManual reports whether the active location is a manual override
func (s *Service) IsManual() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.manual != nil
}

// Loading reports whether a GPS fix is in flight
func (s *Service) Loading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.inflight > 0
}

// LastError returns the error of the latest failed fix, cleared by the next success
func (s *Service) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// Subscribe registers l for active-location changes and returns its unsubscribe func
func (s *Service) Subscribe(l Listener) func() {
	s.mu.Lock()
	s.nextListener++
	id := s.nextListener
	s.listeners[id] = l
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		delete(s.listeners, id)
		s.mu.Unlock()
	}
}

// notify delivers the active location as of delivery time, so concurrent writers
// always leave listeners with the latest value last.
func (s *Service) notify() {
	s.notifyMu.Lock()
	defer s.notifyMu.Unlock()

	s.mu.RLock()
	loc, ok := s.currentLocked()
	listeners := make([]Listener, 0, len(s.listeners))
	for _, l := range s.listeners {
		listeners = append(listeners, l)
	}
	s.mu.RUnlock()

	if !ok {
		return
	}
	for _, l := range listeners {
		l(loc)
	}
}
