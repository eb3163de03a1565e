package session

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
	"github.com/ternarybob/wayfinder/internal/services/classify"
	"github.com/ternarybob/wayfinder/internal/services/location"
	"github.com/ternarybob/wayfinder/internal/services/navigation"
	"github.com/ternarybob/wayfinder/internal/services/places"
	"github.com/ternarybob/wayfinder/internal/services/viewsync"
)

var (
	// ErrInvalidSettings wraps every rejected settings update
	ErrInvalidSettings = errors.New("invalid settings")
	// ErrUnknownPlace is returned when a place id is neither in the results nor resolvable
	ErrUnknownPlace = errors.New("unknown place")
	// ErrInvalidViewState is returned when shareable view state cannot be parsed
	ErrInvalidViewState = errors.New("invalid view state")
)

// Settings are the user-editable inputs of a session
type Settings struct {
	Category  models.Category     `json:"category"`
	RadiusM   int                 `json:"radius_m" validate:"gte=100,lte=50000"`
	Keyword   string              `json:"keyword,omitempty" validate:"max=100"`
	MinRating float64             `json:"min_rating" validate:"gte=0,lte=5"`
	Filters   models.PlaceFilters `json:"filters"`
	AIEnabled bool                `json:"ai_enabled"`
}

// SettingsUpdate is a partial settings change; nil fields are left untouched
type SettingsUpdate struct {
	Category  *models.Category     `json:"category,omitempty"`
	RadiusM   *int                 `json:"radius_m,omitempty"`
	Keyword   *string              `json:"keyword,omitempty"`
	MinRating *float64             `json:"min_rating,omitempty"`
	Filters   *models.PlaceFilters `json:"filters,omitempty"`
	AIEnabled *bool                `json:"ai_enabled,omitempty"`
}

// Dependencies are the collaborators a session is built from. Caches, Geocoder, Events
// and Classifier may be nil; a nil Classifier selects the heuristic classifier.
type Dependencies struct {
	Places       interfaces.PlaceDataProvider
	Geocoder     interfaces.GeocodingProvider
	Router       interfaces.RoutingProvider
	Classifier   interfaces.ClassificationProvider
	Geolocation  interfaces.GeolocationProvider
	SearchCache  interfaces.SearchCacheStorage
	GeocodeCache interfaces.GeocodeCacheStorage
	Events       interfaces.EventService
}

// Session is one mounted places view. It owns the location, search, classification,
// view and navigation components and is the only path through which they interact.
type Session struct {
	id       string
	config   *common.Config
	places   interfaces.PlaceDataProvider
	events   interfaces.EventService
	validate *validator.Validate
	logger   arbor.ILogger

	surface  *surfaceProxy
	location *location.Service
	engine   *places.Engine
	enricher *classify.Enricher
	view     *viewsync.Coordinator
	nav      *navigation.Machine

	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	unsubscribe func()

	searchMu  sync.Mutex
	lifeMu    sync.Mutex
	closed    bool
	mountOnce sync.Once

	mu          sync.Mutex
	settings    Settings
	batchCancel context.CancelFunc
	pendingNav  *models.NavigationState
	searches    int
	createdAt   time.Time
	lastActive  time.Time
}

// New builds a session with settings defaulted from config. Call Mount to start it.
func New(id string, config *common.Config, deps Dependencies, logger arbor.ILogger) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()

	s := &Session{
		id:       id,
		config:   config,
		places:   deps.Places,
		events:   deps.Events,
		validate: validator.New(),
		logger:   logger,
		surface:  &surfaceProxy{},
		ctx:      ctx,
		cancel:   cancel,
		settings: Settings{
			Category:  models.Category(config.Search.DefaultCategory),
			RadiusM:   config.Search.DefaultRadiusM,
			Filters:   models.DefaultFilters(),
			AIEnabled: config.Classification.Enabled,
		},
		createdAt:  now,
		lastActive: now,
	}

	classifier := deps.Classifier
	if classifier == nil {
		classifier = classify.NewHeuristicProvider(config.Classification.FullConfidenceReviews)
	}

	s.location = location.NewService(deps.Geolocation, deps.Geocoder, deps.GeocodeCache, &config.Location, logger)
	s.engine = places.NewEngine(deps.Places, deps.SearchCache, &config.Search, logger)
	s.enricher = classify.NewEnricher(classifier, &config.Classification, logger)
	s.view = viewsync.NewCoordinator(s.surface, &config.Map, viewsync.Hooks{
		OnSelect:        s.onSelect,
		OnMapClick:      s.onMapClick,
		OnBoundsChanged: s.onBoundsChanged,
	}, logger)
	s.nav = navigation.NewMachine(deps.Geolocation, deps.Router, s.surface, s.view, &config.Routing, &s.wg, s.onNavigationChanged, logger)
	s.unsubscribe = s.location.Subscribe(s.onLocationChanged)

	return s
}

// ID returns the session id
func (s *Session) ID() string {
	return s.id
}

// Mount runs the first-mount policy: request GPS once when no location exists.
// Only the first call has an effect.
func (s *Session) Mount() {
	s.mountOnce.Do(s.mount)
}

func (s *Session) mount() {
	s.logger.Info().
		Str("session_id", s.id).
		Str("category", string(s.Settings().Category)).
		Msg("Session mounted")

	s.spawn("session.ensureLocation", func() {
		requested, err := s.location.EnsureLocation(s.ctx)
		if err != nil {
			s.locationFailed(err)
			return
		}
		if !requested && s.location.HasLocation() {
			s.triggerSearch()
		}
	})
}

// spawn runs fn tracked by the session wait group unless the session is closed
func (s *Session) spawn(name string, fn func()) bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	if s.closed {
		return false
	}
	common.SafeGoTracked(&s.wg, s.logger, name, fn)
	return true
}

// AttachSurface routes map output to surface and replays the current markers, route and camera
func (s *Session) AttachSurface(surface interfaces.MapSurface) {
	s.surface.attach(surface)
}

// DetachSurface stops routing output to surface if it is still the attached one
func (s *Session) DetachSurface(surface interfaces.MapSurface) {
	s.surface.detach(surface)
}

// MapEvents returns the handler for events coming from the map surface
func (s *Session) MapEvents() interfaces.MapEventHandler {
	return s.view
}

// Settings returns a copy of the current settings
func (s *Session) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.settings
	out.Filters = s.settings.Filters.Clone()
	return out
}

// UpdateSettings applies a partial change. Category, radius, keyword or minimum rating
// changes issue one new search; filter changes only re-derive the displayed set.
func (s *Session) UpdateSettings(update SettingsUpdate) error {
	s.mu.Lock()
	next := s.settings
	next.Filters = s.settings.Filters.Clone()

	if update.Category != nil {
		next.Category = *update.Category
	}
	if update.RadiusM != nil {
		next.RadiusM = *update.RadiusM
	}
	if update.Keyword != nil {
		next.Keyword = *update.Keyword
	}
	if update.MinRating != nil {
		next.MinRating = *update.MinRating
	}
	if update.Filters != nil {
		next.Filters = update.Filters.Clone()
	}
	if update.AIEnabled != nil {
		next.AIEnabled = *update.AIEnabled
	}

	if !next.Category.Valid() {
		s.mu.Unlock()
		return fmt.Errorf("%w: unsupported category %q", ErrInvalidSettings, next.Category)
	}
	if err := s.validate.Struct(next); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrInvalidSettings, err)
	}

	prev := s.settings
	refetch := next.Category != prev.Category ||
		next.RadiusM != prev.RadiusM ||
		next.Keyword != prev.Keyword ||
		next.MinRating != prev.MinRating
	aiChanged := next.AIEnabled != prev.AIEnabled

	s.settings = next
	if aiChanged && !next.AIEnabled {
		s.cancelBatchLocked()
	}
	s.mu.Unlock()

	s.logger.Debug().
		Str("session_id", s.id).
		Str("category", string(next.Category)).
		Int("radius_m", next.RadiusM).
		Bool("refetch", refetch).
		Bool("ai_enabled", next.AIEnabled).
		Msg("Settings updated")

	if aiChanged {
		s.enricher.SetEnabled(next.AIEnabled)
	}
	if update.Filters != nil {
		s.view.SetPlaces(s.engine.ApplyFilters(next.Filters))
	}
	if refetch {
		s.triggerSearch()
	} else if aiChanged && next.AIEnabled {
		if result := s.engine.Result(); result != nil {
			s.startBatch(result)
		}
	}
	return nil
}

// RetrySearch reissues the search for the current settings and location
func (s *Session) RetrySearch() {
	s.triggerSearch()
}

// triggerSearch decides the search parameters and reserves its commit slot on the
// caller's goroutine, so the last trigger is always the one that commits
func (s *Session) triggerSearch() {
	s.searchMu.Lock()
	defer s.searchMu.Unlock()

	loc, ok := s.location.Current()
	if !ok {
		s.logger.Debug().Str("session_id", s.id).Msg("No active location, search not issued")
		return
	}
	if s.Closed() {
		return
	}

	s.mu.Lock()
	settings := s.settings
	s.cancelBatchLocked()
	s.searches++
	s.mu.Unlock()

	params := models.SearchParams{
		Category: settings.Category,
		Location: loc.Current,
		Options: models.SearchOptions{
			Radius:    settings.RadiusM,
			Keyword:   settings.Keyword,
			MinRating: settings.MinRating,
		},
	}
	ticket := s.engine.Begin(s.ctx)

	if !s.spawn("session.search", func() { s.runSearch(ticket, params) }) {
		s.engine.Cancel()
	}
}

func (s *Session) runSearch(ticket *places.Ticket, params models.SearchParams) {
	result, err := s.engine.Execute(ticket, params)
	if errors.Is(err, places.ErrSuperseded) || s.ctx.Err() != nil {
		return
	}
	if err != nil {
		s.publish(interfaces.EventSearchFailed, map[string]interface{}{
			"code":  string(common.CodeOf(err)),
			"error": err.Error(),
		})
		s.surface.Notify(models.Notification{
			Level:   models.NotificationError,
			Code:    string(common.CodeOf(err)),
			Message: searchFailureMessage(err),
			Actions: []string{"retry"},
		})
		s.resumePending()
		return
	}

	s.view.SetPlaces(s.engine.Results())

	s.publish(interfaces.EventSearchCompleted, map[string]interface{}{
		"result_id":   result.ID,
		"category":    string(params.Category),
		"total_found": result.TotalFound,
		"returned":    len(result.Places),
		"from_cache":  result.FromCache,
	})

	if len(result.Places) == 0 {
		s.surface.Notify(models.Notification{
			Level:   models.NotificationInfo,
			Code:    string(common.ErrCodeNoResults),
			Message: fmt.Sprintf("No %s found within %d m", params.Category, params.Options.Radius),
		})
	}

	if s.enricher.Enabled() {
		s.startBatch(result)
	}

	s.resumePending()
}

func (s *Session) resumePending() {
	if err := s.resumeNavigation(s.ctx); err != nil {
		s.logger.Warn().Err(err).Str("session_id", s.id).Msg("Could not resume navigation")
	}
}

func searchFailureMessage(err error) string {
	switch common.CodeOf(err) {
	case common.ErrCodeNetwork:
		return "Could not reach the places service. Check your connection and retry."
	case common.ErrCodeInvalidLocation:
		return "Your location is not valid. Set a location to search."
	default:
		return "Place search failed. Previous results are kept."
	}
}

func (s *Session) startBatch(result *models.SearchResult) {
	ctx, cancel := context.WithCancel(s.ctx)

	s.mu.Lock()
	s.cancelBatchLocked()
	s.batchCancel = cancel
	s.mu.Unlock()

	resultID := result.ID
	batch := result.Places
	if !s.spawn("session.classifyBatch", func() {
		defer cancel()
		s.enricher.ClassifyBatch(ctx, batch, s.alreadyClassified, func(placeID string, analysis models.AIAnalysis) {
			s.applyAnalysis(resultID, placeID, analysis)
		})
	}) {
		cancel()
	}
}

// alreadyClassified reports whether placeID gained an analysis or left the committed
// results since its batch started
func (s *Session) alreadyClassified(placeID string) bool {
	place, ok := s.engine.Place(placeID)
	return !ok || place.AIAnalysis != nil
}

func (s *Session) cancelBatchLocked() {
	if s.batchCancel != nil {
		s.batchCancel()
		s.batchCancel = nil
	}
}

// applyAnalysis merges into the result set it was computed for; stale analyses are dropped
func (s *Session) applyAnalysis(resultID uint64, placeID string, analysis models.AIAnalysis) {
	if !s.engine.MergeAnalysis(resultID, placeID, analysis) {
		s.logger.Debug().
			Str("session_id", s.id).
			Str("place_id", placeID).
			Msg("Dropping analysis for superseded or classified place")
		return
	}
	if place, ok := s.engine.Place(placeID); ok {
		s.view.UpdatePlace(place)
	}
	s.publish(interfaces.EventPlaceClassified, map[string]interface{}{
		"place_id":       placeID,
		"classification": string(analysis.Classification),
		"confidence":     analysis.Confidence,
	})
}

// Select selects a place by id; an empty id clears the selection
func (s *Session) Select(placeID string) error {
	if err := s.view.Select(placeID); err != nil {
		return fmt.Errorf("%w: %v", ErrUnknownPlace, err)
	}
	if placeID == "" {
		s.publish(interfaces.EventSelectionChanged, map[string]interface{}{"place_id": ""})
	}
	return nil
}

// onSelect classifies the selected place on its own when it has no analysis yet
func (s *Session) onSelect(place models.Place) {
	s.publish(interfaces.EventSelectionChanged, map[string]interface{}{"place_id": place.ID})

	if place.AIAnalysis != nil || !s.enricher.Enabled() {
		return
	}
	resultID := s.engine.ResultID()
	s.spawn("session.classifySelected", func() {
		analysis, err := s.enricher.Classify(s.ctx, place)
		if err != nil {
			return
		}
		s.applyAnalysis(resultID, place.ID, *analysis)
	})
}

func (s *Session) onMapClick(coords models.Coordinates) {
	if _, err := s.location.SetManualLocation(coords, ""); err != nil {
		s.logger.Warn().Err(err).Str("session_id", s.id).Msg("Map click location rejected")
	}
}

func (s *Session) onBoundsChanged(camera models.Camera, bounds models.Bounds) {
	s.publish(interfaces.EventBoundsChanged, map[string]interface{}{
		"zoom":    camera.Zoom,
		"center":  camera.Center,
		"bounds":  bounds,
		"visible": len(s.view.VisiblePlaces(bounds)),
	})
}

func (s *Session) onLocationChanged(loc models.UserLocation) {
	s.engine.RecomputeDistances(loc.Current)
	s.view.SetPlaces(s.engine.Results())
	if s.view.SelectedID() == "" && !s.nav.Watching() {
		s.view.CenterOn(loc.Current, 0)
	}

	s.publish(interfaces.EventLocationChanged, map[string]interface{}{
		"location": loc.Current,
		"source":   string(loc.Source),
	})

	s.triggerSearch()
}

func (s *Session) locationFailed(err error) {
	code := common.CodeOf(err)
	message := "Your location is unavailable. Retry or enter a location manually."
	switch code {
	case common.ErrCodeGeolocationDenied:
		message = "Location permission was denied. Enter a location manually."
	case common.ErrCodeGeolocationTimeout:
		message = "Locating you took too long. Retry or enter a location manually."
	}

	s.publish(interfaces.EventLocationFailed, map[string]interface{}{
		"code":  string(code),
		"error": err.Error(),
	})
	s.surface.Notify(models.Notification{
		Level:   models.NotificationWarning,
		Code:    string(code),
		Message: message,
		Actions: []string{"retry", "manual"},
	})
}

// RequestLocation asks the device for a fresh GPS fix
func (s *Session) RequestLocation(ctx context.Context) (models.UserLocation, error) {
	s.Touch()
	loc, err := s.location.GetCurrentLocation(ctx)
	if err != nil {
		s.locationFailed(err)
	}
	return loc, err
}

// UseGPSLocation drops the manual override and requests a fresh GPS fix
func (s *Session) UseGPSLocation(ctx context.Context) (models.UserLocation, error) {
	s.Touch()
	loc, err := s.location.UseGPSLocation(ctx)
	if err != nil {
		s.locationFailed(err)
	}
	return loc, err
}

// SetManualLocation pins the active location
func (s *Session) SetManualLocation(coords models.Coordinates, address string) (models.UserLocation, error) {
	s.Touch()
	return s.location.SetManualLocation(coords, address)
}

// SetManualAddress geocodes address and pins the match as the active location
func (s *Session) SetManualAddress(ctx context.Context, address string) (models.UserLocation, error) {
	s.Touch()
	loc, err := s.location.SetManualAddress(ctx, address)
	if err != nil {
		s.surface.Notify(models.Notification{
			Level:   models.NotificationWarning,
			Code:    string(common.CodeOf(err)),
			Message: fmt.Sprintf("Could not find %q", address),
		})
	}
	return loc, err
}

// ReverseGeocode resolves coordinates to an address without touching the active location
func (s *Session) ReverseGeocode(ctx context.Context, coords models.Coordinates) (string, error) {
	return s.location.ReverseGeocode(ctx, coords)
}

// StartNavigation starts static or live navigation to placeID; mode none stops navigation
func (s *Session) StartNavigation(ctx context.Context, mode models.NavigationMode, placeID string) error {
	s.Touch()
	s.mu.Lock()
	s.pendingNav = nil
	s.mu.Unlock()

	if mode == models.NavigationNone {
		s.nav.Stop()
		return nil
	}
	place, err := s.lookupPlace(ctx, placeID)
	if err != nil {
		return err
	}
	return s.startNavigation(ctx, mode, place)
}

func (s *Session) startNavigation(ctx context.Context, mode models.NavigationMode, place models.Place) error {
	var origin *models.Coordinates
	if loc, ok := s.location.Current(); ok {
		c := loc.Current
		origin = &c
	}

	switch mode {
	case models.NavigationStatic:
		return s.nav.StartStatic(ctx, place, origin)
	case models.NavigationLive:
		return s.nav.StartLive(ctx, place, origin)
	}
	return fmt.Errorf("unknown navigation mode %q", mode)
}

// lookupPlace finds placeID in the committed results, falling back to a details fetch
func (s *Session) lookupPlace(ctx context.Context, placeID string) (models.Place, error) {
	if placeID == "" {
		return models.Place{}, fmt.Errorf("%w: empty id", ErrUnknownPlace)
	}
	if place, ok := s.engine.Place(placeID); ok {
		return place, nil
	}
	if s.places == nil {
		return models.Place{}, fmt.Errorf("%w: %s", ErrUnknownPlace, placeID)
	}
	place, err := s.places.GetDetails(ctx, placeID)
	if err != nil {
		return models.Place{}, fmt.Errorf("%w: %s: %v", ErrUnknownPlace, placeID, err)
	}
	return *place, nil
}

// StopNavigation ends navigation; the location watch is released before it returns
func (s *Session) StopNavigation() {
	s.Touch()
	s.mu.Lock()
	s.pendingNav = nil
	s.mu.Unlock()
	s.nav.Stop()
}

// Navigation returns the navigation state
func (s *Session) Navigation() models.NavigationState {
	return s.nav.State()
}

// ViewState encodes the navigation state as shareable query values
func (s *Session) ViewState() url.Values {
	s.mu.Lock()
	pending := s.pendingNav
	s.mu.Unlock()
	if pending != nil {
		return navigation.EncodeViewState(*pending)
	}
	return navigation.EncodeViewState(s.nav.State())
}

// RestoreViewState resumes the navigation encoded in values. When no location is known yet
// the navigation is kept pending and resumed once one arrives.
func (s *Session) RestoreViewState(ctx context.Context, values url.Values) error {
	state, err := navigation.ParseViewState(values)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidViewState, err)
	}
	if !state.Active() {
		s.StopNavigation()
		return nil
	}

	s.mu.Lock()
	s.pendingNav = &state
	s.mu.Unlock()

	return s.resumeNavigation(ctx)
}

func (s *Session) resumeNavigation(ctx context.Context) error {
	if !s.location.HasLocation() {
		return nil
	}

	s.mu.Lock()
	pending := s.pendingNav
	s.pendingNav = nil
	s.mu.Unlock()
	if pending == nil {
		return nil
	}

	place, err := s.lookupPlace(ctx, pending.DestinationPlaceID)
	if err != nil {
		s.surface.Notify(models.Notification{
			Level:   models.NotificationWarning,
			Code:    string(common.ErrCodeRouting),
			Message: "The saved destination is no longer available.",
		})
		return err
	}

	s.logger.Info().
		Str("session_id", s.id).
		Str("mode", string(pending.Mode)).
		Str("destination", pending.DestinationPlaceID).
		Msg("Resuming navigation from view state")

	return s.startNavigation(ctx, pending.Mode, place)
}

func (s *Session) onNavigationChanged(state models.NavigationState) {
	s.publish(interfaces.EventNavigationChanged, map[string]interface{}{
		"mode":        string(state.Mode),
		"destination": state.DestinationPlaceID,
	})
}

func (s *Session) publish(eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(s.ctx, interfaces.Event{
		Type:      eventType,
		SessionID: s.id,
		Payload:   payload,
	}); err != nil {
		s.logger.Debug().Err(err).Str("event", string(eventType)).Msg("Event publish failed")
	}
}

// Touch records user activity for idle expiry
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActive = time.Now()
	s.mu.Unlock()
}

// LastActive returns the time of the last recorded activity
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

// Searches returns how many searches the session has issued
func (s *Session) Searches() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.searches
}

// Wait blocks until background work started so far has finished
func (s *Session) Wait() {
	s.wg.Wait()
}

// Closed reports whether Close has been called
func (s *Session) Closed() bool {
	s.lifeMu.Lock()
	defer s.lifeMu.Unlock()
	return s.closed
}

// Close tears the session down: in-flight work is cancelled, the location watch is
// released and background goroutines are awaited
func (s *Session) Close() {
	s.lifeMu.Lock()
	if s.closed {
		s.lifeMu.Unlock()
		return
	}
	s.closed = true
	s.lifeMu.Unlock()

	s.unsubscribe()
	s.nav.Close()
	s.view.Close()
	s.engine.Cancel()
	s.cancel()
	s.wg.Wait()

	if s.events != nil {
		_ = s.events.Publish(context.Background(), interfaces.Event{
			Type:      interfaces.EventSessionClosed,
			SessionID: s.id,
		})
	}

	s.logger.Info().
		Str("session_id", s.id).
		Dur("lifetime", time.Since(s.createdAt)).
		Msg("Session closed")
}
