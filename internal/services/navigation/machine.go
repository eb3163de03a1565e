package navigation

import (
	"context"
	"errors"
	"sync"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
)

// ErrSuperseded is returned when a newer start or stop replaced this navigation before it committed
var ErrSuperseded = errors.New("navigation superseded")

// Camera is the part of the view the machine recenters during live tracking
type Camera interface {
	CenterOn(coords models.Coordinates, zoom int)
}

// ChangeFunc observes every committed navigation state
type ChangeFunc func(state models.NavigationState)

// Machine is the none / static / live navigation state machine of one session.
// The destination is set if and only if the mode is not none, and a live location
// watch is held only while the mode is live.
type Machine struct {
	geo      interfaces.GeolocationProvider
	router   interfaces.RoutingProvider
	surface  interfaces.MapSurface
	camera   Camera
	config   *common.RoutingConfig
	wg       *sync.WaitGroup
	logger   arbor.ILogger
	onChange ChangeFunc

	mu         sync.Mutex
	state      models.NavigationState
	generation uint64
	watchID    interfaces.WatchID
	watching   bool
	route      *models.Route
	routing    int
	routeSeq   uint64
	startSeq   uint64
	closed     bool
}

// NewMachine creates an idle machine. wg tracks route recomputations spawned by the watch.
func NewMachine(
	geo interfaces.GeolocationProvider,
	router interfaces.RoutingProvider,
	surface interfaces.MapSurface,
	camera Camera,
	config *common.RoutingConfig,
	wg *sync.WaitGroup,
	onChange ChangeFunc,
	logger arbor.ILogger,
) *Machine {
	return &Machine{
		geo:      geo,
		router:   router,
		surface:  surface,
		camera:   camera,
		config:   config,
		wg:       wg,
		onChange: onChange,
		logger:   logger,
		state:    models.NavigationState{Mode: models.NavigationNone},
	}
}

// StartStatic shows one route from origin to place. Any running navigation is stopped first.
func (m *Machine) StartStatic(ctx context.Context, place models.Place, origin *models.Coordinates) error {
	_, err := m.start(ctx, models.NavigationStatic, place, origin)
	return err
}

// StartLive shows the route to place and keeps recomputing it from every location update
// until stopped. Any running navigation is stopped first.
func (m *Machine) StartLive(ctx context.Context, place models.Place, origin *models.Coordinates) error {
	gen, err := m.start(ctx, models.NavigationLive, place, origin)
	if err != nil {
		return err
	}

	id, err := m.geo.WatchPosition(
		func(pos interfaces.Position) { m.onPosition(gen, place, pos) },
		func(err error) { m.onWatchError(gen, err) },
	)

	m.mu.Lock()
	if gen != m.generation {
		m.mu.Unlock()
		if err == nil {
			m.geo.ClearWatch(id)
		}
		return ErrSuperseded
	}
	if err != nil {
		// no tracking possible, keep the computed route as a static one
		m.state.Mode = models.NavigationStatic
		state := m.state
		m.mu.Unlock()

		m.logger.Warn().Err(err).Str("destination", place.ID).Msg("Location watch unavailable, showing static route")
		m.surface.Notify(models.Notification{
			Level:   models.NotificationWarning,
			Code:    string(common.ErrCodeGeolocationUnavailable),
			Message: "Live tracking is unavailable. Showing the route from your last known location.",
		})
		m.changed(state)
		return nil
	}
	m.watchID = id
	m.watching = true
	m.mu.Unlock()

	m.logger.Info().
		Str("destination", place.ID).
		Int64("watch_id", int64(id)).
		Msg("Live navigation started")
	return nil
}

func (m *Machine) start(ctx context.Context, mode models.NavigationMode, place models.Place, origin *models.Coordinates) (uint64, error) {
	if origin == nil || !origin.Valid() {
		return 0, common.NewError(common.ErrCodeInvalidLocation, "navigation requires an active location", nil)
	}
	if place.ID == "" || !place.Coordinates.Valid() {
		return 0, common.NewError(common.ErrCodeInvalidLocation, "destination has no valid position", nil)
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrSuperseded
	}
	// the running navigation stays in place until the new route is ready
	m.startSeq++
	seq := m.startSeq
	m.routing++
	m.mu.Unlock()

	route, err := m.computeRoute(ctx, *origin, place.Coordinates)

	m.mu.Lock()
	m.routing--
	if seq != m.startSeq {
		m.mu.Unlock()
		return 0, ErrSuperseded
	}
	if err != nil {
		m.mu.Unlock()
		m.logger.Warn().Err(err).Str("destination", place.ID).Msg("Route computation failed")
		m.surface.Notify(models.Notification{
			Level:   models.NotificationError,
			Code:    string(common.ErrCodeRouting),
			Message: "Could not compute a route to " + place.Name,
			Actions: []string{"retry"},
		})
		return 0, err
	}

	m.resetLocked()
	gen := m.generation
	m.state = models.NavigationState{Mode: mode, DestinationPlaceID: place.ID}
	m.route = route
	state := m.state
	m.surface.DrawRoute(route)
	m.mu.Unlock()

	m.logger.Info().
		Str("mode", string(mode)).
		Str("destination", place.ID).
		Float64("distance_m", route.Distance).
		Msg("Navigation started")

	m.changed(state)
	return gen, nil
}

func (m *Machine) computeRoute(ctx context.Context, origin, destination models.Coordinates) (*models.Route, error) {
	routeCtx := ctx
	if m.config.Timeout > 0 {
		var cancel context.CancelFunc
		routeCtx, cancel = context.WithTimeout(ctx, m.config.Timeout)
		defer cancel()
	}
	route, err := m.router.Route(routeCtx, origin, destination, models.TravelMode(m.config.TravelMode))
	if err != nil {
		return nil, common.NewError(common.ErrCodeRouting, "route computation failed", err)
	}
	return route, nil
}

// resetLocked bumps the generation and releases the watch so callbacks of the previous
// navigation become no-ops. Starts still computing their route are superseded too.
func (m *Machine) resetLocked() {
	m.generation++
	m.startSeq++
	if m.watching {
		m.geo.ClearWatch(m.watchID)
		m.logger.Debug().Int64("watch_id", int64(m.watchID)).Msg("Location watch released")
	}
	m.watching = false
	m.watchID = 0
	m.route = nil
	m.state = models.NavigationState{Mode: models.NavigationNone}
}

// onPosition handles one fix of the watch opened for generation gen
func (m *Machine) onPosition(gen uint64, place models.Place, pos interfaces.Position) {
	if !pos.Coordinates.Valid() {
		m.logger.Debug().Str("position", pos.Coordinates.String()).Msg("Ignoring out-of-range watch fix")
		return
	}

	m.mu.Lock()
	if gen != m.generation || !m.watching {
		m.mu.Unlock()
		return
	}
	m.routeSeq++
	seq := m.routeSeq
	m.routing++
	m.mu.Unlock()

	m.camera.CenterOn(pos.Coordinates, 0)

	common.SafeGoTracked(m.wg, m.logger, "navigation.reroute", func() {
		route, err := m.computeRoute(context.Background(), pos.Coordinates, place.Coordinates)

		m.mu.Lock()
		defer m.mu.Unlock()
		m.routing--
		if gen != m.generation || seq != m.routeSeq {
			return
		}
		if err != nil {
			m.logger.Warn().Err(err).Str("destination", place.ID).Msg("Reroute failed, keeping last route")
			m.surface.Notify(models.Notification{
				Level:   models.NotificationWarning,
				Code:    string(common.ErrCodeRouting),
				Message: "Could not update the route. Showing the last known route.",
			})
			return
		}
		m.route = route
		m.surface.DrawRoute(route)
	})
}

// onWatchError falls back to the last route as a static navigation
func (m *Machine) onWatchError(gen uint64, err error) {
	m.mu.Lock()
	if gen != m.generation || !m.watching {
		m.mu.Unlock()
		return
	}
	m.geo.ClearWatch(m.watchID)
	m.watching = false
	m.watchID = 0
	m.state.Mode = models.NavigationStatic
	state := m.state
	if m.route != nil {
		m.surface.DrawRoute(m.route)
	}
	m.mu.Unlock()

	m.logger.Warn().
		Err(err).
		Str("destination", state.DestinationPlaceID).
		Msg("Location watch failed, falling back to static route")

	m.surface.Notify(models.Notification{
		Level:   models.NotificationWarning,
		Code:    string(common.CodeOf(mapWatchError(err))),
		Message: "Live tracking stopped. Showing the last route.",
		Actions: []string{"retry"},
	})
	m.changed(state)
}

func mapWatchError(err error) error {
	var posErr *interfaces.PositionError
	if errors.As(err, &posErr) {
		switch posErr.Code {
		case interfaces.PositionPermissionDenied:
			return common.ErrGeolocationDenied
		case interfaces.PositionTimeout:
			return common.ErrGeolocationTimeout
		}
	}
	return common.ErrGeolocationUnavailable
}

// Stop ends any navigation. The location watch is released before Stop returns.
func (m *Machine) Stop() {
	m.mu.Lock()
	wasActive := m.state.Active()
	m.resetLocked()
	m.mu.Unlock()

	if !wasActive {
		return
	}
	m.surface.DrawRoute(nil)
	m.logger.Info().Msg("Navigation stopped")
	m.changed(models.NavigationState{Mode: models.NavigationNone})
}

// Close stops navigation and makes later starts fail
func (m *Machine) Close() {
	m.mu.Lock()
	m.closed = true
	m.resetLocked()
	m.mu.Unlock()
}

// State returns the current navigation state
func (m *Machine) State() models.NavigationState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Route returns the displayed route, nil when idle
func (m *Machine) Route() *models.Route {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.route == nil {
		return nil
	}
	r := *m.route
	return &r
}

// Routing reports whether a route computation is in flight
func (m *Machine) Routing() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.routing > 0
}

// Watching reports whether a location watch is held
func (m *Machine) Watching() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watching
}

func (m *Machine) changed(state models.NavigationState) {
	if m.onChange != nil {
		m.onChange(state)
	}
}
