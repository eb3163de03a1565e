package navigation

import (
	"context"
	"errors"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
)

type watchCallbacks struct {
	onPosition func(interfaces.Position)
	onError    func(error)
}

// fakeGeo records watches so tests can drive and inspect them
type fakeGeo struct {
	mu       sync.Mutex
	nextID   interfaces.WatchID
	watches  map[interfaces.WatchID]watchCallbacks
	watchErr error
}

func newFakeGeo() *fakeGeo {
	return &fakeGeo{watches: make(map[interfaces.WatchID]watchCallbacks)}
}

func (g *fakeGeo) GetCurrentPosition(ctx context.Context) (interfaces.Position, error) {
	return interfaces.Position{}, errors.New("not used")
}

func (g *fakeGeo) WatchPosition(onPosition func(interfaces.Position), onError func(error)) (interfaces.WatchID, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.watchErr != nil {
		return 0, g.watchErr
	}
	g.nextID++
	g.watches[g.nextID] = watchCallbacks{onPosition: onPosition, onError: onError}
	return g.nextID, nil
}

func (g *fakeGeo) ClearWatch(id interfaces.WatchID) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.watches, id)
}

func (g *fakeGeo) open() []interfaces.WatchID {
	g.mu.Lock()
	defer g.mu.Unlock()
	ids := make([]interfaces.WatchID, 0, len(g.watches))
	for id := range g.watches {
		ids = append(ids, id)
	}
	return ids
}

func (g *fakeGeo) callbacks(id interfaces.WatchID) watchCallbacks {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.watches[id]
}

type fakeRouter struct {
	mu    sync.Mutex
	calls int
	err   error
	gate  chan struct{}
}

func (r *fakeRouter) Route(ctx context.Context, origin, destination models.Coordinates, mode models.TravelMode) (*models.Route, error) {
	r.mu.Lock()
	r.calls++
	err, gate := r.err, r.gate
	r.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &models.Route{
		Origin:      origin,
		Destination: destination,
		Mode:        mode,
		Distance:    1000,
		Polyline:    []models.Coordinates{origin, destination},
	}, nil
}

func (r *fakeRouter) setErr(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *fakeRouter) Calls() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}

type fakeSurface struct {
	mu       sync.Mutex
	route    *models.Route
	drawn    int
	notified []models.Notification
}

func (s *fakeSurface) RenderMarkers([]models.Marker) {}
func (s *fakeSurface) SetCamera(models.Camera)       {}

func (s *fakeSurface) DrawRoute(route *models.Route) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.route = route
	s.drawn++
}

func (s *fakeSurface) Notify(n models.Notification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notified = append(s.notified, n)
}

func (s *fakeSurface) current() *models.Route {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.route
}

func (s *fakeSurface) notifications() []models.Notification {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]models.Notification(nil), s.notified...)
}

type fakeCamera struct {
	mu      sync.Mutex
	centers []models.Coordinates
}

func (c *fakeCamera) CenterOn(coords models.Coordinates, zoom int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.centers = append(c.centers, coords)
}

type harness struct {
	machine *Machine
	geo     *fakeGeo
	router  *fakeRouter
	surface *fakeSurface
	camera  *fakeCamera
	wg      *sync.WaitGroup
	changes []models.NavigationState
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		geo:     newFakeGeo(),
		router:  &fakeRouter{},
		surface: &fakeSurface{},
		camera:  &fakeCamera{},
		wg:      &sync.WaitGroup{},
	}
	var mu sync.Mutex
	cfg := common.NewDefaultConfig().Routing
	h.machine = NewMachine(h.geo, h.router, h.surface, h.camera, &cfg, h.wg, func(s models.NavigationState) {
		mu.Lock()
		h.changes = append(h.changes, s)
		mu.Unlock()
	}, arbor.NewLogger())
	t.Cleanup(func() {
		h.machine.Close()
		h.wg.Wait()
	})
	return h
}

var (
	origin = &models.Coordinates{Lat: 44.4268, Lng: 26.1025}
	placeX = models.Place{ID: "X", Name: "Caru' cu Bere", Coordinates: models.Coordinates{Lat: 44.4316, Lng: 26.0991}}
	placeY = models.Place{ID: "Y", Name: "Athenee Palace", Coordinates: models.Coordinates{Lat: 44.4412, Lng: 26.0966}}
)

func assertInvariant(t *testing.T, s models.NavigationState) {
	t.Helper()
	assert.Equal(t, s.Mode != models.NavigationNone, s.DestinationPlaceID != "", "destination set iff mode != none: %+v", s)
}

func TestStartStatic(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.machine.StartStatic(context.Background(), placeX, origin))

	state := h.machine.State()
	assert.Equal(t, models.NavigationState{Mode: models.NavigationStatic, DestinationPlaceID: "X"}, state)
	assertInvariant(t, state)
	require.NotNil(t, h.surface.current())
	assert.Equal(t, placeX.Coordinates, h.surface.current().Destination)
	assert.Empty(t, h.geo.open(), "static navigation holds no watch")
}

func TestStart_RequiresLocation(t *testing.T) {
	h := newHarness(t)

	err := h.machine.StartStatic(context.Background(), placeX, nil)
	assert.ErrorIs(t, err, common.ErrInvalidLocation)

	err = h.machine.StartLive(context.Background(), placeX, &models.Coordinates{Lat: 200})
	assert.ErrorIs(t, err, common.ErrInvalidLocation)

	assert.Equal(t, models.NavigationNone, h.machine.State().Mode)
	assert.Zero(t, h.router.Calls())
}

func TestStartStatic_RouteFailure(t *testing.T) {
	h := newHarness(t)
	h.router.setErr(errors.New("no route"))

	err := h.machine.StartStatic(context.Background(), placeX, origin)
	assert.ErrorIs(t, err, common.ErrRouting)

	state := h.machine.State()
	assert.Equal(t, models.NavigationNone, state.Mode)
	assertInvariant(t, state)
	require.NotEmpty(t, h.surface.notifications())
	assert.Equal(t, string(common.ErrCodeRouting), h.surface.notifications()[0].Code)
}

func TestStartLive_TracksLocation(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.machine.StartLive(context.Background(), placeX, origin))
	assert.Equal(t, models.NavigationLive, h.machine.State().Mode)
	require.Len(t, h.geo.open(), 1)
	assert.True(t, h.machine.Watching())

	moved := models.Coordinates{Lat: 44.4290, Lng: 26.1010}
	h.geo.callbacks(h.geo.open()[0]).onPosition(interfaces.Position{Coordinates: moved})

	require.Eventually(t, func() bool {
		r := h.surface.current()
		return r != nil && r.Origin == moved
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, h.router.Calls())
	assert.Contains(t, h.camera.centers, moved)
}

func TestStop_ReleasesWatch(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.machine.StartLive(context.Background(), placeX, origin))
	id := h.geo.open()[0]
	cb := h.geo.callbacks(id)

	h.machine.Stop()

	state := h.machine.State()
	assert.Equal(t, models.NavigationState{Mode: models.NavigationNone}, state)
	assertInvariant(t, state)
	assert.Empty(t, h.geo.open(), "no leaked watch ids after stop")
	assert.False(t, h.machine.Watching())
	assert.Nil(t, h.surface.current())
	assert.Nil(t, h.machine.Route())

	// a late callback from the released watch changes nothing
	cb.onPosition(interfaces.Position{Coordinates: models.Coordinates{Lat: 1, Lng: 1}})
	cb.onError(errors.New("late"))
	h.wg.Wait()
	assert.Equal(t, models.NavigationNone, h.machine.State().Mode)
	assert.Equal(t, 1, h.router.Calls())
}

func TestScenarioC_LiveThenStaticElsewhere(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.machine.StartLive(context.Background(), placeX, origin))
	require.Len(t, h.geo.open(), 1)

	require.NoError(t, h.machine.StartStatic(context.Background(), placeY, origin))

	assert.Equal(t, models.NavigationState{Mode: models.NavigationStatic, DestinationPlaceID: "Y"}, h.machine.State())
	assert.Empty(t, h.geo.open(), "watch for X released")
	assert.Equal(t, placeY.Coordinates, h.surface.current().Destination)

	for _, s := range h.changes {
		assertInvariant(t, s)
	}
}

func TestSwitchDestination_RouteFailureKeepsCurrentNavigation(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.machine.StartLive(context.Background(), placeX, origin))
	lastRoute := h.machine.Route()
	watch := h.geo.open()
	require.Len(t, watch, 1)

	h.router.setErr(errors.New("no route"))
	err := h.machine.StartStatic(context.Background(), placeY, origin)
	assert.ErrorIs(t, err, common.ErrRouting)

	assert.Equal(t, models.NavigationState{Mode: models.NavigationLive, DestinationPlaceID: "X"}, h.machine.State())
	assert.Equal(t, watch, h.geo.open(), "watch for X still held")
	assert.True(t, h.machine.Watching())
	assert.Equal(t, lastRoute, h.machine.Route())
	assert.Equal(t, placeX.Coordinates, h.surface.current().Destination)

	// the kept live navigation still tracks location
	h.router.setErr(nil)
	moved := models.Coordinates{Lat: 44.4290, Lng: 26.1010}
	h.geo.callbacks(watch[0]).onPosition(interfaces.Position{Coordinates: moved})
	h.wg.Wait()
	assert.Equal(t, moved, h.surface.current().Origin)

	for _, s := range h.changes {
		assertInvariant(t, s)
		assert.NotEqual(t, models.NavigationNone, s.Mode)
	}
}

func TestWatchError_FallsBackToStatic(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.machine.StartLive(context.Background(), placeX, origin))
	lastRoute := h.machine.Route()
	id := h.geo.open()[0]

	h.geo.callbacks(id).onError(&interfaces.PositionError{Code: interfaces.PositionUnavailable})

	state := h.machine.State()
	assert.Equal(t, models.NavigationState{Mode: models.NavigationStatic, DestinationPlaceID: "X"}, state)
	assert.Empty(t, h.geo.open())
	assert.Equal(t, lastRoute, h.machine.Route())
	assert.NotNil(t, h.surface.current())

	notes := h.surface.notifications()
	require.NotEmpty(t, notes)
	assert.Equal(t, models.NotificationWarning, notes[len(notes)-1].Level)
	assert.Equal(t, string(common.ErrCodeGeolocationUnavailable), notes[len(notes)-1].Code)
}

func TestReroute_FailureKeepsLastRoute(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.machine.StartLive(context.Background(), placeX, origin))
	lastRoute := h.machine.Route()
	h.router.setErr(errors.New("upstream down"))

	h.geo.callbacks(h.geo.open()[0]).onPosition(interfaces.Position{Coordinates: models.Coordinates{Lat: 44.43, Lng: 26.1}})
	h.wg.Wait()

	assert.Equal(t, models.NavigationLive, h.machine.State().Mode)
	assert.Equal(t, lastRoute, h.machine.Route())
	assert.True(t, h.machine.Watching())
	notes := h.surface.notifications()
	require.NotEmpty(t, notes)
	assert.Equal(t, string(common.ErrCodeRouting), notes[len(notes)-1].Code)
}

func TestStartLive_IgnoresOutOfRangeFix(t *testing.T) {
	h := newHarness(t)

	require.NoError(t, h.machine.StartLive(context.Background(), placeX, origin))
	lastRoute := h.machine.Route()

	h.geo.callbacks(h.geo.open()[0]).onPosition(interfaces.Position{Coordinates: models.Coordinates{Lat: 123, Lng: 500}})
	h.wg.Wait()

	assert.Equal(t, 1, h.router.Calls())
	assert.Equal(t, lastRoute, h.machine.Route())
	assert.Equal(t, models.NavigationLive, h.machine.State().Mode)
}

func TestStartLive_WatchUnavailable(t *testing.T) {
	h := newHarness(t)
	h.geo.watchErr = &interfaces.PositionError{Code: interfaces.PositionPermissionDenied}

	require.NoError(t, h.machine.StartLive(context.Background(), placeX, origin))
	assert.Equal(t, models.NavigationState{Mode: models.NavigationStatic, DestinationPlaceID: "X"}, h.machine.State())
	assert.False(t, h.machine.Watching())
}

func TestStop_SupersedesInFlightStart(t *testing.T) {
	h := newHarness(t)
	h.router.gate = make(chan struct{})

	done := make(chan error, 1)
	go func() { done <- h.machine.StartLive(context.Background(), placeX, origin) }()

	require.Eventually(t, h.machine.Routing, time.Second, 5*time.Millisecond)
	h.machine.Stop()
	close(h.router.gate)

	assert.ErrorIs(t, <-done, ErrSuperseded)
	assert.Equal(t, models.NavigationNone, h.machine.State().Mode)
	assert.Empty(t, h.geo.open())
}

func TestViewState(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    models.NavigationState
		wantErr bool
	}{
		{"empty defaults to none", "", models.NavigationState{Mode: models.NavigationNone}, false},
		{"none", "nav=none", models.NavigationState{Mode: models.NavigationNone}, false},
		{"none ignores destination", "nav=none&destination=X", models.NavigationState{Mode: models.NavigationNone}, false},
		{"static", "nav=static&destination=X", models.NavigationState{Mode: models.NavigationStatic, DestinationPlaceID: "X"}, false},
		{"live", "nav=live&destination=ChIJ123", models.NavigationState{Mode: models.NavigationLive, DestinationPlaceID: "ChIJ123"}, false},
		{"live without destination", "nav=live", models.NavigationState{Mode: models.NavigationNone}, true},
		{"unknown mode", "nav=teleport&destination=X", models.NavigationState{Mode: models.NavigationNone}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := url.ParseQuery(tt.query)
			require.NoError(t, err)

			got, err := ParseViewState(values)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.want, got)
			assertInvariant(t, got)
		})
	}
}

func TestViewState_RoundTrip(t *testing.T) {
	for _, s := range []models.NavigationState{
		{Mode: models.NavigationNone},
		{Mode: models.NavigationStatic, DestinationPlaceID: "X"},
		{Mode: models.NavigationLive, DestinationPlaceID: "Y"},
	} {
		got, err := ParseViewState(EncodeViewState(s))
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, "nav=none", EncodeViewState(models.NavigationState{}).Encode())
}
