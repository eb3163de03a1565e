package viewsync

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/asim/quadtree"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
)

// ErrUnknownPlace is returned when selecting an id that is not in the current place set
var ErrUnknownPlace = errors.New("place is not in the current result set")

// SelectHook runs after a place becomes selected
type SelectHook func(place models.Place)

// MapClickHook receives clicks on the map that hit no marker
type MapClickHook func(coords models.Coordinates)

// BoundsHook receives the settled viewport after camera movement stops
type BoundsHook func(camera models.Camera, bounds models.Bounds)

// Hooks are the session callbacks of a coordinator. Any may be nil.
type Hooks struct {
	OnSelect        SelectHook
	OnMapClick      MapClickHook
	OnBoundsChanged BoundsHook
}

// Coordinator owns the selected place id and derives list items and markers from it.
// Every change is pushed to the map surface so list and map never disagree.
type Coordinator struct {
	surface interfaces.MapSurface
	config  *common.MapConfig
	hooks   Hooks
	logger  arbor.ILogger

	mu         sync.Mutex
	places     []models.Place
	byID       map[string]int
	index      *quadtree.QuadTree
	selectedID string
	camera     models.Camera
	debounce   *time.Timer
	settleSeq  uint64
	closed     bool
}

var _ interfaces.MapEventHandler = (*Coordinator)(nil)

// NewCoordinator creates a coordinator pushing to surface
func NewCoordinator(surface interfaces.MapSurface, config *common.MapConfig, hooks Hooks, logger arbor.ILogger) *Coordinator {
	return &Coordinator{
		surface: surface,
		config:  config,
		hooks:   hooks,
		logger:  logger,
		byID:    make(map[string]int),
		index:   newIndex(),
		camera:  models.Camera{Zoom: config.DefaultZoom},
	}
}

func newIndex() *quadtree.QuadTree {
	center := quadtree.NewPoint(0, 0, nil)
	half := quadtree.NewPoint(90, 180, nil)
	return quadtree.New(quadtree.NewAABB(center, half), 0, nil)
}

// SetPlaces replaces the displayed place set. A selection that is no longer present is cleared.
func (c *Coordinator) SetPlaces(places []models.Place) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}

	c.places = models.ClonePlaces(places)
	c.byID = make(map[string]int, len(c.places))
	c.index = newIndex()
	for i := range c.places {
		p := &c.places[i]
		c.byID[p.ID] = i
		c.index.Insert(quadtree.NewPoint(p.Coordinates.Lat, p.Coordinates.Lng, p.ID))
	}

	if _, ok := c.byID[c.selectedID]; c.selectedID != "" && !ok {
		c.logger.Debug().Str("place_id", c.selectedID).Msg("Selected place left the result set, clearing selection")
		c.selectedID = ""
	}

	c.surface.RenderMarkers(c.markersLocked())
	c.mu.Unlock()
}

// Select makes id the selected place and recenters the camera on it. An empty id clears.
func (c *Coordinator) Select(id string) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}

	if id == "" {
		c.selectedID = ""
		c.surface.RenderMarkers(c.markersLocked())
		c.mu.Unlock()
		return nil
	}

	i, ok := c.byID[id]
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrUnknownPlace, id)
	}
	place := c.places[i].Clone()

	c.selectedID = id
	c.camera = models.Camera{Center: place.Coordinates, Zoom: c.config.SelectZoom}
	c.surface.RenderMarkers(c.markersLocked())
	c.surface.SetCamera(c.camera)
	c.mu.Unlock()

	c.logger.Debug().Str("place_id", id).Str("name", place.Name).Msg("Place selected")

	if c.hooks.OnSelect != nil {
		c.hooks.OnSelect(place)
	}
	return nil
}

// SelectedID returns the selected place id, empty when nothing is selected
func (c *Coordinator) SelectedID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selectedID
}

// Selected returns the selected place
func (c *Coordinator) Selected() (models.Place, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.byID[c.selectedID]
	if c.selectedID == "" || !ok {
		return models.Place{}, false
	}
	return c.places[i].Clone(), true
}

// Place looks up a displayed place by id
func (c *Coordinator) Place(id string) (models.Place, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i, ok := c.byID[id]
	if !ok {
		return models.Place{}, false
	}
	return c.places[i].Clone(), true
}

// UpdatePlace swaps in an enriched copy of a displayed place. Selection is untouched.
func (c *Coordinator) UpdatePlace(place models.Place) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	i, ok := c.byID[place.ID]
	if c.closed || !ok {
		return false
	}
	c.places[i] = place.Clone()
	c.surface.RenderMarkers(c.markersLocked())
	return true
}

// Markers derives the map markers from the place set and selection
func (c *Coordinator) Markers() []models.Marker {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.markersLocked()
}

func (c *Coordinator) markersLocked() []models.Marker {
	markers := make([]models.Marker, 0, len(c.places))
	for i := range c.places {
		p := &c.places[i]
		selected := p.ID == c.selectedID
		markers = append(markers, models.Marker{
			PlaceID:  p.ID,
			Title:    p.Name,
			Position: p.Coordinates,
			Category: p.Category,
			Selected: selected,
			Style:    MarkerStyleFor(p.Category, selected),
		})
	}
	return markers
}

// ListItems derives the result list from the same place set and selection as Markers
func (c *Coordinator) ListItems() []models.ListItem {
	c.mu.Lock()
	defer c.mu.Unlock()

	items := make([]models.ListItem, 0, len(c.places))
	for i := range c.places {
		items = append(items, models.ListItem{
			Place:       c.places[i].Clone(),
			Highlighted: c.places[i].ID == c.selectedID,
		})
	}
	return items
}

// Camera returns the last camera set or reported
func (c *Coordinator) Camera() models.Camera {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.camera
}

// CenterOn moves the camera to coords. zoom <= 0 keeps the current zoom.
func (c *Coordinator) CenterOn(coords models.Coordinates, zoom int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	if zoom <= 0 {
		zoom = c.camera.Zoom
	}
	c.camera = models.Camera{Center: coords, Zoom: zoom}
	c.surface.SetCamera(c.camera)
}

// VisiblePlaces returns the displayed places inside bounds
func (c *Coordinator) VisiblePlaces(bounds models.Bounds) []models.Place {
	c.mu.Lock()
	defer c.mu.Unlock()

	var boxes []models.Bounds
	if bounds.SouthWest.Lng > bounds.NorthEast.Lng {
		// viewport crosses the antimeridian
		boxes = []models.Bounds{
			{SouthWest: bounds.SouthWest, NorthEast: models.Coordinates{Lat: bounds.NorthEast.Lat, Lng: 180}},
			{SouthWest: models.Coordinates{Lat: bounds.SouthWest.Lat, Lng: -180}, NorthEast: bounds.NorthEast},
		}
	} else {
		boxes = []models.Bounds{bounds}
	}

	seen := make(map[string]bool)
	var out []models.Place
	for _, b := range boxes {
		center := b.Center()
		half := quadtree.NewPoint((b.NorthEast.Lat-b.SouthWest.Lat)/2+edgeSlack, (b.NorthEast.Lng-b.SouthWest.Lng)/2+edgeSlack, nil)
		for _, pt := range c.index.Search(quadtree.NewAABB(quadtree.NewPoint(center.Lat, center.Lng, nil), half)) {
			id, ok := pt.Data().(string)
			if !ok || seen[id] {
				continue
			}
			i, ok := c.byID[id]
			if !ok || !inside(c.places[i].Coordinates, b) {
				continue
			}
			seen[id] = true
			out = append(out, c.places[i].Clone())
		}
	}
	return out
}

// edgeSlack widens index queries so places exactly on the viewport edge are candidates
const edgeSlack = 1e-9

func inside(p models.Coordinates, b models.Bounds) bool {
	return p.Lat >= b.SouthWest.Lat && p.Lat <= b.NorthEast.Lat &&
		p.Lng >= b.SouthWest.Lng && p.Lng <= b.NorthEast.Lng
}

// OnMarkerClick selects the clicked place
func (c *Coordinator) OnMarkerClick(placeID string) {
	if err := c.Select(placeID); err != nil {
		c.logger.Warn().Err(err).Msg("Marker click ignored")
	}
}

// OnMapClick forwards clicks on empty map area to the map-click hook
func (c *Coordinator) OnMapClick(coords models.Coordinates) {
	if !coords.Valid() {
		c.logger.Warn().Str("coordinates", coords.String()).Msg("Map click outside valid range ignored")
		return
	}
	if c.hooks.OnMapClick != nil {
		c.hooks.OnMapClick(coords)
	}
}

// OnCameraChanged records the camera and reports the bounds once movement has settled
// for map.camera_debounce
func (c *Coordinator) OnCameraChanged(camera models.Camera, bounds models.Bounds) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}

	c.camera = camera
	c.settleSeq++
	seq := c.settleSeq
	if c.debounce != nil {
		c.debounce.Stop()
	}
	c.debounce = time.AfterFunc(c.config.CameraDebounce, func() {
		c.mu.Lock()
		stale := c.closed || seq != c.settleSeq
		c.mu.Unlock()
		if stale || c.hooks.OnBoundsChanged == nil {
			return
		}
		c.hooks.OnBoundsChanged(camera, bounds)
	})
}

// Close stops pending debounced work; later calls become no-ops
func (c *Coordinator) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	if c.debounce != nil {
		c.debounce.Stop()
		c.debounce = nil
	}
}
