package interfaces

import (
	"github.com/ternarybob/wayfinder/internal/models"
)

// MapSurface is the rendering side of the map. Implementations must not block.
type MapSurface interface {
	RenderMarkers(markers []models.Marker)
	// DrawRoute draws the polyline of route; nil clears the current route
	DrawRoute(route *models.Route)
	SetCamera(camera models.Camera)
	Notify(notification models.Notification)
}

// MapEventHandler receives typed events emitted by the map surface
type MapEventHandler interface {
	OnMapClick(coords models.Coordinates)
	OnMarkerClick(placeID string)
	OnCameraChanged(camera models.Camera, bounds models.Bounds)
}
