package places

import (
	"github.com/golang/geo/s2"
	"github.com/ternarybob/wayfinder/internal/models"
)

// EarthRadiusMeters is the mean Earth radius used for great-circle distances
const EarthRadiusMeters = 6371000.0

// Haversine returns the great-circle distance between a and b in meters
func Haversine(a, b models.Coordinates) float64 {
	p1 := s2.LatLngFromDegrees(a.Lat, a.Lng)
	p2 := s2.LatLngFromDegrees(b.Lat, b.Lng)
	return p1.Distance(p2).Radians() * EarthRadiusMeters
}

// WithDistances sets Distance on every place relative to origin, in place
func WithDistances(places []models.Place, origin models.Coordinates) {
	for i := range places {
		places[i].Distance = Haversine(origin, places[i].Coordinates)
	}
}
