package models

import (
	"fmt"
	"math"
)

// Coordinates is an immutable latitude/longitude pair in degrees
type Coordinates struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lng float64 `json:"lng" validate:"gte=-180,lte=180"`
}

// Valid reports whether the coordinates are within the WGS84 range
func (c Coordinates) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// String renders the coordinates as "lat,lng"
func (c Coordinates) String() string {
	return fmt.Sprintf("%.6f,%.6f", c.Lat, c.Lng)
}

// LocationSource identifies where the active location came from
type LocationSource string

const (
	LocationSourceGPS    LocationSource = "gps"
	LocationSourceManual LocationSource = "manual"
)

// UserLocation is one location fix or manual override.
// A UserLocation is replaced wholesale and never partially mutated.
type UserLocation struct {
	Current   Coordinates    `json:"current"`
	Accuracy  *float64       `json:"accuracy,omitempty"` // meters
	Timestamp int64          `json:"timestamp"`          // epoch ms
	Address   string         `json:"address,omitempty"`
	Source    LocationSource `json:"source"`
}

// Bounds is the rectangular viewport visible on the map
type Bounds struct {
	NorthEast Coordinates `json:"north_east"`
	SouthWest Coordinates `json:"south_west"`
}

// Center returns the midpoint of the bounds
func (b Bounds) Center() Coordinates {
	return Coordinates{
		Lat: (b.NorthEast.Lat + b.SouthWest.Lat) / 2,
		Lng: (b.NorthEast.Lng + b.SouthWest.Lng) / 2,
	}
}

func roundTo(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
