package interfaces

import (
	"context"

	"github.com/ternarybob/wayfinder/internal/models"
)

// NearbySearchRequest is a provider-facing radius search
type NearbySearchRequest struct {
	Center   models.Coordinates
	Radius   int // meters
	Category models.Category
	Keyword  string
}

// PlaceDataProvider fetches raw place data and normalizes it into models.Place
type PlaceDataProvider interface {
	NearbySearch(ctx context.Context, req NearbySearchRequest) ([]models.Place, error)
	// GetDetails returns the place including reviews and opening hours
	GetDetails(ctx context.Context, placeID string) (*models.Place, error)
}

// PlacePhotoProvider fetches the photo behind a provider photo reference
type PlacePhotoProvider interface {
	GetPhoto(ctx context.Context, reference string, maxWidth int) (*models.Photo, error)
}

// GeocodingProvider resolves between addresses and coordinates.
// Forward also returns the provider's display name for the match.
type GeocodingProvider interface {
	Forward(ctx context.Context, address string) (models.Coordinates, string, error)
	Reverse(ctx context.Context, coords models.Coordinates) (string, error)
}

// RoutingProvider computes routes between two points
type RoutingProvider interface {
	Route(ctx context.Context, origin, destination models.Coordinates, mode models.TravelMode) (*models.Route, error)
}

// ClassificationProvider produces a quality analysis for one place
type ClassificationProvider interface {
	Name() string
	Classify(ctx context.Context, place models.Place) (*models.AIAnalysis, error)
}
