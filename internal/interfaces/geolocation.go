package interfaces

import (
	"context"
	"fmt"

	"github.com/ternarybob/wayfinder/internal/models"
)

// PositionErrorCode mirrors the platform geolocation error codes
type PositionErrorCode int

const (
	PositionPermissionDenied PositionErrorCode = 1
	PositionUnavailable      PositionErrorCode = 2
	PositionTimeout          PositionErrorCode = 3
)

// PositionError is reported by the platform when a fix cannot be produced
type PositionError struct {
	Code    PositionErrorCode `json:"code"`
	Message string            `json:"message"`
}

func (e *PositionError) Error() string {
	return fmt.Sprintf("position error %d: %s", e.Code, e.Message)
}

// Position is one device fix
type Position struct {
	Coordinates models.Coordinates `json:"coordinates"`
	Accuracy    *float64           `json:"accuracy,omitempty"` // meters
	Timestamp   int64              `json:"timestamp"`          // epoch ms
}

// WatchID identifies an open location watch
type WatchID int64

// GeolocationProvider is the platform location capability
type GeolocationProvider interface {
	// GetCurrentPosition blocks until one fix arrives, the platform fails or ctx ends
	GetCurrentPosition(ctx context.Context) (Position, error)

	// WatchPosition subscribes to continuous fixes until ClearWatch is called.
	// Callbacks may run on any goroutine.
	WatchPosition(onPosition func(Position), onError func(error)) (WatchID, error)

	// ClearWatch releases the watch; after it returns no new callbacks start
	ClearWatch(id WatchID)
}
