package interfaces

import "context"

// EventType represents different event types in the system
type EventType string

const (
	EventLocationChanged   EventType = "location_changed"
	EventLocationFailed    EventType = "location_failed"
	EventSearchCompleted   EventType = "search_completed"
	EventSearchFailed      EventType = "search_failed"
	EventPlaceClassified   EventType = "place_classified"
	EventSelectionChanged  EventType = "selection_changed"
	EventBoundsChanged     EventType = "bounds_changed"
	EventNavigationChanged EventType = "navigation_changed"
	EventSessionClosed     EventType = "session_closed"
)

// Event represents a system event
type Event struct {
	Type      EventType
	SessionID string
	Payload   interface{}
}

// EventHandler is a function that handles events
type EventHandler func(ctx context.Context, event Event) error

// EventService manages pub/sub event bus
type EventService interface {
	// Subscribe to an event type
	Subscribe(eventType EventType, handler EventHandler) error

	// Unsubscribe from an event type
	Unsubscribe(eventType EventType, handler EventHandler) error

	// Publish an event to all subscribers
	Publish(ctx context.Context, event Event) error

	// PublishSync publishes event and waits for all handlers to complete
	PublishSync(ctx context.Context, event Event) error

	// Close shuts down the event service
	Close() error
}
