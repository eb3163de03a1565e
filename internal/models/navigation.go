package models

import "fmt"

// NavigationMode is the state of the navigation sub-machine
type NavigationMode string

const (
	NavigationNone   NavigationMode = "none"
	NavigationStatic NavigationMode = "static"
	NavigationLive   NavigationMode = "live"
)

// ParseNavigationMode parses the literal shareable value, defaulting to none
func ParseNavigationMode(s string) (NavigationMode, error) {
	switch NavigationMode(s) {
	case "", NavigationNone:
		return NavigationNone, nil
	case NavigationStatic:
		return NavigationStatic, nil
	case NavigationLive:
		return NavigationLive, nil
	}
	return NavigationNone, fmt.Errorf("unknown navigation mode %q", s)
}

// NavigationState is the process-wide navigation value of a session.
// DestinationPlaceID is set if and only if Mode is not none.
type NavigationState struct {
	Mode               NavigationMode `json:"mode"`
	DestinationPlaceID string         `json:"destination_place_id,omitempty"`
}

// Active reports whether a navigation is running
func (s NavigationState) Active() bool {
	return s.Mode != NavigationNone && s.Mode != ""
}

// TravelMode selects the routing profile
type TravelMode string

const (
	TravelDriving TravelMode = "driving"
	TravelWalking TravelMode = "walking"
	TravelCycling TravelMode = "cycling"
)

// RouteStep is one maneuver of a route leg
type RouteStep struct {
	Instruction string      `json:"instruction"`
	Distance    float64     `json:"distance"` // meters
	Duration    float64     `json:"duration"` // seconds
	Location    Coordinates `json:"location"`
}

// RouteLeg is the part of a route between two waypoints
type RouteLeg struct {
	Summary  string      `json:"summary,omitempty"`
	Distance float64     `json:"distance"`
	Duration float64     `json:"duration"`
	Steps    []RouteStep `json:"steps,omitempty"`
}

// Route is a computed path from origin to destination
type Route struct {
	Origin      Coordinates   `json:"origin"`
	Destination Coordinates   `json:"destination"`
	Mode        TravelMode    `json:"mode"`
	Legs        []RouteLeg    `json:"legs"`
	Distance    float64       `json:"distance"` // meters
	Duration    float64       `json:"duration"` // seconds
	Polyline    []Coordinates `json:"polyline"`
}
