package models

// Camera is the map viewport center and zoom level
type Camera struct {
	Center Coordinates `json:"center"`
	Zoom   int         `json:"zoom"`
}

// MarkerStyle is the visual state of a marker
type MarkerStyle struct {
	Icon   string  `json:"icon"`
	Color  string  `json:"color"`
	Scale  float64 `json:"scale"`
	ZIndex int     `json:"z_index"`
}

// Marker is the map's representation of a place
type Marker struct {
	PlaceID  string      `json:"place_id"`
	Title    string      `json:"title"`
	Position Coordinates `json:"position"`
	Category Category    `json:"category"`
	Selected bool        `json:"selected"`
	Style    MarkerStyle `json:"style"`
}

// ListItem is one row of the result list
type ListItem struct {
	Place       Place `json:"place"`
	Highlighted bool  `json:"highlighted"`
}

// NotificationLevel is the severity of a user notification
type NotificationLevel string

const (
	NotificationInfo    NotificationLevel = "info"
	NotificationWarning NotificationLevel = "warning"
	NotificationError   NotificationLevel = "error"
)

// Notification is a user-visible message pushed to the map surface
type Notification struct {
	Level   NotificationLevel `json:"level"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message"`
	Actions []string          `json:"actions,omitempty"`
}
