package viewsync

import "github.com/ternarybob/wayfinder/internal/models"

const (
	selectedColor  = "#d93025"
	selectedScale  = 1.4
	selectedZIndex = 1000
)

// MarkerStyleFor is the marker look of a place. It depends only on category and selection.
func MarkerStyleFor(category models.Category, selected bool) models.MarkerStyle {
	style := models.MarkerStyle{Scale: 1, ZIndex: 1}
	switch category {
	case models.CategoryRestaurants:
		style.Icon, style.Color = "restaurant", "#f29900"
	case models.CategoryHotels:
		style.Icon, style.Color = "hotel", "#1a73e8"
	case models.CategoryParking:
		style.Icon, style.Color = "parking", "#188038"
	default:
		style.Icon, style.Color = "place", "#5f6368"
	}
	if selected {
		style.Color = selectedColor
		style.Scale = selectedScale
		style.ZIndex = selectedZIndex
	}
	return style
}
