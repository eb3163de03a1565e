package models

import (
	"fmt"
	"strings"
	"time"
)

// Category is the user-selected place category
type Category string

const (
	CategoryRestaurants Category = "restaurants"
	CategoryHotels      Category = "hotels"
	CategoryParking     Category = "parking"
)

// Categories lists every supported category in display order
var Categories = []Category{CategoryRestaurants, CategoryHotels, CategoryParking}

// Valid reports whether the category is one of the supported values
func (c Category) Valid() bool {
	switch c {
	case CategoryRestaurants, CategoryHotels, CategoryParking:
		return true
	}
	return false
}

// ProviderType returns the place type used by the place-data provider for this category
func (c Category) ProviderType() string {
	switch c {
	case CategoryRestaurants:
		return "restaurant"
	case CategoryHotels:
		return "lodging"
	case CategoryParking:
		return "parking"
	default:
		return ""
	}
}

// ParseCategory converts a user supplied string into a Category
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	if !c.Valid() {
		return "", fmt.Errorf("unsupported category %q", s)
	}
	return c, nil
}

// Review is a single user review attached to a place
type Review struct {
	AuthorName   string  `json:"author_name"`
	Rating       float64 `json:"rating"`
	Text         string  `json:"text"`
	Time         int64   `json:"time"` // epoch seconds
	RelativeTime string  `json:"relative_time,omitempty"`
}

// Place is a single point-of-interest search result.
// Distance is measured in meters from the active location and is always set by the search engine.
type Place struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Address      string       `json:"address"`
	Coordinates  Coordinates  `json:"coordinates"`
	Category     Category     `json:"category,omitempty"`
	Rating       float64      `json:"rating"`
	TotalReviews int          `json:"total_reviews"`
	PriceLevel   int          `json:"price_level,omitempty"` // 0 = unknown, otherwise 1-4
	PhotoURL     string       `json:"photo_url,omitempty"` // server-relative, see places.PhotoURL
	WebsiteURL   string       `json:"website_url,omitempty"`
	PhoneNumber  string       `json:"phone_number,omitempty"`
	OpeningHours []string     `json:"opening_hours,omitempty"`
	OpenNow      *bool        `json:"open_now,omitempty"`
	Types        []string     `json:"types,omitempty"`
	Features     []string     `json:"features,omitempty"`
	Reviews      []Review     `json:"reviews,omitempty"`
	AIAnalysis   *AIAnalysis  `json:"ai_analysis,omitempty"`
	Distance     float64      `json:"distance"`
}

// Photo is an image fetched from the place-data provider
type Photo struct {
	ContentType string
	Data        []byte
}

// HasFeature reports whether the place declares the given feature
func (p *Place) HasFeature(feature string) bool {
	for _, f := range p.Features {
		if strings.EqualFold(f, feature) {
			return true
		}
	}
	return false
}

// Clone returns a copy of the place that shares no slices with the original
func (p Place) Clone() Place {
	out := p
	out.OpeningHours = append([]string(nil), p.OpeningHours...)
	out.Types = append([]string(nil), p.Types...)
	out.Features = append([]string(nil), p.Features...)
	out.Reviews = append([]Review(nil), p.Reviews...)
	if p.OpenNow != nil {
		v := *p.OpenNow
		out.OpenNow = &v
	}
	if p.AIAnalysis != nil {
		a := p.AIAnalysis.Clone()
		out.AIAnalysis = &a
	}
	return out
}

// ClonePlaces copies a slice of places
func ClonePlaces(places []Place) []Place {
	if places == nil {
		return nil
	}
	out := make([]Place, len(places))
	for i := range places {
		out[i] = places[i].Clone()
	}
	return out
}

// SearchOptions are the provider-facing knobs of a search
type SearchOptions struct {
	Radius    int     `json:"radius" validate:"gte=100,lte=50000"` // meters
	Keyword   string  `json:"keyword,omitempty"`
	MinRating float64 `json:"min_rating,omitempty" validate:"gte=0,lte=5"`
}

// SearchParams identifies one logical search
type SearchParams struct {
	Category Category      `json:"category"`
	Location Coordinates   `json:"location"`
	Options  SearchOptions `json:"options"`
}

// Key returns the typed cache key for these parameters
func (p SearchParams) Key() SearchKey {
	return SearchKey{
		Category:  p.Category,
		Lat:       roundTo(p.Location.Lat, 4),
		Lng:       roundTo(p.Location.Lng, 4),
		Radius:    p.Options.Radius,
		Keyword:   strings.ToLower(strings.TrimSpace(p.Options.Keyword)),
		MinRating: p.Options.MinRating,
	}
}

// SearchKey is the typed cache key of a search (category + location + radius)
type SearchKey struct {
	Category  Category
	Lat       float64
	Lng       float64
	Radius    int
	Keyword   string
	MinRating float64
}

// String renders the key in a canonical form suitable for storage
func (k SearchKey) String() string {
	return fmt.Sprintf("search:%s:%.4f:%.4f:%d:%s:%.1f", k.Category, k.Lat, k.Lng, k.Radius, k.Keyword, k.MinRating)
}

// SearchResult is the committed outcome of one search
type SearchResult struct {
	ID           uint64        `json:"id"`
	Places       []Place       `json:"places"`
	TotalFound   int           `json:"total_found"`
	SearchParams SearchParams  `json:"search_params"`
	SearchTime   time.Duration `json:"search_time"`
	CompletedAt  time.Time     `json:"completed_at"`
	FromCache    bool          `json:"from_cache,omitempty"`
}

// SearchStats aggregates the currently filtered result set
type SearchStats struct {
	Count          int     `json:"count"`
	AverageRating  float64 `json:"average_rating"`
	AverageReviews float64 `json:"average_reviews"`
	TopRated       *Place  `json:"top_rated,omitempty"`
	MostReviewed   *Place  `json:"most_reviewed,omitempty"`
}
