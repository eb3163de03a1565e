package models

// RatingRange bounds the accepted rating, inclusive on both ends
type RatingRange struct {
	Min float64 `json:"min" validate:"gte=0,lte=5"`
	Max float64 `json:"max" validate:"gte=0,lte=5,gtefield=Min"`
}

// DistanceRange bounds the distance from the active location.
// MaxKm of zero disables the clause.
type DistanceRange struct {
	MaxKm float64 `json:"max" validate:"gte=0"`
}

// PlaceFilters is a client-side predicate over an already fetched result set
type PlaceFilters struct {
	Rating     RatingRange   `json:"rating"`
	PriceLevel []int         `json:"price_level,omitempty" validate:"dive,gte=1,lte=4"`
	OpenNow    bool          `json:"open_now"`
	Distance   DistanceRange `json:"distance"`
	Features   []string      `json:"features,omitempty"`
}

// DefaultFilters accepts every place
func DefaultFilters() PlaceFilters {
	return PlaceFilters{
		Rating: RatingRange{Min: 0, Max: 5},
	}
}

// Clone returns a copy that shares no slices with the original
func (f PlaceFilters) Clone() PlaceFilters {
	out := f
	out.PriceLevel = append([]int(nil), f.PriceLevel...)
	out.Features = append([]string(nil), f.Features...)
	return out
}
