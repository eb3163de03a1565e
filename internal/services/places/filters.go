package places

import (
	"github.com/ternarybob/wayfinder/internal/models"
)

// normalizeFilters turns an unset rating range into the full 0-5 range
func normalizeFilters(f models.PlaceFilters) models.PlaceFilters {
	if f.Rating.Min == 0 && f.Rating.Max == 0 {
		f.Rating.Max = 5
	}
	return f
}

// Matches reports whether place satisfies every active clause of filters
func Matches(place *models.Place, filters models.PlaceFilters) bool {
	f := normalizeFilters(filters)

	if place.Rating < f.Rating.Min || place.Rating > f.Rating.Max {
		return false
	}

	if len(f.PriceLevel) > 0 {
		found := false
		for _, level := range f.PriceLevel {
			if place.PriceLevel == level {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.Distance.MaxKm > 0 && place.Distance > f.Distance.MaxKm*1000 {
		return false
	}

	for _, feature := range f.Features {
		if !place.HasFeature(feature) {
			return false
		}
	}

	// Only places the provider reports as closed are excluded; unknown state passes
	if f.OpenNow && place.OpenNow != nil && !*place.OpenNow {
		return false
	}

	return true
}

// FilterPlaces returns the places matching filters in their original relative order.
// The input slice is never modified.
func FilterPlaces(places []models.Place, filters models.PlaceFilters) []models.Place {
	out := make([]models.Place, 0, len(places))
	for i := range places {
		if Matches(&places[i], filters) {
			out = append(out, places[i].Clone())
		}
	}
	return out
}

// ComputeStats aggregates a filtered place set
func ComputeStats(places []models.Place) models.SearchStats {
	stats := models.SearchStats{Count: len(places)}
	if len(places) == 0 {
		return stats
	}

	var ratingSum float64
	var reviewSum int
	top, most := 0, 0
	for i := range places {
		ratingSum += places[i].Rating
		reviewSum += places[i].TotalReviews
		if places[i].Rating > places[top].Rating {
			top = i
		}
		if places[i].TotalReviews > places[most].TotalReviews {
			most = i
		}
	}

	topRated := places[top].Clone()
	mostReviewed := places[most].Clone()
	stats.AverageRating = ratingSum / float64(len(places))
	stats.AverageReviews = float64(reviewSum) / float64(len(places))
	stats.TopRated = &topRated
	stats.MostReviewed = &mostReviewed
	return stats
}
