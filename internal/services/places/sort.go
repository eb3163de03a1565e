package places

import (
	"math"
	"sort"

	"github.com/ternarybob/wayfinder/internal/models"
)

// ratingTieThreshold is the rating difference under which two places are ordered by distance.
// The epsilon keeps one-decimal ratings such as 4.1 and 4.0 from tying on float error.
const ratingTieThreshold = 0.1 - 1e-9

// RatingsTied reports whether two ratings are close enough to fall back to distance ordering
func RatingsTied(a, b float64) bool {
	return math.Abs(a-b) < ratingTieThreshold
}

// SortPlaces orders places by rating descending, breaking ties by distance ascending.
// Places with equal keys keep their provider order.
func SortPlaces(places []models.Place) {
	sort.SliceStable(places, func(i, j int) bool {
		a, b := places[i], places[j]
		if RatingsTied(a.Rating, b.Rating) {
			return a.Distance < b.Distance
		}
		return a.Rating > b.Rating
	})
}
