package places

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/wayfinder/internal/models"
)

func TestHaversine_SymmetricAndZero(t *testing.T) {
	points := []models.Coordinates{
		{Lat: 44.4268, Lng: 26.1025},
		{Lat: 51.5074, Lng: -0.1278},
		{Lat: -33.8688, Lng: 151.2093},
		{Lat: 90, Lng: 0},
		{Lat: -90, Lng: 180},
		{Lat: 0, Lng: -180},
	}

	for _, a := range points {
		assert.Equal(t, 0.0, Haversine(a, a), "self distance of %s", a)
		for _, b := range points {
			assert.Equal(t, Haversine(a, b), Haversine(b, a), "%s <-> %s", a, b)
			assert.GreaterOrEqual(t, Haversine(a, b), 0.0)
		}
	}
}

func TestHaversine_KnownDistance(t *testing.T) {
	// Bucharest to London, roughly 2,090 km
	d := Haversine(models.Coordinates{Lat: 44.4268, Lng: 26.1025}, models.Coordinates{Lat: 51.5074, Lng: -0.1278})
	assert.InDelta(t, 2090000, d, 15000)

	// One degree of latitude on a 6,371 km sphere
	d = Haversine(models.Coordinates{Lat: 0, Lng: 0}, models.Coordinates{Lat: 1, Lng: 0})
	assert.InDelta(t, 111194.9, d, 1)
}

func TestSortPlaces(t *testing.T) {
	places := []models.Place{
		{ID: "far-4.0", Rating: 4.0, Distance: 900},
		{ID: "near-4.0", Rating: 4.0, Distance: 100},
		{ID: "4.1", Rating: 4.1, Distance: 1500},
		{ID: "4.8", Rating: 4.8, Distance: 2000},
		{ID: "4.85", Rating: 4.85, Distance: 50},
		{ID: "3.2", Rating: 3.2, Distance: 10},
	}

	SortPlaces(places)

	ids := make([]string, len(places))
	for i, p := range places {
		ids[i] = p.ID
	}
	assert.Equal(t, []string{"4.85", "4.8", "4.1", "near-4.0", "far-4.0", "3.2"}, ids)
	assertSorted(t, places)
}

func TestRatingsTied(t *testing.T) {
	assert.True(t, RatingsTied(4.0, 4.0))
	assert.True(t, RatingsTied(4.0, 4.05))
	assert.False(t, RatingsTied(4.1, 4.0))
	assert.False(t, RatingsTied(4.0, 4.2))
}

func TestFilterPlaces_RatingComposition(t *testing.T) {
	places := []models.Place{
		{ID: "a", Rating: 3.2},
		{ID: "b", Rating: 4.1},
		{ID: "c", Rating: 4.9},
		{ID: "d", Rating: 5.0},
	}
	original := models.ClonePlaces(places)

	filtered := FilterPlaces(places, models.PlaceFilters{Rating: models.RatingRange{Min: 4, Max: 5}})

	require.Len(t, filtered, 3)
	assert.Equal(t, 4.1, filtered[0].Rating)
	assert.Equal(t, 4.9, filtered[1].Rating)
	assert.Equal(t, 5.0, filtered[2].Rating)
	assert.Equal(t, original, places, "filtering must not mutate the fetched set")
}

func TestFilterPlaces_Clauses(t *testing.T) {
	open := true
	closed := false
	places := []models.Place{
		{ID: "cheap-open", Rating: 4.5, PriceLevel: 1, Distance: 500, OpenNow: &open, Features: []string{"takeout", "vegetarian"}},
		{ID: "pricey-closed", Rating: 4.6, PriceLevel: 4, Distance: 800, OpenNow: &closed, Features: []string{"reservable"}},
		{ID: "unknown", Rating: 4.0, Distance: 3500},
	}

	tests := []struct {
		name    string
		filters models.PlaceFilters
		want    []string
	}{
		{"default accepts all", models.DefaultFilters(), []string{"cheap-open", "pricey-closed", "unknown"}},
		{"zero value accepts all", models.PlaceFilters{}, []string{"cheap-open", "pricey-closed", "unknown"}},
		{"price set", models.PlaceFilters{PriceLevel: []int{1, 2}}, []string{"cheap-open"}},
		{"open now keeps unknown", models.PlaceFilters{OpenNow: true}, []string{"cheap-open", "unknown"}},
		{"distance km", models.PlaceFilters{Distance: models.DistanceRange{MaxKm: 1}}, []string{"cheap-open", "pricey-closed"}},
		{"features subset", models.PlaceFilters{Features: []string{"Takeout", "vegetarian"}}, []string{"cheap-open"}},
		{"and composition", models.PlaceFilters{Rating: models.RatingRange{Min: 4.55, Max: 5}, OpenNow: true}, []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := []string{}
			for _, p := range FilterPlaces(places, tt.filters) {
				got = append(got, p.ID)
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestComputeStats(t *testing.T) {
	stats := ComputeStats(nil)
	assert.Equal(t, 0, stats.Count)
	assert.Nil(t, stats.TopRated)

	stats = ComputeStats([]models.Place{
		{ID: "a", Rating: 4.0, TotalReviews: 100},
		{ID: "b", Rating: 5.0, TotalReviews: 10},
		{ID: "c", Rating: 3.0, TotalReviews: 400},
	})
	assert.Equal(t, 3, stats.Count)
	assert.InDelta(t, 4.0, stats.AverageRating, 1e-9)
	assert.InDelta(t, 170.0, stats.AverageReviews, 1e-9)
	require.NotNil(t, stats.TopRated)
	assert.Equal(t, "b", stats.TopRated.ID)
	require.NotNil(t, stats.MostReviewed)
	assert.Equal(t, "c", stats.MostReviewed.ID)
}

// assertSorted checks every adjacent pair against the ordering rule
func assertSorted(t *testing.T, places []models.Place) {
	t.Helper()
	for i := 1; i < len(places); i++ {
		a, b := places[i-1], places[i]
		if RatingsTied(a.Rating, b.Rating) {
			assert.LessOrEqual(t, a.Distance, b.Distance, "tie %s before %s", a.ID, b.ID)
		} else {
			assert.Greater(t, a.Rating, b.Rating, "%s before %s", a.ID, b.ID)
		}
	}
}
