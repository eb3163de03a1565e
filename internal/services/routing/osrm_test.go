package routing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/models"
)

const routeFixture = `{
  "code": "Ok",
  "routes": [{
    "distance": 1234.5,
    "duration": 300.2,
    "geometry": {"type": "LineString", "coordinates": [[26.1025, 44.4268], [26.1000, 44.4300], [26.0991, 44.4316]]},
    "legs": [{
      "summary": "Bulevardul Unirii",
      "distance": 1234.5,
      "duration": 300.2,
      "steps": [
        {"name": "Bulevardul Unirii", "distance": 800, "duration": 200, "maneuver": {"type": "depart", "location": [26.1025, 44.4268]}},
        {"name": "Strada Stavropoleos", "distance": 434.5, "duration": 100.2, "maneuver": {"type": "turn", "modifier": "left", "location": [26.1000, 44.4300]}},
        {"name": "", "distance": 0, "duration": 0, "maneuver": {"type": "arrive", "location": [26.0991, 44.4316]}}
      ]
    }]
  }]
}`

func newTestOSRM(t *testing.T, handler http.HandlerFunc) *OSRM {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := common.NewDefaultConfig().Routing
	cfg.BaseURL = server.URL
	cfg.RateLimit = 0
	return NewOSRM(&cfg, arbor.NewLogger())
}

func TestRoute(t *testing.T) {
	origin := models.Coordinates{Lat: 44.4268, Lng: 26.1025}
	destination := models.Coordinates{Lat: 44.4316, Lng: 26.0991}

	o := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/route/v1/foot/26.102500,44.426800;26.099100,44.431600", r.URL.Path)
		assert.Equal(t, "geojson", r.URL.Query().Get("geometries"))
		w.Write([]byte(routeFixture))
	})

	route, err := o.Route(context.Background(), origin, destination, models.TravelWalking)
	require.NoError(t, err)

	assert.Equal(t, 1234.5, route.Distance)
	assert.Equal(t, 300.2, route.Duration)
	assert.Equal(t, models.TravelWalking, route.Mode)
	require.Len(t, route.Polyline, 3)
	assert.Equal(t, origin, route.Polyline[0])
	require.Len(t, route.Legs, 1)
	require.Len(t, route.Legs[0].Steps, 3)
	assert.Equal(t, "Head onto Bulevardul Unirii", route.Legs[0].Steps[0].Instruction)
	assert.Equal(t, "Turn left onto Strada Stavropoleos", route.Legs[0].Steps[1].Instruction)
	assert.Equal(t, "Arrive at destination", route.Legs[0].Steps[2].Instruction)
}

func TestRoute_NoRoute(t *testing.T) {
	o := newTestOSRM(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"code":"NoRoute","message":"Impossible route between points"}`))
	})

	_, err := o.Route(context.Background(), models.Coordinates{}, models.Coordinates{Lat: 1, Lng: 1}, models.TravelDriving)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NoRoute")
}
