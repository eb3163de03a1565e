package geocoding

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

func newTestNominatim(t *testing.T, handler http.HandlerFunc) *Nominatim {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	cfg := common.NewDefaultConfig().Geocoding
	cfg.BaseURL = server.URL
	cfg.RateLimit = 0
	return NewNominatim(&cfg, arbor.NewLogger())
}

func TestForward(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		want    models.Coordinates
		wantErr error
	}{
		{
			name:    "string coordinates",
			payload: `[{"lat":"44.4268","lon":"26.1025","display_name":"Piata Unirii"}]`,
			want:    models.Coordinates{Lat: 44.4268, Lng: 26.1025},
		},
		{
			name:    "numeric coordinates",
			payload: `[{"lat":60.1699,"lon":24.9384,"display_name":"Helsinki"}]`,
			want:    models.Coordinates{Lat: 60.1699, Lng: 24.9384},
		},
		{
			name:    "no match",
			payload: `[]`,
			wantErr: ErrNoMatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/search", r.URL.Path)
				assert.Equal(t, "wayfinder/1.0", r.Header.Get("User-Agent"))
				w.Write([]byte(tt.payload))
			})

			coords, _, err := n.Forward(context.Background(), "somewhere")
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, coords)
		})
	}
}

func TestReverse(t *testing.T) {
	n := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "44.426800", r.URL.Query().Get("lat"))
		w.Write([]byte(`{"display_name":"Piata Unirii, Bucuresti"}`))
	})

	address, err := n.Reverse(context.Background(), models.Coordinates{Lat: 44.4268, Lng: 26.1025})
	require.NoError(t, err)
	assert.Equal(t, "Piata Unirii, Bucuresti", address)
}

func TestReverse_UpstreamError(t *testing.T) {
	n := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := n.Reverse(context.Background(), models.Coordinates{Lat: 1, Lng: 1})
	assert.Error(t, err)

	empty := newTestNominatim(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Unable to geocode"}`))
	})
	_, err = empty.Reverse(context.Background(), models.Coordinates{Lat: 1, Lng: 1})
	assert.ErrorIs(t, err, ErrNoMatch)
}
