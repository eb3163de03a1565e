package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/httpclient"
	"github.com/ternarybob/wayfinder/internal/models"
	"golang.org/x/time/rate"
)

// ErrNoMatch is returned when the geocoder answers but finds nothing
var ErrNoMatch = errors.New("no geocoding match")

// coordinate accepts both the string and the numeric form Nominatim uses for lat/lon
type coordinate float64

func (c *coordinate) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		value, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
		if err != nil {
			return fmt.Errorf("parse coordinate %q: %w", text, err)
		}
		*c = coordinate(value)
		return nil
	}

	var value float64
	if err := json.Unmarshal(data, &value); err == nil {
		*c = coordinate(value)
		return nil
	}

	return fmt.Errorf("coordinate must be a string or number")
}

type searchResult struct {
	Lat         coordinate `json:"lat"`
	Lon         coordinate `json:"lon"`
	DisplayName string     `json:"display_name"`
}

type reverseResult struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error,omitempty"`
}

// Nominatim implements GeocodingProvider against an OSM Nominatim instance
type Nominatim struct {
	config     *common.GeocodingConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewNominatim creates a Nominatim geocoder
func NewNominatim(config *common.GeocodingConfig, logger arbor.ILogger) *Nominatim {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Every(config.RateLimit)
	}
	return &Nominatim{
		config:     config,
		httpClient: httpclient.NewHTTPClientWithUserAgent(config.Timeout, config.UserAgent),
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// Forward resolves an address to coordinates and the matched display name
func (n *Nominatim) Forward(ctx context.Context, address string) (models.Coordinates, string, error) {
	address = strings.TrimSpace(address)
	if address == "" {
		return models.Coordinates{}, "", fmt.Errorf("address is required")
	}

	query := url.Values{}
	query.Set("q", address)
	query.Set("format", "json")
	query.Set("limit", "1")

	var payload []searchResult
	if err := n.get(ctx, "/search", query, &payload); err != nil {
		return models.Coordinates{}, "", err
	}
	if len(payload) == 0 {
		return models.Coordinates{}, "", ErrNoMatch
	}

	coords := models.Coordinates{Lat: float64(payload[0].Lat), Lng: float64(payload[0].Lon)}
	if !coords.Valid() {
		return models.Coordinates{}, "", fmt.Errorf("geocoder returned invalid coordinates %s", coords)
	}

	n.logger.Debug().
		Str("address", address).
		Str("coordinates", coords.String()).
		Msg("Address geocoded")

	return coords, payload[0].DisplayName, nil
}

// Reverse resolves coordinates to a display address
func (n *Nominatim) Reverse(ctx context.Context, coords models.Coordinates) (string, error) {
	query := url.Values{}
	query.Set("lat", strconv.FormatFloat(coords.Lat, 'f', 6, 64))
	query.Set("lon", strconv.FormatFloat(coords.Lng, 'f', 6, 64))
	query.Set("format", "json")

	var payload reverseResult
	if err := n.get(ctx, "/reverse", query, &payload); err != nil {
		return "", err
	}
	if payload.Error != "" || payload.DisplayName == "" {
		return "", ErrNoMatch
	}
	return payload.DisplayName, nil
}

func (n *Nominatim) get(ctx context.Context, path string, query url.Values, out interface{}) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return err
	}

	uri := strings.TrimRight(n.config.BaseURL, "/") + path + "?" + query.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	res, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("nominatim request failed: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return fmt.Errorf("nominatim returned status %d", res.StatusCode)
	}
	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decode nominatim response: %w", err)
	}
	return nil
}
