package places

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/httpclient"
	"github.com/ternarybob/wayfinder/internal/interfaces"
	"github.com/ternarybob/wayfinder/internal/models"
	"golang.org/x/time/rate"
)

const detailsFields = "place_id,name,formatted_address,geometry,rating,user_ratings_total,price_level," +
	"opening_hours,photos,types,formatted_phone_number,website,reviews,business_status," +
	"wheelchair_accessible_entrance,serves_vegetarian_food,takeout,delivery,dine_in,reservable"

// PhotoPath is the server route that proxies place photos so the API key never reaches clients
const PhotoPath = "/api/photos"

const (
	defaultPhotoWidth = 400
	maxPhotoWidth     = 1600
	maxPhotoBytes     = 8 << 20
)

// PhotoURL returns the proxied URL of a photo reference
func PhotoURL(reference string, maxWidth int) string {
	q := url.Values{}
	q.Set("ref", reference)
	q.Set("maxwidth", strconv.Itoa(maxWidth))
	return PhotoPath + "?" + q.Encode()
}

// GoogleProvider implements PlaceDataProvider against the Google Places web service
type GoogleProvider struct {
	config     *common.PlacesAPIConfig
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewGoogleProvider creates a Google Places provider. apiKey is resolved by the caller.
func NewGoogleProvider(config *common.PlacesAPIConfig, apiKey string, logger arbor.ILogger) *GoogleProvider {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Every(config.RateLimit)
	}
	return &GoogleProvider{
		config:     config,
		apiKey:     apiKey,
		httpClient: httpclient.NewDefaultHTTPClient(config.RequestTimeout),
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

// NearbySearch performs a Google Places Nearby Search restricted to the category's place type
func (p *GoogleProvider) NearbySearch(ctx context.Context, req interfaces.NearbySearchRequest) ([]models.Place, error) {
	params := url.Values{}
	params.Set("location", fmt.Sprintf("%f,%f", req.Center.Lat, req.Center.Lng))
	params.Set("radius", fmt.Sprintf("%d", req.Radius))
	if placeType := req.Category.ProviderType(); placeType != "" {
		params.Set("type", placeType)
	}
	if req.Keyword != "" {
		params.Set("keyword", req.Keyword)
	}

	var apiResp nearbySearchResponse
	if err := p.get(ctx, "nearbysearch", params, &apiResp); err != nil {
		return nil, err
	}
	if apiResp.Status != "OK" && apiResp.Status != "ZERO_RESULTS" {
		return nil, fmt.Errorf("places API error: %s - %s", apiResp.Status, apiResp.ErrorMessage)
	}

	places := make([]models.Place, 0, len(apiResp.Results))
	samplePlaces := []string{}
	for _, raw := range apiResp.Results {
		place, ok := p.normalizeGooglePlace(raw, req.Category)
		if !ok {
			continue
		}
		if len(samplePlaces) < 3 {
			samplePlaces = append(samplePlaces, place.Name)
		}
		places = append(places, place)
	}

	p.logger.Info().
		Str("category", string(req.Category)).
		Str("location", req.Center.String()).
		Int("radius", req.Radius).
		Int("results_count", len(places)).
		Str("status", apiResp.Status).
		Strs("sample_places", samplePlaces).
		Msg("Google Places Nearby Search completed")

	return places, nil
}

// GetDetails fetches one place with reviews, opening hours and attribute flags
func (p *GoogleProvider) GetDetails(ctx context.Context, placeID string) (*models.Place, error) {
	if placeID == "" {
		return nil, fmt.Errorf("place id is required")
	}

	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("fields", detailsFields)

	var apiResp detailsResponse
	if err := p.get(ctx, "details", params, &apiResp); err != nil {
		return nil, err
	}
	if apiResp.Status != "OK" || apiResp.Result == nil {
		return nil, fmt.Errorf("places API error: %s - %s", apiResp.Status, apiResp.ErrorMessage)
	}

	place, ok := p.normalizeGooglePlace(*apiResp.Result, "")
	if !ok {
		return nil, fmt.Errorf("place %s has no usable location", placeID)
	}
	return &place, nil
}

// GetPhoto downloads the photo behind reference. Widths outside 1-1600 use the default.
func (p *GoogleProvider) GetPhoto(ctx context.Context, reference string, maxWidth int) (*models.Photo, error) {
	if reference == "" {
		return nil, fmt.Errorf("photo reference is required")
	}
	if maxWidth <= 0 || maxWidth > maxPhotoWidth {
		maxWidth = defaultPhotoWidth
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	params := url.Values{}
	params.Set("photo_reference", reference)
	params.Set("maxwidth", strconv.Itoa(maxWidth))
	params.Set("key", p.apiKey)
	fullURL := fmt.Sprintf("%s/photo?%s", strings.TrimRight(p.config.BaseURL, "/"), params.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build photo request: %w", err)
	}
	// the photo endpoint redirects to the image host
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch place photo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("Google Places photo returned status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxPhotoBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read place photo: %w", err)
	}
	if len(data) > maxPhotoBytes {
		return nil, fmt.Errorf("place photo exceeds %d bytes", maxPhotoBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(data)
	}

	p.logger.Debug().
		Int("width", maxWidth).
		Int("bytes", len(data)).
		Str("content_type", contentType).
		Msg("Place photo fetched")

	return &models.Photo{ContentType: contentType, Data: data}, nil
}

func (p *GoogleProvider) get(ctx context.Context, endpoint string, params url.Values, out interface{}) error {
	if err := p.limiter.Wait(ctx); err != nil {
		return err
	}

	if p.config.Language != "" {
		params.Set("language", p.config.Language)
	}
	logURL := fmt.Sprintf("%s/%s/json?%s&key=***REDACTED***", p.config.BaseURL, endpoint, params.Encode())
	params.Set("key", p.apiKey)
	fullURL := fmt.Sprintf("%s/%s/json?%s", strings.TrimRight(p.config.BaseURL, "/"), endpoint, params.Encode())

	p.logger.Debug().Str("url", logURL).Msg("Calling Google Places API")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build places request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call Google Places API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("Google Places API returned status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode API response: %w", err)
	}
	return nil
}

// normalizeGooglePlace maps a raw record into a Place with explicit defaults:
// missing rating, review count and price level all become 0.
// Records without an id, name or location are rejected.
func (p *GoogleProvider) normalizeGooglePlace(raw placeResult, category models.Category) (models.Place, bool) {
	if raw.PlaceID == "" || raw.Name == "" || raw.Geometry == nil || raw.Geometry.Location == nil {
		return models.Place{}, false
	}
	coords := models.Coordinates{Lat: raw.Geometry.Location.Lat, Lng: raw.Geometry.Location.Lng}
	if !coords.Valid() {
		return models.Place{}, false
	}

	place := models.Place{
		ID:          raw.PlaceID,
		Name:        raw.Name,
		Address:     raw.FormattedAddress,
		Coordinates: coords,
		Category:    category,
		PhoneNumber: raw.FormattedPhoneNumber,
		WebsiteURL:  raw.Website,
		Types:       append([]string(nil), raw.Types...),
	}
	if place.Address == "" {
		place.Address = raw.Vicinity
	}
	if place.Category == "" {
		place.Category = categoryFromTypes(raw.Types)
	}

	if raw.Rating != nil {
		place.Rating = clampFloat(*raw.Rating, 0, 5)
	}
	if raw.UserRatingsTotal != nil && *raw.UserRatingsTotal > 0 {
		place.TotalReviews = *raw.UserRatingsTotal
	}
	if raw.PriceLevel != nil && *raw.PriceLevel >= 1 && *raw.PriceLevel <= 4 {
		place.PriceLevel = *raw.PriceLevel
	}

	if raw.OpeningHours != nil {
		place.OpeningHours = append([]string(nil), raw.OpeningHours.WeekdayText...)
		if raw.OpeningHours.OpenNow != nil {
			open := *raw.OpeningHours.OpenNow
			place.OpenNow = &open
		}
	}

	if len(raw.Photos) > 0 && raw.Photos[0].PhotoReference != "" {
		place.PhotoURL = PhotoURL(raw.Photos[0].PhotoReference, defaultPhotoWidth)
	}

	for _, r := range raw.Reviews {
		place.Reviews = append(place.Reviews, models.Review{
			AuthorName:   r.AuthorName,
			Rating:       r.Rating,
			Text:         r.Text,
			Time:         r.Time,
			RelativeTime: r.RelativeTimeDescription,
		})
	}

	place.Features = featuresOf(raw)
	return place, true
}

func featuresOf(raw placeResult) []string {
	flags := []struct {
		name  string
		value *bool
	}{
		{"wheelchair_accessible", raw.WheelchairAccessibleEntrance},
		{"vegetarian", raw.ServesVegetarianFood},
		{"takeout", raw.Takeout},
		{"delivery", raw.Delivery},
		{"dine_in", raw.DineIn},
		{"reservable", raw.Reservable},
	}

	var features []string
	for _, f := range flags {
		if f.value != nil && *f.value {
			features = append(features, f.name)
		}
	}
	return features
}

func categoryFromTypes(types []string) models.Category {
	for _, t := range types {
		switch t {
		case "restaurant", "cafe", "meal_takeaway", "bar":
			return models.CategoryRestaurants
		case "lodging":
			return models.CategoryHotels
		case "parking":
			return models.CategoryParking
		}
	}
	return ""
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
