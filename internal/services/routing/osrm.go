package routing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/wayfinder/internal/common"
	"github.com/ternarybob/wayfinder/internal/httpclient"
	"github.com/ternarybob/wayfinder/internal/models"
	"golang.org/x/time/rate"
)

type osrmResponse struct {
	Code    string      `json:"code"`
	Message string      `json:"message,omitempty"`
	Routes  []osrmRoute `json:"routes"`
}

type osrmRoute struct {
	Distance float64      `json:"distance"`
	Duration float64      `json:"duration"`
	Geometry osrmGeometry `json:"geometry"`
	Legs     []osrmLeg    `json:"legs"`
}

// osrmGeometry is a GeoJSON LineString with [lon, lat] pairs
type osrmGeometry struct {
	Type        string       `json:"type"`
	Coordinates [][2]float64 `json:"coordinates"`
}

type osrmLeg struct {
	Summary  string     `json:"summary"`
	Distance float64    `json:"distance"`
	Duration float64    `json:"duration"`
	Steps    []osrmStep `json:"steps"`
}

type osrmStep struct {
	Name     string  `json:"name"`
	Distance float64 `json:"distance"`
	Duration float64 `json:"duration"`
	Maneuver struct {
		Type     string     `json:"type"`
		Modifier string     `json:"modifier,omitempty"`
		Location [2]float64 `json:"location"`
	} `json:"maneuver"`
}

// OSRM implements RoutingProvider against an OSRM HTTP service
type OSRM struct {
	config     *common.RoutingConfig
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     arbor.ILogger
}

// NewOSRM creates an OSRM routing client
func NewOSRM(config *common.RoutingConfig, logger arbor.ILogger) *OSRM {
	limit := rate.Inf
	if config.RateLimit > 0 {
		limit = rate.Every(config.RateLimit)
	}
	return &OSRM{
		config:     config,
		httpClient: httpclient.NewDefaultHTTPClient(config.Timeout),
		limiter:    rate.NewLimiter(limit, 1),
		logger:     logger,
	}
}

func profileFor(mode models.TravelMode) string {
	switch mode {
	case models.TravelWalking:
		return "foot"
	case models.TravelCycling:
		return "bike"
	default:
		return "driving"
	}
}

// Route computes the fastest route from origin to destination
func (o *OSRM) Route(ctx context.Context, origin, destination models.Coordinates, mode models.TravelMode) (*models.Route, error) {
	if mode == "" {
		mode = models.TravelMode(o.config.TravelMode)
	}
	if err := o.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	query.Set("overview", "full")
	query.Set("geometries", "geojson")
	query.Set("steps", "true")

	uri := fmt.Sprintf("%s/route/v1/%s/%f,%f;%f,%f?%s",
		strings.TrimRight(o.config.BaseURL, "/"), profileFor(mode),
		origin.Lng, origin.Lat, destination.Lng, destination.Lat, query.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	res, err := o.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("osrm request failed: %w", err)
	}
	defer func() {
		_ = res.Body.Close()
	}()

	var payload osrmResponse
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode osrm response (status %d): %w", res.StatusCode, err)
	}
	if payload.Code != "Ok" || len(payload.Routes) == 0 {
		return nil, fmt.Errorf("osrm returned %s: %s", payload.Code, payload.Message)
	}

	route := toRoute(payload.Routes[0], origin, destination, mode)

	o.logger.Debug().
		Str("origin", origin.String()).
		Str("destination", destination.String()).
		Str("mode", string(mode)).
		Float64("distance_m", route.Distance).
		Float64("duration_s", route.Duration).
		Msg("Route computed")

	return route, nil
}

func toRoute(r osrmRoute, origin, destination models.Coordinates, mode models.TravelMode) *models.Route {
	route := &models.Route{
		Origin:      origin,
		Destination: destination,
		Mode:        mode,
		Distance:    r.Distance,
		Duration:    r.Duration,
		Polyline:    make([]models.Coordinates, 0, len(r.Geometry.Coordinates)),
	}
	for _, pt := range r.Geometry.Coordinates {
		route.Polyline = append(route.Polyline, models.Coordinates{Lat: pt[1], Lng: pt[0]})
	}
	for _, leg := range r.Legs {
		l := models.RouteLeg{Summary: leg.Summary, Distance: leg.Distance, Duration: leg.Duration}
		for _, step := range leg.Steps {
			l.Steps = append(l.Steps, models.RouteStep{
				Instruction: instruction(step),
				Distance:    step.Distance,
				Duration:    step.Duration,
				Location:    models.Coordinates{Lat: step.Maneuver.Location[1], Lng: step.Maneuver.Location[0]},
			})
		}
		route.Legs = append(route.Legs, l)
	}
	return route
}

// instruction renders an OSRM maneuver as a short human readable phrase
func instruction(step osrmStep) string {
	verb := step.Maneuver.Type
	switch verb {
	case "depart":
		verb = "Head"
	case "arrive":
		return "Arrive at destination"
	case "turn", "end of road", "fork", "continue", "new name":
		verb = "Continue"
		if step.Maneuver.Modifier != "" && step.Maneuver.Modifier != "straight" {
			verb = "Turn " + step.Maneuver.Modifier
		}
	case "roundabout", "rotary":
		verb = "Take the roundabout"
	default:
		verb = strings.ToUpper(verb[:1]) + verb[1:]
	}
	if step.Name != "" {
		return verb + " onto " + step.Name
	}
	return verb
}
