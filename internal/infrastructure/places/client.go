// Package places looks up places near a GPS fix with the Google Places and
// Routes APIs.
package places

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"

	"travel-companion/internal/config"
	"travel-companion/internal/domain/interaction"
	"travel-companion/internal/infrastructure/metrics"
	"travel-companion/internal/infrastructure/resilience"
)

const (
	defaultPlacesBaseURL = "https://maps.googleapis.com/maps/api/place"
	defaultRoutesURL     = "https://routes.googleapis.com/distanceMatrix/v2:computeRouteMatrix"
	nearbySearchPath     = "/nearbysearch/json"
	routeFieldMask       = "originIndex,destinationIndex,duration,distanceMeters,status,condition"
	routedPlaces         = 2
	maxResults           = 20
)

// Route is the travel distance and time to a place.
type Route struct {
	DistanceMeters int    `json:"distance_meters"`
	Duration       string `json:"duration"`
}

// Place is one nearby search result.
type Place struct {
	Name       string                  `json:"name"`
	Location   interaction.Coordinates `json:"location"`
	OpenNow    *bool                   `json:"open_now"`
	Rating     *float64                `json:"rating"`
	Types      []string                `json:"types"`
	DistanceKM float64                 `json:"distance_km"`
	Route      *Route                  `json:"route,omitempty"`
}

// ClientConfig captures the knobs of the places client.
type ClientConfig struct {
	APIKey        string
	PlacesBaseURL string
	RoutesURL     string
	RadiusMeters  int
	Limit         int
	Language      string
	RouteEnrich   bool
	TravelMode    string
	Timeout       time.Duration
	Retry         resilience.RetryConfig
	Breaker       resilience.CircuitBreakerConfig
}

// ConfigFromService derives the client configuration from service settings.
func ConfigFromService(cfg *config.Config) ClientConfig {
	return ClientConfig{
		APIKey:       cfg.GMapsAPIKey,
		RadiusMeters: cfg.PlacesRadiusMeters,
		Limit:        cfg.PlacesLimit,
		Language:     cfg.PlacesLanguage,
		RouteEnrich:  cfg.PlacesRouteEnrich,
		Timeout:      cfg.PlacesTimeout,
		Retry:        resilience.RetryFromConfig(cfg),
		Breaker:      resilience.BreakerFromConfig(cfg),
	}
}

// Client queries nearby places.
type Client struct {
	cfg     ClientConfig
	http    *resty.Client
	breaker *resilience.CircuitBreaker
	log     zerolog.Logger
}

// NewClient creates a places client.
func NewClient(cfg ClientConfig, log zerolog.Logger) *Client {
	if cfg.PlacesBaseURL == "" {
		cfg.PlacesBaseURL = defaultPlacesBaseURL
	}
	if cfg.RoutesURL == "" {
		cfg.RoutesURL = defaultRoutesURL
	}
	if cfg.RadiusMeters <= 0 {
		cfg.RadiusMeters = 1000
	}
	if cfg.Limit <= 0 || cfg.Limit > maxResults {
		cfg.Limit = maxResults
	}
	if cfg.Language == "" {
		cfg.Language = "ko"
	}
	if cfg.TravelMode == "" {
		cfg.TravelMode = "WALK"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.Retry.MaxAttempts <= 0 {
		cfg.Retry = resilience.DefaultRetryConfig()
	}

	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(cfg.PlacesBaseURL, "/")).
		SetHeader("User-Agent", "travel-companion/1.0").
		SetTimeout(cfg.Timeout).
		SetRetryCount(0)

	return &Client{
		cfg:     cfg,
		http:    httpClient,
		breaker: resilience.NewCircuitBreaker("google-places", cfg.Breaker),
		log:     log.With().Str("component", "places-client").Logger(),
	}
}

type nearbyResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Results      []struct {
		Name     string `json:"name"`
		Geometry struct {
			Location *struct {
				Lat float64 `json:"lat"`
				Lng float64 `json:"lng"`
			} `json:"location"`
		} `json:"geometry"`
		OpeningHours *struct {
			OpenNow *bool `json:"open_now"`
		} `json:"opening_hours"`
		Rating *float64 `json:"rating"`
		Types  []string `json:"types"`
	} `json:"results"`
}

// Nearby returns places around origin matching keyword, nearest first.
func (c *Client) Nearby(ctx context.Context, origin interaction.Coordinates, keyword string) ([]Place, error) {
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, fmt.Errorf("places api key not configured")
	}

	start := time.Now()
	var payload *nearbyResponse
	err := c.breaker.Execute(func() error {
		res, err := resilience.WithRetry(ctx, c.cfg.Retry, "places_nearby", func() (*nearbyResponse, error) {
			var out nearbyResponse
			resp, err := c.http.R().
				SetContext(ctx).
				SetQueryParams(map[string]string{
					"location": formatLatLng(origin),
					"radius":   strconv.Itoa(c.cfg.RadiusMeters),
					"language": c.cfg.Language,
					"keyword":  keyword,
					"key":      c.cfg.APIKey,
				}).
				SetResult(&out).
				Get(nearbySearchPath)
			if err != nil {
				return nil, fmt.Errorf("query places api: %w", err)
			}
			if resp.IsError() {
				return nil, fmt.Errorf("places api error (status %d): %s", resp.StatusCode(), resp.String())
			}
			switch out.Status {
			case "", "OK", "ZERO_RESULTS":
				return &out, nil
			default:
				return nil, fmt.Errorf("places api status %s: %s", out.Status, out.ErrorMessage)
			}
		})
		payload = res
		return err
	})
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.RecordExternalProviderLatency("google-places", status, time.Since(start).Seconds())
	if err != nil {
		return nil, err
	}

	places := make([]Place, 0, len(payload.Results))
	for _, r := range payload.Results {
		if r.Geometry.Location == nil {
			continue
		}
		loc := interaction.Coordinates{Latitude: r.Geometry.Location.Lat, Longitude: r.Geometry.Location.Lng}
		p := Place{
			Name:       r.Name,
			Location:   loc,
			Rating:     r.Rating,
			Types:      r.Types,
			DistanceKM: Haversine(origin.Latitude, origin.Longitude, loc.Latitude, loc.Longitude),
		}
		if r.OpeningHours != nil {
			p.OpenNow = r.OpeningHours.OpenNow
		}
		places = append(places, p)
	}
	sort.SliceStable(places, func(i, j int) bool { return places[i].DistanceKM < places[j].DistanceKM })
	if len(places) > c.cfg.Limit {
		places = places[:c.cfg.Limit]
	}

	if c.cfg.RouteEnrich && len(places) > 0 {
		c.enrichRoutes(ctx, origin, places)
	}
	return places, nil
}

type routeWaypoint struct {
	Waypoint struct {
		Location struct {
			LatLng struct {
				Latitude  float64 `json:"latitude"`
				Longitude float64 `json:"longitude"`
			} `json:"latLng"`
		} `json:"location"`
	} `json:"waypoint"`
}

func waypoint(c interaction.Coordinates) routeWaypoint {
	var w routeWaypoint
	w.Waypoint.Location.LatLng.Latitude = c.Latitude
	w.Waypoint.Location.LatLng.Longitude = c.Longitude
	return w
}

type routeElement struct {
	DestinationIndex int    `json:"destinationIndex"`
	DistanceMeters   int    `json:"distanceMeters"`
	Duration         string `json:"duration"`
	Condition        string `json:"condition"`
}

// enrichRoutes attaches travel info to the nearest places. Failures leave
// the places without routes.
func (c *Client) enrichRoutes(ctx context.Context, origin interaction.Coordinates, places []Place) {
	n := min(routedPlaces, len(places))
	destinations := make([]routeWaypoint, 0, n)
	for _, p := range places[:n] {
		destinations = append(destinations, waypoint(p.Location))
	}

	var elements []routeElement
	resp, err := c.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("X-Goog-Api-Key", c.cfg.APIKey).
		SetHeader("X-Goog-FieldMask", routeFieldMask).
		SetBody(map[string]any{
			"origins":      []routeWaypoint{waypoint(origin)},
			"destinations": destinations,
			"travelMode":   c.cfg.TravelMode,
		}).
		SetResult(&elements).
		Post(c.cfg.RoutesURL)
	if err != nil || resp.StatusCode() != http.StatusOK {
		c.log.Warn().Err(err).Int("status", statusOf(resp)).Msg("route matrix lookup failed")
		return
	}

	for _, e := range elements {
		if e.Condition != "ROUTE_EXISTS" || e.DestinationIndex < 0 || e.DestinationIndex >= n {
			continue
		}
		places[e.DestinationIndex].Route = &Route{DistanceMeters: e.DistanceMeters, Duration: e.Duration}
	}
}

func statusOf(resp *resty.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode()
}

func formatLatLng(c interaction.Coordinates) string {
	return strconv.FormatFloat(c.Latitude, 'f', -1, 64) + "," + strconv.FormatFloat(c.Longitude, 'f', -1, 64)
}
