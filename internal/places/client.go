package places

import (
	"context"
	"fmt"
	"time"

	"listing-discovery/internal/domain"
	"listing-discovery/internal/metrics"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
)

// Places API status values
const (
	StatusOK             = "OK"
	StatusZeroResults    = "ZERO_RESULTS"
	StatusNotFound       = "NOT_FOUND"
	StatusInvalidRequest = "INVALID_REQUEST"
)

// Config places client settings
type Config struct {
	BaseURL string
	APIKey  string
	Region  string
	Timeout time.Duration
}

// PlaceDetails normalized details response. Viewport and Point are nil when
// the response carries no geometry.
type PlaceDetails struct {
	PlaceID           string
	Name              string
	FormattedAddress  string
	AddressComponents []domain.AddressComponent
	Point             *domain.GeoPoint
	Viewport          *domain.BoundingBox
	Types             []string
}

type latLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type detailsResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Result       struct {
		PlaceID           string `json:"place_id"`
		Name              string `json:"name"`
		FormattedAddress  string `json:"formatted_address"`
		AddressComponents []struct {
			LongName  string   `json:"long_name"`
			ShortName string   `json:"short_name"`
			Types     []string `json:"types"`
		} `json:"address_components"`
		Geometry *struct {
			Location *latLng `json:"location"`
			Viewport *struct {
				Northeast latLng `json:"northeast"`
				Southwest latLng `json:"southwest"`
			} `json:"viewport"`
		} `json:"geometry"`
		Types []string `json:"types"`
	} `json:"result"`
}

type autocompleteResponse struct {
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
	Predictions  []struct {
		Description string   `json:"description"`
		PlaceID     string   `json:"place_id"`
		Types       []string `json:"types"`
	} `json:"predictions"`
}

// Client Google Places web service client
type Client struct {
	httpClient *resty.Client
	apiKey     string
	region     string
	logger     *zap.Logger
}

// NewClient builds a client. Calls are not retried here; callers decide.
func NewClient(cfg Config, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetHeader("Accept", "application/json")

	return &Client{
		httpClient: client,
		apiKey:     cfg.APIKey,
		region:     cfg.Region,
		logger:     logger,
	}
}

// Details fetches one place by id
func (c *Client) Details(ctx context.Context, placeID string) (*PlaceDetails, error) {
	if placeID == "" {
		return nil, fmt.Errorf("%w: empty place id", domain.ErrInvalidLocation)
	}

	params := map[string]string{
		"place_id": placeID,
		"key":      c.apiKey,
	}
	if c.region != "" {
		params["region"] = c.region
	}

	var out detailsResponse
	if err := c.get(ctx, "details", "/details/json", params, &out); err != nil {
		return nil, err
	}

	switch out.Status {
	case StatusOK:
	case StatusNotFound, StatusZeroResults, StatusInvalidRequest:
		metrics.PlacesRequestsTotal.WithLabelValues("details", "invalid").Inc()
		return nil, fmt.Errorf("%w: places details status %s", domain.ErrInvalidLocation, out.Status)
	default:
		metrics.PlacesRequestsTotal.WithLabelValues("details", "error").Inc()
		c.logger.Error("Places details returned non-OK status",
			zap.String("place_id", placeID),
			zap.String("status", out.Status),
			zap.String("error_message", out.ErrorMessage),
		)
		return nil, fmt.Errorf("%w: places details status %s", domain.ErrUpstreamLookup, out.Status)
	}
	metrics.PlacesRequestsTotal.WithLabelValues("details", "ok").Inc()

	r := out.Result
	details := &PlaceDetails{
		PlaceID:          r.PlaceID,
		Name:             r.Name,
		FormattedAddress: r.FormattedAddress,
		Types:            r.Types,
	}
	if details.PlaceID == "" {
		details.PlaceID = placeID
	}
	for _, ac := range r.AddressComponents {
		details.AddressComponents = append(details.AddressComponents, domain.AddressComponent{
			LongName:  ac.LongName,
			ShortName: ac.ShortName,
			Types:     ac.Types,
		})
	}
	if r.Geometry != nil {
		if r.Geometry.Location != nil {
			details.Point = &domain.GeoPoint{Lat: r.Geometry.Location.Lat, Lng: r.Geometry.Location.Lng}
		}
		if vp := r.Geometry.Viewport; vp != nil {
			details.Viewport = &domain.BoundingBox{
				North: vp.Northeast.Lat,
				East:  vp.Northeast.Lng,
				South: vp.Southwest.Lat,
				West:  vp.Southwest.Lng,
			}
		}
	}
	return details, nil
}

// Autocomplete returns predictions for input restricted by typeFilter
// (e.g. "(regions)"). ZERO_RESULTS yields an empty slice.
func (c *Client) Autocomplete(ctx context.Context, input, typeFilter string) ([]domain.PlaceCandidate, error) {
	params := map[string]string{
		"input": input,
		"key":   c.apiKey,
	}
	if typeFilter != "" {
		params["types"] = typeFilter
	}
	if c.region != "" {
		params["components"] = "country:" + c.region
	}

	var out autocompleteResponse
	if err := c.get(ctx, "autocomplete", "/autocomplete/json", params, &out); err != nil {
		return nil, err
	}

	switch out.Status {
	case StatusOK:
	case StatusZeroResults:
		metrics.PlacesRequestsTotal.WithLabelValues("autocomplete", "ok").Inc()
		return []domain.PlaceCandidate{}, nil
	default:
		metrics.PlacesRequestsTotal.WithLabelValues("autocomplete", "error").Inc()
		c.logger.Error("Places autocomplete returned non-OK status",
			zap.String("input", input),
			zap.String("status", out.Status),
			zap.String("error_message", out.ErrorMessage),
		)
		return nil, fmt.Errorf("%w: places autocomplete status %s", domain.ErrUpstreamLookup, out.Status)
	}
	metrics.PlacesRequestsTotal.WithLabelValues("autocomplete", "ok").Inc()

	candidates := make([]domain.PlaceCandidate, 0, len(out.Predictions))
	for _, p := range out.Predictions {
		candidates = append(candidates, domain.PlaceCandidate{
			PlaceID:     p.PlaceID,
			Description: p.Description,
			Types:       p.Types,
		})
	}
	return candidates, nil
}

func (c *Client) get(ctx context.Context, endpoint, path string, params map[string]string, out interface{}) error {
	t0 := time.Now()
	resp, err := c.httpClient.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(out).
		Get(path)
	metrics.PlacesDurationMs.WithLabelValues(endpoint).Observe(float64(time.Since(t0).Milliseconds()))
	if err != nil {
		metrics.PlacesRequestsTotal.WithLabelValues(endpoint, "transport_error").Inc()
		c.logger.Error("Places request failed",
			zap.String("endpoint", endpoint),
			zap.Error(err),
		)
		return fmt.Errorf("%w: %s: %v", domain.ErrUpstreamLookup, endpoint, err)
	}
	if resp.IsError() {
		metrics.PlacesRequestsTotal.WithLabelValues(endpoint, "http_error").Inc()
		c.logger.Error("Places request returned HTTP error",
			zap.String("endpoint", endpoint),
			zap.Int("status_code", resp.StatusCode()),
		)
		return fmt.Errorf("%w: %s: HTTP %d", domain.ErrUpstreamLookup, endpoint, resp.StatusCode())
	}
	return nil
}
