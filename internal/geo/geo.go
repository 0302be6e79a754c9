// Package geo provides the location collaborators for the report
// conversation: reverse geocoding and nearby-landmark lookup.
package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/tsukinowa-lab/FaunaLine/internal/models"
)

// DefaultLandmarkRadiusMeters is the search radius used when offering
// nearby facilities for the sighting location.
const DefaultLandmarkRadiusMeters = 100

// Geocoder resolves coordinates to a human-readable address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// LandmarkSearcher finds named facilities near a position.
type LandmarkSearcher interface {
	SearchNearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]models.Landmark, error)
}

// GSIGeocoder reverse-geocodes through the 国土地理院 public endpoint.
type GSIGeocoder struct {
	httpClient *http.Client
	baseURL    string
}

// NewGSIGeocoder creates a geocoder against the public GSI endpoint.
func NewGSIGeocoder() *GSIGeocoder {
	return &GSIGeocoder{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    "https://mreversegeocoder.gsi.go.jp/reverse-geocoder/LonLatToAddress",
	}
}

// gsiResponse is the subset of the GSI payload we consume.
type gsiResponse struct {
	Results struct {
		MuniCd string `json:"muniCd"`
		Lv01Nm string `json:"lv01Nm"`
	} `json:"results"`
}

func (g *GSIGeocoder) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("lat", fmt.Sprintf("%f", lat))
	q.Set("lon", fmt.Sprintf("%f", lng))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build geocode request: %w", err)
	}
	resp, err := g.httpClient.Do(req)
	if err != nil {
		slog.Error("GSIGeocoder.ReverseGeocode request failed", "error", err)
		return "", fmt.Errorf("reverse geocode request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode returned status %d", resp.StatusCode)
	}
	var parsed gsiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if parsed.Results.Lv01Nm == "" {
		return "", fmt.Errorf("no address for %f, %f", lat, lng)
	}
	name := municipalityName(parsed.Results.MuniCd)
	if name != "" {
		return name + parsed.Results.Lv01Nm, nil
	}
	return parsed.Results.Lv01Nm, nil
}

// municipalityName maps a GSI municipality code to a display name.
// The public endpoint only returns the code, so an empty string here
// simply drops the prefix.
func municipalityName(code string) string {
	// TODO: load the GSI muniCd table so addresses carry the city name.
	return ""
}

// NoopLandmarkSearcher always returns no landmarks. Deployments without
// a facility database skip the landmark picker entirely.
type NoopLandmarkSearcher struct{}

func (NoopLandmarkSearcher) SearchNearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]models.Landmark, error) {
	return nil, nil
}

// StaticLandmarkSearcher serves a fixed landmark list filtered by
// distance. Useful for municipalities that ship a small facility CSV
// and for tests.
type StaticLandmarkSearcher struct {
	Landmarks []models.Landmark
}

func (s *StaticLandmarkSearcher) SearchNearby(ctx context.Context, lat, lng float64, radiusMeters int) ([]models.Landmark, error) {
	var out []models.Landmark
	for _, lm := range s.Landmarks {
		d := int(DistanceMeters(lat, lng, lm.Latitude, lm.Longitude))
		if d <= radiusMeters {
			lm.DistanceMeters = d
			out = append(out, lm)
		}
	}
	return out, nil
}
