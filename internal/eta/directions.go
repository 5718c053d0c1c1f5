package eta

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/example/fleet-tracker/internal/models"
)

const DefaultDirectionsURL = "https://maps.googleapis.com/maps/api/directions/json"

// DirectionsClient asks the Google Directions API for the first leg's duration.
type DirectionsClient struct {
	Endpoint string
	APIKey   string
	Client   *http.Client
}

func NewDirectionsClient(endpoint, apiKey string) *DirectionsClient {
	if endpoint == "" {
		endpoint = DefaultDirectionsURL
	}
	return &DirectionsClient{Endpoint: endpoint, APIKey: apiKey, Client: &http.Client{Timeout: 5 * time.Second}}
}

func (d *DirectionsClient) EstimateSeconds(ctx context.Context, from, to models.Coord) (float64, error) {
	if d.APIKey == "" {
		return 0, errors.New("directions: no api key configured")
	}
	q := url.Values{}
	q.Set("origin", fmt.Sprintf("%f,%f", from.Lat, from.Lon))
	q.Set("destination", fmt.Sprintf("%f,%f", to.Lat, to.Lon))
	q.Set("key", d.APIKey)
	var out struct {
		Status string `json:"status"`
		Routes []struct {
			Legs []struct {
				Duration struct {
					Value float64 `json:"value"`
				} `json:"duration"`
			} `json:"legs"`
		} `json:"routes"`
	}
	if err := getJSON(ctx, d.Client, d.Endpoint+"?"+q.Encode(), &out); err != nil {
		return 0, fmt.Errorf("directions: %w", err)
	}
	if len(out.Routes) == 0 || len(out.Routes[0].Legs) == 0 {
		return 0, fmt.Errorf("directions %s: %w", out.Status, ErrNoRoute)
	}
	return out.Routes[0].Legs[0].Duration.Value, nil
}
