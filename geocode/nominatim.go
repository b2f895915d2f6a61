// Package geocode resolves coordinates to human-readable places using the
// OpenStreetMap Nominatim API. Used to prefill city/state when a citizen
// drops a pin on the complaint map.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DefaultBaseURL is the public Nominatim instance.
const DefaultBaseURL = "https://nominatim.openstreetmap.org"

// userAgent identifies us to Nominatim, which rejects anonymous clients.
const userAgent = "civicsaathi-gateway/1.0"

// Place is a resolved location.
type Place struct {
	DisplayName string `json:"display_name"`
	City        string `json:"city"`
	State       string `json:"state"`
	Postcode    string `json:"postcode"`
	Country     string `json:"country"`
}

// nominatimResponse mirrors the fields we use from the reverse endpoint.
type nominatimResponse struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		City     string `json:"city"`
		Town     string `json:"town"`
		Village  string `json:"village"`
		County   string `json:"county"`
		State    string `json:"state"`
		Postcode string `json:"postcode"`
		Country  string `json:"country"`
	} `json:"address"`
	Error string `json:"error"`
}

// Client calls the Nominatim API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a geocoding client. An empty baseURL falls back to the public
// Nominatim instance.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Reverse resolves a coordinate pair to a Place. Smaller settlements fall
// back through town, village and county when no city is present.
func (c *Client) Reverse(ctx context.Context, lat, lng float64) (*Place, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", strconv.FormatFloat(lat, 'f', -1, 64))
	query.Set("lon", strconv.FormatFloat(lng, 'f', -1, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("geocode service returned %d", resp.StatusCode)
	}

	var decoded nominatimResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("failed to decode geocode response: %w", err)
	}
	if decoded.Error != "" {
		return nil, fmt.Errorf("geocode lookup failed: %s", decoded.Error)
	}

	city := decoded.Address.City
	if city == "" {
		city = decoded.Address.Town
	}
	if city == "" {
		city = decoded.Address.Village
	}
	if city == "" {
		city = decoded.Address.County
	}

	return &Place{
		DisplayName: decoded.DisplayName,
		City:        city,
		State:       decoded.Address.State,
		Postcode:    decoded.Address.Postcode,
		Country:     decoded.Address.Country,
	}, nil
}
