package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	config "github.com/citywatch/backend/config/civic"
)

// Client calls a Nominatim-style reverse geocoding API. Lookups are best
// effort with a short fixed timeout; callers fall back to raw coordinates
// when a lookup fails.
type Client struct {
	baseURL    string
	httpClient *http.Client
	log        *slog.Logger
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
}

func New(cfg *config.GeocodeConfig, log *slog.Logger) *Client {
	return &Client{
		baseURL: cfg.Url,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		log: log,
	}
}

// Reverse resolves a coordinate to a human-readable address string.
func (c *Client) Reverse(ctx context.Context, lat, lon float64) (string, error) {
	query := url.Values{}
	query.Set("format", "jsonv2")
	query.Set("lat", fmt.Sprintf("%f", lat))
	query.Set("lon", fmt.Sprintf("%f", lon))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+query.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("reverse geocode request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("reverse geocode failed with status %d: %s", resp.StatusCode, body)
	}

	var parsed reverseResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if parsed.DisplayName == "" {
		return "", fmt.Errorf("reverse geocode returned no address")
	}

	c.log.Debug("address resolved",
		slog.Float64("lat", lat),
		slog.Float64("lon", lon),
		slog.String("address", parsed.DisplayName))
	return parsed.DisplayName, nil
}
