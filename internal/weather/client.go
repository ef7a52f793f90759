// Package weather corroborates solar trade claims against an external weather
// provider (open-meteo). The provider is wrapped behind a short-lived TTL
// cache keyed by location, bounding external call volume; concurrent lookups
// for the same location are coalesced into one upstream request.
//
// On provider failure or timeout the package returns ErrUnavailable rather
// than blocking or failing the caller. The fraud engine decides what an
// unavailable reading means (fail-open vs fail-closed).
package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voltbridge/gridoracle/internal/models"
)

// Client fetches current weather conditions from the open-meteo API.
type Client struct {
	apiBaseURL     string
	httpClient     *http.Client
	maxRetries     int
	retryDelayBase time.Duration
	solarMaxKWh    int64
}

// ClientConfig tunes retry behavior.
type ClientConfig struct {
	MaxRetries     int
	RetryDelayBase time.Duration
}

// NewClient creates a new open-meteo client. solarMaxKWh is the reference
// installation's peak solar output, used to derive the condition's maximum
// plausible generation.
func NewClient(apiBaseURL string, timeout time.Duration, solarMaxKWh int64, cfg ClientConfig) *Client {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelayBase <= 0 {
		cfg.RetryDelayBase = time.Second
	}
	return &Client{
		apiBaseURL: apiBaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		maxRetries:     cfg.MaxRetries,
		retryDelayBase: cfg.RetryDelayBase,
		solarMaxKWh:    solarMaxKWh,
	}
}

// FetchCurrent retrieves the current condition for a location.
func (c *Client) FetchCurrent(ctx context.Context, latitude, longitude float64) (models.WeatherCondition, error) {
	url := fmt.Sprintf("%s/v1/forecast?latitude=%.2f&longitude=%.2f&current=weather_code,cloud_cover,is_day",
		c.apiBaseURL, latitude, longitude)

	resp, err := c.doRequest(ctx, url)
	if err != nil {
		return models.WeatherCondition{}, fmt.Errorf("failed to fetch weather: %w", err)
	}
	defer resp.Body.Close()

	var response struct {
		Current struct {
			WeatherCode int `json:"weather_code"`
			CloudCover  int `json:"cloud_cover"`
			IsDay       int `json:"is_day"`
		} `json:"current"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return models.WeatherCondition{}, fmt.Errorf("failed to decode weather: %w", err)
	}

	return c.condition(response.Current.CloudCover, response.Current.IsDay == 1), nil
}

// condition maps a raw reading to a labeled condition with the derived
// maximum plausible solar generation: zero at night, otherwise peak output
// scaled by the clear fraction of the sky.
func (c *Client) condition(cloudCover int, isDay bool) models.WeatherCondition {
	now := time.Now()
	if !isDay {
		return models.WeatherCondition{
			Label:            "Night",
			CloudCover:       cloudCover,
			IsDay:            false,
			MaxGenerationKWh: 0,
			ObservedAt:       now,
		}
	}

	efficiency := float64(100-cloudCover) / 100.0
	maxGen := int64(float64(c.solarMaxKWh) * efficiency)

	label := "Sunny"
	if cloudCover >= 70 {
		label = "Stormy"
	} else if cloudCover >= 20 {
		label = "Cloudy"
	}

	return models.WeatherCondition{
		Label:            label,
		CloudCover:       cloudCover,
		IsDay:            true,
		MaxGenerationKWh: maxGen,
		ObservedAt:       now,
	}
}

// doRequest performs an HTTP request with retry logic
func (c *Client) doRequest(ctx context.Context, url string) (*http.Response, error) {
	var lastErr error

	for i := 0; i < c.maxRetries; i++ {
		req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
		if err != nil {
			return nil, err
		}

		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			lastErr = err
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i+1)):
			}
			continue
		}

		if resp.StatusCode >= 500 {
			resp.Body.Close()
			lastErr = fmt.Errorf("server error: %d", resp.StatusCode)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(c.retryDelayBase * time.Duration(i+1)):
			}
			continue
		}

		if resp.StatusCode != http.StatusOK {
			resp.Body.Close()
			return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
		}

		return resp, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
