// Package weather talks to the forecast cloud function and keeps a cached
// view of which upcoming dates carry rain.
package weather

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"time"
)

// ErrNotConfigured means no function URL is set; forecast-driven features
// stay off.
var ErrNotConfigured = errors.New("weather: function url not configured")

// Default forecast grid cell (Gangneung).
const (
	DefaultNX = 92
	DefaultNY = 131
)

// DayCondition is the per-date verdict the function returns: 1 when rain,
// snow, or showers dominate that day's forecast.
type DayCondition struct {
	RainCondition int `json:"rain_condition"`
}

// Report is the function's full response. Summary keys are KST dates in
// YYYYMMDD form.
type Report struct {
	OK      bool                    `json:"ok"`
	NX      int                     `json:"nx"`
	NY      int                     `json:"ny"`
	Summary map[string]DayCondition `json:"summary"`
	Error   string                  `json:"error,omitempty"`
}

// Client calls the forecast function for one grid cell.
type Client struct {
	url    string
	nx, ny int
	client *http.Client
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient substitutes the transport, mainly for tests.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.client = hc }
}

// NewClient creates a forecast client for grid cell (nx, ny). Zero
// coordinates fall back to the Gangneung cell.
func NewClient(url string, nx, ny int, opts ...Option) *Client {
	if nx == 0 {
		nx = DefaultNX
	}
	if ny == 0 {
		ny = DefaultNY
	}
	c := &Client{url: url, nx: nx, ny: ny, client: &http.Client{Timeout: 20 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured reports whether a function URL is present.
func (c *Client) Configured() bool { return c.url != "" }

// Fetch asks the function for the multi-day outlook.
func (c *Client) Fetch(ctx context.Context) (*Report, error) {
	if c.url == "" {
		return nil, ErrNotConfigured
	}

	body, _ := json.Marshal(map[string]int{"nx": c.nx, "ny": c.ny})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("weather: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("weather: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("weather: status %d: %s", resp.StatusCode, string(respBody))
	}

	var report Report
	if err := json.NewDecoder(resp.Body).Decode(&report); err != nil {
		return nil, fmt.Errorf("weather: decode response: %w", err)
	}
	if !report.OK {
		return nil, fmt.Errorf("weather: function error: %s", report.Error)
	}
	return &report, nil
}

// RainyDates extracts the dates with rain from a summary, normalized to
// YYYY-MM-DD and sorted. The function keys dates as YYYYMMDD; itinerary
// dates are dashed, and the two must stay comparable.
func RainyDates(summary map[string]DayCondition) []string {
	var rainy []string
	for d, v := range summary {
		if v.RainCondition == 1 {
			rainy = append(rainy, normalizeDate(d))
		}
	}
	sort.Strings(rainy)
	return rainy
}

func normalizeDate(d string) string {
	if len(d) != 8 {
		return d
	}
	for _, r := range d {
		if r < '0' || r > '9' {
			return d
		}
	}
	return d[:4] + "-" + d[4:6] + "-" + d[6:]
}
