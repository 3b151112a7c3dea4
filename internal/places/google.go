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
	"time"
)

const defaultGoogleBaseURL = "https://maps.googleapis.com/maps/api"

// GoogleConfig configures the Google Maps Web Services client.
type GoogleConfig struct {
	APIKey   string
	BaseURL  string // override for tests; defaults to the public API
	Language string // defaults to "ko"
	Region   string // defaults to "kr"
}

// GoogleClient implements Directory against the Google Maps Web Services
// (Find Place, Geocoding, Place Details, Nearby Search).
type GoogleClient struct {
	httpClient *http.Client
	baseURL    string
	key        string
	language   string
	region     string
}

// NewGoogleClient creates a directory client. An empty API key is allowed;
// every call then fails with a typed LookupError and callers degrade.
func NewGoogleClient(cfg GoogleConfig) *GoogleClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultGoogleBaseURL
	}
	if cfg.Language == "" {
		cfg.Language = "ko"
	}
	if cfg.Region == "" {
		cfg.Region = "kr"
	}
	return &GoogleClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		key:        cfg.APIKey,
		language:   cfg.Language,
		region:     cfg.Region,
	}
}

// Configured reports whether an API key is present.
func (c *GoogleClient) Configured() bool { return c.key != "" }

// ── Wire shapes ──────────────────────────────────────────────

type googleLocation struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type googleGeometry struct {
	Location *googleLocation `json:"location"`
}

type googlePlace struct {
	Name     string          `json:"name"`
	PlaceID  string          `json:"place_id"`
	Vicinity string          `json:"vicinity"`
	Rating   *float64        `json:"rating"`
	Geometry *googleGeometry `json:"geometry"`
	Types    []string        `json:"types"`
}

type googleDetails struct {
	Name             string          `json:"name"`
	FormattedAddress string          `json:"formatted_address"`
	Vicinity         string          `json:"vicinity"`
	Rating           *float64        `json:"rating"`
	Geometry         *googleGeometry `json:"geometry"`
	Types            []string        `json:"types"`
}

type googleGeocodeResult struct {
	FormattedAddress string          `json:"formatted_address"`
	Geometry         *googleGeometry `json:"geometry"`
}

// ── Directory implementation ─────────────────────────────────

func (c *GoogleClient) FindPlaceID(ctx context.Context, query string) (string, error) {
	params := url.Values{}
	params.Set("input", query)
	params.Set("inputtype", "textquery")
	params.Set("region", c.region)
	params.Set("fields", "place_id")

	var out struct {
		Candidates []struct {
			PlaceID string `json:"place_id"`
		} `json:"candidates"`
		Status string `json:"status"`
	}
	if err := c.get(ctx, "findplace", query, "/place/findplacefromtext/json", params, &out); err != nil {
		return "", err
	}
	if err := apiStatus("findplace", query, out.Status); err != nil {
		return "", err
	}
	if len(out.Candidates) == 0 || out.Candidates[0].PlaceID == "" {
		return "", &LookupError{Op: "findplace", Query: query, Status: "zero results"}
	}
	return out.Candidates[0].PlaceID, nil
}

func (c *GoogleClient) Geocode(ctx context.Context, placeID string) (string, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("region", c.region)

	var out struct {
		Results []googleGeocodeResult `json:"results"`
		Status  string                `json:"status"`
	}
	if err := c.get(ctx, "geocode", placeID, "/geocode/json", params, &out); err != nil {
		return "", err
	}
	if err := apiStatus("geocode", placeID, out.Status); err != nil {
		return "", err
	}
	if len(out.Results) == 0 || out.Results[0].Geometry == nil || out.Results[0].Geometry.Location == nil {
		return "", &LookupError{Op: "geocode", Query: placeID, Status: "zero results"}
	}
	loc := out.Results[0].Geometry.Location
	return formatLatLng(loc.Lat, loc.Lng), nil
}

func (c *GoogleClient) Details(ctx context.Context, placeID string) (*Details, error) {
	params := url.Values{}
	params.Set("place_id", placeID)
	params.Set("region", c.region)
	params.Set("fields", "name,formatted_address,address_components,adr_address,plus_code,rating,opening_hours,vicinity,geometry,types")

	var out struct {
		Result *googleDetails `json:"result"`
		Status string         `json:"status"`
	}
	if err := c.get(ctx, "details", placeID, "/place/details/json", params, &out); err != nil {
		return nil, err
	}
	if err := apiStatus("details", placeID, out.Status); err != nil {
		return nil, err
	}
	if out.Result == nil {
		return nil, &LookupError{Op: "details", Query: placeID, Status: "zero results"}
	}
	d := &Details{
		Name:             out.Result.Name,
		FormattedAddress: out.Result.FormattedAddress,
		Vicinity:         out.Result.Vicinity,
		Rating:           out.Result.Rating,
		Types:            out.Result.Types,
	}
	if out.Result.Geometry != nil && out.Result.Geometry.Location != nil {
		d.Lat = ptr(out.Result.Geometry.Location.Lat)
		d.Lng = ptr(out.Result.Geometry.Location.Lng)
	}
	return d, nil
}

func (c *GoogleClient) NearbySearch(ctx context.Context, location, keyword string, radiusM int) ([]Summary, error) {
	params := url.Values{}
	params.Set("location", location)
	params.Set("keyword", keyword)
	params.Set("radius", strconv.Itoa(radiusM))

	var out struct {
		Results []googlePlace `json:"results"`
		Status  string        `json:"status"`
	}
	if err := c.get(ctx, "nearby", keyword, "/place/nearbysearch/json", params, &out); err != nil {
		return nil, err
	}
	if err := apiStatus("nearby", keyword, out.Status); err != nil {
		return nil, err
	}
	results := make([]Summary, 0, len(out.Results))
	for _, r := range out.Results {
		s := Summary{
			Name:     r.Name,
			PlaceID:  r.PlaceID,
			Vicinity: r.Vicinity,
			Rating:   r.Rating,
			Types:    r.Types,
		}
		if r.Geometry != nil && r.Geometry.Location != nil {
			s.Lat = ptr(r.Geometry.Location.Lat)
			s.Lng = ptr(r.Geometry.Location.Lng)
		}
		results = append(results, s)
	}
	return results, nil
}

func (c *GoogleClient) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	latlng := formatLatLng(lat, lng)
	params := url.Values{}
	params.Set("latlng", latlng)
	params.Set("region", c.region)
	params.Set("result_type", "street_address|premise|point_of_interest")

	var out struct {
		Results []googleGeocodeResult `json:"results"`
		Status  string                `json:"status"`
	}
	if err := c.get(ctx, "revgeocode", latlng, "/geocode/json", params, &out); err != nil {
		return "", err
	}
	if err := apiStatus("revgeocode", latlng, out.Status); err != nil {
		return "", err
	}
	if len(out.Results) == 0 || out.Results[0].FormattedAddress == "" {
		return "", &LookupError{Op: "revgeocode", Query: latlng, Status: "zero results"}
	}
	return out.Results[0].FormattedAddress, nil
}

// ── Transport ────────────────────────────────────────────────

func (c *GoogleClient) get(ctx context.Context, op, query, path string, params url.Values, out any) error {
	if c.key == "" {
		return &LookupError{Op: op, Query: query, Status: "api key not configured"}
	}
	params.Set("key", c.key)
	params.Set("language", c.language)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return &LookupError{Op: op, Query: query, Status: "bad request", Err: err}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &LookupError{Op: op, Query: query, Status: "transport failure", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &LookupError{
			Op:     op,
			Query:  query,
			Status: fmt.Sprintf("http %d: %s", resp.StatusCode, strings.TrimSpace(string(body))),
		}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &LookupError{Op: op, Query: query, Status: "undecodable response", Err: err}
	}
	return nil
}

// apiStatus maps a Google Web Services status field to an error. OK and
// ZERO_RESULTS pass; ZERO_RESULTS simply yields empty collections upstream.
func apiStatus(op, query, status string) error {
	switch status {
	case "OK", "ZERO_RESULTS", "":
		return nil
	default:
		return &LookupError{Op: op, Query: query, Status: status}
	}
}

func formatLatLng(lat, lng float64) string {
	return strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
}

func ptr(v float64) *float64 { return &v }
