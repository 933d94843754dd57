// Package weather is a client for the AccuWeather data service. It
// resolves device coordinates to a location key at registration and
// fetches hourly forecasts for that key.
package weather

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/flora-iot/flora-core/internal/device"
	"github.com/flora-iot/flora-core/internal/secrets"
)

// Defaults for the AccuWeather client.
const (
	DefaultBaseURL    = "https://dataservice.accuweather.com"
	DefaultAPIKeyID   = "accuweather-api-key"
	defaultTimeout    = 10 * time.Second
	defaultRatePerSec = 5
	defaultBurst      = 1
	maxResponseBytes  = 4 << 20
	maxErrorSnippet   = 512
	apiLanguage       = "en-us"
)

var (
	// ErrUpstream is returned when AccuWeather answers with a failure or
	// an unreadable body.
	ErrUpstream = errors.New("weather: upstream error")

	// ErrNotFound is returned when AccuWeather has no such location.
	ErrNotFound = errors.New("weather: location not found")

	// ErrInvalidLocationKey is returned for keys that are not numeric.
	ErrInvalidLocationKey = errors.New("weather: invalid location key")

	// ErrRateLimited is returned when the local rate limiter refuses a call.
	ErrRateLimited = errors.New("weather: rate limited")
)

// APIError carries the status and a snippet of a failed upstream response.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("accuweather returned status %d: %s", e.Status, e.Body)
}

// Unwrap maps the status onto the package sentinels.
func (e *APIError) Unwrap() error {
	if e.Status == http.StatusNotFound {
		return ErrNotFound
	}
	return ErrUpstream
}

// Geoposition is the subset of a geoposition search result Flora keeps.
type Geoposition struct {
	Key           string `json:"Key"`
	EnglishName   string `json:"EnglishName"`
	LocalizedName string `json:"LocalizedName"`
}

// Client calls the AccuWeather data service.
type Client struct {
	baseURL    string
	apiKeyID   string
	secrets    secrets.Provider
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the service root.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithAPIKeyID sets the secret holding the API key.
func WithAPIKeyID(id string) Option {
	return func(c *Client) { c.apiKeyID = id }
}

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.httpClient = h }
}

// WithRateLimit caps outbound requests per second.
func WithRateLimit(perSecond float64) Option {
	return func(c *Client) {
		if perSecond > 0 {
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), defaultBurst)
		}
	}
}

// NewClient creates an AccuWeather client that reads its API key from p.
func NewClient(p secrets.Provider, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKeyID:   DefaultAPIKeyID,
		secrets:    p,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second/defaultRatePerSec), defaultBurst),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Geoposition finds the AccuWeather location for a coordinate pair.
func (c *Client) Geoposition(ctx context.Context, lat, long float64) (*Geoposition, error) {
	q := url.Values{
		"q":        {strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(long, 'f', -1, 64)},
		"details":  {"true"},
		"toplevel": {"true"},
	}
	body, err := c.get(ctx, "/locations/v1/cities/geoposition/search", q)
	if err != nil {
		return nil, err
	}

	var pos Geoposition
	if err := json.Unmarshal(body, &pos); err != nil {
		return nil, fmt.Errorf("%w: decoding geoposition: %w", ErrUpstream, err)
	}
	if pos.Key == "" {
		return nil, fmt.Errorf("%w: no location for %v,%v", ErrNotFound, lat, long)
	}
	return &pos, nil
}

// Locate implements device.Geolocator.
func (c *Client) Locate(ctx context.Context, lat, long float64) (device.Place, error) {
	pos, err := c.Geoposition(ctx, lat, long)
	if err != nil {
		return device.Place{}, err
	}
	return device.Place{Name: pos.EnglishName, Key: pos.Key}, nil
}

// HourlyForecast returns the 12-hour hourly forecast for a location key,
// in imperial units, exactly as AccuWeather sent it.
func (c *Client) HourlyForecast(ctx context.Context, locationKey string) (json.RawMessage, error) {
	if !isLocationKey(locationKey) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLocationKey, locationKey)
	}
	q := url.Values{
		"details": {"true"},
		"metric":  {"false"},
	}
	body, err := c.get(ctx, "/forecasts/v1/hourly/12hour/"+locationKey, q)
	if err != nil {
		return nil, err
	}
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: forecast is not JSON", ErrUpstream)
	}
	return json.RawMessage(body), nil
}

func (c *Client) get(ctx context.Context, path string, q url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: %w", ErrRateLimited, err)
	}

	key, err := c.secrets.GetSecret(ctx, c.apiKeyID)
	if err != nil {
		return nil, fmt.Errorf("loading accuweather api key: %w", err)
	}
	q.Set("language", apiLanguage)
	q.Set("apikey", key)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("building accuweather request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, redact(err, key))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUpstream, err)
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		secrets.Forget(c.secrets, c.apiKeyID)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := string(body)
		if len(snippet) > maxErrorSnippet {
			snippet = snippet[:maxErrorSnippet]
		}
		return nil, &APIError{Status: resp.StatusCode, Body: snippet}
	}
	return body, nil
}

func isLocationKey(s string) bool {
	if s == "" || len(s) > 32 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// redact strips the API key from transport errors, which embed the URL.
func redact(err error, key string) error {
	if key == "" {
		return err
	}
	msg := err.Error()
	if !strings.Contains(msg, key) {
		return err
	}
	return errors.New(strings.ReplaceAll(msg, key, "REDACTED"))
}
