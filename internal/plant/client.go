// Package plant is a client for the Perenual plant species API.
package plant

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

	"github.com/flora-iot/flora-core/internal/secrets"
)

// Defaults for the Perenual client.
const (
	DefaultBaseURL    = "https://perenual.com"
	DefaultAPIKeyID   = "perenual-api-key"
	defaultTimeout    = 10 * time.Second
	defaultRatePerSec = 2
	maxResponseBytes  = 4 << 20
)

var (
	// ErrUpstream is returned when Perenual fails or answers with something
	// that is not JSON.
	ErrUpstream = errors.New("plant: upstream error")

	// ErrNotFound is returned for unknown species.
	ErrNotFound = errors.New("plant: species not found")

	// ErrInvalidSpeciesID is returned for IDs that are not positive integers.
	ErrInvalidSpeciesID = errors.New("plant: invalid species id")
)

// Client fetches species details from Perenual.
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
			c.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
		}
	}
}

// NewClient creates a Perenual client that reads its API key from p.
func NewClient(p secrets.Provider, opts ...Option) *Client {
	c := &Client{
		baseURL:    DefaultBaseURL,
		apiKeyID:   DefaultAPIKeyID,
		secrets:    p,
		httpClient: &http.Client{Timeout: defaultTimeout},
		limiter:    rate.NewLimiter(rate.Every(time.Second/defaultRatePerSec), 1),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ParseSpeciesID validates a species ID taken from a URL.
func ParseSpeciesID(s string) (int, error) {
	id, err := strconv.Atoi(s)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidSpeciesID, s)
	}
	return id, nil
}

// SpeciesDetails returns Perenual's details document for a species,
// exactly as Perenual sent it.
func (c *Client) SpeciesDetails(ctx context.Context, id int) (json.RawMessage, error) {
	if id <= 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSpeciesID, id)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("%w: rate limited: %w", ErrUpstream, err)
	}

	key, err := c.secrets.GetSecret(ctx, c.apiKeyID)
	if err != nil {
		return nil, fmt.Errorf("loading perenual api key: %w", err)
	}

	endpoint := c.baseURL + "/api/species/details/" + strconv.Itoa(id) + "?" + url.Values{"key": {key}}.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building perenual request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Transport errors embed the URL, and with it the key.
		return nil, fmt.Errorf("%w: request for species %d failed", ErrUpstream, id)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading response: %w", ErrUpstream, err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		secrets.Forget(c.secrets, c.apiKeyID)
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %d", ErrNotFound, id)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	case !json.Valid(body):
		return nil, fmt.Errorf("%w: response is not JSON", ErrUpstream)
	}
	return json.RawMessage(body), nil
}
