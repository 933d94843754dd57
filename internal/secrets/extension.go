package secrets

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
)

// DefaultExtensionPort is the port the parameters and secrets extension
// listens on.
const DefaultExtensionPort = 2773

// extensionTokenHeader carries the session token the extension requires.
const extensionTokenHeader = "X-Aws-Parameters-Secrets-Token" //nolint:gosec // header name, not a credential

// ExtensionProvider fetches secrets from a local secrets-manager
// extension over HTTP.
type ExtensionProvider struct {
	baseURL      string
	sessionToken string
	client       *http.Client
}

// NewExtensionProvider creates a provider for the extension on
// localhost:port. A nil client uses http.DefaultClient.
func NewExtensionProvider(port int, sessionToken string, client *http.Client) *ExtensionProvider {
	if port <= 0 {
		port = DefaultExtensionPort
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &ExtensionProvider{
		baseURL:      "http://localhost:" + strconv.Itoa(port),
		sessionToken: sessionToken,
		client:       client,
	}
}

type extensionResponse struct {
	SecretString *string `json:"SecretString"`
}

// GetSecret implements Provider.
func (p *ExtensionProvider) GetSecret(ctx context.Context, id string) (string, error) {
	endpoint := p.baseURL + "/secretsmanager/get?secretId=" + url.QueryEscape(id)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("%w: building request: %w", ErrProviderFailure, err)
	}
	req.Header.Set(extensionTokenHeader, p.sessionToken)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrProviderFailure, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, id)
	case resp.StatusCode != http.StatusOK:
		io.Copy(io.Discard, resp.Body) //nolint:errcheck // draining for connection reuse
		return "", fmt.Errorf("%w: status %d for %s", ErrProviderFailure, resp.StatusCode, id)
	}

	var body extensionResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", ErrProviderFailure, err)
	}
	if body.SecretString == nil {
		return "", fmt.Errorf("%w: %s has no SecretString", ErrSecretNotFound, id)
	}
	return *body.SecretString, nil
}
