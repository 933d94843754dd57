package query

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/flora-iot/flora-core/internal/auth"
	"github.com/flora-iot/flora-core/internal/device"
)

// maxLookupBody caps the registry response read into memory.
const maxLookupBody = 1 << 20

// HTTPLookup asks a remote Flora registry for the caller's devices,
// acting with the caller's own bearer token.
type HTTPLookup struct {
	baseURL string
	client  *http.Client
}

// NewHTTPLookup creates a lookup against baseURL. A nil client uses
// http.DefaultClient; the Checker supplies the deadline.
func NewHTTPLookup(baseURL string, client *http.Client) *HTTPLookup {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPLookup{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

type devicesPayload struct {
	Devices *[]device.Device `json:"devices"`
}

// LookupDevices implements DeviceLookup. Anything other than a 200 with a
// JSON object carrying a devices array is an error.
func (h *HTTPLookup) LookupDevices(ctx context.Context, deviceID string, caller auth.Identity) ([]device.Device, error) {
	endpoint := h.baseURL + "/api/v1/devices?device_id=" + url.QueryEscape(deviceID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("building registry request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if caller.Token != "" {
		req.Header.Set("Authorization", "Bearer "+caller.Token)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling device registry: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxLookupBody))
	if err != nil {
		return nil, fmt.Errorf("reading registry response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("device registry returned status %d", resp.StatusCode)
	}

	var payload devicesPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decoding registry response: %w", err)
	}
	if payload.Devices == nil {
		return nil, fmt.Errorf("registry response has no devices array")
	}
	return *payload.Devices, nil
}
