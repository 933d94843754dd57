package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/flora-iot/flora-core/internal/audit"
	"github.com/flora-iot/flora-core/internal/auth"
	"github.com/flora-iot/flora-core/internal/device"
	"github.com/flora-iot/flora-core/internal/infrastructure/config"
	"github.com/flora-iot/flora-core/internal/infrastructure/database"
	"github.com/flora-iot/flora-core/internal/infrastructure/logging"
	"github.com/flora-iot/flora-core/internal/plant"
	"github.com/flora-iot/flora-core/internal/query"
	"github.com/flora-iot/flora-core/internal/reading"
	"github.com/flora-iot/flora-core/internal/weather"
	_ "github.com/flora-iot/flora-core/migrations"
)

const testSecret = "test-secret-key-at-least-32-characters-long"

// stubWeather and stubPlants return canned upstream documents or errors.
type stubWeather struct {
	body json.RawMessage
	err  error
}

func (s stubWeather) HourlyForecast(_ context.Context, key string) (json.RawMessage, error) {
	if strings.Trim(key, "0123456789") != "" {
		return nil, weather.ErrInvalidLocationKey
	}
	return s.body, s.err
}

type stubPlants struct {
	body json.RawMessage
	err  error
}

func (s stubPlants) SpeciesDetails(_ context.Context, _ int) (json.RawMessage, error) {
	return s.body, s.err
}

// testEnv is a server over a real in-memory database with a fixed
// geolocator and a reading clock at t=1000.
type testEnv struct {
	srv      *Server
	router   http.Handler
	db       *database.DB
	registry *device.Registry
	store    reading.Store
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := database.Open(context.Background(), database.Config{Path: database.MemoryPath})
	if err != nil {
		t.Fatalf("opening test database: %v", err)
	}
	t.Cleanup(func() { db.Close() }) //nolint:errcheck // Test cleanup
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrating test database: %v", err)
	}

	authSvc, err := auth.NewService(auth.NewUserRepository(db.DB), auth.NewTokenRepository(db.DB), auth.ServiceConfig{
		Secret:      testSecret,
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  time.Hour,
		AllowSignup: true,
	})
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}

	registry := device.NewRegistry(device.NewSQLiteRepository(db.DB), device.GeolocatorFunc(
		func(_ context.Context, _, _ float64) (device.Place, error) {
			return device.Place{Name: "Seattle", Key: "351409"}, nil
		}))
	store := reading.NewSQLiteStore(db.DB, 0)
	checker := query.NewChecker(query.LocalLookup{Registry: registry}, time.Second)
	engine := query.NewEngine(checker, store, query.WithClock(func() time.Time { return time.Unix(1000, 0) }))

	srv, err := New(Deps{
		Config: config.APIConfig{Host: "127.0.0.1"},
		WS: config.WebSocketConfig{
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:     logging.Discard(),
		Auth:       authSvc,
		Registry:   registry,
		Readings:   engine,
		Authorizer: checker,
		Weather:    stubWeather{body: json.RawMessage(`[{"IconPhrase":"Sunny"}]`)},
		Plants:     stubPlants{body: json.RawMessage(`{"id":1,"common_name":"European Silver Fir"}`)},
		Audit:      audit.NewSQLiteRepository(db.DB),
		DB:         db,
		Version:    "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	return &testEnv{srv: srv, router: srv.buildRouter(), db: db, registry: registry, store: store}
}

// do sends a request through the router. body is JSON-encoded unless nil.
func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

// signup registers a user and returns a fresh token pair.
func (e *testEnv) signup(t *testing.T, username string) auth.Tokens {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username": username,
		"password": "correct-horse-battery",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d, body %s", username, w.Code, w.Body)
	}
	return e.login(t, map[string]string{"username": username, "password": "correct-horse-battery"})
}

func (e *testEnv) login(t *testing.T, body map[string]string) auth.Tokens {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
	if w.Code != http.StatusOK {
		t.Fatalf("login: status %d, body %s", w.Code, w.Body)
	}
	var tokens auth.Tokens
	decode(t, w, &tokens)
	return tokens
}

// registerDevice creates a device for the token's user and returns its ID.
func (e *testEnv) registerDevice(t *testing.T, token, nickname string) string {
	t.Helper()

	w := e.do(t, http.MethodPost, "/api/v1/devices", token, map[string]any{
		"Nickname": nickname,
		"Location": map[string]float64{"Lat": 47.6, "Long": -122.3},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("register device: status %d, body %s", w.Code, w.Body)
	}
	var d device.Device
	decode(t, w, &d)
	return d.DeviceID
}

func (e *testEnv) seedReadings(t *testing.T, deviceID string, timestamps ...int64) {
	t.Helper()
	for _, ts := range timestamps {
		r := reading.SensorReading{
			ID:              fmt.Sprintf("%s-%d", deviceID, ts),
			DeviceID:        deviceID,
			Timestamp:       ts,
			ExpireTimestamp: ts + 63_072_000,
			Fields:          map[string]float64{"moisture": float64(ts) / 1000},
		}
		if err := e.store.Put(context.Background(), r); err != nil {
			t.Fatalf("Put(%d) error = %v", ts, err)
		}
	}
}

func decode(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), v); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body, err)
	}
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var e Error
	decode(t, w, &e)
	if e.Status != w.Code {
		t.Errorf("error body status = %d, response status = %d", e.Status, w.Code)
	}
	return e.Code
}

// ─── Server basics ─────────────────────────────────────────────────

func TestNew_RequiresDependencies(t *testing.T) {
	if _, err := New(Deps{}); err == nil {
		t.Error("New() with no dependencies succeeded")
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}
	var resp map[string]any
	decode(t, w, &resp)
	if resp["status"] != "ok" || resp["version"] != "test" {
		t.Errorf("body = %v", resp)
	}
}

func TestRequestID(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if len(w.Header().Get("X-Request-ID")) != 36 {
		t.Errorf("generated X-Request-ID = %q, want a UUID", w.Header().Get("X-Request-ID"))
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
	req.Header.Set("X-Request-ID", "client-id-1")
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	if got := rec.Header().Get("X-Request-ID"); got != "client-id-1" {
		t.Errorf("X-Request-ID = %q, want client value", got)
	}
}

func TestCORS_Preflight(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/readings", nil)
	req.Header.Set("Origin", "https://app.flora.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("preflight response has no Access-Control-Allow-Origin")
	}
	if w.Code >= 300 {
		t.Errorf("preflight status = %d", w.Code)
	}
}

func TestNotFound(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/nope", "", nil)
	if w.Code != http.StatusNotFound || errorCode(t, w) != ErrCodeNotFound {
		t.Errorf("status = %d, body %s", w.Code, w.Body)
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t)
	env.srv.cfg.RateLimit = config.RateLimitConfig{Enabled: true, RequestsPerMinute: 2}
	router := env.srv.buildRouter()

	var last int
	for range 3 {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
		req.RemoteAddr = "203.0.113.7:5555"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		last = w.Code
	}
	if last != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", last)
	}
}

func TestAuthMiddleware(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"wrong scheme", "Basic dXNlcjpwYXNz"},
		{"garbage token", "Bearer not-a-jwt"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/devices", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			env.router.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", w.Code)
			}
		})
	}
}

func TestMetrics(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var m SystemMetrics
	decode(t, w, &m)
	if m.Version != "test" || m.Runtime.Goroutines == 0 {
		t.Errorf("metrics = %+v", m)
	}
	if m.Database == nil {
		t.Error("Database = nil, want pool stats")
	}
	if m.MQTT != nil || m.InfluxDB != nil {
		t.Error("unconfigured components reported")
	}
}

func TestHealthCheck_NotStarted(t *testing.T) {
	env := newTestEnv(t)
	if err := env.srv.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() before Start succeeded")
	}
	if err := env.srv.Close(); err != nil {
		t.Errorf("Close() before Start error = %v", err)
	}
}

// ─── Auth ──────────────────────────────────────────────────────────

func TestLogin_PasswordAndRefresh(t *testing.T) {
	env := newTestEnv(t)
	first := env.signup(t, "alice")

	if first.TokenType != "Bearer" || first.ExpiresIn != 900 || first.RefreshToken == "" {
		t.Errorf("tokens = %+v", first)
	}

	second := env.login(t, map[string]string{"refresh_token": first.RefreshToken})
	if second.RefreshToken == first.RefreshToken {
		t.Error("refresh token was not rotated")
	}

	// Replaying the rotated token is rejected.
	w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"refresh_token": first.RefreshToken})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("replay status = %d, want 401", w.Code)
	}
}

func TestLogin_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice")

	tests := []struct {
		name string
		body any
		want int
	}{
		{"wrong password", map[string]string{"username": "alice", "password": "wrong-password"}, http.StatusUnauthorized},
		{"unknown user", map[string]string{"username": "mallory", "password": "whatever-it-is"}, http.StatusUnauthorized},
		{"unknown refresh token", map[string]string{"refresh_token": "deadbeef"}, http.StatusUnauthorized},
		{"empty body", map[string]string{}, http.StatusBadRequest},
		{"not an object", []int{1}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/auth/login", "", tt.body)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.want, w.Body)
			}
		})
	}
}

func TestLogout(t *testing.T) {
	env := newTestEnv(t)
	tokens := env.signup(t, "alice")

	w := env.do(t, http.MethodPost, "/api/v1/auth/logout", "", map[string]string{"refresh_token": tokens.RefreshToken})
	if w.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/auth/login", "", map[string]string{"refresh_token": tokens.RefreshToken})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("refresh after logout status = %d, want 401", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/v1/auth/logout", "", map[string]string{"refresh_token": "unknown"})
	if w.Code != http.StatusNoContent {
		t.Errorf("logout with unknown token status = %d, want 204", w.Code)
	}
}

func TestRegister_Rejections(t *testing.T) {
	env := newTestEnv(t)
	env.signup(t, "alice")

	tests := []struct {
		name     string
		body     map[string]string
		wantCode int
	}{
		{"duplicate username", map[string]string{"username": "alice", "password": "long-enough-pw"}, http.StatusConflict},
		{"weak password", map[string]string{"username": "bob", "password": "short"}, http.StatusBadRequest},
		{"invalid username", map[string]string{"username": "bob smith", "password": "long-enough-pw"}, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/auth/register", "", tt.body)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body)
			}
		})
	}
}

// ─── Devices ───────────────────────────────────────────────────────

func TestRegisterDevice(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	w := env.do(t, http.MethodPost, "/api/v1/devices", alice.AccessToken, map[string]any{
		"Nickname": "Fern",
		"Location": map[string]float64{"Lat": 47.6, "Long": -122.3},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}

	var d map[string]any
	decode(t, w, &d)
	if d["DeviceId"] == "" || d["Nickname"] != "Fern" || d["BatteryLife"] != float64(-1) {
		t.Errorf("device = %v", d)
	}
	loc, _ := d["Location"].(map[string]any)
	if loc["LocationName"] != "Seattle" || loc["LocationKey"] != "351409" {
		t.Errorf("Location = %v", loc)
	}
}

func TestRegisterDevice_Validation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	tests := []struct {
		name string
		body any
	}{
		{"missing location", map[string]any{"Nickname": "Fern"}},
		{"missing nickname", map[string]any{"Location": map[string]float64{"Lat": 1, "Long": 2}}},
		{"latitude out of range", map[string]any{"Nickname": "Fern", "Location": map[string]float64{"Lat": 91, "Long": 2}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodPost, "/api/v1/devices", alice.AccessToken, tt.body)
			if w.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400 (body %s)", w.Code, w.Body)
			}
		})
	}
}

func TestListDevices_ScopedToCaller(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	fern := env.registerDevice(t, alice.AccessToken, "Fern")
	env.registerDevice(t, alice.AccessToken, "Basil")

	list := func(token, query string) []device.Device {
		t.Helper()
		w := env.do(t, http.MethodGet, "/api/v1/devices"+query, token, nil)
		if w.Code != http.StatusOK {
			t.Fatalf("status = %d", w.Code)
		}
		var resp deviceListResponse
		decode(t, w, &resp)
		if resp.Devices == nil {
			t.Fatal("devices = null, want an array")
		}
		return resp.Devices
	}

	if got := list(alice.AccessToken, ""); len(got) != 2 {
		t.Errorf("alice sees %d devices, want 2", len(got))
	}
	if got := list(alice.AccessToken, "?device_id="+fern); len(got) != 1 || got[0].Nickname != "Fern" {
		t.Errorf("alice filtered = %+v", got)
	}
	if got := list(bob.AccessToken, "?device_id="+fern); len(got) != 0 {
		t.Errorf("bob sees alice's device: %+v", got)
	}
}

// ─── Readings ──────────────────────────────────────────────────────

type readingsResponse struct {
	Items      []reading.SensorReading `json:"items"`
	NextCursor *string                 `json:"nextCursor"`
}

func timestampsOf(items []reading.SensorReading) []int64 {
	out := make([]int64, len(items))
	for i, r := range items {
		out[i] = r.Timestamp
	}
	return out
}

func TestListReadings_HourlyPagination(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	id := env.registerDevice(t, alice.AccessToken, "Fern")
	env.seedReadings(t, id, 100, 200, 300, 400, 500)

	w := env.do(t, http.MethodGet, "/api/v1/readings?device_id="+id+"&range=hourly", alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var first readingsResponse
	decode(t, w, &first)
	if got := fmt.Sprint(timestampsOf(first.Items)); got != "[500 400 300 200]" {
		t.Errorf("first page = %s", got)
	}
	if first.NextCursor == nil {
		t.Fatal("nextCursor = null on a full page")
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/readings?device_id="+id+"&range=HOURLY", nil)
	q := req.URL.Query()
	q.Set("page", *first.NextCursor)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("Authorization", "Bearer "+alice.AccessToken)
	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	var second readingsResponse
	decode(t, rec, &second)
	if got := fmt.Sprint(timestampsOf(second.Items)); got != "[100]" {
		t.Errorf("second page = %s", got)
	}
	if second.NextCursor != nil {
		t.Errorf("nextCursor = %q, want null", *second.NextCursor)
	}
}

func TestListReadings_ExplicitWindow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	id := env.registerDevice(t, alice.AccessToken, "Fern")
	env.seedReadings(t, id, 100, 200, 300, 400, 500)

	w := env.do(t, http.MethodGet, "/api/v1/readings?device_id="+id+"&start_timestamp=200&end_timestamp=400", alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var resp readingsResponse
	decode(t, w, &resp)
	if got := fmt.Sprint(timestampsOf(resp.Items)); got != "[200 300 400]" {
		t.Errorf("items = %s", got)
	}
}

func TestListReadings_Rejections(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	id := env.registerDevice(t, alice.AccessToken, "Fern")
	env.seedReadings(t, id, 100)

	tests := []struct {
		name     string
		token    string
		query    string
		wantCode int
	}{
		{"no token", "", "?device_id=" + id, http.StatusUnauthorized},
		{"other owner", bob.AccessToken, "?device_id=" + id, http.StatusForbidden},
		{"unknown device", alice.AccessToken, "?device_id=ghost", http.StatusForbidden},
		{"missing device", alice.AccessToken, "", http.StatusBadRequest},
		{"non-numeric start", alice.AccessToken, "?device_id=" + id + "&start_timestamp=x&end_timestamp=5", http.StatusBadRequest},
		{"half a window", alice.AccessToken, "?device_id=" + id + "&start_timestamp=5", http.StatusBadRequest},
		{"unknown range", alice.AccessToken, "?device_id=" + id + "&range=WEEKLY", http.StatusBadRequest},
		{"bad page token", alice.AccessToken, "?device_id=" + id + "&page=%21%21", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := env.do(t, http.MethodGet, "/api/v1/readings"+tt.query, tt.token, nil)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body)
			}
		})
	}
}

// stubFetcher fails every query with err.
type stubFetcher struct{ err error }

func (s stubFetcher) FetchReadings(context.Context, query.Filter) (*query.Result, error) {
	return nil, s.err
}

func TestListReadings_ErrorMapping(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	tests := []struct {
		err      error
		wantCode int
		wantBody string
	}{
		{query.ErrUnauthenticated, http.StatusUnauthorized, ErrCodeUnauthorized},
		{query.ErrForbidden, http.StatusForbidden, ErrCodeForbidden},
		{fmt.Errorf("%w: start after end", query.ErrInvalidFilter), http.StatusBadRequest, ErrCodeValidation},
		{fmt.Errorf("%w: timeout", query.ErrAuthorizationService), http.StatusBadGateway, ErrCodeBadGateway},
		{fmt.Errorf("%w: locked", query.ErrStoreUnavailable), http.StatusServiceUnavailable, ErrCodeUnavailable},
		{query.ErrStoreRejectedQuery, http.StatusInternalServerError, ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			env.srv.readings = stubFetcher{err: tt.err}
			router := env.srv.buildRouter()

			req := httptest.NewRequest(http.MethodGet, "/api/v1/readings?device_id=d1", nil)
			req.Header.Set("Authorization", "Bearer "+alice.AccessToken)
			w := httptest.NewRecorder()
			router.ServeHTTP(w, req)

			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", w.Code, tt.wantCode)
			}
			if code := errorCode(t, w); code != tt.wantBody {
				t.Errorf("code = %q, want %q", code, tt.wantBody)
			}
		})
	}
}

// ─── Activity ──────────────────────────────────────────────────────

func TestListActivity(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	bob := env.signup(t, "bob")
	env.registerDevice(t, alice.AccessToken, "Fern")

	w := env.do(t, http.MethodGet, "/api/v1/activity", alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body)
	}
	var res audit.ListResult
	decode(t, w, &res)

	var actions []string
	for _, l := range res.Logs {
		actions = append(actions, l.Action)
	}
	if got := strings.Join(actions, ","); got != "register_device,login,register" {
		t.Errorf("alice activity = %s", got)
	}

	w = env.do(t, http.MethodGet, "/api/v1/activity?action=register_device", bob.AccessToken, nil)
	decode(t, w, &res)
	if res.Total != 0 {
		t.Errorf("bob sees %d device registrations, want 0", res.Total)
	}

	w = env.do(t, http.MethodGet, "/api/v1/activity?limit=x", alice.AccessToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d, want 400", w.Code)
	}
}

// ─── Plant and weather pass-throughs ───────────────────────────────

func TestGetPlant(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	w := env.do(t, http.MethodGet, "/api/v1/plants/1", alice.AccessToken, nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "European Silver Fir") {
		t.Errorf("status = %d, body %s", w.Code, w.Body)
	}

	w = env.do(t, http.MethodGet, "/api/v1/plants/abc", alice.AccessToken, nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("non-numeric id status = %d, want 400", w.Code)
	}

	env.srv.plants = stubPlants{err: plant.ErrNotFound}
	w = env.do(t, http.MethodGet, "/api/v1/plants/9999", alice.AccessToken, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown species status = %d, want 404", w.Code)
	}

	env.srv.plants = stubPlants{err: fmt.Errorf("%w: status 500", plant.ErrUpstream)}
	w = env.do(t, http.MethodGet, "/api/v1/plants/1", alice.AccessToken, nil)
	if w.Code != http.StatusBadGateway {
		t.Errorf("upstream failure status = %d, want 502", w.Code)
	}
}

func TestGetWeather(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	tests := []struct {
		name     string
		stub     stubWeather
		key      string
		wantCode int
	}{
		{"forecast", stubWeather{body: json.RawMessage(`[]`)}, "351409", http.StatusOK},
		{"bad key", stubWeather{}, "seattle", http.StatusBadRequest},
		{"unknown key", stubWeather{err: weather.ErrNotFound}, "1", http.StatusNotFound},
		{"rate limited", stubWeather{err: weather.ErrRateLimited}, "1", http.StatusTooManyRequests},
		{"upstream down", stubWeather{err: &weather.APIError{Status: 503}}, "1", http.StatusBadGateway},
		{"timeout", stubWeather{err: context.DeadlineExceeded}, "1", http.StatusGatewayTimeout},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env.srv.weather = tt.stub
			w := env.do(t, http.MethodGet, "/api/v1/weather/"+tt.key, alice.AccessToken, nil)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body)
			}
		})
	}
}

func TestExternal_NotConfigured(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")
	env.srv.weather = nil
	env.srv.plants = nil

	for _, path := range []string{"/api/v1/weather/1", "/api/v1/plants/1"} {
		w := env.do(t, http.MethodGet, path, alice.AccessToken, nil)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("%s status = %d, want 503", path, w.Code)
		}
	}
}

// ─── WebSocket tickets ─────────────────────────────────────────────

func TestWSTicket_SingleUse(t *testing.T) {
	env := newTestEnv(t)
	alice := env.signup(t, "alice")

	w := env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", alice.AccessToken, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var resp struct {
		Ticket    string `json:"ticket"`
		ExpiresIn int    `json:"expires_in"`
	}
	decode(t, w, &resp)
	if len(resp.Ticket) != 2*ticketBytes || resp.ExpiresIn != 60 {
		t.Errorf("ticket response = %+v", resp)
	}

	id, ok := env.srv.redeemTicket(resp.Ticket)
	if !ok || id.Username != "alice" {
		t.Errorf("first redeem = (%+v, %v), want alice", id, ok)
	}
	if _, ok := env.srv.redeemTicket(resp.Ticket); ok {
		t.Error("ticket redeemed twice")
	}
}

func TestWSTicket_RequiresAuth(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodPost, "/api/v1/auth/ws-ticket", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
	w = env.do(t, http.MethodGet, "/api/v1/ws?ticket=unknown", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("ws with unknown ticket status = %d, want 401", w.Code)
	}
}

func TestWriteAuthError_Internal(t *testing.T) {
	env := newTestEnv(t)
	w := httptest.NewRecorder()
	env.srv.writeAuthError(w, errors.New("disk full"))
	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", w.Code)
	}
}
