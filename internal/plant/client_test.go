package plant

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type staticSecrets map[string]string

func (s staticSecrets) GetSecret(_ context.Context, id string) (string, error) {
	v, ok := s[id]
	if !ok {
		return "", errors.New("no secret " + id)
	}
	return v, nil
}

// forgetfulSecrets records invalidations.
type forgetfulSecrets struct {
	staticSecrets
	forgotten []string
}

func (f *forgetfulSecrets) Invalidate(id string) {
	f.forgotten = append(f.forgotten, id)
}

func TestClient_SpeciesDetails(t *testing.T) {
	const doc = `{"id":1,"common_name":"European Silver Fir","watering":"Frequent"}`
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/species/details/1":
			if r.URL.Query().Get("key") != "pk" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			w.Write([]byte(doc)) //nolint:errcheck // test server
		case "/api/species/details/2":
			w.Write([]byte(`Upgrade plans`)) //nolint:errcheck // test server
		case "/api/species/details/3":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(staticSecrets{DefaultAPIKeyID: "pk"},
		WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(1000))
	ctx := context.Background()

	got, err := c.SpeciesDetails(ctx, 1)
	if err != nil {
		t.Fatalf("SpeciesDetails() error = %v", err)
	}
	if string(got) != doc {
		t.Errorf("SpeciesDetails() = %s, want pass-through body", got)
	}

	tests := []struct {
		id      int
		wantErr error
	}{
		{2, ErrUpstream},
		{3, ErrUpstream},
		{99, ErrNotFound},
		{0, ErrInvalidSpeciesID},
	}
	for _, tt := range tests {
		if _, err := c.SpeciesDetails(ctx, tt.id); !errors.Is(err, tt.wantErr) {
			t.Errorf("SpeciesDetails(%d) error = %v, want %v", tt.id, err, tt.wantErr)
		}
	}
}

func TestClient_TransportErrorHidesKey(t *testing.T) {
	c := NewClient(staticSecrets{DefaultAPIKeyID: "very-secret"}, WithBaseURL("http://127.0.0.1:1"))
	_, err := c.SpeciesDetails(context.Background(), 5)
	if !errors.Is(err, ErrUpstream) {
		t.Fatalf("SpeciesDetails() error = %v, want ErrUpstream", err)
	}
	if strings.Contains(err.Error(), "very-secret") {
		t.Errorf("error %q leaks the api key", err)
	}
}

func TestParseSpeciesID(t *testing.T) {
	if id, err := ParseSpeciesID("42"); err != nil || id != 42 {
		t.Errorf("ParseSpeciesID(42) = %d, %v", id, err)
	}
	for _, s := range []string{"", "0", "-3", "abc", "1.5"} {
		if _, err := ParseSpeciesID(s); !errors.Is(err, ErrInvalidSpeciesID) {
			t.Errorf("ParseSpeciesID(%q) error = %v, want ErrInvalidSpeciesID", s, err)
		}
	}
}

func TestClient_RejectedKeyIsForgotten(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	provider := &forgetfulSecrets{staticSecrets: staticSecrets{DefaultAPIKeyID: "stale"}}
	c := NewClient(provider, WithBaseURL(srv.URL), WithHTTPClient(srv.Client()), WithRateLimit(1000))

	if _, err := c.SpeciesDetails(context.Background(), 1); !errors.Is(err, ErrUpstream) {
		t.Fatalf("SpeciesDetails() error = %v, want ErrUpstream", err)
	}
	if len(provider.forgotten) != 1 || provider.forgotten[0] != DefaultAPIKeyID {
		t.Errorf("forgotten = %v, want [%s]", provider.forgotten, DefaultAPIKeyID)
	}
}
