// Package secrets supplies API keys and other credentials to the
// components that call external services.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Provider returns a secret by identifier.
type Provider interface {
	GetSecret(ctx context.Context, id string) (string, error)
}

// Invalidator is implemented by providers that cache secrets.
type Invalidator interface {
	Invalidate(id string)
}

// Forget drops id from p's cache when p caches, so the next GetSecret
// fetches it again. Clients call it when an upstream rejects a key.
func Forget(p Provider, id string) {
	if inv, ok := p.(Invalidator); ok {
		inv.Invalidate(id)
	}
}

var (
	// ErrSecretNotFound is returned when the provider has no such secret.
	ErrSecretNotFound = errors.New("secrets: not found")

	// ErrProviderFailure is returned when the backing service fails.
	ErrProviderFailure = errors.New("secrets: provider failure")
)

// EnvPrefix is prepended to the normalised secret ID to form the
// environment variable name.
const EnvPrefix = "FLORA_SECRET_"

// EnvProvider reads secrets from the process environment. The secret
// "accuweather-api-key" is read from FLORA_SECRET_ACCUWEATHER_API_KEY.
type EnvProvider struct {
	lookup func(string) (string, bool)
}

// NewEnvProvider creates a provider over os.LookupEnv.
func NewEnvProvider() *EnvProvider {
	return &EnvProvider{lookup: os.LookupEnv}
}

// EnvName returns the environment variable that holds secret id.
func EnvName(id string) string {
	return EnvPrefix + strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToUpper(r)
		}
		return '_'
	}, id)
}

// GetSecret implements Provider.
func (p *EnvProvider) GetSecret(_ context.Context, id string) (string, error) {
	v, ok := p.lookup(EnvName(id))
	if !ok || v == "" {
		return "", fmt.Errorf("%w: %s", ErrSecretNotFound, id)
	}
	return v, nil
}
