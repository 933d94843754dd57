package auth

import (
	"context"
	"fmt"
	"strings"
)

// Identity is the authenticated caller attached to a request context.
type Identity struct {
	// Subject is the stable user identifier (the token's sub claim).
	Subject string

	Username string

	// Token is the raw bearer token, kept so calls to sibling services
	// can act with the caller's identity.
	Token string

	Claims *Claims
}

type identityKey struct{}

// WithIdentity returns a copy of ctx carrying id.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey{}, id)
}

// IdentityFromContext returns the caller identity, or ErrUnauthenticated
// when none is present or its subject is empty.
func IdentityFromContext(ctx context.Context) (Identity, error) {
	id, ok := ctx.Value(identityKey{}).(Identity)
	if !ok || strings.TrimSpace(id.Subject) == "" {
		return Identity{}, ErrUnauthenticated
	}
	return id, nil
}

// UserIDFromContext returns the caller's user identifier.
func UserIDFromContext(ctx context.Context) (string, error) {
	id, err := IdentityFromContext(ctx)
	if err != nil {
		return "", err
	}
	return id.Subject, nil
}

// IdentityFromToken validates a bearer token and builds the identity it
// asserts.
func IdentityFromToken(token, secret string) (Identity, error) {
	claims, err := ParseToken(token, secret)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %w", ErrUnauthenticated, err)
	}
	return Identity{
		Subject:  claims.Subject,
		Username: claims.Username,
		Token:    token,
		Claims:   claims,
	}, nil
}

// BearerToken extracts the token from an Authorization header value.
// The scheme match is case-insensitive.
func BearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
