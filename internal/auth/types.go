package auth

import (
	"errors"
	"regexp"
	"time"
)

// usernamePattern: alphanumeric, dots, hyphens, underscores, @ for
// email-style names, 1-64 characters.
var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._@-]{1,64}$`)

// minPasswordLength is the shortest password accepted at registration.
const minPasswordLength = 8

// IsValidUsername checks if a username meets format requirements.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// User is a plant owner's account.
type User struct {
	ID           string    `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email,omitempty"`
	PasswordHash string    `json:"-"` // never serialised
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// RefreshToken is a stored refresh token. Tokens issued from the same
// login share a FamilyID so a replayed token can revoke the whole chain.
type RefreshToken struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	FamilyID  string    `json:"family_id"`
	TokenHash string    `json:"-"` // never serialised
	ExpiresAt time.Time `json:"expires_at"`
	Revoked   bool      `json:"revoked"`
	CreatedAt time.Time `json:"created_at"`
}

// Sentinel errors for auth operations.
var (
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	ErrUserNotFound       = errors.New("auth: user not found")
	ErrUserInactive       = errors.New("auth: user account is inactive")
	ErrUsernameExists     = errors.New("auth: username already exists")
	ErrInvalidUsername    = errors.New("auth: invalid username")
	ErrWeakPassword       = errors.New("auth: password too short")
	ErrTokenExpired       = errors.New("auth: token has expired")
	ErrTokenRevoked       = errors.New("auth: token has been revoked")
	ErrTokenInvalid       = errors.New("auth: invalid token")
	ErrTokenReuse         = errors.New("auth: refresh token reuse detected")
	ErrSignupDisabled     = errors.New("auth: self-service signup is disabled")
)
