package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Logger defines the logging interface used by the auth service.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// ServiceConfig holds token settings for a Service.
type ServiceConfig struct {
	Secret      string
	AccessTTL   time.Duration
	RefreshTTL  time.Duration
	AllowSignup bool
}

// Tokens is the result of a successful sign-in or refresh.
type Tokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
	ExpiresIn    int    `json:"expires_in"` // seconds
}

// Service signs users in and out and validates bearer tokens.
type Service struct {
	users  UserRepository
	tokens TokenRepository
	cfg    ServiceConfig
	now    func() time.Time
	logger Logger

	// dummyHash is verified against when a username does not exist so
	// unknown and known users take the same time to reject.
	dummyHash string
}

// NewService creates an auth service over the given repositories.
func NewService(users UserRepository, tokens TokenRepository, cfg ServiceConfig) (*Service, error) {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = defaultAccessTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = 30 * 24 * time.Hour
	}
	dummy, err := HashPassword("flora-dummy-password")
	if err != nil {
		return nil, err
	}
	return &Service{
		users:     users,
		tokens:    tokens,
		cfg:       cfg,
		now:       time.Now,
		logger:    noopLogger{},
		dummyHash: dummy,
	}, nil
}

// SetLogger sets the logger for the service.
func (s *Service) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Authenticate validates an access token and returns the identity it carries.
func (s *Service) Authenticate(token string) (Identity, error) {
	return IdentityFromToken(token, s.cfg.Secret)
}

// Login checks a username and password and starts a new token family.
func (s *Service) Login(ctx context.Context, username, password string) (*Tokens, error) {
	user, err := s.users.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			VerifyPassword(password, s.dummyHash) //nolint:errcheck // timing only
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	ok, err := VerifyPassword(password, user.PasswordHash)
	if err != nil {
		s.logger.Error("stored password hash unreadable", "user_id", user.ID, "error", err)
		return nil, ErrInvalidCredentials
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	raw, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	rt := &RefreshToken{
		UserID:    user.ID,
		TokenHash: HashToken(raw),
		ExpiresAt: s.now().Add(s.cfg.RefreshTTL),
	}
	if err := s.tokens.Create(ctx, rt); err != nil {
		return nil, err
	}

	s.logger.Info("user signed in", "user_id", user.ID)
	return s.issue(user, raw)
}

// Refresh exchanges a refresh token for a new access and refresh token.
// Presenting a token that was already used revokes its whole family.
func (s *Service) Refresh(ctx context.Context, raw string) (*Tokens, error) {
	stored, err := s.tokens.GetByTokenHash(ctx, HashToken(raw))
	if err != nil {
		return nil, err
	}
	if stored.Revoked {
		return nil, s.reuseDetected(ctx, stored)
	}
	if !s.now().Before(stored.ExpiresAt) {
		return nil, ErrTokenExpired
	}

	user, err := s.users.GetByID(ctx, stored.UserID)
	if err != nil {
		return nil, err
	}
	if !user.IsActive {
		return nil, ErrUserInactive
	}

	next, err := GenerateRefreshToken()
	if err != nil {
		return nil, err
	}
	rotated := &RefreshToken{
		UserID:    user.ID,
		FamilyID:  stored.FamilyID,
		TokenHash: HashToken(next),
		ExpiresAt: s.now().Add(s.cfg.RefreshTTL),
	}
	if err := s.tokens.RotateRefreshToken(ctx, stored.ID, rotated); err != nil {
		if errors.Is(err, ErrTokenRevoked) {
			return nil, s.reuseDetected(ctx, stored)
		}
		return nil, err
	}

	return s.issue(user, next)
}

func (s *Service) reuseDetected(ctx context.Context, stored *RefreshToken) error {
	s.logger.Warn("refresh token reuse, revoking family",
		"user_id", stored.UserID, "family_id", stored.FamilyID)
	if err := s.tokens.RevokeFamily(ctx, stored.FamilyID); err != nil {
		return fmt.Errorf("%w: %w", ErrTokenReuse, err)
	}
	return ErrTokenReuse
}

// Logout revokes the session a refresh token belongs to. Unknown tokens
// are ignored.
func (s *Service) Logout(ctx context.Context, raw string) error {
	stored, err := s.tokens.GetByTokenHash(ctx, HashToken(raw))
	if err != nil {
		if errors.Is(err, ErrTokenInvalid) {
			return nil
		}
		return err
	}
	return s.tokens.RevokeFamily(ctx, stored.FamilyID)
}

// Register creates an active account when self-service signup is enabled.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if !s.cfg.AllowSignup {
		return nil, ErrSignupDisabled
	}
	username = strings.TrimSpace(username)
	if !IsValidUsername(username) {
		return nil, ErrInvalidUsername
	}
	if len(password) < minPasswordLength {
		return nil, ErrWeakPassword
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, err
	}
	user := &User{
		Username:     username,
		Email:        strings.TrimSpace(email),
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	s.logger.Info("user registered", "user_id", user.ID)
	return user, nil
}

// PruneExpiredTokens deletes refresh tokens past their expiry.
func (s *Service) PruneExpiredTokens(ctx context.Context) (int64, error) {
	return s.tokens.DeleteExpired(ctx, s.now())
}

func (s *Service) issue(user *User, refresh string) (*Tokens, error) {
	access, err := GenerateAccessToken(user, s.cfg.Secret, s.cfg.AccessTTL, s.now())
	if err != nil {
		return nil, err
	}
	return &Tokens{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "Bearer",
		ExpiresIn:    int(s.cfg.AccessTTL / time.Second),
	}, nil
}
