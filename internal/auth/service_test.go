package auth

import (
	"context"
	"errors"
	"testing"
)

func TestService_LoginAndAuthenticate(t *testing.T) {
	svc, users, _ := testService(t, false)
	user := createTestUser(t, users, "fern", "correct-password")
	ctx := context.Background()

	tokens, err := svc.Login(ctx, "fern", "correct-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if tokens.TokenType != "Bearer" || tokens.ExpiresIn != 900 || tokens.RefreshToken == "" {
		t.Errorf("Login() = %+v", tokens)
	}

	id, err := svc.Authenticate(tokens.AccessToken)
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if id.Subject != user.ID {
		t.Errorf("Subject = %q, want %q", id.Subject, user.ID)
	}
}

func TestService_LoginFailures(t *testing.T) {
	svc, users, _ := testService(t, false)
	createTestUser(t, users, "fern", "correct-password")
	inactive := createTestUser(t, users, "moss", "correct-password")
	if err := users.SetActive(context.Background(), inactive.ID, false); err != nil {
		t.Fatalf("SetActive() error = %v", err)
	}

	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"wrong password", "fern", "nope", ErrInvalidCredentials},
		{"unknown user", "nobody", "correct-password", ErrInvalidCredentials},
		{"inactive", "moss", "correct-password", ErrUserInactive},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.Login(context.Background(), tt.username, tt.password); !errors.Is(err, tt.wantErr) {
				t.Errorf("Login() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestService_RefreshRotatesAndDetectsReuse(t *testing.T) {
	svc, users, _ := testService(t, false)
	createTestUser(t, users, "fern", "correct-password")
	ctx := context.Background()

	first, err := svc.Login(ctx, "fern", "correct-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}

	second, err := svc.Refresh(ctx, first.RefreshToken)
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if second.RefreshToken == first.RefreshToken {
		t.Error("Refresh() returned the same refresh token")
	}

	if _, err := svc.Refresh(ctx, first.RefreshToken); !errors.Is(err, ErrTokenReuse) {
		t.Fatalf("replayed Refresh() error = %v, want ErrTokenReuse", err)
	}

	// Reuse revokes the whole family, including the live successor.
	if _, err := svc.Refresh(ctx, second.RefreshToken); !errors.Is(err, ErrTokenReuse) {
		t.Errorf("Refresh(successor) error = %v, want ErrTokenReuse", err)
	}

	if _, err := svc.Refresh(ctx, "never-issued"); !errors.Is(err, ErrTokenInvalid) {
		t.Errorf("Refresh(unknown) error = %v, want ErrTokenInvalid", err)
	}
}

func TestService_Logout(t *testing.T) {
	svc, users, _ := testService(t, false)
	createTestUser(t, users, "fern", "correct-password")
	ctx := context.Background()

	tokens, err := svc.Login(ctx, "fern", "correct-password")
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if err := svc.Logout(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("Logout() error = %v", err)
	}
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); err == nil {
		t.Error("Refresh() after Logout() succeeded")
	}
	if err := svc.Logout(ctx, "unknown"); err != nil {
		t.Errorf("Logout(unknown) error = %v, want nil", err)
	}
}

func TestService_Register(t *testing.T) {
	ctx := context.Background()

	disabled, _, _ := testService(t, false)
	if _, err := disabled.Register(ctx, "fern", "", "long-enough-password"); !errors.Is(err, ErrSignupDisabled) {
		t.Errorf("Register() with signup off error = %v, want ErrSignupDisabled", err)
	}

	svc, _, _ := testService(t, true)
	tests := []struct {
		name     string
		username string
		password string
		wantErr  error
	}{
		{"ok", "fern", "long-enough-password", nil},
		{"duplicate", "fern", "long-enough-password", ErrUsernameExists},
		{"bad username", "fern moss", "long-enough-password", ErrInvalidUsername},
		{"short password", "ivy", "short", ErrWeakPassword},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.username, "", tt.password)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Register() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	if _, err := svc.Login(ctx, "fern", "long-enough-password"); err != nil {
		t.Errorf("Login() after Register() error = %v", err)
	}
}
