package api

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/flora-iot/flora-core/internal/audit"
	"github.com/flora-iot/flora-core/internal/auth"
)

// ticketTTL is how long a WebSocket ticket is valid.
const ticketTTL = 60 * time.Second

// ticketBytes is the number of random bytes used for WebSocket tickets.
const ticketBytes = 32

// loginRequest is the body of POST /auth/login. Either the credentials or
// a refresh token must be present; the refresh token wins when both are.
type loginRequest struct {
	Username     string `json:"username"`
	Password     string `json:"password"`
	RefreshToken string `json:"refresh_token"`
}

type logoutRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// newTicketStore creates the single-use WebSocket ticket store. Each
// ticket carries the identity of the caller that requested it.
func newTicketStore() *ttlcache.Cache[string, auth.Identity] {
	return ttlcache.New[string, auth.Identity](
		ttlcache.WithTTL[string, auth.Identity](ticketTTL),
		ttlcache.WithDisableTouchOnHit[string, auth.Identity](),
	)
}

// handleLogin signs a user in with a password or rotates a refresh token.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(r, &req) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var (
		tokens *auth.Tokens
		err    error
	)
	switch {
	case req.RefreshToken != "":
		tokens, err = s.auth.Refresh(r.Context(), req.RefreshToken)
	case req.Username != "" && req.Password != "":
		tokens, err = s.auth.Login(r.Context(), req.Username, req.Password)
	default:
		writeBadRequest(w, "username and password, or refresh_token, are required")
		return
	}
	if err != nil {
		s.writeAuthError(w, err)
		return
	}

	if req.RefreshToken == "" {
		if id, idErr := s.auth.Authenticate(tokens.AccessToken); idErr == nil {
			s.record(r.Context(), &audit.AuditLog{
				Action: audit.ActionLogin, EntityType: audit.EntityUser,
				EntityID: id.Subject, UserID: id.Subject,
			})
		}
	}
	writeJSON(w, http.StatusOK, tokens)
}

// handleLogout revokes the refresh token's session. Unknown tokens are
// accepted so logout is idempotent.
func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req logoutRequest
	if !decodeJSON(r, &req) || req.RefreshToken == "" {
		writeBadRequest(w, "refresh_token is required")
		return
	}

	if err := s.auth.Logout(r.Context(), req.RefreshToken); err != nil {
		s.writeAuthError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleRegister creates an account when self-service signup is enabled.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(r, &req) {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	user, err := s.auth.Register(r.Context(), strings.TrimSpace(req.Username), strings.TrimSpace(req.Email), req.Password)
	if err != nil {
		s.writeAuthError(w, err)
		return
	}
	s.record(r.Context(), &audit.AuditLog{
		Action: audit.ActionRegister, EntityType: audit.EntityUser,
		EntityID: user.ID, UserID: user.ID,
	})
	writeJSON(w, http.StatusCreated, user)
}

// handleWSTicket issues a single-use ticket for opening the WebSocket
// stream, so the access token never appears in a URL.
func (s *Server) handleWSTicket(w http.ResponseWriter, r *http.Request) {
	id, err := auth.IdentityFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	ticket := generateTicket()
	s.tickets.Set(ticket, id, ttlcache.DefaultTTL)

	writeJSON(w, http.StatusOK, map[string]any{
		"ticket":     ticket,
		"expires_in": int(ticketTTL.Seconds()),
	})
}

// redeemTicket consumes a ticket and returns the identity it was issued to.
func (s *Server) redeemTicket(ticket string) (auth.Identity, bool) {
	item, ok := s.tickets.GetAndDelete(ticket)
	if !ok || item == nil || item.IsExpired() {
		return auth.Identity{}, false
	}
	return item.Value(), true
}

func generateTicket() string {
	b := make([]byte, ticketBytes)
	//nolint:errcheck // crypto/rand.Read always returns len(b) on supported platforms
	rand.Read(b)
	return hex.EncodeToString(b)
}

// writeAuthError maps auth service errors onto HTTP responses. Credential
// and token failures share one message so they reveal nothing.
func (s *Server) writeAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername), errors.Is(err, auth.ErrWeakPassword):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, auth.ErrUsernameExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "username already exists")
	case errors.Is(err, auth.ErrSignupDisabled):
		writeForbidden(w, "signup is disabled")
	case errors.Is(err, auth.ErrInvalidCredentials),
		errors.Is(err, auth.ErrUserInactive),
		errors.Is(err, auth.ErrUserNotFound),
		errors.Is(err, auth.ErrTokenInvalid),
		errors.Is(err, auth.ErrTokenExpired),
		errors.Is(err, auth.ErrTokenRevoked),
		errors.Is(err, auth.ErrTokenReuse):
		writeUnauthorized(w, "invalid credentials")
	default:
		s.logger.Error("auth request failed", "error", err)
		writeInternalError(w, "authentication failed")
	}
}
