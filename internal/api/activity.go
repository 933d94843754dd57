package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/flora-iot/flora-core/internal/audit"
	"github.com/flora-iot/flora-core/internal/auth"
)

// record writes an audit entry. Failures are logged and never fail the
// request that triggered them.
func (s *Server) record(ctx context.Context, entry *audit.AuditLog) {
	if s.audit == nil {
		return
	}
	entry.Source = "api"
	if err := s.audit.Create(ctx, entry); err != nil {
		s.logger.Warn("recording audit entry failed", "action", entry.Action, "error", err)
	}
}

// handleListActivity returns the caller's own account activity, newest
// first. Query parameters: action, limit, offset.
func (s *Server) handleListActivity(w http.ResponseWriter, r *http.Request) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "activity log is not configured")
		return
	}
	userID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{UserID: userID, Action: q.Get("action")}
	if v := q.Get("limit"); v != "" {
		if filter.Limit, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "limit must be an integer")
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if filter.Offset, err = strconv.Atoi(v); err != nil {
			writeBadRequest(w, "offset must be an integer")
			return
		}
	}

	result, err := s.audit.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing activity failed", "error", err)
		writeInternalError(w, "listing activity failed")
		return
	}
	writeJSON(w, http.StatusOK, result)
}
