package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/flora-iot/flora-core/internal/query"
)

// handleListReadings serves GET /readings. Query parameters:
//
//	device_id        required
//	start_timestamp  with end_timestamp, an inclusive window (ascending)
//	end_timestamp
//	range            RECENT, HOURLY or DAILY (descending, capped)
//	page             continuation token from a previous nextCursor
func (s *Server) handleListReadings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	f := query.Filter{
		DeviceID: q.Get("device_id"),
		Range:    query.ParseRange(q.Get("range")),
		Page:     q.Get("page"),
	}
	var err error
	if f.StartTimestamp, err = optionalInt64(q.Get("start_timestamp")); err != nil {
		writeBadRequest(w, "start_timestamp must be an integer")
		return
	}
	if f.EndTimestamp, err = optionalInt64(q.Get("end_timestamp")); err != nil {
		writeBadRequest(w, "end_timestamp must be an integer")
		return
	}

	result, err := s.readings.FetchReadings(r.Context(), f)
	if err != nil {
		s.writeQueryError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func optionalInt64(s string) (*int64, error) {
	if s == "" {
		return nil, nil //nolint:nilnil // absent parameter
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// writeQueryError maps reading query failures. Forbidden never says
// whether the device exists.
func (s *Server) writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, query.ErrUnauthenticated):
		writeUnauthorized(w, "authentication required")
	case errors.Is(err, query.ErrForbidden):
		writeForbidden(w, "access to this device is denied")
	case errors.Is(err, query.ErrInvalidFilter):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, query.ErrAuthorizationService):
		writeBadGateway(w, "device authorization unavailable")
	case errors.Is(err, query.ErrStoreUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "reading store unavailable, retry later")
	default:
		s.logger.Error("reading query failed", "error", err, "request_id", r.Context().Value(ctxKeyRequestID))
		writeInternalError(w, "reading query failed")
	}
}
