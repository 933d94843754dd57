package api

import (
	"errors"
	"net/http"

	"github.com/flora-iot/flora-core/internal/audit"
	"github.com/flora-iot/flora-core/internal/auth"
	"github.com/flora-iot/flora-core/internal/device"
)

// registerDeviceRequest is the body of POST /devices. Field names follow
// the device document the mobile app already sends.
type registerDeviceRequest struct {
	Nickname string `json:"Nickname"`
	Location struct {
		Lat  *float64 `json:"Lat"`
		Long *float64 `json:"Long"`
	} `json:"Location"`
}

// deviceListResponse wraps device lists so the shape can grow.
type deviceListResponse struct {
	Devices []device.Device `json:"devices"`
}

// handleRegisterDevice registers a device for the caller at the given
// coordinates. The location name and key come from AccuWeather.
func (s *Server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	var req registerDeviceRequest
	if !decodeJSON(r, &req) {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Location.Lat == nil || req.Location.Long == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "Location.Lat and Location.Long are required")
		return
	}

	d, err := s.registry.Register(r.Context(), ownerID, req.Nickname, *req.Location.Lat, *req.Location.Long)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	s.record(r.Context(), &audit.AuditLog{
		Action: audit.ActionRegisterDevice, EntityType: audit.EntityDevice,
		EntityID: d.DeviceID, UserID: ownerID,
		Details: map[string]any{"nickname": d.Nickname, "location_key": d.Location.LocationKey},
	})
	writeJSON(w, http.StatusCreated, d)
}

// handleListDevices returns the caller's devices, optionally narrowed to
// one device_id. A device owned by someone else yields an empty list.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ownerID, err := auth.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorized(w, "authentication required")
		return
	}

	devices, err := s.registry.Lookup(r.Context(), r.URL.Query().Get("device_id"), ownerID)
	if err != nil {
		s.writeDeviceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, deviceListResponse{Devices: devices})
}

func (s *Server) writeDeviceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, device.ErrInvalidDevice):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, device.ErrMissingOwner):
		writeUnauthorized(w, "authentication required")
	case errors.Is(err, device.ErrGeolocation):
		s.logger.Warn("device geolocation failed", "error", err)
		writeBadGateway(w, "location lookup failed")
	case errors.Is(err, device.ErrDeviceExists):
		writeError(w, http.StatusConflict, ErrCodeConflict, "device already exists")
	default:
		s.logger.Error("device request failed", "error", err)
		writeInternalError(w, "device request failed")
	}
}
