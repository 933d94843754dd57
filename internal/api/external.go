package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/flora-iot/flora-core/internal/plant"
	"github.com/flora-iot/flora-core/internal/weather"
)

// handleGetPlant passes Perenual species details through unchanged.
func (s *Server) handleGetPlant(w http.ResponseWriter, r *http.Request) {
	if s.plants == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "plant lookup is not configured")
		return
	}

	id, err := plant.ParseSpeciesID(chi.URLParam(r, "id"))
	if err != nil {
		writeBadRequest(w, "species id must be a positive integer")
		return
	}

	body, err := s.plants.SpeciesDetails(r.Context(), id)
	switch {
	case err == nil:
		writeRawJSON(w, http.StatusOK, body)
	case errors.Is(err, plant.ErrNotFound):
		writeNotFound(w, "species not found")
	default:
		s.writeUpstreamError(w, "perenual", err)
	}
}

// handleGetWeather passes the AccuWeather 12-hour forecast through unchanged.
func (s *Server) handleGetWeather(w http.ResponseWriter, r *http.Request) {
	if s.weather == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "weather lookup is not configured")
		return
	}

	body, err := s.weather.HourlyForecast(r.Context(), chi.URLParam(r, "locationKey"))
	switch {
	case err == nil:
		writeRawJSON(w, http.StatusOK, body)
	case errors.Is(err, weather.ErrInvalidLocationKey):
		writeBadRequest(w, "location key must be numeric")
	case errors.Is(err, weather.ErrNotFound):
		writeNotFound(w, "location not found")
	case errors.Is(err, weather.ErrRateLimited):
		writeError(w, http.StatusTooManyRequests, ErrCodeRateLimited, "weather lookups are rate limited")
	default:
		s.writeUpstreamError(w, "accuweather", err)
	}
}

func (s *Server) writeUpstreamError(w http.ResponseWriter, upstream string, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	s.logger.Warn("upstream request failed", "upstream", upstream, "error", err)
	if errors.Is(err, context.DeadlineExceeded) {
		writeError(w, http.StatusGatewayTimeout, ErrCodeBadGateway, upstream+" timed out")
		return
	}
	writeBadGateway(w, upstream+" request failed")
}
