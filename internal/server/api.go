package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/afroash/radar-monitor/internal/models"
	"github.com/afroash/radar-monitor/internal/storage"
)

const (
	defaultLatestLimit = 100
	maxLatestLimit     = 1000
)

// APIHandler handles HTTP API requests for sensor data
type APIHandler struct {
	store  storage.Store
	logger zerolog.Logger
}

// NewAPIHandler creates a new API handler
func NewAPIHandler(store storage.Store, logger zerolog.Logger) *APIHandler {
	return &APIHandler{
		store:  store,
		logger: logger,
	}
}

// HandleLatest returns the most recent readings, newest first
func (api *APIHandler) HandleLatest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := defaultLatestLimit
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxLatestLimit {
		limit = maxLatestLimit
	}

	readings, err := api.store.GetLatest(limit)
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query latest readings")
		api.writeError(w, http.StatusInternalServerError, "failed to query readings")
		return
	}

	// Empty result is a valid response, not an error
	if readings == nil {
		readings = []*models.Reading{}
	}

	api.writeJSON(w, http.StatusOK, readings)
}

// HandleStats returns aggregate statistics over all readings
func (api *APIHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats, err := api.store.GetStats()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to query stats")
		api.writeError(w, http.StatusInternalServerError, "failed to query stats")
		return
	}

	api.writeJSON(w, http.StatusOK, stats)
}

// HandleClear deletes every stored reading. Administrative endpoint,
// intended for testing deployments.
func (api *APIHandler) HandleClear(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		api.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	deleted, err := api.store.Clear()
	if err != nil {
		api.logger.Error().Err(err).Msg("Failed to clear readings")
		api.writeError(w, http.StatusInternalServerError, "failed to clear readings")
		return
	}

	api.logger.Info().Int64("deleted", deleted).Msg("Readings cleared via API")
	api.writeJSON(w, http.StatusOK, map[string]int64{"deleted": deleted})
}

// writeJSON writes a JSON response with the given status
func (api *APIHandler) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		api.logger.Warn().Err(err).Msg("Failed to encode response")
	}
}

// writeError writes a JSON error body. The message is generic on purpose;
// internal error detail stays in the log so credentials never leak.
func (api *APIHandler) writeError(w http.ResponseWriter, status int, msg string) {
	api.writeJSON(w, status, map[string]string{"error": msg})
}
