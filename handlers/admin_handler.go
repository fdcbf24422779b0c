// backend/handlers/admin_handler.go
package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gewnthar/covid19/backend/models"
	"github.com/gewnthar/covid19/backend/services"
)

// DatasetCache is the part of services.ResultCache the handlers use.
type DatasetCache interface {
	Get(ctx context.Context) (*models.DatasetBundle, error)
	Refresh(ctx context.Context) (*models.DatasetBundle, error)
	State(ctx context.Context) services.CacheState
}

// Helper to respond with JSON
func respondWithJSON(w http.ResponseWriter, code int, payload interface{}) {
	response, err := json.Marshal(payload)
	if err != nil {
		slog.Error("api: failed to marshal JSON response", "error", err)
		http.Error(w, `{"error":"Failed to marshal JSON response"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(response)
}

// Helper to respond with an error
func respondWithError(w http.ResponseWriter, code int, message string) {
	if code >= http.StatusInternalServerError {
		slog.Error("api: request failed", "status", code, "error", message)
	} else {
		slog.Warn("api: bad request", "status", code, "error", message)
	}
	respondWithJSON(w, code, map[string]string{"error": message})
}

// AdminHandler serves the maintenance endpoints.
type AdminHandler struct {
	cache DatasetCache
}

func NewAdminHandler(cache DatasetCache) *AdminHandler {
	return &AdminHandler{cache: cache}
}

// Refresh drops the cached datasets and rebuilds them immediately.
// POST /api/admin/refresh
func (h *AdminHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.cache.Refresh(r.Context())
	if err != nil {
		respondWithError(w, http.StatusBadGateway, fmt.Sprintf("Failed to refresh datasets: %v", err))
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]string{
		"message":     "Dataset refresh completed successfully.",
		"run_id":      bundle.RunID,
		"last_update": bundle.LastUpdate,
	})
}
