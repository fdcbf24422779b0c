// backend/handlers/dataset_handler.go
package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gewnthar/covid19/backend/services"
	"github.com/gewnthar/covid19/backend/utils"
)

// DatasetSummary describes one servable dataset.
type DatasetSummary struct {
	ID    string `json:"id"`
	Label string `json:"label"`
	Rows  int    `json:"rows"`
}

// DatasetListResponse is the body of GET /api/datasets.
type DatasetListResponse struct {
	RunID      string           `json:"run_id"`
	BuiltAt    time.Time        `json:"built_at"`
	LastUpdate string           `json:"last_update"`
	Datasets   []DatasetSummary `json:"datasets"`
}

// DatasetHandler serves the cached pipeline output.
type DatasetHandler struct {
	cache DatasetCache
}

func NewDatasetHandler(cache DatasetCache) *DatasetHandler {
	return &DatasetHandler{cache: cache}
}

// Health reports liveness and the cache state without triggering a fetch.
// GET /api/health
func (h *DatasetHandler) Health(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
		"cache":  string(h.cache.State(r.Context())),
	})
}

// ListDatasets handles GET /api/datasets.
func (h *DatasetHandler) ListDatasets(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.cache.Get(r.Context())
	if err != nil {
		respondWithError(w, http.StatusBadGateway, fmt.Sprintf("Failed to load datasets: %v", err))
		return
	}

	resp := DatasetListResponse{
		RunID:      bundle.RunID,
		BuiltAt:    bundle.BuiltAt,
		LastUpdate: bundle.LastUpdate,
	}
	for _, id := range bundle.IDs() {
		ds, _ := bundle.Dataset(id)
		resp.Datasets = append(resp.Datasets, DatasetSummary{ID: id, Label: utils.DatasetLabel(id), Rows: ds.Len()})
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GetDataset handles GET /api/datasets/{id}.
func (h *DatasetHandler) GetDataset(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	bundle, err := h.cache.Get(r.Context())
	if err != nil {
		respondWithError(w, http.StatusBadGateway, fmt.Sprintf("Failed to load datasets: %v", err))
		return
	}

	ds, ok := bundle.Dataset(id)
	if !ok {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Unknown dataset '%s'", id))
		return
	}
	respondWithJSON(w, http.StatusOK, ds)
}

// GetSnapshot returns per-country totals on the latest date for the metric
// named by the dataset id, led by the Global row.
// GET /api/snapshot/{id}
func (h *DatasetHandler) GetSnapshot(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	bundle, err := h.cache.Get(r.Context())
	if err != nil {
		respondWithError(w, http.StatusBadGateway, fmt.Sprintf("Failed to load datasets: %v", err))
		return
	}
	if _, ok := bundle.Dataset(id); !ok {
		respondWithError(w, http.StatusNotFound, fmt.Sprintf("Unknown dataset '%s'", id))
		return
	}

	totals, err := services.BuildLatestTotals(bundle, id)
	if errors.Is(err, services.ErrUnknownMetric) {
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Dataset '%s' has no per-country total", id))
		return
	}
	if err != nil {
		respondWithError(w, http.StatusInternalServerError, err.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, totals)
}

// LastUpdate handles GET /api/last-update.
func (h *DatasetHandler) LastUpdate(w http.ResponseWriter, r *http.Request) {
	bundle, err := h.cache.Get(r.Context())
	if err != nil {
		respondWithError(w, http.StatusBadGateway, fmt.Sprintf("Failed to load datasets: %v", err))
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]string{"last_update": bundle.LastUpdate})
}

// RegisterRoutes mounts every API route on mux.
func RegisterRoutes(mux *http.ServeMux, datasets *DatasetHandler, admin *AdminHandler, metrics http.Handler) {
	mux.HandleFunc("GET /api/health", datasets.Health)
	mux.HandleFunc("GET /api/datasets", datasets.ListDatasets)
	mux.HandleFunc("GET /api/datasets/{id}", datasets.GetDataset)
	mux.HandleFunc("GET /api/snapshot/{id}", datasets.GetSnapshot)
	mux.HandleFunc("GET /api/last-update", datasets.LastUpdate)
	mux.HandleFunc("POST /api/admin/refresh", admin.Refresh)
	mux.Handle("GET /metrics", metrics)
}
