package prober

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Handler exposes the external status endpoint.
type Handler struct {
	prober *Prober
	log    *slog.Logger
}

// NewHandler returns a Handler backed by the given Prober.
func NewHandler(p *Prober, log *slog.Logger) *Handler {
	return &Handler{prober: p, log: log}
}

type statusRequest struct {
	Sources []Source `json:"sources"`
}

type statusResponse struct {
	Results []StatusResult `json:"results"`
}

// PostStatus handles POST /api/external/status with a JSON body listing
// {id, url} pairs. Per-source failures come back as ERROR entries; only a
// malformed body is a 400.
func (h *Handler) PostStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Debug("invalid status body", slog.String("error", err.Error()))
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid JSON body"})
		return
	}

	// Blank URLs cannot be probed, but the caller still gets their ids back
	// as ERROR entries in the original position.
	sources := make([]Source, 0, len(req.Sources))
	blank := make([]bool, len(req.Sources))
	for i, src := range req.Sources {
		if strings.TrimSpace(src.URL) == "" {
			blank[i] = true
			continue
		}
		sources = append(sources, src)
	}

	probed := h.prober.CheckBatch(r.Context(), sources)

	results := make([]StatusResult, 0, len(req.Sources))
	next := 0
	for i, src := range req.Sources {
		if blank[i] {
			results = append(results, StatusResult{ID: src.ID, URL: src.URL, State: StateError, Reason: "empty url"})
			continue
		}
		results = append(results, probed[next])
		next++
	}

	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, statusResponse{Results: results})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
