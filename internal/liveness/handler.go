package liveness

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// Handler exposes the batch liveness endpoint.
type Handler struct {
	resolver *Resolver
	log      *slog.Logger
}

// NewHandler returns a Handler backed by the given Resolver.
func NewHandler(resolver *Resolver, log *slog.Logger) *Handler {
	return &Handler{resolver: resolver, log: log}
}

// GetBatch handles GET /api/live?channels=a,@b,https://youtube.com/@c/live.
// The response is a JSON object mapping canonical handle (or video id for
// direct watch URLs) to its liveness result. Individual failures are embedded
// per entry; only a missing or empty channels parameter is a 400.
func (h *Handler) GetBatch(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Query().Get("channels")
	if strings.TrimSpace(param) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "channels parameter is required"})
		return
	}

	inputs, invalid := ParseSources(param)
	resolved := h.resolver.ResolveBatch(r.Context(), inputs)

	// The resolver may hand back a map shared with its batch cache, so merge
	// into a fresh one rather than writing request-local entries into it.
	results := make(map[string]Result, len(resolved)+len(invalid))
	for k, v := range resolved {
		results[k] = v
	}
	for _, raw := range invalid {
		results[raw] = Result{Handle: raw, Live: false, FoundBy: FoundByNone, Error: "unrecognized source"}
	}

	h.log.Debug("batch resolved",
		slog.Int("sources", len(inputs)),
		slog.Int("invalid", len(invalid)))

	// Liveness is time-sensitive; intermediaries must not cache it.
	w.Header().Set("Cache-Control", "no-store")
	writeJSON(w, http.StatusOK, results)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
