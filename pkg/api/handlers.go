package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// errorResponse is a standard error payload.
type errorResponse struct {
	Error string `json:"error"`
}

// writeJSON encodes v as JSON and writes it to w.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding response", http.StatusInternalServerError)
	}
}

// parseIDParam extracts a positive numeric URL parameter.
func parseIDParam(r *http.Request, name string) (uint, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 32)
	if err != nil {
		return 0, err
	}

	return uint(id), nil
}

// --- Public handlers ---

// handleHealth returns server health status.
func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleSiteStats returns the public landing-page counters and the most
// recent mining runs.
func (s *server) handleSiteStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.store.SiteStats(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to load site stats")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"loading site stats"})

		return
	}

	runs, err := s.store.ListRecentRuns(r.Context(), 5)
	if err != nil {
		s.log.WithError(err).Error("Failed to list recent runs")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"loading site stats"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":       stats,
		"recent_runs": runs,
	})
}
