package api

import (
	"net/http"
	"strconv"
)

// handleListReports serves recent reports with their run and server
// context.
func (s *server) handleListReports(w http.ResponseWriter, r *http.Request) {
	limit := 50

	if v := r.URL.Query().Get("limit"); v != "" {
		if l, err := strconv.Atoi(v); err == nil && l > 0 && l <= 100 {
			limit = l
		}
	}

	reports, err := s.store.ListReports(r.Context(), limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list reports")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing reports"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// handleGetReport serves a full report document.
func (s *server) handleGetReport(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid report id"})

		return
	}

	report, err := s.store.GetReport(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"report not found"})

		return
	}

	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleDeleteReport(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid report id"})

		return
	}

	if _, err := s.store.GetReport(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"report not found"})

		return
	}

	if err := s.store.DeleteReport(r.Context(), id); err != nil {
		s.log.WithError(err).Error("Failed to delete report")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"deleting report"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
}
