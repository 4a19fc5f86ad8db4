package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/keywordoor/keywordoor/pkg/api/store"
	"gorm.io/datatypes"
)

// createRunRequest is the payload for starting a mining run.
type createRunRequest struct {
	Seed   string         `json:"seed"`
	Rounds int            `json:"rounds"`
	Meta   datatypes.JSON `json:"meta,omitempty"`
}

// handleCreateRun opens a new mining run for the authenticated server.
func (s *server) handleCreateRun(w http.ResponseWriter, r *http.Request) {
	srv := serverFromContext(r.Context())

	var req createRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.Seed == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"seed is required"})

		return
	}

	if req.Rounds <= 0 {
		req.Rounds = 1
	}

	run := &store.MiningRun{
		ServerID:  srv.ID,
		Seed:      req.Seed,
		Rounds:    req.Rounds,
		Status:    store.RunStatusRunning,
		StartedAt: time.Now().UTC(),
		Meta:      req.Meta,
	}

	if err := s.store.CreateRun(r.Context(), run); err != nil {
		s.log.WithError(err).Error("Failed to create run")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"creating run"})

		return
	}

	s.log.WithField("run_id", run.ID).
		WithField("server", srv.Name).
		Info("Mining run started")

	writeJSON(w, http.StatusCreated, map[string]any{
		"run_id": run.ID,
		"server": srv.Name,
		"status": run.Status,
	})
}

// uploadBatchRequest is the payload for a keyword batch upload.
type uploadBatchRequest struct {
	Keywords []store.ObservationInput `json:"keywords"`
}

// handleUploadBatch ingests a batch of keyword observations into a run
// owned by the authenticated server. A run belonging to another server
// is indistinguishable from a missing one.
func (s *server) handleUploadBatch(w http.ResponseWriter, r *http.Request) {
	srv := serverFromContext(r.Context())

	runID, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid run id"})

		return
	}

	var req uploadBatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if len(req.Keywords) == 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"keywords are required"})

		return
	}

	if _, err := s.store.GetRunForServer(
		r.Context(), runID, srv.ID,
	); err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"run not found"})

		return
	}

	result, err := s.store.IngestObservations(
		r.Context(), runID, req.Keywords,
	)
	if err != nil {
		s.log.WithError(err).
			WithField("run_id", runID).
			Error("Failed to ingest batch")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"ingesting batch"})

		return
	}

	s.log.WithField("run_id", runID).
		WithField("server", srv.Name).
		WithField("inserted", result.Inserted).
		WithField("duplicates", result.Duplicates).
		Info("Keyword batch ingested")

	writeJSON(w, http.StatusOK, result)
}

// attachReportRequest is the payload for attaching a run's final report.
type attachReportRequest struct {
	Title      string         `json:"title"`
	Markdown   string         `json:"markdown"`
	ReportJSON datatypes.JSON `json:"report_json,omitempty"`
	Status     string         `json:"status"`
}

// handleAttachReport stores a run's report and performs the run's
// terminal status transition. Archiving the report document is best
// effort and never fails the request.
func (s *server) handleAttachReport(w http.ResponseWriter, r *http.Request) {
	srv := serverFromContext(r.Context())

	runID, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid run id"})

		return
	}

	var req attachReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if _, err := s.store.GetRunForServer(
		r.Context(), runID, srv.ID,
	); err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"run not found"})

		return
	}

	if req.Title == "" {
		req.Title = fmt.Sprintf("Mining Report - Run %d", runID)
	}

	// Anything other than an explicit failure counts as success.
	status := store.RunStatusSuccess
	if req.Status == store.RunStatusFailed {
		status = store.RunStatusFailed
	}

	report := &store.KeywordReport{
		RunID:      runID,
		Title:      req.Title,
		Markdown:   req.Markdown,
		ReportJSON: req.ReportJSON,
	}

	if err := s.store.CreateReport(r.Context(), report); err != nil {
		s.log.WithError(err).
			WithField("run_id", runID).
			Error("Failed to create report")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"creating report"})

		return
	}

	if err := s.store.CompleteRun(r.Context(), runID, status); err != nil {
		s.log.WithError(err).
			WithField("run_id", runID).
			Error("Failed to complete run")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"completing run"})

		return
	}

	if s.archiver != nil {
		go s.archiveReport(report)
	}

	s.log.WithField("run_id", runID).
		WithField("report_id", report.ID).
		WithField("status", status).
		Info("Report attached, run completed")

	writeJSON(w, http.StatusCreated, map[string]any{
		"report_id": report.ID,
		"run_id":    runID,
		"status":    status,
	})
}

// archiveReport writes the report document to the configured archive
// backend. Failures are logged and otherwise ignored.
func (s *server) archiveReport(report *store.KeywordReport) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	key := fmt.Sprintf("runs/%d/report-%d.md", report.RunID, report.ID)

	if err := s.archiver.Put(
		ctx, key, []byte(report.Markdown), "text/markdown",
	); err != nil {
		s.log.WithError(err).
			WithField("report_id", report.ID).
			Warn("Failed to archive report markdown")

		return
	}

	if len(report.ReportJSON) > 0 {
		jsonKey := fmt.Sprintf(
			"runs/%d/report-%d.json", report.RunID, report.ID,
		)

		if err := s.archiver.Put(
			ctx, jsonKey, report.ReportJSON, "application/json",
		); err != nil {
			s.log.WithError(err).
				WithField("report_id", report.ID).
				Warn("Failed to archive report json")
		}
	}
}
