package api

import (
	"encoding/json"
	"net/http"
)

// redactedCredential is shown in credential listings in place of any
// part of the secret.
const redactedCredential = credentialPrefix + "****"

// handleListCredentials lists servers holding an issued credential.
// Only the redaction placeholder is ever returned, never the digest.
func (s *server) handleListCredentials(w http.ResponseWriter, r *http.Request) {
	creds, err := s.store.ListCredentials(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list credentials")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing credentials"})

		return
	}

	type credentialItem struct {
		ServerID   uint    `json:"server_id"`
		ServerName string  `json:"server_name"`
		Region     string  `json:"region"`
		APIKey     string  `json:"api_key"`
		LastUsedAt *string `json:"last_used_at"`
		CreatedAt  string  `json:"created_at"`
	}

	items := make([]credentialItem, 0, len(creds))
	for _, c := range creds {
		items = append(items, credentialItem{
			ServerID:   c.ServerID,
			ServerName: c.Name,
			Region:     c.Region,
			APIKey:     redactedCredential,
			LastUsedAt: c.LastUsedAt,
			CreatedAt:  c.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{"credentials": items})
}

// issueCredentialRequest is the payload for issuing a server credential.
type issueCredentialRequest struct {
	ServerID uint   `json:"server_id"`
	Name     string `json:"name"`
	Region   string `json:"region"`
}

// handleIssueCredential mints a fresh credential for a server, creating
// the server identity if needed. Re-issuing to an existing server
// replaces its credential in place; the plaintext appears in this
// response and nowhere else.
func (s *server) handleIssueCredential(w http.ResponseWriter, r *http.Request) {
	var req issueCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if req.ServerID == 0 || req.Name == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"server_id and name are required"})

		return
	}

	credential, err := generateCredential()
	if err != nil {
		s.log.WithError(err).Error("Failed to generate credential")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"generating credential"})

		return
	}

	srv, err := s.store.UpsertServerCredential(
		r.Context(), req.ServerID, req.Name, req.Region,
		hashCredential(credential),
	)
	if err != nil {
		s.log.WithError(err).Error("Failed to store credential")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"storing credential"})

		return
	}

	s.log.WithField("server_id", srv.ID).
		WithField("server", srv.Name).
		Info("Credential issued")

	writeJSON(w, http.StatusCreated, map[string]any{
		"server_id":   srv.ID,
		"server_name": srv.Name,
		"region":      srv.Region,
		"api_key":     credential,
	})
}

// handleRevokeCredential clears a server's credential. The server row
// and its historical runs survive.
func (s *server) handleRevokeCredential(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid server id"})

		return
	}

	if _, err := s.store.GetServerByID(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"server not found"})

		return
	}

	if err := s.store.RevokeServerCredential(r.Context(), id); err != nil {
		s.log.WithError(err).Error("Failed to revoke credential")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"revoking credential"})

		return
	}

	s.log.WithField("server_id", id).Info("Credential revoked")

	writeJSON(w, http.StatusOK, map[string]any{"revoked": true})
}

// handleRefreshProjection rebuilds the latest projection on demand.
func (s *server) handleRefreshProjection(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.RebuildLatest(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to rebuild projection")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"rebuilding projection"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"rows": rows})
}
