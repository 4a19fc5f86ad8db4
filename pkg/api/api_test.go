package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywordoor/keywordoor/pkg/api/store"
	"github.com/keywordoor/keywordoor/pkg/config"
)

func setupTestServer(t *testing.T) *httptest.Server {
	return setupTestServerWithConfig(t, nil)
}

func setupTestServerWithConfig(
	t *testing.T, mutate func(*config.APIConfig),
) *httptest.Server {
	t.Helper()

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	cfg := &config.APIConfig{
		Server: config.APIServerConfig{Listen: ":0"},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			SQLite: config.SQLiteConfig{Path: ":memory:"},
		},
	}

	if mutate != nil {
		mutate(cfg)
	}

	st := store.NewStore(log, &cfg.Database)
	require.NoError(t, st.Start(context.Background()))

	s := &server{
		log:   log,
		cfg:   cfg,
		store: st,
	}

	ts := httptest.NewServer(s.buildRouter())

	t.Cleanup(func() {
		ts.Close()
		_ = st.Stop()
	})

	return ts
}

func doJSON(
	t *testing.T,
	method, url, apiKey string,
	body any,
) (*http.Response, map[string]any) {
	t.Helper()

	var reader *bytes.Reader

	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")

	if apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+apiKey)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	var decoded map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&decoded))

	return resp, decoded
}

// issueCredential mints a credential through the admin endpoint and
// returns the plaintext.
func issueCredential(t *testing.T, ts *httptest.Server, serverID uint) string {
	t.Helper()

	resp, body := doJSON(t, http.MethodPost,
		ts.URL+"/api/v1/admin/credentials", "",
		map[string]any{
			"server_id": serverID,
			"name":      fmt.Sprintf("miner-%d", serverID),
			"region":    "eu-west",
		})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	apiKey, ok := body["api_key"].(string)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(apiKey, "kwd_live_"))

	return apiKey
}

func TestHealth(t *testing.T) {
	ts := setupTestServer(t)

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/api/v1/health", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", body["status"])
}

func TestIngest_RequiresCredential(t *testing.T) {
	ts := setupTestServer(t)

	// No credential.
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/ingest/runs", "",
		map[string]any{"seed": "crm"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])

	// Wrong credential produces the identical response.
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/v1/ingest/runs",
		"kwd_live_0000000000000000000000000000000000000000000000",
		map[string]any{"seed": "crm"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "unauthorized", body["error"])
}

func TestIngest_XAPIKeyHeader(t *testing.T) {
	ts := setupTestServer(t)
	apiKey := issueCredential(t, ts, 1)

	data, err := json.Marshal(map[string]any{"seed": "crm"})
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost,
		ts.URL+"/api/v1/ingest/runs", bytes.NewReader(data))
	require.NoError(t, err)

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-API-Key", apiKey)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)

	defer func() { _ = resp.Body.Close() }()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestIngestFlow(t *testing.T) {
	ts := setupTestServer(t)
	apiKey := issueCredential(t, ts, 1)

	// Start a run.
	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/ingest/runs",
		apiKey, map[string]any{"seed": "project management", "rounds": 2})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "miner-1", body["server"])
	assert.Equal(t, "running", body["status"])

	runID := int(body["run_id"].(float64))

	// Upload a batch with an internal duplicate.
	batchURL := fmt.Sprintf("%s/api/v1/ingest/runs/%d/keywords", ts.URL, runID)

	resp, body = doJSON(t, http.MethodPost, batchURL, apiKey, map[string]any{
		"keywords": []map[string]any{
			{"keyword": "best crm", "score": 85, "difficulty": "low"},
			{"keyword": "crm pricing", "score": 90, "difficulty": "high"},
			{"keyword": "Best CRM", "score": 99},
		},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), body["inserted"])
	assert.Equal(t, float64(1), body["duplicates"])
	assert.Equal(t, float64(3), body["total"])

	// A second server cannot touch the run.
	otherKey := issueCredential(t, ts, 2)

	resp, _ = doJSON(t, http.MethodPost, batchURL, otherKey, map[string]any{
		"keywords": []map[string]any{{"keyword": "hijack"}},
	})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Attach the report; the run completes.
	reportURL := fmt.Sprintf("%s/api/v1/ingest/runs/%d/report", ts.URL, runID)

	resp, body = doJSON(t, http.MethodPost, reportURL, apiKey, map[string]any{
		"markdown": "# Findings",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "success", body["status"])

	// Default title is derived from the run.
	reportID := int(body["report_id"].(float64))

	resp, body = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/v1/reports/%d", ts.URL, reportID), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, fmt.Sprintf("Mining Report - Run %d", runID), body["title"])

	// Refresh the projection and read the keyword list.
	resp, _ = doJSON(t, http.MethodPost,
		ts.URL+"/api/v1/admin/projection/refresh", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/keywords/?green_light=true", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(1), body["total"])

	keywords := body["keywords"].([]any)
	require.Len(t, keywords, 1)

	first := keywords[0].(map[string]any)
	assert.Equal(t, "best crm", first["keyword"])
	assert.Equal(t, true, first["is_green_light"])

	// Keyword detail agrees with the list.
	keywordID := int(first["keyword_id"].(float64))

	resp, body = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/v1/keywords/%d", ts.URL, keywordID), "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, true, body["is_green_light"])

	// Dashboard counters agree too.
	resp, body = doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/keywords/dashboard", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	stats := body["stats"].(map[string]any)
	assert.Equal(t, float64(2), stats["total_keywords"])
	assert.Equal(t, float64(1), stats["green_light_keywords"])
}

func TestCredentialLifecycle(t *testing.T) {
	ts := setupTestServer(t)
	apiKey := issueCredential(t, ts, 1)

	// The listing never exposes the key.
	resp, body := doJSON(t, http.MethodGet,
		ts.URL+"/api/v1/admin/credentials", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	creds := body["credentials"].([]any)
	require.Len(t, creds, 1)

	entry := creds[0].(map[string]any)
	assert.Equal(t, "kwd_live_****", entry["api_key"])

	// Revoking locks the server out.
	resp, _ = doJSON(t, http.MethodDelete,
		ts.URL+"/api/v1/admin/credentials/1", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/api/v1/ingest/runs",
		apiKey, map[string]any{"seed": "crm"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Re-issuing mints a fresh key under the same identity.
	newKey := issueCredential(t, ts, 1)
	assert.NotEqual(t, apiKey, newKey)

	resp, body = doJSON(t, http.MethodPost, ts.URL+"/api/v1/ingest/runs",
		newKey, map[string]any{"seed": "crm"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "miner-1", body["server"])
}

func TestNotesAndDelete(t *testing.T) {
	ts := setupTestServer(t)
	apiKey := issueCredential(t, ts, 1)

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/ingest/runs",
		apiKey, map[string]any{"seed": "crm"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	runID := int(body["run_id"].(float64))

	resp, _ = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/v1/ingest/runs/%d/keywords", ts.URL, runID),
		apiKey, map[string]any{
			"keywords": []map[string]any{{"keyword": "best crm", "score": 85}},
		})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodPost,
		ts.URL+"/api/v1/admin/projection/refresh", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/api/v1/keywords/", "", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	first := body["keywords"].([]any)[0].(map[string]any)
	keywordID := int(first["keyword_id"].(float64))

	// Attach a note.
	resp, _ = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/v1/keywords/%d/notes", ts.URL, keywordID), "",
		map[string]any{"note": "worth a deep dive", "created_by": "ana"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	// Blank notes are rejected.
	resp, _ = doJSON(t, http.MethodPost,
		fmt.Sprintf("%s/api/v1/keywords/%d/notes", ts.URL, keywordID), "",
		map[string]any{"note": "   "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Delete the keyword; the detail route now 404s.
	resp, _ = doJSON(t, http.MethodDelete,
		fmt.Sprintf("%s/api/v1/keywords/%d", ts.URL, keywordID), "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, _ = doJSON(t, http.MethodGet,
		fmt.Sprintf("%s/api/v1/keywords/%d", ts.URL, keywordID), "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestRateLimit_IngestTier(t *testing.T) {
	ts := setupTestServerWithConfig(t, func(cfg *config.APIConfig) {
		cfg.Server.RateLimit = config.RateLimitConfig{
			Enabled: true,
			Ingest:  config.RateLimitTier{RequestsPerMinute: 2},
			Read:    config.RateLimitTier{RequestsPerMinute: 100},
		}
	})
	apiKey := issueCredential(t, ts, 1)

	// The burst equals the per-minute limit, so the first two requests
	// pass and the third is rejected.
	for i := 0; i < 2; i++ {
		resp, _ := doJSON(t, http.MethodPost, ts.URL+"/api/v1/ingest/runs",
			apiKey, map[string]any{"seed": "crm"})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/api/v1/ingest/runs",
		apiKey, map[string]any{"seed": "crm"})
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "rate limit exceeded", body["error"])

	// The read tier is limited independently and still has headroom.
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/api/v1/keywords/", "", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestHashCredential_Deterministic(t *testing.T) {
	a := hashCredential("kwd_live_abc")
	b := hashCredential("kwd_live_abc")
	c := hashCredential("kwd_live_abd")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestGenerateCredential(t *testing.T) {
	a, err := generateCredential()
	require.NoError(t, err)

	b, err := generateCredential()
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(a, credentialPrefix))
	assert.Len(t, a, len(credentialPrefix)+48)
	assert.NotEqual(t, a, b)
}
