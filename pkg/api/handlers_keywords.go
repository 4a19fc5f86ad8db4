package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/keywordoor/keywordoor/pkg/api/store"
	"golang.org/x/sync/errgroup"
)

// keywordListItem is one row of the keyword list response, the cached
// latest projection plus the derived green-light classification.
type keywordListItem struct {
	store.KeywordLatest
	IsGreenLight bool `json:"is_green_light"`
}

// handleListKeywords serves the filtered, sorted, paginated keyword
// list from the latest projection.
func (s *server) handleListKeywords(w http.ResponseWriter, r *http.Request) {
	filter := parseKeywordFilter(r)

	rows, total, err := s.store.ListLatest(r.Context(), filter)
	if err != nil {
		s.log.WithError(err).Error("Failed to list keywords")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing keywords"})

		return
	}

	items := make([]keywordListItem, 0, len(rows))
	for i := range rows {
		items = append(items, keywordListItem{
			KeywordLatest: rows[i],
			IsGreenLight:  rows[i].IsGreenLight(),
		})
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"keywords": items,
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

// parseKeywordFilter maps list query parameters onto a store filter.
func parseKeywordFilter(r *http.Request) store.KeywordFilter {
	q := r.URL.Query()

	filter := store.KeywordFilter{
		Search:          q.Get("search"),
		WordCountBucket: q.Get("word_count"),
		SortBy:          q.Get("sort_by"),
		SortOrder:       q.Get("sort_order"),
	}

	if v := q.Get("min_score"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MinScore = &f
		}
	}

	if v := q.Get("max_score"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			filter.MaxScore = &f
		}
	}

	if v := q.Get("difficulty"); v != "" {
		filter.Difficulties = splitCSV(v)
	}

	if v := q.Get("intent"); v != "" {
		filter.Intents = splitCSV(v)
	}

	if v := q.Get("source"); v != "" {
		filter.Sources = splitCSV(v)
	}

	if v := q.Get("days"); v != "" {
		if days, err := strconv.Atoi(v); err == nil && days > 0 {
			since := time.Now().UTC().AddDate(0, 0, -days)
			filter.Since = &since
		}
	}

	filter.GreenLightOnly = q.Get("green_light") == "true"

	if v := q.Get("page"); v != "" {
		if page, err := strconv.Atoi(v); err == nil {
			filter.Page = page
		}
	}

	if v := q.Get("limit"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			filter.Limit = limit
		}
	}

	return filter
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")

	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}

	return out
}

// handleKeywordDetail serves a single keyword with its latest
// observation computed live, its history, and attached artifacts.
func (s *server) handleKeywordDetail(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid keyword id"})

		return
	}

	kw, err := s.store.GetKeywordByID(r.Context(), id)
	if err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"keyword not found"})

		return
	}

	var (
		latest       *store.KeywordObservation
		history      []store.DailyMetric
		observations []store.KeywordObservation
		reports      []store.ReportSummary
		notes        []store.KeywordNote
	)

	g, ctx := errgroup.WithContext(r.Context())

	g.Go(func() error {
		// A keyword with no observations yet has no latest row.
		obs, lerr := s.store.LatestObservation(ctx, id)
		if lerr == nil {
			latest = obs
		}

		return nil
	})

	g.Go(func() error {
		var herr error
		history, herr = s.store.KeywordDailyHistory(ctx, id, 30)

		return herr
	})

	g.Go(func() error {
		var oerr error
		observations, oerr = s.store.RecentObservations(ctx, id, 50)

		return oerr
	})

	g.Go(func() error {
		var rerr error
		reports, rerr = s.store.ReportsForKeyword(ctx, id, 10)

		return rerr
	})

	g.Go(func() error {
		var nerr error
		notes, nerr = s.store.NotesForKeyword(ctx, id, 20)

		return nerr
	})

	if err := g.Wait(); err != nil {
		s.log.WithError(err).
			WithField("keyword_id", id).
			Error("Failed to load keyword detail")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"loading keyword detail"})

		return
	}

	isGreenLight := false
	if latest != nil {
		isGreenLight = latest.IsGreenLight()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"keyword":             kw,
		"latest":              latest,
		"is_green_light":      isGreenLight,
		"history":             history,
		"recent_observations": observations,
		"reports":             reports,
		"notes":               notes,
	})
}

// handleDashboard serves the dashboard aggregates, fanned out across
// the store since the queries are independent.
func (s *server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	var (
		stats        *store.DashboardStats
		topKeywords  []store.TopKeyword
		discovery    []store.DateCount
		intents      []store.LabelCount
		difficulties []store.LabelCount
		recentRuns   []store.RunSummary
	)

	g, ctx := errgroup.WithContext(r.Context())

	g.Go(func() error {
		var err error
		stats, err = s.store.DashboardStats(ctx)

		return err
	})

	g.Go(func() error {
		var err error
		topKeywords, err = s.store.TopKeywords(ctx, 10)

		return err
	})

	g.Go(func() error {
		var err error
		discovery, err = s.store.DiscoveryTrend(ctx, 30)

		return err
	})

	g.Go(func() error {
		var err error
		intents, err = s.store.IntentDistribution(ctx)

		return err
	})

	g.Go(func() error {
		var err error
		difficulties, err = s.store.DifficultyDistribution(ctx)

		return err
	})

	g.Go(func() error {
		var err error
		recentRuns, err = s.store.ListRecentRuns(ctx, 10)

		return err
	})

	if err := g.Wait(); err != nil {
		s.log.WithError(err).Error("Failed to load dashboard")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"loading dashboard"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"stats":                   stats,
		"top_keywords":            topKeywords,
		"discovery_trend":         discovery,
		"intent_distribution":     intents,
		"difficulty_distribution": difficulties,
		"recent_runs":             recentRuns,
	})
}

// handleTrends serves the time-window trend aggregates. The window is
// selected via the days query parameter (default 30).
func (s *server) handleTrends(w http.ResponseWriter, r *http.Request) {
	days := 30

	if v := r.URL.Query().Get("days"); v != "" {
		if d, err := strconv.Atoi(v); err == nil && d > 0 && d <= 365 {
			days = d
		}
	}

	since := time.Now().UTC().AddDate(0, 0, -days)

	var (
		summary     *store.TrendSummary
		volume      []store.VolumePoint
		scores      []store.ScorePoint
		newKeywords []store.DateCount
		difficulty  []store.DateLabelCount
		intents     []store.DateLabelCount
		growing     []store.GrowingKeyword
		active      []store.ActiveKeyword
	)

	g, ctx := errgroup.WithContext(r.Context())

	g.Go(func() error {
		var err error
		summary, err = s.store.TrendSummary(ctx, since)

		return err
	})

	g.Go(func() error {
		var err error
		volume, err = s.store.VolumeTrend(ctx, since)

		return err
	})

	g.Go(func() error {
		var err error
		scores, err = s.store.ScoreTrend(ctx, since)

		return err
	})

	g.Go(func() error {
		var err error
		newKeywords, err = s.store.NewKeywordTrend(ctx, since)

		return err
	})

	g.Go(func() error {
		var err error
		difficulty, err = s.store.DifficultyTrend(ctx, since)

		return err
	})

	g.Go(func() error {
		var err error
		intents, err = s.store.IntentTrend(ctx, since)

		return err
	})

	g.Go(func() error {
		var err error
		growing, err = s.store.TopGrowingKeywords(ctx, since, 10)

		return err
	})

	g.Go(func() error {
		var err error
		active, err = s.store.RecentActiveKeywords(ctx, since, 10)

		return err
	})

	if err := g.Wait(); err != nil {
		s.log.WithError(err).Error("Failed to load trends")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"loading trends"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"days":             days,
		"summary":          summary,
		"volume_trend":     volume,
		"score_trend":      scores,
		"new_keywords":     newKeywords,
		"difficulty_trend": difficulty,
		"intent_trend":     intents,
		"top_growing":      growing,
		"recently_active":  active,
	})
}

// handleListServers serves per-server activity statistics.
func (s *server) handleListServers(w http.ResponseWriter, r *http.Request) {
	servers, err := s.store.ListServerStats(r.Context())
	if err != nil {
		s.log.WithError(err).Error("Failed to list servers")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"listing servers"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"servers": servers})
}

// createNoteRequest is the payload for attaching a note to a keyword.
type createNoteRequest struct {
	Note      string `json:"note"`
	CreatedBy string `json:"created_by"`
}

func (s *server) handleCreateNote(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid keyword id"})

		return
	}

	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if strings.TrimSpace(req.Note) == "" {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"note is required"})

		return
	}

	if _, err := s.store.GetKeywordByID(r.Context(), id); err != nil {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"keyword not found"})

		return
	}

	note := &store.KeywordNote{
		KeywordID: id,
		Note:      req.Note,
		CreatedBy: req.CreatedBy,
	}

	if err := s.store.CreateNote(r.Context(), note); err != nil {
		s.log.WithError(err).Error("Failed to create note")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"creating note"})

		return
	}

	writeJSON(w, http.StatusCreated, note)
}

func (s *server) handleDeleteKeyword(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid keyword id"})

		return
	}

	deleted, err := s.store.DeleteKeywords(r.Context(), []uint{id})
	if err != nil {
		s.log.WithError(err).Error("Failed to delete keyword")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"deleting keyword"})

		return
	}

	if deleted == 0 {
		writeJSON(w, http.StatusNotFound,
			errorResponse{"keyword not found"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}

// batchDeleteRequest is the payload for deleting several keywords.
type batchDeleteRequest struct {
	IDs []uint `json:"ids"`
}

func (s *server) handleBatchDeleteKeywords(
	w http.ResponseWriter, r *http.Request,
) {
	var req batchDeleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"invalid request body"})

		return
	}

	if len(req.IDs) == 0 {
		writeJSON(w, http.StatusBadRequest,
			errorResponse{"ids are required"})

		return
	}

	deleted, err := s.store.DeleteKeywords(r.Context(), req.IDs)
	if err != nil {
		s.log.WithError(err).Error("Failed to delete keywords")
		writeJSON(w, http.StatusInternalServerError,
			errorResponse{"deleting keywords"})

		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"deleted": deleted})
}
