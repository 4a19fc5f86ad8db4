package store_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywordoor/keywordoor/pkg/api/store"
)

// seedCorpus ingests a small keyword corpus and rebuilds the projection.
func seedCorpus(t *testing.T, s store.Store) {
	t.Helper()

	ctx := context.Background()
	run := seedRun(t, s, 1)

	batch := []store.ObservationInput{
		{Keyword: "best crm", Score: fptr(85), Difficulty: sptr("low"),
			Intent: sptr("commercial"), SearchVolume: iptr(2400)},
		{Keyword: "crm pricing", Score: fptr(90), Difficulty: sptr("high"),
			Intent: sptr("commercial"), SearchVolume: iptr(800)},
		{Keyword: "what is a crm", Score: fptr(45), Difficulty: sptr("low"),
			Intent: sptr("informational"), SearchVolume: iptr(5000)},
		{Keyword: "crm for startups", Score: fptr(82), Difficulty: sptr("low"),
			Intent: sptr("commercial"), SearchVolume: iptr(600)},
	}

	res, err := s.IngestObservations(ctx, run.ID, batch)
	require.NoError(t, err)
	require.Equal(t, 4, res.Inserted)

	_, err = s.RebuildLatest(ctx)
	require.NoError(t, err)
}

func TestListLatest_GreenLightFilter(t *testing.T) {
	s := setupTestStore(t)
	seedCorpus(t, s)

	rows, total, err := s.ListLatest(context.Background(),
		store.KeywordFilter{GreenLightOnly: true})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)

	// Every returned row satisfies the derived predicate. "crm pricing"
	// scores higher but is high difficulty, so it never qualifies.
	for _, row := range rows {
		assert.True(t, row.IsGreenLight())
		assert.NotEqual(t, "crm pricing", row.Keyword)
	}
}

func TestListLatest_ScoreRangeAndSearch(t *testing.T) {
	s := setupTestStore(t)
	seedCorpus(t, s)
	ctx := context.Background()

	rows, total, err := s.ListLatest(ctx, store.KeywordFilter{
		MinScore: fptr(80), MaxScore: fptr(89),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, rows, 2)

	// Search matches case-insensitively on the display string.
	rows, total, err = s.ListLatest(ctx, store.KeywordFilter{
		Search: "STARTUPS",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, rows, 1)
	assert.Equal(t, "crm for startups", rows[0].Keyword)
}

func TestListLatest_SortAndPaginate(t *testing.T) {
	s := setupTestStore(t)
	seedCorpus(t, s)
	ctx := context.Background()

	rows, total, err := s.ListLatest(ctx, store.KeywordFilter{
		SortBy: "score", SortOrder: "desc", Page: 1, Limit: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(4), total)
	require.Len(t, rows, 2)
	assert.Equal(t, "crm pricing", rows[0].Keyword)
	assert.Equal(t, "best crm", rows[1].Keyword)

	rows, _, err = s.ListLatest(ctx, store.KeywordFilter{
		SortBy: "score", SortOrder: "desc", Page: 2, Limit: 2,
	})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "crm for startups", rows[0].Keyword)
}

func TestDashboardStats_GreenLightConsistency(t *testing.T) {
	s := setupTestStore(t)
	seedCorpus(t, s)
	ctx := context.Background()

	stats, err := s.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalKeywords)
	assert.Equal(t, int64(4), stats.NewThisWeek)

	// The dashboard's green-light count is computed live and must match
	// the list filter's idea of green light.
	_, greenTotal, err := s.ListLatest(ctx,
		store.KeywordFilter{GreenLightOnly: true})
	require.NoError(t, err)
	assert.Equal(t, greenTotal, stats.GreenLightKeywords)
}

func TestTopKeywords(t *testing.T) {
	s := setupTestStore(t)
	seedCorpus(t, s)

	top, err := s.TopKeywords(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, top, 2)

	assert.Equal(t, "crm pricing", top[0].Keyword)
	assert.False(t, top[0].IsGreenLight)
	assert.Equal(t, "best crm", top[1].Keyword)
	assert.True(t, top[1].IsGreenLight)
}

func TestDistributions(t *testing.T) {
	s := setupTestStore(t)
	seedCorpus(t, s)
	ctx := context.Background()

	intents, err := s.IntentDistribution(ctx)
	require.NoError(t, err)
	require.Len(t, intents, 2)
	assert.Equal(t, "commercial", intents[0].Label)
	assert.Equal(t, int64(3), intents[0].Count)

	difficulties, err := s.DifficultyDistribution(ctx)
	require.NoError(t, err)
	require.Len(t, difficulties, 2)
	assert.Equal(t, "low", difficulties[0].Label)
	assert.Equal(t, int64(3), difficulties[0].Count)
}

func TestSiteStats(t *testing.T) {
	s := setupTestStore(t)
	seedCorpus(t, s)

	stats, err := s.SiteStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalKeywords)
	assert.Equal(t, int64(1), stats.ActiveServers)
	assert.Equal(t, int64(1), stats.RunningRuns)
}

func TestDeleteKeywords_Cascades(t *testing.T) {
	s := setupTestStore(t)
	seedCorpus(t, s)
	ctx := context.Background()

	keywordID, err := s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword: "best crm",
	})
	require.NoError(t, err)

	require.NoError(t, s.CreateNote(ctx, &store.KeywordNote{
		KeywordID: keywordID,
		Note:      "worth a deep dive",
	}))

	deleted, err := s.DeleteKeywords(ctx, []uint{keywordID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = s.GetKeywordByID(ctx, keywordID)
	assert.Error(t, err)

	_, err = s.LatestObservation(ctx, keywordID)
	assert.Error(t, err)

	notes, err := s.NotesForKeyword(ctx, keywordID, 10)
	require.NoError(t, err)
	assert.Empty(t, notes)

	// The projection row is gone without a rebuild.
	_, total, err := s.ListLatest(ctx, store.KeywordFilter{})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)

	// Deleting an unknown id is a no-op.
	deleted, err = s.DeleteKeywords(ctx, []uint{keywordID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), deleted)
}

func TestReportsAndRuns(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := seedRun(t, s, 1)

	res, err := s.IngestObservations(ctx, run.ID, []store.ObservationInput{
		{Keyword: "best crm", Score: fptr(85)},
		{Keyword: "crm pricing", Score: fptr(60)},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Inserted)

	report := &store.KeywordReport{
		RunID:    run.ID,
		Title:    "Mining Report - Run 1",
		Markdown: "# Findings",
	}
	require.NoError(t, s.CreateReport(ctx, report))
	require.NoError(t, s.CompleteRun(ctx, run.ID, store.RunStatusSuccess))

	reports, err := s.ListReports(ctx, 10)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, "Mining Report - Run 1", reports[0].Title)
	assert.Equal(t, "miner-test", reports[0].ServerName)
	assert.Equal(t, store.RunStatusSuccess, reports[0].Status)
	assert.Equal(t, int64(2), reports[0].KeywordsAnalyzed)

	keywordID, err := s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword: "best crm",
	})
	require.NoError(t, err)

	forKeyword, err := s.ReportsForKeyword(ctx, keywordID, 10)
	require.NoError(t, err)
	require.Len(t, forKeyword, 1)
	assert.Equal(t, report.ID, forKeyword[0].ID)

	runs, err := s.ListRecentRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "miner-test", runs[0].ServerName)
	assert.NotNil(t, runs[0].EndedAt)

	require.NoError(t, s.DeleteReport(ctx, report.ID))

	_, err = s.GetReport(ctx, report.ID)
	assert.Error(t, err)
}

func TestServerStats(t *testing.T) {
	s := setupTestStore(t)
	seedCorpus(t, s)

	servers, err := s.ListServerStats(context.Background())
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, int64(1), servers[0].RunCount)
	assert.Equal(t, int64(4), servers[0].KeywordCount)
	require.NotNil(t, servers[0].LastRunAt)
}

func TestListCredentials_OnlyIssued(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	_, err := s.UpsertServerCredential(ctx, 1, "miner-1", "eu", "d1")
	require.NoError(t, err)
	_, err = s.UpsertServerCredential(ctx, 2, "miner-2", "us", "d2")
	require.NoError(t, err)

	require.NoError(t, s.RevokeServerCredential(ctx, 2))

	creds, err := s.ListCredentials(ctx)
	require.NoError(t, err)
	require.Len(t, creds, 1)
	assert.Equal(t, uint(1), creds[0].ServerID)
}
