package store_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keywordoor/keywordoor/pkg/api/store"
	"github.com/keywordoor/keywordoor/pkg/config"
)

func setupTestStore(t *testing.T) store.Store {
	t.Helper()

	cfg := &config.DatabaseConfig{
		Driver: "sqlite",
		SQLite: config.SQLiteConfig{Path: ":memory:"},
	}

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	s := store.NewStore(log, cfg)
	require.NoError(t, s.Start(context.Background()))

	t.Cleanup(func() { _ = s.Stop() })

	return s
}

// seedRun creates a server identity and an open run owned by it.
func seedRun(t *testing.T, s store.Store, serverID uint) *store.MiningRun {
	t.Helper()

	ctx := context.Background()

	// Digests carry a unique index, so each server needs its own.
	_, err := s.UpsertServerCredential(
		ctx, serverID, "miner-test", "eu-west",
		fmt.Sprintf("digest-for-%d", serverID),
	)
	require.NoError(t, err)

	run := &store.MiningRun{
		ServerID:  serverID,
		Seed:      "project management",
		Rounds:    3,
		Status:    store.RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}
	require.NoError(t, s.CreateRun(ctx, run))

	return run
}

func fptr(v float64) *float64 { return &v }
func sptr(v string) *string   { return &v }
func iptr(v int64) *int64     { return &v }

func TestResolveKeyword_DeduplicatesVariants(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id1, err := s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword: "Best CRM",
	})
	require.NoError(t, err)

	// Case and whitespace variants resolve to the same keyword.
	id2, err := s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword: "  best   crm ",
	})
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	id3, err := s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword: "best crm tools",
	})
	require.NoError(t, err)
	assert.NotEqual(t, id1, id3)
}

func TestResolveKeyword_EmptyRejected(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.ResolveKeyword(
		context.Background(), store.ObservationInput{Keyword: "   "},
	)
	assert.Error(t, err)
}

func TestResolveKeyword_BackfillsDescriptiveFields(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	id, err := s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword: "best crm",
	})
	require.NoError(t, err)

	kw, err := s.GetKeywordByID(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, kw.Language)

	// A later observation fills the missing field.
	_, err = s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword:  "best crm",
		Language: sptr("en"),
	})
	require.NoError(t, err)

	kw, err = s.GetKeywordByID(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, kw.Language)
	assert.Equal(t, "en", *kw.Language)

	// Once set, the field is never overwritten.
	_, err = s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword:  "best crm",
		Language: sptr("de"),
	})
	require.NoError(t, err)

	kw, err = s.GetKeywordByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "en", *kw.Language)
}

func TestCreateObservationIfAbsent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := seedRun(t, s, 1)

	keywordID, err := s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword: "best crm",
	})
	require.NoError(t, err)

	inserted, err := s.CreateObservationIfAbsent(ctx, &store.KeywordObservation{
		KeywordID: keywordID,
		RunID:     run.ID,
		Score:     fptr(85),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.True(t, inserted)

	// A second observation for the same (keyword, run) pair is rejected
	// without error.
	inserted, err = s.CreateObservationIfAbsent(ctx, &store.KeywordObservation{
		KeywordID: keywordID,
		RunID:     run.ID,
		Score:     fptr(90),
		CreatedAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.False(t, inserted)

	obs, err := s.RecentObservations(ctx, keywordID, 10)
	require.NoError(t, err)
	require.Len(t, obs, 1)
	assert.Equal(t, 85.0, *obs[0].Score)
}

func TestIngestObservations_Batch(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := seedRun(t, s, 1)

	batch := []store.ObservationInput{
		{Keyword: "best crm", Score: fptr(85), Difficulty: sptr("low")},
		{Keyword: "crm pricing", Score: fptr(60), SearchVolume: iptr(1200)},
		{Keyword: "   "}, // dropped silently
		{Keyword: "crm for startups", Score: fptr(82), Difficulty: sptr("low")},
		{Keyword: "Best CRM"}, // duplicate of the first within the run
	}

	res, err := s.IngestObservations(ctx, run.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 5, res.Total)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 1, res.Duplicates)

	// Retrying the whole batch is idempotent.
	res, err = s.IngestObservations(ctx, run.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Inserted)
	assert.Equal(t, 4, res.Duplicates)

	// The same keywords in a different run produce new observations,
	// not new keywords.
	run2 := seedRun(t, s, 2)

	res, err = s.IngestObservations(ctx, run2.ID, batch)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Inserted)
	assert.Equal(t, 1, res.Duplicates)
}

func TestIngestObservations_WordCountFallback(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := seedRun(t, s, 1)

	res, err := s.IngestObservations(ctx, run.ID, []store.ObservationInput{
		{Keyword: "best crm tools"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, res.Inserted)

	keywordID, err := s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword: "best crm tools",
	})
	require.NoError(t, err)

	obs, err := s.LatestObservation(ctx, keywordID)
	require.NoError(t, err)
	require.NotNil(t, obs.WordCount)
	assert.Equal(t, 3, *obs.WordCount)
}

func TestIngestObservations_DropsUnknownEnumValues(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := seedRun(t, s, 1)

	res, err := s.IngestObservations(ctx, run.ID, []store.ObservationInput{
		{Keyword: "best crm", Difficulty: sptr("impossible"),
			Intent: sptr("shopping")},
		{Keyword: "crm pricing", Difficulty: sptr("low"),
			Intent: sptr("commercial")},
	})
	require.NoError(t, err)
	require.Equal(t, 2, res.Inserted)

	id, err := s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword: "best crm",
	})
	require.NoError(t, err)

	obs, err := s.LatestObservation(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, obs.Difficulty)
	assert.Nil(t, obs.Intent)

	id, err = s.ResolveKeyword(ctx, store.ObservationInput{
		Keyword: "crm pricing",
	})
	require.NoError(t, err)

	obs, err = s.LatestObservation(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, obs.Difficulty)
	assert.Equal(t, "low", *obs.Difficulty)
	require.NotNil(t, obs.Intent)
	assert.Equal(t, "commercial", *obs.Intent)
}

func TestGetRunForServer_OwnershipIsolation(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := seedRun(t, s, 1)
	seedRun(t, s, 2)

	// The owner sees its run.
	got, err := s.GetRunForServer(ctx, run.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, run.ID, got.ID)

	// Another server does not.
	_, err = s.GetRunForServer(ctx, run.ID, 2)
	assert.Error(t, err)
}

func TestCompleteRun_SingleTransition(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	run := seedRun(t, s, 1)

	require.NoError(t, s.CompleteRun(ctx, run.ID, store.RunStatusSuccess))

	got, err := s.GetRunForServer(ctx, run.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusSuccess, got.Status)
	require.NotNil(t, got.EndedAt)

	// A second transition attempt does not change the terminal status.
	require.NoError(t, s.CompleteRun(ctx, run.ID, store.RunStatusFailed))

	got, err = s.GetRunForServer(ctx, run.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusSuccess, got.Status)
}

func TestUpsertServerCredential_ReissueKeepsIdentity(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	srv, err := s.UpsertServerCredential(
		ctx, 7, "miner-7", "us-east", "digest-one",
	)
	require.NoError(t, err)

	found, err := s.GetServerByKeyHash(ctx, "digest-one")
	require.NoError(t, err)
	assert.Equal(t, srv.ID, found.ID)

	// Re-issuing replaces the digest but keeps the identity.
	_, err = s.UpsertServerCredential(
		ctx, 7, "miner-7", "us-east", "digest-two",
	)
	require.NoError(t, err)

	_, err = s.GetServerByKeyHash(ctx, "digest-one")
	assert.Error(t, err)

	found, err = s.GetServerByKeyHash(ctx, "digest-two")
	require.NoError(t, err)
	assert.Equal(t, uint(7), found.ID)

	// Revocation clears the digest; the server row survives.
	require.NoError(t, s.RevokeServerCredential(ctx, 7))

	_, err = s.GetServerByKeyHash(ctx, "digest-two")
	assert.Error(t, err)

	_, err = s.GetServerByID(ctx, 7)
	require.NoError(t, err)
}
