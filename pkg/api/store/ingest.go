package store

import (
	"context"
	"fmt"
	"time"

	"github.com/keywordoor/keywordoor/pkg/keyword"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ObservationInput is one raw observation payload from a batch upload.
// Only Keyword is required; everything else is stored as null/default
// when absent.
type ObservationInput struct {
	Keyword       string         `json:"keyword"`
	Score         *float64       `json:"score"`
	SearchVolume  *int64         `json:"search_volume"`
	Difficulty    *string        `json:"difficulty"`
	Intent        *string        `json:"intent"`
	Source        *string        `json:"source"`
	Language      *string        `json:"language"`
	Country       *string        `json:"country"`
	Category      *string        `json:"category"`
	WordCount     *int           `json:"word_count"`
	PainPointFlag bool           `json:"pain_point_flag"`
	PainPoint     *string        `json:"pain_point"`
	RawData       datatypes.JSON `json:"raw_data,omitempty"`
}

// BatchResult reports the outcome of one batch ingestion call.
// Inserted + Duplicates may be less than Total: items with an empty
// keyword string and items that failed to persist are neither.
type BatchResult struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
	Total      int `json:"total"`
}

// ResolveKeyword atomically creates the keyword row for the input's
// normalized form, or reuses the existing row. On conflict the existing
// row's last-seen timestamp advances and null descriptive fields are
// backfilled first-writer-wins. A single conditional write closes the
// race between concurrent batches discovering the same new keyword.
func (s *store) ResolveKeyword(
	ctx context.Context, in ObservationInput,
) (uint, error) {
	norm := keyword.Normalize(in.Keyword)
	if norm == "" {
		return 0, fmt.Errorf("empty keyword")
	}

	now := time.Now().UTC()

	row := &Keyword{
		Keyword:     in.Keyword,
		KeywordNorm: norm,
		Language:    in.Language,
		Country:     in.Country,
		Category:    in.Category,
		FirstSeenAt: now,
		LastSeenAt:  now,
	}

	if err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "keyword_norm"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_seen_at": now,
				"language": gorm.Expr(
					"COALESCE(keywords.language, excluded.language)",
				),
				"country": gorm.Expr(
					"COALESCE(keywords.country, excluded.country)",
				),
				"category": gorm.Expr(
					"COALESCE(keywords.category, excluded.category)",
				),
			}),
		}).
		Create(row).Error; err != nil {
		return 0, fmt.Errorf("upserting keyword %q: %w", norm, err)
	}

	// The conflict path does not populate the ID on all drivers, so
	// fetch the winning row by its unique key.
	if row.ID == 0 {
		var existing Keyword
		if err := s.db.WithContext(ctx).
			Where("keyword_norm = ?", norm).
			First(&existing).Error; err != nil {
			return 0, fmt.Errorf("fetching upserted keyword %q: %w", norm, err)
		}

		row.ID = existing.ID
	}

	return row.ID, nil
}

// CreateObservationIfAbsent inserts the observation unless one already
// exists for its (keyword, run) pair. The conditional insert rides on
// the composite unique index, so concurrent duplicate submissions
// cannot produce two rows. Returns whether a row was inserted.
func (s *store) CreateObservationIfAbsent(
	ctx context.Context, obs *KeywordObservation,
) (bool, error) {
	result := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{
				{Name: "keyword_id"}, {Name: "run_id"},
			},
			DoNothing: true,
		}).
		Create(obs)
	if result.Error != nil {
		return false, fmt.Errorf("inserting observation: %w", result.Error)
	}

	return result.RowsAffected > 0, nil
}

// IngestObservations processes a batch of observation payloads for a
// run. Items are independent: an empty keyword is silently dropped and
// a failing item is logged and skipped without aborting its siblings.
// Each item's upsert is its own unit, so a retry of the whole batch is
// idempotent.
func (s *store) IngestObservations(
	ctx context.Context, runID uint, items []ObservationInput,
) (BatchResult, error) {
	res := BatchResult{Total: len(items)}

	for i := range items {
		in := items[i]

		if keyword.Normalize(in.Keyword) == "" {
			continue
		}

		keywordID, err := s.ResolveKeyword(ctx, in)
		if err != nil {
			s.log.WithError(err).
				WithField("keyword", in.Keyword).
				Warn("Failed to resolve keyword, skipping item")

			continue
		}

		// Unrecognized enum values are stored as null rather than
		// polluting the distributions.
		if in.Difficulty != nil && !keyword.ValidDifficulty(*in.Difficulty) {
			in.Difficulty = nil
		}

		if in.Intent != nil && !keyword.ValidIntent(*in.Intent) {
			in.Intent = nil
		}

		obs := &KeywordObservation{
			KeywordID:     keywordID,
			RunID:         runID,
			Score:         in.Score,
			SearchVolume:  in.SearchVolume,
			Difficulty:    in.Difficulty,
			Intent:        in.Intent,
			WordCount:     in.WordCount,
			PainPointFlag: in.PainPointFlag,
			PainPoint:     in.PainPoint,
			Source:        in.Source,
			RawJSON:       in.RawData,
			CreatedAt:     time.Now().UTC(),
		}

		if obs.WordCount == nil {
			wc := keyword.CountWords(in.Keyword)
			obs.WordCount = &wc
		}

		inserted, err := s.CreateObservationIfAbsent(ctx, obs)
		if err != nil {
			s.log.WithError(err).
				WithField("keyword", in.Keyword).
				WithField("run_id", runID).
				Warn("Failed to insert observation, skipping item")

			continue
		}

		if inserted {
			res.Inserted++
		} else {
			res.Duplicates++
		}
	}

	return res, nil
}
