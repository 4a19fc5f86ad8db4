package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

// latestObservationSQL selects, per keyword, the single most recent
// observation. "Most recent" is creation timestamp descending; equal
// timestamps tie-break on the highest observation id.
const latestObservationSQL = `
SELECT o.* FROM keyword_observations o
WHERE NOT EXISTS (
	SELECT 1 FROM keyword_observations o2
	WHERE o2.keyword_id = o.keyword_id
	  AND (o2.created_at > o.created_at
	       OR (o2.created_at = o.created_at AND o2.id > o.id))
)`

// RebuildLatest recomputes the keyword_latest projection from scratch.
// The projection is a pure function of the keywords and observations
// tables: the whole table is discarded and refilled in one transaction,
// so a failed rebuild leaves the previous contents intact. Returns the
// number of projected rows.
func (s *store) RebuildLatest(ctx context.Context) (int64, error) {
	start := time.Now()

	var latest []KeywordObservation
	if err := s.db.WithContext(ctx).
		Raw(latestObservationSQL).
		Scan(&latest).Error; err != nil {
		return 0, fmt.Errorf("selecting latest observations: %w", err)
	}

	// Observation counts per keyword, for the projection's metadata.
	type kwCount struct {
		KeywordID uint
		Count     int64
	}

	var counts []kwCount
	if err := s.db.WithContext(ctx).
		Model(&KeywordObservation{}).
		Select("keyword_id, COUNT(*) as count").
		Group("keyword_id").
		Scan(&counts).Error; err != nil {
		return 0, fmt.Errorf("counting observations: %w", err)
	}

	countByKeyword := make(map[uint]int64, len(counts))
	for _, c := range counts {
		countByKeyword[c.KeywordID] = c.Count
	}

	// Display strings and descriptive fields come from the keyword rows.
	keywordIDs := make([]uint, 0, len(latest))
	for i := range latest {
		keywordIDs = append(keywordIDs, latest[i].KeywordID)
	}

	keywordByID := make(map[uint]Keyword, len(keywordIDs))

	if len(keywordIDs) > 0 {
		var keywords []Keyword
		if err := s.db.WithContext(ctx).
			Where("id IN ?", keywordIDs).
			Find(&keywords).Error; err != nil {
			return 0, fmt.Errorf("fetching keywords: %w", err)
		}

		for i := range keywords {
			keywordByID[keywords[i].ID] = keywords[i]
		}
	}

	now := time.Now().UTC()

	rows := make([]KeywordLatest, 0, len(latest))

	for i := range latest {
		obs := latest[i]

		kw, ok := keywordByID[obs.KeywordID]
		if !ok {
			// Orphaned observation; nothing to project.
			continue
		}

		rows = append(rows, KeywordLatest{
			KeywordID:        obs.KeywordID,
			Keyword:          kw.Keyword,
			Score:            obs.Score,
			SearchVolume:     obs.SearchVolume,
			Difficulty:       obs.Difficulty,
			Intent:           obs.Intent,
			WordCount:        obs.WordCount,
			PainPointFlag:    obs.PainPointFlag,
			Source:           obs.Source,
			Language:         kw.Language,
			Country:          kw.Country,
			Category:         kw.Category,
			RunID:            obs.RunID,
			ObservedAt:       obs.CreatedAt,
			ObservationCount: countByKeyword[obs.KeywordID],
			RefreshedAt:      now,
		})
	}

	const batchSize = 200

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.
			Where("1 = 1").
			Delete(&KeywordLatest{}).Error; err != nil {
			return fmt.Errorf("clearing projection: %w", err)
		}

		if len(rows) == 0 {
			return nil
		}

		if err := tx.CreateInBatches(rows, batchSize).Error; err != nil {
			return fmt.Errorf("filling projection: %w", err)
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	s.log.WithField("rows", len(rows)).
		WithField("duration", time.Since(start).Round(time.Millisecond)).
		Info("Latest projection rebuilt")

	return int64(len(rows)), nil
}
