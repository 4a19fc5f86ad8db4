package store

import (
	"context"
	"fmt"
	"time"

	"github.com/keywordoor/keywordoor/pkg/keyword"
	"gorm.io/gorm"
)

// KeywordFilter describes the list/filter/sort/paginate parameters for
// the latest-projection read path.
type KeywordFilter struct {
	Search          string
	MinScore        *float64
	MaxScore        *float64
	Difficulties    []string
	Intents         []string
	WordCountBucket string // "1-2", "3-4", "5+" or empty
	Since           *time.Time
	Sources         []string
	GreenLightOnly  bool
	SortBy          string // score, search_volume, observed_at
	SortOrder       string // asc, desc
	Page            int
	Limit           int
}

// DailyMetric is one day of aggregated observation history for a keyword.
type DailyMetric struct {
	Day          string   `json:"date"`
	AvgScore     *float64 `json:"avg_score"`
	AvgVolume    *float64 `json:"avg_volume"`
	Observations int64    `json:"observations"`
}

// ReportSummary is a report row joined with its run and server.
type ReportSummary struct {
	ID               uint      `json:"id"`
	RunID            uint      `json:"run_id"`
	Title            string    `json:"title"`
	Status           string    `json:"status"`
	ServerName       string    `json:"server_name"`
	KeywordsAnalyzed int64     `json:"keywords_analyzed"`
	CreatedAt        time.Time `json:"created_at"`
}

// RunSummary is a run row joined with its owning server's name.
type RunSummary struct {
	ID         uint       `json:"id"`
	Status     string     `json:"status"`
	Seed       string     `json:"seed"`
	ServerName string     `json:"server_name"`
	StartedAt  time.Time  `json:"started_at"`
	EndedAt    *time.Time `json:"ended_at"`
}

// ServerStats is a mining server with derived activity counters.
type ServerStats struct {
	ID           uint      `json:"id"`
	Name         string    `json:"name"`
	Region       string    `json:"region"`
	RunCount     int64     `json:"run_count"`
	KeywordCount int64     `json:"keyword_count"`
	LastRunAt    *string   `json:"last_run_at"`
	CreatedAt    time.Time `json:"created_at"`
}

// CredentialInfo describes an issued credential without exposing any
// part of the secret. Last use is inferred from run creation times.
type CredentialInfo struct {
	ServerID   uint      `json:"server_id"`
	Name       string    `json:"server_name"`
	Region     string    `json:"region"`
	LastUsedAt *string   `json:"last_used_at"`
	CreatedAt  time.Time `json:"created_at"`
}

// DashboardStats are the headline dashboard counters.
type DashboardStats struct {
	TotalKeywords      int64 `json:"total_keywords"`
	NewThisWeek        int64 `json:"new_this_week"`
	GreenLightKeywords int64 `json:"green_light_keywords"`
	RunningRuns        int64 `json:"running_runs"`
}

// TopKeyword is a keyword ranked by its latest score.
type TopKeyword struct {
	KeywordID     uint      `json:"id"`
	Keyword       string    `json:"keyword"`
	Score         *float64  `json:"score"`
	SearchVolume  *int64    `json:"search_volume"`
	Difficulty    *string   `json:"difficulty"`
	Intent        *string   `json:"intent"`
	WordCount     *int      `json:"word_count"`
	PainPointFlag bool      `json:"pain_point_flag"`
	ObservedAt    time.Time `json:"observed_at"`
	IsGreenLight  bool      `gorm:"-" json:"is_green_light"`
}

// DateCount is a per-day counter.
type DateCount struct {
	Day   string `json:"date"`
	Count int64  `json:"count"`
}

// LabelCount is a per-label counter (intent/difficulty distributions).
type LabelCount struct {
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// DateLabelCount is a per-day, per-label counter.
type DateLabelCount struct {
	Day   string `json:"date"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// SiteStats are the landing-page counters.
type SiteStats struct {
	TotalKeywords  int64 `json:"total_keywords"`
	ActiveServers  int64 `json:"active_servers"`
	TotalReports   int64 `json:"total_reports"`
	RecentKeywords int64 `json:"recent_keywords"`
	RunningRuns    int64 `json:"running_runs"`
}

// TrendSummary aggregates the trend window.
type TrendSummary struct {
	TotalKeywords int64    `json:"total_keywords"`
	NewKeywords   int64    `json:"new_keywords"`
	TotalRuns     int64    `json:"total_runs"`
	AvgScore      *float64 `json:"avg_score"`
	AvgVolume     *float64 `json:"avg_volume"`
}

// VolumePoint is one day of the search-volume trend.
type VolumePoint struct {
	Day          string   `json:"date"`
	AvgVolume    *float64 `json:"avg_volume"`
	KeywordCount int64    `json:"keyword_count"`
}

// ScorePoint is one day of the score trend.
type ScorePoint struct {
	Day          string   `json:"date"`
	AvgScore     *float64 `json:"avg_score"`
	MaxScore     *float64 `json:"max_score"`
	MinScore     *float64 `json:"min_score"`
	Observations int64    `json:"observations"`
}

// GrowingKeyword is a keyword whose search volume grew inside the
// trend window.
type GrowingKeyword struct {
	KeywordID        uint    `json:"id"`
	Keyword          string  `json:"keyword"`
	FirstVolume      int64   `json:"first_volume"`
	LatestVolume     int64   `json:"latest_volume"`
	ObservationCount int64   `json:"observation_count"`
	GrowthRate       float64 `json:"growth_rate"`
}

// ActiveKeyword is a keyword with repeated recent observations.
type ActiveKeyword struct {
	KeywordID        uint     `json:"id"`
	Keyword          string   `json:"keyword"`
	ObservationCount int64    `json:"observation_count"`
	LastObserved     string   `json:"last_observed"`
	AvgScore         *float64 `json:"avg_score"`
	MaxVolume        *int64   `json:"max_volume"`
}

// --- List/filter path (projection cache) ---

// ListLatest filters, sorts, and paginates the latest projection.
// Returns the page plus the total row count before pagination.
func (s *store) ListLatest(
	ctx context.Context, filter KeywordFilter,
) ([]KeywordLatest, int64, error) {
	q := s.db.WithContext(ctx).Model(&KeywordLatest{})

	if filter.Search != "" {
		q = q.Where(
			"LOWER(keyword) LIKE ?",
			"%"+keyword.Normalize(filter.Search)+"%",
		)
	}

	if filter.MinScore != nil {
		q = q.Where("score >= ?", *filter.MinScore)
	}

	if filter.MaxScore != nil {
		q = q.Where("score <= ?", *filter.MaxScore)
	}

	if len(filter.Difficulties) > 0 {
		q = q.Where("difficulty IN ?", filter.Difficulties)
	}

	if len(filter.Intents) > 0 {
		q = q.Where("intent IN ?", filter.Intents)
	}

	switch filter.WordCountBucket {
	case "1-2":
		q = q.Where("word_count BETWEEN 1 AND 2")
	case "3-4":
		q = q.Where("word_count BETWEEN 3 AND 4")
	case "5+":
		q = q.Where("word_count >= 5")
	}

	if filter.Since != nil {
		q = q.Where("observed_at >= ?", *filter.Since)
	}

	if len(filter.Sources) > 0 {
		q = q.Where("source IN ?", filter.Sources)
	}

	if filter.GreenLightOnly {
		q = q.Where(
			"score >= ? AND difficulty = ?",
			keyword.GreenLightMinScore, keyword.DifficultyLow,
		)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting keywords: %w", err)
	}

	sortField := map[string]string{
		"score":         "score",
		"search_volume": "search_volume",
		"observed_at":   "observed_at",
	}[filter.SortBy]
	if sortField == "" {
		sortField = "score"
	}

	sortDir := "DESC"
	if filter.SortOrder == "asc" {
		sortDir = "ASC"
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 50
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}

	var rows []KeywordLatest
	if err := q.
		Order(fmt.Sprintf("%s %s NULLS LAST, id DESC", sortField, sortDir)).
		Limit(limit).
		Offset((page - 1) * limit).
		Find(&rows).Error; err != nil {
		return nil, 0, fmt.Errorf("listing keywords: %w", err)
	}

	return rows, total, nil
}

// --- Keyword detail (live, projection not consulted) ---

func (s *store) GetKeywordByID(
	ctx context.Context, id uint,
) (*Keyword, error) {
	var kw Keyword
	if err := s.db.WithContext(ctx).First(&kw, id).Error; err != nil {
		return nil, fmt.Errorf("getting keyword: %w", err)
	}

	return &kw, nil
}

// LatestObservation returns the keyword's most recent observation,
// computed live with the same ordering rule the projection uses.
func (s *store) LatestObservation(
	ctx context.Context, keywordID uint,
) (*KeywordObservation, error) {
	var obs KeywordObservation
	if err := s.db.WithContext(ctx).
		Where("keyword_id = ?", keywordID).
		Order("created_at DESC, id DESC").
		First(&obs).Error; err != nil {
		return nil, fmt.Errorf("getting latest observation: %w", err)
	}

	return &obs, nil
}

func (s *store) KeywordDailyHistory(
	ctx context.Context, keywordID uint, days int,
) ([]DailyMetric, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	var metrics []DailyMetric
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT DATE(created_at) AS day,
			       AVG(score) AS avg_score,
			       AVG(search_volume) AS avg_volume,
			       COUNT(*) AS observations
			FROM keyword_observations
			WHERE keyword_id = ? AND created_at >= ?
			GROUP BY DATE(created_at)
			ORDER BY day ASC`,
			keywordID, since,
		).
		Scan(&metrics).Error; err != nil {
		return nil, fmt.Errorf("aggregating daily history: %w", err)
	}

	return metrics, nil
}

func (s *store) RecentObservations(
	ctx context.Context, keywordID uint, limit int,
) ([]KeywordObservation, error) {
	var observations []KeywordObservation
	if err := s.db.WithContext(ctx).
		Where("keyword_id = ?", keywordID).
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&observations).Error; err != nil {
		return nil, fmt.Errorf("listing recent observations: %w", err)
	}

	return observations, nil
}

func (s *store) ReportsForKeyword(
	ctx context.Context, keywordID uint, limit int,
) ([]ReportSummary, error) {
	var reports []ReportSummary
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT kr.id, kr.run_id, kr.title, kr.created_at,
			       mr.status AS status,
			       ms.name AS server_name,
			       (SELECT COUNT(*) FROM keyword_observations ko
			        WHERE ko.run_id = kr.run_id) AS keywords_analyzed
			FROM keyword_reports kr
			LEFT JOIN mining_runs mr ON kr.run_id = mr.id
			LEFT JOIN mining_servers ms ON mr.server_id = ms.id
			WHERE kr.run_id IN (
				SELECT DISTINCT run_id FROM keyword_observations
				WHERE keyword_id = ?
			)
			ORDER BY kr.created_at DESC
			LIMIT ?`,
			keywordID, limit,
		).
		Scan(&reports).Error; err != nil {
		return nil, fmt.Errorf("listing reports for keyword: %w", err)
	}

	return reports, nil
}

// DeleteKeywords removes keywords along with their observations, notes,
// and projection rows in one transaction. Returns the number of keyword
// rows deleted.
func (s *store) DeleteKeywords(
	ctx context.Context, ids []uint,
) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	var deleted int64

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("keyword_id IN ?", ids).
			Delete(&KeywordObservation{}).Error; err != nil {
			return fmt.Errorf("deleting observations: %w", err)
		}

		if err := tx.Where("keyword_id IN ?", ids).
			Delete(&KeywordNote{}).Error; err != nil {
			return fmt.Errorf("deleting notes: %w", err)
		}

		if err := tx.Where("keyword_id IN ?", ids).
			Delete(&KeywordLatest{}).Error; err != nil {
			return fmt.Errorf("deleting projection rows: %w", err)
		}

		result := tx.Where("id IN ?", ids).Delete(&Keyword{})
		if result.Error != nil {
			return fmt.Errorf("deleting keywords: %w", result.Error)
		}

		deleted = result.RowsAffected

		return nil
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

// --- Reports ---

func (s *store) ListReports(
	ctx context.Context, limit int,
) ([]ReportSummary, error) {
	var reports []ReportSummary
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT kr.id, kr.run_id, kr.title, kr.created_at,
			       mr.status AS status,
			       ms.name AS server_name,
			       (SELECT COUNT(*) FROM keyword_observations ko
			        WHERE ko.run_id = kr.run_id) AS keywords_analyzed
			FROM keyword_reports kr
			LEFT JOIN mining_runs mr ON kr.run_id = mr.id
			LEFT JOIN mining_servers ms ON mr.server_id = ms.id
			ORDER BY kr.created_at DESC
			LIMIT ?`,
			limit,
		).
		Scan(&reports).Error; err != nil {
		return nil, fmt.Errorf("listing reports: %w", err)
	}

	return reports, nil
}

// --- Servers and credentials ---

func (s *store) ListServerStats(
	ctx context.Context,
) ([]ServerStats, error) {
	var servers []ServerStats
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT ms.id, ms.name, ms.region, ms.created_at,
			       (SELECT COUNT(*) FROM mining_runs mr
			        WHERE mr.server_id = ms.id) AS run_count,
			       (SELECT COUNT(DISTINCT ko.keyword_id)
			        FROM keyword_observations ko
			        JOIN mining_runs mr2 ON ko.run_id = mr2.id
			        WHERE mr2.server_id = ms.id) AS keyword_count,
			       (SELECT MAX(mr3.created_at) FROM mining_runs mr3
			        WHERE mr3.server_id = ms.id) AS last_run_at
			FROM mining_servers ms
			ORDER BY ms.id ASC`,
		).
		Scan(&servers).Error; err != nil {
		return nil, fmt.Errorf("listing server stats: %w", err)
	}

	return servers, nil
}

// ListCredentials lists servers that currently hold an issued
// credential. The digest itself never leaves the store layer.
func (s *store) ListCredentials(
	ctx context.Context,
) ([]CredentialInfo, error) {
	var creds []CredentialInfo
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT ms.id AS server_id, ms.name, ms.region, ms.created_at,
			       (SELECT MAX(mr.created_at) FROM mining_runs mr
			        WHERE mr.server_id = ms.id) AS last_used_at
			FROM mining_servers ms
			WHERE ms.api_key_hash IS NOT NULL
			ORDER BY ms.created_at DESC`,
		).
		Scan(&creds).Error; err != nil {
		return nil, fmt.Errorf("listing credentials: %w", err)
	}

	return creds, nil
}

func (s *store) ListRecentRuns(
	ctx context.Context, limit int,
) ([]RunSummary, error) {
	var runs []RunSummary
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT mr.id, mr.status, mr.seed, mr.started_at, mr.ended_at,
			       ms.name AS server_name
			FROM mining_runs mr
			LEFT JOIN mining_servers ms ON mr.server_id = ms.id
			ORDER BY mr.started_at DESC
			LIMIT ?`,
			limit,
		).
		Scan(&runs).Error; err != nil {
		return nil, fmt.Errorf("listing recent runs: %w", err)
	}

	return runs, nil
}

// --- Dashboard aggregates (live latest-per-keyword) ---

// DashboardStats computes the headline counters. The green-light count
// classifies each keyword by its latest observation, matching the
// list-filter and detail paths.
func (s *store) DashboardStats(
	ctx context.Context,
) (*DashboardStats, error) {
	var stats DashboardStats

	if err := s.db.WithContext(ctx).
		Model(&Keyword{}).
		Count(&stats.TotalKeywords).Error; err != nil {
		return nil, fmt.Errorf("counting keywords: %w", err)
	}

	weekAgo := time.Now().UTC().AddDate(0, 0, -7)

	if err := s.db.WithContext(ctx).
		Model(&Keyword{}).
		Where("first_seen_at >= ?", weekAgo).
		Count(&stats.NewThisWeek).Error; err != nil {
		return nil, fmt.Errorf("counting new keywords: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT COUNT(*) FROM (`+latestObservationSQL+`) lo
			WHERE lo.score >= ? AND lo.difficulty = ?`,
			keyword.GreenLightMinScore, keyword.DifficultyLow,
		).
		Scan(&stats.GreenLightKeywords).Error; err != nil {
		return nil, fmt.Errorf("counting green-light keywords: %w", err)
	}

	if err := s.db.WithContext(ctx).
		Model(&MiningRun{}).
		Where("status = ?", RunStatusRunning).
		Count(&stats.RunningRuns).Error; err != nil {
		return nil, fmt.Errorf("counting running runs: %w", err)
	}

	return &stats, nil
}

func (s *store) TopKeywords(
	ctx context.Context, limit int,
) ([]TopKeyword, error) {
	var rows []TopKeyword
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT k.id AS keyword_id, k.keyword,
			       lo.score, lo.search_volume, lo.difficulty, lo.intent,
			       lo.word_count, lo.pain_point_flag,
			       lo.created_at AS observed_at
			FROM keywords k
			JOIN (`+latestObservationSQL+`) lo ON k.id = lo.keyword_id
			WHERE lo.score IS NOT NULL
			ORDER BY lo.score DESC
			LIMIT ?`,
			limit,
		).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing top keywords: %w", err)
	}

	for i := range rows {
		if rows[i].Score != nil && rows[i].Difficulty != nil {
			rows[i].IsGreenLight = keyword.IsGreenLight(
				*rows[i].Score, *rows[i].Difficulty,
			)
		}
	}

	return rows, nil
}

func (s *store) DiscoveryTrend(
	ctx context.Context, days int,
) ([]DateCount, error) {
	since := time.Now().UTC().AddDate(0, 0, -days)

	var points []DateCount
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT DATE(first_seen_at) AS day, COUNT(*) AS count
			FROM keywords
			WHERE first_seen_at >= ?
			GROUP BY DATE(first_seen_at)
			ORDER BY day ASC`,
			since,
		).
		Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("aggregating discovery trend: %w", err)
	}

	return points, nil
}

func (s *store) IntentDistribution(
	ctx context.Context,
) ([]LabelCount, error) {
	return s.latestDistribution(ctx, "intent")
}

func (s *store) DifficultyDistribution(
	ctx context.Context,
) ([]LabelCount, error) {
	return s.latestDistribution(ctx, "difficulty")
}

// latestDistribution groups the live latest-per-keyword observations by
// one of the enum columns. col is always a fixed identifier, never
// caller input.
func (s *store) latestDistribution(
	ctx context.Context, col string,
) ([]LabelCount, error) {
	var counts []LabelCount
	if err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf(`
			SELECT COALESCE(lo.%s, 'unknown') AS label, COUNT(*) AS count
			FROM (%s) lo
			GROUP BY COALESCE(lo.%s, 'unknown')
			ORDER BY count DESC`,
			col, latestObservationSQL, col,
		)).
		Scan(&counts).Error; err != nil {
		return nil, fmt.Errorf("aggregating %s distribution: %w", col, err)
	}

	return counts, nil
}

func (s *store) SiteStats(ctx context.Context) (*SiteStats, error) {
	var stats SiteStats

	weekAgo := time.Now().UTC().AddDate(0, 0, -7)

	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT
			  (SELECT COUNT(*) FROM keywords) AS total_keywords,
			  (SELECT COUNT(*) FROM mining_servers) AS active_servers,
			  (SELECT COUNT(*) FROM keyword_reports) AS total_reports,
			  (SELECT COUNT(*) FROM keywords
			   WHERE first_seen_at >= ?) AS recent_keywords,
			  (SELECT COUNT(*) FROM mining_runs
			   WHERE status = ?) AS running_runs`,
			weekAgo, RunStatusRunning,
		).
		Scan(&stats).Error; err != nil {
		return nil, fmt.Errorf("aggregating site stats: %w", err)
	}

	return &stats, nil
}

// --- Trend aggregations ---

func (s *store) TrendSummary(
	ctx context.Context, since time.Time,
) (*TrendSummary, error) {
	var summary TrendSummary
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT
			  COUNT(DISTINCT ko.keyword_id) AS total_keywords,
			  (SELECT COUNT(*) FROM keywords k
			   WHERE k.first_seen_at >= ?) AS new_keywords,
			  COUNT(DISTINCT ko.run_id) AS total_runs,
			  AVG(ko.score) AS avg_score,
			  AVG(ko.search_volume) AS avg_volume
			FROM keyword_observations ko
			WHERE ko.created_at >= ?`,
			since, since,
		).
		Scan(&summary).Error; err != nil {
		return nil, fmt.Errorf("aggregating trend summary: %w", err)
	}

	return &summary, nil
}

func (s *store) VolumeTrend(
	ctx context.Context, since time.Time,
) ([]VolumePoint, error) {
	var points []VolumePoint
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT DATE(created_at) AS day,
			       AVG(search_volume) AS avg_volume,
			       COUNT(DISTINCT keyword_id) AS keyword_count
			FROM keyword_observations
			WHERE created_at >= ? AND search_volume IS NOT NULL
			GROUP BY DATE(created_at)
			ORDER BY day ASC`,
			since,
		).
		Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("aggregating volume trend: %w", err)
	}

	return points, nil
}

func (s *store) ScoreTrend(
	ctx context.Context, since time.Time,
) ([]ScorePoint, error) {
	var points []ScorePoint
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT DATE(created_at) AS day,
			       AVG(score) AS avg_score,
			       MAX(score) AS max_score,
			       MIN(score) AS min_score,
			       COUNT(*) AS observations
			FROM keyword_observations
			WHERE created_at >= ? AND score IS NOT NULL
			GROUP BY DATE(created_at)
			ORDER BY day ASC`,
			since,
		).
		Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("aggregating score trend: %w", err)
	}

	return points, nil
}

func (s *store) NewKeywordTrend(
	ctx context.Context, since time.Time,
) ([]DateCount, error) {
	var points []DateCount
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT DATE(first_seen_at) AS day, COUNT(*) AS count
			FROM keywords
			WHERE first_seen_at >= ?
			GROUP BY DATE(first_seen_at)
			ORDER BY day ASC`,
			since,
		).
		Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("aggregating new keyword trend: %w", err)
	}

	return points, nil
}

func (s *store) DifficultyTrend(
	ctx context.Context, since time.Time,
) ([]DateLabelCount, error) {
	return s.labelTrend(ctx, "difficulty", since)
}

func (s *store) IntentTrend(
	ctx context.Context, since time.Time,
) ([]DateLabelCount, error) {
	return s.labelTrend(ctx, "intent", since)
}

func (s *store) labelTrend(
	ctx context.Context, col string, since time.Time,
) ([]DateLabelCount, error) {
	var points []DateLabelCount
	if err := s.db.WithContext(ctx).
		Raw(fmt.Sprintf(`
			SELECT DATE(created_at) AS day, %s AS label,
			       COUNT(*) AS count
			FROM keyword_observations
			WHERE created_at >= ? AND %s IS NOT NULL
			GROUP BY DATE(created_at), %s
			ORDER BY day ASC`,
			col, col, col,
		), since).
		Scan(&points).Error; err != nil {
		return nil, fmt.Errorf("aggregating %s trend: %w", col, err)
	}

	return points, nil
}

func (s *store) TopGrowingKeywords(
	ctx context.Context, since time.Time, limit int,
) ([]GrowingKeyword, error) {
	var rows []GrowingKeyword
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT ks.id AS keyword_id, ks.keyword,
			       ks.first_volume, ks.latest_volume, ks.observation_count,
			       ROUND(
			         (ks.latest_volume - ks.first_volume) * 100.0
			           / ks.first_volume,
			         2
			       ) AS growth_rate
			FROM (
				SELECT k.id, k.keyword,
				       MIN(ko.search_volume) AS first_volume,
				       MAX(ko.search_volume) AS latest_volume,
				       COUNT(*) AS observation_count
				FROM keywords k
				JOIN keyword_observations ko ON k.id = ko.keyword_id
				WHERE ko.created_at >= ?
				  AND ko.search_volume IS NOT NULL
				GROUP BY k.id, k.keyword
				HAVING COUNT(*) >= 2
			) ks
			WHERE ks.first_volume > 0
			ORDER BY growth_rate DESC
			LIMIT ?`,
			since, limit,
		).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing top growing keywords: %w", err)
	}

	return rows, nil
}

func (s *store) RecentActiveKeywords(
	ctx context.Context, since time.Time, limit int,
) ([]ActiveKeyword, error) {
	var rows []ActiveKeyword
	if err := s.db.WithContext(ctx).
		Raw(`
			SELECT k.id AS keyword_id, k.keyword,
			       COUNT(ko.id) AS observation_count,
			       MAX(ko.created_at) AS last_observed,
			       AVG(ko.score) AS avg_score,
			       MAX(ko.search_volume) AS max_volume
			FROM keywords k
			JOIN keyword_observations ko ON k.id = ko.keyword_id
			WHERE ko.created_at >= ?
			GROUP BY k.id, k.keyword
			HAVING COUNT(ko.id) >= 2
			ORDER BY observation_count DESC, last_observed DESC
			LIMIT ?`,
			since, limit,
		).
		Scan(&rows).Error; err != nil {
		return nil, fmt.Errorf("listing recent active keywords: %w", err)
	}

	return rows, nil
}
