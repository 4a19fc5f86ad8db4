package store

import (
	"time"

	"github.com/keywordoor/keywordoor/pkg/keyword"
	"gorm.io/datatypes"
)

// Mining run status values. A run is created "running" and transitions
// exactly once to "success" or "failed" when its report is attached.
const (
	RunStatusRunning = "running"
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// MiningServer is the identity of a remote data-producing agent.
// Revoking its credential clears APIKeyHash but keeps the row so that
// historical runs stay attributed.
type MiningServer struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Name       string    `gorm:"not null" json:"name"`
	Region     string    `json:"region"`
	APIKeyHash *string   `gorm:"uniqueIndex" json:"-"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// MiningRun is one bounded mining session owned by a MiningServer.
type MiningRun struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	ServerID  uint           `gorm:"index;not null" json:"server_id"`
	Seed      string         `gorm:"not null" json:"seed"`
	Rounds    int            `gorm:"not null;default:1" json:"rounds"`
	Status    string         `gorm:"index;not null" json:"status"`
	StartedAt time.Time      `json:"started_at"`
	EndedAt   *time.Time     `json:"ended_at"`
	Meta      datatypes.JSON `json:"meta,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// Keyword is a canonical, globally deduplicated keyword string. The
// normalized form is the unique dedup key; descriptive fields are
// backfilled first-writer-wins and never overwritten.
type Keyword struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Keyword     string    `gorm:"not null" json:"keyword"`
	KeywordNorm string    `gorm:"uniqueIndex;not null" json:"keyword_norm"`
	Language    *string   `json:"language"`
	Country     *string   `json:"country"`
	Category    *string   `json:"category"`
	FirstSeenAt time.Time `json:"first_seen_at"`
	LastSeenAt  time.Time `gorm:"index" json:"last_seen_at"`
}

// KeywordObservation is one measurement of a keyword within one run.
// The composite unique index on (keyword_id, run_id) backs the atomic
// conditional insert that enforces at-most-one observation per pair.
// Rows are immutable once created.
type KeywordObservation struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	KeywordID     uint           `gorm:"uniqueIndex:idx_obs_keyword_run;not null" json:"keyword_id"`
	RunID         uint           `gorm:"uniqueIndex:idx_obs_keyword_run;index;not null" json:"run_id"`
	Score         *float64       `json:"score"`
	SearchVolume  *int64         `json:"search_volume"`
	Difficulty    *string        `json:"difficulty"`
	Intent        *string        `json:"intent"`
	WordCount     *int           `json:"word_count"`
	PainPointFlag bool           `json:"pain_point_flag"`
	PainPoint     *string        `json:"pain_point"`
	Source        *string        `json:"source"`
	RawJSON       datatypes.JSON `json:"raw_json,omitempty"`
	CreatedAt     time.Time      `gorm:"index" json:"created_at"`
}

// IsGreenLight derives the green-light classification from the canonical
// score and difficulty fields.
func (o *KeywordObservation) IsGreenLight() bool {
	if o.Score == nil || o.Difficulty == nil {
		return false
	}

	return keyword.IsGreenLight(*o.Score, *o.Difficulty)
}

// KeywordReport is a terminal analysis artifact attached to a run.
type KeywordReport struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	RunID      uint           `gorm:"index;not null" json:"run_id"`
	Title      string         `gorm:"not null" json:"title"`
	Markdown   string         `json:"markdown"`
	ReportJSON datatypes.JSON `json:"report_json,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// KeywordLatest is the derived projection: one row per keyword carrying
// its most recent observation. It is a rebuildable performance cache
// for the list/filter path, never the source of truth (detail views and
// dashboard aggregates compute "latest" live from observations).
type KeywordLatest struct {
	ID               uint      `gorm:"primaryKey" json:"id"`
	KeywordID        uint      `gorm:"uniqueIndex;not null" json:"keyword_id"`
	Keyword          string    `gorm:"not null" json:"keyword"`
	Score            *float64  `json:"score"`
	SearchVolume     *int64    `json:"search_volume"`
	Difficulty       *string   `json:"difficulty"`
	Intent           *string   `json:"intent"`
	WordCount        *int      `json:"word_count"`
	PainPointFlag    bool      `json:"pain_point_flag"`
	Source           *string   `json:"source"`
	Language         *string   `json:"language"`
	Country          *string   `json:"country"`
	Category         *string   `json:"category"`
	RunID            uint      `json:"run_id"`
	ObservedAt       time.Time `gorm:"index" json:"observed_at"`
	ObservationCount int64     `json:"observation_count"`
	RefreshedAt      time.Time `json:"refreshed_at"`
}

// IsGreenLight derives the green-light classification using the same
// predicate as the observation path.
func (l *KeywordLatest) IsGreenLight() bool {
	if l.Score == nil || l.Difficulty == nil {
		return false
	}

	return keyword.IsGreenLight(*l.Score, *l.Difficulty)
}

// KeywordNote is a free-form annotation attached to a keyword from the
// dashboard.
type KeywordNote struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	KeywordID uint      `gorm:"index;not null" json:"keyword_id"`
	Note      string    `gorm:"not null" json:"note"`
	CreatedBy string    `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}
