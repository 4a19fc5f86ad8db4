// Package store provides persistence for the keywordoor API: mining
// server identities, runs, deduplicated keywords, observations, reports,
// and the derived latest-observation projection.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/keywordoor/keywordoor/pkg/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store provides persistence for API resources.
type Store interface {
	Start(ctx context.Context) error
	Stop() error

	// Mining server identity and credentials.
	GetServerByKeyHash(ctx context.Context, hash string) (*MiningServer, error)
	GetServerByID(ctx context.Context, id uint) (*MiningServer, error)
	ListServerStats(ctx context.Context) ([]ServerStats, error)
	ListCredentials(ctx context.Context) ([]CredentialInfo, error)
	UpsertServerCredential(
		ctx context.Context, id uint, name, region, keyHash string,
	) (*MiningServer, error)
	RevokeServerCredential(ctx context.Context, id uint) error

	// Runs and reports.
	CreateRun(ctx context.Context, run *MiningRun) error
	GetRunForServer(
		ctx context.Context, runID, serverID uint,
	) (*MiningRun, error)
	CompleteRun(ctx context.Context, runID uint, status string) error
	ListRecentRuns(ctx context.Context, limit int) ([]RunSummary, error)
	CreateReport(ctx context.Context, report *KeywordReport) error
	ListReports(ctx context.Context, limit int) ([]ReportSummary, error)
	GetReport(ctx context.Context, id uint) (*KeywordReport, error)
	DeleteReport(ctx context.Context, id uint) error

	// Ingestion (upsert engine).
	ResolveKeyword(ctx context.Context, in ObservationInput) (uint, error)
	CreateObservationIfAbsent(
		ctx context.Context, obs *KeywordObservation,
	) (bool, error)
	IngestObservations(
		ctx context.Context, runID uint, items []ObservationInput,
	) (BatchResult, error)

	// Read-side queries.
	ListLatest(
		ctx context.Context, filter KeywordFilter,
	) ([]KeywordLatest, int64, error)
	GetKeywordByID(ctx context.Context, id uint) (*Keyword, error)
	LatestObservation(
		ctx context.Context, keywordID uint,
	) (*KeywordObservation, error)
	KeywordDailyHistory(
		ctx context.Context, keywordID uint, days int,
	) ([]DailyMetric, error)
	RecentObservations(
		ctx context.Context, keywordID uint, limit int,
	) ([]KeywordObservation, error)
	ReportsForKeyword(
		ctx context.Context, keywordID uint, limit int,
	) ([]ReportSummary, error)
	NotesForKeyword(
		ctx context.Context, keywordID uint, limit int,
	) ([]KeywordNote, error)
	CreateNote(ctx context.Context, note *KeywordNote) error
	DeleteKeywords(ctx context.Context, ids []uint) (int64, error)

	// Aggregations.
	DashboardStats(ctx context.Context) (*DashboardStats, error)
	TopKeywords(ctx context.Context, limit int) ([]TopKeyword, error)
	DiscoveryTrend(ctx context.Context, days int) ([]DateCount, error)
	IntentDistribution(ctx context.Context) ([]LabelCount, error)
	DifficultyDistribution(ctx context.Context) ([]LabelCount, error)
	SiteStats(ctx context.Context) (*SiteStats, error)
	TrendSummary(ctx context.Context, since time.Time) (*TrendSummary, error)
	VolumeTrend(ctx context.Context, since time.Time) ([]VolumePoint, error)
	ScoreTrend(ctx context.Context, since time.Time) ([]ScorePoint, error)
	NewKeywordTrend(ctx context.Context, since time.Time) ([]DateCount, error)
	DifficultyTrend(
		ctx context.Context, since time.Time,
	) ([]DateLabelCount, error)
	IntentTrend(ctx context.Context, since time.Time) ([]DateLabelCount, error)
	TopGrowingKeywords(
		ctx context.Context, since time.Time, limit int,
	) ([]GrowingKeyword, error)
	RecentActiveKeywords(
		ctx context.Context, since time.Time, limit int,
	) ([]ActiveKeyword, error)

	// Latest projection.
	RebuildLatest(ctx context.Context) (int64, error)
}

// Compile-time interface check.
var _ Store = (*store)(nil)

type store struct {
	log logrus.FieldLogger
	cfg *config.DatabaseConfig
	db  *gorm.DB
}

// NewStore creates a new Store backed by the configured database driver.
func NewStore(
	log logrus.FieldLogger,
	cfg *config.DatabaseConfig,
) Store {
	return &store{
		log: log.WithField("component", "store"),
		cfg: cfg,
	}
}

// Start opens the database connection and runs migrations.
func (s *store) Start(ctx context.Context) error {
	var (
		dialector gorm.Dialector
		err       error
	)

	gormCfg := &gorm.Config{
		Logger: logger.Discard,
	}

	switch s.cfg.Driver {
	case "sqlite":
		dialector = sqlite.Open(s.cfg.SQLite.Path)
	case "postgres":
		dsn := fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			s.cfg.Postgres.Host,
			s.cfg.Postgres.Port,
			s.cfg.Postgres.User,
			s.cfg.Postgres.Password,
			s.cfg.Postgres.Database,
			s.cfg.Postgres.SSLMode,
		)
		dialector = postgres.Open(dsn)
	default:
		return fmt.Errorf("unsupported database driver: %s", s.cfg.Driver)
	}

	s.db, err = gorm.Open(dialector, gormCfg)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := s.db.WithContext(ctx).AutoMigrate(
		&MiningServer{},
		&MiningRun{},
		&Keyword{},
		&KeywordObservation{},
		&KeywordReport{},
		&KeywordLatest{},
		&KeywordNote{},
	); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	s.log.WithField("driver", s.cfg.Driver).Info("Database connected")

	return nil
}

// Stop closes the underlying database connection.
func (s *store) Stop() error {
	if s.db == nil {
		return nil
	}

	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("getting underlying db: %w", err)
	}

	return sqlDB.Close()
}

// --- Mining server identity ---

// GetServerByKeyHash resolves a credential digest to a server identity.
// Used by the auth gate; any error is treated as unauthorized by the
// caller (fail closed).
func (s *store) GetServerByKeyHash(
	ctx context.Context, hash string,
) (*MiningServer, error) {
	var server MiningServer
	if err := s.db.WithContext(ctx).
		Where("api_key_hash = ?", hash).
		First(&server).Error; err != nil {
		return nil, fmt.Errorf("getting server by key hash: %w", err)
	}

	return &server, nil
}

func (s *store) GetServerByID(
	ctx context.Context, id uint,
) (*MiningServer, error) {
	var server MiningServer
	if err := s.db.WithContext(ctx).First(&server, id).Error; err != nil {
		return nil, fmt.Errorf("getting server by id: %w", err)
	}

	return &server, nil
}

// UpsertServerCredential creates the server row if it does not exist and
// stores the new credential digest. Issuing to an existing server
// replaces its digest in place: a revoked server resumes under the same
// identity when re-issued.
func (s *store) UpsertServerCredential(
	ctx context.Context, id uint, name, region, keyHash string,
) (*MiningServer, error) {
	server := &MiningServer{
		ID:         id,
		Name:       name,
		Region:     region,
		APIKeyHash: &keyHash,
	}

	result := s.db.WithContext(ctx).
		Where("id = ?", id).
		Assign(MiningServer{
			Name:       name,
			Region:     region,
			APIKeyHash: &keyHash,
		}).
		FirstOrCreate(server)
	if result.Error != nil {
		return nil, fmt.Errorf("upserting server credential: %w", result.Error)
	}

	return server, nil
}

// RevokeServerCredential clears the stored digest but preserves the
// server row so historical run attribution survives.
func (s *store) RevokeServerCredential(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Model(&MiningServer{}).
		Where("id = ?", id).
		Update("api_key_hash", nil).Error; err != nil {
		return fmt.Errorf("revoking server credential: %w", err)
	}

	return nil
}

// --- Runs and reports ---

func (s *store) CreateRun(ctx context.Context, run *MiningRun) error {
	if err := s.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("creating run: %w", err)
	}

	return nil
}

// GetRunForServer fetches a run only if it is owned by the given server.
// A missing run and a foreign run are indistinguishable to the caller.
func (s *store) GetRunForServer(
	ctx context.Context, runID, serverID uint,
) (*MiningRun, error) {
	var run MiningRun
	if err := s.db.WithContext(ctx).
		Where("id = ? AND server_id = ?", runID, serverID).
		First(&run).Error; err != nil {
		return nil, fmt.Errorf("getting run for server: %w", err)
	}

	return &run, nil
}

// CompleteRun performs the single terminal status transition and stamps
// the end timestamp.
func (s *store) CompleteRun(
	ctx context.Context, runID uint, status string,
) error {
	now := time.Now().UTC()

	if err := s.db.WithContext(ctx).
		Model(&MiningRun{}).
		Where("id = ? AND status = ?", runID, RunStatusRunning).
		Updates(map[string]any{
			"status":   status,
			"ended_at": now,
		}).Error; err != nil {
		return fmt.Errorf("completing run: %w", err)
	}

	return nil
}

func (s *store) CreateReport(
	ctx context.Context, report *KeywordReport,
) error {
	if err := s.db.WithContext(ctx).Create(report).Error; err != nil {
		return fmt.Errorf("creating report: %w", err)
	}

	return nil
}

func (s *store) GetReport(
	ctx context.Context, id uint,
) (*KeywordReport, error) {
	var report KeywordReport
	if err := s.db.WithContext(ctx).First(&report, id).Error; err != nil {
		return nil, fmt.Errorf("getting report: %w", err)
	}

	return &report, nil
}

func (s *store) DeleteReport(ctx context.Context, id uint) error {
	if err := s.db.WithContext(ctx).
		Delete(&KeywordReport{}, id).Error; err != nil {
		return fmt.Errorf("deleting report: %w", err)
	}

	return nil
}

// --- Notes ---

func (s *store) NotesForKeyword(
	ctx context.Context, keywordID uint, limit int,
) ([]KeywordNote, error) {
	var notes []KeywordNote
	if err := s.db.WithContext(ctx).
		Where("keyword_id = ?", keywordID).
		Order("created_at DESC").
		Limit(limit).
		Find(&notes).Error; err != nil {
		return nil, fmt.Errorf("listing notes: %w", err)
	}

	return notes, nil
}

func (s *store) CreateNote(ctx context.Context, note *KeywordNote) error {
	if err := s.db.WithContext(ctx).Create(note).Error; err != nil {
		return fmt.Errorf("creating note: %w", err)
	}

	return nil
}
