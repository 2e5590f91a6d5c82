package store

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"time"

	"github.com/dgraph-io/badger/v4"
	_ "github.com/glebarez/go-sqlite" // Pure Go SQLite driver
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/planlift/takeoff/internal/config"
)

// Store provides unified access to SQLite and BadgerDB.
type Store struct {
	db     *gorm.DB
	badger *badger.DB
	config *config.StorageConfig
}

// New creates a new Store instance
func New(cfg *config.Config) (*Store, error) {
	sqlitePath := cfg.Storage.SQLitePath
	if sqlitePath == "" {
		sqlitePath = filepath.Join(cfg.Storage.DataDir, "takeoff.db")
	}

	sqliteDB, err := sql.Open("sqlite", sqlitePath+"?_journal=WAL&_synchronous=NORMAL&_busy_timeout=5000&_cache_size=-64000")
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	sqliteDB.SetMaxOpenConns(10)
	sqliteDB.SetMaxIdleConns(5)
	sqliteDB.SetConnMaxLifetime(time.Hour)

	db, err := gorm.Open(sqlite.Dialector{Conn: sqliteDB}, &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
		PrepareStmt:            true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}

	if err := db.AutoMigrate(
		&Condition{},
		&Measurement{},
		&TakeoffRun{},
	); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}

	badgerPath := cfg.Storage.BadgerPath
	if badgerPath == "" {
		badgerPath = filepath.Join(cfg.Storage.DataDir, "badger")
	}

	badgerOpts := badger.DefaultOptions(badgerPath).
		WithLogger(nil).
		WithNumVersionsToKeep(1).
		WithCompactL0OnClose(true).
		WithValueLogFileSize(16 << 20).
		WithMemTableSize(16 << 20)

	badgerDB, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger: %w", err)
	}

	return &Store{
		db:     db,
		badger: badgerDB,
		config: &cfg.Storage,
	}, nil
}

// Close closes all database connections
func (s *Store) Close() error {
	return s.badger.Close()
}

// DB returns the GORM database instance
func (s *Store) DB() *gorm.DB {
	return s.db
}

// Badger returns the BadgerDB instance
func (s *Store) Badger() *badger.DB {
	return s.badger
}

// ==================== Condition Methods ====================

// CreateCondition creates a new condition
func (s *Store) CreateCondition(cond *Condition) error {
	return s.db.Create(cond).Error
}

// GetCondition retrieves a condition by ID
func (s *Store) GetCondition(id string) (*Condition, error) {
	var cond Condition
	if err := s.db.First(&cond, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cond, nil
}

// ListConditions lists conditions for a project
func (s *Store) ListConditions(projectID string, limit, offset int) ([]Condition, error) {
	var conds []Condition
	err := s.db.Where("project_id = ?", projectID).
		Order("created_at ASC").
		Limit(limit).
		Offset(offset).
		Find(&conds).Error
	return conds, err
}

// DeleteCondition removes a condition and its measurements
func (s *Store) DeleteCondition(id string) error {
	if err := s.db.Where("condition_id = ?", id).Delete(&Measurement{}).Error; err != nil {
		return err
	}
	return s.db.Delete(&Condition{}, "id = ?", id).Error
}

// ==================== Measurement Methods ====================

// CreateMeasurement creates a new measurement
func (s *Store) CreateMeasurement(m *Measurement) error {
	return s.db.Create(m).Error
}

// UpdateMeasurement updates a measurement
func (s *Store) UpdateMeasurement(m *Measurement) error {
	return s.db.Save(m).Error
}

// GetMeasurement retrieves a measurement by ID
func (s *Store) GetMeasurement(id string) (*Measurement, error) {
	var m Measurement
	if err := s.db.First(&m, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// ListMeasurements lists measurements for a condition
func (s *Store) ListMeasurements(conditionID string) ([]Measurement, error) {
	var ms []Measurement
	err := s.db.Where("condition_id = ?", conditionID).
		Order("created_at ASC").
		Find(&ms).Error
	return ms, err
}

// ListMeasurementsByPage lists measurements for a document page
func (s *Store) ListMeasurementsByPage(documentID string, pageNumber int) ([]Measurement, error) {
	var ms []Measurement
	err := s.db.Where("document_id = ? AND page_number = ?", documentID, pageNumber).
		Order("created_at ASC").
		Find(&ms).Error
	return ms, err
}

// DeleteMeasurement removes a measurement
func (s *Store) DeleteMeasurement(id string) error {
	return s.db.Delete(&Measurement{}, "id = ?", id).Error
}

// DeleteMeasurementsByDocument cascades removal when a document is deleted
func (s *Store) DeleteMeasurementsByDocument(documentID string) error {
	return s.db.Where("document_id = ?", documentID).Delete(&Measurement{}).Error
}

// ==================== Run Methods ====================

// CreateRun records a new takeoff run
func (s *Store) CreateRun(run *TakeoffRun) error {
	return s.db.Create(run).Error
}

// UpdateRun updates a takeoff run
func (s *Store) UpdateRun(run *TakeoffRun) error {
	return s.db.Save(run).Error
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(id string) (*TakeoffRun, error) {
	var run TakeoffRun
	if err := s.db.First(&run, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns lists runs for a project, newest first
func (s *Store) ListRuns(projectID string, limit int) ([]TakeoffRun, error) {
	var runs []TakeoffRun
	err := s.db.Where("project_id = ?", projectID).
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}

// ListAutomatedRuns lists runs with a backend job attached, newest first.
// Used to reconcile summary counts the backend created after the start call
// returned.
func (s *Store) ListAutomatedRuns(limit int) ([]TakeoffRun, error) {
	var runs []TakeoffRun
	err := s.db.Where("mode = ? AND backend_run_id <> ''", "automated").
		Order("started_at DESC").
		Limit(limit).
		Find(&runs).Error
	return runs, err
}
