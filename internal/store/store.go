// Package store is the persistence layer: GORM over a pure-Go SQLite driver,
// grounded on the teacher's pkg/acousticdna/storage/sqlite.go. It is split
// across this file (connection + migrations), fingerprint_store.go (C3),
// resolver.go (C6), stats.go (C8) and station.go (station lifecycle).
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/sodav/detection-core/internal/logger"
	"github.com/sodav/detection-core/internal/model"
)

// Store wraps a GORM DB handle plus a STATS_RECORDER-tagged logger; none of
// the store's methods write to that logger.
type Store struct {
	DB  *gorm.DB
	log *logger.Logger
}

// Open connects to the SQLite database at path, tunes the connection pool
// and runs AutoMigrate over every model. Foreign keys are enabled via the
// DSN, matching the teacher's sqlite.go.
func Open(path string, log *logger.Logger) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path+"?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("getting sql.DB from gorm: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(model.AllModels()...); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("auto migrate: %w", err)
	}

	return &Store{DB: db, log: log.With(logger.CategoryStatsRecorder)}, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
