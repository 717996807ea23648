// Package history keeps a local SQLite record of past builds so the report can
// show per-file size deltas.
package history

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the GORM database instance
type Store struct {
	db *gorm.DB
}

// Open creates the database at path (":memory:" for an in-memory store) and
// runs migrations.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create history directory: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	// SQLite allows one writer; a single connection also keeps :memory: shared.
	sqlDB.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.Migrate(); err != nil {
		return nil, err
	}
	return store, nil
}

// Migrate runs database migrations
func (s *Store) Migrate() error {
	if err := s.db.AutoMigrate(&Build{}, &BuildFile{}); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Record stores a build and its files in one transaction.
func (s *Store) Record(ctx context.Context, build *Build) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Files").Create(build).Error; err != nil {
			return fmt.Errorf("failed to record build %s: %w", build.BuildID, err)
		}
		if len(build.Files) == 0 {
			return nil
		}
		for i := range build.Files {
			build.Files[i].BuildID = build.BuildID
		}
		if err := tx.Create(&build.Files).Error; err != nil {
			return fmt.Errorf("failed to record files for build %s: %w", build.BuildID, err)
		}
		return nil
	})
}

// PreviousSizes returns the raw sizes by logical path of the most recent build for
// environment. It returns an empty map when there is no such build.
func (s *Store) PreviousSizes(ctx context.Context, environment string) (map[string]int64, error) {
	sizes := map[string]int64{}

	var last Build
	result := s.db.WithContext(ctx).
		Where("environment = ?", environment).
		Order("created_at DESC, id DESC").
		Limit(1).
		Find(&last)
	if result.Error != nil {
		return nil, fmt.Errorf("failed to load previous build: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return sizes, nil
	}

	var files []BuildFile
	if err := s.db.WithContext(ctx).Where("build_id = ?", last.BuildID).Find(&files).Error; err != nil {
		return nil, fmt.Errorf("failed to load files for build %s: %w", last.BuildID, err)
	}
	for _, f := range files {
		sizes[f.LogicalPath] = f.Size
	}
	return sizes, nil
}

// Recent returns the last n builds, newest first, with their files.
func (s *Store) Recent(ctx context.Context, n int) ([]Build, error) {
	var builds []Build
	err := s.db.WithContext(ctx).
		Preload("Files", func(db *gorm.DB) *gorm.DB { return db.Order("logical_path") }).
		Order("created_at DESC, id DESC").
		Limit(n).
		Find(&builds).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list builds: %w", err)
	}
	return builds, nil
}
