// Package store keeps the gnome population and the photo path index in a
// local SQLite database through GORM.
package store

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	gnomecache "github.com/wolfeidau/gnome-cache"
)

// schemaVersion is stored in PRAGMA user_version. A database written with
// any other non-zero version has its tables dropped and recreated.
const schemaVersion = 1

// DB wraps the GORM connection with gnome cache operations.
type DB struct {
	*gorm.DB
	path   string
	logger *slog.Logger
}

// Config holds database configuration options.
type Config struct {
	Path          string
	Debug         bool
	SlowThreshold time.Duration
	MaxOpenConn   int
	Logger        *slog.Logger
}

// DefaultConfig returns defaults for a database at path.
func DefaultConfig(path string) Config {
	return Config{
		Path:          path,
		SlowThreshold: defaultSlowThreshold,
		MaxOpenConn:   1,
		Logger:        slog.Default(),
	}
}

// Open opens the database and brings the schema up to date.
func Open(cfg Config) (*DB, error) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxOpenConn <= 0 {
		cfg.MaxOpenConn = 1
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrStorage, "creating db directory: %w", err)
	}

	// DELETE journal mode: WAL has visibility issues with the pure-Go driver.
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(DELETE)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)", cfg.Path)

	logger := cfg.Logger.With("component", "store")
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 newGormLogger(logger, cfg.Debug, cfg.SlowThreshold),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrStorage, "opening database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, gnomecache.Errorf(gnomecache.ErrStorage, "getting sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxOpenConn)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConn)
	sqlDB.SetConnMaxLifetime(time.Hour)

	db := &DB{DB: gdb, path: cfg.Path, logger: logger}
	if err := db.migrate(); err != nil {
		_ = sqlDB.Close()
		return nil, gnomecache.Errorf(gnomecache.ErrStorage, "migrating: %w", err)
	}

	logger.Debug("opened database", "path", cfg.Path)
	return db, nil
}

// migrate creates the tables, dropping them first when the stored schema
// version does not match.
func (db *DB) migrate() error {
	var version int
	if err := db.Raw("PRAGMA user_version").Scan(&version).Error; err != nil {
		return fmt.Errorf("reading schema version: %w", err)
	}

	if version != 0 && version != schemaVersion {
		db.logger.Warn("schema version mismatch, recreating tables",
			"found", version,
			"want", schemaVersion,
		)
		if err := db.Migrator().DropTable(&gnomeRow{}, &photoRow{}); err != nil {
			return fmt.Errorf("dropping tables: %w", err)
		}
	}

	if err := db.AutoMigrate(&gnomeRow{}, &photoRow{}); err != nil {
		return err
	}

	if err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", schemaVersion)).Error; err != nil {
		return fmt.Errorf("writing schema version: %w", err)
	}
	return nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// Close closes the underlying connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
