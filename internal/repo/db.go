// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and PostgreSQL, and schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/tbourn/qriscuy/internal/domain"
)

// OpenDatabase dispatches on the URL scheme: postgres:// and postgresql://
// go to the PostgreSQL driver, anything else is treated as a SQLite path
// (an optional "sqlite://" or "sqlite:///" prefix is stripped).
func OpenDatabase(url string) (*gorm.DB, error) {
	switch {
	case strings.HasPrefix(url, "postgres://"), strings.HasPrefix(url, "postgresql://"):
		return OpenPostgres(url)
	default:
		return OpenSQLite(sqlitePath(url))
	}
}

func sqlitePath(url string) string {
	for _, p := range []string{"sqlite:///", "sqlite://"} {
		if strings.HasPrefix(url, p) {
			return strings.TrimPrefix(url, p)
		}
	}
	return url
}

// Database-wide SQLite settings; journal_mode persists in the file.
var sqliteFilePragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA synchronous=NORMAL",
}

// Per-connection SQLite settings, carried in the DSN so every pooled
// connection gets them.
const sqliteConnPragmas = "_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Pool sizes. SQLite serializes writers anyway, so a small pool suffices.
const (
	sqliteMaxOpen   = 10
	postgresMaxOpen = 25
)

// OpenSQLite opens (or creates) a SQLite database file. The parent
// directory must already exist.
func OpenSQLite(path string) (*gorm.DB, error) {
	if dir := filepath.Dir(path); dir != "." && !strings.HasPrefix(path, "file:") {
		if _, err := os.Stat(dir); err != nil {
			return nil, fmt.Errorf("sqlite dir: %w", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(withConnPragmas(path)), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	for _, p := range sqliteFilePragmas {
		if err := db.Exec(p).Error; err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	setPool(db, sqliteMaxOpen)
	return db, nil
}

func withConnPragmas(path string) string {
	switch {
	case strings.Contains(path, "_pragma="):
		return path
	case strings.Contains(path, "?"):
		return path + "&" + sqliteConnPragmas
	default:
		return path + "?" + sqliteConnPragmas
	}
}

// OpenPostgres opens a PostgreSQL database from a DSN or URL.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	setPool(db, postgresMaxOpen)
	return db, nil
}

func setPool(db *gorm.DB, maxOpen int) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	sqlDB.SetMaxOpenConns(maxOpen)
	sqlDB.SetMaxIdleConns(maxOpen)
	sqlDB.SetConnMaxIdleTime(5 * time.Minute)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
}

// AutoMigrate creates or updates the invoice, fingerprint, scan event and
// idempotency tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Invoice{},
		&domain.Fingerprint{},
		&domain.ScanEvent{},
		&domain.Idempotency{},
	)
}
