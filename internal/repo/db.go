// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file contains database bootstrapping helpers for
// SQLite (pure Go driver) and Postgres, plus schema migrations.
package repo

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"github.com/lib/pq"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/plugin/opentelemetry/tracing"

	"github.com/tbourn/go-complaint-triage/internal/domain"
)

// Supported DB_DRIVER values.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Options selects and tunes the database backend opened by Open.
type Options struct {
	Driver string // sqlite|postgres
	Path   string // SQLite file path
	DSN    string // Postgres connection string
	Trace  bool   // install the GORM OpenTelemetry plugin
}

// Open opens the configured backend. The returned handle is the single
// storage handle shared by the store and the change notifier; callers own
// its lifecycle and must Close it at shutdown.
func Open(opts Options) (*gorm.DB, error) {
	var (
		db  *gorm.DB
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opts.Driver)) {
	case "", DriverSQLite:
		db, err = OpenSQLite(opts.Path)
	case DriverPostgres:
		db, err = OpenPostgres(opts.DSN)
	default:
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", opts.Driver)
	}
	if err != nil {
		return nil, err
	}
	if opts.Trace {
		if err := db.Use(tracing.NewPlugin()); err != nil {
			return nil, err
		}
	}
	return db, nil
}

// OpenSQLite opens (or creates) a SQLite database and applies PRAGMAs.
func OpenSQLite(path string) (*gorm.DB, error) {
	// Fail early if parent directory does not exist (instead of sqlite "out of memory (14)" on Windows).
	if dir := filepath.Dir(path); dir != "." {
		if _, err := os.Stat(dir); err != nil {
			return nil, err
		}
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	// PRAGMAs
	db.Exec("PRAGMA journal_mode=WAL;")
	db.Exec("PRAGMA synchronous=NORMAL;")
	db.Exec("PRAGMA foreign_keys=ON;")
	db.Exec("PRAGMA busy_timeout=5000;")

	// Pool
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(10)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxIdleTime(5 * time.Minute)
		sqlDB.SetConnMaxLifetime(30 * time.Minute)
	}

	return db, nil
}

// OpenPostgres connects to Postgres through the pgx-backed GORM driver.
func OpenPostgres(dsn string) (*gorm.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres: empty DATABASE_URL")
	}
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.SetMaxOpenConns(25)
		sqlDB.SetMaxIdleConns(25)
		sqlDB.SetConnMaxLifetime(5 * time.Minute)
	}
	return db, nil
}

// AutoMigrate creates or updates the complaint and idempotency tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Complaint{},
		&domain.Idempotency{},
	)
}

// InstallChangeTrigger installs a Postgres trigger that emits a NOTIFY on
// channel for every INSERT, UPDATE, or DELETE on the complaints table,
// including status changes made by external workflows. It is a no-op for
// other dialects.
//
// The payload is a JSON object {type, table, id, at} that notify.PGListener
// decodes into a notify.Event.
func InstallChangeTrigger(db *gorm.DB, channel string) error {
	if db.Dialector.Name() != DriverPostgres {
		return nil
	}
	fn := `CREATE OR REPLACE FUNCTION notify_complaints_change() RETURNS trigger AS $$
DECLARE rec RECORD;
BEGIN
  IF TG_OP = 'DELETE' THEN rec := OLD; ELSE rec := NEW; END IF;
  PERFORM pg_notify(` + pq.QuoteLiteral(channel) + `, json_build_object(
    'type', TG_OP, 'table', TG_TABLE_NAME, 'id', rec.id, 'at', now())::text);
  RETURN rec;
END;
$$ LANGUAGE plpgsql`

	// One statement per Exec; multi-statement Exec is not portable across drivers.
	stmts := []string{
		fn,
		`DROP TRIGGER IF EXISTS complaints_notify ON complaints`,
		`CREATE TRIGGER complaints_notify AFTER INSERT OR UPDATE OR DELETE ON complaints
		 FOR EACH ROW EXECUTE FUNCTION notify_complaints_change()`,
	}
	for _, s := range stmts {
		if err := db.Exec(s).Error; err != nil {
			return err
		}
	}
	return nil
}
