package repo

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-triage/internal/domain"
)

func TestOpenSQLite_ErrorOnBadPath(t *testing.T) {
	base := t.TempDir()
	bad := filepath.Join(base, "does-not-exist", "app.db")

	db, err := OpenSQLite(bad)
	if err == nil || db != nil {
		t.Fatalf("expected error opening %q, got db=%v err=%v", bad, db, err)
	}

	// Drivers word a missing directory differently.
	lower := strings.ToLower(err.Error())
	if !(os.IsNotExist(err) ||
		strings.Contains(lower, "unable to open database file") ||
		strings.Contains(lower, "no such file or directory") ||
		strings.Contains(lower, "out of memory")) {
		t.Fatalf("unexpected error opening %q: %v", bad, err)
	}
}

func TestOpenSQLite_SetsPragmas_Pool_AndAutoMigrate(t *testing.T) {
	tmp := t.TempDir()
	path := filepath.Join(tmp, "app.db")

	db, err := OpenSQLite(path)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB(): %v", err)
	}
	t.Cleanup(func() { _ = sqlDB.Close() })

	for pragma, want := range map[string]string{
		"journal_mode": "wal",
		"synchronous":  "1", // NORMAL
		"foreign_keys": "1",
		"busy_timeout": "5000",
	} {
		var got string
		if err := db.Raw("PRAGMA " + pragma).Row().Scan(&got); err != nil {
			t.Fatalf("PRAGMA %s: %v", pragma, err)
		}
		if strings.ToLower(got) != want {
			t.Fatalf("PRAGMA %s = %q; want %q", pragma, got, want)
		}
	}

	if stats := sqlDB.Stats(); stats.MaxOpenConnections != 10 {
		t.Fatalf("expected MaxOpenConnections=10, got %d", stats.MaxOpenConnections)
	}

	if err := AutoMigrate(db); err != nil {
		t.Fatalf("AutoMigrate: %v", err)
	}
	m := db.Migrator()
	for _, tbl := range []any{&domain.Complaint{}, &domain.Idempotency{}} {
		if !m.HasTable(tbl) {
			t.Fatalf("expected table for %T to exist", tbl)
		}
	}

	// Quick insert round-trip to prove schema is usable.
	now := time.Now().UTC()
	c := &domain.Complaint{ID: "c1", ComplaintText: "late", Category: domain.CategoryShipping, Urgency: domain.UrgencyHigh, PriorityScore: 8, Status: domain.StatusNew, CreatedAt: now}
	if err := db.Create(c).Error; err != nil {
		t.Fatalf("insert complaint: %v", err)
	}
	idem := &domain.Idempotency{ID: "i1", ClientID: "ip:1.2.3.4", Key: "k1", ComplaintID: "c1", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(idem).Error; err != nil {
		t.Fatalf("insert idempotency: %v", err)
	}

	var got domain.Complaint
	if err := db.First(&got, "id = ?", "c1").Error; err != nil || got.Category != domain.CategoryShipping {
		t.Fatalf("readback complaint failed: err=%v got=%+v", err, got)
	}

	// The change trigger only applies to Postgres.
	if err := InstallChangeTrigger(db, "complaints_changes"); err != nil {
		t.Fatalf("InstallChangeTrigger on sqlite should be a no-op, got %v", err)
	}
}

func TestOpen_DriverSelection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "open.db")

	db, err := Open(Options{Driver: "SQLite", Path: path, Trace: true})
	if err != nil {
		t.Fatalf("Open sqlite: %v", err)
	}
	if sqlDB, err := db.DB(); err == nil {
		t.Cleanup(func() { _ = sqlDB.Close() })
	}
	if db.Dialector.Name() != "sqlite" {
		t.Fatalf("dialector = %q; want sqlite", db.Dialector.Name())
	}

	if _, err := Open(Options{Driver: "mysql"}); err == nil {
		t.Fatalf("expected error for unsupported driver")
	}
	if _, err := Open(Options{Driver: "postgres", DSN: "   "}); err == nil {
		t.Fatalf("expected error for empty postgres DSN")
	}
}

// Compile-time guard to ensure signature stability.
var _ func(string) (*gorm.DB, error) = OpenSQLite
