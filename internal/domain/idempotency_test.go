// internal/domain/idempotency_test.go
package domain

import (
	"fmt"
	"testing"
	"time"

	sqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	return db
}

func TestIdempotency_Migration_Indexes_AndInsert(t *testing.T) {
	db := newTestDB(t)

	if err := db.AutoMigrate(&Idempotency{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	m := db.Migrator()
	if !m.HasTable(&Idempotency{}) {
		t.Fatalf("expected table %q to exist", Idempotency{}.TableName())
	}
	if !m.HasIndex(&Idempotency{}, "ux_client_key") {
		t.Fatalf("expected composite index ux_client_key to exist")
	}

	now := time.Now().UTC()

	// NOT NULL constraints, checked by attempting NULL inserts.
	assertNullRejected := func(col string) {
		t.Helper()
		vals := []any{"x-" + col, "client-1", "k1", "cmp-1", "", 200, now, now.Add(time.Hour)}
		names := []string{"id", "client_id", "key", "complaint_id", "reasoning", "status", "created_at", "expires_at"}
		for i, name := range names {
			if name == col {
				vals[i] = nil
			}
		}
		err := db.Exec(`INSERT INTO idempotency ("id","client_id","key","complaint_id","reasoning","status","created_at","expires_at")
		                VALUES (?,?,?,?,?,?,?,?)`, vals...).Error
		if err == nil {
			t.Fatalf("expected NOT NULL violation when inserting NULL into %q", col)
		}
	}
	for _, col := range []string{"client_id", "key", "complaint_id", "status", "expires_at"} {
		assertNullRejected(col)
	}

	rec := &Idempotency{
		ID:          "id-1",
		ClientID:    "client-1",
		Key:         "k1",
		ComplaintID: "cmp-1",
		Reasoning:   "because",
		Status:      200,
		CreatedAt:   now,
		ExpiresAt:   now.Add(time.Hour),
	}
	if err := db.Create(rec).Error; err != nil {
		t.Fatalf("insert valid: %v", err)
	}

	var got Idempotency
	if err := db.First(&got, "id = ?", "id-1").Error; err != nil {
		t.Fatalf("readback: %v", err)
	}
	if got.ClientID != "client-1" || got.Key != "k1" || got.ComplaintID != "cmp-1" || got.Status != 200 || got.Reasoning != "because" {
		t.Fatalf("unexpected row: %+v", got)
	}
	if got.ExpiresAt.Before(now) {
		t.Fatalf("ExpiresAt should be after CreatedAt: %v vs %v", got.ExpiresAt, now)
	}

	// (client_id, key) must be unique.
	dup := &Idempotency{ID: "id-2", ClientID: "client-1", Key: "k1", ComplaintID: "cmp-2", Status: 200, CreatedAt: now, ExpiresAt: now.Add(time.Hour)}
	if err := db.Create(dup).Error; err == nil {
		t.Fatalf("expected UNIQUE constraint violation on (client_id, key)")
	}
}
