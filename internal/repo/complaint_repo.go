// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Complaint
// model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only
// persistence and query composition.
//
// Error semantics:
//   - When a complaint is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - On DB errors (constraint violations, connectivity issues, etc.),
//     the raw gorm error is propagated.
//
// Functions:
//
//   - CreateComplaint(ctx, db, in) -> *domain.Complaint, error
//     Inserts one fully classified row with UUID, UTC timestamp, status New.
//
//   - ListComplaints(ctx, db) -> []domain.Complaint, error
//     Returns every complaint, newest first.
//
//   - ListComplaintsPage(ctx, db, after, limit) -> []domain.Complaint, error
//     Keyset page of complaints strictly older than the cursor.
//
//   - CountComplaints(ctx, db) -> (int64, error)
//
//   - GetComplaint(ctx, db, id) -> *domain.Complaint, error
package repo

import (
	"context"
	"encoding/base64"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-triage/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// ErrBadCursor is returned by DecodeCursor for malformed input.
var ErrBadCursor = errors.New("invalid cursor")

// newestFirst is the single ordering used by every list query. The id
// tiebreak keeps pages stable when timestamps collide.
const newestFirst = "created_at DESC, id DESC"

// NewComplaint carries the caller-supplied fields of a complaint. Identity,
// timestamp, and status are assigned by CreateComplaint.
type NewComplaint struct {
	Text      string
	UserEmail *string
	Analysis  domain.Analysis
}

// CreateComplaint inserts a classified complaint as a single row. The ID is a
// random UUID, CreatedAt is UTC truncated to microseconds (the coarsest
// precision among supported backends), and Status is always "New".
//
// The insert is one statement: it either commits fully or leaves no row.
func CreateComplaint(ctx context.Context, db *gorm.DB, in NewComplaint) (*domain.Complaint, error) {
	c := &domain.Complaint{
		ID:            uuid.NewString(),
		ComplaintText: in.Text,
		UserEmail:     in.UserEmail,
		Category:      in.Analysis.Category,
		Urgency:       in.Analysis.Urgency,
		PriorityScore: in.Analysis.PriorityScore,
		Status:        domain.StatusNew,
		CreatedAt:     time.Now().UTC().Truncate(time.Microsecond),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		return nil, err
	}
	return c, nil
}

// ListComplaints returns all complaints ordered by creation time descending.
// It returns an empty slice when there are none.
func ListComplaints(ctx context.Context, db *gorm.DB) ([]domain.Complaint, error) {
	out := []domain.Complaint{}
	err := db.WithContext(ctx).
		Order(newestFirst).
		Find(&out).Error
	return out, err
}

// Cursor identifies the last complaint of a page.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// CursorOf returns the cursor pointing at c.
func CursorOf(c domain.Complaint) Cursor {
	return Cursor{CreatedAt: c.CreatedAt, ID: c.ID}
}

// Encode renders the cursor as an opaque URL-safe token.
func (c Cursor) Encode() string {
	raw := strconv.FormatInt(c.CreatedAt.UTC().UnixMicro(), 10) + ":" + c.ID
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor parses a token produced by Cursor.Encode.
func DecodeCursor(s string) (Cursor, error) {
	b, err := base64.RawURLEncoding.DecodeString(strings.TrimSpace(s))
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	ts, id, ok := strings.Cut(string(b), ":")
	if !ok || id == "" {
		return Cursor{}, ErrBadCursor
	}
	us, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Cursor{}, ErrBadCursor
	}
	return Cursor{CreatedAt: time.UnixMicro(us).UTC(), ID: id}, nil
}

// ListComplaintsPage returns up to limit complaints, newest first. When after
// is non-nil only rows strictly older than the cursor (by created_at, then
// id) are returned. A limit <= 0 means no limit.
func ListComplaintsPage(ctx context.Context, db *gorm.DB, after *Cursor, limit int) ([]domain.Complaint, error) {
	out := []domain.Complaint{}
	q := db.WithContext(ctx).Model(&domain.Complaint{})
	if after != nil {
		q = q.Where("created_at < ? OR (created_at = ? AND id < ?)",
			after.CreatedAt, after.CreatedAt, after.ID)
	}
	q = q.Order(newestFirst)
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountComplaints returns the total number of complaints.
func CountComplaints(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Complaint{}).
		Count(&total).Error
	return total, err
}

// GetComplaint fetches a complaint by ID. If the record does not exist, it
// returns ErrNotFound.
func GetComplaint(ctx context.Context, db *gorm.DB, id string) (*domain.Complaint, error) {
	var c domain.Complaint
	err := db.WithContext(ctx).
		Where("id = ?", id).
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}
