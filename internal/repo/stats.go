// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file holds the aggregate query behind the health
// endpoint's complaint count.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/tbourn/go-complaint-triage/internal/domain"
)

// ComplaintsStats returns the total number of complaints and the newest
// CreatedAt among them. When the table is empty, count is 0 and newest is nil.
func ComplaintsStats(ctx context.Context, db *gorm.DB) (count int64, newest *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Complaint{})

	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Latest created_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		CreatedAt time.Time
	}
	if err = db.WithContext(ctx).Model(&domain.Complaint{}).
		Select("created_at").Order("created_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.CreatedAt, nil
}
