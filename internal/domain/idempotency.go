package domain

import "time"

// Idempotency records which complaint a previous submission produced, keyed
// by (client_id, key). A retried POST carrying the same Idempotency-Key is
// answered with the stored complaint instead of calling the classifier again.
type Idempotency struct {
	ID          string    `gorm:"type:TEXT NOT NULL;primaryKey"`
	ClientID    string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_client_key,priority:1"`
	Key         string    `gorm:"type:TEXT NOT NULL;uniqueIndex:ux_client_key,priority:2"`
	ComplaintID string    `gorm:"type:TEXT NOT NULL"`
	Reasoning   string    `gorm:"type:TEXT NOT NULL;default:''"`
	Status      int       `gorm:"type:INTEGER NOT NULL"`
	CreatedAt   time.Time `gorm:"not null;autoCreateTime"`
	ExpiresAt   time.Time `gorm:"not null;index"`
}

// TableName implements the GORM tabler interface.
func (Idempotency) TableName() string { return "idempotency" }
