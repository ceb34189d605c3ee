// Package domain defines the persistence models for classified complaints.
// These types are mapped with GORM and shared across the repository,
// classifier, and service layers.
package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Category is the classifier-assigned topic of a complaint.
type Category string

// Allowed categories.
const (
	CategoryTechnical Category = "Technical"
	CategoryBilling   Category = "Billing"
	CategoryService   Category = "Service"
	CategoryProduct   Category = "Product"
	CategoryShipping  Category = "Shipping"
	CategoryAccount   Category = "Account"
	CategoryOther     Category = "Other"
)

// Categories lists every allowed Category in prompt order.
var Categories = []Category{
	CategoryTechnical, CategoryBilling, CategoryService, CategoryProduct,
	CategoryShipping, CategoryAccount, CategoryOther,
}

// Urgency is the classifier-assigned time pressure of a complaint.
type Urgency string

// Allowed urgencies, lowest first.
const (
	UrgencyLow      Urgency = "Low"
	UrgencyMedium   Urgency = "Medium"
	UrgencyHigh     Urgency = "High"
	UrgencyCritical Urgency = "Critical"
)

// Urgencies lists every allowed Urgency, lowest first.
var Urgencies = []Urgency{UrgencyLow, UrgencyMedium, UrgencyHigh, UrgencyCritical}

// Status is the workflow state of a complaint. Only StatusNew is ever written
// by this service; other values come from external workflows.
type Status string

// Known statuses.
const (
	StatusNew        Status = "New"
	StatusInProgress Status = "In Progress"
	StatusResolved   Status = "Resolved"
)

// Priority bounds (inclusive).
const (
	MinPriority = 1
	MaxPriority = 10
)

// ErrInvalidAnalysis is wrapped by every Analysis validation failure.
var ErrInvalidAnalysis = errors.New("invalid analysis")

// ParseCategory matches s case-insensitively against the allowed set and
// returns the canonical spelling.
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range Categories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// ParseUrgency matches s case-insensitively against the allowed set and
// returns the canonical spelling.
func ParseUrgency(s string) (Urgency, bool) {
	s = strings.TrimSpace(s)
	for _, u := range Urgencies {
		if strings.EqualFold(string(u), s) {
			return u, true
		}
	}
	return "", false
}

// ValidPriority reports whether p lies in [MinPriority, MaxPriority].
func ValidPriority(p int) bool { return p >= MinPriority && p <= MaxPriority }

// Analysis is the structured output of a classifier call. Reasoning is
// informational and never persisted.
type Analysis struct {
	Category      Category `json:"category"       example:"Shipping"`
	Urgency       Urgency  `json:"urgency"        example:"High"`
	PriorityScore int      `json:"priority_score" example:"8"`
	Reasoning     string   `json:"reasoning"      example:"time-sensitive shipping issue"`
}

// Validate checks enum membership and the priority range.
func (a Analysis) Validate() error {
	if _, ok := ParseCategory(string(a.Category)); !ok {
		return fmt.Errorf("%w: category %q not allowed", ErrInvalidAnalysis, a.Category)
	}
	if _, ok := ParseUrgency(string(a.Urgency)); !ok {
		return fmt.Errorf("%w: urgency %q not allowed", ErrInvalidAnalysis, a.Urgency)
	}
	if !ValidPriority(a.PriorityScore) {
		return fmt.Errorf("%w: priority_score %d out of range [%d,%d]",
			ErrInvalidAnalysis, a.PriorityScore, MinPriority, MaxPriority)
	}
	return nil
}

// Complaint is a user submission that has already been classified. Rows are
// only ever inserted fully formed; there is no pending-classification state.
//
// Fields:
//   - ID: UUID primary key assigned by the store (char(36)).
//   - ComplaintText: raw submission, non-empty.
//   - UserEmail: optional contact address.
//   - Category / Urgency / PriorityScore: classifier output, validated.
//   - Status: "New" at creation; mutated only by external workflows.
//   - CreatedAt: store-assigned UTC timestamp; the list ordering key.
type Complaint struct {
	ID            string    `json:"id"             gorm:"type:char(36);primaryKey"`
	ComplaintText string    `json:"complaint_text" gorm:"type:text;not null"`
	UserEmail     *string   `json:"user_email"     gorm:"type:varchar(320)"`
	Category      Category  `json:"category"       gorm:"type:varchar(32);not null;index"`
	Urgency       Urgency   `json:"urgency"        gorm:"type:varchar(16);not null"`
	PriorityScore int       `json:"priority_score" gorm:"not null;check:priority_score BETWEEN 1 AND 10"`
	Status        Status    `json:"status"         gorm:"type:varchar(32);not null;default:'New'"`
	CreatedAt     time.Time `json:"created_at"     gorm:"not null;index:idx_complaints_created,priority:1"`
}

// TableName returns the database table name for Complaint.
func (Complaint) TableName() string { return "complaints" }
