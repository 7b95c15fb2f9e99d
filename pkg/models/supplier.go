package models

import (
	"time"

	"github.com/google/uuid"
)

// Supplier is a contract counterparty. Name is the primary identity; TaxID
// (IČO) is unique when present. A second name seen for the same TaxID is kept
// in ConflictName with NeedsReview set instead of being merged.
type Supplier struct {
	ID            uuid.UUID  `json:"id"`
	Name          string     `json:"name"`
	TaxID         string     `json:"tax_id,omitempty"`
	FoundedOn     *time.Time `json:"founded_on,omitempty"`
	EmployeeCount *int       `json:"employee_count,omitempty"`
	NeedsReview   bool       `json:"needs_review"`
	ConflictName  string     `json:"conflict_name,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
}
