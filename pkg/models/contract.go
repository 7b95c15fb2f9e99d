package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Contract is one published contract. Stored in the contracts table.
// ExternalID is unique when present; otherwise NaturalKey (a hash of title,
// amount, date, supplier and authority) is the dedup key.
type Contract struct {
	ID              uuid.UUID       `json:"id"`
	ExternalID      string          `json:"external_id,omitempty"`
	NaturalKey      string          `json:"-"`
	Title           string          `json:"title"`
	Amount          decimal.Decimal `json:"amount"`
	Category        string          `json:"category,omitempty"`
	Date            time.Time       `json:"date"`
	SupplierID      *uuid.UUID      `json:"supplier_id,omitempty"`
	SupplierName    string          `json:"supplier_name,omitempty"`
	SupplierTaxID   string          `json:"supplier_tax_id,omitempty"`
	Authority       string          `json:"authority,omitempty"`
	ProcurementType string          `json:"procurement_type,omitempty"`
	Latitude        *float64        `json:"latitude,omitempty"`
	Longitude       *float64        `json:"longitude,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

// DedupKey returns the key used to decide whether the contract is new.
func (c *Contract) DedupKey() string {
	if c.ExternalID != "" {
		return "ext:" + c.ExternalID
	}
	return "nk:" + c.NaturalKey
}

// ContractFilter narrows list queries. Zero values mean "no filter".
type ContractFilter struct {
	Query    string `json:"query,omitempty"`
	Category string `json:"kategorie,omitempty"`
	Limit    int    `json:"limit,omitempty"`
	Offset   int    `json:"offset,omitempty"`
}

// ContractPage is one page of list results.
type ContractPage struct {
	Contracts []*Contract `json:"contracts"`
	Total     int         `json:"total"`
}

// CategoryTotal aggregates contract amounts per category.
type CategoryTotal struct {
	Category string          `json:"category"`
	Count    int             `json:"count"`
	Amount   decimal.Decimal `json:"amount"`
}

// ContractStats is the aggregate-stat query result.
type ContractStats struct {
	Contracts   int             `json:"contracts"`
	Suppliers   int             `json:"suppliers"`
	Amendments  int             `json:"amendments"`
	Inquiries   int             `json:"inquiries"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	ByCategory  []CategoryTotal `json:"by_category"`
}
