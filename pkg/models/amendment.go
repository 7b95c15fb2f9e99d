package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Amendment (dodatek) changes an existing contract. It can only be stored
// once its parent contract exists.
type Amendment struct {
	ID         uuid.UUID       `json:"id"`
	ContractID uuid.UUID       `json:"contract_id"`
	Amount     decimal.Decimal `json:"amount"`
	Date       time.Time       `json:"date"`
	CreatedAt  time.Time       `json:"created_at"`
}

// DedupKey identifies the amendment within its contract.
func (a *Amendment) DedupKey() string {
	return a.ContractID.String() + "|" + a.Amount.String() + "|" + a.Date.Format("2006-01-02")
}
