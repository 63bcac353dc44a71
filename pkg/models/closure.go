package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type ClosureStatus string

const (
	ClosureStatusOpen   ClosureStatus = "open"
	ClosureStatusClosed ClosureStatus = "closed"
)

// MonthlyClosure is the settlement record of one owner's (month, year).
type MonthlyClosure struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Month         int             `json:"month"`
	Year          int             `json:"year"`
	HourlyRate    decimal.Decimal `json:"hourly_rate"`
	TaxPercentage decimal.Decimal `json:"tax_percentage"`
	Status        ClosureStatus   `json:"status"`
	ClosedAt      *time.Time      `json:"closed_at"`
	Notes         *string         `json:"notes,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

func (c *MonthlyClosure) Period() Period {
	return Period{Month: c.Month, Year: c.Year}
}

func (c *MonthlyClosure) IsClosed() bool {
	return c.Status == ClosureStatusClosed
}

// ClosureClient is the per-client revenue row of a closure.
type ClosureClient struct {
	ID          string          `json:"id"`
	ClosureID   string          `json:"closure_id"`
	ClientID    string          `json:"client_id"`
	TotalHours  decimal.Decimal `json:"total_hours"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	TaxAmount   decimal.Decimal `json:"tax_amount"`
	NetAmount   decimal.Decimal `json:"net_amount"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	ClientName string `json:"client_name,omitempty"`
}
