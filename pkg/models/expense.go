package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Expense is a reusable catalog entry.
type Expense struct {
	ID            string          `json:"id"`
	OwnerID       string          `json:"owner_id"`
	Name          string          `json:"name"`
	DefaultAmount decimal.Decimal `json:"default_amount"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// ClosureExpense is an expense line attached to a closure. ExpenseID is nil
// for ad-hoc lines.
type ClosureExpense struct {
	ID        string          `json:"id"`
	ClosureID string          `json:"closure_id"`
	ExpenseID *string         `json:"expense_id,omitempty"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ClosureSummary is the read model handed to reporting consumers.
type ClosureSummary struct {
	Closure       *MonthlyClosure   `json:"closure"`
	Clients       []*ClosureClient  `json:"clients"`
	Expenses      []*ClosureExpense `json:"expenses"`
	TotalHours    decimal.Decimal   `json:"total_hours"`
	TotalGross    decimal.Decimal   `json:"total_gross"`
	TotalTax      decimal.Decimal   `json:"total_tax"`
	TotalNet      decimal.Decimal   `json:"total_net"`
	TotalExpenses decimal.Decimal   `json:"total_expenses"`
	FinalAmount   decimal.Decimal   `json:"final_amount"`
}
