package billing

import (
	"context"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
	"github.com/shopspring/decimal"
)

// ClosureExpenseInput describes an expense line. With ExpenseID set the line
// references the owner's catalog and Amount, when given, overrides the
// catalog default. Without it the line is ad-hoc and needs Name and Amount.
type ClosureExpenseInput struct {
	ExpenseID *string          `json:"expense_id,omitempty"`
	Name      string           `json:"name,omitempty"`
	Amount    *decimal.Decimal `json:"amount,omitempty"`
}

// ClosureExpenseUpdate holds optional changes to an expense line.
type ClosureExpenseUpdate struct {
	Name   *string
	Amount *decimal.Decimal
}

func validateAmount(amount decimal.Decimal) error {
	if amount.IsNegative() {
		return invalid("expense amount must not be negative")
	}
	return nil
}

func buildExpenseLine(ctx context.Context, l *db.Ledger, ownerID, closureID string, in ClosureExpenseInput) (*models.ClosureExpense, error) {
	line := &models.ClosureExpense{ClosureID: closureID, Name: in.Name}

	if in.ExpenseID != nil {
		ex, err := l.GetExpense(ctx, ownerID, *in.ExpenseID)
		if err != nil {
			return nil, err
		}
		if ex == nil {
			return nil, notFound("expense not found: %s", *in.ExpenseID)
		}
		line.ExpenseID = &ex.ID
		if line.Name == "" {
			line.Name = ex.Name
		}
		line.Amount = ex.DefaultAmount
	} else {
		if in.Name == "" {
			return nil, invalid("expense name is required")
		}
		if in.Amount == nil {
			return nil, invalid("amount is required for expense %q", in.Name)
		}
	}

	if in.Amount != nil {
		line.Amount = *in.Amount
	}
	if err := validateAmount(line.Amount); err != nil {
		return nil, err
	}
	line.Amount = RoundMoney(line.Amount)
	return line, nil
}

func loadOpenClosure(ctx context.Context, l *db.Ledger, ownerID, closureID string) (*models.MonthlyClosure, error) {
	closure, err := loadClosure(ctx, l, ownerID, closureID)
	if err != nil {
		return nil, err
	}
	if closure.IsClosed() {
		return nil, invalid("closure for %s is closed and cannot be edited", closure.Period())
	}
	return closure, nil
}

// AddClosureExpense attaches an expense line to an open closure.
func (e *Engine) AddClosureExpense(ctx context.Context, ownerID, closureID string, in ClosureExpenseInput) (*models.ClosureExpense, error) {
	var line *models.ClosureExpense
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		closure, err := loadOpenClosure(ctx, l, ownerID, closureID)
		if err != nil {
			return err
		}
		line, err = buildExpenseLine(ctx, l, ownerID, closure.ID, in)
		if err != nil {
			return err
		}
		return l.CreateClosureExpense(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// UpdateClosureExpense changes the name or amount of an expense line.
func (e *Engine) UpdateClosureExpense(ctx context.Context, ownerID, closureID, lineID string, upd ClosureExpenseUpdate) (*models.ClosureExpense, error) {
	var line *models.ClosureExpense
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		closure, err := loadOpenClosure(ctx, l, ownerID, closureID)
		if err != nil {
			return err
		}
		line, err = l.GetClosureExpense(ctx, closure.ID, lineID)
		if err != nil {
			return err
		}
		if line == nil {
			return notFound("closure expense not found: %s", lineID)
		}

		if upd.Name != nil {
			if *upd.Name == "" {
				return invalid("expense name is required")
			}
			line.Name = *upd.Name
		}
		if upd.Amount != nil {
			if err := validateAmount(*upd.Amount); err != nil {
				return err
			}
			line.Amount = RoundMoney(*upd.Amount)
		}
		return l.UpdateClosureExpense(ctx, line)
	})
	if err != nil {
		return nil, err
	}
	return line, nil
}

// RemoveClosureExpense deletes an expense line from an open closure.
func (e *Engine) RemoveClosureExpense(ctx context.Context, ownerID, closureID, lineID string) error {
	return e.db.Update(ctx, func(l *db.Ledger) error {
		closure, err := loadOpenClosure(ctx, l, ownerID, closureID)
		if err != nil {
			return err
		}
		line, err := l.GetClosureExpense(ctx, closure.ID, lineID)
		if err != nil {
			return err
		}
		if line == nil {
			return notFound("closure expense not found: %s", lineID)
		}
		return l.DeleteClosureExpense(ctx, closure.ID, line.ID)
	})
}
