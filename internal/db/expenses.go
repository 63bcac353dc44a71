package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/hourbook/pkg/models"
)

// CreateExpense adds an entry to the owner's expense catalog.
func (l *Ledger) CreateExpense(ctx context.Context, e *models.Expense) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	query := `
		INSERT INTO expenses (id, owner_id, name, default_amount)
		VALUES (?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := l.exec.QueryRowContext(ctx, query, e.ID, e.OwnerID, e.Name, e.DefaultAmount).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return wrapWrite("create expense", err)
	}
	return nil
}

func (l *Ledger) GetExpense(ctx context.Context, ownerID, id string) (*models.Expense, error) {
	query := `
		SELECT id, owner_id, name, default_amount, created_at, updated_at
		FROM expenses
		WHERE owner_id = ? AND id = ?
	`
	e := &models.Expense{}
	err := l.exec.QueryRowContext(ctx, query, ownerID, id).Scan(
		&e.ID, &e.OwnerID, &e.Name, &e.DefaultAmount, &e.CreatedAt, &e.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get expense: %w", err)
	}
	return e, nil
}

func (l *Ledger) ListExpenses(ctx context.Context, ownerID string) ([]*models.Expense, error) {
	query := `
		SELECT id, owner_id, name, default_amount, created_at, updated_at
		FROM expenses
		WHERE owner_id = ?
		ORDER BY name ASC
	`
	rows, err := l.exec.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*models.Expense
	for rows.Next() {
		e := &models.Expense{}
		if err := rows.Scan(&e.ID, &e.OwnerID, &e.Name, &e.DefaultAmount, &e.CreatedAt, &e.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan expense: %w", err)
		}
		expenses = append(expenses, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return expenses, nil
}
