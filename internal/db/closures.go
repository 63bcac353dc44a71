package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/hourbook/pkg/models"
)

const closureColumns = `
	id, owner_id, month, year, hourly_rate, tax_percentage, status, closed_at, notes, created_at, updated_at
`

func scanClosure(row rowScanner) (*models.MonthlyClosure, error) {
	c := &models.MonthlyClosure{}
	err := row.Scan(
		&c.ID, &c.OwnerID, &c.Month, &c.Year, &c.HourlyRate, &c.TaxPercentage, &c.Status,
		&c.ClosedAt, &c.Notes, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// CreateClosure inserts a closure header. A second closure for the same
// (owner, month, year) fails with ErrDuplicate.
func (l *Ledger) CreateClosure(ctx context.Context, c *models.MonthlyClosure) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.Status == "" {
		c.Status = models.ClosureStatusOpen
	}

	query := `
		INSERT INTO monthly_closures (id, owner_id, month, year, hourly_rate, tax_percentage, status, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := l.exec.QueryRowContext(ctx, query,
		c.ID, c.OwnerID, c.Month, c.Year, c.HourlyRate, c.TaxPercentage, c.Status, c.Notes,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return wrapWrite("create closure", err)
	}
	return nil
}

func (l *Ledger) GetClosure(ctx context.Context, ownerID, id string) (*models.MonthlyClosure, error) {
	query := `SELECT ` + closureColumns + ` FROM monthly_closures WHERE owner_id = ? AND id = ?`
	c, err := scanClosure(l.exec.QueryRowContext(ctx, query, ownerID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get closure: %w", err)
	}
	return c, nil
}

// GetClosureByPeriod returns the owner's closure for a period, or nil.
func (l *Ledger) GetClosureByPeriod(ctx context.Context, ownerID string, p models.Period) (*models.MonthlyClosure, error) {
	query := `SELECT ` + closureColumns + ` FROM monthly_closures WHERE owner_id = ? AND month = ? AND year = ?`
	c, err := scanClosure(l.exec.QueryRowContext(ctx, query, ownerID, p.Month, p.Year))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get closure for %s: %w", p, err)
	}
	return c, nil
}

// ListClosures returns an owner's closures, newest period first.
func (l *Ledger) ListClosures(ctx context.Context, ownerID string) ([]*models.MonthlyClosure, error) {
	query := `SELECT ` + closureColumns + ` FROM monthly_closures WHERE owner_id = ? ORDER BY year DESC, month DESC`
	rows, err := l.exec.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list closures: %w", err)
	}
	defer rows.Close()

	var closures []*models.MonthlyClosure
	for rows.Next() {
		c, err := scanClosure(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closure: %w", err)
		}
		closures = append(closures, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return closures, nil
}

// UpdateClosureHeader persists rate, tax and notes.
func (l *Ledger) UpdateClosureHeader(ctx context.Context, c *models.MonthlyClosure) error {
	query := `
		UPDATE monthly_closures
		SET hourly_rate = ?, tax_percentage = ?, notes = ?, updated_at = CURRENT_TIMESTAMP
		WHERE owner_id = ? AND id = ?
		RETURNING updated_at
	`
	err := l.exec.QueryRowContext(ctx, query, c.HourlyRate, c.TaxPercentage, c.Notes, c.OwnerID, c.ID).Scan(&c.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("closure not found: %s", c.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update closure: %w", err)
	}
	return nil
}

// SetClosureStatus persists a lifecycle transition.
func (l *Ledger) SetClosureStatus(ctx context.Context, c *models.MonthlyClosure, status models.ClosureStatus, closedAt *time.Time) error {
	query := `
		UPDATE monthly_closures
		SET status = ?, closed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE owner_id = ? AND id = ?
		RETURNING status, closed_at, updated_at
	`
	err := l.exec.QueryRowContext(ctx, query, status, closedAt, c.OwnerID, c.ID).Scan(&c.Status, &c.ClosedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("closure not found: %s", c.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to set closure status: %w", err)
	}
	return nil
}

// DeleteClosure hard-deletes a closure. Client rows and expense lines cascade.
func (l *Ledger) DeleteClosure(ctx context.Context, ownerID, id string) error {
	query := `DELETE FROM monthly_closures WHERE owner_id = ? AND id = ?`
	return l.execOne(ctx, "delete closure", "closure", id, query, ownerID, id)
}

const closureClientColumns = `
	cc.id, cc.closure_id, cc.client_id, cc.total_hours, cc.gross_amount, cc.tax_amount, cc.net_amount,
	cc.created_at, cc.updated_at, c.name AS client_name
`

func scanClosureClient(row rowScanner) (*models.ClosureClient, error) {
	r := &models.ClosureClient{}
	var clientName sql.NullString
	err := row.Scan(
		&r.ID, &r.ClosureID, &r.ClientID, &r.TotalHours, &r.GrossAmount, &r.TaxAmount, &r.NetAmount,
		&r.CreatedAt, &r.UpdatedAt, &clientName,
	)
	if err != nil {
		return nil, err
	}
	r.ClientName = clientName.String
	return r, nil
}

func (l *Ledger) GetClosureClient(ctx context.Context, closureID, clientID string) (*models.ClosureClient, error) {
	query := `
		SELECT ` + closureClientColumns + `
		FROM monthly_closure_clients cc
		LEFT JOIN clients c ON cc.client_id = c.id
		WHERE cc.closure_id = ? AND cc.client_id = ?
	`
	r, err := scanClosureClient(l.exec.QueryRowContext(ctx, query, closureID, clientID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get closure client: %w", err)
	}
	return r, nil
}

func (l *Ledger) ListClosureClients(ctx context.Context, closureID string) ([]*models.ClosureClient, error) {
	query := `
		SELECT ` + closureClientColumns + `
		FROM monthly_closure_clients cc
		LEFT JOIN clients c ON cc.client_id = c.id
		WHERE cc.closure_id = ?
		ORDER BY c.name ASC
	`
	rows, err := l.exec.QueryContext(ctx, query, closureID)
	if err != nil {
		return nil, fmt.Errorf("failed to list closure clients: %w", err)
	}
	defer rows.Close()

	var result []*models.ClosureClient
	for rows.Next() {
		r, err := scanClosureClient(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closure client: %w", err)
		}
		result = append(result, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return result, nil
}

// UpsertClosureClient inserts the (closure, client) row or overwrites its
// figures if it already exists.
func (l *Ledger) UpsertClosureClient(ctx context.Context, r *models.ClosureClient) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}

	query := `
		INSERT INTO monthly_closure_clients (id, closure_id, client_id, total_hours, gross_amount, tax_amount, net_amount)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (closure_id, client_id) DO UPDATE SET
			total_hours = excluded.total_hours,
			gross_amount = excluded.gross_amount,
			tax_amount = excluded.tax_amount,
			net_amount = excluded.net_amount,
			updated_at = CURRENT_TIMESTAMP
		RETURNING id, created_at, updated_at
	`
	err := l.exec.QueryRowContext(ctx, query,
		r.ID, r.ClosureID, r.ClientID, r.TotalHours, r.GrossAmount, r.TaxAmount, r.NetAmount,
	).Scan(&r.ID, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return wrapWrite("upsert closure client", err)
	}
	return nil
}

// DeleteClosureClient removes a row if present. It reports whether a row
// was deleted.
func (l *Ledger) DeleteClosureClient(ctx context.Context, closureID, clientID string) (bool, error) {
	res, err := l.exec.ExecContext(ctx,
		`DELETE FROM monthly_closure_clients WHERE closure_id = ? AND client_id = ?`, closureID, clientID)
	if err != nil {
		return false, fmt.Errorf("failed to delete closure client: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

const closureExpenseColumns = `id, closure_id, expense_id, name, amount, created_at, updated_at`

func scanClosureExpense(row rowScanner) (*models.ClosureExpense, error) {
	e := &models.ClosureExpense{}
	err := row.Scan(&e.ID, &e.ClosureID, &e.ExpenseID, &e.Name, &e.Amount, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (l *Ledger) CreateClosureExpense(ctx context.Context, e *models.ClosureExpense) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}

	query := `
		INSERT INTO monthly_closure_expenses (id, closure_id, expense_id, name, amount)
		VALUES (?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := l.exec.QueryRowContext(ctx, query, e.ID, e.ClosureID, e.ExpenseID, e.Name, e.Amount).Scan(&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return wrapWrite("create closure expense", err)
	}
	return nil
}

func (l *Ledger) GetClosureExpense(ctx context.Context, closureID, id string) (*models.ClosureExpense, error) {
	query := `SELECT ` + closureExpenseColumns + ` FROM monthly_closure_expenses WHERE closure_id = ? AND id = ?`
	e, err := scanClosureExpense(l.exec.QueryRowContext(ctx, query, closureID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get closure expense: %w", err)
	}
	return e, nil
}

func (l *Ledger) ListClosureExpenses(ctx context.Context, closureID string) ([]*models.ClosureExpense, error) {
	query := `SELECT ` + closureExpenseColumns + ` FROM monthly_closure_expenses WHERE closure_id = ? ORDER BY created_at ASC, name ASC`
	rows, err := l.exec.QueryContext(ctx, query, closureID)
	if err != nil {
		return nil, fmt.Errorf("failed to list closure expenses: %w", err)
	}
	defer rows.Close()

	var expenses []*models.ClosureExpense
	for rows.Next() {
		e, err := scanClosureExpense(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan closure expense: %w", err)
		}
		expenses = append(expenses, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return expenses, nil
}

func (l *Ledger) UpdateClosureExpense(ctx context.Context, e *models.ClosureExpense) error {
	query := `
		UPDATE monthly_closure_expenses
		SET name = ?, amount = ?, updated_at = CURRENT_TIMESTAMP
		WHERE closure_id = ? AND id = ?
		RETURNING updated_at
	`
	err := l.exec.QueryRowContext(ctx, query, e.Name, e.Amount, e.ClosureID, e.ID).Scan(&e.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("closure expense not found: %s", e.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to update closure expense: %w", err)
	}
	return nil
}

func (l *Ledger) DeleteClosureExpense(ctx context.Context, closureID, id string) error {
	query := `DELETE FROM monthly_closure_expenses WHERE closure_id = ? AND id = ?`
	return l.execOne(ctx, "delete closure expense", "closure expense", id, query, closureID, id)
}
