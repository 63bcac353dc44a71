// Package billing keeps task hour totals and monthly closure figures
// consistent with the hour ledger, and protects closed periods from change.
//
// Every exported mutating method runs as one transaction: guards, recompute
// steps and writes either all apply or none do. All calls are scoped to an
// explicit owner ID supplied by the caller.
package billing

import (
	"context"
	"log/slog"
	"time"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
)

// Engine is the billing reconciliation engine.
type Engine struct {
	db      *db.DB
	log     *slog.Logger
	Staging *StagingManager

	// Now stamps closedAt on close. Defaults to time.Now.
	Now func() time.Time
}

// NewEngine creates an engine over database. A nil logger uses slog.Default.
func NewEngine(database *db.DB, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		db:      database,
		log:     logger,
		Staging: NewStagingManager(),
		Now:     time.Now,
	}
}

func (e *Engine) now() time.Time {
	return e.Now().UTC().Truncate(time.Second)
}

// GetTask returns an owner's task.
func (e *Engine) GetTask(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	t, err := e.db.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, notFound("task not found: %s", taskID)
	}
	return t, nil
}

// ListClosures returns an owner's closures, newest first.
func (e *Engine) ListClosures(ctx context.Context, ownerID string) ([]*models.MonthlyClosure, error) {
	return e.db.ListClosures(ctx, ownerID)
}

// GetClosureSummary returns a closure with its client rows, expense lines
// and totals, read from one consistent state.
func (e *Engine) GetClosureSummary(ctx context.Context, ownerID, closureID string) (*models.ClosureSummary, error) {
	var summary *models.ClosureSummary
	err := e.db.View(ctx, func(l *db.Ledger) error {
		closure, err := loadClosure(ctx, l, ownerID, closureID)
		if err != nil {
			return err
		}
		rows, err := l.ListClosureClients(ctx, closure.ID)
		if err != nil {
			return err
		}
		expenses, err := l.ListClosureExpenses(ctx, closure.ID)
		if err != nil {
			return err
		}
		summary = Summarize(closure, rows, expenses)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return summary, nil
}

// Summarize totals a closure's rows and expense lines.
// FinalAmount is the sum of net amounts minus the sum of expenses.
func Summarize(closure *models.MonthlyClosure, rows []*models.ClosureClient, expenses []*models.ClosureExpense) *models.ClosureSummary {
	s := &models.ClosureSummary{
		Closure:  closure,
		Clients:  rows,
		Expenses: expenses,
	}
	if s.Clients == nil {
		s.Clients = []*models.ClosureClient{}
	}
	if s.Expenses == nil {
		s.Expenses = []*models.ClosureExpense{}
	}
	for _, r := range rows {
		s.TotalHours = s.TotalHours.Add(r.TotalHours)
		s.TotalGross = s.TotalGross.Add(r.GrossAmount)
		s.TotalTax = s.TotalTax.Add(r.TaxAmount)
		s.TotalNet = s.TotalNet.Add(r.NetAmount)
	}
	for _, ex := range expenses {
		s.TotalExpenses = s.TotalExpenses.Add(ex.Amount)
	}
	s.FinalAmount = s.TotalNet.Sub(s.TotalExpenses)
	return s
}

func loadTask(ctx context.Context, l *db.Ledger, ownerID, taskID string) (*models.Task, error) {
	t, err := l.GetTask(ctx, ownerID, taskID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, notFound("task not found: %s", taskID)
	}
	return t, nil
}

func loadClosure(ctx context.Context, l *db.Ledger, ownerID, closureID string) (*models.MonthlyClosure, error) {
	c, err := l.GetClosure(ctx, ownerID, closureID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, notFound("closure not found: %s", closureID)
	}
	return c, nil
}
