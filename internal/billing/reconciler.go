package billing

import (
	"context"
	"errors"
	"sort"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
	"github.com/shopspring/decimal"
)

// ClientHours is one client's hour total within a period.
type ClientHours struct {
	ClientID string
	Hours    decimal.Decimal
}

// GroupHoursByClient sums HoursSpent per client, ordered by client ID.
func GroupHoursByClient(tasks []*models.Task) []ClientHours {
	totals := make(map[string]decimal.Decimal)
	for _, t := range tasks {
		totals[t.ClientID] = totals[t.ClientID].Add(t.HoursSpent)
	}

	grouped := make([]ClientHours, 0, len(totals))
	for clientID, hours := range totals {
		grouped = append(grouped, ClientHours{ClientID: clientID, Hours: hours})
	}
	sort.Slice(grouped, func(i, j int) bool { return grouped[i].ClientID < grouped[j].ClientID })
	return grouped
}

// SumTaskHours totals HoursSpent over tasks.
func SumTaskHours(tasks []*models.Task) decimal.Decimal {
	total := decimal.Zero
	for _, t := range tasks {
		total = total.Add(t.HoursSpent)
	}
	return total
}

// BuildRow returns the row for a client's total hours under the closure's
// rate and tax, rounded for persistence.
func BuildRow(closure *models.MonthlyClosure, clientID string, totalHours decimal.Decimal) *models.ClosureClient {
	a := ComputeAmounts(totalHours, closure.HourlyRate, closure.TaxPercentage).Rounded()
	return &models.ClosureClient{
		ClosureID:   closure.ID,
		ClientID:    clientID,
		TotalHours:  totalHours,
		GrossAmount: a.Gross,
		TaxAmount:   a.Tax,
		NetAmount:   a.Net,
	}
}

// recomputeClientRow re-derives a client's row from the hours of the client's
// tasks created inside the closure's period. Tasks are matched by creation
// date, not by the work dates of their records. A zero total removes the row.
func (e *Engine) recomputeClientRow(ctx context.Context, l *db.Ledger, closure *models.MonthlyClosure, clientID string) (*models.ClosureClient, error) {
	period := closure.Period()
	tasks, err := l.ListTasks(ctx, closure.OwnerID, db.TaskFilter{ClientID: &clientID, Period: &period})
	if err != nil {
		return nil, err
	}

	total := SumTaskHours(tasks)
	if !total.IsPositive() {
		deleted, err := l.DeleteClosureClient(ctx, closure.ID, clientID)
		if err != nil {
			return nil, err
		}
		e.log.Debug("cleared closure row", "closure", closure.ID, "period", period.String(), "client", clientID, "deleted", deleted)
		return nil, nil
	}

	prev, err := l.GetClosureClient(ctx, closure.ID, clientID)
	if err != nil {
		return nil, err
	}
	row := BuildRow(closure, clientID, total)
	if prev != nil && prev.TotalHours.Equal(row.TotalHours) && prev.GrossAmount.Equal(row.GrossAmount) &&
		prev.TaxAmount.Equal(row.TaxAmount) && prev.NetAmount.Equal(row.NetAmount) {
		return prev, nil
	}
	if err := l.UpsertClosureClient(ctx, row); err != nil {
		return nil, err
	}
	prevHours := "none"
	if prev != nil {
		prevHours = prev.TotalHours.String()
	}
	e.log.Debug("recomputed closure row",
		"closure", closure.ID, "period", period.String(), "client", clientID,
		"previous_hours", prevHours, "total_hours", row.TotalHours.String(), "net", row.NetAmount.String())
	return row, nil
}

// recomputeAllRows re-prices every existing row of closure from its stored
// total hours. Tasks are not re-read.
func (e *Engine) recomputeAllRows(ctx context.Context, l *db.Ledger, closure *models.MonthlyClosure) error {
	rows, err := l.ListClosureClients(ctx, closure.ID)
	if err != nil {
		return err
	}

	for _, r := range rows {
		a := ComputeAmounts(r.TotalHours, closure.HourlyRate, closure.TaxPercentage).Rounded()
		r.GrossAmount, r.TaxAmount, r.NetAmount = a.Gross, a.Tax, a.Net
		if err := l.UpsertClosureClient(ctx, r); err != nil {
			return err
		}
	}

	e.log.Debug("repriced closure rows", "closure", closure.ID, "rows", len(rows),
		"hourly_rate", closure.HourlyRate.String(), "tax_percentage", closure.TaxPercentage.String())
	return nil
}

// clientPeriod identifies one closure row that a ledger change may affect.
type clientPeriod struct {
	ClientID string
	Period   models.Period
}

// reconcile recomputes the row of every affected (client, period) that has an
// open closure. Periods without a closure are skipped. The guard has already
// vetoed closed periods, so meeting one here is reported as a violation
// rather than silently rewriting settled figures.
func (e *Engine) reconcile(ctx context.Context, l *db.Ledger, ownerID string, affected []clientPeriod) error {
	seen := make(map[clientPeriod]bool, len(affected))
	for _, cp := range affected {
		if seen[cp] {
			continue
		}
		seen[cp] = true

		closure, err := l.GetClosureByPeriod(ctx, ownerID, cp.Period)
		if err != nil {
			return err
		}
		if closure == nil {
			continue
		}
		if closure.IsClosed() {
			return periodClosed(cp.Period)
		}
		if _, err := e.recomputeClientRow(ctx, l, closure, cp.ClientID); err != nil {
			return err
		}
	}
	return nil
}

// RecomputeClientRow re-derives one client's row of an open closure.
// Repeated calls without intervening ledger changes yield the same row.
// It returns nil when the client has no hours in the period.
func (e *Engine) RecomputeClientRow(ctx context.Context, ownerID, closureID, clientID string) (*models.ClosureClient, error) {
	var row *models.ClosureClient
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		closure, err := loadClosure(ctx, l, ownerID, closureID)
		if err != nil {
			return err
		}
		if closure.IsClosed() {
			return periodClosed(closure.Period())
		}
		client, err := l.GetClient(ctx, ownerID, clientID)
		if err != nil {
			return err
		}
		if client == nil {
			return notFound("client not found: %s", clientID)
		}
		row, err = e.recomputeClientRow(ctx, l, closure, clientID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return row, nil
}

// ClosureInput describes a new closure snapshot.
type ClosureInput struct {
	Month         int
	Year          int
	HourlyRate    decimal.Decimal
	TaxPercentage decimal.Decimal
	Notes         *string
	Expenses      []ClosureExpenseInput
}

// CreateClosure snapshots the owner's task hours for a month into a new open
// closure: one row per client whose tasks created in the month carry hours,
// plus the given expense lines.
func (e *Engine) CreateClosure(ctx context.Context, ownerID string, in ClosureInput) (*models.MonthlyClosure, error) {
	period := models.Period{Month: in.Month, Year: in.Year}
	if !period.Valid() {
		return nil, invalid("invalid period %d/%d", in.Month, in.Year)
	}
	if err := validateRates(in.HourlyRate, in.TaxPercentage); err != nil {
		return nil, err
	}

	closure := &models.MonthlyClosure{
		OwnerID:       ownerID,
		Month:         in.Month,
		Year:          in.Year,
		HourlyRate:    in.HourlyRate,
		TaxPercentage: in.TaxPercentage,
		Status:        models.ClosureStatusOpen,
		Notes:         in.Notes,
	}

	err := e.db.Update(ctx, func(l *db.Ledger) error {
		existing, err := l.GetClosureByPeriod(ctx, ownerID, period)
		if err != nil {
			return err
		}
		if existing != nil {
			return conflict("a closure for %s already exists", period)
		}

		if err := l.CreateClosure(ctx, closure); err != nil {
			if errors.Is(err, db.ErrDuplicate) {
				return conflict("a closure for %s already exists", period)
			}
			return err
		}

		tasks, err := l.ListTasks(ctx, ownerID, db.TaskFilter{Period: &period})
		if err != nil {
			return err
		}
		for _, ch := range GroupHoursByClient(tasks) {
			if !ch.Hours.IsPositive() {
				continue
			}
			if err := l.UpsertClosureClient(ctx, BuildRow(closure, ch.ClientID, ch.Hours)); err != nil {
				return err
			}
		}

		for _, ex := range in.Expenses {
			line, err := buildExpenseLine(ctx, l, ownerID, closure.ID, ex)
			if err != nil {
				return err
			}
			if err := l.CreateClosureExpense(ctx, line); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("closure created", "owner", ownerID, "closure", closure.ID, "period", period.String())
	return closure, nil
}

var maxTaxPercentage = decimal.NewFromInt(100)

func validateRates(hourlyRate, taxPercentage decimal.Decimal) error {
	if !hourlyRate.IsPositive() {
		return invalid("hourly rate must be greater than 0")
	}
	if taxPercentage.IsNegative() || taxPercentage.GreaterThan(maxTaxPercentage) {
		return invalid("tax percentage must be between 0 and 100")
	}
	return nil
}
