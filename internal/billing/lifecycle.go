package billing

import (
	"context"
	"fmt"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
	"github.com/shopspring/decimal"
)

// Detail keys reported when a close is refused.
const (
	DetailPendingTasks  = "pending_tasks"
	DetailZeroHourTasks = "zero_hour_tasks"
)

// CheckCloseable counts the tasks that prevent closing a period: tasks still
// pending and tasks without hours. Both counts are reported together.
func CheckCloseable(period models.Period, tasks []*models.Task) error {
	var pending, zeroHours int
	for _, t := range tasks {
		if t.Status == models.TaskStatusPending {
			pending++
		}
		if !t.HoursSpent.IsPositive() {
			zeroHours++
		}
	}
	if pending == 0 && zeroHours == 0 {
		return nil
	}
	return &Error{
		Kind:    ErrValidation,
		Message: fmt.Sprintf("cannot close %s: %d pending task(s), %d task(s) without hours", period, pending, zeroHours),
		Period:  &period,
		Details: map[string]int{
			DetailPendingTasks:  pending,
			DetailZeroHourTasks: zeroHours,
		},
	}
}

// CloseClosure settles a closure. Every task created in its period must be
// completed and carry hours.
func (e *Engine) CloseClosure(ctx context.Context, ownerID, closureID string) (*models.MonthlyClosure, error) {
	var closure *models.MonthlyClosure
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		var err error
		closure, err = loadClosure(ctx, l, ownerID, closureID)
		if err != nil {
			return err
		}
		if closure.IsClosed() {
			return invalid("closure for %s is already closed", closure.Period())
		}

		period := closure.Period()
		tasks, err := l.ListTasks(ctx, ownerID, db.TaskFilter{Period: &period})
		if err != nil {
			return err
		}
		if err := CheckCloseable(period, tasks); err != nil {
			return err
		}

		closedAt := e.now()
		return l.SetClosureStatus(ctx, closure, models.ClosureStatusClosed, &closedAt)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("closure closed", "owner", ownerID, "closure", closure.ID, "period", closure.Period().String())
	return closure, nil
}

// ReopenClosure returns a closed closure to open. Task state is not
// re-validated.
func (e *Engine) ReopenClosure(ctx context.Context, ownerID, closureID string) (*models.MonthlyClosure, error) {
	var closure *models.MonthlyClosure
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		var err error
		closure, err = loadClosure(ctx, l, ownerID, closureID)
		if err != nil {
			return err
		}
		if !closure.IsClosed() {
			return invalid("closure for %s is already open", closure.Period())
		}
		return l.SetClosureStatus(ctx, closure, models.ClosureStatusOpen, nil)
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("closure reopened", "owner", ownerID, "closure", closure.ID, "period", closure.Period().String())
	return closure, nil
}

// ClosureUpdate holds optional header changes. Nil fields are left as-is.
type ClosureUpdate struct {
	HourlyRate    *decimal.Decimal
	TaxPercentage *decimal.Decimal
	Notes         *string
}

// UpdateClosure edits an open closure's header. A changed rate or tax
// re-prices every existing row before the new header is stored.
func (e *Engine) UpdateClosure(ctx context.Context, ownerID, closureID string, upd ClosureUpdate) (*models.MonthlyClosure, error) {
	var closure *models.MonthlyClosure
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		var err error
		closure, err = loadClosure(ctx, l, ownerID, closureID)
		if err != nil {
			return err
		}
		if closure.IsClosed() {
			return invalid("closure for %s is closed and cannot be edited", closure.Period())
		}

		rate, tax := closure.HourlyRate, closure.TaxPercentage
		if upd.HourlyRate != nil {
			rate = *upd.HourlyRate
		}
		if upd.TaxPercentage != nil {
			tax = *upd.TaxPercentage
		}
		if err := validateRates(rate, tax); err != nil {
			return err
		}

		repriced := !rate.Equal(closure.HourlyRate) || !tax.Equal(closure.TaxPercentage)
		closure.HourlyRate, closure.TaxPercentage = rate, tax
		if upd.Notes != nil {
			closure.Notes = upd.Notes
		}

		if repriced {
			if err := e.recomputeAllRows(ctx, l, closure); err != nil {
				return err
			}
		}
		return l.UpdateClosureHeader(ctx, closure)
	})
	if err != nil {
		return nil, err
	}
	return closure, nil
}

// DeleteClosure hard-deletes a closure with its rows and expense lines.
// Closed closures can be deleted too.
func (e *Engine) DeleteClosure(ctx context.Context, ownerID, closureID string) error {
	var closure *models.MonthlyClosure
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		var err error
		closure, err = loadClosure(ctx, l, ownerID, closureID)
		if err != nil {
			return err
		}
		return l.DeleteClosure(ctx, ownerID, closureID)
	})
	if err != nil {
		return err
	}

	if closure.IsClosed() {
		e.log.Warn("closed closure deleted", "owner", ownerID, "closure", closureID, "period", closure.Period().String())
	} else {
		e.log.Info("closure deleted", "owner", ownerID, "closure", closureID, "period", closure.Period().String())
	}
	return nil
}
