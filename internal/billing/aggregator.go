package billing

import (
	"context"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
	"github.com/shopspring/decimal"
)

// SumHours totals the hours worked across records.
func SumHours(records []*models.HourRecord) decimal.Decimal {
	total := decimal.Zero
	for _, r := range records {
		total = total.Add(r.HoursWorked)
	}
	return total
}

// recomputeTaskHours re-derives task.HoursSpent from its hour records and
// persists it. Safe to call any number of times.
func (e *Engine) recomputeTaskHours(ctx context.Context, l *db.Ledger, task *models.Task) error {
	records, err := l.ListHourRecords(ctx, task.ID)
	if err != nil {
		return err
	}

	total := SumHours(records)
	if err := l.SetTaskHoursSpent(ctx, task.ID, total); err != nil {
		return err
	}

	e.log.Debug("recomputed task hours",
		"task", task.ID, "records", len(records), "before", task.HoursSpent.String(), "after", total.String())
	task.HoursSpent = total
	return nil
}

// checkCompletedHasHours rejects a ledger change that leaves a completed
// task without hours.
func checkCompletedHasHours(task *models.Task) error {
	if task.Status == models.TaskStatusCompleted && !task.HoursSpent.IsPositive() {
		return invalid("task #%d is completed and must keep hours logged; reopen it first", task.TaskNumber)
	}
	return nil
}
