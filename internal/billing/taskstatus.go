package billing

import (
	"context"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
)

// ToggleTaskStatus flips a task between pending and completed.
//
// Completing requires logged hours. Reopening requires that none of the
// task's hour records fall in a closed period.
func (e *Engine) ToggleTaskStatus(ctx context.Context, ownerID, taskID string) (*models.Task, error) {
	var task *models.Task
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		var err error
		task, err = loadTask(ctx, l, ownerID, taskID)
		if err != nil {
			return err
		}

		next := models.TaskStatusCompleted
		if task.Status == models.TaskStatusCompleted {
			next = models.TaskStatusPending
		}

		switch next {
		case models.TaskStatusCompleted:
			if !task.HoursSpent.IsPositive() {
				return invalid("task #%d has no hours logged and cannot be completed", task.TaskNumber)
			}
		case models.TaskStatusPending:
			records, err := l.ListHourRecords(ctx, task.ID)
			if err != nil {
				return err
			}
			if err := guardPeriods(ctx, l, ownerID, recordPeriods(records)); err != nil {
				return err
			}
		}

		if err := l.SetTaskStatus(ctx, task.ID, next); err != nil {
			return err
		}
		task.Status = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.log.Info("task status changed", "owner", ownerID, "task", task.ID, "status", string(task.Status))
	return task, nil
}

// DeleteTask removes a pending task with its hour records, then updates the
// closure rows of every period its records touched.
func (e *Engine) DeleteTask(ctx context.Context, ownerID, taskID string) error {
	return e.db.Update(ctx, func(l *db.Ledger) error {
		task, err := loadTask(ctx, l, ownerID, taskID)
		if err != nil {
			return err
		}
		if task.Status == models.TaskStatusCompleted {
			return invalid("task #%d is completed and cannot be deleted", task.TaskNumber)
		}

		records, err := l.ListHourRecords(ctx, task.ID)
		if err != nil {
			return err
		}
		periods := recordPeriods(records)
		if err := guardPeriods(ctx, l, ownerID, periods); err != nil {
			return err
		}

		if err := l.DeleteTask(ctx, ownerID, task.ID); err != nil {
			return err
		}

		affected := make([]clientPeriod, 0, len(periods))
		for _, p := range periods {
			affected = append(affected, clientPeriod{ClientID: task.ClientID, Period: p})
		}
		return e.reconcile(ctx, l, ownerID, affected)
	})
}
