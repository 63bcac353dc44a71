package billing

import (
	"context"
	"time"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
	"github.com/shopspring/decimal"
)

// HourEntryInput describes a new hour record.
type HourEntryInput struct {
	TaskID      string          `json:"task_id"`
	WorkDate    time.Time       `json:"work_date"`
	HoursWorked decimal.Decimal `json:"hours_worked"`
	Description *string         `json:"description,omitempty"`
}

// HourEntryUpdate holds optional changes to an hour record. Setting TaskID
// moves the record to another of the owner's tasks.
type HourEntryUpdate struct {
	TaskID      *string
	WorkDate    *time.Time
	HoursWorked *decimal.Decimal
	Description *string
}

func validateHours(hours decimal.Decimal) error {
	if !hours.IsPositive() {
		return invalid("hours worked must be greater than 0")
	}
	return nil
}

// RecordHourEntry logs hours against a task, then updates the task's total
// and the open closure row of the work date's period.
func (e *Engine) RecordHourEntry(ctx context.Context, ownerID string, in HourEntryInput) (*models.HourRecord, error) {
	var record *models.HourRecord
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		var err error
		record, err = e.recordHourEntry(ctx, l, ownerID, in)
		return err
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (e *Engine) recordHourEntry(ctx context.Context, l *db.Ledger, ownerID string, in HourEntryInput) (*models.HourRecord, error) {
	if in.WorkDate.IsZero() {
		return nil, invalid("work date is required")
	}
	if err := validateHours(in.HoursWorked); err != nil {
		return nil, err
	}

	task, err := loadTask(ctx, l, ownerID, in.TaskID)
	if err != nil {
		return nil, err
	}

	period := models.PeriodOf(in.WorkDate)
	if err := guardPeriods(ctx, l, ownerID, []models.Period{period}); err != nil {
		return nil, err
	}

	record := &models.HourRecord{
		OwnerID:     ownerID,
		TaskID:      task.ID,
		WorkDate:    in.WorkDate,
		HoursWorked: in.HoursWorked,
		Description: in.Description,
	}
	if err := l.CreateHourRecord(ctx, record); err != nil {
		return nil, err
	}

	if err := e.recomputeTaskHours(ctx, l, task); err != nil {
		return nil, err
	}
	if err := e.reconcile(ctx, l, ownerID, []clientPeriod{{ClientID: task.ClientID, Period: period}}); err != nil {
		return nil, err
	}
	return record, nil
}

// EditHourEntry changes an hour record. Both the record's current and new
// work-date periods must be open.
func (e *Engine) EditHourEntry(ctx context.Context, ownerID, recordID string, upd HourEntryUpdate) (*models.HourRecord, error) {
	var record *models.HourRecord
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		var err error
		record, err = l.GetHourRecord(ctx, ownerID, recordID)
		if err != nil {
			return err
		}
		if record == nil {
			return notFound("hour record not found: %s", recordID)
		}

		oldTask, err := loadTask(ctx, l, ownerID, record.TaskID)
		if err != nil {
			return err
		}
		oldPeriod := record.Period()

		newTask := oldTask
		if upd.TaskID != nil && *upd.TaskID != record.TaskID {
			if newTask, err = loadTask(ctx, l, ownerID, *upd.TaskID); err != nil {
				return err
			}
		}
		if upd.WorkDate != nil {
			if upd.WorkDate.IsZero() {
				return invalid("work date is required")
			}
			record.WorkDate = *upd.WorkDate
		}
		if upd.HoursWorked != nil {
			if err := validateHours(*upd.HoursWorked); err != nil {
				return err
			}
			record.HoursWorked = *upd.HoursWorked
		}
		if upd.Description != nil {
			record.Description = upd.Description
		}
		record.TaskID = newTask.ID
		newPeriod := record.Period()

		if err := guardPeriods(ctx, l, ownerID, PeriodsOf(oldPeriod.Start(), newPeriod.Start())); err != nil {
			return err
		}

		if err := l.UpdateHourRecord(ctx, record); err != nil {
			return err
		}

		if err := e.recomputeTaskHours(ctx, l, oldTask); err != nil {
			return err
		}
		if err := checkCompletedHasHours(oldTask); err != nil {
			return err
		}
		if newTask.ID != oldTask.ID {
			if err := e.recomputeTaskHours(ctx, l, newTask); err != nil {
				return err
			}
		}

		return e.reconcile(ctx, l, ownerID, []clientPeriod{
			{ClientID: oldTask.ClientID, Period: oldPeriod},
			{ClientID: newTask.ClientID, Period: newPeriod},
		})
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

// RemoveHourEntry deletes an hour record and updates the dependent totals.
func (e *Engine) RemoveHourEntry(ctx context.Context, ownerID, recordID string) error {
	return e.db.Update(ctx, func(l *db.Ledger) error {
		record, err := l.GetHourRecord(ctx, ownerID, recordID)
		if err != nil {
			return err
		}
		if record == nil {
			return notFound("hour record not found: %s", recordID)
		}

		task, err := loadTask(ctx, l, ownerID, record.TaskID)
		if err != nil {
			return err
		}

		period := record.Period()
		if err := guardPeriods(ctx, l, ownerID, []models.Period{period}); err != nil {
			return err
		}

		if err := l.DeleteHourRecord(ctx, ownerID, recordID); err != nil {
			return err
		}

		if err := e.recomputeTaskHours(ctx, l, task); err != nil {
			return err
		}
		if err := checkCompletedHasHours(task); err != nil {
			return err
		}
		return e.reconcile(ctx, l, ownerID, []clientPeriod{{ClientID: task.ClientID, Period: period}})
	})
}
