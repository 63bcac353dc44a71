package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/hourbook/pkg/models"
)

const hourRecordColumns = `id, owner_id, task_id, work_date, hours_worked, description, created_at, updated_at`

func scanHourRecord(row rowScanner) (*models.HourRecord, error) {
	r := &models.HourRecord{}
	var workDate string
	err := row.Scan(
		&r.ID, &r.OwnerID, &r.TaskID, &workDate, &r.HoursWorked, &r.Description, &r.CreatedAt, &r.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if r.WorkDate, err = models.ParseDate(workDate); err != nil {
		return nil, err
	}
	return r, nil
}

// CreateHourRecord inserts a new hour record. The work date is stored as its
// UTC calendar date.
func (l *Ledger) CreateHourRecord(ctx context.Context, r *models.HourRecord) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	r.WorkDate = models.Date(r.WorkDate)

	query := `
		INSERT INTO hour_records (id, owner_id, task_id, work_date, hours_worked, description)
		VALUES (?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := l.exec.QueryRowContext(ctx, query,
		r.ID, r.OwnerID, r.TaskID, r.WorkDate.Format(models.DateLayout), r.HoursWorked, r.Description,
	).Scan(&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return wrapWrite("create hour record", err)
	}
	return nil
}

// GetHourRecord retrieves an owner's hour record, or nil if absent.
func (l *Ledger) GetHourRecord(ctx context.Context, ownerID, id string) (*models.HourRecord, error) {
	query := `SELECT ` + hourRecordColumns + ` FROM hour_records WHERE owner_id = ? AND id = ?`
	r, err := scanHourRecord(l.exec.QueryRowContext(ctx, query, ownerID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get hour record: %w", err)
	}
	return r, nil
}

// ListHourRecords returns all records of a task ordered by work date.
func (l *Ledger) ListHourRecords(ctx context.Context, taskID string) ([]*models.HourRecord, error) {
	query := `SELECT ` + hourRecordColumns + ` FROM hour_records WHERE task_id = ? ORDER BY work_date ASC, created_at ASC`
	return l.queryHourRecords(ctx, query, taskID)
}

// ListOwnerHourRecords returns every hour record of an owner.
func (l *Ledger) ListOwnerHourRecords(ctx context.Context, ownerID string) ([]*models.HourRecord, error) {
	query := `SELECT ` + hourRecordColumns + ` FROM hour_records WHERE owner_id = ? ORDER BY work_date ASC, created_at ASC`
	return l.queryHourRecords(ctx, query, ownerID)
}

func (l *Ledger) queryHourRecords(ctx context.Context, query string, args ...interface{}) ([]*models.HourRecord, error) {
	rows, err := l.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list hour records: %w", err)
	}
	defer rows.Close()

	var records []*models.HourRecord
	for rows.Next() {
		r, err := scanHourRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan hour record: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return records, nil
}

func (l *Ledger) UpdateHourRecord(ctx context.Context, r *models.HourRecord) error {
	r.WorkDate = models.Date(r.WorkDate)

	query := `
		UPDATE hour_records
		SET task_id = ?, work_date = ?, hours_worked = ?, description = ?, updated_at = CURRENT_TIMESTAMP
		WHERE owner_id = ? AND id = ?
		RETURNING updated_at
	`
	err := l.exec.QueryRowContext(ctx, query,
		r.TaskID, r.WorkDate.Format(models.DateLayout), r.HoursWorked, r.Description, r.OwnerID, r.ID,
	).Scan(&r.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("hour record not found: %s", r.ID)
	}
	if err != nil {
		return wrapWrite("update hour record", err)
	}
	return nil
}

func (l *Ledger) DeleteHourRecord(ctx context.Context, ownerID, id string) error {
	query := `DELETE FROM hour_records WHERE owner_id = ? AND id = ?`
	return l.execOne(ctx, "delete hour record", "hour record", id, query, ownerID, id)
}
