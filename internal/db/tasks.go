package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/ldi/hourbook/pkg/models"
	"github.com/shopspring/decimal"
)

const taskColumns = `
	t.id, t.owner_id, t.client_id, t.task_type_id, t.task_number, t.name, t.description,
	t.estimated_hours, t.hours_spent, t.creation_date, t.status, t.tags, t.created_at, t.updated_at,
	c.name AS client_name, tt.name AS task_type_name
`

const taskJoins = `
	FROM tasks t
	LEFT JOIN clients c ON t.client_id = c.id
	LEFT JOIN task_types tt ON t.task_type_id = tt.id
`

// TaskFilter narrows ListTasks. Nil fields are ignored.
type TaskFilter struct {
	Status   *models.TaskStatus
	ClientID *string
	// Period matches tasks whose creation date falls inside it.
	Period *models.Period
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTask(row rowScanner) (*models.Task, error) {
	t := &models.Task{}
	var (
		estimated    decimal.NullDecimal
		creationDate string
		tags         string
		clientName   sql.NullString
		typeName     sql.NullString
	)
	err := row.Scan(
		&t.ID, &t.OwnerID, &t.ClientID, &t.TaskTypeID, &t.TaskNumber, &t.Name, &t.Description,
		&estimated, &t.HoursSpent, &creationDate, &t.Status, &tags, &t.CreatedAt, &t.UpdatedAt,
		&clientName, &typeName,
	)
	if err != nil {
		return nil, err
	}

	if estimated.Valid {
		t.EstimatedHours = &estimated.Decimal
	}
	if t.CreationDate, err = models.ParseDate(creationDate); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(tags), &t.Tags); err != nil {
		return nil, fmt.Errorf("failed to decode tags of task %s: %w", t.ID, err)
	}
	t.ClientName = clientName.String
	t.TaskTypeName = typeName.String
	return t, nil
}

func encodeTags(tags []string) (string, error) {
	if tags == nil {
		tags = []string{}
	}
	data, err := json.Marshal(tags)
	if err != nil {
		return "", fmt.Errorf("failed to encode tags: %w", err)
	}
	return string(data), nil
}

// CreateTask inserts a new task. Missing ID, task number, creation date and
// status are filled in. HoursSpent always starts at zero: it is derived from
// hour records and only ever written through SetTaskHoursSpent.
func (l *Ledger) CreateTask(ctx context.Context, t *models.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusPending
	}
	if t.CreationDate.IsZero() {
		t.CreationDate = time.Now()
	}
	t.CreationDate = models.Date(t.CreationDate)
	t.HoursSpent = decimal.Zero
	if t.Tags == nil {
		t.Tags = []string{}
	}

	if t.TaskNumber == 0 {
		err := l.exec.QueryRowContext(ctx,
			`SELECT COALESCE(MAX(task_number), 0) + 1 FROM tasks WHERE owner_id = ?`, t.OwnerID,
		).Scan(&t.TaskNumber)
		if err != nil {
			return fmt.Errorf("failed to allocate task number: %w", err)
		}
	}

	tags, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO tasks (id, owner_id, client_id, task_type_id, task_number, name, description,
		                   estimated_hours, hours_spent, creation_date, status, tags)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err = l.exec.QueryRowContext(ctx, query,
		t.ID, t.OwnerID, t.ClientID, t.TaskTypeID, t.TaskNumber, t.Name, t.Description,
		nullDecimal(t.EstimatedHours), t.HoursSpent, t.CreationDate.Format(models.DateLayout), t.Status, tags,
	).Scan(&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return wrapWrite("create task", err)
	}
	return nil
}

// GetTask retrieves an owner's task by its ID, or nil if absent.
func (l *Ledger) GetTask(ctx context.Context, ownerID, id string) (*models.Task, error) {
	query := `SELECT ` + taskColumns + taskJoins + ` WHERE t.owner_id = ? AND t.id = ?`
	t, err := scanTask(l.exec.QueryRowContext(ctx, query, ownerID, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}
	return t, nil
}

// ListTasks returns an owner's tasks, optionally filtered.
func (l *Ledger) ListTasks(ctx context.Context, ownerID string, filter TaskFilter) ([]*models.Task, error) {
	query := `SELECT ` + taskColumns + taskJoins + ` WHERE t.owner_id = ?`
	args := []interface{}{ownerID}

	if filter.Status != nil {
		query += " AND t.status = ?"
		args = append(args, *filter.Status)
	}

	if filter.ClientID != nil {
		query += " AND t.client_id = ?"
		args = append(args, *filter.ClientID)
	}

	if filter.Period != nil {
		query += " AND t.creation_date >= ? AND t.creation_date < ?"
		args = append(args,
			filter.Period.Start().Format(models.DateLayout),
			filter.Period.End().Format(models.DateLayout),
		)
	}

	query += " ORDER BY t.task_number ASC"

	return l.queryTasks(ctx, query, args...)
}

// queryTasks is a helper to execute a query that returns a list of tasks.
func (l *Ledger) queryTasks(ctx context.Context, query string, args ...interface{}) ([]*models.Task, error) {
	rows, err := l.exec.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tasks []*models.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return tasks, nil
}

// UpdateTask updates the descriptive fields of a task. Client, creation date,
// hours and status are owned by the billing engine and left untouched.
func (l *Ledger) UpdateTask(ctx context.Context, t *models.Task) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}

	query := `
		UPDATE tasks
		SET name = ?, description = ?, estimated_hours = ?, tags = ?, task_type_id = ?,
		    updated_at = CURRENT_TIMESTAMP
		WHERE owner_id = ? AND id = ?
		RETURNING updated_at
	`
	err = l.exec.QueryRowContext(ctx, query,
		t.Name, t.Description, nullDecimal(t.EstimatedHours), tags, t.TaskTypeID, t.OwnerID, t.ID,
	).Scan(&t.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("task not found: %s", t.ID)
	}
	if err != nil {
		return wrapWrite("update task", err)
	}
	return nil
}

// SetTaskHoursSpent persists a recomputed hour total.
func (l *Ledger) SetTaskHoursSpent(ctx context.Context, id string, hours decimal.Decimal) error {
	query := `UPDATE tasks SET hours_spent = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return l.execOne(ctx, "set task hours", "task", id, query, hours, id)
}

// SetTaskStatus updates a task's status without any precondition checks.
func (l *Ledger) SetTaskStatus(ctx context.Context, id string, status models.TaskStatus) error {
	query := `UPDATE tasks SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`
	return l.execOne(ctx, "set task status", "task", id, query, status, id)
}

// DeleteTask deletes a task by its ID. Its hour records cascade.
func (l *Ledger) DeleteTask(ctx context.Context, ownerID, id string) error {
	query := `DELETE FROM tasks WHERE owner_id = ? AND id = ?`
	return l.execOne(ctx, "delete task", "task", id, query, ownerID, id)
}

// execOne runs a statement expected to touch exactly one row.
func (l *Ledger) execOne(ctx context.Context, op, entity, id, query string, args ...any) error {
	res, err := l.exec.ExecContext(ctx, query, args...)
	if err != nil {
		return wrapWrite(op, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rows == 0 {
		return fmt.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}
