package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/hourbook/pkg/models"
)

func (l *Ledger) CreateTaskType(ctx context.Context, tt *models.TaskType) error {
	if tt.ID == "" {
		tt.ID = uuid.New().String()
	}

	query := `
		INSERT INTO task_types (id, owner_id, name)
		VALUES (?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := l.exec.QueryRowContext(ctx, query, tt.ID, tt.OwnerID, tt.Name).Scan(&tt.CreatedAt, &tt.UpdatedAt)
	if err != nil {
		return wrapWrite("create task type", err)
	}
	return nil
}

func (l *Ledger) GetTaskType(ctx context.Context, ownerID, id string) (*models.TaskType, error) {
	query := `
		SELECT id, owner_id, name, created_at, updated_at
		FROM task_types
		WHERE owner_id = ? AND id = ?
	`
	tt := &models.TaskType{}
	err := l.exec.QueryRowContext(ctx, query, ownerID, id).Scan(
		&tt.ID, &tt.OwnerID, &tt.Name, &tt.CreatedAt, &tt.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task type: %w", err)
	}
	return tt, nil
}

func (l *Ledger) ListTaskTypes(ctx context.Context, ownerID string) ([]*models.TaskType, error) {
	query := `
		SELECT id, owner_id, name, created_at, updated_at
		FROM task_types
		WHERE owner_id = ?
		ORDER BY name ASC
	`
	rows, err := l.exec.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list task types: %w", err)
	}
	defer rows.Close()

	var types []*models.TaskType
	for rows.Next() {
		tt := &models.TaskType{}
		if err := rows.Scan(&tt.ID, &tt.OwnerID, &tt.Name, &tt.CreatedAt, &tt.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan task type: %w", err)
		}
		types = append(types, tt)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return types, nil
}
