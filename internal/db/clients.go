package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/ldi/hourbook/pkg/models"
)

const clientColumns = `id, owner_id, name, email, created_at, updated_at`

// CreateClient inserts a new client. Names are unique per owner.
func (l *Ledger) CreateClient(ctx context.Context, c *models.Client) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}

	query := `
		INSERT INTO clients (id, owner_id, name, email)
		VALUES (?, ?, ?, ?)
		RETURNING created_at, updated_at
	`
	err := l.exec.QueryRowContext(ctx, query, c.ID, c.OwnerID, c.Name, c.Email).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return wrapWrite("create client", err)
	}
	return nil
}

// GetClient retrieves an owner's client by ID. It returns nil if the client
// does not exist or belongs to someone else.
func (l *Ledger) GetClient(ctx context.Context, ownerID, id string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE owner_id = ? AND id = ?`
	c := &models.Client{}
	err := l.exec.QueryRowContext(ctx, query, ownerID, id).Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client: %w", err)
	}
	return c, nil
}

func (l *Ledger) GetClientByName(ctx context.Context, ownerID, name string) (*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE owner_id = ? AND name = ?`
	c := &models.Client{}
	err := l.exec.QueryRowContext(ctx, query, ownerID, name).Scan(
		&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get client by name: %w", err)
	}
	return c, nil
}

func (l *Ledger) ListClients(ctx context.Context, ownerID string) ([]*models.Client, error) {
	query := `SELECT ` + clientColumns + ` FROM clients WHERE owner_id = ? ORDER BY name ASC`
	rows, err := l.exec.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("failed to list clients: %w", err)
	}
	defer rows.Close()

	var clients []*models.Client
	for rows.Next() {
		c := &models.Client{}
		if err := rows.Scan(&c.ID, &c.OwnerID, &c.Name, &c.Email, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan client: %w", err)
		}
		clients = append(clients, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return clients, nil
}

func (l *Ledger) UpdateClient(ctx context.Context, c *models.Client) error {
	query := `
		UPDATE clients
		SET name = ?, email = ?, updated_at = CURRENT_TIMESTAMP
		WHERE owner_id = ? AND id = ?
		RETURNING updated_at
	`
	err := l.exec.QueryRowContext(ctx, query, c.Name, c.Email, c.OwnerID, c.ID).Scan(&c.UpdatedAt)
	if err == sql.ErrNoRows {
		return fmt.Errorf("client not found: %s", c.ID)
	}
	if err != nil {
		return wrapWrite("update client", err)
	}
	return nil
}
