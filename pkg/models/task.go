package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type TaskStatus string

const (
	TaskStatusPending   TaskStatus = "pending"
	TaskStatusCompleted TaskStatus = "completed"
)

type Task struct {
	ID             string           `json:"id"`
	OwnerID        string           `json:"owner_id"`
	ClientID       string           `json:"client_id"`
	TaskTypeID     string           `json:"task_type_id"`
	TaskNumber     int              `json:"task_number"`
	Name           string           `json:"name"`
	Description    *string          `json:"description,omitempty"`
	EstimatedHours *decimal.Decimal `json:"estimated_hours,omitempty"`
	HoursSpent     decimal.Decimal  `json:"hours_spent"`
	CreationDate   time.Time        `json:"creation_date"`
	Status         TaskStatus       `json:"status"`
	Tags           []string         `json:"tags"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`

	// Helper fields for joined queries
	ClientName   string `json:"client_name,omitempty"`
	TaskTypeName string `json:"task_type_name,omitempty"`
}

// Period returns the billing period the task is counted in, which is keyed
// off its creation date rather than the dates its hours were worked.
func (t *Task) Period() Period {
	return PeriodOf(t.CreationDate)
}
