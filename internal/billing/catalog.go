package billing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
	"github.com/shopspring/decimal"
)

func duplicate(err error, format string, args ...any) error {
	if errors.Is(err, db.ErrDuplicate) {
		return conflict(format, args...)
	}
	return err
}

// CreateClient adds a client. Names are unique per owner.
func (e *Engine) CreateClient(ctx context.Context, ownerID, name string, email *string) (*models.Client, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("client name is required")
	}
	c := &models.Client{OwnerID: ownerID, Name: name, Email: email}
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		return l.CreateClient(ctx, c)
	})
	if err != nil {
		return nil, duplicate(err, "client %q already exists", name)
	}
	return c, nil
}

// CreateTaskType adds a task type. Names are unique per owner.
func (e *Engine) CreateTaskType(ctx context.Context, ownerID, name string) (*models.TaskType, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("task type name is required")
	}
	tt := &models.TaskType{OwnerID: ownerID, Name: name}
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		return l.CreateTaskType(ctx, tt)
	})
	if err != nil {
		return nil, duplicate(err, "task type %q already exists", name)
	}
	return tt, nil
}

// CreateExpense adds an entry to the expense catalog. Names are unique per
// owner.
func (e *Engine) CreateExpense(ctx context.Context, ownerID, name string, defaultAmount decimal.Decimal) (*models.Expense, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, invalid("expense name is required")
	}
	if err := validateAmount(defaultAmount); err != nil {
		return nil, err
	}
	ex := &models.Expense{OwnerID: ownerID, Name: name, DefaultAmount: RoundMoney(defaultAmount)}
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		return l.CreateExpense(ctx, ex)
	})
	if err != nil {
		return nil, duplicate(err, "expense %q already exists", name)
	}
	return ex, nil
}

// TaskInput describes a new task. A zero CreationDate means today.
type TaskInput struct {
	ClientID       string
	TaskTypeID     string
	Name           string
	Description    *string
	EstimatedHours *decimal.Decimal
	CreationDate   time.Time
	Tags           []string
}

// CreateTask adds a pending task with no hours. Its creation date decides
// which closure period it is counted in.
func (e *Engine) CreateTask(ctx context.Context, ownerID string, in TaskInput) (*models.Task, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, invalid("task name is required")
	}
	if in.EstimatedHours != nil && in.EstimatedHours.IsNegative() {
		return nil, invalid("estimated hours must not be negative")
	}

	var task *models.Task
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		client, err := l.GetClient(ctx, ownerID, in.ClientID)
		if err != nil {
			return err
		}
		if client == nil {
			return notFound("client not found: %s", in.ClientID)
		}
		tt, err := l.GetTaskType(ctx, ownerID, in.TaskTypeID)
		if err != nil {
			return err
		}
		if tt == nil {
			return notFound("task type not found: %s", in.TaskTypeID)
		}

		creation := in.CreationDate
		if creation.IsZero() {
			creation = e.now()
		}
		task = &models.Task{
			OwnerID:        ownerID,
			ClientID:       client.ID,
			TaskTypeID:     tt.ID,
			Name:           name,
			Description:    in.Description,
			EstimatedHours: in.EstimatedHours,
			CreationDate:   creation,
			Tags:           in.Tags,
		}
		if err := l.CreateTask(ctx, task); err != nil {
			return err
		}
		task.ClientName, task.TaskTypeName = client.Name, tt.Name
		return nil
	})
	if err != nil {
		return nil, err
	}
	return task, nil
}

// ListTasks returns an owner's tasks, optionally filtered.
func (e *Engine) ListTasks(ctx context.Context, ownerID string, filter db.TaskFilter) ([]*models.Task, error) {
	return e.db.ListTasks(ctx, ownerID, filter)
}
