package db

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/ldi/hourbook/pkg/models"
	"github.com/natefinch/atomic"
)

// SnapshotVersion is written into the meta line of every export.
const SnapshotVersion = 1

// Snapshot record types, in the order they are written. Parents always come
// before the rows that reference them so an import never trips a foreign key.
const (
	RecordMeta           = "meta"
	RecordClient         = "client"
	RecordTaskType       = "task_type"
	RecordExpense        = "expense"
	RecordTask           = "task"
	RecordHourRecord     = "hour_record"
	RecordClosure        = "closure"
	RecordClosureClient  = "closure_client"
	RecordClosureExpense = "closure_expense"
)

type snapshotLine struct {
	RecordType string          `json:"record_type"`
	Data       json.RawMessage `json:"data"`
}

type snapshotMeta struct {
	Version    int       `json:"version"`
	ExportedAt time.Time `json:"exported_at"`
}

// EnableAutoSnapshot sets up a hook that automatically exports a snapshot
// to the given path after every successful write operation. Export failures
// are logged; the write that triggered them has already been committed.
func (db *DB) EnableAutoSnapshot(path string, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	db.SetOnChange(func(ctx context.Context) {
		if err := db.ExportSnapshot(ctx, path); err != nil {
			logger.WarnContext(ctx, "auto snapshot failed", "path", path, "error", err)
		}
	})
}

// ExportSnapshot writes every stored record as JSONL to path. The file is
// replaced atomically so readers never see a partial snapshot.
func (db *DB) ExportSnapshot(ctx context.Context, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create snapshot directory: %w", err)
	}

	var buf bytes.Buffer
	err := db.View(ctx, func(l *Ledger) error {
		return l.WriteSnapshot(ctx, &buf)
	})
	if err != nil {
		return err
	}

	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	return nil
}

// WriteSnapshot encodes all records to w, one JSON object per line.
func (l *Ledger) WriteSnapshot(ctx context.Context, w io.Writer) error {
	enc := json.NewEncoder(w)
	write := func(recordType string, v any) error {
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", recordType, err)
		}
		if err := enc.Encode(snapshotLine{RecordType: recordType, Data: data}); err != nil {
			return fmt.Errorf("failed to write snapshot line: %w", err)
		}
		return nil
	}

	if err := write(RecordMeta, snapshotMeta{Version: SnapshotVersion, ExportedAt: time.Now().UTC()}); err != nil {
		return err
	}

	owners, err := l.listOwners(ctx)
	if err != nil {
		return err
	}

	for _, owner := range owners {
		clients, err := l.ListClients(ctx, owner)
		if err != nil {
			return err
		}
		for _, c := range clients {
			if err := write(RecordClient, c); err != nil {
				return err
			}
		}

		types, err := l.ListTaskTypes(ctx, owner)
		if err != nil {
			return err
		}
		for _, tt := range types {
			if err := write(RecordTaskType, tt); err != nil {
				return err
			}
		}

		expenses, err := l.ListExpenses(ctx, owner)
		if err != nil {
			return err
		}
		for _, e := range expenses {
			if err := write(RecordExpense, e); err != nil {
				return err
			}
		}

		tasks, err := l.ListTasks(ctx, owner, TaskFilter{})
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if err := write(RecordTask, t); err != nil {
				return err
			}
		}

		records, err := l.ListOwnerHourRecords(ctx, owner)
		if err != nil {
			return err
		}
		for _, r := range records {
			if err := write(RecordHourRecord, r); err != nil {
				return err
			}
		}

		closures, err := l.ListClosures(ctx, owner)
		if err != nil {
			return err
		}
		for _, c := range closures {
			if err := write(RecordClosure, c); err != nil {
				return err
			}
		}
		for _, c := range closures {
			rows, err := l.ListClosureClients(ctx, c.ID)
			if err != nil {
				return err
			}
			for _, r := range rows {
				if err := write(RecordClosureClient, r); err != nil {
					return err
				}
			}

			lines, err := l.ListClosureExpenses(ctx, c.ID)
			if err != nil {
				return err
			}
			for _, e := range lines {
				if err := write(RecordClosureExpense, e); err != nil {
					return err
				}
			}
		}
	}

	return nil
}

func (l *Ledger) listOwners(ctx context.Context) ([]string, error) {
	rows, err := l.exec.QueryContext(ctx, `
		SELECT owner_id FROM clients
		UNION SELECT owner_id FROM task_types
		UNION SELECT owner_id FROM expenses
		UNION SELECT owner_id FROM tasks
		UNION SELECT owner_id FROM monthly_closures
		ORDER BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	return owners, rows.Err()
}

// ImportedTask identifies a task written by ImportSnapshot.
type ImportedTask struct {
	OwnerID string
	TaskID  string
}

// ImportSnapshot reads a JSONL snapshot and upserts every record by ID.
// Existing rows with the same ID are overwritten; nothing is deleted. Stored
// hour totals are taken as-is, so callers should re-derive them from hour
// records afterwards; the imported tasks are returned for that purpose.
func (l *Ledger) ImportSnapshot(ctx context.Context, r io.Reader) ([]ImportedTask, error) {
	var imported []ImportedTask

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}

		var base snapshotLine
		if err := json.Unmarshal(line, &base); err != nil {
			return nil, fmt.Errorf("line %d: failed to unmarshal record: %w", lineNo, err)
		}

		var err error
		switch base.RecordType {
		case RecordMeta:
			var meta snapshotMeta
			if err = json.Unmarshal(base.Data, &meta); err == nil && meta.Version > SnapshotVersion {
				err = fmt.Errorf("unsupported snapshot version %d", meta.Version)
			}
		case RecordClient:
			var c models.Client
			if err = json.Unmarshal(base.Data, &c); err == nil {
				err = l.importClient(ctx, &c)
			}
		case RecordTaskType:
			var tt models.TaskType
			if err = json.Unmarshal(base.Data, &tt); err == nil {
				err = l.importTaskType(ctx, &tt)
			}
		case RecordExpense:
			var e models.Expense
			if err = json.Unmarshal(base.Data, &e); err == nil {
				err = l.importExpense(ctx, &e)
			}
		case RecordTask:
			var t models.Task
			if err = json.Unmarshal(base.Data, &t); err == nil {
				err = l.importTask(ctx, &t)
				imported = append(imported, ImportedTask{OwnerID: t.OwnerID, TaskID: t.ID})
			}
		case RecordHourRecord:
			var hr models.HourRecord
			if err = json.Unmarshal(base.Data, &hr); err == nil {
				err = l.importHourRecord(ctx, &hr)
			}
		case RecordClosure:
			var c models.MonthlyClosure
			if err = json.Unmarshal(base.Data, &c); err == nil {
				err = l.importClosure(ctx, &c)
			}
		case RecordClosureClient:
			var cc models.ClosureClient
			if err = json.Unmarshal(base.Data, &cc); err == nil {
				err = l.UpsertClosureClient(ctx, &cc)
			}
		case RecordClosureExpense:
			var ce models.ClosureExpense
			if err = json.Unmarshal(base.Data, &ce); err == nil {
				err = l.importClosureExpense(ctx, &ce)
			}
		default:
			err = fmt.Errorf("unknown record type %q", base.RecordType)
		}
		if err != nil {
			return nil, fmt.Errorf("line %d (%s): %w", lineNo, base.RecordType, err)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanner error: %w", err)
	}

	return imported, nil
}

func (l *Ledger) importClient(ctx context.Context, c *models.Client) error {
	_, err := l.exec.ExecContext(ctx, `
		INSERT INTO clients (id, owner_id, name, email, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, email = excluded.email, updated_at = excluded.updated_at`,
		c.ID, c.OwnerID, c.Name, c.Email, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return wrapWrite("import client", err)
	}
	return nil
}

func (l *Ledger) importTaskType(ctx context.Context, tt *models.TaskType) error {
	_, err := l.exec.ExecContext(ctx, `
		INSERT INTO task_types (id, owner_id, name, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, updated_at = excluded.updated_at`,
		tt.ID, tt.OwnerID, tt.Name, tt.CreatedAt, tt.UpdatedAt)
	if err != nil {
		return wrapWrite("import task type", err)
	}
	return nil
}

func (l *Ledger) importExpense(ctx context.Context, e *models.Expense) error {
	_, err := l.exec.ExecContext(ctx, `
		INSERT INTO expenses (id, owner_id, name, default_amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			name = excluded.name, default_amount = excluded.default_amount, updated_at = excluded.updated_at`,
		e.ID, e.OwnerID, e.Name, e.DefaultAmount, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return wrapWrite("import expense", err)
	}
	return nil
}

func (l *Ledger) importTask(ctx context.Context, t *models.Task) error {
	tags, err := encodeTags(t.Tags)
	if err != nil {
		return err
	}
	_, err = l.exec.ExecContext(ctx, `
		INSERT INTO tasks (id, owner_id, client_id, task_type_id, task_number, name, description,
		                   estimated_hours, hours_spent, creation_date, status, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			client_id = excluded.client_id, task_type_id = excluded.task_type_id,
			task_number = excluded.task_number, name = excluded.name, description = excluded.description,
			estimated_hours = excluded.estimated_hours, hours_spent = excluded.hours_spent,
			creation_date = excluded.creation_date, status = excluded.status, tags = excluded.tags,
			updated_at = excluded.updated_at`,
		t.ID, t.OwnerID, t.ClientID, t.TaskTypeID, t.TaskNumber, t.Name, t.Description,
		nullDecimal(t.EstimatedHours), t.HoursSpent, models.Date(t.CreationDate).Format(models.DateLayout),
		t.Status, tags, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		return wrapWrite("import task", err)
	}
	return nil
}

func (l *Ledger) importHourRecord(ctx context.Context, r *models.HourRecord) error {
	_, err := l.exec.ExecContext(ctx, `
		INSERT INTO hour_records (id, owner_id, task_id, work_date, hours_worked, description, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			task_id = excluded.task_id, work_date = excluded.work_date, hours_worked = excluded.hours_worked,
			description = excluded.description, updated_at = excluded.updated_at`,
		r.ID, r.OwnerID, r.TaskID, models.Date(r.WorkDate).Format(models.DateLayout), r.HoursWorked,
		r.Description, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return wrapWrite("import hour record", err)
	}
	return nil
}

func (l *Ledger) importClosure(ctx context.Context, c *models.MonthlyClosure) error {
	_, err := l.exec.ExecContext(ctx, `
		INSERT INTO monthly_closures (id, owner_id, month, year, hourly_rate, tax_percentage, status,
		                              closed_at, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			hourly_rate = excluded.hourly_rate, tax_percentage = excluded.tax_percentage,
			status = excluded.status, closed_at = excluded.closed_at, notes = excluded.notes,
			updated_at = excluded.updated_at`,
		c.ID, c.OwnerID, c.Month, c.Year, c.HourlyRate, c.TaxPercentage, c.Status,
		c.ClosedAt, c.Notes, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return wrapWrite("import closure", err)
	}
	return nil
}

func (l *Ledger) importClosureExpense(ctx context.Context, e *models.ClosureExpense) error {
	_, err := l.exec.ExecContext(ctx, `
		INSERT INTO monthly_closure_expenses (id, closure_id, expense_id, name, amount, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			expense_id = excluded.expense_id, name = excluded.name, amount = excluded.amount,
			updated_at = excluded.updated_at`,
		e.ID, e.ClosureID, e.ExpenseID, e.Name, e.Amount, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		return wrapWrite("import closure expense", err)
	}
	return nil
}
