package db

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/ldi/hourbook/pkg/models"
)

func TestOpen(t *testing.T) {
	tmpDir := t.TempDir()
	dbPath := filepath.Join(tmpDir, "test.db")

	db, err := Open(dbPath)
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var mode string
	err = db.QueryRow("PRAGMA journal_mode").Scan(&mode)
	if err != nil {
		t.Fatalf("Failed to query journal_mode: %v", err)
	}
	if mode != "wal" {
		t.Errorf("Expected journal_mode wal, got %s", mode)
	}

	var fk int
	err = db.QueryRow("PRAGMA foreign_keys").Scan(&fk)
	if err != nil {
		t.Fatalf("Failed to query foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("Expected foreign_keys enabled (1), got %d", fk)
	}
}

func TestMigrate(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	schema := `
	CREATE TABLE test (
		id INTEGER PRIMARY KEY,
		name TEXT
	);
	`
	ctx := context.Background()
	if err := db.Migrate(ctx, schema); err != nil {
		t.Fatalf("Migration failed: %v", err)
	}

	_, err = db.Exec("INSERT INTO test (name) VALUES (?)", "foo")
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	var name string
	err = db.QueryRow("SELECT name FROM test WHERE id = 1").Scan(&name)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if name != "foo" {
		t.Errorf("Expected foo, got %s", name)
	}
}

func TestInit(t *testing.T) {
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	for _, table := range []string{"clients", "tasks", "hour_records", "monthly_closures", "monthly_closure_clients"} {
		if _, err := db.Exec("SELECT 1 FROM " + table + " LIMIT 1"); err != nil {
			t.Fatalf("Table %s does not exist or query failed: %v", table, err)
		}
	}
}

func TestUpdateRollsBack(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	changes := 0
	db.SetOnChange(func(ctx context.Context) { changes++ })

	err := db.Update(ctx, func(l *Ledger) error {
		if err := l.CreateClient(ctx, &models.Client{OwnerID: "o1", Name: "Acme"}); err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil || err.Error() != "boom" {
		t.Fatalf("Expected boom, got %v", err)
	}

	clients, err := db.ListClients(ctx, "o1")
	if err != nil {
		t.Fatalf("ListClients failed: %v", err)
	}
	if len(clients) != 0 {
		t.Errorf("Expected rollback to discard the client, got %d", len(clients))
	}
	if changes != 0 {
		t.Errorf("Expected no change notification after rollback, got %d", changes)
	}

	err = db.Update(ctx, func(l *Ledger) error {
		return l.CreateClient(ctx, &models.Client{OwnerID: "o1", Name: "Acme"})
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if changes != 1 {
		t.Errorf("Expected one change notification, got %d", changes)
	}

	db.DisableOnChange()
	_ = db.Update(ctx, func(l *Ledger) error { return nil })
	db.EnableOnChange()
	if changes != 1 {
		t.Errorf("Expected disabled hook to stay silent, got %d", changes)
	}
}

func TestDuplicateNames(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	if err := db.CreateClient(ctx, &models.Client{OwnerID: "o1", Name: "Acme"}); err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	err := db.CreateClient(ctx, &models.Client{OwnerID: "o1", Name: "Acme"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for client, got %v", err)
	}
	if err := db.CreateClient(ctx, &models.Client{OwnerID: "o2", Name: "Acme"}); err != nil {
		t.Errorf("Expected other owner to reuse the name, got %v", err)
	}

	if err := db.CreateExpense(ctx, &models.Expense{OwnerID: "o1", Name: "Hosting"}); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	err = db.CreateExpense(ctx, &models.Expense{OwnerID: "o1", Name: "Hosting"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for expense, got %v", err)
	}

	if err := db.CreateTaskType(ctx, &models.TaskType{OwnerID: "o1", Name: "Dev"}); err != nil {
		t.Fatalf("CreateTaskType failed: %v", err)
	}
	err = db.CreateTaskType(ctx, &models.TaskType{OwnerID: "o1", Name: "Dev"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate for task type, got %v", err)
	}
}

func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if err := db.Init(context.Background()); err != nil {
		t.Fatalf("Failed to init database: %v", err)
	}
	return db
}
