package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ldi/hourbook/pkg/models"
	"github.com/shopspring/decimal"
)

func TestClosureCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := seedCatalog(t, db, "o1")

	c := &models.MonthlyClosure{
		OwnerID:       "o1",
		Month:         3,
		Year:          2024,
		HourlyRate:    decimal.NewFromInt(100),
		TaxPercentage: decimal.NewFromInt(10),
	}
	if err := db.CreateClosure(ctx, c); err != nil {
		t.Fatalf("Failed to create closure: %v", err)
	}
	if c.Status != models.ClosureStatusOpen {
		t.Errorf("Expected status open, got %s", c.Status)
	}

	dup := &models.MonthlyClosure{OwnerID: "o1", Month: 3, Year: 2024, HourlyRate: decimal.NewFromInt(1)}
	if err := db.CreateClosure(ctx, dup); !errors.Is(err, ErrDuplicate) {
		t.Errorf("Expected ErrDuplicate, got %v", err)
	}

	byPeriod, err := db.GetClosureByPeriod(ctx, "o1", models.Period{Month: 3, Year: 2024})
	if err != nil {
		t.Fatalf("Failed to get closure by period: %v", err)
	}
	if byPeriod == nil || byPeriod.ID != c.ID {
		t.Fatalf("Expected closure %s, got %+v", c.ID, byPeriod)
	}
	none, err := db.GetClosureByPeriod(ctx, "o1", models.Period{Month: 4, Year: 2024})
	if err != nil {
		t.Fatalf("Failed to get closure by period: %v", err)
	}
	if none != nil {
		t.Errorf("Expected no closure for 2024-04, got %+v", none)
	}

	closedAt := time.Date(2024, 4, 2, 10, 0, 0, 0, time.UTC)
	if err := db.SetClosureStatus(ctx, c, models.ClosureStatusClosed, &closedAt); err != nil {
		t.Fatalf("Failed to close: %v", err)
	}
	got, err := db.GetClosure(ctx, "o1", c.ID)
	if err != nil {
		t.Fatalf("Failed to get closure: %v", err)
	}
	if !got.IsClosed() || got.ClosedAt == nil || !got.ClosedAt.Equal(closedAt) {
		t.Errorf("Expected closed at %v, got %s %v", closedAt, got.Status, got.ClosedAt)
	}

	if err := db.SetClosureStatus(ctx, c, models.ClosureStatusOpen, nil); err != nil {
		t.Fatalf("Failed to reopen: %v", err)
	}
	if c.IsClosed() || c.ClosedAt != nil {
		t.Errorf("Expected open closure without closed_at, got %s %v", c.Status, c.ClosedAt)
	}

	notes := "March"
	c.HourlyRate = decimal.RequireFromString("120.5")
	c.Notes = &notes
	if err := db.UpdateClosureHeader(ctx, c); err != nil {
		t.Fatalf("Failed to update header: %v", err)
	}
	got, err = db.GetClosure(ctx, "o1", c.ID)
	if err != nil {
		t.Fatalf("Failed to get closure: %v", err)
	}
	if !got.HourlyRate.Equal(c.HourlyRate) || got.Notes == nil || *got.Notes != notes {
		t.Errorf("Unexpected header after update: %+v", got)
	}

	// Rows upsert on (closure, client).
	row := &models.ClosureClient{
		ClosureID:   c.ID,
		ClientID:    s.client.ID,
		TotalHours:  decimal.NewFromInt(2),
		GrossAmount: decimal.NewFromInt(200),
		TaxAmount:   decimal.NewFromInt(20),
		NetAmount:   decimal.NewFromInt(180),
	}
	if err := db.UpsertClosureClient(ctx, row); err != nil {
		t.Fatalf("Failed to upsert row: %v", err)
	}
	again := &models.ClosureClient{
		ClosureID:   c.ID,
		ClientID:    s.client.ID,
		TotalHours:  decimal.NewFromInt(3),
		GrossAmount: decimal.NewFromInt(300),
		TaxAmount:   decimal.NewFromInt(30),
		NetAmount:   decimal.NewFromInt(270),
	}
	if err := db.UpsertClosureClient(ctx, again); err != nil {
		t.Fatalf("Failed to upsert row: %v", err)
	}
	if again.ID != row.ID {
		t.Errorf("Expected upsert to keep row ID %s, got %s", row.ID, again.ID)
	}

	rows, err := db.ListClosureClients(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to list rows: %v", err)
	}
	if len(rows) != 1 || !rows[0].TotalHours.Equal(decimal.NewFromInt(3)) || rows[0].ClientName != "Acme" {
		t.Fatalf("Unexpected rows: %+v", rows)
	}

	deleted, err := db.DeleteClosureClient(ctx, c.ID, s.client.ID)
	if err != nil || !deleted {
		t.Fatalf("Expected row to be deleted, got %v %v", deleted, err)
	}
	deleted, err = db.DeleteClosureClient(ctx, c.ID, s.client.ID)
	if err != nil || deleted {
		t.Errorf("Expected second delete to be a no-op, got %v %v", deleted, err)
	}
}

func TestClosureExpenseLines(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	c := &models.MonthlyClosure{OwnerID: "o1", Month: 1, Year: 2024, HourlyRate: decimal.NewFromInt(1)}
	if err := db.CreateClosure(ctx, c); err != nil {
		t.Fatalf("Failed to create closure: %v", err)
	}
	ex := &models.Expense{OwnerID: "o1", Name: "Hosting", DefaultAmount: decimal.NewFromInt(10)}
	if err := db.CreateExpense(ctx, ex); err != nil {
		t.Fatalf("Failed to create expense: %v", err)
	}

	line := &models.ClosureExpense{ClosureID: c.ID, ExpenseID: &ex.ID, Name: ex.Name, Amount: ex.DefaultAmount}
	if err := db.CreateClosureExpense(ctx, line); err != nil {
		t.Fatalf("Failed to create closure expense: %v", err)
	}

	line.Amount = decimal.RequireFromString("12.5")
	if err := db.UpdateClosureExpense(ctx, line); err != nil {
		t.Fatalf("Failed to update closure expense: %v", err)
	}
	got, err := db.GetClosureExpense(ctx, c.ID, line.ID)
	if err != nil {
		t.Fatalf("Failed to get closure expense: %v", err)
	}
	if got == nil || !got.Amount.Equal(line.Amount) {
		t.Fatalf("Unexpected closure expense: %+v", got)
	}

	// Removing the catalog entry keeps the line as ad-hoc.
	if _, err := db.Exec("DELETE FROM expenses WHERE id = ?", ex.ID); err != nil {
		t.Fatalf("Failed to delete expense: %v", err)
	}
	got, err = db.GetClosureExpense(ctx, c.ID, line.ID)
	if err != nil {
		t.Fatalf("Failed to get closure expense: %v", err)
	}
	if got == nil || got.ExpenseID != nil {
		t.Errorf("Expected line to survive with no catalog reference, got %+v", got)
	}

	if err := db.DeleteClosure(ctx, "o1", c.ID); err != nil {
		t.Fatalf("Failed to delete closure: %v", err)
	}
	lines, err := db.ListClosureExpenses(ctx, c.ID)
	if err != nil {
		t.Fatalf("Failed to list closure expenses: %v", err)
	}
	if len(lines) != 0 {
		t.Errorf("Expected lines to cascade, got %d", len(lines))
	}
}

func TestListClosuresOrder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	for _, p := range []models.Period{{Month: 11, Year: 2023}, {Month: 2, Year: 2024}, {Month: 12, Year: 2023}} {
		c := &models.MonthlyClosure{OwnerID: "o1", Month: p.Month, Year: p.Year, HourlyRate: decimal.NewFromInt(1)}
		if err := db.CreateClosure(ctx, c); err != nil {
			t.Fatalf("Failed to create closure: %v", err)
		}
	}

	closures, err := db.ListClosures(ctx, "o1")
	if err != nil {
		t.Fatalf("Failed to list closures: %v", err)
	}
	var got []string
	for _, c := range closures {
		got = append(got, c.Period().String())
	}
	want := []string{"2024-02", "2023-12", "2023-11"}
	for i := range want {
		if i >= len(got) || got[i] != want[i] {
			t.Fatalf("Expected %v, got %v", want, got)
		}
	}
}
