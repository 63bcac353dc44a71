package billing

import (
	"testing"
)

func TestClosureExpenses(t *testing.T) {
	f := setupEngine(t)
	c := f.closure(t, 3, 2024, "100", "0")

	software, err := f.engine.CreateExpense(f.ctx, testOwner, "Software", dec("19.999"))
	if err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	assertDecimal(t, "default amount", software.DefaultAmount, "20")

	line, err := f.engine.AddClosureExpense(f.ctx, testOwner, c.ID, ClosureExpenseInput{ExpenseID: &software.ID})
	if err != nil {
		t.Fatalf("AddClosureExpense failed: %v", err)
	}
	if line.Name != "Software" || line.ExpenseID == nil || *line.ExpenseID != software.ID {
		t.Errorf("Unexpected catalog line: %+v", line)
	}
	assertDecimal(t, "amount", line.Amount, "20")

	updated, err := f.engine.UpdateClosureExpense(f.ctx, testOwner, c.ID, line.ID, ClosureExpenseUpdate{
		Name:   ptr("Software licences"),
		Amount: ptr(dec("15.5")),
	})
	if err != nil {
		t.Fatalf("UpdateClosureExpense failed: %v", err)
	}
	if updated.Name != "Software licences" {
		t.Errorf("Expected renamed line, got %q", updated.Name)
	}
	assertDecimal(t, "amount", updated.Amount, "15.5")

	stored, err := f.db.GetClosureExpense(f.ctx, c.ID, line.ID)
	if err != nil {
		t.Fatalf("Failed to get closure expense: %v", err)
	}
	assertDecimal(t, "stored amount", stored.Amount, "15.5")

	_, err = f.engine.UpdateClosureExpense(f.ctx, testOwner, c.ID, line.ID, ClosureExpenseUpdate{Amount: ptr(dec("-1"))})
	assertKind(t, err, ErrValidation)
	_, err = f.engine.UpdateClosureExpense(f.ctx, testOwner, c.ID, "missing", ClosureExpenseUpdate{})
	assertKind(t, err, ErrNotFound)

	if err := f.engine.RemoveClosureExpense(f.ctx, testOwner, c.ID, line.ID); err != nil {
		t.Fatalf("RemoveClosureExpense failed: %v", err)
	}
	assertKind(t, f.engine.RemoveClosureExpense(f.ctx, testOwner, c.ID, line.ID), ErrNotFound)
}

func TestClosureExpensesOnClosedClosure(t *testing.T) {
	f := setupEngine(t)
	c := f.closure(t, 3, 2024, "100", "0")
	line, err := f.engine.AddClosureExpense(f.ctx, testOwner, c.ID, ClosureExpenseInput{Name: "Travel", Amount: ptr(dec("40"))})
	if err != nil {
		t.Fatalf("AddClosureExpense failed: %v", err)
	}
	if _, err := f.engine.CloseClosure(f.ctx, testOwner, c.ID); err != nil {
		t.Fatalf("CloseClosure failed: %v", err)
	}

	_, err = f.engine.AddClosureExpense(f.ctx, testOwner, c.ID, ClosureExpenseInput{Name: "Fees", Amount: ptr(dec("1"))})
	assertKind(t, err, ErrValidation)
	_, err = f.engine.UpdateClosureExpense(f.ctx, testOwner, c.ID, line.ID, ClosureExpenseUpdate{Amount: ptr(dec("1"))})
	assertKind(t, err, ErrValidation)
	assertKind(t, f.engine.RemoveClosureExpense(f.ctx, testOwner, c.ID, line.ID), ErrValidation)
}

func TestCatalogConflicts(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.CreateClient(f.ctx, testOwner, "Acme", nil)
	assertKind(t, err, ErrConflict)
	_, err = f.engine.CreateTaskType(f.ctx, testOwner, "Development")
	assertKind(t, err, ErrConflict)

	if _, err := f.engine.CreateExpense(f.ctx, testOwner, "Hosting", dec("10")); err != nil {
		t.Fatalf("CreateExpense failed: %v", err)
	}
	_, err = f.engine.CreateExpense(f.ctx, testOwner, "Hosting", dec("12"))
	assertKind(t, err, ErrConflict)

	_, err = f.engine.CreateClient(f.ctx, testOwner, "  ", nil)
	assertKind(t, err, ErrValidation)

	if _, err := f.engine.CreateClient(f.ctx, "owner-2", "Acme", nil); err != nil {
		t.Fatalf("Expected names to be unique per owner only, got %v", err)
	}
}

func TestCreateTaskReferences(t *testing.T) {
	f := setupEngine(t)

	_, err := f.engine.CreateTask(f.ctx, testOwner, TaskInput{ClientID: "missing", TaskTypeID: f.ttype.ID, Name: "x"})
	assertKind(t, err, ErrNotFound)
	_, err = f.engine.CreateTask(f.ctx, testOwner, TaskInput{ClientID: f.client.ID, TaskTypeID: "missing", Name: "x"})
	assertKind(t, err, ErrNotFound)
	_, err = f.engine.CreateTask(f.ctx, "owner-2", TaskInput{ClientID: f.client.ID, TaskTypeID: f.ttype.ID, Name: "x"})
	assertKind(t, err, ErrNotFound)

	task, err := f.engine.CreateTask(f.ctx, testOwner, TaskInput{ClientID: f.client.ID, TaskTypeID: f.ttype.ID, Name: "Build"})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	if !task.CreationDate.Equal(day(2024, 4, 2)) {
		t.Errorf("Expected creation date to default to today, got %v", task.CreationDate)
	}
	if task.TaskNumber != 1 || task.ClientName != "Acme" || task.TaskTypeName != "Development" {
		t.Errorf("Unexpected task: %+v", task)
	}
}
