package db

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/ldi/hourbook/pkg/models"
	"github.com/shopspring/decimal"
)

type seed struct {
	client *models.Client
	ttype  *models.TaskType
}

func seedCatalog(t *testing.T, db *DB, ownerID string) seed {
	t.Helper()
	ctx := context.Background()

	s := seed{
		client: &models.Client{OwnerID: ownerID, Name: "Acme"},
		ttype:  &models.TaskType{OwnerID: ownerID, Name: "Development"},
	}
	if err := db.CreateClient(ctx, s.client); err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	if err := db.CreateTaskType(ctx, s.ttype); err != nil {
		t.Fatalf("Failed to create task type: %v", err)
	}
	return s
}

func date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

func TestTaskCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := seedCatalog(t, db, "o1")

	estimate := decimal.RequireFromString("4.5")
	desc := "Initial build"
	task := &models.Task{
		OwnerID:        "o1",
		ClientID:       s.client.ID,
		TaskTypeID:     s.ttype.ID,
		Name:           "Test Task",
		Description:    &desc,
		EstimatedHours: &estimate,
		HoursSpent:     decimal.NewFromInt(9),
		CreationDate:   time.Date(2024, 3, 31, 22, 0, 0, 0, time.UTC),
		Tags:           []string{"backend", "urgent"},
	}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	if len(task.ID) != 36 || !strings.Contains(task.ID, "-") {
		t.Errorf("Expected UUID, got %s", task.ID)
	}
	if task.CreatedAt.IsZero() || task.UpdatedAt.IsZero() {
		t.Errorf("Expected CreatedAt and UpdatedAt to be set")
	}
	if task.TaskNumber != 1 {
		t.Errorf("Expected task number 1, got %d", task.TaskNumber)
	}
	if task.Status != models.TaskStatusPending {
		t.Errorf("Expected status pending, got %s", task.Status)
	}
	if !task.HoursSpent.IsZero() {
		t.Errorf("Expected hours spent to start at zero, got %s", task.HoursSpent)
	}

	got, err := db.GetTask(ctx, "o1", task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if got == nil {
		t.Fatal("Task not found")
	}
	if got.ClientName != "Acme" || got.TaskTypeName != "Development" {
		t.Errorf("Expected joined names, got %q and %q", got.ClientName, got.TaskTypeName)
	}
	if !got.CreationDate.Equal(date(2024, 3, 31)) {
		t.Errorf("Expected creation date 2024-03-31, got %v", got.CreationDate)
	}
	if got.EstimatedHours == nil || !got.EstimatedHours.Equal(estimate) {
		t.Errorf("Expected estimate %s, got %v", estimate, got.EstimatedHours)
	}
	if diff := cmp.Diff([]string{"backend", "urgent"}, got.Tags); diff != "" {
		t.Errorf("Tags mismatch (-want +got):\n%s", diff)
	}

	// Other owners cannot see it.
	other, err := db.GetTask(ctx, "o2", task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if other != nil {
		t.Error("Expected task to be scoped to its owner")
	}

	got.Name = "Renamed"
	got.EstimatedHours = nil
	got.Tags = nil
	if err := db.UpdateTask(ctx, got); err != nil {
		t.Fatalf("Failed to update task: %v", err)
	}
	updated, err := db.GetTask(ctx, "o1", task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if updated.Name != "Renamed" || updated.EstimatedHours != nil || len(updated.Tags) != 0 {
		t.Errorf("Unexpected task after update: %+v", updated)
	}

	if err := db.SetTaskHoursSpent(ctx, task.ID, decimal.RequireFromString("2.75")); err != nil {
		t.Fatalf("Failed to set hours: %v", err)
	}
	if err := db.SetTaskStatus(ctx, task.ID, models.TaskStatusCompleted); err != nil {
		t.Fatalf("Failed to set status: %v", err)
	}
	updated, err = db.GetTask(ctx, "o1", task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if !updated.HoursSpent.Equal(decimal.RequireFromString("2.75")) || updated.Status != models.TaskStatusCompleted {
		t.Errorf("Unexpected task after set: hours %s status %s", updated.HoursSpent, updated.Status)
	}

	if err := db.DeleteTask(ctx, "o2", task.ID); err == nil {
		t.Error("Expected delete by another owner to fail")
	}
	if err := db.DeleteTask(ctx, "o1", task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}
	deleted, err := db.GetTask(ctx, "o1", task.ID)
	if err != nil {
		t.Fatalf("Failed to get task: %v", err)
	}
	if deleted != nil {
		t.Error("Expected task to be deleted")
	}
}

func TestListTasksFilter(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := seedCatalog(t, db, "o1")

	globex := &models.Client{OwnerID: "o1", Name: "Globex"}
	if err := db.CreateClient(ctx, globex); err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	create := func(clientID string, created time.Time) *models.Task {
		task := &models.Task{OwnerID: "o1", ClientID: clientID, TaskTypeID: s.ttype.ID, Name: "t", CreationDate: created}
		if err := db.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
		return task
	}
	create(s.client.ID, date(2024, 2, 29))
	a := create(s.client.ID, date(2024, 3, 1))
	b := create(globex.ID, date(2024, 3, 31))
	create(s.client.ID, date(2024, 4, 1))

	march := models.Period{Month: 3, Year: 2024}
	tasks, err := db.ListTasks(ctx, "o1", TaskFilter{Period: &march})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	if diff := cmp.Diff([]string{a.ID, b.ID}, ids); diff != "" {
		t.Errorf("Period filter mismatch (-want +got):\n%s", diff)
	}

	tasks, err = db.ListTasks(ctx, "o1", TaskFilter{Period: &march, ClientID: &globex.ID})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != b.ID {
		t.Errorf("Expected only the Globex task, got %d tasks", len(tasks))
	}

	pending := models.TaskStatusPending
	tasks, err = db.ListTasks(ctx, "o1", TaskFilter{Status: &pending})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 4 {
		t.Errorf("Expected 4 pending tasks, got %d", len(tasks))
	}
	for i, task := range tasks {
		if task.TaskNumber != i+1 {
			t.Errorf("Expected tasks ordered by number, got %d at %d", task.TaskNumber, i)
		}
	}

	tasks, err = db.ListTasks(ctx, "o2", TaskFilter{})
	if err != nil {
		t.Fatalf("ListTasks failed: %v", err)
	}
	if len(tasks) != 0 {
		t.Errorf("Expected no tasks for another owner, got %d", len(tasks))
	}
}

func TestTaskNumbersPerOwner(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s1 := seedCatalog(t, db, "o1")
	s2 := seedCatalog(t, db, "o2")

	for i := 0; i < 2; i++ {
		task := &models.Task{OwnerID: "o1", ClientID: s1.client.ID, TaskTypeID: s1.ttype.ID, Name: "t"}
		if err := db.CreateTask(ctx, task); err != nil {
			t.Fatalf("Failed to create task: %v", err)
		}
	}
	task := &models.Task{OwnerID: "o2", ClientID: s2.client.ID, TaskTypeID: s2.ttype.ID, Name: "t"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if task.TaskNumber != 1 {
		t.Errorf("Expected numbering to restart per owner, got %d", task.TaskNumber)
	}
}

func TestHourRecords(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := seedCatalog(t, db, "o1")

	task := &models.Task{OwnerID: "o1", ClientID: s.client.ID, TaskTypeID: s.ttype.ID, Name: "t"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}

	r := &models.HourRecord{
		OwnerID:     "o1",
		TaskID:      task.ID,
		WorkDate:    time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC),
		HoursWorked: decimal.RequireFromString("1.5"),
	}
	if err := db.CreateHourRecord(ctx, r); err != nil {
		t.Fatalf("Failed to create hour record: %v", err)
	}
	if !r.WorkDate.Equal(date(2024, 3, 5)) {
		t.Errorf("Expected work date truncated to 2024-03-05, got %v", r.WorkDate)
	}

	got, err := db.GetHourRecord(ctx, "o1", r.ID)
	if err != nil {
		t.Fatalf("Failed to get hour record: %v", err)
	}
	if got == nil || !got.HoursWorked.Equal(r.HoursWorked) || !got.WorkDate.Equal(r.WorkDate) {
		t.Fatalf("Unexpected hour record: %+v", got)
	}

	note := "review"
	got.WorkDate = date(2024, 4, 1)
	got.HoursWorked = decimal.NewFromInt(2)
	got.Description = &note
	if err := db.UpdateHourRecord(ctx, got); err != nil {
		t.Fatalf("Failed to update hour record: %v", err)
	}

	records, err := db.ListHourRecords(ctx, task.ID)
	if err != nil {
		t.Fatalf("Failed to list hour records: %v", err)
	}
	if len(records) != 1 || records[0].Description == nil || *records[0].Description != note {
		t.Fatalf("Unexpected records: %+v", records)
	}
	if records[0].Period() != (models.Period{Month: 4, Year: 2024}) {
		t.Errorf("Expected period 2024-04, got %s", records[0].Period())
	}

	owned, err := db.ListOwnerHourRecords(ctx, "o2")
	if err != nil {
		t.Fatalf("Failed to list owner hour records: %v", err)
	}
	if len(owned) != 0 {
		t.Errorf("Expected no records for another owner, got %d", len(owned))
	}

	// Records cascade with their task.
	if err := db.DeleteTask(ctx, "o1", task.ID); err != nil {
		t.Fatalf("Failed to delete task: %v", err)
	}
	gone, err := db.GetHourRecord(ctx, "o1", r.ID)
	if err != nil {
		t.Fatalf("Failed to get hour record: %v", err)
	}
	if gone != nil {
		t.Error("Expected hour record to be deleted with its task")
	}
}

func TestClientInUseCannotBeDeleted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	s := seedCatalog(t, db, "o1")

	task := &models.Task{OwnerID: "o1", ClientID: s.client.ID, TaskTypeID: s.ttype.ID, Name: "t"}
	if err := db.CreateTask(ctx, task); err != nil {
		t.Fatalf("Failed to create task: %v", err)
	}
	if _, err := db.Exec("DELETE FROM clients WHERE id = ?", s.client.ID); err == nil {
		t.Error("Expected foreign key to protect a referenced client")
	}
}
