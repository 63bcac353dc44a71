package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ldi/hourbook/internal/billing"
	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
	"github.com/shopspring/decimal"
)

func TestServer_API(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	ctx := context.Background()
	if err := database.Init(ctx); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	engine := billing.NewEngine(database, logger)

	// Seed some data
	client, err := engine.CreateClient(ctx, "o1", "Acme", nil)
	if err != nil {
		t.Fatalf("CreateClient failed: %v", err)
	}
	ttype, err := engine.CreateTaskType(ctx, "o1", "Development")
	if err != nil {
		t.Fatalf("CreateTaskType failed: %v", err)
	}
	task, err := engine.CreateTask(ctx, "o1", billing.TaskInput{
		ClientID:     client.ID,
		TaskTypeID:   ttype.ID,
		Name:         "test-task",
		CreationDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatalf("CreateTask failed: %v", err)
	}
	_, err = engine.RecordHourEntry(ctx, "o1", billing.HourEntryInput{
		TaskID:      task.ID,
		WorkDate:    time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC),
		HoursWorked: decimal.NewFromInt(3),
	})
	if err != nil {
		t.Fatalf("RecordHourEntry failed: %v", err)
	}
	closure, err := engine.CreateClosure(ctx, "o1", billing.ClosureInput{
		Month: 3, Year: 2024, HourlyRate: decimal.NewFromInt(50), TaxPercentage: decimal.NewFromInt(20),
	})
	if err != nil {
		t.Fatalf("CreateClosure failed: %v", err)
	}

	handler := NewServer(engine, logger).Handler()
	get := func(target string) *httptest.ResponseRecorder {
		req := httptest.NewRequest("GET", target, nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		return w
	}

	t.Run("GET /api/tasks", func(t *testing.T) {
		w := get("/api/tasks?owner=o1&month=3&year=2024")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status OK, got %v: %s", w.Code, w.Body.String())
		}
		var tasks []*models.Task
		if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
			t.Fatalf("Failed to unmarshal tasks: %v", err)
		}
		if len(tasks) != 1 {
			t.Fatalf("Expected 1 task, got %d", len(tasks))
		}
		if tasks[0].Name != "test-task" || !tasks[0].HoursSpent.Equal(decimal.NewFromInt(3)) {
			t.Errorf("Unexpected task: %+v", tasks[0])
		}
	})

	t.Run("GET /api/tasks other owner", func(t *testing.T) {
		w := get("/api/tasks?owner=o2")
		var tasks []*models.Task
		if err := json.Unmarshal(w.Body.Bytes(), &tasks); err != nil {
			t.Fatalf("Failed to unmarshal tasks: %v", err)
		}
		if len(tasks) != 0 {
			t.Errorf("Expected no tasks for another owner, got %d", len(tasks))
		}
	})

	t.Run("GET /api/closures", func(t *testing.T) {
		w := get("/api/closures?owner=o1")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status OK, got %v", w.Code)
		}
		var closures []*models.MonthlyClosure
		if err := json.Unmarshal(w.Body.Bytes(), &closures); err != nil {
			t.Fatalf("Failed to unmarshal closures: %v", err)
		}
		if len(closures) != 1 || closures[0].ID != closure.ID {
			t.Errorf("Unexpected closures: %+v", closures)
		}
	})

	t.Run("GET /api/closures/{id}", func(t *testing.T) {
		w := get("/api/closures/" + closure.ID + "?owner=o1")
		if w.Code != http.StatusOK {
			t.Fatalf("Expected status OK, got %v", w.Code)
		}
		var summary models.ClosureSummary
		if err := json.Unmarshal(w.Body.Bytes(), &summary); err != nil {
			t.Fatalf("Failed to unmarshal summary: %v", err)
		}
		if !summary.TotalGross.Equal(decimal.NewFromInt(150)) || !summary.FinalAmount.Equal(decimal.NewFromInt(120)) {
			t.Errorf("Unexpected totals: gross %s final %s", summary.TotalGross, summary.FinalAmount)
		}
	})

	errorCases := []struct {
		name   string
		target string
		status int
	}{
		{"missing owner", "/api/closures", http.StatusBadRequest},
		{"bad status", "/api/tasks?owner=o1&status=blocked", http.StatusBadRequest},
		{"half period", "/api/tasks?owner=o1&month=3", http.StatusBadRequest},
		{"unknown closure", "/api/closures/nope?owner=o1", http.StatusNotFound},
		{"closure of other owner", "/api/closures/" + closure.ID + "?owner=o2", http.StatusNotFound},
	}
	for _, tc := range errorCases {
		t.Run(tc.name, func(t *testing.T) {
			w := get(tc.target)
			if w.Code != tc.status {
				t.Errorf("Expected status %d, got %d: %s", tc.status, w.Code, w.Body.String())
			}
			var body apiError
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil || body.Error == "" {
				t.Errorf("Expected JSON error body, got %q", w.Body.String())
			}
		})
	}

	t.Run("POST is not allowed", func(t *testing.T) {
		req := httptest.NewRequest("POST", "/api/closures?owner=o1", nil)
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, req)
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("Expected 405, got %d", w.Code)
		}
	})
}

func TestInternalErrorIsHidden(t *testing.T) {
	database, err := db.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	if err := database.Init(context.Background()); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	engine := billing.NewEngine(database, nil)
	handler := NewServer(engine, slog.New(slog.NewTextHandler(io.Discard, nil))).Handler()
	database.Close()

	req := httptest.NewRequest("GET", "/api/closures?owner=o1", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("Expected 500, got %d", w.Code)
	}
	var body apiError
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("Failed to unmarshal error: %v", err)
	}
	if body.Error != "internal error" {
		t.Errorf("Expected generic message, got %q", body.Error)
	}
}
