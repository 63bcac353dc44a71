package db

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ldi/hourbook/pkg/models"
)

func TestAutoSnapshot(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	snapshotPath := filepath.Join(t.TempDir(), "auto-snapshot.jsonl")
	db.EnableAutoSnapshot(snapshotPath, nil)

	err := db.Update(ctx, func(l *Ledger) error {
		return l.CreateClient(ctx, &models.Client{OwnerID: "o1", Name: "Auto Client"})
	})
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}

	data, err := os.ReadFile(snapshotPath)
	if err != nil {
		t.Fatalf("Snapshot file was not created after Update: %v", err)
	}
	if !strings.Contains(string(data), "Auto Client") {
		t.Errorf("Expected snapshot to contain the new client")
	}

	getModTime := func(path string) time.Time {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatalf("Failed to stat snapshot: %v", err)
		}
		return info.ModTime()
	}
	modTime1 := getModTime(snapshotPath)

	// Ensure some time passes so mod time definitely changes if it's updated
	time.Sleep(10 * time.Millisecond)

	err = db.Update(ctx, func(l *Ledger) error {
		return l.CreateTaskType(ctx, &models.TaskType{OwnerID: "o1", Name: "Support"})
	})
	if err != nil {
		t.Fatalf("Failed to create task type: %v", err)
	}

	modTime2 := getModTime(snapshotPath)
	if !modTime2.After(modTime1) {
		t.Errorf("Snapshot file was not updated after the second Update")
	}

	// A rolled back transaction leaves the snapshot alone.
	time.Sleep(10 * time.Millisecond)
	_ = db.Update(ctx, func(l *Ledger) error {
		return l.CreateClient(ctx, &models.Client{OwnerID: "o1", Name: "Auto Client"})
	})
	if modTime3 := getModTime(snapshotPath); !modTime3.Equal(modTime2) {
		t.Errorf("Snapshot file was rewritten after a failed Update")
	}
}
