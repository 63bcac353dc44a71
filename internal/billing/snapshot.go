package billing

import (
	"context"
	"fmt"
	"os"

	"github.com/ldi/hourbook/internal/db"
)

// ImportSnapshot loads a JSONL snapshot from path in one transaction. Task
// hour totals are re-derived from the imported hour records, and the rows of
// open closures touched by imported tasks are recomputed. Closed closures
// keep their imported figures.
func (e *Engine) ImportSnapshot(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer f.Close()

	var imported []db.ImportedTask
	err = e.db.Update(ctx, func(l *db.Ledger) error {
		imported, err = l.ImportSnapshot(ctx, f)
		if err != nil {
			return err
		}

		affected := make(map[string][]clientPeriod)
		for _, it := range imported {
			task, err := loadTask(ctx, l, it.OwnerID, it.TaskID)
			if err != nil {
				return err
			}
			if err := e.recomputeTaskHours(ctx, l, task); err != nil {
				return err
			}
			affected[it.OwnerID] = append(affected[it.OwnerID], clientPeriod{ClientID: task.ClientID, Period: task.Period()})
		}

		for ownerID, pairs := range affected {
			seen := make(map[clientPeriod]bool, len(pairs))
			for _, cp := range pairs {
				if seen[cp] {
					continue
				}
				seen[cp] = true

				closure, err := l.GetClosureByPeriod(ctx, ownerID, cp.Period)
				if err != nil {
					return err
				}
				if closure == nil || closure.IsClosed() {
					continue
				}
				if _, err := e.recomputeClientRow(ctx, l, closure, cp.ClientID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	e.log.Info("imported snapshot", "path", path, "tasks", len(imported))
	return len(imported), nil
}
