package billing

import (
	"context"
	"sync"

	"github.com/ldi/hourbook/internal/db"
	"github.com/ldi/hourbook/pkg/models"
)

type stagingKey struct {
	ownerID   string
	sessionID string
}

// StagingManager provides thread-safe in-memory storage for hour entries
// waiting to be committed as one batch.
type StagingManager struct {
	mu     sync.RWMutex
	staged map[stagingKey][]HourEntryInput
}

func NewStagingManager() *StagingManager {
	return &StagingManager{
		staged: make(map[stagingKey][]HourEntryInput),
	}
}

// AddHourEntry stages an entry and returns how many entries the session holds.
func (sm *StagingManager) AddHourEntry(ownerID, sessionID string, in HourEntryInput) int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	key := stagingKey{ownerID, sessionID}
	sm.staged[key] = append(sm.staged[key], in)
	return len(sm.staged[key])
}

func (sm *StagingManager) Peek(ownerID, sessionID string) []HourEntryInput {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	items := sm.staged[stagingKey{ownerID, sessionID}]
	out := make([]HourEntryInput, len(items))
	copy(out, items)
	return out
}

func (sm *StagingManager) GetAndClear(ownerID, sessionID string) []HourEntryInput {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	key := stagingKey{ownerID, sessionID}
	items := sm.staged[key]
	delete(sm.staged, key)
	if items == nil {
		return []HourEntryInput{}
	}
	return items
}

// Restore puts entries back at the front of a session, ahead of anything
// staged since they were taken.
func (sm *StagingManager) Restore(ownerID, sessionID string, items []HourEntryInput) {
	if len(items) == 0 {
		return
	}
	sm.mu.Lock()
	defer sm.mu.Unlock()

	key := stagingKey{ownerID, sessionID}
	restored := make([]HourEntryInput, 0, len(items)+len(sm.staged[key]))
	restored = append(restored, items...)
	sm.staged[key] = append(restored, sm.staged[key]...)
}

// Clear drops a session's staged entries.
func (sm *StagingManager) Clear(ownerID, sessionID string) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	delete(sm.staged, stagingKey{ownerID, sessionID})
}

// CommitStagedHours records every staged entry of a session in one
// transaction. A rejected batch is put back so it can be corrected and
// retried; entries staged while the commit runs stay staged.
func (e *Engine) CommitStagedHours(ctx context.Context, ownerID, sessionID string) ([]*models.HourRecord, error) {
	items := e.Staging.GetAndClear(ownerID, sessionID)
	if len(items) == 0 {
		return []*models.HourRecord{}, nil
	}

	records := make([]*models.HourRecord, 0, len(items))
	err := e.db.Update(ctx, func(l *db.Ledger) error {
		for _, in := range items {
			r, err := e.recordHourEntry(ctx, l, ownerID, in)
			if err != nil {
				return err
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		e.Staging.Restore(ownerID, sessionID, items)
		return nil, err
	}

	e.log.Info("committed staged hours", "owner", ownerID, "session", sessionID, "records", len(records))
	return records, nil
}
