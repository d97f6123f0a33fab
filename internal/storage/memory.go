// Package storage implements snapshot persistence backends for the ledger.
package storage

import (
	"context"
	"sort"
	"sync"

	"kinderbook/internal/model"
)

// Memory keeps snapshots in process. It is used by tests and by the
// "memory" driver.
type Memory struct {
	mu    sync.RWMutex
	snaps map[string]model.Snapshot
}

// NewMemory creates an empty in-memory storage.
func NewMemory() *Memory {
	return &Memory{snaps: make(map[string]model.Snapshot)}
}

func (m *Memory) Load(ctx context.Context, userID string) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap, ok := m.snaps[userID]
	if !ok {
		return model.Snapshot{UserID: userID}, nil
	}
	return snap.Clone(), nil
}

func (m *Memory) Save(ctx context.Context, userID string, snapshot model.Snapshot) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := snapshot.Clone()
	snap.UserID = userID
	m.snaps[userID] = snap
	return nil
}

// Users lists stored users in ascending order.
func (m *Memory) Users(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	users := make([]string, 0, len(m.snaps))
	for id := range m.snaps {
		users = append(users, id)
	}
	sort.Strings(users)
	return users, nil
}

func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}
