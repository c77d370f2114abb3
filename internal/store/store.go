// Package store holds the last-known order snapshot used when the
// authoritative fetch cannot be completed. One well-known slot keeps the
// single most-recent snapshot; callers validate the order id before use.
package store

import (
	"context"
	"sync"

	"delivery-tracking/internal/domain"
)

// CurrentOrderSlot is the well-known slot for the most recent order.
const CurrentOrderSlot = "current_order"

type SnapshotCache interface {
	Load(ctx context.Context, slot string) (domain.OrderSnapshot, bool, error)
	Store(ctx context.Context, slot string, snap domain.OrderSnapshot) error
}

// Memory is the in-process SnapshotCache. Used in tests and when no database
// is configured.
type Memory struct {
	mu    sync.RWMutex
	slots map[string]domain.OrderSnapshot
}

func NewMemory() *Memory {
	return &Memory{slots: make(map[string]domain.OrderSnapshot)}
}

func (m *Memory) Load(_ context.Context, slot string) (domain.OrderSnapshot, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	snap, ok := m.slots[slot]
	return snap, ok, nil
}

func (m *Memory) Store(_ context.Context, slot string, snap domain.OrderSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.slots[slot] = snap
	return nil
}
