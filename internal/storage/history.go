package storage

import (
	"context"
	"sync"

	"github.com/example/fleet-tracker/internal/models"
)

// HistoryStore records reported driver positions.
type HistoryStore interface {
	AppendSample(ctx context.Context, ev models.LocationEvent) error
	Recent(ctx context.Context, driverID int64, limit int) ([]models.LocationEvent, error)
}

type MemoryHistory struct {
	mu     sync.RWMutex
	events map[int64][]models.LocationEvent
}

func NewMemoryHistory() *MemoryHistory {
	return &MemoryHistory{events: make(map[int64][]models.LocationEvent)}
}

func (m *MemoryHistory) AppendSample(_ context.Context, ev models.LocationEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[ev.DriverID] = append(m.events[ev.DriverID], ev)
	return nil
}

// Recent returns up to limit events, newest first.
func (m *MemoryHistory) Recent(_ context.Context, driverID int64, limit int) ([]models.LocationEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	all := m.events[driverID]
	if limit <= 0 || limit > len(all) {
		limit = len(all)
	}
	out := make([]models.LocationEvent, 0, limit)
	for i := len(all) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, all[i])
	}
	return out, nil
}
