package activity

import (
	"context"
	"sync"
	"time"

	"subsnap/internal/subscription/models"
)

// Memory is an in-process Counter for tests and file-driven runs.
type Memory struct {
	mu   sync.RWMutex
	data map[string]map[int]Counts
}

func NewMemory() *Memory {
	return &Memory{data: make(map[string]map[int]Counts)}
}

// Record replaces an account's figures for the day containing at.
func (m *Memory) Record(_ context.Context, accountID string, at time.Time, c Counts) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	days, ok := m.data[accountID]
	if !ok {
		days = make(map[int]Counts)
		m.data[accountID] = days
	}
	days[models.DateKey(at)] = c
	return nil
}

func (m *Memory) Counts(_ context.Context, accountID string, from, to time.Time) (map[int]Counts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[int]Counts)
	first, last := models.DateKey(from), models.DateKey(to)
	for key, c := range m.data[accountID] {
		if key >= first && key <= last {
			out[key] = c
		}
	}
	return out, nil
}
