package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/MendeTr/BatterySim/pkg/types"
)

// Memory is an in-process Database. It is the default provider: a
// simulation run does not need durable storage unless asked for.
type Memory struct {
	mu      sync.RWMutex
	runs    map[string]types.RunSummary
	ledgers map[string][]types.HourResult
}

// NewMemory returns an empty in-memory database.
func NewMemory() *Memory {
	return &Memory{
		runs:    make(map[string]types.RunSummary),
		ledgers: make(map[string][]types.HourResult),
	}
}

func (m *Memory) InsertRun(_ context.Context, summary types.RunSummary) (string, error) {
	id := summary.ID
	if id == "" {
		id = summary.Started.UTC().Format(time.RFC3339)
		summary.ID = id
	}
	m.mu.Lock()
	m.runs[id] = summary
	m.mu.Unlock()
	return id, nil
}

func (m *Memory) GetRun(_ context.Context, id string) (types.RunSummary, error) {
	m.mu.RLock()
	summary, ok := m.runs[id]
	m.mu.RUnlock()
	if !ok {
		return types.RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return summary, nil
}

func (m *Memory) ListRuns(_ context.Context, start, end time.Time) ([]types.RunSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var runs []types.RunSummary
	for _, summary := range m.runs {
		if summary.Started.Before(start) || !summary.Started.Before(end) {
			continue
		}
		runs = append(runs, summary)
	}
	sort.Slice(runs, func(i, j int) bool {
		return runs[i].Started.Before(runs[j].Started)
	})
	return runs, nil
}

func (m *Memory) InsertLedger(_ context.Context, runID string, ledger []types.HourResult) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	cp := make([]types.HourResult, len(ledger))
	copy(cp, ledger)
	m.mu.Lock()
	m.ledgers[runID] = cp
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetLedger(_ context.Context, runID string, start, end time.Time) ([]types.HourResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rows, ok := m.ledgers[runID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	var out []types.HourResult
	for _, row := range rows {
		if row.Timestamp.Before(start) || !row.Timestamp.Before(end) {
			continue
		}
		out = append(out, row)
	}
	return out, nil
}

func (m *Memory) Close() error { return nil }
