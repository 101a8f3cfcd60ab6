package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MendeTr/BatterySim/pkg/types"
)

func TestMemoryRuns(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()

	started := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	id, err := db.InsertRun(ctx, types.RunSummary{Started: started, Hours: 8760})
	require.NoError(t, err)
	assert.Equal(t, "2024-03-01T12:00:00Z", id)

	got, err := db.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 8760, got.Hours)
	assert.Equal(t, id, got.ID)

	_, err = db.GetRun(ctx, "missing")
	assert.ErrorIs(t, err, ErrRunNotFound)
}

func TestMemoryListRuns(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for d := 0; d < 3; d++ {
		_, err := db.InsertRun(ctx, types.RunSummary{Started: base.AddDate(0, 0, d)})
		require.NoError(t, err)
	}

	runs, err := db.ListRuns(ctx, base, base.AddDate(0, 0, 2))
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.True(t, runs[0].Started.Before(runs[1].Started))
}

func TestMemoryLedger(t *testing.T) {
	ctx := context.Background()
	db := NewMemory()

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	ledger := make([]types.HourResult, 24)
	for h := range ledger {
		ledger[h] = types.HourResult{Timestamp: base.Add(time.Duration(h) * time.Hour)}
	}
	require.NoError(t, db.InsertLedger(ctx, "run-1", ledger))

	rows, err := db.GetLedger(ctx, "run-1", base.Add(6*time.Hour), base.Add(9*time.Hour))
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	_, err = db.GetLedger(ctx, "missing", base, base.Add(time.Hour))
	assert.ErrorIs(t, err, ErrRunNotFound)

	assert.Error(t, db.InsertLedger(ctx, "", ledger))
}
