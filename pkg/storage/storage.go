// Package storage persists simulation runs: the run summary and the
// per-hour ledger. The default provider keeps everything in memory;
// Firestore is available for keeping results across runs.
package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/levenlabs/go-lflag"

	"github.com/MendeTr/BatterySim/pkg/types"
)

// ErrRunNotFound is returned when a run ID does not exist.
var ErrRunNotFound = errors.New("run not found")

// Database defines the interface for persisting simulation results.
type Database interface {
	// InsertRun stores a completed run summary and returns its ID.
	InsertRun(ctx context.Context, summary types.RunSummary) (string, error)
	// GetRun retrieves a run summary by ID.
	GetRun(ctx context.Context, id string) (types.RunSummary, error)
	// ListRuns returns the summaries of runs started within the range,
	// oldest first.
	ListRuns(ctx context.Context, start, end time.Time) ([]types.RunSummary, error)

	// InsertLedger stores the per-hour results of a run.
	InsertLedger(ctx context.Context, runID string, ledger []types.HourResult) error
	// GetLedger retrieves a run's hourly results within the range,
	// oldest first.
	GetLedger(ctx context.Context, runID string, start, end time.Time) ([]types.HourResult, error)

	// Lifecycle
	Close() error
}

// Configured sets up the storage provider based on flags.
func Configured() Database {
	provider := lflag.String("storage-provider", "memory", "Storage provider to use (available: memory, firestore)")

	var p struct{ Database }

	fs := configuredFirestore()

	lflag.Do(func() {
		switch *provider {
		case "memory":
			p.Database = NewMemory()
		case "firestore":
			if err := fs.Validate(); err != nil {
				panic(fmt.Sprintf("firestore validation failed: %v", err))
			}
			p.Database = fs
			if err := fs.Init(context.Background()); err != nil {
				panic(fmt.Sprintf("firestore init failed: %v", err))
			}
		default:
			panic(fmt.Sprintf("unknown storage provider: %s", *provider))
		}
	})

	return &p
}
