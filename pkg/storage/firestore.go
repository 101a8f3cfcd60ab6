package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/levenlabs/go-lflag"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/MendeTr/BatterySim/pkg/log"
	"github.com/MendeTr/BatterySim/pkg/types"
)

// FirestoreProvider implements the Database interface using Google
// Cloud Firestore. Runs live in a "runs" collection with the ledger in
// a per-run sub-collection.
type FirestoreProvider struct {
	client    *firestore.Client
	projectID string
	database  string
}

// configuredFirestore sets up the Firestore provider.
// It registers flags for configuration.
func configuredFirestore() *FirestoreProvider {
	projectID := lflag.String("firestore-project-id", "", "Google Cloud Project ID for Firestore")
	database := lflag.String("firestore-database", "", "Google Cloud Firestore Database")
	emulator := lflag.String("firestore-emulator", "", "Use Firestore emulator")

	f := &FirestoreProvider{}

	lflag.Do(func() {
		f.projectID = *projectID
		f.database = *database

		// set this because that's how firestore client expects it
		if *emulator != "" {
			os.Setenv("FIRESTORE_EMULATOR_HOST", *emulator)
		}
	})

	return f
}

// Validate checks if the provider is properly configured.
func (f *FirestoreProvider) Validate() error {
	// Project ID verification could be here, but we allow empty if inferred.
	return nil
}

// Init initializes the Firestore client.
// This must be called before using the provider methods.
func (f *FirestoreProvider) Init(ctx context.Context) error {
	projectID := f.projectID
	if projectID == "" {
		projectID = firestore.DetectProjectID
	}
	database := f.database
	if database == "" {
		database = firestore.DefaultDatabaseID
	}
	client, err := firestore.NewClientWithDatabase(ctx, projectID, database)
	if err != nil {
		return fmt.Errorf("failed to create firestore client (project=%s, database=%s): %w", projectID, database, err)
	}
	f.client = client
	return nil
}

// Close closes the Firestore client connection.
func (f *FirestoreProvider) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}

// InsertRun stores a run summary as a JSON blob. The document ID is
// the RFC3339 start time for lexicographic ordering and efficient
// range queries.
func (f *FirestoreProvider) InsertRun(ctx context.Context, summary types.RunSummary) (string, error) {
	id := summary.ID
	if id == "" {
		id = summary.Started.UTC().Format(time.RFC3339)
		summary.ID = id
	}
	jsonBytes, err := json.Marshal(summary)
	if err != nil {
		return "", fmt.Errorf("failed to marshal run summary: %w", err)
	}

	_, err = f.client.Collection("runs").Doc(id).Set(ctx, map[string]interface{}{
		"json":      string(jsonBytes),
		"timestamp": summary.Started,
	})
	if err != nil {
		return "", fmt.Errorf("failed to insert run %s: %w", id, err)
	}
	return id, nil
}

// GetRun retrieves a run summary by ID.
func (f *FirestoreProvider) GetRun(ctx context.Context, id string) (types.RunSummary, error) {
	doc, err := f.client.Collection("runs").Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return types.RunSummary{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
		}
		return types.RunSummary{}, fmt.Errorf("failed to get run %s: %w", id, err)
	}
	return runFromDoc(ctx, doc)
}

// ListRuns retrieves run summaries started within the range. Uses
// document ID range queries for efficient filtering without reading
// all documents.
func (f *FirestoreProvider) ListRuns(ctx context.Context, start, end time.Time) ([]types.RunSummary, error) {
	coll := f.client.Collection("runs")
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(start.UTC().Format(time.RFC3339))).
		Where(firestore.DocumentID, "<", coll.Doc(end.UTC().Format(time.RFC3339))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var runs []types.RunSummary
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating runs: %w", err)
		}
		summary, err := runFromDoc(ctx, doc)
		if err != nil {
			log.Ctx(ctx).WarnContext(ctx, "skipping malformed run doc", slog.String("runID", doc.Ref.ID), slog.Any("err", err))
			continue
		}
		runs = append(runs, summary)
	}
	return runs, nil
}

// InsertLedger stores a run's hourly results in the run's "ledger"
// sub-collection, one document per hour keyed by timestamp.
func (f *FirestoreProvider) InsertLedger(ctx context.Context, runID string, ledger []types.HourResult) error {
	if runID == "" {
		return fmt.Errorf("runID cannot be empty")
	}
	coll := f.client.Collection("runs").Doc(runID).Collection("ledger")

	bw := f.client.BulkWriter(ctx)
	for _, row := range ledger {
		jsonBytes, err := json.Marshal(row)
		if err != nil {
			return fmt.Errorf("failed to marshal ledger row: %w", err)
		}
		docID := row.Timestamp.UTC().Format(time.RFC3339)
		if _, err := bw.Set(coll.Doc(docID), map[string]interface{}{
			"json":      string(jsonBytes),
			"timestamp": row.Timestamp,
		}); err != nil {
			return fmt.Errorf("failed to queue ledger row %s: %w", docID, err)
		}
	}
	bw.End()
	return nil
}

// GetLedger retrieves a run's hourly results within the range.
func (f *FirestoreProvider) GetLedger(ctx context.Context, runID string, start, end time.Time) ([]types.HourResult, error) {
	if runID == "" {
		return nil, fmt.Errorf("runID cannot be empty")
	}
	coll := f.client.Collection("runs").Doc(runID).Collection("ledger")
	iter := coll.
		Where(firestore.DocumentID, ">=", coll.Doc(start.UTC().Format(time.RFC3339))).
		Where(firestore.DocumentID, "<", coll.Doc(end.UTC().Format(time.RFC3339))).
		OrderBy(firestore.DocumentID, firestore.Asc).
		Documents(ctx)
	defer iter.Stop()

	var ledger []types.HourResult
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("error iterating ledger: %w", err)
		}

		val, err := doc.DataAt("json")
		if err != nil {
			return nil, fmt.Errorf("ledger document %s missing 'json' field: %w", doc.Ref.ID, err)
		}
		jsonStr, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("ledger document %s 'json' field is not string", doc.Ref.ID)
		}

		var row types.HourResult
		if err := json.Unmarshal([]byte(jsonStr), &row); err != nil {
			return nil, fmt.Errorf("failed to unmarshal ledger row (id=%s): %w", doc.Ref.ID, err)
		}
		ledger = append(ledger, row)
	}
	return ledger, nil
}

func runFromDoc(ctx context.Context, doc *firestore.DocumentSnapshot) (types.RunSummary, error) {
	val, err := doc.DataAt("json")
	if err != nil {
		log.Ctx(ctx).WarnContext(ctx, "run doc missing json", slog.String("runID", doc.Ref.ID))
		return types.RunSummary{}, fmt.Errorf("run document %s missing 'json' field: %w", doc.Ref.ID, err)
	}
	jsonStr, ok := val.(string)
	if !ok {
		log.Ctx(ctx).WarnContext(ctx, "run doc json not string", slog.String("runID", doc.Ref.ID))
		return types.RunSummary{}, fmt.Errorf("run document %s 'json' field is not string", doc.Ref.ID)
	}

	var summary types.RunSummary
	if err := json.Unmarshal([]byte(jsonStr), &summary); err != nil {
		return types.RunSummary{}, fmt.Errorf("failed to unmarshal run (id=%s): %w", doc.Ref.ID, err)
	}
	return summary, nil
}
