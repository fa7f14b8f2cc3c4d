package testutil

import (
	"testing"

	"rmt-go/internal/history"
	"rmt-go/internal/history/migrations"
)

// NewTestHistory creates a new in-memory history store with schema applied.
// The store is automatically closed when the test completes.
func NewTestHistory(t *testing.T) *history.Store {
	t.Helper()

	store, err := history.NewStore(":memory:")
	if err != nil {
		t.Fatalf("failed to open history store: %v", err)
	}

	if err := migrations.MigrateUp(store.DB()); err != nil {
		store.Close()
		t.Fatalf("failed to apply schema: %v", err)
	}

	t.Cleanup(func() {
		store.Close()
	})

	return store
}
