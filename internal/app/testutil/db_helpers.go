package testutil

import (
	"context"
	"testing"

	"voxflow/internal/app/repository"
	"voxflow/internal/app/repository/sqlite"
)

// SetupTestStore returns a migrated in-memory sqlite store closed at test end.
func SetupTestStore(t *testing.T) *repository.CommonDB {
	t.Helper()
	store, err := sqlite.Open(":memory:")
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// WithTestStore runs fn against a fresh sqlite store.
func WithTestStore(t *testing.T, fn func(t *testing.T, store *repository.CommonDB)) {
	t.Helper()
	fn(t, SetupTestStore(t))
}
