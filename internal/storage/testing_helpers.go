package storage

import (
	"context"
	"testing"
)

// NewTestDB creates an in-memory test database.
// Returns the database and a cleanup function that should be deferred.
func NewTestDB(t *testing.T) (*DuckDB, func()) {
	t.Helper()

	db, err := NewDuckDB("")
	if err != nil {
		t.Fatalf("failed to create test database: %v", err)
	}

	cleanup := func() {
		if err := db.Close(); err != nil {
			t.Errorf("failed to close test database: %v", err)
		}
	}

	return db, cleanup
}

// MustExec runs statements against db, failing the test on the first error
func MustExec(t *testing.T, db *DuckDB, stmts ...string) {
	t.Helper()

	err := db.Do(context.Background(), 0, func(ctx context.Context, q Querier) error {
		for _, stmt := range stmts {
			if _, err := q.ExecContext(ctx, stmt); err != nil {
				t.Fatalf("failed to execute %q: %v", stmt, err)
			}
		}

		return nil
	})
	if err != nil {
		t.Fatalf("failed to acquire test database: %v", err)
	}
}
