package testutil

import (
	"context"
	"database/sql"
	"strings"
	"sync"
)

// RecordingExecutor records statements and fails those matching a prefix
type RecordingExecutor struct {
	mu sync.Mutex

	statements []string
	errors     map[string]error
}

// ExecutorOption is a functional option for configuring RecordingExecutor
type ExecutorOption func(*RecordingExecutor)

// FailOn makes statements starting with prefix return err
func FailOn(prefix string, err error) ExecutorOption {
	return func(r *RecordingExecutor) {
		r.errors[prefix] = err
	}
}

// NewRecordingExecutor creates a recording executor with the given options
func NewRecordingExecutor(opts ...ExecutorOption) *RecordingExecutor {
	r := &RecordingExecutor{errors: make(map[string]error)}

	for _, opt := range opts {
		opt(r)
	}

	return r
}

// ExecContext records query and returns the configured error, if any
func (r *RecordingExecutor) ExecContext(_ context.Context, query string, _ ...any) (sql.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.statements = append(r.statements, query)

	for prefix, err := range r.errors {
		if strings.HasPrefix(query, prefix) {
			return nil, err
		}
	}

	return driverResult{}, nil
}

// Statements returns a copy of everything executed so far
func (r *RecordingExecutor) Statements() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]string(nil), r.statements...)
}

type driverResult struct{}

func (driverResult) LastInsertId() (int64, error) { return 0, nil }
func (driverResult) RowsAffected() (int64, error) { return 0, nil }
