// Package testutil provides common constants and utilities for tests
package testutil

import "time"

const (
	// TestTimeout is the default timeout for test operations
	TestTimeout = 30 * time.Second

	// ShortTestTimeout is a shorter timeout for quick operations
	ShortTestTimeout = 5 * time.Second

	// LongTestTimeout covers container start-up in integration tests
	LongTestTimeout = 2 * time.Minute
)

const (
	// TestCatalog is the catalog name of an in-memory DuckDB database
	TestCatalog = "memory"

	// IntegrationEnv enables tests that need network access or containers
	IntegrationEnv = "SQLNOW_INTEGRATION"
)
