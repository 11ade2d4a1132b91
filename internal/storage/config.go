package storage

import (
	"fmt"

	"github.com/kyleking/sqlnow/internal/config"
)

// NewDuckDBFromConfig opens the database named by the engine configuration
func NewDuckDBFromConfig(cfg *config.Config) (*DuckDB, error) {
	db, err := NewDuckDB(cfg.Database)
	if err != nil {
		if cfg.Database == "" {
			return nil, fmt.Errorf("failed to open in-memory database: %w", err)
		}

		return nil, fmt.Errorf("failed to open database %s: %w", cfg.Database, err)
	}

	return db, nil
}
