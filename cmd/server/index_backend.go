package main

import (
	"log"
	"path/filepath"

	"towntrade.dev/internal/persistence/indexdb"
)

// openRuntimeIndex opens the sqlite read model, or returns nil when
// indexing is disabled. A nil index is always safe to use.
func openRuntimeIndex(dataDir string, disabled bool, logger *log.Logger) (*indexdb.SQLiteIndex, error) {
	if disabled {
		logger.Printf("save/audit index disabled")
		return nil, nil
	}
	return indexdb.OpenSQLite(filepath.Join(dataDir, "index.db"))
}
