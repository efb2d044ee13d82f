package db

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// OpenDataDir opens the relay database under <dataDir>/db, creating the directory when missing.
func OpenDataDir(logger *zap.Logger, dataDir string) (*Database, error) {
	if dataDir == "" {
		return nil, fmt.Errorf("no data directory given")
	}
	dbPath := filepath.Join(dataDir, "db")
	if err := os.MkdirAll(dbPath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	database, err := Open(dbPath)
	if err != nil {
		return nil, err
	}
	logger.Info("opened relay database", zap.String("path", dbPath))
	return database, nil
}
