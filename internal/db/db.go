package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/internal/metrics"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	_ "github.com/mattn/go-sqlite3"
)

// NewSQLiteDBFromConfig opens a SQLite database with the given configuration.
func NewSQLiteDBFromConfig(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"file:%s?_txlock=immediate&_foreign_keys=on&_journal_mode=%s&_busy_timeout=%d",
		cfg.Path,
		cfg.JournalMode,
		cfg.BusyTimeout,
	)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)

	pragmas := []string{
		fmt.Sprintf("PRAGMA synchronous = %s", cfg.Synchronous),
		fmt.Sprintf("PRAGMA cache_size = %d", cfg.CacheSize),
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return db, nil
}

// CheckpointWAL flushes the write-ahead log into the main database file.
// It is a no-op for databases not in WAL mode.
func CheckpointWAL(ctx context.Context, db *sql.DB, mode string, log *logger.Logger) error {
	var journal string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journal); err != nil {
		return fmt.Errorf("failed to read journal mode: %w", err)
	}
	if !strings.EqualFold(journal, "wal") {
		return nil
	}

	start := time.Now()
	defer func() {
		metrics.DBQueryDuration("checkpoint", "wal_checkpoint", time.Since(start))
	}()
	metrics.DBQueryInc("checkpoint", "wal_checkpoint")

	var busy, logFrames, checkpointed int
	err := db.QueryRowContext(ctx, fmt.Sprintf("PRAGMA wal_checkpoint(%s)", mode)).
		Scan(&busy, &logFrames, &checkpointed)
	if err != nil {
		metrics.DBErrorsInc("checkpoint", "wal_checkpoint")
		return fmt.Errorf("failed to execute WAL checkpoint: %w", err)
	}

	log.Debugw("WAL checkpoint complete",
		"mode", mode, "busy", busy, "log_frames", logFrames, "checkpointed", checkpointed)

	return nil
}
