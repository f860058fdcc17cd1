package checkpoint

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/goran-ethernal/ChainRuntime/internal/checkpoint/migrations"
	"github.com/goran-ethernal/ChainRuntime/internal/common"
	"github.com/goran-ethernal/ChainRuntime/internal/db"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/internal/metrics"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/goran-ethernal/ChainRuntime/pkg/scheduler"
	"github.com/goran-ethernal/ChainRuntime/pkg/store"
	"github.com/russross/meddler"
)

const dbName = "checkpoint"

// Store persists committed items to SQLite so a restarted runtime resumes where it stopped.
// Every commit is written in a single transaction.
type Store struct {
	db  *sql.DB
	log *logger.Logger
}

// Open opens the checkpoint database and applies pending migrations.
func Open(cfg config.DatabaseConfig, log *logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	log = log.WithComponent(common.ComponentCheckpoint)

	sqlDB, err := db.NewSQLiteDBFromConfig(cfg)
	if err != nil {
		return nil, err
	}

	if err := migrations.RunMigrations(log, sqlDB); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to migrate checkpoint database: %w", err)
	}

	log.Infow("checkpoint database opened", "path", cfg.Path)

	return &Store{db: sqlDB, log: log}, nil
}

// Close flushes the write-ahead log and closes the database.
func (s *Store) Close() error {
	if err := db.CheckpointWAL(context.Background(), s.db, "TRUNCATE", s.log); err != nil {
		s.log.Warnw("WAL checkpoint on close failed", "error", err)
	}
	return s.db.Close()
}

// Load reads the persisted state. An empty database yields an empty snapshot and no cursors.
func (s *Store) Load() (*State, error) {
	start := time.Now()
	defer func() { metrics.DBQueryDuration(dbName, "load", time.Since(start)) }()
	metrics.DBQueryInc(dbName, "load")

	state := &State{Cursors: make(map[uint64]feed.Position)}

	var cursors []*dbCursor
	if err := meddler.QueryAll(s.db, &cursors, `SELECT * FROM cursors ORDER BY chain_id`); err != nil {
		return nil, s.fail("load", fmt.Errorf("failed to load cursors: %w", err))
	}
	for _, c := range cursors {
		state.Cursors[c.ChainID] = feed.Position{Block: c.Block, LogIndex: c.LogIndex}
	}

	var jobs []*dbBlockJob
	if err := meddler.QueryAll(s.db, &jobs, `SELECT * FROM block_jobs ORDER BY chain_id, name`); err != nil {
		return nil, s.fail("load", fmt.Errorf("failed to load block jobs: %w", err))
	}
	for _, j := range jobs {
		state.Jobs = append(state.Jobs, JobState{ChainID: j.ChainID, Name: j.Name, LastFired: j.LastFired})
	}

	var contracts []*dbDynamicContract
	const contractsQuery = `SELECT * FROM dynamic_contracts ORDER BY chain_id, block, log_index, contract, address`
	if err := meddler.QueryAll(s.db, &contracts, contractsQuery); err != nil {
		return nil, s.fail("load", fmt.Errorf("failed to load dynamic contracts: %w", err))
	}
	for _, c := range contracts {
		state.Contracts = append(state.Contracts, c.toDynamicContract())
	}

	snap, err := s.loadSnapshot()
	if err != nil {
		return nil, s.fail("load", err)
	}
	state.Snapshot = snap

	s.log.Infow("checkpoint loaded",
		"chains", len(state.Cursors),
		"block_jobs", len(state.Jobs),
		"dynamic_contracts", len(state.Contracts),
		"entity_types", len(snap.Types()))

	return state, nil
}

func (s *Store) loadSnapshot() (*store.Snapshot, error) {
	var entities []*dbEntity
	if err := meddler.QueryAll(s.db, &entities, `SELECT * FROM entities ORDER BY entity_type, id`); err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}

	snap := store.NewSnapshot()
	for _, e := range entities {
		fields, err := decodeFields(e.Fields)
		if err != nil {
			return nil, fmt.Errorf("entity %s/%s: %w", e.EntityType, e.ID, err)
		}

		if snap, err = snap.Set(e.EntityType, store.NewRecord(e.ID, fields)); err != nil {
			return nil, fmt.Errorf("entity %s/%s: %w", e.EntityType, e.ID, err)
		}
	}

	return snap, nil
}

// OnCommit persists one committed item. It is used as a scheduler commit hook.
// The write is not interrupted by cancellation of ctx: an item committed in memory is
// always persisted.
func (s *Store) OnCommit(ctx context.Context, c scheduler.Commit) error {
	ctx = context.WithoutCancel(ctx)

	start := time.Now()
	defer func() { metrics.DBQueryDuration(dbName, "commit", time.Since(start)) }()
	metrics.DBQueryInc(dbName, "commit")

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.fail("commit", fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			s.log.Errorw("failed to rollback transaction", "error", err)
		}
	}()

	for _, ch := range c.Changes {
		if err := writeChange(ctx, tx, ch); err != nil {
			return s.fail("commit", err)
		}
	}

	for _, r := range c.Registrations {
		row := &dbDynamicContract{
			ChainID:  r.ChainID,
			Contract: r.ContractName,
			Address:  r.Address,
			Block:    r.RegisteredAt.Block,
			LogIndex: r.RegisteredAt.LogIndex,
		}
		if err := meddler.Insert(tx, "dynamic_contracts", row); err != nil {
			return s.fail("commit", fmt.Errorf("failed to insert dynamic contract %s %s: %w",
				r.ContractName, r.Address.Hex(), err))
		}
	}

	const jobQuery = `
		INSERT INTO block_jobs (chain_id, name, last_fired) VALUES (?, ?, ?)
		ON CONFLICT(chain_id, name) DO UPDATE SET last_fired = excluded.last_fired`
	for _, j := range c.Jobs {
		if j.LastFired == nil {
			continue
		}
		if _, err := tx.ExecContext(ctx, jobQuery, j.ChainID, j.Name, *j.LastFired); err != nil {
			return s.fail("commit", fmt.Errorf("failed to save block job %s: %w", j.Name, err))
		}
	}

	const cursorQuery = `
		INSERT INTO cursors (chain_id, block, log_index, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(chain_id) DO UPDATE SET
			block = excluded.block, log_index = excluded.log_index, updated_at = excluded.updated_at`
	if _, err := tx.ExecContext(ctx, cursorQuery,
		c.ChainID, c.Cursor.Block, c.Cursor.LogIndex, time.Now().UTC().Unix()); err != nil {
		return s.fail("commit", fmt.Errorf("failed to save cursor: %w", err))
	}

	if err := tx.Commit(); err != nil {
		return s.fail("commit", fmt.Errorf("failed to commit transaction: %w", err))
	}

	s.log.Debugw("checkpoint saved",
		"chain_id", c.ChainID, "cursor", c.Cursor.String(), "changes", len(c.Changes))

	return nil
}

func writeChange(ctx context.Context, tx *sql.Tx, ch store.Change) error {
	if ch.Record == nil {
		_, err := tx.ExecContext(ctx, `DELETE FROM entities WHERE entity_type = ? AND id = ?`, ch.EntityType, ch.ID)
		if err != nil {
			return fmt.Errorf("failed to delete entity %s/%s: %w", ch.EntityType, ch.ID, err)
		}
		return nil
	}

	fields, err := json.Marshal(ch.Record.Fields)
	if err != nil {
		return fmt.Errorf("failed to encode entity %s/%s: %w", ch.EntityType, ch.ID, err)
	}

	const query = `
		INSERT INTO entities (entity_type, id, fields) VALUES (?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET fields = excluded.fields`
	if _, err := tx.ExecContext(ctx, query, ch.EntityType, ch.ID, string(fields)); err != nil {
		return fmt.Errorf("failed to save entity %s/%s: %w", ch.EntityType, ch.ID, err)
	}

	return nil
}

// decodeFields keeps numbers as json.Number so large integers survive a restart.
func decodeFields(raw string) (map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader([]byte(raw)))
	dec.UseNumber()

	var fields map[string]any
	if err := dec.Decode(&fields); err != nil {
		return nil, fmt.Errorf("failed to decode fields: %w", err)
	}
	return fields, nil
}

func (s *Store) fail(operation string, err error) error {
	metrics.DBErrorsInc(dbName, operation)
	s.log.Errorw("checkpoint operation failed", "operation", operation, "error", err)
	return err
}
