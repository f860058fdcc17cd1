package db

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/pkg/config"
	"github.com/russross/meddler"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T, journal string) *sql.DB {
	t.Helper()

	cfg := config.DatabaseConfig{Path: filepath.Join(t.TempDir(), "test.db"), JournalMode: journal}
	cfg.ApplyDefaults()

	sqlDB, err := NewSQLiteDBFromConfig(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	return sqlDB
}

const testMigration = `
-- +migrate Down
DROP TABLE IF EXISTS contracts;

-- +migrate Up
CREATE TABLE contracts (
	name    TEXT PRIMARY KEY,
	address TEXT,
	owner   TEXT
);
`

type contractRow struct {
	Name    string          `meddler:"name,pk"`
	Address common.Address  `meddler:"address,address"`
	Owner   *common.Address `meddler:"owner,address"`
}

func TestRunMigrations(t *testing.T) {
	t.Parallel()

	sqlDB := openTestDB(t, "WAL")
	log := logger.NewNopLogger()
	migrations := []Migration{{ID: "0001", SQL: testMigration}}

	require.NoError(t, RunMigrations(log, sqlDB, migrations))
	// Applying again is a no-op.
	require.NoError(t, RunMigrations(log, sqlDB, migrations))

	var count int
	require.NoError(t, sqlDB.QueryRow(`SELECT COUNT(*) FROM gorp_migrations`).Scan(&count))
	require.Equal(t, 1, count)

	_, err := sqlDB.Exec(`INSERT INTO contracts (name) VALUES ('pool')`)
	require.NoError(t, err)
}

func TestRunMigrations_MissingSeparator(t *testing.T) {
	t.Parallel()

	sqlDB := openTestDB(t, "WAL")
	err := RunMigrations(logger.NewNopLogger(), sqlDB, []Migration{{ID: "bad", SQL: "CREATE TABLE x (id INTEGER);"}})
	require.ErrorContains(t, err, "missing")
}

func TestAddressMeddler(t *testing.T) {
	t.Parallel()

	sqlDB := openTestDB(t, "DELETE")
	require.NoError(t, RunMigrations(logger.NewNopLogger(), sqlDB, []Migration{{ID: "0001", SQL: testMigration}}))

	owner := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	rows := []*contractRow{
		{Name: "with-owner", Address: common.HexToAddress("0x01"), Owner: &owner},
		{Name: "no-owner", Address: common.HexToAddress("0x02")},
	}
	for _, r := range rows {
		require.NoError(t, meddler.Insert(sqlDB, "contracts", r))
	}

	var got contractRow
	require.NoError(t, meddler.Load(sqlDB, "contracts", &got, "with-owner"))
	require.Equal(t, common.HexToAddress("0x01"), got.Address)
	require.NotNil(t, got.Owner)
	require.Equal(t, owner, *got.Owner)

	got = contractRow{}
	require.NoError(t, meddler.Load(sqlDB, "contracts", &got, "no-owner"))
	require.Nil(t, got.Owner)

	var stored string
	require.NoError(t, sqlDB.QueryRow(`SELECT address FROM contracts WHERE name = 'no-owner'`).Scan(&stored))
	require.Equal(t, common.HexToAddress("0x02").Hex(), stored)
}

func TestCheckpointWAL(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		journal string
	}{
		{name: "WAL", journal: "WAL"},
		{name: "NonWAL", journal: "TRUNCATE"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sqlDB := openTestDB(t, tc.journal)
			_, err := sqlDB.Exec(`CREATE TABLE t (id INTEGER PRIMARY KEY, v TEXT)`)
			require.NoError(t, err)
			for range 100 {
				_, err = sqlDB.Exec(`INSERT INTO t (v) VALUES ('x')`)
				require.NoError(t, err)
			}

			require.NoError(t, CheckpointWAL(context.Background(), sqlDB, "TRUNCATE", logger.NewNopLogger()))
		})
	}
}
