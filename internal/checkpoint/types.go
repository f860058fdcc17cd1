package checkpoint

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/goran-ethernal/ChainRuntime/internal/logger"
	"github.com/goran-ethernal/ChainRuntime/pkg/feed"
	"github.com/goran-ethernal/ChainRuntime/pkg/scheduler"
	"github.com/goran-ethernal/ChainRuntime/pkg/store"
	"github.com/goran-ethernal/ChainRuntime/pkg/subscription"
)

// State is everything needed to resume processing after a restart.
type State struct {
	Snapshot  *store.Snapshot
	Cursors   map[uint64]feed.Position
	Jobs      []JobState
	Contracts []subscription.DynamicContract
}

// JobState is the last block a block job fired at.
type JobState struct {
	ChainID   uint64 `json:"chain_id"`
	Name      string `json:"name"`
	LastFired uint64 `json:"last_fired"`
}

type dbCursor struct {
	ChainID   uint64 `meddler:"chain_id"`
	Block     uint64 `meddler:"block"`
	LogIndex  uint64 `meddler:"log_index"`
	UpdatedAt int64  `meddler:"updated_at"`
}

type dbBlockJob struct {
	ChainID   uint64 `meddler:"chain_id"`
	Name      string `meddler:"name"`
	LastFired uint64 `meddler:"last_fired"`
}

type dbDynamicContract struct {
	ChainID  uint64         `meddler:"chain_id"`
	Contract string         `meddler:"contract"`
	Address  common.Address `meddler:"address,address"`
	Block    uint64         `meddler:"block"`
	LogIndex uint64         `meddler:"log_index"`
}

func (d *dbDynamicContract) toDynamicContract() subscription.DynamicContract {
	return subscription.DynamicContract{
		ChainID:      d.ChainID,
		ContractName: d.Contract,
		Address:      d.Address,
		RegisteredAt: feed.Position{Block: d.Block, LogIndex: d.LogIndex},
	}
}

type dbEntity struct {
	EntityType string `meddler:"entity_type"`
	ID         string `meddler:"id"`
	Fields     string `meddler:"fields"`
}

// Apply restores the state into a freshly built runtime. Block jobs that are no
// longer scheduled are skipped.
func (s *State) Apply(st *store.Store, subs *subscription.Registry, sched *scheduler.Scheduler,
	log *logger.Logger) error {
	st.Restore(s.Snapshot)

	for _, c := range s.Contracts {
		if _, err := subs.RegisterDynamic(c.ChainID, c.ContractName, c.Address, c.RegisteredAt); err != nil {
			return fmt.Errorf("failed to restore dynamic contract %s %s on chain %d: %w",
				c.ContractName, c.Address.Hex(), c.ChainID, err)
		}
	}

	for chainID, pos := range s.Cursors {
		sched.RestoreCursor(chainID, pos)
	}

	for _, j := range s.Jobs {
		if err := sched.RestoreJob(j.ChainID, j.Name, j.LastFired); err != nil {
			log.Warnw("skipping checkpointed block job", "chain_id", j.ChainID, "job", j.Name, "error", err)
		}
	}

	return nil
}
