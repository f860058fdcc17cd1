package scheduler

import (
	"errors"
	"fmt"
)

// BlockJob is a callback fired on block items every Interval blocks.
type BlockJob struct {
	ChainID    uint64 `json:"chain_id"`
	Name       string `json:"name"`
	Interval   uint64 `json:"interval"`
	StartBlock uint64 `json:"start_block"`
	EndBlock   uint64 `json:"end_block,omitempty"`

	// LastFired is the block the job last fired at; nil until it fires.
	LastFired *uint64 `json:"last_fired,omitempty"`
}

// Validate checks the job definition.
func (j BlockJob) Validate() error {
	if j.Name == "" {
		return errors.New("block job name is required")
	}
	if j.Interval == 0 {
		return fmt.Errorf("block job %s: interval must be greater than 0", j.Name)
	}
	if j.EndBlock > 0 && j.EndBlock < j.StartBlock {
		return fmt.Errorf("block job %s: end block %d is before start block %d", j.Name, j.EndBlock, j.StartBlock)
	}
	return nil
}

// due reports whether the job fires at block.
func (j *BlockJob) due(block uint64) bool {
	if block < j.StartBlock || (j.EndBlock > 0 && block > j.EndBlock) {
		return false
	}
	if j.LastFired == nil {
		return true
	}
	return block > *j.LastFired && block-*j.LastFired >= j.Interval
}

func (j *BlockJob) clone() BlockJob {
	c := *j
	if j.LastFired != nil {
		last := *j.LastFired
		c.LastFired = &last
	}
	return c
}
