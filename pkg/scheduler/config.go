package scheduler

import "github.com/goran-ethernal/ChainRuntime/pkg/config"

// JobsFromConfig returns the block jobs configured for a chain.
func JobsFromConfig(chain config.ChainConfig) []BlockJob {
	jobs := make([]BlockJob, 0, len(chain.BlockJobs))
	for _, j := range chain.BlockJobs {
		jobs = append(jobs, BlockJob{
			ChainID:    chain.ID,
			Name:       j.Name,
			Interval:   j.Interval,
			StartBlock: j.StartBlock,
			EndBlock:   j.EndBlock,
		})
	}
	return jobs
}
