package pool

import (
	"strconv"

	"robosim/internal/config"
)

// Layout names the files that make up a persisted pool.
type Layout struct {
	RankingFile    string
	NetworkBase    string
	BestFile       string
	CheckpointFile string
	SeedFile       string
}

func LayoutFromConfig(c config.PoolConfig) Layout {
	return Layout{
		RankingFile:    c.Resolve(c.RankingFile),
		NetworkBase:    c.Resolve(c.NetworkBase),
		BestFile:       c.Resolve(c.BestFile),
		CheckpointFile: c.Resolve(c.CheckpointFile),
		SeedFile:       c.Resolve(c.SeedFile),
	}
}

// NetworkFile is the description file of rank i.
func (l Layout) NetworkFile(i int) string {
	return l.NetworkBase + strconv.Itoa(i)
}
