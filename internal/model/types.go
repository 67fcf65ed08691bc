package model

import "time"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// Operation names how a candidate network was produced.
type Operation string

const (
	OperationSeed    Operation = "seed"
	OperationMutate  Operation = "mutate"
	OperationCombine Operation = "combine"
)

// CandidateRecord is the outcome of one coordinator cycle.
type CandidateRecord struct {
	VersionedRecord
	ID              string    `json:"id"`
	RunID           string    `json:"run_id"`
	Operation       Operation `json:"operation"`
	ParentRanks     []int     `json:"parent_ranks,omitempty"`
	Performance     int       `json:"performance"`
	Accepted        bool      `json:"accepted"`
	Rank            int       `json:"rank"`
	Reloaded        bool      `json:"reloaded"`
	Bottleneck      bool      `json:"bottleneck"`
	PoolSize        int       `json:"pool_size"`
	BestPerformance int       `json:"best_performance"`
	CreatedAt       time.Time `json:"created_at"`
}

// RunSummary aggregates the cycles of one optimizer process.
type RunSummary struct {
	VersionedRecord
	RunID           string    `json:"run_id"`
	Host            string    `json:"host,omitempty"`
	PID             int       `json:"pid,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	UpdatedAt       time.Time `json:"updated_at"`
	Cycles          int       `json:"cycles"`
	Accepted        int       `json:"accepted"`
	Reloads         int       `json:"reloads"`
	Bottlenecks     int       `json:"bottlenecks"`
	BestPerformance int       `json:"best_performance"`
}
