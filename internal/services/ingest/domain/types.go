// Package domain holds the core types for the ingest pipeline
package domain

import (
	catalogdom "gridhot/internal/services/catalog/domain"
	"gridhot/internal/services/ledger"
)

// Record re-exports the bbox record shape routed into partitions
type Record = catalogdom.Record

// Item is one manifest entry moving through the pipeline. When an upstream
// step already failed (fetch, geometry transform) Err and FailedStep are set
// and the writer records the outcome without touching the database
type Item struct {
	ID         string
	Record     Record
	Err        error
	FailedStep ledger.Step
}

// State is the controller's lifecycle state
type State string

// Controller states; transitions are logged and the terminal state is
// reported on RunStats
const (
	StateIdle        State = "idle"
	StateLoading     State = "loading"
	StateBatching    State = "batching"
	StateWriting     State = "writing"
	StateAnalyzing   State = "analyzing"
	StateFinalizing  State = "finalizing"
	StateCompleted   State = "completed"
	StateInterrupted State = "interrupted"
	StateFailed      State = "failed"
)

// WriteOptions tunes one Write call
type WriteOptions struct {
	// InsertBatchSize caps records per commit; <=0 means one commit per
	// partition per call
	InsertBatchSize int

	// CreatePartitions makes the writer create partition tables on demand.
	// When false the tables are assumed to exist
	CreatePartitions bool

	// EnsureView rebuilds the unified view after a successful write; this is
	// caller-controlled, never an implicit effect
	EnsureView bool
	ViewName   string
}

// WriteReport summarizes one Write call
type WriteReport struct {
	Processed    int
	Inserted     int
	PerPartition map[string]int
}

// RunOptions tunes one pipeline run
type RunOptions struct {
	BatchSize       int `validate:"gt=0"`
	InsertBatchSize int `validate:"gte=0"`
	Workers         int `validate:"gte=0"`

	RetryFailedOnly  bool
	CreatePartitions bool
	MaintainView     bool
	ViewName         string
	Analyze          bool
}

// RunStats is the controller's final report. Interrupted is a normal outcome,
// not an error; failure counts are always categorized by step
type RunStats struct {
	State            State
	TotalLoaded      int
	Processed        int
	Inserted         int
	CompletedBatches int
	Interrupted      bool
	FailedByStep     map[ledger.Step]int
	AnalyzedGroups   []string
	FailedGroups     []string
}
