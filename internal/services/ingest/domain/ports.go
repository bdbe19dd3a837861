package domain

import (
	"context"

	"gridhot/internal/services/ledger"
)

// RunnerPort is the public port exposed by the pipeline module
type RunnerPort interface {
	Run(ctx context.Context, opts RunOptions) (RunStats, error)
}

// ManifestLoader reads the scene manifest into an in-memory item sequence.
// A load failure is fatal to the run; there is no partial state to resume
type ManifestLoader interface {
	Load(ctx context.Context) ([]Item, error)
}

// ProgressTracker is the ledger seam the pipeline reports outcomes to
type ProgressTracker interface {
	Record(itemID string, ok bool, step ledger.Step) error
	PendingRetries() []string
	Statistics() ledger.Statistics
}

// BatchWriterPort commits a validated record set in bounded chunks
type BatchWriterPort interface {
	Write(ctx context.Context, items []Item, opts WriteOptions) (WriteReport, error)
}

// Analyzer invokes the external overlap computation for one group.
// Failures are per-group and non-fatal to the run
type Analyzer interface {
	AnalyzeGroup(ctx context.Context, groupKey string) error
}

// ViewMaintainer rebuilds the unified view; satisfied by the catalog service
type ViewMaintainer interface {
	EnsureUnifiedView(ctx context.Context, viewName string) error
}
