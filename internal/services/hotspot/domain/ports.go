package domain

import "context"

// ExtractorPort is the public two-phase surface of the subsystem
type ExtractorPort interface {
	Inspect(ctx context.Context, cfg Config) (Inspection, error)
	Run(ctx context.Context, cfg Config) (RunResult, error)
}

// OverlapRepo is the storage surface over the shared overlap-results table
// and the output table
type OverlapRepo interface {
	// ScanGroups returns the distinct (analysis key, params) pairs present
	// in the overlap-results table
	ScanGroups(ctx context.Context) ([]GroupRef, error)

	// GroupRowCount counts candidate rows for one analysis key
	GroupRowCount(ctx context.Context, analysisKey string) (int, error)

	// TopRows returns up to limit rows for one analysis key by ascending
	// rank (rank 1 first)
	TopRows(ctx context.Context, analysisKey string, limit int) ([]OverlapRow, error)

	// RecreateOutput drops and recreates the output table, replacing any
	// prior contents for a fresh run
	RecreateOutput(ctx context.Context, table string) error

	// InsertSummary writes extracted rows into the output table
	InsertSummary(ctx context.Context, table string, rows []SummaryRow) (int, error)
}
