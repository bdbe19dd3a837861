package domain

import "context"

// CatalogRepo is the storage surface for partition maintenance.
// ListPartitions introspects the live catalog on every call so partitions
// created after process start are still discovered
type CatalogRepo interface {
	// CreatePartition creates the partition table if it does not exist
	CreatePartition(ctx context.Context, partition string) error

	// DropPartition removes a partition table; administrative only
	DropPartition(ctx context.Context, partition string) error

	// ListPartitions returns the ordered set of partition tables currently
	// matching the naming convention
	ListPartitions(ctx context.Context) ([]string, error)

	// CreateUnifiedView (re)builds the union view over the given partitions
	CreateUnifiedView(ctx context.Context, viewName string, partitions []string) error

	// InsertRecords persists records into one partition and reports how many
	// rows were actually written (conflicts on record id are upserts)
	InsertRecords(ctx context.Context, partition string, recs []Record) (int, error)
}

// RouterPort is what other services use to resolve partitions and maintain
// the unified view
type RouterPort interface {
	ListPartitions(ctx context.Context) ([]string, error)
	EnsureUnifiedView(ctx context.Context, viewName string) error
	CreatePartition(ctx context.Context, partition string) error
	DropPartitionFor(ctx context.Context, groupKey string) error
}
