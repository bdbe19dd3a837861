// Package domain holds the partition routing rules and catalog types
package domain

import (
	"strings"
	"time"

	perr "gridhot/internal/platform/errors"

	"golang.org/x/text/cases"
)

const (
	// PartitionPrefix is the common prefix of every partition table.
	// Partition discovery matches on it, so nothing else in the schema may
	// use it
	PartitionPrefix = "bbox_p_"

	// DefaultViewName is the unified view built over all partitions
	DefaultViewName = "bbox_all"

	// SourceColumn is the literal column the unified view adds to identify
	// the partition each row came from
	SourceColumn = "source_partition"
)

// ErrInvalidGroupKey is returned by Route for empty or non-conforming keys
var ErrInvalidGroupKey = perr.New(perr.ErrorCodeInvalidArgument, "invalid group key")

// ErrNoPartitions is returned when a unified view is requested but the
// catalog holds no partitions to union
var ErrNoPartitions = perr.New(perr.ErrorCodeNotFound, "no partitions exist")

// Record is one geo-bounded spatial unit belonging to exactly one scene.
// Every record resolves to exactly one partition via its group key
type Record struct {
	ID         string
	GroupKey   string
	Subgroup   string
	Geom       string // WKT polygon
	Quality    string
	Meta       map[string]string
	IngestedAt time.Time
}

var fold = cases.Fold()

// Route maps a group key to its partition table name.
// It is a pure function: case-folding, deterministic, and collision-free
// over the accepted alphabet ([a-z0-9_] after folding)
func Route(groupKey string) (string, error) {
	k := fold.String(strings.TrimSpace(groupKey))
	if k == "" {
		return "", ErrInvalidGroupKey
	}
	for _, r := range k {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return "", perr.Wrapf(ErrInvalidGroupKey, perr.ErrorCodeInvalidArgument, "group key %q", groupKey)
		}
	}
	return PartitionPrefix + k, nil
}

// GroupOf recovers the folded group key from a partition name, the inverse
// of Route for names produced by it
func GroupOf(partition string) string {
	return strings.TrimPrefix(partition, PartitionPrefix)
}
