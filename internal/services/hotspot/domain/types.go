// Package domain holds the hotspot selection policy and extraction types
package domain

import (
	"math"
	"time"

	"github.com/go-playground/validator/v10"

	perr "gridhot/internal/platform/errors"
)

var validate = validator.New()

// Config is the extractor's selection policy. Exactly one of TopN or
// TopPercent must be set, strictly positive; OutputTable must be non-empty.
// Validate runs before any database access
type Config struct {
	OutputTable string  `validate:"required"`
	TopN        int     `validate:"gte=0"`
	TopPercent  float64 `validate:"gte=0,lte=100"`

	// Workers bounds optional per-group parallelism; <=0 means sequential
	Workers int `validate:"gte=0"`
}

// NewConfig builds and validates a selection policy
func NewConfig(outputTable string, topN int, topPercent float64) (Config, error) {
	c := Config{OutputTable: outputTable, TopN: topN, TopPercent: topPercent}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate enforces the policy invariants synchronously, pre-I/O
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return perr.Wrap(err, perr.ErrorCodeValidation, "invalid hotspot config")
	}
	hasN, hasPct := c.TopN > 0, c.TopPercent > 0
	if hasN == hasPct {
		return perr.Validationf("exactly one of top_n or top_percent must be set")
	}
	return nil
}

// SelectCount returns how many rows the policy extracts from a group with
// rowCount rows. For top_percent the count is ceil(rowCount*percent/100)
// with a floor of 1 for non-empty groups
func (c Config) SelectCount(rowCount int) int {
	if rowCount <= 0 {
		return 0
	}
	if c.TopN > 0 {
		return min(c.TopN, rowCount)
	}
	n := int(math.Ceil(float64(rowCount) * c.TopPercent / 100))
	if n < 1 {
		n = 1
	}
	return n
}

// GroupRef is one raw (analysis key, params payload) pair used for group
// discovery
type GroupRef struct {
	AnalysisKey string
	RawParams   string
}

// GroupKey resolves the group key for a ref: the key embedded in the params
// payload wins, falling back to the analysis key column
func (g GroupRef) GroupKey() string {
	if k := ParseParams(g.RawParams)["group"]; k != "" {
		return k
	}
	return g.AnalysisKey
}

// OverlapRow is one candidate hotspot as written by the external overlap
// computation. Rank is meaningful only within one (group, analysis run) pair
type OverlapRow struct {
	AnalysisKey   string
	RawParams     string
	OverlapArea   float64
	SubgroupCount int
	SceneCount    int
	Geom          string
	Rank          int
	ComputedAt    time.Time
}

// SummaryRow is one extracted hotspot in the output table
type SummaryRow struct {
	GroupKey      string
	CellX         int
	CellY         int
	OverlapArea   float64
	SubgroupCount int
	SceneCount    int
	Geom          string
	Rank          int
}

// Inspection is the dry-run estimate produced by Inspect
type Inspection struct {
	CandidateGroups []string
	ExpectedRows    int
}

// RunResult reports a materialization run. Per-group failures are collected
// here; they never abort processing of the remaining groups
type RunResult struct {
	SuccessfulGroups []string
	FailedGroups     []string
	ExtractedRows    int
}
