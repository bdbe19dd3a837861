// Package overlap invokes the external overlap computation.
// The geometric predicates live in an opaque analytical statement supplied by
// configuration; this adapter only runs it per group and classifies failures
package overlap

import (
	"context"
	"strings"

	perr "gridhot/internal/platform/errors"
	"gridhot/internal/platform/logger"
	"gridhot/internal/repokit"
)

// Analyzer runs one configured SQL statement per group. The statement
// receives the group key as $1 and is expected to append candidate rows to
// the shared overlap-results table
type Analyzer struct {
	DB  repokit.TxRunner
	SQL string
}

// New constructs the analyzer; sql must reference the group key as $1
func New(db repokit.TxRunner, sql string) (*Analyzer, error) {
	if db == nil {
		return nil, perr.InvalidArgf("overlap: nil TxRunner")
	}
	if strings.TrimSpace(sql) == "" {
		return nil, perr.InvalidArgf("overlap: empty analysis statement")
	}
	return &Analyzer{DB: db, SQL: sql}, nil
}

// AnalyzeGroup runs the analysis statement for one group inside a transaction
func (a *Analyzer) AnalyzeGroup(ctx context.Context, groupKey string) error {
	err := a.DB.Tx(ctx, func(q repokit.Queryer) error {
		tag, err := q.Exec(ctx, a.SQL, groupKey)
		if err != nil {
			return err
		}
		logger.C(ctx).Debug().Str("group_key", groupKey).
			Int64("rows", tag.RowsAffected()).Msg("overlap analysis ran")
		return nil
	})
	return perr.FromPostgresf(err, "overlap analysis for %s", groupKey)
}
