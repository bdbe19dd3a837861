// Package repo provides postgres access to the shared overlap-results table
// and the hotspot output table
package repo

import (
	"context"
	"fmt"
	"strings"

	perr "gridhot/internal/platform/errors"
	"gridhot/internal/platform/store"
	"gridhot/internal/repokit"
	"gridhot/internal/services/hotspot/domain"
)

// ResultsTable is the shared table populated by the external overlap
// computation, one row per candidate hotspot per group
const ResultsTable = "overlap_results"

type (
	// PG is a Postgres binder for domain.OverlapRepo
	PG      struct{}
	queries struct{ q repokit.Queryer }
)

// NewPG returns a Postgres binder for domain.OverlapRepo
func NewPG() repokit.Binder[domain.OverlapRepo] { return PG{} }

// Bind implements repokit.Binder
func (PG) Bind(q repokit.Queryer) domain.OverlapRepo { return &queries{q: q} }

// guardIdent keeps interpolated table names to the safe identifier alphabet
func guardIdent(name string) error {
	if name == "" {
		return perr.InvalidArgf("empty identifier")
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') && r != '_' {
			return perr.InvalidArgf("unsafe identifier %q", name)
		}
	}
	return nil
}

// ScanGroups reads the distinct (analysis key, params) pairs.
// Ordering includes params so discovery is deterministic when one analysis
// key carries rows with differing payloads: the lowest payload wins dedup
func (r *queries) ScanGroups(ctx context.Context) ([]domain.GroupRef, error) {
	out, err := store.Many(ctx, r.q, func(row store.Row) (domain.GroupRef, error) {
		var g domain.GroupRef
		err := row.Scan(&g.AnalysisKey, &g.RawParams)
		return g, err
	}, `
		SELECT DISTINCT analysis_key, params
		FROM `+ResultsTable+`
		ORDER BY analysis_key, params
	`)
	if err != nil {
		return nil, perr.FromPostgres(err, "scan overlap groups")
	}
	return out, nil
}

// GroupRowCount counts candidate rows for one analysis key
func (r *queries) GroupRowCount(ctx context.Context, analysisKey string) (int, error) {
	n, err := store.Scalar[int](ctx, r.q,
		`SELECT count(*) FROM `+ResultsTable+` WHERE analysis_key = $1`,
		analysisKey,
	)
	if err != nil {
		return 0, perr.FromPostgresf(err, "count rows for %s", analysisKey)
	}
	return n, nil
}

// TopRows returns up to limit rows for one analysis key by ascending rank
func (r *queries) TopRows(ctx context.Context, analysisKey string, limit int) ([]domain.OverlapRow, error) {
	out, err := store.Many(ctx, r.q, func(row store.Row) (domain.OverlapRow, error) {
		var o domain.OverlapRow
		err := row.Scan(
			&o.AnalysisKey, &o.RawParams, &o.OverlapArea, &o.SubgroupCount,
			&o.SceneCount, &o.Geom, &o.Rank, &o.ComputedAt,
		)
		return o, err
	}, `
		SELECT analysis_key, params, overlap_area, subgroup_count, scene_count,
		       geom, rank_in_group, computed_at
		FROM `+ResultsTable+`
		WHERE analysis_key = $1
		ORDER BY rank_in_group ASC
		LIMIT $2
	`, analysisKey, limit)
	if err != nil {
		return nil, perr.FromPostgresf(err, "top rows for %s", analysisKey)
	}
	return out, nil
}

// RecreateOutput drops and recreates the output table
func (r *queries) RecreateOutput(ctx context.Context, table string) error {
	if err := guardIdent(table); err != nil {
		return err
	}
	if _, err := r.q.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return perr.FromPostgresf(err, "drop output table %s", table)
	}
	_, err := r.q.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			group_key      text NOT NULL,
			cell_x         int NOT NULL,
			cell_y         int NOT NULL,
			overlap_area   double precision NOT NULL,
			subgroup_count int NOT NULL,
			scene_count    int NOT NULL,
			geom           text NOT NULL,
			rank_in_group  int NOT NULL,
			extracted_at   timestamptz NOT NULL DEFAULT now(),
			PRIMARY KEY (group_key, rank_in_group)
		)
	`, table))
	return perr.FromPostgresf(err, "create output table %s", table)
}

// InsertSummary writes extracted rows with a multi-row insert
func (r *queries) InsertSummary(ctx context.Context, table string, rows []domain.SummaryRow) (int, error) {
	if err := guardIdent(table); err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, `INSERT INTO %s
		(group_key, cell_x, cell_y, overlap_area, subgroup_count, scene_count, geom, rank_in_group) VALUES `,
		table)

	args := make([]any, 0, len(rows)*8)
	for i, row := range rows {
		if i > 0 {
			sb.WriteByte(',')
		}
		base := i*8 + 1
		fmt.Fprintf(&sb, "($%d,$%d,$%d,$%d,$%d,$%d,$%d,$%d)",
			base, base+1, base+2, base+3, base+4, base+5, base+6, base+7)
		args = append(args,
			row.GroupKey, row.CellX, row.CellY, row.OverlapArea,
			row.SubgroupCount, row.SceneCount, row.Geom, row.Rank,
		)
	}

	tag, err := r.q.Exec(ctx, sb.String(), args...)
	if err != nil {
		return 0, perr.FromPostgresf(err, "insert %d summary rows into %s", len(rows), table)
	}
	return int(tag.RowsAffected()), nil
}
