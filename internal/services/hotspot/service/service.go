// Package service implements the two-phase hotspot extractor
package service

import (
	"context"
	"sort"

	perr "gridhot/internal/platform/errors"
	"gridhot/internal/platform/logger"
	"gridhot/internal/repokit"
	"gridhot/internal/services/hotspot/domain"
)

// Service extracts top-ranked overlap rows per group into an output table.
// Inspect is a read-only dry run; Run materializes under the same rounding
// rule, so inspect estimates always match run output for unchanged data
type Service struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.OverlapRepo]
}

// New constructs the extractor service
func New(db repokit.TxRunner, binder repokit.Binder[domain.OverlapRepo]) *Service {
	if db == nil {
		panic("hotspot.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("hotspot.Service requires a non nil Repo binder")
	}
	return &Service{DB: db, Binder: binder}
}

// candidate pairs the display group key with the analysis key rows are
// filtered by
type candidate struct {
	group       string
	analysisKey string
}

// discover lists candidate groups, deduplicated by analysis key and ordered
// by group key
func (s *Service) discover(ctx context.Context) ([]candidate, error) {
	refs, err := s.Binder.Bind(s.DB).ScanGroups(ctx)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(refs))
	var out []candidate
	for _, ref := range refs {
		if seen[ref.AnalysisKey] {
			continue
		}
		seen[ref.AnalysisKey] = true
		out = append(out, candidate{group: ref.GroupKey(), analysisKey: ref.AnalysisKey})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].group < out[j].group })
	return out, nil
}

// Inspect discovers candidate groups and computes how many rows Run would
// produce, without writing anything
func (s *Service) Inspect(ctx context.Context, cfg domain.Config) (domain.Inspection, error) {
	if err := cfg.Validate(); err != nil {
		return domain.Inspection{}, err
	}

	cands, err := s.discover(ctx)
	if err != nil {
		return domain.Inspection{}, err
	}

	repo := s.Binder.Bind(s.DB)
	insp := domain.Inspection{}
	for _, c := range cands {
		insp.CandidateGroups = append(insp.CandidateGroups, c.group)
		n, err := repo.GroupRowCount(ctx, c.analysisKey)
		if err != nil {
			return domain.Inspection{}, err
		}
		insp.ExpectedRows += cfg.SelectCount(n)
	}
	return insp, nil
}

// Run materializes the top-ranked rows per group into cfg.OutputTable,
// replacing any prior contents. Per-group failures are recorded in
// FailedGroups and never abort the remaining groups
func (s *Service) Run(ctx context.Context, cfg domain.Config) (domain.RunResult, error) {
	if err := cfg.Validate(); err != nil {
		return domain.RunResult{}, err
	}

	cands, err := s.discover(ctx)
	if err != nil {
		return domain.RunResult{}, err
	}

	if err := s.Binder.Bind(s.DB).RecreateOutput(ctx, cfg.OutputTable); err != nil {
		return domain.RunResult{}, err
	}

	res := domain.RunResult{}
	for _, c := range cands {
		n, err := s.extractGroup(logger.WithRun(ctx, "", c.group), cfg, c)
		if err != nil {
			logger.C(ctx).Error().Str("group_key", c.group).Err(err).Msg("group extraction failed")
			res.FailedGroups = append(res.FailedGroups, c.group)
			continue
		}
		res.SuccessfulGroups = append(res.SuccessfulGroups, c.group)
		res.ExtractedRows += n
	}

	logger.C(ctx).Info().
		Str("output_table", cfg.OutputTable).
		Int("groups_ok", len(res.SuccessfulGroups)).
		Int("groups_failed", len(res.FailedGroups)).
		Int("rows", res.ExtractedRows).
		Msg("hotspot extraction finished")
	return res, nil
}

// extractGroup selects and writes one group's top rows in a transaction
func (s *Service) extractGroup(ctx context.Context, cfg domain.Config, c candidate) (int, error) {
	repo := s.Binder.Bind(s.DB)

	count, err := repo.GroupRowCount(ctx, c.analysisKey)
	if err != nil {
		return 0, err
	}
	limit := cfg.SelectCount(count)
	if limit == 0 {
		return 0, nil
	}

	rows, err := repo.TopRows(ctx, c.analysisKey, limit)
	if err != nil {
		return 0, err
	}

	summary := make([]domain.SummaryRow, 0, len(rows))
	for _, row := range rows {
		params := domain.ParseParams(row.RawParams)
		x, y, ok := domain.CellOf(params)
		if !ok {
			return 0, perr.InvalidArgf("row rank %d has no grid position in params", row.Rank)
		}
		summary = append(summary, domain.SummaryRow{
			GroupKey:      c.group,
			CellX:         x,
			CellY:         y,
			OverlapArea:   row.OverlapArea,
			SubgroupCount: row.SubgroupCount,
			SceneCount:    row.SceneCount,
			Geom:          row.Geom,
			Rank:          row.Rank,
		})
	}

	var inserted int
	err = repokit.WithTx(ctx, s.DB, func(q repokit.Queryer) error {
		n, err := s.Binder.Bind(q).InsertSummary(ctx, cfg.OutputTable, summary)
		inserted = n
		return err
	})
	return inserted, err
}
