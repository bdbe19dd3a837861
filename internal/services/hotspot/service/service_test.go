package service

import (
	"context"
	"fmt"
	"sort"
	"testing"

	perr "gridhot/internal/platform/errors"
	"gridhot/internal/platform/testkit"
	"gridhot/internal/repokit"
	"gridhot/internal/services/hotspot/domain"
)

type noopTx struct{}

func (noopTx) Exec(context.Context, string, ...any) (repokit.CommandTag, error) { return nil, nil }
func (noopTx) Query(context.Context, string, ...any) (repokit.Rows, error)      { return nil, nil }
func (noopTx) QueryRow(context.Context, string, ...any) repokit.Row             { return nil }
func (noopTx) Tx(ctx context.Context, fn func(repokit.Queryer) error) error     { return fn(noopTx{}) }

// fakeRepo serves a fixed overlap-results table and records writes
type fakeRepo struct {
	rows []domain.OverlapRow

	recreated []string
	written   map[string][]domain.SummaryRow
	insertErr map[string]error
}

func newFakeRepo(rows ...domain.OverlapRow) *fakeRepo {
	return &fakeRepo{
		rows:      rows,
		written:   make(map[string][]domain.SummaryRow),
		insertErr: make(map[string]error),
	}
}

func (f *fakeRepo) ScanGroups(context.Context) ([]domain.GroupRef, error) {
	var out []domain.GroupRef
	for _, r := range f.rows {
		out = append(out, domain.GroupRef{AnalysisKey: r.AnalysisKey, RawParams: r.RawParams})
	}
	return out, nil
}

func (f *fakeRepo) GroupRowCount(_ context.Context, key string) (int, error) {
	n := 0
	for _, r := range f.rows {
		if r.AnalysisKey == key {
			n++
		}
	}
	return n, nil
}

func (f *fakeRepo) TopRows(_ context.Context, key string, limit int) ([]domain.OverlapRow, error) {
	var out []domain.OverlapRow
	for _, r := range f.rows {
		if r.AnalysisKey == key {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Rank < out[j].Rank })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeRepo) RecreateOutput(_ context.Context, table string) error {
	f.recreated = append(f.recreated, table)
	return nil
}

func (f *fakeRepo) InsertSummary(_ context.Context, table string, rows []domain.SummaryRow) (int, error) {
	if len(rows) > 0 {
		if err := f.insertErr[rows[0].GroupKey]; err != nil {
			return 0, err
		}
	}
	f.written[table] = append(f.written[table], rows...)
	return len(rows), nil
}

func bindTo(f *fakeRepo) repokit.Binder[domain.OverlapRepo] {
	return repokit.BindFunc[domain.OverlapRepo](func(repokit.Queryer) domain.OverlapRepo { return f })
}

func row(key string, rank, cellX, cellY int, area float64) domain.OverlapRow {
	return domain.OverlapRow{
		AnalysisKey: key,
		RawParams:   fmt.Sprintf(`{"cell_x":%d,"cell_y":%d}`, cellX, cellY),
		OverlapArea: area,
		Geom:        "POLYGON((0 0,1 0,1 1,0 1,0 0))",
		Rank:        rank,
	}
}

func percentCfg(pct float64) domain.Config {
	return domain.Config{OutputTable: "hotspots", TopPercent: pct}
}

func TestInspect_EstimatesRowsUnderPercentPolicy(t *testing.T) {
	t.Parallel()

	// two groups: A001 with two ranked rows, B009 with one.
	// at 50 percent each group yields ceil(n/2) rows: 1 + 1
	repo := newFakeRepo(
		row("A001", 1, 0, 0, 9.5),
		row("A001", 2, 1, 0, 7.25),
		row("B009", 1, 4, 2, 3.0),
	)
	svc := New(noopTx{}, bindTo(repo))

	insp, err := svc.Inspect(context.Background(), percentCfg(50))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	testkit.MustEqualStrings(t, insp.CandidateGroups, []string{"A001", "B009"})
	if insp.ExpectedRows != 2 {
		t.Fatalf("ExpectedRows = %d, want 2", insp.ExpectedRows)
	}
	if len(repo.recreated) != 0 || len(repo.written) != 0 {
		t.Fatalf("Inspect must not write anything")
	}
}

func TestRun_MatchesInspectEstimate(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		row("A001", 1, 0, 0, 9.5),
		row("A001", 2, 1, 0, 7.25),
		row("B009", 1, 4, 2, 3.0),
	)
	svc := New(noopTx{}, bindTo(repo))

	insp, err := svc.Inspect(context.Background(), percentCfg(50))
	if err != nil {
		t.Fatalf("Inspect: %v", err)
	}
	res, err := svc.Run(context.Background(), percentCfg(50))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExtractedRows != insp.ExpectedRows {
		t.Fatalf("Run wrote %d rows, Inspect estimated %d", res.ExtractedRows, insp.ExpectedRows)
	}

	got := repo.written["hotspots"]
	if len(got) != 2 {
		t.Fatalf("output table has %d rows, want 2", len(got))
	}
	// only rank-1 rows survive the 50 percent cut
	for _, r := range got {
		if r.Rank != 1 {
			t.Fatalf("unexpected rank %d in output", r.Rank)
		}
	}
	if got[0].GroupKey != "A001" || got[0].CellX != 0 || got[0].CellY != 0 {
		t.Fatalf("first row = %+v", got[0])
	}
}

func TestRun_TopNCapsAtGroupSize(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(
		row("A001", 1, 0, 0, 9.5),
		row("A001", 2, 1, 0, 7.25),
	)
	svc := New(noopTx{}, bindTo(repo))

	res, err := svc.Run(context.Background(), domain.Config{OutputTable: "hotspots", TopN: 10})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExtractedRows != 2 {
		t.Fatalf("ExtractedRows = %d, want all 2 rows of the group", res.ExtractedRows)
	}
}

func TestRun_RecreatesOutputBeforeWriting(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(row("A001", 1, 0, 0, 1))
	svc := New(noopTx{}, bindTo(repo))

	if _, err := svc.Run(context.Background(), percentCfg(100)); err != nil {
		t.Fatalf("Run: %v", err)
	}
	testkit.MustEqualStrings(t, repo.recreated, []string{"hotspots"})
}

func TestRun_InvalidConfigFailsBeforeIO(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(row("A001", 1, 0, 0, 1))
	svc := New(noopTx{}, bindTo(repo))

	_, err := svc.Run(context.Background(), domain.Config{OutputTable: "hotspots"})
	if !perr.IsCode(err, perr.ErrorCodeValidation) {
		t.Fatalf("err = %v, want Validation", err)
	}
	if len(repo.recreated) != 0 {
		t.Fatalf("output table must not be touched on invalid config")
	}
}

func TestRun_MissingGridPositionFailsOnlyThatGroup(t *testing.T) {
	t.Parallel()

	broken := domain.OverlapRow{AnalysisKey: "B009", RawParams: `{"note":"no cell"}`, Rank: 1}
	repo := newFakeRepo(row("A001", 1, 0, 0, 9.5), broken)
	svc := New(noopTx{}, bindTo(repo))

	res, err := svc.Run(context.Background(), percentCfg(100))
	if err != nil {
		t.Fatalf("a per-group failure must not fail the run: %v", err)
	}
	testkit.MustEqualStrings(t, res.SuccessfulGroups, []string{"A001"})
	testkit.MustEqualStrings(t, res.FailedGroups, []string{"B009"})
	if res.ExtractedRows != 1 {
		t.Fatalf("ExtractedRows = %d, want 1", res.ExtractedRows)
	}
}

func TestRun_InsertFailureIsolatedPerGroup(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo(row("A001", 1, 0, 0, 9.5), row("B009", 1, 4, 2, 3.0))
	repo.insertErr["A001"] = fmt.Errorf("output table rejected batch")
	svc := New(noopTx{}, bindTo(repo))

	res, err := svc.Run(context.Background(), percentCfg(100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	testkit.MustEqualStrings(t, res.FailedGroups, []string{"A001"})
	testkit.MustEqualStrings(t, res.SuccessfulGroups, []string{"B009"})
}

func TestRun_GroupKeyFromPayloadWinsOverAnalysisKey(t *testing.T) {
	t.Parallel()

	r := domain.OverlapRow{
		AnalysisKey: "A001",
		RawParams:   `{"group":"renamed","cell_x":0,"cell_y":0}`,
		Rank:        1,
	}
	repo := newFakeRepo(r)
	svc := New(noopTx{}, bindTo(repo))

	res, err := svc.Run(context.Background(), percentCfg(100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	testkit.MustEqualStrings(t, res.SuccessfulGroups, []string{"renamed"})
	if got := repo.written["hotspots"]; len(got) != 1 || got[0].GroupKey != "renamed" {
		t.Fatalf("written = %+v", got)
	}
}

func TestRun_NoGroupsStillRecreatesOutput(t *testing.T) {
	t.Parallel()

	repo := newFakeRepo()
	svc := New(noopTx{}, bindTo(repo))

	res, err := svc.Run(context.Background(), percentCfg(100))
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.ExtractedRows != 0 || len(res.SuccessfulGroups) != 0 || len(res.FailedGroups) != 0 {
		t.Fatalf("res = %+v, want empty result", res)
	}
	testkit.MustEqualStrings(t, repo.recreated, []string{"hotspots"})
}
