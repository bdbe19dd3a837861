// Package manifest loads scene manifests into pipeline items.
// The manifest is JSON lines: one object per source item with at least an
// identifier and a group key. An unreadable manifest is fatal; a bad bbox on
// one line is a per-item transform failure the writer reports to the ledger
package manifest

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	perr "gridhot/internal/platform/errors"
	"gridhot/internal/platform/logger"
	"gridhot/internal/services/ingest/domain"
	"gridhot/internal/services/ledger"
)

// Entry is one manifest line
type Entry struct {
	ID       string            `json:"id"`
	GroupKey string            `json:"group_key"`
	Subgroup string            `json:"subgroup"`
	BBox     []float64         `json:"bbox"` // minx, miny, maxx, maxy
	Quality  string            `json:"quality"`
	Meta     map[string]string `json:"meta"`
}

// Loader reads a JSONL manifest from disk
type Loader struct {
	Path string
}

// New constructs a manifest loader for path
func New(path string) *Loader { return &Loader{Path: path} }

// Load reads the whole manifest into memory. Lines that fail geometry
// construction become items pre-marked failed at the transform step, so the
// pipeline can report them without aborting
func (l *Loader) Load(_ context.Context) ([]domain.Item, error) {
	f, err := os.Open(l.Path)
	if err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeNotFound, "open manifest %s", l.Path)
	}
	defer f.Close()

	var items []domain.Item
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(raw) == 0 {
			continue
		}

		var e Entry
		if err := json.Unmarshal(raw, &e); err != nil {
			return nil, perr.Wrapf(err, perr.ErrorCodeInvalidArgument, "manifest line %d", line)
		}
		if e.ID == "" {
			return nil, perr.InvalidArgf("manifest line %d: missing id", line)
		}

		it := domain.Item{ID: e.ID}
		geom, err := bboxWKT(e.BBox)
		if err != nil {
			it.Err = err
			it.FailedStep = ledger.StepTransform
		} else {
			it.Record = domain.Record{
				ID:       e.ID,
				GroupKey: e.GroupKey,
				Subgroup: e.Subgroup,
				Geom:     geom,
				Quality:  e.Quality,
				Meta:     e.Meta,
			}
		}
		items = append(items, it)
	}
	if err := sc.Err(); err != nil {
		return nil, perr.Wrapf(err, perr.ErrorCodeUnknown, "read manifest %s", l.Path)
	}

	logger.Named("manifest").Info().Str("path", l.Path).Int("items", len(items)).Msg("manifest loaded")
	return items, nil
}

// bboxWKT builds a closed WKT polygon from minx, miny, maxx, maxy extents
func bboxWKT(b []float64) (string, error) {
	if len(b) != 4 {
		return "", perr.InvalidArgf("bbox needs 4 extents, got %d", len(b))
	}
	minx, miny, maxx, maxy := b[0], b[1], b[2], b[3]
	if maxx <= minx || maxy <= miny {
		return "", perr.InvalidArgf("degenerate bbox [%v %v %v %v]", minx, miny, maxx, maxy)
	}
	return fmt.Sprintf("POLYGON((%g %g,%g %g,%g %g,%g %g,%g %g))",
		minx, miny, maxx, miny, maxx, maxy, minx, maxy, minx, miny), nil
}
