package manifest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	perr "gridhot/internal/platform/errors"
	"gridhot/internal/platform/testkit"
	"gridhot/internal/services/ledger"
)

func writeManifest(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "manifest.jsonl")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write manifest: %v", err)
	}
	return path
}

func TestLoad_ParsesValidLines(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, `{"id":"s1","group_key":"A001","subgroup":"west","bbox":[10,20,11,21],"quality":"good","meta":{"sensor":"x7"}}
{"id":"s2","group_key":"B009","bbox":[-5,-5,5,5]}
`)
	items, err := New(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}

	first := items[0]
	if first.Err != nil {
		t.Fatalf("unexpected item error: %v", first.Err)
	}
	if first.Record.GroupKey != "A001" || first.Record.Subgroup != "west" || first.Record.Quality != "good" {
		t.Fatalf("record = %+v", first.Record)
	}
	if first.Record.Meta["sensor"] != "x7" {
		t.Fatalf("meta = %v", first.Record.Meta)
	}
	testkit.MustContain(t, first.Record.Geom, "POLYGON((10 20,11 20,11 21,10 21,10 20))")
}

func TestLoad_MissingFileIsFatal(t *testing.T) {
	t.Parallel()

	_, err := New(filepath.Join(t.TempDir(), "nope.jsonl")).Load(context.Background())
	if !perr.IsCode(err, perr.ErrorCodeNotFound) {
		t.Fatalf("err = %v, want NotFound", err)
	}
}

func TestLoad_MalformedJSONIsFatal(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, `{"id":"s1","bbox":[0,0,1,1]}
{not json}
`)
	_, err := New(path).Load(context.Background())
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestLoad_MissingIDIsFatal(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, `{"group_key":"A001","bbox":[0,0,1,1]}
`)
	_, err := New(path).Load(context.Background())
	if !perr.IsCode(err, perr.ErrorCodeInvalidArgument) {
		t.Fatalf("err = %v, want InvalidArgument", err)
	}
}

func TestLoad_BadBBoxBecomesTransformFailure(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, `{"id":"ok","group_key":"A001","bbox":[0,0,1,1]}
{"id":"short","group_key":"A001","bbox":[0,0,1]}
{"id":"flat","group_key":"A001","bbox":[0,0,1,0]}
{"id":"inverted","group_key":"A001","bbox":[5,5,1,1]}
`)
	items, err := New(path).Load(context.Background())
	if err != nil {
		t.Fatalf("a bad bbox must not abort the load: %v", err)
	}
	if len(items) != 4 {
		t.Fatalf("got %d items, want 4", len(items))
	}
	if items[0].Err != nil {
		t.Fatalf("valid item marked failed: %v", items[0].Err)
	}
	for _, it := range items[1:] {
		if it.Err == nil {
			t.Fatalf("item %s should carry a transform failure", it.ID)
		}
		if it.FailedStep != ledger.StepTransform {
			t.Fatalf("item %s failed step = %s, want transform", it.ID, it.FailedStep)
		}
	}
}

func TestLoad_SkipsEmptyLines(t *testing.T) {
	t.Parallel()

	path := writeManifest(t, `{"id":"s1","group_key":"A001","bbox":[0,0,1,1]}

{"id":"s2","group_key":"A001","bbox":[0,0,2,2]}
`)
	items, err := New(path).Load(context.Background())
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("got %d items, want 2", len(items))
	}
}
