package domain

import (
	"testing"

	"gridhot/internal/platform/testkit"
)

func TestParseParams_JSONObject(t *testing.T) {
	t.Parallel()

	got := ParseParams(`{"group":"a001","cell_x":3,"cell_y":7.0,"wet":true,"note":null}`)
	want := map[string]string{
		"group":  "a001",
		"cell_x": "3",
		"cell_y": "7",
		"wet":    "true",
	}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for k, v := range want {
		if got[k] != v {
			t.Fatalf("key %q = %q, want %q", k, got[k], v)
		}
	}
}

func TestParseParams_KVList(t *testing.T) {
	t.Parallel()

	got := ParseParams("group=a001; cell_x=3 ;cell_y=7")
	if got["group"] != "a001" || got["cell_x"] != "3" || got["cell_y"] != "7" {
		t.Fatalf("got %v", got)
	}
}

func TestParseParams_NeverFails(t *testing.T) {
	t.Parallel()

	payloads := []string{
		"",
		"   ",
		`{"broken`,
		`{"nested":{"x":1}}`,
		"=value;=other",
		"justtext",
		";;;",
		`[1,2,3]`,
	}
	for _, p := range payloads {
		var got map[string]string
		testkit.MustNotPanic(t, func() { got = ParseParams(p) })
		if got == nil {
			t.Fatalf("ParseParams(%q) returned nil map", p)
		}
	}

	// nested values are ignored, not errors
	if got := ParseParams(`{"nested":{"x":1},"flat":"ok"}`); got["flat"] != "ok" {
		t.Fatalf("flat key lost next to nested value: %v", got)
	}
	if len(ParseParams(`{"broken`)) != 0 {
		t.Fatalf("malformed JSON must resolve to an empty map")
	}
}

func TestCellOf(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name   string
		params map[string]string
		x, y   int
		ok     bool
	}{
		{"present", map[string]string{"cell_x": "4", "cell_y": "-2"}, 4, -2, true},
		{"missing x", map[string]string{"cell_y": "1"}, 0, 0, false},
		{"missing y", map[string]string{"cell_x": "1"}, 0, 0, false},
		{"non numeric", map[string]string{"cell_x": "four", "cell_y": "2"}, 0, 0, false},
		{"empty map", map[string]string{}, 0, 0, false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			x, y, ok := CellOf(tc.params)
			if x != tc.x || y != tc.y || ok != tc.ok {
				t.Fatalf("CellOf(%v) = (%d, %d, %v), want (%d, %d, %v)", tc.params, x, y, ok, tc.x, tc.y, tc.ok)
			}
		})
	}
}
