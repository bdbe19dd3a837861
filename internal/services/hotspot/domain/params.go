package domain

import (
	"encoding/json"
	"strconv"
	"strings"
)

// ParseParams decodes a serialized analysis-parameters payload into a flat
// string mapping. It never fails: a malformed payload resolves to an empty
// map, so a single corrupt row cannot abort a run.
//
// Two encodings are accepted: a JSON object (scalar values are stringified,
// nested values ignored) and a k=v list separated by ';'
func ParseParams(payload string) map[string]string {
	out := make(map[string]string)
	p := strings.TrimSpace(payload)
	if p == "" {
		return out
	}

	if strings.HasPrefix(p, "{") {
		var m map[string]any
		if err := json.Unmarshal([]byte(p), &m); err != nil {
			return out
		}
		for k, v := range m {
			switch t := v.(type) {
			case string:
				out[k] = t
			case float64:
				out[k] = strconv.FormatFloat(t, 'f', -1, 64)
			case bool:
				out[k] = strconv.FormatBool(t)
			case nil:
				// skip
			}
		}
		return out
	}

	for _, pair := range strings.Split(p, ";") {
		k, v, ok := strings.Cut(pair, "=")
		if !ok {
			continue
		}
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		out[k] = strings.TrimSpace(v)
	}
	return out
}

// CellOf extracts the grid position from a parsed payload.
// ok is false when either coordinate is missing or non-numeric
func CellOf(params map[string]string) (x, y int, ok bool) {
	sx, okx := params["cell_x"]
	sy, oky := params["cell_y"]
	if !okx || !oky {
		return 0, 0, false
	}
	x, errx := strconv.Atoi(sx)
	y, erry := strconv.Atoi(sy)
	if errx != nil || erry != nil {
		return 0, 0, false
	}
	return x, y, true
}
