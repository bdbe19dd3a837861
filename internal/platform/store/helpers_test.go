package store

import (
	"context"
	"fmt"
	"testing"

	"gridhot/internal/platform/testkit"
)

type memRows struct {
	data []string
	idx  int
	err  error
}

func (m *memRows) Next() bool { m.idx++; return m.idx <= len(m.data) }
func (m *memRows) Scan(dest ...any) error {
	*(dest[0].(*string)) = m.data[m.idx-1]
	return nil
}
func (m *memRows) Err() error { return m.err }
func (m *memRows) Close()     {}

type memRow struct{ n int }

func (r memRow) Scan(dest ...any) error {
	*(dest[0].(*int)) = r.n
	return nil
}

type memQueryer struct {
	rows     *memRows
	queryErr error
	scalar   int
}

func (m memQueryer) Exec(context.Context, string, ...any) (CommandTag, error) { return nil, nil }

func (m memQueryer) Query(context.Context, string, ...any) (Rows, error) {
	if m.queryErr != nil {
		return nil, m.queryErr
	}
	return m.rows, nil
}

func (m memQueryer) QueryRow(context.Context, string, ...any) Row { return memRow{n: m.scalar} }

func TestScalar(t *testing.T) {
	t.Parallel()

	n, err := Scalar[int](context.Background(), memQueryer{scalar: 42}, "SELECT count(*) FROM t")
	if err != nil {
		t.Fatalf("Scalar: %v", err)
	}
	if n != 42 {
		t.Fatalf("n = %d, want 42", n)
	}
}

func TestMany_MapsEveryRow(t *testing.T) {
	t.Parallel()

	q := memQueryer{rows: &memRows{data: []string{"a", "b", "c"}}}
	got, err := Many(context.Background(), q, func(r Row) (string, error) {
		var s string
		err := r.Scan(&s)
		return s + "!", err
	}, "SELECT x FROM t")
	if err != nil {
		t.Fatalf("Many: %v", err)
	}
	testkit.MustEqualStrings(t, got, []string{"a!", "b!", "c!"})
}

func TestMany_PropagatesQueryError(t *testing.T) {
	t.Parallel()

	q := memQueryer{queryErr: fmt.Errorf("relation missing")}
	if _, err := Many(context.Background(), q, func(Row) (string, error) { return "", nil }, "SELECT x"); err == nil {
		t.Fatalf("query errors must propagate")
	}
}

func TestMany_PropagatesScanError(t *testing.T) {
	t.Parallel()

	q := memQueryer{rows: &memRows{data: []string{"a"}}}
	_, err := Many(context.Background(), q, func(Row) (string, error) {
		return "", fmt.Errorf("bad column")
	}, "SELECT x")
	if err == nil {
		t.Fatalf("scan errors must propagate")
	}
}

func TestMany_PropagatesRowsError(t *testing.T) {
	t.Parallel()

	q := memQueryer{rows: &memRows{data: []string{"a"}, err: fmt.Errorf("torn stream")}}
	_, err := Many(context.Background(), q, func(r Row) (string, error) {
		var s string
		err := r.Scan(&s)
		return s, err
	}, "SELECT x")
	if err == nil {
		t.Fatalf("iteration errors must propagate")
	}
}

func TestStrings(t *testing.T) {
	t.Parallel()

	q := memQueryer{rows: &memRows{data: []string{"bbox_p_a001", "bbox_p_b009"}}}
	got, err := Strings(context.Background(), q, "SELECT tablename FROM pg_tables")
	if err != nil {
		t.Fatalf("Strings: %v", err)
	}
	testkit.MustEqualStrings(t, got, []string{"bbox_p_a001", "bbox_p_b009"})
}
