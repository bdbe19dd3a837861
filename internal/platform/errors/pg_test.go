package errors

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func pgErr(code string) error { return &pgconn.PgError{Code: code, Message: "server said no"} }

func TestDBErrorCode(t *testing.T) {
	t.Parallel()

	cases := []struct {
		state string
		want  ErrorCode
	}{
		{"23505", ErrorCodeDuplicateKey},
		{"42P01", ErrorCodeNotFound},
		{"23503", ErrorCodeInvalidArgument},
		{"22P02", ErrorCodeInvalidArgument},
		{"23502", ErrorCodeValidation},
		{"40P01", ErrorCodeDB},
		{"57P03", ErrorCodeUnavailable},
		{"XX000", ErrorCodeDB},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.state, func(t *testing.T) {
			t.Parallel()
			code, ok := DBErrorCode(pgErr(tc.state))
			if !ok {
				t.Fatalf("DBErrorCode must recognize a PgError")
			}
			if code != tc.want {
				t.Fatalf("code = %d, want %d", code, tc.want)
			}
		})
	}

	if _, ok := DBErrorCode(fmt.Errorf("not a pg error")); ok {
		t.Fatalf("plain errors must not be classified")
	}
}

func TestFromPostgres_MapsThroughWrapping(t *testing.T) {
	t.Parallel()

	wrapped := fmt.Errorf("tx: %w", pgErr("23505"))
	err := FromPostgresf(wrapped, "insert into %s", "bbox_p_a001")
	if !IsCode(err, ErrorCodeDuplicateKey) {
		t.Fatalf("code = %d, want DuplicateKey", CodeOf(err))
	}
	if !IsDuplicateKey(err) {
		t.Fatalf("IsDuplicateKey must see through the wrap")
	}

	if FromPostgres(nil, "noop") != nil {
		t.Fatalf("FromPostgres(nil) must be nil")
	}
}

func TestIsUndefinedTable(t *testing.T) {
	t.Parallel()

	err := FromPostgres(pgErr("42P01"), "scan overlap groups")
	if !IsUndefinedTable(err) {
		t.Fatalf("42P01 must report as undefined table")
	}
	if !IsCode(err, ErrorCodeNotFound) {
		t.Fatalf("undefined table maps to NotFound, got %d", CodeOf(err))
	}
}

func TestIsRetryable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadlock", pgErr("40P01"), true},
		{"serialization", pgErr("40001"), true},
		{"unique violation", pgErr("23505"), false},
		{"context canceled", context.Canceled, false},
		{"deadline", fmt.Errorf("query: %w", context.DeadlineExceeded), false},
		{"commit rollback text", fmt.Errorf("commit unexpectedly resulted in rollback"), true},
		{"plain", fmt.Errorf("disk full"), false},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			if got := IsRetryable(tc.err); got != tc.want {
				t.Fatalf("IsRetryable = %v, want %v", got, tc.want)
			}
		})
	}
}
