package store

import (
	"context"
	"errors"
	"time"

	"gridhot/internal/platform/store/pg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// pgxQuerier is the statement surface shared by *pgxpool.Pool and pgx.Tx.
// Running both through one session keeps tracing identical inside and
// outside transactions
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// session executes statements against one pgx querier and reports each to
// the tracer, when one is configured, with elapsed time and a slow flag
type session struct {
	q      pgxQuerier
	tracer pg.QueryTracer
	slowUS int64
}

func (s session) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	start := time.Now()
	ct, err := s.q.Exec(ctx, sql, args...)
	s.emit(ctx, sql, args, start, err)
	return tag{ct}, err
}

func (s session) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	start := time.Now()
	rs, err := s.q.Query(ctx, sql, args...)
	s.emit(ctx, sql, args, start, err)
	if err != nil {
		return nil, err
	}
	return rows{r: rs}, nil
}

func (s session) QueryRow(ctx context.Context, sql string, args ...any) Row {
	start := time.Now()
	r := s.q.QueryRow(ctx, sql, args...)
	// the event is emitted after Scan so it carries the scan error
	return row{
		r: r,
		after: func(scanErr error) {
			s.emit(ctx, sql, args, start, scanErr)
		},
	}
}

func (s session) emit(ctx context.Context, sql string, args []any, start time.Time, err error) {
	if s.tracer == nil {
		return
	}
	elapsedUS := time.Since(start).Microseconds()
	s.tracer.OnQuery(ctx, pg.QueryEvent{
		SQL:       sql,
		Args:      args,
		ElapsedUS: elapsedUS,
		Err:       err,
		Slow:      s.slowUS > 0 && elapsedUS >= s.slowUS,
	})
}

// pgAdapter owns the pool and adds lifecycle plus transactions on top of the
// embedded pool session
type pgAdapter struct {
	p *pg.PG
	session
}

func newPGAdapter(p *pg.PG) *pgAdapter {
	return &pgAdapter{
		p:       p,
		session: session{q: p.Pool, tracer: p.Tracer, slowUS: int64(p.SlowMs) * 1000},
	}
}

func (a *pgAdapter) Ping(ctx context.Context) error {
	if a == nil {
		return errors.New("pg: nil adapter")
	}
	var one int
	return a.QueryRow(ctx, "SELECT 1").Scan(&one)
}

func (a *pgAdapter) Close() error { a.p.Close(); return nil }

func (a *pgAdapter) Tx(ctx context.Context, fn func(q RowQuerier) error) error {
	tx, err := a.p.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	if err := fn(session{q: tx, tracer: a.tracer, slowUS: a.slowUS}); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// adapters for pgx results to the store contracts

type row struct {
	r     pgx.Row
	after func(error)
}

func (x row) Scan(dst ...any) error {
	err := x.r.Scan(dst...)
	if x.after != nil {
		x.after(err)
	}
	return err
}

type rows struct{ r pgx.Rows }

func (x rows) Next() bool            { return x.r.Next() }
func (x rows) Scan(dst ...any) error { return x.r.Scan(dst...) }
func (x rows) Err() error            { return x.r.Err() }
func (x rows) Close()                { x.r.Close() }

type tag struct{ t pgconn.CommandTag }

func (t tag) RowsAffected() int64 { return t.t.RowsAffected() }
