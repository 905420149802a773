package postgres_test

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// rowStub implements pgx.Row.
type rowStub struct{ scan func(dest ...any) error }

func (r rowStub) Scan(dest ...any) error { return r.scan(dest...) }

// rowsStub implements pgx.Rows over a list of per-row scan closures.
type rowsStub struct {
	rows []func(dest ...any) error
	idx  int
	err  error
}

func (r *rowsStub) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}

func (r *rowsStub) Scan(dest ...any) error { return r.rows[r.idx-1](dest...) }

func (r *rowsStub) Close() {}

func (r *rowsStub) Err() error { return r.err }

func (r *rowsStub) CommandTag() pgconn.CommandTag { return pgconn.CommandTag{} }

func (r *rowsStub) FieldDescriptions() []pgconn.FieldDescription { return nil }

func (r *rowsStub) Values() ([]any, error) { return nil, nil }

func (r *rowsStub) RawValues() [][]byte { return nil }

func (r *rowsStub) Conn() *pgx.Conn { return nil }

// poolStub implements postgres.PgxPool for tests. Each hook also records the
// SQL and args it was called with so assertions can inspect them.
type poolStub struct {
	exec  func(sql string, args ...any) (pgconn.CommandTag, error)
	row   func(sql string, args ...any) pgx.Row
	query func(sql string, args ...any) (pgx.Rows, error)

	execSQL  []string
	execArgs [][]any
}

func (p *poolStub) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.execSQL = append(p.execSQL, sql)
	p.execArgs = append(p.execArgs, args)
	if p.exec == nil {
		return pgconn.NewCommandTag("INSERT 0 1"), nil
	}
	return p.exec(sql, args...)
}

func (p *poolStub) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if p.row == nil {
		return rowStub{scan: func(...any) error { return errors.New("no row configured") }}
	}
	return p.row(sql, args...)
}

func (p *poolStub) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if p.query == nil {
		return nil, errors.New("no query configured")
	}
	return p.query(sql, args...)
}

func (p *poolStub) BeginTx(context.Context, pgx.TxOptions) (pgx.Tx, error) {
	return nil, errors.New("not implemented")
}

// set copies v into a *T scan destination.
func set[T any](dest any, v T) {
	if p, ok := dest.(*T); ok {
		*p = v
	}
}
