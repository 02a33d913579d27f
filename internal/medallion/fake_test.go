package medallion

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakePool is a function-field fake Execer, the same ConnectorFuncs-style
// pattern the executor package's tests use: every method defers to an
// optional test-supplied func and falls back to an always-succeeds default.
type fakePool struct {
	mu sync.Mutex

	ExecFunc     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRowFunc func(ctx context.Context, sql string, args ...any) pgx.Row
	BeginFunc    func(ctx context.Context) (pgx.Tx, error)

	execs     []string
	batchRows int
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	p.mu.Lock()
	p.execs = append(p.execs, sql)
	p.mu.Unlock()
	if p.ExecFunc != nil {
		return p.ExecFunc(ctx, sql, args...)
	}
	return pgconn.NewCommandTag("OK"), nil
}

func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, errors.New("fakePool: Query not supported")
}

func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	if p.QueryRowFunc != nil {
		return p.QueryRowFunc(ctx, sql, args...)
	}
	return fakeRow{err: pgx.ErrNoRows}
}

func (p *fakePool) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	n := b.Len()
	p.mu.Lock()
	p.batchRows += n
	p.mu.Unlock()
	return &fakeBatchResults{}
}

func (p *fakePool) Begin(ctx context.Context) (pgx.Tx, error) {
	if p.BeginFunc != nil {
		return p.BeginFunc(ctx)
	}
	return &fakeTx{pool: p}, nil
}

// execCount returns how many Exec calls so far contain substr, for
// assertions that a DDL statement only ran once across repeated writes.
func (p *fakePool) execCount(substr string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, s := range p.execs {
		if strings.Contains(s, substr) {
			n++
		}
	}
	return n
}

// fakeRow implements pgx.Row over a fixed scan result or error.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if i >= len(r.values) {
			continue
		}
		switch p := d.(type) {
		case *bool:
			*p = r.values[i].(bool)
		case *string:
			*p = r.values[i].(string)
		}
	}
	return nil
}

// fakeBatchResults implements pgx.BatchResults, succeeding for every
// queued statement.
type fakeBatchResults struct{}

func (b *fakeBatchResults) Exec() (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}
func (b *fakeBatchResults) Query() (pgx.Rows, error) { return nil, errors.New("not supported") }
func (b *fakeBatchResults) QueryRow() pgx.Row        { return fakeRow{err: pgx.ErrNoRows} }
func (b *fakeBatchResults) Close() error             { return nil }

// fakeTx implements pgx.Tx by forwarding reads/writes to the owning pool
// and treating Commit/Rollback as no-ops. Methods none of the medallion
// writers call panic so an unexpected dependency surfaces immediately
// rather than silently returning zero values.
type fakeTx struct {
	pool *fakePool
}

func (t *fakeTx) Begin(ctx context.Context) (pgx.Tx, error) { return t.pool.Begin(ctx) }
func (t *fakeTx) Commit(ctx context.Context) error           { return nil }
func (t *fakeTx) Rollback(ctx context.Context) error          { return nil }

func (t *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.pool.Exec(ctx, sql, args...)
}
func (t *fakeTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return t.pool.Query(ctx, sql, args...)
}
func (t *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.pool.QueryRow(ctx, sql, args...)
}
func (t *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	return t.pool.SendBatch(ctx, b)
}
func (t *fakeTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("fakeTx: CopyFrom not supported")
}
func (t *fakeTx) LargeObjects() pgx.LargeObjects { panic("fakeTx: LargeObjects not supported") }
func (t *fakeTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("fakeTx: Prepare not supported")
}
func (t *fakeTx) QueryFunc(ctx context.Context, sql string, args []any, scans []any, f func(pgx.QueryFuncRow) error) (pgconn.CommandTag, error) {
	panic("fakeTx: QueryFunc not supported")
}
func (t *fakeTx) Conn() *pgx.Conn { panic("fakeTx: Conn not supported") }
