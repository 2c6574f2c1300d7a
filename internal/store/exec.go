package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/sells-group/teamresolve/internal/db"
)

// errNoRows is what every executor returns from Scan on an empty result.
var errNoRows = errors.New("store: no rows")

type rowScanner interface {
	Scan(dest ...any) error
}

type rowsScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// executor is the statement surface shared by pools and transactions of both
// drivers. Queries use $n placeholders.
type executor interface {
	exec(ctx context.Context, q string, args ...any) (int64, error)
	query(ctx context.Context, q string, args ...any) (rowsScanner, error)
	queryRow(ctx context.Context, q string, args ...any) rowScanner
}

type txExecutor interface {
	executor
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

// --- pgx ---

type pgxExec struct {
	q interface {
		Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
		QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	}
	execFn func(ctx context.Context, sql string, args ...any) (int64, error)
}

func newPgxPoolExec(p db.Pool) *pgxExec {
	return &pgxExec{q: p, execFn: func(ctx context.Context, sql string, args ...any) (int64, error) {
		tag, err := p.Exec(ctx, sql, args...)
		return tag.RowsAffected(), err
	}}
}

func newPgxTxExec(tx pgx.Tx) *pgxTx {
	return &pgxTx{
		pgxExec: pgxExec{q: tx, execFn: func(ctx context.Context, sql string, args ...any) (int64, error) {
			tag, err := tx.Exec(ctx, sql, args...)
			return tag.RowsAffected(), err
		}},
		tx: tx,
	}
}

func (e *pgxExec) exec(ctx context.Context, q string, args ...any) (int64, error) {
	return e.execFn(ctx, q, args...)
}

func (e *pgxExec) query(ctx context.Context, q string, args ...any) (rowsScanner, error) {
	rows, err := e.q.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (e *pgxExec) queryRow(ctx context.Context, q string, args ...any) rowScanner {
	return pgxRow{e.q.QueryRow(ctx, q, args...)}
}

type pgxRow struct{ row pgx.Row }

func (r pgxRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, pgx.ErrNoRows) {
		return errNoRows
	}
	return err
}

type pgxTx struct {
	pgxExec
	tx pgx.Tx
}

func (t *pgxTx) commit(ctx context.Context) error   { return t.tx.Commit(ctx) }
func (t *pgxTx) rollback(ctx context.Context) error { return t.tx.Rollback(ctx) }

// --- database/sql ---

// sqlQuerier is implemented by both *sql.DB and *sql.Tx.
type sqlQuerier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type sqlExec struct {
	q sqlQuerier
}

func (e *sqlExec) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := e.q.ExecContext(ctx, rebind(q), args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (e *sqlExec) query(ctx context.Context, q string, args ...any) (rowsScanner, error) {
	rows, err := e.q.QueryContext(ctx, rebind(q), args...)
	if err != nil {
		return nil, err
	}
	return sqlRows{rows}, nil
}

func (e *sqlExec) queryRow(ctx context.Context, q string, args ...any) rowScanner {
	return sqlRow{e.q.QueryRowContext(ctx, rebind(q), args...)}
}

type sqlRow struct{ row *sql.Row }

func (r sqlRow) Scan(dest ...any) error {
	err := r.row.Scan(dest...)
	if errors.Is(err, sql.ErrNoRows) {
		return errNoRows
	}
	return err
}

type sqlRows struct{ *sql.Rows }

func (r sqlRows) Close() { _ = r.Rows.Close() }

type sqlTx struct {
	sqlExec
	tx *sql.Tx
}

func (t *sqlTx) commit(context.Context) error   { return t.tx.Commit() }
func (t *sqlTx) rollback(context.Context) error { return t.tx.Rollback() }

var placeholderRe = regexp.MustCompile(`\$(\d+)`)

// rebind rewrites $n placeholders to SQLite's ?n form.
func rebind(q string) string {
	return placeholderRe.ReplaceAllString(q, "?$1")
}

// placeholders returns "$start, $start+1, ..." for n arguments.
func placeholders(start, n int) string {
	parts := make([]string, n)
	for i := range parts {
		parts[i] = fmt.Sprintf("$%d", start+i)
	}
	return strings.Join(parts, ", ")
}
