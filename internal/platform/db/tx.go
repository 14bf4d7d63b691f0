package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/caseload/caseload/internal/platform/apperr"
)

type contextKey string

const txKey contextKey = "db_tx"

// Queryable is the subset of pgx shared by the pool and a transaction.
type Queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// TxFromContext returns the transaction opened by InTx, if any.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// Conn returns the transaction bound to ctx or falls back to the pool.
// Repositories call it for every statement so they join an outer InTx.
func Conn(ctx context.Context, pool *pgxpool.Pool) Queryable {
	if tx := TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

// TxRunner runs fn as one logical unit of work.
type TxRunner interface {
	InTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolTx implements TxRunner on a pgx pool.
type PoolTx struct{ Pool *pgxpool.Pool }

func NewTxRunner(pool *pgxpool.Pool) *PoolTx { return &PoolTx{Pool: pool} }

// InTx begins a transaction, binds it to the context passed to fn and commits
// when fn returns nil. Nested calls reuse the outer transaction.
func (p *PoolTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		return fn(ctx)
	}
	tx, err := p.Pool.Begin(ctx)
	if err != nil {
		return apperr.Dependency("begin transaction", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return apperr.Dependency("commit transaction", err)
	}
	return nil
}

// NoTx runs fn directly. It backs in-memory repositories in tests and dev tools.
type NoTx struct{}

func (NoTx) InTx(ctx context.Context, fn func(ctx context.Context) error) error { return fn(ctx) }
