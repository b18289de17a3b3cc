package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of pgx shared by pooled connections and transactions.
// Repositories only ever talk to the metadata store through it.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Scope wraps the metadata connection bound to one unit of work.
// Inside WithTx, Conn is the transaction itself.
type Scope struct {
	Conn    Querier
	release func()
	inTx    bool
}

// NewScope wraps an existing Querier. Used by tests that manage their own connection.
func NewScope(conn Querier) *Scope {
	return &Scope{Conn: conn}
}

// Close releases the connection to the pool.
func (s *Scope) Close() {
	if s.release != nil {
		s.release()
		s.release = nil
	}
}

// InTx reports whether the scope is a transaction.
func (s *Scope) InTx() bool {
	return s.inTx
}

// Acquire takes a connection from the pool.
// The returned Scope MUST be closed with defer scope.Close().
func (db *DB) Acquire(ctx context.Context) (*Scope, error) {
	conn, err := db.Pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	return &Scope{Conn: conn, release: conn.Release}, nil
}

// WithTx runs fn in a transaction on the scope found in ctx. fn receives a
// context whose scope is the transaction, so repositories called from fn
// participate in it. The transaction is rolled back if fn returns an error or
// panics. Nested calls join the outer transaction.
func WithTx(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	scope, ok := GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}
	if scope.inTx {
		return fn(ctx)
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	if err = fn(SetScope(ctx, &Scope{Conn: tx, inTx: true})); err != nil {
		return err
	}

	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Transactor lets services open transactions without depending on a live pool.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

type scopeTransactor struct{}

// NewTransactor returns the Transactor backed by WithTx.
func NewTransactor() Transactor {
	return scopeTransactor{}
}

func (scopeTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return WithTx(ctx, fn)
}
