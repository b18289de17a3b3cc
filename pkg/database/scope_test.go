package database

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
	commitErr  error
}

func (t *fakeTx) Commit(ctx context.Context) error {
	t.committed = true
	return t.commitErr
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	t.rolledBack = true
	return nil
}

type fakeConn struct {
	Querier
	tx    *fakeTx
	begun int
}

func (c *fakeConn) Begin(ctx context.Context) (pgx.Tx, error) {
	c.begun++
	return c.tx, nil
}

func newFakeScope() (context.Context, *fakeConn) {
	conn := &fakeConn{tx: &fakeTx{}}
	return SetScope(context.Background(), NewScope(conn)), conn
}

func TestWithTx_RequiresScope(t *testing.T) {
	err := WithTx(context.Background(), func(ctx context.Context) error { return nil })
	assert.Error(t, err)
}

func TestWithTx_Commits(t *testing.T) {
	ctx, conn := newFakeScope()

	err := NewTransactor().WithTx(ctx, func(ctx context.Context) error {
		scope, ok := GetScope(ctx)
		require.True(t, ok)
		assert.True(t, scope.InTx())
		return nil
	})

	require.NoError(t, err)
	assert.True(t, conn.tx.committed)
	assert.False(t, conn.tx.rolledBack)
}

func TestWithTx_RollsBackOnError(t *testing.T) {
	ctx, conn := newFakeScope()
	boom := errors.New("boom")

	err := WithTx(ctx, func(ctx context.Context) error { return boom })

	assert.ErrorIs(t, err, boom)
	assert.False(t, conn.tx.committed)
	assert.True(t, conn.tx.rolledBack)
}

func TestWithTx_RollsBackOnPanic(t *testing.T) {
	ctx, conn := newFakeScope()

	assert.Panics(t, func() {
		_ = WithTx(ctx, func(ctx context.Context) error { panic("boom") })
	})
	assert.True(t, conn.tx.rolledBack)
}

func TestWithTx_CommitFailureRollsBack(t *testing.T) {
	ctx, conn := newFakeScope()
	conn.tx.commitErr = errors.New("serialization failure")

	err := WithTx(ctx, func(ctx context.Context) error { return nil })

	assert.ErrorIs(t, err, conn.tx.commitErr)
	assert.True(t, conn.tx.rolledBack)
}

func TestWithTx_NestedJoinsOuter(t *testing.T) {
	ctx, conn := newFakeScope()

	err := WithTx(ctx, func(ctx context.Context) error {
		return WithTx(ctx, func(ctx context.Context) error { return nil })
	})

	require.NoError(t, err)
	assert.Equal(t, 1, conn.begun)
}

func TestScope_CloseReleasesOnce(t *testing.T) {
	released := 0
	scope := &Scope{release: func() { released++ }}

	scope.Close()
	scope.Close()

	assert.Equal(t, 1, released)
	assert.False(t, scope.InTx())
}
