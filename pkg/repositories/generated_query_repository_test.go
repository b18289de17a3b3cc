//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/database"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

func ids(queries []*models.GeneratedQuery) []uuid.UUID {
	out := make([]uuid.UUID, len(queries))
	for i, q := range queries {
		out[i] = q.ID
	}
	return out
}

func TestGeneratedQueryRepository_CreateBatchPreservesOrder(t *testing.T) {
	ctx, _ := setupRepoTest(t)
	repo := NewGeneratedQueryRepository()
	src := createTestSource(t, ctx, testActor)

	created, err := repo.CreateBatch(ctx, src.ID, testActor.ActorID, []models.QueryCandidate{
		{Query: "SELECT 1, 1", Explanation: "first", Relevance: 0.9, ChartType: "bar"},
		{Query: "SELECT 2, 2", Explanation: "second", Relevance: 0.4, IsTimeBased: true, ChartType: "line"},
	}, false, false)
	require.NoError(t, err)
	require.Len(t, created, 2)

	listed, err := repo.ListBySource(ctx, testActor.ActorID, src.ID)
	require.NoError(t, err)
	require.Len(t, listed, 2)
	assert.Equal(t, "first", listed[0].Explanation)
	assert.Equal(t, "second", listed[1].Explanation)
	assert.True(t, listed[1].IsTimeBased)
	assert.False(t, listed[0].IsSent)
	assert.False(t, listed[0].IsUserGenerated)
}

func TestGeneratedQueryRepository_RejectsOutOfRangeRelevance(t *testing.T) {
	ctx, _ := setupRepoTest(t)
	src := createTestSource(t, ctx, testActor)

	_, err := NewGeneratedQueryRepository().CreateBatch(ctx, src.ID, testActor.ActorID,
		[]models.QueryCandidate{{Query: "SELECT 1, 1", Relevance: 1.5}}, false, false)
	assert.Error(t, err)
}

func TestGeneratedQueryRepository_SentBookkeeping(t *testing.T) {
	ctx, _ := setupRepoTest(t)
	repo := NewGeneratedQueryRepository()
	src := createTestSource(t, ctx, testActor)

	timeBased := createTestQueries(t, ctx, src, true, 3)
	plain := createTestQueries(t, ctx, src, false, 2)

	// A user-generated query is delivered on creation and not counted toward the quota.
	_, err := repo.CreateBatch(ctx, src.ID, testActor.ActorID,
		[]models.QueryCandidate{{Query: "SELECT a, b FROM t"}}, true, true)
	require.NoError(t, err)

	count, err := repo.CountSentGenerated(ctx, testActor.ActorID, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	candidates, err := repo.ListUnsentCandidates(ctx, testActor.ActorID, src.ID, true, 2)
	require.NoError(t, err)
	assert.Equal(t, ids(timeBased[:2]), ids(candidates))

	require.NoError(t, repo.MarkSent(ctx, ids(candidates)))
	require.NoError(t, repo.MarkSent(ctx, ids(plain[:1])))

	count, err = repo.CountSentGenerated(ctx, testActor.ActorID, src.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)

	sent, err := repo.ListSent(ctx, testActor.ActorID, src.ID)
	require.NoError(t, err)
	assert.Len(t, sent, 4)

	remaining, err := repo.ListUnsentCandidates(ctx, testActor.ActorID, src.ID, true, 10)
	require.NoError(t, err)
	assert.Equal(t, ids(timeBased[2:]), ids(remaining))
}

func TestGeneratedQueryRepository_SentIsMonotonic(t *testing.T) {
	ctx, mdb := setupRepoTest(t)
	src := createTestSource(t, ctx, testActor)
	q := createTestQueries(t, ctx, src, false, 1)[0]

	require.NoError(t, NewGeneratedQueryRepository().MarkSent(ctx, []uuid.UUID{q.ID}))

	_, err := mdb.DB.Exec(ctx, `UPDATE generated_queries SET is_sent = false WHERE id = $1`, q.ID)
	assert.Error(t, err)
}

func TestGeneratedQueryRepository_ListUnsentCandidatesLocksInTx(t *testing.T) {
	ctx, _ := setupRepoTest(t)
	repo := NewGeneratedQueryRepository()
	src := createTestSource(t, ctx, testActor)
	createTestQueries(t, ctx, src, false, 2)

	err := database.WithTx(ctx, func(ctx context.Context) error {
		got, err := repo.ListUnsentCandidates(ctx, testActor.ActorID, src.ID, false, 5)
		if err != nil {
			return err
		}
		assert.Len(t, got, 2)
		return nil
	})
	require.NoError(t, err)
}

func TestGeneratedQueryRepository_LockDelivery(t *testing.T) {
	ctx, _ := setupRepoTest(t)
	repo := NewGeneratedQueryRepository()
	src := createTestSource(t, ctx, testActor)

	assert.Error(t, repo.LockDelivery(ctx, testActor.ActorID, src.ID), "lock outside a transaction must fail")

	err := database.WithTx(ctx, func(ctx context.Context) error {
		return repo.LockDelivery(ctx, testActor.ActorID, src.ID)
	})
	require.NoError(t, err)
}

func TestGeneratedQueryRepository_GetAndUpdate(t *testing.T) {
	ctx, _ := setupRepoTest(t)
	repo := NewGeneratedQueryRepository()
	src := createTestSource(t, ctx, testActor)
	q := createTestQueries(t, ctx, src, true, 1)[0]

	require.NoError(t, repo.UpdateQueryText(ctx, q.ID, "SELECT d, n FROM t WHERE d >= '2024-01-01'"))

	got, err := repo.GetByID(ctx, q.ID)
	require.NoError(t, err)
	assert.Equal(t, "SELECT d, n FROM t WHERE d >= '2024-01-01'", got.QueryText)

	found, err := repo.GetByIDs(ctx, []uuid.UUID{uuid.New(), q.ID})
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{q.ID}, ids(found))

	_, err = repo.GetByID(ctx, uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.ErrorIs(t, repo.UpdateQueryText(ctx, uuid.New(), "x"), apperrors.ErrNotFound)
}
