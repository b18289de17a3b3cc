package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

type schedulerFixture struct {
	svc        QuerySchedulerService
	src        *models.ExternalSource
	queries    *mockGeneratedQueryRepository
	transactor *mockTransactor
}

func newSchedulerFixture() *schedulerFixture {
	src := newTestSource(testActor)
	queries := newMockGeneratedQueryRepository()
	tx := &mockTransactor{}
	return &schedulerFixture{
		svc:        NewQuerySchedulerService(newMockExternalSourceRepository(src), queries, tx, zap.NewNop()),
		src:        src,
		queries:    queries,
		transactor: tx,
	}
}

func queryIDs(qs []*models.GeneratedQuery) []uuid.UUID {
	out := make([]uuid.UUID, len(qs))
	for i, q := range qs {
		out[i] = q.ID
	}
	return out
}

func TestQueryScheduler_FirstBatchMix(t *testing.T) {
	f := newSchedulerFixture()
	timeBased := f.queries.seed(f.src.ID, testActor.ActorID, 8, true, false, false)
	plain := f.queries.seed(f.src.ID, testActor.ActorID, 8, false, false, false)

	batch, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err)
	require.Len(t, batch, BatchSize)

	want := append(queryIDs(timeBased[:MaxTimeBasedPerBatch]), queryIDs(plain[:BatchSize-MaxTimeBasedPerBatch])...)
	assert.Equal(t, want, queryIDs(batch), "oldest time-based first, then oldest non-time-based")
	for _, q := range batch {
		assert.True(t, q.IsSent)
	}

	count, _ := f.queries.CountSentGenerated(context.Background(), testActor.ActorID, f.src.ID)
	assert.Equal(t, BatchSize, count)
	assert.Equal(t, 1, f.queries.lockCalls)
	assert.Equal(t, 1, f.transactor.calls)
}

func TestQueryScheduler_FillsWithNonTimeBased(t *testing.T) {
	f := newSchedulerFixture()
	f.queries.seed(f.src.ID, testActor.ActorID, 2, true, false, false)
	f.queries.seed(f.src.ID, testActor.ActorID, 20, false, false, false)

	batch, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err)
	require.Len(t, batch, BatchSize)

	timeBased := 0
	for _, q := range batch {
		if q.IsTimeBased {
			timeBased++
		}
	}
	assert.Equal(t, 2, timeBased)
}

func TestQueryScheduler_ResponseIncludesPreviouslySent(t *testing.T) {
	f := newSchedulerFixture()
	f.queries.seed(f.src.ID, testActor.ActorID, 25, false, false, false)

	first, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err)
	second, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err)

	require.Len(t, second, 2*BatchSize)
	assert.Equal(t, queryIDs(first), queryIDs(second[:BatchSize]), "previously sent come first")

	third, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err)
	assert.Len(t, third, 25, "partial final batch")
}

func TestQueryScheduler_IdempotentWhenPoolEmpty(t *testing.T) {
	f := newSchedulerFixture()
	f.queries.seed(f.src.ID, testActor.ActorID, 4, false, false, false)

	first, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err)
	second, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err)

	assert.Equal(t, queryIDs(first), queryIDs(second))
}

func TestQueryScheduler_QuotaExhausted(t *testing.T) {
	f := newSchedulerFixture()
	f.queries.seed(f.src.ID, testActor.ActorID, 45, false, false, false)

	for i := 0; i < MaxSentQueries/BatchSize; i++ {
		_, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
		require.NoError(t, err)
	}

	for i := 0; i < 3; i++ {
		batch, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
		assert.ErrorIs(t, err, apperrors.ErrQuotaExhausted)
		assert.Nil(t, batch)
	}
}

func TestQueryScheduler_UserGeneratedOutsideQuota(t *testing.T) {
	f := newSchedulerFixture()
	f.queries.seed(f.src.ID, testActor.ActorID, 29, false, false, true)
	adhoc := f.queries.seed(f.src.ID, testActor.ActorID, 5, false, true, true)
	f.queries.seed(f.src.ID, testActor.ActorID, 5, false, false, false)

	batch, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err, "29 generated sent is below the quota")
	assert.Len(t, batch, 29+5+5)
	assert.Subset(t, queryIDs(batch), queryIDs(adhoc))

	count, _ := f.queries.CountSentGenerated(context.Background(), testActor.ActorID, f.src.ID)
	assert.Equal(t, 34, count)

	_, err = f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	assert.ErrorIs(t, err, apperrors.ErrQuotaExhausted)
}

func TestQueryScheduler_UserGeneratedNeverSelected(t *testing.T) {
	f := newSchedulerFixture()
	f.queries.seed(f.src.ID, testActor.ActorID, 3, false, true, false)

	_, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	assert.ErrorIs(t, err, apperrors.ErrNothingAvailable)
}

func TestQueryScheduler_NothingAvailable(t *testing.T) {
	f := newSchedulerFixture()

	_, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	assert.ErrorIs(t, err, apperrors.ErrNothingAvailable)
}

func TestQueryScheduler_PairsAreIndependent(t *testing.T) {
	f := newSchedulerFixture()
	f.queries.seed(f.src.ID, testActor.ActorID, 3, false, false, false)
	f.queries.seed(f.src.ID, otherActor.ActorID, 3, false, false, false)

	batch, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err)
	for _, q := range batch {
		assert.Equal(t, testActor.ActorID, q.ActorID)
	}
}

func TestQueryScheduler_RejectsForeignSource(t *testing.T) {
	f := newSchedulerFixture()
	f.queries.seed(f.src.ID, testActor.ActorID, 3, false, false, false)

	_, err := f.svc.NextBatch(context.Background(), otherActor, f.src.ID)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.Equal(t, 0, f.queries.lockCalls)
}

func TestQueryScheduler_MarkFailureReturnsError(t *testing.T) {
	f := newSchedulerFixture()
	f.queries.seed(f.src.ID, testActor.ActorID, 3, false, false, false)
	f.queries.markErr = errors.New("connection lost")

	_, err := f.svc.NextBatch(context.Background(), testActor, f.src.ID)
	assert.Error(t, err)
}

func TestQueryScheduler_CurrentBatch(t *testing.T) {
	f := newSchedulerFixture()
	f.queries.seed(f.src.ID, testActor.ActorID, 15, false, false, false)

	first, err := f.svc.CurrentBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err)
	assert.Len(t, first, BatchSize, "first visit releases a batch")

	again, err := f.svc.CurrentBatch(context.Background(), testActor, f.src.ID)
	require.NoError(t, err)
	assert.Equal(t, queryIDs(first), queryIDs(again), "later visits return what was sent")
	assert.Equal(t, 1, f.transactor.calls)
}
