//go:build integration

package repositories

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/testhelpers"
)

var testActor = models.Actor{ActorID: "actor-1", RoleID: "role-analyst"}

// setupRepoTest truncates the metadata store and returns a scoped context.
func setupRepoTest(t *testing.T) (context.Context, *testhelpers.MetadataDB) {
	t.Helper()

	mdb := testhelpers.GetMetadataDB(t)
	mdb.Truncate(t)

	ctx, cleanup := mdb.WithScope(t)
	t.Cleanup(cleanup)
	return ctx, mdb
}

// createTestSource registers a source for the actor and returns it.
func createTestSource(t *testing.T, ctx context.Context, actor models.Actor) *models.ExternalSource {
	t.Helper()

	src := &models.ExternalSource{
		ActorID:          actor.ActorID,
		RoleID:           actor.RoleID,
		ConnectionString: "ciphertext",
		Dialect:          models.DialectPostgres,
		Domain:           "retail sales",
	}
	require.NoError(t, NewExternalSourceRepository().Upsert(ctx, src))
	return src
}

// createTestQueries stores n generated queries sharing the timeBased flag.
func createTestQueries(t *testing.T, ctx context.Context, src *models.ExternalSource, timeBased bool, n int) []*models.GeneratedQuery {
	t.Helper()

	candidates := make([]models.QueryCandidate, n)
	for i := range candidates {
		candidates[i] = models.QueryCandidate{
			Query:       "SELECT region, SUM(amt) FROM orders GROUP BY region",
			Explanation: "sales by region",
			Relevance:   0.8,
			IsTimeBased: timeBased,
			ChartType:   "bar",
		}
	}

	created, err := NewGeneratedQueryRepository().CreateBatch(ctx, src.ID, src.ActorID, candidates, false, false)
	require.NoError(t, err)
	require.Len(t, created, n)
	return created
}
