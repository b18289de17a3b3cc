package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-insights/pkg/auth"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/services"
)

var testActor = models.Actor{ActorID: "user-1", RoleID: "analyst"}

// withActor attaches the test actor the way the auth middleware would.
func withActor(r *http.Request) *http.Request {
	return r.WithContext(auth.WithActor(r.Context(), testActor))
}

// passthroughScope stands in for the database scope middleware.
func passthroughScope(next http.HandlerFunc) http.HandlerFunc { return next }

// staticAuthService authenticates every request as testActor.
type staticAuthService struct{}

func (staticAuthService) ValidateRequest(r *http.Request) (*auth.Claims, string, error) {
	return &auth.Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: testActor.ActorID},
		Role:             testActor.RoleID,
	}, "token", nil
}

type mockSourceService struct {
	source       *models.ExternalSource
	queries      []*models.GeneratedQuery
	err          error
	capturedReq  services.RegisterSourceRequest
	capturedID   uuid.UUID
	capturedText string
	imported     []models.QueryCandidate
}

var _ services.ExternalSourceService = (*mockSourceService)(nil)

func (m *mockSourceService) Register(ctx context.Context, actor models.Actor, req services.RegisterSourceRequest) (*models.ExternalSource, error) {
	m.capturedReq = req
	return m.source, m.err
}

func (m *mockSourceService) Get(ctx context.Context, actor models.Actor, sourceID uuid.UUID) (*models.ExternalSource, error) {
	m.capturedID = sourceID
	return m.source, m.err
}

func (m *mockSourceService) UpdateDomain(ctx context.Context, actor models.Actor, sourceID uuid.UUID, domain string) (*models.ExternalSource, error) {
	m.capturedID = sourceID
	m.capturedText = domain
	if m.err != nil {
		return nil, m.err
	}
	updated := *m.source
	updated.Domain = domain
	return &updated, nil
}

func (m *mockSourceService) GenerateQueries(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	m.capturedID = sourceID
	return m.queries, m.err
}

func (m *mockSourceService) ImportQueries(ctx context.Context, actor models.Actor, sourceID uuid.UUID, candidates []models.QueryCandidate) ([]*models.GeneratedQuery, error) {
	m.imported = candidates
	return m.queries, m.err
}

func (m *mockSourceService) ListQueries(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	return m.queries, m.err
}

func (m *mockSourceService) AskNaturalLanguage(ctx context.Context, actor models.Actor, sourceID uuid.UUID, question string) ([]*models.GeneratedQuery, error) {
	m.capturedText = question
	return m.queries, m.err
}

type mockSchedulerService struct {
	current []*models.GeneratedQuery
	next    []*models.GeneratedQuery
	err     error
}

var _ services.QuerySchedulerService = (*mockSchedulerService)(nil)

func (m *mockSchedulerService) NextBatch(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	return m.next, m.err
}

func (m *mockSchedulerService) CurrentBatch(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	return m.current, m.err
}

type mockExecutionService struct {
	execution *models.StoredQueryExecution
	err       error
	queryID   uuid.UUID
}

var _ services.QueryExecutionService = (*mockExecutionService)(nil)

func (m *mockExecutionService) Execute(ctx context.Context, src *models.ExternalSource, sqlText string) models.ExecutionResult {
	return models.ExecutionResult{}
}

func (m *mockExecutionService) ExecuteStoredQuery(ctx context.Context, actor models.Actor, sourceID, queryID uuid.UUID) (*models.StoredQueryExecution, error) {
	m.queryID = queryID
	return m.execution, m.err
}

type mockDashboardService struct {
	dashboard    *models.Dashboard
	dashboards   []*models.Dashboard
	added        []*models.GeneratedQuery
	chartData    *models.DashboardChartData
	err          error
	capturedName string
	capturedIDs  []uuid.UUID
	deleted      uuid.UUID
}

var _ services.DashboardService = (*mockDashboardService)(nil)

func (m *mockDashboardService) CreateOrGet(ctx context.Context, actor models.Actor, name string, sourceID uuid.UUID) (*models.Dashboard, error) {
	m.capturedName = name
	return m.dashboard, m.err
}

func (m *mockDashboardService) List(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.Dashboard, error) {
	return m.dashboards, m.err
}

func (m *mockDashboardService) AddQueries(ctx context.Context, actor models.Actor, dashboardID uuid.UUID, queryIDs []uuid.UUID) ([]*models.GeneratedQuery, error) {
	m.capturedIDs = queryIDs
	return m.added, m.err
}

func (m *mockDashboardService) RemoveQueries(ctx context.Context, actor models.Actor, dashboardID uuid.UUID, queryIDs []uuid.UUID) error {
	m.capturedIDs = queryIDs
	return m.err
}

func (m *mockDashboardService) Delete(ctx context.Context, actor models.Actor, dashboardID uuid.UUID) error {
	m.deleted = dashboardID
	return m.err
}

func (m *mockDashboardService) ChartData(ctx context.Context, actor models.Actor, dashboardID uuid.UUID) (*models.DashboardChartData, error) {
	return m.chartData, m.err
}

type mockTimeWindowService struct {
	report   []models.RewriteResult
	err      error
	min, max time.Time
}

var _ services.TimeWindowService = (*mockTimeWindowService)(nil)

func (m *mockTimeWindowService) RewriteTimeWindow(ctx context.Context, actor models.Actor, dashboardID uuid.UUID, minDate, maxDate time.Time) ([]models.RewriteResult, error) {
	m.min, m.max = minDate, maxDate
	return m.report, m.err
}
