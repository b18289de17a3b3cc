package services

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/audit"
	"github.com/ekaya-inc/ekaya-insights/pkg/database"
	"github.com/ekaya-inc/ekaya-insights/pkg/generator"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
)

// Test encryption key (32 bytes, base64 encoded) - same as crypto/credentials_test.go
const testEncryptionKey = "dGVzdC1rZXktZm9yLXVuaXQtdGVzdHMtMzItYnl0ZXM="

var (
	testActor  = models.Actor{ActorID: "actor-1", RoleID: "role-analyst"}
	otherActor = models.Actor{ActorID: "actor-2", RoleID: "role-analyst"}
)

// ---------------------------------------------------------------------------
// Repositories

type mockExternalSourceRepository struct {
	mu        sync.Mutex
	sources   map[uuid.UUID]*models.ExternalSource
	upsertErr error
	getErr    error

	capturedUpsert *models.ExternalSource
}

func newMockExternalSourceRepository(sources ...*models.ExternalSource) *mockExternalSourceRepository {
	m := &mockExternalSourceRepository{sources: make(map[uuid.UUID]*models.ExternalSource)}
	for _, s := range sources {
		m.sources[s.ID] = s
	}
	return m
}

func (m *mockExternalSourceRepository) Upsert(ctx context.Context, src *models.ExternalSource) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.capturedUpsert = src
	if m.upsertErr != nil {
		return m.upsertErr
	}
	for _, existing := range m.sources {
		if existing.ActorID == src.ActorID && existing.RoleID == src.RoleID {
			src.ID = existing.ID
		}
	}
	if src.ID == uuid.Nil {
		src.ID = uuid.New()
	}
	src.CreatedAt, src.UpdatedAt = time.Now(), time.Now()
	m.sources[src.ID] = src
	return nil
}

func (m *mockExternalSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExternalSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, m.getErr
	}
	src, ok := m.sources[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *src
	return &cp, nil
}

func (m *mockExternalSourceRepository) GetByActor(ctx context.Context, actor models.Actor) (*models.ExternalSource, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, src := range m.sources {
		if src.ActorID == actor.ActorID && src.RoleID == actor.RoleID {
			cp := *src
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockExternalSourceRepository) UpdateDomain(ctx context.Context, id uuid.UUID, domain string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	src, ok := m.sources[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	src.Domain = domain
	return nil
}

var _ repositories.ExternalSourceRepository = (*mockExternalSourceRepository)(nil)

// mockGeneratedQueryRepository is an in-memory store honoring the ordering
// and delivery rules of the real repository.
type mockGeneratedQueryRepository struct {
	mu      sync.Mutex
	rows    []*models.GeneratedQuery
	clock   time.Time
	lockErr error
	markErr error

	// updateErrFor fails UpdateQueryText for one id.
	updateErrFor uuid.UUID
	lockCalls    int
	updated      map[uuid.UUID]string
}

func newMockGeneratedQueryRepository() *mockGeneratedQueryRepository {
	return &mockGeneratedQueryRepository{
		clock:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		updated: make(map[uuid.UUID]string),
	}
}

func (m *mockGeneratedQueryRepository) seed(sourceID uuid.UUID, actorID string, n int, timeBased, userGenerated, sent bool) []*models.GeneratedQuery {
	candidates := make([]models.QueryCandidate, n)
	for i := range candidates {
		candidates[i] = models.QueryCandidate{Query: "SELECT 1, 2", IsTimeBased: timeBased, ChartType: "bar"}
	}
	created, _ := m.CreateBatch(context.Background(), sourceID, actorID, candidates, userGenerated, sent)
	return created
}

func (m *mockGeneratedQueryRepository) CreateBatch(ctx context.Context, sourceID uuid.UUID, actorID string, candidates []models.QueryCandidate, userGenerated, sent bool) ([]*models.GeneratedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := make([]*models.GeneratedQuery, 0, len(candidates))
	for _, c := range candidates {
		m.clock = m.clock.Add(time.Second)
		q := &models.GeneratedQuery{
			ID:              uuid.New(),
			SourceID:        sourceID,
			ActorID:         actorID,
			QueryText:       c.Query,
			Explanation:     c.Explanation,
			Relevance:       c.Relevance,
			IsTimeBased:     c.IsTimeBased,
			ChartType:       c.ChartType,
			IsSent:          sent,
			IsUserGenerated: userGenerated,
			CreatedAt:       m.clock,
		}
		m.rows = append(m.rows, q)
		cp := *q
		created = append(created, &cp)
	}
	return created, nil
}

func (m *mockGeneratedQueryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GeneratedQuery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, q := range m.rows {
		if q.ID == id {
			cp := *q
			return &cp, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockGeneratedQueryRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.GeneratedQuery, error) {
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	return m.filter(func(q *models.GeneratedQuery) bool { return want[q.ID] }, 0), nil
}

func (m *mockGeneratedQueryRepository) ListBySource(ctx context.Context, actorID string, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	return m.filter(func(q *models.GeneratedQuery) bool {
		return q.ActorID == actorID && q.SourceID == sourceID
	}, 0), nil
}

func (m *mockGeneratedQueryRepository) ListSent(ctx context.Context, actorID string, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	return m.filter(func(q *models.GeneratedQuery) bool {
		return q.ActorID == actorID && q.SourceID == sourceID && q.IsSent
	}, 0), nil
}

func (m *mockGeneratedQueryRepository) CountSentGenerated(ctx context.Context, actorID string, sourceID uuid.UUID) (int, error) {
	return len(m.filter(func(q *models.GeneratedQuery) bool {
		return q.ActorID == actorID && q.SourceID == sourceID && q.IsSent && !q.IsUserGenerated
	}, 0)), nil
}

func (m *mockGeneratedQueryRepository) ListUnsentCandidates(ctx context.Context, actorID string, sourceID uuid.UUID, timeBased bool, limit int) ([]*models.GeneratedQuery, error) {
	if limit <= 0 {
		return nil, nil
	}
	return m.filter(func(q *models.GeneratedQuery) bool {
		return q.ActorID == actorID && q.SourceID == sourceID && q.IsTimeBased == timeBased &&
			!q.IsSent && !q.IsUserGenerated
	}, limit), nil
}

func (m *mockGeneratedQueryRepository) MarkSent(ctx context.Context, ids []uuid.UUID) error {
	if m.markErr != nil {
		return m.markErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	want := make(map[uuid.UUID]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for _, q := range m.rows {
		if want[q.ID] {
			q.IsSent = true
		}
	}
	return nil
}

func (m *mockGeneratedQueryRepository) UpdateQueryText(ctx context.Context, id uuid.UUID, queryText string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id == m.updateErrFor {
		return apperrors.ErrNotFound
	}
	for _, q := range m.rows {
		if q.ID == id {
			q.QueryText = queryText
			m.updated[id] = queryText
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockGeneratedQueryRepository) LockDelivery(ctx context.Context, actorID string, sourceID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockCalls++
	return m.lockErr
}

func (m *mockGeneratedQueryRepository) filter(keep func(*models.GeneratedQuery) bool, limit int) []*models.GeneratedQuery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.GeneratedQuery, 0)
	for _, q := range m.rows {
		if keep(q) {
			cp := *q
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

var _ repositories.GeneratedQueryRepository = (*mockGeneratedQueryRepository)(nil)

type mockDashboardRepository struct {
	mu         sync.Mutex
	dashboards map[uuid.UUID]*models.Dashboard
	links      map[uuid.UUID][]uuid.UUID
	queries    *mockGeneratedQueryRepository
	deleteErr  error

	removeAllCalls int
}

func newMockDashboardRepository(queries *mockGeneratedQueryRepository) *mockDashboardRepository {
	return &mockDashboardRepository{
		dashboards: make(map[uuid.UUID]*models.Dashboard),
		links:      make(map[uuid.UUID][]uuid.UUID),
		queries:    queries,
	}
}

func (m *mockDashboardRepository) GetOrCreate(ctx context.Context, d *models.Dashboard) (*models.Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.dashboards {
		if existing.ActorID == d.ActorID && existing.RoleID == d.RoleID && existing.Name == d.Name {
			cp := *existing
			return &cp, nil
		}
	}
	created := *d
	created.ID = uuid.New()
	created.CreatedAt = time.Now()
	m.dashboards[created.ID] = &created
	cp := created
	return &cp, nil
}

func (m *mockDashboardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.dashboards[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (m *mockDashboardRepository) ListBySource(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.Dashboard, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*models.Dashboard, 0)
	for _, d := range m.dashboards {
		if d.ActorID == actor.ActorID && d.RoleID == actor.RoleID && d.SourceID == sourceID {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *mockDashboardRepository) AddLinks(ctx context.Context, dashboardID uuid.UUID, queryIDs []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, id := range queryIDs {
		if !containsID(m.links[dashboardID], id) {
			m.links[dashboardID] = append(m.links[dashboardID], id)
			added++
		}
	}
	return added, nil
}

func (m *mockDashboardRepository) RemoveLinks(ctx context.Context, dashboardID uuid.UUID, queryIDs []uuid.UUID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := make([]uuid.UUID, 0, len(m.links[dashboardID]))
	removed := 0
	for _, id := range m.links[dashboardID] {
		if containsID(queryIDs, id) {
			removed++
			continue
		}
		kept = append(kept, id)
	}
	m.links[dashboardID] = kept
	return removed, nil
}

func (m *mockDashboardRepository) RemoveAllLinks(ctx context.Context, dashboardID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeAllCalls++
	delete(m.links, dashboardID)
	return nil
}

func (m *mockDashboardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.deleteErr != nil {
		return m.deleteErr
	}
	if _, ok := m.dashboards[id]; !ok {
		return apperrors.ErrNotFound
	}
	delete(m.dashboards, id)
	return nil
}

func (m *mockDashboardRepository) ListLinkedQueries(ctx context.Context, dashboardID uuid.UUID) ([]*models.GeneratedQuery, error) {
	m.mu.Lock()
	ids := append([]uuid.UUID(nil), m.links[dashboardID]...)
	m.mu.Unlock()

	out := make([]*models.GeneratedQuery, 0, len(ids))
	for _, id := range ids {
		q, err := m.queries.GetByID(ctx, id)
		if err != nil {
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

func containsID(ids []uuid.UUID, id uuid.UUID) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}

var _ repositories.DashboardRepository = (*mockDashboardRepository)(nil)

// mockTransactor runs fn directly. Tests assert on what fn wrote.
type mockTransactor struct {
	calls int
}

func (m *mockTransactor) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	m.calls++
	return fn(ctx)
}

var _ database.Transactor = (*mockTransactor)(nil)

// ---------------------------------------------------------------------------
// Adapters

type mockSchemaDiscoverer struct {
	tables      []datasource.TableMetadata
	columns     map[string][]datasource.ColumnMetadata
	primaryKeys map[string][]string
	foreignKeys map[string][]datasource.ForeignKeyMetadata
	rng         *datasource.TemporalRange

	tablesErr  error
	columnsErr error
	rangeErr   error

	capturedTemporal []datasource.TemporalColumn
	closed           bool
}

func (m *mockSchemaDiscoverer) DiscoverTables(ctx context.Context) ([]datasource.TableMetadata, error) {
	return m.tables, m.tablesErr
}

func (m *mockSchemaDiscoverer) DiscoverColumns(ctx context.Context, table datasource.TableMetadata) ([]datasource.ColumnMetadata, error) {
	if m.columnsErr != nil {
		return nil, m.columnsErr
	}
	return m.columns[table.Name()], nil
}

func (m *mockSchemaDiscoverer) DiscoverPrimaryKeys(ctx context.Context, table datasource.TableMetadata) ([]string, error) {
	return m.primaryKeys[table.Name()], nil
}

func (m *mockSchemaDiscoverer) DiscoverForeignKeys(ctx context.Context, table datasource.TableMetadata) ([]datasource.ForeignKeyMetadata, error) {
	return m.foreignKeys[table.Name()], nil
}

func (m *mockSchemaDiscoverer) DiscoverTemporalRange(ctx context.Context, columns []datasource.TemporalColumn) (*datasource.TemporalRange, error) {
	m.capturedTemporal = columns
	if m.rangeErr != nil {
		return nil, m.rangeErr
	}
	if m.rng == nil {
		return &datasource.TemporalRange{}, nil
	}
	return m.rng, nil
}

func (m *mockSchemaDiscoverer) Close() error {
	m.closed = true
	return nil
}

type mockQueryExecutor struct {
	result *datasource.QueryExecutionResult
	err    error
	// results by SQL text take precedence over result/err
	bySQL map[string]*datasource.QueryExecutionResult

	capturedSQL []string
	closed      int
}

func (m *mockQueryExecutor) Query(ctx context.Context, sqlQuery string) (*datasource.QueryExecutionResult, error) {
	m.capturedSQL = append(m.capturedSQL, sqlQuery)
	if r, ok := m.bySQL[sqlQuery]; ok {
		return r, nil
	}
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func (m *mockQueryExecutor) Close() error {
	m.closed++
	return nil
}

type mockAdapterFactory struct {
	discoverer    *mockSchemaDiscoverer
	executor      *mockQueryExecutor
	discovererErr error
	executorErr   error
	buildErr      error

	capturedConnString string
	capturedDialect    models.Dialect
	capturedParams     datasource.ConnectionParams
	executorCalls      int
}

func (m *mockAdapterFactory) NewConnectionTester(ctx context.Context, dialect models.Dialect, connString string) (datasource.ConnectionTester, error) {
	return nil, apperrors.ErrUnsupportedDialect
}

func (m *mockAdapterFactory) NewSchemaDiscoverer(ctx context.Context, dialect models.Dialect, connString string) (datasource.SchemaDiscoverer, error) {
	m.capturedDialect = dialect
	m.capturedConnString = connString
	if m.discovererErr != nil {
		return nil, m.discovererErr
	}
	return m.discoverer, nil
}

func (m *mockAdapterFactory) NewQueryExecutor(ctx context.Context, dialect models.Dialect, connString string) (datasource.QueryExecutor, error) {
	m.capturedDialect = dialect
	m.capturedConnString = connString
	m.executorCalls++
	if m.executorErr != nil {
		return nil, m.executorErr
	}
	return m.executor, nil
}

func (m *mockAdapterFactory) BuildConnectionString(dialect models.Dialect, params datasource.ConnectionParams) (string, error) {
	m.capturedParams = params
	if m.buildErr != nil {
		return "", m.buildErr
	}
	return string(dialect) + "://" + params.User + "@" + params.Host + "/" + params.Database, nil
}

func (m *mockAdapterFactory) ListTypes() []datasource.AdapterInfo {
	return nil
}

var _ datasource.AdapterFactory = (*mockAdapterFactory)(nil)

// ---------------------------------------------------------------------------
// Services

type mockSessionFactory struct {
	executor *mockQueryExecutor
	openErr  error

	opened   int
	disposed int
}

func (m *mockSessionFactory) Open(ctx context.Context, src *models.ExternalSource) (datasource.QueryExecutor, func(), error) {
	if m.openErr != nil {
		return nil, nil, m.openErr
	}
	m.opened++
	return m.executor, func() { m.disposed++ }, nil
}

var _ SessionFactory = (*mockSessionFactory)(nil)

type mockGenerator struct {
	candidates []models.QueryCandidate
	outcomes   []generator.RewriteOutcome
	err        error

	capturedGenerate  *generator.GenerateRequest
	capturedTranslate *generator.NLQueryRequest
	capturedRewrite   *generator.RewriteRequest
}

func (m *mockGenerator) Generate(ctx context.Context, req *generator.GenerateRequest) ([]models.QueryCandidate, error) {
	m.capturedGenerate = req
	return m.candidates, m.err
}

func (m *mockGenerator) Translate(ctx context.Context, req *generator.NLQueryRequest) ([]models.QueryCandidate, error) {
	m.capturedTranslate = req
	return m.candidates, m.err
}

func (m *mockGenerator) RewriteTimeBased(ctx context.Context, req *generator.RewriteRequest) ([]generator.RewriteOutcome, error) {
	m.capturedRewrite = req
	return m.outcomes, m.err
}

var _ generator.Service = (*mockGenerator)(nil)

type mockAuditor struct {
	screened   []string
	registered []uuid.UUID
	executions []bool
}

func (m *mockAuditor) ScreenNaturalLanguage(actor models.Actor, sourceID uuid.UUID, text string) bool {
	m.screened = append(m.screened, text)
	return false
}

func (m *mockAuditor) LogSourceRegistered(actor models.Actor, sourceID uuid.UUID, dialect models.Dialect) {
	m.registered = append(m.registered, sourceID)
}

func (m *mockAuditor) LogQueryExecution(actor models.Actor, sourceID, queryID uuid.UUID, failed bool) {
	m.executions = append(m.executions, failed)
}

var _ audit.Auditor = (*mockAuditor)(nil)

// twoColumnResult builds a (label, value) result.
func twoColumnResult(x, y string, rows ...[]any) *datasource.QueryExecutionResult {
	return &datasource.QueryExecutionResult{
		Columns:  []datasource.ColumnInfo{{Name: x, Type: "TEXT"}, {Name: y, Type: "NUMERIC"}},
		Rows:     rows,
		RowCount: len(rows),
	}
}

func newTestSource(actor models.Actor) *models.ExternalSource {
	return &models.ExternalSource{
		ID:      uuid.New(),
		ActorID: actor.ActorID,
		RoleID:  actor.RoleID,
		Dialect: models.DialectPostgres,
		Domain:  "retail sales",
	}
}
