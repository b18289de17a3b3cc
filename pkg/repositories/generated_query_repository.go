package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/database"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// GeneratedQueryRepository defines data access for generated queries.
type GeneratedQueryRepository interface {
	// CreateBatch stores candidates verbatim, preserving their order in created_at.
	CreateBatch(ctx context.Context, sourceID uuid.UUID, actorID string, candidates []models.QueryCandidate, userGenerated, sent bool) ([]*models.GeneratedQuery, error)

	// GetByID retrieves a query by id. Returns apperrors.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.GeneratedQuery, error)

	// GetByIDs returns the queries that exist among ids, oldest first. Unknown ids are skipped.
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.GeneratedQuery, error)

	// ListBySource returns every query of an (actor, source) pair, oldest first.
	ListBySource(ctx context.Context, actorID string, sourceID uuid.UUID) ([]*models.GeneratedQuery, error)

	// ListSent returns delivered queries of the pair, oldest first.
	ListSent(ctx context.Context, actorID string, sourceID uuid.UUID) ([]*models.GeneratedQuery, error)

	// CountSentGenerated counts delivered, non-user-generated queries of the pair.
	CountSentGenerated(ctx context.Context, actorID string, sourceID uuid.UUID) (int, error)

	// ListUnsentCandidates returns up to limit undelivered, non-user-generated
	// queries with the given time-based flag, oldest first. Rows are locked
	// FOR UPDATE when called inside a transaction.
	ListUnsentCandidates(ctx context.Context, actorID string, sourceID uuid.UUID, timeBased bool, limit int) ([]*models.GeneratedQuery, error)

	// MarkSent flags the queries as delivered. It never clears the flag.
	MarkSent(ctx context.Context, ids []uuid.UUID) error

	// UpdateQueryText replaces the SQL text of one query.
	UpdateQueryText(ctx context.Context, id uuid.UUID, queryText string) error

	// LockDelivery serializes delivery for an (actor, source) pair until the
	// surrounding transaction ends. It must be called inside a transaction.
	LockDelivery(ctx context.Context, actorID string, sourceID uuid.UUID) error
}

type generatedQueryRepository struct{}

// NewGeneratedQueryRepository creates a new generated query repository.
func NewGeneratedQueryRepository() GeneratedQueryRepository {
	return &generatedQueryRepository{}
}

const generatedQueryColumns = `id, source_id, actor_id, query_text, explanation, relevance,
	is_time_based, chart_type, is_sent, is_user_generated, created_at`

func (r *generatedQueryRepository) CreateBatch(ctx context.Context, sourceID uuid.UUID, actorID string, candidates []models.QueryCandidate, userGenerated, sent bool) ([]*models.GeneratedQuery, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	texts := make([]string, len(candidates))
	explanations := make([]string, len(candidates))
	relevance := make([]float64, len(candidates))
	timeBased := make([]bool, len(candidates))
	chartTypes := make([]string, len(candidates))
	for i, c := range candidates {
		texts[i] = c.Query
		explanations[i] = c.Explanation
		relevance[i] = c.Relevance
		timeBased[i] = c.IsTimeBased
		chartTypes[i] = c.ChartType
	}

	// created_at uses clock_timestamp(), so inserting in ordinality order
	// keeps "oldest first" equal to the generator's order.
	query := `
		INSERT INTO generated_queries (source_id, actor_id, query_text, explanation, relevance,
			is_time_based, chart_type, is_sent, is_user_generated)
		SELECT $1, $2, u.q, u.e, u.r, u.t, u.c, $8, $9
		FROM unnest($3::text[], $4::text[], $5::float8[], $6::bool[], $7::text[])
			WITH ORDINALITY AS u(q, e, r, t, c, ord)
		ORDER BY u.ord
		RETURNING ` + generatedQueryColumns

	rows, err := scope.Conn.Query(ctx, query,
		sourceID, actorID, texts, explanations, relevance, timeBased, chartTypes, sent, userGenerated)
	if err != nil {
		return nil, fmt.Errorf("failed to insert generated queries: %w", err)
	}

	created, err := collectGeneratedQueries(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to insert generated queries: %w", err)
	}
	return created, nil
}

func (r *generatedQueryRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.GeneratedQuery, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	q, err := scanGeneratedQuery(scope.Conn.QueryRow(ctx,
		`SELECT `+generatedQueryColumns+` FROM generated_queries WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get generated query: %w", err)
	}
	return q, nil
}

func (r *generatedQueryRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.GeneratedQuery, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return r.list(ctx, "get generated queries",
		`SELECT `+generatedQueryColumns+` FROM generated_queries
		WHERE id = ANY($1) ORDER BY created_at, id`, ids)
}

func (r *generatedQueryRepository) ListBySource(ctx context.Context, actorID string, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	return r.list(ctx, "list generated queries",
		`SELECT `+generatedQueryColumns+` FROM generated_queries
		WHERE actor_id = $1 AND source_id = $2 ORDER BY created_at, id`, actorID, sourceID)
}

func (r *generatedQueryRepository) ListSent(ctx context.Context, actorID string, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	return r.list(ctx, "list sent queries",
		`SELECT `+generatedQueryColumns+` FROM generated_queries
		WHERE actor_id = $1 AND source_id = $2 AND is_sent
		ORDER BY created_at, id`, actorID, sourceID)
}

func (r *generatedQueryRepository) CountSentGenerated(ctx context.Context, actorID string, sourceID uuid.UUID) (int, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	var count int
	err := scope.Conn.QueryRow(ctx, `
		SELECT COUNT(*) FROM generated_queries
		WHERE actor_id = $1 AND source_id = $2 AND is_sent AND NOT is_user_generated`,
		actorID, sourceID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count sent queries: %w", err)
	}
	return count, nil
}

func (r *generatedQueryRepository) ListUnsentCandidates(ctx context.Context, actorID string, sourceID uuid.UUID, timeBased bool, limit int) ([]*models.GeneratedQuery, error) {
	if limit <= 0 {
		return nil, nil
	}

	query := `SELECT ` + generatedQueryColumns + ` FROM generated_queries
		WHERE actor_id = $1 AND source_id = $2 AND is_time_based = $3
		  AND NOT is_sent AND NOT is_user_generated
		ORDER BY created_at, id
		LIMIT $4`

	scope, ok := database.GetScope(ctx)
	if ok && scope.InTx() {
		query += ` FOR UPDATE`
	}

	return r.list(ctx, "list unsent queries", query, actorID, sourceID, timeBased, limit)
}

func (r *generatedQueryRepository) MarkSent(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if _, err := scope.Conn.Exec(ctx,
		`UPDATE generated_queries SET is_sent = true WHERE id = ANY($1) AND NOT is_sent`, ids); err != nil {
		return fmt.Errorf("failed to mark queries sent: %w", err)
	}
	return nil
}

func (r *generatedQueryRepository) UpdateQueryText(ctx context.Context, id uuid.UUID, queryText string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tag, err := scope.Conn.Exec(ctx,
		`UPDATE generated_queries SET query_text = $2 WHERE id = $1`, id, queryText)
	if err != nil {
		return fmt.Errorf("failed to update query text: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *generatedQueryRepository) LockDelivery(ctx context.Context, actorID string, sourceID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}
	if !scope.InTx() {
		return fmt.Errorf("delivery lock requires a transaction")
	}

	if _, err := scope.Conn.Exec(ctx,
		`SELECT pg_advisory_xact_lock(hashtextextended('dripfeed:' || $1 || ':' || $2, 0))`,
		actorID, sourceID.String()); err != nil {
		return fmt.Errorf("failed to lock delivery: %w", err)
	}
	return nil
}

func (r *generatedQueryRepository) list(ctx context.Context, op, query string, args ...any) ([]*models.GeneratedQuery, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}

	queries, err := collectGeneratedQueries(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	return queries, nil
}

func collectGeneratedQueries(rows pgx.Rows) ([]*models.GeneratedQuery, error) {
	defer rows.Close()

	queries := make([]*models.GeneratedQuery, 0)
	for rows.Next() {
		q, err := scanGeneratedQuery(rows)
		if err != nil {
			return nil, err
		}
		queries = append(queries, q)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return queries, nil
}

func scanGeneratedQuery(row pgx.Row) (*models.GeneratedQuery, error) {
	var q models.GeneratedQuery
	err := row.Scan(
		&q.ID,
		&q.SourceID,
		&q.ActorID,
		&q.QueryText,
		&q.Explanation,
		&q.Relevance,
		&q.IsTimeBased,
		&q.ChartType,
		&q.IsSent,
		&q.IsUserGenerated,
		&q.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &q, nil
}
