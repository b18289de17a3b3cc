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

// DashboardRepository defines data access for dashboards and their query links.
// Links reference generated queries; no method here deletes a generated query.
type DashboardRepository interface {
	// GetOrCreate returns the owner's dashboard with d.Name, creating it from d when absent.
	GetOrCreate(ctx context.Context, d *models.Dashboard) (*models.Dashboard, error)

	// GetByID retrieves a dashboard. Returns apperrors.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Dashboard, error)

	// ListBySource returns the owner's dashboards for a source, oldest first.
	ListBySource(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.Dashboard, error)

	// AddLinks links queries to a dashboard, skipping pairs already linked.
	// Returns the number of links created.
	AddLinks(ctx context.Context, dashboardID uuid.UUID, queryIDs []uuid.UUID) (int, error)

	// RemoveLinks deletes the links between a dashboard and the queries.
	// Returns the number of links removed.
	RemoveLinks(ctx context.Context, dashboardID uuid.UUID, queryIDs []uuid.UUID) (int, error)

	// RemoveAllLinks deletes every link of a dashboard.
	RemoveAllLinks(ctx context.Context, dashboardID uuid.UUID) error

	// Delete removes the dashboard row.
	Delete(ctx context.Context, id uuid.UUID) error

	// ListLinkedQueries returns the dashboard's queries in link order.
	ListLinkedQueries(ctx context.Context, dashboardID uuid.UUID) ([]*models.GeneratedQuery, error)
}

type dashboardRepository struct{}

// NewDashboardRepository creates a new dashboard repository.
func NewDashboardRepository() DashboardRepository {
	return &dashboardRepository{}
}

const dashboardColumns = `id, actor_id, role_id, source_id, name, created_at`

func (r *dashboardRepository) GetOrCreate(ctx context.Context, d *models.Dashboard) (*models.Dashboard, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	// The no-op update makes RETURNING yield the existing row on conflict.
	query := `
		INSERT INTO dashboards (actor_id, role_id, source_id, name)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (actor_id, role_id, name) DO UPDATE SET name = EXCLUDED.name
		RETURNING ` + dashboardColumns

	dash, err := scanDashboard(scope.Conn.QueryRow(ctx, query, d.ActorID, d.RoleID, d.SourceID, d.Name))
	if err != nil {
		return nil, fmt.Errorf("failed to create dashboard: %w", err)
	}
	return dash, nil
}

func (r *dashboardRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Dashboard, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	dash, err := scanDashboard(scope.Conn.QueryRow(ctx,
		`SELECT `+dashboardColumns+` FROM dashboards WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get dashboard: %w", err)
	}
	return dash, nil
}

func (r *dashboardRepository) ListBySource(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.Dashboard, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+dashboardColumns+` FROM dashboards
		WHERE actor_id = $1 AND role_id = $2 AND source_id = $3
		ORDER BY created_at, id`, actor.ActorID, actor.RoleID, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	defer rows.Close()

	dashboards := make([]*models.Dashboard, 0)
	for rows.Next() {
		d, err := scanDashboard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan dashboard: %w", err)
		}
		dashboards = append(dashboards, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list dashboards: %w", err)
	}
	return dashboards, nil
}

func (r *dashboardRepository) AddLinks(ctx context.Context, dashboardID uuid.UUID, queryIDs []uuid.UUID) (int, error) {
	if len(queryIDs) == 0 {
		return 0, nil
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `
		INSERT INTO dashboard_query_links (dashboard_id, query_id)
		SELECT $1, q.id FROM unnest($2::uuid[]) WITH ORDINALITY AS q(id, ord)
		ORDER BY q.ord
		ON CONFLICT (dashboard_id, query_id) DO NOTHING`, dashboardID, queryIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to link queries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *dashboardRepository) RemoveLinks(ctx context.Context, dashboardID uuid.UUID, queryIDs []uuid.UUID) (int, error) {
	if len(queryIDs) == 0 {
		return 0, nil
	}

	scope, ok := database.GetScope(ctx)
	if !ok {
		return 0, fmt.Errorf("no database scope in context")
	}

	tag, err := scope.Conn.Exec(ctx,
		`DELETE FROM dashboard_query_links WHERE dashboard_id = $1 AND query_id = ANY($2)`,
		dashboardID, queryIDs)
	if err != nil {
		return 0, fmt.Errorf("failed to unlink queries: %w", err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *dashboardRepository) RemoveAllLinks(ctx context.Context, dashboardID uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	if _, err := scope.Conn.Exec(ctx,
		`DELETE FROM dashboard_query_links WHERE dashboard_id = $1`, dashboardID); err != nil {
		return fmt.Errorf("failed to unlink queries: %w", err)
	}
	return nil
}

func (r *dashboardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tag, err := scope.Conn.Exec(ctx, `DELETE FROM dashboards WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete dashboard: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *dashboardRepository) ListLinkedQueries(ctx context.Context, dashboardID uuid.UUID) ([]*models.GeneratedQuery, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT g.id, g.source_id, g.actor_id, g.query_text, g.explanation, g.relevance,
			g.is_time_based, g.chart_type, g.is_sent, g.is_user_generated, g.created_at
		FROM dashboard_query_links l
		JOIN generated_queries g ON g.id = l.query_id
		WHERE l.dashboard_id = $1
		ORDER BY l.created_at, l.id`, dashboardID)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboard queries: %w", err)
	}

	queries, err := collectGeneratedQueries(rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list dashboard queries: %w", err)
	}
	return queries, nil
}

func scanDashboard(row pgx.Row) (*models.Dashboard, error) {
	var d models.Dashboard
	if err := row.Scan(&d.ID, &d.ActorID, &d.RoleID, &d.SourceID, &d.Name, &d.CreatedAt); err != nil {
		return nil, err
	}
	return &d, nil
}
