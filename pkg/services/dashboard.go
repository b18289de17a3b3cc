package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/database"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
)

// DashboardService groups generated queries into named dashboards.
// No operation here deletes a generated query.
type DashboardService interface {
	CreateOrGet(ctx context.Context, actor models.Actor, name string, sourceID uuid.UUID) (*models.Dashboard, error)
	List(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.Dashboard, error)

	// AddQueries links the known queries among queryIDs and returns them.
	// Unknown ids and existing links are skipped silently.
	AddQueries(ctx context.Context, actor models.Actor, dashboardID uuid.UUID, queryIDs []uuid.UUID) ([]*models.GeneratedQuery, error)

	// RemoveQueries unlinks queries from the dashboard.
	RemoveQueries(ctx context.Context, actor models.Actor, dashboardID uuid.UUID, queryIDs []uuid.UUID) error

	// Delete removes the dashboard and its links.
	Delete(ctx context.Context, actor models.Actor, dashboardID uuid.UUID) error

	// ChartData executes every linked query. Queries that fail are left out.
	ChartData(ctx context.Context, actor models.Actor, dashboardID uuid.UUID) (*models.DashboardChartData, error)
}

type dashboardService struct {
	dashboards repositories.DashboardRepository
	sources    repositories.ExternalSourceRepository
	queries    repositories.GeneratedQueryRepository
	executor   QueryExecutionService
	transactor database.Transactor
	logger     *zap.Logger
}

// NewDashboardService creates a dashboard service.
func NewDashboardService(
	dashboards repositories.DashboardRepository,
	sources repositories.ExternalSourceRepository,
	queries repositories.GeneratedQueryRepository,
	executor QueryExecutionService,
	transactor database.Transactor,
	logger *zap.Logger,
) DashboardService {
	return &dashboardService{
		dashboards: dashboards,
		sources:    sources,
		queries:    queries,
		executor:   executor,
		transactor: transactor,
		logger:     logger.Named("dashboards"),
	}
}

var _ DashboardService = (*dashboardService)(nil)

func (s *dashboardService) CreateOrGet(ctx context.Context, actor models.Actor, name string, sourceID uuid.UUID) (*models.Dashboard, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: dashboard name is required", apperrors.ErrInvalidInput)
	}

	src, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !src.OwnedBy(actor) {
		return nil, apperrors.ErrNotFound
	}

	d, err := s.dashboards.GetOrCreate(ctx, &models.Dashboard{
		ActorID:  actor.ActorID,
		RoleID:   actor.RoleID,
		SourceID: src.ID,
		Name:     name,
	})
	if err != nil {
		return nil, err
	}
	if d.SourceID != src.ID {
		return nil, fmt.Errorf("%w: dashboard %q belongs to another source", apperrors.ErrConflict, name)
	}
	return d, nil
}

func (s *dashboardService) List(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.Dashboard, error) {
	return s.dashboards.ListBySource(ctx, actor, sourceID)
}

func (s *dashboardService) AddQueries(ctx context.Context, actor models.Actor, dashboardID uuid.UUID, queryIDs []uuid.UUID) ([]*models.GeneratedQuery, error) {
	d, err := s.getOwned(ctx, actor, dashboardID)
	if err != nil {
		return nil, err
	}

	found, err := s.queries.GetByIDs(ctx, queryIDs)
	if err != nil {
		return nil, err
	}

	valid := make([]*models.GeneratedQuery, 0, len(found))
	ids := make([]uuid.UUID, 0, len(found))
	for _, q := range found {
		if q.SourceID != d.SourceID || q.ActorID != actor.ActorID {
			continue
		}
		valid = append(valid, q)
		ids = append(ids, q.ID)
	}
	if len(valid) == 0 {
		return nil, apperrors.ErrNoValidQueries
	}

	added, err := s.dashboards.AddLinks(ctx, d.ID, ids)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Linked queries to dashboard",
		zap.String("dashboard_id", d.ID.String()),
		zap.Int("requested", len(queryIDs)),
		zap.Int("valid", len(valid)),
		zap.Int("added", added))

	return valid, nil
}

func (s *dashboardService) RemoveQueries(ctx context.Context, actor models.Actor, dashboardID uuid.UUID, queryIDs []uuid.UUID) error {
	d, err := s.getOwned(ctx, actor, dashboardID)
	if err != nil {
		return err
	}

	removed, err := s.dashboards.RemoveLinks(ctx, d.ID, queryIDs)
	if err != nil {
		return err
	}
	if removed == 0 {
		return apperrors.ErrNoValidQueries
	}
	return nil
}

func (s *dashboardService) Delete(ctx context.Context, actor models.Actor, dashboardID uuid.UUID) error {
	d, err := s.getOwned(ctx, actor, dashboardID)
	if err != nil {
		return err
	}

	return s.transactor.WithTx(ctx, func(ctx context.Context) error {
		if err := s.dashboards.RemoveAllLinks(ctx, d.ID); err != nil {
			return err
		}
		return s.dashboards.Delete(ctx, d.ID)
	})
}

func (s *dashboardService) ChartData(ctx context.Context, actor models.Actor, dashboardID uuid.UUID) (*models.DashboardChartData, error) {
	d, err := s.getOwned(ctx, actor, dashboardID)
	if err != nil {
		return nil, err
	}

	linked, err := s.dashboards.ListLinkedQueries(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	data := &models.DashboardChartData{
		DashboardID: d.ID,
		ChartData:   make([]models.ChartEntry, 0, len(linked)),
	}

	sources := make(map[uuid.UUID]*models.ExternalSource)
	for _, q := range linked {
		src, ok := sources[q.SourceID]
		if !ok {
			src, err = s.sources.GetByID(ctx, q.SourceID)
			if err != nil {
				s.logger.Warn("Skipping dashboard query with unresolvable source",
					zap.String("dashboard_id", d.ID.String()),
					zap.String("query_id", q.ID.String()),
					zap.Error(err))
				continue
			}
			sources[q.SourceID] = src
		}

		result := s.executor.Execute(ctx, src, q.QueryText)
		if result.Failed() {
			s.logger.Warn("Skipping failed dashboard query",
				zap.String("dashboard_id", d.ID.String()),
				zap.String("query_id", q.ID.String()),
				zap.String("error", result.Error))
			continue
		}

		data.ChartData = append(data.ChartData, models.ChartEntry{
			QueryID:     q.ID,
			QueryText:   q.QueryText,
			Explanation: q.Explanation,
			Result:      result.Series,
			ChartType:   q.ChartType,
		})
	}

	return data, nil
}

func (s *dashboardService) getOwned(ctx context.Context, actor models.Actor, dashboardID uuid.UUID) (*models.Dashboard, error) {
	d, err := s.dashboards.GetByID(ctx, dashboardID)
	if err != nil {
		return nil, err
	}
	if !d.OwnedBy(actor) || d.RoleID != actor.RoleID {
		return nil, apperrors.ErrNotFound
	}
	return d, nil
}
