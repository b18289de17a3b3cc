package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/database"
	"github.com/ekaya-inc/ekaya-insights/pkg/generator"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
)

const errMissingFromResponse = "no result returned for this query"

// TimeWindowService rebinds the date predicates of a dashboard's time-based queries.
type TimeWindowService interface {
	// RewriteTimeWindow submits every linked time-based query to the rewrite
	// service and stores the successful rewrites. The report lists each
	// submitted query exactly once.
	RewriteTimeWindow(ctx context.Context, actor models.Actor, dashboardID uuid.UUID, minDate, maxDate time.Time) ([]models.RewriteResult, error)
}

type timeWindowService struct {
	dashboards repositories.DashboardRepository
	sources    repositories.ExternalSourceRepository
	queries    repositories.GeneratedQueryRepository
	rewriter   generator.Service
	transactor database.Transactor
	logger     *zap.Logger
}

// NewTimeWindowService creates a rewrite orchestrator.
func NewTimeWindowService(
	dashboards repositories.DashboardRepository,
	sources repositories.ExternalSourceRepository,
	queries repositories.GeneratedQueryRepository,
	rewriter generator.Service,
	transactor database.Transactor,
	logger *zap.Logger,
) TimeWindowService {
	return &timeWindowService{
		dashboards: dashboards,
		sources:    sources,
		queries:    queries,
		rewriter:   rewriter,
		transactor: transactor,
		logger:     logger.Named("rewrite"),
	}
}

var _ TimeWindowService = (*timeWindowService)(nil)

func (s *timeWindowService) RewriteTimeWindow(ctx context.Context, actor models.Actor, dashboardID uuid.UUID, minDate, maxDate time.Time) ([]models.RewriteResult, error) {
	if minDate.IsZero() || maxDate.IsZero() {
		return nil, fmt.Errorf("%w: min_date and max_date are required", apperrors.ErrInvalidInput)
	}
	if maxDate.Before(minDate) {
		minDate, maxDate = maxDate, minDate
	}

	d, err := s.dashboards.GetByID(ctx, dashboardID)
	if err != nil {
		return nil, err
	}
	if !d.OwnedBy(actor) || d.RoleID != actor.RoleID {
		return nil, apperrors.ErrNotFound
	}

	src, err := s.sources.GetByID(ctx, d.SourceID)
	if err != nil {
		return nil, err
	}

	linked, err := s.dashboards.ListLinkedQueries(ctx, d.ID)
	if err != nil {
		return nil, err
	}

	submitted := make([]*models.GeneratedQuery, 0, len(linked))
	req := &generator.RewriteRequest{
		MinDate: minDate,
		MaxDate: maxDate,
		DBType:  string(src.Dialect),
	}
	for _, q := range linked {
		if !q.IsTimeBased {
			continue
		}
		submitted = append(submitted, q)
		req.Queries = append(req.Queries, generator.QueryWithID{QueryID: q.ID.String(), Query: q.QueryText})
	}
	if len(submitted) == 0 {
		return nil, apperrors.ErrNoTimeBasedQueries
	}

	outcomes, err := s.rewriter.RewriteTimeBased(ctx, req)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]generator.RewriteOutcome, len(outcomes))
	for _, o := range outcomes {
		if _, dup := byID[o.QueryID]; !dup {
			byID[o.QueryID] = o
		}
	}

	report := make([]models.RewriteResult, 0, len(submitted))
	for _, q := range submitted {
		r := models.RewriteResult{QueryID: q.ID, OriginalQuery: q.QueryText}
		o, ok := byID[q.ID.String()]
		switch {
		case !ok:
			r.Error = errMissingFromResponse
		case o.Success && o.UpdatedQuery == "":
			r.Error = "rewrite returned an empty query"
		case o.Success:
			r.Success = true
			r.UpdatedQuery = o.UpdatedQuery
		default:
			r.Error = o.Error
		}
		report = append(report, r)
	}

	err = s.transactor.WithTx(ctx, func(ctx context.Context) error {
		for _, r := range report {
			if !r.Success {
				continue
			}
			if err := s.queries.UpdateQueryText(ctx, r.QueryID, r.UpdatedQuery); err != nil {
				return fmt.Errorf("failed to apply rewrite of %s: %w", r.QueryID, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	updated := 0
	for _, r := range report {
		if r.Success {
			updated++
		}
	}
	s.logger.Info("Rewrote dashboard time window",
		zap.String("dashboard_id", d.ID.String()),
		zap.Time("min_date", minDate),
		zap.Time("max_date", maxDate),
		zap.Int("submitted", len(submitted)),
		zap.Int("updated", updated))

	return report, nil
}
