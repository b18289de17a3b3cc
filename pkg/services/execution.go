package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/audit"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
)

// DefaultQueryTimeout bounds one execution when none is configured.
const DefaultQueryTimeout = 30 * time.Second

var (
	errNoColumns       = errors.New("query returned no columns")
	errTooFewColumns   = errors.New("query must return at least two columns (label, value)")
	errSessionRequired = errors.New("could not open a session for the source")
)

// QueryExecutionService runs SQL against external sources and shapes the
// rows into chart series.
type QueryExecutionService interface {
	// Execute runs sqlText against src. Failures are reported in the result,
	// never as a Go error.
	Execute(ctx context.Context, src *models.ExternalSource, sqlText string) models.ExecutionResult

	// ExecuteStoredQuery runs a persisted query of the actor's source.
	ExecuteStoredQuery(ctx context.Context, actor models.Actor, sourceID, queryID uuid.UUID) (*models.StoredQueryExecution, error)
}

type queryExecutionService struct {
	sources  repositories.ExternalSourceRepository
	queries  repositories.GeneratedQueryRepository
	sessions SessionFactory
	auditor  audit.Auditor
	timeout  time.Duration
	logger   *zap.Logger
}

// NewQueryExecutionService creates an execution service.
func NewQueryExecutionService(
	sources repositories.ExternalSourceRepository,
	queries repositories.GeneratedQueryRepository,
	sessions SessionFactory,
	auditor audit.Auditor,
	timeout time.Duration,
	logger *zap.Logger,
) QueryExecutionService {
	if timeout <= 0 {
		timeout = DefaultQueryTimeout
	}
	return &queryExecutionService{
		sources:  sources,
		queries:  queries,
		sessions: sessions,
		auditor:  auditor,
		timeout:  timeout,
		logger:   logger.Named("execution"),
	}
}

var _ QueryExecutionService = (*queryExecutionService)(nil)

func (s *queryExecutionService) Execute(ctx context.Context, src *models.ExternalSource, sqlText string) models.ExecutionResult {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	executor, dispose, err := s.sessions.Open(ctx, src)
	if err != nil {
		s.logger.Warn("Execution could not open a session",
			zap.String("source_id", src.ID.String()),
			zap.String("error", logging.SanitizeError(err)))
		return models.ExecutionResult{Error: fmt.Sprintf("%v: %s", errSessionRequired, logging.SanitizeError(err))}
	}
	defer dispose()

	result, err := executor.Query(ctx, sqlText)
	if err != nil {
		s.logger.Debug("Query execution failed",
			zap.String("source_id", src.ID.String()),
			zap.String("query", logging.SanitizeQuery(sqlText)),
			zap.String("error", logging.SanitizeError(err)))
		return models.ExecutionResult{Error: logging.SanitizeError(err)}
	}

	series, err := ToSeries(result)
	if err != nil {
		return models.ExecutionResult{Error: err.Error()}
	}
	return models.ExecutionResult{Series: series}
}

func (s *queryExecutionService) ExecuteStoredQuery(ctx context.Context, actor models.Actor, sourceID, queryID uuid.UUID) (*models.StoredQueryExecution, error) {
	src, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !src.OwnedBy(actor) {
		return nil, apperrors.ErrNotFound
	}

	q, err := s.queries.GetByID(ctx, queryID)
	if err != nil {
		return nil, err
	}
	if q.SourceID != src.ID || q.ActorID != actor.ActorID {
		return nil, apperrors.ErrNotFound
	}

	result := s.Execute(ctx, src, q.QueryText)
	s.auditor.LogQueryExecution(actor, src.ID, q.ID, result.Failed())

	return &models.StoredQueryExecution{
		QueryID:   q.ID,
		ChartType: q.ChartType,
		Report:    q.Explanation,
		Result:    result,
	}, nil
}

// ToSeries maps a result positionally: the first column supplies labels and
// the second supplies values. Extra columns are ignored.
func ToSeries(result *datasource.QueryExecutionResult) (*models.Series, error) {
	if result == nil || len(result.Columns) == 0 {
		return nil, errNoColumns
	}
	if len(result.Columns) < 2 {
		return nil, errTooFewColumns
	}

	series := &models.Series{
		Data:      make([]models.SeriesPoint, 0, len(result.Rows)),
		XAxisName: result.Columns[0].Name,
		YAxisName: result.Columns[1].Name,
	}
	for i, row := range result.Rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("row %d has %d values, expected at least 2", i, len(row))
		}
		series.Data = append(series.Data, models.SeriesPoint{
			Label: datasource.Stringify(row[0]),
			Value: datasource.NormalizeValue(row[1]),
		})
	}
	return series, nil
}
