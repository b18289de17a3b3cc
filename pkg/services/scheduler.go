package services

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/database"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
)

const (
	// MaxSentQueries is the number of generated queries an (actor, source)
	// pair may receive in total.
	MaxSentQueries = 30

	// BatchSize is the number of new queries released per call. The sent-count
	// tiers below 10, 20 and 30 all use this size.
	BatchSize = 10

	// MaxTimeBasedPerBatch caps time-based queries in one batch.
	MaxTimeBasedPerBatch = BatchSize / 2
)

// QuerySchedulerService releases generated queries to an actor in capped batches.
type QuerySchedulerService interface {
	// NextBatch returns every previously delivered query followed by a newly
	// released batch, which is marked delivered before returning.
	NextBatch(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error)

	// CurrentBatch returns the delivered queries, releasing the first batch
	// when nothing was delivered yet.
	CurrentBatch(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error)
}

type querySchedulerService struct {
	sources    repositories.ExternalSourceRepository
	queries    repositories.GeneratedQueryRepository
	transactor database.Transactor
	logger     *zap.Logger
}

// NewQuerySchedulerService creates a drip-feed scheduler.
func NewQuerySchedulerService(
	sources repositories.ExternalSourceRepository,
	queries repositories.GeneratedQueryRepository,
	transactor database.Transactor,
	logger *zap.Logger,
) QuerySchedulerService {
	return &querySchedulerService{
		sources:    sources,
		queries:    queries,
		transactor: transactor,
		logger:     logger.Named("scheduler"),
	}
}

var _ QuerySchedulerService = (*querySchedulerService)(nil)

func (s *querySchedulerService) NextBatch(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	if err := s.checkOwnership(ctx, actor, sourceID); err != nil {
		return nil, err
	}

	var batch []*models.GeneratedQuery
	err := s.transactor.WithTx(ctx, func(ctx context.Context) error {
		var err error
		batch, err = s.releaseBatch(ctx, actor.ActorID, sourceID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (s *querySchedulerService) CurrentBatch(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	if err := s.checkOwnership(ctx, actor, sourceID); err != nil {
		return nil, err
	}

	sent, err := s.queries.ListSent(ctx, actor.ActorID, sourceID)
	if err != nil {
		return nil, err
	}
	if len(sent) > 0 {
		return sent, nil
	}
	return s.NextBatch(ctx, actor, sourceID)
}

// releaseBatch must run inside a transaction.
func (s *querySchedulerService) releaseBatch(ctx context.Context, actorID string, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	if err := s.queries.LockDelivery(ctx, actorID, sourceID); err != nil {
		return nil, err
	}

	sentCount, err := s.queries.CountSentGenerated(ctx, actorID, sourceID)
	if err != nil {
		return nil, err
	}
	if sentCount >= MaxSentQueries {
		s.logger.Info("Query quota exhausted",
			zap.String("actor_id", actorID),
			zap.String("source_id", sourceID.String()),
			zap.Int("sent", sentCount))
		return nil, apperrors.ErrQuotaExhausted
	}

	previous, err := s.queries.ListSent(ctx, actorID, sourceID)
	if err != nil {
		return nil, err
	}

	timeBased, err := s.queries.ListUnsentCandidates(ctx, actorID, sourceID, true, MaxTimeBasedPerBatch)
	if err != nil {
		return nil, err
	}
	others, err := s.queries.ListUnsentCandidates(ctx, actorID, sourceID, false, BatchSize-len(timeBased))
	if err != nil {
		return nil, err
	}

	fresh := make([]*models.GeneratedQuery, 0, len(timeBased)+len(others))
	fresh = append(fresh, timeBased...)
	fresh = append(fresh, others...)

	if len(previous)+len(fresh) == 0 {
		return nil, apperrors.ErrNothingAvailable
	}

	if len(fresh) > 0 {
		ids := make([]uuid.UUID, len(fresh))
		for i, q := range fresh {
			ids[i] = q.ID
			q.IsSent = true
		}
		if err := s.queries.MarkSent(ctx, ids); err != nil {
			return nil, err
		}
	}

	s.logger.Debug("Released query batch",
		zap.String("actor_id", actorID),
		zap.String("source_id", sourceID.String()),
		zap.Int("previously_sent", len(previous)),
		zap.Int("time_based", len(timeBased)),
		zap.Int("released", len(fresh)))

	batch := make([]*models.GeneratedQuery, 0, len(previous)+len(fresh))
	batch = append(batch, previous...)
	batch = append(batch, fresh...)
	return batch, nil
}

func (s *querySchedulerService) checkOwnership(ctx context.Context, actor models.Actor, sourceID uuid.UUID) error {
	src, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return err
	}
	if !src.OwnedBy(actor) {
		return apperrors.ErrNotFound
	}
	return nil
}
