package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/crypto"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/retry"
)

// SessionFactory opens short-lived sessions against external sources.
type SessionFactory interface {
	// Open decrypts the source's connection string and opens a dedicated
	// executor. The returned disposer closes the executor and must be called
	// on every exit path. It is safe to call more than once.
	Open(ctx context.Context, src *models.ExternalSource) (datasource.QueryExecutor, func(), error)
}

type sessionFactory struct {
	factory   datasource.AdapterFactory
	encryptor *crypto.CredentialEncryptor
	sessions  *datasource.ConnectionManager
	logger    *zap.Logger
}

// NewSessionFactory creates a session factory. sessions bounds live sessions per actor.
func NewSessionFactory(
	factory datasource.AdapterFactory,
	encryptor *crypto.CredentialEncryptor,
	sessions *datasource.ConnectionManager,
	logger *zap.Logger,
) SessionFactory {
	return &sessionFactory{
		factory:   factory,
		encryptor: encryptor,
		sessions:  sessions,
		logger:    logger.Named("sessions"),
	}
}

var _ SessionFactory = (*sessionFactory)(nil)

func (f *sessionFactory) Open(ctx context.Context, src *models.ExternalSource) (datasource.QueryExecutor, func(), error) {
	release, err := f.sessions.Acquire(src.ActorID)
	if err != nil {
		return nil, nil, err
	}

	connString, err := f.encryptor.Decrypt(src.ConnectionString)
	if err != nil {
		release()
		return nil, nil, fmt.Errorf("failed to decrypt connection string: %w", err)
	}

	executor, err := retry.DoIfRetryable(ctx, retry.DefaultConfig(), func() (datasource.QueryExecutor, error) {
		return f.factory.NewQueryExecutor(ctx, src.Dialect, connString)
	})
	if err != nil {
		release()
		if errors.Is(err, apperrors.ErrUnsupportedDialect) {
			return nil, nil, err
		}
		f.logger.Warn("Failed to open external session",
			zap.String("source_id", src.ID.String()),
			zap.String("dialect", string(src.Dialect)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, nil, fmt.Errorf("%w: %s", apperrors.ErrSourceUnreachable, logging.SanitizeError(err))
	}

	var once sync.Once
	dispose := func() {
		once.Do(func() {
			if err := executor.Close(); err != nil {
				f.logger.Warn("Failed to close external session",
					zap.String("source_id", src.ID.String()),
					zap.Error(err))
			}
			release()
		})
	}
	return executor, dispose, nil
}
