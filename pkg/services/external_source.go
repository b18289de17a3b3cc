package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/audit"
	"github.com/ekaya-inc/ekaya-insights/pkg/config"
	"github.com/ekaya-inc/ekaya-insights/pkg/crypto"
	"github.com/ekaya-inc/ekaya-insights/pkg/generator"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
	"github.com/ekaya-inc/ekaya-insights/pkg/repositories"
)

// RegisterSourceRequest describes an external database to register. Either
// ConnectionString or the discrete parts (Host, Database, ...) must be set.
type RegisterSourceRequest struct {
	ConnectionString string `json:"connection_string,omitempty"`
	Dialect          string `json:"db_type,omitempty"`
	Domain           string `json:"domain,omitempty"`
	Host             string `json:"host,omitempty"`
	Port             int    `json:"port,omitempty"`
	Database         string `json:"db_name,omitempty"`
	User             string `json:"username,omitempty"`
	Password         string `json:"password,omitempty"`
}

// ExternalSourceService manages registered sources and the queries generated for them.
type ExternalSourceService interface {
	// Register profiles the database and stores it as the actor's source,
	// replacing any earlier registration for the same (actor, role).
	Register(ctx context.Context, actor models.Actor, req RegisterSourceRequest) (*models.ExternalSource, error)

	Get(ctx context.Context, actor models.Actor, sourceID uuid.UUID) (*models.ExternalSource, error)
	UpdateDomain(ctx context.Context, actor models.Actor, sourceID uuid.UUID, domain string) (*models.ExternalSource, error)

	// GenerateQueries asks the generation service for analytical queries and stores them.
	GenerateQueries(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error)

	// ImportQueries stores externally produced candidates as generated queries.
	ImportQueries(ctx context.Context, actor models.Actor, sourceID uuid.UUID, candidates []models.QueryCandidate) ([]*models.GeneratedQuery, error)

	// ListQueries returns every query stored for the source, oldest first.
	ListQueries(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error)

	// AskNaturalLanguage converts a question into SQL. The result is stored as
	// user-generated and already delivered, outside the batch quota.
	AskNaturalLanguage(ctx context.Context, actor models.Actor, sourceID uuid.UUID, question string) ([]*models.GeneratedQuery, error)
}

type externalSourceService struct {
	sources      repositories.ExternalSourceRepository
	queries      repositories.GeneratedQueryRepository
	introspector SchemaIntrospector
	factory      datasource.AdapterFactory
	encryptor    *crypto.CredentialEncryptor
	generator    generator.Service
	auditor      audit.Auditor
	logger       *zap.Logger
}

// NewExternalSourceService creates an external source service with dependencies.
func NewExternalSourceService(
	sources repositories.ExternalSourceRepository,
	queries repositories.GeneratedQueryRepository,
	introspector SchemaIntrospector,
	factory datasource.AdapterFactory,
	encryptor *crypto.CredentialEncryptor,
	gen generator.Service,
	auditor audit.Auditor,
	logger *zap.Logger,
) ExternalSourceService {
	return &externalSourceService{
		sources:      sources,
		queries:      queries,
		introspector: introspector,
		factory:      factory,
		encryptor:    encryptor,
		generator:    gen,
		auditor:      auditor,
		logger:       logger.Named("sources"),
	}
}

var _ ExternalSourceService = (*externalSourceService)(nil)

func (s *externalSourceService) Register(ctx context.Context, actor models.Actor, req RegisterSourceRequest) (*models.ExternalSource, error) {
	connString, dialect, err := s.resolveConnection(req)
	if err != nil {
		return nil, err
	}

	profile, err := s.introspector.Profile(ctx, connString, dialect)
	if err != nil {
		return nil, err
	}

	encrypted, err := s.encryptor.Encrypt(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt connection string: %w", err)
	}

	src := &models.ExternalSource{
		ActorID:          actor.ActorID,
		RoleID:           actor.RoleID,
		ConnectionString: encrypted,
		Dialect:          dialect,
		Domain:           strings.TrimSpace(req.Domain),
		Profile:          profile,
		MinDate:          profile.MinDate,
		MaxDate:          profile.MaxDate,
	}
	if err := s.sources.Upsert(ctx, src); err != nil {
		return nil, err
	}

	s.auditor.LogSourceRegistered(actor, src.ID, dialect)
	s.logger.Info("Registered external source",
		zap.String("source_id", src.ID.String()),
		zap.String("actor_id", actor.ActorID),
		zap.String("dialect", string(dialect)),
		zap.Int("tables", len(profile.Tables)))

	return src, nil
}

// resolveConnection returns the plaintext connection string and its dialect.
func (s *externalSourceService) resolveConnection(req RegisterSourceRequest) (string, models.Dialect, error) {
	connString := strings.TrimSpace(req.ConnectionString)

	var dialect models.Dialect
	if req.Dialect != "" {
		d, ok := models.ParseDialect(req.Dialect)
		if !ok {
			return "", "", fmt.Errorf("%w: %s", apperrors.ErrUnsupportedDialect, req.Dialect)
		}
		dialect = d
	} else if connString != "" {
		d, ok := datasource.InferDialect(connString)
		if !ok {
			return "", "", fmt.Errorf("%w: cannot infer dialect from connection string, set db_type", apperrors.ErrInvalidInput)
		}
		dialect = d
	} else {
		return "", "", fmt.Errorf("%w: db_type is required without a connection string", apperrors.ErrInvalidInput)
	}

	if connString != "" {
		return connString, dialect, nil
	}

	if req.Database == "" || (dialect != models.DialectSQLite && req.Host == "") {
		return "", "", fmt.Errorf("%w: connection_string or host and db_name are required", apperrors.ErrInvalidInput)
	}

	built, err := s.factory.BuildConnectionString(dialect, datasource.ConnectionParams{
		Host:     config.ResolveSourceHost(req.Host),
		Port:     req.Port,
		Database: req.Database,
		User:     req.User,
		Password: req.Password,
	})
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", apperrors.ErrInvalidInput, err)
	}
	return built, dialect, nil
}

func (s *externalSourceService) Get(ctx context.Context, actor models.Actor, sourceID uuid.UUID) (*models.ExternalSource, error) {
	src, err := s.sources.GetByID(ctx, sourceID)
	if err != nil {
		return nil, err
	}
	if !src.OwnedBy(actor) {
		return nil, apperrors.ErrNotFound
	}
	return src, nil
}

func (s *externalSourceService) UpdateDomain(ctx context.Context, actor models.Actor, sourceID uuid.UUID, domain string) (*models.ExternalSource, error) {
	src, err := s.Get(ctx, actor, sourceID)
	if err != nil {
		return nil, err
	}

	domain = strings.TrimSpace(domain)
	if err := s.sources.UpdateDomain(ctx, src.ID, domain); err != nil {
		return nil, err
	}
	src.Domain = domain
	return src, nil
}

func (s *externalSourceService) GenerateQueries(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	src, err := s.Get(ctx, actor, sourceID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.generator.Generate(ctx, &generator.GenerateRequest{
		Domain:   src.Domain,
		DBSchema: src.Profile,
		DBType:   string(src.Dialect),
		MinDate:  src.MinDate,
		MaxDate:  src.MaxDate,
	})
	if err != nil {
		return nil, err
	}

	return s.store(ctx, actor, src, candidates, false)
}

func (s *externalSourceService) ImportQueries(ctx context.Context, actor models.Actor, sourceID uuid.UUID, candidates []models.QueryCandidate) ([]*models.GeneratedQuery, error) {
	src, err := s.Get(ctx, actor, sourceID)
	if err != nil {
		return nil, err
	}

	for i, c := range candidates {
		if strings.TrimSpace(c.Query) == "" {
			return nil, fmt.Errorf("%w: query %d is empty", apperrors.ErrInvalidInput, i)
		}
		if c.Relevance < 0 || c.Relevance > 1 {
			return nil, fmt.Errorf("%w: query %d relevance must be between 0 and 1", apperrors.ErrInvalidInput, i)
		}
	}

	return s.store(ctx, actor, src, candidates, false)
}

func (s *externalSourceService) ListQueries(ctx context.Context, actor models.Actor, sourceID uuid.UUID) ([]*models.GeneratedQuery, error) {
	src, err := s.Get(ctx, actor, sourceID)
	if err != nil {
		return nil, err
	}
	return s.queries.ListBySource(ctx, actor.ActorID, src.ID)
}

func (s *externalSourceService) AskNaturalLanguage(ctx context.Context, actor models.Actor, sourceID uuid.UUID, question string) ([]*models.GeneratedQuery, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("%w: question is required", apperrors.ErrInvalidInput)
	}

	src, err := s.Get(ctx, actor, sourceID)
	if err != nil {
		return nil, err
	}

	s.auditor.ScreenNaturalLanguage(actor, src.ID, question)

	candidates, err := s.generator.Translate(ctx, &generator.NLQueryRequest{
		NLQuery:  question,
		DBSchema: src.Profile,
		DBType:   string(src.Dialect),
	})
	if err != nil {
		return nil, err
	}

	return s.store(ctx, actor, src, candidates, true)
}

func (s *externalSourceService) store(ctx context.Context, actor models.Actor, src *models.ExternalSource, candidates []models.QueryCandidate, userGenerated bool) ([]*models.GeneratedQuery, error) {
	if len(candidates) == 0 {
		return []*models.GeneratedQuery{}, nil
	}

	// User-generated queries are delivered as soon as they exist.
	created, err := s.queries.CreateBatch(ctx, src.ID, actor.ActorID, candidates, userGenerated, userGenerated)
	if err != nil {
		return nil, err
	}

	s.logger.Info("Stored generated queries",
		zap.String("source_id", src.ID.String()),
		zap.Int("count", len(created)),
		zap.Bool("user_generated", userGenerated))

	return created, nil
}
