package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/database"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// ExternalSourceRepository defines data access for registered external sources.
// ConnectionString is stored as ciphertext - encryption/decryption is handled by the service layer.
type ExternalSourceRepository interface {
	// Upsert inserts the source or refreshes the existing row for the same (actor, role).
	// On return src carries the persisted id and timestamps.
	Upsert(ctx context.Context, src *models.ExternalSource) error

	// GetByID retrieves a source by id. Returns apperrors.ErrNotFound if absent.
	GetByID(ctx context.Context, id uuid.UUID) (*models.ExternalSource, error)

	// GetByActor retrieves the source registered for an (actor, role).
	GetByActor(ctx context.Context, actor models.Actor) (*models.ExternalSource, error)

	// UpdateDomain replaces the free-text domain description.
	UpdateDomain(ctx context.Context, id uuid.UUID, domain string) error
}

type externalSourceRepository struct{}

// NewExternalSourceRepository creates a new external source repository.
func NewExternalSourceRepository() ExternalSourceRepository {
	return &externalSourceRepository{}
}

const externalSourceColumns = `id, actor_id, role_id, connection_string, dialect, domain,
	schema_profile, min_date, max_date, created_at, updated_at`

func (r *externalSourceRepository) Upsert(ctx context.Context, src *models.ExternalSource) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	profile, err := marshalProfile(src.Profile)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO external_sources (actor_id, role_id, connection_string, dialect, domain,
			schema_profile, min_date, max_date)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (actor_id, role_id) DO UPDATE SET
			connection_string = EXCLUDED.connection_string,
			dialect = EXCLUDED.dialect,
			domain = EXCLUDED.domain,
			schema_profile = EXCLUDED.schema_profile,
			min_date = EXCLUDED.min_date,
			max_date = EXCLUDED.max_date,
			updated_at = now()
		RETURNING id, created_at, updated_at`

	err = scope.Conn.QueryRow(ctx, query,
		src.ActorID,
		src.RoleID,
		src.ConnectionString,
		string(src.Dialect),
		src.Domain,
		profile,
		src.MinDate,
		src.MaxDate,
	).Scan(&src.ID, &src.CreatedAt, &src.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return apperrors.ErrConflict
		}
		return fmt.Errorf("failed to upsert external source: %w", err)
	}

	return nil
}

func (r *externalSourceRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ExternalSource, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + externalSourceColumns + ` FROM external_sources WHERE id = $1`

	src, err := scanExternalSource(scope.Conn.QueryRow(ctx, query, id))
	if err != nil {
		return nil, fmt.Errorf("failed to get external source: %w", err)
	}
	return src, nil
}

func (r *externalSourceRepository) GetByActor(ctx context.Context, actor models.Actor) (*models.ExternalSource, error) {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return nil, fmt.Errorf("no database scope in context")
	}

	query := `SELECT ` + externalSourceColumns + ` FROM external_sources WHERE actor_id = $1 AND role_id = $2`

	src, err := scanExternalSource(scope.Conn.QueryRow(ctx, query, actor.ActorID, actor.RoleID))
	if err != nil {
		return nil, fmt.Errorf("failed to get external source: %w", err)
	}
	return src, nil
}

func (r *externalSourceRepository) UpdateDomain(ctx context.Context, id uuid.UUID, domain string) error {
	scope, ok := database.GetScope(ctx)
	if !ok {
		return fmt.Errorf("no database scope in context")
	}

	tag, err := scope.Conn.Exec(ctx,
		`UPDATE external_sources SET domain = $2, updated_at = now() WHERE id = $1`, id, domain)
	if err != nil {
		return fmt.Errorf("failed to update domain: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanExternalSource(row pgx.Row) (*models.ExternalSource, error) {
	var src models.ExternalSource
	var dialect string
	var profile []byte

	err := row.Scan(
		&src.ID,
		&src.ActorID,
		&src.RoleID,
		&src.ConnectionString,
		&dialect,
		&src.Domain,
		&profile,
		&src.MinDate,
		&src.MaxDate,
		&src.CreatedAt,
		&src.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, err
	}

	src.Dialect = models.Dialect(dialect)
	if len(profile) > 0 {
		src.Profile = &models.SchemaProfile{}
		if err := json.Unmarshal(profile, src.Profile); err != nil {
			return nil, fmt.Errorf("failed to decode schema profile: %w", err)
		}
	}
	return &src, nil
}

func marshalProfile(p *models.SchemaProfile) ([]byte, error) {
	if p == nil {
		return nil, nil
	}
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("failed to encode schema profile: %w", err)
	}
	return b, nil
}
