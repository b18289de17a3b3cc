package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-insights/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-insights/pkg/apperrors"
	"github.com/ekaya-inc/ekaya-insights/pkg/logging"
	"github.com/ekaya-inc/ekaya-insights/pkg/models"
)

// DefaultIntrospectionTimeout bounds one Profile call when none is configured.
const DefaultIntrospectionTimeout = 30 * time.Second

// SchemaIntrospector profiles the schema of an external database.
type SchemaIntrospector interface {
	// Profile discovers tables, columns, keys and the temporal range of the
	// database behind connString. Table and key discovery failures fail the
	// call; range discovery failures leave both bounds nil.
	Profile(ctx context.Context, connString string, dialect models.Dialect) (*models.SchemaProfile, error)
}

type schemaIntrospector struct {
	factory datasource.AdapterFactory
	timeout time.Duration
	logger  *zap.Logger
}

// NewSchemaIntrospector creates an introspector using the adapter registry.
func NewSchemaIntrospector(factory datasource.AdapterFactory, timeout time.Duration, logger *zap.Logger) SchemaIntrospector {
	if timeout <= 0 {
		timeout = DefaultIntrospectionTimeout
	}
	return &schemaIntrospector{
		factory: factory,
		timeout: timeout,
		logger:  logger.Named("introspector"),
	}
}

var _ SchemaIntrospector = (*schemaIntrospector)(nil)

func (s *schemaIntrospector) Profile(ctx context.Context, connString string, dialect models.Dialect) (*models.SchemaProfile, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	discoverer, err := s.factory.NewSchemaDiscoverer(ctx, dialect, connString)
	if err != nil {
		if errors.Is(err, apperrors.ErrUnsupportedDialect) {
			return nil, err
		}
		s.logger.Warn("Failed to connect for introspection",
			zap.String("dialect", string(dialect)),
			zap.String("source", logging.SanitizeConnectionString(connString)),
			zap.String("error", logging.SanitizeError(err)))
		return nil, fmt.Errorf("%w: %s", apperrors.ErrSourceUnreachable, logging.SanitizeError(err))
	}
	defer func() {
		if err := discoverer.Close(); err != nil {
			s.logger.Warn("Failed to close schema discoverer",
				zap.String("dialect", string(dialect)),
				zap.Error(err))
		}
	}()

	tables, err := discoverer.DiscoverTables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover tables: %w", err)
	}

	profile := &models.SchemaProfile{
		Tables: make([]models.TableProfile, 0, len(tables)),
	}
	var temporal []datasource.TemporalColumn

	for _, table := range tables {
		tp, cols, err := s.profileTable(ctx, discoverer, table)
		if err != nil {
			return nil, err
		}
		profile.Tables = append(profile.Tables, tp)
		temporal = append(temporal, cols...)
	}

	if len(temporal) > 0 {
		s.applyTemporalRange(ctx, discoverer, temporal, profile)
	}

	s.logger.Info("Profiled external schema",
		zap.String("dialect", string(dialect)),
		zap.Int("tables", len(profile.Tables)),
		zap.Int("temporal_columns", len(temporal)),
		zap.Bool("has_range", profile.MinDate != nil))

	return profile, nil
}

// profileTable returns the profile of one table plus its date/time columns.
func (s *schemaIntrospector) profileTable(ctx context.Context, d datasource.SchemaDiscoverer, table datasource.TableMetadata) (models.TableProfile, []datasource.TemporalColumn, error) {
	name := table.Name()
	tp := models.TableProfile{
		Name:        name,
		Columns:     []models.ColumnProfile{},
		PrimaryKeys: []string{},
		ForeignKeys: []models.ForeignKeyRef{},
	}

	columns, err := d.DiscoverColumns(ctx, table)
	if err != nil {
		return tp, nil, fmt.Errorf("failed to discover columns of %s: %w", name, err)
	}

	var temporal []datasource.TemporalColumn
	for _, c := range columns {
		tp.Columns = append(tp.Columns, models.ColumnProfile{Name: c.ColumnName, Type: c.DataType})
		if models.IsTemporalType(c.DataType) {
			temporal = append(temporal, datasource.TemporalColumn{Table: table, Column: c.ColumnName})
		}
	}

	pks, err := d.DiscoverPrimaryKeys(ctx, table)
	if err != nil {
		return tp, nil, fmt.Errorf("failed to discover primary key of %s: %w", name, err)
	}
	tp.PrimaryKeys = append(tp.PrimaryKeys, pks...)

	fks, err := d.DiscoverForeignKeys(ctx, table)
	if err != nil {
		return tp, nil, fmt.Errorf("failed to discover foreign keys of %s: %w", name, err)
	}
	for _, fk := range fks {
		tp.ForeignKeys = append(tp.ForeignKeys, models.ForeignKeyRef{
			Column:     fk.SourceColumn,
			References: fk.ReferencedTable(),
		})
	}

	return tp, temporal, nil
}

func (s *schemaIntrospector) applyTemporalRange(ctx context.Context, d datasource.SchemaDiscoverer, columns []datasource.TemporalColumn, profile *models.SchemaProfile) {
	rng, err := d.DiscoverTemporalRange(ctx, columns)
	if err != nil {
		s.logger.Warn("Temporal range discovery failed, continuing without bounds",
			zap.Int("columns", len(columns)),
			zap.String("error", logging.SanitizeError(err)))
		return
	}
	if rng == nil || rng.Min == nil || rng.Max == nil {
		return
	}

	lo, hi := *rng.Min, *rng.Max
	if hi.Before(lo) {
		lo, hi = hi, lo
	}
	profile.MinDate = &lo
	profile.MaxDate = &hi
}
