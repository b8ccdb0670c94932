package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/custodia-labs/cityseed/internal/core/domain"
	"github.com/custodia-labs/cityseed/internal/core/ports/driven"
	"github.com/custodia-labs/cityseed/internal/core/ports/driving"
)

var _ driving.SourceService = (*SourceService)(nil)

// SourceService validates and stores the SourceSpecs that feed each city.
type SourceService struct {
	sourceStore       driven.SourceStore
	connectorRegistry driving.ConnectorRegistry
	now               func() time.Time
}

func NewSourceService(sourceStore driven.SourceStore, registry driving.ConnectorRegistry) *SourceService {
	return &SourceService{
		sourceStore:       sourceStore,
		connectorRegistry: registry,
		now:               time.Now,
	}
}

// Add stores a new SourceSpec after checking its city, type and required
// config. A blank ID is replaced by a random UUID; a taken one is
// ErrAlreadyExists.
func (s *SourceService) Add(ctx context.Context, spec domain.SourceSpec) error {
	if s.sourceStore == nil {
		return domain.ErrNotImplemented
	}
	if err := s.check(ctx, spec); err != nil {
		return err
	}
	if spec.ID == "" {
		spec.ID = uuid.NewString()
	}
	switch _, err := s.sourceStore.Get(ctx, spec.ID); {
	case err == nil:
		return fmt.Errorf("source %s: %w", spec.ID, domain.ErrAlreadyExists)
	case !errors.Is(err, domain.ErrNotFound):
		return err
	}
	spec.CreatedAt = s.now().UTC()
	spec.UpdatedAt = spec.CreatedAt
	return s.sourceStore.Save(ctx, spec)
}

func (s *SourceService) check(ctx context.Context, spec domain.SourceSpec) error {
	if strings.TrimSpace(spec.CityID) == "" {
		return fmt.Errorf("%w: source needs a city", domain.ErrInvalidInput)
	}
	if _, err := domain.ParseSourceType(string(spec.Type)); err != nil {
		return err
	}
	return s.ValidateConfig(ctx, spec.Type, spec.Config)
}

func (s *SourceService) Get(ctx context.Context, id string) (*domain.SourceSpec, error) {
	if s.sourceStore == nil {
		return nil, domain.ErrNotImplemented
	}
	return s.sourceStore.Get(ctx, id)
}

// List returns every spec, or only cityID's when it is set.
func (s *SourceService) List(ctx context.Context, cityID string) ([]domain.SourceSpec, error) {
	switch {
	case s.sourceStore == nil:
		return nil, domain.ErrNotImplemented
	case cityID == "":
		return s.sourceStore.List(ctx)
	default:
		return s.sourceStore.ListByCity(ctx, cityID)
	}
}

// Remove deletes the SourceSpec only. Signals it contributed stay on their nodes.
func (s *SourceService) Remove(ctx context.Context, id string) error {
	if s.sourceStore == nil {
		return domain.ErrNotImplemented
	}
	return s.sourceStore.Delete(ctx, id)
}

// ValidateConfig checks config against the connector catalogue entry for
// sourceType.
func (s *SourceService) ValidateConfig(_ context.Context, sourceType domain.SourceType, config map[string]string) error {
	if s.connectorRegistry == nil {
		return domain.ErrNotImplemented
	}
	ct, err := s.connectorRegistry.Get(sourceType)
	if err != nil {
		return fmt.Errorf("unknown source type %q: %w", sourceType, err)
	}
	if missing := ct.Missing(config); len(missing) > 0 {
		return fmt.Errorf("%w: %s source needs %s", domain.ErrInvalidInput, sourceType, strings.Join(missing, ", "))
	}
	return nil
}
