// Package service implements partition routing and unified view maintenance
package service

import (
	"context"
	"sort"

	"gridhot/internal/platform/logger"
	"gridhot/internal/repokit"
	"gridhot/internal/services/catalog/domain"
)

// Service maintains the partition catalog and the unified view
type Service struct {
	DB     repokit.TxRunner
	Binder repokit.Binder[domain.CatalogRepo]
}

// New constructs the catalog service
func New(db repokit.TxRunner, binder repokit.Binder[domain.CatalogRepo]) *Service {
	if db == nil {
		panic("catalog.Service requires a non nil TxRunner")
	}
	if binder == nil {
		panic("catalog.Service requires a non nil Repo binder")
	}
	return &Service{DB: db, Binder: binder}
}

// ListPartitions returns the current ordered partition set from the catalog
func (s *Service) ListPartitions(ctx context.Context) ([]string, error) {
	return s.Binder.Bind(s.DB).ListPartitions(ctx)
}

// EnsureUnifiedView rebuilds the unified view over the partitions discovered
// right now. Calling it twice with no partition changes produces an identical
// definition. With zero partitions it fails with domain.ErrNoPartitions
// instead of creating an empty view
func (s *Service) EnsureUnifiedView(ctx context.Context, viewName string) error {
	if viewName == "" {
		viewName = domain.DefaultViewName
	}
	repo := s.Binder.Bind(s.DB)
	parts, err := repo.ListPartitions(ctx)
	if err != nil {
		return err
	}
	if len(parts) == 0 {
		return domain.ErrNoPartitions
	}
	sort.Strings(parts)
	if err := repo.CreateUnifiedView(ctx, viewName, parts); err != nil {
		return err
	}
	logger.C(ctx).Info().Str("view", viewName).Int("partitions", len(parts)).Msg("unified view rebuilt")
	return nil
}

// CreatePartition creates the named partition table if absent
func (s *Service) CreatePartition(ctx context.Context, partition string) error {
	return s.Binder.Bind(s.DB).CreatePartition(ctx, partition)
}

// DropPartitionFor drops the partition for a group key; administrative only
func (s *Service) DropPartitionFor(ctx context.Context, groupKey string) error {
	part, err := domain.Route(groupKey)
	if err != nil {
		return err
	}
	if err := s.Binder.Bind(s.DB).DropPartition(ctx, part); err != nil {
		return err
	}
	logger.C(ctx).Warn().Str("partition", part).Msg("partition dropped")
	return nil
}
