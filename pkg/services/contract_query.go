package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ylohnitram/danovyhlidac-sub001/pkg/apperrors"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/cache"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/models"
	"github.com/ylohnitram/danovyhlidac-sub001/pkg/repositories"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
	warmConcurrency = 4
)

// CacheTTLs bounds the lifetime of each result kind.
type CacheTTLs struct {
	List   time.Duration
	Detail time.Duration
	Stat   time.Duration
}

// WarmResult reports what WarmCommonQueries did.
type WarmResult struct {
	Queries int      `json:"queries"`
	Warmed  int      `json:"warmed"`
	Errors  []string `json:"errors,omitempty"`
}

// ContractQueryService serves contract reads through the query cache.
type ContractQueryService interface {
	List(ctx context.Context, filter models.ContractFilter) (*models.ContractPage, error)
	// Get returns apperrors.ErrNotFound for an unknown id.
	Get(ctx context.Context, id uuid.UUID) (*models.Contract, error)
	Stats(ctx context.Context) (*models.ContractStats, error)
	// WarmCommonQueries pre-computes the given list queries plus the aggregate stats.
	WarmCommonQueries(ctx context.Context, filters []models.ContractFilter) WarmResult
}

type contractQueryService struct {
	reader repositories.ContractReader
	cache  *cache.Cache
	ttls   CacheTTLs
	logger *zap.Logger
}

var _ ContractQueryService = (*contractQueryService)(nil)

// NewContractQueryService creates the read-side service.
func NewContractQueryService(reader repositories.ContractReader, c *cache.Cache, ttls CacheTTLs, logger *zap.Logger) ContractQueryService {
	return &contractQueryService{
		reader: reader,
		cache:  c,
		ttls:   ttls,
		logger: logger.Named("contract-query"),
	}
}

// normalizeFilter makes logically identical list queries fingerprint identically.
func normalizeFilter(f models.ContractFilter) models.ContractFilter {
	f.Query = normalizeText(f.Query)
	f.Category = strings.ToLower(normalizeText(f.Category))
	if f.Limit <= 0 {
		f.Limit = defaultPageSize
	}
	if f.Limit > maxPageSize {
		f.Limit = maxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

func listKey(f models.ContractFilter) cache.Key {
	return cache.NewKey(cache.ScopeContracts, cache.KindList, map[string]any{
		"query":     f.Query,
		"kategorie": f.Category,
		"limit":     f.Limit,
		"offset":    f.Offset,
	})
}

func (s *contractQueryService) List(ctx context.Context, filter models.ContractFilter) (*models.ContractPage, error) {
	f := normalizeFilter(filter)
	page, err := cache.GetOrLoad(ctx, s.cache, listKey(f), s.ttls.List, func(ctx context.Context) (*models.ContractPage, error) {
		return s.reader.ListContracts(ctx, f)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	return page, nil
}

func (s *contractQueryService) Get(ctx context.Context, id uuid.UUID) (*models.Contract, error) {
	key := cache.NewKey(cache.ScopeContracts, cache.KindDetail, map[string]any{"id": id})
	c, err := cache.GetOrLoad(ctx, s.cache, key, s.ttls.Detail, func(ctx context.Context) (*models.Contract, error) {
		c, err := s.reader.GetContract(ctx, id)
		if err != nil {
			return nil, err
		}
		if c == nil {
			// not cached: a later sync may create it
			return nil, apperrors.ErrNotFound
		}
		return c, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get contract %s: %w", id, err)
	}
	return c, nil
}

func (s *contractQueryService) Stats(ctx context.Context) (*models.ContractStats, error) {
	key := cache.NewKey(cache.ScopeContracts, cache.KindStat, map[string]any{"stat": "overview"})
	stats, err := cache.GetOrLoad(ctx, s.cache, key, s.ttls.Stat, s.reader.Stats)
	if err != nil {
		return nil, fmt.Errorf("failed to compute contract stats: %w", err)
	}
	return stats, nil
}

func (s *contractQueryService) WarmCommonQueries(ctx context.Context, filters []models.ContractFilter) WarmResult {
	result := WarmResult{Queries: len(filters) + 1}
	errs := make([]error, len(filters)+1)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmConcurrency)
	for i, f := range filters {
		g.Go(func() error {
			_, errs[i] = s.List(gctx, f)
			return nil
		})
	}
	g.Go(func() error {
		_, errs[len(filters)] = s.Stats(gctx)
		return nil
	})
	_ = g.Wait()

	for _, err := range errs {
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			continue
		}
		result.Warmed++
	}
	s.logger.Info("Warmed cache",
		zap.Int("queries", result.Queries),
		zap.Int("warmed", result.Warmed),
		zap.Int("errors", len(result.Errors)))
	return result
}
