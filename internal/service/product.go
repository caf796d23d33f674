package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/askcart-ai/assistant/internal/assistant"
	"github.com/askcart-ai/assistant/internal/catalog"
	"github.com/askcart-ai/assistant/internal/model"
	"github.com/askcart-ai/assistant/pkg/logger"
)

// ProductService serves catalog reads and reasoning-backed product tools.
type ProductService struct {
	catalog  catalog.Accessor
	reasoner Reasoner
	logger   *logger.Logger
}

// NewProductService creates a new product service.
func NewProductService(cat catalog.Accessor, reasoner Reasoner, log *logger.Logger) *ProductService {
	return &ProductService{
		catalog:  cat,
		reasoner: reasoner,
		logger:   log,
	}
}

// List returns the full catalog.
func (s *ProductService) List(ctx context.Context) ([]model.Product, error) {
	return s.catalog.List(ctx)
}

// Get returns one product.
func (s *ProductService) Get(ctx context.Context, id string) (*model.Product, error) {
	return s.catalog.Get(ctx, id)
}

// Search returns at most catalog.MaxSearchResults matches.
func (s *ProductService) Search(ctx context.Context, term string) ([]model.Product, error) {
	return s.catalog.Search(ctx, strings.TrimSpace(term))
}

// Compare looks up the given products and asks the reasoner to compare the
// ones that exist. Fewer than two ids is an invalid argument; fewer than two
// found products is not found.
func (s *ProductService) Compare(ctx context.Context, ids []string) (*assistant.Comparison, error) {
	ids = dedupe(ids)
	if len(ids) < 2 {
		return nil, fmt.Errorf("%w: at least 2 products are required for comparison", model.ErrInvalidArgument)
	}

	products := make([]model.Product, 0, len(ids))
	for _, id := range ids {
		p, err := s.catalog.Get(ctx, id)
		if errors.Is(err, model.ErrNotFound) {
			s.logger.Debug("compare skipped missing product", zap.String("product_id", id))
			continue
		}
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}

	if len(products) < 2 {
		return nil, fmt.Errorf("%w: not enough products found for comparison", model.ErrNotFound)
	}

	return s.reasoner.CompareProducts(ctx, products)
}

// Analyze extracts structured filters from a free-text query.
func (s *ProductService) Analyze(ctx context.Context, query string) (*assistant.QueryAnalysis, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: query is required", model.ErrInvalidArgument)
	}
	return s.reasoner.AnalyzeQuery(ctx, query), nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
