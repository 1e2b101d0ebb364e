// Package search routes search requests to the repository and applies the
// query-shaping rules: default limits, reference exclusion for by-id
// similarity, and refresh orchestration.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"laptopmcp/internal/ingest"
	"laptopmcp/internal/model"
	"laptopmcp/internal/repository"
)

// DefaultLimit is used when a similarity query asks for zero or a negative
// number of results.
const DefaultLimit = 5

type Service struct {
	repo     *repository.SearchRepository
	embedder model.Embedder
	source   ingest.Source
}

func NewService(repo *repository.SearchRepository, embedder model.Embedder, source ingest.Source) *Service {
	return &Service{
		repo:     repo,
		embedder: embedder,
		source:   source,
	}
}

func (s *Service) SearchByKeyword(ctx context.Context, keyword string) ([]model.Laptop, error) {
	return s.repo.FindByKeyword(ctx, keyword)
}

// SearchByPriceRange returns laptops priced within [minPrice, maxPrice],
// both bounds inclusive. An inverted range matches nothing.
func (s *Service) SearchByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]model.Laptop, error) {
	if minPrice > maxPrice {
		return []model.Laptop{}, nil
	}
	return s.repo.FindByPriceRange(ctx, minPrice, maxPrice)
}

// FindSimilarByText embeds the description and returns up to limit nearest
// listings.
func (s *Service) FindSimilarByText(ctx context.Context, description string, limit int) ([]model.Laptop, error) {
	limit = normalizeLimit(limit)
	vecs, err := s.embedder.Embed(ctx, []string{description})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	return s.repo.FindSimilar(ctx, vecs[0], limit)
}

// FindSimilarByID returns up to limit listings nearest to the referenced
// laptop, never including the reference itself.
func (s *Service) FindSimilarByID(ctx context.Context, id uint64, limit int) ([]model.Laptop, error) {
	limit = normalizeLimit(limit)

	ref, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reference laptop %d: %w", id, err)
	}
	vector := ref.Embedding
	if len(vector) == 0 {
		vecs, err := s.embedder.Embed(ctx, []string{ref.EmbeddingText()})
		if err != nil {
			return nil, fmt.Errorf("embed reference laptop %d: %w", id, err)
		}
		vector = vecs[0]
	}

	// over-fetch by one so the reference can be dropped without shorting
	// the caller
	hits, err := s.repo.FindSimilar(ctx, vector, limit+1)
	if err != nil {
		return nil, err
	}
	out := make([]model.Laptop, 0, limit)
	for _, hit := range hits {
		if hit.ID == id {
			continue
		}
		out = append(out, hit)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Service) FindByProductID(ctx context.Context, productID string) (model.Laptop, error) {
	return s.repo.FindByProductID(ctx, productID)
}

func (s *Service) FindByBrand(ctx context.Context, brand string) ([]model.Laptop, error) {
	return s.repo.FindByBrand(ctx, brand)
}

// Refresh pulls fresh listings from the ingest source and stores them.
// A listing whose product reference is already known updates the existing
// record in place, keeping its id; only listings with a new reference
// count toward the returned total.
func (s *Service) Refresh(ctx context.Context) (int, error) {
	start := time.Now()
	listings, err := s.source.Fetch(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch listings: %w", err)
	}

	ingested := 0
	for i := range listings {
		listing := &listings[i]
		if listing.ProductID != "" {
			existing, err := s.repo.FindByProductID(ctx, listing.ProductID)
			switch {
			case err == nil:
				listing.ID = existing.ID
				listing.CreatedAt = existing.CreatedAt
			case errors.Is(err, model.ErrNotFound):
				// new reference, stored below
			default:
				return ingested, fmt.Errorf("look up listing %s: %w", listing.ProductID, err)
			}
		}
		isNew := listing.ID == 0
		if err := s.repo.Save(ctx, listing); err != nil {
			return ingested, fmt.Errorf("save listing %s: %w", listing.ProductID, err)
		}
		if isNew {
			ingested++
		}
	}
	slog.Info("laptop data refreshed",
		"new", ingested, "total", len(listings),
		"duration_ms", time.Since(start).Milliseconds())
	return ingested, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	return limit
}
