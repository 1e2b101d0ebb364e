// Package repository coordinates the metadata store and the vector index
// behind one save/find surface. Writes go to the metadata store first and
// the vector index second; a failed second write is surfaced as a
// StorageError and never rolled back, so readers may briefly see a laptop
// without a vector.
package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"laptopmcp/internal/model"
)

type SearchRepository struct {
	store    model.MetadataStore
	index    model.VectorIndex
	embedder model.Embedder

	indexPath string
	closeFns  []func() error
}

// New builds a repository over the given halves. indexPath is where the
// vector index is persisted on Close; empty disables persistence.
func New(store model.MetadataStore, index model.VectorIndex, embedder model.Embedder, indexPath string) *SearchRepository {
	r := &SearchRepository{
		store:     store,
		index:     index,
		embedder:  embedder,
		indexPath: indexPath,
	}
	r.closeFns = append(r.closeFns, store.Close)
	return r
}

// Save writes one laptop to both stores. A zero ID is replaced with the
// next counter value, a missing embedding is computed from the listing
// text, and UpdatedAt (plus CreatedAt on first write) is stamped.
func (r *SearchRepository) Save(ctx context.Context, laptop *model.Laptop) error {
	if laptop == nil {
		return errors.New("laptop is nil")
	}

	if laptop.ID == 0 {
		id, err := r.store.NextID(ctx)
		if err != nil {
			return fmt.Errorf("allocate id: %w", err)
		}
		laptop.ID = id
	}

	if len(laptop.Embedding) == 0 {
		vecs, err := r.embedder.Embed(ctx, []string{laptop.EmbeddingText()})
		if err != nil {
			return fmt.Errorf("embed laptop %d: %w", laptop.ID, err)
		}
		laptop.Embedding = vecs[0]
	}

	now := time.Now().UTC()
	if laptop.CreatedAt.IsZero() {
		laptop.CreatedAt = now
	}
	laptop.UpdatedAt = now

	if err := r.store.Put(ctx, *laptop); err != nil {
		return &model.StorageError{Op: "metadata", ID: laptop.ID, Err: err}
	}
	if err := r.index.Add(laptop.ID, laptop.Embedding); err != nil {
		// metadata half stays; the listing is findable by keyword but not
		// by similarity until the next successful save
		return &model.StorageError{Op: "vector", ID: laptop.ID, Err: err}
	}
	return nil
}

// SaveAll saves laptops in order and stops at the first failure, returning
// how many were stored.
func (r *SearchRepository) SaveAll(ctx context.Context, laptops []*model.Laptop) (int, error) {
	for i, laptop := range laptops {
		if err := r.Save(ctx, laptop); err != nil {
			return i, err
		}
	}
	return len(laptops), nil
}

func (r *SearchRepository) FindByID(ctx context.Context, id uint64) (model.Laptop, error) {
	return r.store.Get(ctx, id)
}

func (r *SearchRepository) FindByProductID(ctx context.Context, productID string) (model.Laptop, error) {
	return r.store.GetByProductID(ctx, productID)
}

func (r *SearchRepository) FindAll(ctx context.Context) ([]model.Laptop, error) {
	return r.store.All(ctx)
}

func (r *SearchRepository) FindByBrand(ctx context.Context, brand string) ([]model.Laptop, error) {
	return r.store.ByBrand(ctx, brand)
}

func (r *SearchRepository) FindByKeyword(ctx context.Context, keyword string) ([]model.Laptop, error) {
	return r.store.ByKeyword(ctx, keyword)
}

func (r *SearchRepository) FindByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]model.Laptop, error) {
	return r.store.ByPriceRange(ctx, minPrice, maxPrice)
}

// FindSimilar runs a vector search and hydrates each hit from the metadata
// store. Labels whose metadata is gone (a half-deleted listing) are
// skipped rather than failing the whole search.
func (r *SearchRepository) FindSimilar(ctx context.Context, vector []float32, limit int) ([]model.Laptop, error) {
	matches, err := r.index.Search(vector, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}

	laptops := make([]model.Laptop, 0, len(matches))
	for _, m := range matches {
		laptop, err := r.store.Get(ctx, m.Label)
		if errors.Is(err, model.ErrNotFound) {
			slog.Debug("skipping orphaned vector", "id", m.Label)
			continue
		}
		if err != nil {
			return nil, err
		}
		laptops = append(laptops, laptop)
	}
	return laptops, nil
}

func (r *SearchRepository) DeleteByID(ctx context.Context, id uint64) error {
	if err := r.store.Delete(ctx, id); err != nil {
		return &model.StorageError{Op: "metadata", ID: id, Err: err}
	}
	if err := r.index.Delete(id); err != nil {
		return &model.StorageError{Op: "vector", ID: id, Err: err}
	}
	return nil
}

// DeleteAll empties both stores. The repository stays connected and
// usable afterwards.
func (r *SearchRepository) DeleteAll(ctx context.Context) error {
	if err := r.store.DeleteAll(ctx); err != nil {
		return fmt.Errorf("clear metadata: %w", err)
	}
	r.index.Clear()
	return nil
}

func (r *SearchRepository) IsConnected(ctx context.Context) bool {
	if r.index == nil {
		return false
	}
	return r.store.Ping(ctx) == nil
}

// LoadIndex restores the persisted vector index, if any.
func (r *SearchRepository) LoadIndex() error {
	if r.indexPath == "" {
		return nil
	}
	return r.index.Load(r.indexPath)
}

// Close persists the vector index and releases the metadata store.
func (r *SearchRepository) Close() error {
	var errs []error
	if r.indexPath != "" {
		if err := r.index.Save(r.indexPath); err != nil {
			errs = append(errs, fmt.Errorf("save index: %w", err))
		}
	}
	for _, fn := range r.closeFns {
		if err := fn(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
