package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrNotConnected = errors.New("store not connected")
)

// StorageError reports a partial dual-store write: one half of the
// metadata/vector pair was written and the other failed. The stores are
// left as they are; the caller decides whether to retry the save.
type StorageError struct {
	Op  string // "metadata" or "vector"
	ID  uint64
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage: %s write for laptop %d: %v", e.Op, e.ID, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

// Laptop is a single second-hand laptop listing.
type Laptop struct {
	ID            uint64    `json:"id"`
	ProductID     string    `json:"productId"`
	Brand         string    `json:"brand"`
	Model         string    `json:"model"`
	Title         string    `json:"title"`
	Description   string    `json:"description"`
	Price         float64   `json:"price"`
	OriginalPrice float64   `json:"originalPrice"`
	Processor     string    `json:"processor"`
	Memory        string    `json:"memory"`
	Storage       string    `json:"storage"`
	Display       string    `json:"display"`
	Condition     string    `json:"condition"`
	SellerName    string    `json:"sellerName"`
	SellerRating  float64   `json:"sellerRating"`
	ImageURL      string    `json:"imageUrl"`
	ProductURL    string    `json:"productUrl"`
	CrawledAt     time.Time `json:"crawledAt"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`

	// Embedding is carried in memory between embed and index steps; the
	// vector index is its system of record, not the metadata store.
	Embedding []float32 `json:"-"`
}

// EmbeddingText is the text a laptop's vector is computed from.
func (l *Laptop) EmbeddingText() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{l.Brand, l.Model, l.Title, l.Description} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, " ")
}

// MatchesKeyword reports whether the keyword occurs, case-insensitively,
// in the brand, model, title, or description.
func (l *Laptop) MatchesKeyword(keyword string) bool {
	kw := strings.ToLower(keyword)
	for _, s := range []string{l.Brand, l.Model, l.Title, l.Description} {
		if s != "" && strings.Contains(strings.ToLower(s), kw) {
			return true
		}
	}
	return false
}

// MetadataStore is the interface for laptop metadata storage.
type MetadataStore interface {
	Init(ctx context.Context) error
	Close() error

	Put(ctx context.Context, laptop Laptop) error
	Get(ctx context.Context, id uint64) (Laptop, error)
	GetByProductID(ctx context.Context, productID string) (Laptop, error)
	All(ctx context.Context) ([]Laptop, error)
	ByBrand(ctx context.Context, brand string) ([]Laptop, error)
	ByKeyword(ctx context.Context, keyword string) ([]Laptop, error)
	ByPriceRange(ctx context.Context, minPrice, maxPrice float64) ([]Laptop, error)
	Delete(ctx context.Context, id uint64) error
	DeleteAll(ctx context.Context) error

	// NextID atomically allocates the next laptop id (fetch-and-add).
	NextID(ctx context.Context) (uint64, error)

	Ping(ctx context.Context) error
}

// Match is a single vector search hit.
type Match struct {
	Label uint64
	Score float32
}

// VectorIndex is the interface for similarity search over laptop vectors.
type VectorIndex interface {
	Add(label uint64, vector []float32) error
	Search(vector []float32, k int) ([]Match, error)
	Delete(label uint64) error
	Clear()
	Len() int
	Save(path string) error
	Load(path string) error
}

// Embedder generates embeddings for a batch of texts.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}
