package search

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"laptopmcp/internal/index"
	"laptopmcp/internal/ingest"
	"laptopmcp/internal/model"
	"laptopmcp/internal/repository"
	"laptopmcp/internal/store"
)

// vectorEmbedder returns canned vectors keyed by text, so similarity
// rankings in tests are fully controlled.
type vectorEmbedder struct {
	byText map[string][]float32
}

func (e *vectorEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if vec, ok := e.byText[text]; ok {
			out[i] = vec
			continue
		}
		out[i] = []float32{0.1, 0.1, 0.1}
	}
	return out, nil
}

func newTestService(t *testing.T) (*Service, *repository.SearchRepository) {
	t.Helper()
	st := store.NewSQLiteStore(filepath.Join(t.TempDir(), "laptops.sqlite"))
	if err := st.Init(context.Background()); err != nil {
		t.Fatalf("store init failed: %v", err)
	}
	emb := &vectorEmbedder{byText: map[string][]float32{
		"slim business ultrabook": {1, 0, 0},
		// stored embeddings are in-memory only, so the by-id path
		// re-embeds the reference listing's text
		"Lenovo ThinkPad X1 Carbon ThinkPad X1 Carbon Gen 9 slim business ultrabook": {1, 0, 0},
	}}
	repo := repository.New(st, index.NewCosineIndex(""), emb, "")
	t.Cleanup(func() { _ = repo.Close() })

	source := &ingest.StaticSource{Listings: []model.Laptop{
		{ProductID: "f-1", Brand: "Dell", Model: "XPS 13", Title: "XPS 13", Price: 5200},
		{ProductID: "f-2", Brand: "HP", Model: "EliteBook", Title: "EliteBook 840", Price: 3100},
	}}
	return NewService(repo, emb, source), repo
}

func seedCatalog(t *testing.T, repo *repository.SearchRepository) map[string]uint64 {
	t.Helper()
	ctx := context.Background()
	catalog := []model.Laptop{
		{ProductID: "p-x1", Brand: "Lenovo", Model: "ThinkPad X1 Carbon", Title: "ThinkPad X1 Carbon Gen 9", Description: "slim business ultrabook", Price: 5999, Embedding: []float32{1, 0, 0}},
		{ProductID: "p-t480", Brand: "Lenovo", Model: "ThinkPad T480", Title: "ThinkPad T480", Description: "durable business laptop", Price: 2999, Embedding: []float32{0.95, 0.05, 0}},
		{ProductID: "p-mba", Brand: "Apple", Model: "MacBook Air M1", Title: "MacBook Air", Description: "thin and light", Price: 4500, Embedding: []float32{0, 1, 0}},
		{ProductID: "p-rog", Brand: "Asus", Model: "ROG Zephyrus", Title: "ROG gaming laptop", Description: "gaming rig", Price: 8999, Embedding: []float32{0, 0, 1}},
	}
	ids := make(map[string]uint64, len(catalog))
	for i := range catalog {
		if err := repo.Save(ctx, &catalog[i]); err != nil {
			t.Fatalf("seed Save failed: %v", err)
		}
		ids[catalog[i].ProductID] = catalog[i].ID
	}
	return ids
}

func TestSearchByKeywordMatchesSubstring(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)

	got, err := svc.SearchByKeyword(context.Background(), "thinkpad")
	if err != nil {
		t.Fatalf("SearchByKeyword failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 ThinkPads, got %d", len(got))
	}
}

func TestSearchByPriceRange(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)
	ctx := context.Background()

	got, err := svc.SearchByPriceRange(ctx, 2999, 5999)
	if err != nil {
		t.Fatalf("SearchByPriceRange failed: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("inclusive bounds: expected 3, got %d", len(got))
	}

	// inverted range matches nothing and is not an error
	got, err = svc.SearchByPriceRange(ctx, 5000, 1000)
	if err != nil {
		t.Fatalf("inverted range errored: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("inverted range returned %d laptops", len(got))
	}
}

func TestFindSimilarByTextRanksNearestFirst(t *testing.T) {
	svc, repo := newTestService(t)
	ids := seedCatalog(t, repo)

	got, err := svc.FindSimilarByText(context.Background(), "slim business ultrabook", 2)
	if err != nil {
		t.Fatalf("FindSimilarByText failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 results, got %d", len(got))
	}
	if got[0].ID != ids["p-x1"] || got[1].ID != ids["p-t480"] {
		t.Fatalf("unexpected ranking: %s then %s", got[0].ProductID, got[1].ProductID)
	}
}

func TestFindSimilarByIDExcludesReference(t *testing.T) {
	svc, repo := newTestService(t)
	ids := seedCatalog(t, repo)

	got, err := svc.FindSimilarByID(context.Background(), ids["p-x1"], 3)
	if err != nil {
		t.Fatalf("FindSimilarByID failed: %v", err)
	}
	if len(got) > 3 {
		t.Fatalf("limit exceeded: %d", len(got))
	}
	for _, l := range got {
		if l.ID == ids["p-x1"] {
			t.Fatal("reference laptop leaked into its own similarity results")
		}
	}
	if got[0].ID != ids["p-t480"] {
		t.Fatalf("expected T480 nearest to X1, got %s", got[0].ProductID)
	}
}

func TestFindSimilarByIDUnknownReference(t *testing.T) {
	svc, _ := newTestService(t)
	if _, err := svc.FindSimilarByID(context.Background(), 4040, 3); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestFindSimilarDefaultLimit(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()
	for i := 0; i < 10; i++ {
		l := model.Laptop{ProductID: string(rune('a' + i)), Embedding: []float32{1, float32(i) / 100, 0}}
		if err := repo.Save(ctx, &l); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	got, err := svc.FindSimilarByText(ctx, "slim business ultrabook", 0)
	if err != nil {
		t.Fatalf("FindSimilarByText failed: %v", err)
	}
	if len(got) != DefaultLimit {
		t.Fatalf("expected default limit %d, got %d", DefaultLimit, len(got))
	}
}

func TestRefreshStoresAllListings(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	count, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 stored, got %d", count)
	}
	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 laptops after refresh, got %d", len(all))
	}
	for _, l := range all {
		if l.ID == 0 {
			t.Fatalf("refresh stored laptop without id: %+v", l)
		}
	}
}

func TestRefreshDoesNotDuplicateKnownProductReferences(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	count, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("first Refresh failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 new listings, got %d", count)
	}
	first, err := repo.FindByProductID(ctx, "f-1")
	if err != nil {
		t.Fatalf("FindByProductID failed: %v", err)
	}

	count, err = svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("re-ingestion counted as new: %d", count)
	}

	all, err := repo.FindAll(ctx)
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 laptops after re-refresh, got %d", len(all))
	}
	seen := map[string]int{}
	for _, l := range all {
		seen[l.ProductID]++
	}
	for pid, n := range seen {
		if n != 1 {
			t.Fatalf("product %s stored %d times", pid, n)
		}
	}

	got, err := repo.FindByProductID(ctx, "f-1")
	if err != nil {
		t.Fatalf("FindByProductID after re-refresh failed: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("re-ingestion minted a new id: %d vs %d", got.ID, first.ID)
	}
	if !got.CreatedAt.Equal(first.CreatedAt) {
		t.Fatalf("re-ingestion rewrote CreatedAt: %v vs %v", got.CreatedAt, first.CreatedAt)
	}
}

func TestRefreshUpdatesExistingListingInPlace(t *testing.T) {
	svc, repo := newTestService(t)
	ctx := context.Background()

	source := &ingest.StaticSource{Listings: []model.Laptop{
		{ProductID: "f-9", Brand: "Dell", Model: "XPS 13", Title: "XPS 13", Price: 5200},
	}}
	svc.source = source

	if _, err := svc.Refresh(ctx); err != nil {
		t.Fatalf("first Refresh failed: %v", err)
	}
	source.Listings[0].Price = 4800

	count, err := svc.Refresh(ctx)
	if err != nil {
		t.Fatalf("second Refresh failed: %v", err)
	}
	if count != 0 {
		t.Fatalf("price update counted as new listing: %d", count)
	}
	got, err := repo.FindByProductID(ctx, "f-9")
	if err != nil {
		t.Fatalf("FindByProductID failed: %v", err)
	}
	if got.Price != 4800 {
		t.Fatalf("re-ingestion did not update price: %v", got.Price)
	}
}

func TestFindByProductIDAndBrand(t *testing.T) {
	svc, repo := newTestService(t)
	seedCatalog(t, repo)
	ctx := context.Background()

	got, err := svc.FindByProductID(ctx, "p-mba")
	if err != nil {
		t.Fatalf("FindByProductID failed: %v", err)
	}
	if got.Model != "MacBook Air M1" {
		t.Fatalf("unexpected laptop: %+v", got)
	}

	brands, err := svc.FindByBrand(ctx, "lenovo")
	if err != nil {
		t.Fatalf("FindByBrand failed: %v", err)
	}
	if len(brands) != 2 {
		t.Fatalf("expected 2 Lenovo laptops, got %d", len(brands))
	}
}
