package index

import (
	"encoding/gob"
	"errors"
	"log/slog"
	"math"
	"os"
	"sort"
	"sync"

	"laptopmcp/internal/model"
)

// CosineIndex is an in-memory vector index over laptop embeddings. Labels
// are laptop ids. Search is exact cosine similarity over all stored
// vectors; at catalog scale (thousands of listings) a graph index buys
// nothing.
type CosineIndex struct {
	path    string
	mu      sync.RWMutex
	vectors map[uint64][]float32
}

// NewCosineIndex creates an empty index. The optional path is used by
// Save/Load when they are called with an empty path argument.
func NewCosineIndex(path string) *CosineIndex {
	return &CosineIndex{
		path:    path,
		vectors: make(map[uint64][]float32),
	}
}

func (i *CosineIndex) Add(label uint64, vector []float32) error {
	if len(vector) == 0 {
		return errors.New("vector cannot be empty")
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	copied := make([]float32, len(vector))
	copy(copied, vector)
	i.vectors[label] = copied
	return nil
}

func (i *CosineIndex) Delete(label uint64) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	delete(i.vectors, label)
	return nil
}

// Clear drops every stored vector. The index stays usable.
func (i *CosineIndex) Clear() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.vectors = make(map[uint64][]float32)
}

func (i *CosineIndex) Len() int {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return len(i.vectors)
}

// Search returns up to k matches ordered by descending cosine similarity,
// ties broken by ascending label. Vectors whose dimension differs from the
// query are skipped.
func (i *CosineIndex) Search(vector []float32, k int) ([]model.Match, error) {
	if len(vector) == 0 {
		return nil, errors.New("query vector cannot be empty")
	}
	if k <= 0 {
		return []model.Match{}, nil
	}

	type candidate struct {
		label  uint64
		vector []float32
	}

	// Hold the read lock only long enough to snapshot candidates; scoring
	// happens outside the lock.
	var (
		candidates []candidate
		mismatches int
	)
	i.mu.RLock()
	for label, cand := range i.vectors {
		if len(cand) != len(vector) {
			mismatches++
			continue
		}
		copied := make([]float32, len(cand))
		copy(copied, cand)
		candidates = append(candidates, candidate{label, copied})
	}
	i.mu.RUnlock()

	if mismatches > 0 {
		slog.Warn("index skipped vectors with mismatched dimension",
			"skipped", mismatches, "query_dim", len(vector))
	}

	matches := make([]model.Match, 0, len(candidates))
	for _, c := range candidates {
		matches = append(matches, model.Match{
			Label: c.label,
			Score: cosineSimilarity(vector, c.vector),
		})
	}

	sort.Slice(matches, func(a, b int) bool {
		if matches[a].Score == matches[b].Score {
			return matches[a].Label < matches[b].Label
		}
		return matches[a].Score > matches[b].Score
	})

	if len(matches) > k {
		matches = matches[:k]
	}
	return matches, nil
}

func (i *CosineIndex) Save(path string) error {
	if path == "" {
		path = i.path
	}
	if path == "" {
		return errors.New("path is required")
	}

	tmpPath := path + ".tmp"
	file, err := os.Create(tmpPath)
	if err != nil {
		return err
	}

	i.mu.RLock()
	defer i.mu.RUnlock()
	enc := gob.NewEncoder(file)
	if err := enc.Encode(i.vectors); err != nil {
		closeErr := file.Close()
		_ = os.Remove(tmpPath)
		return errors.Join(err, closeErr)
	}
	if err := file.Sync(); err != nil {
		closeErr := file.Close()
		_ = os.Remove(tmpPath)
		return errors.Join(err, closeErr)
	}
	if err := file.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	return nil
}

// Load replaces the index contents with the vectors stored at path. A
// missing file is not an error: the index simply starts empty.
func (i *CosineIndex) Load(path string) error {
	if path == "" {
		path = i.path
	}
	if path == "" {
		return errors.New("path is required")
	}

	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer func() { _ = file.Close() }()

	loaded := make(map[uint64][]float32)
	if err := gob.NewDecoder(file).Decode(&loaded); err != nil {
		return err
	}

	i.mu.Lock()
	i.vectors = loaded
	i.mu.Unlock()
	return nil
}

func cosineSimilarity(a, b []float32) float32 {
	var dot, magA, magB float32
	for idx := range a {
		dot += a[idx] * b[idx]
		magA += a[idx] * a[idx]
		magB += b[idx] * b[idx]
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / float32(math.Sqrt(float64(magA*magB)))
}
