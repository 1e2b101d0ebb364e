// Package embed provides the embedding client used to turn listing text
// into vectors. It speaks the OpenAI embeddings API, so any compatible
// endpoint (including a locally hosted sentence-transformer server) works.
package embed

import (
	"context"
	"fmt"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

type Client struct {
	api       *openai.Client
	model     string
	dimension int
}

// NewClient builds an embeddings client. baseURL may be empty for the
// default OpenAI endpoint. dimension is the expected vector width; replies
// of any other width are rejected.
func NewClient(baseURL, apiKey, model string, dimension int) *Client {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &Client{
		api:       openai.NewClientWithConfig(cfg),
		model:     model,
		dimension: dimension,
	}
}

// Embed returns one vector per input text, in order. Blank texts embed to
// the zero vector without a network call.
func (c *Client) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))

	var (
		pending    []string
		pendingIdx []int
	)
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = make([]float32, c.dimension)
			continue
		}
		pending = append(pending, text)
		pendingIdx = append(pendingIdx, i)
	}
	if len(pending) == 0 {
		return out, nil
	}

	resp, err := c.api.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: pending,
		Model: openai.EmbeddingModel(c.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embed %d texts: %w", len(pending), err)
	}
	if len(resp.Data) != len(pending) {
		return nil, fmt.Errorf("embed: got %d vectors for %d texts", len(resp.Data), len(pending))
	}

	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(pendingIdx) {
			return nil, fmt.Errorf("embed: reply index %d out of range", item.Index)
		}
		if len(item.Embedding) != c.dimension {
			return nil, fmt.Errorf("embed: got %d-dim vector, want %d", len(item.Embedding), c.dimension)
		}
		out[pendingIdx[item.Index]] = item.Embedding
	}
	return out, nil
}
