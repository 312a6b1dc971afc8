// Package embeddings turns text into vectors. It defines the provider-facing
// Embedder interfaces and a caching, batching Service in front of them.
package embeddings

import "context"

// Embedder provides text embedding capabilities.
type Embedder interface {
	// Embed converts text into a vector embedding.
	Embed(ctx context.Context, text string) ([]float32, error)

	// Close releases any resources held by the embedder.
	Close() error
}

// BatchEmbedder is implemented by providers that accept several inputs in
// one request. Returned vectors are in input order.
type BatchEmbedder interface {
	Embedder

	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// Identity names the provider and model behind an Embedder. It is part of
// the cache key so switching model never serves stale vectors.
type Identity interface {
	Provider() string
	Model() string
}
