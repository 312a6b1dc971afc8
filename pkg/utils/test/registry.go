package testutils

import (
	"context"
	"time"

	"github.com/papercomputeco/fnindex/pkg/embeddings"
	"github.com/papercomputeco/fnindex/pkg/registry"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
	"github.com/papercomputeco/fnindex/pkg/storage/inmemory"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

// NewTestRegistry wires an initialized registry over an in-memory store, the
// given vector driver and a MockEmbedder-backed embedding service. A nil
// vectors uses a fresh MockVectorDriver.
func NewTestRegistry(ctx context.Context, vectors vector.Driver, cfg retrieval.Config) (*registry.Registry, error) {
	if vectors == nil {
		vectors = NewMockVectorDriver()
	}
	store := inmemory.NewDriver()

	service, err := embeddings.NewService(embeddings.ServiceConfig{
		Embedder:       NewMockEmbedder(),
		Dimensions:     MockDimensions,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
	})
	if err != nil {
		return nil, err
	}

	engine, err := retrieval.NewEngine(retrieval.Options{
		Embedder: service,
		Vectors:  vectors,
		Source:   store,
		Config:   cfg,
	})
	if err != nil {
		return nil, err
	}

	reg, err := registry.New(registry.Deps{
		Store:      store,
		Vectors:    vectors,
		Embeddings: service,
		Engine:     engine,
	}, registry.Options{
		Collection: vector.CollectionConfig{VectorSize: MockDimensions},
	})
	if err != nil {
		return nil, err
	}
	if err := reg.Init(ctx); err != nil {
		return nil, err
	}
	return reg, nil
}
