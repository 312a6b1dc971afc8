package config

import (
	"github.com/papercomputeco/fnindex/pkg/embeddings"
	"github.com/papercomputeco/fnindex/pkg/eventstream/kafka"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

const (
	defaultAPIListen       = ":8081"
	defaultClientAPITarget = "http://localhost:8081"

	defaultStorageProvider = "memory"
	defaultVectorProvider  = "memory"

	defaultEmbeddingProvider   = "ollama"
	defaultEmbeddingTarget     = "http://localhost:11434"
	defaultEmbeddingModel      = "embeddinggemma"
	defaultEmbeddingDimensions = 768
	defaultEmbeddingBatchSize  = 32
	defaultEmbeddingWorkers    = 8
	defaultEmbeddingRetries    = 3

	defaultEventsProvider   = "none"
	defaultBatchConcurrency = 5
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	return &Config{
		Version: CurrentV,
		API: APIConfig{
			Listen: defaultAPIListen,
		},
		Client: ClientConfig{
			APITarget: defaultClientAPITarget,
		},
		Storage: StorageConfig{
			Provider: defaultStorageProvider,
		},
		VectorStore: VectorStoreConfig{
			Provider:   defaultVectorProvider,
			Collection: vector.DefaultCollectionName,
			Distance:   string(vector.DistanceCosine),
		},
		Embedding: EmbeddingConfig{
			Provider:    defaultEmbeddingProvider,
			Target:      defaultEmbeddingTarget,
			Model:       defaultEmbeddingModel,
			Dimensions:  defaultEmbeddingDimensions,
			BatchSize:   defaultEmbeddingBatchSize,
			Concurrency: defaultEmbeddingWorkers,
			MaxRetries:  defaultEmbeddingRetries,
			CacheSize:   embeddings.DefaultCacheSize,
		},
		Retrieval: retrieval.DefaultConfig(),
		Events: EventsConfig{
			Provider: defaultEventsProvider,
			Topic:    kafka.DefaultTopic,
		},
		Registry: RegistryConfig{
			BatchConcurrency: defaultBatchConcurrency,
		},
	}
}
