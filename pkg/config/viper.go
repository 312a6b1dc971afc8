package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/papercomputeco/fnindex/pkg/dotdir"
	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
)

// InitViper creates and returns a configured *viper.Viper.
// It sets defaults from NewDefaultConfig(), reads the config.toml file
// (if found via dotdir resolution), and binds environment variables
// with the FNINDEX_ prefix.
//
// Config precedence (highest to lowest):
//  1. CLI flags (once bound via BindRegisteredFlags)
//  2. Environment variables (FNINDEX_API_LISTEN, FNINDEX_EMBEDDING_MODEL, etc.)
//  3. config.toml file values
//  4. Defaults from NewDefaultConfig()
func InitViper(configDir string) (*viper.Viper, error) {
	v := viper.New()

	setViperDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("toml")

	ddm := dotdir.NewManager()
	target, err := ddm.Target(configDir)
	if err != nil {
		return nil, fmt.Errorf("resolving config dir: %w", err)
	}

	if target != "" {
		v.AddConfigPath(target)
	}

	if err := v.ReadInConfig(); err != nil {
		// Config file not found errors are fine, defaults will apply.
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	v.SetEnvPrefix("FNINDEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v, nil
}

// FromViper materializes the resolved values of v into a Config.
func FromViper(v *viper.Viper) *Config {
	views := make([]function.View, 0)
	for _, name := range v.GetStringSlice("retrieval.views") {
		views = append(views, function.View(name))
	}

	return &Config{
		Version: v.GetInt("version"),
		API: APIConfig{
			Listen: v.GetString("api.listen"),
		},
		Client: ClientConfig{
			APITarget: v.GetString("client.api_target"),
		},
		Storage: StorageConfig{
			Provider:    v.GetString("storage.provider"),
			SQLitePath:  v.GetString("storage.sqlite_path"),
			PostgresDSN: v.GetString("storage.postgres_dsn"),
		},
		VectorStore: VectorStoreConfig{
			Provider:   v.GetString("vector_store.provider"),
			Target:     v.GetString("vector_store.target"),
			APIKey:     v.GetString("vector_store.api_key"),
			Collection: v.GetString("vector_store.collection"),
			Distance:   v.GetString("vector_store.distance"),
		},
		Embedding: EmbeddingConfig{
			Provider:    v.GetString("embedding.provider"),
			Target:      v.GetString("embedding.target"),
			Model:       v.GetString("embedding.model"),
			Dimensions:  v.GetUint("embedding.dimensions"),
			APIKey:      v.GetString("embedding.api_key"),
			BatchSize:   v.GetInt("embedding.batch_size"),
			Concurrency: v.GetInt("embedding.concurrency"),
			MaxRetries:  v.GetUint("embedding.max_retries"),
			CacheSize:   v.GetInt("embedding.cache_size"),
			CacheTTL:    v.GetString("embedding.cache_ttl"),
		},
		Retrieval: retrieval.Config{
			TopK:           v.GetInt("retrieval.top_k"),
			RerankTopN:     v.GetInt("retrieval.rerank_top_n"),
			SemanticWeight: v.GetFloat64("retrieval.semantic_weight"),
			KeywordWeight:  v.GetFloat64("retrieval.keyword_weight"),
			CategoryWeight: v.GetFloat64("retrieval.category_weight"),
			Threshold:      v.GetFloat64("retrieval.threshold"),
			UseCache:       v.GetBool("retrieval.use_cache"),
			Views:          views,
		},
		Events: EventsConfig{
			Provider: v.GetString("events.provider"),
			Brokers:  v.GetStringSlice("events.brokers"),
			Topic:    v.GetString("events.topic"),
		},
		Registry: RegistryConfig{
			BatchConcurrency: v.GetInt("registry.batch_concurrency"),
		},
	}
}

// setViperDefaults registers defaults from NewDefaultConfig() into viper
// using dotted-key notation. This keeps defaults.go as the single source of truth.
func setViperDefaults(v *viper.Viper) {
	d := NewDefaultConfig()

	v.SetDefault("version", d.Version)

	// API
	v.SetDefault("api.listen", d.API.Listen)

	// Client
	v.SetDefault("client.api_target", d.Client.APITarget)

	// Storage
	v.SetDefault("storage.provider", d.Storage.Provider)
	v.SetDefault("storage.sqlite_path", d.Storage.SQLitePath)
	v.SetDefault("storage.postgres_dsn", d.Storage.PostgresDSN)

	// Vector store
	v.SetDefault("vector_store.provider", d.VectorStore.Provider)
	v.SetDefault("vector_store.target", d.VectorStore.Target)
	v.SetDefault("vector_store.api_key", d.VectorStore.APIKey)
	v.SetDefault("vector_store.collection", d.VectorStore.Collection)
	v.SetDefault("vector_store.distance", d.VectorStore.Distance)

	// Embedding
	v.SetDefault("embedding.provider", d.Embedding.Provider)
	v.SetDefault("embedding.target", d.Embedding.Target)
	v.SetDefault("embedding.model", d.Embedding.Model)
	v.SetDefault("embedding.dimensions", d.Embedding.Dimensions)
	v.SetDefault("embedding.api_key", d.Embedding.APIKey)
	v.SetDefault("embedding.batch_size", d.Embedding.BatchSize)
	v.SetDefault("embedding.concurrency", d.Embedding.Concurrency)
	v.SetDefault("embedding.max_retries", d.Embedding.MaxRetries)
	v.SetDefault("embedding.cache_size", d.Embedding.CacheSize)
	v.SetDefault("embedding.cache_ttl", d.Embedding.CacheTTL)

	// Retrieval
	views := make([]string, len(d.Retrieval.Views))
	for i, view := range d.Retrieval.Views {
		views[i] = string(view)
	}
	v.SetDefault("retrieval.top_k", d.Retrieval.TopK)
	v.SetDefault("retrieval.rerank_top_n", d.Retrieval.RerankTopN)
	v.SetDefault("retrieval.semantic_weight", d.Retrieval.SemanticWeight)
	v.SetDefault("retrieval.keyword_weight", d.Retrieval.KeywordWeight)
	v.SetDefault("retrieval.category_weight", d.Retrieval.CategoryWeight)
	v.SetDefault("retrieval.threshold", d.Retrieval.Threshold)
	v.SetDefault("retrieval.use_cache", d.Retrieval.UseCache)
	v.SetDefault("retrieval.views", views)

	// Events
	v.SetDefault("events.provider", d.Events.Provider)
	v.SetDefault("events.brokers", d.Events.Brokers)
	v.SetDefault("events.topic", d.Events.Topic)

	// Registry
	v.SetDefault("registry.batch_concurrency", d.Registry.BatchConcurrency)
}
