package config

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
)

// Config represents the persistent fnindex configuration stored as config.toml
// in the .fnindex/ directory. The TOML layout uses sections for logical grouping.
type Config struct {
	Version     int               `toml:"version"`
	API         APIConfig         `toml:"api"`
	Client      ClientConfig      `toml:"client"`
	Storage     StorageConfig     `toml:"storage"`
	VectorStore VectorStoreConfig `toml:"vector_store"`
	Embedding   EmbeddingConfig   `toml:"embedding"`
	Retrieval   retrieval.Config  `toml:"retrieval"`
	Events      EventsConfig      `toml:"events"`
	Registry    RegistryConfig    `toml:"registry"`
}

// APIConfig holds API server settings.
type APIConfig struct {
	Listen string `toml:"listen,omitempty"`
}

// ClientConfig holds settings for CLI commands that talk to a running
// server (e.g. fnindex search, fnindex stats). Values are full URLs.
type ClientConfig struct {
	APITarget string `toml:"api_target,omitempty"`
}

// StorageConfig selects where canonical function records live.
type StorageConfig struct {
	// Provider is one of memory, sqlite or postgres.
	Provider    string `toml:"provider,omitempty"`
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// VectorStoreConfig holds vector store settings.
type VectorStoreConfig struct {
	// Provider is one of memory, qdrant, chroma or sqlite.
	Provider   string `toml:"provider,omitempty"`
	Target     string `toml:"target,omitempty"`
	APIKey     string `toml:"api_key,omitempty"`
	Collection string `toml:"collection,omitempty"`
	Distance   string `toml:"distance,omitempty"`
}

// EmbeddingConfig holds embedding provider settings.
type EmbeddingConfig struct {
	Provider    string `toml:"provider,omitempty"`
	Target      string `toml:"target,omitempty"`
	Model       string `toml:"model,omitempty"`
	Dimensions  uint   `toml:"dimensions,omitempty"`
	APIKey      string `toml:"api_key,omitempty"`
	BatchSize   int    `toml:"batch_size,omitempty"`
	Concurrency int    `toml:"concurrency,omitempty"`
	MaxRetries  uint   `toml:"max_retries,omitempty"`
	CacheSize   int    `toml:"cache_size,omitempty"`

	// CacheTTL is a Go duration string. Empty or "0" disables expiry.
	CacheTTL string `toml:"cache_ttl,omitempty"`
}

// EventsConfig selects where lifecycle events are published.
type EventsConfig struct {
	// Provider is none or kafka.
	Provider string   `toml:"provider,omitempty"`
	Brokers  []string `toml:"brokers,omitempty"`
	Topic    string   `toml:"topic,omitempty"`
}

// RegistryConfig tunes the function registry.
type RegistryConfig struct {
	BatchConcurrency int `toml:"batch_concurrency,omitempty"`
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

func stringKey(field func(c *Config) *string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return *field(c) },
		set: func(c *Config, v string) error { *field(c) = v; return nil },
	}
}

func intKey(name string, field func(c *Config) *int) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.Itoa(*field(c)) },
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = n
			return nil
		},
	}
}

func uintKey(name string, field func(c *Config) *uint) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatUint(uint64(*field(c)), 10) },
		set: func(c *Config, v string) error {
			n, err := strconv.ParseUint(v, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = uint(n)
			return nil
		},
	}
}

func floatKey(name string, field func(c *Config) *float64) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strconv.FormatFloat(*field(c), 'g', -1, 64) },
		set: func(c *Config, v string) error {
			f, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid value for %s: %w", name, err)
			}
			*field(c) = f
			return nil
		},
	}
}

func listKey(field func(c *Config) *[]string) configKeyInfo {
	return configKeyInfo{
		get: func(c *Config) string { return strings.Join(*field(c), ",") },
		set: func(c *Config, v string) error { *field(c) = splitList(v); return nil },
	}
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"api.listen":       stringKey(func(c *Config) *string { return &c.API.Listen }),
	"client.api_target": stringKey(func(c *Config) *string { return &c.Client.APITarget }),

	"storage.provider":     stringKey(func(c *Config) *string { return &c.Storage.Provider }),
	"storage.sqlite_path":  stringKey(func(c *Config) *string { return &c.Storage.SQLitePath }),
	"storage.postgres_dsn": stringKey(func(c *Config) *string { return &c.Storage.PostgresDSN }),

	"vector_store.provider":   stringKey(func(c *Config) *string { return &c.VectorStore.Provider }),
	"vector_store.target":     stringKey(func(c *Config) *string { return &c.VectorStore.Target }),
	"vector_store.api_key":    stringKey(func(c *Config) *string { return &c.VectorStore.APIKey }),
	"vector_store.collection": stringKey(func(c *Config) *string { return &c.VectorStore.Collection }),
	"vector_store.distance":   stringKey(func(c *Config) *string { return &c.VectorStore.Distance }),

	"embedding.provider":    stringKey(func(c *Config) *string { return &c.Embedding.Provider }),
	"embedding.target":      stringKey(func(c *Config) *string { return &c.Embedding.Target }),
	"embedding.model":       stringKey(func(c *Config) *string { return &c.Embedding.Model }),
	"embedding.dimensions":  uintKey("embedding.dimensions", func(c *Config) *uint { return &c.Embedding.Dimensions }),
	"embedding.api_key":     stringKey(func(c *Config) *string { return &c.Embedding.APIKey }),
	"embedding.batch_size":  intKey("embedding.batch_size", func(c *Config) *int { return &c.Embedding.BatchSize }),
	"embedding.concurrency": intKey("embedding.concurrency", func(c *Config) *int { return &c.Embedding.Concurrency }),
	"embedding.max_retries": uintKey("embedding.max_retries", func(c *Config) *uint { return &c.Embedding.MaxRetries }),
	"embedding.cache_size":  intKey("embedding.cache_size", func(c *Config) *int { return &c.Embedding.CacheSize }),
	"embedding.cache_ttl":   stringKey(func(c *Config) *string { return &c.Embedding.CacheTTL }),

	"retrieval.top_k":           intKey("retrieval.top_k", func(c *Config) *int { return &c.Retrieval.TopK }),
	"retrieval.rerank_top_n":    intKey("retrieval.rerank_top_n", func(c *Config) *int { return &c.Retrieval.RerankTopN }),
	"retrieval.semantic_weight": floatKey("retrieval.semantic_weight", func(c *Config) *float64 { return &c.Retrieval.SemanticWeight }),
	"retrieval.keyword_weight":  floatKey("retrieval.keyword_weight", func(c *Config) *float64 { return &c.Retrieval.KeywordWeight }),
	"retrieval.category_weight": floatKey("retrieval.category_weight", func(c *Config) *float64 { return &c.Retrieval.CategoryWeight }),
	"retrieval.threshold":       floatKey("retrieval.threshold", func(c *Config) *float64 { return &c.Retrieval.Threshold }),
	"retrieval.use_cache": {
		get: func(c *Config) string { return strconv.FormatBool(c.Retrieval.UseCache) },
		set: func(c *Config, v string) error {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("invalid value for retrieval.use_cache: %w", err)
			}
			c.Retrieval.UseCache = b
			return nil
		},
	},
	"retrieval.views": {
		get: func(c *Config) string {
			views := make([]string, len(c.Retrieval.Views))
			for i, v := range c.Retrieval.Views {
				views[i] = string(v)
			}
			return strings.Join(views, ",")
		},
		set: func(c *Config, v string) error {
			var views []function.View
			for _, name := range splitList(v) {
				view := function.View(name)
				if !view.Valid() {
					return fmt.Errorf("invalid value for retrieval.views: unknown view %q", name)
				}
				views = append(views, view)
			}
			c.Retrieval.Views = views
			return nil
		},
	},

	"events.provider": stringKey(func(c *Config) *string { return &c.Events.Provider }),
	"events.brokers":  listKey(func(c *Config) *[]string { return &c.Events.Brokers }),
	"events.topic":    stringKey(func(c *Config) *string { return &c.Events.Topic }),

	"registry.batch_concurrency": intKey("registry.batch_concurrency", func(c *Config) *int { return &c.Registry.BatchConcurrency }),
}

// orderedKeys lists configKeys in TOML section order.
var orderedKeys = []string{
	"api.listen",
	"client.api_target",
	"storage.provider",
	"storage.sqlite_path",
	"storage.postgres_dsn",
	"vector_store.provider",
	"vector_store.target",
	"vector_store.api_key",
	"vector_store.collection",
	"vector_store.distance",
	"embedding.provider",
	"embedding.target",
	"embedding.model",
	"embedding.dimensions",
	"embedding.api_key",
	"embedding.batch_size",
	"embedding.concurrency",
	"embedding.max_retries",
	"embedding.cache_size",
	"embedding.cache_ttl",
	"retrieval.top_k",
	"retrieval.rerank_top_n",
	"retrieval.semantic_weight",
	"retrieval.keyword_weight",
	"retrieval.category_weight",
	"retrieval.threshold",
	"retrieval.use_cache",
	"retrieval.views",
	"events.provider",
	"events.brokers",
	"events.topic",
	"registry.batch_concurrency",
}
