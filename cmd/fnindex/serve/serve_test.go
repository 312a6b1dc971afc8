package servecmder

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/fnindex/pkg/config"
	"github.com/papercomputeco/fnindex/pkg/eventstream/worker"
	fnlogger "github.com/papercomputeco/fnindex/pkg/logger"
)

var _ = Describe("NewServeCmd", func() {
	It("registers the configuration flags", func() {
		cmd := NewServeCmd()
		for _, name := range []string{
			"listen", "storage-provider", "sqlite", "postgres",
			"vector-store-provider", "vector-store-target", "collection",
			"embedding-provider", "embedding-target", "embedding-model",
			"embedding-dimensions", "embedding-api-key", "events-provider",
			"no-mcp", "json-logs",
		} {
			Expect(cmd.Flags().Lookup(name)).NotTo(BeNil(), name)
		}
	})

	It("defaults the listen flag from the config defaults", func() {
		cmd := NewServeCmd()
		Expect(cmd.Flags().Lookup("listen").DefValue).To(Equal(config.NewDefaultConfig().API.Listen))
	})
})

var _ = Describe("newStack", func() {
	var (
		ctx       context.Context
		cfg       *config.Config
		configDir string
	)

	BeforeEach(func() {
		ctx = context.Background()
		cfg = config.NewDefaultConfig()
		configDir = GinkgoT().TempDir()
	})

	It("wires an in-memory stack from the defaults", func() {
		st, err := newStack(ctx, cfg, configDir, fnlogger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(st.Close)

		stats, err := st.registry.Stats(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(stats.Functions).To(BeZero())
		Expect(stats.Vectors.VectorSize).To(Equal(cfg.Embedding.Dimensions))
		Expect(stats.Vectors.Healthy).To(BeTrue())

		families, err := st.gatherer.Gather()
		Expect(err).NotTo(HaveOccurred())
		names := make([]string, 0, len(families))
		for _, f := range families {
			names = append(names, f.GetName())
		}
		Expect(names).To(ContainElement("fnindex_functions_registered"))
	})

	It("creates the SQLite function store in the config directory", func() {
		GinkgoT().Setenv("HOME", GinkgoT().TempDir())
		GinkgoT().Setenv("XDG_DATA_HOME", "")
		cfg.Storage.Provider = "sqlite"

		st, err := newStack(ctx, cfg, configDir, fnlogger.Nop())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(st.Close)

		_, err = os.Stat(filepath.Join(configDir, "fnindex.db"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("rejects an unknown storage provider", func() {
		cfg.Storage.Provider = "cassandra"
		_, err := newStack(ctx, cfg, configDir, fnlogger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unknown storage provider")))
	})

	It("requires a DSN for postgres", func() {
		cfg.Storage.Provider = "postgres"
		_, err := newStack(ctx, cfg, configDir, fnlogger.Nop())
		Expect(err).To(MatchError(ContainSubstring("postgres_dsn")))
	})

	It("rejects an unknown events provider", func() {
		cfg.Events.Provider = "pulsar"
		_, err := newStack(ctx, cfg, configDir, fnlogger.Nop())
		Expect(err).To(MatchError(ContainSubstring("unknown events provider")))
	})

	It("requires brokers for kafka", func() {
		cfg.Events.Provider = "kafka"
		_, err := newStack(ctx, cfg, configDir, fnlogger.Nop())
		Expect(err).To(HaveOccurred())
	})

	It("publishes kafka events through the async worker pool", func() {
		p, err := newPublisher(config.EventsConfig{
			Provider: "kafka",
			Brokers:  []string{"localhost:9092"},
			Topic:    "functions",
		}, fnlogger.Nop())
		Expect(err).NotTo(HaveOccurred())
		Expect(p).To(BeAssignableToTypeOf(&worker.Pool{}))
		Expect(p.Close()).To(Succeed())
	})

	It("rejects an invalid retrieval config", func() {
		cfg.Retrieval.TopK = 0
		_, err := newStack(ctx, cfg, configDir, fnlogger.Nop())
		Expect(err).To(MatchError(ContainSubstring("invalid retrieval config")))
	})

	It("rejects an unknown embedding provider", func() {
		cfg.Embedding.Provider = "carrier-pigeon"
		_, err := newStack(ctx, cfg, configDir, fnlogger.Nop())
		Expect(err).To(MatchError(ContainSubstring("creating embedder")))
	})
})

var _ = Describe("parseTTL", func() {
	It("treats empty and zero as no expiry", func() {
		Expect(parseTTL("")).To(BeZero())
		Expect(parseTTL("0")).To(BeZero())
	})

	It("parses Go durations", func() {
		d, err := parseTTL("90m")
		Expect(err).NotTo(HaveOccurred())
		Expect(d.Minutes()).To(Equal(90.0))
	})

	It("rejects garbage and negative values", func() {
		_, err := parseTTL("soon")
		Expect(err).To(HaveOccurred())
		_, err = parseTTL("-1s")
		Expect(err).To(HaveOccurred())
	})
})
