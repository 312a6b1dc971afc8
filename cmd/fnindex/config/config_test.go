package configcmder_test

import (
	"bytes"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	configcmder "github.com/papercomputeco/fnindex/cmd/fnindex/config"
	"github.com/papercomputeco/fnindex/pkg/config"
)

// run executes "config <args...>" and returns its output.
func run(args ...string) (string, error) {
	out := &bytes.Buffer{}
	cmd := configcmder.NewConfigCmd()
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

var _ = Describe("NewConfigCmd", func() {
	It("has set, get, list and path subcommands", func() {
		cmd := configcmder.NewConfigCmd()
		Expect(cmd.Use).To(Equal("config"))

		names := make([]string, 0, len(cmd.Commands()))
		for _, sub := range cmd.Commands() {
			names = append(names, sub.Name())
		}
		Expect(names).To(ContainElements("set", "get", "list", "path"))
	})
})

var _ = Describe("Config command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()

		var err error
		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		Expect(os.MkdirAll(filepath.Join(tmpDir, ".fnindex"), 0o755)).To(Succeed())
		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
	})

	load := func() *config.Config {
		cfger, err := config.NewConfiger("")
		Expect(err).NotTo(HaveOccurred())
		cfg, err := cfger.LoadConfig()
		Expect(err).NotTo(HaveOccurred())
		return cfg
	}

	Describe("set", func() {
		It("writes config.toml", func() {
			out, err := run("set", "embedding.provider", "openai")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Set embedding.provider = openai"))

			_, err = os.Stat(filepath.Join(tmpDir, ".fnindex", "config.toml"))
			Expect(err).NotTo(HaveOccurred())
			Expect(load().Embedding.Provider).To(Equal("openai"))
		})

		It("persists retrieval tuning without disturbing other defaults", func() {
			_, err := run("set", "retrieval.threshold", "0.45")
			Expect(err).NotTo(HaveOccurred())

			cfg := load()
			Expect(cfg.Retrieval.Threshold).To(Equal(0.45))
			Expect(cfg.Retrieval.SemanticWeight).To(Equal(config.NewDefaultConfig().Retrieval.SemanticWeight))
		})

		DescribeTable("rejects bad input",
			func(args ...string) {
				_, err := run(args...)
				Expect(err).To(HaveOccurred())
			},
			Entry("unknown key", "set", "invalid_key", "value"),
			Entry("unknown view", "set", "retrieval.views", "combined,bogus"),
			Entry("non-numeric uint", "set", "embedding.dimensions", "not-a-number"),
			Entry("missing value", "set", "embedding.provider"),
			Entry("no arguments", "set"),
		)
	})

	Describe("get", func() {
		It("prints a previously set value", func() {
			_, err := run("set", "embedding.model", "text-embedding-3-small")
			Expect(err).NotTo(HaveOccurred())

			out, err := run("get", "embedding.model")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("text-embedding-3-small"))
		})

		It("prints the default for an unset key", func() {
			out, err := run("get", "embedding.provider")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(config.NewDefaultConfig().Embedding.Provider))
		})

		It("rejects unknown keys and wrong arity", func() {
			_, err := run("get", "invalid_key")
			Expect(err).To(MatchError(ContainSubstring("unknown config key")))

			_, err = run("get")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("list", func() {
		It("groups keys by section", func() {
			out, err := run("list")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("[embedding]"))
			Expect(out).To(ContainSubstring("[retrieval]"))
			Expect(out).To(ContainSubstring("retrieval.semantic_weight"))
		})

		It("shows only changed values with --changed", func() {
			_, err := run("set", "retrieval.top_k", "42")
			Expect(err).NotTo(HaveOccurred())

			out, err := run("list", "--changed")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("retrieval.top_k"))
			Expect(out).To(ContainSubstring("42"))
			Expect(out).NotTo(ContainSubstring("embedding.model"))
		})

		It("rejects arguments", func() {
			_, err := run("list", "extra")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("path", func() {
		It("prints the config.toml location", func() {
			out, err := run("path")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(filepath.Join(".fnindex", "config.toml")))
		})
	})
})
