package initcmder_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	initcmder "github.com/papercomputeco/fnindex/cmd/fnindex/init"
	"github.com/papercomputeco/fnindex/pkg/config"
)

func loadConfig(dir string) *config.Config {
	data, err := os.ReadFile(filepath.Join(dir, ".fnindex", "config.toml"))
	Expect(err).NotTo(HaveOccurred())

	cfg := &config.Config{}
	Expect(toml.Unmarshal(data, cfg)).To(Succeed())
	return cfg
}

var _ = Describe("NewInitCmd", func() {
	It("creates a command with the correct use string", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Use).To(Equal("init"))
	})

	It("rejects any arguments", func() {
		cmd := initcmder.NewInitCmd()
		Expect(cmd.Args(cmd, []string{"extra"})).NotTo(Succeed())
	})

	It("has a --preset flag", func() {
		cmd := initcmder.NewInitCmd()
		f := cmd.Flags().Lookup("preset")
		Expect(f).NotTo(BeNil())
		Expect(f.DefValue).To(Equal(""))
	})
})

var _ = Describe("Init command execution", func() {
	var (
		tmpDir  string
		origDir string
	)

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "fnindex-init-test-*")
		Expect(err).NotTo(HaveOccurred())

		origDir, err = os.Getwd()
		Expect(err).NotTo(HaveOccurred())

		Expect(os.Chdir(tmpDir)).To(Succeed())
	})

	AfterEach(func() {
		Expect(os.Chdir(origDir)).To(Succeed())
		os.RemoveAll(tmpDir)
	})

	It("creates a config.toml with default values", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{})
		Expect(cmd.Execute()).To(Succeed())

		cfg := loadConfig(tmpDir)
		defaults := config.NewDefaultConfig()
		Expect(cfg.Version).To(Equal(config.CurrentV))
		Expect(cfg.API.Listen).To(Equal(defaults.API.Listen))
		Expect(cfg.Embedding.Model).To(Equal(defaults.Embedding.Model))
		Expect(cfg.Retrieval.SemanticWeight).To(Equal(defaults.Retrieval.SemanticWeight))
	})

	It("does not overwrite an existing config.toml", func() {
		dir := filepath.Join(tmpDir, ".fnindex")
		Expect(os.MkdirAll(dir, 0o755)).To(Succeed())
		path := filepath.Join(dir, "config.toml")
		Expect(os.WriteFile(path, []byte("version = 0\n"), 0o600)).To(Succeed())

		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{"--preset", "openai"})
		Expect(cmd.Execute()).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(string(data)).To(Equal("version = 0\n"))
	})

	It("writes the openai preset", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{"--preset", "openai"})
		Expect(cmd.Execute()).To(Succeed())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Embedding.Provider).To(Equal("openai"))
		Expect(cfg.Embedding.Model).To(Equal("text-embedding-3-small"))
		Expect(cfg.Embedding.Dimensions).To(Equal(uint(1536)))
	})

	It("rejects unknown preset names", func() {
		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{"--preset", "invalid-provider"})
		err := cmd.Execute()
		Expect(err).To(HaveOccurred())
		Expect(err.Error()).To(ContainSubstring("unknown preset"))
	})

	It("fetches a remote config.toml", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "version = 0\n\n[retrieval]\nthreshold = 0.5\n\n[embedding]\nmodel = \"text-embedding-3-large\"\n")
		}))
		defer server.Close()

		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{"--preset", server.URL})
		Expect(cmd.Execute()).To(Succeed())

		cfg := loadConfig(tmpDir)
		Expect(cfg.Retrieval.Threshold).To(Equal(0.5))
		Expect(cfg.Embedding.Model).To(Equal("text-embedding-3-large"))
	})

	It("rejects a remote config with an unsupported version", func() {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			fmt.Fprint(w, "version = 99\n")
		}))
		defer server.Close()

		cmd := initcmder.NewInitCmd()
		cmd.SetArgs([]string{"--preset", server.URL})
		Expect(cmd.Execute()).NotTo(Succeed())
	})
})
