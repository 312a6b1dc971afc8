// Package servecmder provides the serve command that runs the fnindex API
// server with every component wired from configuration.
package servecmder

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/api"
	"github.com/papercomputeco/fnindex/pkg/config"
	"github.com/papercomputeco/fnindex/pkg/logger"
)

type serveCommander struct {
	// Flag targets. Values are read back through viper so that
	// flag > env > config file > default precedence applies.
	listen       string
	storageProv  string
	sqlitePath   string
	postgresDSN  string
	vectorProv   string
	vectorTarget string
	collection   string
	embedProv    string
	embedTarget  string
	embedModel   string
	embedDims    uint
	embedAPIKey  string
	eventsProv   string
	disableMCP   bool
	jsonLogs     bool
	configDir    string
	debug        bool
	cfg          *config.Config
	logger       *zap.Logger
}

const serveLongDesc string = `Run the fnindex API server.

All components are wired from configuration: the function record store
(memory, sqlite, postgres), the vector store (memory, qdrant, chroma, sqlite),
the embedding provider (ollama, openai), and lifecycle event publishing
(none, kafka).

Configuration precedence (highest first): flags, FNINDEX_* environment
variables, .fnindex/config.toml, built-in defaults.

The server exposes the REST API under /v1, Prometheus metrics at /metrics and
an MCP streamable HTTP endpoint at /mcp.

Examples:
  fnindex serve
  fnindex serve --listen :9000 --storage-provider sqlite
  fnindex serve --vector-store-provider qdrant --vector-store-target localhost:6334
  FNINDEX_EMBEDDING_PROVIDER=openai FNINDEX_EMBEDDING_API_KEY=sk-... fnindex serve`

const serveShortDesc string = "Run the fnindex API server"

var serveFlagKeys = []string{
	config.FlagAPIListen,
	config.FlagStorageProv,
	config.FlagSQLite,
	config.FlagPostgres,
	config.FlagVectorStoreProv,
	config.FlagVectorStoreTgt,
	config.FlagCollection,
	config.FlagEmbeddingProv,
	config.FlagEmbeddingTgt,
	config.FlagEmbeddingModel,
	config.FlagEmbeddingDims,
	config.FlagEmbeddingAPIKey,
	config.FlagEventsProv,
}

func NewServeCmd() *cobra.Command {
	cmder := &serveCommander{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: serveShortDesc,
		Long:  serveLongDesc,
		Args:  cobra.NoArgs,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			cmder.configDir, _ = cmd.Flags().GetString("config-dir")

			v, err := config.InitViper(cmder.configDir)
			if err != nil {
				return fmt.Errorf("loading config: %w", err)
			}
			config.BindRegisteredFlags(v, cmd, config.ServeFlags, serveFlagKeys)
			cmder.cfg = config.FromViper(v)
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			cmder.debug, err = cmd.Flags().GetBool("debug")
			if err != nil {
				return fmt.Errorf("could not get debug flag: %w", err)
			}

			return cmder.run(cmd.Context())
		},
	}

	config.AddStringFlag(cmd, config.ServeFlags, config.FlagAPIListen, &cmder.listen)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagStorageProv, &cmder.storageProv)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagSQLite, &cmder.sqlitePath)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagPostgres, &cmder.postgresDSN)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreProv, &cmder.vectorProv)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagVectorStoreTgt, &cmder.vectorTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagCollection, &cmder.collection)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingProv, &cmder.embedProv)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingTgt, &cmder.embedTarget)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingModel, &cmder.embedModel)
	config.AddUintFlag(cmd, config.ServeFlags, config.FlagEmbeddingDims, &cmder.embedDims)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEmbeddingAPIKey, &cmder.embedAPIKey)
	config.AddStringFlag(cmd, config.ServeFlags, config.FlagEventsProv, &cmder.eventsProv)
	cmd.Flags().BoolVar(&cmder.disableMCP, "no-mcp", false, "Do not mount the MCP endpoint at /mcp")
	cmd.Flags().BoolVar(&cmder.jsonLogs, "json-logs", false, "Emit logs as JSON")

	return cmd
}

func (c *serveCommander) run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	c.logger = logger.New(logger.WithDebug(c.debug), logger.WithJSON(c.jsonLogs))
	defer func() { _ = c.logger.Sync() }()

	st, err := newStack(ctx, c.cfg, c.configDir, c.logger)
	if err != nil {
		return err
	}
	defer st.Close()

	server, err := api.NewServer(api.Config{
		ListenAddr: c.cfg.API.Listen,
		Gatherer:   st.gatherer,
		DisableMCP: c.disableMCP,
	}, st.registry, c.logger)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	// Channel to capture errors from the server goroutine
	errChan := make(chan error, 1)

	go func() {
		if err := server.Run(); err != nil {
			errChan <- fmt.Errorf("API server error: %w", err)
		}
	}()

	// Wait for interrupt signal or error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		c.logger.Info("received signal, shutting down", zap.String("signal", sig.String()))
		return server.Shutdown()
	}
}
