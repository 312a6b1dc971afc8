package api

import (
	"errors"
	"fmt"

	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/api/mcp"
	"github.com/papercomputeco/fnindex/pkg/registry"
)

// Server is the API server for managing and querying the function index.
type Server struct {
	config   Config
	registry *registry.Registry
	logger   *zap.Logger
	app      *fiber.App
}

// NewServer creates a new API server over reg.
func NewServer(config Config, reg *registry.Registry, logger *zap.Logger) (*Server, error) {
	if reg == nil {
		return nil, errors.New("registry is required")
	}
	if logger == nil {
		return nil, errors.New("logger is required")
	}

	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          handleFiberError,
	})

	s := &Server{
		config:   config,
		registry: reg,
		logger:   logger,
		app:      app,
	}

	app.Get("/ping", s.handlePing)
	app.Get("/health", s.handleHealth)

	v1 := app.Group("/v1")
	v1.Post("/functions", s.handleAddFunction)
	v1.Post("/functions/batch", s.handleBatchAdd)
	v1.Get("/functions", s.handleListFunctions)
	v1.Get("/functions/:id", s.handleGetFunction)
	v1.Put("/functions/:id", s.handleUpdateFunction)
	v1.Delete("/functions/:id", s.handleDeleteFunction)
	v1.Get("/functions/:id/similar", s.handleSimilar)
	v1.Get("/categories/:category/functions", s.handleByCategory)
	v1.Post("/search", s.handleSearchPost)
	v1.Get("/search", s.handleSearchGet)
	v1.Get("/stats", s.handleStats)
	v1.Post("/admin/clear", s.handleClear)
	v1.Post("/admin/rebuild", s.handleRebuild)

	if config.Gatherer != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(config.Gatherer, promhttp.HandlerOpts{})))
	}

	if !config.DisableMCP {
		mcpServer, err := mcp.NewServer(mcp.Config{
			Registry: reg,
			Logger:   logger,
		})
		if err != nil {
			return nil, fmt.Errorf("creating MCP server: %w", err)
		}
		app.All("/mcp", adaptor.HTTPHandler(mcpServer.Handler()))
	}

	return s, nil
}

// Run starts the API server on the configured address.
func (s *Server) Run() error {
	s.logger.Info("starting API server",
		zap.String("listen", s.config.ListenAddr),
	)
	return s.app.Listen(s.config.ListenAddr)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown() error {
	return s.app.Shutdown()
}
