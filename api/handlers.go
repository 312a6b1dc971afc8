package api

import (
	"errors"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/registry"
)

// AddResponse is returned by POST /v1/functions.
type AddResponse struct {
	FunctionID string `json:"function_id"`
}

// BatchFailure describes one rejected item of a batch add.
type BatchFailure struct {
	Index int    `json:"index"`
	Name  string `json:"name"`
	Error string `json:"error"`
	Code  string `json:"code"`
}

// BatchResponse is returned by POST /v1/functions/batch and
// POST /v1/admin/rebuild.
type BatchResponse struct {
	Succeeded []string       `json:"succeeded,omitempty"`
	Indexed   int            `json:"indexed"`
	Failed    []BatchFailure `json:"failed"`
}

// ListResponse is returned by GET /v1/functions.
type ListResponse struct {
	Count     int                  `json:"count"`
	Functions []*function.Function `json:"functions"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status    string `json:"status"`
	Functions int    `json:"functions"`
	Vectors   bool   `json:"vector_store_healthy"`
}

// handlePing returns a simple liveness response.
func (s *Server) handlePing(c *fiber.Ctx) error {
	return c.JSON("pong")
}

// handleHealth reports whether the record store and vector store respond.
func (s *Server) handleHealth(c *fiber.Ctx) error {
	stats, err := s.registry.Stats(c.Context())
	if err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		return c.Status(fiber.StatusServiceUnavailable).JSON(HealthResponse{Status: "unavailable"})
	}

	status := "ok"
	code := fiber.StatusOK
	if !stats.Vectors.Healthy {
		status = "degraded"
		code = fiber.StatusServiceUnavailable
	}
	return c.Status(code).JSON(HealthResponse{
		Status:    status,
		Functions: stats.Functions,
		Vectors:   stats.Vectors.Healthy,
	})
}

// handleAddFunction registers one function.
func (s *Server) handleAddFunction(c *fiber.Ctx) error {
	var req function.AddRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	id, err := s.registry.Add(c.Context(), req)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(AddResponse{FunctionID: id})
}

// handleBatchAdd registers an array of functions. Items fail independently.
func (s *Server) handleBatchAdd(c *fiber.Ctx) error {
	var reqs []function.AddRequest
	if err := c.BodyParser(&reqs); err != nil {
		return badRequest(c, "invalid request body: expected an array of functions")
	}
	if len(reqs) == 0 {
		return badRequest(c, "at least one function is required")
	}

	result := s.registry.BatchAdd(c.Context(), reqs)
	return c.JSON(BatchResponse{
		Succeeded: result.Succeeded,
		Indexed:   len(result.Succeeded),
		Failed:    batchFailures(result.Failed),
	})
}

// handleListFunctions returns every registered function ordered by name.
func (s *Server) handleListFunctions(c *fiber.Ctx) error {
	fns, err := s.registry.List(c.Context())
	if err != nil {
		return s.writeError(c, err)
	}
	if fns == nil {
		fns = []*function.Function{}
	}

	return c.JSON(ListResponse{Count: len(fns), Functions: fns})
}

// handleGetFunction returns a single function by id.
func (s *Server) handleGetFunction(c *fiber.Ctx) error {
	f, err := s.registry.Get(c.Context(), c.Params("id"))
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(f)
}

// handleUpdateFunction applies a partial update and returns the result.
func (s *Server) handleUpdateFunction(c *fiber.Ctx) error {
	var req function.UpdateRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body: "+err.Error())
	}

	f, err := s.registry.Update(c.Context(), c.Params("id"), req)
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(f)
}

// handleDeleteFunction removes a function and its vectors.
func (s *Server) handleDeleteFunction(c *fiber.Ctx) error {
	if err := s.registry.Delete(c.Context(), c.Params("id")); err != nil {
		return s.writeError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// handleStats returns registry, vector store and cache statistics.
func (s *Server) handleStats(c *fiber.Ctx) error {
	stats, err := s.registry.Stats(c.Context())
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(stats)
}

// handleClear removes every function, vector and cached embedding.
func (s *Server) handleClear(c *fiber.Ctx) error {
	if err := s.registry.ClearAll(c.Context()); err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(fiber.Map{"status": "cleared"})
}

// handleRebuild re-indexes every stored function into a fresh collection.
func (s *Server) handleRebuild(c *fiber.Ctx) error {
	result, err := s.registry.Rebuild(c.Context())
	if err != nil {
		return s.writeError(c, err)
	}

	return c.JSON(BatchResponse{
		Indexed: result.Indexed,
		Failed:  batchFailures(result.Failed),
	})
}

func batchFailures(failed []registry.BatchFailure) []BatchFailure {
	out := make([]BatchFailure, 0, len(failed))
	for _, f := range failed {
		_, code := statusFor(f.Err)
		out = append(out, BatchFailure{
			Index: f.Index,
			Name:  f.Name,
			Error: f.Err.Error(),
			Code:  code,
		})
	}
	return out
}

// queryInt parses a positive integer query parameter, returning def when
// the parameter is absent.
func queryInt(c *fiber.Ctx, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return n, nil
}

// queryBool parses a boolean query parameter, returning def when absent.
func queryBool(c *fiber.Ctx, name string, def bool) (bool, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		return false, errors.New(name + " must be a boolean")
	}
	return b, nil
}
