package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"

	"github.com/papercomputeco/fnindex/pkg/embeddings"
	"github.com/papercomputeco/fnindex/pkg/function"
	"github.com/papercomputeco/fnindex/pkg/retrieval"
	"github.com/papercomputeco/fnindex/pkg/storage"
	"github.com/papercomputeco/fnindex/pkg/vector"
)

const codeInternal = "internal_error"

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// coder is implemented by the typed errors of the domain packages.
type coder interface {
	Code() string
}

// statusFor maps an error to its HTTP status and machine-readable code.
func statusFor(err error) (int, string) {
	var embErr *embeddings.Error
	if errors.As(err, &embErr) {
		if embErr.Kind == embeddings.KindRateLimit {
			return fiber.StatusServiceUnavailable, embeddings.CodeEmbedding
		}
		return fiber.StatusBadGateway, embeddings.CodeEmbedding
	}

	var c coder
	if !errors.As(err, &c) {
		return fiber.StatusInternalServerError, codeInternal
	}

	switch c.Code() {
	case function.CodeValidation:
		return fiber.StatusBadRequest, function.CodeValidation
	case storage.CodeNotFound:
		return fiber.StatusNotFound, storage.CodeNotFound
	case vector.CodeStorage:
		return fiber.StatusServiceUnavailable, vector.CodeStorage
	case retrieval.CodeRetrieval:
		return fiber.StatusBadGateway, retrieval.CodeRetrieval
	default:
		return fiber.StatusInternalServerError, c.Code()
	}
}

// writeError renders err with the status its code maps to.
func (s *Server) writeError(c *fiber.Ctx, err error) error {
	status, code := statusFor(err)
	if status >= fiber.StatusInternalServerError {
		s.logger.Error("request failed",
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.String("code", code),
			zap.Error(err),
		)
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Code: code})
}

// badRequest renders a validation failure for malformed input.
func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(ErrorResponse{Error: msg, Code: function.CodeValidation})
}

// handleFiberError keeps fiber's own errors (unknown routes, bad methods)
// in the same body shape.
func handleFiberError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	code := codeInternal
	var fe *fiber.Error
	if errors.As(err, &fe) {
		status = fe.Code
		if status == fiber.StatusNotFound {
			code = storage.CodeNotFound
		}
	}
	return c.Status(status).JSON(ErrorResponse{Error: err.Error(), Code: code})
}
