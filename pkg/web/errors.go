package web

import (
	"errors"

	"github.com/dukex/browserflow/pkg/orchestrator"
	"github.com/dukex/browserflow/pkg/persistence"
	"github.com/dukex/browserflow/pkg/sessions"
	"github.com/gofiber/fiber/v3"
	"github.com/moogar0880/problems"
)

func badRequest(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusBadRequest).
		WithInstance(c.Path()).
		WithType("validation_error").
		WithDetail(detail)

	return c.Status(fiber.StatusBadRequest).JSON(problem)
}

func notFound(c fiber.Ctx, detail string) error {
	problem := problems.NewStatusProblem(fiber.StatusNotFound).
		WithInstance(c.Path()).
		WithType("not_found").
		WithDetail(detail)

	return c.Status(fiber.StatusNotFound).JSON(problem)
}

func internalError(c fiber.Ctx, err error) error {
	problem := problems.NewStatusProblem(fiber.StatusInternalServerError).
		WithInstance(c.Path()).
		WithType("internal_error").
		WithError(err)

	return c.Status(fiber.StatusInternalServerError).JSON(problem)
}

// handleEngineError maps orchestrator and session failures to problems.
// Execution failures carry the same message that is stored on the task.
func handleEngineError(c fiber.Ctx, err error) error {
	status, problemType := engineStatus(err)

	if status == fiber.StatusInternalServerError {
		return internalError(c, err)
	}

	problem := problems.NewStatusProblem(status).
		WithInstance(c.Path()).
		WithType(problemType).
		WithDetail(orchestrator.Describe(err))

	return c.Status(status).JSON(problem)
}

func engineStatus(err error) (int, string) {
	switch {
	case errors.Is(err, orchestrator.ErrTaskNotFound), persistence.IsTaskNotFound(err):
		return fiber.StatusNotFound, "task_not_found"
	case sessions.IsSessionNotFound(err):
		return fiber.StatusNotFound, "session_not_found"
	case errors.Is(err, orchestrator.ErrTaskRunning):
		return fiber.StatusConflict, "task_running"
	case orchestrator.IsValidationError(err):
		return fiber.StatusUnprocessableEntity, "validation_error"
	case sessions.IsPortPoolExhausted(err):
		return fiber.StatusServiceUnavailable, "port_pool_exhausted"
	case orchestrator.IsTimeoutError(err):
		return fiber.StatusGatewayTimeout, "timeout"
	case orchestrator.IsTransientHostError(err):
		return fiber.StatusBadGateway, "host_error"
	default:
		return fiber.StatusInternalServerError, "internal_error"
	}
}
