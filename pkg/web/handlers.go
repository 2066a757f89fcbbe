// Package web exposes the engine over HTTP: session control, task execution
// and offline graph compilation.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/dukex/browserflow/pkg/compiler"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/orchestrator"
	"github.com/dukex/browserflow/pkg/persistence"
	"github.com/dukex/browserflow/pkg/sessions"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/hashicorp/go-multierror"
)

type SessionController interface {
	Start(ctx context.Context, session models.Session) (sessions.StartResult, error)
	Stop(ctx context.Context, session models.Session) error
}

type SessionLister interface {
	Poll(ctx context.Context) ([]models.Session, error)
}

type TaskRunner interface {
	Execute(ctx context.Context, taskID string) (*orchestrator.Report, error)
	Stop(ctx context.Context, taskID string) error
}

type APIHandlers struct {
	persistence persistence.Persistence
	sessions    SessionController
	poller      SessionLister
	tasks       TaskRunner
	compiler    *compiler.Compiler
	validator   *validator.Validate
	logger      *slog.Logger
}

func NewAPIHandlers(
	persistence persistence.Persistence,
	sessionController SessionController,
	poller SessionLister,
	tasks TaskRunner,
	graphCompiler *compiler.Compiler,
	validator *validator.Validate,
	logger *slog.Logger,
) *APIHandlers {
	return &APIHandlers{
		persistence: persistence,
		sessions:    sessionController,
		poller:      poller,
		tasks:       tasks,
		compiler:    graphCompiler,
		validator:   validator,
		logger:      logger.With("module", "web"),
	}
}

// Routes registers every endpoint on router.
func (h *APIHandlers) Routes(router fiber.Router) {
	router.Get("/health", h.HealthCheck)

	s := router.Group("/sessions")
	s.Get("/", h.ListSessions)
	s.Post("/:id/start", h.StartSession)
	s.Post("/:id/stop", h.StopSession)

	t := router.Group("/tasks")
	t.Get("/", h.ListTasks)
	t.Get("/:id", h.GetTask)
	t.Post("/:id/execute", h.ExecuteTask)
	t.Post("/:id/stop", h.StopTask)

	g := router.Group("/graphs")
	g.Post("/compile", h.CompileGraph)
	g.Post("/validate", h.ValidateGraph)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	status := "healthy"
	httpStatus := http.StatusOK
	check := "ok"

	if err := h.persistence.HealthCheck(c.Context()); err != nil {
		status = "unhealthy"
		httpStatus = http.StatusServiceUnavailable
		check = err.Error()
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"persistence": check,
		},
		"timestamp": time.Now().UTC(),
	})
}

// ListSessions returns the host's sessions with locally known debug ports.
// The name query parameter is a glob matched against session names.
func (h *APIHandlers) ListSessions(c fiber.Ctx) error {
	pattern := c.Query("name")

	filter, err := sessions.CompileNameFilter(pattern)
	if err != nil {
		return badRequest(c, "Invalid name pattern: "+err.Error())
	}

	list, err := h.poller.Poll(c.Context())
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(SessionsResponse{
		Sessions:  sessions.FilterByName(list, filter),
		FetchedAt: time.Now().UTC(),
	})
}

func (h *APIHandlers) StartSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	var req StartSessionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "Invalid JSON format")
		}

		if err := h.validator.Struct(req); err != nil {
			return badRequest(c, err.Error())
		}
	}

	result, err := h.sessions.Start(c.Context(), models.Session{ID: id, UUID: req.UUID})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(StartSessionResponse{SessionID: id, Port: result.Port, Reused: result.Reused})
}

func (h *APIHandlers) StopSession(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Session ID is required")
	}

	err := h.sessions.Stop(c.Context(), models.Session{ID: id})
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) ListTasks(c fiber.Ctx) error {
	var (
		tasks []*models.Task
		err   error
	)

	if status := c.Query("status"); status != "" {
		if !persistence.ValidTaskStatus(status) {
			return badRequest(c, "Invalid task status: "+status)
		}

		tasks, err = h.persistence.TasksByStatus(c.Context(), models.TaskStatus(status))
	} else {
		tasks, err = h.persistence.Tasks(c.Context())
	}

	if err != nil {
		return internalError(c, err)
	}

	return c.JSON(fiber.Map{
		"tasks":       tasks,
		"total_count": len(tasks),
	})
}

func (h *APIHandlers) GetTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	task, err := h.persistence.TaskByID(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if task == nil {
		return notFound(c, "Task not found")
	}

	return c.JSON(task)
}

// ExecuteTask runs the task and answers with the execution report. With
// async=true the run continues in the background and 202 is returned.
func (h *APIHandlers) ExecuteTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	if async, _ := strconv.ParseBool(c.Query("async")); async {
		return h.executeAsync(c, id)
	}

	report, err := h.tasks.Execute(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.JSON(report)
}

func (h *APIHandlers) executeAsync(c fiber.Ctx, id string) error {
	task, err := h.persistence.TaskByID(c.Context(), id)
	if err != nil {
		return internalError(c, err)
	}

	if task == nil {
		return notFound(c, "Task not found")
	}

	if task.Status == models.TaskStatusInProcess {
		return handleEngineError(c, orchestrator.ErrTaskRunning)
	}

	// The request context is recycled once the handler returns.
	ctx := context.Background()

	go func() {
		if _, err := h.tasks.Execute(ctx, id); err != nil {
			h.logger.ErrorContext(ctx, "Background task execution failed", "task_id", id, "error", err)
		}
	}()

	return c.Status(fiber.StatusAccepted).JSON(ExecuteAcceptedResponse{TaskID: id, Status: "accepted"})
}

func (h *APIHandlers) StopTask(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Task ID is required")
	}

	err := h.tasks.Stop(c.Context(), id)
	if err != nil {
		return handleEngineError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) CompileGraph(c fiber.Ctx) error {
	req, detail := h.bindGraph(c)
	if req == nil {
		return badRequest(c, detail)
	}

	ordered, err := h.compiler.Order(req.Nodes, req.Edges)
	if err != nil {
		return badRequest(c, err.Error())
	}

	script, err := h.compiler.Compile(req.Nodes, req.Edges)
	if err != nil {
		return badRequest(c, err.Error())
	}

	order := make([]string, 0, len(ordered))
	for _, node := range ordered {
		order = append(order, node.ID)
	}

	return c.JSON(CompileResponse{Script: script, Order: order})
}

// ValidateGraph reports graph and settings problems without failing the request.
func (h *APIHandlers) ValidateGraph(c fiber.Ctx) error {
	req, detail := h.bindGraph(c)
	if req == nil {
		return badRequest(c, detail)
	}

	var problems []string

	if _, err := h.compiler.Order(req.Nodes, req.Edges); err != nil {
		problems = append(problems, err.Error())
	}

	if err := h.compiler.ValidateSettings(req.Nodes); err != nil {
		var merr *multierror.Error
		if errors.As(err, &merr) {
			for _, settingsErr := range merr.Errors {
				problems = append(problems, settingsErr.Error())
			}
		} else {
			problems = append(problems, err.Error())
		}
	}

	return c.JSON(ValidateResponse{Valid: len(problems) == 0, Problems: problems})
}

// bindGraph decodes and validates a graph body; on failure it returns the
// problem detail instead.
func (h *APIHandlers) bindGraph(c fiber.Ctx) (*GraphRequest, string) {
	var req GraphRequest
	if err := c.Bind().JSON(&req); err != nil {
		return nil, "Invalid JSON format"
	}

	if err := h.validator.Struct(req); err != nil {
		return nil, err.Error()
	}

	return &req, ""
}
