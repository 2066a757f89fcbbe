// Package orchestrator runs tasks: it starts the task's browser sessions,
// compiles the workflow graph and dispatches the script to every runner
// server for every started session, tracking the task status on the way.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukex/browserflow/pkg/compiler"
	"github.com/dukex/browserflow/pkg/devtools"
	"github.com/dukex/browserflow/pkg/eventbus"
	"github.com/dukex/browserflow/pkg/events"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/otelhelper"
	"github.com/dukex/browserflow/pkg/persistence"
	"github.com/dukex/browserflow/pkg/sessions"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

// DefaultBrowserType is announced to runners in every browser connection.
const DefaultBrowserType = "chromium"

type SessionManager interface {
	Start(ctx context.Context, session models.Session) (sessions.StartResult, error)
	Stop(ctx context.Context, session models.Session) error
}

type EndpointResolver interface {
	Resolve(ctx context.Context, port uint16, sessionID string) (*devtools.Endpoint, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, server *models.Server, payload *models.ExecutionPayload) ([]byte, error)
}

// StartedSession is a session that answered on its debug port.
type StartedSession struct {
	ID         string            `json:"id"`
	Port       uint16            `json:"port"`
	WSEndpoint string            `json:"ws_endpoint"`
	Strategy   devtools.Strategy `json:"strategy"`
}

// DispatchResult is the runner's answer for one (server, session) pair.
type DispatchResult struct {
	Run       int    `json:"run"`
	ServerID  string `json:"server_id"`
	SessionID string `json:"session_id"`
	Response  []byte `json:"response"`
}

// Report summarizes one execution.
type Report struct {
	TaskID     string            `json:"task_id"`
	WorkflowID string            `json:"workflow_id"`
	Status     models.TaskStatus `json:"status"`
	Runs       int               `json:"runs"`
	Sessions   []StartedSession  `json:"sessions"`
	Results    []DispatchResult  `json:"results"`
	StartedAt  time.Time         `json:"started_at"`
	Duration   time.Duration     `json:"duration"`
	Error      string            `json:"error,omitempty"`
}

type Orchestrator struct {
	persistence persistence.Persistence
	sessions    SessionManager
	resolver    EndpointResolver
	verifier    devtools.Verifier
	dispatcher  Dispatcher
	compiler    *compiler.Compiler
	publisher   eventbus.EventPublisher
	clock       clockwork.Clock
	tracer      trace.Tracer
	logger      *slog.Logger

	hostPort    int
	browserType string
	concurrency int

	mu      sync.Mutex
	running map[string]struct{}
}

type Option func(*Orchestrator)

// WithConcurrency bounds how many (server, session) dispatches run at once.
// One keeps dispatches strictly sequential in server-major order.
func WithConcurrency(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.concurrency = n
		}
	}
}

func WithVerifier(verifier devtools.Verifier) Option {
	return func(o *Orchestrator) {
		o.verifier = verifier
	}
}

func WithPublisher(publisher eventbus.EventPublisher) Option {
	return func(o *Orchestrator) {
		o.publisher = publisher
	}
}

func WithCompiler(c *compiler.Compiler) Option {
	return func(o *Orchestrator) {
		o.compiler = c
	}
}

func WithClock(clock clockwork.Clock) Option {
	return func(o *Orchestrator) {
		o.clock = clock
	}
}

// WithHostPort sets the browser host instance port sent to runners.
func WithHostPort(port int) Option {
	return func(o *Orchestrator) {
		o.hostPort = port
	}
}

func WithBrowserType(browserType string) Option {
	return func(o *Orchestrator) {
		o.browserType = browserType
	}
}

func New(
	store persistence.Persistence,
	sessionManager SessionManager,
	resolver EndpointResolver,
	dispatcher Dispatcher,
	logger *slog.Logger,
	opts ...Option,
) *Orchestrator {
	orchestrator := &Orchestrator{
		persistence: store,
		sessions:    sessionManager,
		resolver:    resolver,
		verifier:    devtools.NopVerifier{},
		dispatcher:  dispatcher,
		compiler:    compiler.NewDefault(),
		clock:       clockwork.NewRealClock(),
		tracer:      otelhelper.Tracer("browserflow.orchestrator"),
		logger:      logger.With("module", "orchestrator"),
		browserType: DefaultBrowserType,
		concurrency: 1,
		running:     make(map[string]struct{}),
	}

	for _, opt := range opts {
		opt(orchestrator)
	}

	return orchestrator
}

// Execute runs the task once. Every failure after the session check marks the
// task as error with a readable message; a task without sessions is left as is.
func (o *Orchestrator) Execute(ctx context.Context, taskID string) (*Report, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.execute",
		attribute.String(otelhelper.TaskIDKey, taskID),
	)
	defer span.End()

	report, err := o.execute(ctx, taskID)
	if err != nil {
		otelhelper.SetError(span, err, Kind(err))
	}

	return report, err
}

func (o *Orchestrator) execute(ctx context.Context, taskID string) (*Report, error) {
	task, err := o.persistence.TaskByID(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	if task == nil {
		return nil, &TaskError{Op: "execute", TaskID: taskID, Err: ErrTaskNotFound}
	}

	if len(task.BrowserSessions) == 0 {
		return nil, &TaskError{Op: "execute", TaskID: taskID, Err: ErrNoSessionsConfigured}
	}

	if task.Status == models.TaskStatusInProcess || !o.claim(taskID) {
		return nil, &TaskError{Op: "execute", TaskID: taskID, Err: ErrTaskRunning}
	}
	defer o.release(taskID)

	trace.SpanFromContext(ctx).SetAttributes(attribute.String(otelhelper.WorkflowIDKey, task.WorkflowID))

	logger := o.logger.With("task_id", task.ID, "workflow_id", task.WorkflowID)

	run := &execution{
		task:   task,
		logger: logger,
		report: &Report{
			TaskID:     task.ID,
			WorkflowID: task.WorkflowID,
			Runs:       task.Runs(),
			Status:     task.Status,
			StartedAt:  o.clock.Now(),
		},
		status: task.Status,
	}

	err = o.run(ctx, run)
	if err != nil {
		o.fail(ctx, run, err)

		return run.report, err
	}

	if err := o.transition(ctx, run, models.TaskStatusDone, nil, ""); err != nil {
		return run.report, err
	}

	run.report.Duration = o.clock.Since(run.report.StartedAt)

	logger.InfoContext(ctx, "Task completed", "dispatches", len(run.report.Results), "duration", run.report.Duration)

	o.publish(ctx, events.TaskCompleted{
		BaseEvent:  o.base(events.TaskCompletedEvent, task),
		Dispatches: len(run.report.Results),
		Duration:   run.report.Duration,
	}, task.ID)

	return run.report, nil
}

// execution holds the mutable state of one Execute call.
type execution struct {
	task     *models.Task
	logger   *slog.Logger
	report   *Report
	status   models.TaskStatus
	script   string
	workflow *models.Workflow
	servers  []*models.Server
}

func (o *Orchestrator) run(ctx context.Context, run *execution) error {
	err := o.startSessions(ctx, run)
	if err != nil {
		return err
	}

	err = o.prepare(ctx, run)
	if err != nil {
		return err
	}

	startTime := o.clock.Now()

	err = o.transition(ctx, run, models.TaskStatusInProcess, &startTime, "")
	if err != nil {
		return err
	}

	o.publish(ctx, events.TaskStarted{
		BaseEvent: o.base(events.TaskStartedEvent, run.task),
		Sessions:  sessionIDs(run.report.Sessions),
		Servers:   run.task.Servers,
		Runs:      run.report.Runs,
	}, run.task.ID)

	err = o.resolveEndpoints(ctx, run)
	if err != nil {
		return err
	}

	for round := 1; round <= run.report.Runs; round++ {
		err = o.dispatchRound(ctx, run, round)
		if err != nil {
			return err
		}
	}

	return nil
}

// startSessions starts every session-typed reference. Failures are logged and
// tolerated as long as one session comes up.
func (o *Orchestrator) startSessions(ctx context.Context, run *execution) error {
	for _, ref := range run.task.SessionRefs() {
		result, err := o.sessions.Start(ctx, models.Session{ID: ref.ID})
		if err != nil {
			if ctx.Err() != nil {
				return &TaskError{Op: "start sessions", TaskID: run.task.ID, SessionID: ref.ID, Err: err}
			}

			run.logger.WarnContext(ctx, "Failed to start browser session", "session_id", ref.ID, "error", err)

			continue
		}

		run.report.Sessions = append(run.report.Sessions, StartedSession{ID: ref.ID, Port: result.Port})
	}

	if len(run.report.Sessions) == 0 {
		return &TaskError{Op: "start sessions", TaskID: run.task.ID, Err: ErrNoSessionsStarted}
	}

	return nil
}

// prepare loads and compiles the workflow and loads the runner servers.
func (o *Orchestrator) prepare(ctx context.Context, run *execution) error {
	task := run.task

	workflow, err := o.persistence.WorkflowByID(ctx, task.WorkflowID)
	if err != nil {
		return fmt.Errorf("failed to load workflow %s: %w", task.WorkflowID, err)
	}

	if workflow == nil {
		return &TaskError{Op: "load workflow", TaskID: task.ID, Err: ErrWorkflowNotFound}
	}

	script, err := o.compiler.Compile(workflow.Nodes, workflow.Edges)
	if err != nil {
		return &TaskError{Op: "compile", TaskID: task.ID, Err: err}
	}

	if len(task.Servers) == 0 {
		return &TaskError{Op: "load servers", TaskID: task.ID, Err: ErrNoServersConfigured}
	}

	servers := make([]*models.Server, 0, len(task.Servers))

	for _, serverID := range task.Servers {
		server, err := o.persistence.ServerByID(ctx, serverID)
		if err != nil {
			return fmt.Errorf("failed to load server %s: %w", serverID, err)
		}

		if server == nil {
			return &TaskError{Op: "load servers", TaskID: task.ID, ServerID: serverID, Err: ErrServerNotFound}
		}

		servers = append(servers, server)
	}

	run.workflow = workflow
	run.script = script
	run.servers = servers

	return nil
}

func (o *Orchestrator) resolveEndpoints(ctx context.Context, run *execution) error {
	for i := range run.report.Sessions {
		session := &run.report.Sessions[i]

		endpoint, err := o.resolver.Resolve(ctx, session.Port, session.ID)
		if err != nil {
			return &TaskError{Op: "resolve endpoint", TaskID: run.task.ID, SessionID: session.ID, Err: err}
		}

		err = o.verifier.Verify(ctx, endpoint.URL)
		if err != nil {
			return &TaskError{Op: "verify endpoint", TaskID: run.task.ID, SessionID: session.ID, Err: err}
		}

		session.WSEndpoint = endpoint.URL
		session.Strategy = endpoint.Strategy

		run.logger.DebugContext(ctx, "Resolved debug endpoint",
			"session_id", session.ID, "endpoint", endpoint.URL, "strategy", endpoint.Strategy)
	}

	return nil
}

type unit struct {
	server  *models.Server
	session StartedSession
}

// dispatchRound sends the script once per (server, session) pair. The first
// failure cancels the units that have not finished.
func (o *Orchestrator) dispatchRound(ctx context.Context, run *execution, round int) error {
	units := make([]unit, 0, len(run.servers)*len(run.report.Sessions))

	for _, server := range run.servers {
		for _, session := range run.report.Sessions {
			units = append(units, unit{server: server, session: session})
		}
	}

	results := make([]DispatchResult, len(units))

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(o.concurrency)

	for i, u := range units {
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			if err := groupCtx.Err(); err != nil {
				return err
			}

			response, err := o.dispatchUnit(groupCtx, run, round, u)
			if err != nil {
				return &TaskError{
					Op:        "dispatch",
					TaskID:    run.task.ID,
					ServerID:  u.server.ID,
					SessionID: u.session.ID,
					Run:       round,
					Err:       err,
				}
			}

			results[i] = DispatchResult{Run: round, ServerID: u.server.ID, SessionID: u.session.ID, Response: response}

			return nil
		})
	}

	err := group.Wait()
	if err != nil {
		return err
	}

	run.report.Results = append(run.report.Results, results...)

	return nil
}

func (o *Orchestrator) dispatchUnit(ctx context.Context, run *execution, round int, u unit) ([]byte, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.dispatch",
		attribute.String(otelhelper.TaskIDKey, run.task.ID),
		attribute.Int(otelhelper.TaskRunKey, round),
		attribute.String(otelhelper.ServerIDKey, u.server.ID),
		attribute.String(otelhelper.SessionIDKey, u.session.ID),
	)
	defer span.End()

	payload := &models.ExecutionPayload{
		Script: run.script,
		BrowserConnection: models.BrowserConnection{
			Port:        o.hostPort,
			DebugPort:   u.session.Port,
			SessionID:   u.session.ID,
			WSEndpoint:  u.session.WSEndpoint,
			BrowserType: o.browserType,
		},
		Nodes:    run.workflow.Nodes,
		Edges:    run.workflow.Edges,
		ServerID: u.server.ID,
	}

	run.logger.InfoContext(ctx, "Dispatching workflow",
		"run", round, "server_id", u.server.ID, "session_id", u.session.ID)

	response, err := o.dispatcher.Dispatch(ctx, u.server, payload)
	if err != nil {
		otelhelper.SetError(span, err, Kind(err))

		return nil, err
	}

	return response, nil
}

// fail marks the task as error. A task without sessions keeps its status.
func (o *Orchestrator) fail(ctx context.Context, run *execution, cause error) {
	message := Describe(cause)

	run.report.Error = message
	run.report.Duration = o.clock.Since(run.report.StartedAt)

	run.logger.ErrorContext(ctx, "Task failed", "kind", Kind(cause), "error", cause)

	if err := o.transition(ctx, run, models.TaskStatusError, nil, message); err != nil {
		run.logger.ErrorContext(ctx, "Failed to mark task as error", "error", err)
	}

	o.publish(ctx, events.TaskFailed{
		BaseEvent:  o.base(events.TaskFailedEvent, run.task),
		Error:      message,
		Dispatches: len(run.report.Results),
		Duration:   run.report.Duration,
	}, run.task.ID)
}

// transition persists a status change. Writes survive caller cancellation so
// an aborted run still ends in a terminal state.
func (o *Orchestrator) transition(ctx context.Context, run *execution, next models.TaskStatus, startTime *time.Time, lastError string) error {
	if !run.status.CanTransitionTo(next) {
		return fmt.Errorf("task %s: cannot move from %q to %q: %w", run.task.ID, run.status, next, persistence.ErrInvalidTaskStatus)
	}

	err := o.persistence.UpdateTaskStatus(context.WithoutCancel(ctx), run.task.ID, next, startTime, lastError)
	if err != nil {
		return fmt.Errorf("failed to update task %s status to %s: %w", run.task.ID, next, err)
	}

	run.logger.DebugContext(ctx, "Task status changed", "from", run.status, "to", next)

	run.status = next
	run.report.Status = next

	return nil
}

// Stop stops every session the task manages and marks the task as done.
// Stop errors are collected; the task is marked done regardless.
func (o *Orchestrator) Stop(ctx context.Context, taskID string) error {
	task, err := o.persistence.TaskByID(ctx, taskID)
	if err != nil {
		return fmt.Errorf("failed to load task %s: %w", taskID, err)
	}

	if task == nil {
		return &TaskError{Op: "stop", TaskID: taskID, Err: ErrTaskNotFound}
	}

	logger := o.logger.With("task_id", task.ID)

	var (
		result  *multierror.Error
		stopped []string
	)

	for _, ref := range task.SessionRefs() {
		err := o.sessions.Stop(ctx, models.Session{ID: ref.ID})
		if err != nil {
			logger.WarnContext(ctx, "Failed to stop browser session", "session_id", ref.ID, "error", err)
			result = multierror.Append(result, err)

			continue
		}

		stopped = append(stopped, ref.ID)
	}

	err = o.persistence.UpdateTaskStatus(context.WithoutCancel(ctx), task.ID, models.TaskStatusDone, nil, "")
	if err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to mark task %s as done: %w", task.ID, err))
	}

	stopErr := result.ErrorOrNil()

	event := events.TaskStopped{
		BaseEvent: o.base(events.TaskStoppedEvent, task),
		Sessions:  stopped,
	}
	if stopErr != nil {
		event.Error = stopErr.Error()
	}

	o.publish(ctx, event, task.ID)

	logger.InfoContext(ctx, "Task stopped", "sessions", stopped)

	if stopErr != nil {
		return &TaskError{Op: "stop", TaskID: task.ID, Err: stopErr}
	}

	return nil
}

func (o *Orchestrator) claim(taskID string) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.running[taskID]; ok {
		return false
	}

	o.running[taskID] = struct{}{}

	return true
}

func (o *Orchestrator) release(taskID string) {
	o.mu.Lock()
	defer o.mu.Unlock()

	delete(o.running, taskID)
}

func (o *Orchestrator) base(eventType events.EventType, task *models.Task) events.BaseEvent {
	return events.NewBase(uuid.NewString(), eventType, task.ID, task.WorkflowID, o.clock.Now())
}

func (o *Orchestrator) publish(ctx context.Context, event eventbus.Event, taskID string) {
	if o.publisher == nil {
		return
	}

	err := o.publisher.Publish(context.WithoutCancel(ctx), taskID, event)
	if err != nil {
		o.logger.WarnContext(ctx, "Failed to publish task event", "event_type", event.GetType(), "error", err)
	}
}

func sessionIDs(started []StartedSession) []string {
	ids := make([]string, 0, len(started))
	for _, session := range started {
		ids = append(ids, session.ID)
	}

	return ids
}
