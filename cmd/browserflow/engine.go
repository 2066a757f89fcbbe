package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/browserflow/pkg/cmd"
	"github.com/dukex/browserflow/pkg/devtools"
	"github.com/dukex/browserflow/pkg/dispatcher"
	"github.com/dukex/browserflow/pkg/eventbus"
	"github.com/dukex/browserflow/pkg/hostapi"
	"github.com/dukex/browserflow/pkg/log"
	"github.com/dukex/browserflow/pkg/orchestrator"
	"github.com/dukex/browserflow/pkg/otelhelper"
	"github.com/dukex/browserflow/pkg/persistence"
	"github.com/dukex/browserflow/pkg/sessions"
	"github.com/hashicorp/go-multierror"
	"github.com/jonboulle/clockwork"
	cli "github.com/urfave/cli/v3"
)

// executionFlags are shared by every command that runs tasks.
func executionFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:    "concurrency",
			Usage:   "Maximum dispatches in flight per run",
			Value:   1,
			Sources: cli.EnvVars("DISPATCH_CONCURRENCY"),
		},
		&cli.DurationFlag{
			Name:    "dispatch-timeout",
			Usage:   "Timeout of a single runner request",
			Value:   dispatcher.DefaultTimeout,
			Sources: cli.EnvVars("DISPATCH_TIMEOUT"),
		},
		&cli.BoolFlag{
			Name:    "verify-endpoints",
			Usage:   "Connect to every resolved debug endpoint with playwright before dispatching",
			Sources: cli.EnvVars("VERIFY_ENDPOINTS"),
		},
		&cli.BoolFlag{
			Name:    "install-playwright",
			Usage:   "Install the playwright driver when endpoint verification starts",
			Sources: cli.EnvVars("INSTALL_PLAYWRIGHT"),
		},
	}
}

// engine holds the collaborators built from the command line.
type engine struct {
	logger       *slog.Logger
	persistence  persistence.Persistence
	registry     *sessions.Registry
	host         *hostapi.Client
	manager      *sessions.Manager
	poller       *sessions.Poller
	orchestrator *orchestrator.Orchestrator
	eventBus     eventbus.EventBus

	closers []func(context.Context) error
}

// newSessionEngine builds only the session side: store, registry, host
// client, manager and poller.
func newSessionEngine(ctx context.Context, command *cli.Command) (*engine, error) {
	logger := log.FromContext(ctx)
	clock := clockwork.NewRealClock()

	e := &engine{logger: logger}

	portStore, err := cmd.NewSessionStore(ctx, logger, command.String("session-store-url"))
	if err != nil {
		return nil, err
	}

	e.closers = append(e.closers, portStore.Close)

	e.registry = sessions.NewRegistry(portStore, clock, logger)
	if err := e.registry.Load(ctx); err != nil {
		return nil, e.abort(ctx, fmt.Errorf("failed to load session ports: %w", err))
	}

	e.host = hostapi.NewClient(command.String("host-url"), command.Int("host-port"), nil, logger)
	e.manager = sessions.NewManager(
		e.host,
		e.registry,
		sessions.NewPortAllocator(e.registry),
		logger,
		sessions.WithClock(clock),
		sessions.WithHeadless(command.Bool("headless")),
	)
	e.poller = sessions.NewPoller(e.host, e.registry, logger, sessions.WithPollClock(clock))

	return e, nil
}

// newEngine builds everything needed to execute tasks.
func newEngine(ctx context.Context, command *cli.Command) (*engine, error) {
	e, err := newSessionEngine(ctx, command)
	if err != nil {
		return nil, err
	}

	if command.Bool("tracing") {
		shutdown, err := otelhelper.Setup(ctx, "browserflow")
		if err != nil {
			return nil, e.abort(ctx, fmt.Errorf("failed to initialize tracing: %w", err))
		}

		e.closers = append(e.closers, shutdown)
	}

	e.persistence, err = cmd.NewPersistence(ctx, e.logger, command.String("database-url"))
	if err != nil {
		return nil, e.abort(ctx, err)
	}

	e.closers = append(e.closers, e.persistence.Close)

	e.eventBus, err = cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), e.logger)
	if err != nil {
		return nil, e.abort(ctx, err)
	}

	e.closers = append(e.closers, func(context.Context) error { return e.eventBus.Close() })

	opts := []orchestrator.Option{
		orchestrator.WithConcurrency(command.Int("concurrency")),
		orchestrator.WithPublisher(e.eventBus),
		orchestrator.WithHostPort(e.host.HostPort()),
	}

	if command.Bool("verify-endpoints") {
		verifier := devtools.NewPlaywrightVerifier(devtools.DefaultTimeout, command.Bool("install-playwright"), e.logger)
		opts = append(opts, orchestrator.WithVerifier(verifier))
		e.closers = append(e.closers, func(context.Context) error { return verifier.Close() })
	}

	e.orchestrator = orchestrator.New(
		e.persistence,
		e.manager,
		devtools.NewResolver(nil, e.logger),
		dispatcher.New(e.logger, dispatcher.WithTimeout(command.Duration("dispatch-timeout"))),
		e.logger,
		opts...,
	)

	return e, nil
}

// Close releases resources in reverse order of creation.
func (e *engine) Close(ctx context.Context) error {
	var result error

	for i := len(e.closers) - 1; i >= 0; i-- {
		if err := e.closers[i](ctx); err != nil {
			result = multierror.Append(result, err)
		}
	}

	e.closers = nil

	return result
}

func (e *engine) abort(ctx context.Context, err error) error {
	if closeErr := e.Close(ctx); closeErr != nil {
		e.logger.ErrorContext(ctx, "Failed to release resources", "error", closeErr)
	}

	return err
}

func (e *engine) closeLogged(ctx context.Context) {
	if err := e.Close(ctx); err != nil {
		e.logger.ErrorContext(ctx, "Failed to release resources", "error", err)
	}
}

// shutdownTimeout bounds graceful shutdown of long running commands.
const shutdownTimeout = 10 * time.Second
