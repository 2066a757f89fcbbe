package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/browserflow/pkg/cmd"
	"github.com/dukex/browserflow/pkg/events"
	"github.com/dukex/browserflow/pkg/log"
	cli "github.com/urfave/cli/v3"
)

var taskEventTypes = []events.EventType{
	events.TaskStartedEvent,
	events.TaskCompletedEvent,
	events.TaskFailedEvent,
	events.TaskStoppedEvent,
}

func NewEventsCommand() *cli.Command {
	return &cli.Command{
		Name:  "events",
		Usage: "Print task lifecycle events from the event bus",
		Action: func(ctx context.Context, command *cli.Command) error {
			logger := log.FromContext(ctx)

			bus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := bus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			out := command.Root().Writer

			for _, eventType := range taskEventTypes {
				err := bus.Handle(eventType, func(_ context.Context, event any) error {
					return writeJSON(out, event)
				})
				if err != nil {
					return fmt.Errorf("failed to register %s handler: %w", eventType, err)
				}
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := bus.Subscribe(ctx); err != nil {
				return err
			}

			<-ctx.Done()

			return nil
		},
	}
}
