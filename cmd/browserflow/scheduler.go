package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/dukex/browserflow/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

func NewSchedulerCommand() *cli.Command {
	return &cli.Command{
		Name:  "scheduler",
		Usage: "Execute pending tasks when they become due",
		Flags: append([]cli.Flag{
			&cli.DurationFlag{
				Name:    "interval",
				Usage:   "How often pending tasks are scanned",
				Value:   scheduler.DefaultInterval,
				Sources: cli.EnvVars("SCHEDULER_INTERVAL"),
			},
			&cli.BoolFlag{
				Name:  "once",
				Usage: "Scan a single time and exit",
			},
		}, executionFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			e, err := newEngine(ctx, command)
			if err != nil {
				return err
			}
			defer e.closeLogged(ctx)

			s := scheduler.New(e.persistence, e.orchestrator, e.logger, scheduler.WithInterval(command.Duration("interval")))

			if command.Bool("once") {
				executed, err := s.Tick(ctx)
				e.logger.InfoContext(ctx, "Scheduler scan finished", "executed", executed)

				return err
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := s.Start(ctx); err != nil {
				return err
			}

			e.logger.InfoContext(ctx, "Scheduler started", "interval", command.Duration("interval"))

			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
			defer cancel()

			return s.Stop(shutdownCtx)
		},
	}
}
