// Package main is the browserflow command line: the API server, the task
// scheduler and one-shot task, session and graph commands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/dukex/browserflow/pkg/hostapi"
	"github.com/dukex/browserflow/pkg/log"
	"github.com/joho/godotenv"
	cli "github.com/urfave/cli/v3"
)

const defaultHostPort = 9222

func main() {
	// A missing .env is fine; flags still read the real environment.
	_ = godotenv.Load()

	if err := NewRootCommand().Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "browserflow",
		Usage:                 "Run browser automation workflows against remote browser sessions",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file://path or postgres://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "session-store-url",
				Usage:   "Debug port cache URL (memory://, file://path or redis://...)",
				Value:   "memory://",
				Sources: cli.EnvVars("SESSION_STORE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "host-url",
				Usage:   "Base URL of the browser host relay",
				Value:   hostapi.DefaultRelayURL,
				Sources: cli.EnvVars("HOST_URL"),
			},
			&cli.IntFlag{
				Name:    "host-port",
				Usage:   "Port of the browser host instance behind the relay",
				Value:   defaultHostPort,
				Sources: cli.EnvVars("HOST_PORT"),
			},
			&cli.BoolFlag{
				Name:    "headless",
				Usage:   "Start browser sessions without a window",
				Sources: cli.EnvVars("HEADLESS"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export OpenTelemetry traces over OTLP/HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		},
		Before: func(ctx context.Context, command *cli.Command) (context.Context, error) {
			log.Setup(command.String("log-level"), command.String("log-format"))

			return log.NewContext(ctx, log.WithModule("browserflow")), nil
		},
		Commands: []*cli.Command{
			NewAPICommand(),
			NewSchedulerCommand(),
			NewTaskCommand(),
			NewSessionsCommand(),
			NewCompileCommand(),
			NewValidateCommand(),
			NewEventsCommand(),
		},
	}
}
