package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/dukex/browserflow/pkg/compiler"
	"github.com/dukex/browserflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/healthcheck"
	"github.com/gofiber/fiber/v3/middleware/logger"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func NewAPICommand() *cli.Command {
	return &cli.Command{
		Name:  "api",
		Usage: "Serve the HTTP API",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
		}, executionFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			e, err := newEngine(ctx, command)
			if err != nil {
				return err
			}
			defer e.closeLogged(ctx)

			handlers := web.NewAPIHandlers(
				e.persistence,
				e.manager,
				e.poller,
				e.orchestrator,
				compiler.NewDefault(),
				validator.New(validator.WithRequiredStructEnabled()),
				e.logger,
			)

			app := newAPIApp(handlers)

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			go func() {
				<-ctx.Done()

				shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
				defer cancel()

				if err := app.ShutdownWithContext(shutdownCtx); err != nil {
					e.logger.ErrorContext(shutdownCtx, "Failed to shut down API server", "error", err)
				}
			}()

			port := command.Int("port")
			e.logger.InfoContext(ctx, "Starting API server", "port", port)

			err = app.Listen(":"+strconv.Itoa(port), fiber.ListenConfig{DisableStartupMessage: true})
			if err != nil && !errors.Is(ctx.Err(), context.Canceled) {
				return err
			}

			return nil
		},
	}
}

func newAPIApp(handlers *web.APIHandlers) *fiber.App {
	app := fiber.New()
	app.Use(cors.New())
	app.Use(logger.New(logger.Config{
		DisableColors: true,
	}))

	app.Get(healthcheck.DefaultLivenessEndpoint, healthcheck.NewHealthChecker())
	app.Get(healthcheck.DefaultReadinessEndpoint, healthcheck.NewHealthChecker())

	app.Get("/", func(c fiber.Ctx) error {
		return c.SendString("browserflow API")
	})

	handlers.Routes(app)

	return app
}
