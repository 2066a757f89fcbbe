package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/sessions"
	cli "github.com/urfave/cli/v3"
)

var errSessionIDRequired = errors.New("session id is required")

func NewSessionsCommand() *cli.Command {
	return &cli.Command{
		Name:    "sessions",
		Aliases: []string{"s"},
		Usage:   "Inspect and control browser sessions on the host",
		Commands: []*cli.Command{
			{
				Name:  "list",
				Usage: "List host sessions with their cached debug ports",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "name",
						Usage: "Glob matched against session names, e.g. prod-*",
					},
					&cli.BoolFlag{
						Name:  "watch",
						Usage: "Keep polling and print the list on every change",
					},
					&cli.DurationFlag{
						Name:  "interval",
						Usage: "Polling interval used with --watch",
						Value: time.Second,
					},
				},
				Action: listSessions,
			},
			{
				Name:      "start",
				Usage:     "Start a session and wait until its debug port answers",
				ArgsUsage: "<session-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					id := command.Args().First()
					if id == "" {
						return errSessionIDRequired
					}

					e, err := newSessionEngine(ctx, command)
					if err != nil {
						return err
					}
					defer e.closeLogged(ctx)

					result, err := e.manager.Start(ctx, models.Session{ID: id})
					if err != nil {
						return err
					}

					_, err = fmt.Fprintf(command.Root().Writer, "Session %s listening on debug port %d (reused: %t)\n",
						result.SessionID, result.Port, result.Reused)

					return err
				},
			},
			{
				Name:      "stop",
				Usage:     "Stop a session and release its debug port",
				ArgsUsage: "<session-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					id := command.Args().First()
					if id == "" {
						return errSessionIDRequired
					}

					e, err := newSessionEngine(ctx, command)
					if err != nil {
						return err
					}
					defer e.closeLogged(ctx)

					if err := e.manager.Stop(ctx, models.Session{ID: id}); err != nil {
						return err
					}

					_, err = fmt.Fprintf(command.Root().Writer, "Session %s stopped\n", id)

					return err
				},
			},
		},
	}
}

func listSessions(ctx context.Context, command *cli.Command) error {
	filter, err := sessions.CompileNameFilter(command.String("name"))
	if err != nil {
		return err
	}

	e, err := newSessionEngine(ctx, command)
	if err != nil {
		return err
	}
	defer e.closeLogged(ctx)

	out := command.Root().Writer

	if !command.Bool("watch") {
		list, err := e.poller.Poll(ctx)
		if err != nil {
			return err
		}

		return printSessions(out, sessions.FilterByName(list, filter))
	}

	poller := sessions.NewPoller(e.host, e.registry, e.logger,
		sessions.WithNameFilter(filter),
		sessions.WithPollInterval(command.Duration("interval")),
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	poller.Run(ctx, func(list []models.Session) {
		if err := printSessions(out, list); err != nil {
			e.logger.WarnContext(ctx, "Failed to print sessions", "error", err)
		}
	}, nil)

	return nil
}

func printSessions(w io.Writer, list []models.Session) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)

	fmt.Fprintln(tw, "ID\tNAME\tSTATUS\tDEBUG PORT")

	for _, session := range list {
		port := "-"
		if session.DebugPort != 0 {
			port = fmt.Sprint(session.DebugPort)
		}

		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", session.ID, session.Name, session.Status, port)
	}

	return tw.Flush()
}
