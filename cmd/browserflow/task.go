package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/dukex/browserflow/pkg/cmd"
	"github.com/dukex/browserflow/pkg/log"
	"github.com/dukex/browserflow/pkg/models"
	"github.com/dukex/browserflow/pkg/orchestrator"
	"github.com/dukex/browserflow/pkg/persistence"
	cli "github.com/urfave/cli/v3"
)

var errTaskIDRequired = errors.New("task id is required")

func NewTaskCommand() *cli.Command {
	return &cli.Command{
		Name:  "task",
		Usage: "Run, stop and inspect tasks",
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Execute a task once and print its report",
				ArgsUsage: "<task-id>",
				Flags:     executionFlags(),
				Action: func(ctx context.Context, command *cli.Command) error {
					taskID := command.Args().First()
					if taskID == "" {
						return errTaskIDRequired
					}

					e, err := newEngine(ctx, command)
					if err != nil {
						return err
					}
					defer e.closeLogged(ctx)

					report, err := e.orchestrator.Execute(ctx, taskID)
					if err != nil {
						return errors.New(orchestrator.Describe(err))
					}

					return writeJSON(command.Root().Writer, report)
				},
			},
			{
				Name:      "stop",
				Usage:     "Stop the browser sessions of a task and mark it done",
				ArgsUsage: "<task-id>",
				Action: func(ctx context.Context, command *cli.Command) error {
					taskID := command.Args().First()
					if taskID == "" {
						return errTaskIDRequired
					}

					e, err := newEngine(ctx, command)
					if err != nil {
						return err
					}
					defer e.closeLogged(ctx)

					if err := e.orchestrator.Stop(ctx, taskID); err != nil {
						return err
					}

					_, err = fmt.Fprintf(command.Root().Writer, "Task %s stopped\n", taskID)

					return err
				},
			},
			{
				Name:  "list",
				Usage: "List tasks, optionally by status",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "status",
						Usage: "Only tasks with this status (pending, in_process, done, error)",
					},
				},
				Action: func(ctx context.Context, command *cli.Command) error {
					store, err := cmd.NewPersistence(ctx, log.FromContext(ctx), command.String("database-url"))
					if err != nil {
						return err
					}

					defer func() {
						if err := store.Close(ctx); err != nil {
							log.FromContext(ctx).ErrorContext(ctx, "Failed to close persistence", "error", err)
						}
					}()

					tasks, err := listTasks(ctx, store, command.String("status"))
					if err != nil {
						return err
					}

					return writeJSON(command.Root().Writer, tasks)
				},
			},
		},
	}
}

func listTasks(ctx context.Context, store persistence.Persistence, status string) ([]*models.Task, error) {
	if status == "" {
		return store.Tasks(ctx)
	}

	if !persistence.ValidTaskStatus(status) {
		return nil, fmt.Errorf("invalid task status %q", status)
	}

	return store.TasksByStatus(ctx, models.TaskStatus(status))
}

func writeJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")

	return encoder.Encode(v)
}
