package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/dukex/browserflow/pkg/compiler"
	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	cli "github.com/urfave/cli/v3"
)

var (
	errGraphFileRequired = errors.New("graph file is required")
	errInvalidGraph      = errors.New("graph is invalid")
)

func NewCompileCommand() *cli.Command {
	return &cli.Command{
		Name:      "compile",
		Usage:     "Compile a workflow graph file (.json, .yaml) into a playwright script",
		ArgsUsage: "<graph-file>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Write the script to this file instead of stdout",
			},
		},
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errGraphFileRequired
			}

			workflow, err := compiler.LoadGraphFile(path)
			if err != nil {
				return err
			}

			script, err := compiler.NewDefault().Compile(workflow.Nodes, workflow.Edges)
			if err != nil {
				return err
			}

			if output := command.String("output"); output != "" {
				//nolint:gosec // generated scripts are meant to be readable
				return os.WriteFile(output, []byte(script), 0o644)
			}

			_, err = fmt.Fprint(command.Root().Writer, script)

			return err
		},
	}
}

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:      "validate",
		Usage:     "Check a workflow graph file for structural and settings problems",
		ArgsUsage: "<graph-file>",
		Action: func(_ context.Context, command *cli.Command) error {
			path := command.Args().First()
			if path == "" {
				return errGraphFileRequired
			}

			workflow, err := compiler.LoadGraphFile(path)
			if err != nil {
				return err
			}

			var problems []string

			if err := validator.New(validator.WithRequiredStructEnabled()).Struct(workflow); err != nil {
				problems = append(problems, err.Error())
			}

			graphCompiler := compiler.NewDefault()

			if _, err := graphCompiler.Order(workflow.Nodes, workflow.Edges); err != nil {
				problems = append(problems, err.Error())
			}

			if err := graphCompiler.ValidateSettings(workflow.Nodes); err != nil {
				var merr *multierror.Error
				if errors.As(err, &merr) {
					for _, settingsErr := range merr.Errors {
						problems = append(problems, settingsErr.Error())
					}
				} else {
					problems = append(problems, err.Error())
				}
			}

			out := command.Root().Writer

			if len(problems) == 0 {
				_, err := fmt.Fprintf(out, "%s: valid\n", path)

				return err
			}

			for _, problem := range problems {
				fmt.Fprintf(out, "%s: %s\n", path, problem)
			}

			return fmt.Errorf("%w: %d problem(s)", errInvalidGraph, len(problems))
		},
	}
}
