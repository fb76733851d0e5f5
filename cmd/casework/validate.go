package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/casework/pkg/cmd"
	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/log"
	cli "github.com/urfave/cli/v3"
)

var ErrNoDefinitions = errors.New("no definitions path given")

func NewValidateCommand() *cli.Command {
	return &cli.Command{
		Name:  "validate",
		Usage: "Check the definitions file and the plugins it relies on",
		Flags: definitionsFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("validate")

			path := command.String("definitions")
			if path == "" {
				return ErrNoDefinitions
			}

			registry, err := cmd.NewRegistry(logger, jexl.New(), path, command.String("plugins-path"))
			if err != nil {
				return fmt.Errorf("definitions in %s are invalid: %w", path, err)
			}

			for _, wf := range registry.Workflows() {
				logger.InfoContext(ctx, "Workflow is valid",
					"workflow", wf.Slug,
					"start_tasks", wf.StartTasks,
					"flows", len(wf.Flows))
			}

			return nil
		},
	}
}
