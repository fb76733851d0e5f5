package main

import (
	"context"
	"fmt"

	"github.com/dukex/casework/pkg/cmd"
	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/log"
	"github.com/dukex/casework/pkg/otelhelper"
	"github.com/dukex/casework/pkg/services"
	"github.com/dukex/casework/pkg/validation"
	cli "github.com/urfave/cli/v3"
)

func RunAPICommand() *cli.Command {
	flags := []cli.Flag{
		&cli.IntFlag{
			Name:    "port",
			Aliases: []string{"p"},
			Usage:   "Port to run the API server on",
			Value:   defaultPort,
			Sources: cli.EnvVars("PORT"),
		},
		&cli.StringFlag{
			Name:    "database-url",
			Usage:   "Database connection URL for persistence (postgres:// or file://)",
			Value:   "file://./data",
			Sources: cli.EnvVars("DATABASE_URL"),
		},
		&cli.StringFlag{
			Name:    "lock-url",
			Usage:   "Redis URL for case locks shared between instances",
			Sources: cli.EnvVars("LOCK_URL"),
		},
		&cli.BoolFlag{
			Name:    "tracing",
			Usage:   "Export traces over OTLP HTTP",
			Sources: cli.EnvVars("TRACING_ENABLED"),
		},
	}

	flags = append(flags, definitionsFlags()...)
	flags = append(flags, eventBusFlags()...)

	return &cli.Command{
		Name:    "api",
		Aliases: []string{"run"},
		Usage:   "Start the case API",
		Flags:   flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("api")

			logger.InfoContext(ctx, "Initializing casework API")

			evaluator := jexl.New()

			registry, err := cmd.NewRegistry(logger, evaluator, command.String("definitions"), command.String("plugins-path"))
			if err != nil {
				return fmt.Errorf("failed to load definitions: %w", err)
			}

			locker, closeLocker, err := cmd.NewLocker(ctx, logger, command.String("lock-url"))
			if err != nil {
				return err
			}

			defer func() {
				if err := closeLocker(); err != nil {
					logger.ErrorContext(ctx, "Failed to close locker", "error", err)
				}
			}()

			persistence, err := cmd.NewPersistence(ctx, logger, command.String("database-url"), locker)
			if err != nil {
				return err
			}

			defer func() {
				if err := persistence.Close(ctx); err != nil {
					logger.ErrorContext(ctx, "Failed to close persistence", "error", err)
				}
			}()

			eventBus, err := cmd.NewEventBus(command.String("event-bus"), command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			opts := []services.Option{
				services.WithEvaluator(evaluator),
				services.WithEventPublisher(eventBus),
			}

			if command.Bool("tracing") {
				tracer, shutdown, err := otelhelper.NewTracer(ctx, "casework")
				if err != nil {
					return fmt.Errorf("failed to initialize tracer: %w", err)
				}

				defer func() {
					if err := shutdown(ctx); err != nil {
						logger.ErrorContext(ctx, "Failed to shutdown tracer provider", "error", err)
					}
				}()

				opts = append(opts, services.WithTracer(tracer))
			}

			engine := services.NewEngine(persistence, registry, validation.NewValidator(registry, registry, evaluator), logger, opts...)

			api := NewAPI(logger, engine, registry)

			return api.Start(command.Int("port"))
		},
	}
}
