package main

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/dukex/casework/pkg/cmd"
	"github.com/dukex/casework/pkg/eventbus"
	"github.com/dukex/casework/pkg/events"
	"github.com/dukex/casework/pkg/log"
	cli "github.com/urfave/cli/v3"
)

var ErrNoEventBus = errors.New("events requires an event bus")

var lifecycleEvents = []events.EventType{
	events.CaseCreatedEvent,
	events.CaseCompletedEvent,
	events.CaseCanceledEvent,
	events.WorkItemCreatedEvent,
	events.WorkItemCompletedEvent,
	events.WorkItemSkippedEvent,
	events.WorkItemCanceledEvent,
}

// NewEventsCommand follows the lifecycle events published by API instances and logs them.
func NewEventsCommand() *cli.Command {
	flags := append([]cli.Flag{
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}, eventBusFlags()...)

	return &cli.Command{
		Name:  "events",
		Usage: "Log case and work item events as they are published",
		Flags: flags,
		Action: func(ctx context.Context, command *cli.Command) error {
			log.Setup(command.String("log-level"))

			logger := log.WithModule("events")

			provider := command.String("event-bus")
			if provider == "" || provider == "none" {
				return ErrNoEventBus
			}

			eventBus, err := cmd.NewEventBus(provider, command.String("kafka-brokers"), logger)
			if err != nil {
				return err
			}

			defer func() {
				if err := eventBus.Close(); err != nil {
					logger.ErrorContext(ctx, "Failed to close event bus", "error", err)
				}
			}()

			if err := followEvents(ctx, eventBus, func(ctx context.Context, event events.Event) error {
				logger.InfoContext(ctx, "Event received", "event_type", event.GetType(), "case_id", event.GetCaseID())
				return nil
			}); err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.InfoContext(ctx, "Listening for events", "event_bus", provider)

			<-ctx.Done()

			return nil
		},
	}
}

func followEvents(ctx context.Context, subscriber eventbus.EventSubscriber, handler eventbus.EventHandler) error {
	for _, eventType := range lifecycleEvents {
		if err := subscriber.Handle(eventType, handler); err != nil {
			return err
		}
	}

	return subscriber.Subscribe(ctx)
}
