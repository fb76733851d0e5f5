package main

import (
	"context"
	"os"

	"github.com/dukex/casework/pkg/log"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func main() {
	logger := log.WithModule("casework")

	cmd := &cli.Command{
		Name:                  "casework",
		Usage:                 "Run cases through their workflows",
		EnableShellCompletion: true,
		Commands: []*cli.Command{
			RunAPICommand(),
			NewValidateCommand(),
			NewEventsCommand(),
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		logger.Error("Command failed", "error", err)
		os.Exit(1)
	}
}

func definitionsFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "definitions",
			Usage:   "Path to the JSON file with forms, questions, tasks and workflows",
			Sources: cli.EnvVars("DEFINITIONS_PATH"),
		},
		&cli.StringFlag{
			Name:  "plugins-path",
			Usage: "Path to the directory containing data source and format validator plugins",
			Value: "./plugins",
		},
		&cli.StringFlag{
			Name:    "log-level",
			Usage:   "Log level (debug, info, warn, error)",
			Value:   "info",
			Sources: cli.EnvVars("LOG_LEVEL"),
		},
	}
}

func eventBusFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "event-bus",
			Usage:   "Event bus type (none, gochannel, kafka)",
			Value:   "none",
			Sources: cli.EnvVars("EVENT_BUS_TYPE"),
		},
		&cli.StringFlag{
			Name:    "kafka-brokers",
			Usage:   "Comma separated Kafka brokers",
			Value:   "localhost:9092",
			Sources: cli.EnvVars("KAFKA_BROKERS"),
		},
	}
}
