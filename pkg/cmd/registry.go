// Package cmd provides common initialization functions for command-line applications.
package cmd

import (
	"log/slog"

	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/registry"
)

// NewRegistry loads the plugins below pluginsPath, then the definitions file.
func NewRegistry(logger *slog.Logger, evaluator *jexl.Evaluator, definitionsPath, pluginsPath string) (*registry.Registry, error) {
	reg := registry.NewRegistry(logger, evaluator)

	if err := reg.LoadPlugins(pluginsPath); err != nil {
		return nil, err
	}

	if definitionsPath == "" {
		logger.Warn("No definitions file given, no workflow can be started")
		return reg, nil
	}

	if err := reg.LoadFile(definitionsPath); err != nil {
		return nil, err
	}

	return reg, nil
}
