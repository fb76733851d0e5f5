package registry

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"plugin"
	"strings"

	"github.com/dukex/casework/pkg/validation"
)

var ErrInvalidPlugin = errors.New("invalid plugin")

// Plugins are shared objects below <pluginsPath>/<symbol>s exporting a variable
// named after the symbol, e.g. `var DataSource = myDataSource{}` in datasources/*.so.
const (
	dataSourceSymbol      = "DataSource"
	formatValidatorSymbol = "FormatValidator"
)

func (r *Registry) LoadDataSourcePlugins(pluginsPath string) ([]validation.DataSource, error) {
	sources, err := loadPlugin[validation.DataSource](r.logger, pluginsPath, dataSourceSymbol)
	if err != nil {
		return nil, err
	}

	for _, source := range sources {
		r.RegisterDataSource(source)
	}

	return sources, nil
}

func (r *Registry) LoadFormatValidatorPlugins(pluginsPath string) ([]validation.FormatValidator, error) {
	validators, err := loadPlugin[validation.FormatValidator](r.logger, pluginsPath, formatValidatorSymbol)
	if err != nil {
		return nil, err
	}

	for _, validator := range validators {
		r.RegisterFormatValidator(validator)
	}

	return validators, nil
}

// LoadPlugins loads every plugin kind below pluginsPath. An empty path loads nothing.
func (r *Registry) LoadPlugins(pluginsPath string) error {
	if pluginsPath == "" {
		return nil
	}

	if _, err := r.LoadDataSourcePlugins(pluginsPath); err != nil {
		return err
	}

	_, err := r.LoadFormatValidatorPlugins(pluginsPath)

	return err
}

func loadPlugin[T any](logger *slog.Logger, pluginsPath string, symbolName string) ([]T, error) {
	rootPath := filepath.Join(pluginsPath, strings.ToLower(symbolName)+"s")

	if _, err := os.Stat(rootPath); errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}

	root := os.DirFS(rootPath)

	pluginPathList, err := fs.Glob(root, "*/*.so")
	if err != nil {
		return nil, err
	}

	l := logger.With(slog.String("path", rootPath), slog.String("type", symbolName))
	l.Info("Loading plugins")

	pluginList := make([]T, 0, len(pluginPathList))

	for _, p := range pluginPathList {
		plg, err := plugin.Open(filepath.Join(rootPath, p))
		if err != nil {
			return nil, fmt.Errorf("opening plugin %s: %w", p, err)
		}

		v, err := plg.Lookup(symbolName)
		if err != nil {
			return nil, fmt.Errorf("plugin %s: %w", p, err)
		}

		castV, ok := v.(T)
		if !ok {
			return nil, fmt.Errorf("%w: %s does not export a %s", ErrInvalidPlugin, p, symbolName)
		}

		pluginList = append(pluginList, castV)

		l.Info("Loaded plugin", slog.String("plugin", p))
	}

	return pluginList, nil
}
