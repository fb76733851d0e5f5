package cmd

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dukex/casework/pkg/eventbus"
	"github.com/dukex/casework/pkg/jexl"
	"github.com/dukex/casework/pkg/lock"
	"github.com/dukex/casework/pkg/persistence/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestParsePersistenceProvider(t *testing.T) {
	tests := map[string]string{
		"file:///var/lib/casework":         "file",
		"./data":                           "file",
		"postgres://u:p@localhost/db":      "postgres",
		"postgresql://u:p@localhost/db":    "postgresql",
		"mongodb://localhost:27017/tenant": "mongodb",
	}

	for url, want := range tests {
		assert.Equal(t, want, parsePersistenceProvider(url), url)
	}
}

func TestNewPersistence(t *testing.T) {
	ctx := context.Background()

	store, err := NewPersistence(ctx, discard, "file://"+t.TempDir(), lock.NewLocalLocker())
	require.NoError(t, err)
	assert.IsType(t, &file.Persistence{}, store)
	assert.NoError(t, store.HealthCheck(ctx))

	_, err = NewPersistence(ctx, discard, "mongodb://localhost", nil)
	assert.Error(t, err)
}

func TestNewLocker(t *testing.T) {
	locker, closeLocker, err := NewLocker(context.Background(), discard, "")
	require.NoError(t, err)
	assert.IsType(t, &lock.LocalLocker{}, locker)
	assert.NoError(t, closeLocker())

	_, _, err = NewLocker(context.Background(), discard, "memcached://localhost")
	assert.Error(t, err)
}

func TestNewEventBus(t *testing.T) {
	bus, err := NewEventBus("none", "", discard)
	require.NoError(t, err)
	assert.IsType(t, eventbus.NoopEventBus{}, bus)

	bus, err = NewEventBus("gochannel", "", discard)
	require.NoError(t, err)
	assert.IsType(t, &eventbus.WatermillEventBus{}, bus)
	assert.NoError(t, bus.Close())

	_, err = NewEventBus("nats", "", discard)
	assert.Error(t, err)
}

func TestNewRegistry(t *testing.T) {
	path := filepath.Join(t.TempDir(), "definitions.json")
	require.NoError(t, os.WriteFile(path, []byte(`{
		"tasks": [{"slug": "a", "name": "A", "type": "simple"}],
		"workflows": [{"slug": "w", "name": "W", "start_tasks": ["a"]}]
	}`), 0o600))

	reg, err := NewRegistry(discard, jexl.New(), path, "")
	require.NoError(t, err)

	_, ok := reg.Workflow("w")
	assert.True(t, ok)

	reg, err = NewRegistry(discard, jexl.New(), "", "")
	require.NoError(t, err)
	assert.Empty(t, reg.Workflows())
}
