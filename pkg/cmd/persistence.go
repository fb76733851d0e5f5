package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dukex/casework/pkg/lock"
	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/persistence/file"
	"github.com/dukex/casework/pkg/persistence/postgresql"
)

var supportedPersistenceProviders = []string{"file", "postgres", "postgresql"}

// NewPersistence opens the store named by databaseURL: postgres:// URLs use PostgreSQL,
// file:// URLs and bare paths a directory tree guarded by locker.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string, locker lock.Locker) (persistence.Persistence, error) {
	switch parsePersistenceProvider(databaseURL) {
	case "postgres", "postgresql":
		return postgresql.NewPersistence(ctx, logger, databaseURL)
	case "file":
		return file.NewPersistence(databaseURL, locker), nil
	default:
		return nil, fmt.Errorf("unsupported persistence provider in %q, expected one of %s",
			databaseURL, strings.Join(supportedPersistenceProviders, ", "))
	}
}

func parsePersistenceProvider(databaseURL string) string {
	provider, _, found := strings.Cut(databaseURL, "://")
	if !found {
		return "file"
	}

	return provider
}

// NewLocker returns a Redis locker for redis:// URLs and an in-process locker otherwise.
// The close func releases the Redis connection.
func NewLocker(ctx context.Context, logger *slog.Logger, lockURL string) (lock.Locker, func() error, error) {
	if lockURL == "" {
		return lock.NewLocalLocker(), func() error { return nil }, nil
	}

	if !strings.HasPrefix(lockURL, "redis://") && !strings.HasPrefix(lockURL, "rediss://") {
		return nil, nil, fmt.Errorf("unsupported lock URL %q", lockURL)
	}

	locker, err := lock.NewRedisLocker(ctx, lockURL, logger)
	if err != nil {
		return nil, nil, err
	}

	return locker, locker.Close, nil
}
