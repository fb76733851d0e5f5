// Package postgresql provides PostgreSQL persistence for cases, work items and documents.
package postgresql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/casework/pkg/persistence"
	"github.com/dukex/casework/pkg/persistence/sqlbase"
	_ "github.com/lib/pq"
)

// queryer is satisfied by both *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	*repository

	db *sql.DB
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &Persistence{
		repository: &repository{q: database, logger: logger},
		db:         database,
	}, nil
}

// Close closes the database connection.
func (p *Persistence) Close(_ context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

// Transaction runs fn inside a database transaction. Row locks taken by LockCase last until commit.
func (p *Persistence) Transaction(ctx context.Context, fn func(ctx context.Context, tx persistence.Tx) error) error {
	sqlTx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	t := &transaction{repository: &repository{q: sqlTx, logger: p.logger}}

	if err := fn(ctx, t); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			p.logger.ErrorContext(ctx, "failed to roll back transaction", "error", rbErr)
		}

		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

type transaction struct {
	*repository
}

// LockCase takes a row lock on the case held until the transaction ends.
func (t *transaction) LockCase(ctx context.Context, caseID string) error {
	var id string

	err := t.q.QueryRowContext(ctx, `SELECT id FROM cases WHERE id = $1 FOR UPDATE`, caseID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return persistence.NewEntityError("LockCase", "case", caseID, persistence.ErrCaseNotFound)
	}

	if err != nil {
		return persistence.NewEntityError("LockCase", "case", caseID, err)
	}

	return nil
}
