package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

type migrator struct {
	db *sqlx.DB

	logger *slog.Logger
}

// NewDatabaseMigrator manages the cache_records schema
func NewDatabaseMigrator(db *sqlx.DB, logger *slog.Logger) *migrator {
	return &migrator{
		db:     db,
		logger: logger,
	}
}

// withInstance runs fn with a migrate instance bound to schemaName, creating the schema if needed
func (m *migrator) withInstance(ctx context.Context, schemaName string, fn func(instance *migrate.Migrate) error) error {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("failed to connect to db: %w", err)
	}
	defer conn.Close()

	quotedSchema := pq.QuoteIdentifier(schemaName)
	if _, err := conn.ExecContext(ctx, "CREATE SCHEMA IF NOT EXISTS "+quotedSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "SET search_path TO "+quotedSchema); err != nil {
		return fmt.Errorf("failed to set search path: %w", err)
	}

	source, err := iofs.New(embeddedMigrations, "migrations")
	if err != nil {
		return fmt.Errorf("failed to read embedded migrations: %w", err)
	}
	defer source.Close()

	driver, err := postgres.WithConnection(ctx, conn, &postgres.Config{
		DatabaseName: DB_NAME,
		SchemaName:   schemaName,
	})
	if err != nil {
		return fmt.Errorf("failed to create postgres driver: %w", err)
	}

	instance, err := migrate.NewWithInstance("iofs", source, "postgres", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}
	defer instance.Close()

	return fn(instance)
}

// Migrate applies all pending migrations to schemaName
func (m *migrator) Migrate(ctx context.Context, schemaName string) error {
	err := m.withInstance(ctx, schemaName, func(instance *migrate.Migrate) error {
		m.logger.InfoContext(ctx, "Starting migrations", slog.String("schema", schemaName))

		err := instance.Up()
		if errors.Is(err, migrate.ErrNoChange) {
			m.logger.InfoContext(ctx, "Schema is up to date", slog.String("schema", schemaName))
			return nil
		}
		if err != nil {
			return err
		}

		version, dirty, err := instance.Version()
		if err != nil {
			return fmt.Errorf("failed to read version: %w", err)
		}
		m.logger.InfoContext(ctx, "Migrations completed", slog.String("schema", schemaName), slog.Uint64("version", uint64(version)), slog.Bool("dirty", dirty))
		return nil
	})
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// Rollback reverts every migration applied to schemaName
func (m *migrator) Rollback(ctx context.Context, schemaName string) error {
	err := m.withInstance(ctx, schemaName, func(instance *migrate.Migrate) error {
		err := instance.Down()
		if err != nil && !errors.Is(err, migrate.ErrNoChange) {
			return err
		}
		m.logger.InfoContext(ctx, "Rolled back migrations", slog.String("schema", schemaName))
		return nil
	})
	if err != nil {
		return fmt.Errorf("rollback: %w", err)
	}
	return nil
}
