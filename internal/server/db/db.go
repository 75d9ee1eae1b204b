// Package db opens the server PostgreSQL database and applies
// migrations.
package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pressly/goose/v3"

	"github.com/ksolodov/fieldreporter/internal/server/migrations"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// RunMigrations applies all embedded migrations.
func RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set dialect: %w", err)
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// InitDatabase opens the database by DSN, verifies connectivity and
// applies migrations.
func InitDatabase(ctx context.Context, dsn string) (*sql.DB, error) {
	conn, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if err := RunMigrations(ctx, conn); err != nil {
		return nil, err
	}
	return conn, nil
}
