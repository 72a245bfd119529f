package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/sketch-match/internal/config"
	"github.com/kozaktomas/sketch-match/internal/database/postgres"
)

func newMigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage PostgreSQL schema migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE:  runMigrateUp,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "List applied and pending migrations",
		RunE:  runMigrateStatus,
	})

	return cmd
}

func openPool(ctx context.Context) (*postgres.Pool, error) {
	cfg := config.Load()
	if cfg.Database.URL == "" {
		return nil, errors.New("DATABASE_URL environment variable is required")
	}
	pool, err := postgres.NewPool(ctx, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	return pool, nil
}

func runMigrateUp(cmd *cobra.Command, args []string) error {
	pool, err := openPool(cmd.Context())
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := pool.Migrate(cmd.Context())
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Println("Database is up to date")
		return nil
	}
	for _, file := range applied {
		fmt.Printf("Applied %s\n", file)
	}
	return nil
}

func runMigrateStatus(cmd *cobra.Command, args []string) error {
	pool, err := openPool(cmd.Context())
	if err != nil {
		return err
	}
	defer pool.Close()

	ctx := cmd.Context()
	// Creates the bookkeeping table when missing.
	pending, err := pool.PendingMigrations(ctx)
	if err != nil {
		return err
	}
	applied, err := pool.MigrationsApplied(ctx)
	if err != nil {
		return err
	}

	for _, file := range applied {
		fmt.Printf("  applied  %s\n", file)
	}
	for _, file := range pending {
		fmt.Printf("  pending  %s\n", file)
	}
	fmt.Printf("\n%d applied, %d pending\n", len(applied), len(pending))
	return nil
}
