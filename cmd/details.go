package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/sketch-match/internal/config"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/database/mariadb"
	"github.com/kozaktomas/sketch-match/internal/database/postgres"
	"github.com/kozaktomas/sketch-match/internal/textnorm"
)

func newDetailsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "details",
		Short: "Manage case detail records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Upsert detail records from a YAML seed file",
		Long: `Upsert detail records from a YAML seed file.

The file holds a list of records:

  - id: A01234
    offense: BURGLARY
    mittimus: "12345"
    url: https://cdn.example.com/A01234.jpg`,
		Args: cobra.ExactArgs(1),
		RunE: runDetailsImport,
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "get <id>...",
		Short: "Print detail records as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE:  runDetailsGet,
	})

	return cmd
}

// parseDetailSeed decodes a YAML seed and normalizes record ids.
// Records whose id normalizes to empty are rejected.
func parseDetailSeed(data []byte) ([]database.DetailRecord, error) {
	var records []database.DetailRecord
	if err := yaml.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("parse seed: %w", err)
	}
	for i := range records {
		id := textnorm.ImageID(records[i].ImageID)
		if id == "" {
			return nil, fmt.Errorf("record %d has no id", i+1)
		}
		records[i].ImageID = id
	}
	return records, nil
}

// initDetailStore connects PostgreSQL and, when configured, the MariaDB detail reader.
func initDetailStore(ctx context.Context, cfg *config.Config) (func(), error) {
	if cfg.Database.URL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable is required")
	}
	if _, err := postgres.Initialize(ctx, &cfg.Database); err != nil {
		return nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	cleanup := func() { postgres.GetGlobalPool().Close() }

	if cfg.Details.DatabaseURL != "" {
		pool, err := mariadb.Initialize(cfg.Details.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, fmt.Errorf("failed to initialize MariaDB details: %w", err)
		}
		pgCleanup := cleanup
		cleanup = func() {
			pool.Close()
			pgCleanup()
		}
	}
	return cleanup, nil
}

func runDetailsImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read seed file: %w", err)
	}
	records, err := parseDetailSeed(data)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No records to import")
		return nil
	}

	cfg := config.Load()
	ctx := cmd.Context()
	cleanup, err := initDetailStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	writer, err := database.GetDetailWriter(ctx)
	if err != nil {
		return err
	}

	bar := progressbar.NewOptions(len(records),
		progressbar.OptionSetDescription("Importing details"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("records"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var imported, failed int
	for _, rec := range records {
		if err := writer.UpsertDetail(ctx, rec); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "\nfailed to import %s: %v\n", rec.ImageID, err)
		} else {
			imported++
		}
		bar.Add(1)
	}
	bar.Finish()

	fmt.Printf("\nImported %d records (%d failed)\n", imported, failed)
	if failed > 0 {
		return fmt.Errorf("%d records failed to import", failed)
	}
	return nil
}

func runDetailsGet(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()
	cleanup, err := initDetailStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	reader, err := database.GetDetailReader(ctx)
	if err != nil {
		return err
	}

	result := make([]database.DetailRecord, len(args))
	for i, id := range args {
		rec, err := reader.GetDetail(ctx, textnorm.ImageID(id))
		if err != nil {
			return fmt.Errorf("failed to get %s: %w", id, err)
		}
		if rec == nil {
			rec = &database.DetailRecord{}
		}
		rec.ImageID = id
		result[i] = rec.WithDefaults()
	}
	return outputJSON(result)
}
