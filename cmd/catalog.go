package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/kozaktomas/sketch-match/internal/config"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/textnorm"
)

// catalogEntry is one image of the similarity service's dataset.
type catalogEntry struct {
	Filename string `json:"filename"`
	URL      string `json:"url"`
}

func newCatalogCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Sync the image catalog into detail records",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "import <file.json>",
		Short: "Set detail urls from a [{filename, url}] catalog",
		Long: `Set detail urls from a JSON catalog of dataset images.

Each entry's filename stem is the detail id. Records missing from the
store are created with only the url set.`,
		Args: cobra.ExactArgs(1),
		RunE: runCatalogImport,
	})

	return cmd
}

// parseCatalog decodes the catalog, skipping entries without a usable id or url.
func parseCatalog(data []byte) (entries []catalogEntry, skipped int, err error) {
	var raw []catalogEntry
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, 0, fmt.Errorf("parse catalog: %w", err)
	}
	for _, e := range raw {
		id := textnorm.ImageID(e.Filename)
		if id == "" || e.URL == "" {
			skipped++
			continue
		}
		entries = append(entries, catalogEntry{Filename: id, URL: e.URL})
	}
	return entries, skipped, nil
}

func runCatalogImport(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read catalog: %w", err)
	}
	entries, skipped, err := parseCatalog(data)
	if err != nil {
		return err
	}
	if skipped > 0 {
		fmt.Printf("Skipping %d entries without filename or url\n", skipped)
	}
	if len(entries) == 0 {
		fmt.Println("No catalog entries to import")
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

	bar := progressbar.NewOptions(len(entries),
		progressbar.OptionSetDescription("Syncing catalog"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("images"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
	)

	var updated, failed int
	for _, e := range entries {
		if err := writer.SetDetailURL(ctx, e.Filename, e.URL); err != nil {
			failed++
			fmt.Fprintf(os.Stderr, "\nfailed to set url for %s: %v\n", e.Filename, err)
		} else {
			updated++
		}
		bar.Add(1)
	}
	bar.Finish()

	fmt.Printf("\nUpdated %d records (%d failed)\n", updated, failed)
	if failed > 0 {
		return fmt.Errorf("%d catalog entries failed", failed)
	}
	return nil
}
