package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// NewRootCmd builds the sketch-match command tree.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sketch-match",
		Short: "Match forensic sketches against a photo catalog",
		Long: `Sketch Match serves the retrieval backend for forensic sketches.
It queries the face similarity service with a digital sketch and its
generated photo, joins the matches with case details and ranks them.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			// .env file is optional, don't fail if not found
			_ = godotenv.Load()
		},
	}

	cmd.AddCommand(
		newServeCmd(),
		newMigrateCmd(),
		newDetailsCmd(),
		newCatalogCmd(),
		newMatchCmd(),
		newVersionCmd(),
	)

	return cmd
}

// outputJSON writes data to stdout as indented JSON.
func outputJSON(data any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encoding JSON output: %w", err)
	}
	return nil
}
