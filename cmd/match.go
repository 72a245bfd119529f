package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/sketch-match/internal/config"
	"github.com/kozaktomas/sketch-match/internal/faceapi"
	"github.com/kozaktomas/sketch-match/internal/imagesource"
	"github.com/kozaktomas/sketch-match/internal/logging"
	"github.com/kozaktomas/sketch-match/internal/retrieval"
)

func newMatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Rank catalog matches for a sketch and its generated photo",
		Long: `Run the retrieval pipeline from the command line.

Both images accept a local file path, a URL or a data URI. Details come
from a running backend when --details-url is set, otherwise from the
configured database.`,
		Example: `  sketch-match match --digital sketch.png --actual generated.jpg
  sketch-match match --digital sketch.png --actual https://cdn.example.com/gen.jpg --details-url http://localhost:5000 --json`,
		RunE: runMatch,
	}

	cmd.Flags().String("digital", "", "Digital sketch (path, URL or data URI)")
	cmd.Flags().String("actual", "", "Actual or generated photo (path, URL or data URI)")
	cmd.Flags().String("details-url", "", "Base URL of a backend serving /api/v1/image/fetch-details")
	cmd.Flags().Bool("json", false, "Output as JSON")

	return cmd
}

// sourceArg turns a CLI argument into a source image. Existing local files are
// read; anything else is classified as a data URI or URL.
func sourceArg(arg string) (*imagesource.Source, error) {
	if arg == "" {
		return nil, nil
	}
	if info, err := os.Stat(arg); err == nil && !info.IsDir() {
		data, err := os.ReadFile(arg)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", arg, err)
		}
		return imagesource.FromBytes(filepath.Base(arg), data), nil
	}
	return imagesource.FromString(arg), nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()
	jsonOutput := mustGetBool(cmd, "json")

	digital, err := sourceArg(mustGetString(cmd, "digital"))
	if err != nil {
		return err
	}
	actual, err := sourceArg(mustGetString(cmd, "actual"))
	if err != nil {
		return err
	}

	logger, err := logging.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	ctx = logging.WithLogger(ctx, logger)

	var details retrieval.DetailFetcher
	if detailsURL := mustGetString(cmd, "details-url"); detailsURL != "" {
		details = retrieval.NewHTTPDetails(detailsURL, cfg.FaceAPI.Timeout)
	} else {
		cleanup, err := initDetailStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer cleanup()
		details = retrieval.StoreDetails{}
	}

	client := faceapi.NewClient(cfg.FaceAPI.SimilarityURL, cfg.FaceAPI.GeneratorURL, cfg.FaceAPI.Timeout)
	pipeline := buildPipeline(cfg, client, details)

	res, runErr := pipeline.Run(ctx, retrieval.Inputs{Digital: digital, Actual: actual})

	if jsonOutput {
		if err := outputJSON(res); err != nil {
			return err
		}
		return runErr
	}
	if runErr != nil {
		if errors.Is(runErr, retrieval.ErrMissingInput) {
			return fmt.Errorf("both --digital and --actual are required: %w", runErr)
		}
		return runErr
	}

	printRanking(res)
	return nil
}

func printRanking(res retrieval.AggregationResult) {
	if res.Status == retrieval.StatusNoMatches {
		fmt.Println(res.Notice)
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "#\tID\tSIMILARITY\tSOURCE\tOFFENSE\tMITTIMUS\tURL")
	for i, m := range res.Matches {
		fmt.Fprintf(w, "%d\t%s\t%.4f\t%s\t%s\t%s\t%s\n",
			i+1, m.ImageID, m.Similarity, m.Source, m.Offense, m.Mittimus, m.URL)
	}
	w.Flush()
}
