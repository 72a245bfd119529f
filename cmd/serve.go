package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kozaktomas/sketch-match/internal/config"
	"github.com/kozaktomas/sketch-match/internal/database"
	"github.com/kozaktomas/sketch-match/internal/database/mariadb"
	"github.com/kozaktomas/sketch-match/internal/database/postgres"
	"github.com/kozaktomas/sketch-match/internal/database/redis"
	"github.com/kozaktomas/sketch-match/internal/faceapi"
	"github.com/kozaktomas/sketch-match/internal/imagesource"
	"github.com/kozaktomas/sketch-match/internal/logging"
	"github.com/kozaktomas/sketch-match/internal/maintenance"
	"github.com/kozaktomas/sketch-match/internal/retrieval"
	"github.com/kozaktomas/sketch-match/internal/web"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Start the Sketch Match API server.
The server exposes account, image, retrieval and history routes to the
front end and proxies the similarity and generation services.`,
		RunE: runServe,
	}

	cmd.Flags().Int("port", 8080, "Port to listen on (env WEB_PORT)")
	cmd.Flags().String("host", "0.0.0.0", "Host to bind to (env WEB_HOST)")
	cmd.Flags().String("session-secret", "", "Secret for signing session cookies (env WEB_SESSION_SECRET)")
	cmd.Flags().StringSlice("allowed-origins", nil, "Extra CORS origins (env WEB_ALLOWED_ORIGINS)")

	return cmd
}

// resolveServeOptions resolves listener settings from flags and environment variables.
func resolveServeOptions(cmd *cobra.Command) web.Options {
	return web.Options{
		Port:           intSetting(cmd, "port", "WEB_PORT"),
		Host:           stringSetting(cmd, "host", "WEB_HOST"),
		SessionSecret:  stringSetting(cmd, "session-secret", "WEB_SESSION_SECRET"),
		AllowedOrigins: listSetting(cmd, "allowed-origins", "WEB_ALLOWED_ORIGINS"),
	}
}

// buildPipeline wires the aggregation pipeline with a shared outbound call budget.
func buildPipeline(cfg *config.Config, similarity retrieval.SimilaritySearcher, details retrieval.DetailFetcher) *retrieval.Pipeline {
	perSecond := cfg.FaceAPI.MaxCallsPerSecond
	limiter := rate.NewLimiter(rate.Limit(perSecond), perSecond)

	return retrieval.NewPipeline(
		imagesource.NewNormalizer(cfg.Image.FetchTimeout),
		similarity,
		details,
		retrieval.NewRandomFallback(cfg.Fallback.Assets, uint64(time.Now().UnixNano())),
		retrieval.WithLimiter(limiter),
	)
}

// initStores connects every configured store and returns a cleanup func.
func initStores(ctx context.Context, cfg *config.Config, logger *zap.Logger) (database.SessionRepository, func(), error) {
	if cfg.Database.URL == "" {
		return nil, nil, errors.New("DATABASE_URL environment variable is required")
	}

	fmt.Printf("Connecting to PostgreSQL database...\n")
	applied, err := postgres.Initialize(ctx, &cfg.Database)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize PostgreSQL: %w", err)
	}
	for _, m := range applied {
		logger.Info("applied migration", zap.String("file", m))
	}
	closers := []func(){func() { postgres.GetGlobalPool().Close() }}
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	if cfg.Details.DatabaseURL != "" {
		pool, err := mariadb.Initialize(cfg.Details.DatabaseURL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to initialize MariaDB details: %w", err)
		}
		closers = append(closers, func() { pool.Close() })
		fmt.Printf("Detail lookups served from MariaDB\n")
	}

	if cfg.Redis.Addr != "" {
		store, err := redis.Initialize(ctx, cfg.Redis.Addr, cfg.Redis.Password)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("failed to initialize Redis sessions: %w", err)
		}
		closers = append(closers, store.Close)
		fmt.Printf("Session persistence enabled (Redis)\n")
	} else {
		fmt.Printf("Session persistence enabled (PostgreSQL)\n")
	}

	sessionRepo, err := database.GetSessionRepository(ctx)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return sessionRepo, cleanup, nil
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg := config.Load()
	ctx := cmd.Context()

	logger, err := logging.New(cfg.Logging.Env, cfg.Logging.Level)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	ctx = logging.WithLogger(ctx, logger)

	sessionRepo, cleanup, err := initStores(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	client := faceapi.NewClient(cfg.FaceAPI.SimilarityURL, cfg.FaceAPI.GeneratorURL, cfg.FaceAPI.Timeout)
	pipeline := buildPipeline(cfg, client, retrieval.StoreDetails{})

	scheduler := maintenance.NewScheduler(logger)
	if err := scheduler.Start(cfg.Maintenance.Schedule); err != nil {
		return err
	}
	defer scheduler.Stop()

	opts := resolveServeOptions(cmd)
	server := web.NewServer(cfg, opts, web.Dependencies{
		Similarity:  client,
		Generator:   client,
		Runner:      pipeline,
		SessionRepo: sessionRepo,
		Logger:      logger,
	})

	// ctx is cancelled on interrupt
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()
		fmt.Println("\nShutting down...")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("error during shutdown", zap.Error(err))
		}
	}()

	fmt.Printf("Starting Sketch Match API on http://%s:%d\n", opts.Host, opts.Port)
	fmt.Println("Press Ctrl+C to stop")

	if err := server.Start(); err != nil {
		return fmt.Errorf("starting server: %w", err)
	}
	<-shutdownDone
	return nil
}
