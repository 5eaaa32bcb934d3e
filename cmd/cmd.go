package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"soul-card-backend/internal/config"
	"soul-card-backend/internal/handlers"
	"soul-card-backend/internal/middleware"
	"soul-card-backend/internal/repository"
	"soul-card-backend/internal/services"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	configPath     string
	migrateOnStart bool
)

var rootCmd = &cobra.Command{
	Use:           "soul-card",
	Short:         "Soul card backend: shareable profile cards and applications",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP and WebSocket server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return serve(cfg)
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		db, err := connect(ctx, cfg)
		if err != nil {
			return err
		}
		defer db.Close()

		if err := repository.Migrate(ctx, db); err != nil {
			return err
		}
		log.Info().Msg("Migrations applied")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config.yaml", "path to the YAML config file")
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply database migrations before serving")
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		log.Fatal().Err(err).Msg("Command failed")
	}
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	setupLogger(cfg.Log.Level)
	return cfg, nil
}

func connect(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	db, err := pgxpool.New(ctx, cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := db.Ping(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	log.Info().Msg("Database connection established")
	return db, nil
}

func serve(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connect(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if migrateOnStart {
		if err := repository.Migrate(ctx, db); err != nil {
			return err
		}
	}

	// Initialize repositories
	store := repository.NewStore(db)
	repos := services.NewRepos(store)

	// Optional integrations
	var avatars services.AvatarStorage
	if cfg.AWS.S3Bucket != "" {
		s3Storage, err := services.NewS3AvatarStorage(ctx, cfg.AWS)
		if err != nil {
			return fmt.Errorf("failed to create avatar storage: %w", err)
		}
		avatars = s3Storage
	} else {
		log.Warn().Msg("aws.s3_bucket is not set, avatar uploads are disabled")
	}

	wsHub := services.NewWSHub()
	notifier := services.MultiNotifier{wsHub}
	if cfg.APNS.KeyPath != "" {
		apns, err := services.NewAPNSNotifier(cfg.APNS, repos.Users)
		if err != nil {
			return fmt.Errorf("failed to create push notifier: %w", err)
		}
		notifier = append(notifier, apns)
	} else {
		log.Warn().Msg("apns.key_path is not set, push notifications are disabled")
	}

	// Initialize services
	userService := services.NewUserService(repos, services.StoreTx(store), cfg.JWT.Secret, cfg.JWT.TokenTTL())
	profileService := services.NewProfileService(repos.Profiles, avatars)
	applicationService := services.NewApplicationService(repos.Profiles, repos.Applications, notifier)

	submitLimiter := middleware.NewIPRateLimiter(cfg.RateLimit.SubmitPerMinute, cfg.RateLimit.Burst)
	go submitLimiter.Run(ctx, 10*time.Minute)

	router := handlers.NewRouter(handlers.Deps{
		Users:         userService,
		Profiles:      profileService,
		Applications:  applicationService,
		Hub:           wsHub,
		DB:            db,
		SubmitLimiter: submitLimiter,
	})

	// Create HTTP server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("host", cfg.Server.Host).
			Int("port", cfg.Server.Port).
			Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	select {
	case err := <-serverErr:
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Hijacked websocket connections are not closed by Shutdown; their
	// read loops end when the process exits.
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
	return nil
}

// setupLogger configures zerolog logger
func setupLogger(level string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
