package cli

import (
	"database/sql"
	"fmt"

	_ "github.com/lib/pq"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/todmy/embedscope/internal/api"
	"github.com/todmy/embedscope/internal/auth"
	"github.com/todmy/embedscope/internal/config"
	"github.com/todmy/embedscope/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	setupLogging(cmd, cfg.Log.LogLevel())

	opts, cleanup, err := serverOptions(cmd, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	server, err := api.NewServer(opts)
	if err != nil {
		return err
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info().
		Str("addr", addr).
		Bool("auth", opts.Auth != nil).
		Bool("storage", opts.Datasets != nil).
		Msg("starting embedscope server")
	return server.Run(addr)
}

// serverOptions builds API options from cfg, connecting to the database when configured
func serverOptions(cmd *cobra.Command, cfg config.Config) (api.Options, func(), error) {
	cleanup := func() {}

	session, err := cfg.Projection.Explorer()
	if err != nil {
		return api.Options{}, cleanup, err
	}

	opts := api.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		Session:        session,
		MaxSessions:    cfg.Sessions.Max,
		MaxBodyBytes:   cfg.Server.MaxBodyBytes,
	}

	if cfg.Auth.Enabled() {
		authConfig, err := cfg.Auth.Service()
		if err != nil {
			return api.Options{}, cleanup, err
		}
		opts.Auth = auth.NewJWTService(authConfig)
	}

	if cfg.Database.URL != "" {
		db, err := sql.Open("postgres", cfg.Database.URL)
		if err != nil {
			return api.Options{}, cleanup, fmt.Errorf("failed to connect to database: %w", err)
		}
		if err := db.PingContext(cmd.Context()); err != nil {
			db.Close()
			return api.Options{}, cleanup, fmt.Errorf("failed to ping database: %w", err)
		}

		repo := storage.NewPostgresDatasetRepository(db)
		if err := repo.Migrate(cmd.Context()); err != nil {
			db.Close()
			return api.Options{}, cleanup, fmt.Errorf("failed to migrate database: %w", err)
		}
		opts.Datasets = repo
		cleanup = func() { db.Close() }
	}

	return opts, cleanup, nil
}
