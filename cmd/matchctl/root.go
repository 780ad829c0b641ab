package main

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/david/recovery-match/internal/config"
	"github.com/david/recovery-match/internal/db"
	"github.com/david/recovery-match/internal/logger"
	"github.com/david/recovery-match/internal/matching"
)

var (
	// Used for flags.
	cfgFile string
	v       = viper.New()

	rootCmd = &cobra.Command{
		Use:          "matchctl",
		Short:        "matchctl manages funding opportunities and survivor matches",
		SilenceUsage: true,
	}
)

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is recovery-match.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	if err := v.BindPFlag("log.debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		log.Fatalf("binding debug flag: %v", err)
	}
	if err := v.BindPFlag("log.json", rootCmd.PersistentFlags().Lookup("json")); err != nil {
		log.Fatalf("binding json flag: %v", err)
	}
}

// env is what every subcommand needs: config, a logger and a database.
type env struct {
	cfg    *config.Config
	logger *zap.Logger
	pool   *pgxpool.Pool
	store  *db.Store
}

func setup(ctx context.Context) (*env, error) {
	_ = godotenv.Load()

	cfg, err := config.Load(v, cfgFile)
	if err != nil {
		return nil, err
	}
	logger, err := logger.New(cfg.Log.JSON, cfg.Log.Debug)
	if err != nil {
		return nil, fmt.Errorf("creating a logger: %w", err)
	}

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := db.ApplyMigrations(ctx, pool, logger); err != nil {
		pool.Close()
		return nil, err
	}

	return &env{cfg: cfg, logger: logger, pool: pool, store: db.NewStore(pool)}, nil
}

func (e *env) close() {
	e.pool.Close()
	_ = e.logger.Sync()
}

func (e *env) matches() *matching.Service {
	return matching.NewService(e.store, e.store, nil, e.logger)
}
