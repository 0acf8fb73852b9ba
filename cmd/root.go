package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"dandi-api/config"
	"dandi-api/logger"
)

var v = viper.New()

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "dandi-api",
		Short:         "DANDI archive API server and maintenance commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	flags := cmd.PersistentFlags()
	flags.String("app-mode", "", "development, production or test")
	flags.String("db-driver", "", "postgres or sqlite")
	flags.String("db-dsn", "", "database DSN, overrides the discrete DB_* settings")
	flags.String("redis-url", "", "redis URL for the publish lock; empty uses an in-process lock")
	for _, name := range []string{"app-mode", "db-driver", "db-dsn", "redis-url"} {
		_ = v.BindPFlag(strings.ReplaceAll(name, "-", "_"), flags.Lookup(name))
	}

	cmd.AddCommand(newServeCmd(), newCollectGarbageCmd(), newValidateCmd())
	return cmd
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// app is what every command needs before doing work.
type app struct {
	cfg *config.Config
	log *logger.Logger
	db  *gorm.DB
}

func bootstrap() (*app, error) {
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	log, err := logger.New(cfg.Mode)
	if err != nil {
		return nil, err
	}
	db, err := config.InitDB(cfg.Database, log)
	if err != nil {
		log.Sync()
		return nil, err
	}
	return &app{cfg: cfg, log: log, db: db}, nil
}

func (r *app) close() {
	if sqlDB, err := r.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	r.log.Sync()
}
