package main

import (
	"context"

	"LinkHub/logger"
	"LinkHub/service/storage/postgres"
	"LinkHub/tools/errs"

	"github.com/spf13/cobra"
)

var migrateDown bool

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply (or with --down, revert) the postgres schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cfg.Store.PostgresDSN == "" {
			return errs.ErrArgs.WrapMsg("store.postgres_dsn is required")
		}
		db, err := postgres.Open(context.Background(), cfg.Store.PostgresDSN)
		if err != nil {
			return err
		}
		defer db.Close()

		if migrateDown {
			err = postgres.MigrateDown(db)
		} else {
			err = postgres.Migrate(db)
		}
		if err != nil {
			return err
		}
		logger.Info("[Migrate] done")
		return nil
	},
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "revert every migration")
}
