package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/spf13/cobra"

	"catalog-service/internal/config"
	"catalog-service/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status|version]",
	Short:     "Run PostgreSQL schema migrations",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down", "status", "version"},
	RunE: func(cmd *cobra.Command, args []string) error {
		command := "up"
		if len(args) == 1 {
			command = args[0]
		}

		cfg, log, err := bootstrap()
		if err != nil {
			return err
		}
		if cfg.StoreDriver != config.DriverPostgres {
			return fmt.Errorf("migrations apply to the %q driver only, STORE_DRIVER is %q", config.DriverPostgres, cfg.StoreDriver)
		}

		db, err := openPostgres(cmd.Context(), cfg.Postgres)
		if err != nil {
			return err
		}
		defer db.Close()

		return store.Migrate(db, command, log)
	},
}

func openPostgres(ctx context.Context, pc config.PostgresConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", pc.DSN())
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
