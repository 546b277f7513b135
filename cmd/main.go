package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"catalog-service/internal/config"
	"catalog-service/internal/logger"
)

const appName = "catalog-service"

var rootCmd = &cobra.Command{
	Use:   appName,
	Short: "Category, product and review catalog API",
	Long: "catalog-service serves a REST API over categories, products and reviews,\n" +
		"keeping slugs derived and removing dependents when a parent is deleted.",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd, migrateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// bootstrap loads .env, the configuration and the logger shared by every command.
func bootstrap() (*config.Config, *slog.Logger, error) {
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load configuration: %w", err)
	}
	log := logger.New(cfg.LogLevel).With("app", appName)
	if envErr != nil {
		log.Debug(".env file not loaded, relying on the process environment", "error", envErr)
	}
	log.Info("configuration loaded", "app_env", cfg.AppEnv, "store_driver", cfg.StoreDriver)
	return cfg, log, nil
}
