package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"nodesale/internal/config"
	"nodesale/internal/logger"
	"nodesale/internal/payment"
	"nodesale/internal/storage"
)

const programName = "nodesale"

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var envFiles []string

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(envFiles...)
	if err != nil {
		return nil, err
	}
	logger.Initialize(logger.Configuration{
		LogFile:   cfg.LogFile,
		ErrorFile: cfg.ErrorFile,
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
	})
	return cfg, nil
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the sale database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			store, err := storage.NewSqliteStorage(cfg.DatabasePath)
			if err != nil {
				return err
			}
			logger.Info("database migrated", zap.String("path", cfg.DatabasePath))
			return store.Close()
		},
	}
}

// depositCommand funds an account in the local payment ledger.
func depositCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "deposit <account> <asset> <amount>",
		Short: "Credit an account in the payment ledger",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("amount %q: %w", args[2], err)
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			defer logger.Sync()
			store, err := storage.NewSqliteStorage(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer store.Close()

			ledger := payment.NewLedger(store, logger.Named("payment"))
			if err := ledger.Deposit(cmd.Context(), args[0], args[1], amount); err != nil {
				return err
			}
			balance, err := ledger.Balance(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s holds %d %s\n", args[0], balance, args[1])
			return nil
		},
	}
}

func versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show the version and exit",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", programName, version)
		},
	}
}

func main() {
	rootCmd := &cobra.Command{
		Use:          programName,
		Short:        "Oracle-priced tiered node sale service",
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().
		StringSliceVar(&envFiles, "env", nil, "dotenv files to load before the environment (default .env)")

	rootCmd.AddCommand(serveCommand())
	rootCmd.AddCommand(migrateCommand())
	rootCmd.AddCommand(depositCommand())
	rootCmd.AddCommand(versionCommand())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
