package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gorm.io/gorm"

	"github.com/casapps/landregistry/src/internal/config"
	"github.com/casapps/landregistry/src/internal/database"
	"github.com/casapps/landregistry/src/internal/server"
	"github.com/casapps/landregistry/src/pkg/utils"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the API server",
		RunE:  runServe,
	}
	cmd.Flags().String("host", "", "address to bind (overrides server.host)")
	cmd.Flags().Int("port", 0, "port to bind (overrides server.port)")
	cmd.Flags().Bool("seed-demo", false, "create the demo accounts and sample lands before starting")
	return cmd
}

// loadConfig reads the configuration and applies command-line overrides
func loadConfig(cmd *cobra.Command) (*viper.Viper, error) {
	file, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFile(file)
	if err != nil {
		return nil, err
	}

	if f := cmd.Flags().Lookup("host"); f != nil && f.Changed {
		_ = cfg.BindPFlag("server.host", f)
	}
	if f := cmd.Flags().Lookup("port"); f != nil && f.Changed {
		_ = cfg.BindPFlag("server.port", f)
	}

	if err := config.ValidateConfig(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// openDatabase connects and brings the schema up to date
func openDatabase(cfg *viper.Viper) (*gorm.DB, error) {
	db, err := database.Initialize(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.MigrateDB(db); err != nil {
		closeDatabase(db)
		return nil, err
	}
	return db, nil
}

func closeDatabase(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		sqlDB.Close()
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := utils.NewLogger()
	slog.SetDefault(logger)

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	if seed, _ := cmd.Flags().GetBool("seed-demo"); seed {
		if err := database.SeedDemoData(db, cfg); err != nil {
			return fmt.Errorf("seed demo data: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	srv, err := server.New(ctx, cfg, db, server.Options{Logger: logger, Version: Version})
	if err != nil {
		return err
	}

	address := fmt.Sprintf("%s:%d", cfg.GetString("server.host"), cfg.GetInt("server.port"))
	logger.Info("landregistry starting", "version", Version, "address", address, "ledger", cfg.GetString("ledger.type"))

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(address)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newMigrateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			closeDatabase(db)
			fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
			return nil
		},
	})

	down := &cobra.Command{
		Use:   "down",
		Short: "Roll back migrations (PostgreSQL only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			steps, _ := cmd.Flags().GetInt("steps")
			return withMigrations(cmd, func(mm *database.MigrationManager) error {
				return mm.Down(steps)
			})
		},
	}
	down.Flags().Int("steps", 1, "number of migrations to roll back")
	cmd.AddCommand(down)

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show the applied migration version (PostgreSQL only)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withMigrations(cmd, func(mm *database.MigrationManager) error {
				version, dirty, err := mm.Version()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty: %t)\n", version, dirty)
				return nil
			})
		},
	})
	return cmd
}

func withMigrations(cmd *cobra.Command, fn func(*database.MigrationManager) error) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	db, err := database.Initialize(cfg)
	if err != nil {
		return err
	}
	defer closeDatabase(db)

	mm, err := database.NewMigrationManager(db)
	if err != nil {
		return err
	}
	return fn(mm)
}

func newSeedCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Create the demo accounts and sample lands",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer closeDatabase(db)

			if err := database.SeedDemoData(db, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "demo accounts ready: %s, %s\n",
				cfg.GetString("demo.user.username"), cfg.GetString("demo.admin.username"))
			return nil
		},
	}
}
