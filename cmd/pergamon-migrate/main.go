// Package main is the entry point for the Pergamon schema migration tool.
// Migrations are embedded in the binary; this tool applies them and
// reports migration status for both supported backends.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/config"
	"github.com/pergamon-io/pergamon/internal/repository/postgres"
	"github.com/pergamon-io/pergamon/internal/repository/sqlite"
)

// Version information (set at build time)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	command := os.Args[1]
	args := os.Args[2:]

	var err error
	switch command {
	case "version":
		fmt.Printf("Pergamon Migration Tool\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "up":
		err = runUp(args)

	case "status":
		err = runStatus(args)

	case "help", "-h", "--help":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runUp(args []string) error {
	fs := flag.NewFlagSet("up", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return fmt.Errorf("failed to open sqlite: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			return err
		}

	default:
		return fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}

	fmt.Println("Migrations applied")
	return nil
}

func runStatus(args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return err
	}
	logger := zerolog.Nop()

	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to postgres: %w", err)
		}
		defer db.Close()

		rows, err := db.Pool.Query(ctx,
			`SELECT version, applied_at FROM schema_migrations ORDER BY version`)
		if err != nil {
			fmt.Println("No migrations applied (schema_migrations missing)")
			return nil
		}
		defer rows.Close()

		for rows.Next() {
			var version string
			var appliedAt time.Time
			if err := rows.Scan(&version, &appliedAt); err != nil {
				return err
			}
			fmt.Printf("%-20s applied %s\n", version, appliedAt.Format(time.RFC3339))
		}
		return rows.Err()

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return fmt.Errorf("failed to open sqlite: %w", err)
		}
		defer db.Close()

		rows, err := db.QueryContext(ctx,
			`SELECT version, applied_at FROM schema_migrations ORDER BY version`)
		if err != nil {
			fmt.Println("No migrations applied (schema_migrations missing)")
			return nil
		}
		defer rows.Close()

		for rows.Next() {
			var version int
			var appliedAt string
			if err := rows.Scan(&version, &appliedAt); err != nil {
				return err
			}
			fmt.Printf("%-20d applied %s\n", version, appliedAt)
		}
		return rows.Err()

	default:
		return fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}
}

func printUsage() {
	fmt.Println(`Pergamon Migration Tool

Usage:
  pergamon-migrate <command> [arguments]

Commands:
  up          Apply all pending migrations
  status      Show applied migrations
  version     Print version information
  help        Show this help message

Configuration:
  The database connection is read from the same configuration file and
  PERGAMON_ environment variables as the server.

Examples:
  pergamon-migrate up --config /etc/pergamon/config.yaml
  pergamon-migrate status --config /etc/pergamon/config.yaml`)
}
