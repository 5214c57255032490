// Package main is the entry point for the Pergamon admin CLI.
// This tool provides administrative commands for bootstrapping accounts
// and running maintenance tasks against the circulation database.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/pergamon-io/pergamon/internal/config"
	"github.com/pergamon-io/pergamon/internal/domain"
	"github.com/pergamon-io/pergamon/internal/repository"
	"github.com/pergamon-io/pergamon/internal/repository/postgres"
	"github.com/pergamon-io/pergamon/internal/repository/sqlite"
	"github.com/pergamon-io/pergamon/internal/service"
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
		fmt.Printf("Pergamon Admin CLI\n")
		fmt.Printf("Version: %s\n", Version)
		fmt.Printf("Build Time: %s\n", BuildTime)
		fmt.Printf("Git Commit: %s\n", GitCommit)

	case "create-librarian":
		err = runCreateLibrarian(args)

	case "sweep":
		err = runSweep(args)

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

func runCreateLibrarian(args []string) error {
	fs := flag.NewFlagSet("create-librarian", flag.ExitOnError)
	var (
		configPath = fs.String("config", "", "path to configuration file")
		name       = fs.String("name", "", "librarian display name")
		email      = fs.String("email", "", "librarian email address")
		password   = fs.String("password", "", "initial password")
		phone      = fs.String("phone", "", "phone number (optional)")
	)
	fs.Parse(args)

	if *name == "" || *email == "" || *password == "" {
		return fmt.Errorf("create-librarian requires --name, --email, and --password")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repos, db, err := openDatabase(ctx, *configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	users := service.NewUserService(repos.User, zerolog.Nop())
	out, err := users.CreateUser(ctx, service.CreateUserInput{
		Name:     *name,
		Email:    *email,
		Password: *password,
		Phone:    *phone,
		Role:     domain.RoleLibrarian,
	})
	if err != nil {
		return fmt.Errorf("failed to create librarian: %w", err)
	}

	fmt.Printf("Created librarian %q (id %d, email %s)\n", out.User.Name, out.User.ID, out.User.Email)
	return nil
}

func runSweep(args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	fs.Parse(args)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	repos, db, err := openDatabase(ctx, *configPath)
	if err != nil {
		return err
	}
	defer db.Close()

	// One-shot expiry pass; the repository call is conditional on the
	// ACTIVE status, so racing a running server instance is harmless.
	expired, err := repos.Reservation.ExpireBefore(ctx, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sweep failed: %w", err)
	}

	fmt.Printf("Expired %d reservation(s)\n", expired)
	return nil
}

func openDatabase(ctx context.Context, configPath string) (*repository.Repositories, repository.DatabaseHealth, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	logger := zerolog.Nop()

	switch cfg.Database.Driver {
	case "postgres":
		db, err := postgres.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to postgres: %w", err)
		}
		return postgres.NewRepositories(db), db, nil

	case "sqlite":
		db, err := sqlite.NewDB(ctx, sqlite.DefaultConfig(cfg.Database.Path), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to open sqlite: %w", err)
		}
		return sqlite.NewRepositories(db), db, nil

	default:
		return nil, nil, fmt.Errorf("unsupported database driver: %q", cfg.Database.Driver)
	}
}

func printUsage() {
	fmt.Println(`Pergamon Admin CLI

Usage:
  pergamon-admin <command> [arguments]

Commands:
  create-librarian   Create a librarian account
  sweep              Expire lapsed reservations once and exit
  version            Print version information
  help               Show this help message

Examples:
  pergamon-admin create-librarian --email head@library.example --name "Head Librarian" --password <secret>
  pergamon-admin sweep --config /etc/pergamon/config.yaml

Use "pergamon-admin <command> --help" for more information about a command.`)
}
