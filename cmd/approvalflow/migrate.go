package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/BaSui01/approvalflow/config"
	"github.com/BaSui01/approvalflow/internal/migration"
)

// =============================================================================
// Database Migration Commands
// =============================================================================

// migrateOptions holds the flags shared by every migrate subcommand.
type migrateOptions struct {
	configPath string
	dbType     string
	dbURL      string
	verbose    bool
}

// parseMigrateArgs splits "<subcommand> [flags] [version]" into its parts.
func parseMigrateArgs(args []string, stderr io.Writer) (string, migrateOptions, []string, error) {
	var opts migrateOptions
	if len(args) < 1 {
		return "", opts, nil, errUsage
	}
	subcommand := args[0]

	fs := flag.NewFlagSet("migrate "+subcommand, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	fs.StringVar(&opts.dbType, "db-type", "", "Database type (postgres, mysql, sqlite)")
	fs.StringVar(&opts.dbURL, "db-url", "", "Database connection URL")
	fs.BoolVar(&opts.verbose, "verbose", false, "Log migration steps")
	if err := fs.Parse(args[1:]); err != nil {
		return "", opts, nil, err
	}
	return subcommand, opts, fs.Args(), nil
}

// runMigrate handles the migrate command and returns the process exit code.
func runMigrate(args []string, stdout, stderr io.Writer) int {
	subcommand, opts, rest, err := parseMigrateArgs(args, stderr)
	if err != nil {
		printMigrateUsage(stderr)
		return 1
	}
	if subcommand == "help" || subcommand == "-h" || subcommand == "--help" {
		printMigrateUsage(stdout)
		return 0
	}

	logger := zap.NewNop()
	if opts.verbose {
		logger, _ = initLogger(config.LogConfig{Level: "debug", Format: "console", OutputPaths: []string{"stderr"}})
	}

	migrator, err := createMigrator(opts, logger)
	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	defer migrator.Close()

	cli := migration.NewCLI(migrator)
	cli.SetOutput(stdout)

	if err := cli.Execute(context.Background(), subcommand, rest); err != nil {
		if errors.Is(err, migration.ErrUnknownCommand) {
			fmt.Fprintf(stderr, "Unknown migrate subcommand: %s\n", subcommand)
			printMigrateUsage(stderr)
			return 1
		}
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

// createMigrator creates a migrator from flags, falling back to the config
// file and environment.
func createMigrator(opts migrateOptions, logger *zap.Logger) (*migration.DefaultMigrator, error) {
	if opts.dbType != "" && opts.dbURL != "" {
		return migration.NewMigratorFromURL(opts.dbType, opts.dbURL, logger)
	}

	loader := config.NewLoader()
	if opts.configPath != "" {
		loader = loader.WithConfigPath(opts.configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if opts.dbType != "" {
		cfg.Database.Driver = opts.dbType
	}

	return migration.NewMigratorFromConfig(cfg, logger)
}

// printMigrateUsage prints the usage information for migrate command
func printMigrateUsage(w io.Writer) {
	fmt.Fprintln(w, `Database Migration Commands

Usage:
  approvalflow migrate <subcommand> [options] [version]

Subcommands:
  up          Apply all pending migrations
  down        Rollback the last migration
  steps <n>   Apply (n>0) or rollback (n<0) n migrations
  status      Show migration status
  version     Show current migration version
  info        Show database and migration details
  goto <v>    Migrate to a specific version
  force <v>   Force set migration version (use with caution)
  reset       Rollback all migrations
  help        Show this help message

Options:
  --config <path>     Path to configuration file (YAML)
  --db-type <type>    Database type: postgres, mysql, sqlite (default: from config)
  --db-url <url>      Database connection URL (default: from config)
  --verbose           Log migration steps to stderr

Examples:
  approvalflow migrate up
  approvalflow migrate up --config /etc/approvalflow/config.yaml
  approvalflow migrate status --db-type sqlite --db-url "file:approvals.db"
  approvalflow migrate goto 1
  approvalflow migrate force 0
  approvalflow migrate reset`)
}
