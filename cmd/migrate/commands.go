package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"tradesim/internal/config"
	"tradesim/internal/db"

	"github.com/google/subcommands"
	"github.com/jmoiron/sqlx"
)

type upCmd struct {
	dir string
}

func (*upCmd) Name() string     { return "up" }
func (*upCmd) Synopsis() string { return "apply pending migrations in filename order" }
func (*upCmd) Usage() string {
	return `migrate up [-dir <path>]

  Applies every migrations/*.sql file not yet recorded in schema_migrations.
  Each file runs in its own transaction.
`
}

func (c *upCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dir, "dir", "migrations", "Directory holding the .sql migration files.")
}

func (c *upCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	database, err := connect()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer database.Close()

	applied, err := migrateUp(ctx, database, c.dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	for _, name := range applied {
		fmt.Printf("applied %s\n", name)
	}
	if len(applied) == 0 {
		fmt.Println("nothing to apply")
	}
	return subcommands.ExitSuccess
}

type statusCmd struct {
	dir string
}

func (*statusCmd) Name() string     { return "status" }
func (*statusCmd) Synopsis() string { return "list migrations and whether each has been applied" }
func (*statusCmd) Usage() string {
	return `migrate status [-dir <path>]
`
}

func (c *statusCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.dir, "dir", "migrations", "Directory holding the .sql migration files.")
}

func (c *statusCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	database, err := connect()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	defer database.Close()

	states, err := migrationStatus(ctx, database, c.dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return subcommands.ExitFailure
	}
	for _, s := range states {
		mark := "pending"
		if s.Applied {
			mark = "applied"
		}
		fmt.Printf("%-8s %s\n", mark, s.Name)
	}
	return subcommands.ExitSuccess
}

func connect() (*sqlx.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	config.NewLogger(cfg)
	database, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	slog.Debug("connected", "env", cfg.AppEnv)
	return database, nil
}
