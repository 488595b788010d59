package main

import (
	"context"
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/db"
	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/migrate"
)

const serviceName = "migrate"

type options struct {
	dir     string
	name    string
	version string
}

// command is one -cmd value. Offline commands never open a database.
type command struct {
	offline func(opts options) error
	online  func(ctx context.Context, m *migrate.Migrator, opts options) error
}

var commands = map[string]command{
	"create":   {offline: create},
	"validate": {offline: validate},
	"up": {online: func(ctx context.Context, m *migrate.Migrator, _ options) error {
		applied, err := m.Up(ctx)
		fmt.Printf("applied %d migration(s)\n", len(applied))
		return err
	}},
	"down": {online: func(ctx context.Context, m *migrate.Migrator, _ options) error {
		version, err := m.Down(ctx)
		if err == nil {
			fmt.Println("rolled back", version)
		}
		return err
	}},
	"status": {online: func(ctx context.Context, m *migrate.Migrator, _ options) error {
		return m.WriteStatus(ctx, os.Stdout)
	}},
	"version": {online: func(ctx context.Context, m *migrate.Migrator, opts options) error {
		target, err := migrate.ParseVersion(opts.version)
		if err != nil {
			return err
		}
		return m.To(ctx, target)
	}},
}

func main() {
	_ = godotenv.Load()

	name := flag.String("cmd", "up", "migration command: up|down|status|version|create|validate")
	var opts options
	flag.StringVar(&opts.dir, "dir", migrate.DefaultDir, "goose migrations directory")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version (YYYYMMDDHHMMSS) for -cmd=version")
	flag.Parse()

	if err := run(*name, opts); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s: %v\n", *name, err)
		os.Exit(1)
	}
}

func run(name string, opts options) error {
	cmd, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown -cmd value %q", name)
	}
	if cmd.offline != nil {
		return cmd.offline(opts)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	if strings.EqualFold(cfg.DB.Driver, db.DriverSQLite) {
		return errors.New("goose migrations target postgres; use CODESHOP_AUTO_MIGRATE for sqlite")
	}

	logg := logger.New(logger.Options{
		ServiceName: serviceName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env, "cmd": name, "dir": opts.dir})

	client, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer client.Close()

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("sql database: %w", err)
	}
	return runOnline(ctx, logg, sqlDB, cmd, opts)
}

func runOnline(ctx context.Context, logg *logger.Logger, sqlDB *sql.DB, cmd command, opts options) error {
	m, err := migrate.Open(sqlDB, opts.dir)
	if err != nil {
		return err
	}
	if err := cmd.online(ctx, m, opts); err != nil {
		logg.Error(ctx, "migrate.failed", err)
		return err
	}
	logg.Info(ctx, "migrate.done")
	return nil
}

func create(opts options) error {
	if opts.name == "" {
		return errors.New("missing -name")
	}
	path, err := migrate.CreateSQLMigration(opts.dir, opts.name)
	if err != nil {
		return err
	}
	fmt.Println("created migration:", path)
	return nil
}

func validate(opts options) error {
	var err error
	if opts.dir == migrate.DefaultDir {
		err = migrate.ValidateFS(migrate.Embedded(), "migrations")
	} else {
		err = migrate.ValidateDir(opts.dir)
	}
	if err != nil {
		return err
	}
	fmt.Println("migration validation passed")
	return nil
}
