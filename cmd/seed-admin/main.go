package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/codeshop/codeshop-backend/internal/auth"
	"github.com/codeshop/codeshop-backend/pkg/config"
	"github.com/codeshop/codeshop-backend/pkg/db"
	"github.com/codeshop/codeshop-backend/pkg/logger"
	"github.com/codeshop/codeshop-backend/pkg/migrate"
	"github.com/codeshop/codeshop-backend/pkg/security"
)

const generatedPasswordLen = 20

// seed-admin creates the first admin account, or resets its password.
// The password is read from CODESHOP_SEED_ADMIN_PASSWORD when -password is empty,
// and -generate prints a fresh random one instead.
func main() {
	logg := logger.New(logger.Options{ServiceName: "seed-admin"})

	_ = godotenv.Load()

	email := flag.String("email", "", "admin e-mail address")
	name := flag.String("name", "", "display name (defaults to the e-mail local part)")
	password := flag.String("password", "", "admin password")
	generate := flag.Bool("generate", false, "generate a random password and print it")
	flag.Parse()

	if strings.TrimSpace(*password) == "" {
		*password = os.Getenv("CODESHOP_SEED_ADMIN_PASSWORD")
	}
	if *password == "" && *generate {
		generated, err := security.GenerateTempPassword(generatedPasswordLen)
		if err != nil {
			fmt.Fprintln(os.Stderr, "generate password:", err)
			os.Exit(1)
		}
		*password = generated
	}
	if strings.TrimSpace(*email) == "" || *password == "" {
		fmt.Fprintln(os.Stderr, "usage: seed-admin -email admin@example.com [-name Admin] [-password ... | -generate]")
		os.Exit(1)
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "seed-admin",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithField(context.Background(), "env", cfg.App.Env)

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer dbClient.Close()

	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	user, created, err := auth.SeedAdmin(ctx, dbClient, cfg.Password, auth.SeedAdminRequest{
		Email:       *email,
		DisplayName: *name,
		Password:    *password,
	})
	if err != nil {
		logg.Error(ctx, "seed admin failed", err)
		os.Exit(1)
	}

	ctx = logg.WithUserID(ctx, user.ID.String())
	if created {
		logg.Info(ctx, "admin created")
		fmt.Println("created admin:", user.Email)
		printGenerated(*generate, *password)
		return
	}
	logg.Info(ctx, "admin password reset")
	fmt.Println("reset admin:", user.Email)
	printGenerated(*generate, *password)
}

func printGenerated(generated bool, password string) {
	if generated {
		fmt.Println("password:", password)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
