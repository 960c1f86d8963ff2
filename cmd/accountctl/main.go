package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/lorrc/accounts"
	"github.com/lorrc/accounts/internal/adapters/primary/cli"
	"github.com/lorrc/accounts/internal/config"
	"github.com/lorrc/accounts/internal/infrastructure/logging"
)

func main() {
	cfg, err := config.LoadClient()
	if err != nil {
		log.Fatalf("%v", err)
	}

	// Keep the prompt readable unless asked otherwise.
	level := cfg.Logging.Level
	if os.Getenv("LOG_LEVEL") == "" {
		level = "warn"
	}
	logger := logging.NewLogger(logging.Config{
		Level:       level,
		Format:      "console",
		Output:      os.Stderr,
		ServiceName: "accountctl",
		Environment: cfg.App.Environment,
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mod, err := accounts.Setup(ctx, accounts.Config{
		DataStoreURL:    cfg.DataStore.URL,
		UsersCollection: cfg.DataStore.UsersCollection,
		AutoMigrate:     cfg.DataStore.AutoMigrate,
		IdentityBackend: cfg.Identity.Backend,
		FirebaseAPIKey:  cfg.Identity.FirebaseAPIKey,
		IdentityURL:     cfg.Identity.IdentityURL,
		TokenURL:        cfg.Identity.TokenURL,
		HTTPTimeout:     cfg.Identity.HTTPTimeout,
		Verification: accounts.VerificationConfig{
			PollInterval: cfg.Verification.PollInterval,
			MaxAttempts:  cfg.Verification.MaxAttempts,
			Timeout:      cfg.Verification.Timeout,
		},
	}, accounts.WithLogger(logger))
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer mod.Close()

	app := cli.NewApp(mod.AuthProvider(), os.Stdin, os.Stdout, logger)
	app.Run(ctx)
}
