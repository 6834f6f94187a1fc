package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/ariefcatur/go-storefront/internal/config"
	"github.com/ariefcatur/go-storefront/internal/postgres"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "orders-api",
		Usage: "catalog and order HTTP API",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API",
				Action: func(c *cli.Context) error { return serve(c.Context) },
			},
			{
				Name:   "migrate",
				Usage:  "apply database migrations",
				Action: func(c *cli.Context) error { return migrate() },
			},
			{
				Name:   "seed",
				Usage:  "insert the default catalog when the catalog is empty",
				Action: func(c *cli.Context) error { return seed(c.Context) },
			},
		},
		DefaultCommand: "serve",
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "orders-api:", err)
		os.Exit(1)
	}
}

func migrate() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := postgres.Migrate(cfg.PostgresDSN); err != nil {
		return err
	}
	fmt.Println("migrations applied")
	return nil
}

func seed(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := postgres.Connect(ctx, cfg.PostgresDSN, 2)
	if err != nil {
		return err
	}
	defer db.Close()

	n, err := postgres.Seed(ctx, &postgres.Store{DB: db, LockTimeout: cfg.LockTimeout})
	if err != nil {
		return err
	}
	fmt.Printf("seeded %d items\n", n)
	return nil
}
