package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
	_ "time/tzdata"

	"github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-visit-api/internal/bootstrap"
	"github.com/noah-isme/sma-visit-api/internal/service"
	"github.com/noah-isme/sma-visit-api/pkg/config"
	"github.com/noah-isme/sma-visit-api/pkg/database"
	"github.com/noah-isme/sma-visit-api/pkg/logger"
)

func main() {
	args := os.Args
	if len(args) == 1 {
		args = append(args, "--help")
	}

	if err := rootCommand().Run(context.Background(), args); err != nil {
		log.Fatal(err)
	}
}

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:  "visitctl",
		Usage: "Visit tracker maintenance commands",
		Commands: []*cli.Command{
			migrateCommand(),
			reconcileCommand(),
			runDailyCommand(),
		},
	}
}

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "apply or roll back schema migrations",
		Commands: []*cli.Command{
			{
				Name:  "up",
				Usage: "apply every pending migration",
				Action: func(ctx context.Context, c *cli.Command) error {
					cfg, logr, err := setup()
					if err != nil {
						return err
					}
					db, err := database.NewPostgres(cfg.Database)
					if err != nil {
						return err
					}
					defer db.Close()
					return database.RunMigrations(db.DB, logr)
				},
			},
			{
				Name:  "down",
				Usage: "roll back migrations",
				Flags: []cli.Flag{
					&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to revert"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					steps := int(c.Int("steps"))
					cfg, logr, err := setup()
					if err != nil {
						return err
					}
					db, err := database.NewPostgres(cfg.Database)
					if err != nil {
						return err
					}
					defer db.Close()
					return database.RollbackMigrations(db.DB, steps, logr)
				},
			},
		},
	}
}

func reconcileCommand() *cli.Command {
	return &cli.Command{
		Name:  "reconcile",
		Usage: "build and print the validated daily report of one tenant",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "tenant", Required: true, Usage: "tenant id"},
			&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD, defaults to yesterday"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, func(app *bootstrap.App) error {
				tenantID := c.String("tenant")
				date, err := resolveDate(app.Clock, tenantID, c.String("date"))
				if err != nil {
					return err
				}
				report, err := app.Reports.Build(ctx, tenantID, date)
				if err != nil {
					return err
				}
				return printJSON(report)
			})
		},
	}
}

func runDailyCommand() *cli.Command {
	return &cli.Command{
		Name:  "run-daily",
		Usage: "run the reconciliation for every active tenant",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Usage: "YYYY-MM-DD, defaults to yesterday"},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return withApp(ctx, func(app *bootstrap.App) error {
				date, err := resolveDate(app.Clock, "", c.String("date"))
				if err != nil {
					return err
				}
				summary, err := app.Reports.RunDaily(ctx, date)
				if err != nil {
					return err
				}
				return printJSON(summary)
			})
		},
	}
}

func setup() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logr, nil
}

func withApp(ctx context.Context, fn func(app *bootstrap.App) error) error {
	cfg, logr, err := setup()
	if err != nil {
		return err
	}
	defer logr.Sync() //nolint:errcheck

	app, err := bootstrap.New(cfg, logr)
	if err != nil {
		return err
	}
	defer app.Close(ctx) //nolint:errcheck
	return fn(app)
}

func resolveDate(clock service.TenantClock, tenantID, raw string) (time.Time, error) {
	if raw == "" {
		return service.PreviousDay(clock, tenantID), nil
	}
	return service.ParseDate(raw, clock.Location(tenantID))
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
