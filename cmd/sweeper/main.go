package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"

	"github.com/MrJamesThe3rd/ironyard/internal/config"
	"github.com/MrJamesThe3rd/ironyard/internal/database"
	"github.com/MrJamesThe3rd/ironyard/internal/events"
	listingStore "github.com/MrJamesThe3rd/ironyard/internal/listing/store"
	"github.com/MrJamesThe3rd/ironyard/internal/sweeper"
)

func main() {
	app := &cli.App{
		Name:  "sweeper",
		Usage: "expire lapsed listing reservations",
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "run one sweep and print the result as JSON",
				Flags: []cli.Flag{
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "abort the run after this long (defaults to SWEEPER_TIMEOUT)",
					},
					&cli.IntFlag{
						Name:  "batch-size",
						Usage: "candidates fetched per query (defaults to SWEEPER_BATCH_SIZE)",
					},
				},
				Action: runSweep,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		slog.Error("sweeper failed", "error", err)
		os.Exit(1)
	}
}

func runSweep(c *cli.Context) error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	batchSize := cfg.Sweeper.BatchSize
	if c.IsSet("batch-size") {
		batchSize = c.Int("batch-size")
	}

	opts := []sweeper.Option{sweeper.WithBatchSize(batchSize)}

	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return fmt.Errorf("connecting to rabbitmq: %w", err)
		}
		defer publisher.Close()

		opts = append(opts, sweeper.WithEventPublisher(publisher))
	}

	timeout := cfg.Sweeper.Timeout
	if c.IsSet("timeout") {
		timeout = c.Duration("timeout")
	}

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	if timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	res, runErr := sweeper.New(listingStore.New(db), opts...).Run(ctx)

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("writing result: %w", err)
	}

	// Row errors are part of a completed run; only an aborted run fails.
	return runErr
}
