package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/MrJamesThe3rd/ironyard/internal/config"
	"github.com/MrJamesThe3rd/ironyard/internal/database"
	"github.com/MrJamesThe3rd/ironyard/internal/events"
	ironyardHttp "github.com/MrJamesThe3rd/ironyard/internal/http"
	"github.com/MrJamesThe3rd/ironyard/internal/http/auth"
	importHandler "github.com/MrJamesThe3rd/ironyard/internal/http/importcsv"
	listingHandler "github.com/MrJamesThe3rd/ironyard/internal/http/listing"
	sweepHandler "github.com/MrJamesThe3rd/ironyard/internal/http/sweep"
	"github.com/MrJamesThe3rd/ironyard/internal/importer"
	"github.com/MrJamesThe3rd/ironyard/internal/listing"
	listingStore "github.com/MrJamesThe3rd/ironyard/internal/listing/store"
	"github.com/MrJamesThe3rd/ironyard/internal/sweeper"
)

func main() {
	if err := run(); err != nil {
		slog.Error("api stopped", "error", err)
		os.Exit(1)
	}
}

func run() error {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := database.Migrate(cfg.MigrationURL()); err != nil {
		return err
	}

	db, err := database.New(cfg.ConnectionString())
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer db.Close()

	store := listingStore.New(db)

	var (
		listingOpts = []listing.Option{listing.WithMaxLease(cfg.Reservation.MaxDuration)}
		sweeperOpts = []sweeper.Option{sweeper.WithBatchSize(cfg.Sweeper.BatchSize)}
	)

	if cfg.RabbitMQ.URL != "" {
		publisher, err := events.Dial(cfg.RabbitMQ.URL, cfg.RabbitMQ.Exchange)
		if err != nil {
			return fmt.Errorf("connecting to rabbitmq: %w", err)
		}
		defer publisher.Close()

		listingOpts = append(listingOpts, listing.WithEventPublisher(publisher))
		sweeperOpts = append(sweeperOpts, sweeper.WithEventPublisher(publisher))
	}

	var (
		listingService = listing.NewService(store, listingOpts...)
		importService  = importer.NewService(listingService)
		sweep          = sweeper.New(store, sweeperOpts...)
	)

	router := ironyardHttp.New(
		auth.NewVerifier(cfg.Auth.Secret, cfg.Auth.Issuer),
		listingHandler.NewHandler(listingService),
		importHandler.NewHandler(importService),
		sweepHandler.NewHandler(sweep, cfg.Sweeper.Timeout),
		ironyardHttp.Options{AllowedOrigins: cfg.CORS.AllowedOrigins},
	)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.App.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("starting server", "port", server.Addr)

		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		slog.Info("shutting down server")

		return server.Shutdown(shutdownCtx)
	})

	if cfg.Sweeper.Interval > 0 {
		scheduler := sweeper.NewScheduler(sweep, cfg.Sweeper.Interval, cfg.Sweeper.Timeout)

		g.Go(func() error {
			return scheduler.Run(ctx)
		})
	}

	return g.Wait()
}
