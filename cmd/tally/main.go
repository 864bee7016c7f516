package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/cli"
	apphttp "tally/internal/http"
	applog "tally/internal/log"
	"tally/internal/metrics"
	"tally/internal/services"
	"tally/internal/tally"
)

func main() {
	start := time.Now()
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentApp)
	cfg := cli.LoadAndValidateConfig(logger)

	loc, err := cfg.Location()
	if err != nil {
		logger.Error("Invalid timezone", "error", err, "timezone", cfg.Timezone)
		os.Exit(1)
	}

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	settings, err := backend.SettingsFrom(cfg)
	if err != nil {
		logger.Error("Invalid backend configuration", "error", err)
		os.Exit(1)
	}
	opened, err := backend.NewOpener(logger).Open(ctx, settings)
	if err != nil {
		logger.Error("Failed to open storage", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	defer opened.Close()

	m := metrics.New()
	store := tally.New(opened.Store,
		tally.WithKey(cfg.StorageKey),
		tally.WithLocation(loc),
		tally.WithLogger(logger.WithComponent(applog.ComponentTally)),
		tally.WithObserver(m))

	var loadWarning string
	snap, err := store.Load(ctx)
	switch {
	case errors.Is(err, tally.ErrCorruptState):
		loadWarning = "The saved tally could not be read. A backup was kept and counting starts fresh."
		logger.Warn("Stored tally was corrupt, starting empty", "error", err, "key", cfg.StorageKey)
	case err != nil:
		logger.Error("Failed to load tally", "error", err)
		os.Exit(1)
	}
	untrack := m.Track(store)
	defer untrack()

	g, gctx := errgroup.WithContext(ctx)

	// The publisher outlives the server so changes from requests still in
	// flight during shutdown are published too.
	pubCtx, stopPublisher := context.WithCancel(context.Background())
	defer stopPublisher()

	if cfg.AMQPEnabled() {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			// The tally works without the broker; changes are simply not announced.
			logger.Warn("AMQP unavailable, change events disabled", "error", err)
		} else {
			defer client.Close()
			publisher := services.NewChangePublisher(client, cfg.AMQPPublishBuffer, logger)
			detach := publisher.Attach(store)
			defer detach()
			m.RegisterCounterFunc("tally_events_dropped_total", "Change events dropped because the publish buffer was full.",
				func() float64 { return float64(publisher.Dropped()) })
			m.RegisterCounterFunc("tally_events_published_total", "Change events published to the broker.",
				func() float64 { return float64(publisher.Published()) })
			g.Go(func() error { return publisher.Run(pubCtx) })
		}
	}

	srv := apphttp.NewServer(":"+cfg.Port, store, apphttp.Options{
		Logger:      logger.WithComponent(applog.ComponentHTTP),
		Metrics:     m,
		LoadWarning: loadWarning,
	})

	g.Go(func() error {
		logger.Info("Starting tally server",
			"port", cfg.Port,
			"backend", cfg.DataBackend,
			"days", len(snap.Counts),
			"today", snap.Today)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
		}
		stopPublisher()
		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Server error", "error", err, "port", cfg.Port)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully", "uptime", time.Since(start).Round(time.Second).String())
}
