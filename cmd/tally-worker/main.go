package main

import (
	"context"
	"errors"
	"os"

	"golang.org/x/sync/errgroup"

	"tally/internal/amqp"
	"tally/internal/cli"
	applog "tally/internal/log"
	"tally/internal/worker"
)

const startupCheckLimit = 10

func main() {
	cli.LoadEnvFile()

	logger := cli.SetupLogger(os.Getenv("LOG_LEVEL"), applog.ComponentWorker)
	logger.Info("Starting tally-worker")

	cfg := cli.LoadAndValidateConfig(logger)
	if !cfg.AMQPEnabled() {
		logger.Error("AMQP_URL is required for the worker")
		os.Exit(1)
	}

	repo := cli.InitSQLite(logger, cfg.SQLiteDBPath)
	defer repo.Close()

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Error("Failed to initialize AMQP client", "error", err)
		os.Exit(1)
	}
	defer amqpClient.Close()

	ctx, cancel := cli.SignalContext(context.Background(), logger)
	defer cancel()

	auditWorker := worker.NewAuditWorker(repo, logger)
	if err := auditWorker.StartupCheck(ctx, repo, startupCheckLimit); err != nil {
		// Not fatal: consumption can still record new events.
		logger.Error("Startup check failed", "error", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return amqpClient.ConsumeTallyChanged(gctx, auditWorker.HandleTallyChanged)
	})

	logger.Info("Consuming tally changes",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue,
		"db", cfg.SQLiteDBPath)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("Message consumption failed", "error", err)
		os.Exit(1)
	}
	logger.Info("Worker stopped gracefully")
}
