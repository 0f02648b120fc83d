package main

import (
	"context"
	"errors"
	"os"
	"time"

	"finsight/internal/cli"
	"finsight/internal/email"
	"finsight/internal/log"
	"finsight/internal/services"
	"finsight/internal/worker"
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentWorker)
	logger.Info("Starting finsight-worker", log.FieldOperation, log.OpStartup)

	b := cli.MustBuildBackend(context.Background(), cfg, logger)

	// The worker keeps no read cache, so invalidations are no-ops.
	notifier := services.NewNotificationService(b.Repo, b.NotificationPublisher(), logger)
	reconciler := services.NewSyncReconciler(b.Repo, b.Source, notifier, nil, logger)
	accounts := services.NewAccountService(b.Repo, reconciler, logger)
	reports := services.NewReportService(b.Repo, b.Exporter, logger)
	digests := services.NewDigestProcessor(b.Repo, reports, notifier, logger)

	processor := services.NewSyncProcessor(b.Repo, accounts, digests, services.SyncProcessorConfig{
		PollInterval:   cfg.SyncInterval,
		StaleAfter:     cfg.SyncStaleAfter,
		DigestInterval: cfg.DigestInterval,
	}, logger)

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := processor.Stop(ctx); err != nil {
			logger.Error("Sync processor stop error", log.FieldError, err)
		}
		if err := b.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	})

	if err := processor.Start(ctx); err != nil {
		logger.Error("Failed to start sync processor", log.FieldError, err)
		os.Exit(1)
	}

	switch {
	case b.Publisher == nil:
		logger.Info("AMQP not configured, e-mail delivery disabled")
	case !cfg.SMTPEnabled():
		logger.Info("SMTP not configured, e-mail delivery disabled")
	default:
		sender, err := email.New(email.Config{
			Host:     cfg.SMTPHost,
			Port:     cfg.SMTPPort,
			Username: cfg.SMTPUsername,
			Password: cfg.SMTPPassword,
			From:     cfg.SMTPFrom,
		}, logger)
		if err != nil {
			logger.Error("Failed to initialize e-mail sender", log.FieldError, err)
			os.Exit(1)
		}
		mailer := worker.NewNotificationWorker(sender, logger)
		go func() {
			if err := b.Publisher.Consume(ctx, mailer.HandleNotification); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Notification consumption stopped", log.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Worker stopped gracefully")
}
