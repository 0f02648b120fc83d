package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"finsight/internal/auth"
	"finsight/internal/cache"
	"finsight/internal/cli"
	"finsight/internal/core"
	apphttp "finsight/internal/http"
	"finsight/internal/log"
	"finsight/internal/services"
)

const (
	dashboardCacheSize = 512
	dashboardCacheTTL  = 5 * time.Minute
)

func main() {
	cli.LoadEnvFile()
	cfg := cli.LoadAndValidateConfig()
	logger := cli.SetupLogger(cfg, log.ComponentApp)

	b := cli.MustBuildBackend(context.Background(), cfg, logger)

	dashCache := cache.NewLRUCache[[]core.CategoryTotal](dashboardCacheSize, dashboardCacheTTL)
	cacheManager := cache.NewManager(logger)
	cacheManager.Register(dashCache)
	cacheManager.StartCleanup(time.Minute)

	notifier := services.NewNotificationService(b.Repo, b.NotificationPublisher(), logger)
	dashboard := services.NewDashboardService(b.Repo, dashCache, logger)
	reconciler := services.NewSyncReconciler(b.Repo, b.Source, notifier, dashboard, logger)
	svc := apphttp.Services{
		Users:         services.NewUserService(b.Repo, notifier, dashboard, logger, 0),
		Ledger:        services.NewLedgerService(b.Repo, notifier, dashboard, logger),
		Categories:    services.NewCategoryService(b.Repo, dashboard, logger),
		Accounts:      services.NewAccountService(b.Repo, reconciler, logger),
		Reports:       services.NewReportService(b.Repo, b.Exporter, logger),
		Notifications: notifier,
		Dashboard:     dashboard,
	}
	sessions := auth.NewManager(cfg.SessionSecret, cfg.SessionTTL, cfg.SecureCookies)

	srv, err := apphttp.NewServer(apphttp.Config{
		Addr:               ":" + cfg.Port,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		Ready:              b.Repo.Ping,
	}, svc, sessions, logger)
	if err != nil {
		logger.Error("Failed to create server", log.FieldError, err)
		os.Exit(1)
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if err := srv.Shutdown(ctx); err != nil {
			logger.Error("Server shutdown error", log.FieldError, err)
		}
		cacheManager.Stop()
		if err := b.Close(); err != nil {
			logger.Error("Backend close error", log.FieldError, err)
		}
	})

	logger.Info("Starting FinSight server",
		"port", cfg.Port,
		log.FieldOperation, log.OpStartup,
		"exports_enabled", svc.Reports.ExportEnabled())
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("Server error", log.FieldError, err, "port", cfg.Port)
		os.Exit(1)
	}

	cli.WaitForShutdown(ctx, done)
	logger.Info("Server stopped gracefully")
}
