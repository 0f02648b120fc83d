// Package backend assembles the storage and the optional integrations the
// commands run on, based on the application config.
package backend

import (
	"context"
	"errors"
	"fmt"

	"finsight/internal/amqp"
	"finsight/internal/banking/plaid"
	"finsight/internal/config"
	"finsight/internal/log"
	"finsight/internal/ports"
	"finsight/internal/services"
	"finsight/internal/sheets/google"
	"finsight/internal/storage"
)

// Backend holds everything services are built from. Publisher and Exporter
// are nil when their integration is not configured.
type Backend struct {
	Repo      ports.Repository
	Publisher *amqp.Client
	Exporter  ports.ReportExporter
	Source    ports.TransactionSource
}

// Build opens the database and every configured integration. The database
// and the transaction source are required; a broker or spreadsheet that
// cannot be reached is logged and left disabled.
func Build(ctx context.Context, cfg *config.Config, logger *log.Logger) (*Backend, error) {
	if cfg == nil {
		return nil, errors.New("app config is nil")
	}
	if logger == nil {
		logger = log.Discard()
	}

	repo, err := storage.Open(ctx, cfg.DBDriver, DSN(cfg), logger)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	b := &Backend{Repo: repo}

	if b.Source, err = NewSource(cfg, logger); err != nil {
		repo.Close()
		return nil, err
	}

	if cfg.AMQPURL != "" {
		b.Publisher, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, logger)
		if err != nil {
			logger.WarnContext(ctx, "AMQP unavailable, notifications stay in-app",
				log.NewFields().WithComponent(log.ComponentAMQP).WithError(err).ToSlice()...)
			b.Publisher = nil
		}
	}

	if cfg.SheetsEnabled() {
		exp, err := google.New(ctx, google.Config{
			SpreadsheetID:      cfg.GoogleSpreadsheetID,
			SheetName:          cfg.GoogleSheetName,
			ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
			ServiceAccountFile: cfg.GoogleServiceAccountFile,
		}, logger)
		if err != nil {
			logger.WarnContext(ctx, "Google Sheets export disabled",
				log.NewFields().WithComponent(log.ComponentSheets).WithError(err).ToSlice()...)
		} else {
			b.Exporter = exp
		}
	}

	logger.InfoContext(ctx, "Backend ready",
		"db_driver", cfg.DBDriver,
		"transaction_source", cfg.TransactionSource,
		"amqp_enabled", b.Publisher != nil,
		"sheets_enabled", b.Exporter != nil)
	return b, nil
}

// DSN picks the data source name for the configured driver.
func DSN(cfg *config.Config) string {
	if cfg.DBDriver == config.DriverPostgres {
		return cfg.DatabaseURL
	}
	return cfg.SQLiteDBPath
}

// NewSource returns the configured bank feed.
func NewSource(cfg *config.Config, logger *log.Logger) (ports.TransactionSource, error) {
	switch cfg.TransactionSource {
	case config.SourcePlaid:
		src, err := plaid.New(plaid.Config{
			ClientID: cfg.PlaidClientID,
			Secret:   cfg.PlaidSecret,
			Env:      cfg.PlaidEnv,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("plaid source: %w", err)
		}
		return src, nil
	case config.SourceMock, "":
		return services.NewMockSource(nil), nil
	default:
		return nil, fmt.Errorf("unsupported transaction source: %s", cfg.TransactionSource)
	}
}

// NotificationPublisher returns the publisher as the port, or nil, so a
// missing client does not become a non-nil interface.
func (b *Backend) NotificationPublisher() ports.NotificationPublisher {
	if b.Publisher == nil {
		return nil
	}
	return b.Publisher
}

// Close releases the broker connection and the database.
func (b *Backend) Close() error {
	var errs []error
	if b.Publisher != nil {
		if err := b.Publisher.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}
	if b.Repo != nil {
		if err := b.Repo.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}
	return errors.Join(errs...)
}
