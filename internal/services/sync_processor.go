package services

import (
	"context"
	"fmt"
	"sync"
	"time"

	"finsight/internal/core"
	"finsight/internal/log"
	"finsight/internal/ports"
)

// SyncProcessorConfig holds the background schedule.
type SyncProcessorConfig struct {
	// PollInterval is how often accounts are checked for a due sync (default: 15m)
	PollInterval time.Duration

	// StaleAfter is how long an account may go without a sync (default: 6h)
	StaleAfter time.Duration

	// DigestInterval is how often pending spending reports are sent (default: 1h)
	DigestInterval time.Duration
}

func DefaultSyncProcessorConfig() SyncProcessorConfig {
	return SyncProcessorConfig{
		PollInterval:   15 * time.Minute,
		StaleAfter:     6 * time.Hour,
		DigestInterval: time.Hour,
	}
}

// SyncProcessor runs automatic bank syncs and periodic digests in the background.
type SyncProcessor struct {
	users    ports.UserStore
	accounts *AccountService
	digests  *DigestProcessor
	config   SyncProcessorConfig
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// NewSyncProcessor accepts a nil digests processor, which disables digests.
func NewSyncProcessor(users ports.UserStore, accounts *AccountService, digests *DigestProcessor, config SyncProcessorConfig, logger *log.Logger) *SyncProcessor {
	if logger == nil {
		logger = log.Discard()
	}
	def := DefaultSyncProcessorConfig()
	if config.PollInterval <= 0 {
		config.PollInterval = def.PollInterval
	}
	if config.StaleAfter <= 0 {
		config.StaleAfter = def.StaleAfter
	}
	if config.DigestInterval <= 0 {
		config.DigestInterval = def.DigestInterval
	}
	return &SyncProcessor{
		users:    users,
		accounts: accounts,
		digests:  digests,
		config:   config,
		logger:   logger.WithComponent(log.ComponentWorker),
		now:      time.Now,
	}
}

// Start begins the processing loop. Returns an error if already running.
func (p *SyncProcessor) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("sync processor is already running")
	}
	stopCh, doneCh := make(chan struct{}), make(chan struct{})
	p.running = true
	p.stopCh, p.doneCh = stopCh, doneCh
	p.mu.Unlock()

	go p.runLoop(ctx, stopCh, doneCh)

	p.logger.InfoContext(ctx, "Sync processor started",
		"poll_interval", p.config.PollInterval,
		"stale_after", p.config.StaleAfter,
		"digests", p.digests != nil)
	return nil
}

// Stop signals the loop and waits for the current pass to finish. Only the
// first of concurrent calls closes the stop channel; every caller waits.
func (p *SyncProcessor) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.doneCh == nil {
		p.mu.Unlock()
		return nil
	}
	if p.stopCh != nil {
		close(p.stopCh)
		p.stopCh = nil
	}
	done := p.doneCh
	p.mu.Unlock()

	select {
	case <-done:
	case <-ctx.Done():
		p.logger.WarnContext(ctx, "Sync processor stop timed out")
		return ctx.Err()
	}

	p.mu.Lock()
	if p.doneCh == done {
		p.running = false
		p.doneCh = nil
		p.logger.InfoContext(ctx, "Sync processor stopped gracefully")
	}
	p.mu.Unlock()
	return nil
}

func (p *SyncProcessor) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

func (p *SyncProcessor) runLoop(ctx context.Context, stopCh <-chan struct{}, doneCh chan<- struct{}) {
	defer close(doneCh)

	// stopCh also cancels in-flight work.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-stopCh:
			cancel()
		case <-ctx.Done():
		}
	}()

	pollTicker := time.NewTicker(p.config.PollInterval)
	defer pollTicker.Stop()
	digestTicker := time.NewTicker(p.config.DigestInterval)
	defer digestTicker.Stop()

	p.SyncDue(ctx)
	p.sendDigests(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			p.SyncDue(ctx)
		case <-digestTicker.C:
			p.sendDigests(ctx)
		}
	}
}

// SyncDue runs one pass over every user's stale accounts and returns the
// combined counts.
func (p *SyncProcessor) SyncDue(ctx context.Context) core.SyncRunReport {
	var total core.SyncRunReport
	users, err := p.users.ListUsers(ctx)
	if err != nil {
		p.logger.ErrorContext(ctx, "Failed to list users for sync",
			log.NewFields().WithOperation(log.OpSync).WithError(err).ToSlice()...)
		return total
	}
	now := p.now()
	for _, u := range users {
		if ctx.Err() != nil {
			return total
		}
		rep, err := p.accounts.SyncDue(ctx, u, p.config.StaleAfter, now)
		if err != nil {
			p.logger.ErrorContext(ctx, "Scheduled sync failed",
				log.NewFields().WithUser(u.ID).WithOperation(log.OpSync).WithError(err).ToSlice()...)
			continue
		}
		for _, a := range rep.Accounts {
			total.Add(a)
		}
	}
	if len(total.Accounts) > 0 {
		p.logger.InfoContext(ctx, "Scheduled sync finished",
			append([]any{log.FieldCount, len(total.Accounts)},
				log.NewFields().WithSyncCounts(total.Imported, total.Skipped, total.Errored).ToSlice()...)...)
	}
	return total
}

func (p *SyncProcessor) sendDigests(ctx context.Context) {
	if p.digests == nil {
		return
	}
	if _, err := p.digests.ProcessDue(ctx); err != nil && ctx.Err() == nil {
		p.logger.ErrorContext(ctx, "Digest pass failed", log.FieldError, err)
	}
}
