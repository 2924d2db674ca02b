package poller

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/plantclient/internal/model"
)

// AccountSource provides the accounts to poll.
type AccountSource interface {
	Accounts() []model.Account
}

// SummaryFetcher requests one account's PnL snapshot.
type SummaryFetcher interface {
	ListAccountSummary(ctx context.Context, accountID string) (model.AccountPnL, bool, error)
}

// SummaryHandler receives fetched summaries.
type SummaryHandler interface {
	HandleSummary(ctx context.Context, summary model.AccountPnL) error
}

// SummaryHandlerFunc is a function adapter for SummaryHandler.
type SummaryHandlerFunc func(context.Context, model.AccountPnL) error

func (f SummaryHandlerFunc) HandleSummary(ctx context.Context, s model.AccountPnL) error {
	return f(ctx, s)
}

// Config holds poller configuration.
type Config struct {
	Interval    time.Duration // Poll interval (default: 1m)
	Concurrency int           // Max concurrent requests (default: 4)
	Timeout     time.Duration // Per-request timeout (default: 10s)
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Interval:    time.Minute,
		Concurrency: 4,
		Timeout:     10 * time.Second,
	}
}

// Stats counts poll results.
type Stats struct {
	Cycles  int64
	Fetched int64
	Empty   int64
	Errors  int64
}

// Poller periodically fetches account summaries.
type Poller struct {
	cfg      Config
	fetcher  SummaryFetcher
	accounts AccountSource
	handler  SummaryHandler
	logger   *slog.Logger

	cycles  atomic.Int64
	fetched atomic.Int64
	empty   atomic.Int64
	errors  atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a new Poller.
func New(cfg Config, fetcher SummaryFetcher, accounts AccountSource, handler SummaryHandler, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	def := DefaultConfig()
	if cfg.Interval <= 0 {
		cfg.Interval = def.Interval
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = def.Concurrency
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = def.Timeout
	}
	return &Poller{
		cfg:      cfg,
		fetcher:  fetcher,
		accounts: accounts,
		handler:  handler,
		logger:   logger.With("component", "pnl_poller"),
	}
}

// Start begins the polling loop.
func (p *Poller) Start(ctx context.Context) error {
	p.ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go p.run()

	p.logger.Info("account summary poller started",
		"interval", p.cfg.Interval,
		"concurrency", p.cfg.Concurrency,
	)

	return nil
}

// Stop gracefully shuts down the poller.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		p.logger.Info("account summary poller stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	return Stats{
		Cycles:  p.cycles.Load(),
		Fetched: p.fetched.Load(),
		Empty:   p.empty.Load(),
		Errors:  p.errors.Load(),
	}
}

func (p *Poller) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case <-ticker.C:
			p.pollAll(p.ctx)
		}
	}
}

// pollAll fetches every account's summary concurrently.
func (p *Poller) pollAll(ctx context.Context) {
	start := time.Now()
	p.cycles.Add(1)

	accounts := p.accounts.Accounts()
	if len(accounts) == 0 {
		p.logger.Debug("no accounts to poll")
		return
	}

	// Semaphore for bounded concurrency.
	sem := make(chan struct{}, p.cfg.Concurrency)
	var wg sync.WaitGroup

	for _, acct := range accounts {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				return
			}

			if err := p.pollAccount(ctx, id); err != nil {
				p.logger.Warn("failed to poll account summary",
					"account", id,
					"err", err,
				)
				p.errors.Add(1)
			}
		}(acct.ID)
	}

	wg.Wait()

	p.logger.Debug("poll cycle complete",
		"accounts", len(accounts),
		"duration", time.Since(start),
	)
}

func (p *Poller) pollAccount(ctx context.Context, accountID string) error {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	summary, ok, err := p.fetcher.ListAccountSummary(ctx, accountID)
	if err != nil {
		return err
	}
	if !ok {
		p.empty.Add(1)
		return nil
	}
	p.fetched.Add(1)

	if p.handler != nil {
		return p.handler.HandleSummary(ctx, summary)
	}
	return nil
}
