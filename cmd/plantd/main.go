package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/plantclient/internal/bridge"
	"github.com/rickgao/plantclient/internal/client"
	"github.com/rickgao/plantclient/internal/config"
	"github.com/rickgao/plantclient/internal/database"
	"github.com/rickgao/plantclient/internal/logging"
	"github.com/rickgao/plantclient/internal/metrics"
	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/poller"
	"github.com/rickgao/plantclient/internal/queue"
	"github.com/rickgao/plantclient/internal/version"
	"github.com/rickgao/plantclient/internal/writer"
)

func main() {
	configPath := flag.String("config", "configs/plantd.local.yaml", "path to config file")
	flag.Parse()

	if err := run(*configPath); err != nil {
		slog.Error("plantd failed", "error", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadAndValidate(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	logger.Info("starting plantd", append(version.LogAttrs(), "config", configPath)...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	c, err := client.New(cfg.Client(version.Version), client.WithLogger(logger))
	if err != nil {
		return err
	}
	collector := metrics.NewCollector(c)

	// Optional bar store
	var pool *pgxpool.Pool
	var barWriter *writer.BarWriter
	if cfg.Database.Enabled() {
		logger.Info("connecting to database",
			"host", cfg.Database.Host,
			"port", cfg.Database.Port,
			"database", cfg.Database.Name,
		)
		pool, err = database.Connect(ctx, cfg.Database)
		if err != nil {
			return err
		}
		defer pool.Close()

		if err := database.Migrate(ctx, pool); err != nil {
			return err
		}

		bars := queue.New[model.Bar](cfg.Writer.BatchSize)
		barWriter = writer.NewBarWriter(writer.WriterConfig{
			BatchSize:     cfg.Writer.BatchSize,
			FlushInterval: cfg.Writer.FlushInterval,
		}, bars, pool, logger)
		c.Events().TimeBar.Subscribe(func(_ context.Context, b model.Bar) error {
			bars.Push(b)
			return nil
		})
		if err := barWriter.Start(ctx); err != nil {
			return err
		}
		collector.SetWriter(barWriter)
		logger.Info("database connected")
	}

	// Optional NATS bridge
	if cfg.NATS.URL != "" {
		nc, err := bridge.Connect(cfg.NATS, logger)
		if err != nil {
			return err
		}
		defer nc.Close()

		b := bridge.New(nc, cfg.NATS.SubjectPrefix, logger)
		detach := b.Attach(c.Events())
		defer detach()
		collector.SetBridge(b)
		logger.Info("nats bridge attached", "url", cfg.NATS.URL, "prefix", cfg.NATS.SubjectPrefix)
	}

	var pinger Pinger
	if pool != nil {
		pinger = pool
	}
	healthServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Health.Port),
		Handler:           createHealthHandler(cfg.Health.Path, c, pinger, collector),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("starting health server", "port", cfg.Health.Port, "path", cfg.Health.Path)
		if err := healthServer.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server error", "error", err)
		}
	}()

	logger.Info("connecting plants")
	if err := c.ConnectAll(ctx); err != nil {
		return err
	}

	if err := subscribe(ctx, c, cfg.Subscriptions, logger); err != nil {
		logger.Error("startup subscriptions failed", "error", err)
	}

	var pnlPoller *poller.Poller
	if cfg.Subscriptions.PnLPollInterval > 0 {
		pnlPoller = poller.New(poller.Config{Interval: cfg.Subscriptions.PnLPollInterval}, c, c,
			poller.SummaryHandlerFunc(func(ctx context.Context, s model.AccountPnL) error {
				c.Events().AccountPnL.Publish(ctx, s)
				return nil
			}), logger)
		if err := pnlPoller.Start(ctx); err != nil {
			return err
		}
	}

	logger.Info("plantd running", "health_url", fmt.Sprintf("http://localhost:%d%s", cfg.Health.Port, cfg.Health.Path))

	<-ctx.Done()
	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if pnlPoller != nil {
		pnlPoller.Stop(shutdownCtx)
	}
	if err := c.DisconnectAll(shutdownCtx); err != nil {
		logger.Warn("disconnect failed", "error", err)
	}
	if barWriter != nil {
		barWriter.Stop(shutdownCtx)
	}
	healthServer.Shutdown(shutdownCtx)

	logger.Info("plantd stopped")
	return nil
}

// subscribe opens the configured streams. Every stream is attempted; the
// errors are joined.
func subscribe(ctx context.Context, c *client.Client, subs config.SubscriptionsConfig, logger *slog.Logger) error {
	var errs []error

	for _, md := range subs.MarketData {
		if err := c.SubscribeToMarketData(ctx, md.Symbol, md.Exchange, md.UpdateBits()); err != nil {
			errs = append(errs, fmt.Errorf("market data %s.%s: %w", md.Symbol, md.Exchange, err))
			continue
		}
		logger.Info("subscribed to market data", "symbol", md.Symbol, "exchange", md.Exchange)
	}

	for _, tb := range subs.TimeBars {
		if err := c.SubscribeToTimeBarData(ctx, tb.Symbol, tb.Exchange, tb.BarType(), tb.Period); err != nil {
			errs = append(errs, fmt.Errorf("time bars %s.%s: %w", tb.Symbol, tb.Exchange, err))
			continue
		}
		logger.Info("subscribed to time bars", "symbol", tb.Symbol, "exchange", tb.Exchange, "type", tb.Type, "period", tb.Period)
	}

	if subs.PnL {
		if err := c.SubscribeToPnLUpdates(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pnl: %w", err))
		} else {
			logger.Info("subscribed to pnl updates", "accounts", len(c.Accounts()))
		}
	}

	return errors.Join(errs...)
}
