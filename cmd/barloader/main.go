// Command barloader backfills historical time bars into the bar store.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/scmhub/calendar"

	"github.com/rickgao/plantclient/internal/client"
	"github.com/rickgao/plantclient/internal/config"
	"github.com/rickgao/plantclient/internal/database"
	"github.com/rickgao/plantclient/internal/logging"
	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/queue"
	"github.com/rickgao/plantclient/internal/version"
	"github.com/rickgao/plantclient/internal/writer"
)

type options struct {
	configPath string
	symbol     string
	exchange   string
	start      time.Time
	end        time.Time
	barType    model.BarType
	period     int
	chunk      time.Duration
	mic        string
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	if err := run(opts); err != nil {
		slog.Error("barloader failed", "error", err)
		os.Exit(1)
	}
}

func parseFlags(args []string) (options, error) {
	fs := flag.NewFlagSet("barloader", flag.ContinueOnError)
	var (
		o          options
		start, end string
		barType    string
	)
	fs.StringVar(&o.configPath, "config", "configs/plantd.local.yaml", "path to config file")
	fs.StringVar(&o.symbol, "symbol", "", "contract symbol, e.g. ESZ6")
	fs.StringVar(&o.exchange, "exchange", "CME", "exchange code")
	fs.StringVar(&start, "start", "", "range start, RFC 3339")
	fs.StringVar(&end, "end", "", "range end, RFC 3339 (default now)")
	fs.StringVar(&barType, "type", "minute", "bar type: second, minute, daily, weekly")
	fs.IntVar(&o.period, "period", 1, "bar period")
	fs.DurationVar(&o.chunk, "chunk", 24*time.Hour, "length of each history request")
	fs.StringVar(&o.mic, "calendar", "", "skip windows on closed days of this exchange calendar (ISO 10383 MIC, e.g. xnys)")

	if err := fs.Parse(args); err != nil {
		return o, err
	}

	if o.symbol == "" {
		return o, errors.New("-symbol is required")
	}
	if o.period <= 0 {
		return o, errors.New("-period must be positive")
	}
	if o.chunk <= 0 {
		return o, errors.New("-chunk must be positive")
	}

	bt, ok := model.ParseBarType(barType)
	if !ok {
		return o, fmt.Errorf("unknown bar type %q", barType)
	}
	o.barType = bt

	var err error
	if start == "" {
		return o, errors.New("-start is required")
	}
	if o.start, err = time.Parse(time.RFC3339, start); err != nil {
		return o, fmt.Errorf("parse -start: %w", err)
	}
	o.end = time.Now().UTC()
	if end != "" {
		if o.end, err = time.Parse(time.RFC3339, end); err != nil {
			return o, fmt.Errorf("parse -end: %w", err)
		}
	}
	if !o.end.After(o.start) {
		return o, errors.New("-end must be after -start")
	}
	return o, nil
}

func run(opts options) error {
	cfg, err := config.LoadAndValidate(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if !cfg.Database.Enabled() {
		return errors.New("database.host is required")
	}

	logger, err := logging.New(cfg.Logging, os.Stdout)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)
	logger.Info("starting barloader", version.LogAttrs()...)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	pool, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer pool.Close()
	if err := database.Migrate(ctx, pool); err != nil {
		return err
	}

	c, err := client.New(cfg.Client(version.Version), client.WithLogger(logger))
	if err != nil {
		return err
	}
	hist := c.History()
	if err := hist.Connect(ctx); err != nil {
		return err
	}
	defer hist.Disconnect(context.WithoutCancel(ctx))
	if err := hist.Login(ctx); err != nil {
		return err
	}

	bars := queue.New[model.Bar](cfg.Writer.BatchSize)
	w := writer.NewBarWriter(writer.WriterConfig{
		BatchSize:     cfg.Writer.BatchSize,
		FlushInterval: cfg.Writer.FlushInterval,
	}, bars, pool, logger)
	if err := w.Start(ctx); err != nil {
		return err
	}

	wins := windows(opts.start, opts.end, opts.chunk)
	if opts.mic != "" {
		cal := calendar.GetCalendar(opts.mic)
		if cal == nil {
			w.Stop(context.WithoutCancel(ctx))
			return fmt.Errorf("unknown calendar %q", opts.mic)
		}
		all := len(wins)
		wins = tradingWindows(wins, func(t time.Time) bool {
			return cal.IsBusinessDay(t.In(cal.Loc))
		})
		logger.Info("applied trading calendar", "calendar", opts.mic, "windows", len(wins), "skipped", all-len(wins))
	}

	total := 0
	for _, win := range wins {
		got, err := hist.GetHistoricalTimeBars(ctx, opts.symbol, opts.exchange, win.start, win.end, opts.barType, opts.period)
		if err != nil {
			w.Stop(context.WithoutCancel(ctx))
			return fmt.Errorf("fetch %s to %s: %w", win.start.Format(time.RFC3339), win.end.Format(time.RFC3339), err)
		}
		for _, b := range got {
			bars.Push(b)
		}
		total += len(got)
		logger.Info("fetched bars",
			"symbol", opts.symbol,
			"start", win.start,
			"end", win.end,
			"bars", len(got),
		)
	}

	stopCtx, stopCancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer stopCancel()
	w.Stop(stopCtx)

	stats := w.Stats()
	logger.Info("backfill complete",
		"fetched", total,
		"inserted", stats.Inserts,
		"duplicates", stats.Conflicts,
		"errors", stats.Errors,
	)
	if stats.Errors > 0 {
		return fmt.Errorf("%d batch inserts failed", stats.Errors)
	}
	return nil
}

type window struct {
	start, end time.Time
}

// windows splits [start, end) into consecutive spans no longer than chunk.
func windows(start, end time.Time, chunk time.Duration) []window {
	var out []window
	for s := start; s.Before(end); s = s.Add(chunk) {
		e := s.Add(chunk)
		if e.After(end) {
			e = end
		}
		out = append(out, window{start: s, end: e})
	}
	return out
}

// tradingWindows keeps the windows that touch at least one day for which
// open reports true.
func tradingWindows(wins []window, open func(day time.Time) bool) []window {
	var out []window
	for _, win := range wins {
		y, m, d := win.start.Date()
		for day := time.Date(y, m, d, 0, 0, 0, 0, win.start.Location()); day.Before(win.end); day = day.AddDate(0, 0, 1) {
			if open(day) {
				out = append(out, win)
				break
			}
		}
	}
	return out
}
