package writer

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/plantclient/internal/model"
	"github.com/rickgao/plantclient/internal/queue"
)

// BatchSender runs a pgx batch. *pgxpool.Pool implements it.
type BatchSender interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// BarWriter consumes bars from a queue and writes them to the bars table.
type BarWriter struct {
	cfg    WriterConfig
	logger *slog.Logger

	input *queue.Queue[model.Bar]
	db    BatchSender

	batch   []barRow
	batchMu sync.Mutex

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics WriterMetrics
}

type barRow struct {
	Symbol    string
	Exchange  string
	BarType   string
	Period    int
	EndTime   time.Time
	Open      string
	High      string
	Low       string
	Close     string
	Volume    int64
	BidVolume int64
	AskVolume int64
	NumTrades int64
}

// NewBarWriter creates a new BarWriter.
func NewBarWriter(cfg WriterConfig, input *queue.Queue[model.Bar], db BatchSender, logger *slog.Logger) *BarWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultWriterConfig().BatchSize
	}
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = DefaultWriterConfig().FlushInterval
	}
	return &BarWriter{
		cfg:    cfg,
		input:  input,
		db:     db,
		logger: logger.With("writer", "bars"),
		batch:  make([]barRow, 0, cfg.BatchSize),
	}
}

// Start begins consuming bars and writing to the database.
func (w *BarWriter) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(2)
	go w.consumeLoop()
	go w.flushLoop()

	w.logger.Info("bar writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop drains what is already queued, flushes and shuts down.
func (w *BarWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping bar writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("bar writer stop timed out")
	}

	for _, bar := range w.input.Drain(0) {
		w.add(transform(bar))
	}
	w.flush(context.WithoutCancel(ctx))

	w.logger.Info("bar writer stopped", "inserts", w.Stats().Inserts)
	return nil
}

// Stats returns current metrics.
func (w *BarWriter) Stats() WriterMetrics {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	return w.metrics
}

func (w *BarWriter) consumeLoop() {
	defer w.wg.Done()

	for {
		bar, err := w.input.Pop(w.ctx)
		if err != nil {
			// Context done or queue closed.
			return
		}
		if w.add(transform(bar)) {
			w.flush(w.ctx)
		}
	}
}

func (w *BarWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.flush(w.ctx)
		}
	}
}

// add appends a row and reports whether the batch is full.
func (w *BarWriter) add(row barRow) bool {
	w.batchMu.Lock()
	defer w.batchMu.Unlock()
	w.batch = append(w.batch, row)
	return len(w.batch) >= w.cfg.BatchSize
}

func transform(b model.Bar) barRow {
	return barRow{
		Symbol:    b.Symbol,
		Exchange:  b.Exchange,
		BarType:   b.Type.String(),
		Period:    b.Period,
		EndTime:   b.EndTime.UTC(),
		Open:      b.Open.String(),
		High:      b.High.String(),
		Low:       b.Low.String(),
		Close:     b.Close.String(),
		Volume:    b.Volume,
		BidVolume: b.BidVolume,
		AskVolume: b.AskVolume,
		NumTrades: b.NumTrades,
	}
}

func (w *BarWriter) flush(ctx context.Context) {
	w.batchMu.Lock()
	if len(w.batch) == 0 {
		w.batchMu.Unlock()
		return
	}
	batch := w.batch
	w.batch = make([]barRow, 0, w.cfg.BatchSize)
	w.batchMu.Unlock()

	start := time.Now()
	conflicts, err := w.batchInsert(ctx, batch)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(batch))
		w.batchMu.Lock()
		w.metrics.Errors++
		w.batchMu.Unlock()
		return
	}

	w.batchMu.Lock()
	w.metrics.Inserts += int64(len(batch) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.batchMu.Unlock()

	w.logger.Debug("flushed bars",
		"count", len(batch),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows with ON CONFLICT DO NOTHING; a replayed bar
// that is already stored counts as a conflict.
func (w *BarWriter) batchInsert(ctx context.Context, rows []barRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO bars (symbol, exchange, bar_type, period, end_time, open, high, low, close, volume, bid_volume, ask_volume, num_trades)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
			ON CONFLICT (symbol, exchange, bar_type, period, end_time) DO NOTHING
		`, r.Symbol, r.Exchange, r.BarType, r.Period, r.EndTime, r.Open, r.High, r.Low, r.Close, r.Volume, r.BidVolume, r.AskVolume, r.NumTrades)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}
	return conflicts, nil
}
