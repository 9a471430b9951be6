// batch.go implements the quote batch writer.
//
// Multiple ingestor goroutines enqueue normalized quotes; one flush goroutine
// drains them into single insert calls. A flush fires when either the queue
// reaches the configured batch size or the periodic tick lapses. Failed
// batches are requeued at the front, with total retained records capped at
// 10x batch size (oldest dropped beyond that) so a store outage cannot grow
// the queue without bound — the cap is part of the contract.
package persist

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"vantage-engine/internal/config"
	"vantage-engine/pkg/types"
)

// requeueFactor caps the retained queue at requeueFactor * batch size.
const requeueFactor = 10

// dropLogSample controls how often queue-overflow drops are logged (1 in N).
const dropLogSample = 50

var (
	metricQueued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_batch_queued_total",
		Help: "Quotes accepted into the batch writer queue.",
	})
	metricInserted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_batch_inserted_total",
		Help: "Quotes successfully persisted to the store.",
	})
	metricErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_batch_errors_total",
		Help: "Failed batch insert calls.",
	})
	metricDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "vantage_batch_dropped_total",
		Help: "Quotes dropped due to queue overflow.",
	})
)

// QuoteInserter is the slice of the store client the batch writer needs.
type QuoteInserter interface {
	InsertQuotes(ctx context.Context, quotes []types.Quote) error
}

// BatchWriterStats is a point-in-time snapshot of the writer's counters.
type BatchWriterStats struct {
	Queued   uint64
	Inserted uint64
	Errors   uint64
	Dropped  uint64
	Pending  int
}

// BatchWriter accumulates quotes and persists them in bounded bursts.
type BatchWriter struct {
	store  QuoteInserter
	spool  *Spool // may be nil (no spool configured)
	cfg    config.BatchConfig
	logger *slog.Logger

	mu       sync.Mutex
	queue    []types.Quote
	queued   uint64
	inserted uint64
	errors   uint64
	dropped  uint64
	degraded bool

	// flushCh nudges the run loop when the size threshold is crossed,
	// so full batches do not wait for the next tick.
	flushCh chan struct{}
}

// NewBatchWriter creates a writer. If spool is non-nil, records it holds from
// a previous shutdown are re-enqueued immediately.
func NewBatchWriter(store QuoteInserter, spool *Spool, cfg config.BatchConfig, logger *slog.Logger) *BatchWriter {
	w := &BatchWriter{
		store:   store,
		spool:   spool,
		cfg:     cfg,
		logger:  logger.With("component", "batch_writer"),
		flushCh: make(chan struct{}, 1),
	}

	if spool != nil {
		if recovered, err := spool.Drain(); err != nil {
			w.logger.Warn("failed to recover spooled quotes", "error", err)
		} else if len(recovered) > 0 {
			w.logger.Info("recovered spooled quotes from previous shutdown", "count", len(recovered))
			for _, q := range recovered {
				w.Enqueue(q)
			}
		}
	}

	return w
}

// Enqueue adds one quote without blocking. Returns false when the queue is at
// its high-water mark, in which case the quote was dropped — callers use this
// to shed load per asset instead of blocking their read loops.
func (w *BatchWriter) Enqueue(q types.Quote) bool {
	w.mu.Lock()
	if len(w.queue) >= w.highWater() {
		w.dropped++
		dropped := w.dropped
		w.mu.Unlock()
		metricDropped.Inc()
		if dropped%dropLogSample == 1 {
			w.logger.Warn("batch queue full, dropping quote",
				"event_id", q.EventID, "dropped_total", dropped)
		}
		return false
	}
	w.queue = append(w.queue, q)
	w.queued++
	shouldFlush := len(w.queue) >= w.cfg.Size
	w.mu.Unlock()

	metricQueued.Inc()
	if shouldFlush {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
	return true
}

// Run flushes on size nudges and on the periodic tick until ctx is cancelled,
// then performs one final synchronous flush. Records that still cannot be
// written at shutdown go to the spool so nothing enqueued is silently lost.
func (w *BatchWriter) Run(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.finalFlush()
			return
		case <-ticker.C:
			w.flush(ctx)
		case <-w.flushCh:
			w.flush(ctx)
		}
	}
}

// flush drains the queue atomically into a single insert call.
func (w *BatchWriter) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return
	}
	batch := w.queue
	w.queue = nil
	w.mu.Unlock()

	err := w.store.InsertQuotes(ctx, batch)
	if err == nil {
		w.mu.Lock()
		w.inserted += uint64(len(batch))
		w.mu.Unlock()
		metricInserted.Add(float64(len(batch)))
		return
	}

	w.mu.Lock()
	w.errors++
	w.mu.Unlock()
	metricErrors.Inc()

	if errors.Is(err, ErrTableMissing) {
		// Schema drift: retrying is pointless until the table exists.
		// Stay up in degraded mode so read paths keep serving.
		w.mu.Lock()
		w.degraded = true
		w.dropped += uint64(len(batch))
		w.mu.Unlock()
		metricDropped.Add(float64(len(batch)))
		w.logger.Error("quote table missing, running degraded", "dropped", len(batch))
		return
	}

	w.logger.Warn("batch insert failed, requeueing", "error", err, "batch", len(batch))
	w.requeue(batch)
}

// requeue prepends a failed batch, dropping the oldest records beyond the cap.
func (w *BatchWriter) requeue(batch []types.Quote) {
	w.mu.Lock()
	defer w.mu.Unlock()

	combined := append(batch, w.queue...)
	if over := len(combined) - w.highWater(); over > 0 {
		w.dropped += uint64(over)
		metricDropped.Add(float64(over))
		if w.dropped%dropLogSample < uint64(over) {
			w.logger.Warn("retained queue over cap, dropping oldest",
				"dropped", over, "cap", w.highWater())
		}
		combined = combined[over:]
	}
	w.queue = combined
}

// finalFlush is the shutdown path: one synchronous attempt with its own
// timeout, then spool whatever remains.
func (w *BatchWriter) finalFlush() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	w.flush(ctx)

	w.mu.Lock()
	remaining := w.queue
	w.queue = nil
	w.mu.Unlock()

	if len(remaining) == 0 {
		w.logger.Info("final flush complete", "inserted_total", w.Stats().Inserted)
		return
	}
	if w.spool == nil {
		w.logger.Error("final flush failed, quotes lost", "count", len(remaining))
		return
	}
	if err := w.spool.Save(remaining); err != nil {
		w.logger.Error("failed to spool unflushed quotes", "error", err, "count", len(remaining))
		return
	}
	w.logger.Warn("spooled unflushed quotes for next start", "count", len(remaining))
}

// Degraded reports whether the writer has hit missing-table schema drift.
func (w *BatchWriter) Degraded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.degraded
}

// Stats returns a snapshot of the writer's counters.
func (w *BatchWriter) Stats() BatchWriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return BatchWriterStats{
		Queued:   w.queued,
		Inserted: w.inserted,
		Errors:   w.errors,
		Dropped:  w.dropped,
		Pending:  len(w.queue),
	}
}

func (w *BatchWriter) highWater() int {
	return w.cfg.Size * requeueFactor
}
