package shortener

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultQueueSize    = 1024
	DefaultWorkers      = 4
	DefaultWriteTimeout = 3 * time.Second
)

// ClickRecorder accepts clicks for best-effort persistence.
// Record must return without waiting for the store.
type ClickRecorder interface {
	Record(click NewClick)
}

// RecorderConfig holds configuration for the queued recorder.
type RecorderConfig struct {
	QueueSize    int
	Workers      int
	WriteTimeout time.Duration
	Logger       *slog.Logger
}

// Recorder writes clicks from a bounded queue on a fixed set of workers.
// When the queue is full the click is dropped, so a slow store can never
// hold up a redirect.
type Recorder struct {
	store   ClickStore
	logger  *slog.Logger
	timeout time.Duration
	queue   chan NewClick
	wg      sync.WaitGroup

	mu     sync.RWMutex
	closed bool

	recorded atomic.Int64
	failed   atomic.Int64
	dropped  atomic.Int64
}

// NewRecorder starts the worker pool. Call Close to drain it.
func NewRecorder(store ClickStore, cfg RecorderConfig) *Recorder {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	r := &Recorder{
		store:   store,
		logger:  cfg.Logger,
		timeout: cfg.WriteTimeout,
		queue:   make(chan NewClick, cfg.QueueSize),
	}

	r.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go r.work()
	}
	return r
}

// Record enqueues click. It never blocks.
func (r *Recorder) Record(click NewClick) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if r.closed {
		r.dropped.Add(1)
		r.logger.Warn("click dropped: recorder closed", "url_id", click.URLID.String())
		return
	}

	select {
	case r.queue <- click:
	default:
		r.dropped.Add(1)
		r.logger.Warn("click dropped: queue full", "url_id", click.URLID.String())
	}
}

// Close stops accepting clicks and waits for queued ones to be written,
// or for ctx to end.
func (r *Recorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stats reports how many clicks were written, failed, or dropped.
func (r *Recorder) Stats() (recorded, failed, dropped int64) {
	return r.recorded.Load(), r.failed.Load(), r.dropped.Load()
}

func (r *Recorder) work() {
	defer r.wg.Done()
	for click := range r.queue {
		if err := writeClick(r.store, r.timeout, click); err != nil {
			r.failed.Add(1)
			r.logger.Warn("click recording failed",
				"url_id", click.URLID.String(),
				"error", err.Error(),
			)
			continue
		}
		r.recorded.Add(1)
	}
}

// detachedRecorder writes every click on its own goroutine. It has no
// backpressure and is the fallback when no Recorder is configured.
type detachedRecorder struct {
	store   ClickStore
	logger  *slog.Logger
	timeout time.Duration
}

// NewDetachedRecorder returns a ClickRecorder that spawns one goroutine per click.
func NewDetachedRecorder(store ClickStore, logger *slog.Logger, timeout time.Duration) ClickRecorder {
	if logger == nil {
		logger = slog.Default()
	}
	if timeout <= 0 {
		timeout = DefaultWriteTimeout
	}
	return &detachedRecorder{store: store, logger: logger, timeout: timeout}
}

func (d *detachedRecorder) Record(click NewClick) {
	go func() {
		if err := writeClick(d.store, d.timeout, click); err != nil {
			d.logger.Warn("click recording failed",
				"url_id", click.URLID.String(),
				"error", err.Error(),
			)
		}
	}()
}

// writeClick runs on a fresh context: the request that produced the click
// has usually finished by the time it is written.
func writeClick(store ClickStore, timeout time.Duration, click NewClick) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	_, err := store.InsertClick(ctx, click)
	return err
}
