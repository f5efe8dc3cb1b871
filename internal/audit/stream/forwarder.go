// Package stream forwards activity log entries to an external topic after
// they are stored. Delivery is asynchronous and best effort; the database
// stays the record of truth.
package stream

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"civicdesk/internal/audit"
)

// Sink delivers a batch of entries.
type Sink interface {
	Send(ctx context.Context, entries []audit.Entry) error
}

const (
	defaultBatchSize     = 100
	defaultFlushInterval = time.Second
	shutdownFlushTimeout = 5 * time.Second
)

// Forwarder buffers published entries and drains them to a Sink.
type Forwarder struct {
	buffer        *Queue
	sink          Sink
	logger        *slog.Logger
	batchSize     int
	flushInterval time.Duration
	failed        atomic.Int64
}

type Option func(*Forwarder)

func WithLogger(logger *slog.Logger) Option {
	return func(f *Forwarder) {
		f.logger = logger
	}
}

func WithBatchSize(n int) Option {
	return func(f *Forwarder) {
		if n > 0 {
			f.batchSize = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(f *Forwarder) {
		if d > 0 {
			f.flushInterval = d
		}
	}
}

func NewForwarder(sink Sink, capacity int, opts ...Option) *Forwarder {
	f := &Forwarder{
		buffer:        NewQueue(capacity),
		sink:          sink,
		logger:        slog.Default(),
		batchSize:     defaultBatchSize,
		flushInterval: defaultFlushInterval,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Publish queues an entry. It never blocks.
func (f *Forwarder) Publish(_ context.Context, entry audit.Entry) {
	f.buffer.Push(entry)
}

// Run drains the buffer until ctx is done, then flushes what is left.
func (f *Forwarder) Run(ctx context.Context) error {
	ticker := time.NewTicker(f.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownFlushTimeout)
			f.Flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Flush sends every queued entry in batches. A failed batch is dropped and
// logged.
func (f *Forwarder) Flush(ctx context.Context) {
	for {
		batch := f.buffer.Take(f.batchSize)
		if len(batch) == 0 {
			return
		}
		if err := f.sink.Send(ctx, batch); err != nil {
			f.failed.Add(int64(len(batch)))
			f.logger.ErrorContext(ctx, "failed to forward activity log entries",
				"count", len(batch),
				"error", err,
			)
			return
		}
	}
}

// Pending returns the number of queued entries.
func (f *Forwarder) Pending() int {
	return f.buffer.Len()
}

// Dropped returns entries lost to a full buffer or a failed send.
func (f *Forwarder) Dropped() int64 {
	return f.buffer.Evicted() + f.failed.Load()
}
