// Package batch runs bounded-concurrency work over item collections with
// per-item timeouts and retry.
package batch

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrAborted marks items never dispatched because an earlier item failed
// and ContinueOnError was off.
var ErrAborted = errors.New("batch aborted after earlier item failure")

const (
	// DefaultConcurrency bounds simultaneous in-flight items.
	DefaultConcurrency = 3
	// DefaultItemTimeout bounds one attempt on one item.
	DefaultItemTimeout = 5 * time.Minute
	// DefaultMaxRetries is the number of attempts per item.
	DefaultMaxRetries = 3
	// DefaultRetryDelay is the fixed pause between attempts.
	DefaultRetryDelay = time.Second
	// DefaultMemoryWatermark is the heap size that triggers a collection
	// and cooldown before the next item is dispatched.
	DefaultMemoryWatermark = 1 << 30

	memoryCooldown = 2 * time.Second
)

// Options tunes a batch run.
type Options struct {
	Concurrency int
	ItemTimeout time.Duration
	MaxRetries  int
	RetryDelay  time.Duration
	// ContinueOnError keeps dispatching after item failures. When off,
	// no new items start once any item has exhausted its retries;
	// in-flight items still finish.
	ContinueOnError bool
	// MemoryWatermark is the heap-bytes threshold checked between
	// dispatches (default 1 GiB).
	MemoryWatermark uint64
}

func (o Options) withDefaults() Options {
	if o.Concurrency <= 0 {
		o.Concurrency = DefaultConcurrency
	}
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = DefaultItemTimeout
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = DefaultRetryDelay
	}
	if o.MemoryWatermark == 0 {
		o.MemoryWatermark = DefaultMemoryWatermark
	}
	return o
}

// ItemResult records the outcome of one item across all its attempts.
type ItemResult[T any] struct {
	Item     T
	Index    int
	Attempts int
	Duration time.Duration
	Err      error
}

// Report aggregates a completed run.
type Report[T any] struct {
	Results   []ItemResult[T]
	Succeeded int
	Failed    int
	Elapsed   time.Duration
}

// WorkFunc processes one item. The passed context carries the per-attempt
// timeout.
type WorkFunc[T any] func(ctx context.Context, item T) error

// Processor fans items out to a bounded worker set.
type Processor[T any] struct {
	opts     Options
	progress *Progress
	log      *slog.Logger
}

// New builds a processor. A nil logger falls back to slog.Default.
func New[T any](opts Options, log *slog.Logger) *Processor[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Processor[T]{
		opts:     opts.withDefaults(),
		progress: NewProgress(),
		log:      log,
	}
}

// Progress exposes the live progress tracker for this processor.
func (p *Processor[T]) Progress() *Progress {
	return p.progress
}

// Run processes every item and returns a report indexed like the input.
// Item failures are collected, not propagated, unless ContinueOnError is
// off; context cancellation always aborts the run early.
func (p *Processor[T]) Run(ctx context.Context, items []T, fn WorkFunc[T]) (*Report[T], error) {
	start := time.Now()
	report := &Report[T]{Results: make([]ItemResult[T], len(items))}
	p.progress.begin(len(items))

	var failed atomic.Bool
	sem := semaphore.NewWeighted(int64(p.opts.Concurrency))
	for i, item := range items {
		if i > 0 {
			p.relieveMemoryPressure(ctx)
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			p.markSkipped(report, items, i, ctx.Err())
			break
		}
		if !p.opts.ContinueOnError && failed.Load() {
			sem.Release(1)
			p.markSkipped(report, items, i, ErrAborted)
			break
		}
		go func(idx int, it T) {
			defer sem.Release(1)
			report.Results[idx] = p.processOne(ctx, idx, it, fn)
			if report.Results[idx].Err != nil {
				failed.Store(true)
				p.progress.itemFailed()
			} else {
				p.progress.itemDone()
			}
		}(i, item)
	}

	// Draining the full weight waits for all in-flight workers.
	if err := sem.Acquire(context.Background(), int64(p.opts.Concurrency)); err == nil {
		sem.Release(int64(p.opts.Concurrency))
	}

	for _, r := range report.Results {
		if r.Err != nil {
			report.Failed++
		} else {
			report.Succeeded++
		}
	}
	report.Elapsed = time.Since(start)
	p.progress.finish()
	return report, ctx.Err()
}

// processOne drives the retry loop for a single item.
func (p *Processor[T]) processOne(ctx context.Context, idx int, item T, fn WorkFunc[T]) ItemResult[T] {
	result := ItemResult[T]{Item: item, Index: idx}
	start := time.Now()

	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		result.Attempts = attempt

		attemptCtx, cancel := context.WithTimeout(ctx, p.opts.ItemTimeout)
		err := fn(attemptCtx, item)
		cancel()

		if err == nil {
			result.Err = nil
			break
		}
		result.Err = err
		p.log.Warn("batch item attempt failed",
			"index", idx,
			"attempt", attempt,
			"max_attempts", p.opts.MaxRetries,
			"error", err.Error())

		if ctx.Err() != nil || attempt == p.opts.MaxRetries {
			break
		}
		select {
		case <-time.After(p.opts.RetryDelay):
		case <-ctx.Done():
			result.Err = ctx.Err()
			attempt = p.opts.MaxRetries
		}
	}

	result.Duration = time.Since(start)
	return result
}

// relieveMemoryPressure forces a collection and short cooldown when the
// heap crosses the watermark, keeping large media batches from piling up.
func (p *Processor[T]) relieveMemoryPressure(ctx context.Context) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	if m.HeapAlloc < p.opts.MemoryWatermark {
		return
	}
	p.log.Info("heap over watermark, collecting before next item",
		"heap_bytes", m.HeapAlloc,
		"watermark_bytes", p.opts.MemoryWatermark)
	runtime.GC()
	select {
	case <-time.After(memoryCooldown):
	case <-ctx.Done():
	}
}

// markSkipped fills results for items never dispatched after cancellation.
func (p *Processor[T]) markSkipped(report *Report[T], items []T, from int, err error) {
	for i := from; i < len(items); i++ {
		report.Results[i] = ItemResult[T]{Item: items[i], Index: i, Err: err}
		p.progress.itemFailed()
	}
}
