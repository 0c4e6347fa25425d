// Package scheduler runs recurring tasks that never overlap themselves.
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Task is one run of a recurring job.
type Task func(ctx context.Context)

// Recurring fires Task every Interval. A tick that arrives while the previous
// run is still in flight is skipped.
type Recurring struct {
	name     string
	interval time.Duration
	timeout  time.Duration
	task     Task
	onSkip   func()
	logger   *zap.Logger

	running atomic.Bool
	runs    atomic.Int64
	skipped atomic.Int64

	wg       sync.WaitGroup
	stopOnce sync.Once
	cancel   context.CancelFunc
	done     chan struct{}
}

type Option func(*Recurring)

// WithTimeout bounds every run.
func WithTimeout(d time.Duration) Option {
	return func(r *Recurring) { r.timeout = d }
}

// WithSkipHook is called whenever a tick is skipped.
func WithSkipHook(fn func()) Option {
	return func(r *Recurring) { r.onSkip = fn }
}

func NewRecurring(name string, interval time.Duration, task Task, logger *zap.Logger, opts ...Option) *Recurring {
	r := &Recurring{
		name:     name,
		interval: interval,
		task:     task,
		logger:   logger.Named("scheduler").With(zap.String("task", name)),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start runs the ticker loop until ctx is cancelled or Stop is called.
func (r *Recurring) Start(ctx context.Context) {
	ctx, r.cancel = context.WithCancel(ctx)

	go func() {
		defer close(r.done)
		ticker := time.NewTicker(r.interval)
		defer ticker.Stop()

		r.logger.Info("Recurring task started", zap.Duration("interval", r.interval))
		for {
			select {
			case <-ctx.Done():
				r.wg.Wait()
				r.logger.Info("Recurring task stopped",
					zap.Int64("runs", r.runs.Load()),
					zap.Int64("skipped", r.skipped.Load()))
				return
			case <-ticker.C:
				r.fire(ctx)
			}
		}
	}()
}

func (r *Recurring) fire(ctx context.Context) {
	if !r.running.CompareAndSwap(false, true) {
		r.skipped.Add(1)
		if r.onSkip != nil {
			r.onSkip()
		}
		r.logger.Debug("Previous run still in flight, skipping tick")
		return
	}

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.running.Store(false)

		runCtx := ctx
		if r.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, r.timeout)
			defer cancel()
		}

		defer func() {
			if p := recover(); p != nil {
				r.logger.Error("Recurring task panicked", zap.Any("panic", p))
			}
		}()

		r.runs.Add(1)
		r.task(runCtx)
	}()
}

// Stop cancels the loop and waits for an in-flight run to return.
func (r *Recurring) Stop() {
	if r.cancel == nil {
		return
	}
	r.stopOnce.Do(r.cancel)
	<-r.done
}

// Done is closed once the loop has exited.
func (r *Recurring) Done() <-chan struct{} { return r.done }

func (r *Recurring) Runs() int64    { return r.runs.Load() }
func (r *Recurring) Skipped() int64 { return r.skipped.Load() }
