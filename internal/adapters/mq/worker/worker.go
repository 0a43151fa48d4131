// Package worker drives periodic flushes of pending metric updates.
package worker

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/reelrank/pkg/logger"
	"github.com/okian/reelrank/pkg/metrics"
)

// Default worker configuration constants.
const (
	defaultFlushInterval  = 3000 * time.Millisecond
	defaultFinalTimeout   = 10 * time.Second
	sessionShutdownBudget = 30 * time.Second
)

// Flusher drains buffered work into durable storage.
type Flusher interface {
	Flush(ctx context.Context) error
}

// closer is implemented by flushers that own their final flush.
type closer interface {
	Close(ctx context.Context) error
}

// idler is implemented by flushers that can report inactivity. ok is false
// while work is still buffered.
type idler interface {
	IdleSince(ctx context.Context) (since time.Time, ok bool)
}

// Worker is a long-running loop with a graceful stop.
type Worker interface {
	// Run starts the worker loop until ctx is canceled or Shutdown is called.
	Run(ctx context.Context)

	// Shutdown stops the loop and performs one last flush.
	Shutdown(ctx context.Context) error
}

// Ticker calls Flush on a fixed interval.
type Ticker struct {
	flusher      Flusher
	interval     time.Duration
	idleTimeout  time.Duration // 0 never expires
	finalTimeout time.Duration
	name         string

	started  atomic.Bool
	idle     atomic.Bool
	once     sync.Once
	shutdown chan struct{}
	done     chan struct{}

	finalOnce sync.Once
	finalErr  error

	logger logger.Logger
}

// NewTicker creates a ticker for f.
func NewTicker(f Flusher, opts ...Option) *Ticker {
	t := &Ticker{
		flusher:      f,
		interval:     defaultFlushInterval,
		finalTimeout: defaultFinalTimeout,
		name:         "flush",
		shutdown:     make(chan struct{}),
		done:         make(chan struct{}),
		logger:       logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.name != "flush" {
		t.logger = t.logger.Named(t.name)
	}
	return t
}

// Run ticks until ctx is canceled, Shutdown is called or the flusher has
// been idle for the idle timeout.
func (t *Ticker) Run(ctx context.Context) {
	if !t.started.CompareAndSwap(false, true) {
		return
	}
	defer close(t.done)

	tick := time.NewTicker(t.interval)
	defer tick.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.shutdown:
			return
		case <-tick.C:
			t.flush(ctx)
			if t.expired(ctx) {
				t.idle.Store(true)
				return
			}
		}
	}
}

// Idle reports whether Run returned because the flusher went idle.
func (t *Ticker) Idle() bool { return t.idle.Load() }

func (t *Ticker) expired(ctx context.Context) bool {
	if t.idleTimeout <= 0 {
		return false
	}
	i, ok := t.flusher.(idler)
	if !ok {
		return false
	}
	since, ok := i.IdleSince(ctx)
	return ok && time.Since(since) >= t.idleTimeout
}

func (t *Ticker) flush(ctx context.Context) {
	start := time.Now()
	err := t.flusher.Flush(ctx)
	metrics.RecordFlushDuration(float64(time.Since(start).Milliseconds()))
	if err != nil {
		t.logger.Warn(ctx, "flush tick had failures", logger.Error(err))
	}
}

// Shutdown stops the loop and runs the final flush. Flushers with a
// Close(ctx) method are closed instead.
//
// ctx bounds the wait for an in-flight tick only. The final flush runs on a
// context detached from ctx with its own timeout. When the wait times out
// the final flush still runs once the tick returns, and Shutdown reports
// the timeout.
func (t *Ticker) Shutdown(ctx context.Context) error {
	t.once.Do(func() { close(t.shutdown) })

	if t.started.Load() {
		select {
		case <-t.done:
		case <-ctx.Done():
			t.logger.Warn(ctx, "shutdown timed out; final flush deferred until the tick returns")
			go func() {
				<-t.done
				if err := t.final(ctx); err != nil {
					t.logger.Warn(ctx, "deferred final flush failed", logger.Error(err))
				}
			}()
			return fmt.Errorf("shutdown timed out: %w", ctx.Err())
		}
	}
	return t.final(ctx)
}

// final runs the last flush exactly once.
func (t *Ticker) final(ctx context.Context) error {
	t.finalOnce.Do(func() {
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), t.finalTimeout)
		defer cancel()
		if c, ok := t.flusher.(closer); ok {
			t.finalErr = c.Close(fctx)
			return
		}
		t.finalErr = t.flusher.Flush(fctx)
	})
	return t.finalErr
}

// Pool keeps one Ticker per registered flusher.
type Pool struct {
	mu      sync.Mutex
	base    context.Context //nolint:containedctx // parent of every ticker loop
	tickers map[string]*entry
	opts    []Option
	closed  bool

	logger logger.Logger
}

type entry struct {
	flusher Flusher
	ticker  *Ticker
	cancel  context.CancelFunc
}

// NewPool creates a pool; opts are applied to every ticker it starts.
func NewPool(ctx context.Context, opts ...Option) *Pool {
	return &Pool{
		base:    context.WithoutCancel(ctx),
		tickers: make(map[string]*entry),
		opts:    opts,
		logger:  logger.Get().Named("worker-pool"),
	}
}

// Add starts a ticker for f under id. A ticker that goes idle is removed
// and final-flushed by the pool.
func (p *Pool) Add(id string, f Flusher) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrPoolClosed
	}
	if _, ok := p.tickers[id]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicate, id)
	}

	ctx, cancel := context.WithCancel(p.base)
	t := NewTicker(f, append(slices.Clip(p.opts), WithName(id))...)
	e := &entry{flusher: f, ticker: t, cancel: cancel}
	p.tickers[id] = e
	go func() {
		t.Run(ctx)
		if t.Idle() {
			p.expire(id, e)
		}
	}()

	metrics.UpdateActiveSessions(len(p.tickers))
	return nil
}

// expire drops an idle entry unless Remove already took it.
func (p *Pool) expire(id string, e *entry) {
	p.mu.Lock()
	if p.tickers[id] != e {
		p.mu.Unlock()
		return
	}
	delete(p.tickers, id)
	metrics.UpdateActiveSessions(len(p.tickers))
	p.mu.Unlock()

	defer e.cancel()
	metrics.RecordSessionExpired()
	if err := e.ticker.Shutdown(p.base); err != nil {
		p.logger.Warn(p.base, "final flush of idle flusher failed", logger.String("id", id), logger.Error(err))
		return
	}
	p.logger.Debug(p.base, "idle flusher removed", logger.String("id", id))
}

// Get returns the flusher registered under id.
func (p *Pool) Get(id string) (Flusher, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.tickers[id]
	if !ok {
		return nil, false
	}
	return e.flusher, true
}

// Len returns the number of running tickers.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.tickers)
}

// Remove stops the ticker for id and runs its final flush. The final flush
// is not canceled with ctx.
func (p *Pool) Remove(ctx context.Context, id string) error {
	p.mu.Lock()
	e, ok := p.tickers[id]
	if ok {
		delete(p.tickers, id)
		metrics.UpdateActiveSessions(len(p.tickers))
	}
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	defer e.cancel()
	return e.ticker.Shutdown(ctx)
}

// Shutdown stops every ticker, running each final flush. Every flusher gets
// its own budget so one slow flush cannot starve the rest.
func (p *Pool) Shutdown(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	ids := make([]string, 0, len(p.tickers))
	for id := range p.tickers {
		ids = append(ids, id)
	}
	p.mu.Unlock()

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sessionShutdownBudget)
			defer cancel()
			if err := p.Remove(sctx, id); err != nil {
				p.logger.Warn(ctx, "final flush failed", logger.String("id", id), logger.Error(err))
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}(id)
	}
	wg.Wait()
	return errors.Join(errs...)
}
