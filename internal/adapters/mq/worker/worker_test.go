package worker_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	worker "github.com/okian/reelrank/internal/adapters/mq/worker"
	"github.com/smartystreets/goconvey/convey"
)

type mockFlusher struct {
	flushes atomic.Int32
	err     error
}

func (m *mockFlusher) Flush(context.Context) error {
	m.flushes.Add(1)
	return m.err
}

type mockSession struct {
	mockFlusher
	mu     sync.Mutex
	closed int
}

func (m *mockSession) Close(context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed++
	return nil
}

func TestTicker(t *testing.T) {
	convey.Convey("Given a ticker with a short interval", t, func() {
		f := &mockFlusher{}
		tk := worker.NewTicker(f, worker.WithInterval(5*time.Millisecond), worker.WithName("test"))
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		convey.Convey("When it runs for a while", func() {
			go tk.Run(ctx)
			time.Sleep(60 * time.Millisecond)

			convey.Convey("Then it flushes repeatedly and once more on shutdown", func() {
				convey.So(f.flushes.Load(), convey.ShouldBeGreaterThanOrEqualTo, 2)
				convey.So(tk.Shutdown(context.Background()), convey.ShouldBeNil)
				after := f.flushes.Load()
				time.Sleep(20 * time.Millisecond)
				convey.So(f.flushes.Load(), convey.ShouldEqual, after)
			})
		})

		convey.Convey("When shut down before it ever ran", func() {
			convey.So(tk.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then the final flush still happens", func() {
				convey.So(f.flushes.Load(), convey.ShouldEqual, 1)
			})
		})

		convey.Convey("When flushes fail", func() {
			f.err = errors.New("store down")
			go tk.Run(ctx)
			time.Sleep(20 * time.Millisecond)

			convey.Convey("Then the loop keeps ticking and the final error is returned", func() {
				convey.So(f.flushes.Load(), convey.ShouldBeGreaterThanOrEqualTo, 1)
				convey.So(tk.Shutdown(context.Background()), convey.ShouldEqual, f.err)
			})
		})
	})

	convey.Convey("Given a flusher that owns its final flush", t, func() {
		s := &mockSession{}
		tk := worker.NewTicker(s, worker.WithInterval(time.Hour))

		convey.Convey("When the ticker shuts down", func() {
			convey.So(tk.Shutdown(context.Background()), convey.ShouldBeNil)

			convey.Convey("Then Close is called instead of Flush", func() {
				convey.So(s.closed, convey.ShouldEqual, 1)
				convey.So(s.flushes.Load(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestPool(t *testing.T) {
	convey.Convey("Given a pool", t, func() {
		ctx := context.Background()
		pool := worker.NewPool(ctx, worker.WithInterval(5*time.Millisecond))
		a, b := &mockSession{}, &mockSession{}
		convey.So(pool.Add("a", a), convey.ShouldBeNil)
		convey.So(pool.Add("b", b), convey.ShouldBeNil)

		convey.Convey("When a duplicate id is added", func() {
			err := pool.Add("a", &mockSession{})
			convey.So(errors.Is(err, worker.ErrDuplicate), convey.ShouldBeTrue)
			convey.So(pool.Len(), convey.ShouldEqual, 2)
		})

		convey.Convey("When looking up a flusher", func() {
			got, ok := pool.Get("a")
			convey.So(ok, convey.ShouldBeTrue)
			convey.So(got, convey.ShouldEqual, a)
			_, ok = pool.Get("zzz")
			convey.So(ok, convey.ShouldBeFalse)
		})

		convey.Convey("When one flusher is removed", func() {
			time.Sleep(30 * time.Millisecond)
			convey.So(pool.Remove(ctx, "a"), convey.ShouldBeNil)

			convey.Convey("Then it was ticked and closed exactly once", func() {
				convey.So(a.flushes.Load(), convey.ShouldBeGreaterThanOrEqualTo, 1)
				convey.So(a.closed, convey.ShouldEqual, 1)
				convey.So(pool.Len(), convey.ShouldEqual, 1)
				convey.So(errors.Is(pool.Remove(ctx, "a"), worker.ErrNotFound), convey.ShouldBeTrue)
			})
		})

		convey.Convey("When the pool shuts down", func() {
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then every flusher is closed and new ones are refused", func() {
				convey.So(a.closed, convey.ShouldEqual, 1)
				convey.So(b.closed, convey.ShouldEqual, 1)
				convey.So(pool.Len(), convey.ShouldEqual, 0)
				convey.So(errors.Is(pool.Add("c", &mockSession{}), worker.ErrPoolClosed), convey.ShouldBeTrue)
			})
		})
	})
}

type slowSession struct {
	delay    time.Duration
	closed   atomic.Int32
	closeErr atomic.Value
}

func (s *slowSession) Flush(context.Context) error {
	time.Sleep(s.delay)
	return nil
}

func (s *slowSession) Close(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		s.closeErr.Store(err)
	}
	s.closed.Add(1)
	return nil
}

type idleSession struct {
	mockSession
	since time.Time
	quiet bool
}

func (s *idleSession) IdleSince(context.Context) (time.Time, bool) { return s.since, s.quiet }

func waitFor(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(5 * time.Millisecond)
	}
	return cond()
}

func TestTicker_FinalFlush(t *testing.T) {
	convey.Convey("Given a ticker shut down with a canceled context", t, func() {
		s := &slowSession{}
		tk := worker.NewTicker(s, worker.WithInterval(time.Hour))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		convey.Convey("Then the final close still gets a live context", func() {
			convey.So(tk.Shutdown(ctx), convey.ShouldBeNil)
			convey.So(s.closed.Load(), convey.ShouldEqual, 1)
			convey.So(s.closeErr.Load(), convey.ShouldBeNil)
		})
	})

	convey.Convey("Given a pool whose flush outlasts the remove deadline", t, func() {
		pool := worker.NewPool(context.Background(), worker.WithInterval(10*time.Millisecond))
		s := &slowSession{delay: 200 * time.Millisecond}
		convey.So(pool.Add("slow", s), convey.ShouldBeNil)
		time.Sleep(30 * time.Millisecond)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		err := pool.Remove(ctx, "slow")

		convey.Convey("Then remove reports the timeout but the session is still closed once the tick ends", func() {
			convey.So(errors.Is(err, context.DeadlineExceeded), convey.ShouldBeTrue)
			convey.So(waitFor(func() bool { return s.closed.Load() == 1 }), convey.ShouldBeTrue)
			convey.So(s.closeErr.Load(), convey.ShouldBeNil)
			convey.So(pool.Len(), convey.ShouldEqual, 0)
		})
	})

	convey.Convey("Given a pool with one slow and one quick flusher", t, func() {
		pool := worker.NewPool(context.Background(), worker.WithInterval(5*time.Millisecond))
		slow := &slowSession{delay: 100 * time.Millisecond}
		quick := &slowSession{}
		convey.So(pool.Add("slow", slow), convey.ShouldBeNil)
		convey.So(pool.Add("quick", quick), convey.ShouldBeNil)
		time.Sleep(20 * time.Millisecond)

		convey.Convey("When the pool shuts down under a short deadline", func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
			defer cancel()
			convey.So(pool.Shutdown(ctx), convey.ShouldBeNil)

			convey.Convey("Then each flusher is closed on its own budget", func() {
				convey.So(slow.closed.Load(), convey.ShouldEqual, 1)
				convey.So(quick.closed.Load(), convey.ShouldEqual, 1)
				convey.So(pool.Len(), convey.ShouldEqual, 0)
			})
		})
	})
}

func TestPool_IdleExpiry(t *testing.T) {
	convey.Convey("Given a pool with an idle timeout", t, func() {
		pool := worker.NewPool(context.Background(),
			worker.WithInterval(5*time.Millisecond), worker.WithIdleTimeout(20*time.Millisecond))
		idle := &idleSession{since: time.Now().Add(-time.Hour), quiet: true}
		busy := &idleSession{since: time.Now().Add(-time.Hour), quiet: false}
		convey.So(pool.Add("idle", idle), convey.ShouldBeNil)
		convey.So(pool.Add("busy", busy), convey.ShouldBeNil)

		convey.Convey("Then the quiet flusher is closed and dropped", func() {
			convey.So(waitFor(func() bool {
				_, ok := pool.Get("idle")
				return !ok
			}), convey.ShouldBeTrue)
			convey.So(waitFor(func() bool {
				idle.mu.Lock()
				defer idle.mu.Unlock()
				return idle.closed == 1
			}), convey.ShouldBeTrue)

			convey.Convey("And the one with buffered work keeps running", func() {
				_, ok := pool.Get("busy")
				convey.So(ok, convey.ShouldBeTrue)
				convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
				convey.So(busy.closed, convey.ShouldEqual, 1)
			})
		})
	})

	convey.Convey("Given a pool without an idle timeout", t, func() {
		pool := worker.NewPool(context.Background(), worker.WithInterval(5*time.Millisecond))
		s := &idleSession{since: time.Now().Add(-time.Hour), quiet: true}
		convey.So(pool.Add("s", s), convey.ShouldBeNil)
		time.Sleep(40 * time.Millisecond)

		convey.So(pool.Len(), convey.ShouldEqual, 1)
		convey.So(pool.Shutdown(context.Background()), convey.ShouldBeNil)
	})
}
