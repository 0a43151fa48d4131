package retry_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/reelrank/internal/domain/retry"
	. "github.com/smartystreets/goconvey/convey"
)

type sleepRecorder struct {
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.delays = append(r.delays, d)
	return ctx.Err()
}

func failing(k int, err error, calls *int) func(context.Context) (string, error) {
	return func(context.Context) (string, error) {
		*calls++
		if *calls <= k {
			return "", err
		}
		return "ok", nil
	}
}

func TestExecute(t *testing.T) {
	policy := retry.Policy{MaxAttempts: 4, BaseDelay: 100 * time.Millisecond, MaxDelay: 250 * time.Millisecond}

	Convey("Given an operation that fails k < maxAttempts times", t, func() {
		rec := &sleepRecorder{}
		calls := 0
		op := failing(2, retry.Classify(retry.ClassNetwork, errors.New("reset")), &calls)

		v, err := retry.Execute(context.Background(), policy, op, retry.WithSleep(rec.sleep))

		Convey("Then it returns the success value after k+1 calls", func() {
			So(err, ShouldBeNil)
			So(v, ShouldEqual, "ok")
			So(calls, ShouldEqual, 3)
		})

		Convey("Then the backoff doubles from the base delay", func() {
			So(rec.delays, ShouldResemble, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond})
		})
	})

	Convey("Given an operation that always fails with QuotaExceeded", t, func() {
		rec := &sleepRecorder{}
		calls := 0
		cause := errors.New("insufficient quota")
		op := failing(100, retry.Classify(retry.ClassQuotaExceeded, cause), &calls)

		_, err := retry.Execute(context.Background(), policy, op, retry.WithSleep(rec.sleep))

		Convey("Then it aborts after exactly one attempt", func() {
			So(calls, ShouldEqual, 1)
			So(rec.delays, ShouldBeEmpty)
			var fatal *retry.FatalError
			So(errors.As(err, &fatal), ShouldBeTrue)
			So(fatal.Class, ShouldEqual, retry.ClassQuotaExceeded)
			So(errors.Is(err, cause), ShouldBeTrue)
			So(retry.KindOf(err), ShouldEqual, retry.KindFatalRequest)
		})
	})

	Convey("Given auth and bad request failures", t, func() {
		for _, class := range []retry.Class{retry.ClassAuth, retry.ClassBadRequest} {
			calls := 0
			_, err := retry.Execute(context.Background(), policy,
				failing(100, retry.Classify(class, errors.New("nope")), &calls),
				retry.WithSleep((&sleepRecorder{}).sleep))
			So(calls, ShouldEqual, 1)
			So(retry.KindOf(err), ShouldEqual, retry.KindFatalRequest)
		}
	})

	Convey("Given an operation that never succeeds", t, func() {
		rec := &sleepRecorder{}
		calls := 0
		last := errors.New("upstream 503")
		op := failing(100, last, &calls)

		_, err := retry.Execute(context.Background(), policy, op, retry.WithSleep(rec.sleep))

		Convey("Then it stops at maxAttempts and surfaces the original last error", func() {
			So(calls, ShouldEqual, 4)
			var exhausted *retry.ExhaustedRetriesError
			So(errors.As(err, &exhausted), ShouldBeTrue)
			So(exhausted.Attempts, ShouldEqual, 4)
			So(exhausted.LastClass, ShouldEqual, retry.ClassUnknown)
			So(errors.Is(err, last), ShouldBeTrue)
			So(err.Error(), ShouldContainSubstring, "upstream 503")
			So(retry.KindOf(err), ShouldEqual, retry.KindExhaustedRetries)
		})

		Convey("Then the delays are capped at MaxDelay", func() {
			So(rec.delays, ShouldResemble, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 250 * time.Millisecond})
		})
	})

	Convey("Given a rate limited operation", t, func() {
		rec := &sleepRecorder{}

		Convey("When the server provides Retry-After", func() {
			calls := 0
			op := failing(1, retry.RateLimited(errors.New("429"), 7*time.Second), &calls)
			_, err := retry.Execute(context.Background(), policy, op, retry.WithSleep(rec.sleep))

			Convey("Then the wait honours it", func() {
				So(err, ShouldBeNil)
				So(rec.delays, ShouldResemble, []time.Duration{7 * time.Second})
			})
		})

		Convey("When no Retry-After is provided", func() {
			calls := 0
			op := failing(2, retry.RateLimited(errors.New("429"), 0), &calls)
			_, err := retry.Execute(context.Background(), policy, op, retry.WithSleep(rec.sleep))

			Convey("Then exponential backoff applies", func() {
				So(err, ShouldBeNil)
				So(rec.delays, ShouldResemble, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond})
			})
		})
	})

	Convey("Given a payload too large failure", t, func() {
		tooLarge := retry.Classify(retry.ClassPayloadTooLarge, errors.New("context length"))

		Convey("When no shrink hook is registered", func() {
			calls := 0
			_, err := retry.Execute(context.Background(), policy, failing(100, tooLarge, &calls),
				retry.WithSleep((&sleepRecorder{}).sleep))

			Convey("Then it aborts", func() {
				So(calls, ShouldEqual, 1)
				var fatal *retry.FatalError
				So(errors.As(err, &fatal), ShouldBeTrue)
				So(fatal.Class, ShouldEqual, retry.ClassPayloadTooLarge)
			})
		})

		Convey("When the shrink hook makes progress", func() {
			calls, shrinks := 0, 0
			shrink := func() bool { shrinks++; return true }
			v, err := retry.Execute(context.Background(), policy, failing(1, tooLarge, &calls),
				retry.WithShrink(shrink), retry.WithSleep((&sleepRecorder{}).sleep))

			Convey("Then it retries with the shrunk input", func() {
				So(err, ShouldBeNil)
				So(v, ShouldEqual, "ok")
				So(shrinks, ShouldEqual, 1)
				So(calls, ShouldEqual, 2)
			})
		})

		Convey("When the input is already minimal", func() {
			calls := 0
			_, err := retry.Execute(context.Background(), policy, failing(100, tooLarge, &calls),
				retry.WithShrink(func() bool { return false }), retry.WithSleep((&sleepRecorder{}).sleep))

			Convey("Then it aborts", func() {
				So(calls, ShouldEqual, 1)
				So(retry.KindOf(err), ShouldEqual, retry.KindFatalRequest)
			})
		})
	})

	Convey("Given a context cancelled during backoff", t, func() {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		op := func(context.Context) (int, error) {
			calls++
			cancel()
			return 0, errors.New("flaky")
		}
		_, err := retry.Execute(ctx, policy, op, retry.WithSleep(func(ctx context.Context, _ time.Duration) error {
			return ctx.Err()
		}))

		Convey("Then the in-flight attempt completes and the loop stops at the boundary", func() {
			So(calls, ShouldEqual, 1)
			So(errors.Is(err, retry.ErrAborted), ShouldBeTrue)
			So(errors.Is(err, context.Canceled), ShouldBeTrue)
		})
	})

	Convey("Given hooks", t, func() {
		var retried, failed []retry.Attempt
		calls := 0
		_, _ = retry.Execute(context.Background(), retry.Policy{MaxAttempts: 2}, failing(100, errors.New("x"), &calls),
			retry.WithSleep((&sleepRecorder{}).sleep),
			retry.WithOnRetry(func(a retry.Attempt) { retried = append(retried, a) }),
			retry.WithOnFailure(func(a retry.Attempt) { failed = append(failed, a) }))

		So(len(retried), ShouldEqual, 1)
		So(len(failed), ShouldEqual, 2)
		So(failed[1].Number, ShouldEqual, 2)
	})
}

func TestBackoff(t *testing.T) {
	Convey("Given a policy", t, func() {
		p := retry.Policy{MaxAttempts: 10, BaseDelay: time.Second, MaxDelay: 5 * time.Second}
		So(p.Backoff(0), ShouldEqual, time.Second)
		So(p.Backoff(1), ShouldEqual, time.Second)
		So(p.Backoff(2), ShouldEqual, 2*time.Second)
		So(p.Backoff(3), ShouldEqual, 4*time.Second)
		So(p.Backoff(4), ShouldEqual, 5*time.Second)
		So(p.Backoff(60), ShouldEqual, 5*time.Second)
		So(retry.DefaultPolicy().MaxAttempts, ShouldEqual, 3)
	})
}

func TestDefaultClassifier(t *testing.T) {
	Convey("Given raw errors", t, func() {
		So(retry.DefaultClassifier(context.DeadlineExceeded).Class, ShouldEqual, retry.ClassNetwork)
		So(retry.DefaultClassifier(errors.New("?")).Class, ShouldEqual, retry.ClassUnknown)
		f := retry.DefaultClassifier(retry.RateLimited(errors.New("slow down"), 3*time.Second))
		So(f.Class, ShouldEqual, retry.ClassRateLimited)
		So(f.RetryAfter, ShouldEqual, 3*time.Second)
		So(retry.ClassNetwork.Kind(), ShouldEqual, retry.KindTransientIO)
		So(retry.ClassAuth.String(), ShouldEqual, "auth_error")
	})
}
