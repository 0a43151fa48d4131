package queue

import (
	"context"
	"testing"

	"github.com/okian/reelrank/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

func TestInMemoryQueue(t *testing.T) {
	ctx := context.Background()

	Convey("Given a queue with capacity 2", t, func() {
		q := NewInMemoryQueue(WithCapacity(2))

		Convey("When it is empty", func() {
			So(q.Len(ctx), ShouldEqual, 0)
			So(q.Drain(ctx), ShouldBeNil)
		})

		Convey("When enqueuing past capacity", func() {
			So(q.Enqueue(ctx, model.PendingUpdate{VideoID: "a"}), ShouldBeTrue)
			So(q.Enqueue(ctx, model.PendingUpdate{VideoID: "b"}), ShouldBeTrue)
			So(q.Enqueue(ctx, model.PendingUpdate{VideoID: "c"}), ShouldBeFalse)

			Convey("Then drain returns the accepted updates in order and empties the queue", func() {
				out := q.Drain(ctx)
				So(len(out), ShouldEqual, 2)
				So(out[0].VideoID, ShouldEqual, "a")
				So(out[1].VideoID, ShouldEqual, "b")
				So(q.Len(ctx), ShouldEqual, 0)
			})

			Convey("Then requeue bypasses the capacity bound", func() {
				So(q.Requeue(ctx, model.PendingUpdate{VideoID: "retry", Attempt: 1}), ShouldBeTrue)
				So(q.Len(ctx), ShouldEqual, 3)
			})
		})

		Convey("When the drained slice is mutated", func() {
			q.Enqueue(ctx, model.PendingUpdate{VideoID: "a"})
			out := q.Drain(ctx)
			out[0].VideoID = "mutated"
			q.Enqueue(ctx, model.PendingUpdate{VideoID: "b"})

			Convey("Then the queue does not alias it", func() {
				So(q.Drain(ctx)[0].VideoID, ShouldEqual, "b")
			})
		})

		Convey("When closed", func() {
			q.Enqueue(ctx, model.PendingUpdate{VideoID: "a"})
			So(q.Close(), ShouldBeNil)

			Convey("Then new updates are refused but the backlog is still drainable", func() {
				So(q.IsClosed(), ShouldBeTrue)
				So(q.Enqueue(ctx, model.PendingUpdate{VideoID: "b"}), ShouldBeFalse)
				So(q.Requeue(ctx, model.PendingUpdate{VideoID: "c"}), ShouldBeFalse)
				So(len(q.Drain(ctx)), ShouldEqual, 1)
			})
		})
	})
}
