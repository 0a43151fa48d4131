package broadcast

import (
	"context"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestCodec(t *testing.T) {
	Convey("Given an invalidation message", t, func() {
		at := time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
		data, err := encode(Message{Origin: "o1", UserID: "u1", At: at})
		So(err, ShouldBeNil)

		Convey("Then it decodes to the same message", func() {
			m, err := decode(data)
			So(err, ShouldBeNil)
			So(m.Origin, ShouldEqual, "o1")
			So(m.UserID, ShouldEqual, "u1")
			So(m.At.Equal(at), ShouldBeTrue)
		})
	})

	Convey("Given malformed payloads", t, func() {
		_, err := decode([]byte("not json"))
		So(err, ShouldNotBeNil)
		_, err = decode([]byte(`{"origin":"o"}`))
		So(err, ShouldEqual, ErrEmptyUser)
		_, err = encode(Message{})
		So(err, ShouldEqual, ErrEmptyUser)
	})
}

func TestDispatch(t *testing.T) {
	Convey("Given a broadcaster", t, func() {
		b := NewNATS(nil, "")
		var got []string
		h := func(_ context.Context, userID string) { got = append(got, userID) }

		Convey("When a message from another instance arrives", func() {
			data, _ := encode(Message{Origin: "elsewhere", UserID: "u7"})
			b.dispatch(data, h)
			So(got, ShouldResemble, []string{"u7"})
		})

		Convey("When its own message echoes back", func() {
			data, _ := encode(Message{Origin: b.origin, UserID: "u7"})
			b.dispatch(data, h)
			So(got, ShouldBeEmpty)
		})

		Convey("When garbage arrives", func() {
			b.dispatch([]byte("{"), h)
			So(got, ShouldBeEmpty)
		})

		Convey("Then the default subject is used", func() {
			So(b.subject, ShouldEqual, DefaultSubject)
		})
	})

	Convey("Given the no-op broadcaster", t, func() {
		var b Broadcaster = Nop{}
		So(b.Publish(context.Background(), "u"), ShouldBeNil)
		So(b.Subscribe(func(context.Context, string) {}), ShouldBeNil)
		So(b.Close(), ShouldBeNil)
	})

	Convey("Given an unreachable server", t, func() {
		_, err := Connect(ConnectOptions{URL: "nats://127.0.0.1:1", MaxReconnects: 1, ReconnectWait: time.Millisecond})
		So(err, ShouldNotBeNil)
	})
}
