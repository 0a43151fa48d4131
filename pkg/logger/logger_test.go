package logger

import (
	"bytes"
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLogger(t *testing.T) {
	Convey("Given a logger writing JSON to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWriter(&buf, FormatJSON), ShouldBeNil)
		So(SetLevelString("info"), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging at info with fields", func() {
			Named("aggregator").Info(ctx, "flushed", String("user", "u1"), Int("updates", 3), Error(errors.New("boom")))

			Convey("Then the record carries the message, fields, component and source", func() {
				out := buf.String()
				So(out, ShouldContainSubstring, `"msg":"flushed"`)
				So(out, ShouldContainSubstring, `"user":"u1"`)
				So(out, ShouldContainSubstring, `"updates":3`)
				So(out, ShouldContainSubstring, `"component":"aggregator"`)
				So(out, ShouldContainSubstring, "logger_test.go")
			})
		})

		Convey("When logging below the configured level", func() {
			Get().Debug(ctx, "hidden")

			Convey("Then nothing is written", func() {
				So(buf.Len(), ShouldEqual, 0)
			})
		})

		Convey("When the level is lowered to debug", func() {
			So(SetLevelString("DEBUG"), ShouldBeNil)
			Get().Debug(ctx, "visible")
			So(buf.String(), ShouldContainSubstring, "visible")
			So(SetLevelString("info"), ShouldBeNil)
		})
	})

	Convey("Given invalid settings", t, func() {
		So(SetLevelString("loud"), ShouldNotBeNil)
		So(InitWriter(&bytes.Buffer{}, Format("xml")), ShouldNotBeNil)
	})

	Convey("Given the nop logger", t, func() {
		So(func() { Nop().Named("x").Error(context.Background(), "dropped") }, ShouldNotPanic)
		So(Sync(), ShouldBeNil)
	})
}
