package types_test

import (
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/reelrank/internal/domain/model"
	"github.com/okian/reelrank/internal/domain/types"
)

func TestPlaybackStatus(t *testing.T) {
	convey.Convey("Given playback reports", t, func() {
		convey.Convey("When the report is complete", func() {
			st, err := types.Playback{
				UserID: "u1", VideoID: "v1", Loaded: true, Playing: true,
				PositionMS: 6000, DurationMS: 20000, TS: "2024-03-01T10:00:00Z",
			}.Status()

			convey.So(err, convey.ShouldBeNil)
			convey.So(st.VideoID, convey.ShouldEqual, "v1")
			convey.So(st.PositionMS, convey.ShouldEqual, 6000)
			convey.So(st.At.Equal(time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)), convey.ShouldBeTrue)
		})

		convey.Convey("When the timestamp is omitted", func() {
			st, err := types.Playback{UserID: "u1", VideoID: "v1"}.Status()
			convey.So(err, convey.ShouldBeNil)
			convey.So(st.At.IsZero(), convey.ShouldBeTrue)
		})

		convey.Convey("When fields are missing or malformed", func() {
			_, err := types.Playback{VideoID: "v1"}.Status()
			convey.So(err, convey.ShouldEqual, types.ErrMissingUser)
			_, err = types.Playback{UserID: "u1"}.Status()
			convey.So(err, convey.ShouldEqual, types.ErrMissingVideo)
			_, err = types.Playback{UserID: "u1", VideoID: "v1", TS: "yesterday"}.Status()
			convey.So(err, convey.ShouldEqual, types.ErrInvalidTS)
		})
	})
}

func TestFeedbackValidate(t *testing.T) {
	convey.Convey("Given feedback requests", t, func() {
		ok := types.Feedback{RequestID: "r1", UserID: "u1", VideoID: "v1", Kind: "not_for_me"}
		convey.So(ok.Validate(), convey.ShouldBeNil)

		bad := ok
		bad.Kind = "meh"
		convey.So(bad.Validate(), convey.ShouldEqual, types.ErrInvalidKind)

		bad = ok
		bad.RequestID = " "
		convey.So(bad.Validate(), convey.ShouldEqual, types.ErrMissingReqID)
	})
}

func TestVideos(t *testing.T) {
	convey.Convey("Given ranked rows", t, func() {
		out := types.Videos([]model.RankedVideo{{VideoID: "v1", TotalScore: 3, EngagementScore: 4, ContentSimilarityScore: 0.5}})
		convey.So(out, convey.ShouldResemble, []types.Video{{VideoID: "v1", TotalScore: 3, EngagementScore: 4, ContentSimilarityScore: 0.5}})
		convey.So(types.Videos(nil), convey.ShouldNotBeNil)
		convey.So(types.Videos(nil), convey.ShouldBeEmpty)
	})
}
