package feedview_test

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/reelrank/internal/app/feedview"
	"github.com/okian/reelrank/internal/domain/feed"
	"github.com/okian/reelrank/internal/domain/model"
)

type fakePager struct {
	pages       map[string]feed.Page // keyed by cursor
	calls       []string
	pageErr     error
	feedbackErr error
	onGet       func()
	onFeedback  func()
}

func (f *fakePager) GetPage(_ context.Context, _, cursor string) (feed.Page, error) {
	f.calls = append(f.calls, cursor)
	if f.onGet != nil {
		f.onGet()
	}
	if f.pageErr != nil {
		return feed.Page{}, f.pageErr
	}
	return f.pages[cursor], nil
}

func (f *fakePager) Feedback(_ context.Context, userID, videoID string, kind model.FeedbackKind) (model.Feedback, error) {
	if f.onFeedback != nil {
		f.onFeedback()
	}
	if f.feedbackErr != nil {
		return model.Feedback{}, f.feedbackErr
	}
	return model.Feedback{ID: "f1", UserID: userID, VideoID: videoID, Kind: kind}, nil
}

func vids(ids ...string) []model.RankedVideo {
	out := make([]model.RankedVideo, 0, len(ids))
	for _, id := range ids {
		out = append(out, model.RankedVideo{VideoID: id})
	}
	return out
}

func ids(st feedview.State) []string {
	out := make([]string, 0, len(st.Videos))
	for _, v := range st.Videos {
		out = append(out, v.VideoID)
	}
	return out
}

func newPager() *fakePager {
	return &fakePager{pages: map[string]feed.Page{
		"":   {Videos: vids("a", "b"), HasMore: true, NextCursor: "c1"},
		"c1": {Videos: vids("c"), HasMore: false},
	}}
}

func TestLoading(t *testing.T) {
	Convey("Given a view over a two page feed", t, func() {
		ctx := context.Background()
		pager := newPager()
		view := feedview.New(pager)

		Convey("When the current state is requested first", func() {
			st, err := view.Current(ctx, "u")

			Convey("Then the top page is fetched", func() {
				So(err, ShouldBeNil)
				So(ids(st), ShouldResemble, []string{"a", "b"})
				So(st.HasMore, ShouldBeTrue)
				So(st.Loading, ShouldBeFalse)
				So(st.Loaded, ShouldBeTrue)
			})

			Convey("Then a second call is served from the cache", func() {
				_, _ = view.Current(ctx, "u")
				So(pager.calls, ShouldResemble, []string{""})
			})
		})

		Convey("When more pages are loaded", func() {
			_, _ = view.Refresh(ctx, "u")
			st, err := view.LoadMore(ctx, "u")
			So(err, ShouldBeNil)
			So(ids(st), ShouldResemble, []string{"a", "b", "c"})
			So(st.HasMore, ShouldBeFalse)

			Convey("Then loading past the end is a no-op", func() {
				st, err := view.LoadMore(ctx, "u")
				So(err, ShouldBeNil)
				So(ids(st), ShouldResemble, []string{"a", "b", "c"})
				So(pager.calls, ShouldResemble, []string{"", "c1"})
			})
		})

		Convey("When LoadMore is called before anything was loaded", func() {
			st, err := view.LoadMore(ctx, "u")
			So(err, ShouldBeNil)
			So(ids(st), ShouldResemble, []string{"a", "b"})
		})

		Convey("When the pager fails", func() {
			pager.pageErr = errors.New("timeout")
			st, err := view.Refresh(ctx, "u")

			Convey("Then the error state is explicit and distinct from an empty feed", func() {
				So(errors.Is(err, pager.pageErr), ShouldBeTrue)
				So(st.Err, ShouldEqual, pager.pageErr)
				So(st.Loading, ShouldBeFalse)
				So(st.Loaded, ShouldBeFalse)
			})

			Convey("Then a later success clears it", func() {
				pager.pageErr = nil
				st, err := view.Refresh(ctx, "u")
				So(err, ShouldBeNil)
				So(st.Err, ShouldBeNil)
			})
		})

		Convey("When the feed is invalidated while a page is in flight", func() {
			pager.onGet = func() { view.Invalidate(ctx, "u") }
			st, err := view.Refresh(ctx, "u")

			Convey("Then the fetched page is discarded", func() {
				So(err, ShouldEqual, feedview.ErrStale)
				So(st.Videos, ShouldBeEmpty)
				So(st.Generation, ShouldEqual, 1)
			})
		})
	})
}

func TestInvalidationAndFeedback(t *testing.T) {
	Convey("Given a loaded view", t, func() {
		ctx := context.Background()
		pager := newPager()
		view := feedview.New(pager)
		_, _ = view.Refresh(ctx, "u")

		Convey("When the user's pages are invalidated", func() {
			view.InvalidateFrom(ctx, "u", feedview.OriginRemote)

			Convey("Then every cached page is dropped and the next read refetches from the top", func() {
				st := view.State("u")
				So(st.Videos, ShouldBeEmpty)
				So(st.Loaded, ShouldBeFalse)
				So(st.Generation, ShouldEqual, 1)
				_, _ = view.Current(ctx, "u")
				So(pager.calls, ShouldResemble, []string{"", ""})
			})
		})

		Convey("When not_for_me is sent", func() {
			var during []string
			pager.onFeedback = func() { during = ids(view.State("u")) }

			Convey("Then the video is hidden optimistically", func() {
				_, err := view.Feedback(ctx, "u", "a", model.FeedbackNotForMe)
				So(err, ShouldBeNil)
				So(during, ShouldResemble, []string{"b"})
			})

			Convey("Then a failed write restores the snapshot", func() {
				pager.feedbackErr = errors.New("denied")
				_, err := view.Feedback(ctx, "u", "a", model.FeedbackNotForMe)
				So(err, ShouldEqual, pager.feedbackErr)
				So(during, ShouldResemble, []string{"b"})
				So(ids(view.State("u")), ShouldResemble, []string{"a", "b"})
			})
		})

		Convey("When more_like_this is sent", func() {
			f, err := view.Feedback(ctx, "u", "b", model.FeedbackMoreLikeThis)
			So(err, ShouldBeNil)
			So(f.Kind, ShouldEqual, model.FeedbackMoreLikeThis)
			So(ids(view.State("u")), ShouldResemble, []string{"a", "b"})
		})
	})
}
