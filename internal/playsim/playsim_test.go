package playsim

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/reelrank/internal/adapters/http/api"
	service "github.com/okian/reelrank/internal/app"
)

func TestGenerate(t *testing.T) {
	Convey("Given a generator config", t, func() {
		cfg := &Config{Users: 4, Videos: 6, Seed: 42}

		Convey("Then equal seeds produce equal sessions", func() {
			So(Generate(cfg), ShouldResemble, Generate(cfg))
		})

		Convey("Then every session starts each video at position zero", func() {
			for _, s := range Generate(cfg) {
				So(len(s.Watched), ShouldBeGreaterThan, 0)
				So(len(s.Watched), ShouldBeLessThanOrEqualTo, cfg.Videos)
				So(s.Samples[0].PositionMS, ShouldEqual, 0)
				for _, sample := range s.Samples {
					So(s.Watched[sample.VideoID], ShouldBeTrue)
					So(sample.UserID, ShouldEqual, s.UserID)
					So(sample.PositionMS, ShouldBeLessThanOrEqualTo, sample.DurationMS)
				}
			}
		})
	})
}

func TestCheckFeed(t *testing.T) {
	Convey("Given the videos a user watched", t, func() {
		watched := map[string]bool{"a": true, "b": true, "c": true}

		Convey("When the feed is in rank order", func() {
			err := CheckFeed([]Row{{"b", 9}, {"a", 4}, {"c", 4}}, watched)
			So(err, ShouldBeNil)
		})

		Convey("When ties are not broken by id", func() {
			err := CheckFeed([]Row{{"b", 9}, {"c", 4}, {"a", 4}}, watched)
			So(errors.Is(err, ErrFeedMismatch), ShouldBeTrue)
		})

		Convey("When scores go up", func() {
			err := CheckFeed([]Row{{"a", 1}, {"b", 2}, {"c", 0}}, watched)
			So(errors.Is(err, ErrFeedMismatch), ShouldBeTrue)
		})

		Convey("When a video repeats", func() {
			err := CheckFeed([]Row{{"a", 3}, {"a", 3}, {"b", 1}}, watched)
			So(errors.Is(err, ErrFeedMismatch), ShouldBeTrue)
		})

		Convey("When a watched video is missing", func() {
			err := CheckFeed([]Row{{"a", 3}}, watched)
			So(errors.Is(err, ErrFeedMismatch), ShouldBeTrue)
		})

		Convey("When an unknown video shows up", func() {
			err := CheckFeed([]Row{{"z", 3}}, watched)
			So(errors.Is(err, ErrFeedMismatch), ShouldBeTrue)
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running service behind the HTTP API", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithFlushInterval(20 * time.Millisecond))
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		cfg := &Config{BaseURL: srv.URL, Users: 6, Videos: 8, Workers: 3, PageSize: 3, Timeout: 5 * time.Second, Seed: 7}

		Convey("When the simulation runs", func() {
			stats, err := Run(ctx, cfg)

			Convey("Then every feed matches the sessions", func() {
				So(err, ShouldBeNil)
				So(stats.Sessions, ShouldEqual, int64(cfg.Users))
				So(stats.SamplesFailed, ShouldEqual, int64(0))
				So(stats.SamplesQueued, ShouldBeGreaterThan, 0)

				var watched int64
				for _, s := range Generate(cfg) {
					watched += int64(len(s.Watched))
				}
				So(stats.VideosRanked, ShouldEqual, watched)
				So(stats.PagesFetched, ShouldBeGreaterThanOrEqualTo, int64(cfg.Users))
			})
		})
	})

	Convey("Given no service", t, func() {
		_, err := Run(context.Background(), &Config{BaseURL: "http://127.0.0.1:1", Timeout: time.Second})
		So(err, ShouldNotBeNil)
	})
}
