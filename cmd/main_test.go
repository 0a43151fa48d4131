package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"testing"
	"time"

	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/reelrank/internal/config"
	"github.com/okian/reelrank/pkg/logger"
)

func TestRemoteConfig(t *testing.T) {
	convey.Convey("Given the default configuration with a key", t, func() {
		cfg := config.New()
		cfg.OpenAIAPIKey = "sk-test"

		rc := remoteConfig(cfg)
		convey.So(rc.APIKey, convey.ShouldEqual, "sk-test")
		convey.So(rc.Timeout, convey.ShouldEqual, 60*time.Second)
		convey.So(rc.BreakerOpen, convey.ShouldEqual, 30*time.Second)
		convey.So(rc.Policy.MaxAttempts, convey.ShouldEqual, 3)
		convey.So(rc.Policy.BaseDelay, convey.ShouldEqual, 500*time.Millisecond)
		convey.So(rc.Policy.MaxDelay, convey.ShouldEqual, 8*time.Second)
		convey.So(rc.EmbeddingDimensions, convey.ShouldEqual, 384)
	})
}

func TestDependencies(t *testing.T) {
	convey.Convey("Given a configuration without external services", t, func() {
		cfg := config.New()
		opts, err := dependencies(context.Background(), cfg, logger.Nop())

		convey.So(err, convey.ShouldBeNil)
		convey.So(opts, convey.ShouldBeEmpty)
	})

	convey.Convey("Given a remote key", t, func() {
		cfg := config.New()
		cfg.OpenAIAPIKey = "sk-test"
		opts, err := dependencies(context.Background(), cfg, logger.Nop())

		convey.So(err, convey.ShouldBeNil)
		convey.So(len(opts), convey.ShouldEqual, 1)
	})

	convey.Convey("Given an unreachable broker", t, func() {
		cfg := config.New()
		cfg.NatsURL = "nats://127.0.0.1:1"
		_, err := dependencies(context.Background(), cfg, logger.Nop())

		convey.So(err, convey.ShouldNotBeNil)
	})

	convey.Convey("Given a malformed database url", t, func() {
		cfg := config.New()
		cfg.DatabaseURL = "::not a dsn::"
		_, err := dependencies(context.Background(), cfg, logger.Nop())

		convey.So(err, convey.ShouldNotBeNil)
	})
}

func TestReleasers(t *testing.T) {
	convey.Convey("Given resources opened in order", t, func() {
		var order []string
		errBroker := errors.New("drain failed")
		opened := releasers{
			func() error { order = append(order, "store"); return nil },
			func() error { order = append(order, "broker"); return errBroker },
		}

		err := opened.release()

		convey.So(order, convey.ShouldResemble, []string{"broker", "store"})
		convey.So(errors.Is(err, errBroker), convey.ShouldBeTrue)
	})

	convey.Convey("Given nothing opened", t, func() {
		var opened releasers
		convey.So(opened.release(), convey.ShouldBeNil)
	})
}

func TestRun(t *testing.T) {
	convey.Convey("Given the process running on a free port", t, func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		convey.So(err, convey.ShouldBeNil)
		addr := ln.Addr().String()
		convey.So(ln.Close(), convey.ShouldBeNil)

		cfg := config.New()
		cfg.Addr = addr
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		done := make(chan error, 1)
		go func() { done <- run(ctx, cfg, logger.Nop()) }()

		var resp *http.Response
		for range 50 {
			resp, err = http.Get("http://" + addr + "/stats")
			if err == nil {
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
		convey.So(err, convey.ShouldBeNil)
		convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		_ = resp.Body.Close()

		resp, err = http.Get("http://" + addr + "/openapi.yaml")
		convey.So(err, convey.ShouldBeNil)
		convey.So(resp.StatusCode, convey.ShouldEqual, http.StatusOK)
		_ = resp.Body.Close()

		convey.Convey("When the context is canceled", func() {
			cancel()

			convey.Convey("Then it shuts down cleanly", func() {
				select {
				case err := <-done:
					convey.So(err, convey.ShouldBeNil)
				case <-time.After(10 * time.Second):
					t.Fatal("run did not return")
				}
			})
		})
	})
}
