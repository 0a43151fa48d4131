package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/reelrank/internal/adapters/http/api"
	"github.com/okian/reelrank/internal/adapters/http/swagger"
	"github.com/okian/reelrank/internal/adapters/mq/broadcast"
	"github.com/okian/reelrank/internal/adapters/remote"
	"github.com/okian/reelrank/internal/adapters/repository"
	app "github.com/okian/reelrank/internal/app"
	"github.com/okian/reelrank/internal/config"
	"github.com/okian/reelrank/internal/domain/retry"
	"github.com/okian/reelrank/pkg/logger"
)

// HTTP server timeout constants.
const (
	readTimeout           = 10 * time.Second
	writeTimeout          = 90 * time.Second // recipe calls wait on the remote retry budget
	idleTimeout           = 60 * time.Second
	readHeaderTimeout     = 5 * time.Second
	shutdownTimeout       = 30 * time.Second
	systemMetricsInterval = 10 * time.Second
	startupTimeout        = 15 * time.Second
)

func main() {
	if err := logger.Init(logger.FormatText); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}

	// Root context with cancel on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		os.Exit(1)
	}
	if err := logger.Init(logger.Format(cfg.LogFormat)); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "reelrank stopped with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	opts, err := dependencies(startCtx, cfg, log)
	if err != nil {
		return err
	}
	svc := app.New(append(opts, serviceOptions(cfg, log)...)...)
	if err := svc.Start(startCtx); err != nil {
		return fmt.Errorf("start service: %w", err)
	}

	go startSystemMetricsUpdater(ctx, svc)

	mux := http.NewServeMux()
	api.NewServer(svc, svc).Register(ctx, mux)
	swagger.Register(ctx, mux)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           mux,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err, ok := <-serveErr:
		if ok {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(ctx, "server shutdown failed", logger.Error(err))
	}
	// Sessions get their final flush after the last request drained.
	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error(ctx, "service shutdown failed", logger.Error(err))
	}
	log.Info(ctx, "server stopped")
	return runErr
}

// dependencies opens the optional infrastructure named by cfg.
func dependencies(ctx context.Context, cfg *config.Config, log logger.Logger) (opts []app.Option, err error) {
	var opened releasers
	defer func() {
		if err != nil {
			err = errors.Join(err, opened.release())
		}
	}()

	if cfg.DatabaseURL != "" {
		pool, err := repository.OpenPool(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		store := repository.NewPostgresStore(pool)
		opened = append(opened, store.Close)
		if err := store.Migrate(ctx); err != nil {
			return nil, err
		}
		log.Info(ctx, "using postgres store")
		opts = append(opts, app.WithStore(store))
	}

	if cfg.NatsURL != "" {
		nc, err := broadcast.Connect(broadcast.ConnectOptions{URL: cfg.NatsURL})
		if err != nil {
			return nil, err
		}
		b := broadcast.NewNATS(nc, broadcast.DefaultSubject)
		opened = append(opened, b.Close)
		log.Info(ctx, "feed invalidations shared over nats", logger.String("subject", broadcast.DefaultSubject))
		opts = append(opts, app.WithBroadcaster(b))
	}

	if cfg.OpenAIAPIKey != "" {
		client, err := remote.New(remoteConfig(cfg))
		if err != nil {
			return nil, err
		}
		opts = append(opts, app.WithRemote(client))
	} else {
		log.Info(ctx, "openai_api_key not set; recipe and embedding endpoints disabled")
	}
	return opts, nil
}

// releasers closes resources opened during startup, newest first.
type releasers []func() error

func (r releasers) release() error {
	var errs []error
	for i := len(r) - 1; i >= 0; i-- {
		if err := r[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func remoteConfig(cfg *config.Config) remote.Config {
	return remote.Config{
		APIKey:              cfg.OpenAIAPIKey,
		BaseURL:             cfg.OpenAIBaseURL,
		CompletionModel:     cfg.CompletionModel,
		ImageModel:          cfg.ImageModel,
		EmbeddingModel:      cfg.EmbeddingModel,
		EmbeddingDimensions: cfg.EmbeddingDimensions,
		Timeout:             time.Duration(cfg.RemoteTimeoutMS) * time.Millisecond,
		RPS:                 cfg.RemoteRPS,
		Burst:               cfg.RemoteBurst,
		BreakerFailures:     cfg.BreakerFailures,
		BreakerOpen:         time.Duration(cfg.BreakerOpenMS) * time.Millisecond,
		Policy: retry.Policy{
			MaxAttempts: cfg.RetryMaxAttempts,
			BaseDelay:   cfg.RetryBaseDelay(),
			MaxDelay:    cfg.RetryMaxDelay(),
		},
	}
}

func serviceOptions(cfg *config.Config, log logger.Logger) []app.Option {
	return []app.Option{
		app.WithLogger(log.Named("service")),
		app.WithFlushInterval(cfg.FlushInterval()),
		app.WithSessionIdle(cfg.SessionIdle()),
		app.WithPositionDelta(time.Duration(cfg.PositionDeltaMS) * time.Millisecond),
		app.WithCompletionRatio(cfg.CompletionRatio),
		app.WithQueueCapacity(cfg.PendingQueueCapacity),
		app.WithPageSize(cfg.PageSize, cfg.MaxPageSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithWeights(cfg.EngagementWeight, cfg.SimilarityWeight),
	}
}

// startSystemMetricsUpdater refreshes the memory and goroutine gauges.
func startSystemMetricsUpdater(ctx context.Context, svc *app.Service) {
	ticker := time.NewTicker(systemMetricsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = svc.GetStats()
		}
	}
}
