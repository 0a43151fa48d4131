package playsim

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/reelrank/pkg/logger"
)

// Run generates sessions, replays them against the service and verifies
// every user's feed.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	stats := &Stats{StartTime: time.Now()}
	log := logger.Get().Named("playsim")
	log.Info(ctx, "starting playback simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("users", cfg.Users),
		logger.Int("videos", cfg.Videos),
		logger.Int("workers", cfg.Workers))

	client := newHTTPClient(cfg.BaseURL, cfg.Timeout)
	if err := client.Healthy(ctx); err != nil {
		return stats, fmt.Errorf("service health check failed: %w", err)
	}

	sessions := Generate(cfg)
	if err := submit(ctx, client, cfg.Workers, sessions, stats); err != nil {
		return stats, fmt.Errorf("session submission failed: %w", err)
	}
	if err := verifyFeeds(ctx, client, cfg.PageSize, sessions, stats); err != nil {
		return stats, fmt.Errorf("feed verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	log.Info(ctx, "simulation finished",
		logger.Int64("samples", stats.SamplesSent),
		logger.Int64("queued", stats.SamplesQueued),
		logger.Int64("failed", stats.SamplesFailed),
		logger.Int64("pages", stats.PagesFetched),
		logger.Int64("ranked", stats.VideosRanked),
		logger.Duration("duration", stats.Duration))
	return stats, nil
}

// submit replays sessions on a worker pool. Samples of one session stay in order.
func submit(ctx context.Context, client *HTTPClient, workers int, sessions []Session, stats *Stats) error {
	work := make(chan Session)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for range max(1, workers) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for s := range work {
				if err := replay(ctx, client, s, stats); err != nil {
					mu.Lock()
					errs = append(errs, err)
					mu.Unlock()
				}
			}
		}()
	}
	for _, s := range sessions {
		select {
		case work <- s:
		case <-ctx.Done():
		}
	}
	close(work)
	wg.Wait()
	return errors.Join(errs...)
}

func replay(ctx context.Context, client *HTTPClient, s Session, stats *Stats) error {
	for _, sample := range s.Samples {
		atomic.AddInt64(&stats.SamplesSent, 1)
		queued, err := client.Playback(ctx, sample)
		if err != nil {
			atomic.AddInt64(&stats.SamplesFailed, 1)
			continue
		}
		if queued {
			atomic.AddInt64(&stats.SamplesQueued, 1)
		}
	}
	if err := client.CloseSession(ctx, s.UserID); err != nil {
		return fmt.Errorf("close %s: %w", s.UserID, err)
	}
	atomic.AddInt64(&stats.Sessions, 1)
	return nil
}
