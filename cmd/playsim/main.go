package main

import (
	"context"
	"flag"
	"os"
	"runtime"
	"time"

	"github.com/okian/reelrank/internal/playsim"
	"github.com/okian/reelrank/pkg/logger"
)

// Default configuration constants.
const (
	defaultUsers       = 50
	defaultVideos      = 40
	defaultPageSize    = 20
	defaultWorkers     = 2 // multiplier for runtime.NumCPU()
	defaultTimeout     = 30 * time.Second
	defaultTestTimeout = 10 * time.Minute
)

func main() {
	var (
		baseURL  = flag.String("url", "http://localhost:9080", "Base URL of the service")
		users    = flag.Int("users", defaultUsers, "Number of simulated users")
		videos   = flag.Int("videos", defaultVideos, "Size of the video catalog")
		pageSize = flag.Int("page", defaultPageSize, "Feed page size used for verification")
		workers  = flag.Int("workers", runtime.NumCPU()*defaultWorkers, "Number of concurrent sessions")
		timeout  = flag.Duration("timeout", defaultTimeout, "HTTP request timeout")
		seed     = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Generator seed")
		verbose  = flag.Bool("verbose", false, "Enable debug logging")
	)
	flag.Parse()

	if err := logger.Init(logger.FormatText); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		os.Exit(1)
	}
	if *verbose {
		_ = logger.SetLevelString("debug")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTestTimeout)
	defer cancel()

	cfg := &playsim.Config{
		BaseURL:  *baseURL,
		Users:    *users,
		Videos:   *videos,
		Workers:  *workers,
		PageSize: *pageSize,
		Timeout:  *timeout,
		Seed:     *seed,
	}
	if _, err := playsim.Run(ctx, cfg); err != nil {
		logger.Get().Error(ctx, "simulation failed", logger.Any("seed", *seed), logger.Error(err))
		cancel()
		os.Exit(1) //nolint:gocritic // cancel called above
	}
}
