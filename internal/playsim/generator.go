package playsim

import (
	"fmt"
	"math/rand/v2"
)

// Generator shape constants.
const (
	minDurationMS = 10_000
	maxDurationMS = 60_000
	sampleStepMS  = 2_000
	replayChance  = 0.2
	minWatchShare = 0.1
)

// Generate builds deterministic sessions for cfg.
func Generate(cfg *Config) []Session {
	rng := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x9e3779b97f4a7c15)) //nolint:gosec // simulation only
	sessions := make([]Session, 0, cfg.Users)
	for u := range cfg.Users {
		s := Session{UserID: fmt.Sprintf("user-%03d", u), Watched: make(map[string]bool)}
		for _, v := range rng.Perm(cfg.Videos)[:1+rng.IntN(cfg.Videos)] {
			videoID := fmt.Sprintf("video-%03d", v)
			s.Watched[videoID] = true
			s.Samples = append(s.Samples, watch(rng, s.UserID, videoID)...)
		}
		sessions = append(sessions, s)
	}
	return sessions
}

// watch plays videoID from the start to a random share of its duration,
// sometimes unloading and replaying it.
func watch(rng *rand.Rand, userID, videoID string) []Sample {
	duration := int64(minDurationMS + rng.IntN(maxDurationMS-minDurationMS))
	stop := int64(float64(duration) * (minWatchShare + rng.Float64()*(1-minWatchShare)))

	var out []Sample
	play := func() {
		for pos := int64(0); ; pos += sampleStepMS {
			pos = min(pos, stop)
			out = append(out, Sample{UserID: userID, VideoID: videoID, Loaded: true, Playing: true, PositionMS: pos, DurationMS: duration})
			if pos == stop {
				return
			}
		}
	}
	play()
	if rng.Float64() < replayChance {
		out = append(out, Sample{UserID: userID, VideoID: videoID, DurationMS: duration})
		play()
	}
	return out
}
