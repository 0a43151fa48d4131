// Package playsim drives a running reelrank process with simulated player
// sessions and verifies the resulting feeds.
package playsim

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL  string        // Base URL of the service
	Users    int           // Number of simulated users
	Videos   int           // Size of the shared video catalog
	Workers  int           // Concurrent sessions in flight
	PageSize int           // Feed page size used for verification
	Timeout  time.Duration // HTTP request timeout
	Seed     uint64        // Generator seed; equal seeds give equal sessions
}

// Session is the ordered playback of one user.
type Session struct {
	UserID  string
	Samples []Sample
	Watched map[string]bool // distinct videos loaded in the session
}

// Sample mirrors the POST /playback body.
type Sample struct {
	UserID     string `json:"user_id"`
	VideoID    string `json:"video_id"`
	Loaded     bool   `json:"loaded"`
	Playing    bool   `json:"playing"`
	PositionMS int64  `json:"position_ms"`
	DurationMS int64  `json:"duration_ms"`
}

// Stats holds run statistics.
type Stats struct {
	Sessions      int64
	SamplesSent   int64
	SamplesQueued int64
	SamplesFailed int64
	PagesFetched  int64
	VideosRanked  int64
	StartTime     time.Time
	EndTime       time.Time
	Duration      time.Duration
}
