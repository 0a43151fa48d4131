package playsim

import (
	"context"
	"errors"
	"fmt"
)

// ErrFeedMismatch reports a feed that does not match the simulated sessions.
var ErrFeedMismatch = errors.New("feed mismatch")

// verifyFeeds walks every user's feed to the end through cursors.
func verifyFeeds(ctx context.Context, client *HTTPClient, pageSize int, sessions []Session, stats *Stats) error {
	for _, s := range sessions {
		var (
			rows   []Row
			cursor string
		)
		for {
			page, err := client.Page(ctx, s.UserID, cursor, pageSize)
			if err != nil {
				return fmt.Errorf("page for %s: %w", s.UserID, err)
			}
			stats.PagesFetched++
			for _, v := range page.Videos {
				rows = append(rows, Row{VideoID: v.VideoID, Score: v.TotalScore})
			}
			if !page.HasMore {
				break
			}
			cursor = page.NextCursor
		}
		if err := CheckFeed(rows, s.Watched); err != nil {
			return fmt.Errorf("%s: %w", s.UserID, err)
		}
		stats.VideosRanked += int64(len(rows))
	}
	return nil
}

// Row is one feed entry under verification.
type Row struct {
	VideoID string
	Score   float64
}

// CheckFeed verifies rank order, uniqueness and that exactly the watched
// videos are ranked.
func CheckFeed(rows []Row, watched map[string]bool) error {
	seen := make(map[string]bool, len(rows))
	for i, r := range rows {
		if seen[r.VideoID] {
			return fmt.Errorf("%w: %s appears twice", ErrFeedMismatch, r.VideoID)
		}
		seen[r.VideoID] = true
		if !watched[r.VideoID] {
			return fmt.Errorf("%w: %s was never watched", ErrFeedMismatch, r.VideoID)
		}
		if i == 0 {
			continue
		}
		prev := rows[i-1]
		if prev.Score < r.Score || (prev.Score == r.Score && prev.VideoID > r.VideoID) {
			return fmt.Errorf("%w: %s ranked after %s", ErrFeedMismatch, r.VideoID, prev.VideoID)
		}
	}
	if len(seen) != len(watched) {
		return fmt.Errorf("%w: %d ranked, %d watched", ErrFeedMismatch, len(seen), len(watched))
	}
	return nil
}
