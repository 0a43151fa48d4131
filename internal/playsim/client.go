package playsim

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// Feed mirrors one GET /feed page.
type Feed struct {
	Videos []struct {
		VideoID    string  `json:"video_id"`
		TotalScore float64 `json:"total_score"`
	} `json:"videos"`
	NextCursor string `json:"next_cursor"`
	HasMore    bool   `json:"has_more"`
}

type playbackAck struct {
	Pending bool `json:"pending"`
}

// HTTPClient talks to the service API.
type HTTPClient struct {
	client  *http.Client
	baseURL string
}

func newHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{client: &http.Client{Timeout: timeout}, baseURL: baseURL}
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body, out any, want int) error {
	var rd io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request body: %w", err)
		}
		rd = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, rd)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != want {
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, bytes.TrimSpace(data))
	}
	if out != nil {
		if err := json.Unmarshal(data, out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// Playback posts one sample and reports whether it was queued.
func (c *HTTPClient) Playback(ctx context.Context, s Sample) (bool, error) {
	var ack playbackAck
	err := c.do(ctx, http.MethodPost, "/playback", s, &ack, http.StatusAccepted)
	return ack.Pending, err
}

// CloseSession forces the final flush of userID.
func (c *HTTPClient) CloseSession(ctx context.Context, userID string) error {
	return c.do(ctx, http.MethodPost, "/sessions/close", map[string]string{"user_id": userID}, nil, http.StatusNoContent)
}

// Page fetches one feed page.
func (c *HTTPClient) Page(ctx context.Context, userID, cursor string, limit int) (Feed, error) {
	q := url.Values{"user_id": {userID}, "limit": {strconv.Itoa(limit)}}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	var page Feed
	err := c.do(ctx, http.MethodGet, "/feed?"+q.Encode(), nil, &page, http.StatusOK)
	return page, err
}

// Healthy checks that the stats endpoint answers.
func (c *HTTPClient) Healthy(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/stats", nil, nil, http.StatusOK)
}
