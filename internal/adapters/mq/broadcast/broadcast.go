// Package broadcast fans feed invalidations out to every process so each
// one drops the cached pages of the affected user.
package broadcast

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/okian/reelrank/pkg/logger"
)

// DefaultSubject carries invalidation messages.
const DefaultSubject = "reelrank.feed.invalidate"

// Connection defaults.
const (
	defaultMaxReconnects = 5
	defaultReconnectWait = 2 * time.Second
)

// Handler receives the user whose pages became stale.
type Handler func(ctx context.Context, userID string)

// Broadcaster publishes and receives invalidations.
type Broadcaster interface {
	Publish(ctx context.Context, userID string) error
	Subscribe(h Handler) error
	Close() error
}

// Message is the wire format of one invalidation.
type Message struct {
	Origin string    `json:"origin"`
	UserID string    `json:"user_id"`
	At     time.Time `json:"at"`
}

// ConnectOptions configures the NATS connection.
type ConnectOptions struct {
	URL           string
	MaxReconnects int
	ReconnectWait time.Duration
}

// Connect dials NATS and fails fast when the server is unreachable.
func Connect(opts ConnectOptions) (*nats.Conn, error) {
	if opts.MaxReconnects == 0 {
		opts.MaxReconnects = defaultMaxReconnects
	}
	if opts.ReconnectWait == 0 {
		opts.ReconnectWait = defaultReconnectWait
	}
	nc, err := nats.Connect(strings.TrimSpace(opts.URL),
		nats.Name("reelrank"),
		nats.MaxReconnects(opts.MaxReconnects),
		nats.ReconnectWait(opts.ReconnectWait),
		nats.RetryOnFailedConnect(false),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect %s (max_reconnects=%d, wait=%s): %w",
			opts.URL, opts.MaxReconnects, opts.ReconnectWait, err)
	}
	return nc, nil
}

// NATS is a Broadcaster over core NATS subjects. Messages published by the
// same instance are ignored on receipt.
type NATS struct {
	nc      *nats.Conn
	subject string
	origin  string
	log     logger.Logger

	mu   sync.Mutex
	subs []*nats.Subscription
}

// NewNATS wraps an open connection.
func NewNATS(nc *nats.Conn, subject string) *NATS {
	if subject == "" {
		subject = DefaultSubject
	}
	return &NATS{
		nc:      nc,
		subject: subject,
		origin:  uuid.NewString(),
		log:     logger.Get().Named("broadcast"),
	}
}

// Publish announces that userID's pages are stale.
func (b *NATS) Publish(_ context.Context, userID string) error {
	data, err := encode(Message{Origin: b.origin, UserID: userID, At: time.Now().UTC()})
	if err != nil {
		return err
	}
	if err := b.nc.Publish(b.subject, data); err != nil {
		return fmt.Errorf("publish invalidation: %w", err)
	}
	return nil
}

// Subscribe delivers invalidations from other instances to h.
func (b *NATS) Subscribe(h Handler) error {
	sub, err := b.nc.Subscribe(b.subject, func(m *nats.Msg) { b.dispatch(m.Data, h) })
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", b.subject, err)
	}
	b.mu.Lock()
	b.subs = append(b.subs, sub)
	b.mu.Unlock()
	return nil
}

func (b *NATS) dispatch(data []byte, h Handler) {
	ctx := context.Background()
	msg, err := decode(data)
	if err != nil {
		b.log.Warn(ctx, "invalid invalidation message", logger.Error(err))
		return
	}
	if msg.Origin == b.origin {
		return
	}
	h(ctx, msg.UserID)
}

// Close drains subscriptions and the connection.
func (b *NATS) Close() error {
	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()
	for _, s := range subs {
		_ = s.Unsubscribe()
	}
	return b.nc.Drain()
}

func encode(m Message) ([]byte, error) {
	if m.UserID == "" {
		return nil, ErrEmptyUser
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode invalidation: %w", err)
	}
	return b, nil
}

func decode(data []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("decode invalidation: %w", err)
	}
	if m.UserID == "" {
		return Message{}, ErrEmptyUser
	}
	return m, nil
}

// Nop is used when no broker is configured; invalidations stay local.
type Nop struct{}

// Publish implements Broadcaster.
func (Nop) Publish(context.Context, string) error { return nil }

// Subscribe implements Broadcaster.
func (Nop) Subscribe(Handler) error { return nil }

// Close implements Broadcaster.
func (Nop) Close() error { return nil }
