// Package natsclient manages the NATS connection and JetStream resources
// shared by the ingest and state persistence layers.
package natsclient

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/c360/sentinel/errors"
)

var (
	// ErrNotConnected is returned when an operation needs a live connection.
	ErrNotConnected = stderrors.New("not connected to NATS")
	// ErrAlreadyConnected is returned by Connect on a live client.
	ErrAlreadyConnected = stderrors.New("already connected to NATS")
)

// Client wraps a NATS connection and its JetStream context.
type Client struct {
	url    string
	logger *slog.Logger

	clientName    string
	maxReconnects int
	reconnectWait time.Duration
	timeout       time.Duration
	drainTimeout  time.Duration
	username      string
	password      string
	token         string

	mu   sync.RWMutex
	conn *nats.Conn
	js   jetstream.JetStream
	subs []*nats.Subscription
}

// New creates a client for the given server URL. Options adjust connection
// behavior; defaults suit a local single-server deployment.
func New(url string, logger *slog.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Client{
		url:           url,
		logger:        logger.With("component", "natsclient"),
		clientName:    "sentinel",
		maxReconnects: -1,
		reconnectWait: 2 * time.Second,
		timeout:       5 * time.Second,
		drainTimeout:  10 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Connect establishes the connection and the JetStream context. The initial
// dial honors the configured timeout rather than the context.
func (c *Client) Connect(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return ErrAlreadyConnected
	}

	natsOpts := []nats.Option{
		nats.Name(c.clientName),
		nats.MaxReconnects(c.maxReconnects),
		nats.ReconnectWait(c.reconnectWait),
		nats.Timeout(c.timeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				c.logger.Warn("NATS disconnected", "error", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			c.logger.Info("NATS reconnected", "url", nc.ConnectedUrl())
		}),
	}
	if c.username != "" {
		natsOpts = append(natsOpts, nats.UserInfo(c.username, c.password))
	}
	if c.token != "" {
		natsOpts = append(natsOpts, nats.Token(c.token))
	}

	conn, err := nats.Connect(c.url, natsOpts...)
	if err != nil {
		return errors.WrapTransient(err, "natsclient", "connect", "connection failed")
	}

	js, err := jetstream.New(conn)
	if err != nil {
		conn.Close()
		return errors.WrapFatal(err, "natsclient", "connect", "jetstream init failed")
	}

	c.conn = conn
	c.js = js
	c.logger.Info("connected to NATS", "url", conn.ConnectedUrl())
	return nil
}

// Publish sends data on the given subject.
func (c *Client) Publish(subject string, data []byte) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}
	if err := conn.Publish(subject, data); err != nil {
		return errors.WrapTransient(err, "natsclient", "publish", "publish failed")
	}
	return nil
}

// Subscribe registers a handler for the given subject. Subscriptions are
// tracked and drained on Close.
func (c *Client) Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil, ErrNotConnected
	}
	sub, err := c.conn.Subscribe(subject, handler)
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient", "subscribe",
			fmt.Sprintf("subscribe to %s failed", subject))
	}
	c.subs = append(c.subs, sub)
	return sub, nil
}

// EnsureKeyValue returns the named KV bucket, creating it if needed.
func (c *Client) EnsureKeyValue(ctx context.Context, bucket string) (jetstream.KeyValue, error) {
	c.mu.RLock()
	js := c.js
	c.mu.RUnlock()

	if js == nil {
		return nil, ErrNotConnected
	}

	kv, err := js.KeyValue(ctx, bucket)
	if err == nil {
		return kv, nil
	}
	if !stderrors.Is(err, jetstream.ErrBucketNotFound) {
		return nil, errors.WrapTransient(err, "natsclient", "ensureKeyValue", "bucket lookup failed")
	}

	kv, err = js.CreateKeyValue(ctx, jetstream.KeyValueConfig{Bucket: bucket})
	if err != nil {
		return nil, errors.WrapTransient(err, "natsclient", "ensureKeyValue", "bucket creation failed")
	}
	c.logger.Info("created KV bucket", "bucket", bucket)
	return kv, nil
}

// IsConnected reports whether the underlying connection is live.
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn != nil && c.conn.IsConnected()
}

// Close drains subscriptions and shuts the connection down.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn == nil {
		return nil
	}

	for _, sub := range c.subs {
		if err := sub.Drain(); err != nil {
			c.logger.Warn("subscription drain failed", "subject", sub.Subject, "error", err)
		}
	}
	c.subs = nil

	if err := c.conn.Drain(); err != nil {
		c.conn.Close()
		c.conn = nil
		c.js = nil
		return errors.WrapTransient(err, "natsclient", "close", "drain failed")
	}
	c.conn = nil
	c.js = nil
	c.logger.Info("NATS connection closed")
	return nil
}
