// Package mqtt connects the Hermes bus to an MQTT broker using the Eclipse
// Paho client.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/MrWong99/hermesmic/internal/hermes"
)

// Default connection parameters.
const (
	defaultConnectTimeout = 10 * time.Second
	defaultPublishTimeout = 5 * time.Second
	qos                   = 0
)

// Config holds broker connection settings.
type Config struct {
	// Host and Port of the broker.
	Host string
	Port int

	// Username and Password are optional credentials.
	Username string
	Password string

	// TLS enables a TLS connection (ssl:// scheme).
	TLS bool

	// ClientID identifies this client. Defaults to "hermesmic-<uuid>".
	ClientID string

	// ConnectTimeout bounds the initial connection. Default: 10s.
	ConnectTimeout time.Duration
}

// Client is a [hermes.Client] backed by a Paho MQTT connection. It is safe
// for concurrent use.
type Client struct {
	client         paho.Client
	connectTimeout time.Duration

	mu   sync.Mutex
	subs []subscription

	closeOnce sync.Once
}

type subscription struct {
	topics  []string
	handler hermes.Handler
}

// Dial connects to the broker described by cfg and blocks until the
// connection is established, ctx is done or the connect timeout elapses.
// The client reconnects automatically and restores subscriptions.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = "hermesmic-" + uuid.NewString()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}

	c := &Client{connectTimeout: cfg.ConnectTimeout}

	scheme := "tcp"
	if cfg.TLS {
		scheme = "ssl"
	}
	opts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port)).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(false).
		SetCleanSession(true).
		SetOnConnectHandler(c.onConnect).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			slog.Warn("mqtt connection lost", "err", err)
		})
	if cfg.Username != "" {
		opts.SetUsername(cfg.Username)
		opts.SetPassword(cfg.Password)
	}
	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tls.VersionTLS12})
	}

	c.client = paho.NewClient(opts)

	slog.Debug("connecting to mqtt broker", "host", cfg.Host, "port", cfg.Port, "client_id", cfg.ClientID)
	if err := wait(ctx, c.client.Connect(), cfg.ConnectTimeout); err != nil {
		return nil, fmt.Errorf("mqtt: connect %s:%d: %w", cfg.Host, cfg.Port, err)
	}
	return c, nil
}

// Publish sends payload to topic with QoS 0.
func (c *Client) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := wait(ctx, c.client.Publish(topic, qos, false, payload), defaultPublishTimeout); err != nil {
		return fmt.Errorf("mqtt: publish %q: %w", topic, err)
	}
	return nil
}

// Subscribe registers h for topics. The subscription is recorded so it can be
// restored after a reconnect.
func (c *Client) Subscribe(ctx context.Context, h hermes.Handler, topics ...string) error {
	if len(topics) == 0 {
		return nil
	}
	sub := subscription{topics: topics, handler: h}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()

	if err := wait(ctx, c.subscribe(sub), c.connectTimeout); err != nil {
		return fmt.Errorf("mqtt: subscribe %v: %w", topics, err)
	}
	slog.Debug("subscribed", "topics", topics)
	return nil
}

// Connected reports whether the broker connection is currently up.
func (c *Client) Connected() bool {
	return c.client.IsConnectionOpen()
}

// Close disconnects from the broker, allowing 250ms for in-flight work.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.client.Disconnect(250)
	})
	return nil
}

func (c *Client) subscribe(sub subscription) paho.Token {
	filters := make(map[string]byte, len(sub.topics))
	for _, t := range sub.topics {
		filters[t] = qos
	}
	return c.client.SubscribeMultiple(filters, func(_ paho.Client, m paho.Message) {
		sub.handler(m.Topic(), m.Payload())
	})
}

// onConnect restores subscriptions after the initial connect or a reconnect.
func (c *Client) onConnect(_ paho.Client) {
	c.mu.Lock()
	subs := append([]subscription(nil), c.subs...)
	c.mu.Unlock()

	for _, sub := range subs {
		tok := c.subscribe(sub)
		go func() {
			if !tok.WaitTimeout(c.connectTimeout) {
				slog.Warn("mqtt resubscribe timed out", "topics", sub.topics)
				return
			}
			if err := tok.Error(); err != nil {
				slog.Warn("mqtt resubscribe failed", "topics", sub.topics, "err", err)
			}
		}()
	}
	slog.Info("mqtt connected", "subscriptions", len(subs))
}

// wait blocks until tok completes, ctx is done or timeout elapses.
func wait(ctx context.Context, tok paho.Token, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timed out")
	}
}

var _ hermes.Client = (*Client)(nil)
