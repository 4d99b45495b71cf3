package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Config holds RabbitMQ connection configuration
type Config struct {
	Host              string
	Port              int
	User              string
	Password          string
	VHost             string
	RetryAttempts     int
	RetryInterval     time.Duration
	Heartbeat         time.Duration
	ConnectionTimeout time.Duration
	PublishTimeout    time.Duration
	Confirms          bool
	PrefetchCount     int
}

// URL returns the AMQP connection string.
func (c *Config) URL() string {
	u := url.URL{
		Scheme: "amqp",
		User:   url.UserPassword(c.User, c.Password),
		Host:   fmt.Sprintf("%s:%d", c.Host, c.Port),
		Path:   "/",
	}
	// The broker default vhost is "/"; any other vhost follows the slash.
	if vhost := strings.TrimPrefix(c.VHost, "/"); vhost != "" {
		u.Path = "/" + vhost
	}
	return u.String()
}

// DialFunc opens an AMQP connection. amqp.DialConfig in production.
type DialFunc func(url string, config amqp.Config) (*amqp.Connection, error)

// ErrNotConnected is returned by operations on a closed client.
var ErrNotConnected = errors.New("not connected to RabbitMQ")

// Client represents a RabbitMQ client
type Client struct {
	config  *Config
	conn    *amqp.Connection
	channel *amqp.Channel
	logger  *slog.Logger

	publishMu   sync.Mutex
	closeChan   chan *amqp.Error
	mu          sync.RWMutex
	isConnected bool
}

// NewClient connects to RabbitMQ, retrying per the configured policy. It
// fails with an error wrapping ErrConnectivity once attempts are exhausted.
func NewClient(ctx context.Context, config *Config, logger *slog.Logger) (*Client, error) {
	return newClient(ctx, config, logger, amqp.DialConfig)
}

func newClient(ctx context.Context, config *Config, logger *slog.Logger, dial DialFunc) (*Client, error) {
	client := &Client{
		config: config,
		logger: logger,
	}

	if err := client.connect(ctx, dial); err != nil {
		return nil, fmt.Errorf("failed to create RabbitMQ client: %w", err)
	}

	return client, nil
}

// connect establishes connection to RabbitMQ with retry logic
func (c *Client) connect(ctx context.Context, dial DialFunc) error {
	amqpConfig := amqp.Config{
		Heartbeat: c.config.Heartbeat,
		Locale:    "en_US",
	}
	if c.config.ConnectionTimeout > 0 {
		amqpConfig.Dial = amqp.DefaultDial(c.config.ConnectionTimeout)
	}

	policy := RetryPolicy{MaxAttempts: c.config.RetryAttempts, Delay: c.config.RetryInterval}
	addr := c.config.URL()

	c.logger.Info("Connecting to RabbitMQ",
		slog.String("host", c.config.Host),
		slog.Int("port", c.config.Port),
		slog.Int("max_attempts", policy.MaxAttempts),
	)

	conn, err := Retry(ctx, policy, c.logger, func() (*amqp.Connection, error) {
		return dial(addr, amqpConfig)
	})
	if err != nil {
		return err
	}
	c.conn = conn

	// Create channel
	c.channel, err = c.conn.Channel()
	if err != nil {
		c.conn.Close()
		return fmt.Errorf("failed to create channel: %w", err)
	}

	if c.config.Confirms {
		if err := c.channel.Confirm(false); err != nil {
			c.channel.Close()
			c.conn.Close()
			return fmt.Errorf("failed to enable publisher confirms: %w", err)
		}
	}

	// Monitor connection
	c.closeChan = make(chan *amqp.Error, 1)
	c.channel.NotifyClose(c.closeChan)
	go c.watch()

	c.setConnected(true)
	c.logger.Info("Successfully connected to RabbitMQ")

	return nil
}

func (c *Client) watch() {
	err, ok := <-c.closeChan
	if ok && err != nil {
		c.logger.Error("RabbitMQ channel closed", slog.Any("error", err))
	}
	c.setConnected(false)
}

func (c *Client) setConnected(v bool) {
	c.mu.Lock()
	c.isConnected = v
	c.mu.Unlock()
}

// Declare creates the given topology on the client's channel.
func (c *Client) Declare(t Topology) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}
	if err := Declare(c.channel, t); err != nil {
		return err
	}

	c.logger.Info("RabbitMQ topology declared",
		slog.Int("exchanges", len(t.Exchanges)),
		slog.Int("queues", len(t.Queues)),
		slog.Int("bindings", len(t.Bindings)),
	)
	return nil
}

// Publish sends a persistent message. It never blocks longer than the
// configured publish timeout; with confirms enabled it also waits for the
// broker to ack the message within that window. Use exchange "" and the queue
// name as routing key to address a queue directly.
func (c *Client) Publish(ctx context.Context, exchange, routingKey string, body []byte, contentType string) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	if c.config.PublishTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.config.PublishTimeout)
		defer cancel()
	}

	msg := amqp.Publishing{
		ContentType:  contentType,
		Body:         body,
		DeliveryMode: amqp.Persistent, // persistent
		Timestamp:    time.Now(),
	}

	c.publishMu.Lock()
	confirm, err := c.channel.PublishWithDeferredConfirmWithContext(
		ctx,
		exchange,   // exchange
		routingKey, // routing key
		false,      // mandatory
		false,      // immediate
		msg,
	)
	c.publishMu.Unlock()

	if err != nil {
		c.logger.Error("Failed to publish message to RabbitMQ",
			slog.Any("error", err),
			slog.String("exchange", exchange),
			slog.String("routing_key", routingKey),
		)
		return fmt.Errorf("failed to publish message: %w", err)
	}

	// confirm is nil unless the channel is in confirm mode.
	if confirm != nil {
		acked, err := confirm.WaitContext(ctx)
		if err != nil {
			return fmt.Errorf("failed waiting for publish confirm: %w", err)
		}
		if !acked {
			return fmt.Errorf("broker rejected message to %q/%q", exchange, routingKey)
		}
	}

	c.logger.Debug("Message published to RabbitMQ",
		slog.String("exchange", exchange),
		slog.String("routing_key", routingKey),
		slog.Int("body_size", len(body)),
		slog.String("content_type", contentType),
	)

	return nil
}

// Close closes the RabbitMQ connection
func (c *Client) Close() error {
	c.logger.Info("Closing RabbitMQ connection")

	c.setConnected(false)

	if c.channel != nil {
		if err := c.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ channel",
				slog.Any("error", err),
			)
		}
	}

	if c.conn != nil {
		if err := c.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			c.logger.Error("Failed to close RabbitMQ connection",
				slog.Any("error", err),
			)
			return err
		}
	}

	c.logger.Info("RabbitMQ connection closed successfully")
	return nil
}

// IsConnected returns the connection status
func (c *Client) IsConnected() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.isConnected && c.conn != nil && !c.conn.IsClosed()
}
